package ledger_test

import (
	"errors"
	"testing"

	"github.com/mutgate-project/mutgate/internal/ledger"
	"github.com/mutgate-project/mutgate/pkg/errclass"
	"github.com/mutgate-project/mutgate/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyChain_EmptyIsValid(t *testing.T) {
	assert.NoError(t, ledger.VerifyChain(nil))
}

func TestVerifyChain_DetectsSequenceGap(t *testing.T) {
	l := ledger.NewMemLedger()
	for i := 0; i < 3; i++ {
		_, err := l.Append(model.EventCheckpointCreated, "cp-1", nil, nil, 0)
		require.NoError(t, err)
	}
	entries, err := l.ReadAll()
	require.NoError(t, err)

	gapped := []*model.AuditEntry{entries[0], entries[2]}
	err = ledger.VerifyChain(gapped)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrAuditChainBroken))
}

func TestVerifyChain_DetectsBrokenLink(t *testing.T) {
	l := ledger.NewMemLedger()
	for i := 0; i < 2; i++ {
		_, err := l.Append(model.EventCheckpointCreated, "cp-1", nil, nil, 0)
		require.NoError(t, err)
	}
	entries, err := l.ReadAll()
	require.NoError(t, err)

	mangled := *entries[1]
	mangled.PrevHash = "0000"
	err = ledger.VerifyChain([]*model.AuditEntry{entries[0], &mangled})
	assert.True(t, errors.Is(err, errclass.ErrAuditChainBroken))
}

func TestReplay_ReconstructsTerminalStates(t *testing.T) {
	l := ledger.NewMemLedger()

	// cp-a: auto approved, executed
	mustAppend(t, l, model.EventCheckpointCreated, "cp-a", map[string]any{"state": "approved"})
	mustAppend(t, l, model.EventMutationExecuted, "cp-a", nil)

	// cp-b: pending, approved, rolled back
	mustAppend(t, l, model.EventCheckpointCreated, "cp-b", map[string]any{"state": "pending_approval"})
	mustAppend(t, l, model.EventCheckpointApproved, "cp-b", nil)
	mustAppend(t, l, model.EventRollbackPerformed, "cp-b", nil)

	// cp-c: pending, rejected
	mustAppend(t, l, model.EventCheckpointCreated, "cp-c", map[string]any{"state": "pending_approval"})
	mustAppend(t, l, model.EventCheckpointRejected, "cp-c", nil)

	// cp-d: still pending
	mustAppend(t, l, model.EventCheckpointCreated, "cp-d", map[string]any{"state": "pending_approval"})

	// quota event with no checkpoint
	_, err := l.Append(model.EventQuotaThresholdCrossed, "", nil, nil, 90)
	require.NoError(t, err)

	entries, err := l.ReadAll()
	require.NoError(t, err)

	states := ledger.Replay(entries)
	assert.Equal(t, model.StateExecuted, states["cp-a"])
	assert.Equal(t, model.StateRolledBack, states["cp-b"])
	assert.Equal(t, model.StateRejected, states["cp-c"])
	assert.Equal(t, model.StatePendingApproval, states["cp-d"])
	assert.Len(t, states, 4)
}

func mustAppend(t *testing.T, l ledger.Ledger, evt model.EventType, cp model.CheckpointID, detail map[string]any) {
	t.Helper()
	_, err := l.Append(evt, cp, nil, detail, 0)
	require.NoError(t, err)
}
