package checkpoint_test

import (
	"errors"
	"testing"

	"github.com/mutgate-project/mutgate/internal/checkpoint"
	"github.com/mutgate-project/mutgate/internal/ledger"
	"github.com/mutgate-project/mutgate/internal/quota"
	"github.com/mutgate-project/mutgate/pkg/errclass"
	"github.com/mutgate-project/mutgate/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*checkpoint.Manager, *ledger.MemLedger, *quota.Tracker) {
	t.Helper()
	l := ledger.NewMemLedger()
	q := quota.NewTracker(80, 100)
	return checkpoint.NewManager(l, q, nil), l, q
}

func request(resource string) *model.MutationRequest {
	return &model.MutationRequest{
		ResourceID:      resource,
		Op:              model.OpUpdate,
		ProposedContent: []byte("v2"),
		RequestedBy:     "agent-1",
		Description:     "update config",
	}
}

func TestCreate_AutoApproved(t *testing.T) {
	m, l, _ := newManager(t)

	cp, err := m.Create(request("cfg.json"), false)
	require.NoError(t, err)
	assert.Equal(t, model.StateApproved, cp.State)
	assert.Equal(t, model.ActionPreMutation, cp.Action)
	assert.Equal(t, []string{"cfg.json"}, cp.AffectedResources)

	entries, _ := l.ReadAll()
	require.Len(t, entries, 1)
	assert.Equal(t, model.EventCheckpointCreated, entries[0].EventType)
	assert.Equal(t, "approved", entries[0].Detail["state"])
}

func TestCreate_PendingApproval(t *testing.T) {
	m, _, _ := newManager(t)

	cp, err := m.Create(request("cfg.json"), true)
	require.NoError(t, err)
	assert.Equal(t, model.StatePendingApproval, cp.State)
}

func TestCreate_HardLimitFailsFast(t *testing.T) {
	m, l, q := newManager(t)
	q.Consume(100)

	_, err := m.Create(request("cfg.json"), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrQuotaExceeded))

	entries, _ := l.ReadAll()
	assert.Empty(t, entries, "failed admission must leave no audit entry")
	assert.Empty(t, m.List(), "failed admission must leave no checkpoint")
}

func TestCreate_ConflictingResourceRejected(t *testing.T) {
	m, _, _ := newManager(t)

	_, err := m.Create(request("cfg.json"), true)
	require.NoError(t, err)

	_, err = m.Create(request("cfg.json"), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrConflictingResource))

	// Disjoint resources are fine.
	_, err = m.Create(request("other.json"), false)
	assert.NoError(t, err)
}

func TestCreate_ConflictClearedByTerminalState(t *testing.T) {
	m, _, _ := newManager(t)

	cp, err := m.Create(request("cfg.json"), true)
	require.NoError(t, err)
	_, err = m.Reject(cp.ID, "alice", "not needed")
	require.NoError(t, err)

	_, err = m.Create(request("cfg.json"), false)
	assert.NoError(t, err)
}

func TestCreate_ValidatesRequest(t *testing.T) {
	m, _, _ := newManager(t)

	tests := []struct {
		name string
		req  *model.MutationRequest
	}{
		{"nil request", nil},
		{"bad resource", &model.MutationRequest{ResourceID: "../x", Op: model.OpUpdate, RequestedBy: "a"}},
		{"bad principal", &model.MutationRequest{ResourceID: "x", Op: model.OpUpdate, RequestedBy: ""}},
		{"bad op", &model.MutationRequest{ResourceID: "x", Op: "rename", RequestedBy: "a"}},
		{"delete with content", &model.MutationRequest{ResourceID: "x", Op: model.OpDelete, ProposedContent: []byte("v"), RequestedBy: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(tt.req, false)
			assert.True(t, errors.Is(err, errclass.ErrNameInvalid))
		})
	}
}

func TestApprove_HappyPath(t *testing.T) {
	m, l, _ := newManager(t)

	cp, err := m.Create(request("cfg.json"), true)
	require.NoError(t, err)

	approved, err := m.Approve(cp.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StateApproved, approved.State)
	assert.Equal(t, "alice", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	entries, _ := l.ReadAll()
	require.Len(t, entries, 2)
	assert.Equal(t, model.EventCheckpointApproved, entries[1].EventType)
	assert.Equal(t, "alice", entries[1].Detail["approved_by"])
}

func TestApprove_NotFound(t *testing.T) {
	m, _, _ := newManager(t)
	_, err := m.Approve("no-such-checkpoint", "alice")
	assert.True(t, errors.Is(err, errclass.ErrNotFound))
}

func TestApprove_NotPending(t *testing.T) {
	m, _, _ := newManager(t)

	cp, err := m.Create(request("cfg.json"), false) // auto approved
	require.NoError(t, err)

	_, err = m.Approve(cp.ID, "alice")
	assert.True(t, errors.Is(err, errclass.ErrNotPending))
}

func TestReject_NoSecondDecision(t *testing.T) {
	m, l, _ := newManager(t)

	cp, err := m.Create(request("cfg.json"), true)
	require.NoError(t, err)

	rejected, err := m.Reject(cp.ID, "alice", "too risky")
	require.NoError(t, err)
	assert.Equal(t, model.StateRejected, rejected.State)
	assert.Equal(t, "too risky", rejected.RejectedReason)

	_, err = m.Approve(cp.ID, "bob")
	assert.True(t, errors.Is(err, errclass.ErrNotPending))
	_, err = m.Reject(cp.ID, "bob", "again")
	assert.True(t, errors.Is(err, errclass.ErrNotPending))

	entries, _ := l.ReadAll()
	require.Len(t, entries, 2)
	assert.Equal(t, model.EventCheckpointRejected, entries[1].EventType)
}

func TestTransition_EnforcesTable(t *testing.T) {
	m, _, _ := newManager(t)

	cp, err := m.Create(request("cfg.json"), true)
	require.NoError(t, err)

	// pending -> executed is not a legal move
	_, err = m.Transition(cp.ID, model.StateExecuted)
	assert.True(t, errors.Is(err, errclass.ErrInvalidTransition))

	_, err = m.Approve(cp.ID, "alice")
	require.NoError(t, err)

	got, err := m.Transition(cp.ID, model.StateExecuted)
	require.NoError(t, err)
	assert.Equal(t, model.StateExecuted, got.State)

	// terminal states admit nothing further
	_, err = m.Transition(cp.ID, model.StateRolledBack)
	assert.True(t, errors.Is(err, errclass.ErrInvalidTransition))
}

func TestCreateThreshold(t *testing.T) {
	m, l, _ := newManager(t)

	cp, err := m.CreateThreshold()
	require.NoError(t, err)
	assert.Equal(t, model.ActionTokenThreshold, cp.Action)
	assert.Equal(t, model.StatePendingApproval, cp.State)
	assert.Empty(t, cp.AffectedResources)

	entries, _ := l.ReadAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "token_threshold", entries[0].Detail["action"])
}

func TestGet_TerminalCheckpointStillVisible(t *testing.T) {
	m, _, _ := newManager(t)

	cp, err := m.Create(request("cfg.json"), true)
	require.NoError(t, err)
	_, err = m.Reject(cp.ID, "alice", "no")
	require.NoError(t, err)

	got, err := m.Get(cp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateRejected, got.State)
}

func TestList_OrderedByCreation(t *testing.T) {
	m, _, _ := newManager(t)

	a, _ := m.Create(request("a.json"), false)
	b, _ := m.Create(request("b.json"), false)
	c, _ := m.Create(request("c.json"), false)

	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
	assert.Equal(t, c.ID, list[2].ID)
}

func TestCreate_LedgerFailureLeavesNoState(t *testing.T) {
	l := ledger.NewMemLedger()
	l.AppendHook = func(model.EventType) error { return errors.New("disk full") }
	m := checkpoint.NewManager(l, quota.NewTracker(80, 100), nil)

	_, err := m.Create(request("cfg.json"), false)
	require.Error(t, err)
	assert.Empty(t, m.List())

	// the resource must not stay held
	l.AppendHook = nil
	_, err = m.Create(request("cfg.json"), false)
	assert.NoError(t, err)
}

func TestCreateMulti_HoldsEveryResource(t *testing.T) {
	m, l, _ := newManager(t)

	cp, err := m.CreateMulti([]*model.MutationRequest{
		request("a.json"),
		request("b.json"),
	}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, cp.AffectedResources)

	_, err = m.Create(request("b.json"), false)
	assert.True(t, errors.Is(err, errclass.ErrConflictingResource))

	entries, _ := l.ReadAll()
	require.Len(t, entries, 1)
	assert.Equal(t, model.EventCheckpointCreated, entries[0].EventType)
}

func TestCreateMulti_DuplicateResourceRejected(t *testing.T) {
	m, _, _ := newManager(t)

	_, err := m.CreateMulti([]*model.MutationRequest{
		request("a.json"),
		request("a.json"),
	}, false)
	assert.True(t, errors.Is(err, errclass.ErrConflictingResource))
}

func TestCreateMulti_EmptySetRejected(t *testing.T) {
	m, _, _ := newManager(t)

	_, err := m.CreateMulti(nil, false)
	assert.True(t, errors.Is(err, errclass.ErrNameInvalid))
}
