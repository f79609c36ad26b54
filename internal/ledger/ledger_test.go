package ledger_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/mutgate-project/mutgate/internal/ledger"
	"github.com/mutgate-project/mutgate/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]ledger.Ledger {
	t.Helper()

	fl, err := ledger.NewFileLedger(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { fl.Close() })

	sl, err := ledger.NewSQLiteLedger(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sl.Close() })

	return map[string]ledger.Ledger{
		"jsonl":  fl,
		"sqlite": sl,
		"memory": ledger.NewMemLedger(),
	}
}

func TestAppend_AssignsGapFreeSequence(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i := 1; i <= 5; i++ {
				entry, err := l.Append(model.EventCheckpointCreated, "cp-1", []string{"cfg.json"}, nil, 0)
				require.NoError(t, err)
				assert.Equal(t, uint64(i), entry.Sequence)
			}
		})
	}
}

func TestAppend_ChainsHashes(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first, err := l.Append(model.EventCheckpointCreated, "cp-1", nil, nil, 0)
			require.NoError(t, err)
			assert.Empty(t, first.PrevHash)
			assert.NotEmpty(t, first.RecordHash)

			second, err := l.Append(model.EventCheckpointApproved, "cp-1", nil, nil, 0)
			require.NoError(t, err)
			assert.Equal(t, first.RecordHash, second.PrevHash)
		})
	}
}

func TestReadAll_PreservesAppendOrder(t *testing.T) {
	events := []model.EventType{
		model.EventCheckpointCreated,
		model.EventCheckpointApproved,
		model.EventMutationExecuted,
	}
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, evt := range events {
				_, err := l.Append(evt, "cp-1", []string{"cfg.json"}, map[string]any{"k": "v"}, 42)
				require.NoError(t, err)
			}

			entries, err := l.ReadAll()
			require.NoError(t, err)
			require.Len(t, entries, len(events))
			for i, entry := range entries {
				assert.Equal(t, events[i], entry.EventType)
				assert.Equal(t, int64(42), entry.ResultingUsage)
				assert.Equal(t, []string{"cfg.json"}, entry.ResourceIDs)
			}
		})
	}
}

func TestReadAll_EntriesVerify(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := l.Append(model.EventCheckpointCreated, "cp-1", []string{"a", "b"}, map[string]any{"state": "approved"}, 10)
			require.NoError(t, err)
			_, err = l.Append(model.EventMutationExecuted, "cp-1", []string{"a", "b"}, nil, 10)
			require.NoError(t, err)

			entries, err := l.ReadAll()
			require.NoError(t, err)
			assert.NoError(t, ledger.VerifyChain(entries))
		})
	}
}

func TestAppend_RejectsUnknownEventType(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := l.Append(model.EventType("made_up"), "cp-1", nil, nil, 0)
			assert.Error(t, err)
		})
	}
}

func TestAppend_ConcurrentWritersSerialized(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const writers = 10
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := l.Append(model.EventCheckpointCreated, "cp-1", nil, nil, 0)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			entries, err := l.ReadAll()
			require.NoError(t, err)
			require.Len(t, entries, writers)
			assert.NoError(t, ledger.VerifyChain(entries))
		})
	}
}
