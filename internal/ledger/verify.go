package ledger

import (
	"github.com/mutgate-project/mutgate/pkg/errclass"
	"github.com/mutgate-project/mutgate/pkg/model"
)

// VerifyChain checks that entries form a gap-free, hash-linked sequence
// starting at 1. Any break returns ErrAuditChainBroken naming the first
// bad sequence number.
func VerifyChain(entries []*model.AuditEntry) error {
	var prevHash model.HashValue
	for i, entry := range entries {
		want := uint64(i + 1)
		if entry.Sequence != want {
			return errclass.ErrAuditChainBroken.WithMessagef("sequence gap: want %d, got %d", want, entry.Sequence)
		}
		if entry.PrevHash != prevHash {
			return errclass.ErrAuditChainBroken.WithMessagef("prev hash mismatch at sequence %d", entry.Sequence)
		}
		recomputed, err := computeEntryHash(entry)
		if err != nil {
			return errclass.ErrAuditChainBroken.WithMessagef("recompute hash at sequence %d: %v", entry.Sequence, err)
		}
		if recomputed != entry.RecordHash {
			return errclass.ErrAuditChainBroken.WithMessagef("record hash mismatch at sequence %d", entry.Sequence)
		}
		prevHash = entry.RecordHash
	}
	return nil
}

// Replay folds the ledger into the per-checkpoint state each entry
// implies, reconstructing checkpoint states from history alone.
// Replaying a verified ledger from empty yields the same terminal
// states the live process observed.
func Replay(entries []*model.AuditEntry) map[model.CheckpointID]model.CheckpointState {
	states := make(map[model.CheckpointID]model.CheckpointState)
	for _, entry := range entries {
		if entry.CheckpointID == "" {
			continue
		}
		switch entry.EventType {
		case model.EventCheckpointCreated:
			if state, ok := entry.Detail["state"].(string); ok {
				states[entry.CheckpointID] = model.CheckpointState(state)
			} else {
				states[entry.CheckpointID] = model.StatePendingApproval
			}
		case model.EventCheckpointApproved:
			states[entry.CheckpointID] = model.StateApproved
		case model.EventCheckpointRejected:
			states[entry.CheckpointID] = model.StateRejected
		case model.EventMutationExecuted:
			states[entry.CheckpointID] = model.StateExecuted
		case model.EventRollbackPerformed:
			states[entry.CheckpointID] = model.StateRolledBack
		}
	}
	return states
}
