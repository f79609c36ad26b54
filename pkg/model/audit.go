package model

import "time"

// EventType identifies the type of auditable event.
type EventType string

const (
	EventCheckpointCreated     EventType = "checkpoint_created"
	EventCheckpointApproved    EventType = "checkpoint_approved"
	EventCheckpointRejected    EventType = "checkpoint_rejected"
	EventMutationExecuted      EventType = "mutation_executed"
	EventRollbackPerformed     EventType = "rollback_performed"
	EventQuotaThresholdCrossed EventType = "quota_threshold_crossed"
	EventQuotaReset            EventType = "quota_reset"
	EventBackupPruned          EventType = "backup_pruned"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventCheckpointCreated, EventCheckpointApproved, EventCheckpointRejected,
		EventMutationExecuted, EventRollbackPerformed, EventQuotaThresholdCrossed,
		EventQuotaReset, EventBackupPruned:
		return true
	}
	return false
}

// AuditEntry is a single record in the audit ledger. Entries are
// append-only; Sequence is monotonically increasing and gap-free within
// a ledger, and the PrevHash/RecordHash chain makes tampering detectable.
type AuditEntry struct {
	Sequence       uint64         `json:"sequence"`
	Timestamp      time.Time      `json:"timestamp"`
	EventType      EventType      `json:"event_type"`
	CheckpointID   CheckpointID   `json:"checkpoint_id,omitempty"`
	ResourceIDs    []string       `json:"resource_ids,omitempty"`
	Detail         map[string]any `json:"detail,omitempty"`
	ResultingUsage int64          `json:"resulting_usage"`
	PrevHash       HashValue      `json:"prev_hash"`
	RecordHash     HashValue      `json:"record_hash"`
}
