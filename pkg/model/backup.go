package model

import "time"

// Backup is a pre-mutation snapshot of a single resource. PriorContent
// is nil when the resource did not exist before the mutation (a create),
// in which case restoring the backup deletes the resource.
type Backup struct {
	BackupID     string       `json:"backup_id"`
	CheckpointID CheckpointID `json:"checkpoint_id"`
	ResourceID   string       `json:"resource_id"`
	CapturedAt   time.Time    `json:"captured_at"`
	PriorContent []byte       `json:"prior_content,omitempty"`
	Existed      bool         `json:"existed"`
}
