package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// CheckpointID is the unique identifier for a checkpoint: <unix_ms>-<rand8hex>
type CheckpointID string

// NewCheckpointID generates a new unique checkpoint ID.
func NewCheckpointID() CheckpointID {
	ts := time.Now().UnixMilli()
	var randBytes [4]byte
	if _, err := rand.Read(randBytes[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return CheckpointID(fmt.Sprintf("%013d-%s", ts, hex.EncodeToString(randBytes[:])))
}

// ShortID returns the first 8 characters for display.
func (id CheckpointID) ShortID() string {
	s := string(id)
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

// String returns the full checkpoint ID as string.
func (id CheckpointID) String() string {
	return string(id)
}

// MutationRequest is an intended change submitted by a caller. It is
// immutable once submitted; lifecycle ownership transfers to the
// checkpoint that accepts it.
type MutationRequest struct {
	ResourceID      string    `json:"resource_id"`
	Op              Operation `json:"operation"`
	ProposedContent []byte    `json:"proposed_content,omitempty"`
	RequestedBy     string    `json:"requested_by"`
	Description     string    `json:"description,omitempty"`
}

// Checkpoint is the unit of approval through which every mutation must
// pass. AffectedResources never changes after creation; State is mutated
// only through the checkpoint manager. Requests is empty for
// token_threshold and manual checkpoints, which gate no mutation.
type Checkpoint struct {
	ID                CheckpointID       `json:"checkpoint_id"`
	Action            CheckpointAction   `json:"action"`
	CreatedAt         time.Time          `json:"created_at"`
	AffectedResources []string           `json:"affected_resources"`
	RequiresApproval  bool               `json:"requires_approval"`
	State             CheckpointState    `json:"state"`
	ApprovedBy        string             `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time         `json:"approved_at,omitempty"`
	RejectedReason    string             `json:"rejected_reason,omitempty"`
	Requests          []*MutationRequest `json:"requests,omitempty"`
}

// Clone returns a deep copy safe to hand to callers.
func (c *Checkpoint) Clone() *Checkpoint {
	out := *c
	out.AffectedResources = append([]string(nil), c.AffectedResources...)
	if c.ApprovedAt != nil {
		at := *c.ApprovedAt
		out.ApprovedAt = &at
	}
	if len(c.Requests) > 0 {
		out.Requests = make([]*MutationRequest, len(c.Requests))
		for i, req := range c.Requests {
			cp := *req
			cp.ProposedContent = append([]byte(nil), req.ProposedContent...)
			out.Requests[i] = &cp
		}
	}
	return &out
}
