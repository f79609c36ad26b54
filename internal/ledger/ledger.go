// Package ledger implements the append-only audit ledger. Entries carry
// a SHA-256 hash chain and gap-free sequence numbers; append order is
// the authoritative record of what happened, ahead of wall-clock
// timestamps.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/mutgate-project/mutgate/pkg/jsonutil"
	"github.com/mutgate-project/mutgate/pkg/model"
)

// Ledger is the append-only audit log. Implementations serialize
// Append internally: there is exactly one logical writer even when
// multiple goroutines call Append.
type Ledger interface {
	// Append records an event and returns the stored entry with its
	// assigned sequence number. The entry is durable before Append returns.
	Append(eventType model.EventType, checkpointID model.CheckpointID, resourceIDs []string, detail map[string]any, resultingUsage int64) (*model.AuditEntry, error)
	// ReadAll returns every entry in append order.
	ReadAll() ([]*model.AuditEntry, error)
	// Close releases the backing store.
	Close() error
}

// newEntry builds and hashes the next entry in a chain.
func newEntry(seq uint64, prevHash model.HashValue, eventType model.EventType, checkpointID model.CheckpointID, resourceIDs []string, detail map[string]any, resultingUsage int64) (*model.AuditEntry, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	entry := &model.AuditEntry{
		Sequence:       seq,
		Timestamp:      time.Now().UTC(),
		EventType:      eventType,
		CheckpointID:   checkpointID,
		ResourceIDs:    append([]string(nil), resourceIDs...),
		Detail:         detail,
		ResultingUsage: resultingUsage,
		PrevHash:       prevHash,
	}
	hash, err := computeEntryHash(entry)
	if err != nil {
		return nil, err
	}
	entry.RecordHash = hash
	return entry, nil
}

// computeEntryHash hashes an entry with the RecordHash field cleared.
func computeEntryHash(entry *model.AuditEntry) (model.HashValue, error) {
	hashEntry := *entry
	hashEntry.RecordHash = ""

	data, err := jsonutil.CanonicalMarshal(&hashEntry)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}

	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}
