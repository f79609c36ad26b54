package ledger

import (
	"sync"

	"github.com/mutgate-project/mutgate/pkg/model"
)

// MemLedger is an in-memory ledger for tests. AppendHook, when set,
// runs before each append and can inject failures.
type MemLedger struct {
	mu         sync.Mutex
	entries    []*model.AuditEntry
	lastHash   model.HashValue
	AppendHook func(eventType model.EventType) error
}

// NewMemLedger creates an empty in-memory ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{}
}

// Append records an entry in memory.
func (l *MemLedger) Append(eventType model.EventType, checkpointID model.CheckpointID, resourceIDs []string, detail map[string]any, resultingUsage int64) (*model.AuditEntry, error) {
	if l.AppendHook != nil {
		if err := l.AppendHook(eventType); err != nil {
			return nil, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := newEntry(uint64(len(l.entries)+1), l.lastHash, eventType, checkpointID, resourceIDs, detail, resultingUsage)
	if err != nil {
		return nil, err
	}
	l.entries = append(l.entries, entry)
	l.lastHash = entry.RecordHash
	return entry, nil
}

// ReadAll returns the recorded entries in append order.
func (l *MemLedger) ReadAll() ([]*model.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*model.AuditEntry(nil), l.entries...), nil
}

// Close is a no-op.
func (l *MemLedger) Close() error { return nil }
