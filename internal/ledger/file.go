package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mutgate-project/mutgate/pkg/errclass"
	"github.com/mutgate-project/mutgate/pkg/model"
)

// FileLedger appends audit entries to a JSONL file. Each append writes
// one whole record plus newline and fsyncs before acknowledging, so a
// crash can at worst leave a torn final line, which is discarded on the
// next open.
type FileLedger struct {
	path     string
	mu       sync.Mutex
	file     *os.File
	nextSeq  uint64
	lastHash model.HashValue
	closed   bool
}

// NewFileLedger opens (or creates) a JSONL ledger and recovers the
// sequence counter and chain head from existing entries.
func NewFileLedger(path string) (*FileLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	l := &FileLedger{path: path, nextSeq: 1}

	entries, tornOffset, err := readEntries(path)
	if err != nil {
		return nil, err
	}
	if tornOffset >= 0 {
		if err := os.Truncate(path, tornOffset); err != nil {
			return nil, fmt.Errorf("truncate torn ledger record: %w", err)
		}
	}
	if n := len(entries); n > 0 {
		l.nextSeq = entries[n-1].Sequence + 1
		l.lastHash = entries[n-1].RecordHash
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l.file = file
	return l, nil
}

// Append writes one entry, fsyncing before return.
func (l *FileLedger) Append(eventType model.EventType, checkpointID model.CheckpointID, resourceIDs []string, detail map[string]any, resultingUsage int64) (*model.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, errclass.ErrLedgerClosed
	}

	entry, err := newEntry(l.nextSeq, l.lastHash, eventType, checkpointID, resourceIDs, detail, resultingUsage)
	if err != nil {
		return nil, err
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal audit entry: %w", err)
	}

	if err := lockFile(l.file); err != nil {
		return nil, fmt.Errorf("flock ledger: %w", err)
	}
	defer unlockFile(l.file)

	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("write audit entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return nil, fmt.Errorf("sync ledger: %w", err)
	}

	l.nextSeq++
	l.lastHash = entry.RecordHash
	return entry, nil
}

// ReadAll returns every entry in append order.
func (l *FileLedger) ReadAll() ([]*model.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, _, err := readEntries(l.path)
	return entries, err
}

// Close closes the backing file. Subsequent appends fail.
func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// readEntries parses the JSONL file. A torn final line (crash between
// write and fsync) is reported via tornOffset >= 0, the byte offset at
// which the file should be truncated. A malformed line anywhere else is
// corruption and fails the read.
func readEntries(path string) (entries []*model.AuditEntry, tornOffset int64, err error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, -1, nil
	}
	if err != nil {
		return nil, -1, fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	var offset int64
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lineLen := int64(len(scanner.Bytes())) + 1
		var entry model.AuditEntry
		if unmarshalErr := json.Unmarshal(scanner.Bytes(), &entry); unmarshalErr != nil {
			// Only the final line may be torn; anything else is corruption.
			if scanner.Scan() {
				return nil, -1, errclass.ErrAuditChainBroken.WithMessagef("malformed record after offset %d", offset)
			}
			return entries, offset, nil
		}
		entries = append(entries, &entry)
		offset += lineLen
	}
	if err := scanner.Err(); err != nil {
		return nil, -1, fmt.Errorf("scan ledger: %w", err)
	}
	return entries, -1, nil
}
