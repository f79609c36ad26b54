package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mutgate-project/mutgate/pkg/errclass"
	"github.com/mutgate-project/mutgate/pkg/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    sequence INTEGER PRIMARY KEY,
    timestamp TEXT NOT NULL,
    event_type TEXT NOT NULL,
    checkpoint_id TEXT NOT NULL DEFAULT '',
    resource_ids TEXT NOT NULL DEFAULT '[]',
    detail TEXT NOT NULL DEFAULT '{}',
    resulting_usage INTEGER NOT NULL,
    prev_hash TEXT NOT NULL,
    record_hash TEXT NOT NULL
);
`

// SQLiteLedger stores audit entries in an embedded SQLite database.
// Appends run in implicit transactions over a single connection, so a
// crash never leaves a partial record.
type SQLiteLedger struct {
	db       *sql.DB
	mu       sync.Mutex
	nextSeq  uint64
	lastHash model.HashValue
	closed   bool
}

// NewSQLiteLedger opens (or creates) a SQLite ledger at dbPath.
// Use ":memory:" for tests.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}

	l := &SQLiteLedger{db: db, nextSeq: 1}
	if err := l.recover(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) recover() error {
	row := l.db.QueryRow(`SELECT sequence, record_hash FROM audit_entries ORDER BY sequence DESC LIMIT 1`)
	var seq uint64
	var hash string
	err := row.Scan(&seq, &hash)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recover ledger head: %w", err)
	}
	l.nextSeq = seq + 1
	l.lastHash = model.HashValue(hash)
	return nil
}

// Append inserts one entry.
func (l *SQLiteLedger) Append(eventType model.EventType, checkpointID model.CheckpointID, resourceIDs []string, detail map[string]any, resultingUsage int64) (*model.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, errclass.ErrLedgerClosed
	}

	entry, err := newEntry(l.nextSeq, l.lastHash, eventType, checkpointID, resourceIDs, detail, resultingUsage)
	if err != nil {
		return nil, err
	}

	ids, err := json.Marshal(entry.ResourceIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal resource ids: %w", err)
	}
	det, err := json.Marshal(entry.Detail)
	if err != nil {
		return nil, fmt.Errorf("marshal detail: %w", err)
	}

	_, err = l.db.Exec(
		`INSERT INTO audit_entries (sequence, timestamp, event_type, checkpoint_id, resource_ids, detail, resulting_usage, prev_hash, record_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Sequence,
		entry.Timestamp.Format(time.RFC3339Nano),
		string(entry.EventType),
		string(entry.CheckpointID),
		string(ids),
		string(det),
		entry.ResultingUsage,
		string(entry.PrevHash),
		string(entry.RecordHash),
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	l.nextSeq++
	l.lastHash = entry.RecordHash
	return entry, nil
}

// ReadAll returns every entry ordered by sequence.
func (l *SQLiteLedger) ReadAll() ([]*model.AuditEntry, error) {
	rows, err := l.db.Query(
		`SELECT sequence, timestamp, event_type, checkpoint_id, resource_ids, detail, resulting_usage, prev_hash, record_hash
		 FROM audit_entries ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		var (
			entry    model.AuditEntry
			ts       string
			evt      string
			cpID     string
			ids      string
			det      string
			prevHash string
			recHash  string
		)
		if err := rows.Scan(&entry.Sequence, &ts, &evt, &cpID, &ids, &det, &entry.ResultingUsage, &prevHash, &recHash); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse entry timestamp: %w", err)
		}
		entry.EventType = model.EventType(evt)
		entry.CheckpointID = model.CheckpointID(cpID)
		entry.PrevHash = model.HashValue(prevHash)
		entry.RecordHash = model.HashValue(recHash)
		if err := json.Unmarshal([]byte(ids), &entry.ResourceIDs); err != nil {
			return nil, fmt.Errorf("parse resource ids: %w", err)
		}
		if det != "" && det != "null" {
			if err := json.Unmarshal([]byte(det), &entry.Detail); err != nil {
				return nil, fmt.Errorf("parse detail: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// Close closes the database. Subsequent appends fail.
func (l *SQLiteLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}
