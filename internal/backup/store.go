// Package backup implements pre-mutation snapshot storage. Each backup
// captures one resource's prior content so a failed mutation can be
// rolled back; backups are durable JSON descriptors kept at least until
// their checkpoint reaches a terminal state.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mutgate-project/mutgate/internal/persist"
	"github.com/mutgate-project/mutgate/pkg/fsutil"
	"github.com/mutgate-project/mutgate/pkg/model"
)

// Store captures and restores resource snapshots. Reads and writes of
// resource content go through the persistence collaborator; the backup
// descriptors themselves live under dir.
type Store struct {
	resources persist.Store
	dir       string
}

// NewStore creates a backup store writing descriptors under dir.
func NewStore(resources persist.Store, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &Store{resources: resources, dir: dir}, nil
}

// Capture snapshots the current content of a resource for a checkpoint.
// A resource that does not exist yet yields a backup whose restore
// deletes the resource (undoing a create).
func (s *Store) Capture(checkpointID model.CheckpointID, resourceID string) (*model.Backup, error) {
	content, err := s.resources.Read(resourceID)
	existed := true
	if errors.Is(err, persist.ErrNotExist) {
		existed = false
		content = nil
	} else if err != nil {
		return nil, fmt.Errorf("capture %s: %w", resourceID, err)
	}

	b := &model.Backup{
		BackupID:     uuid.NewString(),
		CheckpointID: checkpointID,
		ResourceID:   resourceID,
		CapturedAt:   time.Now().UTC(),
		PriorContent: content,
		Existed:      existed,
	}

	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal backup: %w", err)
	}
	if err := fsutil.AtomicWrite(s.path(b.BackupID), data, 0644); err != nil {
		return nil, fmt.Errorf("persist backup %s: %w", b.BackupID, err)
	}

	return b, nil
}

// Restore writes the prior content back, or deletes the resource if it
// did not exist before the mutation. Restoring the same backup twice
// produces the same end state and does not error.
func (s *Store) Restore(b *model.Backup) error {
	if !b.Existed {
		if err := s.resources.Delete(b.ResourceID); err != nil {
			return fmt.Errorf("restore %s (delete): %w", b.ResourceID, err)
		}
		return nil
	}
	if err := s.resources.Write(b.ResourceID, b.PriorContent); err != nil {
		return fmt.Errorf("restore %s: %w", b.ResourceID, err)
	}
	return nil
}

// Load reads a backup descriptor by id.
func (s *Store) Load(backupID string) (*model.Backup, error) {
	data, err := os.ReadFile(s.path(backupID))
	if err != nil {
		return nil, fmt.Errorf("load backup %s: %w", backupID, err)
	}
	var b model.Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse backup %s: %w", backupID, err)
	}
	return &b, nil
}

// List returns all stored backup descriptors.
func (s *Store) List() ([]*model.Backup, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	var backups []*model.Backup
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		b, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// skip unreadable descriptors
			continue
		}
		backups = append(backups, b)
	}
	return backups, nil
}

// Remove deletes a backup descriptor. Used only by retention pruning
// after the owning checkpoint is terminal.
func (s *Store) Remove(backupID string) error {
	if err := os.Remove(s.path(backupID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove backup %s: %w", backupID, err)
	}
	return nil
}

func (s *Store) path(backupID string) string {
	return filepath.Join(s.dir, backupID+".json")
}
