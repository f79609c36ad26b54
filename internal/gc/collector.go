// Package gc prunes backup descriptors that no live checkpoint can
// still need. Pruning is two-phase: Plan computes and persists the set
// of prunable backups, Run revalidates and deletes it.
package gc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mutgate-project/mutgate/internal/backup"
	"github.com/mutgate-project/mutgate/internal/ledger"
	"github.com/mutgate-project/mutgate/pkg/fsutil"
	"github.com/mutgate-project/mutgate/pkg/logging"
	"github.com/mutgate-project/mutgate/pkg/model"
)

// RetentionPolicy bounds what a prune may remove. Backups younger than
// KeepMinAge and the KeepMinBackups most recent ones survive even when
// their checkpoint is terminal.
type RetentionPolicy struct {
	KeepMinBackups int           `json:"keep_min_backups"`
	KeepMinAge     time.Duration `json:"keep_min_age"`
}

// DefaultRetention keeps at least 10 backups and everything younger
// than a day.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{KeepMinBackups: 10, KeepMinAge: 24 * time.Hour}
}

// Plan is a persisted prune plan.
type Plan struct {
	PlanID    string          `json:"plan_id"`
	CreatedAt time.Time       `json:"created_at"`
	Protected []string        `json:"protected"`
	ToDelete  []string        `json:"to_delete"`
	Policy    RetentionPolicy `json:"retention_policy"`
}

// StateFunc resolves a checkpoint id to its current state. The second
// return is false for checkpoints the caller does not know.
type StateFunc func(model.CheckpointID) (model.CheckpointState, bool)

// Collector prunes backups under a retention policy.
type Collector struct {
	backups *backup.Store
	ledger  ledger.Ledger
	state   StateFunc
	usage   func() int64
	dir     string
	policy  RetentionPolicy
	log     *logging.Logger
}

// Options configures a Collector.
type Options struct {
	// Dir is where prune plans are persisted.
	Dir    string
	Policy RetentionPolicy
	// Usage reports the current quota usage recorded in audit entries.
	Usage  func() int64
	Logger *logging.Logger
}

// NewCollector creates a collector.
func NewCollector(backups *backup.Store, l ledger.Ledger, state StateFunc, opts Options) *Collector {
	log := opts.Logger
	if log == nil {
		log = logging.NewLogger(logging.LevelInfo)
	}
	usage := opts.Usage
	if usage == nil {
		usage = func() int64 { return 0 }
	}
	return &Collector{
		backups: backups,
		ledger:  l,
		state:   state,
		usage:   usage,
		dir:     opts.Dir,
		policy:  opts.Policy,
		log:     log.WithFields(map[string]any{"component": "gc"}),
	}
}

// Plan computes which backups are prunable and persists the plan. A
// backup is protected while its checkpoint is non-terminal or unknown,
// while it is younger than the retention age, or while it is among the
// most recent KeepMinBackups backups.
func (c *Collector) Plan() (*Plan, error) {
	all, err := c.backups.List()
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CapturedAt.After(all[j].CapturedAt) })

	now := time.Now().UTC()
	var protected, toDelete []string
	for i, b := range all {
		if c.isProtected(b, i, now) {
			protected = append(protected, b.BackupID)
			continue
		}
		toDelete = append(toDelete, b.BackupID)
	}

	plan := &Plan{
		PlanID:    uuid.NewString(),
		CreatedAt: now,
		Protected: protected,
		ToDelete:  toDelete,
		Policy:    c.policy,
	}
	if err := c.writePlan(plan); err != nil {
		return nil, fmt.Errorf("write plan: %w", err)
	}
	return plan, nil
}

// Run executes a previously computed plan. The protected set is
// revalidated first: a backup that became protected since planning
// aborts the run.
func (c *Collector) Run(planID string) (int, error) {
	plan, err := c.loadPlan(planID)
	if err != nil {
		return 0, fmt.Errorf("load plan: %w", err)
	}

	all, err := c.backups.List()
	if err != nil {
		return 0, fmt.Errorf("list backups: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CapturedAt.After(all[j].CapturedAt) })

	now := time.Now().UTC()
	protectedNow := make(map[string]bool)
	for i, b := range all {
		if c.isProtected(b, i, now) {
			protectedNow[b.BackupID] = true
		}
	}
	for _, id := range plan.ToDelete {
		if protectedNow[id] {
			return 0, fmt.Errorf("plan mismatch: backup %s is now protected", id)
		}
	}

	deleted := 0
	for _, id := range plan.ToDelete {
		if err := c.backups.Remove(id); err != nil {
			c.log.ErrorErr("prune failed", err, map[string]any{"backup_id": id})
			continue
		}
		deleted++
	}

	c.deletePlan(planID)

	if _, err := c.ledger.Append(model.EventBackupPruned, "", nil, map[string]any{
		"plan_id":       planID,
		"deleted_count": deleted,
	}, c.usage()); err != nil {
		c.log.ErrorErr("audit append failed after prune", err, map[string]any{"plan_id": planID})
	}

	c.log.Info("backups pruned", map[string]any{"plan_id": planID, "deleted": deleted})
	return deleted, nil
}

func (c *Collector) isProtected(b *model.Backup, rank int, now time.Time) bool {
	state, known := c.state(b.CheckpointID)
	if !known || !state.Terminal() {
		return true
	}
	if rank < c.policy.KeepMinBackups {
		return true
	}
	if now.Sub(b.CapturedAt) < c.policy.KeepMinAge {
		return true
	}
	return false
}

func (c *Collector) writePlan(plan *Plan) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(c.planPath(plan.PlanID), data, 0644)
}

func (c *Collector) loadPlan(planID string) (*Plan, error) {
	data, err := os.ReadFile(c.planPath(planID))
	if err != nil {
		return nil, err
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (c *Collector) deletePlan(planID string) {
	os.Remove(c.planPath(planID))
}

func (c *Collector) planPath(planID string) string {
	return filepath.Join(c.dir, planID+".json")
}
