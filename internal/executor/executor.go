// Package executor applies approved mutations. It captures backups
// before writing, rolls failed mutations back from those backups, and
// reports every outcome to the audit ledger.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mutgate-project/mutgate/internal/backup"
	"github.com/mutgate-project/mutgate/internal/checkpoint"
	"github.com/mutgate-project/mutgate/internal/ledger"
	"github.com/mutgate-project/mutgate/internal/persist"
	"github.com/mutgate-project/mutgate/internal/quota"
	"github.com/mutgate-project/mutgate/pkg/errclass"
	"github.com/mutgate-project/mutgate/pkg/logging"
	"github.com/mutgate-project/mutgate/pkg/metrics"
	"github.com/mutgate-project/mutgate/pkg/model"
)

// Result is the terminal outcome of executing a checkpoint.
type Result struct {
	CheckpointID model.CheckpointID    `json:"checkpoint_id"`
	State        model.CheckpointState `json:"state"`
	Mutated      []string              `json:"mutated,omitempty"`
	Restored     []string              `json:"restored,omitempty"`
	Unrestored   []string              `json:"unrestored,omitempty"`
	Cause        string                `json:"cause,omitempty"`
}

// Executor runs approved mutations. Execute is safe for concurrent use;
// a per-checkpoint mutex guarantees at most one in-flight execution per
// checkpoint, and terminal checkpoints return their memoized result.
type Executor struct {
	store   persist.Store
	backups *backup.Store
	ledger  ledger.Ledger
	mgr     *checkpoint.Manager
	quota   *quota.Tracker
	retries int
	log     *logging.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	locks   map[model.CheckpointID]*sync.Mutex
	results map[model.CheckpointID]*memo
}

type memo struct {
	result *Result
	err    error
}

// Options configures an Executor.
type Options struct {
	// RestoreRetries bounds per-resource restore attempts during rollback.
	RestoreRetries int
	Logger         *logging.Logger
	Metrics        *metrics.Registry
}

// New creates an executor.
func New(store persist.Store, backups *backup.Store, l ledger.Ledger, mgr *checkpoint.Manager, q *quota.Tracker, opts Options) *Executor {
	retries := opts.RestoreRetries
	if retries < 1 {
		retries = 3
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewLogger(logging.LevelInfo)
	}
	return &Executor{
		store:   store,
		backups: backups,
		ledger:  l,
		mgr:     mgr,
		quota:   q,
		retries: retries,
		log:     log.WithFields(map[string]any{"component": "executor"}),
		metrics: opts.Metrics,
		locks:   make(map[model.CheckpointID]*sync.Mutex),
		results: make(map[model.CheckpointID]*memo),
	}
}

// Execute applies the mutation behind an approved checkpoint.
// Re-executing a checkpoint that already reached a terminal state
// returns the prior result without touching any resource.
func (e *Executor) Execute(ctx context.Context, id model.CheckpointID) (*Result, error) {
	lock := e.checkpointLock(id)
	lock.Lock()
	defer lock.Unlock()

	if m := e.memoized(id); m != nil {
		return m.result, m.err
	}

	cp, err := e.mgr.Get(id)
	if err != nil {
		return nil, err
	}
	if cp.State != model.StateApproved {
		return nil, errclass.ErrNotApproved.WithMessagef("checkpoint %s is %s", id, cp.State)
	}
	if len(cp.Requests) == 0 {
		return nil, errclass.ErrInvalidTransition.WithMessagef("checkpoint %s carries no mutation", id)
	}

	start := time.Now()
	result, err := e.run(ctx, cp)
	if result != nil && result.State.Terminal() {
		e.memoize(id, result, err)
		e.metrics.RecordExecution(string(result.State), time.Since(start))
	}
	return result, err
}

// run performs backup capture, apply and (on failure) rollback.
// Called with the per-checkpoint lock held and state known approved.
func (e *Executor) run(ctx context.Context, cp *model.Checkpoint) (*Result, error) {
	backups, err := e.captureAll(ctx, cp)
	if err != nil {
		// No resource was written; the checkpoint stays approved and
		// the caller may retry.
		e.log.ErrorErr("backup capture failed", err, map[string]any{
			"checkpoint_id": cp.ID.String(),
		})
		return nil, errclass.ErrBackupFailure.WithMessagef("checkpoint %s: %v", cp.ID, err)
	}

	mutated, applyErr := e.apply(cp)
	if applyErr == nil {
		if _, err := e.mgr.Transition(cp.ID, model.StateExecuted); err != nil {
			return nil, err
		}
		ops := make([]string, len(cp.Requests))
		for i, req := range cp.Requests {
			ops[i] = string(req.Op)
		}
		if _, err := e.ledger.Append(model.EventMutationExecuted, cp.ID, cp.AffectedResources,
			map[string]any{"operations": ops}, e.quota.Used()); err != nil {
			e.log.ErrorErr("audit append failed after execution", err, map[string]any{
				"checkpoint_id": cp.ID.String(),
			})
		}
		e.log.Info("mutation executed", map[string]any{
			"checkpoint_id": cp.ID.String(),
			"resources":     cp.AffectedResources,
		})
		return &Result{CheckpointID: cp.ID, State: model.StateExecuted, Mutated: mutated}, nil
	}

	return e.rollback(cp, backups, mutated, applyErr)
}

// captureAll snapshots every affected resource before any write.
func (e *Executor) captureAll(ctx context.Context, cp *model.Checkpoint) (map[string]*model.Backup, error) {
	backups := make(map[string]*model.Backup, len(cp.AffectedResources))
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	for _, resourceID := range cp.AffectedResources {
		resourceID := resourceID
		g.Go(func() error {
			b, err := e.backups.Capture(cp.ID, resourceID)
			if err != nil {
				return err
			}
			mu.Lock()
			backups[resourceID] = b
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return backups, nil
}

// apply writes the proposed operations in request order. Returns the
// resources actually mutated, which drives rollback on failure.
func (e *Executor) apply(cp *model.Checkpoint) ([]string, error) {
	var mutated []string
	for _, req := range cp.Requests {
		var err error
		switch req.Op {
		case model.OpCreate, model.OpUpdate:
			err = e.store.Write(req.ResourceID, req.ProposedContent)
		case model.OpDelete:
			err = e.store.Delete(req.ResourceID)
		default:
			err = fmt.Errorf("unknown operation %q", req.Op)
		}
		if err != nil {
			return mutated, fmt.Errorf("apply %s to %s: %w", req.Op, req.ResourceID, err)
		}
		mutated = append(mutated, req.ResourceID)
	}
	return mutated, nil
}

// rollback restores every mutated resource from its backup, retrying
// each restore a bounded number of times. Resources that cannot be
// restored are reported, never silently dropped.
func (e *Executor) rollback(cp *model.Checkpoint, backups map[string]*model.Backup, mutated []string, applyErr error) (*Result, error) {
	var restored, unrestored []string
	for _, resourceID := range mutated {
		b := backups[resourceID]
		if b == nil {
			unrestored = append(unrestored, resourceID)
			continue
		}
		if err := e.restoreWithRetries(b); err != nil {
			e.log.ErrorErr("restore failed", err, map[string]any{
				"checkpoint_id": cp.ID.String(),
				"resource":      resourceID,
			})
			unrestored = append(unrestored, resourceID)
			continue
		}
		restored = append(restored, resourceID)
	}

	if _, err := e.mgr.Transition(cp.ID, model.StateRolledBack); err != nil {
		return nil, err
	}

	detail := map[string]any{
		"error":    applyErr.Error(),
		"restored": restored,
	}
	if len(unrestored) > 0 {
		detail["unrestored"] = unrestored
	}
	if _, err := e.ledger.Append(model.EventRollbackPerformed, cp.ID, cp.AffectedResources, detail, e.quota.Used()); err != nil {
		e.log.ErrorErr("audit append failed after rollback", err, map[string]any{
			"checkpoint_id": cp.ID.String(),
		})
	}

	result := &Result{
		CheckpointID: cp.ID,
		State:        model.StateRolledBack,
		Mutated:      mutated,
		Restored:     restored,
		Unrestored:   unrestored,
		Cause:        applyErr.Error(),
	}

	if len(unrestored) > 0 {
		// Not auto-retried: a partially applied mutation needs a human.
		return result, errclass.ErrPartialRollback.WithMessagef(
			"checkpoint %s: %d resource(s) not restored", cp.ID, len(unrestored))
	}

	e.log.Warn("mutation rolled back", map[string]any{
		"checkpoint_id": cp.ID.String(),
		"cause":         applyErr.Error(),
	})
	return result, nil
}

func (e *Executor) restoreWithRetries(b *model.Backup) error {
	var lastErr error
	for attempt := 0; attempt < e.retries; attempt++ {
		if lastErr = e.backups.Restore(b); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (e *Executor) checkpointLock(id model.CheckpointID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}

func (e *Executor) memoized(id model.CheckpointID) *memo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.results[id]
}

func (e *Executor) memoize(id model.CheckpointID, result *Result, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[id] = &memo{result: result, err: err}
}
