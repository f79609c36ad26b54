package mutgate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mutgate-project/mutgate/internal/backup"
	"github.com/mutgate-project/mutgate/internal/checkpoint"
	"github.com/mutgate-project/mutgate/internal/executor"
	"github.com/mutgate-project/mutgate/internal/gc"
	"github.com/mutgate-project/mutgate/internal/ledger"
	"github.com/mutgate-project/mutgate/internal/persist"
	"github.com/mutgate-project/mutgate/internal/quota"
	"github.com/mutgate-project/mutgate/pkg/config"
	"github.com/mutgate-project/mutgate/pkg/errclass"
	"github.com/mutgate-project/mutgate/pkg/fsutil"
	"github.com/mutgate-project/mutgate/pkg/logging"
	"github.com/mutgate-project/mutgate/pkg/metrics"
	"github.com/mutgate-project/mutgate/pkg/model"
	"github.com/mutgate-project/mutgate/pkg/webhook"
)

// StateDirName is the governance state directory under the root.
const StateDirName = ".mutgate"

// Governor provides high-level governance operations on a root.
type Governor struct {
	root     string
	stateDir string
	cfg      *config.Config

	store   persist.Store
	backups *backup.Store
	led     ledger.Ledger
	quota   *quota.Tracker
	mgr     *checkpoint.Manager
	exec    *executor.Executor
	hooks   *webhook.Client
	metrics *metrics.Registry
	log     *logging.Logger

	mu sync.Mutex
	// gate is the pending token_threshold checkpoint that blocks new
	// admissions until a human decides it. Empty when admission is open.
	gate model.CheckpointID
}

// Options configures a Governor.
type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry
	// Hooks are webhook destinations added on top of the configured ones.
	Hooks []webhook.Hook
}

// Result is the terminal outcome of executing a checkpoint.
type Result = executor.Result

// GCPlan is a persisted backup prune plan.
type GCPlan = gc.Plan

// UsageResult reports the effect of a ConsumeUsage call.
type UsageResult struct {
	Used        int64             `json:"used"`
	CrossedSoft bool              `json:"crossed_soft"`
	CrossedHard bool              `json:"crossed_hard"`
	Checkpoint  *model.Checkpoint `json:"checkpoint,omitempty"`
}

// GCOptions configures backup pruning.
type GCOptions struct {
	KeepMinBackups int
	KeepMinAge     time.Duration
	DryRun         bool
}

// Init initializes governance state at the given root and opens it.
func Init(root string, opts Options) (*Governor, error) {
	if _, err := os.Stat(config.Path(root)); err == nil {
		return nil, fmt.Errorf("mutgate init: %s already initialized", root)
	}
	if err := config.Save(root, config.Default()); err != nil {
		return nil, fmt.Errorf("mutgate init: %w", err)
	}
	return Open(root, opts)
}

// Open opens existing governance state at the given root.
func Open(root string, opts Options) (*Governor, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("mutgate open: %w", err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return nil, fmt.Errorf("mutgate open: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logging.NewLogger(logging.Level(cfg.Logging.Level))
	}
	log = log.WithFields(map[string]any{"component": "governor"})

	stateDir := filepath.Join(absRoot, StateDirName)
	for _, sub := range []string{"audit", "backups", "checkpoints", "gc"} {
		if err := os.MkdirAll(filepath.Join(stateDir, sub), 0755); err != nil {
			return nil, fmt.Errorf("mutgate open: %w", err)
		}
	}

	store, err := openStore(cfg, stateDir)
	if err != nil {
		return nil, fmt.Errorf("mutgate open: %w", err)
	}
	led, err := openLedger(cfg, stateDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("mutgate open: %w", err)
	}

	entries, err := led.ReadAll()
	if err != nil {
		led.Close()
		store.Close()
		return nil, fmt.Errorf("mutgate open: %w", err)
	}
	if err := ledger.VerifyChain(entries); err != nil {
		led.Close()
		store.Close()
		return nil, fmt.Errorf("mutgate open: %w", err)
	}

	q := quota.NewTracker(cfg.Quota.SoftThreshold, cfg.Quota.HardLimit)
	q.Restore(restoredUsage(stateDir, entries))

	backups, err := backup.NewStore(store, filepath.Join(stateDir, "backups"))
	if err != nil {
		led.Close()
		store.Close()
		return nil, fmt.Errorf("mutgate open: %w", err)
	}

	g := &Governor{
		root:     absRoot,
		stateDir: stateDir,
		cfg:      cfg,
		store:    store,
		backups:  backups,
		led:      led,
		quota:    q,
		metrics:  opts.Metrics,
		log:      log,
	}
	g.mgr = checkpoint.NewManager(led, q, log)
	g.exec = executor.New(store, backups, led, g.mgr, q, executor.Options{
		RestoreRetries: cfg.Executor.RestoreRetries,
		Logger:         log,
		Metrics:        opts.Metrics,
	})

	hooks := append(webhook.FromConfig(cfg.Webhooks), opts.Hooks...)
	g.hooks = webhook.NewClient(hooks, webhook.Options{Logger: log})

	if err := g.recover(entries); err != nil {
		g.Close()
		return nil, fmt.Errorf("mutgate open: %w", err)
	}

	g.metrics.SetQuotaUsed(q.Used())
	return g, nil
}

// OpenOrInit opens existing governance state, or initializes it first.
func OpenOrInit(root string, opts Options) (*Governor, error) {
	if _, err := os.Stat(config.Path(root)); err == nil {
		return Open(root, opts)
	}
	return Init(root, opts)
}

// restoredUsage recovers the quota counter for a reopened session: the
// persisted counter file when present, else the last audit entry, since
// plain consumptions below the soft threshold produce no entry.
func restoredUsage(stateDir string, entries []*model.AuditEntry) int64 {
	data, err := os.ReadFile(filepath.Join(stateDir, "quota.json"))
	if err == nil {
		var state model.QuotaState
		if json.Unmarshal(data, &state) == nil {
			return state.Used
		}
	}
	if len(entries) > 0 {
		return entries[len(entries)-1].ResultingUsage
	}
	return 0
}

func openStore(cfg *config.Config, stateDir string) (persist.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBadger:
		return persist.NewBadgerStore(persist.BadgerOptions{
			Dir:        filepath.Join(stateDir, "resources-badger"),
			SyncWrites: true,
		})
	default:
		return persist.NewFSStore(filepath.Join(stateDir, "resources"))
	}
}

func openLedger(cfg *config.Config, stateDir string) (ledger.Ledger, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerSQLite:
		return ledger.NewSQLiteLedger(filepath.Join(stateDir, "audit", "audit.db"))
	default:
		return ledger.NewFileLedger(filepath.Join(stateDir, "audit", "audit.jsonl"))
	}
}

// recover rebuilds in-memory state from persisted checkpoint
// descriptors, with the ledger as the authority on state. Descriptors
// lagging the ledger (a crash between append and descriptor write) are
// brought forward; checkpoints known only to the ledger are rebuilt as
// skeletons without their proposed content.
func (g *Governor) recover(entries []*model.AuditEntry) error {
	replayed := ledger.Replay(entries)

	byID := make(map[model.CheckpointID]*model.Checkpoint)
	for _, cp := range g.loadDescriptors() {
		byID[cp.ID] = cp
	}
	for _, entry := range entries {
		if entry.EventType != model.EventCheckpointCreated || entry.CheckpointID == "" {
			continue
		}
		if _, ok := byID[entry.CheckpointID]; ok {
			continue
		}
		g.log.Warn("checkpoint known only to the ledger, rebuilding without content", map[string]any{
			"checkpoint_id": entry.CheckpointID.String(),
		})
		byID[entry.CheckpointID] = skeletonFromEntry(entry)
	}

	var seed []*model.Checkpoint
	for id, cp := range byID {
		if state, ok := replayed[id]; ok && state != cp.State {
			g.log.Warn("descriptor state behind ledger, adopting ledger state", map[string]any{
				"checkpoint_id": id.String(),
				"descriptor":    string(cp.State),
				"ledger":        string(state),
			})
			cp.State = state
			g.saveCheckpoint(cp)
		}
		if cp.State == model.StateApproved {
			g.log.Warn("approved checkpoint carried over from a previous session", map[string]any{
				"checkpoint_id": id.String(),
			})
		}
		if cp.Action == model.ActionTokenThreshold && cp.State == model.StatePendingApproval {
			g.gate = cp.ID
		}
		seed = append(seed, cp)
	}
	return g.mgr.Seed(seed)
}

func skeletonFromEntry(entry *model.AuditEntry) *model.Checkpoint {
	cp := &model.Checkpoint{
		ID:                entry.CheckpointID,
		Action:            model.ActionPreMutation,
		CreatedAt:         entry.Timestamp,
		AffectedResources: entry.ResourceIDs,
		State:             model.StatePendingApproval,
	}
	if action, ok := entry.Detail["action"].(string); ok {
		cp.Action = model.CheckpointAction(action)
	}
	if state, ok := entry.Detail["state"].(string); ok {
		cp.State = model.CheckpointState(state)
	}
	if ra, ok := entry.Detail["requires_approval"].(bool); ok {
		cp.RequiresApproval = ra
	}
	return cp
}

// RequestMutation admits a single mutation request under a new
// checkpoint. With requiresApproval false the checkpoint is created
// already approved.
func (g *Governor) RequestMutation(req *model.MutationRequest, requiresApproval bool) (*model.Checkpoint, error) {
	return g.RequestMutations([]*model.MutationRequest{req}, requiresApproval)
}

// RequestMutations admits a set of mutation requests that execute or
// roll back together. Admission is refused while a usage threshold
// checkpoint awaits a decision.
func (g *Governor) RequestMutations(reqs []*model.MutationRequest, requiresApproval bool) (*model.Checkpoint, error) {
	g.mu.Lock()
	gate := g.gate
	g.mu.Unlock()
	if gate != "" {
		return nil, errclass.ErrApprovalRequired.WithMessagef(
			"usage threshold checkpoint %s awaits a decision", gate)
	}

	cp, err := g.mgr.CreateMulti(reqs, requiresApproval)
	if err != nil {
		return nil, err
	}
	g.saveCheckpoint(cp)
	g.metrics.RecordCheckpointCreated(string(cp.Action))
	g.hooks.NotifyCheckpoint(webhook.EventCheckpointCreated, cp, reqs[0].RequestedBy)
	if cp.State == model.StatePendingApproval {
		g.hooks.NotifyCheckpoint(webhook.EventCheckpointPending, cp, reqs[0].RequestedBy)
	}
	return cp, nil
}

// RequestCheckpoint creates a manual checkpoint gating no resource.
func (g *Governor) RequestCheckpoint(requestedBy string) (*model.Checkpoint, error) {
	cp, err := g.mgr.CreateManual(requestedBy)
	if err != nil {
		return nil, err
	}
	g.saveCheckpoint(cp)
	g.metrics.RecordCheckpointCreated(string(cp.Action))
	g.hooks.NotifyCheckpoint(webhook.EventCheckpointPending, cp, requestedBy)
	return cp, nil
}

// Approve transitions a pending checkpoint to approved. Approving a
// pending usage threshold checkpoint reopens admission.
func (g *Governor) Approve(id model.CheckpointID, approver string) (*model.Checkpoint, error) {
	cp, err := g.mgr.Approve(id, approver)
	if err != nil {
		return nil, err
	}
	g.saveCheckpoint(cp)
	g.clearGate(id)
	g.metrics.RecordDecision("approved")
	g.hooks.NotifyCheckpoint(webhook.EventCheckpointApproved, cp, approver)
	return cp, nil
}

// Reject transitions a pending checkpoint to rejected. Rejecting a
// pending usage threshold checkpoint also reopens admission; the
// rejection itself is the recorded human decision.
func (g *Governor) Reject(id model.CheckpointID, approver, reason string) (*model.Checkpoint, error) {
	cp, err := g.mgr.Reject(id, approver, reason)
	if err != nil {
		return nil, err
	}
	g.saveCheckpoint(cp)
	g.clearGate(id)
	g.metrics.RecordDecision("rejected")
	g.hooks.NotifyCheckpoint(webhook.EventCheckpointRejected, cp, approver)
	return cp, nil
}

// Execute applies the mutations behind an approved checkpoint.
func (g *Governor) Execute(ctx context.Context, id model.CheckpointID) (*Result, error) {
	result, err := g.exec.Execute(ctx, id)
	if result == nil {
		return nil, err
	}
	if cp, getErr := g.mgr.Get(id); getErr == nil {
		g.saveCheckpoint(cp)
		switch result.State {
		case model.StateExecuted:
			g.hooks.NotifyCheckpoint(webhook.EventMutationExecuted, cp, "")
		case model.StateRolledBack:
			g.hooks.NotifyCheckpoint(webhook.EventMutationRolledBack, cp, "")
		}
	}
	return result, err
}

// ConsumeUsage records resource usage against the quota. Crossing the
// soft threshold creates a token_threshold checkpoint that gates all
// further admissions until a human decides it; usage that would pass
// the hard limit is refused.
func (g *Governor) ConsumeUsage(amount int64) (*UsageResult, error) {
	res := g.quota.Consume(amount)
	g.metrics.SetQuotaUsed(res.Used)
	if !res.OK {
		return &UsageResult{Used: res.Used, CrossedHard: true},
			errclass.ErrQuotaExceeded.WithMessagef("usage %d + %d exceeds hard limit", res.Used, amount)
	}
	g.saveQuota()

	out := &UsageResult{Used: res.Used, CrossedSoft: res.CrossedSoft}
	if !res.CrossedSoft {
		return out, nil
	}

	if _, err := g.led.Append(model.EventQuotaThresholdCrossed, "", nil, map[string]any{
		"soft_threshold": g.cfg.Quota.SoftThreshold,
	}, res.Used); err != nil {
		g.log.ErrorErr("audit append failed for threshold crossing", err, nil)
	}

	cp, err := g.mgr.CreateThreshold()
	if err != nil {
		return out, err
	}
	g.saveCheckpoint(cp)
	g.metrics.RecordCheckpointCreated(string(cp.Action))
	g.mu.Lock()
	g.gate = cp.ID
	g.mu.Unlock()
	g.hooks.NotifyQuotaThreshold(res.Used, g.cfg.Quota.SoftThreshold, cp.ID)

	out.Checkpoint = cp
	return out, nil
}

// ResetUsage zeroes the quota counter and records who did it. A pending
// threshold checkpoint still gates admissions until it is decided; the
// reset only clears the counter.
func (g *Governor) ResetUsage(by string) (int64, error) {
	prior := g.quota.Used()
	g.quota.Reset()
	g.metrics.SetQuotaUsed(0)
	g.saveQuota()
	if _, err := g.led.Append(model.EventQuotaReset, "", nil, map[string]any{
		"reset_by":    by,
		"prior_usage": prior,
	}, 0); err != nil {
		return prior, err
	}
	return prior, nil
}

// GetStatus returns a checkpoint by id, including terminal ones.
func (g *Governor) GetStatus(id model.CheckpointID) (*model.Checkpoint, error) {
	return g.mgr.Get(id)
}

// List returns all checkpoints ordered by creation time.
func (g *Governor) List() []*model.Checkpoint {
	return g.mgr.List()
}

// History returns audit entries, newest first. Pass limit <= 0 for all.
func (g *Governor) History(limit int) ([]*model.AuditEntry, error) {
	entries, err := g.led.ReadAll()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Quota returns the current quota state.
func (g *Governor) Quota() model.QuotaState {
	return g.quota.Snapshot()
}

// VerifyAudit replays the full ledger and checks the hash chain.
// Returns the number of verified entries.
func (g *Governor) VerifyAudit() (int, error) {
	entries, err := g.led.ReadAll()
	if err != nil {
		return 0, err
	}
	if err := ledger.VerifyChain(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// GC creates and optionally executes a backup prune plan. With DryRun
// the plan is returned without deleting anything.
func (g *Governor) GC(opts GCOptions) (*GCPlan, error) {
	policy := gc.RetentionPolicy{KeepMinBackups: opts.KeepMinBackups, KeepMinAge: opts.KeepMinAge}
	collector := gc.NewCollector(g.backups, g.led, g.checkpointState, gc.Options{
		Dir:    filepath.Join(g.stateDir, "gc"),
		Policy: policy,
		Usage:  g.quota.Used,
		Logger: g.log,
	})

	plan, err := collector.Plan()
	if err != nil {
		return nil, fmt.Errorf("gc plan: %w", err)
	}
	if opts.DryRun {
		return plan, nil
	}
	if _, err := collector.Run(plan.PlanID); err != nil {
		return plan, fmt.Errorf("gc run: %w", err)
	}
	return plan, nil
}

// Root returns the absolute path to the governed root.
func (g *Governor) Root() string {
	return g.root
}

// Close flushes webhooks and releases the ledger and store.
func (g *Governor) Close() error {
	var firstErr error
	if err := g.hooks.Close(); err != nil {
		firstErr = err
	}
	if err := g.led.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (g *Governor) checkpointState(id model.CheckpointID) (model.CheckpointState, bool) {
	cp, err := g.mgr.Get(id)
	if err != nil {
		return "", false
	}
	return cp.State, true
}

func (g *Governor) clearGate(id model.CheckpointID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gate == id {
		g.gate = ""
	}
}

// saveQuota persists the quota counter for session reopen.
func (g *Governor) saveQuota() {
	data, err := json.Marshal(g.quota.Snapshot())
	if err != nil {
		return
	}
	if err := fsutil.AtomicWrite(filepath.Join(g.stateDir, "quota.json"), data, 0644); err != nil {
		g.log.ErrorErr("write quota state", err, nil)
	}
}

// saveCheckpoint persists a checkpoint descriptor. Descriptor writes
// are best-effort; the ledger remains the source of truth and recover
// repairs lagging descriptors at open.
func (g *Governor) saveCheckpoint(cp *model.Checkpoint) {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		g.log.ErrorErr("marshal checkpoint descriptor", err, nil)
		return
	}
	path := filepath.Join(g.stateDir, "checkpoints", cp.ID.String()+".json")
	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		g.log.ErrorErr("write checkpoint descriptor", err, map[string]any{
			"checkpoint_id": cp.ID.String(),
		})
	}
}

func (g *Governor) loadDescriptors() []*model.Checkpoint {
	dir := filepath.Join(g.stateDir, "checkpoints")
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []*model.Checkpoint
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			continue
		}
		var cp model.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			g.log.Warn("skipping unreadable checkpoint descriptor", map[string]any{"file": de.Name()})
			continue
		}
		out = append(out, &cp)
	}
	return out
}
