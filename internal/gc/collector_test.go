package gc_test

import (
	"testing"
	"time"

	"github.com/mutgate-project/mutgate/internal/backup"
	"github.com/mutgate-project/mutgate/internal/gc"
	"github.com/mutgate-project/mutgate/internal/ledger"
	"github.com/mutgate-project/mutgate/internal/persist"
	"github.com/mutgate-project/mutgate/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	backups *backup.Store
	led     *ledger.MemLedger
	states  map[model.CheckpointID]model.CheckpointState
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backups, err := backup.NewStore(persist.NewMemStore(), t.TempDir())
	require.NoError(t, err)
	return &fixture{
		backups: backups,
		led:     ledger.NewMemLedger(),
		states:  make(map[model.CheckpointID]model.CheckpointState),
	}
}

func (f *fixture) collector(policy gc.RetentionPolicy, dir string) *gc.Collector {
	state := func(id model.CheckpointID) (model.CheckpointState, bool) {
		s, ok := f.states[id]
		return s, ok
	}
	return gc.NewCollector(f.backups, f.led, state, gc.Options{Dir: dir, Policy: policy})
}

func (f *fixture) capture(t *testing.T, checkpointID model.CheckpointID, state model.CheckpointState) *model.Backup {
	t.Helper()
	b, err := f.backups.Capture(checkpointID, "cfg-"+string(checkpointID)+".json")
	require.NoError(t, err)
	f.states[checkpointID] = state
	return b
}

func TestPlan_KeepsNonTerminalCheckpoints(t *testing.T) {
	f := newFixture(t)
	pending := f.capture(t, "cp-pending", model.StatePendingApproval)
	executed := f.capture(t, "cp-executed", model.StateExecuted)

	c := f.collector(gc.RetentionPolicy{}, t.TempDir())
	plan, err := c.Plan()
	require.NoError(t, err)

	assert.Contains(t, plan.Protected, pending.BackupID)
	assert.Contains(t, plan.ToDelete, executed.BackupID)
}

func TestPlan_KeepsUnknownCheckpoints(t *testing.T) {
	f := newFixture(t)
	b, err := f.backups.Capture("cp-unknown", "cfg.json")
	require.NoError(t, err)

	c := f.collector(gc.RetentionPolicy{}, t.TempDir())
	plan, err := c.Plan()
	require.NoError(t, err)

	assert.Contains(t, plan.Protected, b.BackupID)
	assert.Empty(t, plan.ToDelete)
}

func TestPlan_HonorsKeepMinBackups(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.capture(t, model.NewCheckpointID(), model.StateExecuted)
	}

	c := f.collector(gc.RetentionPolicy{KeepMinBackups: 3}, t.TempDir())
	plan, err := c.Plan()
	require.NoError(t, err)

	assert.Len(t, plan.Protected, 3)
	assert.Len(t, plan.ToDelete, 2)
}

func TestPlan_HonorsKeepMinAge(t *testing.T) {
	f := newFixture(t)
	f.capture(t, "cp-1", model.StateExecuted)

	c := f.collector(gc.RetentionPolicy{KeepMinAge: time.Hour}, t.TempDir())
	plan, err := c.Plan()
	require.NoError(t, err)

	assert.Len(t, plan.Protected, 1)
	assert.Empty(t, plan.ToDelete)
}

func TestRun_DeletesPlannedBackups(t *testing.T) {
	f := newFixture(t)
	b := f.capture(t, "cp-1", model.StateRolledBack)

	c := f.collector(gc.RetentionPolicy{}, t.TempDir())
	plan, err := c.Plan()
	require.NoError(t, err)
	require.Contains(t, plan.ToDelete, b.BackupID)

	deleted, err := c.Run(plan.PlanID)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	remaining, err := f.backups.List()
	require.NoError(t, err)
	assert.Empty(t, remaining)

	entries, _ := f.led.ReadAll()
	require.Len(t, entries, 1)
	assert.Equal(t, model.EventBackupPruned, entries[0].EventType)
	assert.EqualValues(t, 1, entries[0].Detail["deleted_count"])
}

func TestRun_AbortsWhenBackupBecameProtected(t *testing.T) {
	f := newFixture(t)
	b := f.capture(t, "cp-1", model.StateExecuted)

	c := f.collector(gc.RetentionPolicy{}, t.TempDir())
	plan, err := c.Plan()
	require.NoError(t, err)
	require.Contains(t, plan.ToDelete, b.BackupID)

	// The checkpoint reopens between plan and run.
	f.states["cp-1"] = model.StateApproved

	_, err = c.Run(plan.PlanID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan mismatch")

	remaining, err := f.backups.List()
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestRun_UnknownPlan(t *testing.T) {
	f := newFixture(t)
	c := f.collector(gc.RetentionPolicy{}, t.TempDir())
	_, err := c.Run("nope")
	assert.Error(t, err)
}
