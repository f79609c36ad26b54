// Package quota implements the resource-usage tracker that feeds
// admission control: a monotonic counter with a soft threshold that
// forces a checkpoint and a hard limit that refuses new work.
package quota

import (
	"sync"

	"github.com/mutgate-project/mutgate/pkg/model"
)

// Result is the outcome of a Consume call.
type Result struct {
	OK          bool  `json:"ok"`
	Used        int64 `json:"used"`
	CrossedSoft bool  `json:"crossed_soft"`
	CrossedHard bool  `json:"crossed_hard"`
}

// Tracker is a linearizable usage counter. All state changes go through
// Consume under a single mutex so concurrent callers never lose updates.
type Tracker struct {
	mu            sync.Mutex
	used          int64
	softThreshold int64
	hardLimit     int64
	softSignaled  bool
}

// NewTracker creates a tracker with the given thresholds.
func NewTracker(softThreshold, hardLimit int64) *Tracker {
	return &Tracker{
		softThreshold: softThreshold,
		hardLimit:     hardLimit,
	}
}

// Consume adds amount to the counter. If the addition would exceed the
// hard limit the counter is left unchanged and OK is false. CrossedSoft
// is reported exactly once per arming, on the call that first reaches
// the soft threshold.
func (t *Tracker) Consume(amount int64) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	if amount < 0 {
		amount = 0
	}

	if t.used+amount > t.hardLimit {
		return Result{OK: false, Used: t.used, CrossedHard: true}
	}

	t.used += amount

	crossedSoft := false
	if !t.softSignaled && t.used >= t.softThreshold {
		t.softSignaled = true
		crossedSoft = true
	}

	return Result{OK: true, Used: t.used, CrossedSoft: crossedSoft}
}

// Used returns the current counter value.
func (t *Tracker) Used() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

// Exhausted reports whether the counter has reached the hard limit.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used >= t.hardLimit
}

// Snapshot returns a point-in-time quota view for audit entries.
func (t *Tracker) Snapshot() model.QuotaState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.QuotaState{
		Used:          t.used,
		SoftThreshold: t.softThreshold,
		HardLimit:     t.hardLimit,
	}
}

// Restore sets the counter to a previously recorded value when a
// session is reopened. The soft-threshold signal is considered already
// fired when the restored value is at or past the threshold.
func (t *Tracker) Restore(used int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if used < 0 {
		used = 0
	}
	if used > t.hardLimit {
		used = t.hardLimit
	}
	t.used = used
	t.softSignaled = used >= t.softThreshold
}

// Reset clears the counter and re-arms the soft-threshold signal. Only
// called at controlled session boundaries, never mid-mutation.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.used = 0
	t.softSignaled = false
}
