// Package checkpoint owns the approval state machine. Every mutation
// passes through exactly one checkpoint; the manager is the only place
// checkpoint state changes, and every change lands in the audit ledger.
package checkpoint

import (
	"sort"
	"sync"
	"time"

	"github.com/mutgate-project/mutgate/internal/ledger"
	"github.com/mutgate-project/mutgate/internal/quota"
	"github.com/mutgate-project/mutgate/pkg/errclass"
	"github.com/mutgate-project/mutgate/pkg/logging"
	"github.com/mutgate-project/mutgate/pkg/model"
	"github.com/mutgate-project/mutgate/pkg/pathutil"
)

// Manager creates checkpoints and records approvals and rejections.
// Checkpoints are never deleted; terminal ones are retained for audit.
type Manager struct {
	mu          sync.Mutex
	checkpoints map[model.CheckpointID]*model.Checkpoint
	// active maps a resource id to the non-terminal checkpoint that
	// holds it, enforcing disjoint in-flight resource sets.
	active map[string]model.CheckpointID
	ledger ledger.Ledger
	quota  *quota.Tracker
	log    *logging.Logger
}

// NewManager creates a checkpoint manager.
func NewManager(l ledger.Ledger, q *quota.Tracker, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewLogger(logging.LevelInfo)
	}
	return &Manager{
		checkpoints: make(map[model.CheckpointID]*model.Checkpoint),
		active:      make(map[string]model.CheckpointID),
		ledger:      l,
		quota:       q,
		log:         log.WithFields(map[string]any{"component": "checkpoint"}),
	}
}

// Create admits a mutation request and returns its checkpoint. Fails
// fast with no checkpoint and no audit entry when the quota hard limit
// is already exhausted, and with ErrConflictingResource when any
// affected resource is held by a non-terminal checkpoint.
func (m *Manager) Create(req *model.MutationRequest, requiresApproval bool) (*model.Checkpoint, error) {
	return m.CreateMulti([]*model.MutationRequest{req}, requiresApproval)
}

// CreateMulti admits a set of mutation requests under a single
// checkpoint. The checkpoint holds every affected resource and the
// whole set executes or rolls back together. Resources within the set
// must be distinct.
func (m *Manager) CreateMulti(reqs []*model.MutationRequest, requiresApproval bool) (*model.Checkpoint, error) {
	if len(reqs) == 0 {
		return nil, errclass.ErrNameInvalid.WithMessage("empty mutation request set")
	}
	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if err := validateRequest(req); err != nil {
			return nil, err
		}
		if seen[req.ResourceID] {
			return nil, errclass.ErrConflictingResource.WithMessagef(
				"resource %s requested twice in one set", req.ResourceID)
		}
		seen[req.ResourceID] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quota.Exhausted() {
		return nil, errclass.ErrQuotaExceeded.WithMessagef("usage %d at hard limit", m.quota.Used())
	}
	for _, req := range reqs {
		if holder, ok := m.active[req.ResourceID]; ok {
			return nil, errclass.ErrConflictingResource.WithMessagef(
				"resource %s held by checkpoint %s", req.ResourceID, holder)
		}
	}

	state := model.StateApproved
	if requiresApproval {
		state = model.StatePendingApproval
	}

	resources := make([]string, 0, len(reqs))
	copies := make([]*model.MutationRequest, 0, len(reqs))
	ops := make([]string, 0, len(reqs))
	for _, req := range reqs {
		resources = append(resources, req.ResourceID)
		cp := *req
		copies = append(copies, &cp)
		ops = append(ops, string(req.Op))
	}

	cp := &model.Checkpoint{
		ID:                model.NewCheckpointID(),
		Action:            model.ActionPreMutation,
		CreatedAt:         time.Now().UTC(),
		AffectedResources: resources,
		RequiresApproval:  requiresApproval,
		State:             state,
		Requests:          copies,
	}

	if err := m.appendCreated(cp, map[string]any{
		"requested_by": reqs[0].RequestedBy,
		"operations":   ops,
		"description":  reqs[0].Description,
	}); err != nil {
		return nil, err
	}

	m.checkpoints[cp.ID] = cp
	for _, res := range resources {
		m.active[res] = cp.ID
	}

	m.log.Info("checkpoint created", map[string]any{
		"checkpoint_id": cp.ID.String(),
		"state":         string(cp.State),
		"resources":     resources,
	})
	return cp.Clone(), nil
}

// CreateThreshold creates a token_threshold checkpoint that must be
// approved before further mutation requests are admitted.
func (m *Manager) CreateThreshold() (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := &model.Checkpoint{
		ID:               model.NewCheckpointID(),
		Action:           model.ActionTokenThreshold,
		CreatedAt:        time.Now().UTC(),
		RequiresApproval: true,
		State:            model.StatePendingApproval,
	}

	if err := m.appendCreated(cp, nil); err != nil {
		return nil, err
	}

	m.checkpoints[cp.ID] = cp
	m.log.Warn("usage threshold checkpoint created", map[string]any{
		"checkpoint_id": cp.ID.String(),
	})
	return cp.Clone(), nil
}

// CreateManual creates a manually requested checkpoint gating no
// specific resource.
func (m *Manager) CreateManual(requestedBy string) (*model.Checkpoint, error) {
	if err := pathutil.ValidatePrincipal(requestedBy); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := &model.Checkpoint{
		ID:               model.NewCheckpointID(),
		Action:           model.ActionManual,
		CreatedAt:        time.Now().UTC(),
		RequiresApproval: true,
		State:            model.StatePendingApproval,
	}

	if err := m.appendCreated(cp, map[string]any{"requested_by": requestedBy}); err != nil {
		return nil, err
	}

	m.checkpoints[cp.ID] = cp
	return cp.Clone(), nil
}

// appendCreated writes the CheckpointCreated entry. Called with mu held;
// the checkpoint is committed to the maps only after the entry is durable,
// so a ledger failure leaves no partial state.
func (m *Manager) appendCreated(cp *model.Checkpoint, extra map[string]any) error {
	detail := map[string]any{
		"action":            string(cp.Action),
		"state":             string(cp.State),
		"requires_approval": cp.RequiresApproval,
	}
	for k, v := range extra {
		detail[k] = v
	}
	_, err := m.ledger.Append(model.EventCheckpointCreated, cp.ID, cp.AffectedResources, detail, m.quota.Used())
	return err
}

// Seed loads previously persisted checkpoints into the manager,
// rebuilding the active resource index for non-terminal ones. Called
// once at session open, before any other operation.
func (m *Manager) Seed(cps []*model.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cp := range cps {
		clone := cp.Clone()
		m.checkpoints[clone.ID] = clone
		if clone.State.Terminal() {
			continue
		}
		for _, res := range clone.AffectedResources {
			if holder, ok := m.active[res]; ok && holder != clone.ID {
				return errclass.ErrConflictingResource.WithMessagef(
					"resource %s held by both %s and %s", res, holder, clone.ID)
			}
			m.active[res] = clone.ID
		}
	}
	return nil
}

// Approve transitions a pending checkpoint to approved.
func (m *Manager) Approve(id model.CheckpointID, approver string) (*model.Checkpoint, error) {
	if err := pathutil.ValidatePrincipal(approver); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[id]
	if !ok {
		return nil, errclass.ErrNotFound.WithMessagef("checkpoint %s", id)
	}
	if cp.State != model.StatePendingApproval {
		return nil, errclass.ErrNotPending.WithMessagef("checkpoint %s is %s", id, cp.State)
	}

	_, err := m.ledger.Append(model.EventCheckpointApproved, cp.ID, cp.AffectedResources,
		map[string]any{"approved_by": approver}, m.quota.Used())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cp.State = model.StateApproved
	cp.ApprovedBy = approver
	cp.ApprovedAt = &now

	m.log.Info("checkpoint approved", map[string]any{
		"checkpoint_id": cp.ID.String(),
		"approved_by":   approver,
	})
	return cp.Clone(), nil
}

// Reject transitions a pending checkpoint to rejected and releases its
// resources. No backup or mutation ever occurs for a rejected checkpoint.
func (m *Manager) Reject(id model.CheckpointID, approver, reason string) (*model.Checkpoint, error) {
	if err := pathutil.ValidatePrincipal(approver); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[id]
	if !ok {
		return nil, errclass.ErrNotFound.WithMessagef("checkpoint %s", id)
	}
	if cp.State != model.StatePendingApproval {
		return nil, errclass.ErrNotPending.WithMessagef("checkpoint %s is %s", id, cp.State)
	}

	_, err := m.ledger.Append(model.EventCheckpointRejected, cp.ID, cp.AffectedResources,
		map[string]any{"rejected_by": approver, "reason": reason}, m.quota.Used())
	if err != nil {
		return nil, err
	}

	cp.State = model.StateRejected
	cp.RejectedReason = reason
	m.release(cp)

	m.log.Info("checkpoint rejected", map[string]any{
		"checkpoint_id": cp.ID.String(),
		"rejected_by":   approver,
		"reason":        reason,
	})
	return cp.Clone(), nil
}

// Get returns a checkpoint by id, including terminal ones.
func (m *Manager) Get(id model.CheckpointID) (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[id]
	if !ok {
		return nil, errclass.ErrNotFound.WithMessagef("checkpoint %s", id)
	}
	return cp.Clone(), nil
}

// List returns all checkpoints ordered by creation time.
func (m *Manager) List() []*model.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.Checkpoint, 0, len(m.checkpoints))
	for _, cp := range m.checkpoints {
		out = append(out, cp.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Transition moves an approved checkpoint to a terminal execution state.
// Called only by the mutation executor, which appends the matching audit
// entry itself.
func (m *Manager) Transition(id model.CheckpointID, to model.CheckpointState) (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[id]
	if !ok {
		return nil, errclass.ErrNotFound.WithMessagef("checkpoint %s", id)
	}
	if !model.ValidTransition(cp.State, to) {
		return nil, errclass.ErrInvalidTransition.WithMessagef("%s -> %s for checkpoint %s", cp.State, to, id)
	}

	cp.State = to
	if to.Terminal() {
		m.release(cp)
	}
	return cp.Clone(), nil
}

// release frees the resource index entries held by cp. Called with mu held.
func (m *Manager) release(cp *model.Checkpoint) {
	for _, res := range cp.AffectedResources {
		if m.active[res] == cp.ID {
			delete(m.active, res)
		}
	}
}

func validateRequest(req *model.MutationRequest) error {
	if req == nil {
		return errclass.ErrNameInvalid.WithMessage("nil mutation request")
	}
	if err := pathutil.ValidateResourceID(req.ResourceID); err != nil {
		return err
	}
	if err := pathutil.ValidatePrincipal(req.RequestedBy); err != nil {
		return err
	}
	if !req.Op.Valid() {
		return errclass.ErrNameInvalid.WithMessagef("unknown operation %q", req.Op)
	}
	if req.Op == model.OpDelete && len(req.ProposedContent) > 0 {
		return errclass.ErrNameInvalid.WithMessage("delete must not carry proposed content")
	}
	return nil
}
