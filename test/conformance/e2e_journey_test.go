//go:build conformance

package conformance

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/mutgate-project/mutgate/pkg/errclass"
	"github.com/mutgate-project/mutgate/pkg/model"
)

// E2E Scenario 1: Complete Governance Journey
// User Story: An agent proposes mutations, an operator reviews them,
// approved sets execute, and the ledger records every step.

// TestE2E_Journey_GovernedMutationWorkflow walks the full lifecycle of
// one governed resource over several review rounds.
func TestE2E_Journey_GovernedMutationWorkflow(t *testing.T) {
	root := initRoot(t, 0, 0)
	gov := open(t, root)
	ctx := context.Background()

	// ===== Round 1: seed the resource =====
	t.Run("round1_create", func(t *testing.T) {
		seedResource(t, gov, "config/app.yaml", "replicas: 1\n")
		if got := readResource(t, root, "config/app.yaml"); got != "replicas: 1\n" {
			t.Errorf("seeded content = %q", got)
		}
	})

	// ===== Round 2: reviewed update =====
	var updateID model.CheckpointID
	t.Run("round2_request_and_approve", func(t *testing.T) {
		cp, err := gov.RequestMutation(request("config/app.yaml", model.OpUpdate, "replicas: 3\n"), true)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if cp.State != model.StatePendingApproval {
			t.Fatalf("state = %s, want pending_approval", cp.State)
		}
		updateID = cp.ID

		// A second request for the held resource must be refused.
		_, err = gov.RequestMutation(request("config/app.yaml", model.OpUpdate, "replicas: 9\n"), true)
		if !errors.Is(err, errclass.ErrConflictingResource) {
			t.Errorf("concurrent request error = %v, want E_CONFLICTING_RESOURCE", err)
		}

		approved, err := gov.Approve(updateID, "operator-1")
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
		if approved.ApprovedBy != "operator-1" {
			t.Errorf("approved_by = %q", approved.ApprovedBy)
		}
	})

	t.Run("round2_execute", func(t *testing.T) {
		res, err := gov.Execute(ctx, updateID)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if res.State != model.StateExecuted {
			t.Fatalf("result state = %s", res.State)
		}
		if got := readResource(t, root, "config/app.yaml"); got != "replicas: 3\n" {
			t.Errorf("content after execute = %q", got)
		}

		// Executing again returns the memoized outcome, not a second run.
		again, err := gov.Execute(ctx, updateID)
		if err != nil {
			t.Fatalf("re-execute: %v", err)
		}
		if again.State != model.StateExecuted {
			t.Errorf("re-execute state = %s", again.State)
		}
	})

	// ===== Round 3: the ledger tells the whole story =====
	t.Run("round3_audit", func(t *testing.T) {
		count, err := gov.VerifyAudit()
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		// create, execute, create, approve, execute.
		if count != 5 {
			t.Errorf("ledger entries = %d, want 5", count)
		}

		entries, err := gov.History(0)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if entries[0].EventType != model.EventMutationExecuted {
			t.Errorf("newest event = %s, want mutation_executed", entries[0].EventType)
		}
	})
}

// E2E Scenario 2: Rejection
// User Story: A reviewer declines a proposed mutation; the resource is
// untouched and immediately available for a corrected proposal.
func TestE2E_Rejection_LeavesResourceUntouched(t *testing.T) {
	root := initRoot(t, 0, 0)
	gov := open(t, root)

	seedResource(t, gov, "policy.json", `{"allow": []}`)

	cp, err := gov.RequestMutation(request("policy.json", model.OpUpdate, `{"allow": ["*"]}`), true)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	rejected, err := gov.Reject(cp.ID, "operator-1", "wildcard allow is forbidden")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.State != model.StateRejected {
		t.Fatalf("state = %s", rejected.State)
	}

	if got := readResource(t, root, "policy.json"); got != `{"allow": []}` {
		t.Errorf("resource changed by rejected checkpoint: %q", got)
	}

	// Rejected checkpoints cannot execute.
	if _, err := gov.Execute(context.Background(), cp.ID); err == nil {
		t.Error("execute of rejected checkpoint succeeded")
	}

	// The resource is released for the corrected proposal.
	if _, err := gov.RequestMutation(request("policy.json", model.OpUpdate, `{"allow": ["ci"]}`), true); err != nil {
		t.Errorf("resource still held after rejection: %v", err)
	}
}

// E2E Scenario 3: Quota Admission Control
// User Story: Usage crosses the soft threshold, new work is gated
// behind an operator decision, and the hard limit is never breached.
func TestE2E_QuotaThreshold_GatesAdmission(t *testing.T) {
	root := initRoot(t, 50, 100)
	gov := open(t, root)

	usage, err := gov.ConsumeUsage(60)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !usage.CrossedSoft || usage.Checkpoint == nil {
		t.Fatalf("soft threshold crossing not surfaced: %+v", usage)
	}

	_, err = gov.RequestMutation(request("notes.md", model.OpCreate, "hello"), true)
	if !errors.Is(err, errclass.ErrApprovalRequired) {
		t.Fatalf("gated request error = %v, want E_APPROVAL_REQUIRED", err)
	}

	if _, err := gov.Approve(usage.Checkpoint.ID, "operator-1"); err != nil {
		t.Fatalf("approve threshold checkpoint: %v", err)
	}
	if _, err := gov.RequestMutation(request("notes.md", model.OpCreate, "hello"), true); err != nil {
		t.Fatalf("request after threshold approval: %v", err)
	}

	// The hard limit refuses further consumption and leaves the counter alone.
	if _, err := gov.ConsumeUsage(50); !errors.Is(err, errclass.ErrQuotaExceeded) {
		t.Fatalf("over-limit consume error = %v, want E_QUOTA_EXCEEDED", err)
	}
	if q := gov.Quota(); q.Used != 60 {
		t.Errorf("used = %d after refused consume, want 60", q.Used)
	}
}

// E2E Scenario 4: Failed Execution Rolls Back
// User Story: One mutation in an approved set fails mid-apply; every
// resource already touched is restored from its backup.
func TestE2E_FailedExecution_RollsBack(t *testing.T) {
	root := initRoot(t, 0, 0)
	gov := open(t, root)

	seedResource(t, gov, "app.txt", "v1")
	// A plain file at "blocked" makes any create beneath it fail at
	// apply time, after earlier requests in the set have landed.
	seedResource(t, gov, "blocked", "occupied")

	cp, err := gov.RequestMutations([]*model.MutationRequest{
		request("app.txt", model.OpUpdate, "v2"),
		request("blocked/child", model.OpCreate, "never lands"),
	}, true)
	if err != nil {
		t.Fatalf("request set: %v", err)
	}
	if _, err := gov.Approve(cp.ID, "operator-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	res, err := gov.Execute(context.Background(), cp.ID)
	if err != nil {
		t.Fatalf("rollback was not clean: %v", err)
	}
	if res.State != model.StateRolledBack {
		t.Fatalf("result state = %s, want rolled_back", res.State)
	}
	if res.Cause == "" {
		t.Error("rollback cause not surfaced")
	}
	if len(res.Restored) != 1 || res.Restored[0] != "app.txt" {
		t.Errorf("restored = %v, want [app.txt]", res.Restored)
	}

	if got := readResource(t, root, "app.txt"); got != "v1" {
		t.Errorf("app.txt = %q after rollback, want v1", got)
	}
	if _, err := os.Stat(resourcePath(root, "blocked/child")); !os.IsNotExist(err) {
		t.Errorf("blocked/child present after rollback: %v", err)
	}

	// The rollback itself is on the record.
	entries, err := gov.History(1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if entries[0].EventType != model.EventRollbackPerformed {
		t.Errorf("newest event = %s, want rollback_performed", entries[0].EventType)
	}
}
