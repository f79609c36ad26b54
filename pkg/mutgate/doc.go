// Package mutgate provides a high-level library API for the mutation
// governance core.
//
// This package is the primary integration point for agent runtimes. It
// wraps the internal checkpoint, ledger, backup and executor packages
// into a clean, stable public API.
//
// # Concurrency Safety
//
//   - A single Governor is safe for concurrent use: admission, approval
//     and execution are serialized internally.
//
//   - Multiple Governor instances for DIFFERENT roots are fully
//     independent and safe to use concurrently.
//
//   - Multiple Governor instances for the SAME root must not be open at
//     the same time. Ledger appends take a file lock, so records stay
//     intact, but the in-memory checkpoint and quota state would
//     diverge between instances.
//
// # Recommended Usage Pattern
//
//	gov, err := mutgate.OpenOrInit(root, mutgate.Options{})
//	defer gov.Close()
//
//	cp, err := gov.RequestMutation(&model.MutationRequest{
//	    ResourceID:      "config/app.yaml",
//	    Op:              model.OpUpdate,
//	    ProposedContent: proposed,
//	    RequestedBy:     "agent-1",
//	}, true)
//	// ... a human decides ...
//	gov.Approve(cp.ID, "reviewer")
//	result, err := gov.Execute(ctx, cp.ID)
package mutgate
