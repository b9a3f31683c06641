// Package payflow provides a durable invoice-to-pay workflow engine with
// human-in-the-loop review. It drives an invoice through a fixed stage
// graph (intake, understanding, retrieval, two-way PO matching, approval,
// ERP posting, notification) and suspends into a persisted checkpoint
// whenever the match engine cannot clear the invoice on its own.
//
// Payflow is designed as a library, not a service. Import it, configure a
// store, and execute workflows through the engine package:
//
//	exec, err := engine.New(states, checkpoints, invoker,
//	    engine.WithLogger(logger),
//	)
//	res, err := exec.Execute(ctx, payload)
//
// A suspended workflow is resumed by submitting a reviewer decision
// against its checkpoint:
//
//	out, err := exec.Resume(ctx, chkID, checkpoint.DecisionAccept, "reviewer_1", "ok")
//
// # Architecture
//
// Payflow follows a composable store pattern where each subsystem
// (workflow state, checkpoint, review queue) defines its own store
// interface. A single backend implements all of them.
//
// All entity IDs use TypeID, type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package payflow
