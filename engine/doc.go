// Package engine executes the invoice processing graph: a fixed
// sequence of stages from INTAKE through COMPLETE, with a durable
// suspend point when the two-way match needs a human verdict.
//
// The engine package exists to break a fundamental import cycle: the
// root payflow package defines Entity and Config (imported by state,
// checkpoint, ability, etc.) and therefore cannot import those packages
// back. Engine sits above all subsystem packages and below the
// application layer.
//
// # Building an Engine
//
//	st := memory.New()
//	inv := ability.NewInvoker(
//	    ability.NewLocal(cfg),
//	    ability.NewSimulator(cfg),
//	)
//
//	eng, err := engine.New(st, st, inv,
//	    engine.WithLogger(logger),
//	    engine.WithConfig(cfg),
//	)
//
// # Executing a Workflow
//
//	res, err := eng.Execute(ctx, payload)
//	if res.Suspended {
//	    // res.Checkpoint holds the review context; execution picks
//	    // up again through Resume once a reviewer decides.
//	}
//
// # Resuming After Review
//
//	res, err := eng.Resume(ctx, checkpointID, checkpoint.DecisionAccept,
//	    "reviewer-42", "amounts verified against contract")
//
// Resume applies the decision with compare-and-set semantics, restores
// the workflow from the checkpoint's state snapshot, and continues
// execution at the stage the decision maps to. ACCEPT re-enters at
// RECONCILE; every other verdict closes the workflow out through
// COMPLETE as a manual handoff.
//
// # Options
//
//   - [WithLogger] — set the structured logger
//   - [WithConfig] — override the business thresholds
//   - [WithSelector] — supply a custom tool selector
//   - [WithHooks] — attach an extension registry for lifecycle events
package engine
