package contracts

import "context"

// Orchestrator executes a validated DAG: scheduling, dispatch, halt/continue
// propagation, and trace assembly.
type Orchestrator interface {
	// Run drives run.DAG to completion. It sets run.State to exactly one of
	// RunCompleted, RunHalted, RunBlocked, or RunAborted before returning.
	//
	// Returns nil on RunCompleted or RunHalted (both produce a full or
	// partial trace deliberately, per the error handling design's
	// user-visible behavior). Returns an error for RunBlocked (wrapping
	// ErrBlocked) and for context cancellation (RunAborted).
	Run(ctx context.Context, run *Run) error
}
