package orchestration

import (
	"context"
	"fmt"

	"github.com/smith-runtime/smith/contracts"
)

// parallelExecutor implements contracts.ParallelExecutor: for one task it
// marks the task RUNNING and drives the Tool Invoker, which owns rate
// limiting, resource locking, and approval gating (§4.4). Dependency-output
// substitution already happened by the time a node's Inputs reach here — the
// Orchestrator's ContextRouter writes each dependency's output onto its
// dependents' Inputs map as soon as the dependency terminates (§4.6), so
// this layer only needs to pass Inputs through unmodified.
type parallelExecutor struct {
	invoker contracts.ToolInvoker
}

// NewParallelExecutor creates a ParallelExecutor over the given Tool Invoker.
func NewParallelExecutor(invoker contracts.ToolInvoker) contracts.ParallelExecutor {
	return &parallelExecutor{invoker: invoker}
}

// Execute marks taskID RUNNING and invokes its tool with its already-routed
// Inputs. It always returns a terminal ExecutionRecord — a missing task is
// reported as a TaskError record rather than a Go error, since the interface
// carries no error return for the Orchestrator to inspect mid-batch.
func (p *parallelExecutor) Execute(ctx context.Context, run *contracts.Run, taskID contracts.TaskID) contracts.ExecutionRecord {
	task, exists := run.Tasks[taskID]
	if !exists {
		return contracts.ExecutionRecord{
			NodeID:       taskID,
			Status:       contracts.TaskError,
			ErrorMessage: fmt.Sprintf("task %s not found: %v", taskID, contracts.ErrTaskNotFound),
		}
	}

	task.State = contracts.TaskRunning

	return p.invoker.Invoke(ctx, task, task.Inputs)
}
