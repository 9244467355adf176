package orchestration

import (
	"fmt"
	"sort"

	"github.com/smith-runtime/smith/contracts"
)

// scheduler implements contracts.Scheduler using DAG-based task scheduling.
// It determines which tasks are ready to execute based on dependency
// completion and breaks ties by TaskID for determinism.
//
// Thread-safety: the scheduler assumes the caller holds appropriate locks.
// All operations on Run and DAG must be externally synchronized — the
// Orchestrator is the single writer.
type scheduler struct{}

// NewScheduler creates a new Scheduler.
func NewScheduler() contracts.Scheduler {
	return &scheduler{}
}

// NextReady returns task IDs that are ready to execute (all deps terminal),
// sorted for deterministic selection: numerically by node id when every id
// parses as an integer (the common case, since ids are dense non-negative
// integers per the data model), falling back to lexicographic order.
func (s *scheduler) NextReady(run *contracts.Run) ([]contracts.TaskID, error) {
	if run == nil {
		return nil, contracts.ErrInvalidInput
	}
	if run.State != contracts.RunRunning {
		return nil, fmt.Errorf("run %s is not running (state: %s): %w", run.ID, run.State, contracts.ErrRunCompleted)
	}
	if run.DAG == nil {
		return nil, fmt.Errorf("run %s has no DAG: %w", run.ID, contracts.ErrDAGInvalid)
	}
	if len(run.Tasks) == 0 {
		return []contracts.TaskID{}, nil
	}
	if run.DAG.Nodes == nil {
		return nil, fmt.Errorf("run %s has nil DAG nodes: %w", run.ID, contracts.ErrDAGInvalid)
	}

	var ready []contracts.TaskID
	for taskID, node := range run.DAG.Nodes {
		if node.Pending != 0 {
			continue
		}
		task, exists := run.Tasks[taskID]
		if !exists {
			continue
		}
		if task.State == contracts.TaskPending || task.State == contracts.TaskReady {
			ready = append(ready, taskID)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		return lessTaskID(ready[i], ready[j])
	})
	return ready, nil
}

// MarkTerminal records a task's terminal ExecutionRecord and decrements the
// pending-dependency count of every downstream node — unconditionally,
// whether the task succeeded or failed. Halt-vs-continue policy and SKIPPED
// propagation are the Orchestrator's responsibility: MarkTerminal only
// performs the bookkeeping that must happen under the single-writer lock.
func (s *scheduler) MarkTerminal(run *contracts.Run, taskID contracts.TaskID, rec contracts.ExecutionRecord) error {
	if run == nil {
		return contracts.ErrInvalidInput
	}
	if run.DAG == nil {
		return fmt.Errorf("run %s has no DAG: %w", run.ID, contracts.ErrDAGInvalid)
	}
	if run.Tasks == nil {
		return fmt.Errorf("run %s has no tasks: %w", run.ID, contracts.ErrTaskNotFound)
	}

	task, exists := run.Tasks[taskID]
	if !exists {
		return fmt.Errorf("task %s not found in run %s: %w", taskID, run.ID, contracts.ErrTaskNotFound)
	}
	if task.State.IsTerminal() {
		return fmt.Errorf("task %s already terminal (state %s): %w", taskID, task.State, contracts.ErrTaskNotReady)
	}

	task.State = rec.Status
	task.Attempts = rec.Attempts
	task.StartTS = rec.StartTS
	task.EndTS = rec.EndTS
	switch rec.Status {
	case contracts.TaskSuccess:
		task.Outputs = &contracts.TaskResult{Output: rec.Output}
	case contracts.TaskError, contracts.TaskTimeout:
		task.Error = &contracts.TaskFailure{Code: rec.Status.String(), Message: rec.ErrorMessage}
	}

	run.Trace = append(run.Trace, rec)

	if node, ok := run.DAG.Nodes[taskID]; ok {
		for _, nextID := range node.Next {
			if nextNode, ok := run.DAG.Nodes[nextID]; ok && nextNode.Pending > 0 {
				nextNode.Pending--
			}
		}
	}

	return nil
}

// lessTaskID orders task ids numerically when both parse as integers
// (the standard dense-from-zero node id), falling back to a lexicographic
// comparison otherwise.
func lessTaskID(a, b contracts.TaskID) bool {
	ai, aerr := parseTaskID(a)
	bi, berr := parseTaskID(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return string(a) < string(b)
}
