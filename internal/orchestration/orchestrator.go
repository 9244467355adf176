package orchestration

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/audit"
	"github.com/smith-runtime/smith/internal/telemetry"
)

// orchestrator implements contracts.Orchestrator: round-based dispatch over
// the ready frontier, bounded to Policy.MaxConcurrentTools concurrent tool
// calls via golang.org/x/sync/errgroup, with halt/continue propagation and
// deadlock detection between rounds.
//
// Each round: ask the Scheduler for the ready frontier, stage it through the
// ready-queue, dispatch every queued node concurrently (bounded), commit
// each terminal ExecutionRecord through the Scheduler (single-writer,
// sequential, smallest-id-first for determinism), route successful outputs
// to dependents, and — on halt policy — mark all remaining PENDING/READY
// nodes SKIPPED and end the run as halted.
type orchestrator struct {
	scheduler   contracts.Scheduler
	depResolver contracts.DependencyResolver
	executor    contracts.ParallelExecutor
	router      contracts.ContextRouter
	queue       contracts.QueueManager

	// onProgress is called after each round commits, for observability.
	onProgress func(*contracts.Run)

	events telemetry.Emitter
	audit  *audit.Trail
}

// Deps bundles everything the Orchestrator needs to drive a run.
type Deps struct {
	Scheduler   contracts.Scheduler
	DepResolver contracts.DependencyResolver
	Executor    contracts.ParallelExecutor
	Router      contracts.ContextRouter
	// Queue stages each round's ready frontier before dispatch. Defaults to
	// a fresh in-memory QueueManager.
	Queue      contracts.QueueManager
	OnProgress func(*contracts.Run)
	Events     telemetry.Emitter
	Audit      *audit.Trail
}

// NewOrchestrator creates a new Orchestrator with the given dependencies.
func NewOrchestrator(deps Deps) contracts.Orchestrator {
	events := deps.Events
	if events == nil {
		events = telemetry.Discard
	}
	trail := deps.Audit
	if trail == nil {
		trail = audit.New(nil)
	}
	queue := deps.Queue
	if queue == nil {
		queue = NewQueueManager()
	}
	return &orchestrator{
		scheduler:   deps.Scheduler,
		depResolver: deps.DepResolver,
		executor:    deps.Executor,
		router:      deps.Router,
		queue:       queue,
		onProgress:  deps.OnProgress,
		events:      events,
		audit:       trail,
	}
}

// Run drives run.DAG to completion. See contracts.Orchestrator for the
// terminal-state and return-value contract.
func (o *orchestrator) Run(ctx context.Context, run *contracts.Run) error {
	if run == nil || run.DAG == nil {
		return contracts.ErrInvalidInput
	}
	if err := o.depResolver.Validate(run.DAG, nil); err != nil {
		run.State = contracts.RunAborted
		return err
	}
	run.State = contracts.RunRunning
	o.audit.Record("run_started", "run_id", run.ID, "node_count", len(run.Tasks))

	for {
		select {
		case <-ctx.Done():
			run.State = contracts.RunAborted
			o.audit.Record("run_aborted", "run_id", run.ID, "reason", ctx.Err())
			return ctx.Err()
		default:
		}

		ready, err := o.scheduler.NextReady(run)
		if err != nil {
			run.State = contracts.RunAborted
			return err
		}

		if len(ready) == 0 {
			return o.finish(run)
		}

		queued := o.stage(ready)

		records := o.dispatch(ctx, run, queued)

		halted, err := o.commit(run, queued, records)
		if err != nil {
			run.State = contracts.RunAborted
			o.audit.Record("run_aborted", "run_id", run.ID, "reason", err)
			return err
		}

		if o.onProgress != nil {
			o.onProgress(run)
		}

		if halted {
			o.skipRemaining(run)
			run.State = contracts.RunHalted
			o.audit.Record("run_halted", "run_id", run.ID)
			return nil
		}
	}
}

// stage drains the Scheduler's already-id-sorted ready frontier through the
// ready-queue (spec: "the Orchestrator maintains a ready-queue") before
// dispatch, so the queue is the actual admission path a round's tasks pass
// through rather than a bystander structure.
func (o *orchestrator) stage(ready []contracts.TaskID) []contracts.TaskID {
	for _, taskID := range ready {
		o.queue.Enqueue(taskID)
	}
	queued := make([]contracts.TaskID, 0, len(ready))
	for {
		taskID, ok := o.queue.Dequeue()
		if !ok {
			break
		}
		queued = append(queued, taskID)
	}
	return queued
}

// dispatch executes every ready task concurrently, bounded by
// Policy.MaxConcurrentTools, and returns one ExecutionRecord per task in the
// same order as ready.
func (o *orchestrator) dispatch(ctx context.Context, run *contracts.Run, ready []contracts.TaskID) []contracts.ExecutionRecord {
	records := make([]contracts.ExecutionRecord, len(ready))

	g, gctx := errgroup.WithContext(ctx)
	if limit := run.Policy.MaxConcurrentTools; limit > 0 {
		g.SetLimit(limit)
	}

	for i, taskID := range ready {
		i, taskID := i, taskID
		task := run.Tasks[taskID]
		if task != nil {
			o.events.Emit(telemetry.ToolStart(string(taskID), string(task.Tool)))
		}
		g.Go(func() error {
			records[i] = o.executor.Execute(gctx, run, taskID)
			return nil
		})
	}
	_ = g.Wait()

	return records
}

// commit applies every dispatched round's records sequentially in
// smallest-id-first order — the append-only Trace stays deterministic
// regardless of goroutine completion order. It reports whether a halt
// policy was triggered by any non-success record.
func (o *orchestrator) commit(run *contracts.Run, ready []contracts.TaskID, records []contracts.ExecutionRecord) (halted bool, err error) {
	byID := make(map[contracts.TaskID]contracts.ExecutionRecord, len(records))
	for i, taskID := range ready {
		byID[taskID] = records[i]
	}

	ordered := append([]contracts.TaskID(nil), ready...)
	sortTaskIDs(ordered)

	for _, taskID := range ordered {
		rec := byID[taskID]
		task := run.Tasks[taskID]

		if commitErr := o.scheduler.MarkTerminal(run, taskID, rec); commitErr != nil {
			return false, fmt.Errorf("committing task %s: %w", taskID, commitErr)
		}

		o.events.Emit(telemetry.ToolComplete(string(taskID), rec.Status.String(), recordDuration(rec)))
		o.audit.Record("task_committed", "task_id", taskID, "tool", task.Tool, "status", rec.Status, "attempts", task.Attempts)

		if rec.Status == contracts.TaskSuccess {
			if routeErr := o.routeToDependents(run, taskID, &contracts.TaskResult{Output: rec.Output}); routeErr != nil {
				return false, fmt.Errorf("routing task %s output: %w", taskID, routeErr)
			}
			continue
		}

		if rec.Status == contracts.TaskError || rec.Status == contracts.TaskTimeout {
			if routeErr := o.routeToDependents(run, taskID, nil); routeErr != nil {
				return false, fmt.Errorf("routing task %s null output: %w", taskID, routeErr)
			}
			if task.OnFail == contracts.OnFailHalt {
				halted = true
			}
		}
	}

	return halted, nil
}

func (o *orchestrator) routeToDependents(run *contracts.Run, taskID contracts.TaskID, output *contracts.TaskResult) error {
	node, ok := run.DAG.Nodes[taskID]
	if !ok {
		return fmt.Errorf("DAG node for task %s not found: %w", taskID, contracts.ErrDAGInvalid)
	}
	for _, depID := range node.Next {
		if err := o.router.Route(run, taskID, depID, output); err != nil {
			return err
		}
	}
	return nil
}

// skipRemaining marks every non-terminal task SKIPPED once a halt has been
// triggered, so the run's final Trace accounts for every node in the DAG.
func (o *orchestrator) skipRemaining(run *contracts.Run) {
	for taskID, task := range run.Tasks {
		if task.State.IsTerminal() {
			continue
		}
		rec := contracts.ExecutionRecord{NodeID: taskID, Status: contracts.TaskSkipped}
		_ = o.scheduler.MarkTerminal(run, taskID, rec)
	}
}

// finish is reached when NextReady returns no ready nodes: either every task
// is terminal (success) or the run is deadlocked (pending nodes remain with
// no path to readiness — a condition the Planner's acyclicity check should
// already have prevented, but the Orchestrator still detects it defensively).
func (o *orchestrator) finish(run *contracts.Run) error {
	var pending int
	for _, task := range run.Tasks {
		if !task.State.IsTerminal() {
			pending++
		}
	}

	if pending == 0 {
		run.State = contracts.RunCompleted
		if final, ok := run.Tasks[run.DAG.FinalOutputNode]; ok && final.Outputs != nil {
			run.FinalOutput = final.Outputs.Output
		}
		o.events.Emit(telemetry.FinalAnswer(run.FinalOutput))
		o.audit.Record("run_completed", "run_id", run.ID)
		return nil
	}

	run.State = contracts.RunBlocked
	o.events.Emit(telemetry.Error("run blocked", map[string]any{"run_id": string(run.ID), "pending": pending}))
	o.audit.Record("run_blocked", "run_id", run.ID, "pending", pending)
	return fmt.Errorf("run %s: %d tasks pending with none ready: %w", run.ID, pending, contracts.ErrBlocked)
}

// recordDuration returns the wall-clock span of an ExecutionRecord, or zero
// if either timestamp is unset (e.g. a synthetic SKIPPED record).
func recordDuration(rec contracts.ExecutionRecord) time.Duration {
	if rec.StartTS == 0 || rec.EndTS == 0 {
		return 0
	}
	return time.Duration(rec.EndTS - rec.StartTS)
}
