package contracts

import "context"

// =============================================================================
// Registry, Rate Limiting, Locking, Invocation
// =============================================================================

// Registry is the in-memory tool catalog. Thread-safe for reads; no mutation
// after initialization.
type Registry interface {
	// Lookup resolves a tool by name.
	Lookup(name ToolName) (ToolDescriptor, bool)

	// ListAll returns every registered tool descriptor.
	ListAll() []ToolDescriptor
}

// RateLimiter enforces a per-tool minimum invocation interval.
type RateLimiter interface {
	// Acquire blocks the caller until the next permitted invocation instant
	// for tool, or returns ErrRateLimitCanceled if ctx is canceled first.
	Acquire(ctx context.Context, tool ToolName) error
}

// LockManager is the named, reentrant-by-agent mutual-exclusion registry.
type LockManager interface {
	// AcquireAll acquires every resource in resources for agentID, in a
	// stable global order, blocking until all are held.
	AcquireAll(ctx context.Context, agentID AgentID, resources []string) error

	// ReleaseAll releases every resource in resources held by agentID.
	ReleaseAll(agentID AgentID, resources []string)
}

// ApprovalCallback gates invocation of a tool descriptor marked dangerous.
type ApprovalCallback func(ctx context.Context, task *Task) (bool, error)

// ToolFunc is the resolved callable a ToolDescriptor's FunctionID refers to.
type ToolFunc func(ctx context.Context, inputs map[string]any) (any, error)

// ToolInvoker executes one tool call under a timeout with a bounded retry
// budget and emits a structured outcome.
type ToolInvoker interface {
	Invoke(ctx context.Context, task *Task, resolvedInputs map[string]any) ExecutionRecord
}

// =============================================================================
// Orchestration Interfaces
// =============================================================================

// Scheduler determines which tasks are ready to execute and tracks completion.
type Scheduler interface {
	// NextReady returns task IDs that are ready to execute (all deps terminal),
	// sorted by TaskID for deterministic selection.
	NextReady(run *Run) ([]TaskID, error)

	// MarkTerminal records a task's terminal Execution Record, decrements its
	// dependents' pending counts, and appends to the trace. Halt/continue
	// propagation is applied by the Orchestrator, not here.
	MarkTerminal(run *Run, taskID TaskID, rec ExecutionRecord) error
}

// DependencyResolver builds and validates the task dependency graph.
type DependencyResolver interface {
	// BuildDAG constructs a DAG from a list of tasks and a final output node.
	BuildDAG(tasks []Task, finalOutputNode TaskID) (*DAG, error)

	// Validate checks the DAG for cycles and an existing final output node.
	// The registry argument is not consulted: tool existence is not checked.
	Validate(dag *DAG, registry Registry) error
}

// ParallelExecutor drives the Tool Invoker for one task, applying rate
// limiting, resource locking, and approval gating around the call.
type ParallelExecutor interface {
	Execute(ctx context.Context, run *Run, taskID TaskID) ExecutionRecord
}

// QueueManager is the FIFO ordering primitive backing the Orchestrator's
// ready-queue: each round's deterministically-sorted ready frontier is
// staged through it before dispatch, so the dispatch order is an explicit,
// inspectable queue rather than an implicit slice traversal.
type QueueManager interface {
	Enqueue(taskID TaskID)
	Dequeue() (TaskID, bool)
	Len() int
}

// =============================================================================
// Cost Control Interfaces (govern external-collaborator calls only: Planner
// generation/repair, sub-agent/fleet decomposition and synthesis)
// =============================================================================

// TokenEstimator estimates the number of tokens an external collaborator
// call will consume.
type TokenEstimator interface {
	Estimate(task *Task, ctx *ContextBundle) (TokenCount, error)
}

// CostCalculator calculates the cost based on token usage and model.
type CostCalculator interface {
	Estimate(tokens TokenCount, model ModelID) (Cost, error)
}

// BudgetEnforcer enforces budget limits for runs.
type BudgetEnforcer interface {
	Allow(run *Run, estimate Cost) error
	Record(run *Run, actual Cost) error
}

// UsageTracker tracks token and cost usage for a run.
type UsageTracker interface {
	Add(run *Run, usage Usage)
	Snapshot(run *Run) Usage
}

// =============================================================================
// Context Management Interfaces
// =============================================================================

// ContextRouter routes a completed node's output into its dependents' input
// maps. This is the sole mechanism by which dependency values flow — nodes
// never reference each other by textual placeholder.
type ContextRouter interface {
	Route(run *Run, from TaskID, to TaskID, output *TaskResult) error
}
