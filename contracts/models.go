package contracts

import "time"

// ParamSpec describes one entry of a tool's parameter_schema.
type ParamSpec struct {
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

// ToolDescriptor is the registry's immutable record for one tool. Built once
// at startup from the descriptor file and never mutated afterward.
type ToolDescriptor struct {
	Name                string
	Description         string
	FunctionID          string
	Dangerous           bool
	Domain              string
	OutputType          string
	Parameters          map[string]ParamSpec
	Required            []string
	Resources           []string
	DefaultTimeout      time.Duration
	DefaultRateInterval time.Duration
	Notes               string
}

// Task is one scheduled tool invocation: the runtime's in-memory counterpart
// of a DAG Node, carrying both the static node definition and its mutable
// execution state.
type Task struct {
	ID      TaskID
	State   TaskState
	Tool    ToolName
	Inputs  map[string]any
	Deps    []TaskID
	Retry   int
	Timeout time.Duration
	OnFail  OnFailPolicy
	Purpose string

	Attempts int
	StartTS  Timestamp
	EndTS    Timestamp
	Outputs  *TaskResult
	Error    *TaskFailure
}

// TaskResult is the output produced by a successful tool invocation.
type TaskResult struct {
	Output any
	Usage  Usage
}

// TaskFailure captures the terminal failure detail of a task. Distinct from
// the TaskError TaskState value: TaskState says a task ended in error,
// TaskFailure carries the code/message of that error.
type TaskFailure struct {
	Code    string
	Message string
}

// DAG is the validated graph of a single run: nodes plus the designated
// final-output node whose result is surfaced for external synthesis.
type DAG struct {
	Nodes           map[TaskID]*DAGNode
	Edges           map[TaskID][]TaskID
	FinalOutputNode TaskID
}

// DAGNode is the scheduler's adjacency-list representation of one task:
// its dependencies, forward edges, and remaining unresolved-dependency count.
type DAGNode struct {
	ID      TaskID
	Deps    []TaskID
	Next    []TaskID
	Pending int
}

// ExecutionRecord is the Tool Invoker's append-only output for one node:
// created when the node becomes eligible, mutated once, read-only thereafter.
type ExecutionRecord struct {
	NodeID         TaskID
	InputsResolved map[string]any
	Output         any
	Status         TaskState
	Attempts       int
	StartTS        Timestamp
	EndTS          Timestamp
	ErrorMessage   string
}

// AgentState is one node of the sub-agent/fleet agent tree.
type AgentState struct {
	AgentID   AgentID
	ParentID  *AgentID
	Depth     int
	Task      string
	Status    AgentStatus
	Result    any
	Error     string
	Children  []AgentID
	CreatedAt Timestamp
	EndedAt   Timestamp
}

// Usage represents token and cost usage for an external collaborator call
// (Planner generation/repair, sub-agent/fleet decomposition and synthesis).
type Usage struct {
	Tokens TokenCount
	Cost   Cost
}

// Cost represents a monetary cost.
type Cost struct {
	Amount   float64
	Currency Currency
}

// ContextBundle is the assembled prompt context for one external
// collaborator call: upstream outputs, short-term memory, and tool
// descriptions.
type ContextBundle struct {
	Messages []string
	Memory   map[string]string
	Tools    map[string]string
}

// ContextPolicy controls how a ContextBundle is compacted before a call.
type ContextPolicy struct {
	MaxTokens TokenCount
	Strategy  string
	KeepLastN int
}

// RunPolicy carries the Configuration keys of the external interfaces
// section: everything an operator can set before starting a run.
type RunPolicy struct {
	MaxConcurrentTools int
	MaxRetries         int
	DefaultTimeout     time.Duration
	MaxSubagentDepth   int
	MaxFleetSize       int
	EnableRateLimiting bool
	RequireApproval    bool
	RateIntervals      map[ToolName]time.Duration
	BudgetLimit        Cost
	ContextPolicy      ContextPolicy
}

// Run represents a single Orchestrator invocation over one DAG.
type Run struct {
	ID          RunID
	State       RunState
	Policy      RunPolicy
	DAG         *DAG
	Tasks       map[TaskID]*Task
	Trace       []ExecutionRecord
	FinalOutput any
	Usage       Usage
	CreatedAt   Timestamp
	UpdatedAt   Timestamp
}
