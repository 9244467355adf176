package contracts

import "errors"

// Sentinel errors for the runtime layer, grouped by the taxonomy in the
// error handling design.
var (
	// Input validation errors
	ErrInvalidInput = errors.New("invalid input: nil or malformed")

	// Registry errors
	ErrToolNotFound = errors.New("tool not found in registry")

	// DAG / Planner errors
	ErrDAGCycle      = errors.New("cycle detected in node dependencies")
	ErrDAGInvalid    = errors.New("invalid DAG structure")
	ErrDepNotFound   = errors.New("dependency node not found")
	ErrPlaceholder   = errors.New("node input contains a forbidden template placeholder")
	ErrSchemaInvalid = errors.New("node inputs do not conform to the tool's parameter schema")
	ErrPlannerFailed = errors.New("planner failed to produce a valid DAG")

	// Task / node errors
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskNotReady  = errors.New("task not ready for execution")
	ErrTaskFailed    = errors.New("task execution failed")
	ErrTaskTimeout   = errors.New("task execution timeout")
	ErrTaskCancelled = errors.New("task cancelled")

	// Run errors
	ErrRunNotFound  = errors.New("run not found")
	ErrRunCompleted = errors.New("run already completed")
	ErrRunAborted   = errors.New("run aborted")
	ErrBlocked      = errors.New("runtime blocked: no ready nodes but pending nodes remain")

	// Rate limiting / locking / approval
	ErrRateLimitCanceled = errors.New("rate limit wait canceled")
	ErrApprovalDenied    = errors.New("dangerous tool invocation denied by approver")
	ErrCircuitOpen       = errors.New("circuit breaker open for tool")

	// Sub-agent / fleet errors
	ErrDepthExceeded  = errors.New("sub-agent depth exceeded")
	ErrFleetAllFailed = errors.New("all fleet peers failed")

	// Budget errors
	ErrBudgetExceeded = errors.New("budget exceeded")
	ErrBudgetNotSet   = errors.New("budget not set")

	// Context errors
	ErrContextTooLarge = errors.New("context exceeds maximum token limit")
	ErrContextEmpty     = errors.New("context bundle is empty")

	// Estimation errors
	ErrEstimationFailed = errors.New("token estimation failed")
	ErrModelUnknown      = errors.New("unknown model for cost calculation")
)
