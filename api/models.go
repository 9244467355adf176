// Package api provides the HTTP API layer for the runtime sidecar.
package api

import (
	"time"

	"github.com/smith-runtime/smith/contracts"
)

// ============================================================================
// Request DTOs
// ============================================================================

// StartRunRequest is the request body for POST /api/v1/runs.
type StartRunRequest struct {
	ID              string    `json:"id,omitempty"`
	Policy          PolicyDTO `json:"policy"`
	Tasks           []TaskDTO `json:"tasks"`
	FinalOutputNode string    `json:"final_output_node"`
}

// PolicyDTO represents execution constraints for a run, mirroring
// contracts.RunPolicy over the wire.
type PolicyDTO struct {
	MaxConcurrentTools int               `json:"max_concurrent_tools"`
	MaxRetries         int               `json:"max_retries"`
	DefaultTimeoutMs   int64             `json:"default_timeout_ms"`
	MaxSubagentDepth   int               `json:"max_subagent_depth"`
	MaxFleetSize       int               `json:"max_fleet_size"`
	EnableRateLimiting bool              `json:"enable_rate_limiting"`
	RequireApproval    bool              `json:"require_approval"`
	BudgetLimit        CostDTO           `json:"budget_limit"`
	ContextPolicy      *ContextPolicyDTO `json:"context_policy,omitempty"`
}

// ContextPolicyDTO represents context management settings.
type ContextPolicyDTO struct {
	MaxTokens int64  `json:"max_tokens,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
	KeepLastN int    `json:"keep_last_n,omitempty"`
}

// TaskDTO represents a task in the request: one tool invocation node.
type TaskDTO struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Deps      []string       `json:"deps,omitempty"`
	OnFail    string         `json:"on_fail,omitempty"`
	TimeoutMs int64          `json:"timeout_ms,omitempty"`
}

// CostDTO represents a monetary cost.
type CostDTO struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// ============================================================================
// Response DTOs
// ============================================================================

// RunResponse is the response body for run-related endpoints.
type RunResponse struct {
	ID          string                   `json:"id"`
	State       string                   `json:"state"`
	Tasks       map[string]TaskStatusDTO `json:"tasks,omitempty"`
	Usage       *UsageDTO                `json:"usage,omitempty"`
	Error       *ErrorDTO                `json:"error,omitempty"`
	FinalOutput any                      `json:"final_output,omitempty"`
	CreatedAt   int64                    `json:"created_at"`
	UpdatedAt   int64                    `json:"updated_at,omitempty"`
}

// TaskStatusDTO represents the status of a single task.
type TaskStatusDTO struct {
	State  string    `json:"state"`
	Output any       `json:"output,omitempty"`
	Error  *ErrorDTO `json:"error,omitempty"`
}

// UsageDTO represents token and cost usage.
type UsageDTO struct {
	Tokens int64    `json:"tokens"`
	Cost   *CostDTO `json:"cost,omitempty"`
}

// ErrorDTO represents an error in the response.
type ErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ============================================================================
// Converters: Request DTO -> contracts
// ============================================================================

// ToRunPolicy converts PolicyDTO to contracts.RunPolicy.
func (p *PolicyDTO) ToRunPolicy() contracts.RunPolicy {
	policy := contracts.RunPolicy{
		MaxConcurrentTools: p.MaxConcurrentTools,
		MaxRetries:         p.MaxRetries,
		DefaultTimeout:     time.Duration(p.DefaultTimeoutMs) * time.Millisecond,
		MaxSubagentDepth:   p.MaxSubagentDepth,
		MaxFleetSize:       p.MaxFleetSize,
		EnableRateLimiting: p.EnableRateLimiting,
		RequireApproval:    p.RequireApproval,
		BudgetLimit: contracts.Cost{
			Amount:   p.BudgetLimit.Amount,
			Currency: contracts.Currency(p.BudgetLimit.Currency),
		},
	}
	if p.ContextPolicy != nil {
		policy.ContextPolicy = contracts.ContextPolicy{
			MaxTokens: contracts.TokenCount(p.ContextPolicy.MaxTokens),
			Strategy:  p.ContextPolicy.Strategy,
			KeepLastN: p.ContextPolicy.KeepLastN,
		}
	}
	return policy
}

// ToTask converts TaskDTO to contracts.Task. The default timeout is applied
// by the caller once the run's policy is known, since a zero TimeoutMs here
// just means "use the run default", not "no timeout".
func (t *TaskDTO) ToTask() *contracts.Task {
	task := &contracts.Task{
		ID:      contracts.TaskID(t.ID),
		State:   contracts.TaskPending,
		Tool:    contracts.ToolName(t.Tool),
		Inputs:  t.Inputs,
		OnFail:  contracts.OnFailPolicy(t.OnFail),
		Timeout: time.Duration(t.TimeoutMs) * time.Millisecond,
	}
	if task.OnFail == "" {
		task.OnFail = contracts.OnFailHalt
	}
	if len(t.Deps) > 0 {
		task.Deps = make([]contracts.TaskID, len(t.Deps))
		for i, dep := range t.Deps {
			task.Deps[i] = contracts.TaskID(dep)
		}
	}
	return task
}

// ============================================================================
// Converters: contracts -> Response DTO
// ============================================================================

// ErrorToResponse converts an error to ErrorDTO with appropriate code.
func ErrorToResponse(err error, code string) *ErrorDTO {
	return &ErrorDTO{
		Code:    code,
		Message: err.Error(),
	}
}

// SnapshotToResponse converts a RunSnapshot to RunResponse. This is the
// thread-safe way to build API responses — it never touches the live
// contracts.Run the Orchestrator goroutine may still be mutating.
func SnapshotToResponse(snap *RunSnapshot) *RunResponse {
	resp := &RunResponse{
		ID:          string(snap.ID),
		State:       snap.APIState,
		FinalOutput: snap.FinalOutput,
		CreatedAt:   snap.CreatedAt,
		UpdatedAt:   snap.UpdatedAt,
	}

	if len(snap.Tasks) > 0 {
		resp.Tasks = make(map[string]TaskStatusDTO, len(snap.Tasks))
		for id, task := range snap.Tasks {
			taskDTO := TaskStatusDTO{
				State:  task.State.String(),
				Output: task.Output,
			}
			if task.Error != nil {
				taskDTO.Error = &ErrorDTO{
					Code:    task.Error.Code,
					Message: task.Error.Message,
				}
			}
			resp.Tasks[string(id)] = taskDTO
		}
	}

	if snap.Usage.Tokens > 0 || snap.Usage.Cost.Amount > 0 {
		resp.Usage = &UsageDTO{
			Tokens: int64(snap.Usage.Tokens),
			Cost: &CostDTO{
				Amount:   snap.Usage.Cost.Amount,
				Currency: string(snap.Usage.Cost.Currency),
			},
		}
	}

	if snap.Error != nil {
		httpErr := MapError(snap.Error)
		resp.Error = &ErrorDTO{
			Code:    string(httpErr.Code),
			Message: snap.Error.Error(),
		}
	}

	return resp
}
