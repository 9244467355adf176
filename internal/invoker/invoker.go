// Package invoker implements the Tool Invoker: one tool call under a
// whole-node deadline with a bounded retry budget, layered with approval
// gating, rate limiting, resource locking, and a per-tool circuit breaker.
//
// Grounded on the teacher's internal/orchestration/parallel_executor.go for
// the attempt/timeout/retry shape, and on
// _examples/original_source/src/smith/core/throttling.py's CircuitBreaker
// (CLOSED/OPEN/HALF_OPEN, configurable failure threshold and cooldown) for
// the breaker policy, implemented with github.com/sony/gobreaker rather than
// a hand-rolled state machine.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/sony/gobreaker/v2"

	"github.com/smith-runtime/smith/contracts"
)

// backoff schedule: exponential, base 200ms, factor 2, capped at 5s. Chosen
// (an Open Question in the component design) for trace-replay determinism —
// no jitter, so a mocked run's retry timing is reproducible.
const (
	backoffBase   = 200 * time.Millisecond
	backoffFactor = 2
	backoffCap    = 5 * time.Second
)

func backoffFor(attempt int) time.Duration {
	d := backoffBase
	for i := 0; i < attempt; i++ {
		d *= backoffFactor
		if d >= backoffCap {
			return backoffCap
		}
	}
	if d > backoffCap {
		return backoffCap
	}
	return d
}

// FuncResolver resolves a tool descriptor's opaque function_id to a callable.
// Individual tool implementations are out of scope; callers supply this.
type FuncResolver interface {
	Resolve(functionID string) (contracts.ToolFunc, bool)
}

// MapResolver is the simplest FuncResolver: a static map from function_id to
// callable, sufficient for tests and for wiring a fixed built-in tool set.
type MapResolver map[string]contracts.ToolFunc

func (m MapResolver) Resolve(functionID string) (contracts.ToolFunc, bool) {
	f, ok := m[functionID]
	return f, ok
}

// Invoker implements contracts.ToolInvoker.
type Invoker struct {
	agentID         contracts.AgentID
	registry        contracts.Registry
	funcs           FuncResolver
	rateLimiter     contracts.RateLimiter
	lockManager     contracts.LockManager
	approval        contracts.ApprovalCallback
	requireApproval bool
	logger          hclog.Logger

	mu       sync.Mutex
	breakers map[contracts.ToolName]*gobreaker.CircuitBreaker[any]
}

// Config bundles the Invoker's collaborators. AgentID identifies the
// orchestrator run (root, sub-agent, or fleet peer) this Invoker serves —
// it is the lock manager's ownership key, letting resource acquisitions
// made by one run's nodes remain reentrant with each other but exclusive
// against a concurrent run's.
type Config struct {
	AgentID         contracts.AgentID
	Registry        contracts.Registry
	Funcs           FuncResolver
	RateLimiter     contracts.RateLimiter
	LockManager     contracts.LockManager
	Approval        contracts.ApprovalCallback
	RequireApproval bool
	Logger          hclog.Logger
}

func New(cfg Config) *Invoker {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Invoker{
		agentID:         cfg.AgentID,
		registry:        cfg.Registry,
		funcs:           cfg.Funcs,
		rateLimiter:     cfg.RateLimiter,
		lockManager:     cfg.LockManager,
		approval:        cfg.Approval,
		requireApproval: cfg.RequireApproval,
		logger:          logger.Named("tool-invoker"),
		breakers:        make(map[contracts.ToolName]*gobreaker.CircuitBreaker[any]),
	}
}

func (inv *Invoker) breakerFor(tool contracts.ToolName) *gobreaker.CircuitBreaker[any] {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if cb, ok := inv.breakers[tool]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        string(tool),
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	inv.breakers[tool] = cb
	return cb
}

// Invoke runs task.Tool with resolvedInputs, producing a terminal
// ExecutionRecord. It never returns a Go error: all failure modes are
// represented in the record's Status/ErrorMessage, per the Orchestrator's
// contract that every node that leaves PENDING commits exactly one record.
func (inv *Invoker) Invoke(ctx context.Context, task *contracts.Task, resolvedInputs map[string]any) contracts.ExecutionRecord {
	rec := contracts.ExecutionRecord{
		NodeID:         task.ID,
		InputsResolved: resolvedInputs,
		StartTS:        contracts.Timestamp(time.Now().UnixNano()),
	}

	desc, ok := inv.registry.Lookup(task.Tool)
	if !ok {
		return inv.fail(rec, task, fmt.Errorf("resolving tool %s: %w", task.Tool, contracts.ErrToolNotFound))
	}

	if desc.Dangerous && inv.requireApproval {
		if inv.approval == nil {
			return inv.fail(rec, task, fmt.Errorf("tool %s requires approval but no approval callback configured: %w", task.Tool, contracts.ErrApprovalDenied))
		}
		approved, err := inv.approval(ctx, task)
		if err != nil {
			return inv.fail(rec, task, fmt.Errorf("approval callback for %s: %w", task.Tool, err))
		}
		if !approved {
			return inv.fail(rec, task, fmt.Errorf("approval denied for %s: %w", task.Tool, contracts.ErrApprovalDenied))
		}
	}

	fn, ok := inv.funcs.Resolve(desc.FunctionID)
	if !ok {
		return inv.fail(rec, task, fmt.Errorf("resolving function_id %s for tool %s: %w", desc.FunctionID, task.Tool, contracts.ErrToolNotFound))
	}

	if err := inv.rateLimiter.Acquire(ctx, task.Tool); err != nil {
		return inv.fail(rec, task, err)
	}

	if len(desc.Resources) > 0 {
		if err := inv.lockManager.AcquireAll(ctx, inv.agentID, desc.Resources); err != nil {
			return inv.fail(rec, task, err)
		}
		defer inv.lockManager.ReleaseAll(inv.agentID, desc.Resources)
	}

	nodeCtx, cancel := context.WithTimeout(ctx, task.Timeout)
	defer cancel()

	breaker := inv.breakerFor(task.Tool)

	var lastErr error
	maxAttempts := task.Retry + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		rec.Attempts = attempt + 1

		if nodeCtx.Err() != nil {
			rec.Status = contracts.TaskTimeout
			rec.ErrorMessage = fmt.Sprintf("deadline of %s exceeded before attempt %d", task.Timeout, attempt+1)
			rec.EndTS = contracts.Timestamp(time.Now().UnixNano())
			return rec
		}

		result, err := breaker.Execute(func() (any, error) {
			return fn(nodeCtx, resolvedInputs)
		})

		if err == nil {
			rec.Status = contracts.TaskSuccess
			rec.Output = result
			rec.EndTS = contracts.Timestamp(time.Now().UnixNano())
			return rec
		}

		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			lastErr = fmt.Errorf("tool %s: %w", task.Tool, contracts.ErrCircuitOpen)
			break
		}

		if nodeCtx.Err() != nil {
			rec.Status = contracts.TaskTimeout
			rec.ErrorMessage = fmt.Sprintf("deadline of %s exceeded during attempt %d: %v", task.Timeout, attempt+1, err)
			rec.EndTS = contracts.Timestamp(time.Now().UnixNano())
			return rec
		}

		if attempt < maxAttempts-1 {
			inv.logger.Debug("tool attempt failed, retrying", "tool", task.Tool, "node_id", task.ID, "attempt", attempt+1, "error", err)
			select {
			case <-time.After(backoffFor(attempt)):
			case <-nodeCtx.Done():
				rec.Status = contracts.TaskTimeout
				rec.ErrorMessage = fmt.Sprintf("deadline of %s exceeded during backoff after attempt %d", task.Timeout, attempt+1)
				rec.EndTS = contracts.Timestamp(time.Now().UnixNano())
				return rec
			}
		}
	}

	rec.Status = contracts.TaskError
	rec.ErrorMessage = lastErr.Error()
	rec.EndTS = contracts.Timestamp(time.Now().UnixNano())
	return rec
}

func (inv *Invoker) fail(rec contracts.ExecutionRecord, task *contracts.Task, err error) contracts.ExecutionRecord {
	rec.Status = contracts.TaskError
	rec.ErrorMessage = err.Error()
	rec.EndTS = contracts.Timestamp(time.Now().UnixNano())
	inv.logger.Warn("tool invocation rejected before dispatch", "tool", task.Tool, "node_id", task.ID, "error", err)
	return rec
}

var _ contracts.ToolInvoker = (*Invoker)(nil)
