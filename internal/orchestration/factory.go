package orchestration

import (
	"github.com/hashicorp/go-hclog"

	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/audit"
	ctxpkg "github.com/smith-runtime/smith/internal/context"
	"github.com/smith-runtime/smith/internal/invoker"
	"github.com/smith-runtime/smith/internal/lock"
	"github.com/smith-runtime/smith/internal/ratelimit"
	"github.com/smith-runtime/smith/internal/telemetry"
)

// BuildOptions bundles the dependencies a fresh Orchestrator stack needs:
// the catalog of available tools, the resolver from a tool's function_id to
// its callable, and the approval callback gating dangerous tools.
type BuildOptions struct {
	AgentID    contracts.AgentID
	Registry   contracts.Registry
	Funcs      invoker.FuncResolver
	Approval   contracts.ApprovalCallback
	Policy     contracts.RunPolicy
	Logger     hclog.Logger
	OnProgress func(*contracts.Run)
	// Events, if set, receives tool_start/tool_complete/final_answer/error
	// events as the run progresses. Defaults to telemetry.Discard.
	Events telemetry.Emitter
}

// Build assembles a complete Tool Invoker + Orchestrator stack: rate
// limiter, lock manager, and circuit-breaking invoker per §4.4, wired into
// the Scheduler/DependencyResolver/ParallelExecutor/ContextRouter chain of
// §4.6. This is the single constructor callers (the CLI, the sub-agent tool,
// the fleet coordinator) should reach for to get a runnable Orchestrator.
func Build(opts BuildOptions) contracts.Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	overrides := make(map[contracts.ToolName]float64, len(opts.Policy.RateIntervals))
	for name, interval := range opts.Policy.RateIntervals {
		overrides[name] = interval.Seconds()
	}
	rl := ratelimit.New(opts.Policy.EnableRateLimiting, opts.Registry.ListAll(), overrides)
	lm := lock.New(logger.Named("lock"))

	inv := invoker.New(invoker.Config{
		AgentID:         opts.AgentID,
		Registry:        opts.Registry,
		Funcs:           opts.Funcs,
		RateLimiter:     rl,
		LockManager:     lm,
		Approval:        opts.Approval,
		RequireApproval: opts.Policy.RequireApproval,
		Logger:          logger.Named("invoker"),
	})

	return NewOrchestrator(Deps{
		Scheduler:   NewScheduler(),
		DepResolver: NewDependencyResolver(),
		Executor:    NewParallelExecutor(inv),
		Router:      ctxpkg.NewContextRouter(),
		Queue:       NewQueueManager(),
		OnProgress:  opts.OnProgress,
		Events:      opts.Events,
		Audit:       audit.New(logger),
	})
}
