// Package subagent implements the reserved sub_agent tool: spawning a
// nested, depth-bounded Orchestrator run on behalf of a parent task.
//
// Grounded on _examples/original_source/src/smith/tools/SUB_AGENT.py:
// run_sub_agent resolves the child's depth from its parent, rejects once
// max_subagent_depth is exceeded, serializes execution through a
// process-wide semaphore of weight 1 (here golang.org/x/sync/semaphore
// rather than Python's threading.Semaphore, per the domain stack's library
// choice), excludes sub_agent from the child's own tool catalog so it can
// never recurse past its bound, and tracks the spawn in agent state from
// RUNNING through its terminal status.
package subagent

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/agentstate"
	"github.com/smith-runtime/smith/internal/invoker"
	"github.com/smith-runtime/smith/internal/orchestration"
	"github.com/smith-runtime/smith/internal/planner"
	"github.com/smith-runtime/smith/internal/registry"
	"github.com/smith-runtime/smith/internal/telemetry"
)

// ToolName is the reserved name SUB_AGENT.py registers, aliased there as
// delegate/spawn_agent for anti-hallucination; this runtime keeps one name.
const ToolName = contracts.ToolName("sub_agent")

// Descriptor is the sub_agent tool's registry entry, installed
// programmatically (it has no entry in the static descriptor file) via
// registry.Register.
func Descriptor() contracts.ToolDescriptor {
	return contracts.ToolDescriptor{
		Name:        string(ToolName),
		Description: "Delegate a sub-task to a nested agent run and return its synthesized result.",
		FunctionID:  "subagent.run",
		Dangerous:   false,
		Domain:      "system",
		OutputType:  "synthesis",
		Parameters: map[string]contracts.ParamSpec{
			"task": {Type: "string", Required: true},
		},
		Required: []string{"task"},
	}
}

// Config bundles everything a Coordinator needs to plan and run a nested
// Orchestrator stack. New removes sub_agent from Registry itself (via
// registry.WithoutTool), so the child may call what the parent run's
// registry offers, minus sub_agent.
type Config struct {
	MaxDepth int
	// Cooldown is paused after releasing the serialization gate, matching
	// SUB_AGENT.py's time.Sleep(2.0) rate-limit-cascade guard. Zero disables it.
	Cooldown time.Duration

	Planner  *planner.Planner
	Registry contracts.Registry
	Funcs    invoker.FuncResolver
	Approval contracts.ApprovalCallback
	Policy   contracts.RunPolicy
	Logger   hclog.Logger
	Events   telemetry.Emitter
	States   *agentstate.Manager
}

// Coordinator spawns sub-agent runs one at a time, matching the Python
// original's process-wide single-flight semaphore.
type Coordinator struct {
	cfg  Config
	gate *semaphore.Weighted
	log  hclog.Logger
}

// New creates a Coordinator. A nil States manager is replaced with a fresh
// one scoped to this Coordinator's lifetime.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Events == nil {
		cfg.Events = telemetry.Discard
	}
	if cfg.States == nil {
		cfg.States = agentstate.New()
	}
	if cfg.Registry != nil {
		cfg.Registry = registry.WithoutTool(cfg.Registry, ToolName)
	}
	return &Coordinator{
		cfg:  cfg,
		gate: semaphore.NewWeighted(1),
		log:  cfg.Logger.Named("subagent"),
	}
}

// Run delegates task to a nested Orchestrator run on behalf of parentID
// (empty for a root-level delegation), returning the child run's final
// output. The acquire/release of the serialization gate happens in arrival
// order: callers blocked on Acquire are admitted FIFO by the semaphore
// implementation.
func (c *Coordinator) Run(ctx context.Context, task string, parentID contracts.AgentID) (any, error) {
	depth := 0
	if parentID != "" {
		depth = c.cfg.States.DepthOf(parentID) + 1
	}
	if c.cfg.MaxDepth > 0 && depth > c.cfg.MaxDepth {
		return nil, fmt.Errorf("sub-agent depth %d exceeds maximum %d: %w", depth, c.cfg.MaxDepth, contracts.ErrDepthExceeded)
	}

	now := contracts.Timestamp(time.Now().UnixNano())
	agentID := c.cfg.States.Create(task, parentID, now)

	if err := c.gate.Acquire(ctx, 1); err != nil {
		c.cfg.States.UpdateStatus(agentID, contracts.AgentFailed, nil, err.Error(), contracts.Timestamp(time.Now().UnixNano()))
		return nil, fmt.Errorf("acquiring sub-agent gate: %w", err)
	}
	defer func() {
		c.gate.Release(1)
		if c.cfg.Cooldown > 0 {
			time.Sleep(c.cfg.Cooldown)
		}
	}()

	c.cfg.States.UpdateStatus(agentID, contracts.AgentRunning, nil, "", contracts.Timestamp(time.Now().UnixNano()))
	c.log.Info("sub-agent run starting", "agent_id", agentID, "parent_id", parentID, "depth", depth)

	result, err := c.execute(ctx, agentID, task)

	endTS := contracts.Timestamp(time.Now().UnixNano())
	if err != nil {
		c.cfg.States.UpdateStatus(agentID, contracts.AgentFailed, nil, err.Error(), endTS)
		c.log.Warn("sub-agent run failed", "agent_id", agentID, "error", err)
		return nil, err
	}
	c.cfg.States.UpdateStatus(agentID, contracts.AgentCompleted, result, "", endTS)
	c.log.Info("sub-agent run completed", "agent_id", agentID)
	return result, nil
}

// AsToolFunc returns a contracts.ToolFunc that delegates to Run with
// parentID fixed to the agent whose Funcs this is wired into — each
// Orchestrator stack built via orchestration.Build is already scoped to one
// AgentID, so the parent is known at wiring time rather than per call.
func (c *Coordinator) AsToolFunc(parentID contracts.AgentID) contracts.ToolFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		task, _ := inputs["task"].(string)
		if task == "" {
			return nil, fmt.Errorf("sub_agent: missing required input %q: %w", "task", contracts.ErrInvalidInput)
		}
		return c.Run(ctx, task, parentID)
	}
}

// execute plans task into a DAG and drives it through a freshly built
// Orchestrator stack scoped to agentID.
func (c *Coordinator) execute(ctx context.Context, agentID contracts.AgentID, task string) (any, error) {
	dag, tasks, err := c.cfg.Planner.Plan(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("planning sub-agent task: %w", err)
	}

	taskMap := make(map[contracts.TaskID]*contracts.Task, len(tasks))
	for i := range tasks {
		taskMap[tasks[i].ID] = &tasks[i]
	}

	run := &contracts.Run{
		ID:     contracts.RunID(agentID),
		State:  contracts.RunPending,
		Policy: c.cfg.Policy,
		DAG:    dag,
		Tasks:  taskMap,
	}

	orch := orchestration.Build(orchestration.BuildOptions{
		AgentID:  agentID,
		Registry: c.cfg.Registry,
		Funcs:    c.cfg.Funcs,
		Approval: c.cfg.Approval,
		Policy:   c.cfg.Policy,
		Logger:   c.log.With("agent_id", agentID),
		Events:   c.cfg.Events,
	})

	if err := orch.Run(ctx, run); err != nil {
		return nil, fmt.Errorf("running sub-agent: %w", err)
	}

	return run.FinalOutput, nil
}
