// Package fleet implements the Fleet Coordinator: decomposing one goal into
// N peer sub-tasks, running each as an isolated sub-agent concurrently, and
// synthesizing their results into a single answer.
//
// Grounded on _examples/original_source/src/smith/core/fleet_coordinator.py:
// FleetCoordinator.run_fleet's goal-decomposition-then-ThreadPoolExecutor
// fan-out-then-aggregate shape, its fallback to "{goal} - Part {i+1}/{n}"
// splits when decomposition fails to parse, its per-peer failure isolation
// (a failed peer becomes a {agent_index, task, error} result rather than
// aborting the fleet), and its "Aggregation failed: ..." fallback string
// when the synthesis call itself errors.
package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/agentstate"
	"github.com/smith-runtime/smith/internal/subagent"
	"github.com/smith-runtime/smith/internal/telemetry"
)

// Collaborator is the external language-model contract the Coordinator
// drives for decomposition and synthesis — the same seam planner.Planner
// uses, kept as its own interface here so this package doesn't import
// internal/planner just for a one-method contract.
type Collaborator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// PeerResult is one fleet member's outcome: exactly one of Output or Err is set.
type PeerResult struct {
	Index  int
	Task   string
	Output any
	Err    error
}

// Config bundles a Coordinator's dependencies.
type Config struct {
	MaxFleetSize int
	Collaborator Collaborator
	Subagent     *subagent.Coordinator
	States       *agentstate.Manager
	Logger       hclog.Logger
	Events       telemetry.Emitter
}

// Coordinator runs a goal across a bounded fleet of peer sub-agents.
type Coordinator struct {
	cfg Config
	log hclog.Logger
}

// New creates a Coordinator.
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
	return &Coordinator{cfg: cfg, log: cfg.Logger.Named("fleet")}
}

// Run decomposes goal into numAgents sub-tasks, runs each as a peer
// sub-agent of a fleet root agent, and synthesizes their outputs. Returns
// contracts.ErrFleetAllFailed if every peer fails.
func (c *Coordinator) Run(ctx context.Context, goal string, numAgents int, strategy string) (any, error) {
	if numAgents < 1 {
		return nil, fmt.Errorf("num_agents must be >= 1: %w", contracts.ErrInvalidInput)
	}
	if c.cfg.MaxFleetSize > 0 && numAgents > c.cfg.MaxFleetSize {
		return nil, fmt.Errorf("num_agents %d exceeds max_fleet_size %d: %w", numAgents, c.cfg.MaxFleetSize, contracts.ErrInvalidInput)
	}

	fleetID := c.cfg.States.Create(goal, "", 0)
	c.cfg.States.UpdateStatus(fleetID, contracts.AgentRunning, nil, "", 0)

	subtasks := c.decompose(ctx, goal, numAgents, strategy)

	results := make([]PeerResult, numAgents)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numAgents)
	for i, task := range subtasks {
		i, task := i, task
		g.Go(func() error {
			out, err := c.cfg.Subagent.Run(gctx, task, fleetID)
			results[i] = PeerResult{Index: i, Task: task, Output: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	if allFailed(results) {
		c.cfg.States.UpdateStatus(fleetID, contracts.AgentFailed, nil, "all fleet peers failed", 0)
		return nil, fmt.Errorf("fleet %s: %w", fleetID, contracts.ErrFleetAllFailed)
	}

	aggregated := c.aggregate(ctx, goal, results)
	c.cfg.States.UpdateStatus(fleetID, contracts.AgentCompleted, aggregated, "", 0)
	return aggregated, nil
}

func allFailed(results []PeerResult) bool {
	for _, r := range results {
		if r.Err == nil {
			return false
		}
	}
	return true
}

// decompose asks the collaborator for a JSON array of exactly numAgents
// sub-task strings, falling back to a mechanical "Part i/n" split on any
// parse or generation failure.
func (c *Coordinator) decompose(ctx context.Context, goal string, numAgents int, strategy string) []string {
	prompt := decompositionPrompt(goal, numAgents, strategy)
	raw, err := c.cfg.Collaborator.Complete(ctx, prompt)
	if err == nil {
		if subtasks, ok := parseSubtasks(raw, numAgents); ok {
			return subtasks
		}
	}

	c.log.Warn("fleet decomposition failed, falling back to mechanical split", "error", err)
	subtasks := make([]string, numAgents)
	for i := range subtasks {
		subtasks[i] = fmt.Sprintf("%s - Part %d/%d", goal, i+1, numAgents)
	}
	return subtasks
}

func parseSubtasks(raw string, want int) ([]string, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	var subtasks []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &subtasks); err != nil {
		return nil, false
	}
	if len(subtasks) != want {
		return nil, false
	}
	return subtasks, true
}

// aggregate synthesizes every peer's outcome into one answer, falling back
// to a descriptive string if the synthesis call itself fails.
func (c *Coordinator) aggregate(ctx context.Context, goal string, results []PeerResult) any {
	prompt := aggregationPrompt(goal, results)
	answer, err := c.cfg.Collaborator.Complete(ctx, prompt)
	if err != nil {
		return fmt.Sprintf("Aggregation failed: %v", err)
	}
	return answer
}

func decompositionPrompt(goal string, numAgents int, strategy string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Decompose the following goal into exactly %d independent sub-tasks using a %q strategy.\n", numAgents, strategy)
	fmt.Fprintf(&b, "Goal: %s\n", goal)
	b.WriteString("Respond with a JSON array of exactly that many sub-task strings, nothing else.\n")
	return b.String()
}

func aggregationPrompt(goal string, results []PeerResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Synthesize one answer to the goal from the results of %d peer agents.\n", len(results))
	fmt.Fprintf(&b, "Goal: %s\n", goal)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(&b, "Agent %d (%s): error: %v\n", r.Index, r.Task, r.Err)
			continue
		}
		fmt.Fprintf(&b, "Agent %d (%s): %v\n", r.Index, r.Task, r.Output)
	}
	return b.String()
}
