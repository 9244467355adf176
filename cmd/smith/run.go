package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smith-runtime/smith/api"
	"github.com/smith-runtime/smith/config"
	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/collaborator"
	"github.com/smith-runtime/smith/internal/invoker"
	"github.com/smith-runtime/smith/internal/orchestration"
	smithplanner "github.com/smith-runtime/smith/internal/planner"
	"github.com/smith-runtime/smith/internal/subagent"
	"github.com/smith-runtime/smith/internal/telemetry"
)

func newRunCmd() *cobra.Command {
	var registryPath string
	var configPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run <dag.json>",
		Short: "Drive one Orchestrator run to completion, streaming engine events to stderr",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var req api.StartRunRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			reg, err := loadRegistry(registryPath)
			if err != nil {
				return err
			}

			policy := req.Policy.ToRunPolicy()
			if configPath != "" {
				cfg, err := config.NewLoader().LoadFromFile(configPath)
				if err != nil {
					return fmt.Errorf("loading config %s: %w", configPath, err)
				}
				policy = cfg.ToRunPolicy()
			}
			if policy.DefaultTimeout == 0 {
				policy.DefaultTimeout = 30 * time.Second
			}

			taskMap := make(map[contracts.TaskID]*contracts.Task, len(req.Tasks))
			tasks := make([]contracts.Task, len(req.Tasks))
			for i, dto := range req.Tasks {
				task := dto.ToTask()
				if task.Timeout == 0 {
					task.Timeout = policy.DefaultTimeout
				}
				tasks[i] = *task
				taskMap[task.ID] = task
			}

			resolver := orchestration.NewDependencyResolver()
			dag, err := resolver.BuildDAG(tasks, contracts.TaskID(req.FinalOutputNode))
			if err != nil {
				return fmt.Errorf("building DAG: %w", err)
			}
			if err := resolver.Validate(dag, reg); err != nil {
				return fmt.Errorf("invalid DAG: %w", err)
			}
			for _, task := range tasks {
				if _, ok := reg.Lookup(task.Tool); !ok {
					return fmt.Errorf("task %s: tool %q is not registered: %w", task.ID, task.Tool, contracts.ErrToolNotFound)
				}
			}

			run := &contracts.Run{
				ID:     contracts.RunID(req.ID),
				State:  contracts.RunPending,
				Policy: policy,
				DAG:    dag,
				Tasks:  taskMap,
			}
			if run.ID == "" {
				run.ID = contracts.RunID(fmt.Sprintf("run-%d", time.Now().UnixNano()))
			}

			events := telemetry.EmitterFunc(func(e telemetry.Event) {
				if !verbose && e.Kind != telemetry.KindFinalAnswer && e.Kind != telemetry.KindError {
					return
				}
				line, _ := json.Marshal(e)
				fmt.Fprintln(cmd.ErrOrStderr(), string(line))
			})

			var approval contracts.ApprovalCallback
			if policy.RequireApproval {
				approval = promptApproval
			}

			funcs := invoker.MapResolver{}
			subPlanner := smithplanner.New(collaborator.New(), reg, logger.Named("subagent-planner"))
			subCoord := subagent.New(subagent.Config{
				MaxDepth: policy.MaxSubagentDepth,
				Planner:  subPlanner,
				Registry: reg,
				Funcs:    funcs,
				Approval: approval,
				Policy:   policy,
				Logger:   logger,
				Events:   events,
			})
			funcs["subagent.run"] = subCoord.AsToolFunc("")

			orch := orchestration.Build(orchestration.BuildOptions{
				AgentID:  contracts.AgentID(run.ID),
				Registry: reg,
				Funcs:    funcs,
				Approval: approval,
				Policy:   policy,
				Logger:   logger,
				Events:   events,
			})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				select {
				case <-sigCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			runErr := orch.Run(ctx, run)

			switch run.State {
			case contracts.RunCompleted:
				out, _ := json.MarshalIndent(run.FinalOutput, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			case contracts.RunHalted:
				return withExitCode(exitHalted, fmt.Errorf("run %s halted: %w", run.ID, runErr))
			case contracts.RunBlocked:
				return withExitCode(exitBlocked, fmt.Errorf("run %s blocked: %w", run.ID, runErr))
			default:
				return runErr
			}
		},
	}

	cmd.Flags().StringVar(&registryPath, "registry", "", "tool registry descriptor file (required)")
	cmd.Flags().StringVar(&configPath, "config", "", "runtime configuration file (JSON or YAML); overrides the DAG file's embedded policy")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "stream every engine event to stderr, not just final_answer/error")
	cmd.MarkFlagRequired("registry")

	return cmd
}
