package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smith-runtime/smith/api"
	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/orchestration"
)

func newValidateCmd() *cobra.Command {
	var registryPath string

	cmd := &cobra.Command{
		Use:   "validate <dag.json>",
		Short: "Structurally validate a DAG file (acyclic, final node reachable, tools registered) without executing it",
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

			tasks := make([]contracts.Task, len(req.Tasks))
			for i, dto := range req.Tasks {
				tasks[i] = *dto.ToTask()
			}

			resolver := orchestration.NewDependencyResolver()
			dag, err := resolver.BuildDAG(tasks, contracts.TaskID(req.FinalOutputNode))
			if err != nil {
				return fmt.Errorf("building DAG: %w", err)
			}

			var reg contracts.Registry
			if registryPath != "" {
				reg, err = loadRegistry(registryPath)
				if err != nil {
					return err
				}
			}

			if err := resolver.Validate(dag, reg); err != nil {
				return fmt.Errorf("invalid DAG: %w", err)
			}

			if reg != nil {
				for _, task := range tasks {
					if _, ok := reg.Lookup(task.Tool); !ok {
						return fmt.Errorf("task %s: tool %q is not registered: %w", task.ID, task.Tool, contracts.ErrToolNotFound)
					}
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "valid: %d nodes, final_output_node=%s\n", len(dag.Nodes), dag.FinalOutputNode)
			return nil
		},
	}

	cmd.Flags().StringVar(&registryPath, "registry", "", "tool registry descriptor file (optional; when set, also checks every task's tool is registered)")

	return cmd
}
