package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/collaborator"
	smithplanner "github.com/smith-runtime/smith/internal/planner"
	"github.com/smith-runtime/smith/internal/telemetry"
)

func newPlanCmd() *cobra.Command {
	var registryPath string
	var model string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "plan <utterance>",
		Short: "Compile a natural-language utterance into a validated DAG and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(registryPath)
			if err != nil {
				return err
			}

			var opts []collaborator.Option
			if model != "" {
				opts = append(opts, collaborator.WithModel(model))
			}
			collab := collaborator.New(opts...)
			p := smithplanner.New(collab, reg, logger.Named("planner"))
			if verbose {
				p.WithEmitter(telemetry.EmitterFunc(func(e telemetry.Event) {
					line, _ := json.Marshal(e)
					fmt.Fprintln(cmd.ErrOrStderr(), string(line))
				}))
			}

			dag, tasks, err := p.Plan(cmd.Context(), args[0])
			if err != nil {
				var plannerErr *smithplanner.Error
				if errors.As(err, &plannerErr) {
					return withExitCode(exitPlannerError, err)
				}
				return err
			}

			out, err := json.MarshalIndent(struct {
				FinalOutputNode string           `json:"final_output_node"`
				Tasks           []contracts.Task `json:"tasks"`
			}{
				FinalOutputNode: string(dag.FinalOutputNode),
				Tasks:           tasks,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&registryPath, "registry", "", "tool registry descriptor file (required)")
	cmd.Flags().StringVar(&model, "model", "", "override the collaborator's default model")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "stream planning/plan_complete telemetry events to stderr")
	cmd.MarkFlagRequired("registry")

	return cmd
}
