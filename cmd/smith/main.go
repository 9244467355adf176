// Package main is the smith command-line entry point: plan an utterance into
// a DAG, validate a DAG file's structure, run a DAG to completion, or serve
// the HTTP sidecar — the four ways to drive the runtime from a shell.
//
// Grounded on the teacher's cmd/sidecar and cmd/workflow-client (the
// split between "serve the API" and "drive it from a CLI"), promoted from
// bare flag/log to github.com/spf13/cobra + github.com/hashicorp/go-hclog
// per the expanded ambient stack.
package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var logger hclog.Logger

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "smith",
		Short:         "Deterministic execution runtime for tool-based autonomous workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = hclog.New(&hclog.LoggerOptions{
				Name:  "smith",
				Level: hclog.LevelFromString(logLevel),
			})
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	cmd.AddCommand(newPlanCmd(), newValidateCmd(), newRunCmd(), newServeCmd())
	return cmd
}
