package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smith-runtime/smith/api"
	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/collaborator"
	"github.com/smith-runtime/smith/internal/invoker"
	smithplanner "github.com/smith-runtime/smith/internal/planner"
	"github.com/smith-runtime/smith/internal/subagent"
)

func newServeCmd() *cobra.Command {
	var addr string
	var registryPath string
	var auditDir string
	var requireApproval bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP sidecar: POST /api/v1/runs, GET /api/v1/runs/{id}, POST /api/v1/runs/{id}/abort",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(registryPath)
			if err != nil {
				return err
			}

			var approval contracts.ApprovalCallback
			if requireApproval {
				approval = promptApproval
			}

			// Every run built by the API handlers shares this one resolver, so
			// the sub_agent tool is wired once here with an empty parent: each
			// top-level HTTP run is treated as a fresh root delegation.
			funcs := invoker.MapResolver{}
			subPlanner := smithplanner.New(collaborator.New(), reg, logger.Named("subagent-planner"))
			subCoord := subagent.New(subagent.Config{
				Registry: reg,
				Funcs:    funcs,
				Planner:  subPlanner,
				Approval: approval,
				Logger:   logger,
			})
			funcs["subagent.run"] = subCoord.AsToolFunc("")

			server := api.NewServer(addr, api.ServerOptions{
				Registry: reg,
				Funcs:    funcs,
				Approval: approval,
				Logger:   logger.Named("api"),
				AuditDir: auditDir,
			})

			logger.Info("starting sidecar", "addr", addr)

			done := make(chan struct{})
			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				<-sigCh

				logger.Info("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					logger.Error("shutdown error", "error", err)
				}
				close(done)
			}()

			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server error: %w", err)
			}
			<-done
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP server address")
	cmd.Flags().StringVar(&registryPath, "registry", "", "tool registry descriptor file (required)")
	cmd.Flags().StringVar(&auditDir, "audit-dir", "", "directory to write completed-run audit JSON files (empty disables)")
	cmd.Flags().BoolVar(&requireApproval, "require-approval", false, "gate dangerous tools on an interactive stdin approval prompt")
	cmd.MarkFlagRequired("registry")

	return cmd
}
