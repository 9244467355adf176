package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/registry"
	"github.com/smith-runtime/smith/internal/subagent"
)

// loadRegistry loads the tool-descriptor file at path and registers the
// reserved sub_agent tool alongside it, so every command sees the same
// catalog the Orchestrator's Tool Invoker will.
func loadRegistry(path string) (contracts.Registry, error) {
	reg, err := registry.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading tool registry %s: %w", path, err)
	}
	return registry.Register(reg, subagent.Descriptor()), nil
}

// promptApproval is the interactive ApprovalCallback a terminal session
// uses when require_approval is set: it prints the dangerous task and
// blocks on a y/n answer from stdin.
func promptApproval(ctx context.Context, task *contracts.Task) (bool, error) {
	fmt.Fprintf(os.Stderr, "approval required: task %s calls dangerous tool %s with inputs %v\napprove? [y/N] ", task.ID, task.Tool, task.Inputs)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading approval answer: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
