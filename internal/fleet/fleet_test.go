package fleet

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/agentstate"
	"github.com/smith-runtime/smith/internal/invoker"
	"github.com/smith-runtime/smith/internal/planner"
	"github.com/smith-runtime/smith/internal/registry"
	"github.com/smith-runtime/smith/internal/subagent"
)

type scriptedCollaborator struct {
	decompose string
	aggregate string
}

func (s *scriptedCollaborator) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "Synthesize") {
		return s.aggregate, nil
	}
	return s.decompose, nil
}

func testRegistry() contracts.Registry {
	reg := registry.New()
	reg = registry.Register(reg, contracts.ToolDescriptor{
		Name:       "echo",
		FunctionID: "tools.echo",
		Parameters: map[string]contracts.ParamSpec{"text": {Type: "string", Required: true}},
		Required:   []string{"text"},
	})
	return reg
}

func echoFunc(ctx context.Context, inputs map[string]any) (any, error) {
	return inputs["text"], nil
}

func newSubagentCoordinator() *subagent.Coordinator {
	valid := `{"status":"success","nodes":[
		{"id":0,"tool":"echo","function":"tools.echo","inputs":{"text":"ok"},"depends_on":[],"retry":0,"timeout":5,"on_fail":"halt","metadata":{"purpose":"x"}}
	],"final_output_node":0}`

	reg := testRegistry()
	return subagent.New(subagent.Config{
		MaxDepth: 3,
		Planner:  planner.New(&staticCollaborator{response: valid}, reg, nil),
		Registry: reg,
		Funcs:    invoker.MapResolver{"tools.echo": echoFunc},
		Policy:   contracts.RunPolicy{MaxConcurrentTools: 1},
		States:   agentstate.New(),
	})
}

type staticCollaborator struct {
	response string
}

func (s *staticCollaborator) Complete(ctx context.Context, prompt string) (string, error) {
	return s.response, nil
}

func TestCoordinator_RunAggregatesPeerResults(t *testing.T) {
	c := New(Config{
		MaxFleetSize: 5,
		Collaborator: &scriptedCollaborator{
			decompose: `["sub-task one", "sub-task two"]`,
			aggregate: "synthesized answer",
		},
		Subagent: newSubagentCoordinator(),
		States:   agentstate.New(),
	})

	out, err := c.Run(context.Background(), "research X", 2, "auto")
	require.NoError(t, err)
	require.Equal(t, "synthesized answer", out)
}

func TestCoordinator_RunRejectsOversizedFleet(t *testing.T) {
	c := New(Config{MaxFleetSize: 2, Collaborator: &scriptedCollaborator{}, Subagent: newSubagentCoordinator()})

	_, err := c.Run(context.Background(), "goal", 5, "auto")
	require.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestDecompose_FallsBackOnUnparsableResponse(t *testing.T) {
	c := New(Config{
		Collaborator: &scriptedCollaborator{decompose: "not json"},
		Subagent:     newSubagentCoordinator(),
	})

	subtasks := c.decompose(context.Background(), "build a thing", 3, "auto")
	require.Len(t, subtasks, 3)
	require.Equal(t, "build a thing - Part 1/3", subtasks[0])
}
