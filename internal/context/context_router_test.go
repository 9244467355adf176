package context

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smith-runtime/smith/contracts"
)

func runWithTasks(tasks map[contracts.TaskID]*contracts.Task) *contracts.Run {
	return &contracts.Run{ID: "run-1", Tasks: tasks}
}

func TestContextRouter_Route_StoresOutputUnderDepKey(t *testing.T) {
	router := NewContextRouter()
	run := runWithTasks(map[contracts.TaskID]*contracts.Task{
		"0": {ID: "0"},
		"1": {ID: "1", Inputs: map[string]any{"x": 1}},
	})

	err := router.Route(run, "0", "1", &contracts.TaskResult{Output: "hello"})
	require.NoError(t, err)
	require.Equal(t, "hello", run.Tasks["1"].Inputs[contracts.DepInputKey("0")])
	require.Equal(t, 1, run.Tasks["1"].Inputs["x"])
}

func TestContextRouter_Route_NilOutputStoresNull(t *testing.T) {
	router := NewContextRouter()
	run := runWithTasks(map[contracts.TaskID]*contracts.Task{
		"0": {ID: "0"},
		"1": {ID: "1"},
	})

	err := router.Route(run, "0", "1", nil)
	require.NoError(t, err)
	require.Nil(t, run.Tasks["1"].Inputs[contracts.DepInputKey("0")])
	require.Contains(t, run.Tasks["1"].Inputs, contracts.DepInputKey("0"))
}

func TestContextRouter_Route_CreatesInputsMapWhenNil(t *testing.T) {
	router := NewContextRouter()
	run := runWithTasks(map[contracts.TaskID]*contracts.Task{
		"0": {ID: "0"},
		"1": {ID: "1", Inputs: nil},
	})

	err := router.Route(run, "0", "1", &contracts.TaskResult{Output: "hello"})
	require.NoError(t, err)
	require.Equal(t, "hello", run.Tasks["1"].Inputs[contracts.DepInputKey("0")])
}

func TestContextRouter_Route_NilRunReturnsError(t *testing.T) {
	router := NewContextRouter()
	err := router.Route(nil, "0", "1", &contracts.TaskResult{})
	require.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestContextRouter_Route_SourceTaskNotFound(t *testing.T) {
	router := NewContextRouter()
	run := runWithTasks(map[contracts.TaskID]*contracts.Task{"1": {ID: "1"}})

	err := router.Route(run, "0", "1", &contracts.TaskResult{})
	require.ErrorIs(t, err, contracts.ErrTaskNotFound)
}

func TestContextRouter_Route_TargetTaskNotFound(t *testing.T) {
	router := NewContextRouter()
	run := runWithTasks(map[contracts.TaskID]*contracts.Task{"0": {ID: "0"}})

	err := router.Route(run, "0", "1", &contracts.TaskResult{})
	require.ErrorIs(t, err, contracts.ErrTaskNotFound)
}

func TestContextRouter_Route_MultipleDependenciesCoexist(t *testing.T) {
	router := NewContextRouter()
	run := runWithTasks(map[contracts.TaskID]*contracts.Task{
		"0": {ID: "0"},
		"1": {ID: "1"},
		"2": {ID: "2"},
	})

	require.NoError(t, router.Route(run, "0", "2", &contracts.TaskResult{Output: "a"}))
	require.NoError(t, router.Route(run, "1", "2", &contracts.TaskResult{Output: "b"}))

	require.Equal(t, "a", run.Tasks["2"].Inputs[contracts.DepInputKey("0")])
	require.Equal(t, "b", run.Tasks["2"].Inputs[contracts.DepInputKey("1")])
}
