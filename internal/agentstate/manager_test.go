package agentstate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smith-runtime/smith/contracts"
)

func TestCreate_RootAgentHasDepthZero(t *testing.T) {
	m := New()
	root := m.Create("root task", "", 1)

	state, ok := m.Get(root)
	require.True(t, ok)
	require.Equal(t, 0, state.Depth)
	require.Nil(t, state.ParentID)
}

func TestCreate_ChildDepthIsParentPlusOne(t *testing.T) {
	m := New()
	root := m.Create("root", "", 1)
	child := m.Create("child", root, 2)

	state, ok := m.Get(child)
	require.True(t, ok)
	require.Equal(t, 1, state.Depth)
	require.NotNil(t, state.ParentID)
	require.Equal(t, root, *state.ParentID)

	rootState, _ := m.Get(root)
	require.Contains(t, rootState.Children, child)
}

func TestUpdateStatus_SetsEndedAtOnlyForTerminalStates(t *testing.T) {
	m := New()
	id := m.Create("task", "", 1)

	m.UpdateStatus(id, contracts.AgentRunning, nil, "", 2)
	state, _ := m.Get(id)
	require.Equal(t, contracts.Timestamp(0), state.EndedAt)

	m.UpdateStatus(id, contracts.AgentCompleted, "result", "", 3)
	state, _ = m.Get(id)
	require.Equal(t, contracts.Timestamp(3), state.EndedAt)
	require.Equal(t, "result", state.Result)
}

func TestPrune_RemovesAgentAndAllDescendants(t *testing.T) {
	m := New()
	root := m.Create("root", "", 1)
	childA := m.Create("a", root, 1)
	childB := m.Create("b", root, 1)
	grandchild := m.Create("c", childA, 1)

	m.Prune(root)

	_, ok := m.Get(root)
	require.False(t, ok)
	_, ok = m.Get(childA)
	require.False(t, ok)
	_, ok = m.Get(childB)
	require.False(t, ok)
	_, ok = m.Get(grandchild)
	require.False(t, ok)
}

func TestStats_AggregatesAcrossTree(t *testing.T) {
	m := New()
	root := m.Create("root", "", 1)
	child := m.Create("child", root, 1)
	m.UpdateStatus(root, contracts.AgentRunning, nil, "", 1)
	m.UpdateStatus(child, contracts.AgentCompleted, "done", "", 2)

	stats := m.Stats()
	require.Equal(t, 2, stats.TotalAgents)
	require.Equal(t, 1, stats.RootAgents)
	require.Equal(t, 1, stats.ActiveAgents)
	require.Equal(t, 1, stats.ByStatus["running"])
	require.Equal(t, 1, stats.ByStatus["completed"])
}

func TestDepthOf_ReturnsParentDepthForBoundChecking(t *testing.T) {
	m := New()
	root := m.Create("root", "", 1)
	child := m.Create("child", root, 1)

	require.Equal(t, 0, m.DepthOf(root))
	require.Equal(t, 1, m.DepthOf(child))
}
