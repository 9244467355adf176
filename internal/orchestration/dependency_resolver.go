package orchestration

import (
	"fmt"

	"github.com/smith-runtime/smith/contracts"
)

// dependencyResolver implements contracts.DependencyResolver. BuildDAG
// rejects missing dependencies and a missing final_output_node; Validate
// checks a built DAG for an existing final_output_node and for cycles. Neither
// looks tools up in a registry.
//
// The implementation uses depth-first search with color marking to detect
// cycles. The Planner runs its own cycle check with
// github.com/philopon/go-toposort pre-execution; this pass is the
// Orchestrator's own defense-in-depth check immediately before a run starts.
//
// Thread-safety: the resolver is stateless and thread-safe.
type dependencyResolver struct{}

// NewDependencyResolver creates a new DependencyResolver.
func NewDependencyResolver() contracts.DependencyResolver {
	return &dependencyResolver{}
}

// BuildDAG constructs a DAG from a list of tasks and a final output node id.
func (dr *dependencyResolver) BuildDAG(tasks []contracts.Task, finalOutputNode contracts.TaskID) (*contracts.DAG, error) {
	if tasks == nil {
		return nil, contracts.ErrInvalidInput
	}

	if len(tasks) == 0 {
		return &contracts.DAG{
			Nodes:           make(map[contracts.TaskID]*contracts.DAGNode),
			Edges:           make(map[contracts.TaskID][]contracts.TaskID),
			FinalOutputNode: finalOutputNode,
		}, nil
	}

	dag := &contracts.DAG{
		Nodes:           make(map[contracts.TaskID]*contracts.DAGNode),
		Edges:           make(map[contracts.TaskID][]contracts.TaskID),
		FinalOutputNode: finalOutputNode,
	}

	taskIDSet := make(map[contracts.TaskID]bool)
	for i := range tasks {
		taskIDSet[tasks[i].ID] = true
	}

	for i := range tasks {
		task := &tasks[i]
		if task.Deps != nil && containsID(task.Deps, task.ID) {
			return nil, fmt.Errorf("task %s depends on itself: %w", task.ID, contracts.ErrDAGInvalid)
		}
		node := &contracts.DAGNode{
			ID:      task.ID,
			Deps:    append([]contracts.TaskID(nil), task.Deps...),
			Next:    []contracts.TaskID{},
			Pending: len(task.Deps),
		}
		dag.Nodes[task.ID] = node
	}

	for i := range tasks {
		task := &tasks[i]
		for _, depID := range task.Deps {
			if !taskIDSet[depID] {
				return nil, fmt.Errorf("task %s depends on %s which is not found: %w", task.ID, depID, contracts.ErrDepNotFound)
			}
			dag.Edges[depID] = append(dag.Edges[depID], task.ID)
			dag.Nodes[depID].Next = append(dag.Nodes[depID].Next, task.ID)
		}
		if _, exists := dag.Edges[task.ID]; !exists {
			dag.Edges[task.ID] = []contracts.TaskID{}
		}
	}

	if !taskIDSet[finalOutputNode] {
		return nil, fmt.Errorf("final_output_node %s does not exist: %w", finalOutputNode, contracts.ErrDAGInvalid)
	}

	return dag, nil
}

// Validate checks the DAG for cycles and a valid final_output_node; missing
// dependencies are rejected earlier, by BuildDAG. registry is accepted for interface symmetry with the
// Planner's validation pass (§4.5), which performs the actual
// tool-existence check against per-node Task data the bare DAG adjacency
// structure does not retain; Validate accepts nil here.
func (dr *dependencyResolver) Validate(dag *contracts.DAG, registry contracts.Registry) error {
	if dag == nil {
		return contracts.ErrInvalidInput
	}
	if dag.Nodes == nil {
		return fmt.Errorf("DAG has nil Nodes: %w", contracts.ErrDAGInvalid)
	}
	if len(dag.Nodes) == 0 {
		return nil
	}

	if _, ok := dag.Nodes[dag.FinalOutputNode]; !ok {
		return fmt.Errorf("final_output_node %s does not exist: %w", dag.FinalOutputNode, contracts.ErrDAGInvalid)
	}

	colors := make(map[contracts.TaskID]int)
	for taskID := range dag.Nodes {
		colors[taskID] = 0
	}
	for taskID := range dag.Nodes {
		if colors[taskID] == 0 {
			if hasCycle(taskID, colors, dag) {
				return contracts.ErrDAGCycle
			}
		}
	}

	return nil
}

func containsID(ids []contracts.TaskID, target contracts.TaskID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

// hasCycle performs DFS to detect cycles, following forward (Next) edges.
// Colors: white=0 (unvisited), gray=1 (visiting), black=2 (visited).
func hasCycle(node contracts.TaskID, colors map[contracts.TaskID]int, dag *contracts.DAG) bool {
	colors[node] = 1

	dagNode, exists := dag.Nodes[node]
	if !exists {
		return false
	}

	for _, nextID := range dagNode.Next {
		switch colors[nextID] {
		case 1:
			return true
		case 0:
			if hasCycle(nextID, colors, dag) {
				return true
			}
		}
	}

	colors[node] = 2
	return false
}
