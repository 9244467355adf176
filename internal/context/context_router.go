package context

import (
	"github.com/smith-runtime/smith/contracts"
)

// contextRouter implements contracts.ContextRouter: it writes a terminated
// node's output into each dependent's Inputs map, keyed by DepInputKey. This
// is the sole mechanism by which a node's output reaches a dependent — nodes
// never reference each other via textual placeholder at execution time
// (placeholders are rejected outright at planning time).
type contextRouter struct{}

// NewContextRouter creates a new ContextRouter.
func NewContextRouter() contracts.ContextRouter {
	return &contextRouter{}
}

// Route stores from's output on to's Inputs map. output is nil when from
// terminated non-successfully under on_fail=continue — the dependent
// receives a null value rather than a missing key, per the chosen
// resolution to the data model's Open Question on continue-policy
// dependency consumption.
func (cr *contextRouter) Route(run *contracts.Run, from contracts.TaskID, to contracts.TaskID, output *contracts.TaskResult) error {
	if run == nil {
		return contracts.ErrInvalidInput
	}
	if _, ok := run.Tasks[from]; !ok {
		return contracts.ErrTaskNotFound
	}
	toTask, ok := run.Tasks[to]
	if !ok {
		return contracts.ErrTaskNotFound
	}

	if toTask.Inputs == nil {
		toTask.Inputs = make(map[string]any)
	}

	var value any
	if output != nil {
		value = output.Output
	}
	toTask.Inputs[contracts.DepInputKey(from)] = value

	return nil
}
