package contracts

import "fmt"

// DepInputKey is the input-map key a dependency's routed output is stored
// under on its dependent's Task.Inputs. ContextRouter writes it once a
// dependency terminates; the Tool Invoker reads it like any other input.
func DepInputKey(depID TaskID) string {
	return fmt.Sprintf("$dep:%s", depID)
}
