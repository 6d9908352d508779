package exec

import (
	"fmt"

	"github.com/nervusdb/nervusdb/query/eval"
)

// Row and Value are the executor's row/scalar types, aliased from
// query/eval so operator signatures don't need a package-qualified name
// on every line.
type Row = eval.Row
type Value = eval.Value

// TypeError is raised when an operator receives a binding of the wrong
// kind for the operation requested, e.g. SET on something that is not a
// Node or Relationship (spec §7).
type TypeError struct {
	Op     string
	Detail string
}

func (e *TypeError) Error() string { return fmt.Sprintf("exec: %s: %s", e.Op, e.Detail) }

// InvalidArgumentValue is raised when an argument is the right type but an
// invalid value, e.g. a negative SKIP/LIMIT (spec §7).
type InvalidArgumentValue struct {
	Op     string
	Detail string
}

func (e *InvalidArgumentValue) Error() string { return fmt.Sprintf("exec: %s: %s", e.Op, e.Detail) }
