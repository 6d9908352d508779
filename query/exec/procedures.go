package exec

import (
	"iter"

	"github.com/nervusdb/nervusdb/internal/stats"
	"github.com/nervusdb/nervusdb/query/ast"
	"github.com/nervusdb/nervusdb/query/eval"
)

// StatsGraph is implemented by a read-only snapshotGraph (but not a
// txnGraph: an in-flight write transaction has no stable statistics
// snapshot of its own) so db.labels()/db.relationshipTypes()/db.stats() can
// read the interners and Statistics component captured at snapshot time
// without the procedure registry depending on the root package directly
// (spec §4.11 **[EXPANDED]**).
type StatsGraph interface {
	GraphAccess
	LabelNames() iter.Seq[string]
	RelTypeNames() iter.Seq[string]
	Stats() *stats.Stats
	ResolveLabelIDSeq() iter.Seq[uint32]
	ResolveRelTypeIDSeq() iter.Seq[uint32]
}

// procedureFunc is one entry of the built-in registry: given the graph and
// already-evaluated call arguments, it returns the rows the procedure
// yields, each a plain column-name -> Value map in the procedure's own
// output column names (matched against YIELD at call time).
type procedureFunc func(g GraphAccess, args []Value) ([]map[string]Value, error)

// procedures is an ordinary name -> func table, not a plugin system (spec
// §4.11 **[EXPANDED]**): CALL db.stats() needs at least this much of a
// registry to be exercisable and testable at all.
var procedures = map[string]procedureFunc{
	"db.labels":            procDbLabels,
	"db.relationshipTypes": procDbRelTypes,
	"db.stats":             procDbStats,
}

func procDbLabels(g GraphAccess, args []Value) ([]map[string]Value, error) {
	sg, ok := g.(StatsGraph)
	if !ok {
		return nil, nil
	}
	var out []map[string]Value
	for name := range sg.LabelNames() {
		out = append(out, map[string]Value{"label": eval.String(name)})
	}
	return out, nil
}

func procDbRelTypes(g GraphAccess, args []Value) ([]map[string]Value, error) {
	sg, ok := g.(StatsGraph)
	if !ok {
		return nil, nil
	}
	var out []map[string]Value
	for name := range sg.RelTypeNames() {
		out = append(out, map[string]Value{"relationshipType": eval.String(name)})
	}
	return out, nil
}

// procDbStats reports aggregate node/relationship/label/type counts read
// straight from the Statistics component captured at snapshot time (spec
// §4.1, §4.10), as a single summary row.
func procDbStats(g GraphAccess, args []Value) ([]map[string]Value, error) {
	sg, ok := g.(StatsGraph)
	if !ok {
		return []map[string]Value{{
			"nodeCount": eval.Int(0), "relationshipCount": eval.Int(0),
			"labelCount": eval.Int(0), "relationshipTypeCount": eval.Int(0),
		}}, nil
	}
	st := sg.Stats()
	var nodeCount, relCount int64
	var labelCount, relTypeCount int64
	for id := range sg.ResolveLabelIDSeq() {
		nodeCount += st.NodeCount(id)
		labelCount++
	}
	for id := range sg.ResolveRelTypeIDSeq() {
		relCount += st.EdgeCount(id)
		relTypeCount++
	}
	return []map[string]Value{{
		"nodeCount":             eval.Int(nodeCount),
		"relationshipCount":     eval.Int(relCount),
		"labelCount":            eval.Int(labelCount),
		"relationshipTypeCount": eval.Int(relTypeCount),
	}}, nil
}

// procedureCallOp invokes a registered procedure once per input row, then
// emits one output row per result the procedure yields, renamed per Yields
// and merged into the input row's bindings (spec §4.11 CALL ns.name(...)
// YIELD col [AS alias]).
type procedureCallOp struct {
	in      Operator
	name    string
	args    []ast.Expr
	yields  []ast.YieldItem
	graph   GraphAccess
	ctx     *rowCtx
	limiter *limiter

	inRow   Row
	pending []map[string]Value
	ppos    int
}

func (o *procedureCallOp) Next() (Row, bool, error) {
	for {
		if o.ppos < len(o.pending) {
			result := o.pending[o.ppos]
			o.ppos++
			out := o.inRow
			if len(o.yields) == 0 {
				for col, v := range result {
					out = out.With(col, v)
				}
			} else {
				for _, y := range o.yields {
					name := y.Alias
					if name == "" {
						name = y.Column
					}
					out = out.With(name, result[y.Column])
				}
			}
			if err := o.limiter.checkRow(); err != nil {
				return Row{}, false, err
			}
			return out, true, nil
		}
		row, more, err := o.in.Next()
		if err != nil || !more {
			return Row{}, false, err
		}
		o.inRow = row
		fn, ok := procedures[o.name]
		if !ok {
			return Row{}, false, &TypeError{Op: "CALL", Detail: "unknown procedure " + o.name}
		}
		ev := o.ctx.evaluator(row)
		args := make([]Value, len(o.args))
		for i, a := range o.args {
			v, err := ev.Eval(a)
			if err != nil {
				return Row{}, false, err
			}
			args[i] = v
		}
		results, err := fn(o.graph, args)
		if err != nil {
			return Row{}, false, err
		}
		o.pending = results
		o.ppos = 0
	}
}
