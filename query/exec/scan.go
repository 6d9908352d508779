package exec

import (
	"github.com/nervusdb/nervusdb/query/ast"
	"github.com/nervusdb/nervusdb/query/eval"
)

// returnOneOp implements the degenerate `RETURN 1`-style query body with no
// preceding MATCH: exactly one empty row, then exhausted.
type returnOneOp struct{ done bool }

func (o *returnOneOp) Next() (Row, bool, error) {
	if o.done {
		return Row{}, false, nil
	}
	o.done = true
	return eval.NewRow(), true, nil
}

// valuesOp emits one row per literal row map, evaluated against no input
// (used for VALUES-style inline row lists).
type valuesOp struct {
	rows []map[string]ast.Expr
	pos  int
	params map[string]Value
	graph  eval.Graph
}

func (o *valuesOp) Next() (Row, bool, error) {
	if o.pos >= len(o.rows) {
		return Row{}, false, nil
	}
	row := eval.NewRow()
	ev := eval.New(o.graph, row, o.params)
	for name, expr := range o.rows[o.pos] {
		v, err := ev.Eval(expr)
		if err != nil {
			return Row{}, false, err
		}
		row = row.With(name, v)
	}
	o.pos++
	return row, true, nil
}

// nodeScanOp enumerates every live node, optionally filtered to those
// carrying Label, and binds each to Alias (spec §4.10/§4.11).
type nodeScanOp struct {
	graph GraphAccess
	alias string
	label string

	labelID   uint32
	hasLabel  bool
	nodes     []uint32
	pos       int
	started   bool
	limiter   *limiter
}

func (o *nodeScanOp) Next() (Row, bool, error) {
	if !o.started {
		o.started = true
		if o.label != "" {
			id, ok := o.graph.ResolveLabelID(o.label)
			o.hasLabel = ok
			o.labelID = id
		}
		o.graph.ForEachNode(func(n uint32) bool {
			if o.hasLabel {
				found := false
				for _, l := range o.graph.Labels(n) {
					if l == o.labelID {
						found = true
						break
					}
				}
				if !found {
					return true
				}
			} else if o.label != "" {
				// label named in the pattern was never interned: no node
				// can carry it.
				return true
			}
			o.nodes = append(o.nodes, n)
			return true
		})
	}
	if o.pos >= len(o.nodes) {
		return Row{}, false, nil
	}
	n := o.nodes[o.pos]
	o.pos++
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return eval.NewRow().With(o.alias, eval.NodeVal(n)), true, nil
}

// indexSeekOp probes a secondary index for nodes carrying Label with
// Property == value, falling back to Fallback's full scan when the lookup
// key itself cannot be evaluated to a concrete, indexable value (spec
// §4.10's index-selection hook is advisory: the planner can propose an
// IndexSeek, but execution always has a safe scan fallback).
//
// This engine's B+tree/HNSW index implementations are outside this
// package; indexSeekOp therefore always defers to its Fallback operator.
// It exists as a plan node and executor shape so a future index-backed
// Catalog can be wired in without changing the plan/exec contract.
type indexSeekOp struct {
	fallback Operator
}

func (o *indexSeekOp) Next() (Row, bool, error) { return o.fallback.Next() }
