package exec

import (
	"github.com/nervusdb/nervusdb/query/ast"
	"github.com/nervusdb/nervusdb/query/eval"
)

// rowCtx bundles what every expression-evaluating operator needs to build
// an Evaluator per row: the graph it reads through, query parameters, and
// (when running inside a larger statement) a pattern-existence callback
// for EXISTS{pattern}. The evaluator rejects pattern comprehensions with an
// error whether or not the callback is set.
type rowCtx struct {
	graph         eval.Graph
	params        map[string]Value
	patternExists func(p *ast.Pattern, row Row) (bool, error)
}

func (c *rowCtx) evaluator(row Row) *eval.Evaluator {
	ev := eval.New(c.graph, row, c.params)
	ev.PatternExists = c.patternExists
	return ev
}

// filterOp drops rows whose predicate does not evaluate to true (Cypher's
// three-valued WHERE: null and false both exclude).
type filterOp struct {
	in        Operator
	predicate ast.Expr
	ctx       *rowCtx
	limiter   *limiter
}

func (o *filterOp) Next() (Row, bool, error) {
	for {
		row, more, err := o.in.Next()
		if err != nil || !more {
			return Row{}, false, err
		}
		v, err := o.ctx.evaluator(row).Eval(o.predicate)
		if err != nil {
			return Row{}, false, err
		}
		if v.IsNull() || !v.B {
			continue
		}
		if err := o.limiter.checkRow(); err != nil {
			return Row{}, false, err
		}
		return row, true, nil
	}
}

// projectOp rewrites each input row into exactly the named output columns
// (spec §4.11 RETURN/WITH projection).
type projectOp struct {
	in      Operator
	columns []columnExpr
	ctx     *rowCtx
	limiter *limiter
}

type columnExpr struct {
	Expr  ast.Expr
	Alias string
}

func (o *projectOp) Next() (Row, bool, error) {
	row, more, err := o.in.Next()
	if err != nil || !more {
		return Row{}, false, err
	}
	ev := o.ctx.evaluator(row)
	out := eval.NewRow()
	for _, c := range o.columns {
		v, err := ev.Eval(c.Expr)
		if err != nil {
			return Row{}, false, err
		}
		out = out.With(c.Alias, v)
	}
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return out, true, nil
}

// expandExprOp evaluates Expr once per input row and binds its result to
// As, keeping every other column (spec §4.10's Expand node — a generic
// single-column computed binding, distinct from MatchExpand's pattern
// traversal).
type expandExprOp struct {
	in      Operator
	expr    ast.Expr
	as      string
	ctx     *rowCtx
	limiter *limiter
}

func (o *expandExprOp) Next() (Row, bool, error) {
	row, more, err := o.in.Next()
	if err != nil || !more {
		return Row{}, false, err
	}
	v, err := o.ctx.evaluator(row).Eval(o.expr)
	if err != nil {
		return Row{}, false, err
	}
	row = row.With(o.as, v)
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// unwindOp expands a list-valued expression into one output row per
// element, keeping the parent row's other bindings (spec §4.11). A
// non-list, non-null value is treated as a single-element list (Cypher's
// UNWIND semantics); null expands to zero rows.
type unwindOp struct {
	in      Operator
	expr    ast.Expr
	alias   string
	ctx     *rowCtx
	limiter *limiter

	pending []eval.Value
	base    Row
	ppos    int
}

func (o *unwindOp) Next() (Row, bool, error) {
	for {
		if o.ppos < len(o.pending) {
			v := o.pending[o.ppos]
			o.ppos++
			if err := o.limiter.checkRow(); err != nil {
				return Row{}, false, err
			}
			return o.base.With(o.alias, v), true, nil
		}
		row, more, err := o.in.Next()
		if err != nil || !more {
			return Row{}, false, err
		}
		v, err := o.ctx.evaluator(row).Eval(o.expr)
		if err != nil {
			return Row{}, false, err
		}
		o.base = row
		o.ppos = 0
		switch {
		case v.IsNull():
			o.pending = nil
		case v.Kind == eval.KindList:
			if err := o.limiter.checkCollection(len(v.List)); err != nil {
				return Row{}, false, err
			}
			o.pending = v.List
		default:
			o.pending = []eval.Value{v}
		}
	}
}
