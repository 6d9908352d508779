package exec

import (
	"github.com/nervusdb/nervusdb/query/ast"
	"github.com/nervusdb/nervusdb/query/eval"
)

// cartesianProductOp emits every (left, right) row pair; Right is rebuilt
// from its operator factory once per left row since operators are
// single-pass (spec §4.11).
type cartesianProductOp struct {
	left     Operator
	rightGen func() (Operator, error)
	limiter  *limiter

	leftRow Row
	right   Operator
	started bool
}

func (o *cartesianProductOp) Next() (Row, bool, error) {
	for {
		if o.right != nil {
			row, more, err := o.right.Next()
			if err != nil {
				return Row{}, false, err
			}
			if more {
				out := o.leftRow
				for i, n := range row.Names {
					out = out.With(n, row.Values[i])
				}
				if err := o.limiter.checkRow(); err != nil {
					return Row{}, false, err
				}
				return out, true, nil
			}
			o.right = nil
		}
		row, more, err := o.left.Next()
		if err != nil || !more {
			return Row{}, false, err
		}
		o.leftRow = row
		o.right, err = o.rightGen()
		if err != nil {
			return Row{}, false, err
		}
	}
}

// nestedLoopJoinOp is a CartesianProductOp with a correlated predicate
// applied to each candidate pair before it is emitted (spec §4.11).
type nestedLoopJoinOp struct {
	inner     *cartesianProductOp
	predicate ast.Expr
	ctx       *rowCtx
}

func (o *nestedLoopJoinOp) Next() (Row, bool, error) {
	for {
		row, more, err := o.inner.Next()
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
		return row, true, nil
	}
}

// leftOuterJoinOp emits every matching pair, or the left row alone
// (columns from Right bound to null) when nothing on Right satisfies
// Predicate (spec §4.11).
type leftOuterJoinOp struct {
	left      Operator
	rightGen  func() (Operator, error)
	predicate ast.Expr
	rightCols []string
	ctx       *rowCtx
	limiter   *limiter

	leftRow    Row
	right      Operator
	matchedAny bool
}

func (o *leftOuterJoinOp) Next() (Row, bool, error) {
	for {
		if o.right != nil {
			row, more, err := o.right.Next()
			if err != nil {
				return Row{}, false, err
			}
			if more {
				out := o.leftRow
				for i, n := range row.Names {
					out = out.With(n, row.Values[i])
				}
				if o.predicate != nil {
					v, err := o.ctx.evaluator(out).Eval(o.predicate)
					if err != nil {
						return Row{}, false, err
					}
					if v.IsNull() || !v.B {
						continue
					}
				}
				o.matchedAny = true
				if err := o.limiter.checkRow(); err != nil {
					return Row{}, false, err
				}
				return out, true, nil
			}
			unmatched := !o.matchedAny
			o.right = nil
			if unmatched {
				out := o.leftRow
				for _, n := range o.rightCols {
					out = out.With(n, eval.Null)
				}
				return out, true, nil
			}
		}
		row, more, err := o.left.Next()
		if err != nil || !more {
			return Row{}, false, err
		}
		o.leftRow = row
		o.matchedAny = false
		o.right, err = o.rightGen()
		if err != nil {
			return Row{}, false, err
		}
	}
}

// optionalWhereFixupOp implements the planner's optional-match rejoin
// (spec §4.10/§4.11): Filtered is grouped by the binding values Outer
// supplied, and for each Outer row every Filtered row sharing its
// bindings is emitted, or one row with NullAliases nulled if none does.
type optionalWhereFixupOp struct {
	outer       Operator
	filteredGen func() (Operator, error)
	nullAliases []string
	outerCols   []string
	limiter     *limiter

	byKey    map[string][]Row
	pending  []Row
	ppos     int
	started  bool
}

func (o *optionalWhereFixupOp) bindingKey(row Row, cols []string) string {
	var key []byte
	for _, c := range cols {
		v, _ := row.Get(c)
		key = append(key, v.Fingerprint()...)
		key = append(key, 0)
	}
	return string(key)
}

func (o *optionalWhereFixupOp) materialize() error {
	op, err := o.filteredGen()
	if err != nil {
		return err
	}
	o.byKey = map[string][]Row{}
	for {
		row, more, err := op.Next()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		key := o.bindingKey(row, o.outerCols)
		o.byKey[key] = append(o.byKey[key], row)
	}
	o.started = true
	return nil
}

func (o *optionalWhereFixupOp) Next() (Row, bool, error) {
	if !o.started {
		if err := o.materialize(); err != nil {
			return Row{}, false, err
		}
	}
	for {
		if o.ppos < len(o.pending) {
			r := o.pending[o.ppos]
			o.ppos++
			if err := o.limiter.checkRow(); err != nil {
				return Row{}, false, err
			}
			return r, true, nil
		}
		row, more, err := o.outer.Next()
		if err != nil || !more {
			return Row{}, false, err
		}
		key := o.bindingKey(row, o.outerCols)
		if matches, ok := o.byKey[key]; ok && len(matches) > 0 {
			o.pending = matches
		} else {
			r := row
			for _, a := range o.nullAliases {
				r = r.With(a, eval.Null)
			}
			o.pending = []Row{r}
		}
		o.ppos = 0
	}
}

// unionOp chains Left then Right, deduping by fingerprint unless All is
// set (spec §4.11 UNION / UNION ALL).
type unionOp struct {
	left, right Operator
	all         bool
	seen        map[string]struct{}
	onLeft      bool
	started     bool
}

func (o *unionOp) Next() (Row, bool, error) {
	if !o.started {
		o.started = true
		o.onLeft = true
		if !o.all {
			o.seen = map[string]struct{}{}
		}
	}
	for {
		var row Row
		var more bool
		var err error
		if o.onLeft {
			row, more, err = o.left.Next()
			if err != nil {
				return Row{}, false, err
			}
			if !more {
				o.onLeft = false
				continue
			}
		} else {
			row, more, err = o.right.Next()
			if err != nil || !more {
				return Row{}, false, err
			}
		}
		if !o.all {
			var fp []byte
			for _, v := range row.Values {
				fp = append(fp, v.Fingerprint()...)
				fp = append(fp, 0)
			}
			key := string(fp)
			if _, dup := o.seen[key]; dup {
				continue
			}
			o.seen[key] = struct{}{}
		}
		return row, true, nil
	}
}

// applyOp runs Subquery freshly per Input row, with Input's bindings
// visible to the subquery build (correlated subquery join, spec §4.11
// CALL { ... }).
type applyOp struct {
	in       Operator
	subGen   func(row Row) (Operator, error)
	limiter  *limiter

	outerRow Row
	sub      Operator
	innerN   int
}

func (o *applyOp) Next() (Row, bool, error) {
	for {
		if o.sub != nil {
			row, more, err := o.sub.Next()
			if err != nil {
				return Row{}, false, err
			}
			if more {
				o.innerN++
				if err := o.limiter.checkApplyRows(o.innerN); err != nil {
					return Row{}, false, err
				}
				out := o.outerRow
				for i, n := range row.Names {
					out = out.With(n, row.Values[i])
				}
				if err := o.limiter.checkRow(); err != nil {
					return Row{}, false, err
				}
				return out, true, nil
			}
			o.sub = nil
		}
		row, more, err := o.in.Next()
		if err != nil || !more {
			return Row{}, false, err
		}
		o.outerRow = row
		o.innerN = 0
		o.sub, err = o.subGen(row)
		if err != nil {
			return Row{}, false, err
		}
	}
}
