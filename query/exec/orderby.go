package exec

import (
	"sort"

	"github.com/nervusdb/nervusdb/query/ast"
	"github.com/nervusdb/nervusdb/query/eval"
)

// orderByOp materializes its input and sorts it once, since ORDER BY has
// no streaming physical plan in this executor (spec §4.11). NaN-valued
// floats sort as equal to any number they're compared against, matching
// eval.Compare's documented incomparable treatment.
type orderByOp struct {
	in      Operator
	items   []ast.OrderItem
	ctx     *rowCtx
	limiter *limiter

	rows    []Row
	pos     int
	sorted  bool
}

func (o *orderByOp) materialize() error {
	for {
		row, more, err := o.in.Next()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		o.rows = append(o.rows, row)
		if err := o.limiter.checkCollection(len(o.rows)); err != nil {
			return err
		}
	}
	sort.SliceStable(o.rows, func(i, j int) bool {
		ri, rj := o.rows[i], o.rows[j]
		for _, it := range o.items {
			vi, erri := o.ctx.evaluator(ri).Eval(it.Expr)
			vj, errj := o.ctx.evaluator(rj).Eval(it.Expr)
			if erri != nil || errj != nil {
				continue
			}
			c := eval.Compare(vi, vj)
			if it.Direction == ast.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	o.sorted = true
	return nil
}

func (o *orderByOp) Next() (Row, bool, error) {
	if !o.sorted {
		if err := o.materialize(); err != nil {
			return Row{}, false, err
		}
	}
	if o.pos >= len(o.rows) {
		return Row{}, false, nil
	}
	r := o.rows[o.pos]
	o.pos++
	return r, true, nil
}

// skipOp discards the first N rows; Expr is evaluated once, against an
// empty row, before any input is read (spec §4.11: SKIP/LIMIT take a
// constant or parameter expression, not a per-row one).
type skipOp struct {
	in      Operator
	expr    ast.Expr
	ctx     *rowCtx

	resolved bool
	n        int64
	seen     int64
}

func resolveNonNegativeInt(ctx *rowCtx, e ast.Expr, op string) (int64, error) {
	v, err := ctx.evaluator(eval.NewRow()).Eval(e)
	if err != nil {
		return 0, err
	}
	if v.Kind != eval.KindInt {
		return 0, &TypeError{Op: op, Detail: "expects an Integer"}
	}
	if v.I < 0 {
		return 0, &InvalidArgumentValue{Op: op, Detail: "must be non-negative"}
	}
	return v.I, nil
}

func (o *skipOp) Next() (Row, bool, error) {
	if !o.resolved {
		n, err := resolveNonNegativeInt(o.ctx, o.expr, "SKIP")
		if err != nil {
			return Row{}, false, err
		}
		o.n = n
		o.resolved = true
	}
	for o.seen < o.n {
		_, more, err := o.in.Next()
		if err != nil || !more {
			return Row{}, false, err
		}
		o.seen++
	}
	return o.in.Next()
}

type limitOp struct {
	in      Operator
	expr    ast.Expr
	ctx     *rowCtx

	resolved bool
	n        int64
	emitted  int64
}

func (o *limitOp) Next() (Row, bool, error) {
	if !o.resolved {
		n, err := resolveNonNegativeInt(o.ctx, o.expr, "LIMIT")
		if err != nil {
			return Row{}, false, err
		}
		o.n = n
		o.resolved = true
	}
	if o.emitted >= o.n {
		return Row{}, false, nil
	}
	row, more, err := o.in.Next()
	if err != nil || !more {
		return Row{}, false, err
	}
	o.emitted++
	return row, true, nil
}

// distinctOp dedups rows by the fingerprint of their full column set (spec
// §4.11).
type distinctOp struct {
	in   Operator
	seen map[string]struct{}
}

func (o *distinctOp) Next() (Row, bool, error) {
	if o.seen == nil {
		o.seen = map[string]struct{}{}
	}
	for {
		row, more, err := o.in.Next()
		if err != nil || !more {
			return Row{}, false, err
		}
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
		return row, true, nil
	}
}
