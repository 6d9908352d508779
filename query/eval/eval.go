package eval

import (
	"fmt"

	"github.com/nervusdb/nervusdb/query/ast"
)

// Evaluator evaluates one Expr against one bound Row. It is cheap to
// construct — query/exec builds a fresh Evaluator per row rather than
// mutating a shared one, keeping operators free of evaluator-side state.
type Evaluator struct {
	Graph  Graph
	Row    Row
	Params map[string]Value

	// PatternExists, when non-nil, lets EXISTS{pattern} delegate to the
	// executor's pattern-matching machinery instead of duplicating it here;
	// nil means EXISTS{pattern} is rejected with an error, which is the
	// correct behavior for evaluators used outside a full query context
	// (e.g. index predicate evaluation). Eval always rejects pattern
	// comprehensions with an error, whether or not this is set.
	PatternExists func(p *ast.Pattern, row Row) (bool, error)
}

// New builds an Evaluator. params may be nil.
func New(g Graph, row Row, params map[string]Value) *Evaluator {
	return &Evaluator{Graph: g, Row: row, Params: params}
}

// Eval evaluates e to a Value, applying Cypher's three-valued-logic and
// null-propagation rules throughout (spec §4.12).
func (ev *Evaluator) Eval(e ast.Expr) (Value, error) {
	switch n := e.(type) {
	case ast.Literal:
		return literalValue(n.Value), nil

	case ast.Variable:
		v, ok := ev.Row.Get(n.Name)
		if !ok {
			return Null, fmt.Errorf("eval: unbound variable %q", n.Name)
		}
		return v, nil

	case ast.Parameter:
		v, ok := ev.Params[n.Name]
		if !ok {
			return Null, nil
		}
		return v, nil

	case ast.PropertyAccess:
		target, err := ev.Eval(n.Target)
		if err != nil {
			return Null, err
		}
		return ev.propertyAccess(target, n.Key)

	case ast.BinaryExpr:
		return ev.evalBinary(n)

	case ast.UnaryExpr:
		return ev.evalUnary(n)

	case ast.LabelCheck:
		target, err := ev.Eval(n.Target)
		if err != nil {
			return Null, err
		}
		if target.IsNull() {
			return Null, nil
		}
		if target.Kind != KindNode {
			return Null, fmt.Errorf("eval: label check requires a Node, got %s", target.TypeName())
		}
		labelID, ok := ev.Graph.ResolveLabelID(n.Label)
		if !ok {
			return Bool(false), nil
		}
		for _, id := range ev.Graph.Labels(target.Node) {
			if id == labelID {
				return Bool(true), nil
			}
		}
		return Bool(false), nil

	case ast.FunctionCall:
		args := make([]Value, len(n.Args))
		for i, a := range n.Args {
			v, err := ev.Eval(a)
			if err != nil {
				return Null, err
			}
			args[i] = v
		}
		return ev.callFunction(n.Name, args)

	case ast.CaseExpr:
		return ev.evalCase(n)

	case ast.ListLiteral:
		out := make([]Value, len(n.Items))
		for i, it := range n.Items {
			v, err := ev.Eval(it)
			if err != nil {
				return Null, err
			}
			out[i] = v
		}
		return List(out), nil

	case ast.MapLiteral:
		m := make(map[string]Value, len(n.Keys))
		for i, k := range n.Keys {
			v, err := ev.Eval(n.Values[i])
			if err != nil {
				return Null, err
			}
			m[k] = v
		}
		return NewMap(append([]string(nil), n.Keys...), m), nil

	case ast.ListComprehension:
		return ev.evalListComprehension(n)

	case ast.QuantifierExpr:
		return ev.evalQuantifier(n)

	case ast.Subscript:
		return ev.evalSubscript(n)

	case ast.ExistsExpr:
		if n.Pattern == nil || ev.PatternExists == nil {
			return Null, fmt.Errorf("eval: EXISTS{pattern} requires executor-level pattern matching")
		}
		ok, err := ev.PatternExists(n.Pattern, ev.Row)
		if err != nil {
			return Null, err
		}
		return Bool(ok), nil

	case ast.PatternComprehension:
		return Null, fmt.Errorf("eval: pattern comprehensions are evaluated by the executor, not directly")
	}
	return Null, fmt.Errorf("eval: unsupported expression %T", e)
}

func literalValue(lv ast.LiteralValue) Value {
	switch lv.Kind {
	case ast.LitNull:
		return Null
	case ast.LitBool:
		return Bool(lv.Bool)
	case ast.LitInt:
		return Int(lv.Int)
	case ast.LitFloat:
		return Float(lv.Float)
	case ast.LitString:
		return String(lv.Str)
	}
	return Null
}

func (ev *Evaluator) propertyAccess(target Value, key string) (Value, error) {
	switch target.Kind {
	case KindNull:
		return Null, nil
	case KindNode:
		v, ok, err := ev.Graph.NodeProperty(target.Node, key)
		if err != nil {
			return Null, err
		}
		if !ok {
			return Null, nil
		}
		return FromStorage(v), nil
	case KindEdge:
		v, ok, err := ev.Graph.EdgeProperty(target.Edge, key)
		if err != nil {
			return Null, err
		}
		if !ok {
			return Null, nil
		}
		return FromStorage(v), nil
	case KindMap:
		v, ok := target.Map[key]
		if !ok {
			return Null, nil
		}
		return v, nil
	}
	return Null, fmt.Errorf("eval: cannot access property %q on %s", key, target.TypeName())
}

func (ev *Evaluator) evalUnary(n ast.UnaryExpr) (Value, error) {
	v, err := ev.Eval(n.Operand)
	if err != nil {
		return Null, err
	}
	switch n.Op {
	case ast.OpNeg:
		if v.IsNull() {
			return Null, nil
		}
		switch v.Kind {
		case KindInt:
			return Int(-v.I), nil
		case KindFloat:
			return Float(-v.F), nil
		}
		return Null, fmt.Errorf("eval: unary minus requires a numeric operand, got %s", v.TypeName())
	case ast.OpNot:
		return notThreeValued(v), nil
	case ast.OpIsNull:
		return Bool(v.IsNull()), nil
	case ast.OpIsNotNull:
		return Bool(!v.IsNull()), nil
	}
	return Null, fmt.Errorf("eval: unknown unary operator")
}

// notThreeValued implements Kleene NOT: not(null) = null.
func notThreeValued(v Value) Value {
	if v.IsNull() {
		return Null
	}
	return Bool(!v.B)
}

func (ev *Evaluator) evalCase(n ast.CaseExpr) (Value, error) {
	var test Value
	var hasTest bool
	if n.Test != nil {
		v, err := ev.Eval(n.Test)
		if err != nil {
			return Null, err
		}
		test, hasTest = v, true
	}
	for _, alt := range n.Alternatives {
		if hasTest {
			whenVal, err := ev.Eval(alt.When)
			if err != nil {
				return Null, err
			}
			if !test.Equal(whenVal) {
				continue
			}
		} else {
			cond, err := ev.Eval(alt.When)
			if err != nil {
				return Null, err
			}
			if cond.IsNull() || !cond.B {
				continue
			}
		}
		return ev.Eval(alt.Then)
	}
	if n.Else != nil {
		return ev.Eval(n.Else)
	}
	return Null, nil
}

func (ev *Evaluator) evalListComprehension(n ast.ListComprehension) (Value, error) {
	listVal, err := ev.Eval(n.List)
	if err != nil {
		return Null, err
	}
	if listVal.IsNull() {
		return Null, nil
	}
	if listVal.Kind != KindList {
		return Null, fmt.Errorf("eval: list comprehension requires a List, got %s", listVal.TypeName())
	}
	var out []Value
	for _, item := range listVal.List {
		inner := ev.Row.With(n.Variable, item)
		if n.Where != nil {
			sub := &Evaluator{Graph: ev.Graph, Row: inner, Params: ev.Params, PatternExists: ev.PatternExists}
			cond, err := sub.Eval(n.Where)
			if err != nil {
				return Null, err
			}
			if cond.IsNull() || !cond.B {
				continue
			}
		}
		if n.Project != nil {
			sub := &Evaluator{Graph: ev.Graph, Row: inner, Params: ev.Params, PatternExists: ev.PatternExists}
			v, err := sub.Eval(n.Project)
			if err != nil {
				return Null, err
			}
			out = append(out, v)
		} else {
			out = append(out, item)
		}
	}
	return List(out), nil
}

func (ev *Evaluator) evalQuantifier(n ast.QuantifierExpr) (Value, error) {
	listVal, err := ev.Eval(n.List)
	if err != nil {
		return Null, err
	}
	if listVal.IsNull() {
		return Null, nil
	}
	if listVal.Kind != KindList {
		return Null, fmt.Errorf("eval: quantifier requires a List, got %s", listVal.TypeName())
	}
	matched := 0
	anyNull := false
	for _, item := range listVal.List {
		inner := ev.Row.With(n.Variable, item)
		sub := &Evaluator{Graph: ev.Graph, Row: inner, Params: ev.Params, PatternExists: ev.PatternExists}
		cond, err := sub.Eval(n.Where)
		if err != nil {
			return Null, err
		}
		if cond.IsNull() {
			anyNull = true
			continue
		}
		if cond.B {
			matched++
		}
	}
	total := len(listVal.List)
	switch n.Kind {
	case ast.QuantAny:
		if matched > 0 {
			return Bool(true), nil
		}
		if anyNull {
			return Null, nil
		}
		return Bool(false), nil
	case ast.QuantAll:
		if matched == total {
			return Bool(true), nil
		}
		if anyNull {
			return Null, nil
		}
		return Bool(false), nil
	case ast.QuantNone:
		if matched > 0 {
			return Bool(false), nil
		}
		if anyNull {
			return Null, nil
		}
		return Bool(true), nil
	case ast.QuantSingle:
		return Bool(matched == 1), nil
	}
	return Null, fmt.Errorf("eval: unknown quantifier kind")
}

func (ev *Evaluator) evalSubscript(n ast.Subscript) (Value, error) {
	target, err := ev.Eval(n.Target)
	if err != nil {
		return Null, err
	}
	if target.IsNull() {
		return Null, nil
	}
	if n.Index != nil {
		idxVal, err := ev.Eval(n.Index)
		if err != nil {
			return Null, err
		}
		if idxVal.IsNull() {
			return Null, nil
		}
		if target.Kind == KindMap {
			if idxVal.Kind != KindString {
				return Null, fmt.Errorf("eval: map subscript requires a String key")
			}
			v, ok := target.Map[idxVal.S]
			if !ok {
				return Null, nil
			}
			return v, nil
		}
		if target.Kind != KindList {
			return Null, fmt.Errorf("eval: subscript requires a List or Map, got %s", target.TypeName())
		}
		if !idxVal.IsNumeric() {
			return Null, fmt.Errorf("eval: list subscript requires an Integer index")
		}
		idx := int(idxVal.AsFloat())
		if idx < 0 {
			idx += len(target.List)
		}
		if idx < 0 || idx >= len(target.List) {
			return Null, nil
		}
		return target.List[idx], nil
	}
	if target.Kind != KindList {
		return Null, fmt.Errorf("eval: slice requires a List, got %s", target.TypeName())
	}
	from, to := 0, len(target.List)
	if n.From != nil {
		fv, err := ev.Eval(n.From)
		if err != nil {
			return Null, err
		}
		if !fv.IsNull() {
			from = clampSliceIndex(int(fv.AsFloat()), len(target.List))
		}
	}
	if n.To != nil {
		tv, err := ev.Eval(n.To)
		if err != nil {
			return Null, err
		}
		if !tv.IsNull() {
			to = clampSliceIndex(int(tv.AsFloat()), len(target.List))
		}
	}
	if from > to {
		return List(nil), nil
	}
	return List(append([]Value(nil), target.List[from:to]...)), nil
}

func clampSliceIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
