package eval

import (
	"fmt"
	"math"
	"strings"

	"github.com/nervusdb/nervusdb/query/ast"
)

// evalBinary implements every BinaryOp. Arithmetic checks for int64
// overflow and promotes to float64 on overflow rather than wrapping,
// matching the "checked arithmetic with float promotion" rule (spec
// §4.12); comparisons and boolean connectives follow Cypher's
// three-valued (Kleene) logic, where null is absorbing except where And/Or
// short-circuit on a false/true operand first.
func (ev *Evaluator) evalBinary(n ast.BinaryExpr) (Value, error) {
	// And/Or short-circuit before evaluating the right operand so that,
	// e.g., `false AND null` is false rather than null.
	switch n.Op {
	case ast.OpAnd:
		return ev.evalAnd(n.Left, n.Right)
	case ast.OpOr:
		return ev.evalOr(n.Left, n.Right)
	}

	left, err := ev.Eval(n.Left)
	if err != nil {
		return Null, err
	}
	right, err := ev.Eval(n.Right)
	if err != nil {
		return Null, err
	}

	switch n.Op {
	case ast.OpAdd:
		return evalAdd(left, right)
	case ast.OpSub:
		return evalArithmetic(left, right, func(a, b int64) (int64, bool) { return addOverflow(a, -b) }, func(a, b float64) float64 { return a - b })
	case ast.OpMul:
		return evalArithmetic(left, right, mulOverflow, func(a, b float64) float64 { return a * b })
	case ast.OpDiv:
		return evalDiv(left, right)
	case ast.OpMod:
		return evalMod(left, right)
	case ast.OpPow:
		return evalPow(left, right)
	case ast.OpEq:
		return evalEq(left, right, false)
	case ast.OpNeq:
		return evalEq(left, right, true)
	case ast.OpLt:
		return evalOrderCompare(left, right, func(c int) bool { return c < 0 })
	case ast.OpLte:
		return evalOrderCompare(left, right, func(c int) bool { return c <= 0 })
	case ast.OpGt:
		return evalOrderCompare(left, right, func(c int) bool { return c > 0 })
	case ast.OpGte:
		return evalOrderCompare(left, right, func(c int) bool { return c >= 0 })
	case ast.OpXor:
		if left.IsNull() || right.IsNull() {
			return Null, nil
		}
		return Bool(left.B != right.B), nil
	case ast.OpIn:
		return evalIn(left, right)
	case ast.OpStartsWith:
		return evalStringPredicate(left, right, strings.HasPrefix)
	case ast.OpEndsWith:
		return evalStringPredicate(left, right, strings.HasSuffix)
	case ast.OpContains:
		return evalStringPredicate(left, right, strings.Contains)
	case ast.OpConcat:
		return evalConcat(left, right)
	}
	return Null, fmt.Errorf("eval: unknown binary operator")
}

func (ev *Evaluator) evalAnd(le, re ast.Expr) (Value, error) {
	left, err := ev.Eval(le)
	if err != nil {
		return Null, err
	}
	if !left.IsNull() && !left.B {
		return Bool(false), nil
	}
	right, err := ev.Eval(re)
	if err != nil {
		return Null, err
	}
	if !right.IsNull() && !right.B {
		return Bool(false), nil
	}
	if left.IsNull() || right.IsNull() {
		return Null, nil
	}
	return Bool(true), nil
}

func (ev *Evaluator) evalOr(le, re ast.Expr) (Value, error) {
	left, err := ev.Eval(le)
	if err != nil {
		return Null, err
	}
	if !left.IsNull() && left.B {
		return Bool(true), nil
	}
	right, err := ev.Eval(re)
	if err != nil {
		return Null, err
	}
	if !right.IsNull() && right.B {
		return Bool(true), nil
	}
	if left.IsNull() || right.IsNull() {
		return Null, nil
	}
	return Bool(false), nil
}

func evalAdd(left, right Value) (Value, error) {
	if left.Kind == KindString || right.Kind == KindString {
		if left.IsNull() || right.IsNull() {
			return Null, nil
		}
		if left.Kind != KindString || right.Kind != KindString {
			return Null, fmt.Errorf("eval: cannot add %s and %s", left.TypeName(), right.TypeName())
		}
		return String(left.S + right.S), nil
	}
	if left.Kind == KindList || right.Kind == KindList {
		return evalConcat(left, right)
	}
	if left.Kind == KindDateTime && right.Kind == KindDuration {
		return AddDuration(left, right)
	}
	if right.Kind == KindDateTime && left.Kind == KindDuration {
		return AddDuration(right, left)
	}
	return evalArithmetic(left, right, addOverflow, func(a, b float64) float64 { return a + b })
}

func evalConcat(left, right Value) (Value, error) {
	if left.IsNull() || right.IsNull() {
		return Null, nil
	}
	if left.Kind == KindString && right.Kind == KindString {
		return String(left.S + right.S), nil
	}
	toList := func(v Value) ([]Value, error) {
		if v.Kind == KindList {
			return v.List, nil
		}
		return []Value{v}, nil
	}
	ll, err := toList(left)
	if err != nil {
		return Null, err
	}
	rl, err := toList(right)
	if err != nil {
		return Null, err
	}
	out := make([]Value, 0, len(ll)+len(rl))
	out = append(out, ll...)
	out = append(out, rl...)
	return List(out), nil
}

func addOverflow(a, b int64) (int64, bool) {
	sum := a + b
	overflow := (b > 0 && sum < a) || (b < 0 && sum > a)
	return sum, overflow
}

func mulOverflow(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	p := a * b
	return p, p/b != a
}

// evalArithmetic applies an int64 op with overflow detection, falling
// back to float64 on overflow or when either operand is already a Float —
// the "checked arithmetic with float promotion" numeric model (spec
// §4.12).
func evalArithmetic(left, right Value, intOp func(a, b int64) (int64, bool), floatOp func(a, b float64) float64) (Value, error) {
	if left.IsNull() || right.IsNull() {
		return Null, nil
	}
	if !left.IsNumeric() || !right.IsNumeric() {
		return Null, fmt.Errorf("eval: arithmetic requires numeric operands, got %s and %s", left.TypeName(), right.TypeName())
	}
	if left.Kind == KindInt && right.Kind == KindInt {
		if result, overflow := intOp(left.I, right.I); !overflow {
			return Int(result), nil
		}
	}
	return Float(floatOp(left.AsFloat(), right.AsFloat())), nil
}

func evalDiv(left, right Value) (Value, error) {
	if left.IsNull() || right.IsNull() {
		return Null, nil
	}
	if !left.IsNumeric() || !right.IsNumeric() {
		return Null, fmt.Errorf("eval: division requires numeric operands, got %s and %s", left.TypeName(), right.TypeName())
	}
	if left.Kind == KindInt && right.Kind == KindInt {
		if right.I == 0 {
			// Integer division by zero yields null rather than an error
			// (spec §4.12), distinct from the float IEEE-754 Inf/NaN path.
			return Null, nil
		}
		return Int(left.I / right.I), nil
	}
	return Float(left.AsFloat() / right.AsFloat()), nil
}

func evalMod(left, right Value) (Value, error) {
	if left.IsNull() || right.IsNull() {
		return Null, nil
	}
	if !left.IsNumeric() || !right.IsNumeric() {
		return Null, fmt.Errorf("eval: modulo requires numeric operands, got %s and %s", left.TypeName(), right.TypeName())
	}
	if left.Kind == KindInt && right.Kind == KindInt {
		if right.I == 0 {
			return Null, nil
		}
		return Int(left.I % right.I), nil
	}
	return Float(math.Mod(left.AsFloat(), right.AsFloat())), nil
}

func evalPow(left, right Value) (Value, error) {
	if left.IsNull() || right.IsNull() {
		return Null, nil
	}
	if !left.IsNumeric() || !right.IsNumeric() {
		return Null, fmt.Errorf("eval: exponentiation requires numeric operands, got %s and %s", left.TypeName(), right.TypeName())
	}
	return Float(math.Pow(left.AsFloat(), right.AsFloat())), nil
}

func evalEq(left, right Value, negate bool) (Value, error) {
	if left.IsNull() || right.IsNull() {
		return Null, nil
	}
	eq := left.Equal(right)
	if negate {
		eq = !eq
	}
	return Bool(eq), nil
}

func evalOrderCompare(left, right Value, ok func(int) bool) (Value, error) {
	if left.IsNull() || right.IsNull() {
		return Null, nil
	}
	if left.IsNumeric() && right.IsNumeric() {
		return Bool(ok(cmpFloat(left.AsFloat(), right.AsFloat()))), nil
	}
	if left.Kind != right.Kind {
		return Null, fmt.Errorf("eval: cannot compare %s and %s", left.TypeName(), right.TypeName())
	}
	switch left.Kind {
	case KindString, KindDateTime, KindBool:
		return Bool(ok(Compare(left, right))), nil
	}
	return Null, fmt.Errorf("eval: %s is not orderable", left.TypeName())
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func evalIn(left, right Value) (Value, error) {
	if right.IsNull() {
		return Null, nil
	}
	if right.Kind != KindList {
		return Null, fmt.Errorf("eval: IN requires a List on the right, got %s", right.TypeName())
	}
	if left.IsNull() {
		for _, item := range right.List {
			if item.IsNull() {
				return Null, nil
			}
		}
		return Bool(false), nil
	}
	sawNull := false
	for _, item := range right.List {
		if item.IsNull() {
			sawNull = true
			continue
		}
		if left.Equal(item) {
			return Bool(true), nil
		}
	}
	if sawNull {
		return Null, nil
	}
	return Bool(false), nil
}

func evalStringPredicate(left, right Value, f func(s, prefix string) bool) (Value, error) {
	if left.IsNull() || right.IsNull() {
		return Null, nil
	}
	if left.Kind != KindString || right.Kind != KindString {
		return Null, fmt.Errorf("eval: string predicate requires String operands, got %s and %s", left.TypeName(), right.TypeName())
	}
	return Bool(f(left.S, right.S)), nil
}
