package eval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervusdb/nervusdb/internal/value"
	"github.com/nervusdb/nervusdb/query/ast"
)

// fakeGraph is a minimal in-memory eval.Graph used to exercise property
// access, label checks, and id/type/startNode-style builtins without any
// storage-layer dependency.
type fakeGraph struct {
	nodeProps  map[uint32]map[string]value.Value
	nodeLabels map[uint32][]uint32
	labelNames map[uint32]string
	labelIDs   map[string]uint32
	relNames   map[uint32]string
	relIDs     map[string]uint32
	edgeProps  map[EdgeRef]map[string]value.Value
	external   map[uint32]uint64
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		nodeProps:  map[uint32]map[string]value.Value{},
		nodeLabels: map[uint32][]uint32{},
		labelNames: map[uint32]string{},
		labelIDs:   map[string]uint32{},
		relNames:   map[uint32]string{},
		relIDs:     map[string]uint32{},
		edgeProps:  map[EdgeRef]map[string]value.Value{},
		external:   map[uint32]uint64{},
	}
}

func (g *fakeGraph) NodeProperty(internal uint32, key string) (value.Value, bool, error) {
	v, ok := g.nodeProps[internal][key]
	return v, ok, nil
}
func (g *fakeGraph) EdgeProperty(e EdgeRef, key string) (value.Value, bool, error) {
	v, ok := g.edgeProps[e][key]
	return v, ok, nil
}
func (g *fakeGraph) NodeProperties(internal uint32) map[string]value.Value { return g.nodeProps[internal] }
func (g *fakeGraph) EdgeProperties(e EdgeRef) map[string]value.Value       { return g.edgeProps[e] }
func (g *fakeGraph) Labels(internal uint32) []uint32                      { return g.nodeLabels[internal] }
func (g *fakeGraph) ResolveLabelID(name string) (uint32, bool) {
	id, ok := g.labelIDs[name]
	return id, ok
}
func (g *fakeGraph) ResolveLabelName(id uint32) (string, bool) {
	name, ok := g.labelNames[id]
	return name, ok
}
func (g *fakeGraph) ResolveRelTypeID(name string) (uint32, bool) {
	id, ok := g.relIDs[name]
	return id, ok
}
func (g *fakeGraph) ResolveRelTypeName(id uint32) (string, bool) {
	name, ok := g.relNames[id]
	return name, ok
}
func (g *fakeGraph) ExternalID(internal uint32) (uint64, bool) {
	id, ok := g.external[internal]
	return id, ok
}

func (g *fakeGraph) addLabel(id uint32, name string) {
	g.labelNames[id] = name
	g.labelIDs[name] = id
}

func litInt(i int64) ast.Expr   { return ast.Literal{Value: ast.LiteralValue{Kind: ast.LitInt, Int: i}} }
func litFloat(f float64) ast.Expr { return ast.Literal{Value: ast.LiteralValue{Kind: ast.LitFloat, Float: f}} }
func litStr(s string) ast.Expr  { return ast.Literal{Value: ast.LiteralValue{Kind: ast.LitString, Str: s}} }
func litBool(b bool) ast.Expr   { return ast.Literal{Value: ast.LiteralValue{Kind: ast.LitBool, Bool: b}} }
func litNull() ast.Expr         { return ast.Literal{Value: ast.LiteralValue{Kind: ast.LitNull}} }

func newEval(g Graph, row Row) *Evaluator { return New(g, row, nil) }

func TestEvalLiteralsAndVariable(t *testing.T) {
	row := NewRow().With("x", Int(42))
	ev := newEval(newFakeGraph(), row)

	v, err := ev.Eval(litInt(7))
	require.NoError(t, err)
	require.Equal(t, Int(7), v)

	v, err = ev.Eval(ast.Variable{Name: "x"})
	require.NoError(t, err)
	require.Equal(t, Int(42), v)

	_, err = ev.Eval(ast.Variable{Name: "ghost"})
	require.Error(t, err)
}

func TestEvalParameterUnboundIsNull(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.Parameter{Name: "missing"})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalPropertyAccessOnNode(t *testing.T) {
	g := newFakeGraph()
	g.nodeProps[1] = map[string]value.Value{"name": value.String("Ann")}
	row := NewRow().With("n", NodeVal(1))
	ev := newEval(g, row)

	v, err := ev.Eval(ast.PropertyAccess{Target: ast.Variable{Name: "n"}, Key: "name"})
	require.NoError(t, err)
	require.Equal(t, String("Ann"), v)

	v, err = ev.Eval(ast.PropertyAccess{Target: ast.Variable{Name: "n"}, Key: "missing"})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalPropertyAccessOnMap(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	m := ast.MapLiteral{Keys: []string{"a"}, Values: []ast.Expr{litInt(1)}}
	v, err := ev.Eval(ast.PropertyAccess{Target: m, Key: "a"})
	require.NoError(t, err)
	require.Equal(t, Int(1), v)
}

func TestEvalPropertyAccessOnNullIsNull(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.PropertyAccess{Target: litNull(), Key: "x"})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalLabelCheck(t *testing.T) {
	g := newFakeGraph()
	g.addLabel(0, "Person")
	g.nodeLabels[1] = []uint32{0}
	row := NewRow().With("n", NodeVal(1))
	ev := newEval(g, row)

	v, err := ev.Eval(ast.LabelCheck{Target: ast.Variable{Name: "n"}, Label: "Person"})
	require.NoError(t, err)
	require.Equal(t, Bool(true), v)

	v, err = ev.Eval(ast.LabelCheck{Target: ast.Variable{Name: "n"}, Label: "Robot"})
	require.NoError(t, err)
	require.Equal(t, Bool(false), v)
}

func TestEvalArithmeticIntOverflowPromotesToFloat(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.BinaryExpr{Op: ast.OpAdd, Left: litInt(9223372036854775807), Right: litInt(1)})
	require.NoError(t, err)
	require.Equal(t, KindFloat, v.Kind)
}

func TestEvalArithmeticStaysIntWithoutOverflow(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.BinaryExpr{Op: ast.OpAdd, Left: litInt(2), Right: litInt(3)})
	require.NoError(t, err)
	require.Equal(t, Int(5), v)
}

func TestEvalIntegerDivisionByZeroIsNull(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.BinaryExpr{Op: ast.OpDiv, Left: litInt(5), Right: litInt(0)})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalStringConcat(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.BinaryExpr{Op: ast.OpAdd, Left: litStr("foo"), Right: litStr("bar")})
	require.NoError(t, err)
	require.Equal(t, String("foobar"), v)
}

// Three-valued AND: false short-circuits even with a null right operand.
func TestEvalAndShortCircuitsOnFalse(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.BinaryExpr{Op: ast.OpAnd, Left: litBool(false), Right: litNull()})
	require.NoError(t, err)
	require.Equal(t, Bool(false), v)
}

func TestEvalAndNullPropagates(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.BinaryExpr{Op: ast.OpAnd, Left: litBool(true), Right: litNull()})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalOrShortCircuitsOnTrue(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.BinaryExpr{Op: ast.OpOr, Left: litBool(true), Right: litNull()})
	require.NoError(t, err)
	require.Equal(t, Bool(true), v)
}

func TestEvalNotOfNullIsNull(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.UnaryExpr{Op: ast.OpNot, Operand: litNull()})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalIsNullIsNotNull(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.UnaryExpr{Op: ast.OpIsNull, Operand: litNull()})
	require.NoError(t, err)
	require.Equal(t, Bool(true), v)

	v, err = ev.Eval(ast.UnaryExpr{Op: ast.OpIsNotNull, Operand: litInt(1)})
	require.NoError(t, err)
	require.Equal(t, Bool(true), v)
}

func TestEvalComparisonNullPropagates(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.BinaryExpr{Op: ast.OpLt, Left: litInt(1), Right: litNull()})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalComparisonNumericCrossKind(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.BinaryExpr{Op: ast.OpLt, Left: litInt(1), Right: litFloat(1.5)})
	require.NoError(t, err)
	require.Equal(t, Bool(true), v)
}

func TestEvalInOperator(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	list := ast.ListLiteral{Items: []ast.Expr{litInt(1), litInt(2), litInt(3)}}
	v, err := ev.Eval(ast.BinaryExpr{Op: ast.OpIn, Left: litInt(2), Right: list})
	require.NoError(t, err)
	require.Equal(t, Bool(true), v)

	v, err = ev.Eval(ast.BinaryExpr{Op: ast.OpIn, Left: litInt(9), Right: list})
	require.NoError(t, err)
	require.Equal(t, Bool(false), v)
}

func TestEvalInOperatorWithNullInListIsNullWhenNotFound(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	list := ast.ListLiteral{Items: []ast.Expr{litInt(1), litNull()}}
	v, err := ev.Eval(ast.BinaryExpr{Op: ast.OpIn, Left: litInt(9), Right: list})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalStringPredicates(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.BinaryExpr{Op: ast.OpStartsWith, Left: litStr("hello"), Right: litStr("he")})
	require.NoError(t, err)
	require.Equal(t, Bool(true), v)

	v, err = ev.Eval(ast.BinaryExpr{Op: ast.OpContains, Left: litStr("hello"), Right: litStr("ell")})
	require.NoError(t, err)
	require.Equal(t, Bool(true), v)
}

func TestEvalCaseGenericForm(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	c := ast.CaseExpr{
		Alternatives: []ast.CaseAlternative{
			{When: litBool(false), Then: litStr("no")},
			{When: litBool(true), Then: litStr("yes")},
		},
		Else: litStr("fallback"),
	}
	v, err := ev.Eval(c)
	require.NoError(t, err)
	require.Equal(t, String("yes"), v)
}

func TestEvalCaseSimpleFormNoMatchUsesElse(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	c := ast.CaseExpr{
		Test: litInt(5),
		Alternatives: []ast.CaseAlternative{
			{When: litInt(1), Then: litStr("one")},
		},
		Else: litStr("other"),
	}
	v, err := ev.Eval(c)
	require.NoError(t, err)
	require.Equal(t, String("other"), v)
}

func TestEvalCaseNoElseIsNull(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	c := ast.CaseExpr{Alternatives: []ast.CaseAlternative{{When: litBool(false), Then: litInt(1)}}}
	v, err := ev.Eval(c)
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalListComprehension(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	lc := ast.ListComprehension{
		Variable: "x",
		List:     ast.ListLiteral{Items: []ast.Expr{litInt(1), litInt(2), litInt(3), litInt(4)}},
		Where:    ast.BinaryExpr{Op: ast.OpGt, Left: ast.Variable{Name: "x"}, Right: litInt(2)},
		Project:  ast.BinaryExpr{Op: ast.OpMul, Left: ast.Variable{Name: "x"}, Right: litInt(10)},
	}
	v, err := ev.Eval(lc)
	require.NoError(t, err)
	require.Equal(t, List([]Value{Int(30), Int(40)}), v)
}

func TestEvalQuantifiers(t *testing.T) {
	list := ast.ListLiteral{Items: []ast.Expr{litInt(1), litInt(2), litInt(3)}}
	cases := []struct {
		kind ast.QuantifierKind
		want Value
	}{
		{ast.QuantAny, Bool(true)},
		{ast.QuantAll, Bool(false)},
		{ast.QuantNone, Bool(false)},
		{ast.QuantSingle, Bool(true)},
	}
	for _, c := range cases {
		ev := newEval(newFakeGraph(), NewRow())
		q := ast.QuantifierExpr{
			Kind:     c.kind,
			Variable: "x",
			List:     list,
			Where:    ast.BinaryExpr{Op: ast.OpEq, Left: ast.Variable{Name: "x"}, Right: litInt(2)},
		}
		v, err := ev.Eval(q)
		require.NoError(t, err)
		require.Equal(t, c.want, v, "quantifier kind %d", c.kind)
	}
}

func TestEvalSubscriptIndex(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	list := ast.ListLiteral{Items: []ast.Expr{litInt(10), litInt(20), litInt(30)}}
	v, err := ev.Eval(ast.Subscript{Target: list, Index: litInt(1)})
	require.NoError(t, err)
	require.Equal(t, Int(20), v)

	// Negative indices count from the end.
	v, err = ev.Eval(ast.Subscript{Target: list, Index: litInt(-1)})
	require.NoError(t, err)
	require.Equal(t, Int(30), v)

	v, err = ev.Eval(ast.Subscript{Target: list, Index: litInt(99)})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalSubscriptSlice(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	list := ast.ListLiteral{Items: []ast.Expr{litInt(1), litInt(2), litInt(3), litInt(4)}}
	v, err := ev.Eval(ast.Subscript{Target: list, From: litInt(1), To: litInt(3)})
	require.NoError(t, err)
	require.Equal(t, List([]Value{Int(2), Int(3)}), v)
}

func TestEvalSubscriptMapKey(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	m := ast.MapLiteral{Keys: []string{"a"}, Values: []ast.Expr{litInt(1)}}
	v, err := ev.Eval(ast.Subscript{Target: m, Index: litStr("a")})
	require.NoError(t, err)
	require.Equal(t, Int(1), v)
}

func TestEvalExistsPatternDelegatesToPatternExists(t *testing.T) {
	called := false
	ev := &Evaluator{
		Graph: newFakeGraph(),
		Row:   NewRow(),
		PatternExists: func(p *ast.Pattern, row Row) (bool, error) {
			called = true
			return true, nil
		},
	}
	v, err := ev.Eval(ast.ExistsExpr{Pattern: &ast.Pattern{}})
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, Bool(true), v)
}

func TestEvalExistsPatternWithoutHookErrors(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	_, err := ev.Eval(ast.ExistsExpr{Pattern: &ast.Pattern{}})
	require.Error(t, err)
}

func TestEvalPatternComprehensionRejectedDirectly(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	_, err := ev.Eval(ast.PatternComprehension{})
	require.Error(t, err)
}

func TestCallFunctionSize(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.FunctionCall{Name: "size", Args: []ast.Expr{litStr("hello")}})
	require.NoError(t, err)
	require.Equal(t, Int(5), v)
}

func TestCallFunctionCoalesce(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.FunctionCall{Name: "coalesce", Args: []ast.Expr{litNull(), litNull(), litInt(7)}})
	require.NoError(t, err)
	require.Equal(t, Int(7), v)
}

func TestCallFunctionAbsAndSign(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	v, err := ev.Eval(ast.FunctionCall{Name: "abs", Args: []ast.Expr{litInt(-5)}})
	require.NoError(t, err)
	require.Equal(t, Int(5), v)

	v, err = ev.Eval(ast.FunctionCall{Name: "SIGN", Args: []ast.Expr{litInt(-5)}})
	require.NoError(t, err)
	require.Equal(t, Int(-1), v)
}

func TestCallFunctionUnknownErrors(t *testing.T) {
	ev := newEval(newFakeGraph(), NewRow())
	_, err := ev.Eval(ast.FunctionCall{Name: "notAFunction"})
	require.Error(t, err)
}

func TestRowGetAndWithAreImmutable(t *testing.T) {
	r1 := NewRow().With("a", Int(1))
	r2 := r1.With("b", Int(2))

	_, ok := r1.Get("b")
	require.False(t, ok, "With must not mutate the original row")

	v, ok := r2.Get("a")
	require.True(t, ok)
	require.Equal(t, Int(1), v)
	v, ok = r2.Get("b")
	require.True(t, ok)
	require.Equal(t, Int(2), v)
}

func TestRowWithReplacesExistingBinding(t *testing.T) {
	r := NewRow().With("a", Int(1)).With("a", Int(99))
	v, ok := r.Get("a")
	require.True(t, ok)
	require.Equal(t, Int(99), v)
}

func TestValueEqualNodeByIdentity(t *testing.T) {
	require.True(t, NodeVal(5).Equal(NodeVal(5)))
	require.False(t, NodeVal(5).Equal(NodeVal(6)))
}

func TestValueCompareTotalOrder(t *testing.T) {
	require.Negative(t, Compare(Null, Bool(false)))
	require.Negative(t, Compare(Bool(true), Int(1)))
	require.Negative(t, Compare(String("a"), DateTime(0)))
}

func TestValueFingerprintDeterministicAcrossMapKeyOrder(t *testing.T) {
	a := NewMap([]string{"x", "y"}, map[string]Value{"x": Int(1), "y": Int(2)})
	b := NewMap([]string{"y", "x"}, map[string]Value{"x": Int(1), "y": Int(2)})
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFromStorageToStorageRoundTrip(t *testing.T) {
	sv := value.List([]value.Value{value.Int(1), value.String("x")})
	ev := FromStorage(sv)
	back, ok := ToStorage(ev)
	require.True(t, ok)
	require.True(t, sv.Equal(back))
}

func TestToStorageRejectsNodeValue(t *testing.T) {
	_, ok := ToStorage(NodeVal(1))
	require.False(t, ok)
}
