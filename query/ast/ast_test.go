package ast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Every Clause implementation must satisfy the Clause interface so the
// planner's type switch (query/plan) can recover each concrete shape.
func TestClauseImplementations(t *testing.T) {
	var clauses = []Clause{
		MatchClause{},
		CreateClause{},
		MergeClause{},
		UnwindClause{},
		CallClause{},
		ReturnClause{},
		WithClause{},
		WhereClause{},
		SetClause{},
		RemoveClause{},
		DeleteClause{},
		UnionClause{},
		ForeachClause{},
	}
	require.Len(t, clauses, 13)
	for _, c := range clauses {
		require.NotNil(t, c)
	}
}

func TestExprImplementations(t *testing.T) {
	var exprs = []Expr{
		Literal{},
		Variable{},
		Parameter{},
		PropertyAccess{},
		BinaryExpr{},
		UnaryExpr{},
		LabelCheck{},
		FunctionCall{},
		CaseExpr{},
		ExistsExpr{},
		ListLiteral{},
		ListComprehension{},
		PatternComprehension{},
		QuantifierExpr{},
		MapLiteral{},
		Subscript{},
	}
	require.Len(t, exprs, 16)
	for _, e := range exprs {
		require.NotNil(t, e)
	}
}

func TestPatternElementImplementations(t *testing.T) {
	var elems = []PatternElement{
		NodePattern{Variable: "n"},
		RelPattern{Variable: "r"},
	}
	require.Len(t, elems, 2)
}

func TestPatternAltenatesNodeAndRel(t *testing.T) {
	p := Pattern{
		PathVariable: "p",
		Elements: []PatternElement{
			NodePattern{Variable: "a", Labels: []string{"Person"}},
			RelPattern{Variable: "r", Types: []string{"KNOWS"}, Direction: DirOut},
			NodePattern{Variable: "b"},
		},
	}
	require.Len(t, p.Elements, 3)
	_, firstIsNode := p.Elements[0].(NodePattern)
	require.True(t, firstIsNode)
	_, secondIsRel := p.Elements[1].(RelPattern)
	require.True(t, secondIsRel)
	_, lastIsNode := p.Elements[2].(NodePattern)
	require.True(t, lastIsNode)
}

func TestDirectionConstantsDistinct(t *testing.T) {
	require.NotEqual(t, DirEither, DirOut)
	require.NotEqual(t, DirEither, DirIn)
	require.NotEqual(t, DirOut, DirIn)
}

func TestVarLengthRangeUnbounded(t *testing.T) {
	r := VarLengthRange{Min: 1, Max: -1}
	require.Equal(t, 1, r.Min)
	require.Equal(t, -1, r.Max)
}

func TestLiteralValueKinds(t *testing.T) {
	cases := []struct {
		name string
		lv   LiteralValue
		kind LiteralKind
	}{
		{"null", LiteralValue{Kind: LitNull}, LitNull},
		{"bool", LiteralValue{Kind: LitBool, Bool: true}, LitBool},
		{"int", LiteralValue{Kind: LitInt, Int: 42}, LitInt},
		{"float", LiteralValue{Kind: LitFloat, Float: 3.5}, LitFloat},
		{"string", LiteralValue{Kind: LitString, Str: "hi"}, LitString},
	}
	for _, c := range cases {
		require.Equal(t, c.kind, c.lv.Kind, c.name)
	}
}

func TestBinaryOpConstantsDistinct(t *testing.T) {
	ops := []BinaryOp{
		OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow,
		OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte,
		OpAnd, OpOr, OpXor, OpIn, OpStartsWith, OpEndsWith, OpContains, OpConcat,
	}
	seen := make(map[BinaryOp]bool, len(ops))
	for _, op := range ops {
		require.False(t, seen[op], "duplicate BinaryOp value %d", op)
		seen[op] = true
	}
}

func TestUnaryOpConstantsDistinct(t *testing.T) {
	ops := []UnaryOp{OpNeg, OpNot, OpIsNull, OpIsNotNull}
	seen := make(map[UnaryOp]bool, len(ops))
	for _, op := range ops {
		require.False(t, seen[op])
		seen[op] = true
	}
}

func TestQuantifierKindConstantsDistinct(t *testing.T) {
	kinds := []QuantifierKind{QuantAny, QuantAll, QuantNone, QuantSingle}
	seen := make(map[QuantifierKind]bool, len(kinds))
	for _, k := range kinds {
		require.False(t, seen[k])
		seen[k] = true
	}
}

func TestOrderDirectionConstantsDistinct(t *testing.T) {
	require.NotEqual(t, Asc, Desc)
}

// CaseExpr's Test field distinguishes the generic form (Test == nil) from
// the `CASE test WHEN ...` form (spec §4.12).
func TestCaseExprGenericVsSimple(t *testing.T) {
	generic := CaseExpr{
		Alternatives: []CaseAlternative{
			{When: Literal{Value: LiteralValue{Kind: LitBool, Bool: true}}, Then: Literal{Value: LiteralValue{Kind: LitInt, Int: 1}}},
		},
	}
	require.Nil(t, generic.Test)

	simple := CaseExpr{
		Test: Variable{Name: "x"},
		Alternatives: []CaseAlternative{
			{When: Literal{Value: LiteralValue{Kind: LitInt, Int: 1}}, Then: Literal{Value: LiteralValue{Kind: LitString, Str: "one"}}},
		},
	}
	require.NotNil(t, simple.Test)
}

// ExistsExpr carries either a bare pattern or a subquery, never requiring
// both (spec §4.9).
func TestExistsExprPatternForm(t *testing.T) {
	e := ExistsExpr{Pattern: &Pattern{Elements: []PatternElement{NodePattern{Variable: "n"}}}}
	require.NotNil(t, e.Pattern)
	require.Nil(t, e.Subquery)
}

func TestExistsExprSubqueryForm(t *testing.T) {
	e := ExistsExpr{Subquery: []Clause{MatchClause{}}}
	require.Nil(t, e.Pattern)
	require.Len(t, e.Subquery, 1)
}

// Subscript represents both single-index access and open/closed slices via
// nil fields (spec §4.12).
func TestSubscriptIndexForm(t *testing.T) {
	s := Subscript{Target: Variable{Name: "list"}, Index: Literal{Value: LiteralValue{Kind: LitInt, Int: 0}}}
	require.NotNil(t, s.Index)
	require.Nil(t, s.From)
	require.Nil(t, s.To)
}

func TestSubscriptSliceForm(t *testing.T) {
	s := Subscript{Target: Variable{Name: "list"}, From: Literal{Value: LiteralValue{Kind: LitInt, Int: 1}}}
	require.Nil(t, s.Index)
	require.NotNil(t, s.From)
	require.Nil(t, s.To)
}

// ListIndexExpr is a type alias, not a distinct type: assigning through it
// must be interchangeable with Subscript.
func TestListIndexExprIsSubscriptAlias(t *testing.T) {
	var li ListIndexExpr = Subscript{Target: Variable{Name: "list"}, Index: Literal{Value: LiteralValue{Kind: LitInt, Int: 2}}}
	var s Subscript = li
	require.Equal(t, li, s)
}

func TestMapLiteralKeysValuesParallel(t *testing.T) {
	m := MapLiteral{
		Keys:   []string{"a", "b"},
		Values: []Expr{Literal{Value: LiteralValue{Kind: LitInt, Int: 1}}, Literal{Value: LiteralValue{Kind: LitInt, Int: 2}}},
	}
	require.Len(t, m.Keys, len(m.Values))
}

func TestSetItemForms(t *testing.T) {
	propForm := SetItem{Variable: "n", Property: "name", Value: Literal{Value: LiteralValue{Kind: LitString, Str: "Ann"}}}
	require.Empty(t, propForm.Labels)
	require.Nil(t, propForm.Map)

	labelForm := SetItem{Variable: "n", Labels: []string{"Person", "Employee"}}
	require.Len(t, labelForm.Labels, 2)

	mapForm := SetItem{Variable: "n", Map: MapLiteral{Keys: []string{"a"}}, Append: true}
	require.True(t, mapForm.Append)
}

func TestCallClauseSubqueryVsProcedure(t *testing.T) {
	subquery := CallClause{Subquery: []Clause{ReturnClause{Star: true}}}
	require.NotNil(t, subquery.Subquery)
	require.Empty(t, subquery.Procedure)

	proc := CallClause{Procedure: "db.labels", Yields: []YieldItem{{Column: "label", Alias: "l"}}}
	require.Nil(t, proc.Subquery)
	require.Equal(t, "db.labels", proc.Procedure)
	require.Equal(t, "l", proc.Yields[0].Alias)
}

func TestDeleteClauseDetachFlag(t *testing.T) {
	d := DeleteClause{Detach: true, Exprs: []Expr{Variable{Name: "n"}}}
	require.True(t, d.Detach)
	require.Len(t, d.Exprs, 1)
}

func TestQueryExplainFlag(t *testing.T) {
	q := Query{Clauses: []Clause{ReturnClause{Star: true}}, Explain: true}
	require.True(t, q.Explain)
	require.Len(t, q.Clauses, 1)
}
