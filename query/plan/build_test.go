package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervusdb/nervusdb/query/ast"
)

func nodePattern(variable string, labels ...string) ast.NodePattern {
	return ast.NodePattern{Variable: variable, Labels: labels}
}

func TestBuildEmptyQueryReturnsReturnOne(t *testing.T) {
	p, err := Build(&ast.Query{}, nil)
	require.NoError(t, err)
	require.IsType(t, ReturnOne{}, p.Root)
}

// MATCH (n:Person) RETURN n
func TestBuildSimpleMatchReturn(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{nodePattern("n", "Person")}}}},
		ast.ReturnClause{Items: []ast.ReturnItem{{Expr: ast.Variable{Name: "n"}}}},
	}}
	p, err := Build(q, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"n"}, p.Columns)

	proj, ok := p.Root.(Project)
	require.True(t, ok, "expected root to be Project, got %T", p.Root)
	require.Len(t, proj.Columns, 1)
	require.Equal(t, "n", proj.Columns[0].Alias)

	scan, ok := proj.Input.(NodeScan)
	require.True(t, ok, "expected Project.Input to be NodeScan, got %T", proj.Input)
	require.Equal(t, "n", scan.Alias)
	require.Equal(t, "Person", scan.Label)
}

// RETURN * after a match exposes every bound alias in binding order.
func TestBuildReturnStarUsesScopeOrder(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{nodePattern("n")}}}},
		ast.ReturnClause{Star: true},
	}}
	p, err := Build(q, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"n"}, p.Columns)
}

// CREATE (n:Person) with no preceding MATCH plans Create with a nil Input,
// which exec's build() seeds with exactly one row.
func TestBuildStandaloneCreate(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.CreateClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{nodePattern("n", "Person")}}}},
	}}
	p, err := Build(q, nil)
	require.NoError(t, err)
	create, ok := p.Root.(Create)
	require.True(t, ok)
	require.Nil(t, create.Input)
	require.Equal(t, "Person", create.Pattern.Elements[0].(ast.NodePattern).Labels[0])
}

func TestBuildCreateRejectsVarLength(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.CreateClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{
			nodePattern("a"),
			ast.RelPattern{VarLength: &ast.VarLengthRange{Min: 1, Max: -1}},
			nodePattern("b"),
		}}}},
	}}
	_, err := Build(q, nil)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, CreatingVarLength, verr.Kind)
}

func TestBuildMerge(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.MergeClause{
			Pattern:  ast.Pattern{Elements: []ast.PatternElement{nodePattern("n", "Person")}},
			OnCreate: []ast.SetItem{{Variable: "n", Property: "created", Value: ast.Literal{}}},
		},
	}}
	p, err := Build(q, nil)
	require.NoError(t, err)
	merge, ok := p.Root.(Merge)
	require.True(t, ok)
	require.Len(t, merge.OnCreate, 1)
}

// OPTIONAL MATCH binds its new alias via OptionalWhereFixup with it named
// in NullAliases so unmatched rows still surface it as null.
func TestBuildOptionalMatch(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{nodePattern("n")}}}},
		ast.MatchClause{Optional: true, Patterns: []ast.Pattern{{Elements: []ast.PatternElement{
			nodePattern("n"),
			ast.RelPattern{Variable: "r", Direction: ast.DirOut},
			nodePattern("m"),
		}}}},
	}}
	p, err := Build(q, nil)
	require.NoError(t, err)
	fixup, ok := p.Root.(OptionalWhereFixup)
	require.True(t, ok, "expected OptionalWhereFixup, got %T", p.Root)
	require.ElementsMatch(t, []string{"r", "m"}, fixup.NullAliases)
}

// RETURN count(*) triggers aggregate recognition (spec §4.10).
func TestBuildAggregateCountStar(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{nodePattern("n")}}}},
		ast.ReturnClause{Items: []ast.ReturnItem{{Expr: ast.FunctionCall{Name: "count"}, Alias: "total"}}},
	}}
	p, err := Build(q, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"total"}, p.Columns)
	agg, ok := p.Root.(Aggregate)
	require.True(t, ok, "expected Aggregate, got %T", p.Root)
	require.Len(t, agg.Aggregates, 1)
	require.True(t, agg.Aggregates[0].CountStar)
	require.Equal(t, "count", agg.Aggregates[0].Agg)
}

// A plain column alongside an aggregate becomes an implicit GROUP BY key.
func TestBuildAggregateWithGroupBy(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{nodePattern("n")}}}},
		ast.ReturnClause{Items: []ast.ReturnItem{
			{Expr: ast.Variable{Name: "n"}},
			{Expr: ast.FunctionCall{Name: "count", Args: []ast.Expr{ast.Variable{Name: "n"}}}, Alias: "c"},
		}},
	}}
	p, err := Build(q, nil)
	require.NoError(t, err)
	agg, ok := p.Root.(Aggregate)
	require.True(t, ok)
	require.Len(t, agg.GroupBy, 1)
	require.Equal(t, "n", agg.GroupBy[0].Alias)
	require.Len(t, agg.Aggregates, 1)
	require.False(t, agg.Aggregates[0].CountStar)
}

func TestBuildUnion(t *testing.T) {
	side := func() []ast.Clause {
		return []ast.Clause{
			ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{nodePattern("n")}}}},
			ast.ReturnClause{Items: []ast.ReturnItem{{Expr: ast.Variable{Name: "n"}}}},
		}
	}
	clauses := append(side(), ast.UnionClause{All: true})
	clauses = append(clauses, side()...)
	q := &ast.Query{Clauses: clauses}
	p, err := Build(q, nil)
	require.NoError(t, err)
	union, ok := p.Root.(Union)
	require.True(t, ok, "expected Union, got %T", p.Root)
	require.True(t, union.All)
}

func TestBuildDeleteNonVariableErrors(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{nodePattern("n")}}}},
		ast.DeleteClause{Exprs: []ast.Expr{ast.Literal{}}},
	}}
	_, err := Build(q, nil)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, InvalidDelete, verr.Kind)
}

func TestBuildDeleteUndefinedVariableErrors(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.DeleteClause{Exprs: []ast.Expr{ast.Variable{Name: "ghost"}}},
	}}
	_, err := Build(q, nil)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, UndefinedVariable, verr.Kind)
}

func TestBuildDeleteScalarVariableErrors(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.UnwindClause{Expr: ast.ListLiteral{}, Variable: "x"},
		ast.DeleteClause{Exprs: []ast.Expr{ast.Variable{Name: "x"}}},
	}}
	_, err := Build(q, nil)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, InvalidDelete, verr.Kind)
}

func TestBuildDetachDelete(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{nodePattern("n")}}}},
		ast.DeleteClause{Detach: true, Exprs: []ast.Expr{ast.Variable{Name: "n"}}},
	}}
	p, err := Build(q, nil)
	require.NoError(t, err)
	del, ok := p.Root.(Delete)
	require.True(t, ok)
	require.True(t, del.Detach)
}

// fakeCatalog lets index-selection tests control HasIndex without a real
// storage layer.
type fakeCatalog map[string]bool

func (c fakeCatalog) HasIndex(label, property string) bool { return c[label+"."+property] }

func TestBuildUsesIndexSeekWhenCatalogHasIndex(t *testing.T) {
	catalog := fakeCatalog{"Person.email": true}
	q := &ast.Query{Clauses: []ast.Clause{
		ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{
			ast.NodePattern{
				Variable: "n",
				Labels:   []string{"Person"},
				Properties: &ast.MapLiteral{
					Keys:   []string{"email"},
					Values: []ast.Expr{ast.Literal{Value: ast.LiteralValue{Kind: ast.LitString, Str: "a@b.com"}}},
				},
			},
		}}}},
		ast.ReturnClause{Items: []ast.ReturnItem{{Expr: ast.Variable{Name: "n"}}}},
	}}
	p, err := Build(q, catalog)
	require.NoError(t, err)
	proj := p.Root.(Project)
	seek, ok := proj.Input.(IndexSeek)
	require.True(t, ok, "expected IndexSeek, got %T", proj.Input)
	require.Equal(t, "Person", seek.Label)
	require.Equal(t, "email", seek.Property)
	require.NotNil(t, seek.Fallback)
}

func TestBuildNoIndexFallsBackToNodeScan(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{
			ast.NodePattern{
				Variable: "n",
				Labels:   []string{"Person"},
				Properties: &ast.MapLiteral{
					Keys:   []string{"email"},
					Values: []ast.Expr{ast.Literal{Value: ast.LiteralValue{Kind: ast.LitString, Str: "a@b.com"}}},
				},
			},
		}}}},
		ast.ReturnClause{Items: []ast.ReturnItem{{Expr: ast.Variable{Name: "n"}}}},
	}}
	p, err := Build(q, nil)
	require.NoError(t, err)
	proj := p.Root.(Project)
	filter, ok := proj.Input.(Filter)
	require.True(t, ok, "expected a pushed-down property Filter, got %T", proj.Input)
	_, ok = filter.Input.(NodeScan)
	require.True(t, ok)
}

// A two-hop pattern whose tail is already bound gets reversed so expansion
// always walks from a known endpoint (spec §4.10 pattern linearization).
func TestBuildPatternAnchorsOnBoundTail(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{nodePattern("b", "Person")}}}},
		ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{
			nodePattern("a"),
			ast.RelPattern{Variable: "r", Direction: ast.DirOut},
			nodePattern("b"),
		}}}},
		ast.ReturnClause{Items: []ast.ReturnItem{{Expr: ast.Variable{Name: "a"}}}},
	}}
	p, err := Build(q, nil)
	require.NoError(t, err)
	proj := p.Root.(Project)
	expand, ok := proj.Input.(MatchExpand)
	require.True(t, ok, "expected MatchExpand, got %T", proj.Input)
	// Reversed: expansion proceeds from the already-bound "b" toward "a", so
	// the direction flips from Out to In and the source alias is "b".
	require.Equal(t, "b", expand.SrcAlias)
	require.Equal(t, "a", expand.DstAlias)
	require.Equal(t, ast.DirIn, expand.Direction)
}
