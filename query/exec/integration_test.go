package exec_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervusdb/nervusdb"
	"github.com/nervusdb/nervusdb/internal/value"
	"github.com/nervusdb/nervusdb/query/ast"
	"github.com/nervusdb/nervusdb/query/eval"
	"github.com/nervusdb/nervusdb/query/exec"
	"github.com/nervusdb/nervusdb/query/plan"
)

func runAll(t *testing.T, q *ast.Query, graph exec.GraphAccess) ([]string, []exec.Row) {
	t.Helper()
	p, err := plan.Build(q, nil)
	require.NoError(t, err)

	op, err := exec.Build(p.Root, graph, nil, exec.ExecuteOptions{})
	require.NoError(t, err)

	var rows []exec.Row
	for {
		row, ok, err := op.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return p.Columns, rows
}

// Scenario 4 (spec §8): RETURN 1 over an empty database yields one row
// {"1": 1}.
func TestReturnOneLiteral(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		ast.ReturnClause{Items: []ast.ReturnItem{
			{Expr: ast.Literal{Value: ast.LiteralValue{Kind: ast.LitInt, Int: 1}}, Alias: "1"},
		}},
	}}

	path := filepath.Join(t.TempDir(), "db")
	e, err := nervusdb.Open(path, nervusdb.Options{})
	require.NoError(t, err)
	defer e.Close()

	cols, rows := runAll(t, q, exec.NewSnapshotGraph(e.Snapshot()))
	require.Equal(t, []string{"1"}, cols)
	require.Len(t, rows, 1)
	v, ok := rows[0].Get("1")
	require.True(t, ok)
	require.Equal(t, int64(1), v.I)
}

func prop(key string, val string) *ast.MapLiteral {
	return &ast.MapLiteral{
		Keys:   []string{key},
		Values: []ast.Expr{ast.Literal{Value: ast.LiteralValue{Kind: ast.LitString, Str: val}}},
	}
}

// Scenario 5 (spec §8): variable-length MATCH with direction reversal.
// Graph A -R-> B -R-> C. MATCH (b {name:'B'})<-[:R*1..2]-(a) RETURN a.name
// ORDER BY a.name must yield exactly ["A"].
func TestVariableLengthWithDirectionReversal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	e, err := nervusdb.Open(path, nervusdb.Options{})
	require.NoError(t, err)
	defer e.Close()

	tx, err := e.Begin()
	require.NoError(t, err)
	a := tx.CreateNode(1, "Node")
	b := tx.CreateNode(2, "Node")
	c := tx.CreateNode(3, "Node")
	rel := tx.ResolveRelTypeID("R")
	tx.SetNodeProperty(a, "name", value.String("A"))
	tx.SetNodeProperty(b, "name", value.String("B"))
	tx.SetNodeProperty(c, "name", value.String("C"))
	tx.CreateEdge(a, rel, b)
	tx.CreateEdge(b, rel, c)
	require.NoError(t, tx.Commit())

	// MATCH (b {name:'B'})<-[:R*1..2]-(a) RETURN a.name ORDER BY a.name
	q := &ast.Query{Clauses: []ast.Clause{
		ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{
			ast.NodePattern{Variable: "b", Properties: prop("name", "B")},
			ast.RelPattern{Types: []string{"R"}, Direction: ast.DirIn, VarLength: &ast.VarLengthRange{Min: 1, Max: 2}},
			ast.NodePattern{Variable: "a"},
		}}}},
		ast.ReturnClause{
			Items:   []ast.ReturnItem{{Expr: ast.PropertyAccess{Target: ast.Variable{Name: "a"}, Key: "name"}, Alias: "a.name"}},
			OrderBy: []ast.OrderItem{{Expr: ast.PropertyAccess{Target: ast.Variable{Name: "a"}, Key: "name"}, Direction: ast.Asc}},
		},
	}}

	_, rows := runAll(t, q, exec.NewSnapshotGraph(e.Snapshot()))
	var names []string
	for _, r := range rows {
		v, ok := r.Get("a.name")
		require.True(t, ok)
		names = append(names, v.S)
	}
	require.Equal(t, []string{"A"}, names)
}

// Scenario 6 (spec §8): OPTIONAL MATCH yields nulls for an unmatched
// optional pattern and real bindings for a matched one.
func TestOptionalMatchYieldsNulls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	e, err := nervusdb.Open(path, nervusdb.Options{})
	require.NoError(t, err)
	defer e.Close()

	tx, err := e.Begin()
	require.NoError(t, err)
	alice := tx.CreateNode(1, "Person")
	bob := tx.CreateNode(2, "Person")
	charlie := tx.CreateNode(3, "Person")
	knows := tx.ResolveRelTypeID("KNOWS")
	tx.SetNodeProperty(alice, "name", value.String("Alice"))
	tx.SetNodeProperty(bob, "name", value.String("Bob"))
	tx.SetNodeProperty(charlie, "name", value.String("Charlie"))
	tx.CreateEdge(bob, knows, charlie)
	require.NoError(t, tx.Commit())

	buildQuery := func(name string) *ast.Query {
		return &ast.Query{Clauses: []ast.Clause{
			ast.MatchClause{Patterns: []ast.Pattern{{Elements: []ast.PatternElement{ast.NodePattern{Variable: "n", Labels: []string{"Person"}}}}}},
			ast.WhereClause{Expr: ast.BinaryExpr{
				Op:   ast.OpEq,
				Left: ast.PropertyAccess{Target: ast.Variable{Name: "n"}, Key: "name"},
				Right: ast.Literal{Value: ast.LiteralValue{Kind: ast.LitString, Str: name}},
			}},
			ast.MatchClause{Optional: true, Patterns: []ast.Pattern{{Elements: []ast.PatternElement{
				ast.NodePattern{Variable: "n"},
				ast.RelPattern{Types: []string{"KNOWS"}, Direction: ast.DirOut},
				ast.NodePattern{Variable: "m"},
			}}}},
			ast.ReturnClause{Items: []ast.ReturnItem{{Expr: ast.Variable{Name: "m"}, Alias: "m"}}},
		}}
	}

	_, aliceRows := runAll(t, buildQuery("Alice"), exec.NewSnapshotGraph(e.Snapshot()))
	require.Len(t, aliceRows, 1)
	v, ok := aliceRows[0].Get("m")
	require.True(t, ok)
	require.Equal(t, eval.KindNull, v.Kind)

	_, bobRows := runAll(t, buildQuery("Bob"), exec.NewSnapshotGraph(e.Snapshot()))
	require.Len(t, bobRows, 1)
	v, ok = bobRows[0].Get("m")
	require.True(t, ok)
	require.Equal(t, eval.KindNode, v.Kind)
	require.Equal(t, charlie, v.Node)
}
