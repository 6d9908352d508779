package exec

import (
	"fmt"

	"github.com/nervusdb/nervusdb/query/ast"
	"github.com/nervusdb/nervusdb/query/eval"
	"github.com/nervusdb/nervusdb/query/plan"
)

// singleRowOp emits exactly Row once, then is exhausted. It generalizes
// returnOneOp: the top-level statement seeds it with an empty row, but a
// correlated subquery (Apply's Subquery, Foreach's Sub) seeds it with the
// outer row currently in scope, so a plan.Node with a nil Input — "start
// from exactly one row" — sees the caller's bindings instead of nothing
// (spec §4.11 CALL { ... } and FOREACH).
type singleRowOp struct {
	row  Row
	done bool
}

func (o *singleRowOp) Next() (Row, bool, error) {
	if o.done {
		return Row{}, false, nil
	}
	o.done = true
	return o.row, true, nil
}

// buildCtx carries what build() needs beyond the plan node itself: the
// graph operators read through, query parameters, the rowCtx shared by
// every expression-evaluating operator, and the resource limiter shared by
// the whole statement.
type buildCtx struct {
	graph   GraphAccess
	params  map[string]Value
	limiter *limiter
	rc      *rowCtx
}

// writable asserts the write surface lazily, only once a write plan node is
// actually reached, so a read-only Snapshot can still run any read-only
// statement through the same build() (spec §4.11).
func (c *buildCtx) writable() (WriteableGraph, error) {
	wg, ok := c.graph.(WriteableGraph)
	if !ok {
		return nil, &TypeError{Op: "write", Detail: "statement writes but the graph is read-only"}
	}
	return wg, nil
}

// Build compiles a physical plan tree into an executable Operator tree
// bound to graph (spec §4.11). graph may be a read-only snapshotGraph or a
// txnGraph over an in-flight WriteTxn; write plan nodes only require the
// latter, and that requirement is checked lazily at the point a write node
// is reached rather than up front.
func Build(root plan.Node, graph GraphAccess, params map[string]Value, opts ExecuteOptions) (Operator, error) {
	c := &buildCtx{graph: graph, params: params, limiter: newLimiter(opts)}
	c.rc = &rowCtx{graph: graph, params: params}
	c.rc.patternExists = func(p *ast.Pattern, row Row) (bool, error) {
		rows, err := matchPatternRows(graph, c.rc, row, *p)
		if err != nil {
			return false, err
		}
		return len(rows) > 0, nil
	}
	return build(root, eval.NewRow(), c)
}

func build(node plan.Node, seed Row, c *buildCtx) (Operator, error) {
	if node == nil {
		return &singleRowOp{row: seed}, nil
	}

	switch p := node.(type) {

	case plan.ReturnOne:
		return &singleRowOp{row: seed}, nil

	case plan.Values:
		return &valuesOp{rows: p.Rows, params: c.params, graph: c.graph}, nil

	case plan.NodeScan:
		return &nodeScanOp{graph: c.graph, alias: p.Alias, label: p.Label, limiter: c.limiter}, nil

	case plan.IndexSeek:
		fallback, err := build(p.Fallback, seed, c)
		if err != nil {
			return nil, err
		}
		return &indexSeekOp{fallback: fallback}, nil

	case plan.MatchExpand:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		return &matchExpandOp{
			graph: c.graph, limiter: c.limiter, in: in,
			dir: p.Direction, srcAlias: p.SrcAlias, relAlias: p.RelAlias, relTypes: p.RelTypes,
			dstAlias: p.DstAlias, dstLabels: p.DstLabels, pathAlias: p.PathAlias,
			optional: p.Optional, optionalUnbind: p.OptionalUnbind, varLength: p.VarLength,
		}, nil

	case plan.MatchBoundRel:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		return &matchBoundRelOp{in: in, relAlias: p.RelAlias, srcAlias: p.SrcAlias, dstAlias: p.DstAlias}, nil

	case plan.Expand:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		return &expandExprOp{in: in, expr: p.Expr, as: p.As, ctx: c.rc, limiter: c.limiter}, nil

	case plan.Filter:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		return &filterOp{in: in, predicate: p.Predicate, ctx: c.rc, limiter: c.limiter}, nil

	case plan.Project:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		cols := make([]columnExpr, len(p.Columns))
		for i, pc := range p.Columns {
			cols[i] = columnExpr{Expr: pc.Expr, Alias: pc.Alias}
		}
		return &projectOp{in: in, columns: cols, ctx: c.rc, limiter: c.limiter}, nil

	case plan.Aggregate:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		return &aggregateOp{in: in, groupBy: p.GroupBy, aggregates: p.Aggregates, ctx: c.rc, limiter: c.limiter}, nil

	case plan.OrderBy:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		return &orderByOp{in: in, items: p.Items, ctx: c.rc, limiter: c.limiter}, nil

	case plan.Skip:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		return &skipOp{in: in, expr: p.Expr, ctx: c.rc}, nil

	case plan.Limit:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		return &limitOp{in: in, expr: p.Expr, ctx: c.rc}, nil

	case plan.Distinct:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		return &distinctOp{in: in}, nil

	case plan.Unwind:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		return &unwindOp{in: in, expr: p.Expr, alias: p.Alias, ctx: c.rc, limiter: c.limiter}, nil

	case plan.CartesianProduct:
		left, err := build(p.Left, seed, c)
		if err != nil {
			return nil, err
		}
		right := p.Right
		return &cartesianProductOp{
			left: left, limiter: c.limiter,
			rightGen: func() (Operator, error) { return build(right, seed, c) },
		}, nil

	case plan.NestedLoopJoin:
		left, err := build(p.Left, seed, c)
		if err != nil {
			return nil, err
		}
		right := p.Right
		inner := &cartesianProductOp{
			left: left, limiter: c.limiter,
			rightGen: func() (Operator, error) { return build(right, seed, c) },
		}
		return &nestedLoopJoinOp{inner: inner, predicate: p.Predicate, ctx: c.rc}, nil

	case plan.LeftOuterJoin:
		left, err := build(p.Left, seed, c)
		if err != nil {
			return nil, err
		}
		right := p.Right
		return &leftOuterJoinOp{
			left: left, limiter: c.limiter, predicate: p.Predicate, ctx: c.rc,
			rightCols: planColumns(p.Right),
			rightGen:  func() (Operator, error) { return build(right, seed, c) },
		}, nil

	case plan.OptionalWhereFixup:
		outer, err := build(p.Outer, seed, c)
		if err != nil {
			return nil, err
		}
		filtered := p.Filtered
		return &optionalWhereFixupOp{
			outer: outer, limiter: c.limiter, nullAliases: p.NullAliases,
			outerCols:   planColumns(p.Outer),
			filteredGen: func() (Operator, error) { return build(filtered, seed, c) },
		}, nil

	case plan.Apply:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		sub := p.Subquery
		return &applyOp{
			in: in, limiter: c.limiter,
			subGen: func(row Row) (Operator, error) { return build(sub, row, c) },
		}, nil

	case plan.ProcedureCall:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		return &procedureCallOp{
			in: in, name: p.Name, args: p.Args, yields: p.Yields,
			graph: c.graph, ctx: c.rc, limiter: c.limiter,
		}, nil

	case plan.Union:
		left, err := build(p.Left, seed, c)
		if err != nil {
			return nil, err
		}
		right, err := build(p.Right, seed, c)
		if err != nil {
			return nil, err
		}
		return &unionOp{left: left, right: right, all: p.All}, nil

	case plan.Create:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		wg, err := c.writable()
		if err != nil {
			return nil, err
		}
		return &createOp{in: in, pattern: p.Pattern, graph: wg, ctx: c.rc, limiter: c.limiter, mergeFlag: p.MergeFlag}, nil

	case plan.SetProperty:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		wg, err := c.writable()
		if err != nil {
			return nil, err
		}
		return &setPropertyOp{in: in, variable: p.Variable, property: p.Property, value: p.Value, graph: wg, ctx: c.rc, limiter: c.limiter}, nil

	case plan.SetPropertiesFromMap:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		wg, err := c.writable()
		if err != nil {
			return nil, err
		}
		return &setMapOp{in: in, variable: p.Variable, mapExpr: p.Map, append: p.Append, graph: wg, ctx: c.rc, limiter: c.limiter}, nil

	case plan.SetLabels:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		wg, err := c.writable()
		if err != nil {
			return nil, err
		}
		return &setLabelsOp{in: in, variable: p.Variable, labels: p.Labels, graph: wg, limiter: c.limiter}, nil

	case plan.RemoveProperty:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		wg, err := c.writable()
		if err != nil {
			return nil, err
		}
		return &removePropertyOp{in: in, variable: p.Variable, property: p.Property, graph: wg, limiter: c.limiter}, nil

	case plan.RemoveLabels:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		wg, err := c.writable()
		if err != nil {
			return nil, err
		}
		return &removeLabelsOp{in: in, variable: p.Variable, labels: p.Labels, graph: wg, limiter: c.limiter}, nil

	case plan.Delete:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		wg, err := c.writable()
		if err != nil {
			return nil, err
		}
		return &deleteOp{in: in, detach: p.Detach, exprs: p.Exprs, graph: wg, ctx: c.rc, limiter: c.limiter}, nil

	case plan.Foreach:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		sub := p.Sub
		return &foreachOp{
			in: in, variable: p.Variable, list: p.List, ctx: c.rc, limiter: c.limiter,
			subGen: func(row Row) (Operator, error) { return build(sub, row, c) },
		}, nil

	case plan.Merge:
		in, err := build(p.Input, seed, c)
		if err != nil {
			return nil, err
		}
		wg, err := c.writable()
		if err != nil {
			return nil, err
		}
		return &mergeOp{in: in, pattern: p.Pattern, onCreate: p.OnCreate, onMatch: p.OnMatch, graph: wg, ctx: c.rc, limiter: c.limiter}, nil
	}

	return nil, fmt.Errorf("exec: unsupported plan node %T", node)
}

// planColumns statically recovers the column names a plan subtree produces,
// without running it: leftOuterJoinOp needs Right's columns to null out on
// an unmatched left row, and optionalWhereFixupOp needs Outer's columns to
// key its rejoin by (spec §4.10/§4.11). Every plan node kind that binds a
// new alias is listed explicitly; a node this switch doesn't recognize
// contributes no columns of its own.
func planColumns(n plan.Node) []string {
	if n == nil {
		return nil
	}
	switch p := n.(type) {
	case plan.ReturnOne:
		return nil
	case plan.Values:
		if len(p.Rows) == 0 {
			return nil
		}
		cols := make([]string, 0, len(p.Rows[0]))
		for k := range p.Rows[0] {
			cols = append(cols, k)
		}
		return cols
	case plan.NodeScan:
		return []string{p.Alias}
	case plan.IndexSeek:
		return []string{p.Alias}
	case plan.MatchExpand:
		cols := planColumns(p.Input)
		if p.RelAlias != "" {
			cols = append(cols, p.RelAlias)
		}
		cols = append(cols, p.DstAlias)
		if p.PathAlias != "" {
			cols = append(cols, p.PathAlias)
		}
		return cols
	case plan.MatchBoundRel:
		return append(planColumns(p.Input), p.SrcAlias, p.DstAlias)
	case plan.Expand:
		return append(planColumns(p.Input), p.As)
	case plan.Filter:
		return planColumns(p.Input)
	case plan.Project:
		cols := make([]string, len(p.Columns))
		for i, pc := range p.Columns {
			cols[i] = pc.Alias
		}
		return cols
	case plan.Aggregate:
		var cols []string
		for _, g := range p.GroupBy {
			cols = append(cols, g.Alias)
		}
		for _, a := range p.Aggregates {
			cols = append(cols, a.Alias)
		}
		return cols
	case plan.OrderBy:
		return planColumns(p.Input)
	case plan.Skip:
		return planColumns(p.Input)
	case plan.Limit:
		return planColumns(p.Input)
	case plan.Distinct:
		return planColumns(p.Input)
	case plan.Unwind:
		return append(planColumns(p.Input), p.Alias)
	case plan.CartesianProduct:
		return append(planColumns(p.Left), planColumns(p.Right)...)
	case plan.NestedLoopJoin:
		return append(planColumns(p.Left), planColumns(p.Right)...)
	case plan.LeftOuterJoin:
		return append(planColumns(p.Left), planColumns(p.Right)...)
	case plan.OptionalWhereFixup:
		return planColumns(p.Filtered)
	case plan.Apply:
		return append(planColumns(p.Input), planColumns(p.Subquery)...)
	case plan.ProcedureCall:
		cols := planColumns(p.Input)
		for _, y := range p.Yields {
			name := y.Alias
			if name == "" {
				name = y.Column
			}
			cols = append(cols, name)
		}
		return cols
	case plan.Union:
		return planColumns(p.Left)
	case plan.Create:
		return append(planColumns(p.Input), patternAliases(p.Pattern)...)
	case plan.SetProperty:
		return planColumns(p.Input)
	case plan.SetPropertiesFromMap:
		return planColumns(p.Input)
	case plan.SetLabels:
		return planColumns(p.Input)
	case plan.RemoveProperty:
		return planColumns(p.Input)
	case plan.RemoveLabels:
		return planColumns(p.Input)
	case plan.Delete:
		return planColumns(p.Input)
	case plan.Foreach:
		return planColumns(p.Input)
	case plan.Merge:
		return append(planColumns(p.Input), patternAliases(p.Pattern)...)
	}
	return nil
}

// patternAliases lists every variable a CREATE/MERGE pattern binds, in
// pattern order, including the path variable if named.
func patternAliases(p ast.Pattern) []string {
	var out []string
	for i, el := range p.Elements {
		if i%2 == 0 {
			if n, ok := el.(ast.NodePattern); ok && n.Variable != "" {
				out = append(out, n.Variable)
			}
		} else if r, ok := el.(ast.RelPattern); ok && r.Variable != "" {
			out = append(out, r.Variable)
		}
	}
	if p.PathVariable != "" {
		out = append(out, p.PathVariable)
	}
	return out
}
