package plan

import (
	"github.com/nervusdb/nervusdb/query/ast"
)

// Catalog lets the planner perform index selection: given a label and
// property name, report whether a secondary index exists that an equality
// predicate could seek against (spec §4.10, §4.6).
type Catalog interface {
	HasIndex(label, property string) bool
}

var aggregateFunctions = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"collect": true, "percentilecont": true, "percentiledisc": true, "stdev": true,
}

// Build compiles a parsed query into a physical plan tree. catalog may be
// nil, in which case index selection never fires and every node access
// falls back to a labeled scan.
func Build(q *ast.Query, catalog Catalog) (*Plan, error) {
	segments := splitOnUnion(q.Clauses)
	if len(segments) == 0 {
		return &Plan{Root: ReturnOne{}}, nil
	}
	first, firstCols, err := buildSegment(segments[0].clauses, catalog, NewScope())
	if err != nil {
		return nil, err
	}
	root := first
	for _, seg := range segments[1:] {
		next, _, err := buildSegment(seg.clauses, catalog, NewScope())
		if err != nil {
			return nil, err
		}
		root = Union{Left: root, Right: next, All: seg.all}
	}
	return &Plan{Root: root, Columns: firstCols}, nil
}

type unionSegment struct {
	clauses []ast.Clause
	all     bool // the All flag of the UnionClause that PRECEDES this segment
}

func splitOnUnion(clauses []ast.Clause) []unionSegment {
	var segs []unionSegment
	cur := unionSegment{}
	for _, c := range clauses {
		if u, ok := c.(ast.UnionClause); ok {
			segs = append(segs, cur)
			cur = unionSegment{all: u.All}
			continue
		}
		cur.clauses = append(cur.clauses, c)
	}
	segs = append(segs, cur)
	return segs
}

// buildSegment plans one union-free sequence of clauses, threading a
// running plan node and variable scope through each clause in order.
func buildSegment(clauses []ast.Clause, catalog Catalog, scope *Scope) (Node, []string, error) {
	var cur Node
	var columns []string
	for _, clause := range clauses {
		var err error
		switch c := clause.(type) {
		case ast.MatchClause:
			cur, err = buildMatch(cur, scope, catalog, c)
		case ast.WhereClause:
			cur, err = buildWhere(cur, scope, c)
		case ast.CreateClause:
			cur, err = buildCreate(cur, scope, c)
		case ast.MergeClause:
			cur, err = buildMerge(cur, scope, c)
		case ast.UnwindClause:
			cur, err = buildUnwind(cur, scope, c)
		case ast.CallClause:
			cur, err = buildCall(cur, scope, catalog, c)
		case ast.SetClause:
			cur, err = buildSet(cur, scope, c)
		case ast.RemoveClause:
			cur, err = buildRemove(cur, scope, c)
		case ast.DeleteClause:
			cur, err = buildDelete(cur, scope, c)
		case ast.ForeachClause:
			cur, err = buildForeach(cur, scope, catalog, c)
		case ast.WithClause:
			var cols []string
			cur, scope, cols, err = buildProjection(cur, scope, c.Distinct, c.Star, c.Items, c.OrderBy, c.Skip, c.Limit, c.Where, true)
			columns = cols
		case ast.ReturnClause:
			var cols []string
			cur, scope, cols, err = buildProjection(cur, scope, c.Distinct, c.Star, c.Items, c.OrderBy, c.Skip, c.Limit, nil, false)
			columns = cols
		default:
			err = errf(UnexpectedSyntax, "unsupported clause %T", clause)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	if cur == nil {
		cur = ReturnOne{}
	}
	return cur, columns, nil
}

// --- MATCH ---

func buildMatch(cur Node, scope *Scope, catalog Catalog, c ast.MatchClause) (Node, error) {
	if !c.Optional {
		var err error
		for _, pat := range c.Patterns {
			cur, err = linearizePattern(cur, scope, catalog, pat)
			if err != nil {
				return nil, err
			}
		}
		if c.Where != nil {
			cur = Filter{Input: cur, Predicate: c.Where}
		}
		return cur, nil
	}

	outer := cur
	innerScope := scope.Clone()
	before := map[string]bool{}
	for name := range innerScope.kinds {
		before[name] = true
	}
	filtered := cur
	var err error
	for _, pat := range c.Patterns {
		filtered, err = linearizePattern(filtered, innerScope, catalog, pat)
		if err != nil {
			return nil, err
		}
	}
	if c.Where != nil {
		filtered = Filter{Input: filtered, Predicate: c.Where}
	}
	var nullAliases []string
	for name := range innerScope.kinds {
		if !before[name] {
			nullAliases = append(nullAliases, name)
			scope.kinds[name] = innerScope.kinds[name]
			scope.order = append(scope.order, name)
		}
	}
	return OptionalWhereFixup{Outer: outer, Filtered: filtered, NullAliases: nullAliases}, nil
}

// linearizePattern rewrites one pattern into a chain of scans/expands,
// reusing already-bound aliases as anchors (spec §4.10's "pattern
// linearization": reverse the pattern if the tail is bound and the head is
// not — here achieved by always anchoring on whichever endpoint is already
// in scope, walking left-to-right otherwise).
func linearizePattern(cur Node, scope *Scope, catalog Catalog, pat ast.Pattern) (Node, error) {
	if len(pat.Elements) == 0 {
		return cur, nil
	}
	nodes := make([]ast.NodePattern, 0)
	rels := make([]ast.RelPattern, 0)
	for i, el := range pat.Elements {
		if i%2 == 0 {
			nodes = append(nodes, el.(ast.NodePattern))
		} else {
			rels = append(rels, el.(ast.RelPattern))
		}
	}

	// Anchor: reverse the whole chain if the tail node is already bound and
	// the head is not, so expansion always proceeds from a known endpoint.
	headBound := nodes[0].Variable != "" && isBound(scope, nodes[0].Variable)
	tailBound := nodes[len(nodes)-1].Variable != "" && isBound(scope, nodes[len(nodes)-1].Variable)
	if !headBound && tailBound && len(nodes) > 1 {
		nodes, rels = reversePattern(nodes, rels)
	}

	first := nodes[0]
	var err error
	cur, err = bindOrScanNode(cur, scope, catalog, first)
	if err != nil {
		return nil, err
	}
	for i, rel := range rels {
		srcAlias := aliasOf(nodes[i], i)
		dstNode := nodes[i+1]
		dstAlias := aliasOf(dstNode, i+1)
		srcPrebound := nodes[i].Variable != "" && isBound(scope, nodes[i].Variable) || i > 0

		direction := rel.Direction
		cur = MatchExpand{
			Direction:      direction,
			Input:          cur,
			SrcAlias:       srcAlias,
			RelAlias:       rel.Variable,
			RelTypes:       rel.Types,
			DstAlias:       dstAlias,
			DstLabels:      dstNode.Labels,
			SrcPrebound:    srcPrebound,
			PathAlias:      pat.PathVariable,
			VarLength:      rel.VarLength,
			Optional:       false,
		}
		if rel.Variable != "" {
			kind := KindRelationship
			if rel.VarLength != nil {
				kind = KindRelationshipList
			}
			if err := scope.Bind(rel.Variable, kind); err != nil {
				return nil, err
			}
		}
		if err := bindNodeAlias(scope, dstNode); err != nil {
			return nil, err
		}
		if dstNode.Properties != nil {
			cur, err = pushPropertyFilter(cur, dstAlias, dstNode.Properties)
			if err != nil {
				return nil, err
			}
		}
		if rel.Properties != nil && rel.Variable != "" {
			cur, err = pushPropertyFilter(cur, rel.Variable, rel.Properties)
			if err != nil {
				return nil, err
			}
		}
	}
	if pat.PathVariable != "" {
		if err := scope.Bind(pat.PathVariable, KindPath); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func reversePattern(nodes []ast.NodePattern, rels []ast.RelPattern) ([]ast.NodePattern, []ast.RelPattern) {
	rn := make([]ast.NodePattern, len(nodes))
	for i, n := range nodes {
		rn[len(nodes)-1-i] = n
	}
	rr := make([]ast.RelPattern, len(rels))
	for i, r := range rels {
		rc := r
		switch rc.Direction {
		case ast.DirOut:
			rc.Direction = ast.DirIn
		case ast.DirIn:
			rc.Direction = ast.DirOut
		}
		rr[len(rels)-1-i] = rc
	}
	return rn, rr
}

func aliasOf(n ast.NodePattern, idx int) string {
	if n.Variable != "" {
		return n.Variable
	}
	return anonAlias(idx)
}

func anonAlias(idx int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "$anon" + string(letters[idx%len(letters)])
}

func isBound(scope *Scope, name string) bool {
	_, ok := scope.Lookup(name)
	return ok
}

func bindNodeAlias(scope *Scope, n ast.NodePattern) error {
	if n.Variable == "" {
		return nil
	}
	return scope.Bind(n.Variable, KindNode)
}

func bindOrScanNode(cur Node, scope *Scope, catalog Catalog, n ast.NodePattern) (Node, error) {
	alias := n.Variable
	if alias != "" && isBound(scope, alias) {
		if n.Properties != nil {
			var err error
			cur, err = pushPropertyFilter(cur, alias, n.Properties)
			return cur, err
		}
		return cur, nil
	}
	label := ""
	if len(n.Labels) > 0 {
		label = n.Labels[0]
	}
	var scan Node = NodeScan{Alias: displayAlias(alias), Label: label}
	if n.Properties != nil && label != "" && catalog != nil {
		for i, k := range n.Properties.Keys {
			if catalog.HasIndex(label, k) {
				scan = IndexSeek{
					Alias:     displayAlias(alias),
					Label:     label,
					Property:  k,
					ValueExpr: n.Properties.Values[i],
					Fallback:  NodeScan{Alias: displayAlias(alias), Label: label},
				}
				break
			}
		}
	}
	if err := bindNodeAlias(scope, n); err != nil {
		return nil, err
	}
	if cur == nil {
		cur = scan
	} else {
		cur = CartesianProduct{Left: cur, Right: scan}
	}
	if n.Properties != nil {
		if _, isSeek := scan.(IndexSeek); !isSeek {
			var err error
			cur, err = pushPropertyFilter(cur, displayAlias(alias), n.Properties)
			if err != nil {
				return nil, err
			}
		}
	}
	return cur, nil
}

func displayAlias(alias string) string {
	if alias == "" {
		return "$anon"
	}
	return alias
}

// pushPropertyFilter wraps cur in a Filter testing every key of props
// against the corresponding equality, realizing the planner's predicate
// push-down for inline pattern property maps.
func pushPropertyFilter(cur Node, alias string, props *ast.MapLiteral) (Node, error) {
	var pred ast.Expr
	for i, k := range props.Keys {
		eq := ast.BinaryExpr{
			Op:   ast.OpEq,
			Left: ast.PropertyAccess{Target: ast.Variable{Name: alias}, Key: k},
			Right: props.Values[i],
		}
		if pred == nil {
			pred = eq
		} else {
			pred = ast.BinaryExpr{Op: ast.OpAnd, Left: pred, Right: eq}
		}
	}
	if pred == nil {
		return cur, nil
	}
	return Filter{Input: cur, Predicate: pred}, nil
}

// --- WHERE ---

func buildWhere(cur Node, scope *Scope, c ast.WhereClause) (Node, error) {
	return Filter{Input: cur, Predicate: c.Expr}, nil
}

// --- CREATE ---

func buildCreate(cur Node, scope *Scope, c ast.CreateClause) (Node, error) {
	for _, pat := range c.Patterns {
		if err := validateNoVarLength(pat); err != nil {
			return nil, err
		}
		if err := bindPatternAliases(scope, pat); err != nil {
			return nil, err
		}
		cur = Create{Input: cur, Pattern: pat}
	}
	return cur, nil
}

func validateNoVarLength(pat ast.Pattern) error {
	for _, el := range pat.Elements {
		if r, ok := el.(ast.RelPattern); ok && r.VarLength != nil {
			return errf(CreatingVarLength, "cannot CREATE a variable-length relationship")
		}
	}
	return nil
}

func bindPatternAliases(scope *Scope, pat ast.Pattern) error {
	for _, el := range pat.Elements {
		switch e := el.(type) {
		case ast.NodePattern:
			if e.Variable != "" {
				if err := scope.Bind(e.Variable, KindNode); err != nil {
					return err
				}
			}
		case ast.RelPattern:
			if e.Variable != "" {
				if err := scope.Bind(e.Variable, KindRelationship); err != nil {
					return err
				}
			}
		}
	}
	if pat.PathVariable != "" {
		return scope.Bind(pat.PathVariable, KindPath)
	}
	return nil
}

// --- MERGE ---

func buildMerge(cur Node, scope *Scope, c ast.MergeClause) (Node, error) {
	if err := validateNoVarLength(c.Pattern); err != nil {
		return nil, err
	}
	if err := bindPatternAliases(scope, c.Pattern); err != nil {
		return nil, err
	}
	return Merge{Input: cur, Pattern: c.Pattern, OnCreate: c.OnCreate, OnMatch: c.OnMatch}, nil
}

// --- UNWIND ---

func buildUnwind(cur Node, scope *Scope, c ast.UnwindClause) (Node, error) {
	if err := scope.Bind(c.Variable, KindScalar); err != nil {
		return nil, err
	}
	return Unwind{Input: cur, Expr: c.Expr, Alias: c.Variable}, nil
}

// --- CALL ---

func buildCall(cur Node, scope *Scope, catalog Catalog, c ast.CallClause) (Node, error) {
	if c.Subquery != nil {
		sub, _, err := buildSegment(c.Subquery, catalog, scope.Clone())
		if err != nil {
			return nil, err
		}
		return Apply{Input: cur, Subquery: sub}, nil
	}
	for _, y := range c.Yields {
		name := y.Alias
		if name == "" {
			name = y.Column
		}
		if err := scope.Bind(name, KindScalar); err != nil {
			return nil, err
		}
	}
	return ProcedureCall{Input: cur, Name: c.Procedure, Args: c.Args, Yields: c.Yields}, nil
}

// --- SET / REMOVE / DELETE ---

func buildSet(cur Node, scope *Scope, c ast.SetClause) (Node, error) {
	for _, item := range c.Items {
		switch {
		case len(item.Labels) > 0:
			cur = SetLabels{Input: cur, Variable: item.Variable, Labels: item.Labels}
		case item.Map != nil:
			cur = SetPropertiesFromMap{Input: cur, Variable: item.Variable, Map: item.Map, Append: item.Append}
		default:
			cur = SetProperty{Input: cur, Variable: item.Variable, Property: item.Property, Value: item.Value}
		}
	}
	return cur, nil
}

func buildRemove(cur Node, scope *Scope, c ast.RemoveClause) (Node, error) {
	for _, item := range c.Items {
		if len(item.Labels) > 0 {
			cur = RemoveLabels{Input: cur, Variable: item.Variable, Labels: item.Labels}
		} else {
			cur = RemoveProperty{Input: cur, Variable: item.Variable, Property: item.Property}
		}
	}
	return cur, nil
}

func buildDelete(cur Node, scope *Scope, c ast.DeleteClause) (Node, error) {
	for _, e := range c.Exprs {
		v, ok := e.(ast.Variable)
		if !ok {
			return nil, errf(InvalidDelete, "DELETE target must be a bound variable")
		}
		kind, err := scope.MustLookup(v.Name)
		if err != nil {
			return nil, err
		}
		if kind != KindNode && kind != KindRelationship && kind != KindPath {
			return nil, errf(InvalidDelete, "cannot DELETE %q: not a node, relationship, or path", v.Name)
		}
	}
	return Delete{Input: cur, Detach: c.Detach, Exprs: c.Exprs}, nil
}

// --- FOREACH ---

func buildForeach(cur Node, scope *Scope, catalog Catalog, c ast.ForeachClause) (Node, error) {
	inner := scope.Clone()
	if err := inner.Bind(c.Variable, KindScalar); err != nil {
		return nil, err
	}
	sub, _, err := buildSegment(c.Do, catalog, inner)
	if err != nil {
		return nil, err
	}
	return Foreach{Input: cur, Variable: c.Variable, List: c.List, Sub: sub}, nil
}

// --- RETURN / WITH ---

func buildProjection(cur Node, scope *Scope, distinct, star bool, items []ast.ReturnItem, orderBy []ast.OrderItem, skip, limit ast.Expr, where ast.Expr, isWith bool) (Node, *Scope, []string, error) {
	var columns []string
	nextScope := NewScope()

	if star {
		for _, name := range scope.order {
			kind, _ := scope.Lookup(name)
			nextScope.Bind(name, kind)
			columns = append(columns, name)
		}
		if where != nil {
			cur = Filter{Input: cur, Predicate: where}
		}
		cur = finishProjectionTail(cur, distinct, orderBy, skip, limit)
		return cur, nextScope, columns, nil
	}

	groupBy, aggregates, isAgg := recognizeAggregates(items)
	if isAgg {
		var aggItems []AggregateItem
		for _, it := range aggregates {
			aggItems = append(aggItems, it)
			nextScope.Bind(it.Alias, KindScalar)
			columns = append(columns, it.Alias)
		}
		var groupItems []AggregateItem
		for _, it := range groupBy {
			groupItems = append(groupItems, it)
			nextScope.Bind(it.Alias, KindScalar)
			columns = append(columns, it.Alias)
		}
		cur = Aggregate{Input: cur, GroupBy: groupItems, Aggregates: aggItems}
	} else {
		var cols []ProjectColumn
		for _, it := range items {
			alias := it.Alias
			if alias == "" {
				if v, ok := it.Expr.(ast.Variable); ok {
					alias = v.Name
				} else {
					alias = "expr"
				}
			}
			cols = append(cols, ProjectColumn{Expr: it.Expr, Alias: alias})
			kind := KindScalar
			if v, ok := it.Expr.(ast.Variable); ok {
				if k, ok2 := scope.Lookup(v.Name); ok2 {
					kind = k
				}
			}
			nextScope.Bind(alias, kind)
			columns = append(columns, alias)
		}
		cur = Project{Input: cur, Columns: cols}
	}

	if where != nil {
		cur = Filter{Input: cur, Predicate: where}
	}
	cur = finishProjectionTail(cur, distinct, orderBy, skip, limit)
	return cur, nextScope, columns, nil
}

func finishProjectionTail(cur Node, distinct bool, orderBy []ast.OrderItem, skip, limit ast.Expr) Node {
	if len(orderBy) > 0 {
		cur = OrderBy{Input: cur, Items: orderBy}
	}
	if distinct {
		cur = Distinct{Input: cur}
	}
	if skip != nil {
		cur = Skip{Input: cur, Expr: skip}
	}
	if limit != nil {
		cur = Limit{Input: cur, Expr: limit}
	}
	return cur
}

// recognizeAggregates rewrites RETURN/WITH items into group-by and
// aggregate buckets whenever at least one item invokes an aggregate
// function, per spec §4.10. Plain items become implicit GROUP BY keys.
func recognizeAggregates(items []ast.ReturnItem) ([]AggregateItem, []AggregateItem, bool) {
	hasAgg := false
	for _, it := range items {
		if containsAggregate(it.Expr) {
			hasAgg = true
			break
		}
	}
	if !hasAgg {
		return nil, nil, false
	}
	var groupBy, aggregates []AggregateItem
	for _, it := range items {
		alias := it.Alias
		if call, ok := it.Expr.(ast.FunctionCall); ok && aggregateFunctions[lower(call.Name)] {
			if alias == "" {
				alias = lower(call.Name)
			}
			item := AggregateItem{Alias: alias, Agg: lower(call.Name), Distinct: call.Distinct}
			// count(*) reaches the planner with zero arguments; every other
			// aggregate takes exactly one.
			if len(call.Args) == 1 {
				item.AggArg = call.Args[0]
			} else {
				item.CountStar = true
			}
			aggregates = append(aggregates, item)
			continue
		}
		if alias == "" {
			if v, ok := it.Expr.(ast.Variable); ok {
				alias = v.Name
			} else {
				alias = "expr"
			}
		}
		groupBy = append(groupBy, AggregateItem{Expr: it.Expr, Alias: alias})
	}
	return groupBy, aggregates, true
}

func containsAggregate(e ast.Expr) bool {
	switch n := e.(type) {
	case ast.FunctionCall:
		if aggregateFunctions[lower(n.Name)] {
			return true
		}
		for _, a := range n.Args {
			if containsAggregate(a) {
				return true
			}
		}
	case ast.BinaryExpr:
		return containsAggregate(n.Left) || containsAggregate(n.Right)
	case ast.UnaryExpr:
		return containsAggregate(n.Operand)
	case ast.CaseExpr:
		for _, alt := range n.Alternatives {
			if containsAggregate(alt.When) || containsAggregate(alt.Then) {
				return true
			}
		}
		if n.Else != nil {
			return containsAggregate(n.Else)
		}
	}
	return false
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
