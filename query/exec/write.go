package exec

import (
	"github.com/nervusdb/nervusdb"
	"github.com/nervusdb/nervusdb/query/ast"
	"github.com/nervusdb/nervusdb/query/eval"
)

// createOp stages one new node/relationship pattern per input row (spec
// §4.11 CREATE). Node variables already bound in the row (e.g. CREATE
// anchored on a variable MATCHed earlier) are reused as-is rather than
// creating a duplicate node; every unbound node/relationship element in
// the pattern is freshly created.
type createOp struct {
	in      Operator
	pattern ast.Pattern
	graph   WriteableGraph
	ctx     *rowCtx
	limiter *limiter

	// mergeFlag marks this Create as MERGE's "else create" branch, so the
	// same helper creates the pattern regardless of Input's row count:
	// MERGE calls it directly rather than through Next().
	mergeFlag bool
}

// materializePattern creates (or reuses) every element of pattern against
// row, returning the row extended with every alias the pattern binds.
func materializePattern(g WriteableGraph, ctx *rowCtx, row Row, pattern ast.Pattern) (Row, error) {
	ev := ctx.evaluator(row)
	nodes := make([]ast.NodePattern, 0)
	rels := make([]ast.RelPattern, 0)
	for i, el := range pattern.Elements {
		if i%2 == 0 {
			nodes = append(nodes, el.(ast.NodePattern))
		} else {
			rels = append(rels, el.(ast.RelPattern))
		}
	}

	internals := make([]uint32, len(nodes))
	for i, n := range nodes {
		if n.Variable != "" {
			if v, ok := row.Get(n.Variable); ok && v.Kind == eval.KindNode {
				internals[i] = v.Node
				continue
			}
		}
		internal, err := createPatternNode(g, ev, n)
		if err != nil {
			return Row{}, err
		}
		internals[i] = internal
		if n.Variable != "" {
			row = row.With(n.Variable, eval.NodeVal(internal))
		}
	}

	var pathNodes []uint32
	var pathEdges []eval.EdgeRef
	if pattern.PathVariable != "" {
		pathNodes = append(pathNodes, internals[0])
	}

	for i, r := range rels {
		src, dst := internals[i], internals[i+1]
		if r.Direction == ast.DirIn {
			src, dst = dst, src
		}
		relName := ""
		if len(r.Types) > 0 {
			relName = r.Types[0]
		}
		relID := g.ResolveRelTypeIDCreate(relName)
		g.CreateEdge(src, relID, dst)
		ref := eval.EdgeRef{Src: src, Rel: relID, Dst: dst}
		if r.Properties != nil {
			if err := applyPropertyMap(g, ctx, row, propTargetEdge(ref), r.Properties, false); err != nil {
				return Row{}, err
			}
		}
		if r.Variable != "" {
			row = row.With(r.Variable, eval.EdgeVal(ref))
		}
		if pattern.PathVariable != "" {
			pathEdges = append(pathEdges, ref)
			pathNodes = append(pathNodes, internals[i+1])
		}
	}

	if pattern.PathVariable != "" {
		row = row.With(pattern.PathVariable, eval.PathVal(eval.PathRef{Nodes: pathNodes, Edges: pathEdges}))
	}

	for i, n := range nodes {
		if n.Properties != nil {
			if err := applyPropertyMap(g, ctx, row, propTargetNode(internals[i]), n.Properties, false); err != nil {
				return Row{}, err
			}
		}
	}

	return row, nil
}

func createPatternNode(g WriteableGraph, ev *eval.Evaluator, n ast.NodePattern) (uint32, error) {
	primary := ""
	var extra []string
	if len(n.Labels) > 0 {
		primary = n.Labels[0]
		extra = n.Labels[1:]
	}
	return g.CreateNode(primary, extra...), nil
}

func (o *createOp) Next() (Row, bool, error) {
	row, more, err := o.in.Next()
	if err != nil || !more {
		return Row{}, false, err
	}
	out, err := materializePattern(o.graph, o.ctx, row, o.pattern)
	if err != nil {
		return Row{}, false, err
	}
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return out, true, nil
}

// propTarget names whether a property-set call targets a node or a
// relationship, since WriteableGraph exposes distinct setters for each.
type propTarget struct {
	isEdge bool
	node   uint32
	edge   eval.EdgeRef
}

func propTargetNode(n uint32) propTarget        { return propTarget{node: n} }
func propTargetEdge(e eval.EdgeRef) propTarget  { return propTarget{isEdge: true, edge: e} }

func (t propTarget) set(g WriteableGraph, key string, v eval.Value) {
	sv, ok := eval.ToStorage(v)
	if !ok || v.IsNull() {
		t.remove(g, key)
		return
	}
	if t.isEdge {
		g.SetEdgeProperty(t.edge, key, sv)
	} else {
		g.SetNodeProperty(t.node, key, sv)
	}
}

func (t propTarget) remove(g WriteableGraph, key string) {
	if t.isEdge {
		g.RemoveEdgeProperty(t.edge, key)
	} else {
		g.RemoveNodeProperty(t.node, key)
	}
}

func (t propTarget) currentProperties(g WriteableGraph) map[string]eval.Value {
	var raw map[string]Value
	if t.isEdge {
		raw = g.EdgeProperties(t.edge)
	} else {
		raw = g.NodeProperties(t.node)
	}
	out := make(map[string]eval.Value, len(raw))
	for k, v := range raw {
		out[k] = eval.FromStorage(v)
	}
	return out
}

// applyPropertyMap sets every key of a literal inline pattern map (e.g.
// `(n {a: 1})`) or the evaluated right-hand side of `SET n = {...}`/`SET n
// += {...}` (append). A non-append map replaces the target's entire
// property set, so any existing key absent from the new map is removed.
func applyPropertyMap(g WriteableGraph, ctx *rowCtx, row Row, t propTarget, m ast.Expr, append bool) error {
	ev := ctx.evaluator(row)
	var keys []string
	var values map[string]eval.Value
	if lit, ok := m.(*ast.MapLiteral); ok {
		keys = lit.Keys
		values = make(map[string]eval.Value, len(lit.Keys))
		for i, k := range lit.Keys {
			v, err := ev.Eval(lit.Values[i])
			if err != nil {
				return err
			}
			values[k] = v
		}
	} else {
		v, err := ev.Eval(m)
		if err != nil {
			return err
		}
		if v.Kind != eval.KindMap {
			return &TypeError{Op: "SET", Detail: "expects a Map"}
		}
		keys = v.Keys
		values = v.Map
	}

	if !append {
		for k := range t.currentProperties(g) {
			if _, keep := values[k]; !keep {
				t.remove(g, k)
			}
		}
	}
	for _, k := range keys {
		t.set(g, k, values[k])
	}
	return nil
}

func bindingTargetNode(row Row, variable string) (uint32, error) {
	v, ok := row.Get(variable)
	if !ok || v.Kind != eval.KindNode {
		return 0, &TypeError{Op: "write", Detail: "variable does not hold a Node"}
	}
	return v.Node, nil
}

func bindingTargetEdge(row Row, variable string) (eval.EdgeRef, error) {
	v, ok := row.Get(variable)
	if !ok || v.Kind != eval.KindEdge {
		return eval.EdgeRef{}, &TypeError{Op: "write", Detail: "variable does not hold a Relationship"}
	}
	return v.Edge, nil
}

func bindingTarget(row Row, variable string) (propTarget, error) {
	v, ok := row.Get(variable)
	if !ok {
		return propTarget{}, &TypeError{Op: "write", Detail: "variable is not bound"}
	}
	switch v.Kind {
	case eval.KindNode:
		return propTargetNode(v.Node), nil
	case eval.KindEdge:
		return propTargetEdge(v.Edge), nil
	default:
		return propTarget{}, &TypeError{Op: "write", Detail: "expects a Node or Relationship"}
	}
}

// setPropertyOp applies `SET n.prop = expr` to each input row.
type setPropertyOp struct {
	in       Operator
	variable string
	property string
	value    ast.Expr
	graph    WriteableGraph
	ctx      *rowCtx
	limiter  *limiter
}

func (o *setPropertyOp) Next() (Row, bool, error) {
	row, more, err := o.in.Next()
	if err != nil || !more {
		return Row{}, false, err
	}
	target, err := bindingTarget(row, o.variable)
	if err != nil {
		return Row{}, false, err
	}
	v, err := o.ctx.evaluator(row).Eval(o.value)
	if err != nil {
		return Row{}, false, err
	}
	target.set(o.graph, o.property, v)
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// setMapOp applies `SET n = {...}` (replace) or `SET n += {...}` (append).
type setMapOp struct {
	in       Operator
	variable string
	mapExpr  ast.Expr
	append   bool
	graph    WriteableGraph
	ctx      *rowCtx
	limiter  *limiter
}

func (o *setMapOp) Next() (Row, bool, error) {
	row, more, err := o.in.Next()
	if err != nil || !more {
		return Row{}, false, err
	}
	target, err := bindingTarget(row, o.variable)
	if err != nil {
		return Row{}, false, err
	}
	if err := applyPropertyMap(o.graph, o.ctx, row, target, o.mapExpr, o.append); err != nil {
		return Row{}, false, err
	}
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// setLabelsOp applies `SET n:Label1:Label2`.
type setLabelsOp struct {
	in       Operator
	variable string
	labels   []string
	graph    WriteableGraph
	limiter  *limiter
}

func (o *setLabelsOp) Next() (Row, bool, error) {
	row, more, err := o.in.Next()
	if err != nil || !more {
		return Row{}, false, err
	}
	internal, err := bindingTargetNode(row, o.variable)
	if err != nil {
		return Row{}, false, err
	}
	for _, l := range o.labels {
		o.graph.AddLabelName(internal, l)
	}
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// removePropertyOp applies `REMOVE n.prop`.
type removePropertyOp struct {
	in       Operator
	variable string
	property string
	graph    WriteableGraph
	limiter  *limiter
}

func (o *removePropertyOp) Next() (Row, bool, error) {
	row, more, err := o.in.Next()
	if err != nil || !more {
		return Row{}, false, err
	}
	target, err := bindingTarget(row, o.variable)
	if err != nil {
		return Row{}, false, err
	}
	target.remove(o.graph, o.property)
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// removeLabelsOp applies `REMOVE n:Label1:Label2`.
type removeLabelsOp struct {
	in       Operator
	variable string
	labels   []string
	graph    WriteableGraph
	limiter  *limiter
}

func (o *removeLabelsOp) Next() (Row, bool, error) {
	row, more, err := o.in.Next()
	if err != nil || !more {
		return Row{}, false, err
	}
	internal, err := bindingTargetNode(row, o.variable)
	if err != nil {
		return Row{}, false, err
	}
	for _, l := range o.labels {
		if err := o.graph.RemoveLabelName(internal, l); err != nil {
			return Row{}, false, err
		}
	}
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// deleteOp applies DELETE/DETACH DELETE to every listed variable of each
// input row (spec §4.11, §7 property P7: deleting a connected node without
// DETACH is an error).
type deleteOp struct {
	in      Operator
	detach  bool
	exprs   []ast.Expr
	graph   WriteableGraph
	ctx     *rowCtx
	limiter *limiter
}

func (o *deleteOp) Next() (Row, bool, error) {
	row, more, err := o.in.Next()
	if err != nil || !more {
		return Row{}, false, err
	}
	for _, e := range o.exprs {
		v, err := o.ctx.evaluator(row).Eval(e)
		if err != nil {
			return Row{}, false, err
		}
		switch v.Kind {
		case eval.KindNode:
			if err := o.deleteNode(v.Node); err != nil {
				return Row{}, false, err
			}
		case eval.KindEdge:
			o.graph.TombstoneEdge(v.Edge.Src, v.Edge.Rel, v.Edge.Dst)
		case eval.KindPath:
			for _, edge := range v.Path.Edges {
				o.graph.TombstoneEdge(edge.Src, edge.Rel, edge.Dst)
			}
			for _, n := range v.Path.Nodes {
				if err := o.deleteNode(n); err != nil {
					return Row{}, false, err
				}
			}
		case eval.KindNull:
			// DELETE of a null binding (e.g. from an unmatched OPTIONAL
			// MATCH) is a no-op.
		default:
			return Row{}, false, &TypeError{Op: "DELETE", Detail: "target must be a Node, Relationship, or Path"}
		}
	}
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

func (o *deleteOp) deleteNode(internal uint32) error {
	if o.graph.IsTombstonedNode(internal) {
		return nil
	}
	if o.detach {
		o.graph.ForEachNeighbor(internal, nil, func(e eval.EdgeRef) bool {
			o.graph.TombstoneEdge(e.Src, e.Rel, e.Dst)
			return true
		})
		o.graph.ForEachIncoming(internal, nil, func(e eval.EdgeRef) bool {
			o.graph.TombstoneEdge(e.Src, e.Rel, e.Dst)
			return true
		})
	} else if o.graph.HasOutgoingEdges(internal) {
		return &nervusdb.DeleteConnectedNodeError{InternalID: internal}
	}
	o.graph.TombstoneNode(internal)
	return nil
}

// foreachOp runs Sub once per element of List, with Variable bound to that
// element, for each input row (spec §4.11 FOREACH). It ignores Sub's output
// rows entirely: FOREACH exists purely for its write side effects.
type foreachOp struct {
	in       Operator
	variable string
	list     ast.Expr
	subGen   func(row Row) (Operator, error)
	ctx      *rowCtx
	limiter  *limiter
}

func (o *foreachOp) Next() (Row, bool, error) {
	row, more, err := o.in.Next()
	if err != nil || !more {
		return Row{}, false, err
	}
	v, err := o.ctx.evaluator(row).Eval(o.list)
	if err != nil {
		return Row{}, false, err
	}
	var items []eval.Value
	if v.Kind == eval.KindList {
		if err := o.limiter.checkCollection(len(v.List)); err != nil {
			return Row{}, false, err
		}
		items = v.List
	} else if !v.IsNull() {
		items = []eval.Value{v}
	}
	for _, item := range items {
		sub, err := o.subGen(row.With(o.variable, item))
		if err != nil {
			return Row{}, false, err
		}
		for {
			_, more, err := sub.Next()
			if err != nil {
				return Row{}, false, err
			}
			if !more {
				break
			}
		}
	}
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// mergeOp implements MERGE's "match, else create" decision per input row
// (spec §4.10/§4.11, property P6 idempotence): it runs the pattern as a
// match against the current row; any resulting rows have OnMatch applied,
// and if none match, the pattern is created once and OnCreate applied.
// Matching is a simplified re-walk of the pattern (not the planner's full
// linearizePattern) since MERGE's pattern, unlike MATCH's, never needs
// index selection or optional-match fixup — every element either reuses an
// already-bound alias or is searched for by direct label/type/property scan.
type mergeOp struct {
	in       Operator
	pattern  ast.Pattern
	onCreate []ast.SetItem
	onMatch  []ast.SetItem
	graph    WriteableGraph
	ctx      *rowCtx
	limiter  *limiter

	pending []Row
	ppos    int
}

func (o *mergeOp) matchPattern(row Row) ([]Row, error) {
	return matchPatternRows(o.graph, o.ctx, row, o.pattern)
}

// matchPatternRows walks pattern against row, reusing any alias row already
// binds as an anchor and otherwise searching by direct label/type/property
// scan, returning every row the pattern matches. It is shared by mergeOp's
// "try the match" step and build.go's EXISTS{pattern} evaluation (spec
// §4.10/§4.11): neither needs the planner's full
// linearizePattern, since both only ever run against a graph that's already
// known, never against an index.
func matchPatternRows(g GraphAccess, ctx *rowCtx, row Row, pattern ast.Pattern) ([]Row, error) {
	nodes := make([]ast.NodePattern, 0)
	rels := make([]ast.RelPattern, 0)
	for i, el := range pattern.Elements {
		if i%2 == 0 {
			nodes = append(nodes, el.(ast.NodePattern))
		} else {
			rels = append(rels, el.(ast.RelPattern))
		}
	}

	candidates := []Row{row}
	boundInternals := make([][]uint32, 1)

	for i, n := range nodes {
		var next []Row
		var nextInternals [][]uint32
		for ci, cand := range candidates {
			if n.Variable != "" {
				if v, ok := cand.Get(n.Variable); ok && v.Kind == eval.KindNode {
					if !nodeMatchesFilters(g, ctx, v.Node, n, cand) {
						continue
					}
					next = append(next, cand)
					ids := append(append([]uint32(nil), boundInternals[ci]...), v.Node)
					nextInternals = append(nextInternals, ids)
					continue
				}
			}
			if i == 0 {
				g.ForEachNode(func(internal uint32) bool {
					if !nodeMatchesFilters(g, ctx, internal, n, cand) {
						return true
					}
					r := cand
					if n.Variable != "" {
						r = r.With(n.Variable, eval.NodeVal(internal))
					}
					next = append(next, r)
					nextInternals = append(nextInternals, append(append([]uint32(nil), boundInternals[ci]...), internal))
					return true
				})
				continue
			}
			src := boundInternals[ci][i-1]
			rel := rels[i-1]
			walkRel(g, src, rel, func(edge eval.EdgeRef, dst uint32) {
				if !nodeMatchesFilters(g, ctx, dst, n, cand) {
					return
				}
				r := cand
				if rel.Variable != "" {
					r = r.With(rel.Variable, eval.EdgeVal(edge))
				}
				if n.Variable != "" {
					r = r.With(n.Variable, eval.NodeVal(dst))
				}
				next = append(next, r)
				nextInternals = append(nextInternals, append(append([]uint32(nil), boundInternals[ci]...), dst))
			})
		}
		candidates = next
		boundInternals = nextInternals
		if len(candidates) == 0 {
			return nil, nil
		}
	}
	return candidates, nil
}

func walkRel(g GraphAccess, src uint32, rel ast.RelPattern, visit func(eval.EdgeRef, uint32)) {
	switch rel.Direction {
	case ast.DirOut:
		g.ForEachNeighbor(src, nil, func(e eval.EdgeRef) bool {
			if relAllowed(g, e.Rel, rel) {
				visit(e, e.Dst)
			}
			return true
		})
	case ast.DirIn:
		g.ForEachIncoming(src, nil, func(e eval.EdgeRef) bool {
			if relAllowed(g, e.Rel, rel) {
				visit(e, e.Src)
			}
			return true
		})
	default:
		g.ForEachNeighbor(src, nil, func(e eval.EdgeRef) bool {
			if relAllowed(g, e.Rel, rel) {
				visit(e, e.Dst)
			}
			return true
		})
		g.ForEachIncoming(src, nil, func(e eval.EdgeRef) bool {
			if relAllowed(g, e.Rel, rel) {
				visit(e, e.Src)
			}
			return true
		})
	}
}

func relAllowed(g GraphAccess, rel uint32, pat ast.RelPattern) bool {
	if len(pat.Types) == 0 {
		return true
	}
	for _, t := range pat.Types {
		if id, ok := g.ResolveRelTypeID(t); ok && id == rel {
			return true
		}
	}
	return false
}

func nodeMatchesFilters(g GraphAccess, ctx *rowCtx, internal uint32, n ast.NodePattern, row Row) bool {
	if g.IsTombstonedNode(internal) {
		return false
	}
	for _, l := range n.Labels {
		id, ok := g.ResolveLabelID(l)
		if !ok {
			return false
		}
		found := false
		for _, have := range g.Labels(internal) {
			if have == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if n.Properties != nil {
		ev := ctx.evaluator(row)
		props := g.NodeProperties(internal)
		for i, k := range n.Properties.Keys {
			want, err := ev.Eval(n.Properties.Values[i])
			if err != nil {
				return false
			}
			got, ok := props[k]
			if !ok || !eval.FromStorage(got).Equal(want) {
				return false
			}
		}
	}
	return true
}

func (o *mergeOp) applySetItems(row Row, items []ast.SetItem) (Row, error) {
	for _, item := range items {
		switch {
		case len(item.Labels) > 0:
			internal, err := bindingTargetNode(row, item.Variable)
			if err != nil {
				return Row{}, err
			}
			for _, l := range item.Labels {
				o.graph.AddLabelName(internal, l)
			}
		case item.Map != nil:
			target, err := bindingTarget(row, item.Variable)
			if err != nil {
				return Row{}, err
			}
			if err := applyPropertyMap(o.graph, o.ctx, row, target, item.Map, item.Append); err != nil {
				return Row{}, err
			}
		default:
			target, err := bindingTarget(row, item.Variable)
			if err != nil {
				return Row{}, err
			}
			v, err := o.ctx.evaluator(row).Eval(item.Value)
			if err != nil {
				return Row{}, err
			}
			target.set(o.graph, item.Property, v)
		}
	}
	return row, nil
}

func (o *mergeOp) advance() error {
	row, more, err := o.in.Next()
	if err != nil || !more {
		return err
	}
	matches, err := o.matchPattern(row)
	if err != nil {
		return err
	}
	if len(matches) > 0 {
		for _, m := range matches {
			m, err = o.applySetItems(m, o.onMatch)
			if err != nil {
				return err
			}
			o.pending = append(o.pending, m)
		}
		return nil
	}
	created, err := materializePattern(o.graph, o.ctx, row, o.pattern)
	if err != nil {
		return err
	}
	created, err = o.applySetItems(created, o.onCreate)
	if err != nil {
		return err
	}
	o.pending = append(o.pending, created)
	return nil
}

func (o *mergeOp) Next() (Row, bool, error) {
	for o.ppos >= len(o.pending) {
		o.pending = nil
		o.ppos = 0
		before := len(o.pending)
		if err := o.advance(); err != nil {
			return Row{}, false, err
		}
		if len(o.pending) == before {
			return Row{}, false, nil
		}
	}
	r := o.pending[o.ppos]
	o.ppos++
	if err := o.limiter.checkRow(); err != nil {
		return Row{}, false, err
	}
	return r, true, nil
}
