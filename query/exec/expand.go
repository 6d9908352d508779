package exec

import (
	"github.com/nervusdb/nervusdb/query/ast"
	"github.com/nervusdb/nervusdb/query/eval"
)

// candidateHop is one discovered relationship hop during expansion, kept
// in the direction it was actually walked (Src/Dst already oriented so Src
// is always the already-bound endpoint).
type candidateHop struct {
	edge eval.EdgeRef
	dst  uint32
}

// matchExpandOp walks outgoing/incoming/undirected relationships from each
// input row's SrcAlias binding, filtering by RelTypes/DstLabels and
// binding RelAlias/DstAlias (and PathAlias, if named). A non-nil VarLength
// switches to bounded BFS with per-path edge-reuse prevention (spec §4.11,
// invariant: a variable-length path never reuses an edge within the same
// path instance).
type matchExpandOp struct {
	graph   GraphAccess
	limiter *limiter
	in      Operator

	dir       ast.Direction
	srcAlias  string
	relAlias  string
	relTypes  []string
	dstAlias  string
	dstLabels []string
	pathAlias string

	optional       bool
	optionalUnbind []string

	varLength *ast.VarLengthRange

	relTypeIDs  []uint32
	dstLabelIDs []uint32
	resolved    bool

	pending []Row
	ppos    int
}

func (o *matchExpandOp) resolveFilters() {
	if o.resolved {
		return
	}
	o.resolved = true
	for _, t := range o.relTypes {
		if id, ok := o.graph.ResolveRelTypeID(t); ok {
			o.relTypeIDs = append(o.relTypeIDs, id)
		}
	}
	for _, l := range o.dstLabels {
		if id, ok := o.graph.ResolveLabelID(l); ok {
			o.dstLabelIDs = append(o.dstLabelIDs, id)
		}
	}
}

func (o *matchExpandOp) relAllowed(rel uint32) bool {
	if len(o.relTypes) == 0 {
		return true
	}
	for _, id := range o.relTypeIDs {
		if id == rel {
			return true
		}
	}
	return false
}

func (o *matchExpandOp) dstAllowed(n uint32) bool {
	if len(o.dstLabels) == 0 {
		return true
	}
	if len(o.dstLabelIDs) != len(o.dstLabels) {
		// a named label was never interned: nothing can carry it.
		return false
	}
	have := o.graph.Labels(n)
	for _, want := range o.dstLabelIDs {
		found := false
		for _, h := range have {
			if h == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// walk visits every (edge, dst) pair reachable from src in o.dir, honoring
// RelTypes. An unbound RelTypes filter list is passed as nil to the graph
// so callback sees every type.
func (o *matchExpandOp) walk(src uint32, visit func(eval.EdgeRef, uint32)) {
	var relFilter *uint32
	if len(o.relTypeIDs) == 1 {
		relFilter = &o.relTypeIDs[0]
	}
	switch o.dir {
	case ast.DirOut:
		o.graph.ForEachNeighbor(src, relFilter, func(e eval.EdgeRef) bool {
			if o.relAllowed(e.Rel) {
				visit(e, e.Dst)
			}
			return true
		})
	case ast.DirIn:
		o.graph.ForEachIncoming(src, relFilter, func(e eval.EdgeRef) bool {
			if o.relAllowed(e.Rel) {
				visit(e, e.Src)
			}
			return true
		})
	default: // DirEither
		o.graph.ForEachNeighbor(src, relFilter, func(e eval.EdgeRef) bool {
			if o.relAllowed(e.Rel) {
				visit(e, e.Dst)
			}
			return true
		})
		o.graph.ForEachIncoming(src, relFilter, func(e eval.EdgeRef) bool {
			if o.relAllowed(e.Rel) {
				visit(e, e.Src)
			}
			return true
		})
	}
}

func (o *matchExpandOp) expandRow(row Row) ([]Row, error) {
	o.resolveFilters()
	srcVal, ok := row.Get(o.srcAlias)
	if !ok || srcVal.IsNull() {
		return nil, nil
	}
	src := srcVal.Node

	var out []Row
	if o.varLength != nil {
		out = o.expandVarLength(row, src)
	} else {
		o.walk(src, func(e eval.EdgeRef, dst uint32) {
			if !o.dstAllowed(dst) {
				return
			}
			r := row
			if o.relAlias != "" {
				r = r.With(o.relAlias, eval.EdgeVal(e))
			}
			r = r.With(o.dstAlias, eval.NodeVal(dst))
			if o.pathAlias != "" {
				r = r.With(o.pathAlias, eval.PathVal(eval.PathRef{Nodes: []uint32{src, dst}, Edges: []eval.EdgeRef{e}}))
			}
			out = append(out, r)
		})
	}

	if o.optional && len(out) == 0 {
		r := row
		for _, a := range o.optionalUnbind {
			r = r.With(a, eval.Null)
		}
		return []Row{r}, nil
	}
	return out, nil
}

// expandVarLength performs bounded BFS from src, forbidding reuse of an
// edge already used within the current path (spec §4.11 variable-length
// expansion invariant).
func (o *matchExpandOp) expandVarLength(row Row, src uint32) []Row {
	min, max := o.varLength.Min, o.varLength.Max
	type frame struct {
		node  uint32
		edges []eval.EdgeRef
		nodes []uint32
		used  map[eval.EdgeRef]bool
	}
	start := frame{node: src, nodes: []uint32{src}, used: map[eval.EdgeRef]bool{}}
	var out []Row
	var rec func(f frame)
	rec = func(f frame) {
		depth := len(f.edges)
		if depth >= min && o.dstAllowed(f.node) {
			r := row
			if o.relAlias != "" {
				r = r.With(o.relAlias, eval.List(edgeRefList(f.edges)))
			}
			r = r.With(o.dstAlias, eval.NodeVal(f.node))
			if o.pathAlias != "" {
				r = r.With(o.pathAlias, eval.PathVal(eval.PathRef{
					Nodes: append([]uint32(nil), f.nodes...),
					Edges: append([]eval.EdgeRef(nil), f.edges...),
				}))
			}
			out = append(out, r)
		}
		if max >= 0 && depth >= max {
			return
		}
		o.walk(f.node, func(e eval.EdgeRef, dst uint32) {
			if f.used[e] {
				return
			}
			used := make(map[eval.EdgeRef]bool, len(f.used)+1)
			for k := range f.used {
				used[k] = true
			}
			used[e] = true
			rec(frame{
				node:  dst,
				edges: append(append([]eval.EdgeRef(nil), f.edges...), e),
				nodes: append(append([]uint32(nil), f.nodes...), dst),
				used:  used,
			})
		})
	}
	rec(start)
	return out
}

func edgeRefList(edges []eval.EdgeRef) []eval.Value {
	out := make([]eval.Value, len(edges))
	for i, e := range edges {
		out[i] = eval.EdgeVal(e)
	}
	return out
}

func (o *matchExpandOp) Next() (Row, bool, error) {
	for {
		if o.ppos < len(o.pending) {
			r := o.pending[o.ppos]
			o.ppos++
			if err := o.limiter.checkRow(); err != nil {
				return Row{}, false, err
			}
			return r, true, nil
		}
		row, more, err := o.in.Next()
		if err != nil || !more {
			return Row{}, false, err
		}
		o.pending, err = o.expandRow(row)
		if err != nil {
			return Row{}, false, err
		}
		o.ppos = 0
	}
}

// matchBoundRelOp re-derives endpoint bindings from an already-bound
// relationship alias instead of scanning (spec §4.10).
type matchBoundRelOp struct {
	in               Operator
	relAlias, srcAlias, dstAlias string
}

func (o *matchBoundRelOp) Next() (Row, bool, error) {
	row, more, err := o.in.Next()
	if err != nil || !more {
		return Row{}, false, err
	}
	rv, ok := row.Get(o.relAlias)
	if !ok || rv.Kind != eval.KindEdge {
		return Row{}, false, &TypeError{Op: "MATCH", Detail: "bound relationship variable does not hold a Relationship"}
	}
	row = row.With(o.srcAlias, eval.NodeVal(rv.Edge.Src))
	row = row.With(o.dstAlias, eval.NodeVal(rv.Edge.Dst))
	return row, true, nil
}
