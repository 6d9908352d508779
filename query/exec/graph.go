// Package exec implements the pull-based physical query executor: a tree
// of Operators, each exposing Next() -> (Row, more bool, error), composed
// over a query/plan.Node tree (spec §4.11). Read operators run against
// either a read-only Snapshot or an in-flight WriteTxn through the Graph/
// WriteableGraph adapters in this file, so the same operator tree serves
// both `EXPLAIN`-only reads and a write transaction's own read-back of its
// staged changes.
package exec

import (
	"iter"

	"github.com/nervusdb/nervusdb"
	"github.com/nervusdb/nervusdb/internal/segment"
	"github.com/nervusdb/nervusdb/internal/stats"
	"github.com/nervusdb/nervusdb/internal/value"
	"github.com/nervusdb/nervusdb/query/eval"
)

// WriteableGraph is the write surface write operators stage mutations
// through (spec §4.11); it extends eval.Graph since write operators also
// need to read through their own staged changes (CREATE followed by SET
// in the same statement, spec §4.11's "writes return a row stream...for
// downstream SET").
type WriteableGraph interface {
	GraphAccess
	CreateNode(primaryLabel string, extraLabels ...string) uint32
	TombstoneNode(internal uint32)
	AddLabelName(internal uint32, name string) uint32
	RemoveLabelName(internal uint32, name string) error
	CreateEdge(src, rel, dst uint32)
	TombstoneEdge(src, rel, dst uint32)
	SetNodeProperty(internal uint32, key string, v value.Value)
	RemoveNodeProperty(internal uint32, key string)
	SetEdgeProperty(e eval.EdgeRef, key string, v value.Value)
	RemoveEdgeProperty(e eval.EdgeRef, key string)
	HasOutgoingEdges(internal uint32) bool
	ResolveLabelIDCreate(name string) uint32
	ResolveRelTypeIDCreate(name string) uint32
}

// GraphAccess is the traversal surface NodeScan/MatchExpand need beyond
// eval.Graph's property/label lookups: enumerate live nodes and walk an
// edge direction. Both snapshotGraph and txnGraph implement it so the same
// operator tree runs against a read-only Snapshot or an in-flight
// WriteTxn's local overlay.
type GraphAccess interface {
	eval.Graph
	ForEachNode(yield func(uint32) bool)
	ForEachNeighbor(src uint32, rel *uint32, yield func(eval.EdgeRef) bool)
	ForEachIncoming(dst uint32, rel *uint32, yield func(eval.EdgeRef) bool)
	IsTombstonedNode(internal uint32) bool
}

// snapshotGraph adapts *nervusdb.Snapshot to eval.Graph: a pure read path
// used to run EXPLAIN/read-only statements without ever opening a write
// transaction.
type snapshotGraph struct{ s *nervusdb.Snapshot }

func NewSnapshotGraph(s *nervusdb.Snapshot) GraphAccess { return snapshotGraph{s: s} }

func (g snapshotGraph) ForEachNode(yield func(uint32) bool) {
	for n := range g.s.Nodes() {
		if !yield(n) {
			return
		}
	}
}

func (g snapshotGraph) ForEachNeighbor(src uint32, rel *uint32, yield func(eval.EdgeRef) bool) {
	snapshotNeighbors(g.s, src, rel, yield)
}

func (g snapshotGraph) ForEachIncoming(dst uint32, rel *uint32, yield func(eval.EdgeRef) bool) {
	snapshotIncoming(g.s, dst, rel, yield)
}

func (g snapshotGraph) IsTombstonedNode(internal uint32) bool { return g.s.IsTombstonedNode(internal) }

func (g snapshotGraph) NodeProperty(internal uint32, key string) (value.Value, bool, error) {
	return g.s.NodeProperty(internal, key)
}

func (g snapshotGraph) EdgeProperty(e eval.EdgeRef, key string) (value.Value, bool, error) {
	return g.s.EdgeProperty(toSegmentKey(e), key)
}

func (g snapshotGraph) NodeProperties(internal uint32) map[string]value.Value {
	return g.s.NodeProperties(internal)
}

func (g snapshotGraph) EdgeProperties(e eval.EdgeRef) map[string]value.Value {
	return g.s.EdgeProperties(toSegmentKey(e))
}

func (g snapshotGraph) Labels(internal uint32) []uint32 { return g.s.Labels(internal) }

func (g snapshotGraph) ResolveLabelID(name string) (uint32, bool) { return g.s.ResolveLabelID(name) }
func (g snapshotGraph) ResolveLabelName(id uint32) (string, bool) { return g.s.ResolveLabelName(id) }
func (g snapshotGraph) ResolveRelTypeID(name string) (uint32, bool) {
	return g.s.ResolveRelTypeID(name)
}
func (g snapshotGraph) ResolveRelTypeName(id uint32) (string, bool) {
	return g.s.ResolveRelTypeName(id)
}
func (g snapshotGraph) ExternalID(internal uint32) (uint64, bool) { return g.s.ExternalID(internal) }

// LabelNames, RelTypeNames, Stats, and the two id-sequence helpers satisfy
// StatsGraph (procedures.go), backing the db.labels()/db.relationshipTypes()/
// db.stats() built-in procedures. Only snapshotGraph implements StatsGraph:
// an in-flight write transaction has no stable Statistics snapshot of its
// own (spec §4.11 **[EXPANDED]**).
func (g snapshotGraph) LabelNames() iter.Seq[string]   { return g.s.LabelNames() }
func (g snapshotGraph) RelTypeNames() iter.Seq[string] { return g.s.RelTypeNames() }
func (g snapshotGraph) Stats() *stats.Stats            { return g.s.Stats() }

func (g snapshotGraph) ResolveLabelIDSeq() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for id := uint32(0); id < g.s.LabelCount(); id++ {
			if !yield(id) {
				return
			}
		}
	}
}

func (g snapshotGraph) ResolveRelTypeIDSeq() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for id := uint32(0); id < g.s.RelTypeCount(); id++ {
			if !yield(id) {
				return
			}
		}
	}
}

// txnGraph adapts *nervusdb.WriteTxn to WriteableGraph.
type txnGraph struct{ tx *nervusdb.WriteTxn }

func NewWriteTxnGraph(tx *nervusdb.WriteTxn) WriteableGraph { return txnGraph{tx: tx} }

func (g txnGraph) NodeProperty(internal uint32, key string) (value.Value, bool, error) {
	v, ok := g.tx.NodeProperty(internal, key)
	return v, ok, nil
}

func (g txnGraph) EdgeProperty(e eval.EdgeRef, key string) (value.Value, bool, error) {
	v, ok := g.tx.EdgeProperty(e.Src, e.Rel, e.Dst, key)
	return v, ok, nil
}

func (g txnGraph) NodeProperties(internal uint32) map[string]value.Value {
	return g.tx.NodeProperties(internal)
}

func (g txnGraph) EdgeProperties(e eval.EdgeRef) map[string]value.Value {
	return g.tx.EdgeProperties(e.Src, e.Rel, e.Dst)
}

func (g txnGraph) Labels(internal uint32) []uint32 { return g.tx.Labels(internal) }

func (g txnGraph) ResolveLabelID(name string) (uint32, bool) { return g.tx.LookupLabelID(name) }
func (g txnGraph) ResolveLabelName(id uint32) (string, bool) { return g.tx.ResolveLabelName(id) }
func (g txnGraph) ResolveRelTypeID(name string) (uint32, bool) {
	return g.tx.LookupRelTypeID(name)
}
func (g txnGraph) ResolveRelTypeName(id uint32) (string, bool) { return g.tx.ResolveRelTypeName(id) }
func (g txnGraph) ExternalID(internal uint32) (uint64, bool)   { return g.tx.ExternalID(internal) }

func (g txnGraph) CreateNode(primaryLabel string, extraLabels ...string) uint32 {
	return g.tx.CreateAnonymousNode(primaryLabel, extraLabels...)
}
func (g txnGraph) TombstoneNode(internal uint32) { g.tx.TombstoneNode(internal) }
func (g txnGraph) AddLabelName(internal uint32, name string) uint32 {
	return g.tx.AddLabel(internal, name)
}
func (g txnGraph) RemoveLabelName(internal uint32, name string) error {
	return g.tx.RemoveLabel(internal, name)
}
func (g txnGraph) CreateEdge(src, rel, dst uint32)    { g.tx.CreateEdge(src, rel, dst) }
func (g txnGraph) TombstoneEdge(src, rel, dst uint32) { g.tx.TombstoneEdge(src, rel, dst) }
func (g txnGraph) SetNodeProperty(internal uint32, key string, v value.Value) {
	g.tx.SetNodeProperty(internal, key, v)
}
func (g txnGraph) RemoveNodeProperty(internal uint32, key string) {
	g.tx.RemoveNodeProperty(internal, key)
}
func (g txnGraph) SetEdgeProperty(e eval.EdgeRef, key string, v value.Value) {
	g.tx.SetEdgeProperty(e.Src, e.Rel, e.Dst, key, v)
}
func (g txnGraph) RemoveEdgeProperty(e eval.EdgeRef, key string) {
	g.tx.RemoveEdgeProperty(e.Src, e.Rel, e.Dst, key)
}
func (g txnGraph) HasOutgoingEdges(internal uint32) bool { return g.tx.HasOutgoingEdges(internal) }
func (g txnGraph) IsTombstonedNode(internal uint32) bool { return g.tx.IsTombstonedNode(internal) }
func (g txnGraph) ResolveLabelIDCreate(name string) uint32   { return g.tx.ResolveLabelID(name) }
func (g txnGraph) ResolveRelTypeIDCreate(name string) uint32 { return g.tx.ResolveRelTypeID(name) }

func (g txnGraph) ForEachNode(yield func(uint32) bool) { g.tx.ForEachNode(yield) }

func (g txnGraph) ForEachNeighbor(src uint32, rel *uint32, yield func(eval.EdgeRef) bool) {
	g.tx.ForEachNeighbor(src, rel, func(e segment.EdgeKey) bool {
		return yield(eval.EdgeRef{Src: e.Src, Rel: e.Rel, Dst: e.Dst})
	})
}

func (g txnGraph) ForEachIncoming(dst uint32, rel *uint32, yield func(eval.EdgeRef) bool) {
	g.tx.ForEachIncoming(dst, rel, func(e segment.EdgeKey) bool {
		return yield(eval.EdgeRef{Src: e.Src, Rel: e.Rel, Dst: e.Dst})
	})
}

func toSegmentKey(e eval.EdgeRef) segment.EdgeKey {
	return segment.EdgeKey{Src: e.Src, Rel: e.Rel, Dst: e.Dst}
}

// snapshotNeighbors/snapshotIncoming adapt Snapshot's iterator-returning
// Neighbors/IncomingNeighbors to the executor's callback-style traversal,
// used by MatchExpand when running against a read-only Snapshot.
func snapshotNeighbors(s *nervusdb.Snapshot, src uint32, rel *uint32, yield func(eval.EdgeRef) bool) {
	for e := range s.Neighbors(src, rel) {
		if !yield(eval.EdgeRef{Src: e.Src, Rel: e.Rel, Dst: e.Dst}) {
			return
		}
	}
}

func snapshotIncoming(s *nervusdb.Snapshot, dst uint32, rel *uint32, yield func(eval.EdgeRef) bool) {
	for e := range s.IncomingNeighbors(dst, rel) {
		if !yield(eval.EdgeRef{Src: e.Src, Rel: e.Rel, Dst: e.Dst}) {
			return
		}
	}
}
