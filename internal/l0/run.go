// Package l0 implements the immutable per-transaction overlay described in
// spec §3/§4.4: edges by source and destination, tombstones, and property
// deltas for one committed write transaction. Runs stay alive as long as a
// snapshot holds a pointer to them (spec §4.7); this package has no
// knowledge of Snapshot itself.
package l0

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/nervusdb/nervusdb/internal/value"
)

// EdgeKey is the ordered triple (src, rel, dst) that identifies an edge,
// per spec §3. Parallel edges of the same triple are not distinguished.
type EdgeKey struct {
	Src uint32
	Rel uint32
	Dst uint32
}

// PropertyOverlay is a full-replacement property map plus the set of keys
// explicitly tombstoned in this run (spec §4.4).
type PropertyOverlay struct {
	Values     map[string]value.Value
	Tombstoned map[string]struct{}
}

func newOverlay() *PropertyOverlay {
	return &PropertyOverlay{Values: make(map[string]value.Value)}
}

// Run is one committed transaction's immutable overlay.
type Run struct {
	TxID uint64

	edgesBySrc map[uint32][]EdgeKey
	edgesByDst map[uint32][]EdgeKey

	tombstonedNodes *roaring.Bitmap
	tombstonedEdges map[EdgeKey]struct{}

	nodeProps map[uint32]*PropertyOverlay
	edgeProps map[EdgeKey]*PropertyOverlay
}

// EdgesForSrc returns the edges of src in this run, in the order they were
// staged within the transaction.
func (r *Run) EdgesForSrc(src uint32) []EdgeKey { return r.edgesBySrc[src] }

// EdgesForDst returns the edges of dst in this run.
func (r *Run) EdgesForDst(dst uint32) []EdgeKey { return r.edgesByDst[dst] }

// AllEdges yields every edge created in this run exactly once, for
// compaction's flattening pass (spec §4.8). edgesBySrc already holds the
// full set; edgesByDst is the same edges indexed the other way.
func (r *Run) AllEdges(yield func(EdgeKey) bool) {
	for _, list := range r.edgesBySrc {
		for _, e := range list {
			if !yield(e) {
				return
			}
		}
	}
}

// AllNodeProperties yields every node id this run staged a property change
// for, with its overlay, for compaction to fold forward.
func (r *Run) AllNodeProperties(yield func(uint32, *PropertyOverlay) bool) {
	for id, ov := range r.nodeProps {
		if !yield(id, ov) {
			return
		}
	}
}

// AllEdgeProperties is the edge-keyed analogue of AllNodeProperties.
func (r *Run) AllEdgeProperties(yield func(EdgeKey, *PropertyOverlay) bool) {
	for k, ov := range r.edgeProps {
		if !yield(k, ov) {
			return
		}
	}
}

// IsEmpty reports whether the run carries no mutations at all — used by
// the engine's compaction trigger (spec §4.8).
func (r *Run) IsEmpty() bool {
	return len(r.edgesBySrc) == 0 && len(r.edgesByDst) == 0 &&
		r.tombstonedNodes.IsEmpty() && len(r.tombstonedEdges) == 0 &&
		len(r.nodeProps) == 0 && len(r.edgeProps) == 0
}

// IsNodeTombstoned reports whether internal was tombstoned by this run.
func (r *Run) IsNodeTombstoned(internal uint32) bool {
	return r.tombstonedNodes.Contains(internal)
}

// IsEdgeTombstoned reports whether key was tombstoned by this run.
func (r *Run) IsEdgeTombstoned(key EdgeKey) bool {
	_, ok := r.tombstonedEdges[key]
	return ok
}

// TombstonedNodes exposes the bitmap for callers accumulating a running
// "blocked nodes" set across runs (spec §4.7 neighbors()).
func (r *Run) TombstonedNodes() *roaring.Bitmap { return r.tombstonedNodes }

// IterTombstonedNodes yields every node id tombstoned by this run.
func (r *Run) IterTombstonedNodes(yield func(uint32) bool) {
	it := r.tombstonedNodes.Iterator()
	for it.HasNext() {
		if !yield(it.Next()) {
			return
		}
	}
}

// IterTombstonedEdges yields every edge key tombstoned by this run.
func (r *Run) IterTombstonedEdges(yield func(EdgeKey) bool) {
	for k := range r.tombstonedEdges {
		if !yield(k) {
			return
		}
	}
}

// NodeProperty looks up key on internal within this run's overlay. ok is
// false when the run says nothing about this key (caller must fall
// through); tombstoned is true when the run explicitly removed the key.
func (r *Run) NodeProperty(internal uint32, key string) (v value.Value, ok, tombstoned bool) {
	ov, has := r.nodeProps[internal]
	if !has {
		return value.Null, false, false
	}
	if _, dead := ov.Tombstoned[key]; dead {
		return value.Null, true, true
	}
	if val, present := ov.Values[key]; present {
		return val, true, false
	}
	return value.Null, false, false
}

// EdgeProperty is the edge-keyed analogue of NodeProperty.
func (r *Run) EdgeProperty(key EdgeKey, prop string) (v value.Value, ok, tombstoned bool) {
	ov, has := r.edgeProps[key]
	if !has {
		return value.Null, false, false
	}
	if _, dead := ov.Tombstoned[prop]; dead {
		return value.Null, true, true
	}
	if val, present := ov.Values[prop]; present {
		return val, true, false
	}
	return value.Null, false, false
}

// NodePropertyOverlay returns the full overlay for internal, or nil.
func (r *Run) NodePropertyOverlay(internal uint32) *PropertyOverlay { return r.nodeProps[internal] }

// EdgePropertyOverlay returns the full overlay for an edge, or nil.
func (r *Run) EdgePropertyOverlay(key EdgeKey) *PropertyOverlay { return r.edgeProps[key] }

// SortedTombstonedEdges returns this run's edge tombstones in (src,rel,dst)
// order, for compaction's deterministic merge (spec §4.5, §4.8).
func (r *Run) SortedTombstonedEdges() []EdgeKey {
	out := make([]EdgeKey, 0, len(r.tombstonedEdges))
	for k := range r.tombstonedEdges {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Src != b.Src {
			return a.Src < b.Src
		}
		if a.Rel != b.Rel {
			return a.Rel < b.Rel
		}
		return a.Dst < b.Dst
	})
	return out
}
