package nervusdb

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/nervusdb/nervusdb/internal/idmap"
	"github.com/nervusdb/nervusdb/internal/intern"
	"github.com/nervusdb/nervusdb/internal/l0"
	"github.com/nervusdb/nervusdb/internal/pager"
	"github.com/nervusdb/nervusdb/internal/segment"
	"github.com/nervusdb/nervusdb/internal/stats"
	"github.com/nervusdb/nervusdb/internal/value"
)

// Snapshot is an immutable, cloneable bundle of shared-ownership
// references captured under a short critical section at Engine.Snapshot
// time (spec §4.7). It is completely independent of any later mutation:
// no field changes over its lifetime (invariant P4), and it keeps its
// constituent runs/segments alive for as long as a caller holds it.
//
// Nodes and Neighbors are Go 1.23 range-over-func iterators, grounded
// directly in the teacher's func (db *DB) All() iter.Seq2[Document, error]
// (_teacher_reference/all.go): callers can break out of a scan early,
// which the executor's Limit and short-circuiting Filter operators rely
// on to avoid materializing full scans.
type Snapshot struct {
	pager *pager.Pager

	runs     []*l0.Run         // newest-first
	segments []*segment.Segment // newest-first

	labels   *intern.Snapshot
	relTypes *intern.Snapshot

	idmap      *idmap.IdMap
	nodeLabels [][]uint32 // internal id -> label id list, primary first

	propertiesRoot pager.PageID
	statsRoot      pager.PageID
	stats          *stats.Stats
}

// Nodes yields every live internal node id in [0, maxInternalID), skipping
// ids tombstoned by any run this snapshot carries (segment-level node
// tombstones do not exist: compaction physically drops tombstoned nodes
// from the next segment generation, per spec §4.8).
func (s *Snapshot) Nodes() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		blocked := roaring.New()
		for _, run := range s.runs {
			blocked.Or(run.TombstonedNodes())
		}
		max := uint32(len(s.nodeLabels))
		for i := uint32(0); i < max; i++ {
			if blocked.Contains(i) {
				continue
			}
			if !yield(i) {
				return
			}
		}
	}
}

// IsTombstonedNode reports whether internal has been tombstoned by any
// run this snapshot carries.
func (s *Snapshot) IsTombstonedNode(internal uint32) bool {
	for _, run := range s.runs {
		if run.IsNodeTombstoned(internal) {
			return true
		}
	}
	return false
}

// Neighbors yields the EdgeKeys of src's outgoing edges, optionally
// filtered to a single relationship type, walking runs newest-first then
// segments newest-first (spec §4.7, ordering guarantee O2). A running
// (blocked nodes, blocked edges) set accumulates tombstones from each
// traversed run, and a seen-edges set de-duplicates across runs and
// segments.
func (s *Snapshot) Neighbors(src uint32, rel *uint32) iter.Seq[segment.EdgeKey] {
	return s.walk(src, rel, true)
}

// IncomingNeighbors is the reverse-direction analogue of Neighbors.
func (s *Snapshot) IncomingNeighbors(dst uint32, rel *uint32) iter.Seq[segment.EdgeKey] {
	return s.walk(dst, rel, false)
}

func (s *Snapshot) walk(node uint32, rel *uint32, outgoing bool) iter.Seq[segment.EdgeKey] {
	return func(yield func(segment.EdgeKey) bool) {
		blockedNodes := roaring.New()
		blockedEdges := make(map[segment.EdgeKey]struct{})
		seen := make(map[segment.EdgeKey]struct{})

		matches := func(e segment.EdgeKey) bool {
			if rel != nil && e.Rel != *rel {
				return false
			}
			if blockedNodes.Contains(e.Src) || blockedNodes.Contains(e.Dst) {
				return false
			}
			if _, dead := blockedEdges[e]; dead {
				return false
			}
			if _, dup := seen[e]; dup {
				return false
			}
			return true
		}

		for _, run := range s.runs {
			var edges []segment.EdgeKey
			if outgoing {
				edges = run.EdgesForSrc(node)
			} else {
				edges = run.EdgesForDst(node)
			}
			for _, e := range edges {
				if matches(e) {
					seen[e] = struct{}{}
					if !yield(e) {
						return
					}
				}
			}
			blockedNodes.Or(run.TombstonedNodes())
			run.IterTombstonedEdges(func(e segment.EdgeKey) bool {
				blockedEdges[e] = struct{}{}
				return true
			})
		}

		for _, seg := range s.segments {
			stop := false
			visit := func(e segment.EdgeKey) bool {
				if matches(e) {
					seen[e] = struct{}{}
					if !yield(e) {
						stop = true
						return false
					}
				}
				return true
			}
			if outgoing {
				seg.Neighbors(node, rel, visit)
			} else {
				seg.IncomingNeighbors(node, rel, visit)
			}
			if stop {
				return
			}
		}
	}
}

// NodeProperty resolves prop on internal, walking runs newest-first then
// falling back to segments (ordering guarantee O3: the newest
// non-tombstoned write wins).
func (s *Snapshot) NodeProperty(internal uint32, prop string) (value.Value, bool, error) {
	for _, run := range s.runs {
		v, ok, tombstoned := run.NodeProperty(internal, prop)
		if tombstoned {
			return value.Null, false, nil
		}
		if ok {
			return v, true, nil
		}
	}
	for _, seg := range s.segments {
		v, ok, err := seg.NodeProperty(internal, prop)
		if err != nil {
			return value.Null, false, wrapStorageErr(err)
		}
		if ok {
			return v, true, nil
		}
	}
	return value.Null, false, nil
}

// EdgeProperty is the edge-keyed analogue of NodeProperty.
func (s *Snapshot) EdgeProperty(key segment.EdgeKey, prop string) (value.Value, bool, error) {
	for _, run := range s.runs {
		v, ok, tombstoned := run.EdgeProperty(key, prop)
		if tombstoned {
			return value.Null, false, nil
		}
		if ok {
			return v, true, nil
		}
	}
	for _, seg := range s.segments {
		v, ok, err := seg.EdgeProperty(key, prop)
		if err != nil {
			return value.Null, false, wrapStorageErr(err)
		}
		if ok {
			return v, true, nil
		}
	}
	return value.Null, false, nil
}

// NodeProperties materializes the full current property map for internal
// from every run's overlay, newest last so later writes win, then
// stripping tombstoned keys. It does not read segment property trees
// (segments offer point lookups by key, used by NodeProperty, and whole-
// segment scans, used by compaction), so keys stored only in a segment are
// not in the returned map.
func (s *Snapshot) NodeProperties(internal uint32) map[string]value.Value {
	out := make(map[string]value.Value)
	for i := len(s.runs) - 1; i >= 0; i-- {
		ov := s.runs[i].NodePropertyOverlay(internal)
		if ov == nil {
			continue
		}
		for k := range ov.Tombstoned {
			delete(out, k)
		}
		for k, v := range ov.Values {
			out[k] = v
		}
	}
	return out
}

// EdgeProperties is the edge-keyed analogue of NodeProperties.
func (s *Snapshot) EdgeProperties(key segment.EdgeKey) map[string]value.Value {
	out := make(map[string]value.Value)
	for i := len(s.runs) - 1; i >= 0; i-- {
		ov := s.runs[i].EdgePropertyOverlay(key)
		if ov == nil {
			continue
		}
		for k := range ov.Tombstoned {
			delete(out, k)
		}
		for k, v := range ov.Values {
			out[k] = v
		}
	}
	return out
}

// Labels returns internal's current label id list, primary first.
func (s *Snapshot) Labels(internal uint32) []uint32 {
	if int(internal) >= len(s.nodeLabels) {
		return nil
	}
	return s.nodeLabels[internal]
}

// ResolveLabelID resolves a label name to its id within this snapshot.
func (s *Snapshot) ResolveLabelID(name string) (uint32, bool) { return s.labels.ID(name) }

// ResolveLabelName resolves a label id to its name within this snapshot.
func (s *Snapshot) ResolveLabelName(id uint32) (string, bool) { return s.labels.Name(id) }

// ResolveRelTypeID resolves a relationship-type name to its id.
func (s *Snapshot) ResolveRelTypeID(name string) (uint32, bool) { return s.relTypes.ID(name) }

// ResolveRelTypeName resolves a relationship-type id to its name.
func (s *Snapshot) ResolveRelTypeName(id uint32) (string, bool) { return s.relTypes.Name(id) }

// ExternalID resolves internal to its external node id (invariant P2).
func (s *Snapshot) ExternalID(internal uint32) (uint64, bool) { return s.idmap.ExternalOf(internal) }

// InternalID resolves an external node id to its internal id.
func (s *Snapshot) InternalID(external uint64) (uint32, bool) { return s.idmap.Lookup(external) }

// Stats returns the statistics captured at snapshot time, for the query
// planner (spec §4.1, §4.10).
func (s *Snapshot) Stats() *stats.Stats { return s.stats }

// LabelNames and RelTypeNames back the db.labels()/db.relationshipTypes()
// built-in procedures (spec §4.11 **[EXPANDED]**).
func (s *Snapshot) LabelNames() iter.Seq[string] {
	return func(yield func(string) bool) {
		for id := uint32(0); ; id++ {
			name, ok := s.labels.Name(id)
			if !ok {
				return
			}
			if name == "" {
				continue
			}
			if !yield(name) {
				return
			}
		}
	}
}

// LabelCount and RelTypeCount return how many distinct names are interned
// in this snapshot's clones, used by WriteTxn to assign provisional ids to
// brand-new label/relationship-type names before they are actually interned
// at commit (spec §4.8 step 2's "base snapshot + staged changes" overlay).
func (s *Snapshot) LabelCount() uint32   { return s.labels.Len() }
func (s *Snapshot) RelTypeCount() uint32 { return s.relTypes.Len() }

func (s *Snapshot) RelTypeNames() iter.Seq[string] {
	return func(yield func(string) bool) {
		for id := uint32(0); ; id++ {
			name, ok := s.relTypes.Name(id)
			if !ok {
				return
			}
			if name == "" {
				continue
			}
			if !yield(name) {
				return
			}
		}
	}
}
