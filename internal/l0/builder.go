package l0

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/nervusdb/nervusdb/internal/value"
)

// Builder accumulates a write transaction's staged mutations before they
// are materialized into an immutable Run at commit (spec §4.4/§4.8). WAL
// replay reuses it unchanged: walog.Replay holds each transaction's records
// until its commit record, and Engine.Apply then stages those committed
// records into one Builder per txid, built into a Run when the txid changes.
type Builder struct {
	txID uint64

	edgesBySrc map[uint32][]EdgeKey
	edgesByDst map[uint32][]EdgeKey

	tombstonedNodes *roaring.Bitmap
	tombstonedEdges map[EdgeKey]struct{}

	nodeProps map[uint32]*PropertyOverlay
	edgeProps map[EdgeKey]*PropertyOverlay
}

// NewBuilder returns an empty builder for transaction txID.
func NewBuilder(txID uint64) *Builder {
	return &Builder{
		txID:            txID,
		edgesBySrc:      make(map[uint32][]EdgeKey),
		edgesByDst:      make(map[uint32][]EdgeKey),
		tombstonedNodes: roaring.New(),
		tombstonedEdges: make(map[EdgeKey]struct{}),
		nodeProps:       make(map[uint32]*PropertyOverlay),
		edgeProps:       make(map[EdgeKey]*PropertyOverlay),
	}
}

// CreateEdge stages a new edge.
func (b *Builder) CreateEdge(src, rel, dst uint32) {
	key := EdgeKey{Src: src, Rel: rel, Dst: dst}
	b.edgesBySrc[src] = append(b.edgesBySrc[src], key)
	b.edgesByDst[dst] = append(b.edgesByDst[dst], key)
}

// TombstoneEdge stages removal of the exact (src,rel,dst) triple.
func (b *Builder) TombstoneEdge(src, rel, dst uint32) {
	b.tombstonedEdges[EdgeKey{Src: src, Rel: rel, Dst: dst}] = struct{}{}
}

// TombstoneNode stages removal of a node; once tombstoned, its slot is
// never reused (invariant I1).
func (b *Builder) TombstoneNode(internal uint32) {
	b.tombstonedNodes.Add(internal)
}

func (b *Builder) nodeOverlay(internal uint32) *PropertyOverlay {
	ov, ok := b.nodeProps[internal]
	if !ok {
		ov = newOverlay()
		b.nodeProps[internal] = ov
	}
	return ov
}

func (b *Builder) edgeOverlay(key EdgeKey) *PropertyOverlay {
	ov, ok := b.edgeProps[key]
	if !ok {
		ov = newOverlay()
		b.edgeProps[key] = ov
	}
	return ov
}

// SetNodeProperty stages a property write, un-tombstoning the key if it was
// previously removed within this same transaction.
func (b *Builder) SetNodeProperty(internal uint32, key string, v value.Value) {
	ov := b.nodeOverlay(internal)
	delete(ov.Tombstoned, key)
	ov.Values[key] = v
}

// RemoveNodeProperty stages a property removal.
func (b *Builder) RemoveNodeProperty(internal uint32, key string) {
	ov := b.nodeOverlay(internal)
	if ov.Tombstoned == nil {
		ov.Tombstoned = make(map[string]struct{})
	}
	ov.Tombstoned[key] = struct{}{}
	delete(ov.Values, key)
}

// SetEdgeProperty is the edge-keyed analogue of SetNodeProperty.
func (b *Builder) SetEdgeProperty(key EdgeKey, prop string, v value.Value) {
	ov := b.edgeOverlay(key)
	delete(ov.Tombstoned, prop)
	ov.Values[prop] = v
}

// RemoveEdgeProperty is the edge-keyed analogue of RemoveNodeProperty.
func (b *Builder) RemoveEdgeProperty(key EdgeKey, prop string) {
	ov := b.edgeOverlay(key)
	if ov.Tombstoned == nil {
		ov.Tombstoned = make(map[string]struct{})
	}
	ov.Tombstoned[prop] = struct{}{}
	delete(ov.Values, prop)
}

// EdgesForSrc returns the builder's currently staged edges for src,
// supporting the "base snapshot + staged changes" local overlay a writer
// reads through before commit (spec §4.8 step 2).
func (b *Builder) EdgesForSrc(src uint32) []EdgeKey { return b.edgesBySrc[src] }
func (b *Builder) EdgesForDst(dst uint32) []EdgeKey { return b.edgesByDst[dst] }

func (b *Builder) IsNodeTombstoned(internal uint32) bool { return b.tombstonedNodes.Contains(internal) }
func (b *Builder) IsEdgeTombstoned(key EdgeKey) bool {
	_, ok := b.tombstonedEdges[key]
	return ok
}

func (b *Builder) NodeProperty(internal uint32, key string) (value.Value, bool, bool) {
	ov, ok := b.nodeProps[internal]
	if !ok {
		return value.Null, false, false
	}
	if _, dead := ov.Tombstoned[key]; dead {
		return value.Null, true, true
	}
	if v, present := ov.Values[key]; present {
		return v, true, false
	}
	return value.Null, false, false
}

// EdgeProperty is the edge-keyed analogue of NodeProperty.
func (b *Builder) EdgeProperty(key EdgeKey, prop string) (value.Value, bool, bool) {
	ov, ok := b.edgeProps[key]
	if !ok {
		return value.Null, false, false
	}
	if _, dead := ov.Tombstoned[prop]; dead {
		return value.Null, true, true
	}
	if v, present := ov.Values[prop]; present {
		return v, true, false
	}
	return value.Null, false, false
}

// NodeOverlay exposes the raw staged property overlay for internal, or nil
// if nothing has been staged for it. Used by callers that need to
// materialize a node's full current property map (base snapshot overlaid
// by staged writes), mirroring Run.NodePropertyOverlay's role for
// Snapshot.NodeProperties.
func (b *Builder) NodeOverlay(internal uint32) *PropertyOverlay { return b.nodeProps[internal] }

// EdgeOverlay is the edge-keyed analogue of NodeOverlay.
func (b *Builder) EdgeOverlay(key EdgeKey) *PropertyOverlay { return b.edgeProps[key] }

// Build materializes the staged builder into an immutable Run. The
// builder must not be reused afterward.
func (b *Builder) Build() *Run {
	return &Run{
		TxID:            b.txID,
		edgesBySrc:      b.edgesBySrc,
		edgesByDst:      b.edgesByDst,
		tombstonedNodes: b.tombstonedNodes,
		tombstonedEdges: b.tombstonedEdges,
		nodeProps:       b.nodeProps,
		edgeProps:       b.edgeProps,
	}
}
