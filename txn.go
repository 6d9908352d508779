package nervusdb

import (
	"github.com/nervusdb/nervusdb/internal/l0"
	"github.com/nervusdb/nervusdb/internal/segment"
	"github.com/nervusdb/nervusdb/internal/value"
	"github.com/nervusdb/nervusdb/internal/walog"
)

// labelOp stages an add-label or remove-label mutation against a node's
// in-memory label list (spec §4.3); applied to the IdMap only at commit.
type labelOp struct {
	internal uint32
	labelID  uint32
	add      bool
}

// newNode stages a proposed node creation, keyed by the provisional
// internal id assigned when the write transaction began (spec §4.8 step 2).
type newNode struct {
	ext          uint64
	primaryLabel uint32
}

// vectorOp stages a set-vector write, applied to the HNSW index at commit.
type vectorOp struct {
	internal uint32
	vec      []float32
}

// WriteTxn is a staged set of mutations against a base snapshot, per spec
// §4.8. All reads inside the transaction see base + staged changes (a
// local overlay); commit writes one WAL record batch and installs one new
// L0 run atomically. Only one WriteTxn may be open at a time (the engine's
// writerMu, held from Begin to Commit/Abort).
type WriteTxn struct {
	engine *Engine
	base   *Snapshot
	txid   uint64

	builder *l0.Builder
	records []walog.Record

	newNodes     []newNode
	nextInternal uint32

	labelOps []labelOp
	// labelOverlay mirrors ApplyAddLabel/ApplyRemoveLabel's effect on top
	// of base.Labels, so txn-local reads (e.g. RemoveLabel's primary-label
	// guard) see this transaction's own prior label edits.
	labelOverlay map[uint32][]uint32

	labelIDs    map[string]uint32
	newLabels   []string
	relTypeIDs  map[string]uint32
	newRelTypes []string

	vectors []vectorOp

	done bool
}

func newWriteTxn(e *Engine, base *Snapshot, txid uint64) *WriteTxn {
	return &WriteTxn{
		engine:       e,
		base:         base,
		txid:         txid,
		builder:      l0.NewBuilder(txid),
		nextInternal: base.idmap.MaxInternalID(),
		labelOverlay: make(map[uint32][]uint32),
		labelIDs:     make(map[string]uint32),
		relTypeIDs:   make(map[string]uint32),
	}
}

// TxID returns the transaction id assigned at Begin.
func (tx *WriteTxn) TxID() uint64 { return tx.txid }

// Base returns the snapshot this transaction's reads and writes are staged
// against.
func (tx *WriteTxn) Base() *Snapshot { return tx.base }

func (tx *WriteTxn) appendRecord(kind walog.Kind, payload []byte) {
	tx.records = append(tx.records, walog.Record{Kind: kind, Payload: payload})
}

// ResolveLabelID resolves name to a label id, reusing a name already
// staged or present in the base snapshot; otherwise assigns the next
// provisional id and stages a create-label record for commit (spec
// §4.2's create-label WAL record, §4.4).
func (tx *WriteTxn) ResolveLabelID(name string) uint32 {
	if id, ok := tx.labelIDs[name]; ok {
		return id
	}
	if id, ok := tx.base.ResolveLabelID(name); ok {
		tx.labelIDs[name] = id
		return id
	}
	id := tx.base.LabelCount() + uint32(len(tx.newLabels))
	tx.labelIDs[name] = id
	tx.newLabels = append(tx.newLabels, name)
	return id
}

// LookupLabelID is a pure lookup (no create-on-miss), used by read paths
// like the label-check expression `n:Label` that must not silently intern
// a new label as a side effect of evaluating a predicate.
func (tx *WriteTxn) LookupLabelID(name string) (uint32, bool) {
	if id, ok := tx.labelIDs[name]; ok {
		return id, true
	}
	return tx.base.ResolveLabelID(name)
}

// LookupRelTypeID is the relationship-type analogue of LookupLabelID.
func (tx *WriteTxn) LookupRelTypeID(name string) (uint32, bool) {
	if id, ok := tx.relTypeIDs[name]; ok {
		return id, true
	}
	return tx.base.ResolveRelTypeID(name)
}

// ResolveRelTypeID is the relationship-type analogue of ResolveLabelID.
func (tx *WriteTxn) ResolveRelTypeID(name string) uint32 {
	if id, ok := tx.relTypeIDs[name]; ok {
		return id
	}
	if id, ok := tx.base.ResolveRelTypeID(name); ok {
		tx.relTypeIDs[name] = id
		return id
	}
	id := tx.base.RelTypeCount() + uint32(len(tx.newRelTypes))
	tx.relTypeIDs[name] = id
	tx.newRelTypes = append(tx.newRelTypes, name)
	return id
}

// CreateNode stages a new node with external id ext and primary label
// primaryLabel, returning its provisional internal id (spec §3, §4.8 step
// 2). extraLabels, if any, are staged as add-label operations.
func (tx *WriteTxn) CreateNode(ext uint64, primaryLabel string, extraLabels ...string) uint32 {
	labelID := tx.ResolveLabelID(primaryLabel)
	internal := tx.nextInternal
	tx.nextInternal++
	tx.newNodes = append(tx.newNodes, newNode{ext: ext, primaryLabel: labelID})
	tx.labelOverlay[internal] = []uint32{labelID}
	tx.appendRecord(walog.KindCreateNode, walog.CreateNodePayload{
		ExternalID:       ext,
		PrimaryLabel:     labelID,
		ExpectedInternal: internal,
	}.Encode())

	for _, name := range extraLabels {
		tx.AddLabel(internal, name)
	}
	return internal
}

// CreateAnonymousNode stages a new node for callers (e.g. the Cypher
// executor's CREATE clause) that have no externally-assigned id of their
// own to supply: it uses the node's own provisional internal id as its
// external id, or, if a caller of CreateNode already took that external id,
// the next higher one that no committed or staged node uses.
func (tx *WriteTxn) CreateAnonymousNode(primaryLabel string, extraLabels ...string) uint32 {
	ext := uint64(tx.nextInternal)
	for {
		_, used := tx.base.InternalID(ext)
		for _, n := range tx.newNodes {
			if n.ext == ext {
				used = true
			}
		}
		if !used {
			break
		}
		ext++
	}
	return tx.CreateNode(ext, primaryLabel, extraLabels...)
}

// TombstoneNode stages removal of internal (spec §3: its slot is never
// reused, invariant I1).
func (tx *WriteTxn) TombstoneNode(internal uint32) {
	tx.builder.TombstoneNode(internal)
	tx.appendRecord(walog.KindTombstoneNode, walog.NodeIDPayload{InternalID: internal}.Encode())
}

// AddLabel stages adding label name to internal's label list.
func (tx *WriteTxn) AddLabel(internal uint32, name string) uint32 {
	labelID := tx.ResolveLabelID(name)
	tx.labelOps = append(tx.labelOps, labelOp{internal: internal, labelID: labelID, add: true})
	list := tx.NodeLabels(internal)
	fresh := make([]uint32, 0, len(list)+1)
	found := false
	for _, l := range list {
		fresh = append(fresh, l)
		if l == labelID {
			found = true
		}
	}
	if !found {
		fresh = append(fresh, labelID)
	}
	tx.labelOverlay[internal] = fresh
	tx.appendRecord(walog.KindAddLabel, walog.LabelOpPayload{InternalID: internal, LabelID: labelID}.Encode())
	return labelID
}

// RemoveLabel stages removing label name from internal's label list. It is
// an error to remove a node's primary label (spec §4.3, §9).
func (tx *WriteTxn) RemoveLabel(internal uint32, name string) error {
	labelID := tx.ResolveLabelID(name)
	list := tx.NodeLabels(internal)
	if len(list) > 0 && list[0] == labelID {
		return ErrRemovePrimaryLabel
	}
	fresh := make([]uint32, 0, len(list))
	for _, l := range list {
		if l != labelID {
			fresh = append(fresh, l)
		}
	}
	tx.labelOverlay[internal] = fresh
	tx.labelOps = append(tx.labelOps, labelOp{internal: internal, labelID: labelID, add: false})
	tx.appendRecord(walog.KindRemoveLabel, walog.LabelOpPayload{InternalID: internal, LabelID: labelID}.Encode())
	return nil
}

// NodeLabels returns internal's current label list (base snapshot
// overlaid by this transaction's staged add/remove-label operations),
// primary first.
func (tx *WriteTxn) NodeLabels(internal uint32) []uint32 {
	if list, ok := tx.labelOverlay[internal]; ok {
		return list
	}
	return tx.base.Labels(internal)
}

// CreateEdge stages a new edge (spec §3).
func (tx *WriteTxn) CreateEdge(src, rel, dst uint32) {
	tx.builder.CreateEdge(src, rel, dst)
	tx.appendRecord(walog.KindCreateEdge, walog.EdgeKeyPayload{Src: src, Rel: rel, Dst: dst}.Encode())
}

// TombstoneEdge stages removal of the exact (src,rel,dst) triple.
func (tx *WriteTxn) TombstoneEdge(src, rel, dst uint32) {
	tx.builder.TombstoneEdge(src, rel, dst)
	tx.appendRecord(walog.KindTombstoneEdge, walog.EdgeKeyPayload{Src: src, Rel: rel, Dst: dst}.Encode())
}

// SetNodeProperty stages a node property write.
func (tx *WriteTxn) SetNodeProperty(internal uint32, key string, v value.Value) {
	tx.builder.SetNodeProperty(internal, key, v)
	tx.appendRecord(walog.KindSetNodeProperty, walog.SetNodePropertyPayload{InternalID: internal, Key: key, Value: v}.Encode())
}

// RemoveNodeProperty stages a node property removal.
func (tx *WriteTxn) RemoveNodeProperty(internal uint32, key string) {
	tx.builder.RemoveNodeProperty(internal, key)
	tx.appendRecord(walog.KindRemoveNodeProperty, walog.RemoveNodePropertyPayload{InternalID: internal, Key: key}.Encode())
}

// SetEdgeProperty stages an edge property write.
func (tx *WriteTxn) SetEdgeProperty(src, rel, dst uint32, key string, v value.Value) {
	edge := walog.EdgeKeyPayload{Src: src, Rel: rel, Dst: dst}
	tx.builder.SetEdgeProperty(l0.EdgeKey{Src: src, Rel: rel, Dst: dst}, key, v)
	tx.appendRecord(walog.KindSetEdgeProperty, walog.SetEdgePropertyPayload{Edge: edge, Key: key, Value: v}.Encode())
}

// RemoveEdgeProperty stages an edge property removal.
func (tx *WriteTxn) RemoveEdgeProperty(src, rel, dst uint32, key string) {
	edge := walog.EdgeKeyPayload{Src: src, Rel: rel, Dst: dst}
	tx.builder.RemoveEdgeProperty(l0.EdgeKey{Src: src, Rel: rel, Dst: dst}, key)
	tx.appendRecord(walog.KindRemoveEdgeProperty, walog.RemoveEdgePropertyPayload{Edge: edge, Key: key}.Encode())
}

// SetVector stages a vector embedding write for internal (spec §4.6).
func (tx *WriteTxn) SetVector(internal uint32, vec []float32) {
	tx.vectors = append(tx.vectors, vectorOp{internal: internal, vec: vec})
	tx.appendRecord(walog.KindSetVector, walog.SetVectorPayload{InternalID: internal, Vector: vec}.Encode())
}

// IsTombstonedNode reports whether internal has been tombstoned by this
// transaction's staged mutations or by the base snapshot.
func (tx *WriteTxn) IsTombstonedNode(internal uint32) bool {
	return tx.builder.IsNodeTombstoned(internal) || tx.base.IsTombstonedNode(internal)
}

// IsTombstonedEdge reports whether (src,rel,dst) has been tombstoned by
// this transaction.
func (tx *WriteTxn) IsTombstonedEdge(src, rel, dst uint32) bool {
	return tx.builder.IsEdgeTombstoned(l0.EdgeKey{Src: src, Rel: rel, Dst: dst})
}

// HasOutgoingEdges reports whether internal has any live outgoing or
// incoming edge, staged or in the base snapshot — used by DELETE's
// DeleteConnectedNode guard (spec §7, property P7).
func (tx *WriteTxn) HasOutgoingEdges(internal uint32) bool {
	for _, e := range tx.builder.EdgesForSrc(internal) {
		if !tx.IsTombstonedEdge(e.Src, e.Rel, e.Dst) {
			return true
		}
	}
	for _, e := range tx.builder.EdgesForDst(internal) {
		if !tx.IsTombstonedEdge(e.Src, e.Rel, e.Dst) {
			return true
		}
	}
	found := false
	for e := range tx.base.Neighbors(internal, nil) {
		if !tx.IsTombstonedEdge(e.Src, e.Rel, e.Dst) {
			found = true
			break
		}
	}
	if found {
		return true
	}
	for e := range tx.base.IncomingNeighbors(internal, nil) {
		if !tx.IsTombstonedEdge(e.Src, e.Rel, e.Dst) {
			return true
		}
	}
	return false
}

// NodeProperty resolves prop on internal through the staged builder first,
// falling back to the base snapshot (spec §4.8 step 2 local overlay).
func (tx *WriteTxn) NodeProperty(internal uint32, prop string) (value.Value, bool) {
	if v, ok, tomb := tx.builder.NodeProperty(internal, prop); ok || tomb {
		if tomb {
			return value.Null, false
		}
		return v, true
	}
	v, ok, _ := tx.base.NodeProperty(internal, prop)
	return v, ok
}

// EdgeProperty is the edge-keyed analogue of NodeProperty.
func (tx *WriteTxn) EdgeProperty(src, rel, dst uint32, prop string) (value.Value, bool) {
	key := l0.EdgeKey{Src: src, Rel: rel, Dst: dst}
	if v, ok, tomb := tx.builder.EdgeProperty(key, prop); ok || tomb {
		if tomb {
			return value.Null, false
		}
		return v, true
	}
	v, ok, _ := tx.base.EdgeProperty(segment.EdgeKey{Src: src, Rel: rel, Dst: dst}, prop)
	return v, ok
}

// NodeProperties materializes internal's full current property map: the
// base snapshot's map overlaid by this transaction's staged writes.
func (tx *WriteTxn) NodeProperties(internal uint32) map[string]value.Value {
	out := tx.base.NodeProperties(internal)
	if out == nil {
		out = make(map[string]value.Value)
	}
	if ov := tx.builder.NodeOverlay(internal); ov != nil {
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
func (tx *WriteTxn) EdgeProperties(src, rel, dst uint32) map[string]value.Value {
	out := tx.base.EdgeProperties(segment.EdgeKey{Src: src, Rel: rel, Dst: dst})
	if out == nil {
		out = make(map[string]value.Value)
	}
	key := l0.EdgeKey{Src: src, Rel: rel, Dst: dst}
	if ov := tx.builder.EdgeOverlay(key); ov != nil {
		for k := range ov.Tombstoned {
			delete(out, k)
		}
		for k, v := range ov.Values {
			out[k] = v
		}
	}
	return out
}

// Labels is an alias for NodeLabels, satisfying the executor's read-graph
// interface alongside the base snapshot's identically-named method.
func (tx *WriteTxn) Labels(internal uint32) []uint32 { return tx.NodeLabels(internal) }

// ResolveLabelName resolves a label id to its name, including ids assigned
// to labels staged (but not yet interned) by this transaction.
func (tx *WriteTxn) ResolveLabelName(id uint32) (string, bool) {
	if id < tx.base.LabelCount() {
		return tx.base.ResolveLabelName(id)
	}
	idx := id - tx.base.LabelCount()
	if int(idx) < len(tx.newLabels) {
		return tx.newLabels[idx], true
	}
	return "", false
}

// ResolveRelTypeName is the relationship-type analogue of ResolveLabelName.
func (tx *WriteTxn) ResolveRelTypeName(id uint32) (string, bool) {
	if id < tx.base.RelTypeCount() {
		return tx.base.ResolveRelTypeName(id)
	}
	idx := id - tx.base.RelTypeCount()
	if int(idx) < len(tx.newRelTypes) {
		return tx.newRelTypes[idx], true
	}
	return "", false
}

// ExternalID resolves internal to its external node id, including nodes
// created (but not yet committed to the id-map) by this transaction.
func (tx *WriteTxn) ExternalID(internal uint32) (uint64, bool) {
	base := tx.nextInternal - uint32(len(tx.newNodes))
	if internal >= base && internal < tx.nextInternal {
		return tx.newNodes[internal-base].ext, true
	}
	return tx.base.ExternalID(internal)
}

// ForEachNode yields every live internal node id visible to this
// transaction: the base snapshot's live nodes plus this transaction's own
// newly created ones, skipping anything staged as tombstoned.
func (tx *WriteTxn) ForEachNode(yield func(uint32) bool) {
	for n := range tx.base.Nodes() {
		if tx.builder.IsNodeTombstoned(n) {
			continue
		}
		if !yield(n) {
			return
		}
	}
	base := tx.nextInternal - uint32(len(tx.newNodes))
	for i := base; i < tx.nextInternal; i++ {
		if tx.builder.IsNodeTombstoned(i) {
			continue
		}
		if !yield(i) {
			return
		}
	}
}

// ForEachNeighbor yields src's live outgoing edges, staged edges first
// then the base snapshot's, optionally filtered to a single relationship
// type (mirrors Snapshot.Neighbors's newest-first ordering guarantee, spec
// §5 O2).
func (tx *WriteTxn) ForEachNeighbor(src uint32, rel *uint32, yield func(segment.EdgeKey) bool) {
	seen := make(map[segment.EdgeKey]struct{})
	for _, e := range tx.builder.EdgesForSrc(src) {
		if rel != nil && e.Rel != *rel {
			continue
		}
		if tx.IsTombstonedEdge(e.Src, e.Rel, e.Dst) {
			continue
		}
		key := segment.EdgeKey{Src: e.Src, Rel: e.Rel, Dst: e.Dst}
		seen[key] = struct{}{}
		if !yield(key) {
			return
		}
	}
	for e := range tx.base.Neighbors(src, rel) {
		if _, dup := seen[e]; dup {
			continue
		}
		if tx.IsTombstonedEdge(e.Src, e.Rel, e.Dst) {
			continue
		}
		if !yield(e) {
			return
		}
	}
}

// ForEachIncoming is the reverse-direction analogue of ForEachNeighbor.
func (tx *WriteTxn) ForEachIncoming(dst uint32, rel *uint32, yield func(segment.EdgeKey) bool) {
	seen := make(map[segment.EdgeKey]struct{})
	for _, e := range tx.builder.EdgesForDst(dst) {
		if rel != nil && e.Rel != *rel {
			continue
		}
		if tx.IsTombstonedEdge(e.Src, e.Rel, e.Dst) {
			continue
		}
		key := segment.EdgeKey{Src: e.Src, Rel: e.Rel, Dst: e.Dst}
		seen[key] = struct{}{}
		if !yield(key) {
			return
		}
	}
	for e := range tx.base.IncomingNeighbors(dst, rel) {
		if _, dup := seen[e]; dup {
			continue
		}
		if tx.IsTombstonedEdge(e.Src, e.Rel, e.Dst) {
			continue
		}
		if !yield(e) {
			return
		}
	}
}

// Commit durably applies every staged mutation: serialize to the WAL,
// fsync twice (payload then commit record), then under a fixed lock order
// apply id-map creates, interner creates, and publish a new L0 run (spec
// §4.8 step 3). On return, the writer mutex taken at Begin is released.
func (tx *WriteTxn) Commit() error {
	if tx.done {
		return ErrTxnFinished
	}
	tx.done = true
	defer tx.engine.writerMu.Unlock()

	if err := tx.engine.wal.CommitTxn(tx.txid, tx.records); err != nil {
		return &IOError{Op: "commit wal", Err: err}
	}

	base := tx.nextInternal - uint32(len(tx.newNodes))
	for i, n := range tx.newNodes {
		if _, err := tx.engine.idmap.ApplyCreateNode(n.ext, n.primaryLabel, base+uint32(i)); err != nil {
			return &WalProtocolError{Reason: err.Error()}
		}
	}
	for _, op := range tx.labelOps {
		if op.add {
			tx.engine.idmap.ApplyAddLabel(op.internal, op.labelID)
		} else {
			tx.engine.idmap.ApplyRemoveLabel(op.internal, op.labelID)
		}
	}
	for _, name := range tx.newLabels {
		tx.engine.labels.Intern(name)
	}
	for _, name := range tx.newRelTypes {
		tx.engine.relTypes.Intern(name)
	}
	for _, v := range tx.vectors {
		if err := tx.engine.ensureVectorIndex(len(v.vec)); err != nil {
			return err
		}
		if err := tx.engine.vectorIdx.Insert(v.internal, v.vec); err != nil {
			return err
		}
	}

	run := tx.builder.Build()
	return tx.engine.publish(run)
}

// Abort discards every staged mutation without writing to the WAL (spec
// §4.8 step 4).
func (tx *WriteTxn) Abort() error {
	if tx.done {
		return ErrTxnFinished
	}
	tx.done = true
	tx.engine.writerMu.Unlock()
	return nil
}
