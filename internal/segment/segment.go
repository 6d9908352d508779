// Package segment implements the on-disk CSR (compressed sparse row)
// representation compaction produces: sorted forward and reverse edge
// arrays with offset tables, plus B+tree-indexed property stores (spec
// §4.5, §4.6). A Segment is immutable once built; the engine's compaction
// procedure decides which edges and properties go into the next one and
// hands this package a flat, already-deduplicated, already-tombstone-
// applied edge and property set to encode.
//
// Once built, a Segment keeps its offset tables and edge arrays decoded in
// memory — the same "index fully resident, payload paged" trade the
// teacher makes by keeping its whole bucket directory in memory
// (_teacher_reference/db.go) while record bodies stay on disk. Each
// compaction merges every existing segment into the one it builds, so a
// segment holds the whole compacted edge set.
package segment

import (
	"encoding/binary"
	"sort"

	"github.com/nervusdb/nervusdb/internal/blobstore"
	"github.com/nervusdb/nervusdb/internal/btree"
	"github.com/nervusdb/nervusdb/internal/l0"
	"github.com/nervusdb/nervusdb/internal/pager"
	"github.com/nervusdb/nervusdb/internal/value"
)

// EdgeKey is an alias for l0's (src,rel,dst) triple: segments and runs
// share the same edge identity (spec §3).
type EdgeKey = l0.EdgeKey

type offsetEntry struct {
	key        uint32 // src (forward) or dst (reverse)
	start, cnt int
}

// Segment is an immutable compacted batch of edges and their properties.
type Segment struct {
	p *pager.Pager

	descriptor pager.PageID

	forward    []EdgeKey // sorted by (src, rel, dst)
	forwardIdx []offsetEntry

	reverse    []EdgeKey // sorted by (dst, rel, src)
	reverseIdx []offsetEntry

	nodeProps *btree.Tree // internal-id (4-byte BE) -> blobstore head (8-byte LE)
	edgeProps *btree.Tree // encoded EdgeKey (12 bytes) -> blobstore head
}

// BuildInput is the flattened, already-resolved content of one compaction
// batch: every edge that should be live in the resulting segment, and the
// final property map for every node/edge that has one.
type BuildInput struct {
	Edges          []EdgeKey
	NodeProperties map[uint32]map[string]value.Value
	EdgeProperties map[EdgeKey]map[string]value.Value
}

// descriptorFields is the number of fields in a segment's root page: six
// page ids (forward blob, reverse blob, forward index blob, reverse index
// blob, node-properties tree root, edge-properties tree root) plus an
// edge count, each a little-endian uint64.
const descriptorFields = 7

func encodeEdge(e EdgeKey) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], e.Src)
	binary.LittleEndian.PutUint32(buf[4:8], e.Rel)
	binary.LittleEndian.PutUint32(buf[8:12], e.Dst)
	return buf
}

func decodeEdge(buf []byte) EdgeKey {
	return EdgeKey{
		Src: binary.LittleEndian.Uint32(buf[0:4]),
		Rel: binary.LittleEndian.Uint32(buf[4:8]),
		Dst: binary.LittleEndian.Uint32(buf[8:12]),
	}
}

func encodeNodeKey(internal uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, internal) // big-endian so range scans over the tree are id-ordered
	return buf
}

// Build encodes in into a new Segment, allocating fresh pages for its
// arrays, indexes, and property trees.
func Build(p *pager.Pager, in BuildInput) (*Segment, error) {
	forward := append([]EdgeKey(nil), in.Edges...)
	sort.Slice(forward, func(i, j int) bool { return lessForward(forward[i], forward[j]) })
	reverse := append([]EdgeKey(nil), in.Edges...)
	sort.Slice(reverse, func(i, j int) bool { return lessReverse(reverse[i], reverse[j]) })

	forwardIdx := buildIndex(forward, func(e EdgeKey) uint32 { return e.Src })
	reverseIdx := buildIndex(reverse, func(e EdgeKey) uint32 { return e.Dst })

	forwardBlob, forwardIdxBlob, err := encodeArrayAndIndex(p, forward, forwardIdx)
	if err != nil {
		return nil, err
	}
	reverseBlob, reverseIdxBlob, err := encodeArrayAndIndex(p, reverse, reverseIdx)
	if err != nil {
		return nil, err
	}

	nodeProps, err := btree.Create(p)
	if err != nil {
		return nil, err
	}
	for internal, props := range in.NodeProperties {
		if err := putPropertyBlob(p, nodeProps, encodeNodeKey(internal), props); err != nil {
			return nil, err
		}
	}

	edgeProps, err := btree.Create(p)
	if err != nil {
		return nil, err
	}
	for key, props := range in.EdgeProperties {
		if err := putPropertyBlob(p, edgeProps, encodeEdge(key), props); err != nil {
			return nil, err
		}
	}

	descriptor, err := p.AllocatePage()
	if err != nil {
		return nil, err
	}
	s := &Segment{
		p:          p,
		descriptor: descriptor,
		forward:    forward,
		forwardIdx: forwardIdx,
		reverse:    reverse,
		reverseIdx: reverseIdx,
		nodeProps:  nodeProps,
		edgeProps:  edgeProps,
	}
	if err := s.writeDescriptor(forwardBlob, reverseBlob, forwardIdxBlob, reverseIdxBlob); err != nil {
		return nil, err
	}
	return s, nil
}

func lessForward(a, b EdgeKey) bool {
	if a.Src != b.Src {
		return a.Src < b.Src
	}
	if a.Rel != b.Rel {
		return a.Rel < b.Rel
	}
	return a.Dst < b.Dst
}

func lessReverse(a, b EdgeKey) bool {
	if a.Dst != b.Dst {
		return a.Dst < b.Dst
	}
	if a.Rel != b.Rel {
		return a.Rel < b.Rel
	}
	return a.Src < b.Src
}

func buildIndex(sorted []EdgeKey, keyOf func(EdgeKey) uint32) []offsetEntry {
	var idx []offsetEntry
	i := 0
	for i < len(sorted) {
		k := keyOf(sorted[i])
		j := i
		for j < len(sorted) && keyOf(sorted[j]) == k {
			j++
		}
		idx = append(idx, offsetEntry{key: k, start: i, cnt: j - i})
		i = j
	}
	return idx
}

func encodeArrayAndIndex(p *pager.Pager, arr []EdgeKey, idx []offsetEntry) (pager.PageID, pager.PageID, error) {
	buf := make([]byte, 0, len(arr)*12)
	for _, e := range arr {
		buf = append(buf, encodeEdge(e)...)
	}
	arrHead, err := blobstore.Store(p, buf)
	if err != nil {
		return 0, 0, err
	}

	idxBuf := make([]byte, 0, len(idx)*12)
	for _, e := range idx {
		var rec [12]byte
		binary.LittleEndian.PutUint32(rec[0:4], e.key)
		binary.LittleEndian.PutUint32(rec[4:8], uint32(e.start))
		binary.LittleEndian.PutUint32(rec[8:12], uint32(e.cnt))
		idxBuf = append(idxBuf, rec[:]...)
	}
	idxHead, err := blobstore.Store(p, idxBuf)
	if err != nil {
		return 0, 0, err
	}
	return arrHead, idxHead, nil
}

func putPropertyBlob(p *pager.Pager, tree *btree.Tree, key []byte, props map[string]value.Value) error {
	var buf []byte
	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(props)))
	buf = append(buf, lenPrefix[:]...)
	for k, v := range props {
		var kl [4]byte
		binary.LittleEndian.PutUint32(kl[:], uint32(len(k)))
		buf = append(buf, kl[:]...)
		buf = append(buf, k...)
		buf = value.Encode(buf, v)
	}
	head, err := blobstore.Store(p, buf)
	if err != nil {
		return err
	}
	var handle [8]byte
	binary.LittleEndian.PutUint64(handle[:], uint64(head))
	return tree.Put(key, handle[:])
}

func decodePropertyBlob(buf []byte) (map[string]value.Value, error) {
	if len(buf) < 4 {
		return map[string]value.Value{}, nil
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	pos := 4
	out := make(map[string]value.Value, count)
	for i := uint32(0); i < count; i++ {
		kl := binary.LittleEndian.Uint32(buf[pos : pos+4])
		pos += 4
		k := string(buf[pos : pos+int(kl)])
		pos += int(kl)
		v, n, err := value.Decode(buf[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		out[k] = v
	}
	return out, nil
}

func (s *Segment) writeDescriptor(forwardBlob, reverseBlob, forwardIdxBlob, reverseIdxBlob pager.PageID) error {
	buf := make([]byte, pager.PageSize)
	fields := []uint64{
		uint64(forwardBlob),
		uint64(reverseBlob),
		uint64(forwardIdxBlob),
		uint64(reverseIdxBlob),
		uint64(s.nodeProps.Root()),
		uint64(s.edgeProps.Root()),
		uint64(len(s.forward)),
	}
	for i, f := range fields {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], f)
	}
	return s.p.WritePage(s.descriptor, buf)
}

// Open reloads a previously built segment from its descriptor page.
func Open(p *pager.Pager, descriptor pager.PageID) (*Segment, error) {
	buf, err := p.ReadPage(descriptor)
	if err != nil {
		return nil, err
	}
	var fields [descriptorFields]uint64
	for i := range fields {
		fields[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	forwardBlob := pager.PageID(fields[0])
	reverseBlob := pager.PageID(fields[1])
	forwardIdxBlob := pager.PageID(fields[2])
	reverseIdxBlob := pager.PageID(fields[3])
	nodePropsRoot := pager.PageID(fields[4])
	edgePropsRoot := pager.PageID(fields[5])

	forward, err := loadEdgeArray(p, forwardBlob)
	if err != nil {
		return nil, err
	}
	reverse, err := loadEdgeArray(p, reverseBlob)
	if err != nil {
		return nil, err
	}
	forwardIdx, err := loadIndex(p, forwardIdxBlob)
	if err != nil {
		return nil, err
	}
	reverseIdx, err := loadIndex(p, reverseIdxBlob)
	if err != nil {
		return nil, err
	}

	return &Segment{
		p:          p,
		descriptor: descriptor,
		forward:    forward,
		forwardIdx: forwardIdx,
		reverse:    reverse,
		reverseIdx: reverseIdx,
		nodeProps:  btree.Open(p, nodePropsRoot),
		edgeProps:  btree.Open(p, edgePropsRoot),
	}, nil
}

func loadEdgeArray(p *pager.Pager, head pager.PageID) ([]EdgeKey, error) {
	buf, err := blobstore.Load(p, head)
	if err != nil {
		return nil, err
	}
	out := make([]EdgeKey, 0, len(buf)/12)
	for i := 0; i+12 <= len(buf); i += 12 {
		out = append(out, decodeEdge(buf[i:i+12]))
	}
	return out, nil
}

func loadIndex(p *pager.Pager, head pager.PageID) ([]offsetEntry, error) {
	buf, err := blobstore.Load(p, head)
	if err != nil {
		return nil, err
	}
	out := make([]offsetEntry, 0, len(buf)/12)
	for i := 0; i+12 <= len(buf); i += 12 {
		out = append(out, offsetEntry{
			key:   binary.LittleEndian.Uint32(buf[i : i+4]),
			start: int(binary.LittleEndian.Uint32(buf[i+4 : i+8])),
			cnt:   int(binary.LittleEndian.Uint32(buf[i+8 : i+12])),
		})
	}
	return out, nil
}

func lookupIndex(idx []offsetEntry, key uint32) (offsetEntry, bool) {
	lo, hi := 0, len(idx)
	for lo < hi {
		mid := (lo + hi) / 2
		if idx[mid].key == key {
			return idx[mid], true
		}
		if idx[mid].key < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return offsetEntry{}, false
}

// Neighbors binary-searches the forward offset table for src and returns
// its outgoing edges, optionally filtered to a single relationship type.
func (s *Segment) Neighbors(src uint32, rel *uint32, yield func(EdgeKey) bool) {
	e, ok := lookupIndex(s.forwardIdx, src)
	if !ok {
		return
	}
	for i := e.start; i < e.start+e.cnt; i++ {
		edge := s.forward[i]
		if rel != nil && edge.Rel != *rel {
			continue
		}
		if !yield(edge) {
			return
		}
	}
}

// IncomingNeighbors is the reverse-table analogue of Neighbors.
func (s *Segment) IncomingNeighbors(dst uint32, rel *uint32, yield func(EdgeKey) bool) {
	e, ok := lookupIndex(s.reverseIdx, dst)
	if !ok {
		return
	}
	for i := e.start; i < e.start+e.cnt; i++ {
		edge := s.reverse[i]
		if rel != nil && edge.Rel != *rel {
			continue
		}
		if !yield(edge) {
			return
		}
	}
}

// NodeProperty looks up prop on internal in this segment's property tree.
func (s *Segment) NodeProperty(internal uint32, prop string) (value.Value, bool, error) {
	return s.lookupProperty(s.nodeProps, encodeNodeKey(internal), prop)
}

// EdgeProperty is the edge-keyed analogue of NodeProperty.
func (s *Segment) EdgeProperty(key EdgeKey, prop string) (value.Value, bool, error) {
	return s.lookupProperty(s.edgeProps, encodeEdge(key), prop)
}

func (s *Segment) lookupProperty(tree *btree.Tree, key []byte, prop string) (value.Value, bool, error) {
	handle, ok, err := tree.Get(key)
	if err != nil || !ok {
		return value.Null, false, err
	}
	head := pager.PageID(binary.LittleEndian.Uint64(handle))
	buf, err := blobstore.Load(s.p, head)
	if err != nil {
		return value.Null, false, err
	}
	props, err := decodePropertyBlob(buf)
	if err != nil {
		return value.Null, false, err
	}
	v, ok := props[prop]
	return v, ok, nil
}

// AllNodeProperties scans every node-property entry stored in this
// segment, used by compaction to carry forward properties of nodes that
// this compaction cycle does not otherwise touch.
func (s *Segment) AllNodeProperties(yield func(internal uint32, props map[string]value.Value) bool) error {
	var scanErr error
	stop := false
	err := s.nodeProps.Scan(nil, nil, func(k, handle []byte) bool {
		props, err := s.loadPropertyBlob(handle)
		if err != nil {
			scanErr = err
			return false
		}
		if !yield(binary.BigEndian.Uint32(k), props) {
			stop = true
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	_ = stop
	return scanErr
}

// AllEdgeProperties is the edge-keyed analogue of AllNodeProperties.
func (s *Segment) AllEdgeProperties(yield func(key EdgeKey, props map[string]value.Value) bool) error {
	var scanErr error
	err := s.edgeProps.Scan(nil, nil, func(k, handle []byte) bool {
		props, err := s.loadPropertyBlob(handle)
		if err != nil {
			scanErr = err
			return false
		}
		return yield(decodeEdge(k), props)
	})
	if err != nil {
		return err
	}
	return scanErr
}

func (s *Segment) loadPropertyBlob(handle []byte) (map[string]value.Value, error) {
	head := pager.PageID(binary.LittleEndian.Uint64(handle))
	buf, err := blobstore.Load(s.p, head)
	if err != nil {
		return nil, err
	}
	return decodePropertyBlob(buf)
}

// Descriptor returns the segment's root page id, persisted by the engine
// in its segments list (spec §6).
func (s *Segment) Descriptor() pager.PageID { return s.descriptor }

// EdgeCount returns the number of edges in this segment, used by the
// statistics root (spec §4.1, invariant I5).
func (s *Segment) EdgeCount() int { return len(s.forward) }

// AllEdges yields every edge in the segment, in forward order, for
// compaction's next-generation merge.
func (s *Segment) AllEdges(yield func(EdgeKey) bool) {
	for _, e := range s.forward {
		if !yield(e) {
			return
		}
	}
}
