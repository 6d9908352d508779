// Package vector implements a persistent HNSW (hierarchical navigable
// small world) index over vector embeddings, built on the same
// internal/btree and internal/pager primitives as the rest of the storage
// layer (spec §4.6). Vector storage and graph adjacency are two B+tree-
// backed stores, exactly as the spec calls for.
//
// Level assignment is a deterministic function of a node's internal id
// (via xxh3) rather than drawn from ambient process randomness: WAL
// replay re-applies the same SetVector record by calling Insert again, and
// a non-deterministic level draw would let the post-replay graph diverge
// from the pre-crash one even though every stored vector and edge is
// identical. Search correctness does not depend on any particular level
// assignment, only on the node distribution across levels following the
// usual exponential decay, which a hash-seeded draw still produces.
package vector

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/nervusdb/nervusdb/internal/btree"
	"github.com/nervusdb/nervusdb/internal/pager"
	"github.com/zeebo/xxh3"
)

const noEntryPoint = ^uint32(0)

// Params bundles the HNSW tuning knobs named in spec §4.6.
type Params struct {
	Dim             int
	M               int
	EfConstruction  int
	EfSearch        int
}

// Index is a persistent HNSW graph over fixed-dimension float32 vectors.
type Index struct {
	p          *pager.Pager
	descriptor pager.PageID

	params Params

	entryPoint uint32
	entryLevel int

	vectors *btree.Tree // internal-id (4-byte BE) -> [level(4)][dim(4)][floats...]
	graph   *btree.Tree // (layer(4-byte BE) ++ internal-id(4-byte BE)) -> neighbor id list
}

// Create allocates a new, empty index with the given parameters.
func Create(p *pager.Pager, params Params) (*Index, error) {
	vectors, err := btree.Create(p)
	if err != nil {
		return nil, err
	}
	graph, err := btree.Create(p)
	if err != nil {
		return nil, err
	}
	descriptor, err := p.AllocatePage()
	if err != nil {
		return nil, err
	}
	idx := &Index{
		p:          p,
		descriptor: descriptor,
		params:     params,
		entryPoint: noEntryPoint,
		entryLevel: -1,
		vectors:    vectors,
		graph:      graph,
	}
	if err := idx.writeDescriptor(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Open reloads a previously created index from its descriptor page.
func Open(p *pager.Pager, descriptor pager.PageID) (*Index, error) {
	buf, err := p.ReadPage(descriptor)
	if err != nil {
		return nil, err
	}
	idx := &Index{p: p, descriptor: descriptor}
	idx.params.Dim = int(binary.LittleEndian.Uint32(buf[0:4]))
	idx.params.M = int(binary.LittleEndian.Uint32(buf[4:8]))
	idx.params.EfConstruction = int(binary.LittleEndian.Uint32(buf[8:12]))
	idx.params.EfSearch = int(binary.LittleEndian.Uint32(buf[12:16]))
	idx.entryPoint = binary.LittleEndian.Uint32(buf[16:20])
	idx.entryLevel = int(int32(binary.LittleEndian.Uint32(buf[20:24])))
	vectorsRoot := pager.PageID(binary.LittleEndian.Uint64(buf[24:32]))
	graphRoot := pager.PageID(binary.LittleEndian.Uint64(buf[32:40]))
	idx.vectors = btree.Open(p, vectorsRoot)
	idx.graph = btree.Open(p, graphRoot)
	return idx, nil
}

func (idx *Index) writeDescriptor() error {
	buf := make([]byte, pager.PageSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(idx.params.Dim))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(idx.params.M))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(idx.params.EfConstruction))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(idx.params.EfSearch))
	binary.LittleEndian.PutUint32(buf[16:20], idx.entryPoint)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(int32(idx.entryLevel)))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(idx.vectors.Root()))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(idx.graph.Root()))
	return idx.p.WritePage(idx.descriptor, buf)
}

// Descriptor returns the index's root page id for the engine to persist.
func (idx *Index) Descriptor() pager.PageID { return idx.descriptor }

func nodeKey(internal uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, internal)
	return buf
}

func layerKey(layer int, internal uint32) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(layer))
	binary.BigEndian.PutUint32(buf[4:8], internal)
	return buf
}

func encodeVectorRecord(level int, vec []float32) []byte {
	buf := make([]byte, 8, 8+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(level))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(vec)))
	for _, f := range vec {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		buf = append(buf, b[:]...)
	}
	return buf
}

func decodeVectorRecord(buf []byte) (level int, vec []float32) {
	level = int(binary.LittleEndian.Uint32(buf[0:4]))
	n := binary.LittleEndian.Uint32(buf[4:8])
	vec = make([]float32, n)
	for i := uint32(0); i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[8+i*4 : 12+i*4]))
	}
	return level, vec
}

func encodeNeighbors(ids []uint32) []byte {
	buf := make([]byte, 4, 4+len(ids)*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(ids)))
	for _, id := range ids {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], id)
		buf = append(buf, b[:]...)
	}
	return buf
}

func decodeNeighbors(buf []byte) []uint32 {
	if len(buf) < 4 {
		return nil
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	out := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		out[i] = binary.LittleEndian.Uint32(buf[4+i*4 : 8+i*4])
	}
	return out
}

// drawLevel deterministically assigns internal a level using the standard
// HNSW exponential-decay distribution, seeded from a hash of its id so
// WAL replay reproduces the identical graph shape (see package doc).
func drawLevel(internal uint32, m int) int {
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], internal)
	seed := xxh3.Hash(idBuf[:])
	rng := rand.New(rand.NewSource(int64(seed)))
	levelMult := 1.0 / math.Log(float64(m))
	r := rng.Float64()
	if r < 1e-12 {
		r = 1e-12
	}
	return int(math.Floor(-math.Log(r) * levelMult))
}

func sqDist(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func (idx *Index) loadVector(internal uint32) (int, []float32, bool, error) {
	buf, ok, err := idx.vectors.Get(nodeKey(internal))
	if err != nil || !ok {
		return 0, nil, false, err
	}
	level, vec := decodeVectorRecord(buf)
	return level, vec, true, nil
}

func (idx *Index) neighbors(layer int, internal uint32) ([]uint32, error) {
	buf, ok, err := idx.graph.Get(layerKey(layer, internal))
	if err != nil || !ok {
		return nil, err
	}
	return decodeNeighbors(buf), nil
}

func (idx *Index) setNeighbors(layer int, internal uint32, ids []uint32) error {
	return idx.graph.Put(layerKey(layer, internal), encodeNeighbors(ids))
}

type candidate struct {
	id   uint32
	dist float64
}

// searchLayer performs a greedy beam search at one layer, starting from
// entry points and returning up to ef closest candidates to query.
func (idx *Index) searchLayer(query []float32, entries []uint32, ef, layer int) ([]candidate, error) {
	visited := make(map[uint32]bool)
	var result []candidate
	var frontier []candidate

	for _, e := range entries {
		_, vec, ok, err := idx.loadVector(e)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		c := candidate{id: e, dist: sqDist(query, vec)}
		frontier = append(frontier, c)
		result = append(result, c)
		visited[e] = true
	}

	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool { return frontier[i].dist < frontier[j].dist })
		cur := frontier[0]
		frontier = frontier[1:]

		sort.Slice(result, func(i, j int) bool { return result[i].dist < result[j].dist })
		if len(result) >= ef && cur.dist > result[ef-1].dist {
			break
		}

		ns, err := idx.neighbors(layer, cur.id)
		if err != nil {
			return nil, err
		}
		for _, n := range ns {
			if visited[n] {
				continue
			}
			visited[n] = true
			_, vec, ok, err := idx.loadVector(n)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			c := candidate{id: n, dist: sqDist(query, vec)}
			frontier = append(frontier, c)
			result = append(result, c)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].dist < result[j].dist })
	if len(result) > ef {
		result = result[:ef]
	}
	return result, nil
}

// Insert adds or replaces internal's vector and wires it into the graph.
func (idx *Index) Insert(internal uint32, vec []float32) error {
	if len(vec) != idx.params.Dim {
		return &DimensionMismatchError{Expected: idx.params.Dim, Got: len(vec)}
	}
	level := drawLevel(internal, idx.params.M)

	if err := idx.vectors.Put(nodeKey(internal), encodeVectorRecord(level, vec)); err != nil {
		return err
	}

	if idx.entryPoint == noEntryPoint {
		idx.entryPoint = internal
		idx.entryLevel = level
		return idx.writeDescriptor()
	}

	entry := idx.entryPoint
	for l := idx.entryLevel; l > level; l-- {
		res, err := idx.searchLayer(vec, []uint32{entry}, 1, l)
		if err != nil {
			return err
		}
		if len(res) > 0 {
			entry = res[0].id
		}
	}

	entries := []uint32{entry}
	for l := min(level, idx.entryLevel); l >= 0; l-- {
		candidates, err := idx.searchLayer(vec, entries, idx.params.EfConstruction, l)
		if err != nil {
			return err
		}
		m := idx.params.M
		if len(candidates) > m {
			candidates = candidates[:m]
		}
		var neighborIDs []uint32
		for _, c := range candidates {
			neighborIDs = append(neighborIDs, c.id)
		}
		if err := idx.setNeighbors(l, internal, neighborIDs); err != nil {
			return err
		}
		for _, c := range candidates {
			if err := idx.addBacklink(l, c.id, internal, vec); err != nil {
				return err
			}
		}
		entries = neighborIDs
		if len(entries) == 0 {
			entries = []uint32{entry}
		}
	}

	if level > idx.entryLevel {
		idx.entryPoint = internal
		idx.entryLevel = level
	}
	return idx.writeDescriptor()
}

// addBacklink adds internal as a neighbor of existing at layer, pruning
// existing's neighbor list back down to M by distance if it overflows.
func (idx *Index) addBacklink(layer int, existing, internal uint32, newVec []float32) error {
	ns, err := idx.neighbors(layer, existing)
	if err != nil {
		return err
	}
	for _, n := range ns {
		if n == internal {
			return nil
		}
	}
	ns = append(ns, internal)
	if len(ns) <= idx.params.M {
		return idx.setNeighbors(layer, existing, ns)
	}

	_, existingVec, ok, err := idx.loadVector(existing)
	if err != nil || !ok {
		return err
	}
	cands := make([]candidate, 0, len(ns))
	for _, n := range ns {
		var v []float32
		if n == internal {
			v = newVec
		} else {
			_, vv, ok, err := idx.loadVector(n)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			v = vv
		}
		cands = append(cands, candidate{id: n, dist: sqDist(existingVec, v)})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > idx.params.M {
		cands = cands[:idx.params.M]
	}
	pruned := make([]uint32, len(cands))
	for i, c := range cands {
		pruned[i] = c.id
	}
	return idx.setNeighbors(layer, existing, pruned)
}

// Result is one match returned by Search, ordered nearest-first.
type Result struct {
	InternalID uint32
	Distance   float64 // Euclidean, not squared
}

// Search returns the k approximate nearest neighbors of query.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	if idx.entryPoint == noEntryPoint {
		return nil, nil
	}
	entry := idx.entryPoint
	for l := idx.entryLevel; l > 0; l-- {
		res, err := idx.searchLayer(query, []uint32{entry}, 1, l)
		if err != nil {
			return nil, err
		}
		if len(res) > 0 {
			entry = res[0].id
		}
	}
	ef := idx.params.EfSearch
	if ef < k {
		ef = k
	}
	cands, err := idx.searchLayer(query, []uint32{entry}, ef, 0)
	if err != nil {
		return nil, err
	}
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]Result, len(cands))
	for i, c := range cands {
		out[i] = Result{InternalID: c.id, Distance: math.Sqrt(c.dist)}
	}
	return out, nil
}

// DimensionMismatchError is returned when a vector's length does not
// match the index's configured dimension.
type DimensionMismatchError struct {
	Expected, Got int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector: dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
