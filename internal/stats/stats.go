// Package stats computes and persists the per-label and per-relationship-
// type counts the query planner uses for index and join-order selection
// (spec §4.1, "Statistics"). Per invariant I5, edge counts reflect only
// segmented (compacted) edges — L0-only mutations are not counted until
// their run is folded into a segment, so the planner's estimates never
// have to account for in-flight, not-yet-compacted writes.
package stats

import (
	"encoding/binary"

	"github.com/nervusdb/nervusdb/internal/blobstore"
	"github.com/nervusdb/nervusdb/internal/pager"
	"github.com/nervusdb/nervusdb/internal/segment"
)

// Stats is an immutable snapshot of per-label node counts and
// per-relationship-type edge counts.
type Stats struct {
	NodeLabelCounts   map[uint32]int64
	EdgeRelTypeCounts map[uint32]int64
}

// Build computes fresh statistics from the current node-label lists (one
// entry per live internal id, each a list of label ids) and the current
// segment set. It is called at the end of compaction (spec §4.8), and
// only ever reads segmented edges, never L0 runs, per invariant I5.
func Build(nodeLabels [][]uint32, segments []*segment.Segment) *Stats {
	s := &Stats{
		NodeLabelCounts:   make(map[uint32]int64),
		EdgeRelTypeCounts: make(map[uint32]int64),
	}
	for _, labels := range nodeLabels {
		for _, l := range labels {
			s.NodeLabelCounts[l]++
		}
	}
	for _, seg := range segments {
		seg.AllEdges(func(e segment.EdgeKey) bool {
			s.EdgeRelTypeCounts[e.Rel]++
			return true
		})
	}
	return s
}

// NodeCount returns the estimated number of live nodes carrying label.
func (s *Stats) NodeCount(label uint32) int64 { return s.NodeLabelCounts[label] }

// EdgeCount returns the estimated number of segmented edges of relType.
func (s *Stats) EdgeCount(relType uint32) int64 { return s.EdgeRelTypeCounts[relType] }

// Encode serializes s into a flat, length-prefixed binary blob.
func (s *Stats) Encode() []byte {
	buf := make([]byte, 4, 4+len(s.NodeLabelCounts)*12+len(s.EdgeRelTypeCounts)*12)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(s.NodeLabelCounts)))
	for k, v := range s.NodeLabelCounts {
		buf = appendEntry(buf, k, v)
	}
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(s.EdgeRelTypeCounts)))
	buf = append(buf, countBuf[:]...)
	for k, v := range s.EdgeRelTypeCounts {
		buf = appendEntry(buf, k, v)
	}
	return buf
}

func appendEntry(buf []byte, k uint32, v int64) []byte {
	var rec [12]byte
	binary.LittleEndian.PutUint32(rec[0:4], k)
	binary.LittleEndian.PutUint64(rec[4:12], uint64(v))
	return append(buf, rec[:]...)
}

// Decode parses the output of Encode.
func Decode(buf []byte) *Stats {
	s := &Stats{
		NodeLabelCounts:   make(map[uint32]int64),
		EdgeRelTypeCounts: make(map[uint32]int64),
	}
	if len(buf) < 4 {
		return s
	}
	pos := 0
	nodeCount := binary.LittleEndian.Uint32(buf[pos : pos+4])
	pos += 4
	for i := uint32(0); i < nodeCount; i++ {
		k := binary.LittleEndian.Uint32(buf[pos : pos+4])
		v := int64(binary.LittleEndian.Uint64(buf[pos+4 : pos+12]))
		s.NodeLabelCounts[k] = v
		pos += 12
	}
	edgeCount := binary.LittleEndian.Uint32(buf[pos : pos+4])
	pos += 4
	for i := uint32(0); i < edgeCount; i++ {
		k := binary.LittleEndian.Uint32(buf[pos : pos+4])
		v := int64(binary.LittleEndian.Uint64(buf[pos+4 : pos+12]))
		s.EdgeRelTypeCounts[k] = v
		pos += 12
	}
	return s
}

// Persist writes s as a blobstore chain and returns its head page, the
// value the engine stores as stats_root (spec §6).
func Persist(p *pager.Pager, s *Stats) (pager.PageID, error) {
	return blobstore.Store(p, s.Encode())
}

// Load reads back statistics previously written by Persist.
func Load(p *pager.Pager, head pager.PageID) (*Stats, error) {
	buf, err := blobstore.Load(p, head)
	if err != nil {
		return nil, err
	}
	return Decode(buf), nil
}
