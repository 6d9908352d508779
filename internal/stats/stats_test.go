package stats

import (
	"testing"

	"github.com/nervusdb/nervusdb/internal/pager"
	"github.com/nervusdb/nervusdb/internal/segment"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openPager(t *testing.T) *pager.Pager {
	t.Helper()
	p, err := pager.Open(t.TempDir()+"/stats.ndb", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestBuildCountsLabelsAndRelTypes(t *testing.T) {
	p := openPager(t)
	seg, err := segment.Build(p, segment.BuildInput{
		Edges: []segment.EdgeKey{
			{Src: 1, Rel: 10, Dst: 2},
			{Src: 2, Rel: 10, Dst: 3},
			{Src: 1, Rel: 11, Dst: 3},
		},
	})
	require.NoError(t, err)

	nodeLabels := [][]uint32{
		{5},    // node 0: label 5
		{5, 6}, // node 1: labels 5, 6
		{6},    // node 2: label 6
	}

	s := Build(nodeLabels, []*segment.Segment{seg})
	require.Equal(t, int64(2), s.NodeCount(5))
	require.Equal(t, int64(2), s.NodeCount(6))
	require.Equal(t, int64(2), s.EdgeCount(10))
	require.Equal(t, int64(1), s.EdgeCount(11))
	require.Equal(t, int64(0), s.EdgeCount(999))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := &Stats{
		NodeLabelCounts:   map[uint32]int64{1: 10, 2: 20},
		EdgeRelTypeCounts: map[uint32]int64{3: 30},
	}
	got := Decode(s.Encode())
	require.Equal(t, s.NodeLabelCounts, got.NodeLabelCounts)
	require.Equal(t, s.EdgeRelTypeCounts, got.EdgeRelTypeCounts)
}

func TestPersistLoadRoundTrip(t *testing.T) {
	p := openPager(t)
	s := &Stats{
		NodeLabelCounts:   map[uint32]int64{7: 3},
		EdgeRelTypeCounts: map[uint32]int64{8: 4},
	}
	head, err := Persist(p, s)
	require.NoError(t, err)

	got, err := Load(p, head)
	require.NoError(t, err)
	require.Equal(t, s.NodeLabelCounts, got.NodeLabelCounts)
	require.Equal(t, s.EdgeRelTypeCounts, got.EdgeRelTypeCounts)
}
