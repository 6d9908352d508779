package segment

import (
	"testing"

	"github.com/nervusdb/nervusdb/internal/pager"
	"github.com/nervusdb/nervusdb/internal/value"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openPager(t *testing.T) *pager.Pager {
	t.Helper()
	p, err := pager.Open(t.TempDir()+"/seg.ndb", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func buildSample(t *testing.T, p *pager.Pager) *Segment {
	t.Helper()
	in := BuildInput{
		Edges: []EdgeKey{
			{Src: 1, Rel: 10, Dst: 2},
			{Src: 1, Rel: 11, Dst: 3},
			{Src: 2, Rel: 10, Dst: 3},
		},
		NodeProperties: map[uint32]map[string]value.Value{
			1: {"name": value.String("Alice")},
		},
		EdgeProperties: map[EdgeKey]map[string]value.Value{
			{Src: 1, Rel: 10, Dst: 2}: {"since": value.Int(2020)},
		},
	}
	s, err := Build(p, in)
	require.NoError(t, err)
	return s
}

func TestNeighborsForwardAndReverse(t *testing.T) {
	p := openPager(t)
	s := buildSample(t, p)

	var out []EdgeKey
	s.Neighbors(1, nil, func(e EdgeKey) bool { out = append(out, e); return true })
	require.ElementsMatch(t, []EdgeKey{{Src: 1, Rel: 10, Dst: 2}, {Src: 1, Rel: 11, Dst: 3}}, out)

	rel := uint32(11)
	out = nil
	s.Neighbors(1, &rel, func(e EdgeKey) bool { out = append(out, e); return true })
	require.Equal(t, []EdgeKey{{Src: 1, Rel: 11, Dst: 3}}, out)

	out = nil
	s.IncomingNeighbors(3, nil, func(e EdgeKey) bool { out = append(out, e); return true })
	require.ElementsMatch(t, []EdgeKey{{Src: 1, Rel: 11, Dst: 3}, {Src: 2, Rel: 10, Dst: 3}}, out)
}

func TestNeighborsOfUnknownNodeIsEmpty(t *testing.T) {
	p := openPager(t)
	s := buildSample(t, p)

	called := false
	s.Neighbors(999, nil, func(EdgeKey) bool { called = true; return true })
	require.False(t, called)
}

func TestPropertyLookup(t *testing.T) {
	p := openPager(t)
	s := buildSample(t, p)

	v, ok, err := s.NodeProperty(1, "name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Alice", v.S)

	_, ok, err = s.NodeProperty(1, "age")
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err = s.EdgeProperty(EdgeKey{Src: 1, Rel: 10, Dst: 2}, "since")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2020), v.I)
}

func TestReopenSegmentFromDescriptor(t *testing.T) {
	p := openPager(t)
	s := buildSample(t, p)
	desc := s.Descriptor()
	require.NoError(t, p.Flush())

	reopened, err := Open(p, desc)
	require.NoError(t, err)
	require.Equal(t, 3, reopened.EdgeCount())

	v, ok, err := reopened.NodeProperty(1, "name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Alice", v.S)
}

func TestEdgeCountAndAllEdges(t *testing.T) {
	p := openPager(t)
	s := buildSample(t, p)
	require.Equal(t, 3, s.EdgeCount())

	var all []EdgeKey
	s.AllEdges(func(e EdgeKey) bool { all = append(all, e); return true })
	require.Len(t, all, 3)
}
