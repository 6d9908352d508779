package l0

import (
	"testing"

	"github.com/nervusdb/nervusdb/internal/value"
	"github.com/stretchr/testify/require"
)

func TestBuilderBuildsRun(t *testing.T) {
	b := NewBuilder(1)
	b.CreateEdge(0, 7, 1)
	b.SetNodeProperty(0, "name", value.String("Alice"))
	b.TombstoneNode(5)

	run := b.Build()
	require.Equal(t, uint64(1), run.TxID)
	require.Equal(t, []EdgeKey{{Src: 0, Rel: 7, Dst: 1}}, run.EdgesForSrc(0))
	require.Equal(t, []EdgeKey{{Src: 0, Rel: 7, Dst: 1}}, run.EdgesForDst(1))
	require.True(t, run.IsNodeTombstoned(5))
	require.False(t, run.IsNodeTombstoned(0))

	v, ok, tomb := run.NodeProperty(0, "name")
	require.True(t, ok)
	require.False(t, tomb)
	require.True(t, v.Equal(value.String("Alice")))
}

func TestRemovePropertyThenSetUndoesTombstone(t *testing.T) {
	b := NewBuilder(1)
	b.RemoveNodeProperty(0, "age")
	b.SetNodeProperty(0, "age", value.Int(30))

	run := b.Build()
	v, ok, tomb := run.NodeProperty(0, "age")
	require.True(t, ok)
	require.False(t, tomb)
	require.Equal(t, int64(30), v.I)
}

func TestEmptyRun(t *testing.T) {
	b := NewBuilder(1)
	require.True(t, b.Build().IsEmpty())

	b2 := NewBuilder(2)
	b2.TombstoneNode(1)
	require.False(t, b2.Build().IsEmpty())
}

func TestEdgeTombstoneExactness(t *testing.T) {
	b := NewBuilder(1)
	b.TombstoneEdge(1, 2, 3)
	run := b.Build()
	require.True(t, run.IsEdgeTombstoned(EdgeKey{1, 2, 3}))
	require.False(t, run.IsEdgeTombstoned(EdgeKey{1, 2, 4}))
}
