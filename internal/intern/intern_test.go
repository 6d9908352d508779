package intern

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternAssignsDenseIDs(t *testing.T) {
	in := New()
	id1, created1 := in.Intern("Person")
	id2, created2 := in.Intern("Company")
	id1Again, created3 := in.Intern("Person")

	require.True(t, created1)
	require.True(t, created2)
	require.False(t, created3)
	require.Equal(t, uint32(0), id1)
	require.Equal(t, uint32(1), id2)
	require.Equal(t, id1, id1Again)
}

func TestSnapshotIndependentOfLaterInterns(t *testing.T) {
	in := New()
	in.Intern("Person")
	snap := in.Snapshot()

	in.Intern("Company")

	_, ok := snap.ID("Company")
	require.False(t, ok)

	id, ok := snap.ID("Person")
	require.True(t, ok)
	name, ok := snap.Name(id)
	require.True(t, ok)
	require.Equal(t, "Person", name)
}

func TestReplayPreservesOriginalIDs(t *testing.T) {
	in := New()
	in.Replay("KNOWS", 5)
	id, ok := in.ID("KNOWS")
	require.True(t, ok)
	require.Equal(t, uint32(5), id)
}
