package nervusdb

import (
	"path/filepath"
	"testing"

	"github.com/nervusdb/nervusdb/internal/value"
	"github.com/stretchr/testify/require"
)

// Scenario 1 (spec §8): a single-hop commit must survive a close/reopen
// cycle, recoverable purely from the WAL replay path.
func TestSingleHopCommitRecoverableAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	e, err := Open(path, Options{})
	require.NoError(t, err)

	tx, err := e.Begin()
	require.NoError(t, err)
	a := tx.CreateNode(10, "L1")
	b := tx.CreateNode(20, "L1")
	rel := tx.ResolveRelTypeID("R")
	tx.CreateEdge(a, rel, b)
	require.NoError(t, tx.Commit())
	require.NoError(t, e.Close())

	e2, err := Open(path, Options{})
	require.NoError(t, err)
	defer e2.Close()

	internalA, ok := e2.Snapshot().InternalID(10)
	require.True(t, ok)
	relID, ok := e2.Snapshot().ResolveRelTypeID("R")
	require.True(t, ok)

	snap := e2.Snapshot()
	var edges []uint32
	for ek := range snap.Neighbors(internalA, &relID) {
		edges = append(edges, ek.Dst)
	}
	require.Len(t, edges, 1)

	internalB, ok := snap.InternalID(20)
	require.True(t, ok)
	require.Equal(t, internalB, edges[0])
}

// Scenario 2 (spec §8): writes that never reach a commit record must be
// invisible after a crash (here, an Abort followed by a close).
func TestUncommittedWritesInvisibleAfterCrash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	e, err := Open(path, Options{})
	require.NoError(t, err)

	tx, err := e.Begin()
	require.NoError(t, err)
	tx.CreateNode(10, "L1")
	tx.CreateNode(20, "L1")
	require.NoError(t, tx.Abort())
	require.NoError(t, e.Close())

	e2, err := Open(path, Options{})
	require.NoError(t, err)
	defer e2.Close()

	_, ok := e2.Snapshot().InternalID(10)
	require.False(t, ok)
	_, ok = e2.Snapshot().InternalID(20)
	require.False(t, ok)
}

// Scenario 3 (spec §8): a snapshot taken before a later commit must not
// observe that commit's edges, while a snapshot opened afterward does.
func TestSnapshotIsolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	e, err := Open(path, Options{})
	require.NoError(t, err)
	defer e.Close()

	tx, err := e.Begin()
	require.NoError(t, err)
	a := tx.CreateNode(1, "L1")
	b := tx.CreateNode(2, "L1")
	rel := tx.ResolveRelTypeID("R")
	tx.CreateEdge(a, rel, b)
	require.NoError(t, tx.Commit())

	s := e.Snapshot()

	tx2, err := e.Begin()
	require.NoError(t, err)
	c := tx2.CreateNode(3, "L1")
	tx2.CreateEdge(a, rel, c)
	require.NoError(t, tx2.Commit())

	count := func(snap *Snapshot) int {
		n := 0
		for range snap.Neighbors(a, &rel) {
			n++
		}
		return n
	}

	require.Equal(t, 1, count(s))
	require.Equal(t, 2, count(e.Snapshot()))
}

// Properties round-trip through an L0 run overlay (no compaction yet),
// exercising the node-property read path described in spec §4.7/I3.
func TestNodePropertyOverlayReadback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	e, err := Open(path, Options{})
	require.NoError(t, err)
	defer e.Close()

	tx, err := e.Begin()
	require.NoError(t, err)
	n := tx.CreateNode(1, "L1")
	tx.SetNodeProperty(n, "name", value.String("Alice"))
	require.NoError(t, tx.Commit())

	v, ok, err := e.Snapshot().NodeProperty(n, "name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Alice", v.S)

	tx2, err := e.Begin()
	require.NoError(t, err)
	tx2.RemoveNodeProperty(n, "name")
	require.NoError(t, tx2.Commit())

	_, ok, err = e.Snapshot().NodeProperty(n, "name")
	require.NoError(t, err)
	require.False(t, ok)
}

// Compaction must preserve the logical edge set and properties even once
// every L0 run is folded into a segment (spec §4.8, invariant I5).
func TestCompactionPreservesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	e, err := Open(path, Options{CompactionThreshold: 1})
	require.NoError(t, err)
	defer e.Close()

	tx, err := e.Begin()
	require.NoError(t, err)
	a := tx.CreateNode(1, "L1")
	b := tx.CreateNode(2, "L1")
	rel := tx.ResolveRelTypeID("R")
	tx.CreateEdge(a, rel, b)
	tx.SetEdgeProperty(a, rel, b, "since", value.Int(2020))
	require.NoError(t, tx.Commit())

	snap := e.Snapshot()
	require.Empty(t, snap.runs, "commit should have triggered compaction at threshold 1")
	require.Len(t, snap.segments, 1)

	n := 0
	for ek := range snap.Neighbors(a, &rel) {
		n++
		v, ok, err := snap.EdgeProperty(ek, "since")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(2020), v.I)
	}
	require.Equal(t, 1, n)
}
