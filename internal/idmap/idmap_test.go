package idmap

import (
	"testing"

	"github.com/nervusdb/nervusdb/internal/pager"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openPager(t *testing.T) *pager.Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.Open(dir+"/test.ndb", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestCreateNodeRoundTrip(t *testing.T) {
	pg := openPager(t)
	m, err := New(pg, pager.InvalidPageID, 0)
	require.NoError(t, err)

	internal, err := m.ApplyCreateNode(10, 1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, internal)

	got, ok := m.Lookup(10)
	require.True(t, ok)
	require.Equal(t, internal, got)

	ext, ok := m.ExternalOf(internal)
	require.True(t, ok)
	require.EqualValues(t, 10, ext)
}

func TestLabelsAddRemove(t *testing.T) {
	pg := openPager(t)
	m, err := New(pg, pager.InvalidPageID, 0)
	require.NoError(t, err)

	internal, err := m.ApplyCreateNode(1, 5, 0)
	require.NoError(t, err)

	m.ApplyAddLabel(internal, 6)
	require.ElementsMatch(t, []uint32{5, 6}, m.GetLabels(internal))

	m.ApplyRemoveLabel(internal, 6)
	require.Equal(t, []uint32{5}, m.GetLabels(internal))
}

func TestMismatchedExpectedInternalRejected(t *testing.T) {
	pg := openPager(t)
	m, err := New(pg, pager.InvalidPageID, 0)
	require.NoError(t, err)

	_, err = m.ApplyCreateNode(1, 1, 5)
	require.ErrorIs(t, err, ErrInternalIDMismatch)
}

func TestPersistedRecordSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	pg, err := pager.Open(dir+"/test.ndb", zerolog.Nop())
	require.NoError(t, err)

	m, err := New(pg, pager.InvalidPageID, 0)
	require.NoError(t, err)
	internal, err := m.ApplyCreateNode(42, 3, 0)
	require.NoError(t, err)
	start := m.StartPage()
	count := m.RecordCount()
	require.NoError(t, pg.Close())

	pg2, err := pager.Open(dir+"/test.ndb", zerolog.Nop())
	require.NoError(t, err)
	defer pg2.Close()

	m2, err := New(pg2, start, count)
	require.NoError(t, err)
	got, ok := m2.Lookup(42)
	require.True(t, ok)
	require.Equal(t, internal, got)
	require.Equal(t, []uint32{3}, m2.GetLabels(internal))
}
