package pager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestOpenCreatesHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ndb")

	p, err := Open(path, testLogger())
	require.NoError(t, err)
	defer p.Close()

	hdr := p.Header()
	require.Equal(t, Magic, hdr.Magic)
	require.Equal(t, CurrentFormatEpoch, hdr.FormatEpoch)
}

func TestAllocateWriteReadPage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ndb")

	p, err := Open(path, testLogger())
	require.NoError(t, err)
	defer p.Close()

	id, err := p.AllocatePage()
	require.NoError(t, err)

	data := make([]byte, PageSize)
	copy(data, []byte("hello page"))
	require.NoError(t, p.WritePage(id, data))

	got, err := p.ReadPage(id)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestFreeListRecyclesPage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ndb")

	p, err := Open(path, testLogger())
	require.NoError(t, err)
	defer p.Close()

	id1, err := p.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, p.FreePage(id1))

	id2, err := p.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestReopenPreservesRoots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ndb")

	p, err := Open(path, testLogger())
	require.NoError(t, err)
	p.Header().PropertiesRoot = 42
	require.NoError(t, p.Close())

	p2, err := Open(path, testLogger())
	require.NoError(t, err)
	defer p2.Close()
	require.EqualValues(t, 42, p2.Header().PropertiesRoot)
}

func TestFormatMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ndb")

	p, err := Open(path, testLogger())
	require.NoError(t, err)
	hdr := p.Header()
	hdr.FormatEpoch = CurrentFormatEpoch + 1
	require.NoError(t, p.FlushHeader())
	require.NoError(t, p.Close())

	_, err = Open(path, testLogger())
	require.Error(t, err)
	var mismatch *FormatMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestEnsureAllocatedGrowsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ndb")

	p, err := Open(path, testLogger())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.EnsureAllocated(PageID(10)))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, info.Size(), int64(11*PageSize))
}
