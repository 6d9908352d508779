package blobstore

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nervusdb/nervusdb/internal/pager"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openPager(t *testing.T) *pager.Pager {
	t.Helper()
	p, err := pager.Open(t.TempDir()+"/blob.ndb", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSmallPayloadRoundTrip(t *testing.T) {
	p := openPager(t)
	head, err := Store(p, []byte("hello world"))
	require.NoError(t, err)

	got, err := Load(p, head)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
}

func TestEmptyPayloadRoundTrip(t *testing.T) {
	p := openPager(t)
	head, err := Store(p, nil)
	require.NoError(t, err)

	got, err := Load(p, head)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLargePayloadSpansMultiplePagesAndCompresses(t *testing.T) {
	p := openPager(t)
	data := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 2000))
	require.Greater(t, len(data), pager.PageSize)

	head, err := Store(p, data)
	require.NoError(t, err)

	got, err := Load(p, head)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
}

func TestIncompressibleDataStillRoundTrips(t *testing.T) {
	p := openPager(t)
	// Random-looking data above the threshold that zstd cannot shrink;
	// Store must fall back to the raw flag rather than inflate it.
	data := make([]byte, 1024)
	x := uint32(2463534242)
	for i := range data {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		data[i] = byte(x)
	}

	head, err := Store(p, data)
	require.NoError(t, err)

	got, err := Load(p, head)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestFreeReleasesAllChainPages(t *testing.T) {
	p := openPager(t)
	data := []byte(strings.Repeat("x", pager.PageSize*3))
	head, err := Store(p, data)
	require.NoError(t, err)

	require.NoError(t, Free(p, head))

	// The freed head page id should be recycled by the next allocation.
	reused, err := p.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, head, reused)
}
