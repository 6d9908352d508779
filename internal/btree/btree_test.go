package btree

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/nervusdb/nervusdb/internal/pager"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openPager(t *testing.T) *pager.Pager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.ndb")
	p, err := pager.Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(); _ = os.Remove(path) })
	return p
}

func TestPutGetRoundTrip(t *testing.T) {
	p := openPager(t)
	tr, err := Create(p)
	require.NoError(t, err)

	require.NoError(t, tr.Put([]byte("apple"), []byte("1")))
	require.NoError(t, tr.Put([]byte("banana"), []byte("2")))
	require.NoError(t, tr.Put([]byte("apple"), []byte("1-updated")))

	v, ok, err := tr.Get([]byte("apple"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1-updated"), v)

	v, ok, err = tr.Get([]byte("banana"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)

	_, ok, err = tr.Get([]byte("cherry"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutForcesSplitsAndStaysOrdered(t *testing.T) {
	p := openPager(t)
	tr, err := Create(p)
	require.NoError(t, err)

	const n = 2000
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%06d", i))
		require.NoError(t, tr.Put(key, []byte(fmt.Sprintf("val-%d", i))))
	}

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%06d", i))
		v, ok, err := tr.Get(key)
		require.NoError(t, err)
		require.True(t, ok, "missing %s", key)
		require.Equal(t, fmt.Sprintf("val-%d", i), string(v))
	}

	var scanned []string
	err = tr.Scan(nil, nil, func(k, v []byte) bool {
		scanned = append(scanned, string(k))
		return true
	})
	require.NoError(t, err)
	require.Len(t, scanned, n)
	for i := 1; i < len(scanned); i++ {
		require.Less(t, scanned[i-1], scanned[i])
	}
}

func TestScanRange(t *testing.T) {
	p := openPager(t)
	tr, err := Create(p)
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, tr.Put([]byte(k), []byte(k)))
	}

	var got []string
	err = tr.Scan([]byte("b"), []byte("d"), func(k, v []byte) bool {
		got = append(got, string(k))
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, got)
}

func TestDeleteRemovesKey(t *testing.T) {
	p := openPager(t)
	tr, err := Create(p)
	require.NoError(t, err)

	require.NoError(t, tr.Put([]byte("x"), []byte("1")))
	require.NoError(t, tr.Delete([]byte("x")))

	_, ok, err := tr.Get([]byte("x"))
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting an absent key is a no-op, not an error.
	require.NoError(t, tr.Delete([]byte("never-existed")))
}

func TestReopenPreservesTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.ndb")
	p, err := pager.Open(path, zerolog.Nop())
	require.NoError(t, err)

	tr, err := Create(p)
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		require.NoError(t, tr.Put([]byte(fmt.Sprintf("k%04d", i)), []byte(fmt.Sprintf("v%d", i))))
	}
	root := tr.Root()
	require.NoError(t, p.Flush())
	require.NoError(t, p.Close())

	p2, err := pager.Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p2.Close() })

	tr2 := Open(p2, root)
	v, ok, err := tr2.Get([]byte("k0250"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v250", string(v))
}
