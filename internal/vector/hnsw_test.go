package vector

import (
	"math/rand"
	"testing"

	"github.com/nervusdb/nervusdb/internal/pager"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openPager(t *testing.T) *pager.Pager {
	t.Helper()
	p, err := pager.Open(t.TempDir()+"/vec.ndb", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestInsertAndSearchFindsExactNeighbor(t *testing.T) {
	p := openPager(t)
	idx, err := Create(p, Params{Dim: 2, M: 8, EfConstruction: 32, EfSearch: 16})
	require.NoError(t, err)

	points := map[uint32][]float32{
		1: {0, 0},
		2: {10, 10},
		3: {0.1, 0.1},
		4: {20, 20},
		5: {9.9, 10.1},
	}
	for id, v := range points {
		require.NoError(t, idx.Insert(id, v))
	}

	res, err := idx.Search([]float32{0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	ids := map[uint32]bool{}
	for _, r := range res {
		ids[r.InternalID] = true
	}
	require.True(t, ids[1])
}

func TestSearchEmptyIndexReturnsNothing(t *testing.T) {
	p := openPager(t)
	idx, err := Create(p, Params{Dim: 3, M: 4, EfConstruction: 8, EfSearch: 8})
	require.NoError(t, err)

	res, err := idx.Search([]float32{1, 2, 3}, 5)
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestInsertRejectsWrongDimension(t *testing.T) {
	p := openPager(t)
	idx, err := Create(p, Params{Dim: 3, M: 4, EfConstruction: 8, EfSearch: 8})
	require.NoError(t, err)

	err = idx.Insert(1, []float32{1, 2})
	require.Error(t, err)
	var dimErr *DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
}

func TestSearchAgreesWithBruteForceOnSmallDataset(t *testing.T) {
	p := openPager(t)
	idx, err := Create(p, Params{Dim: 4, M: 16, EfConstruction: 64, EfSearch: 64})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	points := make(map[uint32][]float32, 60)
	for i := uint32(1); i <= 60; i++ {
		vec := make([]float32, 4)
		for d := range vec {
			vec[d] = rng.Float32()
		}
		points[i] = vec
		require.NoError(t, idx.Insert(i, vec))
	}

	query := []float32{0.5, 0.5, 0.5, 0.5}
	approx, err := idx.Search(query, 5)
	require.NoError(t, err)
	exact := BruteForceSearch(points, query, 5)

	require.Equal(t, exact[0].InternalID, approx[0].InternalID,
		"closest neighbor should match the brute-force oracle on this small, well-connected graph")
}

func TestReopenIndexFromDescriptor(t *testing.T) {
	p := openPager(t)
	idx, err := Create(p, Params{Dim: 2, M: 8, EfConstruction: 16, EfSearch: 16})
	require.NoError(t, err)
	require.NoError(t, idx.Insert(1, []float32{1, 1}))
	require.NoError(t, idx.Insert(2, []float32{2, 2}))
	desc := idx.Descriptor()

	reopened, err := Open(p, desc)
	require.NoError(t, err)
	res, err := reopened.Search([]float32{1, 1}, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), res[0].InternalID)
}
