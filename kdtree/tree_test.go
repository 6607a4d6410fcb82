package kdtree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-track/features"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomSet returns n features with uniformly distributed descriptors.
func randomSet(rng *rand.Rand, n, dim int) features.Set {
	fs := make([]features.Feature, n)
	for i := range fs {
		d := make(features.Descriptor, dim)
		for j := range d {
			d[j] = rng.Float64() * 100
		}
		fs[i] = features.Feature{Location: features.Point{X: float64(i)}, Descriptor: d}
	}
	return features.NewSet(fs...)
}

func randomQuery(rng *rand.Rand, dim int) features.Descriptor {
	q := make(features.Descriptor, dim)
	for j := range q {
		q[j] = rng.Float64() * 100
	}
	return q
}

func setOf(descs ...features.Descriptor) features.Set {
	fs := make([]features.Feature, len(descs))
	for i, d := range descs {
		fs[i] = features.Feature{Descriptor: d}
	}
	return features.NewSet(fs...)
}

func distances(ns []Neighbor) []float64 {
	out := make([]float64, len(ns))
	for i, n := range ns {
		out[i] = n.DistanceSq
	}
	return out
}

func TestBuildRejectsInvalidSets(t *testing.T) {
	tests := []struct {
		name string
		set  features.Set
	}{
		{"empty", features.Set{}},
		{"mixed dimensions", setOf(features.Descriptor{1, 2}, features.Descriptor{1, 2, 3})},
		{"empty descriptor", setOf(features.Descriptor{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.set)
			require.Error(t, err)
			assert.True(t, errors.Is(err, features.ErrInvalidInput))
		})
	}
}

func TestExactSearchMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, leafSize := range []int{1, 4, 16} {
		for _, dim := range []int{1, 3, 16} {
			set := randomSet(rng, 257, dim)
			tree, err := Build(set, WithLeafSize(leafSize))
			require.NoError(t, err)
			assert.Equal(t, 257, tree.Len())
			assert.Equal(t, dim, tree.Dim())

			for q := 0; q < 40; q++ {
				query := randomQuery(rng, dim)

				want, err := BruteForce(set, query, 5)
				require.NoError(t, err)
				got, err := tree.KNearest(query, 5, 0)
				require.NoError(t, err)
				assert.Equal(t, distances(want), distances(got), "leaf=%d dim=%d", leafSize, dim)

				res, err := tree.Search(query, 0)
				require.NoError(t, err)
				require.True(t, res.HasSecond)
				assert.Equal(t, want[0].DistanceSq, res.Best.DistanceSq)
				assert.Equal(t, want[1].DistanceSq, res.Second.DistanceSq)
			}
		}
	}
}

func TestSearchFindsStoredPoints(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	set := randomSet(rng, 64, 8)
	tree, err := Build(set)
	require.NoError(t, err)

	for i, f := range set.Features {
		res, err := tree.Search(f.Descriptor, 0)
		require.NoError(t, err)
		assert.Equal(t, i, res.Best.Index)
		assert.Zero(t, res.Best.DistanceSq)
		assert.Positive(t, res.Second.DistanceSq)
	}
}

func TestBudgetMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	set := randomSet(rng, 500, 32)
	tree, err := Build(set)
	require.NoError(t, err)

	budgets := []int{1, 2, 5, 10, 25, 50, 100, 200, 500}
	for q := 0; q < 30; q++ {
		query := randomQuery(rng, 32)
		prev := math.Inf(1)
		for _, budget := range budgets {
			res, err := tree.Search(query, budget)
			require.NoError(t, err)
			assert.LessOrEqual(t, res.Checks, budget)
			assert.LessOrEqual(t, res.Best.DistanceSq, prev, "budget %d", budget)
			prev = res.Best.DistanceSq
		}

		exact, err := tree.Search(query, 0)
		require.NoError(t, err)
		assert.LessOrEqual(t, exact.Best.DistanceSq, prev)
	}
}

func TestSearchBudgetOfOne(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	tree, err := Build(randomSet(rng, 100, 4))
	require.NoError(t, err)

	res, err := tree.Search(randomQuery(rng, 4), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checks)
	assert.False(t, res.HasSecond)
	assert.False(t, math.IsInf(res.Best.DistanceSq, 0))
}

func TestSingleDescriptor(t *testing.T) {
	tree, err := Build(setOf(features.Descriptor{1, 1}))
	require.NoError(t, err)

	res, err := tree.Search(features.Descriptor{4, 5}, 200)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Best.Index)
	assert.Equal(t, 25.0, res.Best.DistanceSq)
	assert.False(t, res.HasSecond)
	assert.Equal(t, 1, res.Checks)

	ns, err := tree.KNearest(features.Descriptor{4, 5}, 3, 0)
	require.NoError(t, err)
	assert.Len(t, ns, 1)
}

func TestDuplicateDescriptors(t *testing.T) {
	descs := make([]features.Descriptor, 0, 21)
	for i := 0; i < 20; i++ {
		descs = append(descs, features.Descriptor{5, 5, 5})
	}
	descs = append(descs, features.Descriptor{9, 9, 9})

	tree, err := Build(setOf(descs...))
	require.NoError(t, err)
	// All twenty duplicates end up in one bucket.
	assert.LessOrEqual(t, tree.Depth(), 3)

	res, err := tree.Search(features.Descriptor{5, 5, 5}, 0)
	require.NoError(t, err)
	require.True(t, res.HasSecond)
	assert.Zero(t, res.Best.DistanceSq)
	assert.Zero(t, res.Second.DistanceSq)

	res, err = tree.Search(features.Descriptor{9, 9, 9}, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Best.Index)
	assert.Equal(t, 48.0, res.Second.DistanceSq)
}

func TestTiesOnSplitValue(t *testing.T) {
	for _, values := range [][]float64{
		{0, 0, 0, 1},
		{0, 1, 1, 1},
		{2, 2, 1, 2, 2, 2, 3},
	} {
		descs := make([]features.Descriptor, len(values))
		for i, v := range values {
			descs[i] = features.Descriptor{v}
		}
		set := setOf(descs...)
		tree, err := Build(set)
		require.NoError(t, err)

		for _, q := range []float64{-1, 0, 0.5, 1, 2, 2.5, 4} {
			want, err := BruteForce(set, features.Descriptor{q}, 2)
			require.NoError(t, err)
			got, err := tree.KNearest(features.Descriptor{q}, 2, 0)
			require.NoError(t, err)
			assert.Equal(t, distances(want), distances(got), "values %v query %v", values, q)
		}
	}
}

func TestSearchRejectsInvalidQueries(t *testing.T) {
	tree, err := Build(setOf(features.Descriptor{1, 2}, features.Descriptor{3, 4}))
	require.NoError(t, err)

	for _, q := range []features.Descriptor{
		{1},
		{1, 2, 3},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	} {
		_, err := tree.Search(q, 10)
		require.Error(t, err)
		assert.True(t, errors.Is(err, features.ErrInvalidInput))
	}

	_, err = tree.KNearest(features.Descriptor{1, 2}, 0, 10)
	assert.True(t, errors.Is(err, features.ErrInvalidInput))
}

func TestBuildCopiesDescriptors(t *testing.T) {
	set := setOf(features.Descriptor{1, 1}, features.Descriptor{10, 10})
	tree, err := Build(set)
	require.NoError(t, err)

	set.Features[0].Descriptor[0] = 100
	res, err := tree.Search(features.Descriptor{1, 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Best.Index)
	assert.Zero(t, res.Best.DistanceSq)
	assert.Equal(t, features.Descriptor{1, 1}, tree.Descriptor(0))
}

func BenchmarkSearch(b *testing.B) {
	rng := rand.New(rand.NewSource(42))
	tree, err := Build(randomSet(rng, 1000, 128))
	require.NoError(b, err)
	query := randomQuery(rng, 128)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = tree.Search(query, 200)
	}
}
