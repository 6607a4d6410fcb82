package kdtree

import (
	"sort"

	"github.com/nvr-ai/go-track/features"
	"github.com/pkg/errors"
)

// BruteForce returns the k nearest descriptors of set to query by comparing
// against every descriptor. It is the reference the tree search is checked
// against and is cheaper than building a tree for very small sets.
func BruteForce(set features.Set, query features.Descriptor, k int) ([]Neighbor, error) {
	if err := set.Validate(); err != nil {
		return nil, errors.Wrap(err, "brute-force search failed")
	}
	if len(query) != set.Dim() {
		return nil, errors.Wrapf(features.ErrInvalidInput,
			"query dimension %d does not match set dimension %d", len(query), set.Dim())
	}
	if k < 1 {
		return nil, errors.Wrapf(features.ErrInvalidInput, "k must be positive, got %d", k)
	}

	all := make([]Neighbor, set.Len())
	for i, f := range set.Features {
		all[i] = Neighbor{Index: i, DistanceSq: features.DistanceSq(query, f.Descriptor)}
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].DistanceSq != all[b].DistanceSq {
			return all[a].DistanceSq < all[b].DistanceSq
		}
		return all[a].Index < all[b].Index
	})
	if k > len(all) {
		k = len(all)
	}
	return all[:k], nil
}
