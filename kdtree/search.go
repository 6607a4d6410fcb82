package kdtree

import (
	"container/heap"
	"math"
	"sort"

	"github.com/nvr-ai/go-track/features"
	"github.com/pkg/errors"
)

// Result holds the two nearest neighbors found by Search.
type Result struct {
	// Best is the closest descriptor found. It is always set for a non-empty tree.
	Best Neighbor
	// Second is the runner-up; valid only when HasSecond is true.
	Second Neighbor
	// HasSecond is false when the tree holds a single descriptor.
	HasSecond bool
	// Checks is the number of descriptors compared against the query.
	Checks int
}

// Search returns the nearest and second-nearest neighbors of query.
//
// Subtrees are visited in order of their distance to the query. The search
// stops once no pending subtree can hold a closer point, or once maxChecks
// descriptors have been compared. A budget of zero or less searches
// exhaustively, in which case the result equals a brute-force scan.
//
// Arguments:
//   - query: A descriptor with the tree's dimensionality.
//   - maxChecks: Maximum number of descriptor comparisons; <= 0 for exact search.
//
// Returns:
//   - Result: The best two candidates found within the budget.
//   - error: ErrInvalidInput when the query dimensionality differs.
func (t *Tree) Search(query features.Descriptor, maxChecks int) (Result, error) {
	found, checks, err := t.search(query, 2, maxChecks)
	if err != nil {
		return Result{}, err
	}

	res := Result{Best: found[0], Checks: checks}
	if len(found) > 1 {
		res.Second = found[1]
		res.HasSecond = true
	}
	return res, nil
}

// KNearest returns up to k neighbors of query ordered by increasing distance.
// Budget semantics match Search.
func (t *Tree) KNearest(query features.Descriptor, k, maxChecks int) ([]Neighbor, error) {
	found, _, err := t.search(query, k, maxChecks)
	return found, err
}

func (t *Tree) search(query features.Descriptor, k, maxChecks int) ([]Neighbor, int, error) {
	if len(query) != t.dim {
		return nil, 0, errors.Wrapf(features.ErrInvalidInput,
			"query dimension %d does not match index dimension %d", len(query), t.dim)
	}
	for _, v := range query {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, 0, errors.Wrap(features.ErrInvalidInput, "query holds a non-finite value")
		}
	}
	if k < 1 {
		return nil, 0, errors.Wrapf(features.ErrInvalidInput, "k must be positive, got %d", k)
	}

	best := make(neighbors, 0, k)
	// Only a full candidate heap bounds the search.
	full := func() bool { return len(best) == k }

	pending := &frontier{{node: 0, bound: t.nodes[0].boxDistanceSq(query)}}
	checks := 0

	for pending.Len() > 0 {
		if maxChecks > 0 && checks >= maxChecks {
			break
		}
		b := heap.Pop(pending).(bin)
		if full() && b.bound >= best[0].DistanceSq {
			break
		}

		n := &t.nodes[b.node]
		for !n.leaf() {
			near, far := n.left, n.right
			if query[n.dim] > n.split {
				near, far = far, near
			}
			bound := t.nodes[far].boxDistanceSq(query)
			if !full() || bound < best[0].DistanceSq {
				heap.Push(pending, bin{node: far, bound: bound})
			}
			n = &t.nodes[near]
		}

		for _, i := range t.order[n.start:n.end] {
			if maxChecks > 0 && checks >= maxChecks {
				break
			}
			checks++
			d := features.DistanceSq(query, t.points[i])
			switch {
			case !full():
				heap.Push(&best, Neighbor{Index: i, DistanceSq: d})
			case d < best[0].DistanceSq:
				best[0] = Neighbor{Index: i, DistanceSq: d}
				heap.Fix(&best, 0)
			}
		}
	}

	out := []Neighbor(best)
	sort.Slice(out, func(a, b int) bool {
		if out[a].DistanceSq != out[b].DistanceSq {
			return out[a].DistanceSq < out[b].DistanceSq
		}
		return out[a].Index < out[b].Index
	})
	return out, checks, nil
}
