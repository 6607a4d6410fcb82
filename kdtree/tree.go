// Package kdtree implements a k-d tree over feature descriptors with a
// best-bin-first (priority) search that can be cut short after a fixed number
// of examined points.
//
// Trees are built once from a features.Set and are read-only afterwards, so a
// single tree may be searched from several goroutines.
package kdtree

import (
	"math"
	"sort"

	"github.com/nvr-ai/go-track/features"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// DefaultLeafSize is the largest bucket that is not split further.
const DefaultLeafSize = 1

// noChild marks leaf nodes.
const noChild = -1

type node struct {
	// dim is the split dimension, or noChild for leaves.
	dim   int
	split float64
	left  int
	right int
	// start and end delimit the node's points in Tree.order.
	start int
	end   int
	// lo and hi bound every point of the subtree.
	lo []float64
	hi []float64
}

func (n *node) leaf() bool { return n.dim == noChild }

// Tree is a k-d tree over a fixed set of descriptors.
type Tree struct {
	dim      int
	leafSize int
	points   []features.Descriptor
	order    []int
	nodes    []node
}

// Option configures tree construction.
type Option func(*Tree)

// WithLeafSize sets the largest subset that becomes a leaf bucket. Values
// below one are ignored.
func WithLeafSize(n int) Option {
	return func(t *Tree) {
		if n >= 1 {
			t.leafSize = n
		}
	}
}

// Build creates a tree over the descriptors of set.
//
// The subset at each node is split on the dimension with the largest variance
// at its median value; points equal to the split value go left. Subsets whose
// points are all identical, or that hold at most the leaf size, become leaves.
// The descriptors are copied, so set may be modified afterwards.
//
// Arguments:
//   - set: A non-empty set with consistent descriptor dimensionality.
//   - opts: Construction options such as WithLeafSize.
//
// Returns:
//   - *Tree: The tree. Neighbor indices refer to positions in set.Features.
//   - error: ErrInvalidInput for an empty or inconsistent set.
//
// @example
// tree, err := kdtree.Build(template)
// res, err := tree.Search(query, 200)
func Build(set features.Set, opts ...Option) (*Tree, error) {
	if err := set.Validate(); err != nil {
		return nil, errors.Wrap(err, "kd-tree build failed")
	}

	t := &Tree{
		dim:      set.Dim(),
		leafSize: DefaultLeafSize,
		points:   make([]features.Descriptor, set.Len()),
		order:    make([]int, set.Len()),
	}
	for _, opt := range opts {
		opt(t)
	}
	for i, f := range set.Features {
		t.points[i] = f.Descriptor.Clone()
		t.order[i] = i
	}
	t.nodes = make([]node, 0, 2*len(t.points))
	t.build(0, len(t.order))
	return t, nil
}

// build creates the subtree over order[start:end] and returns its node index.
func (t *Tree) build(start, end int) int {
	lo, hi := t.bounds(start, end)
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{
		dim: noChild, left: noChild, right: noChild,
		start: start, end: end, lo: lo, hi: hi,
	})

	if end-start <= t.leafSize {
		return idx
	}
	dim := t.splitDimension(start, end, lo, hi)
	if dim == noChild {
		return idx
	}

	k, split := t.partition(start, end, dim)
	left := t.build(start, k)
	right := t.build(k, end)

	n := &t.nodes[idx]
	n.dim = dim
	n.split = split
	n.left = left
	n.right = right
	return idx
}

func (t *Tree) bounds(start, end int) (lo, hi []float64) {
	lo = make([]float64, t.dim)
	hi = make([]float64, t.dim)
	copy(lo, t.points[t.order[start]])
	copy(hi, t.points[t.order[start]])
	for _, i := range t.order[start+1 : end] {
		for d, v := range t.points[i] {
			lo[d] = math.Min(lo[d], v)
			hi[d] = math.Max(hi[d], v)
		}
	}
	return lo, hi
}

// splitDimension returns the dimension of largest variance among those with a
// non-zero extent, or noChild when all points coincide.
func (t *Tree) splitDimension(start, end int, lo, hi []float64) int {
	best := noChild
	bestVar := -1.0
	values := make([]float64, end-start)
	for d := 0; d < t.dim; d++ {
		if lo[d] == hi[d] {
			continue
		}
		for j, i := range t.order[start:end] {
			values[j] = t.points[i][d]
		}
		if v := stat.Variance(values, nil); v > bestVar {
			best, bestVar = d, v
		}
	}
	return best
}

// partition sorts order[start:end] along dim and returns the first index of
// the right half together with the split value. Both halves are non-empty.
func (t *Tree) partition(start, end, dim int) (int, float64) {
	sub := t.order[start:end]
	sort.Slice(sub, func(a, b int) bool {
		va, vb := t.points[sub[a]][dim], t.points[sub[b]][dim]
		if va != vb {
			return va < vb
		}
		return sub[a] < sub[b]
	})
	value := func(j int) float64 { return t.points[sub[j]][dim] }

	n := len(sub)
	split := value(n/2 - 1)
	k := sort.Search(n, func(j int) bool { return value(j) > split })
	if k == n {
		// The upper half is one repeated value; split just below it.
		k = sort.Search(n, func(j int) bool { return value(j) >= split })
		split = value(k - 1)
	}
	return start + k, split
}

// Len returns the number of indexed descriptors.
func (t *Tree) Len() int { return len(t.points) }

// Dim returns the descriptor dimensionality.
func (t *Tree) Dim() int { return t.dim }

// Descriptor returns the stored descriptor at index i. It must not be modified.
func (t *Tree) Descriptor(i int) features.Descriptor { return t.points[i] }

// Depth returns the height of the tree, counting the root as one.
func (t *Tree) Depth() int {
	var depth func(i int) int
	depth = func(i int) int {
		n := &t.nodes[i]
		if n.leaf() {
			return 1
		}
		return 1 + max(depth(n.left), depth(n.right))
	}
	return depth(0)
}

// boxDistanceSq is the squared distance from q to the node's bounding box.
func (n *node) boxDistanceSq(q features.Descriptor) float64 {
	var sum float64
	for d, v := range q {
		switch {
		case v < n.lo[d]:
			diff := n.lo[d] - v
			sum += diff * diff
		case v > n.hi[d]:
			diff := v - n.hi[d]
			sum += diff * diff
		}
	}
	return sum
}
