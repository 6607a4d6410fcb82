package kdtree

// Neighbor describes a candidate returned by a search.
type Neighbor struct {
	// Index is the position of the descriptor in the set the tree was built from.
	Index int
	// DistanceSq is the squared Euclidean distance to the query.
	DistanceSq float64
}

// neighbors implements heap.Interface sorted by descending distance (max-heap),
// so the worst of the k best candidates sits at the root.
type neighbors []Neighbor

func (h neighbors) Len() int { return len(h) }
func (h neighbors) Less(i, j int) bool {
	if h[i].DistanceSq != h[j].DistanceSq {
		return h[i].DistanceSq > h[j].DistanceSq
	}
	return h[i].Index > h[j].Index
}
func (h neighbors) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *neighbors) Push(x interface{}) {
	*h = append(*h, x.(Neighbor))
}

func (h *neighbors) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// bin is a pending subtree together with a lower bound on the squared distance
// from the query to any point inside it.
type bin struct {
	node  int
	bound float64
}

// frontier implements heap.Interface as a min-heap on bound.
type frontier []bin

func (h frontier) Len() int { return len(h) }
func (h frontier) Less(i, j int) bool {
	if h[i].bound != h[j].bound {
		return h[i].bound < h[j].bound
	}
	return h[i].node < h[j].node
}
func (h frontier) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *frontier) Push(x interface{}) {
	*h = append(*h, x.(bin))
}

func (h *frontier) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
