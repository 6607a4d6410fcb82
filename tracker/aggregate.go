package tracker

import (
	"sort"

	"github.com/nvr-ai/go-track/features"
	"gonum.org/v1/gonum/stat"
)

// consensus is the translation agreed on by the resolved points of a frame.
type consensus struct {
	// Shift is the mean displacement of the inliers.
	Shift features.Point
	// Inliers flags, per input displacement, whether it agrees with the median.
	Inliers []bool
	// Count is the number of inliers.
	Count int
}

// translation reduces per-point displacements to a single translation.
//
// The per-axis median is robust to a minority of wrong matches. Displacements
// within maxDeviation pixels of the median are inliers, and their mean is the
// result. An empty input yields an empty consensus.
func translation(moves []features.Point, maxDeviation float64) consensus {
	c := consensus{Inliers: make([]bool, len(moves))}
	if len(moves) == 0 {
		return c
	}

	xs := make([]float64, len(moves))
	ys := make([]float64, len(moves))
	for i, m := range moves {
		xs[i], ys[i] = m.X, m.Y
	}
	sort.Float64s(xs)
	sort.Float64s(ys)
	median := features.Point{
		X: stat.Quantile(0.5, stat.Empirical, xs, nil),
		Y: stat.Quantile(0.5, stat.Empirical, ys, nil),
	}

	var sum features.Point
	for i, m := range moves {
		if m.Sub(median).Norm() <= maxDeviation {
			c.Inliers[i] = true
			c.Count++
			sum = sum.Add(m)
		}
	}
	if c.Count > 0 {
		c.Shift = sum.Scale(1 / float64(c.Count))
	}
	return c
}
