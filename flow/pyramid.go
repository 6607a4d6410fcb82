package flow

import (
	"math"

	"github.com/nvr-ai/go-track/features"
	"github.com/nvr-ai/go-track/images"
)

// EstimatePyramid runs Estimate coarse to fine over two image pyramids.
//
// The estimate found at each level, doubled, seeds the next finer level, so
// displacements several times the window radius can be recovered. A singular
// coarse level passes its seed through unchanged; the finest level decides
// the final result. With single-level pyramids this is exactly Estimate.
//
// Arguments:
//   - prev: Pyramid of the previous frame, finest level first.
//   - curr: Pyramid of the current frame, built with the same level count.
//   - p: The point location in full-resolution coordinates.
//   - guess: Initial full-resolution displacement.
//
// Returns:
//   - Displacement: The full-resolution estimate.
func (s *Solver) EstimatePyramid(prev, curr images.Pyramid, p, guess features.Point) Displacement {
	levels := min(len(prev), len(curr))
	if levels == 0 {
		return Displacement{Singular: true}
	}

	top := levels - 1
	v := guess.Scale(1 / math.Exp2(float64(top)))
	for l := top; l > 0; l-- {
		d := s.Estimate(prev[l], curr[l], levelPoint(p, l), v)
		if !d.Singular {
			v = d.Vector
		}
		v = v.Scale(2)
	}
	return s.Estimate(prev[0], curr[0], p, v)
}

// levelPoint maps a full-resolution location to pyramid level l, treating
// pixel centres as the sample positions.
func levelPoint(p features.Point, l int) features.Point {
	scale := math.Exp2(float64(l))
	return features.Point{
		X: (p.X+0.5)/scale - 0.5,
		Y: (p.Y+0.5)/scale - 0.5,
	}
}
