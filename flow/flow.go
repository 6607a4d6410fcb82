// Package flow estimates the local displacement of a point between two frames
// with iterative Lucas-Kanade optical flow.
//
// The model assumes brightness constancy and pure translation inside a square
// window around the point. Low-texture windows, where the structure matrix is
// close to singular, yield a zero-confidence result instead of an error.
package flow

import (
	"math"

	"github.com/nvr-ai/go-track/features"
	"github.com/nvr-ai/go-track/images"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Config holds the solver parameters.
type Config struct {
	// WindowRadius r selects the window offsets [-r, r) on both axes.
	WindowRadius int `json:"window_radius" yaml:"window_radius"`
	// MaxIterations bounds the Gauss-Newton refinement steps per level.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// Epsilon stops the iteration once an update is shorter than this (pixels).
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`
	// MinEigenvalue is the smallest accepted eigenvalue of the structure
	// matrix, normalised by the window area.
	MinEigenvalue float64 `json:"min_eigenvalue" yaml:"min_eigenvalue"`
	// PyramidLevels is the number of pyramid levels used by callers that
	// build pyramids; one disables the pyramid.
	PyramidLevels int `json:"pyramid_levels" yaml:"pyramid_levels"`
	// SmoothRadius is the box blur radius applied before building pyramids;
	// zero disables smoothing.
	SmoothRadius int `json:"smooth_radius" yaml:"smooth_radius"`
}

// DefaultConfig returns the default solver configuration.
func DefaultConfig() Config {
	return Config{
		WindowRadius:  7,
		MaxIterations: 20,
		Epsilon:       0.01,
		MinEigenvalue: 1e-2,
		PyramidLevels: 1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.WindowRadius < 1:
		return errors.Wrapf(features.ErrInvalidInput, "window radius must be positive, got %d", c.WindowRadius)
	case c.MaxIterations < 1:
		return errors.Wrapf(features.ErrInvalidInput, "max iterations must be positive, got %d", c.MaxIterations)
	case c.Epsilon <= 0:
		return errors.Wrapf(features.ErrInvalidInput, "epsilon must be positive, got %v", c.Epsilon)
	case c.MinEigenvalue < 0:
		return errors.Wrapf(features.ErrInvalidInput, "min eigenvalue must not be negative, got %v", c.MinEigenvalue)
	case c.PyramidLevels < 1:
		return errors.Wrapf(features.ErrInvalidInput, "pyramid levels must be positive, got %d", c.PyramidLevels)
	case c.SmoothRadius < 0:
		return errors.Wrapf(features.ErrInvalidInput, "smooth radius must not be negative, got %d", c.SmoothRadius)
	}
	return nil
}

// Displacement is the estimated motion of a point.
type Displacement struct {
	// Vector is the displacement from the previous to the current frame.
	Vector features.Point
	// Confidence is the smallest eigenvalue of the structure matrix divided by
	// the window area; zero when Singular.
	Confidence float64
	// Singular is set when the window lacks texture in some direction.
	Singular bool
	// Converged is set when the last update fell below Epsilon.
	Converged bool
	// Iterations is the number of refinement steps taken.
	Iterations int
}

// Solver estimates point displacements. It holds no per-call state and is safe
// for concurrent use.
type Solver struct {
	config Config
}

// New creates a solver.
func New(config Config) (*Solver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Solver{config: config}, nil
}

// Config returns the solver configuration.
func (s *Solver) Config() Config { return s.config }

// Estimate finds the displacement v that best maps the window around p in
// prev onto the window around p+v in curr.
//
// Each step accumulates, over the window offsets, the structure matrix of the
// current-frame gradients M = Σ [[Ix², IxIy], [IxIy, Iy²]] and the mismatch
// vector b = Σ [Ix·(curr−prev), Iy·(curr−prev)], then solves M·dv = −b.
// Current-frame samples are bilinearly interpolated at p+v.
//
// When M is singular on the first step the result is the zero vector with
// Singular set. A singular M on a later step stops the iteration and keeps the
// estimate reached so far.
//
// Arguments:
//   - prev: The previous frame.
//   - curr: The current frame, same size as prev.
//   - p: The point location in prev.
//   - guess: Initial displacement, usually zero.
//
// Returns:
//   - Displacement: The estimate. Vector is never NaN.
//
// @example
// d := solver.Estimate(prev, curr, features.Point{X: 32, Y: 32}, features.Point{})
//
//	if !d.Singular {
//		next := p.Add(d.Vector)
//	}
func (s *Solver) Estimate(prev, curr *images.Frame, p, guess features.Point) Displacement {
	v := guess
	if !finite(v) {
		v = features.Point{}
	}
	out := Displacement{}

	for it := 0; it < s.config.MaxIterations; it++ {
		m, b := s.accumulate(prev, curr, p, v)
		confidence, ok := s.confidence(m)
		if !ok {
			if it == 0 {
				return Displacement{Singular: true}
			}
			break
		}

		var dv mat.VecDense
		if err := dv.SolveVec(m, mat.NewVecDense(2, []float64{-b[0], -b[1]})); err != nil {
			if it == 0 {
				return Displacement{Singular: true}
			}
			break
		}
		step := features.Point{X: dv.AtVec(0), Y: dv.AtVec(1)}
		if !finite(step) {
			break
		}

		v = v.Add(step)
		out.Confidence = confidence
		out.Iterations = it + 1
		if step.Norm() < s.config.Epsilon {
			out.Converged = true
			break
		}
	}

	out.Vector = v
	return out
}

// accumulate sums the structure matrix and mismatch vector over the window.
func (s *Solver) accumulate(prev, curr *images.Frame, p, v features.Point) (*mat.SymDense, [2]float64) {
	r := s.config.WindowRadius
	var ixx, ixy, iyy float64
	var b [2]float64

	for dy := -r; dy < r; dy++ {
		for dx := -r; dx < r; dx++ {
			qx, qy := p.X+float64(dx), p.Y+float64(dy)
			cx, cy := qx+v.X, qy+v.Y

			gx, gy := curr.Gradient(cx, cy)
			diff := curr.Sample(cx, cy) - prev.Sample(qx, qy)

			ixx += gx * gx
			ixy += gx * gy
			iyy += gy * gy
			b[0] += gx * diff
			b[1] += gy * diff
		}
	}
	return mat.NewSymDense(2, []float64{ixx, ixy, ixy, iyy}), b
}

// confidence returns the normalised smallest eigenvalue of m and whether it
// clears MinEigenvalue.
func (s *Solver) confidence(m *mat.SymDense) (float64, bool) {
	var eig mat.EigenSym
	if !eig.Factorize(m, false) {
		return 0, false
	}
	// Values are returned in ascending order.
	values := eig.Values(nil)
	side := float64(2 * s.config.WindowRadius)
	c := values[0] / (side * side)
	if math.IsNaN(c) || c < s.config.MinEigenvalue || c == 0 {
		return 0, false
	}
	return c, true
}

func finite(p features.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
