package flow

import (
	"math"
	"testing"

	"github.com/nvr-ai/go-track/features"
	"github.com/nvr-ai/go-track/images"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// texture renders a smooth pattern whose content is moved by (dx, dy).
func texture(t *testing.T, width, height int, period, dx, dy float64) *images.Frame {
	t.Helper()
	pix := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			u, w := float64(x)-dx, float64(y)-dy
			v := 128 + 50*math.Sin(2*math.Pi*u/period) + 50*math.Cos(2*math.Pi*w/(period*1.25))
			pix[y*width+x] = uint8(math.Round(v))
		}
	}
	f, err := images.NewFrame(width, height, pix)
	require.NoError(t, err)
	return f
}

// stripes varies along x only.
func stripes(t *testing.T, width, height int) *images.Frame {
	t.Helper()
	pix := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pix[y*width+x] = uint8(math.Round(128 + 50*math.Sin(2*math.Pi*float64(x)/16)))
		}
	}
	f, err := images.NewFrame(width, height, pix)
	require.NoError(t, err)
	return f
}

func newSolver(t *testing.T) *Solver {
	t.Helper()
	s, err := New(DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	mutations := map[string]func(*Config){
		"radius":     func(c *Config) { c.WindowRadius = 0 },
		"iterations": func(c *Config) { c.MaxIterations = 0 },
		"epsilon":    func(c *Config) { c.Epsilon = 0 },
		"eigenvalue": func(c *Config) { c.MinEigenvalue = -1 },
		"levels":     func(c *Config) { c.PyramidLevels = 0 },
		"smoothing":  func(c *Config) { c.SmoothRadius = -1 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, features.ErrInvalidInput))
		})
	}
}

func TestIdenticalFramesGiveZeroDisplacement(t *testing.T) {
	s := newSolver(t)
	frame := texture(t, 64, 64, 16, 0, 0)

	for _, p := range []features.Point{{X: 32, Y: 32}, {X: 10.5, Y: 20.25}, {X: 0, Y: 0}, {X: 63, Y: 63}} {
		d := s.Estimate(frame, frame, p, features.Point{})
		assert.False(t, d.Singular, "point %v", p)
		assert.True(t, d.Converged, "point %v", p)
		assert.Equal(t, features.Point{}, d.Vector, "point %v", p)
		assert.Positive(t, d.Confidence)
	}
}

func TestIntegerTranslationRecovered(t *testing.T) {
	s := newSolver(t)
	prev := texture(t, 64, 64, 16, 0, 0)
	p := features.Point{X: 32, Y: 32}

	for _, shift := range []features.Point{{X: 2, Y: 1}, {X: -1, Y: 2}, {X: 1, Y: 0}, {X: 0, Y: -2}, {X: -2, Y: -1}} {
		curr := texture(t, 64, 64, 16, shift.X, shift.Y)
		d := s.Estimate(prev, curr, p, features.Point{})
		require.False(t, d.Singular, "shift %v", shift)
		assert.InDelta(t, shift.X, d.Vector.X, 0.2, "shift %v", shift)
		assert.InDelta(t, shift.Y, d.Vector.Y, 0.2, "shift %v", shift)
		assert.LessOrEqual(t, d.Iterations, DefaultConfig().MaxIterations)
	}
}

func TestGuessIsRefined(t *testing.T) {
	s := newSolver(t)
	prev := texture(t, 64, 64, 16, 0, 0)
	curr := texture(t, 64, 64, 16, 2, 1)

	d := s.Estimate(prev, curr, features.Point{X: 30, Y: 30}, features.Point{X: 2, Y: 1})
	assert.True(t, d.Converged)
	assert.InDelta(t, 2, d.Vector.X, 0.2)
	assert.InDelta(t, 1, d.Vector.Y, 0.2)

	// A NaN guess is ignored rather than propagated.
	d = s.Estimate(prev, curr, features.Point{X: 30, Y: 30}, features.Point{X: math.NaN()})
	assert.False(t, math.IsNaN(d.Vector.X))
}

func TestUniformWindowIsSingular(t *testing.T) {
	s := newSolver(t)
	prev := images.NewUniformFrame(64, 64, 128)
	curr := images.NewUniformFrame(64, 64, 140)

	d := s.Estimate(prev, curr, features.Point{X: 32, Y: 32}, features.Point{})
	assert.True(t, d.Singular)
	assert.Equal(t, features.Point{}, d.Vector)
	assert.Zero(t, d.Confidence)
	assert.False(t, d.Converged)
}

func TestApertureProblemIsSingular(t *testing.T) {
	s := newSolver(t)
	frame := stripes(t, 64, 64)

	d := s.Estimate(frame, frame, features.Point{X: 32, Y: 32}, features.Point{})
	assert.True(t, d.Singular)
	assert.Equal(t, features.Point{}, d.Vector)
}

func TestPyramidSingleLevelMatchesEstimate(t *testing.T) {
	s := newSolver(t)
	prev := texture(t, 64, 64, 16, 0, 0)
	curr := texture(t, 64, 64, 16, 1, 2)
	p := features.Point{X: 31, Y: 33}

	want := s.Estimate(prev, curr, p, features.Point{})
	got := s.EstimatePyramid(images.BuildPyramid(prev, 1), images.BuildPyramid(curr, 1), p, features.Point{})
	assert.Equal(t, want, got)
}

func TestPyramidRecoversLargeTranslation(t *testing.T) {
	s := newSolver(t)
	prev := texture(t, 128, 128, 32, 0, 0)
	curr := texture(t, 128, 128, 32, 6, 4)
	p := features.Point{X: 64, Y: 64}

	d := s.EstimatePyramid(images.BuildPyramid(prev, 3), images.BuildPyramid(curr, 3), p, features.Point{})
	require.False(t, d.Singular)
	assert.InDelta(t, 6, d.Vector.X, 0.5)
	assert.InDelta(t, 4, d.Vector.Y, 0.5)
}

func TestPyramidEmpty(t *testing.T) {
	s := newSolver(t)
	d := s.EstimatePyramid(nil, nil, features.Point{}, features.Point{})
	assert.True(t, d.Singular)
}

func TestLevelPoint(t *testing.T) {
	assert.Equal(t, features.Point{X: 10, Y: 20}, levelPoint(features.Point{X: 10, Y: 20}, 0))
	assert.Equal(t, features.Point{X: 4.75, Y: 9.75}, levelPoint(features.Point{X: 10, Y: 20}, 1))
}
