// Package features - Keypoint descriptors and the feature sets produced by an
// external extractor (SIFT, ORB-as-float, learned descriptors).
//
// The tracker never extracts features itself. It only consumes ordered sets of
// (location, descriptor) pairs and compares descriptors by squared Euclidean
// distance.
package features

import (
	"math"

	"github.com/pkg/errors"
)

// Descriptor is a fixed-length vector summarising local appearance around a keypoint.
type Descriptor []float64

// Dim returns the dimensionality of the descriptor.
func (d Descriptor) Dim() int { return len(d) }

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}

// DistanceSq calculates the squared Euclidean distance between two descriptors.
//
// Descriptors of different dimensionality are never comparable, so the distance
// is +Inf rather than a partial sum.
//
// Arguments:
//   - a: The first descriptor.
//   - b: The second descriptor.
//
// Returns:
//   - float64: The squared distance, or math.Inf(1) on dimension mismatch.
//
// @example
// d := DistanceSq(Descriptor{0, 3}, Descriptor{4, 0}) // 25
func DistanceSq(a, b Descriptor) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

// Point is a sub-pixel image location. X is the column and Y is the row.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale returns p scaled by s.
func (p Point) Scale(s float64) Point { return Point{X: p.X * s, Y: p.Y * s} }

// Norm returns the Euclidean length of p.
func (p Point) Norm() float64 { return math.Hypot(p.X, p.Y) }

// Feature pairs a keypoint location with its descriptor.
type Feature struct {
	Location   Point      `json:"location" yaml:"location"`
	Descriptor Descriptor `json:"descriptor" yaml:"descriptor"`
}

// Set is the ordered list of features extracted from one frame.
//
// Feature locations are relative to Origin. An extractor that ran over a
// region of interest sets Origin to the region's top-left corner so that
// Absolute yields image coordinates.
type Set struct {
	Origin   Point     `json:"origin" yaml:"origin"`
	Features []Feature `json:"features" yaml:"features"`
}

// NewSet creates a set of features located in absolute image coordinates.
func NewSet(features ...Feature) Set {
	return Set{Features: features}
}

// Len returns the number of features in the set.
func (s Set) Len() int { return len(s.Features) }

// Dim returns the descriptor dimensionality of the first feature, or 0 for an empty set.
func (s Set) Dim() int {
	if len(s.Features) == 0 {
		return 0
	}
	return len(s.Features[0].Descriptor)
}

// Absolute returns the image coordinates of feature i.
func (s Set) Absolute(i int) Point {
	return s.Origin.Add(s.Features[i].Location)
}

// Descriptor returns the descriptor of feature i.
func (s Set) Descriptor(i int) Descriptor {
	return s.Features[i].Descriptor
}

// Clone returns a deep copy of the set so callers may reuse their buffers.
func (s Set) Clone() Set {
	out := Set{Origin: s.Origin, Features: make([]Feature, len(s.Features))}
	for i, f := range s.Features {
		out.Features[i] = Feature{Location: f.Location, Descriptor: f.Descriptor.Clone()}
	}
	return out
}

// Validate checks that the set is non-empty and every descriptor shares the
// same, non-zero dimensionality.
//
// Returns:
//   - error: ErrInvalidInput wrapped with the offending index, nil when valid.
func (s Set) Validate() error {
	if len(s.Features) == 0 {
		return errors.Wrap(ErrInvalidInput, "feature set is empty")
	}
	dim := s.Dim()
	if dim == 0 {
		return errors.Wrap(ErrInvalidInput, "feature 0 has an empty descriptor")
	}
	for i, f := range s.Features {
		if len(f.Descriptor) != dim {
			return errors.Wrapf(ErrInvalidInput, "feature %d has dimension %d, want %d", i, len(f.Descriptor), dim)
		}
		for _, v := range f.Descriptor {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(ErrInvalidInput, "feature %d has a non-finite descriptor value", i)
			}
		}
	}
	return nil
}
