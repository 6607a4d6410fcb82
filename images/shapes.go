// Package images - Rectangle arithmetic for tracking rectangles and search windows.
package images

import (
	"fmt"
	"image"
	"math"

	"github.com/nvr-ai/go-track/features"
	"github.com/pkg/errors"
)

// Rect is an axis-aligned pixel rectangle given by its top-left corner and size.
// Bottom and Right are exclusive (like image.Rectangle).
type Rect struct {
	Top    int `json:"top" yaml:"top"`
	Left   int `json:"left" yaml:"left"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// NewRect creates a rectangle, rejecting non-positive extents.
//
// Arguments:
//   - top, left: The top-left corner in pixels.
//   - width, height: The extent in pixels; both must be positive.
//
// Returns:
//   - Rect: The rectangle.
//   - error: ErrInvalidInput if width or height is not positive.
func NewRect(top, left, width, height int) (Rect, error) {
	if width <= 0 || height <= 0 {
		return Rect{}, errors.Wrapf(features.ErrInvalidInput, "invalid rectangle extent: %dx%d", width, height)
	}
	return Rect{Top: top, Left: left, Width: width, Height: height}, nil
}

// FromRectangle converts an image.Rectangle.
func FromRectangle(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{Top: r.Min.Y, Left: r.Min.X, Width: r.Dx(), Height: r.Dy()}
}

// Bottom returns the exclusive bottom row.
func (r Rect) Bottom() int { return r.Top + r.Height }

// Right returns the exclusive right column.
func (r Rect) Right() int { return r.Left + r.Width }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Area returns Width*Height, or 0 for empty rectangles.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// TopLeft returns the top-left corner as a point.
func (r Rect) TopLeft() features.Point {
	return features.Point{X: float64(r.Left), Y: float64(r.Top)}
}

// Center returns the geometric centre.
func (r Rect) Center() features.Point {
	return features.Point{
		X: float64(r.Left) + float64(r.Width)/2,
		Y: float64(r.Top) + float64(r.Height)/2,
	}
}

// Translate moves the rectangle by (dx, dy).
func (r Rect) Translate(dx, dy int) Rect {
	r.Left += dx
	r.Top += dy
	return r
}

// Intersect returns the overlap of r and o, or the zero Rect if they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	top := max(r.Top, o.Top)
	left := max(r.Left, o.Left)
	bottom := min(r.Bottom(), o.Bottom())
	right := min(r.Right(), o.Right())
	if bottom <= top || right <= left {
		return Rect{}
	}
	return Rect{Top: top, Left: left, Width: right - left, Height: bottom - top}
}

// Overlaps reports whether r and o share at least one pixel.
func (r Rect) Overlaps(o Rect) bool {
	return !r.Intersect(o).Empty()
}

// Contains reports whether o lies entirely inside r.
func (r Rect) Contains(o Rect) bool {
	return o.Top >= r.Top && o.Left >= r.Left && o.Bottom() <= r.Bottom() && o.Right() <= r.Right()
}

// ContainsPoint reports whether p lies inside r.
func (r Rect) ContainsPoint(p features.Point) bool {
	return p.X >= float64(r.Left) && p.X < float64(r.Right()) &&
		p.Y >= float64(r.Top) && p.Y < float64(r.Bottom())
}

// Clamp restricts r to bounds.
//
// A rectangle that overlaps bounds becomes the overlap. A rectangle that lies
// entirely outside collapses onto the nearest edge pixels. The result is never
// smaller than 1x1 as long as bounds itself is non-empty.
func (r Rect) Clamp(bounds Rect) Rect {
	top := clampInt(r.Top, bounds.Top, bounds.Bottom()-1)
	left := clampInt(r.Left, bounds.Left, bounds.Right()-1)
	bottom := clampInt(r.Bottom(), top+1, bounds.Bottom())
	right := clampInt(r.Right(), left+1, bounds.Right())
	return Rect{Top: top, Left: left, Width: right - left, Height: bottom - top}
}

// SearchWindow expands the rectangle by margin times its own width and height
// on every side (at least one pixel) and clamps the result to bounds.
//
// Clamping shrinks the window's width or height instead of shifting it, so the
// window always contains r.Clamp(bounds) and never exceeds bounds.
//
// Arguments:
//   - margin: Fraction of the rectangle size added on each side (e.g. 0.2).
//   - bounds: The image extent.
//
// Returns:
//   - Rect: The clamped search window.
//
// @example
// window := Rect{Top: 50, Left: 50, Width: 10, Height: 10}.SearchWindow(0.2, frame.Bounds())
// // window == Rect{Top: 48, Left: 48, Width: 14, Height: 14}
func (r Rect) SearchWindow(margin float64, bounds Rect) Rect {
	c := r.Clamp(bounds)
	mx := max(1, int(math.Round(margin*float64(c.Width))))
	my := max(1, int(math.Round(margin*float64(c.Height))))
	expanded := Rect{
		Top:    c.Top - my,
		Left:   c.Left - mx,
		Width:  c.Width + 2*mx,
		Height: c.Height + 2*my,
	}
	return expanded.Clamp(bounds)
}

// Rectangle converts r to an image.Rectangle.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right(), r.Bottom())
}

func (r Rect) String() string {
	return fmt.Sprintf("Rect(top=%d,left=%d,%dx%d)", r.Top, r.Left, r.Width, r.Height)
}

// CalculateIoU measures how much two rectangles overlap as
// Area(Intersection) / Area(Union), a value in [0, 1].
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: 1 for identical rectangles, 0 when they do not overlap or either is empty.
//
// Example Usage:
// ```go
//
//	rect1 := Rect{Top: 0, Left: 0, Width: 10, Height: 10}
//	rect2 := Rect{Top: 5, Left: 5, Width: 10, Height: 10}
//	iou := CalculateIoU(rect1, rect2) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	inter := r.Intersect(o).Area()
	if inter == 0 {
		return 0.0
	}
	union := r.Area() + o.Area() - inter
	return float32(inter) / float32(union)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
