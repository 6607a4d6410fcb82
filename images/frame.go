// Package images - Frame definition and sampling utilities for tracking.
package images

import (
	"fmt"
	"image"
	"math"

	"github.com/nvr-ai/go-track/features"
	"github.com/pkg/errors"
)

// ITU-R BT.709 luma coefficients used when converting colour images.
const (
	redWeight   = 0.2126
	greenWeight = 0.7152
	blueWeight  = 0.0722
)

// Frame is a single-channel 8-bit intensity grid in row-major order.
//
// The tracking core treats frames as immutable: it only reads Pix, and it
// keeps private copies of any frame it needs beyond a call.
type Frame struct {
	// Width is the number of columns.
	Width int
	// Height is the number of rows.
	Height int
	// Pix holds Width*Height samples, row by row.
	Pix []uint8
}

// NewFrame creates a frame from a copy of pix.
//
// Arguments:
//   - width: The number of columns.
//   - height: The number of rows.
//   - pix: Row-major samples; must hold exactly width*height values.
//
// Returns:
//   - *Frame: The new frame, owning its own buffer.
//   - error: ErrInvalidInput if the dimensions or buffer length are wrong.
//
// @example
// frame, err := NewFrame(640, 480, gray)
func NewFrame(width, height int, pix []uint8) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(features.ErrInvalidInput, "invalid frame dimensions: %dx%d", width, height)
	}
	if len(pix) != width*height {
		return nil, errors.Wrapf(features.ErrInvalidInput, "frame buffer holds %d samples, want %d", len(pix), width*height)
	}
	buf := make([]uint8, len(pix))
	copy(buf, pix)
	return &Frame{Width: width, Height: height, Pix: buf}, nil
}

// NewUniformFrame creates a frame with every sample set to value.
func NewUniformFrame(width, height int, value uint8) *Frame {
	pix := make([]uint8, width*height)
	for i := range pix {
		pix[i] = value
	}
	return &Frame{Width: width, Height: height, Pix: pix}
}

// FromImage converts any image.Image into a Frame.
//
// Gray images are copied row by row. Everything else is converted with the
// BT.709 luma weights.
//
// Arguments:
//   - img: The source image.
//
// Returns:
//   - *Frame: A new frame with the image's dimensions.
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	f := &Frame{Width: width, Height: height, Pix: make([]uint8, width*height)}

	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < height; y++ {
			start := gray.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(f.Pix[y*width:(y+1)*width], gray.Pix[start:start+width])
		}
		return f
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			luma := float64(r)*redWeight + float64(g)*greenWeight + float64(b)*blueWeight
			f.Pix[y*width+x] = uint8(uint32(luma) >> 8)
		}
	}
	return f
}

// Validate checks the frame's dimensions against its buffer.
func (f *Frame) Validate() error {
	if f == nil {
		return errors.Wrap(features.ErrInvalidInput, "frame is nil")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Wrapf(features.ErrInvalidInput, "invalid frame dimensions: %dx%d", f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height {
		return errors.Wrapf(features.ErrInvalidInput, "frame buffer holds %d samples, want %d", len(f.Pix), f.Width*f.Height)
	}
	return nil
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	pix := make([]uint8, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// Bounds returns the frame extent as a Rect anchored at the origin.
func (f *Frame) Bounds() Rect {
	return Rect{Top: 0, Left: 0, Width: f.Width, Height: f.Height}
}

// SameSize reports whether both frames have identical dimensions.
func (f *Frame) SameSize(o *Frame) bool {
	return f.Width == o.Width && f.Height == o.Height
}

// At returns the sample at (x, y). Coordinates outside the frame are clamped
// to the nearest edge.
func (f *Frame) At(x, y int) float64 {
	x = MapCoord(x, f.Width, ClampEdgeMode)
	y = MapCoord(y, f.Height, ClampEdgeMode)
	return float64(f.Pix[y*f.Width+x])
}

// Sample returns the bilinearly interpolated intensity at a sub-pixel location.
func (f *Frame) Sample(x, y float64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	fx := x - x0
	fy := y - y0
	ix, iy := int(x0), int(y0)

	top := f.At(ix, iy)*(1-fx) + f.At(ix+1, iy)*fx
	bottom := f.At(ix, iy+1)*(1-fx) + f.At(ix+1, iy+1)*fx
	return top*(1-fy) + bottom*fy
}

// Gradient returns the central-difference partial derivatives at (x, y):
// dI/dx = (I(x+1,y) - I(x-1,y)) / 2 and dI/dy = (I(x,y+1) - I(x,y-1)) / 2.
func (f *Frame) Gradient(x, y float64) (gx, gy float64) {
	gx = (f.Sample(x+1, y) - f.Sample(x-1, y)) / 2
	gy = (f.Sample(x, y+1) - f.Sample(x, y-1)) / 2
	return gx, gy
}

// Gray returns a copy of the frame as an *image.Gray.
func (f *Frame) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Pix)
	return img
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame(%dx%d)", f.Width, f.Height)
}

// EdgeMode defines how to handle coordinates that are out of bounds.
type EdgeMode string

const (
	// ClampEdgeMode clamps the coordinate to the nearest valid value.
	ClampEdgeMode EdgeMode = "clamp"
	// MirrorEdgeMode mirrors the coordinate around the edge.
	MirrorEdgeMode EdgeMode = "mirror"
	// WrapEdgeMode wraps the coordinate around the edge.
	WrapEdgeMode EdgeMode = "wrap"
)

// MapCoord maps a coordinate to a valid value based on the edge mode.
//
// Arguments:
// - coord: The coordinate to map.
// - max: The number of valid coordinates.
// - mode: The edge mode to use.
func MapCoord(coord, max int, mode EdgeMode) int {
	switch mode {
	case MirrorEdgeMode:
		if max == 1 {
			return 0
		}
		for coord < 0 || coord >= max {
			if coord < 0 {
				coord = -coord - 1
			} else {
				coord = 2*max - coord - 1
			}
		}
		return coord
	case WrapEdgeMode:
		return (coord%max + max) % max
	default:
		if coord < 0 {
			return 0
		} else if coord >= max {
			return max - 1
		}
		return coord
	}
}
