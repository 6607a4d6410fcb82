package images

import "github.com/nfnt/resize"

// minPyramidSide stops downsampling once a level would be smaller than this.
const minPyramidSide = 8

// Pyramid holds successively halved copies of a frame. Level 0 is the
// full-resolution frame.
type Pyramid []*Frame

// BuildPyramid creates an image pyramid with up to levels entries.
//
// Each level is produced by bilinear downsampling of the previous level to half
// its size. Building stops early when a level would fall below eight pixels on
// either side, so the returned pyramid may be shorter than requested.
//
// Arguments:
//   - f: The full-resolution frame. It is stored as level 0 without copying.
//   - levels: Requested number of levels; values below one yield a single level.
//
// Returns:
//   - Pyramid: The frame pyramid, finest level first.
//
// @example
// pyr := BuildPyramid(frame, 3)
// coarse := pyr[len(pyr)-1]
func BuildPyramid(f *Frame, levels int) Pyramid {
	if levels < 1 {
		levels = 1
	}
	pyr := make(Pyramid, 1, levels)
	pyr[0] = f

	for l := 1; l < levels; l++ {
		prev := pyr[l-1]
		width, height := prev.Width/2, prev.Height/2
		if width < minPyramidSide || height < minPyramidSide {
			break
		}
		scaled := resize.Resize(uint(width), uint(height), prev.Gray(), resize.Bilinear)
		pyr = append(pyr, FromImage(scaled))
	}
	return pyr
}

// Levels returns the number of levels in the pyramid.
func (p Pyramid) Levels() int { return len(p) }
