package images

import "sync"

// BlurOptions configures BoxBlur.
type BlurOptions struct {
	// Radius selects a (2*Radius+1) square window. Zero returns a copy.
	Radius int
	// Edge selects how samples outside the frame are mapped.
	Edge EdgeMode
	// Parallel splits rows and columns across goroutines (good for 1080p+).
	Parallel bool
}

// BoxBlur applies a separable box blur to a frame.
//
// Each pass keeps a running window sum, so the cost per pixel does not depend
// on the radius. Sums are rounded to the nearest integer after each pass.
//
// Arguments:
//   - f: The source frame. It is not modified.
//   - opt: Blur radius, edge handling and parallelism.
//
// Returns:
//   - *Frame: A new blurred frame of the same size.
//
// @example
// smooth := images.BoxBlur(frame, images.BlurOptions{Radius: 1, Edge: images.MirrorEdgeMode})
func BoxBlur(f *Frame, opt BlurOptions) *Frame {
	if opt.Radius <= 0 {
		return f.Clone()
	}
	tmp := &Frame{Width: f.Width, Height: f.Height, Pix: make([]uint8, len(f.Pix))}
	dst := &Frame{Width: f.Width, Height: f.Height, Pix: make([]uint8, len(f.Pix))}

	// Horizontal pass: lines are rows, samples are one byte apart.
	blurPass(f.Pix, tmp.Pix, f.Height, f.Width, f.Width, 1, opt)
	// Vertical pass: lines are columns, samples are one row apart.
	blurPass(tmp.Pix, dst.Pix, f.Width, f.Height, 1, f.Width, opt)
	return dst
}

// blurPass blurs lines independent lines of n samples each. Line i starts at
// i*lineStride and consecutive samples are step apart.
func blurPass(src, dst []uint8, lines, n, lineStride, step int, opt BlurOptions) {
	r := opt.Radius
	window := uint32(2*r + 1)
	task := func(line int) {
		base := line * lineStride
		load := func(i int) uint32 {
			return uint32(src[base+MapCoord(i, n, opt.Edge)*step])
		}

		var sum uint32
		for d := -r; d <= r; d++ {
			sum += load(d)
		}
		for i := 0; i < n; i++ {
			dst[base+i*step] = uint8((sum + window/2) / window)
			sum += load(i+r+1) - load(i-r)
		}
	}

	if !opt.Parallel || lines < 4 {
		for line := 0; line < lines; line++ {
			task(line)
		}
		return
	}

	chunk := chooseChunk(lines)
	var wg sync.WaitGroup
	for start := 0; start < lines; start += chunk {
		end := min(start+chunk, lines)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for line := s; line < e; line++ {
				task(line)
			}
		}(start, end)
	}
	wg.Wait()
}

// chooseChunk picks a work chunk size that balances overhead and cache locality.
func chooseChunk(n int) int {
	switch {
	case n >= 2048:
		return 128
	case n >= 512:
		return 64
	default:
		return 32
	}
}
