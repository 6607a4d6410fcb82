package main

import (
	"github.com/nvr-ai/go-track/features"
	"github.com/nvr-ai/go-track/images"
	"github.com/nvr-ai/go-track/images/cv"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// extractor computes SIFT keypoints and descriptors inside a region of a frame.
type extractor struct {
	sift gocv.SIFT
}

func newExtractor() *extractor {
	return &extractor{sift: gocv.NewSIFT()}
}

func (e *extractor) Close() {
	e.sift.Close()
}

// Extract runs SIFT over region and returns a set whose locations are
// relative to the region's top-left corner, with Origin set accordingly.
func (e *extractor) Extract(frame *images.Frame, region images.Rect) (features.Set, error) {
	region = region.Clamp(frame.Bounds())
	if region.Empty() {
		return features.Set{}, errors.Errorf("region %s is outside the frame", region)
	}

	mat, err := cv.ToMat(frame)
	if err != nil {
		return features.Set{}, errors.Wrap(err, "frame conversion failed")
	}
	defer mat.Close()

	roi := mat.Region(region.Rectangle())
	defer roi.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	keypoints, desc := e.sift.DetectAndCompute(roi, mask)
	defer desc.Close()

	set := features.Set{Origin: region.TopLeft(), Features: make([]features.Feature, 0, len(keypoints))}
	for i, kp := range keypoints {
		d := make(features.Descriptor, desc.Cols())
		for j := range d {
			d[j] = float64(desc.GetFloatAt(i, j))
		}
		set.Features = append(set.Features, features.Feature{
			Location:   features.Point{X: kp.X, Y: kp.Y},
			Descriptor: d,
		})
	}
	return set, nil
}
