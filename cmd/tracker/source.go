package main

import (
	"io"

	"github.com/nvr-ai/go-track/images"
	"github.com/nvr-ai/go-track/images/cv"
	"github.com/nvr-ai/go-track/util"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// frameSource yields grayscale frames until io.EOF.
type frameSource interface {
	Next() (*images.Frame, error)
	Close() error
}

// videoSource reads frames from a video file or capture device.
type videoSource struct {
	capture *gocv.VideoCapture
	img     gocv.Mat
}

func openVideo(path string) (*videoSource, error) {
	capture, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening video %s", path)
	}
	return &videoSource{capture: capture, img: gocv.NewMat()}, nil
}

func (s *videoSource) Next() (*images.Frame, error) {
	for {
		if ok := s.capture.Read(&s.img); !ok {
			return nil, io.EOF
		}
		if !s.img.Empty() {
			return cv.FromMat(s.img)
		}
	}
}

func (s *videoSource) Close() error {
	s.img.Close()
	return s.capture.Close()
}

// directorySource replays a frame-<n>.<ext> sequence.
type directorySource struct {
	files []util.ImageFile
	next  int
}

func openDirectory(dir string) (*directorySource, error) {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no frames in %s", dir)
	}
	return &directorySource{files: files}, nil
}

func (s *directorySource) Next() (*images.Frame, error) {
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	f := s.files[s.next]
	s.next++
	frame, err := cv.DecodeFrame(f.Data)
	if err != nil {
		// OpenCV builds without a codec still decode through the Go registry.
		return f.Decode()
	}
	return frame, nil
}

func (s *directorySource) Close() error { return nil }
