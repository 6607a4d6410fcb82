// Command tracker follows a single target through a video or a numbered frame
// sequence using SIFT descriptors with an optical-flow fallback.
//
// Usage:
//
//	tracker -video clip.mp4 -rect 120,340,64,48 [-config tracker.yaml] [-plot path.png] [-show]
//	tracker -frames ./frames -rect 120,340,64,48
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/nvr-ai/go-track/features"
	"github.com/nvr-ai/go-track/images"
	"github.com/nvr-ai/go-track/images/cv"
	"github.com/nvr-ai/go-track/profiler"
	"github.com/nvr-ai/go-track/tracker"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const (
	// DefaultReportInterval is how often the profiler logs a summary.
	DefaultReportInterval = 5 * time.Second
)

// options holds the parsed command line.
type options struct {
	video      string
	frames     string
	rect       images.Rect
	configPath string
	plotPath   string
	show       bool
	verbosity  int
	report     time.Duration
}

func main() {
	var (
		opts options
		rect string
	)
	flag.StringVar(&opts.video, "video", "", "Path to video file (.mp4, .avi, .mov)")
	flag.StringVar(&opts.frames, "frames", "", "Directory of frame-<n>.<ext> images")
	flag.StringVar(&rect, "rect", "", "Initial target rectangle as top,left,width,height")
	flag.StringVar(&opts.configPath, "config", "", "Tracker configuration file (.yaml)")
	flag.StringVar(&opts.plotPath, "plot", "", "Write the trajectory plot to this file")
	flag.BoolVar(&opts.show, "show", false, "Show visualization window")
	flag.IntVar(&opts.verbosity, "v", 0, "Log verbosity")
	flag.DurationVar(&opts.report, "report", DefaultReportInterval, "Profiler report interval")
	flag.Parse()

	if (opts.video == "") == (opts.frames == "") {
		log.Fatal("exactly one of -video or -frames is required")
	}
	r, err := parseRect(rect)
	if err != nil {
		log.Fatal(err)
	}
	opts.rect = r

	logger := funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintln(os.Stderr, prefix, args)
			return
		}
		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{Verbosity: opts.verbosity, LogTimestamp: true})

	if err := run(context.Background(), logger, opts); err != nil {
		logger.Error(err, "tracking failed")
		os.Exit(1)
	}
}

// parseRect parses "top,left,width,height".
func parseRect(s string) (images.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return images.Rect{}, errors.Errorf("-rect %q: want top,left,width,height", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return images.Rect{}, errors.Wrapf(err, "-rect %q", s)
		}
		v[i] = n
	}
	return images.NewRect(v[0], v[1], v[2], v[3])
}

func run(ctx context.Context, logger logr.Logger, opts options) error {
	config := tracker.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if config, err = tracker.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}

	var source frameSource
	var err error
	if opts.video != "" {
		source, err = openVideo(opts.video)
	} else {
		source, err = openDirectory(opts.frames)
	}
	if err != nil {
		return err
	}
	defer source.Close()

	ext := newExtractor()
	defer ext.Close()

	first, err := source.Next()
	if err != nil {
		return errors.Wrap(err, "reading first frame")
	}
	extracted, err := ext.Extract(first, opts.rect)
	if err != nil {
		return err
	}
	// Template locations are relative to the rectangle, which may extend past
	// the clamped extraction region.
	template := features.Set{Features: extracted.Features}
	for i := range template.Features {
		template.Features[i].Location = extracted.Absolute(i).Sub(opts.rect.TopLeft())
	}

	t, err := tracker.New(first, template, opts.rect, tracker.WithConfig(config), tracker.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, "creating tracker")
	}

	prof := profiler.New(profiler.Options{ReportInterval: opts.report, Logger: logger.WithName("profiler")})
	prof.AddCollector(t)
	prof.Start(ctx)
	defer func() {
		prof.Stop()
		prof.Report()
	}()

	var window *gocv.Window
	if opts.show {
		window = gocv.NewWindow("Tracker")
		defer window.Close()
	}

	centres := []features.Point{opts.rect.Center()}
	lost := -1
	for frame := 1; ; frame++ {
		img, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "reading frame %d", frame)
		}

		done := prof.StartOperation("extract")
		set, err := ext.Extract(img, t.Window())
		done()
		if err != nil {
			return errors.Wrapf(err, "extracting frame %d", frame)
		}

		done = prof.StartOperation("track")
		res, err := t.Track(img, set)
		done()
		if err != nil {
			return errors.Wrapf(err, "tracking frame %d", frame)
		}
		prof.RecordMetric("features", float64(set.Len()))

		if window != nil {
			if show(window, img, res) {
				break
			}
		}

		if res.Status == tracker.StatusLost {
			lost = len(centres) - 1
			logger.Info("stopping", "frame", frame, "rect", res.Rect.String())
			break
		}
		centres = append(centres, res.Rect.Center())
	}

	if opts.plotPath != "" {
		if err := writeTrajectory(opts.plotPath, centres, lost); err != nil {
			return err
		}
		logger.Info("trajectory written", "path", opts.plotPath, "points", len(centres))
	}
	return nil
}

// show draws the rectangle and search window and reports whether the user
// pressed ESC.
func show(window *gocv.Window, frame *images.Frame, res tracker.Result) bool {
	gray, err := cv.ToMat(frame)
	if err != nil {
		return false
	}
	defer gray.Close()

	img := gocv.NewMat()
	defer img.Close()
	gocv.CvtColor(gray, &img, gocv.ColorGrayToBGR)

	rectColor := color.RGBA{0, 255, 0, 0}
	if res.Status == tracker.StatusLost {
		rectColor = color.RGBA{0, 0, 255, 0}
	}
	gocv.Rectangle(&img, res.Window.Rectangle(), color.RGBA{255, 255, 255, 0}, 1)
	gocv.Rectangle(&img, res.Rect.Rectangle(), rectColor, 2)

	for _, u := range res.Updates {
		c := color.RGBA{0, 255, 255, 0}
		if u.Source == tracker.SourceFlow {
			c = color.RGBA{255, 0, 255, 0}
		}
		if u.Source != tracker.SourceUnresolved {
			gocv.Circle(&img, pointOf(u.Observed), 2, c, -1)
		}
	}

	status := fmt.Sprintf("%s matched=%d flow=%d inliers=%d", res.Status, res.Matched, res.Flowed, res.Inliers)
	gocv.PutText(&img, status, pointOf(features.Point{X: 10, Y: 30}), gocv.FontHersheyPlain, 1.2, color.RGBA{255, 255, 255, 0}, 2)

	window.IMShow(img)
	return window.WaitKey(1) == 27
}

func pointOf(p features.Point) image.Point {
	return image.Pt(int(p.X+0.5), int(p.Y+0.5))
}
