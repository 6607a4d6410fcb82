// Package tracker follows a rectangular target across video frames.
//
// A Tracker is initialised from a frame, the features extracted inside the
// target rectangle (the template) and the rectangle itself. On every new frame
// each template feature is re-identified among the new frame's features with a
// ratio-tested kd-tree search; features that cannot be re-identified fall back
// to pyramidal Lucas-Kanade optical flow. The resolved points vote on a robust
// translation of the rectangle. When too few points agree the tracker reports
// StatusLost, which is terminal.
package tracker

import (
	"math"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/nvr-ai/go-track/features"
	"github.com/nvr-ai/go-track/flow"
	"github.com/nvr-ai/go-track/images"
	"github.com/nvr-ai/go-track/kdtree"
	"github.com/nvr-ai/go-track/matcher"
	"github.com/pkg/errors"
)

// Status is the tracker state.
type Status string

const (
	// StatusTracking means the target was located in the last frame.
	StatusTracking Status = "tracking"
	// StatusLost means the target could not be located; the tracker must be
	// re-created from a fresh detection.
	StatusLost Status = "lost"
)

// Source tells how a point's new location was obtained.
type Source string

const (
	// SourceMatched points were re-identified by descriptor.
	SourceMatched Source = "matched"
	// SourceFlow points were moved by optical flow.
	SourceFlow Source = "flow"
	// SourceUnresolved points could not be located.
	SourceUnresolved Source = "unresolved"
)

// PointUpdate describes what happened to one template point in a frame.
type PointUpdate struct {
	// Index is the template feature index.
	Index int
	// Previous is the point location before the frame.
	Previous features.Point
	// Observed is the location found by matching or flow. It equals Previous
	// for unresolved points.
	Observed features.Point
	// Source tells how Observed was obtained.
	Source Source
	// Reason is the matcher's rejection reason for flow and unresolved points.
	Reason matcher.Reason
	// Inlier is set when the point agreed with the consensus translation.
	Inlier bool
}

// Result is the outcome of one Track call.
type Result struct {
	// Rect is the updated tracking rectangle, or the last good one when lost.
	Rect images.Rect
	// Window is the search window around Rect.
	Window images.Rect
	// Status is the tracker state after the frame.
	Status Status
	// Matched, Flowed and Unresolved count the points per source.
	Matched    int
	Flowed     int
	Unresolved int
	// Inliers counts the points that agreed with the consensus translation.
	Inliers int
	// Updates holds one entry per template feature, in template order.
	Updates []PointUpdate
}

// Tracker follows a single target. It is not safe for concurrent use; see
// Registry for serialised access to many trackers.
type Tracker struct {
	config  Config
	logger  logr.Logger
	matcher *matcher.Matcher
	solver  *flow.Solver

	template      features.Set
	templateIndex *kdtree.Tree
	points        []features.Point

	// origin is the sub-pixel top-left corner of the target and size its
	// initial extent. Neither is clamped to the frame.
	origin features.Point
	size   images.Rect

	rect   images.Rect
	window images.Rect
	status Status

	previous        *images.Frame
	previousPyramid images.Pyramid

	metrics trackerMetrics
}

// trackerMetrics is read from profiler goroutines, hence the lock.
type trackerMetrics struct {
	mu         sync.Mutex
	frames     int
	matched    int
	flowed     int
	unresolved int
	inliers    int
	duration   time.Duration
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithConfig sets the tracker configuration.
func WithConfig(config Config) Option {
	return func(t *Tracker) {
		t.config = config
	}
}

// WithLogger sets the logger. Per-frame summaries are logged at V(1).
func WithLogger(logger logr.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// New initialises a tracker.
//
// Template feature locations are relative to the top-left corner of rect,
// as produced by an extractor that ran over the rectangle's region; the
// template's Origin is not used. The template is deep-copied and the frame is
// copied, so the caller may reuse both buffers.
//
// Arguments:
//   - frame: The frame the template was extracted from.
//   - template: The features of the target.
//   - rect: The target rectangle; it must overlap the frame.
//   - opts: Options such as WithConfig and WithLogger.
//
// Returns:
//   - *Tracker: The tracker, in StatusTracking.
//   - error: ErrInvalidInput for an invalid frame, template, rectangle or config.
//
// @example
// t, err := tracker.New(frame, template, images.Rect{Top: 50, Left: 50, Width: 10, Height: 10})
// res, err := t.Track(next, nextFeatures)
func New(frame *images.Frame, template features.Set, rect images.Rect, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		config: DefaultConfig(),
		logger: logr.Discard(),
		status: StatusTracking,
	}
	for _, opt := range opts {
		opt(t)
	}

	if err := t.config.Validate(); err != nil {
		return nil, err
	}
	if err := frame.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid initial frame")
	}
	if err := template.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid template")
	}
	if rect.Empty() {
		return nil, errors.Wrapf(features.ErrInvalidInput, "rectangle %v has no area", rect)
	}
	bounds := frame.Bounds()
	if !rect.Overlaps(bounds) {
		return nil, errors.Wrapf(features.ErrInvalidInput, "rectangle %v lies outside the %v", rect, frame)
	}

	var err error
	if t.matcher, err = matcher.New(t.config.Matcher); err != nil {
		return nil, err
	}
	if t.solver, err = flow.New(t.config.Flow); err != nil {
		return nil, err
	}

	t.template = template.Clone()
	t.template.Origin = features.Point{}
	if t.templateIndex, err = kdtree.Build(t.template, kdtree.WithLeafSize(t.config.LeafSize)); err != nil {
		return nil, err
	}

	t.points = make([]features.Point, t.template.Len())
	for i, f := range t.template.Features {
		t.points[i] = rect.TopLeft().Add(f.Location)
	}

	t.origin = rect.TopLeft()
	t.size = images.Rect{Width: rect.Width, Height: rect.Height}
	t.place(rect, bounds)
	t.previous = frame.Clone()
	t.previousPyramid = t.pyramid(t.previous)

	t.logger.V(1).Info("tracker initialised", "rect", t.rect, "window", t.window, "features", t.template.Len())
	return t, nil
}

// pyramid builds the flow pyramid of f, smoothing it first when configured.
func (t *Tracker) pyramid(f *images.Frame) images.Pyramid {
	if r := t.config.Flow.SmoothRadius; r > 0 {
		f = images.BoxBlur(f, images.BlurOptions{Radius: r, Edge: images.MirrorEdgeMode})
	}
	return images.BuildPyramid(f, t.config.Flow.PyramidLevels)
}

// Track locates the target in a new frame.
//
// Locations in set are image coordinates relative to set.Origin, so features
// extracted from the search window only need Origin set to the window's
// top-left corner. An empty set is allowed; every point then falls back to
// optical flow.
//
// Arguments:
//   - frame: The new frame, same size as the initial one.
//   - set: The features extracted from the new frame.
//
// Returns:
//   - Result: The updated rectangle and window, or the last good ones with
//     StatusLost.
//   - error: ErrTrackerLost after the target was lost, ErrInvalidInput for an
//     invalid frame or feature set.
func (t *Tracker) Track(frame *images.Frame, set features.Set) (Result, error) {
	if t.status == StatusLost {
		return Result{}, ErrTrackerLost
	}
	if err := frame.Validate(); err != nil {
		return Result{}, errors.Wrap(err, "invalid frame")
	}
	if !frame.SameSize(t.previous) {
		return Result{}, errors.Wrapf(features.ErrInvalidInput, "%v does not match the initial %v", frame, t.previous)
	}

	var index *kdtree.Tree
	if set.Len() > 0 {
		if err := set.Validate(); err != nil {
			return Result{}, errors.Wrap(err, "invalid feature set")
		}
		if set.Dim() != t.template.Dim() {
			return Result{}, errors.Wrapf(features.ErrInvalidInput,
				"feature dimension %d does not match template dimension %d", set.Dim(), t.template.Dim())
		}
		var err error
		if index, err = kdtree.Build(set, kdtree.WithLeafSize(t.config.LeafSize)); err != nil {
			return Result{}, err
		}
	}

	start := time.Now()
	current := frame.Clone()
	currentPyramid := t.pyramid(current)

	res := Result{Updates: make([]PointUpdate, len(t.points))}
	var moves []features.Point
	var moved []int
	for i, p := range t.points {
		u := t.locate(i, p, set, index, currentPyramid)
		switch u.Source {
		case SourceMatched:
			res.Matched++
		case SourceFlow:
			res.Flowed++
		default:
			res.Unresolved++
		}
		if u.Source != SourceUnresolved {
			moves = append(moves, u.Observed.Sub(u.Previous))
			moved = append(moved, i)
		}
		res.Updates[i] = u
	}

	c := translation(moves, t.config.OutlierDistance)
	for j, i := range moved {
		res.Updates[i].Inlier = c.Inliers[j]
	}
	res.Inliers = c.Count

	bounds := current.Bounds()
	origin := t.origin.Add(c.Shift)
	next := t.target(origin)
	required := min(t.config.MinResolvedPoints, t.template.Len())

	if c.Count < required || !next.Overlaps(bounds) {
		t.status = StatusLost
		res.Status = StatusLost
		res.Rect = t.rect
		res.Window = t.window
		t.record(res, time.Since(start))
		t.logger.Info("target lost",
			"rect", t.rect, "inliers", c.Count, "required", required,
			"matched", res.Matched, "flowed", res.Flowed, "unresolved", res.Unresolved)
		return res, nil
	}

	for i := range t.points {
		u := res.Updates[i]
		if u.Inlier {
			t.points[i] = u.Observed
		} else {
			t.points[i] = u.Previous.Add(c.Shift)
		}
	}

	t.origin = origin
	t.place(next, bounds)
	t.previous = current
	t.previousPyramid = currentPyramid

	res.Status = StatusTracking
	res.Rect = t.rect
	res.Window = t.window
	t.record(res, time.Since(start))
	t.logger.V(1).Info("frame tracked",
		"rect", t.rect, "shift", c.Shift, "inliers", c.Count,
		"matched", res.Matched, "flowed", res.Flowed, "unresolved", res.Unresolved)
	return res, nil
}

// target returns the unclamped target rectangle with its top-left corner at
// origin rounded to whole pixels.
func (t *Tracker) target(origin features.Point) images.Rect {
	return images.Rect{
		Top:    int(math.Round(origin.Y)),
		Left:   int(math.Round(origin.X)),
		Width:  t.size.Width,
		Height: t.size.Height,
	}
}

// place derives the reported rectangle and the search window from the
// unclamped target. Only these are clamped to the frame.
func (t *Tracker) place(target, bounds images.Rect) {
	t.rect = target.Clamp(bounds)
	t.window = target.SearchWindow(t.config.WindowMargin, bounds)
}

// locate finds the new location of template point i, previously at p.
func (t *Tracker) locate(i int, p features.Point, set features.Set, index *kdtree.Tree, current images.Pyramid) PointUpdate {
	u := PointUpdate{Index: i, Previous: p, Observed: p}

	outcome := t.matcher.MatchMutual(index, t.template.Descriptor(i), t.templateIndex, i)
	switch o := outcome.(type) {
	case matcher.Matched:
		u.Source = SourceMatched
		u.Observed = set.Absolute(o.Index)
		if t.config.RefineMatches {
			d := t.solver.EstimatePyramid(t.previousPyramid, current, p, u.Observed.Sub(p))
			if !d.Singular {
				u.Observed = p.Add(d.Vector)
			}
		}
		return u
	case matcher.Unmatched:
		u.Reason = o.Reason
	}

	d := t.solver.EstimatePyramid(t.previousPyramid, current, p, features.Point{})
	if d.Singular {
		u.Source = SourceUnresolved
		return u
	}
	u.Source = SourceFlow
	u.Observed = p.Add(d.Vector)
	return u
}

func (t *Tracker) record(res Result, elapsed time.Duration) {
	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()
	t.metrics.frames++
	t.metrics.matched = res.Matched
	t.metrics.flowed = res.Flowed
	t.metrics.unresolved = res.Unresolved
	t.metrics.inliers = res.Inliers
	t.metrics.duration = elapsed
}

// Status returns the current tracker state.
func (t *Tracker) Status() Status { return t.status }

// Rect returns the current tracking rectangle.
func (t *Tracker) Rect() images.Rect { return t.rect }

// Window returns the current search window.
func (t *Tracker) Window() images.Rect { return t.window }

// Points returns a copy of the current flow points in image coordinates.
func (t *Tracker) Points() []features.Point {
	out := make([]features.Point, len(t.points))
	copy(out, t.points)
	return out
}

// CollectMetrics reports the statistics of the last tracked frame. It
// satisfies profiler.MetricsCollector and may be called from any goroutine.
func (t *Tracker) CollectMetrics() map[string]float64 {
	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()
	return map[string]float64{
		"tracker.frames":     float64(t.metrics.frames),
		"tracker.matched":    float64(t.metrics.matched),
		"tracker.flowed":     float64(t.metrics.flowed),
		"tracker.unresolved": float64(t.metrics.unresolved),
		"tracker.inliers":    float64(t.metrics.inliers),
		"tracker.frame_ms":   float64(t.metrics.duration) / float64(time.Millisecond),
		"tracker.template":   float64(t.template.Len()),
	}
}
