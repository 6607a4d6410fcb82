package tracker

import (
	"sort"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/nvr-ai/go-track/features"
	"github.com/nvr-ai/go-track/images"
	"github.com/pkg/errors"
)

// Registry holds independent trackers, one per target, keyed by handle.
//
// Calls on the same tracker are serialised; calls on different trackers may
// run in parallel.
type Registry struct {
	mu       sync.RWMutex
	entries  map[uuid.UUID]*entry
	logger   logr.Logger
	defaults []Option
}

type entry struct {
	mu      sync.Mutex
	tracker *Tracker
}

// Snapshot is the externally visible state of a registered tracker.
type Snapshot struct {
	ID     uuid.UUID
	Status Status
	Rect   images.Rect
	Window images.Rect
}

// NewRegistry creates an empty registry.
//
// Arguments:
//   - logger: The logger; every tracker logs with its handle attached.
//   - defaults: Options applied to every tracker before the per-call options.
//
// Returns:
//   - *Registry: The registry.
func NewRegistry(logger logr.Logger, defaults ...Option) *Registry {
	return &Registry{
		entries:  make(map[uuid.UUID]*entry),
		logger:   logger,
		defaults: defaults,
	}
}

// Add creates a tracker and returns its handle. Arguments are those of New.
func (r *Registry) Add(frame *images.Frame, template features.Set, rect images.Rect, opts ...Option) (uuid.UUID, error) {
	id := uuid.New()
	all := make([]Option, 0, len(r.defaults)+len(opts)+1)
	all = append(all, WithLogger(r.logger.WithValues("tracker", id.String())))
	all = append(all, r.defaults...)
	all = append(all, opts...)

	t, err := New(frame, template, rect, all...)
	if err != nil {
		return uuid.Nil, err
	}

	r.mu.Lock()
	r.entries[id] = &entry{tracker: t}
	r.mu.Unlock()

	r.logger.V(1).Info("tracker added", "tracker", id.String(), "rect", t.Rect())
	return id, nil
}

func (r *Registry) lookup(id uuid.UUID) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, errors.Wrapf(ErrTrackerNotFound, "id %s", id)
	}
	return e, nil
}

// Track runs Track on the tracker with the given handle.
func (r *Registry) Track(id uuid.UUID, frame *images.Frame, set features.Set) (Result, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Result{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Track(frame, set)
}

// TrackAll tracks several targets in the same frame concurrently, one
// goroutine per handle. The frame is shared read-only between the trackers.
//
// Arguments:
//   - frame: The new frame.
//   - sets: The feature set for each handle, usually extracted from its window.
//
// Returns:
//   - map[uuid.UUID]Result: Results of the successful calls.
//   - map[uuid.UUID]error: Errors of the failed calls, nil when all succeeded.
func (r *Registry) TrackAll(frame *images.Frame, sets map[uuid.UUID]features.Set) (map[uuid.UUID]Result, map[uuid.UUID]error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[uuid.UUID]Result, len(sets))
		errs    map[uuid.UUID]error
	)

	for id, set := range sets {
		id, set := id, set
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Track(id, frame, set)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errs == nil {
					errs = make(map[uuid.UUID]error)
				}
				errs[id] = err
				return
			}
			results[id] = res
		}()
	}
	wg.Wait()
	return results, errs
}

// Snapshot returns the state of the tracker with the given handle.
func (r *Registry) Snapshot(id uuid.UUID) (Snapshot, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{ID: id, Status: e.tracker.Status(), Rect: e.tracker.Rect(), Window: e.tracker.Window()}, nil
}

// Remove drops the tracker with the given handle.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return errors.Wrapf(ErrTrackerNotFound, "id %s", id)
	}
	delete(r.entries, id)
	return nil
}

// Prune removes every lost tracker and returns their handles.
func (r *Registry) Prune() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []uuid.UUID
	for id, e := range r.entries {
		e.mu.Lock()
		lost := e.tracker.Status() == StatusLost
		e.mu.Unlock()
		if lost {
			delete(r.entries, id)
			removed = append(removed, id)
		}
	}
	sortIDs(removed)
	if len(removed) > 0 {
		r.logger.V(1).Info("pruned lost trackers", "count", len(removed))
	}
	return removed
}

// IDs returns the registered handles in a stable order.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Len returns the number of registered trackers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CollectMetrics reports how many trackers are tracking and lost.
func (r *Registry) CollectMetrics() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tracking, lost float64
	for _, e := range r.entries {
		e.mu.Lock()
		if e.tracker.Status() == StatusLost {
			lost++
		} else {
			tracking++
		}
		e.mu.Unlock()
	}
	return map[string]float64{
		"registry.tracking": tracking,
		"registry.lost":     lost,
	}
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
