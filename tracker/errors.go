package tracker

import "github.com/pkg/errors"

var (
	// ErrTrackerLost is returned by Track once the tracker has lost its target.
	ErrTrackerLost = errors.New("tracker lost")
	// ErrTrackerNotFound is returned by the registry for unknown handles.
	ErrTrackerNotFound = errors.New("tracker not found")
)
