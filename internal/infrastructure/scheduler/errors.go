package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrSweepLocked is returned when another instance holds the sweep lock
	ErrSweepLocked = errors.New("sync sweep is running on another instance")
)
