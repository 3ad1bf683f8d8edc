package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrCycleRunning = errors.New("pipeline cycle already running")
)
