package model

import (
	"context"
	"errors"
	"time"
)

// Status is the outcome of one plant task.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkip    Status = "skip"
	StatusError   Status = "error"
)

// StatusOf classifies err: nil is success, ErrDataAbsent is a skip and
// anything else is an error.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrDataAbsent):
		return StatusSkip
	default:
		return StatusError
	}
}

// Task is one unit of per-plant work. The worker that runs it sends exactly
// one Result on Done, which must have room for it.
type Task struct {
	ID      string
	RunID   string
	PlantID string
	Stage   string
	Horizon Horizon
	Do      func(ctx context.Context) error
	Done    chan<- Result
}

// Result reports how a Task ended.
type Result struct {
	TaskID   string
	PlantID  string
	Stage    string
	Horizon  Horizon
	Status   Status
	Err      error
	Duration time.Duration
}
