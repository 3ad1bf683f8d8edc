package model

import "errors"

// Sentinel kinds shared across the pipeline.
var (
	// ErrDataAbsent marks an expected skip: no input series or no trained model.
	ErrDataAbsent = errors.New("data absent")
)
