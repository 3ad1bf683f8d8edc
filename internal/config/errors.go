package config

import (
	"errors"
)

// Sentinel error kinds for this package.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
	// ErrUnknownBackend is wrapped together with ErrInvalidConfig when
	// model_backend or sink names no known store.
	ErrUnknownBackend = errors.New("unknown backend")
)
