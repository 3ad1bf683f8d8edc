package repository

import (
	"time"

	"github.com/okian/solcast/pkg/logger"
)

type options struct {
	loc    *time.Location
	log    logger.Logger
	prefix string
}

func defaultOptions() options {
	return options{loc: time.UTC, log: logger.Nop(), prefix: "solcast:"}
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithLocation sets the wall clock that series timestamps are read and
// written in. Raw readings are always stored in UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithLogger sets the logger used for skipped rows and store diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithKeyPrefix sets the key namespace of the Redis store.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}
