package ewma

import (
	"time"

	"github.com/okian/solcast/pkg/logger"
)

// Option applies a configuration option to the Trainer.
type Option func(*Trainer)

// WithDays sets the trailing training window in calendar days.
func WithDays(days int) Option {
	return func(t *Trainer) {
		if days > 0 {
			t.days = days
		}
	}
}

// WithAlpha sets the smoothing factor; values outside (0,1] are ignored.
func WithAlpha(alpha float64) Option {
	return func(t *Trainer) {
		if alpha > 0 && alpha <= 1 {
			t.alpha = alpha
		}
	}
}

// WithRecentSamples sets how many trailing samples feed the recent average.
func WithRecentSamples(n int) Option {
	return func(t *Trainer) {
		if n > 0 {
			t.recentSamples = n
		}
	}
}

// WithRecentWeight sets the blend weight of the recent average.
func WithRecentWeight(w float64) Option {
	return func(t *Trainer) {
		if w >= 0 && w <= 1 {
			t.recentWeight = w
		}
	}
}

// WithLiveWindow sets how fresh the last sample must be for blending.
func WithLiveWindow(d time.Duration) Option {
	return func(t *Trainer) {
		if d > 0 {
			t.liveWindow = d
		}
	}
}

// WithLogger sets the logger used for skip diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.log = l
		}
	}
}
