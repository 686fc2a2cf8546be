package sampler

import (
	"time"

	log "github.com/rs/zerolog"

	"github.com/maxgio92/wallclock/pkg/filter"
)

type SamplerOptions struct {
	interval time.Duration
	event    string

	target   Target
	signals  Signals
	recorder Recorder
	filter   *filter.ThreadFilter

	logger *log.Logger
}

type SamplerOption func(*Sampler)

// WithInterval sets the sampling period. Zero selects DefaultInterval; a
// negative value makes Start fail.
func WithInterval(interval time.Duration) SamplerOption {
	return func(o *Sampler) {
		o.interval = interval
	}
}

// WithEvent selects the event kind. EventWall also samples idle threads;
// any other kind samples running threads only.
func WithEvent(event string) SamplerOption {
	return func(o *Sampler) {
		o.event = event
	}
}

func WithTarget(target Target) SamplerOption {
	return func(o *Sampler) {
		o.target = target
	}
}

func WithSignals(signals Signals) SamplerOption {
	return func(o *Sampler) {
		o.signals = signals
	}
}

func WithRecorder(recorder Recorder) SamplerOption {
	return func(o *Sampler) {
		o.recorder = recorder
	}
}

// WithFilter restricts sampling to the filter's members while the filter is
// enabled. The filter is owned by the caller and only referenced here.
func WithFilter(f *filter.ThreadFilter) SamplerOption {
	return func(o *Sampler) {
		o.filter = f
	}
}

func WithLogger(logger *log.Logger) SamplerOption {
	return func(o *Sampler) {
		o.logger = logger
	}
}
