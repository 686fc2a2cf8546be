// Package sampler implements the wall-clock sampling engine: a dedicated
// timer thread that periodically signals a bounded subset of a process's
// threads to trigger stack-sample capture.
package sampler

import (
	"context"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/maxgio92/wallclock/pkg/filter"
)

// ThreadsPerTick caps signal deliveries per timer iteration. The cap
// throttles profiling overhead in processes with many threads and keeps
// near-simultaneous signals from contending inside the sample recorder.
const ThreadsPerTick = 8

// DefaultInterval is the sampling period used when none is configured.
const DefaultInterval = 10 * time.Millisecond

// Sampler drives wall-clock sampling. Lifecycle is one-shot: a successful
// Start may be followed by exactly one Stop; a stopped sampler cannot be
// restarted.
type Sampler struct {
	sampleIdleThreads bool

	running  atomic.Bool
	started  atomic.Bool
	timerTID atomic.Int64

	limiter *rate.Limiter
	cancel  context.CancelFunc
	group   errgroup.Group

	*SamplerOptions
}

func NewSampler(opts ...SamplerOption) *Sampler {
	s := &Sampler{
		SamplerOptions: &SamplerOptions{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		logger := log.New(io.Discard)
		s.logger = &logger
	}

	return s
}

// Start validates the configuration, installs the sampling and wakeup
// signal dispositions process-wide, and launches the timer thread. It
// returns before the first tick.
func (s *Sampler) Start() error {
	if err := s.validate(); err != nil {
		return err
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if s.interval == 0 {
		s.interval = DefaultInterval
	}
	s.sampleIdleThreads = s.event == "" || s.event == EventWall

	if err := s.signals.Install(SigSample, s.handleSample); err != nil {
		return errors.Wrap(err, "failed to install running-sample handler")
	}
	if err := s.signals.Install(SigSampleIdle, s.handleSample); err != nil {
		return errors.Wrap(err, "failed to install idle-sample handler")
	}
	// The wakeup disposition only exists to interrupt the timer thread's
	// sleep.
	if err := s.signals.Install(SigWakeup, func(*Context) {}); err != nil {
		return errors.Wrap(err, "failed to install wakeup handler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.limiter = rate.NewLimiter(rate.Every(s.interval), 1)
	s.running.Store(true)

	s.logger.Debug().
		Dur("interval", s.interval).
		Bool("sample_idle_threads", s.sampleIdleThreads).
		Msg("starting timer thread")
	s.group.Go(func() error {
		s.timerLoop(ctx)
		return nil
	})

	return nil
}

// Stop ends sampling and joins the timer thread. The wakeup signal bounds
// the stop latency by signal delivery time rather than by the full sleep
// interval. Call exactly once after a successful Start.
func (s *Sampler) Stop() {
	s.running.Store(false)
	if s.cancel != nil {
		s.cancel()
	}
	if tid := s.timerTID.Load(); tid != 0 {
		s.signals.Kill(int(tid), SigWakeup)
	}
	s.group.Wait()
	s.signals.Reset()
	s.logger.Debug().Msg("timer thread stopped")
}

func (s *Sampler) validate() error {
	if s.interval < 0 {
		return ErrNegativeInterval
	}
	if s.target == nil {
		return ErrNoTarget
	}
	if s.signals == nil {
		return ErrNoSignals
	}

	return nil
}

// handleSample runs on each delivered sampling signal, on the signaled
// thread's dispatch path.
func (s *Sampler) handleSample(ctx *Context) {
	restartSyscall(ctx)
	if s.recorder != nil {
		s.recorder.RecordSample(ctx, s.interval, nil)
	}
}

// timerLoop runs on a locked OS thread so it owns a stable kernel thread
// ID: the loop excludes that ID from targeting, and Stop delivers the
// wakeup signal to it.
func (s *Sampler) timerLoop(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	self := s.target.Self()
	s.timerTID.Store(int64(self))

	var threads ThreadList
	for s.running.Load() {
		if threads == nil {
			var err error
			threads, err = s.target.Threads()
			if err != nil {
				s.logger.Debug().Err(err).Msg("failed to enumerate threads")
			}
		}
		if threads != nil {
			threads = s.tick(threads, self)
		}
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
	}
}

// tick processes up to ThreadsPerTick signal deliveries from the cursor.
// It returns the cursor to resume from on the next tick, or nil once the
// enumeration is exhausted. Skipped threads (self, filtered out, wrong
// state, delivery failure) consume a cursor slot but not the delivery
// budget.
func (s *Sampler) tick(threads ThreadList, self int) ThreadList {
	filterEnabled := s.filter != nil && s.filter.Enabled()

	for count := 0; count < ThreadsPerTick; {
		tid, ok := threads.Next()
		if !ok {
			return nil
		}
		if tid == self {
			continue
		}
		if filterEnabled && !s.filter.Accept(tid) {
			continue
		}

		switch s.target.State(tid) {
		case ThreadRunning:
			if s.target.Kill(tid, SigSample) {
				count++
			}
		case ThreadSleeping:
			if s.sampleIdleThreads && s.target.Kill(tid, SigSampleIdle) {
				count++
			}
		}
	}

	return threads
}

// Filter exposes the referenced thread filter, if any, so thread-lifecycle
// hooks can maintain membership.
func (s *Sampler) Filter() *filter.ThreadFilter {
	return s.filter
}

// Interval returns the effective sampling period. Before a successful
// Start it reflects the configured value, including zero.
func (s *Sampler) Interval() time.Duration {
	return s.interval
}
