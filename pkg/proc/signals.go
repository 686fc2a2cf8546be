//go:build linux

package proc

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/maxgio92/wallclock/pkg/sampler"
)

// SignalSet manages process-wide signal dispositions for the current
// process and delivers signals to its threads. It implements
// sampler.Signals.
type SignalSet struct {
	pid   int
	lock  sync.Mutex
	chans map[syscall.Signal]chan os.Signal
	wg    sync.WaitGroup
}

func NewSignalSet() *SignalSet {
	return &SignalSet{
		pid:   os.Getpid(),
		chans: make(map[syscall.Signal]chan os.Signal),
	}
}

// Install routes sig to fn for the whole process. Each delivered signal
// produces one Handler call with a fresh context snapshot.
func (s *SignalSet) Install(sig syscall.Signal, fn sampler.Handler) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.chans[sig]; ok {
		return errors.Errorf("handler already installed for signal %d", sig)
	}

	// Buffered so bursts of near-simultaneous deliveries are not dropped
	// while the dispatcher runs the handler.
	ch := make(chan os.Signal, 2*sampler.ThreadsPerTick)
	signal.Notify(ch, sig)
	s.chans[sig] = ch

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for delivered := range ch {
			num, ok := delivered.(syscall.Signal)
			if !ok {
				continue
			}
			fn(&sampler.Context{
				Signal: num,
				Time:   time.Now(),
			})
		}
	}()

	return nil
}

// Kill sends sig to one thread of the current process.
func (s *SignalSet) Kill(tid int, sig syscall.Signal) bool {
	return unix.Tgkill(s.pid, tid, sig) == nil
}

// Reset stops signal routing and joins the dispatchers. Installed signals
// fall back to the runtime's default handling.
func (s *SignalSet) Reset() {
	s.lock.Lock()
	for sig, ch := range s.chans {
		signal.Stop(ch)
		close(ch)
		delete(s.chans, sig)
	}
	s.lock.Unlock()
	s.wg.Wait()
}
