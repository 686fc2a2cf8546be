package sampler

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// EventWall samples both running and idle threads, attributing
	// wall-clock time.
	EventWall = "wall"

	// EventCPU samples only threads that are on CPU.
	EventCPU = "cpu"
)

const (
	// SigSample is delivered to running threads to trigger a sample.
	SigSample = unix.SIGPROF

	// SigSampleIdle is delivered to sleeping threads when idle-thread
	// sampling is on.
	SigSampleIdle = unix.SIGVTALRM

	// SigWakeup interrupts the timer thread's sleep. Its handler does
	// nothing; installation is the point.
	SigWakeup = unix.SIGIO
)

// ThreadState classifies a thread's execution state at query time.
type ThreadState int

const (
	ThreadUnknown ThreadState = iota
	ThreadRunning
	ThreadSleeping
)

// ThreadList is a cursor over one enumeration of live threads. Next returns
// the following thread ID, or ok == false once the enumeration is
// exhausted.
type ThreadList interface {
	Next() (tid int, ok bool)
}

// Target is the process whose threads are sampled.
type Target interface {
	// Threads starts a fresh enumeration of the live threads.
	Threads() (ThreadList, error)

	// State classifies one thread.
	State(tid int) ThreadState

	// Kill attempts best-effort signal delivery to one thread. A false
	// return (e.g. the thread already exited) is not an error.
	Kill(tid int, sig syscall.Signal) bool

	// Self returns the calling thread's ID, used to keep the sampler
	// from signaling itself.
	Self() int
}

// Context is the execution context snapshot handed to the Recorder for one
// delivered sampling signal.
type Context struct {
	// Signal that triggered the sample.
	Signal syscall.Signal

	// Time the signal was observed.
	Time time.Time

	// Errno left by a system call the signal interrupted, when the
	// platform exposes it. Zero otherwise.
	Errno syscall.Errno

	// Restarted is set when the interrupted call was flagged for restart
	// instead of failing with Errno.
	Restarted bool
}

// Handler runs for each delivery of an installed signal. It runs on the
// signal dispatch path and must not block.
type Handler func(ctx *Context)

// Recorder receives one call per delivered sampling signal. Implementations
// must be safe for concurrent use and must not block: they run on the
// signal dispatch path.
type Recorder interface {
	RecordSample(ctx *Context, interval time.Duration, payload interface{})
}

// Signals installs process-wide signal dispositions and delivers signals to
// threads of the current process.
type Signals interface {
	// Install associates sig with fn for the whole process.
	Install(sig syscall.Signal, fn Handler) error

	// Kill sends sig to one thread of the current process; best effort.
	Kill(tid int, sig syscall.Signal) bool

	// Reset removes every installed disposition.
	Reset()
}
