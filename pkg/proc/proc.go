//go:build linux

// Package proc implements the Linux collaborators of the sampling engine:
// thread enumeration, thread state queries and per-thread signal delivery,
// backed by procfs and tgkill.
package proc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/maxgio92/wallclock/pkg/sampler"
)

const defaultProcRoot = "/proc"

// Process addresses the threads of one process through procfs. It
// implements sampler.Target.
type Process struct {
	pid  int
	root string
}

type ProcessOption func(*Process)

// WithProcRoot overrides the procfs mount point. Intended for tests.
func WithProcRoot(root string) ProcessOption {
	return func(p *Process) {
		p.root = root
	}
}

// NewProcess returns a Process for pid. A pid of 0 selects the current
// process.
func NewProcess(pid int, opts ...ProcessOption) *Process {
	p := &Process{
		pid:  pid,
		root: defaultProcRoot,
	}
	if p.pid == 0 {
		p.pid = os.Getpid()
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Threads enumerates the live threads of the process by reading the
// process's task directory. The returned cursor reflects the directory at
// read time; threads created afterwards appear in the next enumeration.
func (p *Process) Threads() (sampler.ThreadList, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, strconv.Itoa(p.pid), "task"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list tasks of pid %d", p.pid)
	}

	tids := make([]int, 0, len(entries))
	for _, entry := range entries {
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}

	return &TaskList{tids: tids}, nil
}

// State classifies one thread from the state field of its stat file.
// Threads that cannot be inspected (e.g. already exited) report
// ThreadUnknown.
func (p *Process) State(tid int) sampler.ThreadState {
	stat, err := os.ReadFile(filepath.Join(p.root, strconv.Itoa(p.pid), "task", strconv.Itoa(tid), "stat"))
	if err != nil {
		return sampler.ThreadUnknown
	}

	// The state field follows the comm field, which is parenthesized and
	// may itself contain spaces and parentheses; cut after the last ')'.
	i := strings.LastIndexByte(string(stat), ')')
	if i < 0 || i+2 >= len(stat) {
		return sampler.ThreadUnknown
	}
	switch stat[i+2] {
	case 'R':
		return sampler.ThreadRunning
	case 'S', 'D':
		return sampler.ThreadSleeping
	default:
		return sampler.ThreadUnknown
	}
}

// Kill delivers sig to one thread via tgkill. Delivery failure, typically
// because the thread exited, is reported as false and is not an error.
func (p *Process) Kill(tid int, sig syscall.Signal) bool {
	return unix.Tgkill(p.pid, tid, sig) == nil
}

// Self returns the kernel thread ID of the calling thread.
func (p *Process) Self() int {
	return unix.Gettid()
}

// TaskList is a cursor over one snapshot of a process's thread IDs.
type TaskList struct {
	tids []int
	next int
}

func (l *TaskList) Next() (int, bool) {
	if l.next >= len(l.tids) {
		return 0, false
	}
	tid := l.tids[l.next]
	l.next++

	return tid, true
}
