// Package filter provides a sparse, lock-free thread membership set used to
// restrict sampling to an explicit group of threads.
package filter

import (
	"sync"
	"sync/atomic"
)

const (
	// BitmapCapacity is the number of thread IDs covered by one chunk.
	BitmapCapacity = 1 << 16

	// MaxBitmaps bounds the representable thread ID range to
	// [0, MaxBitmaps*BitmapCapacity).
	MaxBitmaps = 1 << 10

	// MaxThreadID is the first thread ID the filter cannot represent.
	MaxThreadID = MaxBitmaps * BitmapCapacity

	chunkWords = BitmapCapacity / 32
)

// chunk holds membership bits for a contiguous BitmapCapacity range of
// thread IDs, one bit per ID, packed into 32-bit words.
type chunk [chunkWords]atomic.Uint32

// ThreadFilter is a two-level bitmap keyed by OS thread ID. Chunks are
// allocated lazily, at most once per slot, and are never freed while the
// filter is alive, so readers need no synchronization against reclamation.
// Bit mutation is a single atomic or/and on the word holding the target bit.
type ThreadFilter struct {
	chunks  [MaxBitmaps]atomic.Pointer[chunk]
	lock    sync.Mutex
	enabled atomic.Bool
}

func NewThreadFilter() *ThreadFilter {
	return &ThreadFilter{}
}

// Init sets the filtering mode. Membership data is left untouched.
func (f *ThreadFilter) Init(enabled bool) {
	f.enabled.Store(enabled)
}

// Enabled reports whether membership is consulted at all. When false the
// caller is expected to bypass the filter entirely.
func (f *ThreadFilter) Enabled() bool {
	return f.enabled.Load()
}

// Accept reports pure membership of threadID. It does not consult the
// enabled flag; that check belongs to the caller. Thread IDs outside the
// representable range are treated as absent.
func (f *ThreadFilter) Accept(threadID int) bool {
	c := f.chunk(threadID)
	if c == nil {
		return false
	}
	return c[wordIndex(threadID)].Load()&bitMask(threadID) != 0
}

// Add marks threadID as a member. The owning chunk is allocated on first
// use under the lock; the bit itself is set with an atomic or, so
// concurrent Add and Remove calls on neighboring bits never lose updates.
// Out-of-range IDs are ignored.
func (f *ThreadFilter) Add(threadID int) {
	if threadID < 0 || threadID >= MaxThreadID {
		return
	}
	c := f.chunks[threadID/BitmapCapacity].Load()
	if c == nil {
		f.lock.Lock()
		// Re-check under the lock: another thread may have raced the
		// allocation.
		c = f.chunks[threadID/BitmapCapacity].Load()
		if c == nil {
			c = new(chunk)
			f.chunks[threadID/BitmapCapacity].Store(c)
		}
		f.lock.Unlock()
	}
	c[wordIndex(threadID)].Or(bitMask(threadID))
}

// Remove clears membership of threadID. A no-op when no chunk covers the
// ID's range.
func (f *ThreadFilter) Remove(threadID int) {
	c := f.chunk(threadID)
	if c == nil {
		return
	}
	c[wordIndex(threadID)].And(^bitMask(threadID))
}

// Clear zeroes every allocated chunk without deallocating it. Safe to run
// concurrently with readers; the outcome of an Accept racing a Clear is
// unspecified per bit.
func (f *ThreadFilter) Clear() {
	for i := range f.chunks {
		c := f.chunks[i].Load()
		if c == nil {
			continue
		}
		for w := range c {
			c[w].Store(0)
		}
	}
}

func (f *ThreadFilter) chunk(threadID int) *chunk {
	if threadID < 0 || threadID >= MaxThreadID {
		return nil
	}
	return f.chunks[threadID/BitmapCapacity].Load()
}

func wordIndex(threadID int) int {
	return threadID % BitmapCapacity / 32
}

func bitMask(threadID int) uint32 {
	return 1 << (threadID & 0x1f)
}
