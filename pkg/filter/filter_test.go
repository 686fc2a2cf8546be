package filter_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/maxgio92/wallclock/pkg/filter"
)

func TestThreadFilter_EmptyRejectsEverything(t *testing.T) {
	f := filter.NewThreadFilter()

	for _, tid := range []int{0, 1, 31, 32, 1234, filter.BitmapCapacity, filter.MaxThreadID - 1} {
		require.False(t, f.Accept(tid))
	}
}

func TestThreadFilter_AddRemove(t *testing.T) {
	f := filter.NewThreadFilter()

	f.Add(42)
	require.True(t, f.Accept(42))
	require.False(t, f.Accept(41))
	require.False(t, f.Accept(43))

	f.Remove(42)
	require.False(t, f.Accept(42))

	// A thread ID in a chunk that was never allocated.
	f.Remove(5 * filter.BitmapCapacity)
	require.False(t, f.Accept(5*filter.BitmapCapacity))
}

func TestThreadFilter_CrossChunk(t *testing.T) {
	f := filter.NewThreadFilter()

	// Same bit offset in three different chunks.
	ids := []int{7, filter.BitmapCapacity + 7, 9*filter.BitmapCapacity + 7}
	for _, tid := range ids {
		f.Add(tid)
	}
	for _, tid := range ids {
		require.True(t, f.Accept(tid))
	}

	f.Remove(ids[1])
	require.True(t, f.Accept(ids[0]))
	require.False(t, f.Accept(ids[1]))
	require.True(t, f.Accept(ids[2]))
}

func TestThreadFilter_OutOfRange(t *testing.T) {
	f := filter.NewThreadFilter()

	f.Add(-1)
	require.False(t, f.Accept(-1))

	f.Add(filter.MaxThreadID)
	require.False(t, f.Accept(filter.MaxThreadID))

	// Must not panic.
	f.Remove(-1)
	f.Remove(filter.MaxThreadID + 1)
}

func TestThreadFilter_Clear(t *testing.T) {
	f := filter.NewThreadFilter()

	ids := []int{1, 100, filter.BitmapCapacity * 2, filter.BitmapCapacity*3 + 9}
	for _, tid := range ids {
		f.Add(tid)
	}
	f.Clear()
	for _, tid := range ids {
		require.False(t, f.Accept(tid))
	}

	// Chunks survive a clear, so re-adding works without reallocation.
	f.Add(ids[0])
	require.True(t, f.Accept(ids[0]))
}

func TestThreadFilter_InitTogglesEnabled(t *testing.T) {
	f := filter.NewThreadFilter()
	require.False(t, f.Enabled())

	f.Init(true)
	require.True(t, f.Enabled())

	f.Add(7)
	f.Init(false)
	require.False(t, f.Enabled())
	// Init does not disturb membership.
	require.True(t, f.Accept(7))
}

// Distinct bits in the same storage word must never lose concurrent
// updates: each goroutine toggles its own bit an odd number of times, so
// every bit must end up set.
func TestThreadFilter_SharedWordNoLostUpdates(t *testing.T) {
	const (
		base    = 13 * 32 // all IDs below land in word 13 of chunk 0
		bits    = 32
		toggles = 1001
	)

	f := filter.NewThreadFilter()

	var g errgroup.Group
	for b := 0; b < bits; b++ {
		tid := base + b
		g.Go(func() error {
			for i := 0; i < toggles; i++ {
				if i%2 == 0 {
					f.Add(tid)
				} else {
					f.Remove(tid)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for b := 0; b < bits; b++ {
		require.True(t, f.Accept(base+b), "bit %d lost its final add", b)
	}
}

// Concurrent adds racing the lazy chunk allocation must agree on a single
// chunk: no membership may be lost.
func TestThreadFilter_ConcurrentAllocation(t *testing.T) {
	const workers = 16

	f := filter.NewThreadFilter()

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		tid := 4*filter.BitmapCapacity + w*100
		g.Go(func() error {
			f.Add(tid)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for w := 0; w < workers; w++ {
		require.True(t, f.Accept(4*filter.BitmapCapacity+w*100))
	}
}

func TestThreadFilter_ClearDuringReads(t *testing.T) {
	f := filter.NewThreadFilter()
	for tid := 0; tid < 2048; tid++ {
		f.Add(tid)
	}

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < 100; i++ {
			f.Clear()
		}
		return nil
	})
	for w := 0; w < 4; w++ {
		g.Go(func() error {
			for i := 0; i < 10000; i++ {
				f.Accept(i % 2048)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for tid := 0; tid < 2048; tid++ {
		require.False(t, f.Accept(tid))
	}
}
