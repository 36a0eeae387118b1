package testutil

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepClock_Defaults(t *testing.T) {
	clock := NewStepClock(time.Time{}, 0)
	assert.Equal(t, Epoch, clock.Peek())
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
	assert.Equal(t, int64(2), clock.Calls())
}

func TestStepClock_StepsMonotonically(t *testing.T) {
	start := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewStepClock(start, time.Millisecond)

	prev := clock.Now()
	for i := 0; i < 10; i++ {
		next := clock.Now()
		assert.Equal(t, time.Millisecond, next.Sub(prev))
		prev = next
	}
}

func TestStepClock_AdvanceAndReset(t *testing.T) {
	clock := NewStepClock(Epoch, time.Second)
	clock.Now()
	clock.Advance(time.Hour)
	assert.Equal(t, Epoch.Add(time.Hour+time.Second), clock.Peek())

	clock.Reset(time.Time{})
	assert.Equal(t, Epoch.Add(time.Hour), clock.Now(), "reset keeps the advanced start")

	clock.Reset(Epoch)
	assert.Equal(t, Epoch, clock.Now())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(Epoch, time.Nanosecond)
	const goroutines = 50
	const calls = 100

	var mu sync.Mutex
	seen := make(map[time.Time]bool, goroutines*calls)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				ts := clock.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*calls, "every call returns a distinct time")
}

func TestFrozenClock(t *testing.T) {
	now := FrozenClock(Epoch)
	assert.Equal(t, now(), now())
}

func TestDBPath(t *testing.T) {
	p := DBPath(t)
	assert.Equal(t, "test.db", filepath.Base(p))
	assert.NotEqual(t, p, DBPath(t))
}
