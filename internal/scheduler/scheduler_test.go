package scheduler

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestTimeToNextWakeEmpty(t *testing.T) {
	s := New(4)
	d, ok := s.TimeToNextWake(epoch)
	assert.False(t, ok)
	assert.Zero(t, d)
}

func TestPushReplacesExistingTask(t *testing.T) {
	s := New(2)
	s.Push(1, epoch.Add(10*time.Second))
	s.Push(1, epoch.Add(3*time.Second))

	assert.Equal(t, 1, s.Len())
	due, ok := s.Due(1)
	require.True(t, ok)
	assert.Equal(t, epoch.Add(3*time.Second), due)

	d, ok := s.TimeToNextWake(epoch)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, d)
}

func TestTimeToNextWakeMinimum(t *testing.T) {
	s := New(3)
	s.Push(0, epoch.Add(5*time.Second))
	s.Push(1, epoch.Add(2*time.Second))
	s.Push(2, epoch.Add(9*time.Second))

	d, ok := s.TimeToNextWake(epoch)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestTimeToNextWakeZeroWhenDue(t *testing.T) {
	s := New(2)
	s.Push(0, epoch.Add(5*time.Second))
	s.Push(1, epoch)

	d, ok := s.TimeToNextWake(epoch)
	require.True(t, ok)
	assert.Zero(t, d)

	// Overdue tasks also report zero, never a negative wait.
	d, ok = s.TimeToNextWake(epoch.Add(time.Minute))
	require.True(t, ok)
	assert.Zero(t, d)
}

func TestPopExcludesDeadline(t *testing.T) {
	s := New(2)
	s.Push(0, epoch.Add(1*time.Second))
	s.Push(1, epoch.Add(4*time.Second))

	s.Pop(0)

	d, ok := s.TimeToNextWake(epoch)
	require.True(t, ok)
	assert.Equal(t, 4*time.Second, d)

	_, ok = s.Due(0)
	assert.False(t, ok)

	s.Pop(1)
	_, ok = s.TimeToNextWake(epoch)
	assert.False(t, ok)
}

func TestPopUnknownIDIsNoop(t *testing.T) {
	s := New(1)
	s.Push(0, epoch)
	s.Pop(7)
	assert.Equal(t, 1, s.Len())
}

func TestPopDue(t *testing.T) {
	s := New(4)
	s.Push(0, epoch.Add(-time.Second))
	s.Push(1, epoch.Add(time.Second))
	s.Push(2, epoch)
	s.Push(3, epoch.Add(time.Hour))

	due := s.PopDue(epoch)
	assert.Equal(t, []int{0, 2}, due)
	assert.Equal(t, 2, s.Len())

	d, ok := s.TimeToNextWake(epoch)
	require.True(t, ok)
	assert.Equal(t, time.Second, d)

	assert.Empty(t, s.PopDue(epoch))
}

func TestIntervalResetsOnCompletion(t *testing.T) {
	// Block A polls every 10s; an async request at t=3s completes at
	// t=3.2s, so the next wake is anchored at 13.2s.
	s := New(1)
	s.Push(0, epoch.Add(10*time.Second))

	completedAt := epoch.Add(3200 * time.Millisecond)
	s.Pop(0)
	s.Push(0, completedAt.Add(10*time.Second))

	d, ok := s.TimeToNextWake(completedAt)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, d)

	due, _ := s.Due(0)
	assert.Equal(t, epoch.Add(13200*time.Millisecond), due)
}

func TestRandomPushPopProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := New(8)
	deadlines := map[int]time.Time{}

	for step := 0; step < 2000; step++ {
		id := rng.Intn(8)
		if rng.Intn(3) == 0 {
			s.Pop(id)
			delete(deadlines, id)
		} else {
			due := epoch.Add(time.Duration(rng.Intn(20)-5) * time.Second)
			s.Push(id, due)
			deadlines[id] = due
		}

		assert.Equal(t, len(deadlines), s.Len(), "one task per id")

		d, ok := s.TimeToNextWake(epoch)
		if len(deadlines) == 0 {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		assert.GreaterOrEqual(t, d, time.Duration(0))

		anyDue := false
		var want time.Duration = -1
		for _, due := range deadlines {
			if !due.After(epoch) {
				anyDue = true
			}
			if w := due.Sub(epoch); want < 0 || w < want {
				want = w
			}
		}
		if anyDue {
			assert.Zero(t, d)
		} else {
			assert.Equal(t, want, d)
			assert.Positive(t, d)
		}
	}
}
