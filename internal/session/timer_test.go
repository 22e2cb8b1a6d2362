// internal/session/timer_test.go
package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnTimersReplaceAndCancel(t *testing.T) {
	sched := &manualScheduler{}
	timers := NewTurnTimers(sched)
	var fired []int64
	record := func(v int64) { fired = append(fired, v) }

	timers.Arm("s1", 1, time.Second, record)
	timers.Arm("s1", 2, 3*time.Second, record)
	sched.Advance(time.Second)
	assert.Empty(t, fired, "replaced timer never fires")

	sched.Advance(2 * time.Second)
	assert.Equal(t, []int64{2}, fired)
	_, armed := timers.Armed("s1")
	assert.False(t, armed, "a fired timer is no longer registered")

	timers.Arm("s2", 7, time.Second, record)
	timers.Cancel("s2")
	sched.Advance(time.Second)
	assert.Equal(t, []int64{2}, fired)

	timers.Arm("s3", 1, time.Second, record)
	timers.Arm("s4", 1, time.Second, record)
	timers.Stop()
	sched.Advance(time.Second)
	assert.Equal(t, []int64{2}, fired)
}

func TestTurnTimersKeepNewestVersion(t *testing.T) {
	sched := &manualScheduler{}
	timers := NewTurnTimers(sched)
	var fired []int64
	record := func(v int64) { fired = append(fired, v) }

	assert.True(t, timers.Arm("s1", 5, 2*time.Second, record))
	assert.False(t, timers.Arm("s1", 4, time.Second, record), "older version is refused")
	version, armed := timers.Armed("s1")
	require.True(t, armed)
	assert.EqualValues(t, 5, version)

	sched.Advance(2 * time.Second)
	assert.Equal(t, []int64{5}, fired)
	assert.False(t, timers.Arm("s1", 4, time.Second, record), "still refused after the newer timer fired")
	assert.True(t, timers.Arm("s1", 5, time.Second, record), "the same version may re-arm")

	// A poll never displaces a live turn timer, and a turn timer replaces a poll.
	assert.False(t, timers.Arm("s1", -1, time.Second, record))
	sched.Advance(time.Second)
	assert.Equal(t, []int64{5, 5}, fired)
	assert.True(t, timers.Arm("s1", -1, time.Second, record))
	assert.True(t, timers.Arm("s1", 6, 3*time.Second, record))
	sched.Advance(time.Second)
	assert.Equal(t, []int64{5, 5}, fired)

	timers.Forget("s1")
	assert.True(t, timers.Arm("s1", 1, time.Second, record), "a forgotten session starts over")
}

func TestTurnTimersRebindKeepsDeadline(t *testing.T) {
	sched := &manualScheduler{}
	timers := NewTurnTimers(sched)
	var fired []int64
	record := func(v int64) { fired = append(fired, v) }

	timers.Arm("s1", 3, 10*time.Second, record)
	sched.Advance(4 * time.Second)
	assert.False(t, timers.Rebind("s1", 2, 4), "only the armed version moves")
	require.True(t, timers.Rebind("s1", 3, 4))
	assert.False(t, timers.Arm("s1", 3, time.Second, record))

	sched.Advance(5 * time.Second)
	assert.Empty(t, fired)
	sched.Advance(time.Second)
	assert.Equal(t, []int64{4}, fired)
	assert.False(t, timers.Rebind("s1", 4, 5), "nothing left to move")
}

func TestRealSchedulerFires(t *testing.T) {
	timers := NewTurnTimers(nil)
	done := make(chan int64, 1)
	timers.Arm("s1", 4, 10*time.Millisecond, func(v int64) { done <- v })
	select {
	case v := <-done:
		assert.EqualValues(t, 4, v)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}
