// internal/session/timer.go
package session

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// RealScheduler is backed by time.AfterFunc.
var RealScheduler Scheduler = realScheduler{}

type armedTimer struct {
	timer   Timer
	gen     uint64
	version int64
}

// TurnTimers holds at most one armed turn timer per session. Arm replaces and
// Cancel removes under one mutex, and a callback only runs if its timer is still
// the one registered, so a replaced timer never fires. Arms are ordered by session
// version: once a version has been armed, a lower one is refused, even after the
// higher timer has fired.
type TurnTimers struct {
	mu    sync.Mutex
	sched Scheduler
	gen   uint64
	armed map[string]armedTimer
	high  map[string]int64
}

// NewTurnTimers returns an empty registry on sched.
func NewTurnTimers(sched Scheduler) *TurnTimers {
	if sched == nil {
		sched = RealScheduler
	}
	return &TurnTimers{sched: sched, armed: make(map[string]armedTimer), high: make(map[string]int64)}
}

// Arm schedules fire(version) after d for session id, replacing the armed timer
// unless that would go back to an older version. A negative version arms a poll
// that does not belong to any version; it only runs when no turn timer is live.
// Arm reports whether the timer was registered.
func (t *TurnTimers) Arm(id string, version int64, d time.Duration, fire func(version int64)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, live := t.armed[id]
	if version < 0 {
		if live && prev.version >= 0 {
			return false
		}
	} else {
		if high, ok := t.high[id]; ok && version < high {
			return false
		}
		t.high[id] = version
	}
	if live {
		prev.timer.Stop()
	}
	t.gen++
	gen := t.gen
	tm := t.sched.AfterFunc(d, func() {
		t.mu.Lock()
		cur, ok := t.armed[id]
		if !ok || cur.gen != gen {
			t.mu.Unlock()
			return
		}
		delete(t.armed, id)
		t.mu.Unlock()
		fire(cur.version)
	})
	t.armed[id] = armedTimer{timer: tm, gen: gen, version: version}
	return true
}

// Rebind moves the live timer armed for version from onto version to without
// touching its deadline. It reports false when no such timer is armed.
func (t *TurnTimers) Rebind(id string, from, to int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.armed[id]
	if !ok || cur.version != from || to < from {
		return false
	}
	cur.version = to
	t.armed[id] = cur
	t.high[id] = to
	return true
}

// Cancel stops the session's timer, if any.
func (t *TurnTimers) Cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.armed[id]; ok {
		prev.timer.Stop()
		delete(t.armed, id)
	}
}

// Armed reports the session version the current timer was armed for.
func (t *TurnTimers) Armed(id string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.armed[id]
	return a.version, ok
}

// Forget cancels the session's timer and drops its version history. Used once the
// session is gone from the store.
func (t *TurnTimers) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.armed[id]; ok {
		prev.timer.Stop()
		delete(t.armed, id)
	}
	delete(t.high, id)
}

// Stop cancels every timer. Used on shutdown.
func (t *TurnTimers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, a := range t.armed {
		a.timer.Stop()
		delete(t.armed, id)
	}
	t.high = make(map[string]int64)
}
