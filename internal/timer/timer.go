// Package timer is the per-CPU software timer list: a sorted,
// insert-and-expire-on-tick queue of one-shot callbacks, each
// carrying an expire time, callback, and name.
package timer

// Callback is invoked when a timer expires. It runs in interrupt
// context (the tick handler), must not block, and may reinsert its
// own Timer via List.Set. Its return value is the preempt hint:
// returning true asks the tick handler to call sched_reschedule once
// every expired timer for this tick has run.
type Callback func(t *Timer) (reschedule bool)

// Timer is one pending (or inactive) software timer.
type Timer struct {
	Name       string
	ExpireTime uint64
	callback   Callback

	active bool
}

// New zero-initializes a Timer with the given name (init_timer).
func New(name string) *Timer {
	return &Timer{Name: name}
}

// Active reports whether the timer is currently on a pending list.
func (t *Timer) Active() bool { return t.active }

// List is one CPU's sorted-by-expiration pending timer list.
// Invariant: a timer is either inactive or on exactly one List,
// sorted by ExpireTime ascending.
type List struct {
	pending []*Timer

	// OnFire, if set, is called for every timer Expire fires, after
	// its callback returns, with that callback's own reschedule
	// request. Used by the boot trace to log fired timers without
	// coupling the timer list to a logging package.
	OnFire func(t *Timer, requestedReschedule bool)
}

// Set computes expire_time = now + usecsFromNow and inserts t at the
// sorted position. Inserting an already-active timer panics: callers
// must cancel first.
func (l *List) Set(t *Timer, now, usecsFromNow uint64, cb Callback) {
	if t.active {
		panic("timer: set_timer on an already-active timer")
	}
	t.ExpireTime = now + usecsFromNow
	t.callback = cb
	t.active = true

	idx := 0
	for idx < len(l.pending) && l.pending[idx].ExpireTime <= t.ExpireTime {
		idx++
	}
	l.pending = append(l.pending, nil)
	copy(l.pending[idx+1:], l.pending[idx:])
	l.pending[idx] = t
}

// Cancel unlinks t if it is listed. Safe to call on an inactive
// timer, and a no-op if t's handler is already running (it has
// already been removed from the list by the time its callback runs).
func (l *List) Cancel(t *Timer) {
	if !t.active {
		return
	}
	for i, pt := range l.pending {
		if pt == t {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			break
		}
	}
	t.active = false
}

// Expire removes and fires every timer whose ExpireTime <= now, in
// ascending order, and returns true if any fired callback requested a
// reschedule.
func (l *List) Expire(now uint64) bool {
	preempt := false
	for len(l.pending) > 0 && l.pending[0].ExpireTime <= now {
		t := l.pending[0]
		l.pending = l.pending[1:]
		t.active = false

		cb := t.callback
		t.callback = nil
		fired := cb != nil && cb(t)
		if fired {
			preempt = true
		}
		if l.OnFire != nil {
			l.OnFire(t, fired)
		}
	}
	return preempt
}

// Len returns the number of timers currently pending.
func (l *List) Len() int { return len(l.pending) }

// Pending returns a snapshot of the pending list, soonest first, for
// inspection.
func (l *List) Pending() []*Timer {
	out := make([]*Timer, len(l.pending))
	copy(out, l.pending)
	return out
}
