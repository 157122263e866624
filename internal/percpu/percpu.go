// Package percpu ties one boot CPU's mutable state together: its
// clock, pending timer list, MMU manager, and scheduler, mirroring
// the classic struct cpu_state fields (current_ctx, current_thread,
// boot, timer_enabled, timer list, ready queues, and the arch
// time-calibration block).
package percpu

import (
	"matrixkernel/internal/clock"
	"matrixkernel/internal/klog"
	"matrixkernel/internal/mmu"
	"matrixkernel/internal/sched"
	"matrixkernel/internal/timer"
)

// CPU is the single mutable record every timer, clock tick, and
// dispatch decision on this CPU closes over. Only one CPU exists in
// this core's scope (SMP is out of scope), but the fields are kept
// per-instance rather than package-global so a later design can
// generalize to many without reshaping every caller.
type CPU struct {
	Clock *clock.Clock
	MMU   *mmu.MMU
	Sched *sched.Scheduler

	Timers timer.List

	boot         bool
	timerEnabled bool
}

// New wires the three already-constructed subsystems into one CPU
// record. Timers start disabled; EnableTimer must be called once boot
// has programmed the PIT and installed the tick handler.
func New(clk *clock.Clock, m *mmu.MMU, s *sched.Scheduler) *CPU {
	c := &CPU{Clock: clk, MMU: m, Sched: s}
	c.Timers.OnFire = func(t *timer.Timer, reschedule bool) {
		klog.Trace(klog.TraceEvent{
			Tick:       c.Clock.Uptime(),
			Kind:       klog.TraceTimer,
			TimerName:  t.Name,
			Reschedule: reschedule,
		})
	}
	return c
}

// Boot reports whether this CPU has completed its boot sequence.
func (c *CPU) Boot() bool { return c.boot }

// SetBoot marks the boot sequence complete.
func (c *CPU) SetBoot() { c.boot = true }

// TimerEnabled reports whether expire_timers runs on each tick.
func (c *CPU) TimerEnabled() bool { return c.timerEnabled }

// EnableTimer turns on timer expiry processing on each Tick.
func (c *CPU) EnableTimer() { c.timerEnabled = true }

// DisableTimer turns off timer expiry processing; ticks accumulated
// while disabled are not lost, since Clock.Tick still advances the
// monotonic counter independently and lost-tick accounting is the
// caller's responsibility via Clock.AddLostTicks.
func (c *CPU) DisableTimer() { c.timerEnabled = false }

// Tick is the periodic timer interrupt's per-CPU epilogue: it
// advances the monotonic tick counter and, if timers are enabled,
// expires due timers and asks the scheduler to reschedule if any
// expired timer requested it.
func (c *CPU) Tick() {
	c.Clock.Tick()
	if !c.timerEnabled {
		return
	}
	c.Sched.CurrentTick = c.Clock.Uptime()
	if c.Timers.Expire(c.Clock.SysTime()) {
		c.Sched.Reschedule(false)
	}
}
