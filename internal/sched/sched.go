// Package sched implements priority-ordered ready queues and the
// register-level context switch that dispatches the highest-priority
// runnable thread, built around per-priority FIFO queues and an
// explicit, trampoline-built first-run entry point rather than a
// sentinel-return trick (goroutine.go's createGoroutine sets pc/sp
// once; the first dispatch lands directly on the entry function).
package sched

import (
	"matrixkernel/internal/bitmap"
	"matrixkernel/internal/gdt"
	"matrixkernel/internal/iox"
	"matrixkernel/internal/klog"
	"matrixkernel/internal/proc"
)

// NumPriorities is the fixed number of ready queues, matching
// kconfig.Config.PriorityLevels's default of 32.
const NumPriorities = 32

// queue is one priority's FIFO of ready threads.
type queue struct {
	threads []*proc.Thread
}

func (q *queue) pushBack(t *proc.Thread) {
	q.threads = append(q.threads, t)
}

func (q *queue) popFront() *proc.Thread {
	t := q.threads[0]
	q.threads = q.threads[1:]
	return t
}

func (q *queue) empty() bool { return len(q.threads) == 0 }

// Scheduler owns the per-CPU ready queues and drives every context
// switch through iox.CPU.ContextSwitch, updating the TSS esp0 field
// on every switch so a ring-3→ring-0 transition lands on the
// incoming thread's kernel stack.
type Scheduler struct {
	cpu  iox.CPU
	desc *gdt.Table

	queues    [NumPriorities]queue
	occupancy *bitmap.Bitmap // DS-4: bit i set iff queues[i] is non-empty

	current *proc.Thread
	idle    *proc.Thread

	// CurrentTick is a caller-supplied trace tag: percpu.CPU sets it
	// to the current tick count before calling Reschedule so dispatch
	// trace events carry the tick they happened on, without the
	// scheduler itself needing to know about the clock.
	CurrentTick uint64
}

// New returns a Scheduler with idle as the thread dispatched when no
// other thread is ready. idle must never reach ThreadExit.
func New(cpu iox.CPU, desc *gdt.Table, idle *proc.Thread) *Scheduler {
	return &Scheduler{
		cpu:       cpu,
		desc:      desc,
		occupancy: bitmap.New(NumPriorities),
		idle:      idle,
	}
}

// Current returns the thread currently dispatched on this CPU, or nil
// before the first Reschedule.
func (s *Scheduler) Current() *proc.Thread { return s.current }

// Insert places a READY thread at the tail of its priority queue.
// Panics if the thread is already queued, enforcing the
// at-most-one-queue invariant.
func (s *Scheduler) Insert(t *proc.Thread) {
	if t.Queued() {
		panic("sched: thread is already on a run queue")
	}
	if t.Priority < 0 || t.Priority >= NumPriorities {
		panic("sched: priority out of range")
	}
	s.queues[t.Priority].pushBack(t)
	s.occupancy.Set(uint32(t.Priority))
	t.SetQueued(true)
}

// pickNext selects the highest-priority (lowest-numbered) non-empty
// queue and pops its head, or returns the idle thread if every queue
// is empty.
func (s *Scheduler) pickNext() *proc.Thread {
	prio, ok := s.occupancy.FirstSet()
	if !ok {
		return s.idle
	}
	q := &s.queues[prio]
	t := q.popFront()
	if q.empty() {
		s.occupancy.Clear(prio)
	}
	t.SetQueued(false)
	return t
}

// runEntry invokes t's one-shot entry trampoline, recovering exactly
// proc.ExitSignal{Thread: t} as the expected unwind when the entry
// calls proc.ThreadExit. Any other panic is a genuine bug and
// propagates to the caller of Reschedule.
func runEntry(t *proc.Thread) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if sig, ok := r.(proc.ExitSignal); ok && sig.Thread == t {
			return
		}
		panic(r)
	}()
	t.Entry(t)
}

// Reschedule is the single choke-point: it re-enqueues a still-runnable
// outgoing thread, selects the next runnable thread (falling back to
// idle), performs the context switch (including the TSS esp0 update),
// and restores interrupts to prevIRQState.
//
// A newly created thread's first dispatch runs its entry function to
// completion synchronously on this call stack rather than truly
// resuming a suspended register state: a pure Go port cannot execute a
// real jmp into another stack, so a distinct first-run trampoline
// stands in for it, the same way the bare-metal Go runtime this core's
// goroutine model is drawn from hands a freshly created goroutine
// straight to its entry function instead of resuming a saved one. A
// thread that calls Reschedule itself before exiting (cooperative
// preemption) is re-enqueued and control returns to its caller; only a
// true interrupt-driven preemption mid-entry is out of reach without
// real hardware, and nothing here requires it.
func (s *Scheduler) Reschedule(prevIRQState bool) {
	s.cpu.IRQDisable()
	defer s.cpu.IRQRestore(prevIRQState)
	for {
		prev := s.current
		next := s.pickNext()

		if next == prev {
			break
		}

		if prev != nil && prev.State() == proc.Running {
			prev.SetState(proc.Ready)
			s.Insert(prev)
		}

		s.current = next
		next.SetState(proc.Running)
		s.desc.SetKernelStack(next.KStackTop)
		s.cpu.ContextSwitch(&next.Regs, regsOf(prev))

		if next != s.idle {
			klog.Trace(klog.TraceEvent{
				Tick:       s.CurrentTick,
				Kind:       klog.TraceDispatch,
				ThreadName: next.Name(),
				ThreadID:   next.ID(),
				Priority:   next.Priority,
			})
		}

		if next == s.idle {
			break
		}

		if !next.HasRun() {
			next.MarkRun()
			runEntry(next)
			continue
		}

		break
	}
}

func regsOf(t *proc.Thread) *iox.ArchRegs {
	if t == nil {
		return nil
	}
	return &t.Regs
}
