package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrixkernel/internal/gdt"
	"matrixkernel/internal/iox"
	"matrixkernel/internal/proc"
)

func newScheduler(t *testing.T) (*Scheduler, *proc.Process, *proc.Thread) {
	t.Helper()
	cpu := iox.NewFake()
	desc := gdt.New()
	kp := proc.NewKernelProc()
	idle, err := proc.CreateThread(kp, kp, "idle", func(*proc.Thread) {}, nil)
	require.NoError(t, err)
	idle.Priority = NumPriorities - 1
	require.NoError(t, proc.ThreadRun(idle))

	s := New(cpu, desc, idle)
	return s, kp, idle
}

// TestThreadDispatchScenario matches the end-to-end dispatch scenario:
// create kernel_proc and a thread whose entry sets a shared word then
// exits; after thread_run + one Reschedule, the word is set and the
// thread is DEAD.
func TestThreadDispatchScenario(t *testing.T) {
	s, kp, _ := newScheduler(t)

	var shared uint32
	th, err := proc.CreateThread(kp, kp, "worker", func(self *proc.Thread) {
		shared = 0xC0FFEE
		proc.ThreadExit(self)
	}, nil)
	require.NoError(t, err)
	require.NoError(t, proc.ThreadRun(th))
	s.Insert(th)

	s.Reschedule(false)

	assert.Equal(t, uint32(0xC0FFEE), shared)
	assert.Equal(t, proc.Dead, th.State())
}

func TestInsertRejectsDoubleQueue(t *testing.T) {
	s, kp, _ := newScheduler(t)
	th, _ := proc.CreateThread(kp, kp, "w", func(*proc.Thread) {}, nil)
	require.NoError(t, proc.ThreadRun(th))
	s.Insert(th)
	assert.Panics(t, func() { s.Insert(th) })
}

// TestHigherPriorityDispatchedFirst: since none of these threads ever
// yields back voluntarily, one Reschedule call drains every ready
// thread down to idle, each running to completion in priority order:
// the same observable order a real dispatch-then-thread_exit chain
// produces, collapsed onto one Go call stack.
func TestHigherPriorityDispatchedFirst(t *testing.T) {
	s, kp, _ := newScheduler(t)

	var order []string
	mk := func(name string, prio int) *proc.Thread {
		th, _ := proc.CreateThread(kp, kp, name, func(self *proc.Thread) {
			order = append(order, self.Name())
			proc.ThreadExit(self)
		}, nil)
		th.Priority = prio
		require.NoError(t, proc.ThreadRun(th))
		s.Insert(th)
		return th
	}
	mk("low", 20)
	mk("high", 5)
	mk("mid", 10)

	s.Reschedule(false)
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestFIFOWithinSamePriority(t *testing.T) {
	s, kp, _ := newScheduler(t)
	var order []string
	mk := func(name string) *proc.Thread {
		th, _ := proc.CreateThread(kp, kp, name, func(self *proc.Thread) {
			order = append(order, self.Name())
			proc.ThreadExit(self)
		}, nil)
		require.NoError(t, proc.ThreadRun(th))
		s.Insert(th)
		return th
	}
	mk("a")
	mk("b")
	mk("c")

	s.Reschedule(false)

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRescheduleIdempotentWhenNothingReady(t *testing.T) {
	s, _, idle := newScheduler(t)
	s.Reschedule(false)
	assert.Same(t, idle, s.Current())

	s.Reschedule(false) // no-op: idle is already current
	assert.Same(t, idle, s.Current())
}

func TestDeadThreadNeverReenqueued(t *testing.T) {
	s, kp, _ := newScheduler(t)
	th, _ := proc.CreateThread(kp, kp, "w", func(self *proc.Thread) {
		proc.ThreadExit(self)
	}, nil)
	require.NoError(t, proc.ThreadRun(th))
	s.Insert(th)

	s.Reschedule(false)
	assert.False(t, th.Queued())
	assert.Equal(t, proc.Dead, th.State())
}

func TestUnrecognizedPanicPropagates(t *testing.T) {
	s, kp, _ := newScheduler(t)
	th, _ := proc.CreateThread(kp, kp, "bad", func(*proc.Thread) {
		panic("genuine bug")
	}, nil)
	require.NoError(t, proc.ThreadRun(th))
	s.Insert(th)

	assert.PanicsWithValue(t, "genuine bug", func() { s.Reschedule(false) })
}

func TestCurrentNilBeforeFirstReschedule(t *testing.T) {
	s, _, _ := newScheduler(t)
	assert.Nil(t, s.Current())
}
