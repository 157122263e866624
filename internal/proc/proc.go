// Package proc implements the process and thread objects that carry
// the kernel's execution state, built around a
// thread_create/thread_run/thread_exit/thread_release state machine
// and an owner-indexed thread list per process.
package proc

import (
	"sync/atomic"

	"matrixkernel/internal/iox"
	"matrixkernel/internal/kerrors"
	"matrixkernel/internal/mmu"
)

// State is a thread's position in its lifecycle:
// CREATED -> READY -> RUNNING -> {READY, SLEEPING, DEAD}; SLEEPING ->
// READY; DEAD is terminal.
type State int

const (
	Created State = iota
	Ready
	Running
	Sleeping
	Dead
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Sleeping:
		return "SLEEPING"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// DefaultPriority is the priority thread_create assigns when the
// caller does not override it.
const DefaultPriority = 16

var (
	nextProcessID uint32
	nextThreadID  uint32
)

// Process is the process record: an id, name, owning MMU context,
// attached threads, and a parent reference. kernel_proc is
// the distinguished Process with Ctx == nil: its threads run only in
// kernel mode and never switch the MMU context away from the kernel
// context (internal/mmu.Context.IsKernel reports that context). id and
// name back the Name()/ID() methods that satisfy klog.Identity.
type Process struct {
	id      uint32
	name    string
	Ctx     *mmu.Context
	Parent  *Process
	Threads []*Thread
}

// NewKernelProc returns the special kernel_proc: Ctx is nil, since it
// has no user address space. internal/sched does not read Ctx and does
// not switch MMU contexts on dispatch, for this or any other process.
func NewKernelProc() *Process {
	return &Process{
		id:   atomic.AddUint32(&nextProcessID, 1),
		name: "kernel",
	}
}

// NewProcess creates a user process owning ctx, parented under
// parent. ctx must not be the kernel context.
func NewProcess(name string, ctx *mmu.Context, parent *Process) *Process {
	if ctx != nil && ctx.IsKernel() {
		panic("proc: a user process cannot own the kernel MMU context")
	}
	return &Process{
		id:     atomic.AddUint32(&nextProcessID, 1),
		name:   name,
		Ctx:    ctx,
		Parent: parent,
	}
}

// Name satisfies klog.Identity.
func (p *Process) Name() string { return p.name }

// ID satisfies klog.Identity.
func (p *Process) ID() uint32 { return p.id }

func (p *Process) attach(t *Thread) {
	t.Owner = p
	p.Threads = append(p.Threads, t)
}

func (p *Process) detach(t *Thread) {
	for i, th := range p.Threads {
		if th == t {
			p.Threads = append(p.Threads[:i], p.Threads[i+1:]...)
			return
		}
	}
}

// EntryFunc is a thread's body. It runs to completion (or calls
// ThreadExit itself, which never returns) on top of the thread's
// kernel stack.
type EntryFunc func(t *Thread)

// Thread is the thread record. Regs is the architecture register
// save slot a context switch reads and writes; queued tracks the
// "on at most one queue" invariant so internal/sched can assert it
// cheaply. id and name back the Name()/ID() methods that satisfy
// klog.Identity.
type Thread struct {
	id    uint32
	name  string
	Owner *Process
	state State

	Flags    uint32
	Priority int

	KStackTop uint32
	kstack    []byte

	UserStackBase uint32
	UserStackSize uint32

	Entry EntryFunc
	Arg   any

	Regs iox.ArchRegs

	hasRun bool
	queued bool

	refCount int32
	onExit   []func(*Thread)
}

// KStackSize is the fixed per-thread kernel stack size.
const KStackSize = 16384

// CreateThread allocates a thread object and its kernel stack,
// attaches it to owner (kernel_proc if owner is nil), assigns a
// monotonically increasing id, and leaves it in state CREATED. It
// returns (*Thread, error) with nil error meaning success, rather
// than an inverted -1-on-success return convention.
func CreateThread(owner *Process, kernelProc *Process, name string, entry EntryFunc, arg any) (*Thread, error) {
	if owner == nil {
		owner = kernelProc
	}
	stack := make([]byte, KStackSize)
	t := &Thread{
		id:        atomic.AddUint32(&nextThreadID, 1),
		name:      name,
		state:     Created,
		Priority:  DefaultPriority,
		kstack:    stack,
		KStackTop: uint32(len(stack)),
		Entry:     entry,
		Arg:       arg,
	}
	owner.attach(t)
	return t, nil
}

// Name satisfies klog.Identity.
func (t *Thread) Name() string { return t.name }

// ID satisfies klog.Identity.
func (t *Thread) ID() uint32 { return t.id }

// State returns the thread's current lifecycle state.
func (t *Thread) State() State { return t.state }

// HasRun reports whether the scheduler has dispatched this thread at
// least once (used to select the one-shot entry trampoline vs. a
// resumed context switch).
func (t *Thread) HasRun() bool { return t.hasRun }

// MarkRun records that the thread's entry trampoline has fired.
func (t *Thread) MarkRun() { t.hasRun = true }

// Queued reports whether the thread is currently linked into a
// scheduler run queue, enforcing the at-most-one-queue invariant
// from the caller side.
func (t *Thread) Queued() bool { return t.queued }

// SetQueued is called by internal/sched when inserting or removing
// the thread from a run queue.
func (t *Thread) SetQueued(q bool) { t.queued = q }

// Retain increments the reference count, held by a waiter across a
// context switch.
func (t *Thread) Retain() { atomic.AddInt32(&t.refCount, 1) }

// Release decrements the reference count.
func (t *Thread) Release() { atomic.AddInt32(&t.refCount, -1) }

// RefCount returns the current reference count.
func (t *Thread) RefCount() int32 { return atomic.LoadInt32(&t.refCount) }

// OnExit registers a death notifier, run in registration order when
// the thread reaches ThreadExit.
func (t *Thread) OnExit(fn func(*Thread)) {
	t.onExit = append(t.onExit, fn)
}

// ThreadRun asserts state CREATED, transitions to READY, and returns
// the thread ready for the scheduler to insert. It does not itself
// touch any run queue. The caller (internal/sched.Insert) does
// that, keeping queue membership the scheduler's sole responsibility.
func ThreadRun(t *Thread) error {
	if t.state != Created {
		return kerrors.Wrapf(kerrors.ErrBadThreadState, "thread_run: thread %d is %s, not CREATED", t.id, t.state)
	}
	t.state = Ready
	return nil
}

// ExitSignal is the sentinel panic value ThreadExit raises. A
// scheduler trampoline recovers exactly this type to distinguish the
// expected "thread terminated" unwind from a genuine bug; any other
// panic value propagates. A thread entry function must never return;
// a bare `panic` is the one Go construct that structurally cannot
// fall through to its caller.
type ExitSignal struct {
	Thread *Thread
}

// ThreadExit runs the death notifier chain, marks the thread DEAD,
// and panics with ExitSignal so control can never flow back into the
// entry function that called it. The caller's scheduler trampoline
// is responsible for recovering ExitSignal and continuing dispatch.
func ThreadExit(t *Thread) {
	for _, fn := range t.onExit {
		fn(t)
	}
	t.state = Dead
	panic(ExitSignal{Thread: t})
}

// SetState is used by internal/sched to drive CREATED->READY->RUNNING
// and the preemption/sleep transitions; ThreadExit is the only
// transition into DEAD.
func (t *Thread) SetState(s State) { t.state = s }

// ThreadRelease requires state CREATED or DEAD and an unqueued thread,
// detaches it from its owner, frees the kernel stack, and clears its
// death notifiers.
func ThreadRelease(t *Thread) error {
	if t.state != Created && t.state != Dead {
		return kerrors.Wrapf(kerrors.ErrBadThreadState, "thread_release: thread %d is %s", t.id, t.state)
	}
	if t.RefCount() != 0 {
		return kerrors.Wrapf(kerrors.ErrBadThreadState, "thread_release: thread %d still has %d references", t.id, t.RefCount())
	}
	if t.queued {
		return kerrors.Wrapf(kerrors.ErrBadThreadState, "thread_release: thread %d is still queued", t.id)
	}
	if t.Owner != nil {
		t.Owner.detach(t)
	}
	t.kstack = nil
	t.onExit = nil
	return nil
}
