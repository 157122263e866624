// Package kerrors is the recoverable half of this kernel core's error
// taxonomy: allocation failure and not-found conditions that a caller
// translates into a return value instead of a panic. Panics
// (programmer errors, hardware faults) are rendered through
// internal/klog instead, since they never return to a caller.
package kerrors

import "github.com/pkg/errors"

// Sentinel causes. Callers compare with errors.Is; internal/mmu and
// internal/proc wrap these with the specifics of the failing call
// (errors.Wrapf) rather than returning the sentinel bare, so a log
// line naming the faulting address or thread still compares true
// against the sentinel.
var (
	// ErrOutOfMemory is returned by an allocator that has no frame,
	// page table, or object left to hand out.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrNotMapped is returned by mmu_unmap_page when the virtual
	// address has no present mapping; the call does not mutate state.
	ErrNotMapped = errors.New("virtual address not mapped")

	// ErrTimerActive names set_timer's already-active-timer condition.
	// timer.List.Set does not return it: it panics when the timer
	// passed in is already on a pending list.
	ErrTimerActive = errors.New("timer already active")

	// ErrBadThreadState is returned when a thread-lifecycle call's
	// precondition on t.State is violated (e.g. thread_run on a
	// non-CREATED thread, thread_release on a thread still queued).
	ErrBadThreadState = errors.New("thread is not in the required state")
)

// Wrap attaches msg as context to cause, preserving it for errors.Is.
func Wrap(cause error, msg string) error {
	return errors.Wrap(cause, msg)
}

// Wrapf is Wrap with Printf-style formatting.
func Wrapf(cause error, format string, args ...any) error {
	return errors.Wrapf(cause, format, args...)
}

// Cause unwraps err to the deepest wrapped error, mirroring the
// original implementation's single-level C error codes with Go's
// wrapped-error idiom.
func Cause(err error) error {
	return errors.Cause(err)
}
