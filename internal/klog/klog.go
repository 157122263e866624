// Package klog is the kernel's kprintf-like sink. It renders
// diagnostic lines and panics in one shared format: process name/id,
// thread name/id, a classification string, and whatever addresses are
// relevant, and can additionally emit a JSON trace stream for offline
// replay.
package klog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"
)

// logger is the process-wide sink, matching a bare-metal kernel's
// single uartPuts/print convention: one destination, swapped wholesale
// for tests instead of threaded through every call site.
var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
	With().Timestamp().Logger()

// SetOutput redirects the logger, e.g. to a bytes.Buffer under test or
// to the real UART writer the boot loader wires in.
func SetOutput(w io.Writer) {
	logger = zerolog.New(w).With().Timestamp().Logger()
}

// Infof logs an informational line (acknowledged device interrupts,
// boot milestones).
func Infof(format string, args ...any) {
	logger.Info().Msgf(format, args...)
}

// Warnf logs a recoverable anomaly (a dropped IRQ hook chain, a lost
// tick).
func Warnf(format string, args ...any) {
	logger.Warn().Msgf(format, args...)
}

// Identity is the process/thread pair every panic line prefixes,
// satisfied by *proc.Process and *proc.Thread without klog importing
// proc.
type Identity interface {
	Name() string
	ID() uint32
}

// TraceEvent is one line of the boot/tick trace cmd/kernelctl replays
// offline: a dispatch, a timer firing, or a boot milestone, tagged
// with the tick it happened on.
type TraceEvent struct {
	Tick       uint64 `json:"tick"`
	Kind       string `json:"kind"`
	ThreadName string `json:"thread,omitempty"`
	ThreadID   uint32 `json:"thread_id,omitempty"`
	Priority   int    `json:"priority,omitempty"`
	TimerName  string `json:"timer,omitempty"`
	Reschedule bool   `json:"reschedule,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Trace event kinds.
const (
	TraceBoot     = "boot"
	TraceDispatch = "dispatch"
	TraceTimer    = "timer_fire"
)

var traceEnc *json.Encoder

// EnableTrace starts emitting one JSON TraceEvent per line to w. Trace
// calls are no-ops until this is called: a single process-wide sink
// that tests and the boot path both redirect rather than threading a
// writer through every call site.
func EnableTrace(w io.Writer) {
	traceEnc = json.NewEncoder(w)
}

// Trace emits ev if trace mode is enabled. Encoding errors are
// swallowed: a dropped trace line must never turn into a kernel panic.
func Trace(ev TraceEvent) {
	if traceEnc == nil {
		return
	}
	_ = traceEnc.Encode(ev)
}

// Panicf logs an error line carrying the process and thread name/id,
// then panics with "process(name:id) thread(name:id) <reason>".
// reason is produced by fmt-style formatting of format/args. The
// page-fault handler and cmd/kernel's boot checks render through it;
// the precondition checks in mmu, sched, gdt, pic, timer and bitmap
// call panic with a plain message that carries no process or thread.
func Panicf(proc, thread Identity, format string, args ...any) {
	event := logger.Error().
		Str("process", proc.Name()).Uint32("process_id", proc.ID()).
		Str("thread", thread.Name()).Uint32("thread_id", thread.ID())
	event.Msgf(format, args...)
	panic(panicMsgf(proc, thread, format, args...))
}

func panicMsgf(proc, thread Identity, format string, args ...any) string {
	prefix := "process(" + proc.Name() + ":" + strconv.Itoa(int(proc.ID())) + ") " +
		"thread(" + thread.Name() + ":" + strconv.Itoa(int(thread.ID())) + ") "
	return prefix + fmt.Sprintf(format, args...)
}
