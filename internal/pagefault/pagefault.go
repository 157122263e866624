// Package pagefault installs the vector-14 exception handler: the
// classic page_fault entry point and its struct intr_frame error-code
// layout.
package pagefault

import (
	"matrixkernel/internal/iox"
	"matrixkernel/internal/klog"
)

// Vector is the IDT vector page faults are delivered on.
const Vector = 14

const (
	errPresent = 1 << 0
	errWrite   = 1 << 1
	errUser    = 1 << 2
	errReserved = 1 << 3
)

// Frame is the saved exception frame the vector-14 gate hands the
// handler: the hardware error code pushed for this exception, plus
// the faulting EIP.
type Frame struct {
	ErrCode uint32
	EIP     uint32
}

// Fault decodes a page-fault error code into its four bits.
type Fault struct {
	Present  bool
	Write    bool
	User     bool
	Reserved bool
	Addr     uint32
	EIP      uint32
}

// Decode reads CR2 for the faulting address and decodes frame's error
// code bits 0..3 as present/write/user/reserved.
func Decode(cpu iox.CPU, frame *Frame) Fault {
	return Fault{
		Present:  frame.ErrCode&errPresent != 0,
		Write:    frame.ErrCode&errWrite != 0,
		User:     frame.ErrCode&errUser != 0,
		Reserved: frame.ErrCode&errReserved != 0,
		Addr:     cpu.ReadCR2(),
		EIP:      frame.EIP,
	}
}

// Handler is the installable vector-14 gate target. Current resolves
// the currently running process and thread so the diagnosis line
// carries their name/id in the kernel's one shared failure format; it
// is a func rather than a direct *proc.Process field so pagefault
// does not import proc.
type Handler struct {
	cpu     iox.CPU
	Current func() (proc klog.Identity, thread klog.Identity)
}

// New returns a Handler. current must never return nil identities;
// the kernel's idle thread and kernel_proc singleton exist exactly so
// there is always a valid identity to blame a fault on.
func New(cpu iox.CPU, current func() (klog.Identity, klog.Identity)) *Handler {
	return &Handler{cpu: cpu, Current: current}
}

// Handle diagnoses the fault and panics. A higher-level pager may be
// layered in later by replacing the vector-14 gate target entirely;
// this handler never returns.
func (h *Handler) Handle(frame *Frame) {
	fault := Decode(h.cpu, frame)
	proc, thread := h.Current()
	klog.Panicf(proc, thread,
		"page fault at 0x%08X (eip=0x%08X present=%t write=%t user=%t reserved=%t)",
		fault.Addr, fault.EIP, fault.Present, fault.Write, fault.User, fault.Reserved)
}
