//go:build 386

package gdt

// OnTrap is called by the shared assembly entry stub for every vector
// wired through PageFaultEntry or TimerIRQEntry, with the vector
// number, the hardware error code (0 for vectors that push none), and
// the faulting/interrupted EIP. cmd/kernel sets this once, before it
// installs the two gates, to the function that routes into
// internal/pagefault or internal/pic.
var OnTrap func(vector, errCode, eip uint32)

//go:nosplit
func trapTrampoline(vector, errCode, eip uint32) {
	if OnTrap != nil {
		OnTrap(vector, errCode, eip)
	}
}

// defined in isr_386.s
func isr14Addr() uint32
func isr32Addr() uint32

// PageFaultEntry returns the raw address InstallGate should wire to
// vector 14: a stub that pushes the vector number on top of the
// error code the CPU already pushed, saves the caller-visible registers, calls
// trapTrampoline, restores them, and IRETs.
func PageFaultEntry() uint32 { return isr14Addr() }

// TimerIRQEntry returns the raw address InstallGate should wire to
// VectorBase+0 (IRQ 0, the PIT tick): the same stub shape as
// PageFaultEntry, but vector 32 carries no hardware error code so the
// stub pushes a synthetic zero to keep the frame layout uniform.
func TimerIRQEntry() uint32 { return isr32Addr() }
