// Package iox is the seam between the bit-exact hardware contract
// (port I/O, control registers, descriptor-table loads) and the
// portable kernel core above it. Every package outside iox is written
// against Bus and CPU, never against the concrete hardware type, so
// the core runs its invariant tests on any host.
package iox

// ArchRegs holds the subset of the x86 register file a context switch
// saves and restores: eip, esp, ebp. Field order matches the
// save/restore sequence a switch performs: save eip/esp/ebp of the
// outgoing thread, load esp/ebp and jump to eip of the incoming one.
type ArchRegs struct {
	EIP uint32
	ESP uint32
	EBP uint32
}

// Bus is byte/word port I/O: outportb/inportb/inportw.
type Bus interface {
	Out8(port uint16, v uint8)
	In8(port uint16) uint8
	In16(port uint16) uint16
}

// CPU is every other low-level primitive this kernel core needs: the
// timestamp counter, CR2/CR3/CR0, interrupt gating, TLB invalidation,
// and descriptor-table/task-register loads.
type CPU interface {
	// ReadTSC returns the raw timestamp counter (rdtsc).
	ReadTSC() uint64

	// ReadCR2 returns the faulting address recorded by the last page fault.
	ReadCR2() uint32

	// LoadCR3 installs pdbr as the active page-directory base register.
	LoadCR3(pdbr uint32)

	// EnablePaging sets CR0.PG (bit 31).
	EnablePaging()

	// PagingEnabled reports whether CR0.PG is set.
	PagingEnabled() bool

	// IRQDisable masks interrupts and returns whether they were
	// previously enabled, so the caller can restore without knowing
	// the prior state.
	IRQDisable() bool

	// IRQRestore restores interrupts to the state IRQDisable reported.
	// It must not unconditionally enable interrupts.
	IRQRestore(prevEnabled bool)

	// InvalidatePage issues invlpg for the given virtual address.
	InvalidatePage(va uint32)

	// LoadGDT loads the GDTR with (base, limit).
	LoadGDT(base uint32, limit uint16)

	// LoadIDT loads the IDTR with (base, limit).
	LoadIDT(base uint32, limit uint16)

	// LoadTaskRegister executes ltr with the given selector.
	LoadTaskRegister(selector uint16)

	// SetKernelStack writes the TSS esp0 field (set_kernel_stack).
	SetKernelStack(top uint32)

	// ContextSwitch saves the caller's eip/esp/ebp into prevSave (if
	// non-nil) and switches to next's eip/esp/ebp. It returns only
	// once this goroutine is the one resumed, i.e. after some future
	// ContextSwitch targets prevSave. On a freshly created thread's
	// first dispatch next.EIP is the thread's entry trampoline.
	ContextSwitch(next *ArchRegs, prevSave *ArchRegs)
}
