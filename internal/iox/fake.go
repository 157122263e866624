package iox

// Fake is a software Bus+CPU used by tests. It records every port write and register
// mutation so invariant tests can assert on them without ring-0
// hardware, playing the same role a QEMU-backed build tag plays for
// the real asm-backed implementation.
type Fake struct {
	// Out8Log records every byte written, in order.
	Out8Log []PortWrite

	// ports holds the last byte written to each port, for In8/In16.
	ports map[uint16]uint32

	tsc           uint64
	cr2           uint32
	cr3           uint32
	pagingEnabled bool
	irqEnabled    bool

	// InvalidatedPages counts InvalidatePage calls per virtual address.
	InvalidatedPages map[uint32]int

	gdtBase, idtBase   uint32
	gdtLimit, idtLimit uint16
	tssSelector        uint16
	kernelStackTop     uint32

	// switches records every ContextSwitch target, most recent last.
	switches []ArchRegs
}

// PortWrite is one recorded Out8 call.
type PortWrite struct {
	Port  uint16
	Value uint8
}

// NewFake returns a Fake with interrupts enabled and paging disabled,
// matching the state of a real CPU immediately after the bootstrap
// assembly hands control to Go code but before init_mmu runs.
func NewFake() *Fake {
	return &Fake{
		ports:            make(map[uint16]uint32),
		InvalidatedPages: make(map[uint32]int),
		irqEnabled:       true,
	}
}

func (f *Fake) Out8(port uint16, v uint8) {
	f.Out8Log = append(f.Out8Log, PortWrite{Port: port, Value: v})
	f.ports[port] = uint32(v)
}

func (f *Fake) In8(port uint16) uint8 { return uint8(f.ports[port]) }

func (f *Fake) In16(port uint16) uint16 { return uint16(f.ports[port]) }

// SetTSC lets a test pin the timestamp counter to a known value so
// sys_time() arithmetic is deterministic.
func (f *Fake) SetTSC(v uint64) { f.tsc = v }

// AdvanceTSC moves the timestamp counter forward by delta cycles.
func (f *Fake) AdvanceTSC(delta uint64) { f.tsc += delta }

func (f *Fake) ReadTSC() uint64 { return f.tsc }

// SetCR2 lets a test stage a faulting address before driving the
// page-fault handler.
func (f *Fake) SetCR2(addr uint32) { f.cr2 = addr }

func (f *Fake) ReadCR2() uint32 { return f.cr2 }

func (f *Fake) LoadCR3(pdbr uint32) { f.cr3 = pdbr }

// CR3 returns the last value loaded via LoadCR3, for assertions.
func (f *Fake) CR3() uint32 { return f.cr3 }

func (f *Fake) EnablePaging() { f.pagingEnabled = true }

func (f *Fake) PagingEnabled() bool { return f.pagingEnabled }

func (f *Fake) IRQDisable() bool {
	prev := f.irqEnabled
	f.irqEnabled = false
	return prev
}

func (f *Fake) IRQRestore(prevEnabled bool) {
	if prevEnabled {
		f.irqEnabled = true
	}
}

// IRQEnabled reports the current gating state, for assertions.
func (f *Fake) IRQEnabled() bool { return f.irqEnabled }

func (f *Fake) InvalidatePage(va uint32) { f.InvalidatedPages[va]++ }

func (f *Fake) LoadGDT(base uint32, limit uint16) { f.gdtBase, f.gdtLimit = base, limit }

func (f *Fake) LoadIDT(base uint32, limit uint16) { f.idtBase, f.idtLimit = base, limit }

func (f *Fake) LoadTaskRegister(selector uint16) { f.tssSelector = selector }

// TSSSelector returns the last selector passed to LoadTaskRegister.
func (f *Fake) TSSSelector() uint16 { return f.tssSelector }

// GDTBounds returns the last (base, limit) passed to LoadGDT.
func (f *Fake) GDTBounds() (uint32, uint16) { return f.gdtBase, f.gdtLimit }

// IDTBounds returns the last (base, limit) passed to LoadIDT.
func (f *Fake) IDTBounds() (uint32, uint16) { return f.idtBase, f.idtLimit }

func (f *Fake) SetKernelStack(top uint32) { f.kernelStackTop = top }

// KernelStackTop returns the last value passed to SetKernelStack.
func (f *Fake) KernelStackTop() uint32 { return f.kernelStackTop }

// ContextSwitch on the Fake does not actually transfer control (there
// is no real stack to jump to on the host running the test); it zeroes
// prevSave (if non-nil) and records the switch so scheduler tests can
// assert the sequence of
// dispatched threads. Callers driving scheduler tests invoke the
// target's entry function directly instead of relying on a real jump.
func (f *Fake) ContextSwitch(next *ArchRegs, prevSave *ArchRegs) {
	if prevSave != nil {
		*prevSave = ArchRegs{}
	}
	f.switches = append(f.switches, *next)
}

// Switches returns every ArchRegs passed to ContextSwitch, in order.
func (f *Fake) Switches() []ArchRegs { return f.switches }
