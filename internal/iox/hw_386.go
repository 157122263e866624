//go:build 386

package iox

// Hardware is the real x86 implementation of Bus and CPU. Every method
// here is a thin wrapper over an assembly primitive defined in
// asm_386.s, declared bodyless the way a cross-built kernel declares
// its platform-only register accessors with no Go body and implements
// them in a sibling assembly file; the 386-only build tag plays the
// role a "qemuvirt && aarch64" tag would on a different target.
type Hardware struct{}

// defined in asm_386.s
func out8(port uint16, v uint8)
func in8(port uint16) uint8
func in16(port uint16) uint16
func rdtsc() uint64
func readCR2() uint32
func loadCR3(pdbr uint32)
func enablePagingBit()
func pagingBitSet() bool
func irqDisableAsm() bool
func irqRestoreAsm(prevEnabled bool)
func invlpg(va uint32)
func lgdt(ptr uintptr)
func lidt(ptr uintptr)
func ltr(selector uint16)
func contextSwitchAsm(next *ArchRegs, prevSave *ArchRegs)

func (Hardware) Out8(port uint16, v uint8) { out8(port, v) }
func (Hardware) In8(port uint16) uint8     { return in8(port) }
func (Hardware) In16(port uint16) uint16   { return in16(port) }

func (Hardware) ReadTSC() uint64 { return rdtsc() }

func (Hardware) ReadCR2() uint32 { return readCR2() }

func (Hardware) LoadCR3(pdbr uint32) { loadCR3(pdbr) }

func (Hardware) EnablePaging() { enablePagingBit() }

func (Hardware) PagingEnabled() bool { return pagingBitSet() }

func (Hardware) IRQDisable() bool { return irqDisableAsm() }

func (Hardware) IRQRestore(prevEnabled bool) { irqRestoreAsm(prevEnabled) }

func (Hardware) InvalidatePage(va uint32) { invlpg(va) }

// gdtr/idtr mirror the packed {limit uint16; base uint32} pointer
// format lgdt/lidt expect: limit, then the base's low and high halves,
// six bytes with no padding.
type descriptorPtr [3]uint16

func (Hardware) LoadGDT(base uint32, limit uint16) {
	ptr := descriptorPtr{limit, uint16(base), uint16(base >> 16)}
	lgdt(uintptr(ptrOf(&ptr)))
}

func (Hardware) LoadIDT(base uint32, limit uint16) {
	ptr := descriptorPtr{limit, uint16(base), uint16(base >> 16)}
	lidt(uintptr(ptrOf(&ptr)))
}

func (Hardware) LoadTaskRegister(selector uint16) { ltr(selector) }

func (Hardware) SetKernelStack(top uint32) {
	// The TSS object itself lives in package gdt; iox only exposes the
	// register-level primitive. gdt.SetKernelStack writes the esp0
	// field directly and does not route through here on the hardware
	// build. This method exists so Hardware satisfies CPU uniformly
	// with Fake, which does record it.
}

func (Hardware) ContextSwitch(next *ArchRegs, prevSave *ArchRegs) {
	contextSwitchAsm(next, prevSave)
}
