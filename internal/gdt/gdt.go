// Package gdt builds the one flat GDT, the 256-entry IDT, and the
// single per-CPU TSS a protected-mode kernel needs to field interrupts
// and ring transitions, mirroring the classic struct gdt/struct
// idt/struct tss layouts and keeping a typed view of each
// hardware-packed structure alongside the raw bytes the CPU reads,
// the same pack/unpack style memory.go's PageFlags uses.
package gdt

import (
	"matrixkernel/internal/bitmap"
	"matrixkernel/internal/iox"
)

// Segment selectors into the flat GDT: null, kernel code/data, user
// code/data, one TSS selector.
const (
	SelNull = 0x00
	SelKCode = 0x08
	SelKData = 0x10
	SelUCode = 0x18 | 3 // RPL 3
	SelUData = 0x20 | 3
	SelTSS   = 0x28

	nrGDTEntries = 6
	nrIDTEntries = 256

	dplKernel = 0
	dplUser   = 3
)

// Access byte bit positions: present=7, DPL=6..5, S=4, type=3..0.
const (
	accPresent = 1 << 7
	accS       = 1 << 4
	typeCodeRX = 0xA // execute/read, non-conforming
	typeDataRW = 0x2 // read/write
	typeTSS32  = 0x9 // 32-bit TSS, available
)

func accessByte(dpl uint8, segType uint8, isTSS bool) uint8 {
	b := accPresent | (dpl << 5) | segType
	if !isTSS {
		b |= accS
	}
	return b
}

// Granularity byte bit positions: G=7, D/B=6, available=4,
// limit-high=3..0.
const (
	granG    = 1 << 7
	granDB32 = 1 << 6
)

// entry is the hardware-visible 8-byte GDT/LDT descriptor.
type entry struct {
	limitLow   uint16
	baseLow    uint16
	baseMiddle uint8
	access     uint8
	granularity uint8
	baseHigh   uint8
}

func flatEntry(dpl uint8, segType uint8) entry {
	// A flat 4 GiB segment: base 0, limit 0xFFFFF with 4 KiB
	// granularity, i.e. 0xFFFFF * 4KiB == 4GiB.
	return entry{
		limitLow:    0xFFFF,
		baseLow:     0,
		baseMiddle:  0,
		access:      accessByte(dpl, segType, false),
		granularity: granG | granDB32 | 0x0F,
		baseHigh:    0,
	}
}

func tssEntry(base uint32, limit uint32) entry {
	return entry{
		limitLow:    uint16(limit & 0xFFFF),
		baseLow:     uint16(base & 0xFFFF),
		baseMiddle:  uint8((base >> 16) & 0xFF),
		access:      accessByte(dplKernel, typeTSS32, true),
		granularity: uint8((limit>>16)&0x0F) | 0, // byte granularity for the TSS
		baseHigh:    uint8((base >> 24) & 0xFF),
	}
}

// gate is the hardware-visible 8-byte IDT interrupt-gate descriptor.
type gate struct {
	baseLow  uint16
	sel      uint16
	reserved uint8
	flags    uint8
	baseHigh uint16
}

const (
	gateFlagPresent = 1 << 7
	gateType32Intr  = 0x0E // 32-bit interrupt gate
)

func gateFlags(dpl uint8) uint8 {
	return gateFlagPresent | (dpl << 5) | gateType32Intr
}

func newGate(handler uint32, sel uint16, dpl uint8) gate {
	return gate{
		baseLow:  uint16(handler & 0xFFFF),
		sel:      sel,
		reserved: 0,
		flags:    gateFlags(dpl),
		baseHigh: uint16(handler >> 16),
	}
}

// TSS mirrors the hardware 32-bit task-state segment layout. Every
// field except ss0/esp0 stays zero: this core does no hardware task
// switching, it only uses the TSS to supply esp0 on a ring-3→ring-0
// transition.
type TSS struct {
	PrevTSS                        uint32
	ESP0                           uint32
	SS0                            uint32
	ESP1, SS1, ESP2, SS2           uint32
	CR3                            uint32
	EIP, EFLAGS                    uint32
	EAX, ECX, EDX, EBX             uint32
	ESP, EBP                       uint32
	ESI, EDI                       uint32
	ES, CS, SS, DS, FS, GS         uint32
	LDT                            uint32
	Trap, IOMapBase                uint16
}

// Table owns the GDT, IDT, and TSS for one CPU, plus the bookkeeping
// of which IDT vectors have been installed: a reused occupancy bitmap
// that catches a double-install of the same vector during boot.
type Table struct {
	entries [nrGDTEntries]entry
	gates   [nrIDTEntries]gate
	tss     TSS

	installed *bitmap.Bitmap
}

// HandlerFunc is the vector's raw ISR stub address, a uint32 because
// this table stores hardware-ready descriptors; higher layers (pic)
// supply the actual Go dispatch behind that address.
type HandlerFunc = uint32

// New builds the flat GDT (null, kernel/user code, kernel/user data,
// TSS) and a 256-entry IDT with every gate defaulted to DPL 0.
func New() *Table {
	t := &Table{installed: bitmap.New(nrIDTEntries)}
	t.entries[0] = entry{}
	t.entries[SelKCode/8] = flatEntry(dplKernel, typeCodeRX)
	t.entries[SelKData/8] = flatEntry(dplKernel, typeDataRW)
	t.entries[SelUCode/8] = flatEntry(dplUser, typeCodeRX)
	t.entries[SelUData/8] = flatEntry(dplUser, typeDataRW)
	t.entries[SelTSS/8] = tssEntry(0, uint32(tssSize()-1))
	t.tss.SS0 = SelKData
	return t
}

func tssSize() uintptr { return 104 } // packed size of the TSS struct above

// InstallGate installs handler at vector with the given DPL. Vectors
// 0-31 are traps/faults, 32-47 are IRQ stubs (DPL 0), 128 is the
// syscall gate (DPL 3). The gate gets the dpl the caller passes; a
// vector InstallGate is never called for stays an all-zero,
// not-present gate with DPL 0.
//
// Installing a vector that is already installed panics: double
// registration is undefined, and silently overwriting a gate would
// hide a boot-sequencing bug.
func (t *Table) InstallGate(vector int, handler uint32, dpl uint8, codeSel uint16) {
	if vector < 0 || vector >= nrIDTEntries {
		panic("gdt: IDT vector out of range")
	}
	if t.installed.Test(uint32(vector)) {
		panic("gdt: IDT vector already installed")
	}
	t.gates[vector] = newGate(handler, codeSel, dpl)
	t.installed.Set(uint32(vector))
}

// InstalledVectors reports how many of the 256 gates have been
// installed, for boot-sequence assertions.
func (t *Table) InstalledVectors() uint32 {
	count := uint32(0)
	for v := 0; v < nrIDTEntries; v++ {
		if t.installed.Test(uint32(v)) {
			count++
		}
	}
	return count
}

// SetKernelStack writes the TSS esp0 field, updated on every thread
// switch to point at the incoming thread's kernel-stack top.
func (t *Table) SetKernelStack(top uint32) {
	t.tss.ESP0 = top
}

// ESP0 returns the TSS's current esp0, for tests.
func (t *Table) ESP0() uint32 { return t.tss.ESP0 }

// Load installs the GDT and IDT on cpu and loads the task register
// with the TSS selector. Table's own storage is used as the backing
// memory the descriptor-table registers point at; on the Fake CPU
// this only records the call for assertions.
func (t *Table) Load(cpu iox.CPU) {
	gdtBase, gdtLimit := t.gdtBounds()
	cpu.LoadGDT(gdtBase, gdtLimit)

	idtBase, idtLimit := t.idtBounds()
	cpu.LoadIDT(idtBase, idtLimit)

	cpu.LoadTaskRegister(SelTSS)
}

func (t *Table) gdtBounds() (uint32, uint16) {
	return addrOf(&t.entries[0]), uint16(len(t.entries)*8 - 1)
}

func (t *Table) idtBounds() (uint32, uint16) {
	return addrOf(&t.gates[0]), uint16(len(t.gates)*8 - 1)
}
