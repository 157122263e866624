// Package mmu implements the paging-based virtual memory subsystem:
// page directory duality (hardware pde words alongside owning *table
// references), lazy page-table allocation on first touch, page
// map/unmap, context switch, and a copy-context operation that shares
// the kernel's tables by reference and deep-clones everything else.
package mmu

import (
	"matrixkernel/internal/iox"
	"matrixkernel/internal/kerrors"
)

const dirEntries = 1024

// dirInstallFlags are the flags installed on a freshly allocated page
// table's directory entry: PRESENT | RW | USER.
const dirInstallFlags = 0x7

// directory is the page directory: two parallel 1024-entry arrays,
// the hardware pde words and the owning *table references used for
// traversal and for the copy-context kernel-sharing test.
type directory struct {
	pde    [dirEntries]uint32
	tables [dirEntries]*table
	frame  uint32 // the frame this directory itself occupies
}

// Context is one MMU context: a page directory plus its cached
// physical base register value. Invariant: Pdbr is always a multiple
// of PageSize.
type Context struct {
	dir      *directory
	pdbr     uint32
	isKernel bool
}

// MMU owns the frame allocator and CPU primitives every Context is
// built and mutated through; it is the entry point for every mmu
// operation, and the sole place a kernel Context is created (it must
// never be created twice for the kernel singleton).
type MMU struct {
	frames *FrameAllocator
	cpu    iox.CPU
	kernel *Context
	current *Context
}

// New returns an MMU with no kernel context yet; call InitKernelCtx
// once during boot before creating any other context.
func New(frames *FrameAllocator, cpu iox.CPU) *MMU {
	return &MMU{frames: frames, cpu: cpu}
}

func (m *MMU) newContext(isKernel bool) (*Context, error) {
	dirFrame, err := m.frames.Alloc()
	if err != nil {
		return nil, kerrors.Wrap(err, "mmu: allocate page directory")
	}
	ctx := &Context{
		dir:      &directory{frame: dirFrame},
		pdbr:     Addr(dirFrame),
		isKernel: isKernel,
	}
	if ctx.pdbr%PageSize != 0 {
		panic("mmu: page directory base register is not page aligned")
	}
	return ctx, nil
}

// InitKernelCtx creates the singleton kernel MMU context. It must be
// called exactly once.
func (m *MMU) InitKernelCtx() (*Context, error) {
	if m.kernel != nil {
		panic("mmu: kernel context already initialized")
	}
	ctx, err := m.newContext(true)
	if err != nil {
		return nil, err
	}
	m.kernel = ctx
	return ctx, nil
}

// KernelCtx returns the kernel singleton context.
func (m *MMU) KernelCtx() *Context { return m.kernel }

// CreateCtx allocates and zeroes a new non-kernel address space.
func (m *MMU) CreateCtx() (*Context, error) {
	return m.newContext(false)
}

// DestroyCtx frees a context's top-level allocations. It must not be
// called on the kernel context. Frames reachable from owned
// (non-shared) page tables must already be freed by higher-level
// policy: this only frees the directory itself and panics if ctx
// still owns tables that were never released, since silently leaking
// them would hide a caller bug.
func (m *MMU) DestroyCtx(ctx *Context) {
	if ctx == m.kernel {
		panic("mmu: destroying the kernel context is forbidden")
	}
	for i := 0; i < dirEntries; i++ {
		if ctx.dir.tables[i] != nil && ctx.dir.tables[i] != m.kernel.dir.tables[i] {
			panic("mmu: DestroyCtx called with owned page tables still present; caller must free them first")
		}
	}
	m.frames.Free(ctx.dir.frame)
}

// Pdbr returns the context's physical base register value.
func (ctx *Context) Pdbr() uint32 { return ctx.pdbr }

// IsKernel reports whether ctx is the kernel singleton.
func (ctx *Context) IsKernel() bool { return ctx.isKernel }

// GetPage computes the directory/table index pair for va and returns
// a reference to its PTE. If no page table exists at that directory
// slot: make=false returns (nil, false); make=true allocates and
// zeroes a new page table, installs it with PRESENT|RW|USER, and
// returns the new entry.
func (m *MMU) GetPage(ctx *Context, va uint32, make_ bool) (*PTE, bool) {
	dirIdx := (va / PageSize) / 1024
	tblIdx := (va / PageSize) % 1024

	tbl := ctx.dir.tables[dirIdx]
	if tbl == nil {
		if !make_ {
			return nil, false
		}
		frame, err := m.frames.Alloc()
		if err != nil {
			panic("mmu: out of memory allocating a page table")
		}
		tbl = &table{frame: frame}
		ctx.dir.tables[dirIdx] = tbl
		ctx.dir.pde[dirIdx] = Addr(frame) | dirInstallFlags
	}
	return &tbl.entries[tblIdx], true
}

// MapPage installs a present mapping for va -> pa. execute is
// accepted but ignored: 32-bit classic paging has no no-execute bit
// to set. Panics if va is already mapped.
func (m *MMU) MapPage(ctx *Context, va, pa uint32, write, execute bool) {
	pte, _ := m.GetPage(ctx, va, true)
	if pte.Present {
		panic("mmu: virtual address already mapped")
	}
	pte.Present = true
	pte.RW = write
	pte.User = !ctx.isKernel
	pte.Frame = FrameOf(pa)
}

// UnmapPage clears a present mapping and reports its physical
// address, or returns an error wrapping kerrors.ErrNotMapped without
// mutating state if va has no present mapping. On success it invalidates the TLB entry
// for va unconditionally.
func (m *MMU) UnmapPage(ctx *Context, va uint32) (uint32, error) {
	dirIdx := (va / PageSize) / 1024
	tblIdx := (va / PageSize) % 1024

	tbl := ctx.dir.tables[dirIdx]
	if tbl == nil || !tbl.entries[tblIdx].Present {
		return 0, kerrors.Wrapf(kerrors.ErrNotMapped, "mmu: unmap 0x%08X", va)
	}
	pa := Addr(tbl.entries[tblIdx].Frame)
	tbl.entries[tblIdx] = PTE{}
	m.cpu.InvalidatePage(va)
	return pa, nil
}

// SwitchCtx is a no-op if ctx is nil or already current: kernel
// threads keep whatever context was current, since the kernel
// mapping is identical in every context. Otherwise it disables
// interrupts, installs ctx as current, loads CR3, and asserts paging
// is enabled.
func (m *MMU) SwitchCtx(ctx *Context) {
	if ctx == nil || ctx == m.current {
		return
	}
	if ctx.pdbr%PageSize != 0 {
		panic("mmu: page directory base register is not page aligned")
	}

	state := m.cpu.IRQDisable()
	m.current = ctx
	m.cpu.LoadCR3(ctx.pdbr)
	m.cpu.EnablePaging()
	if !m.cpu.PagingEnabled() {
		panic("mmu: paging not enabled after switch")
	}
	m.cpu.IRQRestore(state)
}

// Current returns the currently installed context, or nil before the
// first SwitchCtx.
func (m *MMU) Current() *Context { return m.current }

func clonePTable(fa *FrameAllocator, src *table) *table {
	frame, err := fa.Alloc()
	if err != nil {
		panic("mmu: out of memory cloning a page table")
	}
	dst := &table{frame: frame}
	for i := range src.entries {
		s := src.entries[i]
		if !s.Present {
			continue
		}
		newFrame, err := fa.Alloc()
		if err != nil {
			panic("mmu: out of memory cloning a page frame")
		}
		dst.entries[i] = PTE{
			Present:  s.Present,
			RW:       s.RW,
			User:     s.User,
			Accessed: s.Accessed,
			Dirty:    s.Dirty,
			Frame:    newFrame,
		}
		fa.CopyPhysical(newFrame, s.Frame)
	}
	return dst
}

// CopyCtx walks every directory slot of src into dst. Slots that
// alias the kernel context's table are shared by reference in dst
// too; every other present slot is deep-cloned, frame by frame, via
// CopyPhysical. Used to implement process fork's address-space copy.
func (m *MMU) CopyCtx(dst, src *Context) {
	krn := m.kernel.dir
	for i := 0; i < dirEntries; i++ {
		srcTbl := src.dir.tables[i]
		if srcTbl == nil {
			continue
		}
		if krn.tables[i] == srcTbl {
			dst.dir.tables[i] = srcTbl
			dst.dir.pde[i] = src.dir.pde[i]
			continue
		}
		cloned := clonePTable(m.frames, srcTbl)
		dst.dir.tables[i] = cloned
		dst.dir.pde[i] = Addr(cloned.frame) | dirInstallFlags
	}
}
