package mmu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrixkernel/internal/iox"
	"matrixkernel/internal/kerrors"
)

func newMMU(t *testing.T) (*MMU, *iox.Fake) {
	t.Helper()
	fa := NewFrameAllocator(4 * 1024 * 1024)
	cpu := iox.NewFake()
	m := New(fa, cpu)
	_, err := m.InitKernelCtx()
	require.NoError(t, err)
	return m, cpu
}

func TestInitKernelCtxOnlyOnce(t *testing.T) {
	m, _ := newMMU(t)
	assert.Panics(t, func() { m.InitKernelCtx() })
}

func TestCreateCtxPdbrPageAligned(t *testing.T) {
	m, _ := newMMU(t)
	ctx, err := m.CreateCtx()
	require.NoError(t, err)
	assert.Zero(t, ctx.Pdbr()%PageSize)
	assert.False(t, ctx.IsKernel())
}

// TestMapGetUnmapRoundTrip maps va, reads it back, unmaps it, and
// confirms it is gone.
func TestMapGetUnmapRoundTrip(t *testing.T) {
	m, _ := newMMU(t)
	ctx, err := m.CreateCtx()
	require.NoError(t, err)

	const va = 0x08048000
	const pa = 0x00100000

	m.MapPage(ctx, va, pa, true, false)

	pte, ok := m.GetPage(ctx, va, false)
	require.True(t, ok)
	assert.True(t, pte.Present)
	assert.True(t, pte.RW)
	assert.True(t, pte.User)
	assert.Equal(t, FrameOf(pa), pte.Frame)

	gotPa, err := m.UnmapPage(ctx, va)
	require.NoError(t, err)
	assert.Equal(t, uint32(pa), gotPa)

	pte2, _ := m.GetPage(ctx, va, false)
	assert.False(t, pte2.Present)
}

func TestUnmapNotMappedReturnsError(t *testing.T) {
	m, _ := newMMU(t)
	ctx, err := m.CreateCtx()
	require.NoError(t, err)

	_, err = m.UnmapPage(ctx, 0x1000)
	assert.ErrorIs(t, err, kerrors.ErrNotMapped)
}

func TestUnmapInvalidatesTLBEntry(t *testing.T) {
	m, cpu := newMMU(t)
	ctx, err := m.CreateCtx()
	require.NoError(t, err)

	const va = 0x2000
	m.MapPage(ctx, va, 0x5000, true, false)
	_, err = m.UnmapPage(ctx, va)
	require.NoError(t, err)

	assert.Equal(t, 1, cpu.InvalidatedPages[va])
}

// TestMapPageDoubleMapPanics confirms mapping an already-mapped
// virtual address panics instead of silently overwriting it.
func TestMapPageDoubleMapPanics(t *testing.T) {
	m, _ := newMMU(t)
	ctx, err := m.CreateCtx()
	require.NoError(t, err)

	m.MapPage(ctx, 0x4000, 0x7000, true, false)
	assert.Panics(t, func() { m.MapPage(ctx, 0x4000, 0x8000, true, false) })
}

func TestSwitchCtxNoopOnSameContext(t *testing.T) {
	m, cpu := newMMU(t)
	ctx, err := m.CreateCtx()
	require.NoError(t, err)

	m.SwitchCtx(ctx)
	require.Equal(t, ctx.Pdbr(), cpu.CR3())

	cpu.LoadCR3(0xDEADBEEF)
	m.SwitchCtx(ctx)
	assert.Equal(t, uint32(0xDEADBEEF), cpu.CR3(), "switching to the already-current context must be a no-op")
}

func TestSwitchCtxLoadsCR3AndEnablesPaging(t *testing.T) {
	m, cpu := newMMU(t)
	ctx, err := m.CreateCtx()
	require.NoError(t, err)

	m.SwitchCtx(ctx)
	assert.Equal(t, ctx.Pdbr(), cpu.CR3())
	assert.True(t, cpu.PagingEnabled())
	assert.Same(t, ctx, m.Current())
}

func TestSwitchCtxNilIsNoop(t *testing.T) {
	m, cpu := newMMU(t)
	cpu.LoadCR3(0x1234)
	m.SwitchCtx(nil)
	assert.Equal(t, uint32(0x1234), cpu.CR3())
	assert.Nil(t, m.Current())
}

// TestCopyCtxSharesKernelClonesRest confirms a forked context shares
// the kernel's page tables by reference but gets an isolated copy of
// every other mapping.
func TestCopyCtxSharesKernelClonesRest(t *testing.T) {
	m, _ := newMMU(t)

	// Install a "kernel" mapping shared by every address space.
	const kernelVA = 0x00001000
	m.MapPage(m.KernelCtx(), kernelVA, 0x00010000, true, false)

	src, err := m.CreateCtx()
	require.NoError(t, err)
	// Alias the kernel directory slot by hand: CreateCtx returns an
	// empty directory, so the shared region is wired here.
	kernelDirIdx := (kernelVA / PageSize) / 1024
	src.dir.tables[kernelDirIdx] = m.KernelCtx().dir.tables[kernelDirIdx]
	src.dir.pde[kernelDirIdx] = m.KernelCtx().dir.pde[kernelDirIdx]

	const privateVA = 0x08049000
	const privatePA = 0x00200000
	m.MapPage(src, privateVA, privatePA, true, false)

	dst, err := m.CreateCtx()
	require.NoError(t, err)
	dst.dir.tables[kernelDirIdx] = nil // cleared by newContext already; explicit for clarity
	m.CopyCtx(dst, src)

	assert.Same(t, src.dir.tables[kernelDirIdx], dst.dir.tables[kernelDirIdx],
		"kernel-aliased page tables must be shared by reference, not cloned")

	srcPte, ok := m.GetPage(src, privateVA, false)
	require.True(t, ok)
	dstPte, ok := m.GetPage(dst, privateVA, false)
	require.True(t, ok)
	assert.True(t, dstPte.Present)
	assert.NotEqual(t, srcPte.Frame, dstPte.Frame, "private mappings must be deep-cloned into distinct frames")

	// Mutating the clone's backing frame must not affect the original.
	m.frames.bytes(dstPte.Frame)[0] = 0xAA
	assert.NotEqual(t, byte(0xAA), m.frames.bytes(srcPte.Frame)[0])
}

func TestDestroyCtxRejectsKernelContext(t *testing.T) {
	m, _ := newMMU(t)
	assert.Panics(t, func() { m.DestroyCtx(m.KernelCtx()) })
}

func TestDestroyCtxFreesDirectoryFrame(t *testing.T) {
	m, _ := newMMU(t)
	ctx, err := m.CreateCtx()
	require.NoError(t, err)

	m.DestroyCtx(ctx)

	// The freed directory frame must be reusable.
	reused, err := m.frames.Alloc()
	require.NoError(t, err)
	assert.Equal(t, FrameOf(ctx.Pdbr()), reused)
}

func TestFrameAllocatorExhaustion(t *testing.T) {
	fa := NewFrameAllocator(2 * PageSize)
	_, err := fa.Alloc()
	require.NoError(t, err)
	_, err = fa.Alloc()
	require.NoError(t, err)

	_, err = fa.Alloc()
	assert.ErrorIs(t, err, kerrors.ErrOutOfMemory)
}

func TestCopyPhysicalCopiesBytes(t *testing.T) {
	fa := NewFrameAllocator(4 * PageSize)
	a, _ := fa.Alloc()
	b, _ := fa.Alloc()

	fa.bytes(a)[42] = 0x7E
	fa.CopyPhysical(b, a)
	assert.Equal(t, byte(0x7E), fa.bytes(b)[42])
}

func TestPTEPackUnpackRoundTrip(t *testing.T) {
	p := PTE{Present: true, RW: true, User: false, Accessed: true, Dirty: true, Frame: 0xABCDE}
	got := UnpackPTE(p.Pack())
	assert.Equal(t, p, got)
}
