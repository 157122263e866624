package gdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrixkernel/internal/iox"
)

func TestNewBuildsSixEntriesWithExpectedDPLs(t *testing.T) {
	table := New()

	assert.Equal(t, uint8(dplKernel<<5), table.entries[SelKCode/8].access&0x60)
	assert.Equal(t, uint8(dplUser<<5), table.entries[SelUCode/8].access&0x60)
	assert.Equal(t, uint8(dplKernel<<5), table.entries[SelKData/8].access&0x60)
	assert.Equal(t, uint8(dplUser<<5), table.entries[SelUData/8].access&0x60)

	for _, idx := range []int{SelKCode / 8, SelKData/8, SelUCode / 8, SelUData / 8, SelTSS / 8} {
		assert.NotZero(t, table.entries[idx].access&accPresent)
	}
}

func TestTSSZeroedExceptSS0(t *testing.T) {
	table := New()
	assert.Equal(t, uint32(SelKData), table.tss.SS0)
	assert.Zero(t, table.tss.ESP0)
	assert.Zero(t, table.tss.EIP)
}

func TestSetKernelStackUpdatesESP0(t *testing.T) {
	table := New()
	table.SetKernelStack(0xDEADB000)
	assert.Equal(t, uint32(0xDEADB000), table.ESP0())
}

func TestInstallGateVectorRanges(t *testing.T) {
	table := New()
	table.InstallGate(0, 0x1000, dplKernel, SelKCode)
	table.InstallGate(32, 0x2000, dplKernel, SelKCode)
	table.InstallGate(128, 0x3000, dplUser, SelKCode)

	assert.Equal(t, uint32(3), table.InstalledVectors())
	assert.NotZero(t, table.gates[128].flags&(dplUser<<5))
}

func TestInstallGateDoubleRegistrationPanics(t *testing.T) {
	table := New()
	table.InstallGate(14, 0x1000, dplKernel, SelKCode)
	assert.Panics(t, func() { table.InstallGate(14, 0x2000, dplKernel, SelKCode) })
}

func TestInstallGateOutOfRangePanics(t *testing.T) {
	table := New()
	assert.Panics(t, func() { table.InstallGate(256, 0, dplKernel, SelKCode) })
}

func TestLoadProgramsFakeCPU(t *testing.T) {
	table := New()
	cpu := iox.NewFake()
	table.Load(cpu)
	require.Equal(t, uint16(SelTSS), cpu.TSSSelector())

	_, limit := cpu.GDTBounds()
	assert.Equal(t, uint16(nrGDTEntries*8-1), limit)
}
