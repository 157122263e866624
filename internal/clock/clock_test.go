package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrixkernel/internal/iox"
)

func TestTimeToUnixEpoch(t *testing.T) {
	assert.Equal(t, uint64(0), TimeToUnix(1970, 1, 1, 0, 0, 0))
}

func TestTimeToUnixLeapDay1972(t *testing.T) {
	mar1 := TimeToUnix(1972, 3, 1, 0, 0, 0)
	feb29 := TimeToUnix(1972, 2, 29, 0, 0, 0)
	assert.Equal(t, uint64(86_400_000_000), mar1-feb29)
}

func TestTimeToUnixLeapDay2000(t *testing.T) {
	mar1 := TimeToUnix(2000, 3, 1, 0, 0, 0)
	feb29 := TimeToUnix(2000, 2, 29, 0, 0, 0)
	assert.Equal(t, uint64(86_400_000_000), mar1-feb29)
}

func TestTimeToUnixNonLeapCentury1900(t *testing.T) {
	mar1 := TimeToUnix(1900, 3, 1, 0, 0, 0)
	feb28 := TimeToUnix(1900, 2, 28, 0, 0, 0)
	assert.Equal(t, uint64(86_400_000_000), mar1-feb28)
}

func TestInitProgramsPITDivisorHZ100(t *testing.T) {
	bus := iox.NewFake()
	cpu := iox.NewFake()
	c := New(bus, cpu, 100)
	c.Init(1000)

	require.Len(t, bus.Out8Log, 3)
	assert.Equal(t, iox.PortWrite{Port: pitCmdPort, Value: pitMode3}, bus.Out8Log[0])
	divisor := uint16(1193182 / 100)
	assert.Equal(t, uint8(divisor&0xFF), bus.Out8Log[1].Value)
	assert.Equal(t, uint8(divisor>>8), bus.Out8Log[2].Value)
}

func TestSysTimeMonotonicNonDecreasing(t *testing.T) {
	cpu := iox.NewFake()
	c := New(iox.NewFake(), cpu, 100)
	c.Init(1000) // 1000 cycles per microsecond

	first := c.SysTime()
	cpu.AdvanceTSC(5000)
	second := c.SysTime()
	cpu.AdvanceTSC(5000)
	third := c.SysTime()

	assert.LessOrEqual(t, first, second)
	assert.LessOrEqual(t, second, third)
	assert.Equal(t, uint64(5), second-first)
}

func TestTickAppliesLostTicks(t *testing.T) {
	cpu := iox.NewFake()
	c := New(iox.NewFake(), cpu, 1000)
	c.Init(1000)

	c.Tick()
	assert.Equal(t, uint64(1), c.Uptime())

	c.AddLostTicks(3)
	c.Tick()
	assert.Equal(t, uint64(5), c.Uptime())
}

func TestWallTimeBeforeInitPanics(t *testing.T) {
	c := New(iox.NewFake(), iox.NewFake(), 100)
	assert.Panics(t, func() { c.WallTime() })
}

func TestWallTimeRoundTrip(t *testing.T) {
	cpu := iox.NewFake()
	c := New(iox.NewFake(), cpu, 100)
	c.Init(1000)

	cmos := TimeToUnix(2024, 1, 1, 0, 0, 0)
	c.InitWallClock(cmos)
	assert.Equal(t, cmos, c.WallTime())

	cpu.AdvanceTSC(2000) // +2us
	assert.Equal(t, cmos+2, c.WallTime())
}

func TestDelayAdvancesUntilTarget(t *testing.T) {
	cpu := iox.NewFake()
	c := New(iox.NewFake(), cpu, 1000)
	c.Init(1000)

	iterations := 0
	c.Delay(5, func() {
		iterations++
		c.Tick()
	})

	assert.GreaterOrEqual(t, c.Uptime(), uint64(5))
	assert.Equal(t, int(c.Uptime()), iterations)
}
