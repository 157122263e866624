// Package clock is the periodic tick, monotonic uptime, and
// TSC-derived microsecond clock driven off the PIT: a leap-year-aware
// calendar-to-Unix converter, lost-tick accounting across a briefly
// masked timer interrupt, and a busy-wait delay over the monotonic
// tick counter for use before the scheduler exists.
package clock

import "matrixkernel/internal/iox"

const (
	pitBaseFreq = 1193182
	pitCmdPort  = 0x43
	pitCh0Port  = 0x40
	pitMode3    = 0x36

	secsPerDay = 24 * 60 * 60
)

// daysBeforeMonth[m] is the number of days elapsed in a non-leap year
// before the first of month m (1-indexed, daysBeforeMonth[1] == 0).
var daysBeforeMonth = [13]uint32{
	0,
	0,
	31,
	31 + 28,
	31 + 28 + 31,
	31 + 28 + 31 + 30,
	31 + 28 + 31 + 30 + 31,
	31 + 28 + 31 + 30 + 31 + 30,
	31 + 28 + 31 + 30 + 31 + 30 + 31,
	31 + 28 + 31 + 30 + 31 + 30 + 31 + 31,
	31 + 28 + 31 + 30 + 31 + 30 + 31 + 31 + 30,
	31 + 28 + 31 + 30 + 31 + 30 + 31 + 31 + 30 + 31,
	31 + 28 + 31 + 30 + 31 + 30 + 31 + 31 + 30 + 31 + 30,
}

func isLeapYear(y uint32) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func daysInYear(y uint32) uint32 {
	if isLeapYear(y) {
		return 366
	}
	return 365
}

// TimeToUnix converts a CMOS-provided calendar time to microseconds
// since 1970-01-01 00:00:00, using the Julian leap rule. Callers must
// pass year >= 1970; behavior for earlier years is undefined.
func TimeToUnix(year, mon, day, hour, min, sec uint32) uint64 {
	seconds := uint64(sec)
	seconds += uint64(min) * 60
	seconds += uint64(hour) * 60 * 60
	seconds += uint64(day-1) * secsPerDay

	seconds += uint64(daysBeforeMonth[mon]) * secsPerDay
	if mon > 2 && isLeapYear(year) {
		seconds += secsPerDay
	}

	for y := uint32(1970); y < year; y++ {
		seconds += uint64(daysInYear(y)) * secsPerDay
	}

	return seconds * 1_000_000
}

// Clock is the per-CPU clock state: the monotonic tick counter, the
// TSC calibration used to derive microsecond time, and the PIT
// programming needed to drive the tick.
type Clock struct {
	bus iox.Bus
	cpu iox.CPU
	hz  uint32

	sysTimeOffset uint64
	cyclesPerUs   uint64

	realTime  uint64
	lostTicks uint32

	bootTime  uint64
	hasBootTime bool
}

// New returns a Clock not yet started; call Init to program the PIT
// and record the TSC calibration offset.
func New(bus iox.Bus, cpu iox.CPU, hz uint32) *Clock {
	return &Clock{bus: bus, cpu: cpu, hz: hz}
}

// Init programs PIT channel 0 to divisor floor(1193182/HZ) in mode 3
// and records sys_time_offset = rdtsc() for this CPU. cyclesPerUs must
// be supplied by the caller's calibration routine (on real hardware,
// measured against a known-duration PIT delay at boot); callers that
// only need deterministic tests pass a synthetic value.
func (c *Clock) Init(cyclesPerUs uint64) {
	c.cyclesPerUs = cyclesPerUs
	c.sysTimeOffset = c.cpu.ReadTSC()

	divisor := uint16(pitBaseFreq / c.hz)
	c.bus.Out8(pitCmdPort, pitMode3)
	c.bus.Out8(pitCh0Port, uint8(divisor&0xFF))
	c.bus.Out8(pitCh0Port, uint8(divisor>>8))
}

// Stop reprograms PIT channel 0 in mode 3 with a divisor of 0
// (stop_clock). The PIT counts a divisor of 0 as 65536, so channel 0
// keeps ticking at its slowest rate (about 18.2 Hz); it is not
// switched off.
func (c *Clock) Stop() {
	c.bus.Out8(pitCmdPort, pitMode3)
	c.bus.Out8(pitCh0Port, 0)
	c.bus.Out8(pitCh0Port, 0)
}

// SysTime returns (rdtsc() - sys_time_offset) / cycles_per_us,
// monotonically non-decreasing as long as cyclesPerUs stays fixed and
// the TSC does not overflow.
func (c *Clock) SysTime() uint64 {
	if c.cyclesPerUs == 0 {
		return 0
	}
	return (c.cpu.ReadTSC() - c.sysTimeOffset) / c.cyclesPerUs
}

// InitWallClock records boot_time = cmosMicros - sys_time(), so that
// WallTime() can later add the two back together.
func (c *Clock) InitWallClock(cmosMicros uint64) {
	c.bootTime = cmosMicros - c.SysTime()
	c.hasBootTime = true
}

// WallTime returns boot_time + sys_time(). It panics if
// InitWallClock was never called: using wall time before it is
// established is a boot-sequencing bug, not a recoverable condition.
func (c *Clock) WallTime() uint64 {
	if !c.hasBootTime {
		panic("clock: WallTime called before InitWallClock")
	}
	return c.bootTime + c.SysTime()
}

// AddLostTicks accumulates ticks lost while the timer interrupt was
// briefly masked, folded into real_time on the next Tick.
func (c *Clock) AddLostTicks(n uint32) {
	c.lostTicks += n
}

// Tick advances the monotonic tick counter by 1 plus any accumulated
// lost ticks, called once per timer interrupt (clock_callback).
func (c *Clock) Tick() {
	c.realTime += uint64(c.lostTicks) + 1
	c.lostTicks = 0
}

// Uptime returns the monotonic tick counter (get_uptime).
func (c *Clock) Uptime() uint64 { return c.realTime }

// HZ returns the configured tick frequency.
func (c *Clock) HZ() uint32 { return c.hz }

// msecToTicks converts a millisecond duration to ticks at an
// arbitrary HZ: ceil(msec * hz / 1000).
func msecToTicks(msec uint32, hz uint32) uint64 {
	return (uint64(msec)*uint64(hz) + 999) / 1000
}

// Delay busy-waits until Uptime() reaches its current value plus the
// ticks equivalent to msec milliseconds, calling idle once per
// iteration (pit_delay). Intended only for early boot, before the
// scheduler exists.
func (c *Clock) Delay(msec uint32, idle func()) {
	target := c.realTime + msecToTicks(msec, c.hz)
	for c.realTime < target {
		idle()
	}
}
