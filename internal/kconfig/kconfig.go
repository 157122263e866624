// Package kconfig loads the boot-time constants a minimal kernel core
// would otherwise fix at compile time (HZ, KSTACK_SIZE, priority-queue
// count, frame pool geometry) from a TOML file the boot loader hands
// the kernel, so the same binary can be retuned for a slower CI VM
// (HZ=100) or a faster timer-expiry workload (HZ=1000) without a
// rebuild.
package kconfig

import (
	"github.com/BurntSushi/toml"
)

// Config is the full set of boot-time tunables.
type Config struct {
	// HZ is the periodic timer frequency in Hz.
	HZ uint32 `toml:"hz"`

	// KStackSize is the kernel-stack size in bytes. It is validated
	// and logged at boot; thread stacks are sized by the fixed
	// proc.KStackSize, which this field does not change.
	KStackSize uint32 `toml:"kstack_size"`

	// PriorityLevels is the number of priority levels, priority 0 most
	// urgent. It is validated and logged at boot; the scheduler always
	// keeps sched.NumPriorities ready queues, whatever this field says.
	PriorityLevels uint32 `toml:"priority_levels"`

	// DefaultPriority is the priority for a newly created thread. It is
	// validated at boot; proc.CreateThread assigns the fixed
	// proc.DefaultPriority, which this field does not change.
	DefaultPriority uint32 `toml:"default_priority"`

	// FramePoolBytes is the size of the physical memory region the
	// frame allocator carves into 4 KiB frames.
	FramePoolBytes uint32 `toml:"frame_pool_bytes"`
}

const pageSize = 4096

// Default returns the configuration this core's own constants imply
// (HZ=100, a handful of priority levels, a modest frame pool), used
// whenever no kernel.toml is supplied and by every test in this
// module unless it overrides a field.
func Default() Config {
	return Config{
		HZ:              100,
		KStackSize:      16 * 1024,
		PriorityLevels:  32,
		DefaultPriority: 16,
		FramePoolBytes:  64 * 1024 * 1024,
	}
}

// Load reads and validates a TOML configuration from path, filling
// any field TOML left zero from Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the invariants the rest of the kernel assumes hold:
// HZ must be nonzero and no higher than the PIT's 1,193,182 Hz base
// clock (a divisor of at least 1), stacks and the frame pool must be page
// aligned, and priority levels must be enough to hold DefaultPriority.
func (c Config) Validate() error {
	switch {
	case c.HZ == 0 || c.HZ > 1193182:
		return errConfig{"hz", "must be in (0, 1193182]"}
	case c.KStackSize == 0 || c.KStackSize%pageSize != 0:
		return errConfig{"kstack_size", "must be a nonzero multiple of 4096"}
	case c.FramePoolBytes%pageSize != 0:
		return errConfig{"frame_pool_bytes", "must be a multiple of 4096"}
	case c.PriorityLevels == 0 || c.DefaultPriority >= c.PriorityLevels:
		return errConfig{"priority_levels", "must exceed default_priority"}
	}
	return nil
}

// PITDivisor returns floor(1193182 / HZ), the channel-0 divisor
// init_clock programs.
func (c Config) PITDivisor() uint16 {
	return uint16(1193182 / c.HZ)
}

type errConfig struct{ field, reason string }

func (e errConfig) Error() string { return e.field + ": " + e.reason }
