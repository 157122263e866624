// Command kernel is the 32-bit protected-mode entry point: it wires
// every internal package into the boot sequence a bootloader hands
// control to after enabling protected mode, bringing up peripherals
// in dependency order: descriptor tables before interrupts, the PIC
// before timers, the MMU before any thread runs.
//
// This binary only builds for GOARCH=386, since it is the one package
// that touches the real Hardware implementation of iox.Bus/iox.CPU.
package main

import (
	"flag"
	"os"

	"matrixkernel/internal/clock"
	"matrixkernel/internal/gdt"
	"matrixkernel/internal/iox"
	"matrixkernel/internal/kconfig"
	"matrixkernel/internal/klog"
	"matrixkernel/internal/mmu"
	"matrixkernel/internal/pagefault"
	"matrixkernel/internal/percpu"
	"matrixkernel/internal/pic"
	"matrixkernel/internal/proc"
	"matrixkernel/internal/sched"
)

func main() {
	configPath := flag.String("config", "", "path to kernel.toml (defaults baked in if empty)")
	tracePath := flag.String("trace", "", "write a JSON dispatch/timer trace to this path (disabled if empty)")
	flag.Parse()

	if *tracePath != "" {
		f, err := os.Create(*tracePath)
		if err != nil {
			klog.Panicf(bootIdentity{}, bootIdentity{}, "open trace file %q: %v", *tracePath, err)
		}
		defer f.Close()
		klog.EnableTrace(f)
	}

	cfg := kconfig.Default()
	if *configPath != "" {
		var err error
		cfg, err = kconfig.Load(*configPath)
		if err != nil {
			klog.Panicf(bootIdentity{}, bootIdentity{}, "kconfig.Load(%q): %v", *configPath, err)
		}
	}

	hw := iox.Hardware{}

	desc := gdt.New()
	desc.Load(hw)

	bus := iox.Bus(hw)
	controller := pic.New(bus)
	controller.Remap(0xFF, 0xFF) // everything masked until handlers are registered

	clk := clock.New(bus, hw, cfg.HZ)
	clk.Init(calibrateCyclesPerUs(hw))

	frames := mmu.NewFrameAllocator(cfg.FramePoolBytes)
	mm := mmu.New(frames, hw)
	if _, err := mm.InitKernelCtx(); err != nil {
		klog.Panicf(bootIdentity{}, bootIdentity{}, "mmu.InitKernelCtx: %v", err)
	}
	mm.SwitchCtx(mm.KernelCtx())

	kernelProc := proc.NewKernelProc()
	idle, err := proc.CreateThread(kernelProc, kernelProc, "idle", idleLoop, nil)
	if err != nil {
		klog.Panicf(kernelProc, bootIdentity{}, "proc.CreateThread(idle): %v", err)
	}
	idle.Priority = sched.NumPriorities - 1
	if err := proc.ThreadRun(idle); err != nil {
		klog.Panicf(kernelProc, idle, "proc.ThreadRun(idle): %v", err)
	}

	scheduler := sched.New(hw, desc, idle)
	cpu := percpu.New(clk, mm, scheduler)

	currentIdentity := func() (klog.Identity, klog.Identity) {
		t := scheduler.Current()
		if t == nil {
			return kernelProc, bootIdentity{}
		}
		return t.Owner, t
	}
	faults := pagefault.New(hw, currentIdentity)

	gdt.OnTrap = func(vector, errCode, eip uint32) {
		switch {
		case vector == pagefault.Vector:
			faults.Handle(&pagefault.Frame{ErrCode: errCode, EIP: eip})
		case vector >= pic.VectorBase && vector < pic.VectorBase+pic.NrIRQs:
			irq := int(vector - pic.VectorBase)
			controller.Dispatch(irq, &pic.Frame{Vector: vector, ErrCode: errCode, EIP: eip})
		}
	}

	desc.InstallGate(pagefault.Vector, gdt.PageFaultEntry(), 0, gdt.SelKCode)
	desc.InstallGate(pic.VectorBase, gdt.TimerIRQEntry(), 0, gdt.SelKCode)

	controller.Register(0, &pic.Handler{Fn: func(*pic.Frame) { cpu.Tick() }})
	controller.Remap(0xFE, 0xFF) // unmask IRQ0 only

	cpu.SetBoot()
	cpu.EnableTimer()
	klog.Infof("boot complete: hz=%d kstack=%d priorities=%d frame_pool=%d",
		cfg.HZ, cfg.KStackSize, cfg.PriorityLevels, cfg.FramePoolBytes)
	klog.Trace(klog.TraceEvent{Kind: klog.TraceBoot, Detail: "boot complete"})

	for {
		scheduler.Reschedule(false)
	}
}

func idleLoop(*proc.Thread) {
	for {
		// spin until the next interrupt (the loop does not execute
		// hlt); the timer tick drives every reschedule decision from
		// here on.
	}
}

// calibrateCyclesPerUs busy-waits a fixed number of iterations against
// the PIT's refresh-detect bit (port 0x61, bit 4 toggles at ~15us) and
// derives cycles-per-microsecond from the elapsed TSC delta, the
// portable equivalent of the boot calibration loop clock.Init expects
// its caller to have already run.
func calibrateCyclesPerUs(hw iox.Hardware) uint64 {
	const refreshBit = 1 << 4
	const toggles = 64 // ~960us at the PIT's ~15us refresh period

	start := hw.ReadTSC()
	last := hw.In8(0x61) & refreshBit
	seen := 0
	for seen < toggles {
		cur := hw.In8(0x61) & refreshBit
		if cur != last {
			seen++
			last = cur
		}
	}
	end := hw.ReadTSC()

	const elapsedMicros = 960
	if end <= start {
		return 1
	}
	return (end - start) / elapsedMicros
}

// bootIdentity satisfies klog.Identity for diagnostics emitted before
// kernel_proc or any thread exists.
type bootIdentity struct{}

func (bootIdentity) Name() string { return "boot" }
func (bootIdentity) ID() uint32   { return 0 }
