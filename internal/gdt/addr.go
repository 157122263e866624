package gdt

import "unsafe"

// addrOf returns the address of v truncated to 32 bits, matching the
// x86 pointer width this kernel targets. On the 386 build this is
// exact; on a test host built for a wider architecture it still
// yields a stable, distinct value per table instance, which is all
// the Fake-backed tests in this package need.
func addrOf(v any) uint32 {
	switch p := v.(type) {
	case *entry:
		return uint32(uintptr(unsafe.Pointer(p)))
	case *gate:
		return uint32(uintptr(unsafe.Pointer(p)))
	default:
		panic("gdt: addrOf: unsupported type")
	}
}
