//go:build 386

package iox

import "unsafe"

func ptrOf(p *descriptorPtr) unsafe.Pointer { return unsafe.Pointer(p) }
