package mmu

import (
	"matrixkernel/internal/bitmap"
	"matrixkernel/internal/kerrors"
)

// PageSize is the fixed 4 KiB frame size for this architecture.
const PageSize = 4096

// FrameAllocator hands out 4 KiB physical frames from a fixed-size
// pool, tracked with internal/bitmap the classic free-page-map way:
// one bit per frame. It also holds the simulated physical backing
// store each frame's bytes live in, standing in for the
// aligned-physical-address allocator this core treats as an
// external collaborator.
type FrameAllocator struct {
	bm    *bitmap.Bitmap
	store map[uint32]*[PageSize]byte
}

// NewFrameAllocator creates a pool of poolBytes/PageSize frames.
func NewFrameAllocator(poolBytes uint32) *FrameAllocator {
	return &FrameAllocator{
		bm:    bitmap.New(poolBytes / PageSize),
		store: make(map[uint32]*[PageSize]byte),
	}
}

// Alloc returns the lowest-numbered free frame number, zeroed.
// Returns kerrors.ErrOutOfMemory if the pool is exhausted.
func (fa *FrameAllocator) Alloc() (uint32, error) {
	idx, ok := fa.bm.FirstClear()
	if !ok {
		return 0, kerrors.ErrOutOfMemory
	}
	fa.bm.Set(idx)
	fa.store[idx] = &[PageSize]byte{}
	return idx, nil
}

// Free releases a previously allocated frame.
func (fa *FrameAllocator) Free(frame uint32) {
	fa.bm.Clear(frame)
	delete(fa.store, frame)
}

// Addr returns the simulated physical address of a frame (frame *
// PageSize), matching the real hardware's frame-number-to-address
// relationship.
func Addr(frame uint32) uint32 { return frame * PageSize }

// FrameOf is the inverse of Addr.
func FrameOf(addr uint32) uint32 { return addr / PageSize }

// bytes returns the backing store for frame, allocating it on first
// touch so physical addresses supplied directly to MapPage (rather
// than obtained from this allocator) still have somewhere to copy
// to/from during a context clone.
func (fa *FrameAllocator) bytes(frame uint32) *[PageSize]byte {
	b, ok := fa.store[frame]
	if !ok {
		b = &[PageSize]byte{}
		fa.store[frame] = b
	}
	return b
}

// CopyPhysical copies the full contents of frame src into frame dst,
// standing in for copy_page_physical's pair of temporary mappings: on
// real hardware two throwaway virtual pages are mapped over the
// source and destination frames and memcpy'd; this allocator already
// addresses frames directly, so copying through it yields the same
// observable result the two-mapping sequence would.
func (fa *FrameAllocator) CopyPhysical(dst, src uint32) {
	*fa.bytes(dst) = *fa.bytes(src)
}
