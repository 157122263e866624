package mmu

// PTE is the software view of one 32-bit page-table-entry word,
// packing the standard x86 bit layout: present=0, rw=1, user=2,
// writethrough=3, cachedisable=4, accessed=5, dirty=6, pat=7,
// global=8, frame in bits 12-31. Mirrors page.go's PageFlags
// pack/unpack pair kept alongside the raw packed word.
type PTE struct {
	Present      bool
	RW           bool
	User         bool
	WriteThrough bool
	CacheDisable bool
	Accessed     bool
	Dirty        bool
	PAT          bool
	Global       bool
	Frame        uint32 // 20-bit frame number
}

const (
	pteBitPresent      = 1 << 0
	pteBitRW           = 1 << 1
	pteBitUser         = 1 << 2
	pteBitWriteThrough = 1 << 3
	pteBitCacheDisable = 1 << 4
	pteBitAccessed     = 1 << 5
	pteBitDirty        = 1 << 6
	pteBitPAT          = 1 << 7
	pteBitGlobal       = 1 << 8
)

// Pack encodes the PTE into its hardware 32-bit word.
func (p PTE) Pack() uint32 {
	var w uint32
	if p.Present {
		w |= pteBitPresent
	}
	if p.RW {
		w |= pteBitRW
	}
	if p.User {
		w |= pteBitUser
	}
	if p.WriteThrough {
		w |= pteBitWriteThrough
	}
	if p.CacheDisable {
		w |= pteBitCacheDisable
	}
	if p.Accessed {
		w |= pteBitAccessed
	}
	if p.Dirty {
		w |= pteBitDirty
	}
	if p.PAT {
		w |= pteBitPAT
	}
	if p.Global {
		w |= pteBitGlobal
	}
	w |= p.Frame << 12
	return w
}

// UnpackPTE decodes a hardware 32-bit word into a PTE.
func UnpackPTE(w uint32) PTE {
	return PTE{
		Present:      w&pteBitPresent != 0,
		RW:           w&pteBitRW != 0,
		User:         w&pteBitUser != 0,
		WriteThrough: w&pteBitWriteThrough != 0,
		CacheDisable: w&pteBitCacheDisable != 0,
		Accessed:     w&pteBitAccessed != 0,
		Dirty:        w&pteBitDirty != 0,
		PAT:          w&pteBitPAT != 0,
		Global:       w&pteBitGlobal != 0,
		Frame:        w >> 12,
	}
}

// pageTableEntries is the fixed number of entries in one page table.
const pageTableEntries = 1024

// table is a page table's software state: its 1024 PTEs plus the
// frame it occupies (the "page-aligned" storage the directory's
// hardware pde entry points at).
type table struct {
	entries [pageTableEntries]PTE
	frame   uint32
}
