package xlate

import (
	"github.com/openalpha/ev6core/internal/guestmem"
	"github.com/openalpha/ev6core/internal/pte"
)

// Three-level page-table index extraction (spec.md §4.F F2): 10 bits per
// level above the 13-bit page offset, covering the full 43-bit canonical
// VA width (13 + 10 + 10 + 10 = 43).
const (
	l3Shift = pte.PageOffsetBits // 13
	l2Shift = 23
	l1Shift = 33
	levelIndexMask = 0x3FF // 10 bits
)

func levelIndex(va uint64, shift uint) uint64 {
	return (va >> shift) & levelIndexMask
}

// WalkOutcome is the disposition of a single page-table walk (spec.md §4.F
// F2/F3).
type WalkOutcome int

const (
	WalkSuccess WalkOutcome = iota
	WalkTNV                // translation-not-valid: some level's PTE.Valid was false
	WalkFaultOnRead
	WalkFaultOnWrite
	WalkFaultOnExecute
	WalkAccessViolation
	WalkBusError // GuestMemory reported a failure
)

// Walk implements spec.md §4.F F2: read L1/L2/L3 PTEs from guest physical
// memory rooted at the page table whose page frame number is ptbr (spec.md
// glossary "PTBR — Page Table Base Register, PFN of the root page-table
// page"), recursing until a leaf is found or a level proves invalid. On
// success, leaf is the decoded level-3 PTE and pa is its physical address
// for va. The walk's sole interface to GuestMemory is the "read physical
// quadword" callback (guestmem.ReadQuad).
func Walk(mem guestmem.GuestMemory, ptbr uint64, va uint64, kind pte.AccessKind, mode pte.Mode) (leaf pte.PTE, pa uint64, outcome WalkOutcome) {
	l1idx := levelIndex(va, l1Shift)
	l2idx := levelIndex(va, l2Shift)
	l3idx := levelIndex(va, l3Shift)

	l1Base := ptbr << pte.PageOffsetBits
	l1pte, ok := readLevel(mem, l1Base, l1idx)
	if !ok {
		return pte.PTE{}, 0, WalkBusError
	}
	if !l1pte.Valid {
		return pte.PTE{}, 0, WalkTNV
	}

	l2Base := l1pte.PFN << pte.PageOffsetBits
	l2pte, ok := readLevel(mem, l2Base, l2idx)
	if !ok {
		return pte.PTE{}, 0, WalkBusError
	}
	if !l2pte.Valid {
		return pte.PTE{}, 0, WalkTNV
	}

	l3Base := l2pte.PFN << pte.PageOffsetBits
	l3pte, ok := readLevel(mem, l3Base, l3idx)
	if !ok {
		return pte.PTE{}, 0, WalkBusError
	}
	if !l3pte.Valid {
		return pte.PTE{}, 0, WalkTNV
	}

	if fk := pte.FaultFor(l3pte, kind); fk != pte.FaultNone {
		switch fk {
		case pte.FaultOnRead:
			return l3pte, 0, WalkFaultOnRead
		case pte.FaultOnWrite:
			return l3pte, 0, WalkFaultOnWrite
		case pte.FaultOnExecute:
			return l3pte, 0, WalkFaultOnExecute
		}
	}
	if out := pte.CheckPermission(l3pte, kind, mode); out != pte.Success {
		return l3pte, 0, WalkAccessViolation
	}

	return l3pte, l3pte.PhysicalAddress(va), WalkSuccess
}

func readLevel(mem guestmem.GuestMemory, base uint64, idx uint64) (pte.PTE, bool) {
	raw, err := guestmem.ReadQuad(mem, base+idx*8)
	if err != nil {
		return pte.PTE{}, false
	}
	return pte.Decode(raw), true
}
