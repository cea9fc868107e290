package xlate

import (
	"github.com/openalpha/ev6core/internal/pte"
	"github.com/openalpha/ev6core/internal/spam"
	"github.com/openalpha/ev6core/internal/sysctx"
)

// HandleMiss implements the PAL miss handler (spec.md §4.F F3): it is
// invoked by PAL vector dispatch after a DTB_MISS/ITB_MISS PendingEvent was
// delivered. It re-derives the faulting VA from the IPR bank's
// fault-argument registers (Hot.VA), walks the page table, and on success
// inserts the resulting leaf PTE into the per-CPU TLB — optionally
// broadcasting a shootdown IPI to every peer (spec.md §9 Open Question 2).
func HandleMiss(sc *sysctx.SystemContext, cpuID int, kind pte.AccessKind, mode pte.Mode, sink FaultSink, settings Settings) bool {
	cpu := sc.CPU(cpuID)
	va := cpu.IPR.Hot.VA
	realm := realmFor(kind)

	leaf, _, walkOutcome := Walk(sc.Memory, cpu.IPR.Hot.PTBR, va, kind, mode)
	if walkOutcome != WalkSuccess {
		fk := faultKindForWalk(walkOutcome)
		f := &Fault{Kind: fk, VA: va, Mode: mode, Access: kind, Realm: realm, CPU: cpuID}
		sink.SetPending(PendingEvent{Vector: VectorFor(f), Fault: f})
		return false
	}

	asn := cpu.IPR.Hot.ASN
	res := cpu.Spam.Insert(realm, va, asn, leaf)
	if res != spam.InsertOK {
		f := &Fault{Kind: FaultTlbInsertionFailed, VA: va, Mode: mode, Access: kind, Realm: realm, CPU: cpuID}
		sink.SetPending(PendingEvent{Vector: VectorFor(f), Fault: f})
		return false
	}

	if sc.NumCPUs() > 1 && settings.BroadcastShootdownOnInsert {
		BroadcastInsert(sc, cpuID, realm, va, asn)
	}
	return true
}

func faultKindForWalk(w WalkOutcome) FaultKind {
	switch w {
	case WalkTNV:
		return FaultTlbMiss
	case WalkFaultOnRead:
		return FaultOnRead
	case WalkFaultOnWrite:
		return FaultOnWrite
	case WalkFaultOnExecute:
		return FaultOnExecute
	case WalkAccessViolation:
		return FaultAccessViolation
	case WalkBusError:
		return FaultBusError
	default:
		return FaultBusError
	}
}
