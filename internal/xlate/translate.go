package xlate

import (
	"github.com/openalpha/ev6core/internal/pte"
	"github.com/openalpha/ev6core/internal/sysctx"
)

// realmFor maps an access kind to the SPAM realm it travels through:
// instruction fetches hit the ITB, loads and stores hit the DTB.
func realmFor(kind pte.AccessKind) pte.Realm {
	if kind == pte.AccessExecute {
		return pte.Instruction
	}
	return pte.Data
}

// Translate implements the fast path (spec.md §4.F F1) for a natural access
// of settings.AlignmentBytes (8 by default). Use TranslateSized to vary the
// alignment requirement.
func Translate(sc *sysctx.SystemContext, cpuID int, va uint64, kind pte.AccessKind, mode pte.Mode, settings Settings) (pa uint64, outcome pte.Outcome, fault *Fault) {
	return TranslateSized(sc, cpuID, va, kind, mode, settings.AlignmentBytes, settings)
}

// TranslateSized is F1 parameterized by the access width in bytes, used for
// narrower-than-default loads/stores (spec.md §4.F F1 step 4 "extensions
// for narrower loads").
func TranslateSized(sc *sysctx.SystemContext, cpuID int, va uint64, kind pte.AccessKind, mode pte.Mode, accessBytes int, settings Settings) (pa uint64, outcome pte.Outcome, fault *Fault) {
	realm := realmFor(kind)

	// Step 1: canonicality.
	if !pte.IsCanonical(va, sc.VACtl) {
		return 0, pte.NonCanonical, &Fault{Kind: FaultNonCanonical, VA: va, Mode: mode, Access: kind, Realm: realm, CPU: cpuID}
	}

	// Step 2: segment classification / KSeg fast path.
	class := pte.ClassifyVA(va, sc.VACtl)
	if class == pte.ClassKSeg {
		if mode != pte.Kernel {
			return 0, pte.AccessViolation, &Fault{Kind: FaultAccessViolation, VA: va, Mode: mode, Access: kind, Realm: realm, CPU: cpuID}
		}
		return pte.KsegToPhysical(va), pte.Success, nil
	}
	if class == pte.ClassUnknown {
		return 0, pte.NonCanonical, &Fault{Kind: FaultNonCanonical, VA: va, Mode: mode, Access: kind, Realm: realm, CPU: cpuID}
	}

	// Step 3: superpage windows bypass the TLB and map identity.
	if sc.Platform.IsSuperpage(va) {
		return va & pte.PhysicalMask, pte.Success, nil
	}

	// Step 4: alignment.
	if accessBytes > 1 && va%uint64(accessBytes) != 0 {
		return 0, pte.Unaligned, &Fault{Kind: FaultUnaligned, VA: va, Mode: mode, Access: kind, Realm: realm, CPU: cpuID}
	}

	// Step 5: TLB lookup.
	cpu := sc.CPU(cpuID)
	asn := cpu.IPR.Hot.ASN
	if settings.TLBCheckBothRealms {
		if !cpu.Spam.ProbeEitherRealm(va, asn) {
			return 0, pte.TlbMiss, &Fault{Kind: FaultTlbMiss, VA: va, Mode: mode, Access: kind, Realm: realm, CPU: cpuID}
		}
	}
	tr, hit := cpu.Spam.Lookup(realm, va, asn)
	if !hit {
		return 0, pte.TlbMiss, &Fault{Kind: FaultTlbMiss, VA: va, Mode: mode, Access: kind, Realm: realm, CPU: cpuID}
	}

	if fk := pte.FaultForRights(tr.Perm, kind); fk != pte.FaultNone {
		return 0, pte.AccessViolation, faultFromPTEKind(fk, va, mode, kind, realm, cpuID)
	}
	if out := pte.CheckAccessRights(tr.Perm, kind, mode); out != pte.Success {
		return 0, pte.AccessViolation, &Fault{Kind: FaultAccessViolation, VA: va, Mode: mode, Access: kind, Realm: realm, CPU: cpuID}
	}

	return tr.PA, pte.Success, nil
}

func faultFromPTEKind(fk pte.FaultKind, va uint64, mode pte.Mode, kind pte.AccessKind, realm pte.Realm, cpuID int) *Fault {
	var k FaultKind
	switch fk {
	case pte.FaultOnRead:
		k = FaultOnRead
	case pte.FaultOnWrite:
		k = FaultOnWrite
	case pte.FaultOnExecute:
		k = FaultOnExecute
	default:
		k = FaultAccessViolation
	}
	return &Fault{Kind: k, VA: va, Mode: mode, Access: kind, Realm: realm, CPU: cpuID}
}
