/*
   pte: Alpha AXP EV6 page table entry codec.

   Copyright (c) 2026, EV6 Core Contributors

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
   FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER
   DEALINGS IN THE SOFTWARE.
*/

// Package pte implements bit-exact encode/decode and permission checks for
// the Alpha AXP EV6 page table entry and the virtual address classifier.
// Every function here is pure: no package state, no allocation beyond the
// return value.
package pte

// Mode is the four Alpha privilege rings, ordered least to most privileged
// is irrelevant here — only identity matters for IPR/PTE bit selection.
type Mode int

const (
	Kernel Mode = iota
	Executive
	Supervisor
	User
)

// AccessKind distinguishes the three ways a PTE can be consulted.
type AccessKind int

const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessExecute
)

// Realm separates instruction-stream and data-stream translations; each has
// its own SPAM array and epoch axis (spec.md §3 TLB Tag, §4.D).
type Realm int

const (
	Instruction Realm = iota
	Data
)

// VAClass is the result of classify_va (spec.md §4.A).
type VAClass int

const (
	ClassUnknown VAClass = iota
	ClassUser
	ClassKernel
	ClassKSeg
)

// Outcome is the tagged-variant result of every codec and permission check.
// Never use a side channel (panic, sentinel value) for these — spec.md §4.A.
type Outcome int

const (
	Success Outcome = iota
	NotKseg
	AccessViolation
	NonCanonical
	Unaligned
	TlbMiss
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "Success"
	case NotKseg:
		return "NotKseg"
	case AccessViolation:
		return "AccessViolation"
	case NonCanonical:
		return "NonCanonical"
	case Unaligned:
		return "Unaligned"
	case TlbMiss:
		return "TlbMiss"
	default:
		return "Outcome(?)"
	}
}

// Bit layout constants, spec.md §3.
const (
	PageOffsetBits = 13
	PageSize       = 1 << PageOffsetBits
	PageOffsetMask = PageSize - 1

	PhysicalWidthBits = 44
	PhysicalMask      = (uint64(1) << PhysicalWidthBits) - 1

	// PTE field positions.
	bitValid = 0
	bitFOR   = 1
	bitFOW   = 2
	bitFOE   = 3
	bitASM   = 4
	shiftGH  = 5
	maskGH   = 0x3

	shiftKRE = 8
	shiftERE = 9
	shiftSRE = 10
	shiftURE = 11
	shiftKWE = 12
	shiftEWE = 13
	shiftSWE = 14
	shiftUWE = 15

	shiftSoftware = 16
	maskSoftware  = 0xFFFF

	shiftPFN = 32
	maskPFN  = 0xFFFFF // 20 bits
)

// VaCtl is the 64-bit VA_CTL control word. Only bit 1 (VA_48) is
// architecturally defined by this core; the rest is reserved for the
// decode/pipeline collaborator and opaque here.
type VaCtl uint64

const vaCtlVA48Bit = 1 << 1

// VA48 reports whether the 48-bit VA configuration is selected.
func (c VaCtl) VA48() bool {
	return c&vaCtlVA48Bit != 0
}

// Width returns the number of architecturally significant VA bits: 43 or 48.
func (c VaCtl) Width() uint {
	if c.VA48() {
		return 48
	}
	return 43
}

// GranularityHint selects the page-size multiplier encoded in PTE bits 5-6.
type GranularityHint uint8

const (
	GH1   GranularityHint = 0 // 1 page   (8 KB)
	GH8   GranularityHint = 1 // 8 pages  (64 KB)
	GH64  GranularityHint = 2 // 64 pages (512 KB)
	GH512 GranularityHint = 3 // 512 pages (4 MB)
)

// PageCount returns the number of base 8 KB pages a GH value spans.
func (g GranularityHint) PageCount() uint64 {
	switch g {
	case GH1:
		return 1
	case GH8:
		return 8
	case GH64:
		return 64
	case GH512:
		return 512
	default:
		return 1
	}
}

// PTE is a decoded view of the 64-bit architectural page table entry quadword
// (spec.md §3). Decode/Encode round-trip the bits this core cares about;
// software bits 16-31 are preserved opaquely.
type PTE struct {
	Valid bool
	FOR   bool
	FOW   bool
	FOE   bool
	ASM   bool
	GH    GranularityHint

	// Read/write enables per mode, indexed by Mode.
	ReadEnable  [4]bool
	WriteEnable [4]bool

	Software uint16
	PFN      uint64 // 20-bit page frame number
}

// Decode unpacks a raw 64-bit PTE quadword per spec.md §3's bit layout.
func Decode(raw uint64) PTE {
	return PTE{
		Valid: raw&(1<<bitValid) != 0,
		FOR:   raw&(1<<bitFOR) != 0,
		FOW:   raw&(1<<bitFOW) != 0,
		FOE:   raw&(1<<bitFOE) != 0,
		ASM:   raw&(1<<bitASM) != 0,
		GH:    GranularityHint((raw >> shiftGH) & maskGH),
		ReadEnable: [4]bool{
			Kernel:     raw&(1<<shiftKRE) != 0,
			Executive:  raw&(1<<shiftERE) != 0,
			Supervisor: raw&(1<<shiftSRE) != 0,
			User:       raw&(1<<shiftURE) != 0,
		},
		WriteEnable: [4]bool{
			Kernel:     raw&(1<<shiftKWE) != 0,
			Executive:  raw&(1<<shiftEWE) != 0,
			Supervisor: raw&(1<<shiftSWE) != 0,
			User:       raw&(1<<shiftUWE) != 0,
		},
		Software: uint16((raw >> shiftSoftware) & maskSoftware),
		PFN:      (raw >> shiftPFN) & maskPFN,
	}
}

// Encode packs a PTE back into its 64-bit architectural representation.
func (p PTE) Encode() uint64 {
	var raw uint64
	if p.Valid {
		raw |= 1 << bitValid
	}
	if p.FOR {
		raw |= 1 << bitFOR
	}
	if p.FOW {
		raw |= 1 << bitFOW
	}
	if p.FOE {
		raw |= 1 << bitFOE
	}
	if p.ASM {
		raw |= 1 << bitASM
	}
	raw |= uint64(p.GH&maskGH) << shiftGH

	for m := 0; m < 4; m++ {
		if p.ReadEnable[m] {
			raw |= 1 << (shiftKRE + m)
		}
		if p.WriteEnable[m] {
			raw |= 1 << (shiftKWE + m)
		}
	}
	raw |= uint64(p.Software) << shiftSoftware
	raw |= (p.PFN & maskPFN) << shiftPFN
	return raw
}

// PhysicalAddress composes the PA for a base-page (GH1) reference: PFN
// shifted to its physical position, OR'd with the page offset of va.
// Invariant 3 (spec.md §3): PFN shifts must produce a PA within 44 bits —
// callers should treat an out-of-range PFN (top bits set beyond 44-13=31
// significant bits) as a software bug in the page-table walker, not as an
// architectural outcome; Decode never rejects it since the PTE's PFN field
// is already masked to 20 bits and 20+13=33 < 44, so this can never
// overflow for a spec-conformant walker.
func (p PTE) PhysicalAddress(va uint64) uint64 {
	pa := (p.PFN << PageOffsetBits) | (va & PageOffsetMask)
	return pa & PhysicalMask
}

// ExtractVPN right-shifts va by the base page-offset width and masks to the
// configured VA width (spec.md §4.A extract_vpn).
func ExtractVPN(va uint64, ctl VaCtl) uint64 {
	width := ctl.Width()
	vpn := va >> PageOffsetBits
	mask := (uint64(1) << (width - PageOffsetBits)) - 1
	return vpn & mask
}

// ExtractSegment returns the 2-bit segment selector taken from the top bits
// of the VA (spec.md §4.A extract_segment). Segment 2 is KSeg.
func ExtractSegment(va uint64, ctl VaCtl) uint8 {
	width := ctl.Width()
	return uint8((va >> (width - 2)) & 0x3)
}

const segKSeg = 2

// signExtend sign-extends va above its configured width, producing the
// canonical form spec.md §3 requires.
func signExtend(va uint64, width uint) uint64 {
	shift := 64 - width
	return uint64(int64(va<<shift) >> shift)
}

// IsCanonical reports whether va is already in canonical (sign-extended)
// form for the configured VA width.
func IsCanonical(va uint64, ctl VaCtl) bool {
	return signExtend(va, ctl.Width()) == va
}

// ClassifyVA implements spec.md §4.A classify_va plus the KSeg carve-out
// described in §4.F: segment selector 2 is KSeg, handled before the
// user/kernel range check.
func ClassifyVA(va uint64, ctl VaCtl) VAClass {
	if !IsCanonical(va, ctl) {
		return ClassUnknown
	}
	switch ExtractSegment(va, ctl) {
	case segKSeg:
		return ClassKSeg
	case 0:
		return ClassUser
	case 1, 3:
		return ClassKernel
	default:
		return ClassUnknown
	}
}

// KsegToPhysical implements spec.md §4.A/§4.F/invariant 4: PA = VA mod 2^44,
// an identity map masked to the 44-bit physical container.
func KsegToPhysical(va uint64) uint64 {
	return va & PhysicalMask
}

// PermissionMask captures the architecturally collapsed read/write enable
// bits applicable to a given mode, after the Executive/Supervisor
// fallback-through-tiers collapse spec.md §4.A describes.
type PermissionMask struct {
	Read  bool
	Write bool
}

// AccessRights is the permission-relevant subset of a PTE: exactly what a
// TLB entry needs to retain to evaluate CheckPermission later against
// whatever mode eventually performs the access (spec.md §3 TLB Entry
// "permission_mask" — modeled here as the full per-mode enable set rather
// than a single collapsed bool, since a live entry must answer the
// permission question for every mode that might hit it, not just the mode
// that triggered the fill).
type AccessRights struct {
	FOR, FOW, FOE bool
	ReadEnable    [4]bool
	WriteEnable   [4]bool
}

// RightsOf extracts the AccessRights subset of a decoded PTE.
func RightsOf(p PTE) AccessRights {
	return AccessRights{
		FOR: p.FOR, FOW: p.FOW, FOE: p.FOE,
		ReadEnable:  p.ReadEnable,
		WriteEnable: p.WriteEnable,
	}
}

// effectiveMode collapses Executive and Supervisor down through the tiers:
// Alpha defines only Kernel/Executive/Supervisor/User enable bits directly
// in the PTE (KRE/ERE/SRE/URE, KWE/EWE/SWE/UWE) — there is no further
// collapse required beyond indexing by Mode, since each mode has its own
// bit. The "fallback through tiers" language in spec.md describes how Exec
// and Super PALcode which has not set its own enable bit does not silently
// inherit Kernel's — each mode's bit is authoritative for that mode alone.
func effectiveMode(m Mode) Mode {
	return m
}

// CheckAccessRights implements spec.md §4.A check_permission against the
// reduced AccessRights a TLB entry carries: FOR/FOW/FOE block the
// corresponding access outright; otherwise the mode's R/W enable bit
// governs. Execute additionally requires read permission and a clear FOE
// bit.
func CheckAccessRights(r AccessRights, kind AccessKind, mode Mode) Outcome {
	m := effectiveMode(mode)
	switch kind {
	case AccessRead:
		if r.FOR || !r.ReadEnable[m] {
			return AccessViolation
		}
	case AccessWrite:
		if r.FOW || !r.WriteEnable[m] {
			return AccessViolation
		}
	case AccessExecute:
		if r.FOE || !r.ReadEnable[m] {
			return AccessViolation
		}
	}
	return Success
}

// CheckPermission implements spec.md §4.A check_permission directly against
// a full decoded PTE (used by the page-table walk, which has not yet
// reduced the PTE to AccessRights).
func CheckPermission(p PTE, kind AccessKind, mode Mode) Outcome {
	return CheckAccessRights(RightsOf(p), kind, mode)
}

// FaultFor returns the more specific FaultOnRead/Write/Execute outcome when
// the PTE's FOR/FOW/FOE bit (rather than a missing enable bit) is the cause
// of denial, per the error taxonomy in spec.md §7. It returns FaultNone when
// no FOR/FOW/FOE-specific fault applies; callers fall back to
// AccessViolation in that case.
type FaultKind int

const (
	FaultNone FaultKind = iota
	FaultOnRead
	FaultOnWrite
	FaultOnExecute
)

func FaultFor(p PTE, kind AccessKind) FaultKind {
	return FaultForRights(RightsOf(p), kind)
}

// FaultForRights is FaultFor evaluated against a reduced AccessRights value,
// the form a live TLB entry carries.
func FaultForRights(r AccessRights, kind AccessKind) FaultKind {
	switch kind {
	case AccessRead:
		if r.FOR {
			return FaultOnRead
		}
	case AccessWrite:
		if r.FOW {
			return FaultOnWrite
		}
	case AccessExecute:
		if r.FOE {
			return FaultOnExecute
		}
	}
	return FaultNone
}

// ITB_PTE IPR image bit positions (spec.md §4.A encode_itb_pte_read /
// decode_itb_pte_write). The image packs PFN at bits 32-51 (shared with the
// architectural PTE), USEK read-enables at bits 8-11, and ASM at bit 4 —
// the same positions as the architectural PTE, which is why the two
// transforms are near-identity save for dropping write-enable and software
// bits that ITB_PTE does not carry (instruction pages are never written
// through the TB).
const (
	itbShiftKRE = 8
	itbShiftERE = 9
	itbShiftSRE = 10
	itbShiftURE = 11
)

// EncodeITBPTERead packs the subset of PTE fields the ITB_PTE IPR exposes on
// read: valid, FOE, ASM, GH, the four read-enables, and PFN.
func EncodeITBPTERead(p PTE) uint64 {
	var raw uint64
	if p.Valid {
		raw |= 1 << bitValid
	}
	if p.FOE {
		raw |= 1 << bitFOE
	}
	if p.ASM {
		raw |= 1 << bitASM
	}
	raw |= uint64(p.GH&maskGH) << shiftGH
	if p.ReadEnable[Kernel] {
		raw |= 1 << itbShiftKRE
	}
	if p.ReadEnable[Executive] {
		raw |= 1 << itbShiftERE
	}
	if p.ReadEnable[Supervisor] {
		raw |= 1 << itbShiftSRE
	}
	if p.ReadEnable[User] {
		raw |= 1 << itbShiftURE
	}
	raw |= (p.PFN & maskPFN) << shiftPFN
	return raw
}

// DecodeITBPTEWrite is the inverse of EncodeITBPTERead: it reconstructs a
// PTE from the fields the ITB_PTE write image carries. Write-enable and
// software bits are zero since the image never carried them (Property 1,
// spec.md §8, holds only over this field subset).
func DecodeITBPTEWrite(raw uint64) PTE {
	return PTE{
		Valid: raw&(1<<bitValid) != 0,
		FOE:   raw&(1<<bitFOE) != 0,
		ASM:   raw&(1<<bitASM) != 0,
		GH:    GranularityHint((raw >> shiftGH) & maskGH),
		ReadEnable: [4]bool{
			Kernel:     raw&(1<<itbShiftKRE) != 0,
			Executive:  raw&(1<<itbShiftERE) != 0,
			Supervisor: raw&(1<<itbShiftSRE) != 0,
			User:       raw&(1<<itbShiftURE) != 0,
		},
		PFN: (raw >> shiftPFN) & maskPFN,
	}
}
