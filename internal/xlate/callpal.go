package xlate

import "github.com/openalpha/ev6core/internal/pte"

// CallPalClass distinguishes the three function-number ranges spec.md §4.F
// F5 defines.
type CallPalClass int

const (
	CallPalPrivileged CallPalClass = iota
	CallPalUnprivileged
	CallPalIllegal
)

// ClassifyCallPal buckets an 8-bit CALL_PAL function number (spec.md §4.F
// F5): 0x00-0x3F privileged, 0x80-0xBF unprivileged, everything else
// illegal.
func ClassifyCallPal(fn uint8) CallPalClass {
	switch {
	case fn <= 0x3F:
		return CallPalPrivileged
	case fn >= 0x80 && fn <= 0xBF:
		return CallPalUnprivileged
	default:
		return CallPalIllegal
	}
}

const (
	callPalPrivOffset   = 0x2000
	callPalUnprivOffset = 0x3000
	callPalFuncShift    = 6
	palModeBit          = 1
)

// Dispatch implements spec.md §4.F F5: compute the target PC for a
// CALL_PAL of function fn from mode, enforcing that privileged functions
// require Kernel mode (OPCDEC fault otherwise) and rejecting the illegal
// range outright. r23 receives the return-linkage value: the caller's PC
// with bit 0 recording whether the caller was already in PALmode.
func Dispatch(palBase uint64, fn uint8, mode pte.Mode, callerPC uint64, callerWasPALMode bool, cpuID int) (targetPC uint64, r23 uint64, fault *Fault) {
	class := ClassifyCallPal(fn)
	switch class {
	case CallPalIllegal:
		f := &Fault{Kind: FaultIllegalIPR, CPU: cpuID, Mode: mode}
		return 0, 0, f
	case CallPalPrivileged:
		if mode != pte.Kernel {
			f := &Fault{Kind: FaultIllegalIPR, CPU: cpuID, Mode: mode}
			return 0, 0, f
		}
		targetPC = palBase | callPalPrivOffset | (uint64(fn) << callPalFuncShift)
	case CallPalUnprivileged:
		targetPC = palBase | callPalUnprivOffset | (uint64(fn) << callPalFuncShift)
	}

	targetPC |= palModeBit // PALmode bit set on entry

	r23 = callerPC &^ palModeBit
	if callerWasPALMode {
		r23 |= palModeBit
	}
	return targetPC, r23, nil
}

// PalFunction is a diagnostic-only mnemonic table (SPEC_FULL.md
// supplement 5): dispatch itself needs only the numeric ranges above, but
// logging a raw function number is useless to a human reading a trace.
type PalFunction struct {
	Number uint8
	Name   string
}

// StandardOSF1Functions lists the common OSF/1 PALcode function numbers
// used for diagnostic logging only.
var StandardOSF1Functions = []PalFunction{
	{0x00, "HALT"},
	{0x01, "CFLUSH"},
	{0x09, "DRAINA"},
	{0x2B, "WRVPTPTR"},
	{0x30, "SWPCTX"},
	{0x31, "WRVAL"},
	{0x32, "RDVAL"},
	{0x33, "TBI"},
	{0x34, "WRENT"},
	{0x35, "SWPIPL"},
	{0x36, "RDPS"},
	{0x37, "WRKGP"},
	{0x38, "WRUSP"},
	{0x3A, "WRPERFMON"},
	{0x3B, "REI"},
	{0x80, "BPT"},
	{0x81, "BUGCHK"},
	{0x83, "CALLSYS"},
	{0x86, "IMB"},
	{0x9E, "RDUNIQUE"},
	{0x9F, "WRUNIQUE"},
}

// NameForCallPal looks up the diagnostic mnemonic for fn, if known.
func NameForCallPal(fn uint8) string {
	for _, f := range StandardOSF1Functions {
		if f.Number == fn {
			return f.Name
		}
	}
	return "UNKNOWN"
}
