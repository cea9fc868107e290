package xlate

// Settings are the engine-wide configurable behaviors spec.md §9's Open
// Questions leave to the implementer, wired through from internal/config.
type Settings struct {
	// TLBCheckBothRealms resolves Open Question 1: whether TBCHK probes
	// only the realm the caller names, or both I and D SPAM arrays.
	// Default false (probe only the requested realm).
	TLBCheckBothRealms bool

	// BroadcastShootdownOnInsert resolves Open Question 2: whether every
	// TLB insert on an SMP system proactively shoots down the inserted VA
	// on every peer, instead of relying on peers to walk and fill lazily.
	// Default false.
	BroadcastShootdownOnInsert bool

	// AlignmentBytes is the natural alignment F1's alignment check
	// enforces; spec.md §4.F names 8-byte as the default with room for
	// "extensions for narrower loads."
	AlignmentBytes int

	// FlushAllOnContextSwitch resolves the context-switch behavior
	// SPEC_FULL.md's HWRPB/PCB supplement leaves configurable: a SWPCTX
	// reloading PTBR/ASN can either flush only the outgoing ASN's
	// entries (default, since ASN-tagging exists precisely to avoid
	// full flushes) or flush everything.
	FlushAllOnContextSwitch bool
}

// DefaultSettings returns the spec-mandated defaults for every Open
// Question: both flags off, 8-byte natural alignment, per-ASN flush on
// context switch.
func DefaultSettings() Settings {
	return Settings{
		TLBCheckBothRealms:         false,
		BroadcastShootdownOnInsert: false,
		AlignmentBytes:             8,
		FlushAllOnContextSwitch:    false,
	}
}
