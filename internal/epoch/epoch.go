/*
   epoch: per-CPU two-axis generation counters for lazy TLB invalidation.

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

// Package epoch implements the per-CPU generation-counter table that backs
// the SPAM shard's lazy invalidation protocol (spec.md §4.B). Every counter
// is lock-free: relaxed loads on the read side, release-ordered
// read-modify-write on the bump side.
package epoch

import (
	"go.uber.org/atomic"

	"github.com/openalpha/ev6core/internal/pte"
)

const numASN = 256

// wrapGuardThreshold is half the 32-bit counter space (spec.md §4.B wrap
// semantics): crossing it triggers a defensive bump_all plus a sweep
// request so no stamped generation can falsely alias a wrapped counter.
const wrapGuardThreshold = uint32(1) << 31

// Table holds one CPU's global epoch plus the 256-entry per-ASN epoch
// arrays for each realm. Lifetime equals CPU lifetime; peers never touch
// another CPU's table (spec.md §5).
type Table struct {
	global    atomic.Uint32
	itb       [numASN]atomic.Uint32
	dtb       [numASN]atomic.Uint32
	bumpCount atomic.Uint32 // counts total bumps across all counters, for wrap-guard scheduling

	// SweepRequested is set when a wrap-guard threshold is crossed; the
	// SPAM shard manager checks it opportunistically (e.g. on insert) and
	// clears it after sweeping all buckets for the owning CPU.
	SweepRequested atomic.Bool
}

// New returns a zeroed epoch table (power-on state).
func New() *Table {
	return &Table{}
}

func (t *Table) realmArray(realm pte.Realm) *[numASN]atomic.Uint32 {
	if realm == pte.Instruction {
		return &t.itb
	}
	return &t.dtb
}

// Current returns the current epoch for (realm, asn), relaxed load. The
// seqlock on the owning SPAM bucket provides the acquire fence needed to
// make this read-modify-write-free load safe to pair with a stamped entry
// (spec.md §5 Ordering guarantees).
func (t *Table) Current(realm pte.Realm, asn uint8) uint32 {
	arr := t.realmArray(realm)
	return arr[asn].Load()
}

// CurrentGlobal returns the current global epoch, relaxed load.
func (t *Table) CurrentGlobal() uint32 {
	return t.global.Load()
}

func (t *Table) noteBump() {
	if t.bumpCount.Inc() >= wrapGuardThreshold {
		t.bumpCount.Store(0)
		t.bumpAllLocked()
		t.SweepRequested.Store(true)
	}
}

// BumpRealm increments the (realm, asn) epoch, release-ordered, invalidating
// every non-global entry stamped with the prior value (spec.md §4.D
// invalidate_asn calls this).
func (t *Table) BumpRealm(realm pte.Realm, asn uint8) {
	arr := t.realmArray(realm)
	arr[asn].Inc()
	t.noteBump()
}

// BumpBoth increments the epoch for asn in both realms (used when a caller
// wants to invalidate an ASN everywhere without specifying I vs D).
func (t *Table) BumpBoth(asn uint8) {
	t.itb[asn].Inc()
	t.dtb[asn].Inc()
	t.noteBump()
}

// BumpGlobal increments the global epoch, release-ordered. This is the O(1)
// operation that kills every non-global entry across every ASN and realm
// (spec.md §4.D invalidate_global, Property 4).
func (t *Table) BumpGlobal() {
	t.global.Inc()
	t.noteBump()
}

// bumpAllLocked bumps every counter in the table. Only called from
// noteBump's wrap-guard path; "locked" here just documents that it runs
// inline with whatever bump triggered it, not that it takes a mutex — every
// counter here is already independently atomic.
func (t *Table) bumpAllLocked() {
	t.global.Inc()
	for i := range t.itb {
		t.itb[i].Inc()
		t.dtb[i].Inc()
	}
}

// BumpAll increments every counter in the table: global plus all 256 ASN
// slots in both realms. Used by TBIA (invalidate every non-global entry
// this CPU holds; global entries are not checked against these counters),
// spec.md §4.D invalidate_all semantics generalized across realms.
func (t *Table) BumpAll() {
	t.bumpAllLocked()
}

// Reset zeroes every counter. Power-on only — never call this once the CPU
// has published any TLB entries, since a reset can make a stale
// asn_gen_at_fill alias the fresh epoch (spec.md §4.B).
func (t *Table) Reset() {
	t.global.Store(0)
	t.bumpCount.Store(0)
	t.SweepRequested.Store(false)
	for i := range t.itb {
		t.itb[i].Store(0)
		t.dtb[i].Store(0)
	}
}

// Stamp captures the pair of generation values a TLB entry is filled with
// at insert time (spec.md §3 TLB Entry: asn_gen_at_fill, global_gen_at_fill).
type Stamp struct {
	ASNGen    uint32
	GlobalGen uint32
}

// StampFor reads both axes for (realm, asn) in one call, the sequence the
// SPAM shard manager's insert path uses to fill a new entry.
func (t *Table) StampFor(realm pte.Realm, asn uint8) Stamp {
	return Stamp{
		ASNGen:    t.Current(realm, asn),
		GlobalGen: t.CurrentGlobal(),
	}
}
