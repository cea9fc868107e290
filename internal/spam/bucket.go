/*
   spam: software page address map — the emulated TLB.

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

// Package spam implements the N-way set-associative TLB bucket (spec.md
// §4.C) and the per-CPU shard manager built on top of it (spec.md §4.D).
//
// Concurrency is a seqlock guarding inline slot storage plus a CAS-driven
// occupancy bitmap for allocation, grounded the same way the slotcache
// reference implementation pairs a generation counter with a bitmap
// allocator: readers never block, writers never starve a reader mid-scan.
package spam

import (
	"math/bits"
	"math/rand"

	"go.uber.org/atomic"

	"github.com/openalpha/ev6core/internal/epoch"
	"github.com/openalpha/ev6core/internal/pte"
)

// MaxWays is the occupancy bitmap width; N is parameterizable 1..MaxWays
// (spec.md §4.C).
const MaxWays = 64

// DefaultWays is the default set-associativity.
const DefaultWays = 4

// Tag identifies a TLB entry: VPN, size class, realm, and whether the entry
// is global (spec.md §3 TLB Tag).
type Tag struct {
	VPN      uint64
	Size     pte.GranularityHint
	Realm    pte.Realm
	IsGlobal bool
}

// Flags captures the three per-entry bits spec.md §3 names.
type Flags struct {
	Valid        bool
	Transitioning bool
	Global       bool
}

// Entry is one live (or dead) TLB slot (spec.md §3 TLB Entry).
type Entry struct {
	Tag   Tag
	ASN   uint8
	PFN   uint64
	Perm  pte.AccessRights
	Flags Flags

	ASNGenAtFill    uint32
	GlobalGenAtFill uint32
}

// matches reports whether this entry is a live hit for (tag, asn) under the
// epoch snapshot supplied — invariants 1 and 2 from spec.md §3 evaluated
// inline.
func (e *Entry) matches(tag Tag, asn uint8, asnGen, globalGen uint32) bool {
	if !e.Flags.Valid {
		return false
	}
	if e.Tag != tag {
		return false
	}
	if e.Flags.Global {
		// Invariants 1 and 2 constrain only non-global entries: a global
		// entry outlives both ASN and global epoch bumps.
		return true
	}
	if e.ASN != asn {
		return false
	}
	return e.ASNGenAtFill == asnGen && e.GlobalGenAtFill == globalGen
}

// Bucket is one N-way set-associative row of the SPAM array. The version
// counter is the seqlock: even means quiescent, odd means a writer is
// mutating the slots.
type Bucket struct {
	version   atomic.Uint32
	occupancy atomic.Uint64 // bit i set => slots[i] is allocated
	ways      int
	slots     [MaxWays]Entry
}

// Init sets the bucket's set-associativity. Must be called before use;
// ways is clamped to [1, MaxWays].
func (b *Bucket) Init(ways int) {
	if ways < 1 {
		ways = 1
	}
	if ways > MaxWays {
		ways = MaxWays
	}
	b.ways = ways
}

func (b *Bucket) wayMask() uint64 {
	if b.ways >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << b.ways) - 1
}

// Find implements the seqlock reader protocol (spec.md §4.C): scan occupied
// slots for a live match, re-validate the version did not change across the
// scan, and return a defensive copy to the caller. A version change during
// the scan restarts the scan internally. ok is false on a clean miss; retry
// is true when the version stayed odd (a writer in flight) for more than
// 1000 spins, and the caller should call Find again.
func (b *Bucket) Find(tag Tag, asn uint8, asnGen, globalGen uint32) (entry Entry, ok bool, retry bool) {
	for spins := 0; ; spins++ {
		v0 := b.version.Load()
		if v0&1 != 0 {
			if spins > 1000 {
				return Entry{}, false, true
			}
			continue // writer in flight, spin
		}

		occ := b.occupancy.Load() & b.wayMask()
		var found Entry
		hit := false
		for occ != 0 {
			i := bits.TrailingZeros64(occ)
			occ &= occ - 1
			cand := b.slots[i]
			if cand.matches(tag, asn, asnGen, globalGen) {
				found = cand
				hit = true
				break
			}
		}

		v1 := b.version.Load()
		if v0 == v1 {
			return found, hit, false
		}
		// Version moved under us: the scan may have observed a torn
		// entry (Property 5, spec.md §8). Restart.
	}
}

// Probe is a lighter-weight existence check used by the TBCHK fast path
// (spec.md §4.D probe): same seqlock discipline, no payload returned.
func (b *Bucket) Probe(tag Tag, asn uint8, asnGen, globalGen uint32) (hit bool, retry bool) {
	_, hit, retry = b.Find(tag, asn, asnGen, globalGen)
	return hit, retry
}

// tryClaimSlot CAS-loops the occupancy bitmap, allocating the lowest clear
// bit within the configured way count (spec.md §4.C try_claim_slot).
func (b *Bucket) tryClaimSlot() (slot int, ok bool) {
	mask := b.wayMask()
	for {
		occ := b.occupancy.Load()
		free := (^occ) & mask
		if free == 0 {
			return 0, false
		}
		i := bits.TrailingZeros64(free)
		newOcc := occ | (uint64(1) << i)
		if b.occupancy.CAS(occ, newOcc) {
			return i, true
		}
	}
}

// clearSlot releases an occupancy bit via CAS loop.
func (b *Bucket) clearSlot(i int) {
	for {
		occ := b.occupancy.Load()
		newOcc := occ &^ (uint64(1) << i)
		if b.occupancy.CAS(occ, newOcc) {
			return
		}
	}
}

// Insert implements the seqlock writer protocol (spec.md §4.C insert): claim
// a free slot, publish it in two phases (valid=false then valid=true) with
// the version counter bracketing the mutation so readers either see the
// fully-published entry or none of it. Returns false if the bucket (within
// its configured ways) is full — the shard manager owns the sweep+evict
// retry policy on that outcome.
func (b *Bucket) Insert(e Entry) bool {
	slot, ok := b.tryClaimSlot()
	if !ok {
		return false
	}
	e.Flags.Valid = false
	b.publish(func() {
		b.slots[slot] = e
		b.slots[slot].Flags.Valid = false
	})
	b.publish(func() {
		b.slots[slot].Flags.Valid = true
	})
	return true
}

// publish brackets fn with the even->odd->even version transition that
// makes the seqlock work: readers spinning on an odd version never observe
// a partial mutation.
func (b *Bucket) publish(fn func()) {
	b.version.Inc() // even -> odd
	fn()
	b.version.Inc() // odd -> even
}

// InvalidateSlot explicitly clears a live slot matching tag+asn (used by
// point invalidation, spec.md §4.D invalidate_va). Returns true if a slot
// was cleared.
func (b *Bucket) InvalidateSlot(tag Tag, asn uint8) bool {
	found := false
	occMask := b.wayMask()
	b.publish(func() {
		occ := b.occupancy.Load() & occMask
		for occ != 0 {
			i := bits.TrailingZeros64(occ)
			occ &= occ - 1
			e := &b.slots[i]
			if e.Flags.Valid && e.Tag == tag && (e.Flags.Global || e.ASN == asn) {
				e.Flags.Valid = false
				found = true
			}
		}
	})
	if found {
		// Slot payload stays for diagnostics; occupancy bit is freed so
		// the allocator can reuse it (lifecycle, spec.md §3).
		b.sweepOccupancyForInvalid()
	}
	return found
}

// sweepOccupancyForInvalid releases occupancy bits for any slot whose
// Flags.Valid is false, letting tryClaimSlot reuse them. Not under the
// seqlock since occupancy and slot payload are independent structures and
// a reader only ever trusts a slot after checking Flags.Valid under a
// stable version.
func (b *Bucket) sweepOccupancyForInvalid() {
	occMask := b.wayMask()
	occ := b.occupancy.Load() & occMask
	for occ != 0 {
		i := bits.TrailingZeros64(occ)
		occ &= occ - 1
		if !b.slots[i].Flags.Valid {
			b.clearSlot(i)
		}
	}
}

// SweepDeadForASN implements spec.md §4.C sweep_dead_for_asn: invalidate
// every non-global occupied entry for asn whose asn_gen_at_fill no longer
// matches curGen, and reclaim its slot. Optional for correctness (the lazy
// invariant already hides it from Find), mandatory for slot reclamation.
func (b *Bucket) SweepDeadForASN(asn uint8, curGen uint32) int {
	swept := 0
	occMask := b.wayMask()
	b.publish(func() {
		occ := b.occupancy.Load() & occMask
		for occ != 0 {
			i := bits.TrailingZeros64(occ)
			occ &= occ - 1
			e := &b.slots[i]
			if e.Flags.Valid && !e.Flags.Global && e.ASN == asn && e.ASNGenAtFill != curGen {
				e.Flags.Valid = false
				swept++
			}
		}
	})
	if swept > 0 {
		b.sweepOccupancyForInvalid()
	}
	return swept
}

// SweepDeadGlobal drops every non-global entry whose global_gen_at_fill no
// longer matches curGlobalGen, mirroring SweepDeadForASN for the global
// axis (used opportunistically after BumpGlobal to reclaim slots instead of
// waiting for the next insert's full-bucket path).
func (b *Bucket) SweepDeadGlobal(curGlobalGen uint32) int {
	swept := 0
	occMask := b.wayMask()
	b.publish(func() {
		occ := b.occupancy.Load() & occMask
		for occ != 0 {
			i := bits.TrailingZeros64(occ)
			occ &= occ - 1
			e := &b.slots[i]
			if e.Flags.Valid && !e.Flags.Global && e.GlobalGenAtFill != curGlobalGen {
				e.Flags.Valid = false
				swept++
			}
		}
	})
	if swept > 0 {
		b.sweepOccupancyForInvalid()
	}
	return swept
}

// EvictRandom evicts one occupied, non-pinned (all entries here are
// unpinned — the core defines no pinning mechanism) slot at random, the
// fallback insertion policy for a bucket still full after a sweep+retry
// (spec.md §4.C "random-victim eviction").
func (b *Bucket) EvictRandom(rng *rand.Rand) bool {
	occMask := b.wayMask()
	occ := b.occupancy.Load() & occMask
	if occ == 0 {
		return false
	}
	// Collect candidate way indices then pick uniformly — the bitmap is at
	// most 64 bits so this is cheap.
	var candidates []int
	for occ != 0 {
		i := bits.TrailingZeros64(occ)
		occ &= occ - 1
		candidates = append(candidates, i)
	}
	victim := candidates[rng.Intn(len(candidates))]
	b.publish(func() {
		b.slots[victim].Flags.Valid = false
	})
	b.clearSlot(victim)
	return true
}

// StampEntry fills in the two generation axes for a freshly constructed
// entry from an epoch snapshot, the shape spec.md §4.D insert uses.
func StampEntry(e *Entry, stamp epoch.Stamp) {
	e.ASNGenAtFill = stamp.ASNGen
	e.GlobalGenAtFill = stamp.GlobalGen
}
