package spam

/*
 * spam - per-CPU shard manager: hashing, lookup/probe/insert, invalidation.
 *
 * Copyright (c) 2026, EV6 Core Contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

import (
	"math/rand"

	"github.com/openalpha/ev6core/internal/epoch"
	"github.com/openalpha/ev6core/internal/pte"
)

// DefaultBucketsPerRealm is the power-of-2 bucket count per realm array
// (spec.md §4.D "default 256").
const DefaultBucketsPerRealm = 256

// Translation is the successful lookup result (spec.md §4.D lookup).
type Translation struct {
	PA   uint64
	Perm pte.AccessRights
	Size pte.GranularityHint
}

// Shard is one CPU's TLB: one bucket array per realm, plus the epoch table
// that stamps and invalidates entries in it. Only the owning CPU mutates a
// Shard; peers only reach it through the IPI-driven invalidation methods
// (spec.md §5).
type Shard struct {
	Epoch *epoch.Table

	buckets    [2][]Bucket // indexed by pte.Realm
	numBuckets int
	ways       int
	rng        *rand.Rand
}

// NewShard builds a shard with numBuckets buckets per realm (rounded up to
// a power of two) and ways set-associativity per bucket.
func NewShard(numBuckets, ways int, rngSeed int64) *Shard {
	numBuckets = nextPow2(numBuckets)
	s := &Shard{
		Epoch:      epoch.New(),
		numBuckets: numBuckets,
		ways:       ways,
		rng:        rand.New(rand.NewSource(rngSeed)),
	}
	for r := 0; r < 2; r++ {
		arr := make([]Bucket, numBuckets)
		for i := range arr {
			arr[i].Init(ways)
		}
		s.buckets[r] = arr
	}
	return s
}

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// hashIndex folds VPN and ASN into a bucket index, masking size-class bits
// out of the VPN first so superpages of a given size land on aligned,
// non-aliasing indices (spec.md §4.D "size-class hint ... drives the
// bucket-index hash").
func (s *Shard) hashIndex(vpn uint64, gh pte.GranularityHint, asn uint8) int {
	aligned := vpn &^ (gh.PageCount() - 1)
	h := aligned*0x9E3779B97F4A7C15 + uint64(asn)*0xBF58476D1CE4E5B9
	return int(h) & (s.numBuckets - 1)
}

func (s *Shard) bucket(realm pte.Realm, idx int) *Bucket {
	return &s.buckets[realm][idx]
}

// Lookup implements spec.md §4.D lookup: the caller does not know in advance
// which superpage size class (if any) covers va, so — exactly like Probe —
// it tries every size class and both the global and non-global tag shape
// (up to 8 bucket scans) and returns the first live match, with its
// permission mask and recomposed PA.
func (s *Shard) Lookup(realm pte.Realm, va uint64, asn uint8) (Translation, bool) {
	vpn := va >> pte.PageOffsetBits
	asnGen := s.Epoch.Current(realm, asn)
	globalGen := s.Epoch.CurrentGlobal()

	for _, gh := range allGranularities {
		aligned := vpn &^ (gh.PageCount() - 1)
		idx := s.hashIndex(vpn, gh, asn)
		b := s.bucket(realm, idx)
		for _, global := range [...]bool{false, true} {
			tag := Tag{VPN: aligned, Size: gh, Realm: realm, IsGlobal: global}
			for {
				e, ok, retry := b.Find(tag, asn, asnGen, globalGen)
				if retry {
					continue
				}
				if !ok {
					break
				}
				offsetMask := gh.PageCount()*pte.PageSize - 1
				pa := (e.PFN << pte.PageOffsetBits) | (va & offsetMask)
				return Translation{PA: pa & pte.PhysicalMask, Perm: e.Perm, Size: e.Size()}, true
			}
		}
	}
	return Translation{}, false
}

// Size returns the tag's granularity hint so callers never need to reach
// into Tag directly.
func (e Entry) Size() pte.GranularityHint { return e.Tag.Size }

// allGranularities lists every size class probe must try (spec.md §4.D
// probe: "scans all 4 possible size classes").
var allGranularities = [...]pte.GranularityHint{pte.GH1, pte.GH8, pte.GH64, pte.GH512}

// Probe implements spec.md §4.D probe / the TBCHK fast path: try every size
// class, both the global and non-global tag shape, up to 8 bucket scans.
func (s *Shard) Probe(realm pte.Realm, va uint64, asn uint8) bool {
	vpn := va >> pte.PageOffsetBits
	asnGen := s.Epoch.Current(realm, asn)
	globalGen := s.Epoch.CurrentGlobal()

	for _, gh := range allGranularities {
		aligned := vpn &^ (gh.PageCount() - 1)
		idx := s.hashIndex(vpn, gh, asn)
		b := s.bucket(realm, idx)
		for _, global := range [...]bool{false, true} {
			tag := Tag{VPN: aligned, Size: gh, Realm: realm, IsGlobal: global}
			for {
				hit, retry := b.Probe(tag, asn, asnGen, globalGen)
				if retry {
					continue
				}
				if hit {
					return true
				}
				break
			}
		}
	}
	return false
}

// ProbeEitherRealm is the dual-realm TBCHK interpretation left open by
// spec.md §9 Open Question 1: probes both Instruction and Data SPAM arrays
// and returns true if either has a live match. Wired in behind
// Settings.TLBCheckBothRealms (SPEC_FULL.md "Supplemented features" §2).
func (s *Shard) ProbeEitherRealm(va uint64, asn uint8) bool {
	return s.Probe(pte.Instruction, va, asn) || s.Probe(pte.Data, va, asn)
}

// InsertResult distinguishes why Insert did not simply succeed, so the
// translation engine can map a hard failure to TlbInsertionFailed
// (spec.md §7).
type InsertResult int

const (
	InsertOK InsertResult = iota
	InsertFailed
)

// Insert implements spec.md §4.D insert: extract PFN/permission/size from
// the PTE, stamp both generations, and write through to the bucket. On a
// full bucket it sweeps dead entries for asn and retries once; if still
// full, evicts a random victim (spec.md §4.C "Insertion policy on full").
func (s *Shard) Insert(realm pte.Realm, va uint64, asn uint8, p pte.PTE) InsertResult {
	if s.Epoch.SweepRequested.Load() {
		// Wrap guard fired: the global epoch was bumped, so every
		// non-global entry filled before it is dead; reclaim them all.
		cur := s.Epoch.CurrentGlobal()
		for r := 0; r < 2; r++ {
			for i := range s.buckets[r] {
				s.buckets[r][i].SweepDeadGlobal(cur)
			}
		}
		s.Epoch.SweepRequested.Store(false)
	}

	gh := p.GH
	vpn := (va >> pte.PageOffsetBits) &^ (gh.PageCount() - 1)
	idx := s.hashIndex(va>>pte.PageOffsetBits, gh, asn)
	tag := Tag{VPN: vpn, Size: gh, Realm: realm, IsGlobal: p.ASM}

	stamp := s.Epoch.StampFor(realm, asn)
	e := Entry{
		Tag:  tag,
		ASN:  asn,
		PFN:  p.PFN,
		Perm: pte.RightsOf(p),
		Flags: Flags{
			Global: p.ASM,
		},
	}
	StampEntry(&e, stamp)

	b := s.bucket(realm, idx)
	if b.Insert(e) {
		return InsertOK
	}

	// Full: sweep dead entries for this ASN, retry once.
	b.SweepDeadForASN(asn, stamp.ASNGen)
	b.SweepDeadGlobal(stamp.GlobalGen)
	if b.Insert(e) {
		return InsertOK
	}

	// Still full: evict a random victim and retry.
	if b.EvictRandom(s.rng) && b.Insert(e) {
		return InsertOK
	}
	return InsertFailed
}

// InvalidateASN implements spec.md §4.D invalidate_asn: bump the realm/ASN
// epoch (O(1), Property 3) and opportunistically sweep every bucket so dead
// slots are reclaimed without waiting for the next full-bucket insert.
func (s *Shard) InvalidateASN(realm pte.Realm, asn uint8) {
	s.Epoch.BumpRealm(realm, asn)
	cur := s.Epoch.Current(realm, asn)
	for i := range s.buckets[realm] {
		s.buckets[realm][i].SweepDeadForASN(asn, cur)
	}
}

// InvalidateAll implements spec.md §4.D invalidate_all: bump every ASN
// epoch for the realm.
func (s *Shard) InvalidateAll(realm pte.Realm) {
	for asn := 0; asn < 256; asn++ {
		s.Epoch.BumpRealm(realm, uint8(asn))
	}
}

// InvalidateASNBothRealms is the realm-unqualified TBIAP variant (spec.md
// glossary: "invalidate-all-per-ASN", unlike TBISD/TBISI which are
// explicitly per-realm): bump asn's epoch in both Instruction and Data,
// then sweep dead slots for asn out of both realms' buckets.
func (s *Shard) InvalidateASNBothRealms(asn uint8) {
	s.Epoch.BumpBoth(asn)
	for r := 0; r < 2; r++ {
		realm := pte.Realm(r)
		cur := s.Epoch.Current(realm, asn)
		for i := range s.buckets[r] {
			s.buckets[r][i].SweepDeadForASN(asn, cur)
		}
	}
}

// InvalidateAllBothRealms is the realm-unqualified TBIA variant (spec.md
// glossary: plain "invalidate-all"): bump every counter the epoch table
// holds — global plus every ASN in both realms — in one call.
func (s *Shard) InvalidateAllBothRealms() {
	s.Epoch.BumpAll()
}

// InvalidateGlobal implements spec.md §4.D invalidate_global: bump the
// global epoch, O(1), killing every non-global entry (Property 4).
func (s *Shard) InvalidateGlobal() {
	s.Epoch.BumpGlobal()
	cur := s.Epoch.CurrentGlobal()
	for r := 0; r < 2; r++ {
		for i := range s.buckets[r] {
			s.buckets[r][i].SweepDeadGlobal(cur)
		}
	}
}

// InvalidateVA implements spec.md §4.D invalidate_va: point invalidation
// used by TBIS when precise (not epoch-bump) invalidation is required.
// Tries every granularity since the caller may not know which size class
// filled the entry.
func (s *Shard) InvalidateVA(realm pte.Realm, va uint64, asn uint8) {
	vpn := va >> pte.PageOffsetBits
	for _, gh := range allGranularities {
		aligned := vpn &^ (gh.PageCount() - 1)
		idx := s.hashIndex(vpn, gh, asn)
		b := s.bucket(realm, idx)
		for _, global := range [...]bool{false, true} {
			tag := Tag{VPN: aligned, Size: gh, Realm: realm, IsGlobal: global}
			b.InvalidateSlot(tag, asn)
		}
	}
}

// InvalidateInstructionStreamVA is the TBISI variant of InvalidateVA.
func (s *Shard) InvalidateInstructionStreamVA(va uint64, asn uint8) {
	s.InvalidateVA(pte.Instruction, va, asn)
}

// InvalidateDataStreamVA is the TBISD variant of InvalidateVA.
func (s *Shard) InvalidateDataStreamVA(va uint64, asn uint8) {
	s.InvalidateVA(pte.Data, va, asn)
}
