package spam

import (
	"sync"
	"testing"

	"github.com/openalpha/ev6core/internal/pte"
)

func testPTE(pfn uint64, asm bool, kre bool) pte.PTE {
	return pte.PTE{
		Valid: true,
		ASM:   asm,
		GH:    pte.GH1,
		PFN:   pfn,
		ReadEnable:  [4]bool{kre, kre, kre, kre},
		WriteEnable: [4]bool{false, false, false, false},
	}
}

// Scenario S2 (spec.md §8): insert PFN=0x12345, ASN=7, KRE=1; lookup va=0x2000.
func TestShardLookupScenarioS2(t *testing.T) {
	s := NewShard(DefaultBucketsPerRealm, DefaultWays, 1)
	p := testPTE(0x12345, false, true)
	if res := s.Insert(pte.Data, 0x2000, 7, p); res != InsertOK {
		t.Fatalf("insert failed: %v", res)
	}
	tr, ok := s.Lookup(pte.Data, 0x2000, 7)
	if !ok {
		t.Fatal("expected hit")
	}
	if tr.PA != 0x2468A000 {
		t.Errorf("PA = %#x, want %#x", tr.PA, 0x2468A000)
	}
	if !tr.Perm.ReadEnable[pte.Kernel] {
		t.Errorf("expected kernel read permission")
	}
}

// Scenario S3: TLB miss after ASN invalidation (Property 3).
func TestShardInvalidateASNScenarioS3(t *testing.T) {
	s := NewShard(DefaultBucketsPerRealm, DefaultWays, 1)
	p := testPTE(0x12345, false, true)
	s.Insert(pte.Data, 0x2000, 7, p)

	s.InvalidateASN(pte.Data, 7)

	if _, ok := s.Lookup(pte.Data, 0x2000, 7); ok {
		t.Error("expected miss after invalidate_asn")
	}
}

// Scenario S4: global entry survives ASN invalidation (Property 4).
func TestShardGlobalSurvivesASNInvalidateScenarioS4(t *testing.T) {
	s := NewShard(DefaultBucketsPerRealm, DefaultWays, 1)
	p := testPTE(0x12345, true, true)
	s.Insert(pte.Data, 0x2000, 7, p)

	s.InvalidateASN(pte.Data, 7)

	if _, ok := s.Lookup(pte.Data, 0x2000, 42); !ok {
		t.Error("expected global entry to survive invalidate_asn under any ASN")
	}
}

// Property 4: invalidate_global hides non-global entries, keeps global ones.
func TestInvalidateGlobalProperty4(t *testing.T) {
	s := NewShard(DefaultBucketsPerRealm, DefaultWays, 1)
	s.Insert(pte.Data, 0x2000, 1, testPTE(0x1, false, true))
	s.Insert(pte.Data, 0x4000, 1, testPTE(0x2, true, true))

	s.InvalidateGlobal()

	if _, ok := s.Lookup(pte.Data, 0x2000, 1); ok {
		t.Error("non-global entry should be invisible after invalidate_global")
	}
	if _, ok := s.Lookup(pte.Data, 0x4000, 1); !ok {
		t.Error("global entry should survive invalidate_global")
	}
}

func TestInvalidateVAPointInvalidation(t *testing.T) {
	s := NewShard(DefaultBucketsPerRealm, DefaultWays, 1)
	s.Insert(pte.Instruction, 0x8000, 3, testPTE(0x9, false, true))
	if _, ok := s.Lookup(pte.Instruction, 0x8000, 3); !ok {
		t.Fatal("expected hit before invalidation")
	}
	s.InvalidateInstructionStreamVA(0x8000, 3)
	if _, ok := s.Lookup(pte.Instruction, 0x8000, 3); ok {
		t.Error("expected miss after invalidate_va")
	}
}

func TestProbeFindsFilledEntry(t *testing.T) {
	s := NewShard(DefaultBucketsPerRealm, DefaultWays, 1)
	s.Insert(pte.Data, 0x6000, 9, testPTE(0x3, false, true))
	if !s.Probe(pte.Data, 0x6000, 9) {
		t.Error("expected probe hit")
	}
	if s.Probe(pte.Instruction, 0x6000, 9) {
		t.Error("expected probe miss on wrong realm")
	}
}

// Property 5 (seqlock linearizability): concurrent inserts and finds never
// return a torn entry — every PA/perm observed corresponds to some inserted
// PTE, never a mix of two.
func TestConcurrentInsertFindNeverTorn(t *testing.T) {
	s := NewShard(16, DefaultWays, 7)
	const n = 200
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			pfn := uint64(0x10000 + i)
			s.Insert(pte.Data, uint64(i%8)*pte.PageSize, 5, testPTE(pfn, false, true))
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			tr, ok := s.Lookup(pte.Data, uint64(i%8)*pte.PageSize, 5)
			if ok {
				// A valid PFN must reconstruct to a PA whose page-aligned
				// portion matches exactly one PFN value we ever inserted;
				// nothing resembling a torn mix of two PFNs is possible
				// since PFN is a single uint64 field written atomically
				// under the seqlock bracket.
				if tr.PA&pte.PageOffsetMask != 0 {
					t.Errorf("PA not page aligned at offset 0: %#x", tr.PA)
				}
			}
		}
	}()

	wg.Wait()
}

func TestInsertFullBucketEvicts(t *testing.T) {
	s := NewShard(1, 2, 3) // one bucket, two ways: forces eviction quickly
	for i := 0; i < 10; i++ {
		res := s.Insert(pte.Data, uint64(i)*pte.PageSize*64, 1, testPTE(uint64(i), false, true))
		if res != InsertOK {
			t.Fatalf("insert %d should succeed via sweep/evict, got %v", i, res)
		}
	}
}
