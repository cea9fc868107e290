package sysctx

import (
	"testing"

	"github.com/openalpha/ev6core/internal/eventlog"
	"github.com/openalpha/ev6core/internal/guestmem"
	"github.com/openalpha/ev6core/internal/platform"
	"github.com/openalpha/ev6core/internal/pte"
)

func newTestSystem(numCPUs int) *SystemContext {
	return New(numCPUs, 16, 4, guestmem.NewFlatMemory(1<<20), eventlog.NullSink{}, platform.Default(), pte.VaCtl(0))
}

func TestNewPopulatesEveryCPU(t *testing.T) {
	sc := newTestSystem(4)
	if sc.NumCPUs() != 4 {
		t.Fatalf("NumCPUs = %d, want 4", sc.NumCPUs())
	}
	for i := 0; i < 4; i++ {
		c := sc.CPU(i)
		if c == nil || c.ID != i || c.IPR == nil || c.Spam == nil || c.Inbox == nil {
			t.Errorf("CPU(%d) incompletely initialized: %+v", i, c)
		}
	}
}

func TestCPUOutOfRangeReturnsNil(t *testing.T) {
	sc := newTestSystem(2)
	if sc.CPU(-1) != nil || sc.CPU(2) != nil {
		t.Error("expected nil for out-of-range CPU IDs")
	}
}

func TestPeersExcludesSelf(t *testing.T) {
	sc := newTestSystem(3)
	peers := sc.Peers(1)
	if len(peers) != 2 {
		t.Fatalf("len(peers) = %d, want 2", len(peers))
	}
	for _, p := range peers {
		if p.ID == 1 {
			t.Error("Peers(1) should not include CPU 1 itself")
		}
	}
}
