package xlate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openalpha/ev6core/internal/eventlog"
	"github.com/openalpha/ev6core/internal/guestmem"
	"github.com/openalpha/ev6core/internal/ipi"
	"github.com/openalpha/ev6core/internal/platform"
	"github.com/openalpha/ev6core/internal/pte"
	"github.com/openalpha/ev6core/internal/sysctx"
)

func newTestSystem(t *testing.T, numCPUs int) *sysctx.SystemContext {
	t.Helper()
	mem := guestmem.NewFlatMemory(1 << 24)
	return sysctx.New(numCPUs, 64, 4, mem, eventlog.NullSink{}, platform.Default(), pte.VaCtl(0))
}

// Scenario S1 — KSeg translation.
func TestTranslateKSegScenarioS1(t *testing.T) {
	sc := newTestSystem(t, 1)
	va := uint64(0xFFFFFC0000001000)
	pa, outcome, fault := Translate(sc, 0, va, pte.AccessRead, pte.Kernel, DefaultSettings())
	require.Nil(t, fault)
	require.Equal(t, pte.Success, outcome)
	require.Equal(t, uint64(0x00000C0000001000), pa)
}

func TestTranslateKSegFromUserFaults(t *testing.T) {
	sc := newTestSystem(t, 1)
	va := uint64(0xFFFFFC0000001000)
	_, outcome, fault := Translate(sc, 0, va, pte.AccessRead, pte.User, DefaultSettings())
	require.NotNil(t, fault)
	require.Equal(t, pte.AccessViolation, outcome)
}

func testPTE(pfn uint64, asm, kre, kwe bool) pte.PTE {
	return pte.PTE{
		Valid:       true,
		ASM:         asm,
		GH:          pte.GH1,
		PFN:         pfn,
		ReadEnable:  [4]bool{pte.Kernel: kre},
		WriteEnable: [4]bool{pte.Kernel: kwe},
	}
}

// Scenario S2 variant exercised through the engine's Translate entry point
// rather than the shard directly.
func TestTranslateHitAfterDirectInsert(t *testing.T) {
	sc := newTestSystem(t, 1)
	cpu := sc.CPU(0)
	cpu.IPR.Hot.SetASN(7)

	cpu.Spam.Insert(pte.Data, 0x2000, 7, testPTE(0x12345, false, true, false))

	pa, outcome, fault := Translate(sc, 0, 0x2000, pte.AccessRead, pte.Kernel, DefaultSettings())
	require.Nil(t, fault)
	require.Equal(t, pte.Success, outcome)
	require.Equal(t, uint64(0x2468A000), pa)
}

// Scenario S5 — FOW fault.
func TestTranslateFaultOnWriteScenarioS5(t *testing.T) {
	sc := newTestSystem(t, 1)
	cpu := sc.CPU(0)
	cpu.IPR.Hot.SetASN(1)

	p := testPTE(0x1, false, true, true)
	p.FOW = true
	cpu.Spam.Insert(pte.Data, 0x4000, 1, p)

	_, outcome, fault := Translate(sc, 0, 0x4000, pte.AccessWrite, pte.Kernel, DefaultSettings())
	require.Equal(t, pte.AccessViolation, outcome)
	require.NotNil(t, fault)
	require.Equal(t, FaultOnWrite, fault.Kind)
}

func TestTranslateMissReturnsTlbMiss(t *testing.T) {
	sc := newTestSystem(t, 1)
	_, outcome, fault := Translate(sc, 0, 0x8000, pte.AccessRead, pte.Kernel, DefaultSettings())
	require.Equal(t, pte.TlbMiss, outcome)
	require.NotNil(t, fault)
	require.Equal(t, FaultTlbMiss, fault.Kind)
}

func TestTranslateUnalignedFaults(t *testing.T) {
	sc := newTestSystem(t, 1)
	s := DefaultSettings()
	_, outcome, fault := TranslateSized(sc, 0, 0x1003, pte.AccessRead, pte.Kernel, 8, s)
	require.Equal(t, pte.Unaligned, outcome)
	require.NotNil(t, fault)
	require.Equal(t, FaultUnaligned, fault.Kind)
}

func TestTranslateSuperpageWindowBypassesTLB(t *testing.T) {
	sc := newTestSystem(t, 1)
	pa, outcome, fault := Translate(sc, 0, 0x20000010, pte.AccessRead, pte.Kernel, DefaultSettings())
	require.Nil(t, fault)
	require.Equal(t, pte.Success, outcome)
	require.Equal(t, uint64(0x20000010), pa)
}

// writeQuad places a little-endian quadword at pa in a FlatMemory-backed
// GuestMemory, the same helper shape the page-table walk test needs.
func writeQuad(t *testing.T, mem *guestmem.FlatMemory, pa, v uint64) {
	t.Helper()
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v)
		v >>= 8
	}
	require.NoError(t, mem.WritePA(pa, buf))
}

func TestHandleMissWalksThreeLevelsAndInserts(t *testing.T) {
	sc := newTestSystem(t, 1)
	mem := sc.Memory.(*guestmem.FlatMemory)
	cpu := sc.CPU(0)

	va := uint64(0x100000) // l1=0 l2=0 l3=0x80 -> bits 13-22
	l1Pfn := uint64(1)
	l2Pfn := uint64(2)
	l3Pfn := uint64(3)

	l1idx := (va >> l1Shift) & levelIndexMask
	l2idx := (va >> l2Shift) & levelIndexMask
	l3idx := (va >> l3Shift) & levelIndexMask

	writeQuad(t, mem, (l1Pfn<<pte.PageOffsetBits)+l1idx*8, pte.PTE{Valid: true, PFN: l2Pfn}.Encode())
	writeQuad(t, mem, (l2Pfn<<pte.PageOffsetBits)+l2idx*8, pte.PTE{Valid: true, PFN: l3Pfn}.Encode())
	leafPTE := testPTE(0x999, false, true, false)
	writeQuad(t, mem, (l3Pfn<<pte.PageOffsetBits)+l3idx*8, leafPTE.Encode())

	cpu.IPR.Hot.PTBR = l1Pfn
	cpu.IPR.Hot.VA = va
	cpu.IPR.Hot.SetASN(4)

	sink := &CoalescingSink{}
	ok := HandleMiss(sc, 0, pte.AccessRead, pte.Kernel, sink, DefaultSettings())
	if ev, has := sink.Take(); has {
		require.True(t, ok, "HandleMiss failed: %v", ev.Fault)
	}
	require.True(t, ok)

	_, outcome, fault := Translate(sc, 0, va, pte.AccessRead, pte.Kernel, DefaultSettings())
	require.Nil(t, fault)
	require.Equal(t, pte.Success, outcome)
}

// Scenario S6 — Cross-CPU shootdown.
func TestShootdownScenarioS6(t *testing.T) {
	sc := newTestSystem(t, 2)
	cpu0, cpu1 := sc.CPU(0), sc.CPU(1)
	cpu0.IPR.Hot.SetASN(3)
	cpu1.IPR.Hot.SetASN(3)

	p := testPTE(0x55, false, true, false)
	cpu0.Spam.Insert(pte.Data, 0x9000, 3, p)
	cpu1.Spam.Insert(pte.Data, 0x9000, 3, p)

	_, ok := cpu1.Spam.Lookup(pte.Data, 0x9000, 3)
	require.True(t, ok, "expected cpu1 hit before shootdown")

	Shootdown(sc, 0, ipi.TBIS, pte.Data, 0x9000, 3, nil)

	require.True(t, cpu1.IPR.CBox.HasPendingEvent())
	n := PollAndDrain(cpu1)
	require.Equal(t, 1, n)

	_, ok = cpu1.Spam.Lookup(pte.Data, 0x9000, 3)
	require.False(t, ok, "expected miss on cpu1 after shootdown drain")
}

func TestShootdownTBIAIsRealmUnqualified(t *testing.T) {
	sc := newTestSystem(t, 2)
	cpu0, cpu1 := sc.CPU(0), sc.CPU(1)
	cpu0.IPR.Hot.SetASN(3)
	cpu1.IPR.Hot.SetASN(3)

	p := testPTE(0x55, false, true, false)
	cpu1.Spam.Insert(pte.Data, 0x9000, 3, p)
	cpu1.Spam.Insert(pte.Instruction, 0xA000, 3, p)

	// A TBIA sent with Realm: Data must still kill the Instruction realm's
	// entries too, since TBIA is realm-unqualified (spec.md glossary).
	Shootdown(sc, 0, ipi.TBIA, pte.Data, 0, 3, nil)

	require.True(t, cpu1.IPR.CBox.HasPendingEvent())
	n := PollAndDrain(cpu1)
	require.Equal(t, 1, n)

	_, ok := cpu1.Spam.Lookup(pte.Data, 0x9000, 3)
	require.False(t, ok, "expected data entry invalidated by TBIA")
	_, ok = cpu1.Spam.Lookup(pte.Instruction, 0xA000, 3)
	require.False(t, ok, "expected instruction entry invalidated by realm-unqualified TBIA")
}

func TestShootdownTBIAPIsRealmUnqualified(t *testing.T) {
	sc := newTestSystem(t, 2)
	cpu0, cpu1 := sc.CPU(0), sc.CPU(1)
	cpu0.IPR.Hot.SetASN(7)
	cpu1.IPR.Hot.SetASN(7)

	p := testPTE(0x66, false, true, false)
	cpu1.Spam.Insert(pte.Data, 0xB000, 7, p)
	cpu1.Spam.Insert(pte.Instruction, 0xC000, 7, p)

	// A TBIAP sent with Realm: Data must still kill ASN 7's entries in the
	// Instruction realm too (spec.md glossary: "invalidate-all-per-ASN").
	Shootdown(sc, 0, ipi.TBIAP, pte.Data, 0, 7, nil)

	n := PollAndDrain(cpu1)
	require.Equal(t, 1, n)

	_, ok := cpu1.Spam.Lookup(pte.Data, 0xB000, 7)
	require.False(t, ok, "expected data entry invalidated by TBIAP")
	_, ok = cpu1.Spam.Lookup(pte.Instruction, 0xC000, 7)
	require.False(t, ok, "expected instruction entry invalidated by realm-unqualified TBIAP")
}

func TestDispatchPrivilegedRequiresKernel(t *testing.T) {
	_, _, fault := Dispatch(0x10000, 0x01, pte.User, 0x2020, false, 0)
	require.NotNil(t, fault)
	require.Equal(t, FaultIllegalIPR, fault.Kind)
}

func TestDispatchIllegalRange(t *testing.T) {
	_, _, fault := Dispatch(0x10000, 0x70, pte.Kernel, 0x2020, false, 0)
	require.NotNil(t, fault)
	require.Equal(t, FaultIllegalIPR, fault.Kind)
}

func TestDispatchPrivilegedTargetPC(t *testing.T) {
	target, r23, fault := Dispatch(0x10000, 0x01, pte.Kernel, 0x4000, false, 0)
	require.Nil(t, fault)
	want := uint64(0x10000 | 0x2000 | (0x01 << 6) | 1)
	require.Equal(t, want, target)
	require.Equal(t, uint64(0x4000), r23)
}

func TestSwpCtxReloadsPTBRAndASN(t *testing.T) {
	sc := newTestSystem(t, 1)
	cpu := sc.CPU(0)
	cpu.IPR.Hot.SetASN(5)
	cpu.Spam.Insert(pte.Data, 0x2000, 5, testPTE(0x1, false, true, false))

	pcb := guestmem.PCB{PTBR: 9, ASN: 6, KSP: 0x7000}
	require.NoError(t, guestmem.WritePCB(sc.Memory, 0x1000, pcb))

	require.NoError(t, SwpCtx(sc, 0, 0x1000, DefaultSettings()))
	require.Equal(t, uint64(9), cpu.IPR.Hot.PTBR)
	require.Equal(t, uint8(6), cpu.IPR.Hot.ASN)

	_, ok := cpu.Spam.Lookup(pte.Data, 0x2000, 5)
	require.False(t, ok, "expected old ASN's entries invalidated by SwpCtx")
}
