package main

import (
	"github.com/openalpha/ev6core/internal/eventlog"
	"github.com/openalpha/ev6core/internal/ipi"
	"github.com/openalpha/ev6core/internal/metrics"
	"github.com/openalpha/ev6core/internal/pte"
	"github.com/openalpha/ev6core/internal/sysctx"
	"github.com/openalpha/ev6core/internal/xlate"
)

// runDemo exercises the full translation path end to end against CPU 0's
// guest memory: build a tiny one-entry page table, miss on it, fill it, hit
// it, and — if more than one CPU was configured — shoot the fill down to
// every peer. It exists to give the harness something concrete to run and
// log, not as a substitute for the package test suites.
func runDemo(sc *sysctx.SystemContext, log eventlog.EventLog) {
	settings := xlate.DefaultSettings()
	cpu := sc.CPU(0)
	cpu.IPR.Hot.SetASN(1)
	cpu.IPR.Hot.SetPALBase(0x10000)

	const va = uint64(0x400000)
	buildOnePagePageTable(sc, cpu.IPR.Hot.PTBR, va)

	cpu.IPR.Hot.VA = va
	sink := &xlate.CoalescingSink{}
	if !xlate.HandleMiss(sc, 0, pte.AccessRead, pte.Kernel, sink, settings) {
		ev, _ := sink.Take()
		metrics.RecordFault(ev.Fault.Kind)
		log.Write(eventlog.Error, 0, "demo miss handler failed: %v", ev.Fault)
		return
	}
	log.Write(eventlog.Info, 0, "filled va=%#x", va)

	pa, outcome, fault := xlate.Translate(sc, 0, va, pte.AccessRead, pte.Kernel, settings)
	if fault != nil {
		metrics.RecordFault(fault.Kind)
		log.Write(eventlog.Error, 0, "demo translate failed: %v", fault)
		return
	}
	metrics.RecordLookup(pte.Data, true)
	log.Write(eventlog.Info, 0, "translated va=%#x -> pa=%#x (outcome=%v)", va, pa, outcome)

	if sc.NumCPUs() > 1 {
		xlate.Shootdown(sc, 0, ipi.TBIS, pte.Data, va, cpu.IPR.Hot.ASN, nil)
		metrics.RecordShootdownSent("TBIS")
		for _, peer := range sc.Peers(0) {
			n := xlate.PollAndDrain(peer)
			log.Write(eventlog.Info, peer.ID, "drained %d shootdown message(s)", n)
		}
	}
}

// buildOnePagePageTable writes a 3-level page table rooted at PFN 0x10 that
// maps va's page to an arbitrary PFN with kernel read access, and points
// CPU 0's PTBR at that root; the ptbr argument is not used. It writes guest
// memory directly — the demo's stand-in for a guest OS's page-table setup.
func buildOnePagePageTable(sc *sysctx.SystemContext, ptbr uint64, va uint64) {
	const (
		l1Pfn = 0x10
		l2Pfn = 0x11
		l3Pfn = 0x12
		leafPfn = 0x100
	)
	cpu := sc.CPU(0)
	cpu.IPR.Hot.PTBR = l1Pfn

	l1idx := (va >> 33) & 0x3FF
	l2idx := (va >> 23) & 0x3FF
	l3idx := (va >> 13) & 0x3FF

	writeQuadDemo(sc, (uint64(l1Pfn)<<pte.PageOffsetBits)+l1idx*8, pte.PTE{Valid: true, PFN: l2Pfn}.Encode())
	writeQuadDemo(sc, (uint64(l2Pfn)<<pte.PageOffsetBits)+l2idx*8, pte.PTE{Valid: true, PFN: l3Pfn}.Encode())

	leaf := pte.PTE{
		Valid:      true,
		GH:         pte.GH1,
		PFN:        leafPfn,
		ReadEnable: [4]bool{pte.Kernel: true},
	}
	writeQuadDemo(sc, (uint64(l3Pfn)<<pte.PageOffsetBits)+l3idx*8, leaf.Encode())
}

func writeQuadDemo(sc *sysctx.SystemContext, pa, v uint64) {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v)
		v >>= 8
	}
	_ = sc.Memory.WritePA(pa, buf)
}
