package xlate

import (
	"github.com/openalpha/ev6core/internal/guestmem"
	"github.com/openalpha/ev6core/internal/pte"
	"github.com/openalpha/ev6core/internal/sysctx"
)

// SwpCtx implements the SWPCTX CALL_PAL (spec.md glossary "HWPCB"/"PCBB";
// SPEC_FULL.md supplement 6): load the HWPCB at pcbb, reload PTBR/ASN from
// it into the hot IPR tier, update PCBB itself, and invalidate the
// now-stale mappings for the outgoing context — either just its ASN
// (default) or the whole TLB, per Settings.FlushAllOnContextSwitch.
func SwpCtx(sc *sysctx.SystemContext, cpuID int, pcbb uint64, settings Settings) error {
	cpu := sc.CPU(cpuID)
	pcb, err := guestmem.ReadPCB(sc.Memory, pcbb)
	if err != nil {
		return err
	}

	outgoingASN := cpu.IPR.Hot.ASN

	cpu.IPR.Hot.PCBB = pcbb
	cpu.IPR.Hot.PTBR = pcb.PTBR
	cpu.IPR.Hot.KSP = pcb.KSP
	cpu.IPR.Hot.USP = pcb.USP
	cpu.IPR.Hot.SetASN(pcb.ASN)
	cpu.IPR.CBox.WriteASTRR(pcb.ASTEN)

	if settings.FlushAllOnContextSwitch {
		cpu.Spam.InvalidateAll(pte.Instruction)
		cpu.Spam.InvalidateAll(pte.Data)
	} else {
		cpu.Spam.InvalidateASN(pte.Instruction, outgoingASN)
		cpu.Spam.InvalidateASN(pte.Data, outgoingASN)
	}
	return nil
}
