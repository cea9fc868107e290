/*
   xlate - VA->PA translation, page-table walk, PAL miss handling, SMP shootdown.

   Copyright (c) 2026, EV6 Core Contributors

   Permission is hereby granted, free of charge, to any person obtaining a copy
   of this software and associated documentation files (the "Software"), to deal
   in the Software without restriction, including without limitation the rights
   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
   copies of the Software, and to permit persons to whom the Software is
   furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
   SOFTWARE.
*/

// Package xlate implements the translation and fault engine (spec.md §4.F):
// the fast path (F1), the three-level page-table walk (F2), the PAL miss
// handler (F3), SMP TLB shootdown (F4), and CALL_PAL dispatch (F5). No
// exception ever propagates out of this package: every failure is
// constructed as a PendingEvent and handed back to the caller, never
// thrown (spec.md §7).
package xlate

import (
	"fmt"

	"github.com/openalpha/ev6core/internal/pte"
)

// FaultKind is the error taxonomy of spec.md §7.
type FaultKind int

const (
	FaultTlbMiss FaultKind = iota
	FaultAccessViolation
	FaultOnRead
	FaultOnWrite
	FaultOnExecute
	FaultNonCanonical
	FaultUnaligned
	FaultTlbInsertionFailed
	FaultIllegalIPR
	FaultBusError
)

func (k FaultKind) String() string {
	switch k {
	case FaultTlbMiss:
		return "TlbMiss"
	case FaultAccessViolation:
		return "AccessViolation"
	case FaultOnRead:
		return "FaultOnRead"
	case FaultOnWrite:
		return "FaultOnWrite"
	case FaultOnExecute:
		return "FaultOnExecute"
	case FaultNonCanonical:
		return "NonCanonical"
	case FaultUnaligned:
		return "Unaligned"
	case FaultTlbInsertionFailed:
		return "TlbInsertionFailed"
	case FaultIllegalIPR:
		return "IllegalIPR"
	case FaultBusError:
		return "BusError"
	default:
		return "FaultKind(?)"
	}
}

// Fault is the tagged-variant error every translation-engine entry point
// returns instead of throwing (spec.md §7 "Errors are tagged variants,
// never thrown"). It satisfies the error interface purely for convenience
// in logging call sites — nothing in this package uses panic/recover or
// relies on Fault being unwrapped via errors.As.
type Fault struct {
	Kind   FaultKind
	VA     uint64
	Mode   pte.Mode
	Access pte.AccessKind
	Realm  pte.Realm
	CPU    int
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%v at va=%#x cpu=%d", f.Kind, f.VA, f.CPU)
}

// Vector is a PAL exception vector, an offset from PAL_BASE (spec.md §4.F
// F5, §6 "PAL exception vectors").
type Vector uint64

const (
	VectorReset     Vector = 0x0000
	VectorMchk      Vector = 0x0080
	VectorArith     Vector = 0x0100
	VectorInterrupt Vector = 0x0180
	VectorDtbMiss   Vector = 0x0200
	VectorItbMiss   Vector = 0x0280
	VectorUnalign   Vector = 0x0300
	VectorOpcdec    Vector = 0x0380
	VectorFen       Vector = 0x0400
	VectorDtbFault  Vector = 0x0480
	VectorDtbAcv    Vector = 0x0500
	VectorItbAcv    Vector = 0x0580
)

// Priority orders PendingEvents for coalescing when more than one arrives
// in a single cycle (spec.md §7 "priority order: MachineCheck > TlbMiss >
// AccessViolation > FaultOn* > Unaligned").
func (k FaultKind) Priority() int {
	switch k {
	case FaultTlbInsertionFailed, FaultBusError:
		return 0 // MachineCheck-class: highest priority
	case FaultTlbMiss:
		return 1
	case FaultAccessViolation:
		return 2
	case FaultOnRead, FaultOnWrite, FaultOnExecute:
		return 3
	case FaultNonCanonical:
		return 3 // disposition is DTB_FAULT, same class as FaultOn*
	case FaultUnaligned:
		return 4
	case FaultIllegalIPR:
		return 2 // OPCDEC, architecturally an illegal-instruction class fault
	default:
		return 5
	}
}

// VectorFor maps a Fault to the PAL exception vector its PendingEvent
// targets, per the disposition table in spec.md §7. Instruction-stream
// faults (realm == Instruction) and data-stream faults (realm == Data)
// share an underlying FaultKind but land on different vectors, exactly as
// OSF/1 PALcode distinguishes ITBMISS from DTBMISS.
func VectorFor(f *Fault) Vector {
	switch f.Kind {
	case FaultTlbMiss:
		if f.Realm == pte.Instruction {
			return VectorItbMiss
		}
		return VectorDtbMiss
	case FaultAccessViolation:
		if f.Realm == pte.Instruction {
			return VectorItbAcv
		}
		return VectorDtbAcv
	case FaultOnRead, FaultOnWrite:
		// Read/write faults are data-stream by construction (only loads
		// and stores carry FOR/FOW); spec.md §7 "corresponding fault
		// PendingEvent" maps both to DTB_FAULT.
		return VectorDtbFault
	case FaultOnExecute:
		// No dedicated "execute fault" vector is named in spec.md §6;
		// an execute-only denial is an instruction-stream access
		// violation in OSF/1 PALcode terms, so it shares ITB_ACV.
		return VectorItbAcv
	case FaultNonCanonical:
		return VectorDtbFault
	case FaultUnaligned:
		return VectorUnalign
	case FaultTlbInsertionFailed, FaultBusError:
		return VectorMchk
	case FaultIllegalIPR:
		return VectorOpcdec
	default:
		return VectorMchk
	}
}

// PendingEvent is what the engine constructs on any failure; delivery
// (jumping into PALcode at Vector) is the run loop's responsibility, not
// this package's (spec.md §4.F "Failure model").
type PendingEvent struct {
	Vector Vector
	Fault  *Fault
}

// FaultSink is the run loop's queue (spec.md §6 "FaultSink::set_pending").
// This package only ever calls SetPending; it never reads the queue back.
type FaultSink interface {
	SetPending(ev PendingEvent)
}

// CoalescingSink is a minimal FaultSink that keeps only the
// highest-priority pending event, implementing the coalescing spec.md §7
// assigns to the run loop. It is provided here because a demo harness
// needs *some* FaultSink, not because coalescing belongs to the engine.
type CoalescingSink struct {
	current *PendingEvent
}

func (s *CoalescingSink) SetPending(ev PendingEvent) {
	if s.current == nil || ev.Fault.Kind.Priority() < s.current.Fault.Kind.Priority() {
		e := ev
		s.current = &e
	}
}

// Take returns and clears the currently held event, if any.
func (s *CoalescingSink) Take() (PendingEvent, bool) {
	if s.current == nil {
		return PendingEvent{}, false
	}
	ev := *s.current
	s.current = nil
	return ev, true
}
