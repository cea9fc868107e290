/*
   ipr: per-CPU Internal Processor Register bank, split into hot/cold/CBox tiers.

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

// Package ipr models the Alpha EV6 Internal Processor Register file
// (spec.md §3/§4.E): a hot single-writer tier touched only by the owning
// CPU's run loop, a cold single-writer tier for rarely-accessed registers,
// and a cache-line-aligned cross-thread "CBox" tier built entirely from
// atomics.
package ipr

import (
	"go.uber.org/atomic"

	"github.com/openalpha/ev6core/internal/pte"
)

// AccessGate is the RO/WO/RW/W1C/W1S gating spec.md §4.E requires per
// register.
type AccessGate int

const (
	GateRW AccessGate = iota
	GateRO
	GateWO
	GateW1C
	GateW1S
)

// Hot holds the single-writer registers mutated only by the owning CPU's
// run loop (spec.md §3 "Hot single-writer"). No atomics: the run loop is
// the sole writer and reader.
type Hot struct {
	CC       uint64
	FPCR     uint64
	ASN      uint8
	VA       uint64
	ExcAddr  uint64
	PTBR     uint64
	VPTB     uint64
	PALBase  uint64
	SCBB     uint64
	PCBB     uint64
	USP      uint64
	KSP      uint64
	ESP      uint64
	SSP      uint64
	PALTemp  [24]uint64
	ICCSR    uint64
	ICTL     uint64
	MCTL     uint64
	MMStat   uint64
	ExcSum   uint64
	VACtl    pte.VaCtl
}

const (
	palBaseAlignMask = 0xF // 16-byte alignment, low 4 bits cleared (spec.md invariant 5)
)

// SetPALBase writes PAL_BASE, silently clearing the low 4 bits to preserve
// 16-byte alignment (spec.md §3 invariant 5). Returns the stored value.
func (h *Hot) SetPALBase(v uint64) uint64 {
	h.PALBase = v &^ palBaseAlignMask
	return h.PALBase
}

// SetASN writes the ASN register. Values >= 256 are invalid and produce no
// state change (spec.md §3 invariant 6) — ASN is architecturally 8 bits, so
// the Go type already prevents >255, but a caller may compute asn from a
// wider guest-visible field; ok reports whether the write was accepted.
func (h *Hot) SetASN(v uint32) (ok bool) {
	if v >= 256 {
		return false
	}
	h.ASN = uint8(v)
	return true
}

// Cold holds rarely-touched single-writer registers (spec.md §3 "Cold
// single-writer").
type Cold struct {
	MCES    uint64
	BIUAddr uint64
	SLRcv   uint64
	CData   uint64
	CShift  uint64
}

// CBox packed control-word bit positions (spec.md §3 "packed control bits").
const (
	cboxIPLShift     = 0
	cboxIPLMask      = 0x1F
	cboxPendingEvent = 1 << 5
	cboxMachineCheck = 1 << 6
	cboxASTPending   = 1 << 7
)

// CBox is the cross-thread tier: everything a peer CPU's IPI delivery or an
// external interrupt source can touch. Every field is atomic with
// acquire/release ordering (spec.md §5 "CBox: release on writes, acquire on
// reads").
type CBox struct {
	_ [0]func() // makes CBox non-comparable; it does not stop copies by value

	pendingIRQ atomic.Uint64 // bitmask
	ipiReq     atomic.Uint64
	ipiData    atomic.Uint64
	control    atomic.Uint32 // packed: IPL | pending-event | machine-check-pending | AST-pending
	astrr      atomic.Uint32
	sisr       atomic.Uint32
	sirr       atomic.Uint32
}

// SetPendingIRQ ORs bits into the pending-IRQ bitmask, release-ordered.
func (c *CBox) SetPendingIRQ(mask uint64) {
	for {
		old := c.pendingIRQ.Load()
		if c.pendingIRQ.CAS(old, old|mask) {
			return
		}
	}
}

// ClearPendingIRQ AND-NOTs bits out of the pending-IRQ bitmask.
func (c *CBox) ClearPendingIRQ(mask uint64) {
	for {
		old := c.pendingIRQ.Load()
		if c.pendingIRQ.CAS(old, old&^mask) {
			return
		}
	}
}

// PendingIRQ reads the pending-IRQ bitmask, acquire-ordered.
func (c *CBox) PendingIRQ() uint64 {
	return c.pendingIRQ.Load()
}

// SetIPL packs a new current-IPL value into the control word.
func (c *CBox) SetIPL(ipl uint8) {
	for {
		old := c.control.Load()
		next := (old &^ cboxIPLMask) | (uint32(ipl) & cboxIPLMask)
		if c.control.CAS(old, next) {
			return
		}
	}
}

// IPL reads the current-IPL field.
func (c *CBox) IPL() uint8 {
	return uint8(c.control.Load() & cboxIPLMask)
}

// SetHasPendingEvent toggles the master flag the receiver side of the SMP
// shootdown protocol polls at every instruction boundary (spec.md §4.F F4
// Receiver).
func (c *CBox) SetHasPendingEvent(v bool) {
	c.setControlBit(cboxPendingEvent, v)
}

// HasPendingEvent reads the master flag.
func (c *CBox) HasPendingEvent() bool {
	return c.control.Load()&cboxPendingEvent != 0
}

func (c *CBox) SetMachineCheckPending(v bool) {
	c.setControlBit(cboxMachineCheck, v)
}

func (c *CBox) MachineCheckPending() bool {
	return c.control.Load()&cboxMachineCheck != 0
}

func (c *CBox) SetASTPending(v bool) {
	c.setControlBit(cboxASTPending, v)
}

func (c *CBox) ASTPending() bool {
	return c.control.Load()&cboxASTPending != 0
}

func (c *CBox) setControlBit(bit uint32, v bool) {
	for {
		old := c.control.Load()
		var next uint32
		if v {
			next = old | bit
		} else {
			next = old &^ bit
		}
		if c.control.CAS(old, next) {
			return
		}
	}
}

// perModeMask is the 4-bit K/E/S/U layout ASTSR/ASTEN/ASTRR share
// (spec.md §6).
const perModeMask = 0xF

// WriteASTRR posts ASTs: OR the per-mode bits into the pending set the AST
// handler later consumes (spec.md §4.E "writing ASTRR posts ASTs").
func (c *CBox) WriteASTRR(bits uint32) {
	for {
		old := c.astrr.Load()
		if c.astrr.CAS(old, old|(bits&perModeMask)) {
			return
		}
	}
}

// ReadASTSR is the read-only shadow of the posted AST bits (spec.md §4.E
// "ASTSR is read-only").
func (c *CBox) ReadASTSR() uint32 {
	return c.astrr.Load() & perModeMask
}

// ClearASTRR clears bits from the posted set once the AST handler consumes
// them.
func (c *CBox) ClearASTRR(bits uint32) {
	for {
		old := c.astrr.Load()
		if c.astrr.CAS(old, old&^bits) {
			return
		}
	}
}

func (c *CBox) WriteSISR(v uint32) { c.sisr.Store(v) }
func (c *CBox) ReadSISR() uint32   { return c.sisr.Load() }
func (c *CBox) WriteSIRR(v uint32) { c.sirr.Store(v) }
func (c *CBox) ReadSIRR() uint32   { return c.sirr.Load() }

// HWIntClrBits are the write-1-to-clear bit positions spec.md §4.E/§6 name.
const (
	HWIntClrBit32 = 1 << 0 // aliases architectural bit 32 within this word
	HWIntClrBit31 = 1 << 1
	HWIntClrBit30 = 1 << 2
	HWIntClrBit29 = 1 << 3
	HWIntClrBit28 = 1 << 4
	HWIntClrBit26 = 1 << 5
)

// WriteHWIntClr implements the write-only, write-1-to-clear HW_INT_CLR
// register: the named bits clear corresponding bits in the pending-IRQ
// summary and, for bit 26, toggle machine-check-disable off (spec.md §4.E).
func (c *CBox) WriteHWIntClr(bits uint32) {
	var clearMask uint64
	if bits&HWIntClrBit32 != 0 {
		clearMask |= 1 << 32
	}
	if bits&HWIntClrBit31 != 0 {
		clearMask |= 1 << 31
	}
	if bits&HWIntClrBit30 != 0 {
		clearMask |= 1 << 30
	}
	if bits&HWIntClrBit29 != 0 {
		clearMask |= 1 << 29
	}
	if bits&HWIntClrBit28 != 0 {
		clearMask |= 1 << 28
	}
	if clearMask != 0 {
		c.ClearPendingIRQ(clearMask)
	}
	if bits&HWIntClrBit26 != 0 {
		c.SetMachineCheckPending(false)
	}
}

// EXC_SUM SET_IOV handling (spec.md §4.E): the bit sign-extends to bits
// 63:48 on every write.
const excSumSetIOVBit = 1 << 47

// PackExcSum applies the SET_IOV sign-extension rule when building a new
// EXC_SUM value to store into Hot.ExcSum.
func PackExcSum(raw uint64) uint64 {
	if raw&excSumSetIOVBit != 0 {
		return raw | 0xFFFF000000000000
	}
	return raw &^ 0xFFFF000000000000
}

// IPIReqData lets a peer deposit the request/data IPI words the receiver
// drains on its next poll; these are plain atomic words, not the IPI ring
// itself (see internal/ipi for the queue), matching spec.md §3's listing of
// "IPI request/data words" as CBox-tier scalars alongside the ring.
func (c *CBox) SetIPIReqData(req, data uint64) {
	c.ipiReq.Store(req)
	c.ipiData.Store(data)
}

func (c *CBox) IPIReqData() (req, data uint64) {
	return c.ipiReq.Load(), c.ipiData.Load()
}

// Bank is one CPU's complete IPR state: hot + cold + CBox.
type Bank struct {
	Hot  Hot
	Cold Cold
	CBox CBox
}

// IllegalIPRAccess is returned when a guest-mode register read/write
// violates its access gate (spec.md §4.E "Reading a kernel-only IPR from
// user mode fails with an illegal-instruction exception", §7 IllegalIPR).
type IllegalIPRAccess struct {
	Register string
	Mode     pte.Mode
}

func (e *IllegalIPRAccess) Error() string {
	return "illegal IPR access: " + e.Register
}

// CheckModeGate enforces that only Kernel mode may touch PALcode-private
// registers (PTBR, VPTB, PAL_BASE, SCBB, PCBB and the CBox control
// registers); every other IPR in Hot/Cold is reachable only from PALcode in
// this core's model, so the gate is a single Kernel check rather than a
// per-register RO/WO/RW table — spec.md §4.E leaves the exact per-register
// table to the (out-of-scope) PALcode layer, and only requires that the
// violation surface as IllegalIPR.
func CheckModeGate(register string, mode pte.Mode) error {
	if mode != pte.Kernel {
		return &IllegalIPRAccess{Register: register, Mode: mode}
	}
	return nil
}
