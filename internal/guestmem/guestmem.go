/*
   guestmem - physical memory access and HWPCB helpers.

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

// Package guestmem names the GuestMemory interface spec.md §6 treats as an
// external collaborator (byte-level physical memory access, status
// returning) and supplies a flat-array demo implementation so cmd/axpcore
// and the page-table-walk tests have something concrete to run against,
// the same role the teacher's emu/memory package played for the S/370
// core's physical store.
package guestmem

import "errors"

// ErrOutOfRange is returned by ReadPA/WritePA when the access falls outside
// the backing store (spec.md §6 "status-returning").
var ErrOutOfRange = errors.New("guestmem: physical address out of range")

// GuestMemory is the sole interface the page-table walk (spec.md §4.F F2)
// uses to fetch PTE quadwords, and the only way the demo harness reads or
// writes an HWPCB.
type GuestMemory interface {
	ReadPA(pa uint64, length int) ([]byte, error)
	WritePA(pa uint64, data []byte) error
}

// FlatMemory is a simple byte-addressed physical store sized at
// construction time — the demo implementation named in spec.md's glossary
// as an external collaborator, not part of the translation core itself.
type FlatMemory struct {
	bytes []byte
}

// NewFlatMemory allocates size bytes of zeroed physical memory.
func NewFlatMemory(size uint64) *FlatMemory {
	return &FlatMemory{bytes: make([]byte, size)}
}

func (m *FlatMemory) ReadPA(pa uint64, length int) ([]byte, error) {
	if length < 0 || pa+uint64(length) > uint64(len(m.bytes)) {
		return nil, ErrOutOfRange
	}
	out := make([]byte, length)
	copy(out, m.bytes[pa:pa+uint64(length)])
	return out, nil
}

func (m *FlatMemory) WritePA(pa uint64, data []byte) error {
	if pa+uint64(len(data)) > uint64(len(m.bytes)) {
		return ErrOutOfRange
	}
	copy(m.bytes[pa:], data)
	return nil
}

// ReadQuad reads a single little-endian quadword at pa — the "read
// physical quadword" callback spec.md §4.F F2 says the page-table walk uses
// as its sole interface to GuestMemory.
func ReadQuad(mem GuestMemory, pa uint64) (uint64, error) {
	b, err := mem.ReadPA(pa, 8)
	if err != nil {
		return 0, err
	}
	return leUint64(b), nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

func putLeUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

// pcbbAlignMask enforces the 128-byte alignment spec.md §4.E names for
// PCBB (bits 43:7 are the physical address, bits 6:0 are reserved/zero).
const pcbbAlignMask = 0x7F

// PCB is the subset of the 128-byte HWPCB (spec.md glossary) this core
// needs to demonstrate SWPCTX: the fields that drive a context switch's
// TLB/ASN reload, not the full architectural process-context image (FP
// state, unique value etc. are out of scope per spec.md §1).
type PCB struct {
	KSP  uint64
	USP  uint64
	PTBR uint64
	ASN  uint32
	ASTSR uint32
	ASTEN uint32
}

// ReadPCB loads a PCB from the HWPCB at physical address pcbb, per the
// field offsets OSF/1 PALcode uses: KSP at 0x00, USP at 0x08, PTBR at 0x10,
// ASN/ASTSR/ASTEN packed into the word at 0x18.
func ReadPCB(mem GuestMemory, pcbb uint64) (PCB, error) {
	base := pcbb &^ pcbbAlignMask
	raw, err := mem.ReadPA(base, 32)
	if err != nil {
		return PCB{}, err
	}
	packed := leUint64(raw[24:32])
	return PCB{
		KSP:   leUint64(raw[0:8]),
		USP:   leUint64(raw[8:16]),
		PTBR:  leUint64(raw[16:24]),
		ASN:   uint32(packed & 0xFF),
		ASTSR: uint32((packed >> 8) & 0xF),
		ASTEN: uint32((packed >> 12) & 0xF),
	}, nil
}

// WritePCB stores pcb back to the HWPCB at pcbb.
func WritePCB(mem GuestMemory, pcbb uint64, pcb PCB) error {
	base := pcbb &^ pcbbAlignMask
	buf := make([]byte, 32)
	putLeUint64(buf[0:8], pcb.KSP)
	putLeUint64(buf[8:16], pcb.USP)
	putLeUint64(buf[16:24], pcb.PTBR)
	packed := uint64(pcb.ASN&0xFF) | uint64(pcb.ASTSR&0xF)<<8 | uint64(pcb.ASTEN&0xF)<<12
	putLeUint64(buf[24:32], packed)
	return mem.WritePA(base, buf)
}
