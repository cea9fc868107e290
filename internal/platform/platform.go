/*
   platform: chassis-specific superpage window table.

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

// Package platform describes the reserved physical-memory windows that
// bypass the TLB and map identity (spec.md §4.F "superpage check"). The
// table is data, not code: sysctx.New takes a Table, so a caller can pass a
// different chassis table in place of Default (spec.md §9 Open Question 4).
// internal/config always supplies Default; it has no setting for a custom
// table.
package platform

// Window is one identity-mapped physical range.
type Window struct {
	Name string
	Base uint64
	Size uint64
}

// Contains reports whether pa falls within the window.
func (w Window) Contains(pa uint64) bool {
	return pa >= w.Base && pa < w.Base+w.Size
}

// Table is an ordered list of superpage windows. Lookup is linear — the
// table is a handful of entries. The fast path consults it on every mapped
// (non-KSeg) translation, before the TLB lookup.
type Table []Window

// Default reproduces the hard-coded EV6 chassis constants spec.md §4.F
// names: PAL/SRM ROM, HWRPB, and the low/high MMIO apertures.
func Default() Table {
	return Table{
		{Name: "HWRPB", Base: 0x0, Size: 0x2000},
		{Name: "PAL_SRM_ROM", Base: 0x20000000, Size: 0x00800000},
		{Name: "MMIO_LOW", Base: 0xF0000000, Size: 0x10000000},
		{Name: "MMIO_HIGH", Base: 0x1000000000, Size: 0x10000000},
	}
}

// Lookup returns the first window containing pa, if any.
func (t Table) Lookup(pa uint64) (Window, bool) {
	for _, w := range t {
		if w.Contains(pa) {
			return w, true
		}
	}
	return Window{}, false
}

// IsSuperpage reports whether pa bypasses the TLB under this table.
func (t Table) IsSuperpage(pa uint64) bool {
	_, ok := t.Lookup(pa)
	return ok
}
