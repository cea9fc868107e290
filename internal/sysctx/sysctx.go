/*
   sysctx - per-CPU arena, replacing the source's global singletons.

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

// Package sysctx replaces the source's function-scoped statics
// (globalEv6SPAM, globalIPRBank, globalCBoxState, CurrentCpuTLS) with an
// explicit SystemContext passed through every public API, and per-CPU
// state held in a fixed-size arena indexed by CPU ID (spec.md §9 "Global
// singletons → explicit context").
package sysctx

import (
	"github.com/openalpha/ev6core/internal/eventlog"
	"github.com/openalpha/ev6core/internal/guestmem"
	"github.com/openalpha/ev6core/internal/ipi"
	"github.com/openalpha/ev6core/internal/ipr"
	"github.com/openalpha/ev6core/internal/platform"
	"github.com/openalpha/ev6core/internal/pte"
	"github.com/openalpha/ev6core/internal/spam"
)

// IPIRingCapacity is the default per-CPU inbox size.
const IPIRingCapacity = 256

// CpuContext is one CPU's complete state: its IPR bank, its SPAM shard
// (which in turn owns the epoch table), and the inbox other CPUs enqueue
// shootdown messages into. Only the owning CPU's thread ever calls methods
// that mutate Spam or Hot/Cold IPR state; peers reach this CpuContext only
// through Inbox and the CBox tier (spec.md §5).
type CpuContext struct {
	ID   int
	IPR  *ipr.Bank
	Spam *spam.Shard

	// Inbox is this CPU's receive-side IPI ring; peers enqueue into it,
	// this CPU alone drains it (spec.md §4.F F4 "Receiver").
	Inbox *ipi.Ring
}

// NewCpuContext builds a CpuContext with fresh IPR/Spam/Inbox state.
func NewCpuContext(id int, bucketsPerRealm, ways int, rngSeed int64) *CpuContext {
	return &CpuContext{
		ID:    id,
		IPR:   &ipr.Bank{},
		Spam:  spam.NewShard(bucketsPerRealm, ways, rngSeed),
		Inbox: ipi.NewRing(IPIRingCapacity),
	}
}

// SystemContext is the arena spec.md §9 calls for: every CPU's context,
// plus the resources they all share (guest memory, the event log, and the
// platform superpage table). "Ownership via indices is strictly
// equivalent [to raw pointers] and eliminates hidden global state."
type SystemContext struct {
	CPUs     []*CpuContext
	Memory   guestmem.GuestMemory
	Log      eventlog.EventLog
	Platform platform.Table
	VACtl    pte.VaCtl
}

// New builds a SystemContext with numCPUs CpuContexts.
func New(numCPUs, bucketsPerRealm, ways int, mem guestmem.GuestMemory, log eventlog.EventLog, plat platform.Table, vactl pte.VaCtl) *SystemContext {
	sc := &SystemContext{
		Memory:   mem,
		Log:      log,
		Platform: plat,
		VACtl:    vactl,
	}
	if bucketsPerRealm <= 0 {
		bucketsPerRealm = spam.DefaultBucketsPerRealm
	}
	if ways <= 0 {
		ways = spam.DefaultWays
	}
	sc.CPUs = make([]*CpuContext, numCPUs)
	for i := range sc.CPUs {
		sc.CPUs[i] = NewCpuContext(i, bucketsPerRealm, ways, int64(i)+1)
	}
	return sc
}

// CPU returns the context for cpuID, or nil if out of range — callers use
// this both to locate their own state and a peer's (spec.md §9 "each CPU
// can locate its own and its peers' state").
func (sc *SystemContext) CPU(cpuID int) *CpuContext {
	if cpuID < 0 || cpuID >= len(sc.CPUs) {
		return nil
	}
	return sc.CPUs[cpuID]
}

// NumCPUs reports the arena size.
func (sc *SystemContext) NumCPUs() int {
	return len(sc.CPUs)
}

// Peers returns every CPU context other than excludeID, the iteration order
// a shootdown sender uses to reach every remote CPU (spec.md §4.F F4
// "for each remote CPU").
func (sc *SystemContext) Peers(excludeID int) []*CpuContext {
	peers := make([]*CpuContext, 0, len(sc.CPUs)-1)
	for _, c := range sc.CPUs {
		if c.ID != excludeID {
			peers = append(peers, c)
		}
	}
	return peers
}
