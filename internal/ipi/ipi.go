/*
   ipi - per-CPU lock-free shootdown message ring.

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

// Package ipi implements the per-CPU IPI ring spec.md §4.F F4 and §5 name:
// a lock-free queue carrying TLB-shootdown messages from any number of
// sending CPUs to the one CPU that owns and drains it. The bounded
// multi-producer/single-consumer ring follows the same CAS-claim,
// sequence-gated publication idiom internal/spam's bucket occupancy
// bitmap uses, generalized from a bitmap (fixed small N) to a circular
// buffer (larger N, FIFO order required for shootdown messages).
package ipi

import (
	"go.uber.org/atomic"

	"github.com/openalpha/ev6core/internal/pte"
)

// Kind enumerates the shootdown message kinds spec.md §4.F F4 lists.
type Kind int

const (
	TBIAP Kind = iota // invalidate all non-global entries of one ASN, both streams
	TBIS              // invalidate single VA, in the message's realm
	TBISD             // invalidate single VA, data stream
	TBISI             // invalidate single VA, instruction stream
	TBIA              // invalidate all
)

// Message is one shootdown request: kind, target VA, and the ASN/realm it
// applies to (spec.md §4.F F4 sender: "(kind, va_hi, va_lo, asn+realm)").
type Message struct {
	Kind  Kind
	VA    uint64
	ASN   uint8
	Realm pte.Realm
}

type cell struct {
	seq atomic.Uint64
	msg Message
}

// Ring is a bounded multi-producer/single-consumer queue. Capacity is
// rounded up to a power of two. Zero value is not usable; use NewRing.
type Ring struct {
	mask  uint64
	cells []cell

	enqueuePos atomic.Uint64
	dequeuePos atomic.Uint64
}

// NewRing builds a ring with room for at least capacity messages.
func NewRing(capacity int) *Ring {
	n := nextPow2(capacity)
	r := &Ring{
		mask:  uint64(n - 1),
		cells: make([]cell, n),
	}
	for i := range r.cells {
		r.cells[i].seq.Store(uint64(i))
	}
	return r
}

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Enqueue publishes msg (spec.md §5 "shootdown IPI enqueue: release").
// Returns false if the ring is full — the caller (the shootdown sender)
// must then fall back to a heavier-weight path (spec.md leaves the
// full-ring policy to the caller; this core logs and drops, see
// internal/xlate's sender).
func (r *Ring) Enqueue(msg Message) bool {
	var c *cell
	pos := r.enqueuePos.Load()
	for {
		c = &r.cells[pos&r.mask]
		seq := c.seq.Load()
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if r.enqueuePos.CAS(pos, pos+1) {
				goto claimed
			}
			pos = r.enqueuePos.Load()
		case diff < 0:
			return false // full
		default:
			pos = r.enqueuePos.Load()
		}
	}
claimed:
	c.msg = msg
	c.seq.Store(pos + 1)
	return true
}

// Dequeue drains one message (spec.md §5 "receiver drains with acquire").
// Only the owning CPU may call Dequeue; the ring is single-consumer.
func (r *Ring) Dequeue() (Message, bool) {
	pos := r.dequeuePos.Load()
	c := &r.cells[pos&r.mask]
	seq := c.seq.Load()
	diff := int64(seq) - int64(pos+1)
	if diff != 0 {
		return Message{}, false
	}
	msg := c.msg
	r.dequeuePos.Store(pos + 1)
	c.seq.Store(pos + r.Cap())
	return msg, true
}

// Cap returns the ring's slot count (always a power of two).
func (r *Ring) Cap() uint64 {
	return r.mask + 1
}

// DrainAll pulls every currently available message and invokes fn for
// each, implementing the receiver side of spec.md §4.F F4: "drain the IPI
// ring. For each TLB-shootdown message, invoke the appropriate
// invalidation method."
func (r *Ring) DrainAll(fn func(Message)) int {
	n := 0
	for {
		msg, ok := r.Dequeue()
		if !ok {
			return n
		}
		fn(msg)
		n++
	}
}

// AckTracker implements the optional sender-wait protocol (spec.md §4.F F4
// "If ACKs enabled, initialize an ack_tracker with pending = peer_count").
// Default usage in this core leaves ACKs disabled (eventual consistency
// suffices, per spec.md), but the primitive is provided for configurations
// that opt in.
type AckTracker struct {
	pending atomic.Int64
}

// Init arms the tracker for peerCount outstanding acknowledgements.
func (a *AckTracker) Init(peerCount int) {
	a.pending.Store(int64(peerCount))
}

// Ack is called by a receiver after processing the shootdown.
func (a *AckTracker) Ack() {
	a.pending.Dec()
}

// Done reports whether every peer has acknowledged.
func (a *AckTracker) Done() bool {
	return a.pending.Load() <= 0
}

// SpinWait busy-waits (spec.md §5 "no suspension points") until Done or
// maxIters spins elapse; returns false on timeout so a caller can log a
// watchdog warning without aborting (spec.md §5 "Cancellation/timeout").
func (a *AckTracker) SpinWait(maxIters int) bool {
	for i := 0; i < maxIters; i++ {
		if a.Done() {
			return true
		}
	}
	return a.Done()
}
