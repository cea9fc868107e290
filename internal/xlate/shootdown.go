package xlate

import (
	"fmt"

	"github.com/openalpha/ev6core/internal/eventlog"
	"github.com/openalpha/ev6core/internal/ipi"
	"github.com/openalpha/ev6core/internal/pte"
	"github.com/openalpha/ev6core/internal/sysctx"
)

// Shootdown implements the sender side of spec.md §4.F F4: invalidate
// locally, then enqueue a shootdown message into every peer's IPI ring and
// set their has_pending_event master flag so the next instruction-boundary
// poll drains it. If tracker is non-nil, it is armed for len(peers) acks
// (spec.md "If ACKs enabled, initialize an ack_tracker with pending =
// peer_count"); the default in this core leaves tracker nil (no-ACK,
// eventual consistency).
func Shootdown(sc *sysctx.SystemContext, senderID int, kind ipi.Kind, realm pte.Realm, va uint64, asn uint8, tracker *ipi.AckTracker) {
	sender := sc.CPU(senderID)
	applyLocal(sender, kind, realm, va, asn)

	peers := sc.Peers(senderID)
	if tracker != nil {
		tracker.Init(len(peers))
	}
	msg := ipi.Message{Kind: kind, VA: va, ASN: asn, Realm: realm}
	for _, peer := range peers {
		if peer.Inbox.Enqueue(msg) {
			peer.IPR.CBox.SetHasPendingEvent(true)
		} else if sc.Log != nil {
			// Full ring: the caller must retry or fall back to a
			// heavier-weight broadcast; this core just logs the drop.
			sc.Log.Write(eventlog.Error, senderID, fmt.Sprintf("shootdown ring full on cpu %d, message dropped", peer.ID))
		}
	}
}

// BroadcastInsert is the Open-Question-2 path (spec.md §9): proactively
// shoot down the just-inserted VA on every peer instead of letting them
// walk and fill lazily. Uses TBIS, a single-VA invalidation in the realm
// that filled.
func BroadcastInsert(sc *sysctx.SystemContext, insertingCPU int, realm pte.Realm, va uint64, asn uint8) {
	peers := sc.Peers(insertingCPU)
	msg := ipi.Message{Kind: ipi.TBIS, VA: va, ASN: asn, Realm: realm}
	for _, peer := range peers {
		if peer.Inbox.Enqueue(msg) {
			peer.IPR.CBox.SetHasPendingEvent(true)
		}
	}
}

// applyLocal performs the sender's own local invalidation before any IPI
// is sent (spec.md §4.F F4 "Sender: invalidate locally ... "). TBIAP and
// TBIA are realm-unqualified (spec.md glossary: "invalidate-all-per-ASN"/
// "invalidate-all"), unlike TBISD/TBISI which are explicitly the per-realm
// variants, so they invalidate both realms regardless of the message's
// carried realm — the same both-realm pattern SwpCtx uses for a full flush.
func applyLocal(cpu *sysctx.CpuContext, kind ipi.Kind, realm pte.Realm, va uint64, asn uint8) {
	switch kind {
	case ipi.TBIAP:
		cpu.Spam.InvalidateASNBothRealms(asn)
	case ipi.TBIS:
		cpu.Spam.InvalidateVA(realm, va, asn)
	case ipi.TBISD:
		cpu.Spam.InvalidateDataStreamVA(va, asn)
	case ipi.TBISI:
		cpu.Spam.InvalidateInstructionStreamVA(va, asn)
	case ipi.TBIA:
		cpu.Spam.InvalidateAllBothRealms()
	}
}

// PollAndDrain is the receiver side of spec.md §4.F F4: at every
// instruction boundary the run loop calls this; if the CBox
// has_pending_event master flag is set, drain the inbox and apply each
// shootdown message to this CPU's own SPAM Shard Manager, then clear the
// flag once the ring is empty. If tracker is supplied by the sender side
// (ACKs enabled), the caller is responsible for routing an Ack() back —
// this core's default (no-ACK) leaves that wiring unused.
func PollAndDrain(cpu *sysctx.CpuContext) int {
	if !cpu.IPR.CBox.HasPendingEvent() {
		return 0
	}
	n := cpu.Inbox.DrainAll(func(msg ipi.Message) {
		applyLocal(cpu, msg.Kind, msg.Realm, msg.VA, msg.ASN)
	})
	cpu.IPR.CBox.SetHasPendingEvent(false)
	return n
}
