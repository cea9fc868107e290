/*
   metrics - prometheus counters for the translation core.

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

// Package metrics exposes prometheus counters for the events spec.md names
// as observable but leaves to an external collaborator: TLB hits/misses/
// evictions, shootdown IPIs sent and dropped, and faults by kind. Nothing in
// internal/xlate or internal/spam imports this package directly — the demo
// harness in cmd/axpcore calls these functions at the call sites that
// already know the outcome, keeping the hot path free of a metrics
// dependency it doesn't otherwise need.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openalpha/ev6core/internal/pte"
	"github.com/openalpha/ev6core/internal/xlate"
)

var (
	tlbLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "axpcore",
		Subsystem: "tlb",
		Name:      "lookups_total",
		Help:      "SPAM lookups by realm and outcome.",
	}, []string{"realm", "outcome"})

	tlbEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "axpcore",
		Subsystem: "tlb",
		Name:      "evictions_total",
		Help:      "Insertions that required evicting a live entry.",
	}, []string{"realm"})

	shootdownsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "axpcore",
		Subsystem: "shootdown",
		Name:      "ipis_sent_total",
		Help:      "Shootdown IPI messages enqueued to a peer.",
	}, []string{"kind"})

	shootdownsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "axpcore",
		Subsystem: "shootdown",
		Name:      "ipis_dropped_total",
		Help:      "Shootdown IPI messages dropped because a peer's inbox ring was full.",
	})

	faults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "axpcore",
		Subsystem: "xlate",
		Name:      "faults_total",
		Help:      "PendingEvents constructed by the translation engine, by kind.",
	}, []string{"kind"})
)

// Registry is the prometheus collector set this package owns. cmd/axpcore
// registers it once against its own prometheus.Registerer at startup.
var Registry = []prometheus.Collector{tlbLookups, tlbEvictions, shootdownsSent, shootdownsDropped, faults}

// MustRegister registers every collector this package defines against r.
func MustRegister(r prometheus.Registerer) {
	r.MustRegister(Registry...)
}

func realmLabel(realm pte.Realm) string {
	if realm == pte.Instruction {
		return "instruction"
	}
	return "data"
}

// RecordLookup counts one SPAM lookup outcome.
func RecordLookup(realm pte.Realm, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	tlbLookups.WithLabelValues(realmLabel(realm), outcome).Inc()
}

// RecordEviction counts an insertion that had to evict a live entry.
func RecordEviction(realm pte.Realm) {
	tlbEvictions.WithLabelValues(realmLabel(realm)).Inc()
}

// RecordShootdownSent counts one shootdown IPI successfully enqueued.
func RecordShootdownSent(kind string) {
	shootdownsSent.WithLabelValues(kind).Inc()
}

// RecordShootdownDropped counts a shootdown IPI dropped to a full ring.
func RecordShootdownDropped() {
	shootdownsDropped.Inc()
}

// RecordFault counts one PendingEvent constructed by the translation engine.
func RecordFault(kind xlate.FaultKind) {
	faults.WithLabelValues(kind.String()).Inc()
}
