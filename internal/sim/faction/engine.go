// Package faction implements the faction dynamics engine: diplomatic state
// transitions, tension decay, territorial influence propagation, schisms,
// war resolution, and reputation tracking. All persisted state flows through
// the injected Entity Store; all randomness flows through the injected Rand,
// so batch behavior is reproducible under a fixed seed.
package faction

import (
	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/sim/tuning"
	"realmstate.ai/internal/store"
)

// Rand is the random source used for decay jitter, propagation mutation, and
// schism tier draws. *math/rand.Rand satisfies it; tests supply scripted
// sequences to force exact branch selection.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// EventSink receives engine events (war declarations, schisms, bracket
// transitions). The world loop fans these out to observers and the index.
type EventSink interface {
	Emit(e protocol.Event)
}

type nopSink struct{}

func (nopSink) Emit(protocol.Event) {}

// NopSink discards events. Useful in tests that assert on store state only.
func NopSink() EventSink { return nopSink{} }

type Engine struct {
	store  store.Store
	rng    Rand
	events EventSink
	tune   tuning.Tuning
}

func NewEngine(s store.Store, rng Rand, events EventSink, tune tuning.Tuning) *Engine {
	if events == nil {
		events = nopSink{}
	}
	return &Engine{store: s, rng: rng, events: events, tune: tune}
}

func (e *Engine) emit(ev protocol.Event) {
	e.events.Emit(ev)
}

func entry(nowTick uint64, typ string, data map[string]any) store.HistoryEntry {
	return store.HistoryEntry{Tick: nowTick, Type: typ, Data: data}
}

func clampTension(v float64) float64 {
	if v < -100 {
		return -100
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampReputation(v float64) float64 {
	if v < -100 {
		return -100
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampInfluence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
