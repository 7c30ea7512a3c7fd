package faction

import (
	"math"
	"testing"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/sim/tuning"
	"realmstate.ai/internal/store"
)

// scriptRand replays fixed sequences so tests hit exact branches. Exhausted
// sequences fall back to midpoint values.
type scriptRand struct {
	floats []float64
	ints   []int
	fi, ii int
}

func (r *scriptRand) Float64() float64 {
	if r.fi < len(r.floats) {
		v := r.floats[r.fi]
		r.fi++
		return v
	}
	return 0.5
}

func (r *scriptRand) Intn(n int) int {
	if r.ii < len(r.ints) {
		v := r.ints[r.ii] % n
		r.ii++
		return v
	}
	return 0
}

type captureSink struct {
	events []protocol.Event
}

func (c *captureSink) Emit(e protocol.Event) { c.events = append(c.events, e) }

func (c *captureSink) ofType(typ string) []protocol.Event {
	var out []protocol.Event
	for _, e := range c.events {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store *store.Memory
	rng   *scriptRand
	sink  *captureSink
	eng   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		store: store.NewMemory(),
		rng:   &scriptRand{},
		sink:  &captureSink{},
	}
	fx.eng = NewEngine(fx.store, fx.rng, fx.sink, tuning.Defaults())
	return fx
}

func (fx *fixture) addFaction(t *testing.T, id, name string, influence float64) *store.Faction {
	t.Helper()
	f := &store.Faction{ID: id, Name: name, Influence: influence, IsActive: true}
	if err := fx.store.PutFaction(f); err != nil {
		t.Fatalf("seed faction %s: %v", id, err)
	}
	return f
}

func (fx *fixture) addMember(t *testing.T, factionID, characterID string, loyalty float64) {
	t.Helper()
	m := &store.Membership{
		FactionID:   factionID,
		CharacterID: characterID,
		Role:        "member",
		Reputation:  loyalty,
		IsActive:    true,
		Status:      StatusActive,
	}
	if err := fx.store.PutMembership(m); err != nil {
		t.Fatalf("seed membership %s/%s: %v", factionID, characterID, err)
	}
}

func (fx *fixture) rel(t *testing.T, a, b string) *store.Relationship {
	t.Helper()
	r, err := fx.store.Relationship(a, b)
	if err != nil {
		t.Fatalf("relationship %s->%s: %v", a, b, err)
	}
	return r
}

func (fx *fixture) faction(t *testing.T, id string) *store.Faction {
	t.Helper()
	f, err := fx.store.Faction(id)
	if err != nil {
		t.Fatalf("faction %s: %v", id, err)
	}
	return f
}

func (fx *fixture) membership(t *testing.T, factionID, characterID string) *store.Membership {
	t.Helper()
	m, err := fx.store.Membership(factionID, characterID)
	if err != nil {
		t.Fatalf("membership %s/%s: %v", factionID, characterID, err)
	}
	return m
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
