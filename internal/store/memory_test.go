package store

import (
	"errors"
	"testing"
)

func TestMemory_FactionRoundTrip(t *testing.T) {
	s := NewMemory()
	if _, err := s.Faction("FAC000001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	id := s.NextFactionID()
	if id != "FAC000001" {
		t.Fatalf("first id: got %s want FAC000001", id)
	}
	f := &Faction{ID: id, Name: "Iron Covenant", Influence: 50, IsActive: true,
		Resources: map[string]float64{"gold": 100}}
	if err := s.PutFaction(f); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Mutating the original after Put must not leak into the store.
	f.Resources["gold"] = 0
	got, err := s.Faction(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Resources["gold"] != 100 {
		t.Fatalf("store aliased caller memory: gold=%v", got.Resources["gold"])
	}

	// Mutating a read copy must not leak either.
	got.Name = "changed"
	again, _ := s.Faction(id)
	if again.Name != "Iron Covenant" {
		t.Fatalf("read copy aliased store: name=%q", again.Name)
	}
}

func TestMemory_RelationshipPairAtomicity(t *testing.T) {
	s := NewMemory()
	ab := &Relationship{FactionID: "A", OtherFactionID: "B", Stance: StanceNeutral}
	ba := &Relationship{FactionID: "B", OtherFactionID: "A", Stance: StanceNeutral}

	if err := s.PutRelationshipPair(ab, nil); err == nil {
		t.Fatalf("expected error for missing direction")
	}
	bad := &Relationship{FactionID: "C", OtherFactionID: "A"}
	if err := s.PutRelationshipPair(ab, bad); err == nil {
		t.Fatalf("expected error for mismatched pair")
	}
	if _, err := s.Relationship("A", "B"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed pair write must commit nothing, got %v", err)
	}

	if err := s.PutRelationshipPair(ab, ba); err != nil {
		t.Fatalf("put pair: %v", err)
	}
	pairs, err := s.RelationshipPairs()
	if err != nil {
		t.Fatalf("pairs: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("pairs: got %d want 1", len(pairs))
	}
	if pairs[0][0].FactionID != "A" || pairs[0][1].FactionID != "B" {
		t.Fatalf("pair ordering: got %s,%s", pairs[0][0].FactionID, pairs[0][1].FactionID)
	}
}

func TestMemory_MembershipFilters(t *testing.T) {
	s := NewMemory()
	put := func(f, c string, active bool, role string) {
		t.Helper()
		if err := s.PutMembership(&Membership{FactionID: f, CharacterID: c, IsActive: active, Role: role, Status: "active"}); err != nil {
			t.Fatalf("put %s/%s: %v", f, c, err)
		}
	}
	put("F1", "C1", true, "member")
	put("F1", "C2", false, "member")
	put("F1", "C3", true, "leader")
	put("F2", "C1", true, "member")

	ms, err := s.Memberships(MembershipFilter{FactionID: "F1", ActiveOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ms) != 2 {
		t.Fatalf("active F1 members: got %d want 2", len(ms))
	}

	ms, _ = s.Memberships(MembershipFilter{CharacterID: "C1"})
	if len(ms) != 2 {
		t.Fatalf("C1 memberships: got %d want 2", len(ms))
	}

	ms, _ = s.Memberships(MembershipFilter{FactionID: "F1", Role: "leader"})
	if len(ms) != 1 || ms[0].CharacterID != "C3" {
		t.Fatalf("leader filter: got %v", ms)
	}
}

func TestMemory_DeterministicListingOrder(t *testing.T) {
	s := NewMemory()
	for _, id := range []string{"P3", "P1", "P2"} {
		if err := s.PutPOI(&POI{ID: id}); err != nil {
			t.Fatalf("put poi: %v", err)
		}
	}
	pois, err := s.POIs()
	if err != nil {
		t.Fatalf("pois: %v", err)
	}
	want := []string{"P1", "P2", "P3"}
	for i, p := range pois {
		if p.ID != want[i] {
			t.Fatalf("poi order[%d]: got %s want %s", i, p.ID, want[i])
		}
	}
}
