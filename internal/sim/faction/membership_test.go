package faction

import (
	"errors"
	"strings"
	"testing"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/store"
)

func TestCreateFactionMintsID(t *testing.T) {
	fx := newFixture(t)

	f, err := fx.eng.CreateFaction(1, "Azure Pact", "seafaring traders", "mercantile", nil, nil)
	if err != nil {
		t.Fatalf("CreateFaction: %v", err)
	}
	if !strings.HasPrefix(f.ID, "FAC") {
		t.Fatalf("id: got %s want FAC prefix", f.ID)
	}
	if f.Influence != 50 || !f.IsActive {
		t.Fatalf("defaults: %+v", f)
	}
	if len(f.History) != 1 || f.History[0].Type != "founded" {
		t.Fatalf("history: %+v", f.History)
	}

	if _, err := fx.eng.CreateFaction(1, "", "", "", nil, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty name: got %v want ErrValidation", err)
	}
	if _, err := fx.eng.CreateFaction(1, "Bad Cult", "", "", map[string]int{"zeal": 9}, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("out-of-range trait: got %v want ErrValidation", err)
	}
}

func TestDeactivateFactionRetiresRecordAndMembers(t *testing.T) {
	fx := newFixture(t)
	fx.addFaction(t, "F1", "Azure Pact", 50)
	fx.addMember(t, "F1", "C1", 40)
	fx.addMember(t, "F1", "C2", 60)

	f, err := fx.eng.DeactivateFaction(50, "F1", "charter revoked")
	if err != nil {
		t.Fatalf("DeactivateFaction: %v", err)
	}
	if f.IsActive {
		t.Fatalf("faction still active: %+v", f)
	}
	last := f.History[len(f.History)-1]
	if last.Type != "deactivated" || last.Data["reason"] != "charter revoked" {
		t.Fatalf("history: %+v", last)
	}

	// The record survives for history; memberships close out as departures.
	stored := fx.faction(t, "F1")
	if stored.IsActive {
		t.Fatalf("stored faction still active")
	}
	for _, c := range []string{"C1", "C2"} {
		m := fx.membership(t, "F1", c)
		if m.IsActive || m.Status != StatusLeft {
			t.Fatalf("membership %s: %+v", c, m)
		}
	}

	if got := fx.sink.ofType(protocol.EvFactionDeactivated); len(got) != 1 || got[0]["faction"] != "F1" {
		t.Fatalf("FACTION_DEACTIVATED events: %+v", got)
	}

	// The faction no longer accepts members, and a second deactivation is
	// rejected.
	if _, err := fx.eng.AssignMember(51, "F1", "C3", 10, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("assign to inactive faction: got %v want ErrInvalidState", err)
	}
	if _, err := fx.eng.DeactivateFaction(52, "F1", "again"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double deactivation: got %v want ErrInvalidState", err)
	}
}

func TestAssignMemberLifecycle(t *testing.T) {
	fx := newFixture(t)
	fx.addFaction(t, "F1", "Azure Pact", 50)

	m, err := fx.eng.AssignMember(10, "F1", "C1", 30, "")
	if err != nil {
		t.Fatalf("AssignMember: %v", err)
	}
	if m.Role != DefaultRole || m.Reputation != 30 || !m.IsActive || m.JoinedTick != 10 {
		t.Fatalf("membership: %+v", m)
	}

	// Re-assignment refreshes in place and keeps the join tick.
	m, err = fx.eng.AssignMember(20, "F1", "C1", 55, "quartermaster")
	if err != nil {
		t.Fatalf("AssignMember again: %v", err)
	}
	if m.Role != "quartermaster" || m.Reputation != 55 || m.JoinedTick != 10 {
		t.Fatalf("refreshed membership: %+v", m)
	}

	if err := fx.eng.RemoveMember(30, "F1", "C1", "retired"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	left := fx.membership(t, "F1", "C1")
	if left.IsActive || left.Status != StatusLeft {
		t.Fatalf("after removal: %+v", left)
	}
	if err := fx.eng.RemoveMember(31, "F1", "C1", "again"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double removal: got %v want ErrInvalidState", err)
	}
}

func TestUpdateLoyaltyClampsAndLogs(t *testing.T) {
	fx := newFixture(t)
	fx.addFaction(t, "F1", "Azure Pact", 50)
	fx.addMember(t, "F1", "C1", 90)

	m, err := fx.eng.UpdateLoyalty(10, "F1", "C1", 40, "won the regatta")
	if err != nil {
		t.Fatalf("UpdateLoyalty: %v", err)
	}
	if m.Reputation != 100 {
		t.Fatalf("loyalty: got %v want 100", m.Reputation)
	}
	last := m.History[len(m.History)-1]
	if last.Type != "loyalty_changed" {
		t.Fatalf("history: got %s want loyalty_changed", last.Type)
	}

	if _, err := fx.eng.UpdateLoyalty(11, "F1", "C9", 5, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown member: got %v want ErrNotFound", err)
	}
}

func TestMembersFilters(t *testing.T) {
	fx := newFixture(t)
	fx.addFaction(t, "F1", "Azure Pact", 50)
	fx.addMember(t, "F1", "C1", 10)
	fx.addMember(t, "F1", "C2", 60)
	if _, err := fx.eng.AssignMember(1, "F1", "C3", 80, "captain"); err != nil {
		t.Fatalf("AssignMember: %v", err)
	}
	if err := fx.eng.RemoveMember(2, "F1", "C1", ""); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}

	members, err := fx.eng.Members("F1", MemberFilter{})
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("active members: got %d want 2", len(members))
	}

	members, err = fx.eng.Members("F1", MemberFilter{MinLoyalty: 70, HasMinLoyalty: true})
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 || members[0].CharacterID != "C3" {
		t.Fatalf("loyalty filter: %+v", members)
	}

	members, err = fx.eng.Members("F1", MemberFilter{Role: "captain"})
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 || members[0].CharacterID != "C3" {
		t.Fatalf("role filter: %+v", members)
	}

	members, err = fx.eng.Members("F1", MemberFilter{IncludeInactive: true})
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("all members: got %d want 3", len(members))
	}
}

func TestCharacterFactionsAllowsMultipleMemberships(t *testing.T) {
	fx := newFixture(t)
	fx.addFaction(t, "F1", "Azure Pact", 50)
	fx.addFaction(t, "F2", "Brine Court", 50)
	fx.addMember(t, "F1", "C1", 40)
	fx.addMember(t, "F2", "C1", 25)

	factions, err := fx.eng.CharacterFactions("C1")
	if err != nil {
		t.Fatalf("CharacterFactions: %v", err)
	}
	if len(factions) != 2 {
		t.Fatalf("memberships: got %d want 2", len(factions))
	}
	if factions[0].FactionID != "F1" || factions[1].FactionID != "F2" {
		t.Fatalf("order: %+v", factions)
	}
}

func TestAffinityScoresTraitCloseness(t *testing.T) {
	fx := newFixture(t)
	f := fx.addFaction(t, "F1", "Azure Pact", 50)
	f.Traits = map[string]int{"discipline": 6, "zeal": 3}
	if err := fx.store.PutFaction(f); err != nil {
		t.Fatalf("PutFaction: %v", err)
	}
	if err := fx.store.PutNPC(&store.NPC{ID: "C1", Traits: map[string]int{"discipline": 6}}); err != nil {
		t.Fatalf("PutNPC: %v", err)
	}

	// discipline matches exactly (6), zeal misses by 3 (3): total 9.
	score, err := fx.eng.Affinity("C1", "F1")
	if err != nil {
		t.Fatalf("Affinity: %v", err)
	}
	if score != 9 {
		t.Fatalf("affinity: got %d want 9", score)
	}
}

func seedSwitchScenario(t *testing.T, fx *fixture) {
	t.Helper()
	from := fx.addFaction(t, "F1", "Azure Pact", 50)
	from.Traits = map[string]int{"commerce": 6}
	if err := fx.store.PutFaction(from); err != nil {
		t.Fatalf("PutFaction: %v", err)
	}
	to := fx.addFaction(t, "F2", "Brine Court", 50)
	to.Traits = map[string]int{
		"ambition": 6, "commerce": 6, "cunning": 6,
		"discipline": 6, "loyalty": 6, "zeal": 6,
	}
	if err := fx.store.PutFaction(to); err != nil {
		t.Fatalf("PutFaction: %v", err)
	}
	if err := fx.store.PutNPC(&store.NPC{ID: "C1", Traits: map[string]int{
		"ambition": 6, "commerce": 6, "cunning": 6,
		"discipline": 6, "loyalty": 6, "zeal": 6,
	}}); err != nil {
		t.Fatalf("PutNPC: %v", err)
	}
	fx.addMember(t, "F1", "C1", 70)
}

func TestSwitchFactionByAffinity(t *testing.T) {
	fx := newFixture(t)
	seedSwitchScenario(t, fx)

	next, err := fx.eng.SwitchFaction(10, "C1", "F1", "F2", false)
	if err != nil {
		t.Fatalf("SwitchFaction: %v", err)
	}
	if next.FactionID != "F2" || !next.IsActive || next.Reputation != 20 {
		t.Fatalf("new membership: %+v", next)
	}
	old := fx.membership(t, "F1", "C1")
	if old.IsActive || old.Status != StatusSwitched {
		t.Fatalf("old membership: %+v", old)
	}
}

func TestSwitchFactionRejectsLowAffinity(t *testing.T) {
	fx := newFixture(t)
	seedSwitchScenario(t, fx)
	// Gut the character's fit with the target.
	if err := fx.store.PutNPC(&store.NPC{ID: "C1", Traits: map[string]int{"commerce": 6}}); err != nil {
		t.Fatalf("PutNPC: %v", err)
	}

	_, err := fx.eng.SwitchFaction(10, "C1", "F1", "F2", false)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err: got %v want ErrValidation", err)
	}
	if m := fx.membership(t, "F1", "C1"); !m.IsActive {
		t.Fatalf("failed switch deactivated the old membership")
	}
}

func TestSwitchFactionRefusedDuringWar(t *testing.T) {
	fx := newFixture(t)
	seedSwitchScenario(t, fx)
	if _, _, err := fx.eng.DeclareWar(5, "F1", "F2", "trade blockade", nil); err != nil {
		t.Fatalf("DeclareWar: %v", err)
	}

	if _, err := fx.eng.SwitchFaction(10, "C1", "F1", "F2", false); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err: got %v want ErrInvalidState", err)
	}
	// Forced switches cut through the war restriction.
	next, err := fx.eng.SwitchFaction(11, "C1", "F1", "F2", true)
	if err != nil {
		t.Fatalf("forced SwitchFaction: %v", err)
	}
	if next.FactionID != "F2" || !next.IsActive {
		t.Fatalf("forced switch membership: %+v", next)
	}
}

func TestAssignPOIControl(t *testing.T) {
	fx := newFixture(t)
	fx.addFaction(t, "F1", "Azure Pact", 50)
	if err := fx.store.PutPOI(&store.POI{ID: "P1", Name: "Harborwatch"}); err != nil {
		t.Fatalf("PutPOI: %v", err)
	}

	if err := fx.eng.AssignPOIControl(10, "F1", "P1", 7); err != nil {
		t.Fatalf("AssignPOIControl: %v", err)
	}
	if f := fx.faction(t, "F1"); f.POIControl["P1"] != 7 {
		t.Fatalf("control: got %v want 7", f.POIControl["P1"])
	}

	if err := fx.eng.AssignPOIControl(11, "F1", "P1", 0); err != nil {
		t.Fatalf("AssignPOIControl clear: %v", err)
	}
	if f := fx.faction(t, "F1"); len(f.POIControl) != 0 {
		t.Fatalf("control not cleared: %v", f.POIControl)
	}

	if err := fx.eng.AssignPOIControl(12, "F1", "P1", 11); !errors.Is(err, ErrValidation) {
		t.Fatalf("level 11: got %v want ErrValidation", err)
	}
	if err := fx.eng.AssignPOIControl(12, "F1", "P9", 5); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing poi: got %v want ErrNotFound", err)
	}
}
