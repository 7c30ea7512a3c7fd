package worldtest

import (
	"testing"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/sim/faction"
	"realmstate.ai/internal/sim/world"
	"realmstate.ai/internal/sim/worldgen"
	"realmstate.ai/internal/store"
)

func smallWorld(t *testing.T, seed int64) *Harness {
	t.Helper()
	return NewHarness(t, world.WorldConfig{
		ID:         "wt",
		TickRateHz: 5,
		DayTicks:   100000, // keep rollovers out of short scripts
		Seed:       seed,
	}, worldgen.SmallTestConfig())
}

func TestWarLifecycle_DeclareThenResolveVictory(t *testing.T) {
	h := smallWorld(t, 7)

	h.MustCmd(protocol.CmdMsg{
		Op:             protocol.OpDeclareWar,
		FactionID:      "FAC000001",
		OtherFactionID: "FAC000002",
		Reason:         "border dispute",
	})

	rel, err := h.W.Store().Relationship("FAC000001", "FAC000002")
	if err != nil {
		t.Fatalf("relationship: %v", err)
	}
	if rel.Stance != store.StanceAtWar || !rel.WarState.AtWar {
		t.Fatalf("after declaration: stance=%s at_war=%v", rel.Stance, rel.WarState.AtWar)
	}
	if rel.Tension != 100 {
		t.Fatalf("war tension=%v want 100", rel.Tension)
	}
	if got := h.EventsOfType(protocol.EvWarDeclared); len(got) != 1 {
		t.Fatalf("WAR_DECLARED events: got %d want 1", len(got))
	}

	f1, err := h.W.Store().Faction("FAC000001")
	if err != nil {
		t.Fatalf("faction: %v", err)
	}
	loserGoldBefore := mustFaction(t, h, "FAC000002").Resources["gold"]
	if len(f1.State.ActiveWars) != 1 || f1.State.ActiveWars[0] != "FAC000002" {
		t.Fatalf("active wars=%v want [FAC000002]", f1.State.ActiveWars)
	}

	res := h.MustCmd(protocol.CmdMsg{
		Op:             protocol.OpResolveWar,
		FactionID:      "FAC000001",
		OtherFactionID: "FAC000002",
		VictorID:       "FAC000001",
		OutcomeType:    "victory",
		Terms:          map[string]any{"resource_transfer_pct": float64(25)},
	})
	var report faction.OutcomeReport
	h.UnmarshalPayload(res, &report)
	if report.VictorID != "FAC000001" || report.OutcomeType != "victory" {
		t.Fatalf("report victor=%s outcome=%s", report.VictorID, report.OutcomeType)
	}
	if len(report.Consequences) == 0 {
		t.Fatalf("victory with transfer terms produced no consequences")
	}

	rel, err = h.W.Store().Relationship("FAC000001", "FAC000002")
	if err != nil {
		t.Fatalf("relationship: %v", err)
	}
	if rel.Stance == store.StanceAtWar || rel.WarState.AtWar {
		t.Fatalf("after resolution: stance=%s at_war=%v", rel.Stance, rel.WarState.AtWar)
	}
	if got := h.EventsOfType(protocol.EvWarResolved); len(got) != 1 {
		t.Fatalf("WAR_RESOLVED events: got %d want 1", len(got))
	}
	f1 = mustFaction(t, h, "FAC000001")
	if len(f1.State.ActiveWars) != 0 {
		t.Fatalf("active wars after resolution=%v want none", f1.State.ActiveWars)
	}
	if got := mustFaction(t, h, "FAC000002").Resources["gold"]; got >= loserGoldBefore {
		t.Fatalf("loser gold=%v want < %v", got, loserGoldBefore)
	}

	// The war is over; resolving again is a state error.
	res = h.Cmd(protocol.CmdMsg{
		Op:             protocol.OpResolveWar,
		FactionID:      "FAC000001",
		OtherFactionID: "FAC000002",
		VictorID:       "FAC000001",
		OutcomeType:    "victory",
	})
	if res.OK || res.Code != protocol.ErrInvalidState {
		t.Fatalf("second resolve: ok=%v code=%s want %s", res.OK, res.Code, protocol.ErrInvalidState)
	}
}

func TestWarLifecycle_PeaceRestoresDeclaredStance(t *testing.T) {
	h := smallWorld(t, 11)

	h.MustCmd(protocol.CmdMsg{
		Op:             protocol.OpDeclareWar,
		FactionID:      "FAC000001",
		OtherFactionID: "FAC000002",
		Reason:         "succession claim",
	})
	h.MustCmd(protocol.CmdMsg{
		Op:             protocol.OpMakePeace,
		FactionID:      "FAC000001",
		OtherFactionID: "FAC000002",
		Stance:         string(store.StanceUnfriendly),
		Terms:          map[string]any{"tribute": "500 gold yearly"},
	})

	rel, err := h.W.Store().Relationship("FAC000002", "FAC000001")
	if err != nil {
		t.Fatalf("relationship: %v", err)
	}
	if rel.Stance != store.StanceUnfriendly || rel.WarState.AtWar {
		t.Fatalf("after peace: stance=%s at_war=%v", rel.Stance, rel.WarState.AtWar)
	}
	if len(rel.WarState.PeaceTerms) != 1 {
		t.Fatalf("peace terms recorded: got %d want 1", len(rel.WarState.PeaceTerms))
	}
	if got := h.EventsOfType(protocol.EvPeaceMade); len(got) != 1 {
		t.Fatalf("PEACE_MADE events: got %d want 1", len(got))
	}
}

func mustFaction(t *testing.T, h *Harness, id string) *store.Faction {
	t.Helper()
	f, err := h.W.Store().Faction(id)
	if err != nil {
		t.Fatalf("faction %s: %v", id, err)
	}
	return f
}
