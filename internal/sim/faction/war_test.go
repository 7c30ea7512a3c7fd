package faction

import (
	"errors"
	"testing"

	"realmstate.ai/internal/store"
)

func seedWar(t *testing.T, fx *fixture) {
	t.Helper()
	a := fx.addFaction(t, "FA", "Azure Pact", 50)
	a.Resources = map[string]float64{"gold": 400}
	if err := fx.store.PutFaction(a); err != nil {
		t.Fatalf("PutFaction: %v", err)
	}
	b := fx.addFaction(t, "FB", "Brine Court", 50)
	b.Resources = map[string]float64{"gold": 1000}
	if err := fx.store.PutFaction(b); err != nil {
		t.Fatalf("PutFaction: %v", err)
	}
	if _, _, err := fx.eng.DeclareWar(10, "FA", "FB", "border dispute", nil); err != nil {
		t.Fatalf("DeclareWar: %v", err)
	}
}

func TestResolveWarRequiresActiveWar(t *testing.T) {
	fx := newFixture(t)
	fx.addFaction(t, "FA", "Azure Pact", 50)
	fx.addFaction(t, "FB", "Brine Court", 50)

	_, err := fx.eng.ResolveWar(20, "FA", "FB", "FA", OutcomeVictory, nil, true)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err: got %v want ErrInvalidState", err)
	}
}

func TestResolveWarValidatesVictor(t *testing.T) {
	fx := newFixture(t)
	seedWar(t, fx)

	if _, err := fx.eng.ResolveWar(20, "FA", "FB", "", OutcomeVictory, nil, true); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing victor: got %v want ErrValidation", err)
	}
	if _, err := fx.eng.ResolveWar(20, "FA", "FB", "FZ", OutcomeVictory, nil, true); !errors.Is(err, ErrValidation) {
		t.Fatalf("outsider victor: got %v want ErrValidation", err)
	}
	if _, err := fx.eng.ResolveWar(20, "FA", "FB", "FA", "pyrrhic", nil, true); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown outcome: got %v want ErrValidation", err)
	}
	// Failed resolutions leave the war running.
	if ab := fx.rel(t, "FA", "FB"); !ab.WarState.AtWar {
		t.Fatalf("war ended by failed resolution")
	}
}

func TestResolveWarVictoryAppliesConsequences(t *testing.T) {
	fx := newFixture(t)
	seedWar(t, fx)

	report, err := fx.eng.ResolveWar(20, "FA", "FB", "FA", OutcomeVictory, nil, true)
	if err != nil {
		t.Fatalf("ResolveWar: %v", err)
	}
	if report.PostWarStance != string(store.StanceUnfriendly) {
		t.Fatalf("post-war stance: got %s want UNFRIENDLY", report.PostWarStance)
	}

	victor := fx.faction(t, "FA")
	loser := fx.faction(t, "FB")
	// 20% of the loser's 1000 gold changes hands.
	if victor.Resources["gold"] != 600 {
		t.Fatalf("victor gold: got %v want 600", victor.Resources["gold"])
	}
	if loser.Resources["gold"] != 800 {
		t.Fatalf("loser gold: got %v want 800", loser.Resources["gold"])
	}
	if victor.Influence != 60 {
		t.Fatalf("victor influence: got %v want 60", victor.Influence)
	}
	if loser.Influence != 35 {
		t.Fatalf("loser influence: got %v want 35", loser.Influence)
	}
	if len(victor.State.ActiveWars) != 0 || len(loser.State.ActiveWars) != 0 {
		t.Fatalf("active wars not cleared")
	}
	if len(victor.State.WarHistory) != 1 || victor.State.WarHistory[0].VictorID != "FA" {
		t.Fatalf("war history: %+v", victor.State.WarHistory)
	}

	ab := fx.rel(t, "FA", "FB")
	if ab.Stance != store.StanceUnfriendly || ab.WarState.AtWar {
		t.Fatalf("relationship after victory: %+v", ab)
	}
	if len(ab.WarState.Outcomes) != 1 || ab.WarState.Outcomes[0].OutcomeType != OutcomeVictory {
		t.Fatalf("outcomes: %+v", ab.WarState.Outcomes)
	}
	if ba := fx.rel(t, "FB", "FA"); len(ba.WarState.Outcomes) != 1 {
		t.Fatalf("reverse outcomes missing")
	}
}

func TestResolveWarInfluenceFloorsAndCaps(t *testing.T) {
	fx := newFixture(t)
	fx.addFaction(t, "FA", "Azure Pact", 95)
	fx.addFaction(t, "FB", "Brine Court", 12)
	if _, _, err := fx.eng.DeclareWar(10, "FA", "FB", "raid", nil); err != nil {
		t.Fatalf("DeclareWar: %v", err)
	}

	if _, err := fx.eng.ResolveWar(20, "FA", "FB", "FA", OutcomeVictory, nil, true); err != nil {
		t.Fatalf("ResolveWar: %v", err)
	}
	if f := fx.faction(t, "FA"); f.Influence != 100 {
		t.Fatalf("victor influence cap: got %v want 100", f.Influence)
	}
	if f := fx.faction(t, "FB"); f.Influence != 10 {
		t.Fatalf("loser influence floor: got %v want 10", f.Influence)
	}
}

func TestResolveWarStalemateBleedsBothSides(t *testing.T) {
	fx := newFixture(t)
	seedWar(t, fx)

	report, err := fx.eng.ResolveWar(20, "FA", "FB", "", OutcomeStalemate, nil, true)
	if err != nil {
		t.Fatalf("ResolveWar: %v", err)
	}
	if report.VictorID != "" {
		t.Fatalf("stalemate has a victor: %s", report.VictorID)
	}
	if f := fx.faction(t, "FA"); f.Resources["gold"] != 360 || f.Influence != 45 {
		t.Fatalf("FA after stalemate: gold %v influence %v", f.Resources["gold"], f.Influence)
	}
	if f := fx.faction(t, "FB"); f.Resources["gold"] != 900 || f.Influence != 45 {
		t.Fatalf("FB after stalemate: gold %v influence %v", f.Resources["gold"], f.Influence)
	}
	if ab := fx.rel(t, "FA", "FB"); ab.Stance != store.StanceUnfriendly {
		t.Fatalf("stance after stalemate: got %s want UNFRIENDLY", ab.Stance)
	}
}

func TestResolveWarNegotiatedHonorsTerms(t *testing.T) {
	fx := newFixture(t)
	seedWar(t, fx)

	terms := map[string]any{
		"resource_transfers": []any{
			map[string]any{
				"from_faction_id": "FA",
				"to_faction_id":   "FB",
				"resource":        "gold",
				"amount":          600.0, // more than FA holds; floors at 400
			},
		},
		"territory_transfers": []any{
			map[string]any{
				"territory_id":    "P7",
				"from_faction_id": "FB",
				"to_faction_id":   "FA",
			},
		},
	}
	report, err := fx.eng.ResolveWar(20, "FA", "FB", "", OutcomeNegotiated, terms, true)
	if err != nil {
		t.Fatalf("ResolveWar: %v", err)
	}
	if f := fx.faction(t, "FA"); f.Resources["gold"] != 0 {
		t.Fatalf("FA gold: got %v want 0", f.Resources["gold"])
	}
	if f := fx.faction(t, "FB"); f.Resources["gold"] != 1400 {
		t.Fatalf("FB gold: got %v want 1400", f.Resources["gold"])
	}
	if ab := fx.rel(t, "FA", "FB"); ab.Stance != store.StanceNeutral {
		t.Fatalf("stance after negotiation: got %s want NEUTRAL", ab.Stance)
	}

	var sawTransfer, sawTerritory bool
	for _, c := range report.Consequences {
		switch c.Type {
		case "resource_transfer":
			sawTransfer = c.Amount == 400
		case "territory_transfer":
			sawTerritory = c.TerritoryID == "P7"
		}
	}
	if !sawTransfer || !sawTerritory {
		t.Fatalf("consequences: %+v", report.Consequences)
	}
}

func TestResolveWarPostStanceOverride(t *testing.T) {
	fx := newFixture(t)
	seedWar(t, fx)

	terms := map[string]any{"post_war_stance": string(store.StanceFriendly)}
	report, err := fx.eng.ResolveWar(20, "FA", "FB", "", OutcomeNegotiated, terms, false)
	if err != nil {
		t.Fatalf("ResolveWar: %v", err)
	}
	if report.PostWarStance != string(store.StanceFriendly) {
		t.Fatalf("stance: got %s want FRIENDLY", report.PostWarStance)
	}
	if ab := fx.rel(t, "FA", "FB"); ab.Stance != store.StanceFriendly || ab.Tension != -40 {
		t.Fatalf("relationship: stance %s tension %v", ab.Stance, ab.Tension)
	}
}

func TestResolveWarSkipsConsequencesWhenDisabled(t *testing.T) {
	fx := newFixture(t)
	seedWar(t, fx)

	report, err := fx.eng.ResolveWar(20, "FA", "FB", "FA", OutcomeVictory, nil, false)
	if err != nil {
		t.Fatalf("ResolveWar: %v", err)
	}
	if len(report.Consequences) != 0 {
		t.Fatalf("consequences applied while disabled: %+v", report.Consequences)
	}
	if f := fx.faction(t, "FB"); f.Resources["gold"] != 1000 || f.Influence != 50 {
		t.Fatalf("loser touched: gold %v influence %v", f.Resources["gold"], f.Influence)
	}
}
