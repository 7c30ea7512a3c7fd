package worldgen

import (
	"testing"
)

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate(SmallTestConfig())
	b := Generate(SmallTestConfig())

	if len(a.POIs) != len(b.POIs) || len(a.NPCs) != len(b.NPCs) || len(a.Factions) != len(b.Factions) {
		t.Fatalf("sizes differ: %d/%d pois, %d/%d npcs, %d/%d factions",
			len(a.POIs), len(b.POIs), len(a.NPCs), len(b.NPCs), len(a.Factions), len(b.Factions))
	}
	for i := range a.POIs {
		if a.POIs[i].Name != b.POIs[i].Name || a.POIs[i].DangerLevel != b.POIs[i].DangerLevel {
			t.Fatalf("poi %d differs: %+v vs %+v", i, a.POIs[i], b.POIs[i])
		}
	}
	for i := range a.Factions {
		if a.Factions[i].Influence != b.Factions[i].Influence {
			t.Fatalf("faction %d influence differs", i)
		}
	}
}

func TestGenerateGraphIsSymmetric(t *testing.T) {
	res := Generate(SmallTestConfig())
	byID := map[string]map[string]bool{}
	for _, p := range res.POIs {
		byID[p.ID] = map[string]bool{}
		for _, c := range p.Connected {
			byID[p.ID][c] = true
		}
	}
	for _, p := range res.POIs {
		for _, c := range p.Connected {
			if !byID[c][p.ID] {
				t.Fatalf("edge %s->%s has no reverse", p.ID, c)
			}
		}
	}
	// 3x3 grid: the center POI touches all four neighbors.
	if got := len(byID["POI005"]); got != 4 {
		t.Fatalf("center degree: got %d want 4", got)
	}
}

func TestGenerateSeedsFactionsWithOutposts(t *testing.T) {
	res := Generate(SmallTestConfig())
	if len(res.Factions) != 2 {
		t.Fatalf("factions: got %d want 2", len(res.Factions))
	}
	pois := map[string]bool{}
	for _, p := range res.POIs {
		pois[p.ID] = true
	}
	for _, f := range res.Factions {
		if len(f.Outposts) != 1 {
			t.Fatalf("%s outposts: %v", f.ID, f.Outposts)
		}
		if !pois[f.Outposts[0]] {
			t.Fatalf("%s outpost %s not on the map", f.ID, f.Outposts[0])
		}
		if !f.IsActive || f.Influence < 40 || f.Influence > 60 {
			t.Fatalf("faction defaults: %+v", f)
		}
	}
}

func TestGenerateBoundsDangerAndResidents(t *testing.T) {
	cfg := DefaultGenConfig()
	cfg.Seed = 7
	res := Generate(cfg)
	if len(res.POIs) != 64 {
		t.Fatalf("pois: got %d want 64", len(res.POIs))
	}
	for _, p := range res.POIs {
		if p.DangerLevel < 0 || p.DangerLevel > 5 {
			t.Fatalf("%s danger out of range: %d", p.ID, p.DangerLevel)
		}
		if len(p.Residents) > cfg.ResidentsMax {
			t.Fatalf("%s residents: %d", p.ID, len(p.Residents))
		}
	}
}
