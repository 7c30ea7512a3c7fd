// Package worldgen seeds a fresh political map: a grid-connected POI graph
// with noise-derived danger levels, resident NPCs, and a set of starting
// factions with outposts in the safer corners of the map.
package worldgen

import (
	"fmt"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"realmstate.ai/internal/store"
)

// GenConfig holds map generation parameters.
type GenConfig struct {
	Width        int   // POI grid width
	Height       int   // POI grid height
	Seed         int64 // 0 picks a random seed
	Factions     int   // starting factions
	ResidentsMax int   // max NPCs per POI
}

// DefaultGenConfig returns a map sized for a running server.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:        8,
		Height:       8,
		Seed:         0,
		Factions:     4,
		ResidentsMax: 5,
	}
}

// SmallTestConfig returns a tiny map for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:        3,
		Height:       3,
		Seed:         42,
		Factions:     2,
		ResidentsMax: 2,
	}
}

// Result is everything needed to populate an empty store.
type Result struct {
	Seed     int64
	POIs     []*store.POI
	NPCs     []*store.NPC
	Factions []*store.Faction
}

var (
	placeFirst  = []string{"Ash", "Briar", "Cinder", "Dun", "Ebon", "Fall", "Gale", "Harrow", "Iron", "Lark"}
	placeSecond = []string{"ford", "gate", "hollow", "march", "mere", "reach", "spire", "vale", "watch", "wick"}

	factionNames = []string{
		"Azure Pact", "Brine Court", "Cinder League", "Duskward Compact",
		"Emberhold Clans", "Freeport Syndicate", "Gloamspire Order", "Hearthgard Union",
	}
	factionKinds = []string{"political", "mercantile", "religious", "military"}

	traitNames = []string{"ambition", "commerce", "cunning", "discipline", "loyalty", "zeal"}
)

// Generate builds the POI graph, its residents, and the founding factions.
// The same seed always yields the same map.
func Generate(cfg GenConfig) Result {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	// Independent noise layers for danger and settlement density.
	dangerNoise := opensimplex.NewNormalized(seed)
	densityNoise := opensimplex.NewNormalized(seed + 1)

	res := Result{Seed: seed}

	poiAt := func(x, y int) string { return fmt.Sprintf("POI%03d", y*cfg.Width+x+1) }
	nextNPC := 0

	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			danger := int(octaveNoise(dangerNoise, float64(x), float64(y), 3, 0.35, 0.5) * 6)
			if danger > 5 {
				danger = 5
			}
			density := octaveNoise(densityNoise, float64(x), float64(y), 2, 0.25, 0.5)

			p := &store.POI{
				ID:          poiAt(x, y),
				Name:        poiName(rng),
				RegionID:    fmt.Sprintf("R%02d", regionOf(x, y)),
				DangerLevel: danger,
			}
			// Grid adjacency, 4-connected.
			if x > 0 {
				p.Connected = append(p.Connected, poiAt(x-1, y))
			}
			if x < cfg.Width-1 {
				p.Connected = append(p.Connected, poiAt(x+1, y))
			}
			if y > 0 {
				p.Connected = append(p.Connected, poiAt(x, y-1))
			}
			if y < cfg.Height-1 {
				p.Connected = append(p.Connected, poiAt(x, y+1))
			}

			// Dense, safe POIs hold more residents.
			residents := int(density * float64(cfg.ResidentsMax+1))
			if residents > cfg.ResidentsMax {
				residents = cfg.ResidentsMax
			}
			for i := 0; i < residents; i++ {
				nextNPC++
				n := &store.NPC{
					ID:     fmt.Sprintf("NPC%04d", nextNPC),
					Name:   npcName(rng),
					POIID:  p.ID,
					Traits: rollTraits(rng),
				}
				p.Residents = append(p.Residents, n.ID)
				res.NPCs = append(res.NPCs, n)
			}
			res.POIs = append(res.POIs, p)
		}
	}

	res.Factions = foundFactions(cfg, rng, res.POIs)
	return res
}

// foundFactions places each starting faction's outpost on a distinct
// low-danger POI, spreading them across the list.
func foundFactions(cfg GenConfig, rng *rand.Rand, pois []*store.POI) []*store.Faction {
	n := cfg.Factions
	if n > len(factionNames) {
		n = len(factionNames)
	}
	if n > len(pois) {
		n = len(pois)
	}

	var out []*store.Faction
	stride := len(pois) / max(n, 1)
	for i := 0; i < n; i++ {
		// Scan forward from the stride position for the safest nearby POI.
		best := pois[i*stride]
		for j := i * stride; j < min((i+1)*stride, len(pois)); j++ {
			if pois[j].DangerLevel < best.DangerLevel {
				best = pois[j]
			}
		}
		f := &store.Faction{
			ID:        fmt.Sprintf("FAC%06d", i+1),
			Name:      factionNames[i],
			Kind:      factionKinds[i%len(factionKinds)],
			Influence: 40 + rng.Float64()*20,
			Traits:    rollTraits(rng),
			Resources: map[string]float64{"gold": 500 + float64(rng.Intn(500))},
			Outposts:  []string{best.ID},
			IsActive:  true,
		}
		out = append(out, f)
	}
	return out
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}

// regionOf buckets the grid into 2x2 POI regions.
func regionOf(x, y int) int { return (y/2)*16 + x/2 }

func poiName(rng *rand.Rand) string {
	return placeFirst[rng.Intn(len(placeFirst))] + placeSecond[rng.Intn(len(placeSecond))]
}

var npcFirst = []string{"Aldra", "Bram", "Ceri", "Dov", "Edda", "Finn", "Gesa", "Hale", "Ilsa", "Joss"}

func npcName(rng *rand.Rand) string {
	return npcFirst[rng.Intn(len(npcFirst))]
}

func rollTraits(rng *rand.Rand) map[string]int {
	traits := make(map[string]int, len(traitNames))
	for _, name := range traitNames {
		traits[name] = rng.Intn(7)
	}
	return traits
}

