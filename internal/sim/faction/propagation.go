package faction

import (
	"fmt"
	"sort"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/store"
)

// PropagationEvent records one observable effect of an influence tick.
type PropagationEvent struct {
	Type        string  `json:"type"` // influence, affiliation, error
	FactionID   string  `json:"faction_id"`
	POIID       string  `json:"poi_id,omitempty"`
	CharacterID string  `json:"character_id,omitempty"`
	Influence   float64 `json:"influence,omitempty"`
	Detail      string  `json:"detail,omitempty"`
}

type waveFront struct {
	poiID     string
	influence float64
}

// PropagateInfluence spreads each active faction's territorial influence
// outward from its outposts across the POI adjacency graph, then offers
// affiliation to unaffiliated residents of influenced POIs. Propagation
// never lowers an influence value a faction already holds. One faction
// failing does not abort the remaining factions; failures are returned as
// error events.
func (e *Engine) PropagateInfluence(nowTick uint64) ([]PropagationEvent, error) {
	pois, err := e.store.POIs()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	graph := make(map[string]*store.POI, len(pois))
	for _, p := range pois {
		graph[p.ID] = p
	}

	factions, err := e.store.Factions(store.FactionFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	var events []PropagationEvent
	updated := make([]*store.Faction, 0, len(factions))
	for _, f := range factions {
		evs := e.propagateFaction(f, graph)
		events = append(events, evs...)
		updated = append(updated, f)
	}

	// A POI held by two or more factions is contested for all of them.
	holders := map[string]int{}
	for _, f := range updated {
		for poiID, t := range f.Territory {
			if t.Influence > 0 {
				holders[poiID]++
			}
		}
	}
	for _, f := range updated {
		for poiID, t := range f.Territory {
			t.Contested = t.Influence > 0 && holders[poiID] >= 2
			f.Territory[poiID] = t
		}
	}

	for _, f := range updated {
		if err := e.store.PutFaction(f); err != nil {
			events = append(events, PropagationEvent{Type: "error", FactionID: f.ID, Detail: err.Error()})
			continue
		}
		evs, err := e.offerAffiliations(f, graph)
		events = append(events, evs...)
		if err != nil {
			events = append(events, PropagationEvent{Type: "error", FactionID: f.ID, Detail: err.Error()})
		}
	}

	e.emit(protocol.Event{
		"t":        nowTick,
		"type":     protocol.EvInfluenceSpread,
		"factions": len(updated),
		"events":   len(events),
	})
	return events, nil
}

// propagateFaction runs one breadth-first influence wave. The reach of the
// wave is bounded by the per-hop decay, not by a hop limit.
func (e *Engine) propagateFaction(f *store.Faction, graph map[string]*store.POI) []PropagationEvent {
	var events []PropagationEvent
	visited := map[string]bool{}
	var queue []waveFront
	for _, outpost := range f.Outposts {
		if graph[outpost] == nil {
			continue
		}
		queue = append(queue, waveFront{poiID: outpost, influence: e.tune.Propagation.SeedInfluence})
	}

	for len(queue) > 0 {
		front := queue[0]
		queue = queue[1:]
		if front.influence <= 0 || visited[front.poiID] {
			continue
		}
		visited[front.poiID] = true

		if f.Territory == nil {
			f.Territory = map[string]store.Territory{}
		}
		existing := f.Territory[front.poiID]
		if front.influence > existing.Influence {
			existing.Influence = clampInfluence(front.influence)
			f.Territory[front.poiID] = existing
			events = append(events, PropagationEvent{
				Type:      "influence",
				FactionID: f.ID,
				POIID:     front.poiID,
				Influence: existing.Influence,
			})
		}

		poi := graph[front.poiID]
		for _, neighbor := range poi.Connected {
			if visited[neighbor] || graph[neighbor] == nil {
				continue
			}
			decay := 1 + e.rng.Float64()
			// High-influence fronts mutate less.
			mutateChance := 0.02
			if front.influence < 6 {
				mutateChance = 0.10
			}
			if e.rng.Float64() < mutateChance {
				decay += 1 + e.rng.Float64()*2
			}
			queue = append(queue, waveFront{poiID: neighbor, influence: front.influence - decay})
		}
	}
	return events
}

// offerAffiliations gives unaffiliated residents of influenced POIs a chance
// to join the faction. Existing affiliations are never removed or replaced.
func (e *Engine) offerAffiliations(f *store.Faction, graph map[string]*store.POI) ([]PropagationEvent, error) {
	poiIDs := make([]string, 0, len(f.Territory))
	for id, t := range f.Territory {
		if t.Influence > 0 {
			poiIDs = append(poiIDs, id)
		}
	}
	sort.Strings(poiIDs)

	var events []PropagationEvent
	for _, poiID := range poiIDs {
		poi := graph[poiID]
		if poi == nil {
			continue
		}
		chance := e.tune.Propagation.AffiliationBase + e.tune.Propagation.AffiliationPerDanger*float64(poi.DangerLevel)
		for _, npcID := range poi.Residents {
			npc, err := e.store.NPC(npcID)
			if err != nil {
				return events, err
			}
			if len(npc.Affiliations) > 0 {
				continue
			}
			if e.rng.Float64() >= chance {
				continue
			}
			npc.Affiliations = append(npc.Affiliations, f.ID)
			if err := e.store.PutNPC(npc); err != nil {
				return events, err
			}
			events = append(events, PropagationEvent{
				Type:        "affiliation",
				FactionID:   f.ID,
				POIID:       poiID,
				CharacterID: npcID,
			})
		}
	}
	return events, nil
}
