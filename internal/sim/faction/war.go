package faction

import (
	"fmt"
	"math"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/store"
)

// War outcome types.
const (
	OutcomeVictory    = "victory"
	OutcomeDefeat     = "defeat"
	OutcomeNegotiated = "negotiated"
	OutcomeStalemate  = "stalemate"
)

// OutcomeReport is the full result of a war resolution.
type OutcomeReport struct {
	OutcomeType    string              `json:"outcome_type"`
	FactionID      string              `json:"faction_id"`
	OtherFactionID string              `json:"other_faction_id"`
	VictorID       string              `json:"victor_id,omitempty"`
	PostWarStance  string              `json:"post_war_stance"`
	Consequences   []store.Consequence `json:"consequences"`
	Terms          map[string]any      `json:"terms,omitempty"`
}

// ResolveWar ends an active war between two factions and applies the
// mechanical consequences of the outcome. It fails with ErrInvalidState when
// the pair is not at war, and with ErrValidation when a victory/defeat
// outcome names no victor or a faction outside the pair.
func (e *Engine) ResolveWar(nowTick uint64, factionID, otherID, victorID, outcomeType string, terms map[string]any, applyConsequences bool) (OutcomeReport, error) {
	ab, _, err := e.loadPair(nowTick, factionID, otherID)
	if err != nil {
		return OutcomeReport{}, err
	}
	if ab.Stance != store.StanceAtWar || !ab.WarState.AtWar {
		return OutcomeReport{}, fmt.Errorf("%w: cannot resolve war when not at war", ErrInvalidState)
	}

	var consequences []store.Consequence
	postWarStance := store.StanceNeutral

	switch outcomeType {
	case OutcomeVictory, OutcomeDefeat:
		if victorID == "" {
			return OutcomeReport{}, fmt.Errorf("%w: victor required for %s outcomes", ErrValidation, outcomeType)
		}
		if victorID != factionID && victorID != otherID {
			return OutcomeReport{}, fmt.Errorf("%w: victor %s is not a party to the war", ErrValidation, victorID)
		}
		loserID := otherID
		if victorID == otherID {
			loserID = factionID
		}
		postWarStance = store.StanceUnfriendly
		if applyConsequences {
			consequences, err = e.applyVictoryConsequences(nowTick, victorID, loserID, terms)
			if err != nil {
				return OutcomeReport{}, err
			}
		}

	case OutcomeNegotiated:
		victorID = ""
		postWarStance = store.StanceNeutral
		if applyConsequences && terms != nil {
			consequences, err = e.applyNegotiatedConsequences(terms)
			if err != nil {
				return OutcomeReport{}, err
			}
		}

	case OutcomeStalemate:
		victorID = ""
		postWarStance = store.StanceUnfriendly
		if applyConsequences {
			consequences, err = e.applyStalemateConsequences(factionID, otherID)
			if err != nil {
				return OutcomeReport{}, err
			}
		}

	default:
		return OutcomeReport{}, fmt.Errorf("%w: unknown outcome type %q", ErrValidation, outcomeType)
	}

	if override, ok := terms["post_war_stance"].(string); ok {
		s := store.Stance(override)
		if !store.ValidStance(s) || s == store.StanceAtWar {
			return OutcomeReport{}, fmt.Errorf("%w: bad post_war_stance %q", ErrValidation, override)
		}
		postWarStance = s
	}

	if _, _, err := e.MakePeace(nowTick, factionID, otherID, terms, postWarStance); err != nil {
		return OutcomeReport{}, err
	}

	outcome := store.WarOutcome{
		Tick:         nowTick,
		OutcomeType:  outcomeType,
		VictorID:     victorID,
		Terms:        terms,
		Consequences: consequences,
	}
	ab, ba, err := e.loadPair(nowTick, factionID, otherID)
	if err != nil {
		return OutcomeReport{}, err
	}
	ab.WarState.Outcomes = append(ab.WarState.Outcomes, outcome)
	ba.WarState.Outcomes = append(ba.WarState.Outcomes, outcome)
	if err := e.putPair(ab, ba); err != nil {
		return OutcomeReport{}, err
	}

	for _, pair := range [][2]string{{factionID, otherID}, {otherID, factionID}} {
		f, err := e.store.Faction(pair[0])
		if err != nil {
			return OutcomeReport{}, err
		}
		f.State.WarHistory = append(f.State.WarHistory, store.WarRecord{
			Tick:        nowTick,
			AgainstID:   pair[1],
			OutcomeType: outcomeType,
			VictorID:    victorID,
		})
		if err := e.store.PutFaction(f); err != nil {
			return OutcomeReport{}, fmt.Errorf("%w: %v", ErrStore, err)
		}
	}

	e.emit(protocol.Event{
		"t":       nowTick,
		"type":    protocol.EvWarResolved,
		"faction": factionID,
		"other":   otherID,
		"outcome": outcomeType,
		"victor":  victorID,
	})

	return OutcomeReport{
		OutcomeType:    outcomeType,
		FactionID:      factionID,
		OtherFactionID: otherID,
		VictorID:       victorID,
		PostWarStance:  string(postWarStance),
		Consequences:   consequences,
		Terms:          terms,
	}, nil
}

// applyVictoryConsequences transfers a share of the loser's gold to the
// victor, logs territory/population shifts from the terms, and moves
// influence toward the victor.
func (e *Engine) applyVictoryConsequences(nowTick uint64, victorID, loserID string, terms map[string]any) ([]store.Consequence, error) {
	victor, err := e.store.Faction(victorID)
	if err != nil {
		return nil, err
	}
	loser, err := e.store.Faction(loserID)
	if err != nil {
		return nil, err
	}

	var consequences []store.Consequence

	transferPct := e.tune.War.ResourceTransferPct
	if v, ok := termFloat(terms, "resource_transfer_pct"); ok {
		transferPct = v
	}
	if gold, ok := loser.Resources["gold"]; ok && gold > 0 && transferPct > 0 {
		amount := math.Floor(gold * transferPct / 100)
		if amount > 0 {
			loser.Resources["gold"] -= amount
			if victor.Resources == nil {
				victor.Resources = map[string]float64{}
			}
			victor.Resources["gold"] += amount
			consequences = append(consequences, store.Consequence{
				Type:          "resource_transfer",
				Resource:      "gold",
				Amount:        amount,
				FromFactionID: loserID,
				ToFactionID:   victorID,
			})
		}
	}

	for _, territoryID := range termStrings(terms, "territories") {
		consequences = append(consequences, store.Consequence{
			Type:          "territory_transfer",
			TerritoryID:   territoryID,
			FromFactionID: loserID,
			ToFactionID:   victorID,
		})
	}

	populationPct := 10.0
	if v, ok := termFloat(terms, "population_shift_pct"); ok {
		populationPct = v
	}
	consequences = append(consequences, store.Consequence{
		Type:          "population_shift",
		Percentage:    populationPct,
		FromFactionID: loserID,
		ToFactionID:   victorID,
	})

	victor.Influence = clampInfluence(victor.Influence + 10)
	loserInfluence := loser.Influence - 15
	if loserInfluence < 10 {
		loserInfluence = 10
	}
	loser.Influence = loserInfluence
	consequences = append(consequences,
		store.Consequence{Type: "influence_change", FactionID: victorID, Change: 10},
		store.Consequence{Type: "influence_change", FactionID: loserID, Change: -15},
	)

	if err := e.store.PutFaction(victor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := e.store.PutFaction(loser); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return consequences, nil
}

// applyNegotiatedConsequences executes caller-supplied terms verbatim:
// resource transfers floor at zero, territory transfers are logged, and
// unmodeled consequences pass through untouched.
func (e *Engine) applyNegotiatedConsequences(terms map[string]any) ([]store.Consequence, error) {
	var consequences []store.Consequence

	for _, raw := range termList(terms, "resource_transfers") {
		fromID, _ := raw["from_faction_id"].(string)
		toID, _ := raw["to_faction_id"].(string)
		resource, _ := raw["resource"].(string)
		amount, okAmount := floatValue(raw["amount"])
		if fromID == "" || toID == "" || resource == "" || !okAmount || amount <= 0 {
			continue
		}
		from, err := e.store.Faction(fromID)
		if err != nil {
			return nil, err
		}
		to, err := e.store.Faction(toID)
		if err != nil {
			return nil, err
		}
		actual := amount
		if held := from.Resources[resource]; held < actual {
			actual = held
		}
		if actual < 0 {
			actual = 0
		}
		if from.Resources == nil {
			from.Resources = map[string]float64{}
		}
		if to.Resources == nil {
			to.Resources = map[string]float64{}
		}
		from.Resources[resource] -= actual
		to.Resources[resource] += actual
		if err := e.store.PutFaction(from); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		if err := e.store.PutFaction(to); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		consequences = append(consequences, store.Consequence{
			Type:          "resource_transfer",
			Resource:      resource,
			Amount:        actual,
			FromFactionID: fromID,
			ToFactionID:   toID,
		})
	}

	for _, raw := range termList(terms, "territory_transfers") {
		territoryID, _ := raw["territory_id"].(string)
		fromID, _ := raw["from_faction_id"].(string)
		toID, _ := raw["to_faction_id"].(string)
		if territoryID == "" || fromID == "" || toID == "" {
			continue
		}
		consequences = append(consequences, store.Consequence{
			Type:          "territory_transfer",
			TerritoryID:   territoryID,
			FromFactionID: fromID,
			ToFactionID:   toID,
		})
	}

	for _, raw := range termList(terms, "other_consequences") {
		c := store.Consequence{Type: "other"}
		if t, ok := raw["type"].(string); ok && t != "" {
			c.Type = t
		}
		if d, ok := raw["detail"].(string); ok {
			c.Detail = d
		}
		if v, ok := floatValue(raw["amount"]); ok {
			c.Amount = v
		}
		if id, ok := raw["faction_id"].(string); ok {
			c.FactionID = id
		}
		consequences = append(consequences, c)
	}

	return consequences, nil
}

// applyStalemateConsequences bleeds both sides: flat gold attrition and a
// small influence loss each.
func (e *Engine) applyStalemateConsequences(factionID, otherID string) ([]store.Consequence, error) {
	var consequences []store.Consequence
	for _, id := range []string{factionID, otherID} {
		f, err := e.store.Faction(id)
		if err != nil {
			return nil, err
		}
		if gold, ok := f.Resources["gold"]; ok && gold > 0 {
			attrition := math.Floor(gold * e.tune.War.StalemateAttrition)
			if attrition > 0 {
				f.Resources["gold"] -= attrition
				consequences = append(consequences, store.Consequence{
					Type:      "war_attrition",
					FactionID: id,
					Resource:  "gold",
					Amount:    attrition,
				})
			}
		}
		reduced := f.Influence - 5
		if reduced < 10 {
			reduced = 10
		}
		f.Influence = reduced
		consequences = append(consequences, store.Consequence{
			Type:      "influence_change",
			FactionID: id,
			Change:    -5,
		})
		if err := e.store.PutFaction(f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	}
	return consequences, nil
}

func floatValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func termFloat(terms map[string]any, key string) (float64, bool) {
	if terms == nil {
		return 0, false
	}
	return floatValue(terms[key])
}

func termStrings(terms map[string]any, key string) []string {
	if terms == nil {
		return nil
	}
	raw, ok := terms[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func termList(terms map[string]any, key string) []map[string]any {
	if terms == nil {
		return nil
	}
	raw, ok := terms[key].([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
