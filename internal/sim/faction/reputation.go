package faction

import (
	"fmt"
	"sort"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/store"
)

// Reputation brackets, ordered best to worst.
const (
	BracketRevered    = "revered"
	BracketRespected  = "respected"
	BracketFriendly   = "friendly"
	BracketNeutral    = "neutral"
	BracketUnfriendly = "unfriendly"
	BracketHostile    = "hostile"
	BracketReviled    = "reviled"
)

// BracketOf maps a reputation value to its named bracket.
func BracketOf(rep float64) string {
	switch {
	case rep >= 90:
		return BracketRevered
	case rep >= 70:
		return BracketRespected
	case rep >= 30:
		return BracketFriendly
	case rep >= -30:
		return BracketNeutral
	case rep >= -70:
		return BracketUnfriendly
	case rep >= -90:
		return BracketHostile
	default:
		return BracketReviled
	}
}

// ReputationChange reports one applied reputation adjustment.
type ReputationChange struct {
	FactionID   string  `json:"faction_id"`
	Scope       string  `json:"scope"`
	ScopeID     string  `json:"scope_id,omitempty"`
	Delta       float64 `json:"delta"`
	NewValue    float64 `json:"new_value"`
	Bracket     string  `json:"bracket"`
	BracketFrom string  `json:"bracket_from,omitempty"`
	Source      string  `json:"source,omitempty"`
}

// repHistory records one applied change on the faction ledger. Every change
// is logged; bracket crossings get a second, dedicated entry so observers can
// scan for threshold events without replaying every adjustment.
func repHistory(f *store.Faction, nowTick uint64, c ReputationChange, before float64, reason, source string) {
	data := map[string]any{
		"scope":  c.Scope,
		"before": before,
		"after":  c.NewValue,
		"delta":  c.Delta,
		"reason": reason,
		"source": source,
	}
	if c.ScopeID != "" {
		data["scope_id"] = c.ScopeID
	}
	f.History = append(f.History, entry(nowTick, "reputation_changed", data))
	if c.BracketFrom != "" {
		f.History = append(f.History, entry(nowTick, "reputation_bracket_changed", map[string]any{
			"scope":  c.Scope,
			"from":   c.BracketFrom,
			"to":     c.Bracket,
			"value":  c.NewValue,
			"reason": reason,
			"source": source,
		}))
	}
}

// ModifyGlobalReputation shifts a faction's world-wide reputation, logging the
// change and any bracket crossing on the faction's history.
func (e *Engine) ModifyGlobalReputation(nowTick uint64, factionID string, amount float64, reason, source string) (ReputationChange, error) {
	f, err := e.store.Faction(factionID)
	if err != nil {
		return ReputationChange{}, err
	}
	before := f.Reputation
	f.Reputation = clampReputation(f.Reputation + amount)

	change := ReputationChange{
		FactionID: factionID,
		Scope:     "global",
		Delta:     f.Reputation - before,
		NewValue:  f.Reputation,
		Bracket:   BracketOf(f.Reputation),
		Source:    source,
	}
	if from := BracketOf(before); from != change.Bracket {
		change.BracketFrom = from
	}
	repHistory(f, nowTick, change, before, reason, source)
	if err := e.store.PutFaction(f); err != nil {
		return ReputationChange{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	e.emitReputation(nowTick, change, reason)
	return change, nil
}

// ModifyRegionalReputation shifts standing within one region; a fraction of
// the change bleeds through to the global value.
func (e *Engine) ModifyRegionalReputation(nowTick uint64, factionID, regionID string, amount float64, reason, source string) (ReputationChange, error) {
	if regionID == "" {
		return ReputationChange{}, fmt.Errorf("%w: region id required", ErrValidation)
	}
	f, err := e.store.Faction(factionID)
	if err != nil {
		return ReputationChange{}, err
	}
	if f.State.RegionalRep == nil {
		f.State.RegionalRep = map[string]float64{}
	}
	before := f.State.RegionalRep[regionID]
	after := clampReputation(before + amount)
	f.State.RegionalRep[regionID] = after

	change := ReputationChange{
		FactionID: factionID,
		Scope:     "regional",
		ScopeID:   regionID,
		Delta:     after - before,
		NewValue:  after,
		Bracket:   BracketOf(after),
		Source:    source,
	}
	if from := BracketOf(before); from != change.Bracket {
		change.BracketFrom = from
	}
	repHistory(f, nowTick, change, before, reason, source)
	if err := e.store.PutFaction(f); err != nil {
		return ReputationChange{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	e.emitReputation(nowTick, change, reason)

	if spill := change.Delta * e.tune.Reputation.RegionalToGlobal; spill != 0 {
		if _, err := e.ModifyGlobalReputation(nowTick, factionID, spill, reason, "regional:"+regionID); err != nil {
			return ReputationChange{}, err
		}
	}
	return change, nil
}

// ModifyCharacterReputation shifts how a faction regards one character. When
// that character holds an active membership in the faction, half the change
// nudges the membership's standing as well.
func (e *Engine) ModifyCharacterReputation(nowTick uint64, factionID, characterID string, amount float64, reason, source string) (ReputationChange, error) {
	if characterID == "" {
		return ReputationChange{}, fmt.Errorf("%w: character id required", ErrValidation)
	}
	f, err := e.store.Faction(factionID)
	if err != nil {
		return ReputationChange{}, err
	}
	if f.State.CharacterRep == nil {
		f.State.CharacterRep = map[string]float64{}
	}
	before := f.State.CharacterRep[characterID]
	after := clampReputation(before + amount)
	f.State.CharacterRep[characterID] = after

	change := ReputationChange{
		FactionID: factionID,
		Scope:     "character",
		ScopeID:   characterID,
		Delta:     after - before,
		NewValue:  after,
		Bracket:   BracketOf(after),
		Source:    source,
	}
	if from := BracketOf(before); from != change.Bracket {
		change.BracketFrom = from
	}
	repHistory(f, nowTick, change, before, reason, source)
	if err := e.store.PutFaction(f); err != nil {
		return ReputationChange{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	e.emitReputation(nowTick, change, reason)

	if nudge := change.Delta * e.tune.Reputation.CharacterToMember; nudge != 0 {
		members, err := e.store.Memberships(store.MembershipFilter{
			FactionID: factionID, CharacterID: characterID, ActiveOnly: true,
		})
		if err != nil {
			return ReputationChange{}, fmt.Errorf("%w: %v", ErrStore, err)
		}
		for _, m := range members {
			m.Reputation = clampReputation(m.Reputation + nudge)
			if err := e.store.PutMembership(m); err != nil {
				return ReputationChange{}, fmt.Errorf("%w: %v", ErrStore, err)
			}
		}
	}
	return change, nil
}

// RegionReputation is one region's standing in a summary.
type RegionReputation struct {
	RegionID string  `json:"region_id"`
	Value    float64 `json:"value"`
	Bracket  string  `json:"bracket"`
}

// RegionalReputationSummary lists a faction's regional standings in region-id
// order, so repeated calls over the same state compare equal.
func (e *Engine) RegionalReputationSummary(factionID string) ([]RegionReputation, error) {
	f, err := e.store.Faction(factionID)
	if err != nil {
		return nil, err
	}
	out := make([]RegionReputation, 0, len(f.State.RegionalRep))
	for regionID, v := range f.State.RegionalRep {
		out = append(out, RegionReputation{RegionID: regionID, Value: v, Bracket: BracketOf(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegionID < out[j].RegionID })
	return out, nil
}

// Modifiers are the gameplay multipliers derived from a reputation value.
// Trade, recruiting and favor costs fall as reputation rises; rewards,
// leverage and information access grow.
type Modifiers struct {
	TradePrice         float64 `json:"trade_price"`
	QuestReward        float64 `json:"quest_reward"`
	RecruitingCost     float64 `json:"recruiting_cost"`
	DiplomaticLeverage float64 `json:"diplomatic_leverage"`
	InformationAccess  float64 `json:"information_access"`
	FavorCost          float64 `json:"favor_cost"`
	Bracket            string  `json:"bracket"`
}

// ComputeModifiers derives the multiplier set for a reputation value. The
// base curve is linear; the outer brackets carry fixed bonuses and penalties
// on top of it. Cost multipliers clamp to [0.1, 2.0]; leverage and
// information access may run up to 3.0 for revered standing.
func ComputeModifiers(rep float64) Modifiers {
	rep = clampReputation(rep)
	bracket := BracketOf(rep)

	m := Modifiers{
		TradePrice:         1 - rep/200,
		QuestReward:        1 + rep/200,
		RecruitingCost:     1 - rep/250,
		DiplomaticLeverage: 1 + rep/100,
		InformationAccess:  1 + rep/150,
		FavorCost:          1 - rep/200,
		Bracket:            bracket,
	}
	switch bracket {
	case BracketRevered:
		m.TradePrice -= 0.1
		m.DiplomaticLeverage += 0.5
		m.InformationAccess += 0.5
	case BracketRespected:
		m.TradePrice -= 0.05
		m.DiplomaticLeverage += 0.25
		m.InformationAccess += 0.25
	case BracketHostile:
		m.TradePrice += 0.1
		m.RecruitingCost += 0.1
		m.DiplomaticLeverage = 0.25
	case BracketReviled:
		m.TradePrice += 0.25
		m.RecruitingCost += 0.25
		m.DiplomaticLeverage = 0.1
	}

	m.TradePrice = clampModifier(m.TradePrice, 2.0)
	m.QuestReward = clampModifier(m.QuestReward, 2.0)
	m.RecruitingCost = clampModifier(m.RecruitingCost, 2.0)
	m.FavorCost = clampModifier(m.FavorCost, 2.0)
	m.DiplomaticLeverage = clampModifier(m.DiplomaticLeverage, 3.0)
	m.InformationAccess = clampModifier(m.InformationAccess, 3.0)
	return m
}

// ComputeReputationModifiers derives the multiplier set from a faction's
// current global reputation.
func (e *Engine) ComputeReputationModifiers(factionID string) (Modifiers, error) {
	f, err := e.store.Faction(factionID)
	if err != nil {
		return Modifiers{}, err
	}
	return ComputeModifiers(f.Reputation), nil
}

func clampModifier(v, max float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > max {
		return max
	}
	return v
}

func (e *Engine) emitReputation(nowTick uint64, c ReputationChange, reason string) {
	ev := protocol.Event{
		"t":       nowTick,
		"type":    protocol.EvReputationChanged,
		"faction": c.FactionID,
		"scope":   c.Scope,
		"delta":   c.Delta,
		"value":   c.NewValue,
		"bracket": c.Bracket,
	}
	if c.ScopeID != "" {
		ev["scope_id"] = c.ScopeID
	}
	if reason != "" {
		ev["reason"] = reason
	}
	if c.Source != "" {
		ev["source"] = c.Source
	}
	if c.BracketFrom != "" {
		ev["bracket_from"] = c.BracketFrom
	}
	e.emit(ev)
}
