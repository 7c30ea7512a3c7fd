package faction

import (
	"errors"
	"fmt"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/store"
)

// loadPair fetches both directions of a relationship, creating a symmetric
// NEUTRAL pair if absent. If the two records have drifted apart (a partial
// write slipped past a store without transactions), the a->b direction wins
// and the repair is logged on both histories.
func (e *Engine) loadPair(nowTick uint64, factionID, otherID string) (ab, ba *store.Relationship, err error) {
	if factionID == "" || otherID == "" || factionID == otherID {
		return nil, nil, fmt.Errorf("%w: bad faction pair %q/%q", ErrValidation, factionID, otherID)
	}
	if _, err := e.store.Faction(factionID); err != nil {
		return nil, nil, err
	}
	if _, err := e.store.Faction(otherID); err != nil {
		return nil, nil, err
	}

	ab, errA := e.store.Relationship(factionID, otherID)
	ba, errB := e.store.Relationship(otherID, factionID)
	missingA := errors.Is(errA, store.ErrNotFound)
	missingB := errors.Is(errB, store.ErrNotFound)
	if errA != nil && !missingA {
		return nil, nil, fmt.Errorf("%w: %v", ErrStore, errA)
	}
	if errB != nil && !missingB {
		return nil, nil, fmt.Errorf("%w: %v", ErrStore, errB)
	}

	if missingA || missingB {
		established := entry(nowTick, "relationship_established", map[string]any{"stance": string(store.StanceNeutral)})
		if missingA {
			ab = &store.Relationship{
				FactionID:      factionID,
				OtherFactionID: otherID,
				Stance:         store.StanceNeutral,
				History:        []store.HistoryEntry{established},
			}
		}
		if missingB {
			ba = &store.Relationship{
				FactionID:      otherID,
				OtherFactionID: factionID,
				Stance:         store.StanceNeutral,
				History:        []store.HistoryEntry{established},
			}
		}
		// A lone direction seeds its new twin so no state is invented.
		if missingA != missingB {
			src, dst := ab, ba
			if missingA {
				src, dst = ba, ab
			}
			dst.Stance = src.Stance
			dst.Tension = src.Tension
			dst.WarState.AtWar = src.WarState.AtWar
		}
		if err := e.store.PutRelationshipPair(ab, ba); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		return ab, ba, nil
	}

	if ab.Tension != ba.Tension || ab.WarState.AtWar != ba.WarState.AtWar {
		repair := entry(nowTick, "symmetry_reconciled", map[string]any{
			"tension": ab.Tension,
			"at_war":  ab.WarState.AtWar,
		})
		ba.Tension = ab.Tension
		ba.WarState.AtWar = ab.WarState.AtWar
		ab.History = append(ab.History, repair)
		ba.History = append(ba.History, repair)
		if err := e.store.PutRelationshipPair(ab, ba); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	}
	return ab, ba, nil
}

func (e *Engine) putPair(ab, ba *store.Relationship) error {
	if err := e.store.PutRelationshipPair(ab, ba); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

// SetStance assigns a diplomatic stance to both directions of a pair,
// resetting tension to the stance's canonical anchor. AT_WAR additionally
// raises the war flag; use DeclareWar for a full declaration with a reason.
func (e *Engine) SetStance(nowTick uint64, factionID, otherID string, stance store.Stance, metadata map[string]any) (*store.Relationship, error) {
	if !store.ValidStance(stance) {
		return nil, fmt.Errorf("%w: unknown stance %q", ErrValidation, stance)
	}
	ab, ba, err := e.loadPair(nowTick, factionID, otherID)
	if err != nil {
		return nil, err
	}

	ev := entry(nowTick, "stance_changed", map[string]any{
		"old_stance": string(ab.Stance),
		"new_stance": string(stance),
	})
	for _, r := range []*store.Relationship{ab, ba} {
		r.Stance = stance
		r.Tension = stance.TensionAnchor()
		if stance == store.StanceAtWar {
			r.WarState.AtWar = true
		}
		r.History = append(r.History, ev)
		if metadata != nil {
			if r.Metadata == nil {
				r.Metadata = map[string]any{}
			}
			for k, v := range metadata {
				r.Metadata[k] = v
			}
		}
	}
	if err := e.putPair(ab, ba); err != nil {
		return nil, err
	}
	e.emit(protocol.Event{
		"t":       nowTick,
		"type":    protocol.EvStanceChanged,
		"faction": factionID,
		"other":   otherID,
		"stance":  string(stance),
		"tension": ab.Tension,
	})
	return ab, nil
}

// UpdateTension shifts tension on both directions by delta, clamped to
// [-100, 100]. Crossing the hostility threshold from below promotes the
// stance to HOSTILE (war still needs an explicit declaration); crossing zero
// downward demotes to FRIENDLY. The nudges never touch an explicitly set
// ALLIED or AT_WAR stance.
func (e *Engine) UpdateTension(nowTick uint64, factionID, otherID string, delta float64, metadata map[string]any) (*store.Relationship, *store.Relationship, error) {
	ab, ba, err := e.loadPair(nowTick, factionID, otherID)
	if err != nil {
		return nil, nil, err
	}

	oldTension := ab.Tension
	newTension := clampTension(oldTension + delta)

	ev := entry(nowTick, "tension_changed", map[string]any{
		"old_tension": oldTension,
		"new_tension": newTension,
		"delta":       delta,
	})
	if metadata != nil {
		ev.Data["metadata"] = metadata
	}
	for _, r := range []*store.Relationship{ab, ba} {
		r.Tension = newTension
		r.History = append(r.History, ev)
	}

	var newStance store.Stance
	switch {
	case oldTension < 80 && newTension >= 80 && ab.Stance != store.StanceAtWar:
		newStance = store.StanceHostile
	case oldTension >= 0 && newTension < 0 && ab.Stance != store.StanceAllied && ab.Stance != store.StanceAtWar:
		newStance = store.StanceFriendly
	}
	if newStance != "" && newStance != ab.Stance {
		stanceEv := entry(nowTick, "stance_changed", map[string]any{
			"old_stance": string(ab.Stance),
			"new_stance": string(newStance),
			"reason":     "tension_threshold",
		})
		for _, r := range []*store.Relationship{ab, ba} {
			r.Stance = newStance
			r.History = append(r.History, stanceEv)
		}
	}

	if err := e.putPair(ab, ba); err != nil {
		return nil, nil, err
	}
	e.emit(protocol.Event{
		"t":       nowTick,
		"type":    protocol.EvTensionChanged,
		"faction": factionID,
		"other":   otherID,
		"tension": newTension,
		"delta":   delta,
	})
	return ab, ba, nil
}

// DeclareWar forces the pair to AT_WAR at tension 100, records declarer and
// reason, and registers the war in both factions' active-war sets.
func (e *Engine) DeclareWar(nowTick uint64, factionID, otherID, reason string, details map[string]any) (*store.Relationship, *store.Relationship, error) {
	if reason == "" {
		reason = "unspecified"
	}
	ab, ba, err := e.loadPair(nowTick, factionID, otherID)
	if err != nil {
		return nil, nil, err
	}

	ev := entry(nowTick, "war_declared", map[string]any{
		"declarer_id": factionID,
		"target_id":   otherID,
		"reason":      reason,
	})
	if details != nil {
		ev.Data["details"] = details
	}
	for _, r := range []*store.Relationship{ab, ba} {
		r.Stance = store.StanceAtWar
		r.Tension = 100
		r.WarState.AtWar = true
		r.WarState.DeclaredBy = factionID
		r.WarState.Reason = reason
		r.WarState.DeclaredTick = nowTick
		r.History = append(r.History, ev)
	}
	if err := e.putPair(ab, ba); err != nil {
		return nil, nil, err
	}

	if err := e.addActiveWar(nowTick, factionID, otherID); err != nil {
		return nil, nil, err
	}
	if err := e.addActiveWar(nowTick, otherID, factionID); err != nil {
		return nil, nil, err
	}

	e.emit(protocol.Event{
		"t":        nowTick,
		"type":     protocol.EvWarDeclared,
		"declarer": factionID,
		"target":   otherID,
		"reason":   reason,
	})
	return ab, ba, nil
}

// MakePeace ends an active war, appends the settlement terms, and moves the
// pair to newStance's canonical values. It fails with ErrInvalidState when
// the pair is not at war and mutates nothing in that case.
func (e *Engine) MakePeace(nowTick uint64, factionID, otherID string, terms map[string]any, newStance store.Stance) (*store.Relationship, *store.Relationship, error) {
	if newStance == "" {
		newStance = store.StanceNeutral
	}
	if !store.ValidStance(newStance) || newStance == store.StanceAtWar {
		return nil, nil, fmt.Errorf("%w: bad post-war stance %q", ErrValidation, newStance)
	}
	ab, ba, err := e.loadPair(nowTick, factionID, otherID)
	if err != nil {
		return nil, nil, err
	}
	if ab.Stance != store.StanceAtWar || !ab.WarState.AtWar {
		return nil, nil, fmt.Errorf("%w: cannot make peace when not at war", ErrInvalidState)
	}

	settlement := store.PeaceTerm{Tick: nowTick, Terms: terms}
	ev := entry(nowTick, "peace_established", map[string]any{
		"new_stance": string(newStance),
		"terms":      terms,
	})
	for _, r := range []*store.Relationship{ab, ba} {
		r.WarState.AtWar = false
		r.WarState.PeaceTerms = append(r.WarState.PeaceTerms, settlement)
		r.Stance = newStance
		r.Tension = newStance.TensionAnchor()
		r.History = append(r.History, ev)
	}
	if err := e.putPair(ab, ba); err != nil {
		return nil, nil, err
	}

	if err := e.removeActiveWar(nowTick, factionID, otherID); err != nil {
		return nil, nil, err
	}
	if err := e.removeActiveWar(nowTick, otherID, factionID); err != nil {
		return nil, nil, err
	}

	e.emit(protocol.Event{
		"t":       nowTick,
		"type":    protocol.EvPeaceMade,
		"faction": factionID,
		"other":   otherID,
		"stance":  string(newStance),
	})
	return ab, ba, nil
}

func (e *Engine) addActiveWar(nowTick uint64, factionID, enemyID string) error {
	f, err := e.store.Faction(factionID)
	if err != nil {
		return err
	}
	for _, id := range f.State.ActiveWars {
		if id == enemyID {
			return nil
		}
	}
	f.State.ActiveWars = append(f.State.ActiveWars, enemyID)
	f.History = append(f.History, entry(nowTick, "war_started", map[string]any{"enemy": enemyID}))
	if err := e.store.PutFaction(f); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (e *Engine) removeActiveWar(nowTick uint64, factionID, enemyID string) error {
	f, err := e.store.Faction(factionID)
	if err != nil {
		return err
	}
	kept := f.State.ActiveWars[:0]
	removed := false
	for _, id := range f.State.ActiveWars {
		if id == enemyID {
			removed = true
			continue
		}
		kept = append(kept, id)
	}
	if !removed {
		return nil
	}
	f.State.ActiveWars = kept
	f.History = append(f.History, entry(nowTick, "war_ended", map[string]any{"enemy": enemyID}))
	if err := e.store.PutFaction(f); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}
