package faction

import (
	"fmt"
	"sort"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/store"
)

// IdeologicalDivide describes the ideological driver behind a potential
// schism. Type "religious" or "peaceful" softens the post-schism stance.
type IdeologicalDivide struct {
	Cause    string  `json:"cause"`
	Type     string  `json:"type,omitempty"`
	Strength float64 `json:"strength,omitempty"`
}

// TriggerEvent is a narrative event pushing a faction toward fracture.
type TriggerEvent struct {
	Description     string  `json:"description"`
	TensionModifier float64 `json:"tension_modifier,omitempty"`
}

// SchismOptions parameterizes one CheckSchism call. InternalTension, when
// set, overrides both the faction's stored tension and the loyalty-spread
// computation. Threshold zero means the engine default.
type SchismOptions struct {
	InternalTension *float64
	Divide          *IdeologicalDivide
	Trigger         *TriggerEvent
	Threshold       float64
}

// SchismReport describes a schism, or its absence (Occurred == false).
type SchismReport struct {
	Occurred bool `json:"occurred"`

	ParentFactionID    string   `json:"parent_faction_id,omitempty"`
	NewFactionID       string   `json:"new_faction_id,omitempty"`
	NewFactionName     string   `json:"new_faction_name,omitempty"`
	MembersTransferred int      `json:"members_transferred,omitempty"`
	DefectorIDs        []string `json:"defector_ids,omitempty"`
	TensionBefore      float64  `json:"tension_before,omitempty"`
	TensionAfter       float64  `json:"tension_after,omitempty"`
	InitialStance      string   `json:"initial_stance,omitempty"`
}

var breakawayPrefixes = []string{"Reformed", "True", "Separatist", "New", "Breakaway", "Dissident"}

// CheckSchism evaluates whether a faction fractures and, if so, carves off a
// breakaway faction, migrating the defecting members. Members conserve: every
// defector ends with exactly one active membership, in the new faction.
func (e *Engine) CheckSchism(nowTick uint64, factionID string, opts SchismOptions) (SchismReport, error) {
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = e.tune.Schism.Threshold
	}
	if threshold <= 0 || threshold >= 100 {
		return SchismReport{}, fmt.Errorf("%w: schism threshold must be in (0, 100)", ErrValidation)
	}

	parent, err := e.store.Faction(factionID)
	if err != nil {
		return SchismReport{}, err
	}

	members, err := e.store.Memberships(store.MembershipFilter{FactionID: factionID, ActiveOnly: true})
	if err != nil {
		return SchismReport{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	tension, ok, err := e.resolveInternalTension(parent, members, opts)
	if err != nil {
		return SchismReport{}, err
	}
	if !ok {
		return SchismReport{}, nil
	}
	if tension < threshold {
		return SchismReport{}, nil
	}

	// Higher tension above the threshold means more members are likely to split.
	splitProbability := (tension - threshold) / (100 - threshold)

	// Rank by loyalty, least loyal first; ties break on character id so the
	// draw order is reproducible.
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Reputation != members[j].Reputation {
			return members[i].Reputation < members[j].Reputation
		}
		return members[i].CharacterID < members[j].CharacterID
	})

	var defectors []*store.Membership
	firstTier := int(float64(len(members)) * 0.2)
	secondTier := int(float64(len(members)) * 0.3)
	for i, m := range members {
		var chance float64
		switch {
		case i < firstTier:
			chance = 0.6 + splitProbability*0.4
		case i < firstTier+secondTier:
			chance = 0.3 + splitProbability*0.4
		default:
			chance = 0.1 + splitProbability*0.2
		}
		if e.rng.Float64() < chance {
			defectors = append(defectors, m)
		}
	}

	// Critical mass: a breakaway needs at least 3 defectors and at least 10%
	// of the membership.
	if len(defectors) < 3 || float64(len(defectors)) < float64(len(members))*0.1 {
		return SchismReport{}, nil
	}

	cause := "internal_tension"
	if opts.Divide != nil && opts.Divide.Cause != "" {
		cause = opts.Divide.Cause
	} else if opts.Trigger != nil && opts.Trigger.Description != "" {
		cause = opts.Trigger.Description
	}

	breakaway, err := e.createBreakaway(nowTick, parent, cause, len(defectors))
	if err != nil {
		return SchismReport{}, err
	}

	defectorIDs := make([]string, 0, len(defectors))
	for _, m := range defectors {
		m.IsActive = false
		m.Status = "defected"
		m.History = append(m.History, entry(nowTick, "defection", map[string]any{
			"to_faction_id": breakaway.ID,
			"cause":         cause,
		}))
		if err := e.store.PutMembership(m); err != nil {
			return SchismReport{}, fmt.Errorf("%w: %v", ErrStore, err)
		}

		loyalty := m.Reputation + 30
		if loyalty > 100 {
			loyalty = 100
		}
		fresh := &store.Membership{
			FactionID:   breakaway.ID,
			CharacterID: m.CharacterID,
			Role:        "founding_member",
			Reputation:  loyalty,
			IsActive:    true,
			Status:      "active",
			JoinedTick:  nowTick,
			Metadata: map[string]any{
				"former_faction_id": parent.ID,
				"former_role":       m.Role,
			},
			History: []store.HistoryEntry{entry(nowTick, "founded_faction", map[string]any{
				"faction_id": breakaway.ID,
			})},
		}
		if err := e.store.PutMembership(fresh); err != nil {
			return SchismReport{}, fmt.Errorf("%w: %v", ErrStore, err)
		}
		defectorIDs = append(defectorIDs, m.CharacterID)
	}

	// Parent and breakaway start hostile unless the divide was ideological
	// rather than violent.
	stance := store.StanceHostile
	tensionAfterSplit := 75.0
	if opts.Divide != nil && (opts.Divide.Type == "religious" || opts.Divide.Type == "peaceful") {
		stance = store.StanceUnfriendly
		tensionAfterSplit = 50.0
	}
	if _, err := e.SetStance(nowTick, parent.ID, breakaway.ID, stance, map[string]any{"schism": true}); err != nil {
		return SchismReport{}, err
	}
	ab, ba, err := e.loadPair(nowTick, parent.ID, breakaway.ID)
	if err != nil {
		return SchismReport{}, err
	}
	ab.Tension = tensionAfterSplit
	ba.Tension = tensionAfterSplit
	if err := e.putPair(ab, ba); err != nil {
		return SchismReport{}, err
	}

	// Update the parent: record the schism, vent tension, shrink influence in
	// proportion to the membership lost.
	parent, err = e.store.Faction(parent.ID)
	if err != nil {
		return SchismReport{}, err
	}
	parent.State.Schisms = append(parent.State.Schisms, store.SchismRecord{
		Tick:         nowTick,
		NewFactionID: breakaway.ID,
		MembersLost:  len(defectors),
		Cause:        cause,
		TensionAt:    tension,
	})
	newTension := tension - 50
	if newTension < 0 {
		newTension = 0
	}
	parent.State.InternalTension = newTension
	defectorFraction := float64(len(defectors)) / float64(len(members))
	reduced := parent.Influence * (1 - 0.5*defectorFraction)
	if reduced < 10 {
		reduced = 10
	}
	parent.Influence = reduced
	if err := e.store.PutFaction(parent); err != nil {
		return SchismReport{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	e.emit(protocol.Event{
		"t":           nowTick,
		"type":        protocol.EvSchism,
		"parent":      parent.ID,
		"new_faction": breakaway.ID,
		"members":     len(defectors),
		"cause":       cause,
	})

	return SchismReport{
		Occurred:           true,
		ParentFactionID:    parent.ID,
		NewFactionID:       breakaway.ID,
		NewFactionName:     breakaway.Name,
		MembersTransferred: len(defectors),
		DefectorIDs:        defectorIDs,
		TensionBefore:      tension,
		TensionAfter:       newTension,
		InitialStance:      string(stance),
	}, nil
}

// resolveInternalTension picks the tension source: explicit argument, then
// the faction's stored value, then a loyalty-spread computation over active
// members (which needs at least 5 of them to be meaningful). The computed
// branch also folds in divide strength and trigger modifiers, and persists
// the result on the faction.
func (e *Engine) resolveInternalTension(parent *store.Faction, members []*store.Membership, opts SchismOptions) (float64, bool, error) {
	if opts.InternalTension != nil {
		return *opts.InternalTension, true, nil
	}
	if parent.State.InternalTension != 0 {
		return parent.State.InternalTension, true, nil
	}

	if len(members) < 5 {
		return 0, false, nil
	}
	minLoyalty, maxLoyalty := members[0].Reputation, members[0].Reputation
	for _, m := range members[1:] {
		if m.Reputation < minLoyalty {
			minLoyalty = m.Reputation
		}
		if m.Reputation > maxLoyalty {
			maxLoyalty = m.Reputation
		}
	}
	tension := (maxLoyalty - minLoyalty) * 5
	if opts.Divide != nil {
		tension += opts.Divide.Strength
	}
	if opts.Trigger != nil {
		tension += opts.Trigger.TensionModifier
	}
	if tension > 100 {
		tension = 100
	}

	parent.State.InternalTension = tension
	if err := e.store.PutFaction(parent); err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return tension, true, nil
}

// createBreakaway builds the new faction: a fraction of the parent's
// influence, a copy of its resources, no territory.
func (e *Engine) createBreakaway(nowTick uint64, parent *store.Faction, cause string, defectorCount int) (*store.Faction, error) {
	prefix := breakawayPrefixes[e.rng.Intn(len(breakawayPrefixes))]
	name := fmt.Sprintf("%s %s", prefix, parent.Name)

	influence := parent.Influence * 0.4
	if influence < 10 {
		influence = 10
	}
	resources := map[string]float64{}
	for k, v := range parent.Resources {
		resources[k] = v
	}

	breakaway := &store.Faction{
		ID:          e.store.NextFactionID(),
		Name:        name,
		Description: fmt.Sprintf("A breakaway faction that split from %s over %s.", parent.Name, cause),
		Kind:        parent.Kind,
		Influence:   influence,
		Resources:   resources,
		Territory:   map[string]store.Territory{},
		Traits:      parent.Traits,

		ParentFactionID: parent.ID,
		IsActive:        true,
		CreatedTick:     nowTick,
		History: []store.HistoryEntry{entry(nowTick, "founded_by_schism", map[string]any{
			"parent_faction_id": parent.ID,
			"cause":             cause,
			"founding_members":  defectorCount,
		})},
	}
	if err := e.store.PutFaction(breakaway); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return breakaway, nil
}
