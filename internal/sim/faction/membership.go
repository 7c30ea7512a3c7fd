package faction

import (
	"errors"
	"fmt"
	"sort"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/store"
)

// Membership statuses.
const (
	StatusActive   = "active"
	StatusDefected = "defected"
	StatusLeft     = "left"
	StatusSwitched = "switched"
)

// DefaultRole is assigned when a caller does not name one.
const DefaultRole = "member"

// affinityTraitCap bounds how many traits score into an affinity check, so
// the raw score tops out at affinityTraitCap * affinityTraitMax.
const (
	affinityTraitCap = 6
	affinityTraitMax = 6
)

// CreateFaction mints a new faction with a store-issued id. Influence starts
// at the midpoint; everything else starts empty.
func (e *Engine) CreateFaction(nowTick uint64, name, description, kind string, traits map[string]int, resources map[string]float64) (*store.Faction, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: faction name required", ErrValidation)
	}
	for trait, v := range traits {
		if v < 0 || v > affinityTraitMax {
			return nil, fmt.Errorf("%w: trait %s=%d outside 0..%d", ErrValidation, trait, v, affinityTraitMax)
		}
	}
	f := &store.Faction{
		ID:          e.store.NextFactionID(),
		Name:        name,
		Description: description,
		Kind:        kind,
		Influence:   50,
		Traits:      traits,
		Resources:   resources,
		IsActive:    true,
		CreatedTick: nowTick,
		History: []store.HistoryEntry{
			entry(nowTick, "founded", map[string]any{"name": name, "kind": kind}),
		},
	}
	if err := e.store.PutFaction(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return f, nil
}

// DeactivateFaction soft-retires a faction. The record and its history stay
// in the store, but the faction no longer accepts members and active
// memberships are closed out with status "left".
func (e *Engine) DeactivateFaction(nowTick uint64, factionID, reason string) (*store.Faction, error) {
	f, err := e.store.Faction(factionID)
	if err != nil {
		return nil, err
	}
	if !f.IsActive {
		return nil, fmt.Errorf("%w: faction %s is already inactive", ErrInvalidState, factionID)
	}
	members, err := e.store.Memberships(store.MembershipFilter{FactionID: factionID, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	for _, m := range members {
		m.IsActive = false
		m.Status = StatusLeft
		m.History = append(m.History, entry(nowTick, "left", map[string]any{"reason": "faction deactivated"}))
		if err := e.store.PutMembership(m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	}
	f.IsActive = false
	f.History = append(f.History, entry(nowTick, "deactivated", map[string]any{
		"reason": reason, "members_released": len(members),
	}))
	if err := e.store.PutFaction(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	e.emit(protocol.Event{
		"t":       nowTick,
		"type":    protocol.EvFactionDeactivated,
		"faction": factionID,
		"reason":  reason,
	})
	return f, nil
}

// AssignMember adds a character to a faction, or refreshes the loyalty and
// role of an existing active membership.
func (e *Engine) AssignMember(nowTick uint64, factionID, characterID string, loyalty float64, role string) (*store.Membership, error) {
	if characterID == "" {
		return nil, fmt.Errorf("%w: character id required", ErrValidation)
	}
	f, err := e.store.Faction(factionID)
	if err != nil {
		return nil, err
	}
	if !f.IsActive {
		return nil, fmt.Errorf("%w: faction %s is not active", ErrInvalidState, factionID)
	}
	if role == "" {
		role = DefaultRole
	}
	loyalty = clampReputation(loyalty)

	m, err := e.store.Membership(factionID, characterID)
	switch {
	case err == nil:
		// Refresh in place; a returning member keeps their history.
		m.Role = role
		m.Reputation = loyalty
		m.IsActive = true
		m.Status = StatusActive
		m.History = append(m.History, entry(nowTick, "membership_refreshed", map[string]any{
			"role": role, "loyalty": loyalty,
		}))
	case errors.Is(err, store.ErrNotFound):
		m = &store.Membership{
			FactionID:   factionID,
			CharacterID: characterID,
			Role:        role,
			Reputation:  loyalty,
			IsActive:    true,
			Status:      StatusActive,
			JoinedTick:  nowTick,
			History: []store.HistoryEntry{
				entry(nowTick, "joined", map[string]any{"role": role, "loyalty": loyalty}),
			},
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := e.store.PutMembership(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	e.emit(protocol.Event{
		"t":         nowTick,
		"type":      protocol.EvAffiliationGained,
		"faction":   factionID,
		"character": characterID,
		"role":      role,
	})
	return m, nil
}

// UpdateLoyalty shifts an active membership's loyalty by delta, clamped to
// [-100, 100], and records why.
func (e *Engine) UpdateLoyalty(nowTick uint64, factionID, characterID string, delta float64, reason string) (*store.Membership, error) {
	m, err := e.activeMembership(factionID, characterID)
	if err != nil {
		return nil, err
	}
	before := m.Reputation
	m.Reputation = clampReputation(m.Reputation + delta)
	m.History = append(m.History, entry(nowTick, "loyalty_changed", map[string]any{
		"from": before, "to": m.Reputation, "reason": reason,
	}))
	if err := e.store.PutMembership(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return m, nil
}

// RemoveMember deactivates a membership with status "left". The record stays
// in the store so history survives the departure.
func (e *Engine) RemoveMember(nowTick uint64, factionID, characterID, reason string) error {
	m, err := e.activeMembership(factionID, characterID)
	if err != nil {
		return err
	}
	m.IsActive = false
	m.Status = StatusLeft
	m.History = append(m.History, entry(nowTick, "left", map[string]any{"reason": reason}))
	if err := e.store.PutMembership(m); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

// MemberFilter narrows a Members listing.
type MemberFilter struct {
	Role            string
	MinLoyalty      float64
	HasMinLoyalty   bool
	IncludeInactive bool
}

// Members lists a faction's memberships, sorted by character id.
func (e *Engine) Members(factionID string, filter MemberFilter) ([]*store.Membership, error) {
	if _, err := e.store.Faction(factionID); err != nil {
		return nil, err
	}
	members, err := e.store.Memberships(store.MembershipFilter{
		FactionID:  factionID,
		ActiveOnly: !filter.IncludeInactive,
		Role:       filter.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if !filter.HasMinLoyalty {
		return members, nil
	}
	out := members[:0]
	for _, m := range members {
		if m.Reputation >= filter.MinLoyalty {
			out = append(out, m)
		}
	}
	return out, nil
}

// CharacterFactions lists every active membership a character holds, sorted
// by faction id. A character may belong to several factions at once.
func (e *Engine) CharacterFactions(characterID string) ([]*store.Membership, error) {
	members, err := e.store.Memberships(store.MembershipFilter{
		CharacterID: characterID,
		ActiveOnly:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return members, nil
}

// Affinity scores how well a character's traits fit a faction's, 0..36. Each
// of the faction's first six traits (by name) contributes 6 minus the
// distance between the two trait values; an absent character trait counts
// as zero.
func (e *Engine) Affinity(characterID, factionID string) (int, error) {
	f, err := e.store.Faction(factionID)
	if err != nil {
		return 0, err
	}
	npc, err := e.store.NPC(characterID)
	if err != nil {
		return 0, err
	}

	traits := make([]string, 0, len(f.Traits))
	for name := range f.Traits {
		traits = append(traits, name)
	}
	sort.Strings(traits)
	if len(traits) > affinityTraitCap {
		traits = traits[:affinityTraitCap]
	}

	score := 0
	for _, name := range traits {
		diff := f.Traits[name] - npc.Traits[name]
		if diff < 0 {
			diff = -diff
		}
		closeness := affinityTraitMax - diff
		if closeness < 0 {
			closeness = 0
		}
		score += closeness
	}
	return score, nil
}

// MinSwitchAffinity is the percentage of the maximum affinity score a
// character needs before SwitchFaction lets them defect.
const MinSwitchAffinity = 60

// SwitchFaction moves a character from one faction to another when their
// affinity with the target clears MinSwitchAffinity percent. Switching
// between factions at war is refused unless force is set.
func (e *Engine) SwitchFaction(nowTick uint64, characterID, fromID, toID string, force bool) (*store.Membership, error) {
	if fromID == toID {
		return nil, fmt.Errorf("%w: source and target faction are the same", ErrValidation)
	}
	current, err := e.activeMembership(fromID, characterID)
	if err != nil {
		return nil, err
	}
	target, err := e.store.Faction(toID)
	if err != nil {
		return nil, err
	}
	if !target.IsActive {
		return nil, fmt.Errorf("%w: faction %s is not active", ErrInvalidState, toID)
	}

	score, err := e.Affinity(characterID, toID)
	if err != nil {
		return nil, err
	}
	maxScore := affinityTraitCap * affinityTraitMax
	pct := float64(score) / float64(maxScore) * 100
	if pct < MinSwitchAffinity {
		return nil, fmt.Errorf("%w: affinity %.0f%% below %d%% threshold", ErrValidation, pct, MinSwitchAffinity)
	}

	if !force {
		rel, _, err := e.loadPair(nowTick, fromID, toID)
		if err != nil {
			return nil, err
		}
		if rel.Stance == store.StanceAtWar {
			return nil, fmt.Errorf("%w: cannot switch between factions at war", ErrInvalidState)
		}
	}

	current.IsActive = false
	current.Status = StatusSwitched
	current.History = append(current.History, entry(nowTick, "switched_out", map[string]any{
		"to": toID, "affinity": score,
	}))
	if err := e.store.PutMembership(current); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	// Fresh converts start with modest standing regardless of how loyal
	// they were to the old faction.
	next, err := e.AssignMember(nowTick, toID, characterID, 20, DefaultRole)
	if err != nil {
		return nil, err
	}
	next.History = append(next.History, entry(nowTick, "switched_in", map[string]any{
		"from": fromID, "affinity": score,
	}))
	if err := e.store.PutMembership(next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return next, nil
}

// AssignPOIControl sets a faction's control level over a POI, 0..10. Zero
// clears the entry.
func (e *Engine) AssignPOIControl(nowTick uint64, factionID, poiID string, level int) error {
	if level < 0 || level > 10 {
		return fmt.Errorf("%w: control level %d outside 0..10", ErrValidation, level)
	}
	f, err := e.store.Faction(factionID)
	if err != nil {
		return err
	}
	if _, err := e.store.POI(poiID); err != nil {
		return err
	}
	if f.POIControl == nil {
		f.POIControl = map[string]int{}
	}
	if level == 0 {
		delete(f.POIControl, poiID)
	} else {
		f.POIControl[poiID] = level
	}
	f.History = append(f.History, entry(nowTick, "poi_control", map[string]any{
		"poi": poiID, "level": level,
	}))
	if err := e.store.PutFaction(f); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (e *Engine) activeMembership(factionID, characterID string) (*store.Membership, error) {
	m, err := e.store.Membership(factionID, characterID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s has no membership in %s", store.ErrNotFound, characterID, factionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if !m.IsActive {
		return nil, fmt.Errorf("%w: membership of %s in %s is not active", ErrInvalidState, characterID, factionID)
	}
	return m, nil
}
