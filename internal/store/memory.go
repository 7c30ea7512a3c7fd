package store

import (
	"fmt"
	"sort"
	"sync"
)

// Memory is the in-process Store used by the world loop. All records are
// cloned on read and write; the loop mutates its copy and puts it back.
// The mutex exists for admin/debug reads from outside the loop goroutine.
type Memory struct {
	mu sync.Mutex

	factions      map[string]*Faction
	relationships map[string]*Relationship // key: faction|other
	memberships   map[string]*Membership   // key: faction|character
	pois          map[string]*POI
	npcs          map[string]*NPC

	nextFactionNum uint64
}

func NewMemory() *Memory {
	return &Memory{
		factions:      map[string]*Faction{},
		relationships: map[string]*Relationship{},
		memberships:   map[string]*Membership{},
		pois:          map[string]*POI{},
		npcs:          map[string]*NPC{},
	}
}

func relKey(a, b string) string { return a + "|" + b }

func (s *Memory) Faction(id string) (*Faction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.factions[id]
	if f == nil {
		return nil, fmt.Errorf("faction %s: %w", id, ErrNotFound)
	}
	return f.Clone(), nil
}

func (s *Memory) PutFaction(f *Faction) error {
	if f == nil || f.ID == "" {
		return fmt.Errorf("faction missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factions[f.ID] = f.Clone()
	return nil
}

func (s *Memory) Factions(filter FactionFilter) ([]*Faction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.factions))
	for id := range s.factions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []*Faction
	for _, id := range ids {
		f := s.factions[id]
		if filter.ActiveOnly && !f.IsActive {
			continue
		}
		if filter.Kind != "" && f.Kind != filter.Kind {
			continue
		}
		out = append(out, f.Clone())
	}
	return out, nil
}

func (s *Memory) NextFactionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFactionNum++
	return fmt.Sprintf("FAC%06d", s.nextFactionNum)
}

// FactionNum reports the current id counter, for snapshot export.
func (s *Memory) FactionNum() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextFactionNum
}

// SetNextFactionNum restores the id counter when resuming from a snapshot.
func (s *Memory) SetNextFactionNum(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.nextFactionNum {
		s.nextFactionNum = n
	}
}

func (s *Memory) Relationship(factionID, otherID string) (*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.relationships[relKey(factionID, otherID)]
	if r == nil {
		return nil, fmt.Errorf("relationship %s->%s: %w", factionID, otherID, ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *Memory) PutRelationshipPair(ab, ba *Relationship) error {
	if ab == nil || ba == nil {
		return fmt.Errorf("relationship pair requires both directions")
	}
	if ab.FactionID != ba.OtherFactionID || ab.OtherFactionID != ba.FactionID {
		return fmt.Errorf("relationship pair mismatch: %s->%s vs %s->%s",
			ab.FactionID, ab.OtherFactionID, ba.FactionID, ba.OtherFactionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relationships[relKey(ab.FactionID, ab.OtherFactionID)] = ab.Clone()
	s.relationships[relKey(ba.FactionID, ba.OtherFactionID)] = ba.Clone()
	return nil
}

func (s *Memory) Relationships(factionID string) ([]*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0)
	for k, r := range s.relationships {
		if r.FactionID == factionID {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]*Relationship, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.relationships[k].Clone())
	}
	return out, nil
}

func (s *Memory) RelationshipPairs() ([][2]*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.relationships))
	for k, r := range s.relationships {
		// One key per unordered pair.
		if r.FactionID < r.OtherFactionID {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var out [][2]*Relationship
	for _, k := range keys {
		ab := s.relationships[k]
		ba := s.relationships[relKey(ab.OtherFactionID, ab.FactionID)]
		if ba == nil {
			// Orphaned direction; skip rather than hand out a broken pair.
			continue
		}
		out = append(out, [2]*Relationship{ab.Clone(), ba.Clone()})
	}
	return out, nil
}

func memKey(factionID, characterID string) string { return factionID + "|" + characterID }

func (s *Memory) Membership(factionID, characterID string) (*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.memberships[memKey(factionID, characterID)]
	if m == nil {
		return nil, fmt.Errorf("membership %s/%s: %w", factionID, characterID, ErrNotFound)
	}
	return m.Clone(), nil
}

func (s *Memory) PutMembership(m *Membership) error {
	if m == nil || m.FactionID == "" || m.CharacterID == "" {
		return fmt.Errorf("membership missing ids")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[memKey(m.FactionID, m.CharacterID)] = m.Clone()
	return nil
}

func (s *Memory) Memberships(filter MembershipFilter) ([]*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.memberships))
	for k := range s.memberships {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []*Membership
	for _, k := range keys {
		m := s.memberships[k]
		if filter.FactionID != "" && m.FactionID != filter.FactionID {
			continue
		}
		if filter.CharacterID != "" && m.CharacterID != filter.CharacterID {
			continue
		}
		if filter.ActiveOnly && !m.IsActive {
			continue
		}
		if filter.Role != "" && m.Role != filter.Role {
			continue
		}
		out = append(out, m.Clone())
	}
	return out, nil
}

func (s *Memory) POI(id string) (*POI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pois[id]
	if p == nil {
		return nil, fmt.Errorf("poi %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *Memory) PutPOI(p *POI) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("poi missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pois[p.ID] = p.Clone()
	return nil
}

func (s *Memory) POIs() ([]*POI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pois))
	for id := range s.pois {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*POI, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.pois[id].Clone())
	}
	return out, nil
}

func (s *Memory) NPC(id string) (*NPC, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.npcs[id]
	if n == nil {
		return nil, fmt.Errorf("npc %s: %w", id, ErrNotFound)
	}
	return n.Clone(), nil
}

func (s *Memory) PutNPC(n *NPC) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("npc missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.npcs[n.ID] = n.Clone()
	return nil
}

func (s *Memory) NPCs() ([]*NPC, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.npcs))
	for id := range s.npcs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*NPC, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.npcs[id].Clone())
	}
	return out, nil
}
