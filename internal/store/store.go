// Package store is the Entity Store collaborator: record-level CRUD over the
// political state. Each call is atomic per record; multi-record consistency
// (the two directions of a relationship pair) is provided only through
// PutRelationshipPair.
package store

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// FactionFilter narrows Factions listings. Zero value matches everything.
type FactionFilter struct {
	ActiveOnly bool
	Kind       string
}

// MembershipFilter narrows Memberships listings. Zero value matches everything.
type MembershipFilter struct {
	FactionID   string
	CharacterID string
	ActiveOnly  bool
	Role        string
}

type Store interface {
	Faction(id string) (*Faction, error)
	PutFaction(f *Faction) error
	Factions(filter FactionFilter) ([]*Faction, error)
	NextFactionID() string

	Relationship(factionID, otherID string) (*Relationship, error)
	// PutRelationshipPair writes both directions of a pair in one step.
	// Implementations must commit both records or neither.
	PutRelationshipPair(ab, ba *Relationship) error
	Relationships(factionID string) ([]*Relationship, error)
	// RelationshipPairs returns each unordered pair once, as its two
	// directional records, ordered by the lower faction id. Batch ticks
	// iterate this.
	RelationshipPairs() ([][2]*Relationship, error)

	Membership(factionID, characterID string) (*Membership, error)
	PutMembership(m *Membership) error
	Memberships(filter MembershipFilter) ([]*Membership, error)

	POI(id string) (*POI, error)
	PutPOI(p *POI) error
	POIs() ([]*POI, error)

	NPC(id string) (*NPC, error)
	PutNPC(n *NPC) error
	NPCs() ([]*NPC, error)
}
