package store

// Record types for the political state. These are plain data structs: the
// engine mutates copies obtained from a Store and writes them back, so every
// record carries a deep Clone.

// Stance is the categorical diplomatic label between two factions.
type Stance string

const (
	StanceAllied     Stance = "ALLIED"
	StanceFriendly   Stance = "FRIENDLY"
	StanceNeutral    Stance = "NEUTRAL"
	StanceUnfriendly Stance = "UNFRIENDLY"
	StanceHostile    Stance = "HOSTILE"
	StanceAtWar      Stance = "AT_WAR"
)

// ValidStance reports whether s is one of the defined stances.
func ValidStance(s Stance) bool {
	switch s {
	case StanceAllied, StanceFriendly, StanceNeutral, StanceUnfriendly, StanceHostile, StanceAtWar:
		return true
	}
	return false
}

// TensionAnchor returns the canonical tension set when a stance is assigned
// explicitly.
func (s Stance) TensionAnchor() float64 {
	switch s {
	case StanceAllied:
		return -80
	case StanceFriendly:
		return -40
	case StanceUnfriendly:
		return 40
	case StanceHostile:
		return 80
	case StanceAtWar:
		return 100
	default:
		return 0
	}
}

// HistoryEntry is one timestamped (by tick) event on a record's log.
type HistoryEntry struct {
	Tick uint64         `json:"tick"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Territory is a faction's foothold at one POI.
type Territory struct {
	Influence float64 `json:"influence"` // 0..100
	Contested bool    `json:"contested,omitempty"`
}

// SchismRecord is one entry in a faction's append-only schism log.
type SchismRecord struct {
	Tick         uint64  `json:"tick"`
	NewFactionID string  `json:"new_faction_id"`
	MembersLost  int     `json:"members_lost"`
	Cause        string  `json:"cause"`
	TensionAt    float64 `json:"tension_at"`
}

// WarRecord is one entry in a faction's war history.
type WarRecord struct {
	Tick        uint64 `json:"tick"`
	AgainstID   string `json:"against_faction_id"`
	OutcomeType string `json:"outcome_type"`
	VictorID    string `json:"victor_id,omitempty"`
}

// FactionState is the typed core of what the source kept as a free-form
// "state" bag. Ext carries forward-compatible narrative metadata validated
// at the transport boundary, never interpreted by the engine.
type FactionState struct {
	InternalTension float64            `json:"internal_tension"`
	ActiveWars      []string           `json:"active_wars,omitempty"`
	Schisms         []SchismRecord     `json:"schisms,omitempty"`
	WarHistory      []WarRecord        `json:"war_history,omitempty"`
	RegionalRep     map[string]float64 `json:"regional_reputations,omitempty"`
	CharacterRep    map[string]float64 `json:"character_reputations,omitempty"`
	Ext             map[string]any     `json:"ext,omitempty"`
}

type Faction struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind,omitempty"` // e.g. "political", "religious"

	Influence  float64 `json:"influence"`  // 0..100
	Reputation float64 `json:"reputation"` // -100..100, global scale
	Power      float64 `json:"power"`
	Wealth     float64 `json:"wealth"`

	Territory  map[string]Territory `json:"territory,omitempty"`   // poi id -> foothold
	Resources  map[string]float64   `json:"resources,omitempty"`   // resource name -> amount
	POIControl map[string]int       `json:"poi_control,omitempty"` // poi id -> 0..10
	Traits     map[string]int       `json:"traits,omitempty"`      // trait -> 0..6, affinity scoring

	State    FactionState   `json:"state"`
	History  []HistoryEntry `json:"history,omitempty"`
	Outposts []string       `json:"outposts,omitempty"` // propagation seed POIs

	ParentFactionID string `json:"parent_faction_id,omitempty"`
	IsActive        bool   `json:"is_active"`
	CreatedTick     uint64 `json:"created_tick"`
}

// WarOutcome records one resolved war on a relationship.
type WarOutcome struct {
	Tick         uint64         `json:"tick"`
	OutcomeType  string         `json:"outcome_type"`
	VictorID     string         `json:"victor_id,omitempty"`
	Terms        map[string]any `json:"terms,omitempty"`
	Consequences []Consequence  `json:"consequences,omitempty"`
}

// Consequence is one applied mechanical effect of a war resolution.
type Consequence struct {
	Type          string  `json:"type"`
	Resource      string  `json:"resource,omitempty"`
	Amount        float64 `json:"amount,omitempty"`
	TerritoryID   string  `json:"territory_id,omitempty"`
	Percentage    float64 `json:"percentage,omitempty"`
	FromFactionID string  `json:"from_faction_id,omitempty"`
	ToFactionID   string  `json:"to_faction_id,omitempty"`
	FactionID     string  `json:"faction_id,omitempty"`
	Change        float64 `json:"change,omitempty"`
	Detail        string  `json:"detail,omitempty"`
}

// PeaceTerm is one peace settlement appended when a war ends.
type PeaceTerm struct {
	Tick  uint64         `json:"tick"`
	Terms map[string]any `json:"terms,omitempty"`
}

type WarState struct {
	AtWar        bool         `json:"at_war"`
	DeclaredBy   string       `json:"declared_by,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	DeclaredTick uint64       `json:"declared_tick,omitempty"`
	PeaceTerms   []PeaceTerm  `json:"peace_terms,omitempty"`
	Outcomes     []WarOutcome `json:"outcomes,omitempty"`
}

// Relationship is one direction of a faction pair. The two records of a pair
// are always written together (PutRelationshipPair) and must stay symmetric
// in Tension and WarState.AtWar.
type Relationship struct {
	FactionID      string `json:"faction_id"`
	OtherFactionID string `json:"other_faction_id"`

	Stance   Stance         `json:"diplomatic_stance"`
	Tension  float64        `json:"tension"` // -100..100
	WarState WarState       `json:"war_state"`
	History  []HistoryEntry `json:"history,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Membership links a character to a faction. Reputation here is standing
// within the faction (loyalty), distinct from the faction's global score.
type Membership struct {
	FactionID   string `json:"faction_id"`
	CharacterID string `json:"character_id"`

	Role       string  `json:"role"`
	Rank       int     `json:"rank"`
	Reputation float64 `json:"reputation"` // -100..100

	IsActive bool           `json:"is_active"`
	Status   string         `json:"status"` // active, defected, left, switched
	History  []HistoryEntry `json:"history,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	JoinedTick uint64 `json:"joined_tick"`
}

// POI is a node of the location graph.
type POI struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	RegionID    string   `json:"region_id,omitempty"`
	Connected   []string `json:"connected,omitempty"`
	DangerLevel int      `json:"danger_level"` // 0..5
	Residents   []string `json:"residents,omitempty"`
}

// NPC is a resident character eligible for faction affiliation.
type NPC struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	POIID        string         `json:"poi_id,omitempty"`
	Affiliations []string       `json:"affiliations,omitempty"`
	Traits       map[string]int `json:"traits,omitempty"` // trait -> 0..6
}
