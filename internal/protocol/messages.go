package protocol

import "encoding/json"

// Event is a loosely-typed record pushed to observers and written to the
// index. Keys: "t" (tick), "type", plus event-specific fields.
type Event map[string]any

// Observer event types.
const (
	EvWarDeclared        = "WAR_DECLARED"
	EvPeaceMade          = "PEACE_MADE"
	EvWarResolved        = "WAR_RESOLVED"
	EvStanceChanged      = "STANCE_CHANGED"
	EvTensionChanged     = "TENSION_CHANGED"
	EvTensionDecay       = "TENSION_DECAY"
	EvSchism             = "SCHISM"
	EvInfluenceSpread    = "INFLUENCE_SPREAD"
	EvAffiliationGained  = "AFFILIATION_GAINED"
	EvFactionDeactivated = "FACTION_DEACTIVATED"
	EvReputationChanged  = "REPUTATION_CHANGED"
	EvDayRollover        = "DAY_ROLLOVER"
)

// HELLO (observer -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ObserverName    string `json:"observer_name"`
	// Narrative observers may issue CMD messages; read-only ones may not.
	Narrative bool `json:"narrative,omitempty"`
}

// WELCOME (server -> observer)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz int   `json:"tick_rate_hz"`
	DayTicks   int   `json:"day_ticks"`
	Seed       int64 `json:"seed"`
	Factions   int   `json:"factions"`
	POIs       int   `json:"pois"`
}

// CMD (observer -> server): a narrative operation against the engine.
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ID              string `json:"id"`
	Op              string `json:"op"`

	FactionID      string  `json:"faction_id,omitempty"`
	OtherFactionID string  `json:"other_faction_id,omitempty"`
	CharacterID    string  `json:"character_id,omitempty"`
	RegionID       string  `json:"region_id,omitempty"`
	Stance         string  `json:"stance,omitempty"`
	Delta          float64 `json:"delta,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	Source         string  `json:"source,omitempty"`
	VictorID       string  `json:"victor_id,omitempty"`
	OutcomeType    string  `json:"outcome_type,omitempty"`

	// Free-form narrative extensions. Validated against cmd.schema.json at
	// the transport boundary; the engine only sees already-accepted bags.
	Terms    map[string]any `json:"terms,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Narrative ops carried by CMD.
const (
	OpSetStance     = "SET_STANCE"
	OpUpdateTension = "UPDATE_TENSION"
	OpDeclareWar    = "DECLARE_WAR"
	OpMakePeace     = "MAKE_PEACE"
	OpResolveWar    = "RESOLVE_WAR"
	OpCheckSchism   = "CHECK_SCHISM"
	OpModifyRep     = "MODIFY_REPUTATION"
)

// RESULT (server -> observer)
type ResultMsg struct {
	Type    string          `json:"type"`
	Ref     string          `json:"ref"`
	OK      bool            `json:"ok"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EVENT (server -> observer)
type EventMsg struct {
	Type  string `json:"type"`
	Tick  uint64 `json:"tick"`
	Event Event  `json:"event"`
}
