package worldtest

import (
	"testing"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/sim/faction"
	"realmstate.ai/internal/sim/tuning"
)

func TestReputationCommandScopes(t *testing.T) {
	h := smallWorld(t, 31)
	tune := tuning.Defaults()

	// Global: the change lands on the faction record.
	globalBefore := mustFaction(t, h, "FAC000001").Reputation
	res := h.MustCmd(protocol.CmdMsg{
		Op:        protocol.OpModifyRep,
		FactionID: "FAC000001",
		Amount:    -30,
		Reason:    "massacre at the ford",
		Source:    "chronicle",
	})
	var change faction.ReputationChange
	h.UnmarshalPayload(res, &change)
	if change.Scope != "global" || change.Delta != -30 {
		t.Fatalf("global change scope=%s delta=%v", change.Scope, change.Delta)
	}
	if change.Source != "chronicle" {
		t.Fatalf("global change source=%s want chronicle", change.Source)
	}
	if got := mustFaction(t, h, "FAC000001").Reputation; got != globalBefore-30 {
		t.Fatalf("global reputation=%v want %v", got, globalBefore-30)
	}

	// Regional: tracked per region, with a configured spill into global.
	globalBefore = mustFaction(t, h, "FAC000001").Reputation
	res = h.MustCmd(protocol.CmdMsg{
		Op:        protocol.OpModifyRep,
		FactionID: "FAC000001",
		RegionID:  "north-reach",
		Amount:    40,
		Reason:    "famine relief",
	})
	h.UnmarshalPayload(res, &change)
	if change.Scope != "regional" || change.ScopeID != "north-reach" {
		t.Fatalf("regional change scope=%s scope_id=%s", change.Scope, change.ScopeID)
	}
	f := mustFaction(t, h, "FAC000001")
	if got := f.State.RegionalRep["north-reach"]; got != 40 {
		t.Fatalf("regional reputation=%v want 40", got)
	}
	wantGlobal := globalBefore + 40*tune.Reputation.RegionalToGlobal
	if f.Reputation != wantGlobal {
		t.Fatalf("global after regional spill=%v want %v", f.Reputation, wantGlobal)
	}

	// Character: half of the change nudges an active membership's standing.
	if _, err := h.W.Engine().AssignMember(h.W.CurrentTick(), "FAC000001", "CHR001", 10, "captain"); err != nil {
		t.Fatalf("assign member: %v", err)
	}
	res = h.MustCmd(protocol.CmdMsg{
		Op:          protocol.OpModifyRep,
		FactionID:   "FAC000001",
		CharacterID: "CHR001",
		Amount:      20,
		Reason:      "heroics",
	})
	h.UnmarshalPayload(res, &change)
	if change.Scope != "character" || change.ScopeID != "CHR001" {
		t.Fatalf("character change scope=%s scope_id=%s", change.Scope, change.ScopeID)
	}
	m, err := h.W.Store().Membership("FAC000001", "CHR001")
	if err != nil {
		t.Fatalf("membership: %v", err)
	}
	wantStanding := 10 + 20*tune.Reputation.CharacterToMember
	if m.Reputation != wantStanding {
		t.Fatalf("member standing=%v want %v", m.Reputation, wantStanding)
	}

	if got := h.EventsOfType(protocol.EvReputationChanged); len(got) < 3 {
		t.Fatalf("REPUTATION_CHANGED events: got %d want at least 3", len(got))
	}
}

func TestReputationUnknownFaction(t *testing.T) {
	h := smallWorld(t, 33)

	res := h.Cmd(protocol.CmdMsg{
		Op:        protocol.OpModifyRep,
		FactionID: "FAC999999",
		Amount:    5,
	})
	if res.OK || res.Code != protocol.ErrNotFound {
		t.Fatalf("unknown faction: ok=%v code=%s want %s", res.OK, res.Code, protocol.ErrNotFound)
	}
}
