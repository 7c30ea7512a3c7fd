package worldtest

import (
	"fmt"
	"testing"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/sim/faction"
	"realmstate.ai/internal/store"
)

func charID(i int) string {
	return fmt.Sprintf("CHR%03d", i)
}

func TestSchismThroughCommand(t *testing.T) {
	h := smallWorld(t, 21)

	// A restless rank and file: twenty members with low standing.
	for i := 1; i <= 20; i++ {
		if _, err := h.W.Engine().AssignMember(h.W.CurrentTick(), "FAC000001", charID(i), 5, "member"); err != nil {
			t.Fatalf("assign member %d: %v", i, err)
		}
	}
	h.StepNoop()
	h.ClearEvents()

	res := h.MustCmd(protocol.CmdMsg{
		Op:        protocol.OpCheckSchism,
		FactionID: "FAC000001",
		Metadata: map[string]any{
			"internal_tension": float64(99),
			"divide":           map[string]any{"cause": "succession crisis"},
		},
	})
	var report faction.SchismReport
	h.UnmarshalPayload(res, &report)
	if !report.Occurred {
		t.Fatalf("expected schism at tension 99")
	}
	if report.ParentFactionID != "FAC000001" || report.NewFactionID == "" {
		t.Fatalf("report parent=%s new=%s", report.ParentFactionID, report.NewFactionID)
	}
	if report.MembersTransferred != len(report.DefectorIDs) || report.MembersTransferred < 3 {
		t.Fatalf("transferred=%d defectors=%d", report.MembersTransferred, len(report.DefectorIDs))
	}

	breakaway := mustFaction(t, h, report.NewFactionID)
	if !breakaway.IsActive || breakaway.ParentFactionID != "FAC000001" {
		t.Fatalf("breakaway active=%v parent=%s", breakaway.IsActive, breakaway.ParentFactionID)
	}

	// Members conserve: each defector holds exactly one active membership,
	// in the breakaway.
	for _, chr := range report.DefectorIDs {
		ms, err := h.W.Store().Memberships(store.MembershipFilter{CharacterID: chr, ActiveOnly: true})
		if err != nil {
			t.Fatalf("memberships %s: %v", chr, err)
		}
		if len(ms) != 1 || ms[0].FactionID != report.NewFactionID {
			t.Fatalf("defector %s active memberships=%v", chr, ms)
		}
		old, err := h.W.Store().Membership("FAC000001", chr)
		if err != nil {
			t.Fatalf("old membership %s: %v", chr, err)
		}
		if old.IsActive || old.Status != "defected" {
			t.Fatalf("defector %s old membership active=%v status=%s", chr, old.IsActive, old.Status)
		}
	}

	parent := mustFaction(t, h, "FAC000001")
	if parent.State.InternalTension >= 99 {
		t.Fatalf("parent tension not vented: %v", parent.State.InternalTension)
	}
	if len(parent.State.Schisms) != 1 {
		t.Fatalf("parent schism records: got %d want 1", len(parent.State.Schisms))
	}

	rel, err := h.W.Store().Relationship("FAC000001", report.NewFactionID)
	if err != nil {
		t.Fatalf("parent/breakaway relationship: %v", err)
	}
	if rel.Stance != store.StanceHostile {
		t.Fatalf("post-schism stance=%s want %s", rel.Stance, store.StanceHostile)
	}

	if got := h.EventsOfType(protocol.EvSchism); len(got) != 1 {
		t.Fatalf("SCHISM events: got %d want 1", len(got))
	}
}

func TestSchismBelowThresholdIsNoop(t *testing.T) {
	h := smallWorld(t, 23)

	factionsBefore, err := h.W.Store().Factions(store.FactionFilter{})
	if err != nil {
		t.Fatalf("factions: %v", err)
	}

	res := h.MustCmd(protocol.CmdMsg{
		Op:        protocol.OpCheckSchism,
		FactionID: "FAC000001",
		Metadata:  map[string]any{"internal_tension": float64(10)},
	})
	var report faction.SchismReport
	h.UnmarshalPayload(res, &report)
	if report.Occurred {
		t.Fatalf("schism at tension 10")
	}

	factionsAfter, err := h.W.Store().Factions(store.FactionFilter{})
	if err != nil {
		t.Fatalf("factions: %v", err)
	}
	if len(factionsAfter) != len(factionsBefore) {
		t.Fatalf("faction count changed: %d -> %d", len(factionsBefore), len(factionsAfter))
	}
	if got := h.EventsOfType(protocol.EvSchism); len(got) != 0 {
		t.Fatalf("unexpected SCHISM events: %d", len(got))
	}
}
