// Package worldtest drives a world end to end through its exported surface:
// joins go through JoinRequest, commands through CmdEnvelope, and assertions
// read the RESULT/EVENT fanout a real observer would see. Tests here cover
// whole diplomatic arcs rather than single engine calls.
package worldtest

import (
	"encoding/json"
	"fmt"
	"testing"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/sim/tuning"
	"realmstate.ai/internal/sim/world"
	"realmstate.ai/internal/sim/worldgen"
)

type Harness struct {
	T *testing.T
	W *world.World

	DefaultSession string

	sessions map[string]*session
	cmdSeq   int
}

type session struct {
	ID      string
	Out     chan []byte
	results map[string]protocol.ResultMsg
	events  []protocol.Event
}

func NewHarness(t *testing.T, cfg world.WorldConfig, gen worldgen.GenConfig) *Harness {
	t.Helper()

	w, err := world.New(cfg, tuning.Defaults())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	if err := w.SeedFrom(worldgen.Generate(gen)); err != nil {
		t.Fatalf("SeedFrom: %v", err)
	}

	h := &Harness{
		T:        t,
		W:        w,
		sessions: map[string]*session{},
	}
	h.DefaultSession = h.Join("chronicler", true)
	return h
}

// Join admits an observer with a fixed session id so scripts stay
// reproducible across runs.
func (h *Harness) Join(name string, narrative bool) string {
	h.T.Helper()

	out := make(chan []byte, 256)
	resp := make(chan world.JoinResponse, 1)
	id := fmt.Sprintf("sess-%s", name)
	_, _ = h.W.StepOnce([]world.JoinRequest{{
		SessionID: id,
		Name:      name,
		Narrative: narrative,
		Out:       out,
		Resp:      resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Welcome.SessionID != id {
		h.T.Fatalf("join returned session %q want %q", jr.Welcome.SessionID, id)
	}
	h.sessions[id] = &session{ID: id, Out: out, results: map[string]protocol.ResultMsg{}}
	h.drainAll()
	return id
}

// Cmd applies one command on the default session and returns its RESULT.
func (h *Harness) Cmd(cmd protocol.CmdMsg) protocol.ResultMsg {
	return h.CmdFor(h.DefaultSession, cmd)
}

func (h *Harness) CmdFor(sessionID string, cmd protocol.CmdMsg) protocol.ResultMsg {
	h.T.Helper()
	cmd.Type = protocol.TypeCmd
	if cmd.ID == "" {
		h.cmdSeq++
		cmd.ID = fmt.Sprintf("h_%d", h.cmdSeq)
	}
	_, _ = h.W.StepOnce(nil, nil, []world.CmdEnvelope{{SessionID: sessionID, Cmd: cmd}})
	h.drainAll()

	s := h.sessions[sessionID]
	if s == nil {
		h.T.Fatalf("unknown session id: %q", sessionID)
	}
	res, ok := s.results[cmd.ID]
	if !ok {
		h.T.Fatalf("no RESULT for cmd id=%q op=%s", cmd.ID, cmd.Op)
	}
	return res
}

// MustCmd is Cmd plus an OK assertion.
func (h *Harness) MustCmd(cmd protocol.CmdMsg) protocol.ResultMsg {
	h.T.Helper()
	res := h.Cmd(cmd)
	if !res.OK {
		h.T.Fatalf("cmd op=%s failed: code=%s msg=%s", cmd.Op, res.Code, res.Message)
	}
	return res
}

// UnmarshalPayload decodes a RESULT payload into dst.
func (h *Harness) UnmarshalPayload(res protocol.ResultMsg, dst any) {
	h.T.Helper()
	if len(res.Payload) == 0 {
		h.T.Fatalf("result ref=%s has no payload", res.Ref)
	}
	if err := json.Unmarshal(res.Payload, dst); err != nil {
		h.T.Fatalf("unmarshal payload: %v", err)
	}
}

func (h *Harness) StepNoop() {
	h.T.Helper()
	_, _ = h.W.StepOnce(nil, nil, nil)
	h.drainAll()
}

// StepUntil steps empty ticks until the world tick reaches target.
func (h *Harness) StepUntil(target uint64) {
	h.T.Helper()
	for h.W.CurrentTick() < target {
		h.StepNoop()
	}
}

// EventsOfType returns the default session's captured events of one type.
func (h *Harness) EventsOfType(typ string) []protocol.Event {
	h.T.Helper()
	s := h.sessions[h.DefaultSession]
	var out []protocol.Event
	for _, ev := range s.events {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Harness) ClearEvents() {
	for _, s := range h.sessions {
		s.events = nil
	}
}

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOne(s)
	}
}

func (h *Harness) drainOne(s *session) {
	h.T.Helper()
	for {
		select {
		case b := <-s.Out:
			base, err := protocol.DecodeBase(b)
			if err != nil {
				h.T.Fatalf("decode fanout: %v", err)
			}
			switch base.Type {
			case protocol.TypeResult:
				var res protocol.ResultMsg
				if err := json.Unmarshal(b, &res); err != nil {
					h.T.Fatalf("unmarshal RESULT: %v", err)
				}
				s.results[res.Ref] = res
			case protocol.TypeEvent:
				var ev protocol.EventMsg
				if err := json.Unmarshal(b, &ev); err != nil {
					h.T.Fatalf("unmarshal EVENT: %v", err)
				}
				s.events = append(s.events, ev.Event)
			}
		default:
			return
		}
	}
}
