// Package world owns the runtime: a single goroutine that drains narrative
// commands from an inbox, runs the daily faction systems, fans events out to
// observers, and exports snapshots. All engine and store access happens on
// the loop goroutine; other goroutines talk to it over channels only.
package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"realmstate.ai/internal/persistence/snapshot"
	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/sim/faction"
	"realmstate.ai/internal/sim/tuning"
	"realmstate.ai/internal/sim/worldgen"
	"realmstate.ai/internal/store"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	DayTicks           int
	SnapshotEveryTicks int
	Seed               int64
}

// JoinRequest registers an observer session. The ws layer allocates the
// session id; the world answers on Resp from the loop goroutine.
type JoinRequest struct {
	SessionID string
	Name      string
	Narrative bool
	Out       chan []byte
	Resp      chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// CmdEnvelope is one narrative command plus the session it came from.
type CmdEnvelope struct {
	SessionID string
	Cmd       protocol.CmdMsg
}

type clientState struct {
	Out       chan []byte
	Narrative bool
}

// EventWriter receives every engine event, in emit order. Implemented by the
// sqlite index and the JSONL event log.
type EventWriter interface {
	WriteEvent(ev protocol.Event) error
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg  WorldConfig
	tune tuning.Tuning

	tick atomic.Uint64

	store *store.Memory
	eng   *faction.Engine
	rng   *rand.Rand

	clients map[string]*clientState

	inbox chan CmdEnvelope
	join  chan JoinRequest
	leave chan string
	stop  chan struct{}

	// Events emitted during the current step, flushed at tick boundary.
	stepEvents []protocol.Event

	// Optional writers (may be nil/empty). Implemented in internal/persistence/*.
	eventWriters []EventWriter

	// Optional snapshot sink (may be nil). Snapshot writing is off-thread.
	snapshotSink chan<- snapshot.SnapshotV1
}

func New(cfg WorldConfig, tune tuning.Tuning) (*World, error) {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = tune.TickRateHz
	}
	if cfg.DayTicks <= 0 {
		cfg.DayTicks = tune.DayTicks
	}
	if cfg.SnapshotEveryTicks <= 0 {
		cfg.SnapshotEveryTicks = tune.SnapshotEveryTicks
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("tick rate must be positive")
	}

	w := &World{
		cfg:     cfg,
		tune:    tune,
		store:   store.NewMemory(),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		clients: map[string]*clientState{},
		inbox:   make(chan CmdEnvelope, 1024),
		join:    make(chan JoinRequest, 64),
		leave:   make(chan string, 64),
		stop:    make(chan struct{}),
	}
	w.eng = faction.NewEngine(w.store, w.rng, sinkFunc(w.collectEvent), tune)
	return w, nil
}

// sinkFunc adapts the world's collector to the engine's EventSink.
type sinkFunc func(protocol.Event)

func (f sinkFunc) Emit(e protocol.Event) { f(e) }

func (w *World) collectEvent(ev protocol.Event) {
	w.stepEvents = append(w.stepEvents, ev)
}

func (w *World) AddEventWriter(l EventWriter)                  { w.eventWriters = append(w.eventWriters, l) }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Inbox() chan<- CmdEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest  { return w.join }
func (w *World) Leave() chan<- string      { return w.leave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }
func (w *World) ID() string          { return w.cfg.ID }
func (w *World) TickRateHz() int     { return w.cfg.TickRateHz }

// Metrics is a channel-depth view safe to read from any goroutine.
type Metrics struct {
	Tick       uint64 `json:"tick"`
	InboxDepth int    `json:"inbox_depth"`
	JoinDepth  int    `json:"join_depth"`
	LeaveDepth int    `json:"leave_depth"`
}

func (w *World) Metrics() Metrics {
	return Metrics{
		Tick:       w.tick.Load(),
		InboxDepth: len(w.inbox),
		JoinDepth:  len(w.join),
		LeaveDepth: len(w.leave),
	}
}

// Engine exposes the faction engine for tests and the admin surface. Calls
// are only safe from the loop goroutine or before Run starts.
func (w *World) Engine() *faction.Engine { return w.eng }

// Store exposes the backing memory store. Same threading caveat as Engine.
func (w *World) Store() *store.Memory { return w.store }

// SeedFrom populates an empty world from a generated map.
func (w *World) SeedFrom(res worldgen.Result) error {
	for _, p := range res.POIs {
		if err := w.store.PutPOI(p); err != nil {
			return err
		}
	}
	for _, n := range res.NPCs {
		if err := w.store.PutNPC(n); err != nil {
			return err
		}
	}
	var maxNum uint64
	for _, f := range res.Factions {
		if err := w.store.PutFaction(f); err != nil {
			return err
		}
		var n uint64
		if _, err := fmt.Sscanf(f.ID, "FAC%06d", &n); err == nil && n > maxNum {
			maxNum = n
		}
	}
	w.store.SetNextFactionNum(maxNum)
	return nil
}

func (w *World) handleJoin(req JoinRequest) {
	if req.Out != nil {
		w.clients[req.SessionID] = &clientState{Out: req.Out, Narrative: req.Narrative}
	}
	factions, _ := w.store.Factions(store.FactionFilter{ActiveOnly: true})
	pois, _ := w.store.POIs()
	resp := JoinResponse{
		Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       req.SessionID,
			WorldID:         w.cfg.ID,
			Tick:            w.tick.Load(),
			WorldParams: protocol.WorldParams{
				TickRateHz: w.cfg.TickRateHz,
				DayTicks:   w.cfg.DayTicks,
				Seed:       w.cfg.Seed,
				Factions:   len(factions),
				POIs:       len(pois),
			},
		},
	}
	if req.Resp != nil {
		req.Resp <- resp
	}
}

func (w *World) handleLeave(sessionID string) {
	delete(w.clients, sessionID)
}

func (w *World) step(joins []JoinRequest, leaves []string, cmds []CmdEnvelope) {
	nowTick := w.tick.Load()

	for _, id := range leaves {
		w.handleLeave(id)
	}
	for _, req := range joins {
		w.handleJoin(req)
	}

	// Commands apply in server receive order.
	for _, env := range cmds {
		w.applyCmd(env, nowTick)
	}

	w.maybeDayRollover(nowTick)

	w.flushEvents(nowTick)

	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 && nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		snap := w.ExportSnapshot(nowTick)
		select {
		case w.snapshotSink <- snap:
		default:
			// Drop snapshot if sink is backed up.
		}
	}

	w.tick.Add(1)
}

// maybeDayRollover runs the once-per-day systems: tension decay then
// influence propagation. Both are fault-isolated inside the engine; errors
// here mean the store itself failed, which the event stream records.
func (w *World) maybeDayRollover(nowTick uint64) {
	if w.cfg.DayTicks <= 0 || nowTick == 0 || nowTick%uint64(w.cfg.DayTicks) != 0 {
		return
	}
	day := nowTick / uint64(w.cfg.DayTicks)

	stats, err := w.eng.DecayTensions(nowTick, faction.DecayParams{})
	if err != nil {
		w.collectEvent(protocol.Event{
			"t": nowTick, "type": protocol.EvDayRollover, "day": day,
			"error": err.Error(),
		})
		return
	}
	spreads, err := w.eng.PropagateInfluence(nowTick)
	if err != nil {
		w.collectEvent(protocol.Event{
			"t": nowTick, "type": protocol.EvDayRollover, "day": day,
			"error": err.Error(),
		})
		return
	}
	w.collectEvent(protocol.Event{
		"t":             nowTick,
		"type":          protocol.EvDayRollover,
		"day":           day,
		"pairs_decayed": stats.PairsDecayed,
		"pairs_skipped": stats.PairsSkipped,
		"total_decay":   stats.TotalDecay,
		"spread_events": len(spreads),
	})
}

func (w *World) flushEvents(nowTick uint64) {
	if len(w.stepEvents) == 0 {
		return
	}
	for _, ev := range w.stepEvents {
		for _, l := range w.eventWriters {
			_ = l.WriteEvent(ev)
		}
		msg := protocol.EventMsg{Type: protocol.TypeEvent, Tick: nowTick, Event: ev}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		for _, cl := range w.clients {
			sendLatest(cl.Out, b)
		}
	}
	w.stepEvents = w.stepEvents[:0]
}

func (w *World) applyCmd(env CmdEnvelope, nowTick uint64) {
	cmd := env.Cmd
	cl := w.clients[env.SessionID]

	reply := func(payload any, err error) {
		res := protocol.ResultMsg{Type: protocol.TypeResult, Ref: cmd.ID, OK: err == nil}
		if err != nil {
			res.Code = errCode(err)
			res.Message = err.Error()
		} else if payload != nil {
			if b, merr := json.Marshal(payload); merr == nil {
				res.Payload = b
			}
		}
		if cl == nil || cl.Out == nil {
			return
		}
		b, merr := json.Marshal(res)
		if merr != nil {
			return
		}
		sendLatest(cl.Out, b)
	}

	if cl != nil && !cl.Narrative {
		reply(nil, fmt.Errorf("%w: session is read-only", faction.ErrInvalidState))
		return
	}

	switch cmd.Op {
	case protocol.OpSetStance:
		rel, err := w.eng.SetStance(nowTick, cmd.FactionID, cmd.OtherFactionID, store.Stance(cmd.Stance), cmd.Metadata)
		reply(rel, err)
	case protocol.OpUpdateTension:
		ab, _, err := w.eng.UpdateTension(nowTick, cmd.FactionID, cmd.OtherFactionID, cmd.Delta, cmd.Metadata)
		reply(ab, err)
	case protocol.OpDeclareWar:
		ab, _, err := w.eng.DeclareWar(nowTick, cmd.FactionID, cmd.OtherFactionID, cmd.Reason, cmd.Metadata)
		reply(ab, err)
	case protocol.OpMakePeace:
		ab, _, err := w.eng.MakePeace(nowTick, cmd.FactionID, cmd.OtherFactionID, cmd.Terms, store.Stance(cmd.Stance))
		reply(ab, err)
	case protocol.OpResolveWar:
		report, err := w.eng.ResolveWar(nowTick, cmd.FactionID, cmd.OtherFactionID, cmd.VictorID, cmd.OutcomeType, cmd.Terms, true)
		reply(report, err)
	case protocol.OpCheckSchism:
		report, err := w.eng.CheckSchism(nowTick, cmd.FactionID, schismOptions(cmd))
		reply(report, err)
	case protocol.OpModifyRep:
		var change faction.ReputationChange
		var err error
		switch {
		case cmd.CharacterID != "":
			change, err = w.eng.ModifyCharacterReputation(nowTick, cmd.FactionID, cmd.CharacterID, cmd.Amount, cmd.Reason, cmd.Source)
		case cmd.RegionID != "":
			change, err = w.eng.ModifyRegionalReputation(nowTick, cmd.FactionID, cmd.RegionID, cmd.Amount, cmd.Reason, cmd.Source)
		default:
			change, err = w.eng.ModifyGlobalReputation(nowTick, cmd.FactionID, cmd.Amount, cmd.Reason, cmd.Source)
		}
		reply(change, err)
	default:
		reply(nil, fmt.Errorf("%w: unknown op %q", faction.ErrValidation, cmd.Op))
	}
}

// schismOptions lifts CheckSchism parameters off the command's metadata bag.
// Unknown keys are ignored; the schema already screened the shape.
func schismOptions(cmd protocol.CmdMsg) faction.SchismOptions {
	var opts faction.SchismOptions
	md := cmd.Metadata
	if md == nil {
		return opts
	}
	if v, ok := md["internal_tension"].(float64); ok {
		opts.InternalTension = &v
	}
	if v, ok := md["threshold"].(float64); ok {
		opts.Threshold = v
	}
	if m, ok := md["divide"].(map[string]any); ok {
		d := &faction.IdeologicalDivide{}
		d.Cause, _ = m["cause"].(string)
		d.Type, _ = m["type"].(string)
		d.Strength, _ = m["strength"].(float64)
		opts.Divide = d
	}
	if m, ok := md["trigger"].(map[string]any); ok {
		tr := &faction.TriggerEvent{}
		tr.Description, _ = m["description"].(string)
		tr.TensionModifier, _ = m["tension_modifier"].(float64)
		opts.Trigger = tr
	}
	return opts
}

func errCode(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, faction.ErrValidation):
		return protocol.ErrBadRequest
	case errors.Is(err, faction.ErrInvalidState):
		return protocol.ErrInvalidState
	case errors.Is(err, store.ErrConflict):
		return protocol.ErrConflict
	case errors.Is(err, faction.ErrStore):
		return protocol.ErrStore
	default:
		return protocol.ErrInternal
	}
}

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	factions, _ := w.store.Factions(store.FactionFilter{})
	var rels []*store.Relationship
	pairs, _ := w.store.RelationshipPairs()
	for _, pair := range pairs {
		rels = append(rels, pair[0], pair[1])
	}
	members, _ := w.store.Memberships(store.MembershipFilter{})
	pois, _ := w.store.POIs()
	npcs, _ := w.store.NPCs()

	return snapshot.SnapshotV1{
		Header:             snapshot.Header{Version: 1, WorldID: w.cfg.ID, Tick: nowTick},
		Seed:               w.cfg.Seed,
		TickRate:           w.cfg.TickRateHz,
		DayTicks:           w.cfg.DayTicks,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		Factions:           factions,
		Relationships:      rels,
		Memberships:        members,
		POIs:               pois,
		NPCs:               npcs,
		Counters:           snapshot.CountersV1{NextFaction: w.store.FactionNum()},
	}
}

// ImportSnapshot replaces the world state with the snapshot's. Only valid
// before Run starts or from the loop goroutine.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	st := store.NewMemory()
	for _, f := range s.Factions {
		if err := st.PutFaction(f); err != nil {
			return err
		}
	}
	for i := 0; i+1 < len(s.Relationships); i += 2 {
		if err := st.PutRelationshipPair(s.Relationships[i], s.Relationships[i+1]); err != nil {
			return err
		}
	}
	for _, m := range s.Memberships {
		if err := st.PutMembership(m); err != nil {
			return err
		}
	}
	for _, p := range s.POIs {
		if err := st.PutPOI(p); err != nil {
			return err
		}
	}
	for _, n := range s.NPCs {
		if err := st.PutNPC(n); err != nil {
			return err
		}
	}
	st.SetNextFactionNum(s.Counters.NextFaction)

	w.store = st
	w.eng = faction.NewEngine(st, w.rng, sinkFunc(w.collectEvent), w.tune)
	w.tick.Store(s.Header.Tick)
	return nil
}

func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte
	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	f64 := func(v float64) { u64(math.Float64bits(v)) }

	u64(nowTick)
	u64(uint64(w.cfg.Seed))

	factions, _ := w.store.Factions(store.FactionFilter{})
	for _, f := range factions {
		h.Write([]byte(f.ID))
		f64(f.Influence)
		f64(f.Reputation)
		f64(f.Wealth)
		f64(f.State.InternalTension)
		h.Write([]byte{boolByte(f.IsActive)})
		u64(uint64(len(f.State.ActiveWars)))
		u64(uint64(len(f.State.Schisms)))
	}

	pairs, _ := w.store.RelationshipPairs()
	for _, pair := range pairs {
		for _, r := range pair {
			h.Write([]byte(r.FactionID))
			h.Write([]byte(r.OtherFactionID))
			h.Write([]byte(string(r.Stance)))
			f64(r.Tension)
			h.Write([]byte{boolByte(r.WarState.AtWar)})
		}
	}

	members, _ := w.store.Memberships(store.MembershipFilter{})
	for _, m := range members {
		h.Write([]byte(m.FactionID))
		h.Write([]byte(m.CharacterID))
		f64(m.Reputation)
		h.Write([]byte(m.Status))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
