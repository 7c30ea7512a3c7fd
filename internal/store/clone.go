package store

// Deep copies. The memory store clones on both read and write so callers can
// never alias stored state; a half-mutated record only becomes visible once
// it is put back.

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case map[string]any:
			out[k] = cloneAnyMap(x)
		case []any:
			cp := make([]any, len(x))
			copy(cp, x)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneHistory(h []HistoryEntry) []HistoryEntry {
	if h == nil {
		return nil
	}
	out := make([]HistoryEntry, len(h))
	for i, e := range h {
		out[i] = HistoryEntry{Tick: e.Tick, Type: e.Type, Data: cloneAnyMap(e.Data)}
	}
	return out
}

func (f *Faction) Clone() *Faction {
	if f == nil {
		return nil
	}
	cp := *f
	if f.Territory != nil {
		cp.Territory = make(map[string]Territory, len(f.Territory))
		for k, v := range f.Territory {
			cp.Territory[k] = v
		}
	}
	cp.Resources = cloneFloatMap(f.Resources)
	cp.POIControl = cloneIntMap(f.POIControl)
	cp.Traits = cloneIntMap(f.Traits)
	cp.History = cloneHistory(f.History)
	cp.Outposts = cloneStrings(f.Outposts)

	cp.State.ActiveWars = cloneStrings(f.State.ActiveWars)
	cp.State.Schisms = append([]SchismRecord(nil), f.State.Schisms...)
	cp.State.WarHistory = append([]WarRecord(nil), f.State.WarHistory...)
	cp.State.RegionalRep = cloneFloatMap(f.State.RegionalRep)
	cp.State.CharacterRep = cloneFloatMap(f.State.CharacterRep)
	cp.State.Ext = cloneAnyMap(f.State.Ext)
	return &cp
}

func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	cp := *r
	cp.History = cloneHistory(r.History)
	cp.Metadata = cloneAnyMap(r.Metadata)

	ws := r.WarState
	if ws.PeaceTerms != nil {
		cp.WarState.PeaceTerms = make([]PeaceTerm, len(ws.PeaceTerms))
		for i, p := range ws.PeaceTerms {
			cp.WarState.PeaceTerms[i] = PeaceTerm{Tick: p.Tick, Terms: cloneAnyMap(p.Terms)}
		}
	}
	if ws.Outcomes != nil {
		cp.WarState.Outcomes = make([]WarOutcome, len(ws.Outcomes))
		for i, o := range ws.Outcomes {
			oc := o
			oc.Terms = cloneAnyMap(o.Terms)
			oc.Consequences = append([]Consequence(nil), o.Consequences...)
			cp.WarState.Outcomes[i] = oc
		}
	}
	return &cp
}

func (m *Membership) Clone() *Membership {
	if m == nil {
		return nil
	}
	cp := *m
	cp.History = cloneHistory(m.History)
	cp.Metadata = cloneAnyMap(m.Metadata)
	return &cp
}

func (p *POI) Clone() *POI {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Connected = cloneStrings(p.Connected)
	cp.Residents = cloneStrings(p.Residents)
	return &cp
}

func (n *NPC) Clone() *NPC {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Affiliations = cloneStrings(n.Affiliations)
	cp.Traits = cloneIntMap(n.Traits)
	return &cp
}
