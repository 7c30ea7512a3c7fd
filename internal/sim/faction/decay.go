package faction

import (
	"fmt"
	"math"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/store"
)

// DecayParams controls one DecayTensions pass. Zero values fall back to the
// engine tuning.
type DecayParams struct {
	RatePositive float64
	RateNegative float64
	MinDecay     float64
	MaxDecay     float64
}

// DecayStats summarizes one pass.
type DecayStats struct {
	PairsProcessed int     `json:"pairs_processed"`
	PairsDecayed   int     `json:"pairs_decayed"`
	PairsSkipped   int     `json:"pairs_skipped"` // at war or already neutral
	PairsFailed    int     `json:"pairs_failed"`
	TotalDecay     float64 `json:"total_decay"`
}

// DecayTensions relaxes every non-war tension toward zero. Invoked once per
// simulated day. The decay magnitude grows with how extreme the tension is,
// jittered by the injected random source and clamped to [min, max]; it never
// overshoots past zero. War tensions do not passively decay. A failure on one
// pair is counted and the pass continues.
func (e *Engine) DecayTensions(nowTick uint64, p DecayParams) (DecayStats, error) {
	if p.RatePositive == 0 {
		p.RatePositive = e.tune.Decay.RatePositive
	}
	if p.RateNegative == 0 {
		p.RateNegative = e.tune.Decay.RateNegative
	}
	if p.MinDecay == 0 {
		p.MinDecay = e.tune.Decay.Min
	}
	if p.MaxDecay == 0 {
		p.MaxDecay = e.tune.Decay.Max
	}
	if p.RatePositive < 0 || p.RateNegative < 0 || p.MinDecay < 0 || p.MaxDecay < p.MinDecay {
		return DecayStats{}, fmt.Errorf("%w: bad decay parameters", ErrValidation)
	}

	var stats DecayStats
	pairs, err := e.store.RelationshipPairs()
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrStore, err)
	}

	for _, pair := range pairs {
		ab, ba := pair[0], pair[1]
		stats.PairsProcessed++

		if ab.Stance == store.StanceAtWar || ab.WarState.AtWar {
			stats.PairsSkipped++
			continue
		}
		if ab.Tension == 0 {
			stats.PairsSkipped++
			continue
		}

		rate := p.RatePositive
		if ab.Tension < 0 {
			rate = p.RateNegative
		}
		// Extreme tensions relax faster than mild ones.
		base := rate * (0.5 + math.Abs(ab.Tension)/200)
		jitter := 0.7 + e.rng.Float64()*0.6
		amount := base * jitter
		if amount < p.MinDecay {
			amount = p.MinDecay
		}
		if amount > p.MaxDecay {
			amount = p.MaxDecay
		}
		if amount > math.Abs(ab.Tension) {
			amount = math.Abs(ab.Tension)
		}

		before := ab.Tension
		after := before - amount
		if before < 0 {
			after = before + amount
		}

		ab.Tension = after
		ba.Tension = after
		if amount >= 1.0 {
			ev := entry(nowTick, "tension_decay", map[string]any{
				"old_tension": before,
				"new_tension": after,
			})
			ab.History = append(ab.History, ev)
			ba.History = append(ba.History, ev)
		}

		if err := e.store.PutRelationshipPair(ab, ba); err != nil {
			stats.PairsFailed++
			continue
		}
		stats.PairsDecayed++
		stats.TotalDecay += amount
	}

	e.emit(protocol.Event{
		"t":         nowTick,
		"type":      protocol.EvTensionDecay,
		"processed": stats.PairsProcessed,
		"decayed":   stats.PairsDecayed,
		"total":     stats.TotalDecay,
	})
	return stats, nil
}
