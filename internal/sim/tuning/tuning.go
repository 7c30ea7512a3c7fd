package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz"`
	DayTicks           int `yaml:"day_ticks"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	Decay       Decay       `yaml:"decay"`
	Schism      Schism      `yaml:"schism"`
	Propagation Propagation `yaml:"propagation"`
	Reputation  Reputation  `yaml:"reputation"`
	War         War         `yaml:"war"`
}

type Decay struct {
	RatePositive float64 `yaml:"rate_positive"`
	RateNegative float64 `yaml:"rate_negative"`
	Min          float64 `yaml:"min"`
	Max          float64 `yaml:"max"`
}

type Schism struct {
	Threshold float64 `yaml:"threshold"`
}

type Propagation struct {
	SeedInfluence float64 `yaml:"seed_influence"`
	// Affiliation offer chance is base + per_danger * danger_level.
	AffiliationBase      float64 `yaml:"affiliation_base"`
	AffiliationPerDanger float64 `yaml:"affiliation_per_danger"`
}

type Reputation struct {
	RegionalToGlobal  float64 `yaml:"regional_to_global"`
	CharacterToMember float64 `yaml:"character_to_member"`
}

type War struct {
	ResourceTransferPct float64 `yaml:"resource_transfer_pct"`
	StalemateAttrition  float64 `yaml:"stalemate_attrition"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         5,
		DayTicks:           6000,
		SnapshotEveryTicks: 3000,
		Decay: Decay{
			RatePositive: 0.5,
			RateNegative: 0.5,
			Min:          0.1,
			Max:          2.5,
		},
		Schism: Schism{Threshold: 80},
		Propagation: Propagation{
			SeedInfluence:        10,
			AffiliationBase:      0.15,
			AffiliationPerDanger: 0.05,
		},
		Reputation: Reputation{
			RegionalToGlobal:  0.2,
			CharacterToMember: 0.5,
		},
		War: War{
			ResourceTransferPct: 20,
			StalemateAttrition:  0.1,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.TickRateHz <= 0 {
		return t, fmt.Errorf("tuning.yaml: tick_rate_hz must be positive")
	}
	if t.Schism.Threshold <= 0 {
		return t, fmt.Errorf("tuning.yaml: schism threshold must be positive")
	}
	if t.Decay.Min < 0 || t.Decay.Max < t.Decay.Min {
		return t, fmt.Errorf("tuning.yaml: decay min/max out of order")
	}
	return t, nil
}
