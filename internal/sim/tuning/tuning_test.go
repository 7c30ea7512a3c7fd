package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	raw := []byte(`
tick_rate_hz: 10
day_ticks: 100
decay:
  rate_positive: 1.0
  rate_negative: 0.25
  min: 0.5
  max: 4.0
schism:
  threshold: 70
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tune, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.TickRateHz != 10 || tune.DayTicks != 100 {
		t.Fatalf("cadence: got %d/%d", tune.TickRateHz, tune.DayTicks)
	}
	if tune.Decay.RatePositive != 1.0 || tune.Decay.Max != 4.0 {
		t.Fatalf("decay overrides not applied: %+v", tune.Decay)
	}
	if tune.Schism.Threshold != 70 {
		t.Fatalf("schism threshold: got %v want 70", tune.Schism.Threshold)
	}
	// Untouched sections keep defaults.
	if tune.Propagation.SeedInfluence != 10 {
		t.Fatalf("propagation default lost: %+v", tune.Propagation)
	}
	if tune.War.ResourceTransferPct != 20 {
		t.Fatalf("war default lost: %+v", tune.War)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"zero_rate":    "tick_rate_hz: 0\n",
		"bad_decay":    "decay:\n  min: 2.0\n  max: 1.0\n",
		"zero_schism":  "schism:\n  threshold: 0\n",
		"not_yaml_at_all": ":\n  - {",
	}
	for name, raw := range cases {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
