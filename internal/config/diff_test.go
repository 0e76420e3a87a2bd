package config

import (
	"slices"
	"testing"
)

func TestDiff_Scenario5(t *testing.T) {
	// Grounded on spec §8 scenario 5: old [A,B,C], new [A,B',D] (B's args
	// changed) → removed {C}, added {D,B}, A untouched.
	old := &Config{Servers: []ServerSpec{
		{Name: "A", Command: "a-bin", Enabled: true},
		{Name: "B", Command: "b-bin", Args: []string{"--old"}, Enabled: true},
		{Name: "C", Command: "c-bin", Enabled: true},
	}}
	new := &Config{Servers: []ServerSpec{
		{Name: "A", Command: "a-bin", Enabled: true},
		{Name: "B", Command: "b-bin", Args: []string{"--new"}, Enabled: true},
		{Name: "D", Command: "d-bin", Enabled: true},
	}}

	d := Diff(old, new)
	if !slices.Equal(d.ToRemove, []string{"C"}) {
		t.Errorf("ToRemove = %v, want [C]", d.ToRemove)
	}
	if !slices.Equal(d.ToAdd, []string{"D"}) {
		t.Errorf("ToAdd = %v, want [D]", d.ToAdd)
	}
	if !slices.Equal(d.ToUpdate, []string{"B"}) {
		t.Errorf("ToUpdate = %v, want [B]", d.ToUpdate)
	}
}

func TestDiff_Idempotent(t *testing.T) {
	cfg := &Config{Servers: []ServerSpec{{Name: "A", Command: "a-bin", Enabled: true}}}
	d := Diff(cfg, cfg)
	if len(d.ToRemove) != 0 || len(d.ToAdd) != 0 || len(d.ToUpdate) != 0 {
		t.Errorf("expected no-op diff against identical config, got %+v", d)
	}
}

func TestDiff_EnabledFlagChangeTriggersUpdate(t *testing.T) {
	old := &Config{Servers: []ServerSpec{{Name: "A", Command: "a-bin", Enabled: true}}}
	new := &Config{Servers: []ServerSpec{{Name: "A", Command: "a-bin", Enabled: false}}}
	d := Diff(old, new)
	if !slices.Equal(d.ToUpdate, []string{"A"}) {
		t.Errorf("ToUpdate = %v, want [A]", d.ToUpdate)
	}
}
