package manifest

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoadCache_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	want := Manifest{GeneratedAt: time.Now(), Servers: map[string]ServerEntry{
		"s1": {Name: "s1", Status: StatusRunning, ToolCount: 2},
	}}
	if err := SaveCache(path, want); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}
	got, ok, err := LoadCache(path, time.Hour)
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if !ok {
		t.Fatal("LoadCache reported no fresh cache")
	}
	if got.Servers["s1"].ToolCount != 2 {
		t.Errorf("round-tripped ToolCount = %d, want 2", got.Servers["s1"].ToolCount)
	}
}

func TestLoadCache_MissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	_, ok, err := LoadCache(path, time.Hour)
	if err != nil {
		t.Fatalf("LoadCache on missing file returned error: %v", err)
	}
	if ok {
		t.Error("LoadCache on missing file reported ok=true")
	}
}

func TestLoadCache_ExpiredIsTreatedAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	stale := Manifest{GeneratedAt: time.Now().Add(-2 * time.Hour), Servers: map[string]ServerEntry{}}
	if err := SaveCache(path, stale); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}
	_, ok, err := LoadCache(path, time.Hour)
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if ok {
		t.Error("LoadCache should treat an expired cache as absent")
	}
}
