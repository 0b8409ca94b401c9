package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileDefaultsOnEmptyPath(t *testing.T) {
	sources, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(sources) != 5 {
		t.Fatalf("expected 5 default sources, got %d", len(sources))
	}
	if sources[0].Name != "ebay" || !sources[0].Enabled {
		t.Fatalf("unexpected first default source %+v", sources[0])
	}
}

func TestLoadFileReadsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	payload := `[{"name":"ebay","label":"eBay Motors","sourceType":"api","enabled":true,"priority":90}]`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	sources, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(sources) != 1 || sources[0].Name != "ebay" || sources[0].Priority != 90 {
		t.Fatalf("unexpected sources %+v", sources)
	}
}

func TestLoadFileRejectsEmptyAndInvalid(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(empty); err == nil {
		t.Fatal("expected error for empty registry file")
	}

	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(invalid, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(invalid); err == nil {
		t.Fatal("expected error for invalid JSON")
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRegistryListOrdersByPriority(t *testing.T) {
	registry := New(DefaultSources())
	items := registry.List()
	for i := 1; i < len(items); i++ {
		if items[i-1].Priority < items[i].Priority {
			t.Fatalf("list not priority-descending at %d: %+v", i, items)
		}
	}
	if items[0].Name != "ebay" {
		t.Fatalf("expected ebay first, got %q", items[0].Name)
	}
}

func TestRegistryUpdate(t *testing.T) {
	registry := New(DefaultSources())

	enabled := false
	priority := 95
	updated, err := registry.Update(context.Background(), "RockAuto", &enabled, &priority)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Enabled || updated.Priority != 95 {
		t.Fatalf("unexpected updated source %+v", updated)
	}

	source, ok := registry.Get("rockauto")
	if !ok || source.Enabled || source.Priority != 95 {
		t.Fatalf("update not visible through Get: %+v", source)
	}
	if registry.IsEnabled("rockauto") {
		t.Fatal("rockauto should be disabled")
	}
	if registry.Priority("rockauto") != 95 {
		t.Fatalf("priority = %d, want 95", registry.Priority("rockauto"))
	}

	if _, err := registry.Update(context.Background(), "nosuch", &enabled, nil); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("unknown source: got %v, want ErrUnknownSource", err)
	}
}

func TestRegistryEnabledSkipsDisabled(t *testing.T) {
	registry := New(DefaultSources())
	disabled := false
	if _, err := registry.Update(context.Background(), "row52", &disabled, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}

	names := registry.Enabled()
	for _, name := range names {
		if name == "row52" {
			t.Fatal("disabled source listed as enabled")
		}
	}
	if len(names) != 4 {
		t.Fatalf("expected 4 enabled sources, got %d", len(names))
	}
}

type memoryRuntimeStore struct {
	states map[string]RuntimeSourceState
	saves  int
}

func (s *memoryRuntimeStore) Load(context.Context) (map[string]RuntimeSourceState, error) {
	return s.states, nil
}

func (s *memoryRuntimeStore) Save(_ context.Context, source string, state RuntimeSourceState) error {
	if s.states == nil {
		s.states = make(map[string]RuntimeSourceState)
	}
	s.states[source] = state
	s.saves++
	return nil
}

func TestApplyRuntimeStateOverlays(t *testing.T) {
	enabled := false
	priority := 10
	store := &memoryRuntimeStore{states: map[string]RuntimeSourceState{
		"ebay":    {Enabled: &enabled, Priority: &priority},
		"unknown": {Enabled: &enabled},
	}}

	registry := New(DefaultSources(), WithRuntimeStore(store))
	if err := registry.ApplyRuntimeState(context.Background()); err != nil {
		t.Fatalf("ApplyRuntimeState: %v", err)
	}

	source, _ := registry.Get("ebay")
	if source.Enabled || source.Priority != 10 {
		t.Fatalf("overrides not applied: %+v", source)
	}

	// Sources not in the overlay keep their seed state.
	rockauto, _ := registry.Get("rockauto")
	if !rockauto.Enabled || rockauto.Priority != 80 {
		t.Fatalf("seed state disturbed: %+v", rockauto)
	}
}

func TestUpdatePersistsThroughStore(t *testing.T) {
	store := &memoryRuntimeStore{}
	registry := New(DefaultSources(), WithRuntimeStore(store))

	enabled := false
	if _, err := registry.Update(context.Background(), "carparts", &enabled, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("expected 1 save, got %d", store.saves)
	}
	state, ok := store.states["carparts"]
	if !ok || state.Enabled == nil || *state.Enabled {
		t.Fatalf("persisted state = %+v", state)
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.ebay.com/sch/i.html?x=1", "ebay.com"},
		{"http://rockauto.com", "rockauto.com"},
		{"WWW.Row52.COM", "row52.com"},
		{"carparts.com:443", "carparts.com"},
		{"user@partsouq.com", "partsouq.com"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeDomain(tt.in); got != tt.want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
