package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "console.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyConsoleConfig()

	if got := cfg.GetListenAddr(); got != ":8089" {
		t.Errorf("GetListenAddr() = %q, want :8089", got)
	}
	if got := cfg.GetBackendURL(); got != "" {
		t.Errorf("GetBackendURL() = %q, want empty", got)
	}
	if got := cfg.GetDBPath(); got != "planview.db" {
		t.Errorf("GetDBPath() = %q, want planview.db", got)
	}
	if got := cfg.GetSamples(); got != 400 {
		t.Errorf("GetSamples() = %d, want 400", got)
	}
	if got := cfg.GetIterations(); got != 10 {
		t.Errorf("GetIterations() = %d, want 10", got)
	}
	if got := cfg.GetEliteFraction(); got != 0.1 {
		t.Errorf("GetEliteFraction() = %v, want 0.1", got)
	}
	if got := cfg.GetExportWidth(); got != 960 {
		t.Errorf("GetExportWidth() = %d, want 960", got)
	}
	if got := cfg.GetExportHeight(); got != 720 {
		t.Errorf("GetExportHeight() = %d, want 720", got)
	}
	if got := cfg.GetExportFPS(); got != 10 {
		t.Errorf("GetExportFPS() = %d, want 10", got)
	}
	if got := cfg.GetExportQuality(); got != 75 {
		t.Errorf("GetExportQuality() = %d, want 75", got)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfigFile(t, `{"listen_addr": ":9000", "samples": 200}`)

	cfg, err := LoadConsoleConfig(path)
	if err != nil {
		t.Fatalf("LoadConsoleConfig() error: %v", err)
	}
	if got := cfg.GetListenAddr(); got != ":9000" {
		t.Errorf("GetListenAddr() = %q, want :9000", got)
	}
	if got := cfg.GetSamples(); got != 200 {
		t.Errorf("GetSamples() = %d, want 200", got)
	}
	// Unset fields keep defaults.
	if got := cfg.GetIterations(); got != 10 {
		t.Errorf("GetIterations() = %d, want 10", got)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"samples too low", `{"samples": 5}`},
		{"iterations too high", `{"iterations": 500}`},
		{"elite fraction too high", `{"elite_fraction": 0.9}`},
		{"fps zero", `{"export_fps": 0}`},
		{"quality above range", `{"export_quality": 120}`},
		{"tiny export width", `{"export_width": 10}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfigFile(t, tc.contents)
			if _, err := LoadConsoleConfig(path); err == nil {
				t.Errorf("LoadConsoleConfig(%s) succeeded, want error", tc.contents)
			}
		})
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConsoleConfig(path); err == nil {
		t.Error("LoadConsoleConfig() accepted non-json extension")
	}
}

func TestPresetStoreDefaults(t *testing.T) {
	store := NewPresetStore()

	presets := store.List("")
	if len(presets) != 4 {
		t.Fatalf("List() returned %d presets, want 4", len(presets))
	}

	quick, err := store.Get("quick")
	if err != nil {
		t.Fatalf("Get(quick) error: %v", err)
	}
	if quick.Config.Samples != 100 || quick.Config.Iterations != 5 {
		t.Errorf("quick preset config = %+v", quick.Config)
	}
	if !quick.IsDefault {
		t.Error("quick preset should be marked default")
	}

	quality := store.List("quality")
	if len(quality) != 2 {
		t.Errorf("List(quality) returned %d presets, want 2", len(quality))
	}
}

func TestPresetStoreCreateAndUse(t *testing.T) {
	store := NewPresetStore()

	created, err := store.Create("Lab Bench", "desk robot runs", "", PresetConfig{
		Model: "vit-huge", Samples: 250, Iterations: 12, EliteFraction: 0.08,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if created.Category != "custom" {
		t.Errorf("Category = %q, want custom", created.Category)
	}

	if _, err := store.Create("Lab Bench", "", "custom", created.Config); err != ErrPresetNameTaken {
		t.Errorf("duplicate name error = %v, want ErrPresetNameTaken", err)
	}

	used, err := store.Use(created.ID)
	if err != nil {
		t.Fatalf("Use() error: %v", err)
	}
	if used.UseCount != 1 {
		t.Errorf("UseCount = %d, want 1", used.UseCount)
	}
}

func TestPresetStoreUpdateRules(t *testing.T) {
	store := NewPresetStore()

	// Default presets accept only the favorite toggle.
	fav := true
	updated, err := store.Update("balanced", PresetUpdate{Favorite: &fav})
	if err != nil {
		t.Fatalf("Update(balanced) error: %v", err)
	}
	if !updated.Favorite {
		t.Error("favorite toggle not applied to default preset")
	}

	name := "renamed"
	if _, err := store.Update("balanced", PresetUpdate{Name: &name}); err != ErrPresetReadOnly {
		t.Errorf("renaming default preset error = %v, want ErrPresetReadOnly", err)
	}

	if err := store.Delete("balanced"); err != ErrPresetReadOnly {
		t.Errorf("deleting default preset error = %v, want ErrPresetReadOnly", err)
	}

	created, err := store.Create("scratch", "", "", PresetConfig{
		Model: "vit-large", Samples: 150, Iterations: 6, EliteFraction: 0.1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Update(created.ID, PresetUpdate{Name: &name}); err != nil {
		t.Errorf("renaming custom preset error: %v", err)
	}
	if err := store.Delete(created.ID); err != nil {
		t.Errorf("deleting custom preset error: %v", err)
	}
	if _, err := store.Get(created.ID); err != ErrPresetNotFound {
		t.Errorf("Get after delete error = %v, want ErrPresetNotFound", err)
	}
}

func TestPresetConfigValidation(t *testing.T) {
	store := NewPresetStore()

	bad := []PresetConfig{
		{Model: "vit-large", Samples: 5, Iterations: 5, EliteFraction: 0.1},
		{Model: "vit-large", Samples: 100, Iterations: 0, EliteFraction: 0.1},
		{Model: "vit-large", Samples: 100, Iterations: 5, EliteFraction: 0.6},
	}
	for i, cfg := range bad {
		if _, err := store.Create("bad", "", "", cfg); err == nil {
			t.Errorf("case %d: Create accepted invalid config %+v", i, cfg)
		}
	}
}
