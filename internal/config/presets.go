package config

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PresetConfig is one planning configuration that can be submitted to the
// backend or fed to the synthetic replay generator.
type PresetConfig struct {
	Model         string  `json:"model"`
	Samples       int     `json:"samples"`
	Iterations    int     `json:"iterations"`
	EliteFraction float64 `json:"elite_fraction"`
}

// Preset is a saved planning configuration with metadata.
type Preset struct {
	ID          string       `json:"preset_id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Config      PresetConfig `json:"config"`
	Category    string       `json:"category"`
	IsDefault   bool         `json:"is_default"`
	Favorite    bool         `json:"is_favorite"`
	UseCount    int          `json:"use_count"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Preset store errors.
var (
	ErrPresetNotFound  = fmt.Errorf("preset not found")
	ErrPresetReadOnly  = fmt.Errorf("default presets cannot be modified")
	ErrPresetNameTaken = fmt.Errorf("preset name already in use")
)

func defaultPresets() map[string]*Preset {
	now := time.Now().UTC()
	presets := []*Preset{
		{
			ID:          "quick",
			Name:        "Quick",
			Description: "Fast planning for prototyping (low quality)",
			Config:      PresetConfig{Model: "vit-large", Samples: 100, Iterations: 5, EliteFraction: 0.1},
			Category:    "quick",
		},
		{
			ID:          "balanced",
			Name:        "Balanced",
			Description: "Good balance of speed and quality",
			Config:      PresetConfig{Model: "vit-huge", Samples: 300, Iterations: 10, EliteFraction: 0.1},
			Category:    "balanced",
		},
		{
			ID:          "quality",
			Name:        "High Quality",
			Description: "Best quality, slower planning",
			Config:      PresetConfig{Model: "vit-giant", Samples: 500, Iterations: 15, EliteFraction: 0.1},
			Category:    "quality",
		},
		{
			ID:          "research",
			Name:        "Research",
			Description: "Maximum samples for research experiments",
			Config:      PresetConfig{Model: "vit-giant", Samples: 1000, Iterations: 20, EliteFraction: 0.05},
			Category:    "quality",
		},
	}
	out := make(map[string]*Preset, len(presets))
	for _, p := range presets {
		p.IsDefault = true
		p.CreatedAt = now
		p.UpdatedAt = now
		out[p.ID] = p
	}
	return out
}

// PresetStore keeps the built-in presets plus user-created ones.
// Custom presets live in memory only; they are per-process state like the
// replay sessions they configure.
type PresetStore struct {
	mu       sync.Mutex
	defaults map[string]*Preset
	custom   map[string]*Preset
}

// NewPresetStore returns a store seeded with the built-in presets.
func NewPresetStore() *PresetStore {
	return &PresetStore{
		defaults: defaultPresets(),
		custom:   make(map[string]*Preset),
	}
}

// List returns all presets, favorites first, then by use count and name.
// An empty category matches everything.
func (s *PresetStore) List(category string) []Preset {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Preset
	for _, p := range s.defaults {
		if category == "" || p.Category == category {
			out = append(out, *p)
		}
	}
	for _, p := range s.custom {
		if category == "" || p.Category == category {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Favorite != out[j].Favorite {
			return out[i].Favorite
		}
		if out[i].UseCount != out[j].UseCount {
			return out[i].UseCount > out[j].UseCount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Get returns the preset with the given id.
func (s *PresetStore) Get(id string) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.lookupLocked(id); ok {
		return *p, nil
	}
	return Preset{}, ErrPresetNotFound
}

// Create adds a custom preset. Names must be unique across all presets.
func (s *PresetStore) Create(name, description, category string, cfg PresetConfig) (Preset, error) {
	if name == "" {
		return Preset{}, fmt.Errorf("preset name must not be empty")
	}
	if err := validatePresetConfig(cfg); err != nil {
		return Preset{}, err
	}
	if category == "" {
		category = "custom"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTakenLocked(name) {
		return Preset{}, ErrPresetNameTaken
	}

	now := time.Now().UTC()
	p := &Preset{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Config:      cfg,
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.custom[p.ID] = p
	return *p, nil
}

// PresetUpdate carries the mutable fields of a preset; nil means unchanged.
type PresetUpdate struct {
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	Config      *PresetConfig `json:"config,omitempty"`
	Favorite    *bool         `json:"is_favorite,omitempty"`
}

// Update modifies a custom preset. Default presets accept only the
// favorite toggle.
func (s *PresetStore) Update(id string, upd PresetUpdate) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.defaults[id]; ok {
		if upd.Name != nil || upd.Description != nil || upd.Config != nil {
			return Preset{}, ErrPresetReadOnly
		}
		if upd.Favorite != nil {
			p.Favorite = *upd.Favorite
			p.UpdatedAt = time.Now().UTC()
		}
		return *p, nil
	}

	p, ok := s.custom[id]
	if !ok {
		return Preset{}, ErrPresetNotFound
	}
	if upd.Name != nil && *upd.Name != p.Name {
		if s.nameTakenLocked(*upd.Name) {
			return Preset{}, ErrPresetNameTaken
		}
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.Config != nil {
		if err := validatePresetConfig(*upd.Config); err != nil {
			return Preset{}, err
		}
		p.Config = *upd.Config
	}
	if upd.Favorite != nil {
		p.Favorite = *upd.Favorite
	}
	p.UpdatedAt = time.Now().UTC()
	return *p, nil
}

// Delete removes a custom preset. Default presets cannot be deleted.
func (s *PresetStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.defaults[id]; ok {
		return ErrPresetReadOnly
	}
	if _, ok := s.custom[id]; !ok {
		return ErrPresetNotFound
	}
	delete(s.custom, id)
	return nil
}

// Use records that a preset was applied and returns its config.
func (s *PresetStore) Use(id string) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.lookupLocked(id)
	if !ok {
		return Preset{}, ErrPresetNotFound
	}
	p.UseCount++
	p.UpdatedAt = time.Now().UTC()
	return *p, nil
}

func (s *PresetStore) lookupLocked(id string) (*Preset, bool) {
	if p, ok := s.defaults[id]; ok {
		return p, true
	}
	p, ok := s.custom[id]
	return p, ok
}

func (s *PresetStore) nameTakenLocked(name string) bool {
	for _, p := range s.defaults {
		if p.Name == name {
			return true
		}
	}
	for _, p := range s.custom {
		if p.Name == name {
			return true
		}
	}
	return false
}

func validatePresetConfig(cfg PresetConfig) error {
	if cfg.Samples < 10 || cfg.Samples > 2000 {
		return fmt.Errorf("samples must be between 10 and 2000, got %d", cfg.Samples)
	}
	if cfg.Iterations < 1 || cfg.Iterations > 100 {
		return fmt.Errorf("iterations must be between 1 and 100, got %d", cfg.Iterations)
	}
	if cfg.EliteFraction < 0.01 || cfg.EliteFraction > 0.5 {
		return fmt.Errorf("elite_fraction must be between 0.01 and 0.5, got %f", cfg.EliteFraction)
	}
	return nil
}
