package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConsoleConfig represents the root configuration of the planning console.
// All fields are optional in the JSON file; the Get* methods provide the
// defaults, so partial configs are safe.
type ConsoleConfig struct {
	// Server params
	ListenAddr *string `json:"listen_addr,omitempty"`
	BackendURL *string `json:"backend_url,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`

	// Replay generator params
	Samples       *int     `json:"samples,omitempty"`
	Iterations    *int     `json:"iterations,omitempty"`
	EliteFraction *float64 `json:"elite_fraction,omitempty"`

	// Export params
	ExportWidth   *int `json:"export_width,omitempty"`
	ExportHeight  *int `json:"export_height,omitempty"`
	ExportFPS     *int `json:"export_fps,omitempty"`
	ExportQuality *int `json:"export_quality,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyConsoleConfig returns a ConsoleConfig with all fields set to nil.
func EmptyConsoleConfig() *ConsoleConfig {
	return &ConsoleConfig{}
}

// LoadConsoleConfig loads a ConsoleConfig from a JSON file.
// Fields omitted from the JSON file fall back to the Get* defaults.
func LoadConsoleConfig(path string) (*ConsoleConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConsoleConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ConsoleConfig) Validate() error {
	if c.Samples != nil {
		if *c.Samples < 10 || *c.Samples > 2000 {
			return fmt.Errorf("samples must be between 10 and 2000, got %d", *c.Samples)
		}
	}
	if c.Iterations != nil {
		if *c.Iterations < 1 || *c.Iterations > 100 {
			return fmt.Errorf("iterations must be between 1 and 100, got %d", *c.Iterations)
		}
	}
	if c.EliteFraction != nil {
		if *c.EliteFraction < 0.01 || *c.EliteFraction > 0.5 {
			return fmt.Errorf("elite_fraction must be between 0.01 and 0.5, got %f", *c.EliteFraction)
		}
	}
	if c.ExportFPS != nil {
		if *c.ExportFPS < 1 || *c.ExportFPS > 60 {
			return fmt.Errorf("export_fps must be between 1 and 60, got %d", *c.ExportFPS)
		}
	}
	if c.ExportQuality != nil {
		if *c.ExportQuality < 1 || *c.ExportQuality > 100 {
			return fmt.Errorf("export_quality must be between 1 and 100, got %d", *c.ExportQuality)
		}
	}
	if c.ExportWidth != nil && *c.ExportWidth < 64 {
		return fmt.Errorf("export_width must be at least 64, got %d", *c.ExportWidth)
	}
	if c.ExportHeight != nil && *c.ExportHeight < 64 {
		return fmt.Errorf("export_height must be at least 64, got %d", *c.ExportHeight)
	}
	return nil
}

// GetListenAddr returns the listen_addr value or the default.
func (c *ConsoleConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8089" // default
	}
	return *c.ListenAddr
}

// GetBackendURL returns the backend_url value or the default.
// An empty backend URL means the console runs standalone on synthetic data.
func (c *ConsoleConfig) GetBackendURL() string {
	if c.BackendURL == nil {
		return ""
	}
	return *c.BackendURL
}

// GetDBPath returns the db_path value or the default.
func (c *ConsoleConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "planview.db" // default
	}
	return *c.DBPath
}

// GetSamples returns the samples value or the default.
func (c *ConsoleConfig) GetSamples() int {
	if c.Samples == nil {
		return 400 // default
	}
	return *c.Samples
}

// GetIterations returns the iterations value or the default.
func (c *ConsoleConfig) GetIterations() int {
	if c.Iterations == nil {
		return 10 // default
	}
	return *c.Iterations
}

// GetEliteFraction returns the elite_fraction value or the default.
func (c *ConsoleConfig) GetEliteFraction() float64 {
	if c.EliteFraction == nil {
		return 0.1 // default
	}
	return *c.EliteFraction
}

// GetExportWidth returns the export_width value or the default.
func (c *ConsoleConfig) GetExportWidth() int {
	if c.ExportWidth == nil {
		return 960 // default
	}
	return *c.ExportWidth
}

// GetExportHeight returns the export_height value or the default.
func (c *ConsoleConfig) GetExportHeight() int {
	if c.ExportHeight == nil {
		return 720 // default
	}
	return *c.ExportHeight
}

// GetExportFPS returns the export_fps value or the default.
func (c *ConsoleConfig) GetExportFPS() int {
	if c.ExportFPS == nil {
		return 10 // default
	}
	return *c.ExportFPS
}

// GetExportQuality returns the export_quality value or the default.
func (c *ConsoleConfig) GetExportQuality() int {
	if c.ExportQuality == nil {
		return 75 // default
	}
	return *c.ExportQuality
}
