// Package config loads the tunables of the clean region computation from YAML
// files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"cleanregion/pkg/cleanregion"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Peak scanning parameters
	Scan struct {
		// Workers bounds the number of planes scanned concurrently
		Workers int `yaml:"workers"`

		// BeamThreshold is the fraction of the beam peak above which a lobe is recorded
		BeamThreshold float64 `yaml:"beamThreshold"`

		// EraseHalfWidth is the half side, in beam sizes, of the square erased around each lobe of a peak
		EraseHalfWidth float64 `yaml:"eraseHalfWidth"`

		// PeakPolygonRadius is the radius, in beam sizes, of the octagon wrapped around each peak
		PeakPolygonRadius float64 `yaml:"peakPolygonRadius"`

		// CutoffSigma multiplies the estimated noise when no explicit cutoff is given
		CutoffSigma float64 `yaml:"cutoffSigma"`
	} `yaml:"scan"`

	// Mosaic parameters
	Mosaic struct {
		// Antenna is "standard" or "compact"
		Antenna string `yaml:"antenna"`
	} `yaml:"mosaic"`

	// Output parameters
	Output struct {
		// Verbose enables per-plane progress logging
		Verbose bool `yaml:"verbose"`

		// DebugDir receives working planes and GeoJSON polygons when it exists
		DebugDir string `yaml:"debugDir"`

		// Overlay is the path of a PNG rendering of the region, empty to skip
		Overlay string `yaml:"overlay"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	p := cleanregion.NewParams()

	cfg.Scan.Workers = p.Workers
	cfg.Scan.BeamThreshold = p.BeamThreshold
	cfg.Scan.EraseHalfWidth = p.EraseHalfWidth
	cfg.Scan.PeakPolygonRadius = p.PeakPolygonRadius
	cfg.Scan.CutoffSigma = 3.0

	cfg.Mosaic.Antenna = p.Antenna.String()

	cfg.Output.Verbose = false
	cfg.Output.DebugDir = ""
	cfg.Output.Overlay = ""

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Params converts the configuration into region computation parameters.
func (c *Config) Params() (*cleanregion.Params, error) {
	antenna, err := cleanregion.ParseAntennaClass(c.Mosaic.Antenna)
	if err != nil {
		return nil, fmt.Errorf("mosaic.antenna: %w", err)
	}
	if c.Scan.Workers < 1 {
		return nil, fmt.Errorf("scan.workers must be at least 1, got %d", c.Scan.Workers)
	}

	p := cleanregion.NewParams()
	p.Workers = c.Scan.Workers
	p.BeamThreshold = c.Scan.BeamThreshold
	p.EraseHalfWidth = c.Scan.EraseHalfWidth
	p.PeakPolygonRadius = c.Scan.PeakPolygonRadius
	p.Antenna = antenna
	p.DebugDir = c.Output.DebugDir
	p.Verbose = c.Output.Verbose
	return p, nil
}
