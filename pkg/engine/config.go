package engine

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the YAML form of Options plus the settings of a refinement run.
type Config struct {
	DataDir           string `yaml:"data_dir"`
	SnapshotFile      string `yaml:"snapshot_file"`
	JournalFile       string `yaml:"journal_file"`
	Dimension         int    `yaml:"dimension"`
	InitialLevel      uint32 `yaml:"initial_level"`
	Boundaries        bool   `yaml:"boundaries"`
	Variant           string `yaml:"variant"`
	MaxLevel          uint32 `yaml:"max_level"`
	AutoSaveThreshold int    `yaml:"auto_save_threshold"`

	// Refinement run
	RefinementsPerPass int     `yaml:"refinements_per_pass"`
	Threshold          float64 `yaml:"threshold"`
	Passes             int     `yaml:"passes"`

	LogLevel    string `yaml:"log_level"`    // debug, info, warn, error
	MetricsAddr string `yaml:"metrics_addr"` // e.g. ":9091"
}

// DefaultConfig returns the configuration matching DefaultOptions for a 2D grid.
func DefaultConfig() Config {
	opts := DefaultOptions("./sparsegrid_data", 2)
	return Config{
		DataDir:            opts.DataDir,
		SnapshotFile:       opts.SnapshotFilename,
		JournalFile:        opts.JournalFilename,
		Dimension:          opts.Dimension,
		InitialLevel:       opts.InitialLevel,
		Variant:            opts.Variant,
		MaxLevel:           opts.MaxLevel,
		AutoSaveThreshold:  opts.AutoSaveThreshold,
		RefinementsPerPass: 5,
		Threshold:          0,
		Passes:             10,
		LogLevel:           "info",
		MetricsAddr:        ":9091",
	}
}

// LoadConfig reads the YAML configuration file at path on top of the
// defaults. Environment variables in the file are expanded. Unknown keys are
// rejected so that typos do not pass silently.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read configuration file '%s': %w", path, err)
	}

	decoder := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("YAML syntax error in '%s': %w", path, err)
	}
	if _, err := newRefinement(cfg.Options()); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Options converts the configuration into engine options.
func (c Config) Options() Options {
	return Options{
		DataDir:           c.DataDir,
		SnapshotFilename:  c.SnapshotFile,
		JournalFilename:   c.JournalFile,
		Dimension:         c.Dimension,
		InitialLevel:      c.InitialLevel,
		Boundaries:        c.Boundaries,
		Variant:           c.Variant,
		MaxLevel:          c.MaxLevel,
		AutoSaveThreshold: c.AutoSaveThreshold,
	}
}
