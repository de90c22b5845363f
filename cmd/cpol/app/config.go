package app

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/zssherman/cpol-processing/internal/pipeline"
	"github.com/zssherman/cpol-processing/internal/quicklook"
)

// productionVersion names the output layout revision; bump it when the
// processing chain changes enough that old outputs must not be mixed in.
const productionVersion = "v1"

// Config represents the main application configuration
type Config struct {
	Settings  Settings            `yaml:"settings"`
	Fields    pipeline.FieldNames `yaml:"fields"`
	Paths     PathsConfig         `yaml:"paths"`
	Quicklook QuicklookConfig     `yaml:"quicklook"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel           string `yaml:"logLevel"`
	Instrument         string `yaml:"instrument"`
	Workers            int    `yaml:"workers"`
	SoundingConstraint bool   `yaml:"soundingConstraint"`
}

// Level parses the configured log level, defaulting to info.
func (s Settings) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// PathsConfig represents filesystem settings
type PathsConfig struct {
	InputDir  string `yaml:"inputDir"`
	OutputDir string `yaml:"outputDir"`
	CatalogDB string `yaml:"catalogDb"`
}

// QuicklookConfig represents optional per-volume quicklook rendering
type QuicklookConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Field    string `yaml:"field"`
	Sweep    int    `yaml:"sweep"`
	Theme    string `yaml:"theme"`
	FontPath string `yaml:"fontPath"`
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := Config{
		Settings: Settings{
			Instrument: "CPOL",
			Workers:    runtime.NumCPU(),
		},
		Quicklook: QuicklookConfig{
			Field: "reflectivity",
			Theme: string(quicklook.ClassicTheme),
		},
	}
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if config.Paths.InputDir == "" {
		return nil, fmt.Errorf("paths.inputDir is required")
	}
	if config.Paths.OutputDir == "" {
		return nil, fmt.Errorf("paths.outputDir is required")
	}
	if config.Settings.Workers <= 0 {
		config.Settings.Workers = runtime.NumCPU()
	}
	if config.Quicklook.Enabled && config.Quicklook.FontPath == "" {
		return nil, fmt.Errorf("quicklook.fontPath is required when quicklooks are enabled")
	}

	return &config, nil
}
