// Package config holds the tool settings of lensmount. Settings are layered:
// defaults, then an optional YAML file, then LENSMOUNT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LENSMOUNT_"

// FileEnv names the environment variable pointing at a settings file.
const FileEnv = EnvPrefix + "CONFIG"

// Settings contains process configuration.
type Settings struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DataDir is the root of the run store.
	DataDir string `koanf:"data_dir"`

	// Addr is the HTTP listen address of the server.
	Addr string `koanf:"addr"`

	// Backend selects the optical model: sim or bridge.
	Backend string `koanf:"backend"`

	// BridgeCommand starts the automation bridge, split on spaces.
	BridgeCommand string `koanf:"bridge_command"`

	// AxisType selects which measured axis data is applied.
	AxisType string `koanf:"axis_type"`

	// MaxTuples refuses configurations that would enumerate more raw tuples.
	MaxTuples int `koanf:"max_tuples"`

	// Simulated model optimiser.
	Iterations int   `koanf:"iterations"`
	Population int   `koanf:"population"`
	Seed       int64 `koanf:"seed"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		LogLevel:   "info",
		DataDir:    "./data",
		Addr:       "localhost:8080",
		Backend:    "sim",
		AxisType:   "OPTICAL",
		MaxTuples:  1_000_000,
		Iterations: 50,
		Population: 20,
		Seed:       42,
	}
}

// Load builds Settings by layering defaults, a YAML file and env vars.
// Order of precedence (low -> high):
//  1. defaults
//  2. path, or the file named by LENSMOUNT_CONFIG when path is empty
//  3. env (prefix LENSMOUNT_), e.g. LENSMOUNT_DATA_DIR
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load settings %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	s := *Default()
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings for values that cannot work.
func (s *Settings) Validate() error {
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", s.LogLevel)
	}
	switch s.Backend {
	case "sim":
	case "bridge":
		if strings.TrimSpace(s.BridgeCommand) == "" {
			return errors.New("bridge backend requires bridge_command")
		}
	default:
		return fmt.Errorf("invalid backend %q (want sim or bridge)", s.Backend)
	}
	if s.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if s.AxisType == "" {
		return errors.New("axis_type must not be empty")
	}
	if s.MaxTuples <= 0 {
		return fmt.Errorf("max_tuples must be positive, got %d", s.MaxTuples)
	}
	if s.Iterations <= 0 || s.Population <= 0 {
		return fmt.Errorf("iterations and population must be positive")
	}
	return nil
}

// BridgeArgs splits BridgeCommand into the program and its arguments.
func (s *Settings) BridgeArgs() (string, []string) {
	fields := strings.Fields(s.BridgeCommand)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
