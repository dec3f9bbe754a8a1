// Package config loads adaptest settings from a YAML file and ADAPTEST_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/adaptest/internal/selection"
	"github.com/abhisek/adaptest/internal/session"
	"github.com/abhisek/adaptest/internal/train"
)

var ErrInvalid = errors.New("invalid config")

// Config holds every setting the CLI needs.
type Config struct {
	Model  ModelConfig  `yaml:"model"`
	Train  train.Config `yaml:"train"`
	Update UpdateConfig `yaml:"update"`
	Test   TestConfig   `yaml:"test"`
	Store  StoreConfig  `yaml:"store"`
	Log    LogConfig    `yaml:"log"`
}

// ModelConfig shapes a freshly initialized model.
type ModelConfig struct {
	Dim  int    `yaml:"dim"`
	Seed uint64 `yaml:"seed"`
}

// UpdateConfig drives incremental ability updates during a test.
type UpdateConfig struct {
	train.Config `yaml:",inline"`

	// Mode is "all" or "last": which tested responses feed each update.
	Mode string `yaml:"mode"`
}

// TestConfig drives a simulated adaptive test.
type TestConfig struct {
	Length   int    `yaml:"length"`
	Strategy string `yaml:"strategy"`
	// UpdateEvery refits abilities every N rounds (0 = never).
	UpdateEvery int    `yaml:"update_every"`
	Workers     int    `yaml:"workers"`
	Seed        uint64 `yaml:"seed"`
	TopK        int    `yaml:"top_k"`
	// TrainFrac is the share of students used for calibration.
	TrainFrac float64 `yaml:"train_frac"`
}

// StoreConfig locates the checkpoint database. Empty uses the default path.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LogConfig selects the logger mode: "dev" or "prod".
type LogConfig struct {
	Mode string `yaml:"mode"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model: ModelConfig{Dim: 1, Seed: 42},
		Train: train.Config{
			LearningRate: 0.002,
			BatchSize:    32,
			NumEpochs:    8,
			Seed:         7,
			LogStep:      50,
		},
		Update: UpdateConfig{
			Config: train.Config{
				LearningRate: 0.002,
				BatchSize:    32,
				NumEpochs:    8,
				Seed:         7,
			},
			Mode: "all",
		},
		Test: TestConfig{
			Length:      20,
			Strategy:    selection.NameKLI,
			UpdateEvery: 1,
			Workers:     4,
			Seed:        11,
			TopK:        selection.DefaultTopK,
			TrainFrac:   0.8,
		},
		Log: LogConfig{Mode: "dev"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with any ADAPTEST_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if p := os.Getenv("ADAPTEST_DB"); p != "" {
		cfg.Store.Path = p
	}
	if s := os.Getenv("ADAPTEST_STRATEGY"); s != "" {
		cfg.Test.Strategy = s
	}
	if m := os.Getenv("ADAPTEST_LOG_MODE"); m != "" {
		cfg.Log.Mode = m
	}
	if d := os.Getenv("ADAPTEST_DIM"); d != "" {
		v, err := strconv.Atoi(d)
		if err != nil {
			return fmt.Errorf("%w: ADAPTEST_DIM: %w", ErrInvalid, err)
		}
		cfg.Model.Dim = v
	}
	if lr := os.Getenv("ADAPTEST_LEARNING_RATE"); lr != "" {
		v, err := strconv.ParseFloat(lr, 64)
		if err != nil {
			return fmt.Errorf("%w: ADAPTEST_LEARNING_RATE: %w", ErrInvalid, err)
		}
		cfg.Train.LearningRate = v
	}
	if ep := os.Getenv("ADAPTEST_EPOCHS"); ep != "" {
		v, err := strconv.Atoi(ep)
		if err != nil {
			return fmt.Errorf("%w: ADAPTEST_EPOCHS: %w", ErrInvalid, err)
		}
		cfg.Train.NumEpochs = v
	}
	return nil
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	if c.Model.Dim < 1 {
		return fmt.Errorf("%w: model.dim %d must be >= 1", ErrInvalid, c.Model.Dim)
	}
	if err := c.Train.Validate(); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	if err := c.Update.Config.Validate(); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if _, err := session.ParseTestedMode(c.Update.Mode); err != nil {
		return fmt.Errorf("%w: update.mode: %w", ErrInvalid, err)
	}
	if !slices.Contains(selection.Names, c.Test.Strategy) {
		return fmt.Errorf("%w: unknown strategy %q (want one of %v)", ErrInvalid, c.Test.Strategy, selection.Names)
	}
	switch {
	case c.Test.Length < 1:
		return fmt.Errorf("%w: test.length %d must be >= 1", ErrInvalid, c.Test.Length)
	case c.Test.UpdateEvery < 0:
		return fmt.Errorf("%w: test.update_every %d must be >= 0", ErrInvalid, c.Test.UpdateEvery)
	case c.Test.Workers < 1:
		return fmt.Errorf("%w: test.workers %d must be >= 1", ErrInvalid, c.Test.Workers)
	case c.Test.TopK < 1:
		return fmt.Errorf("%w: test.top_k %d must be >= 1", ErrInvalid, c.Test.TopK)
	case !(c.Test.TrainFrac > 0 && c.Test.TrainFrac < 1):
		return fmt.Errorf("%w: test.train_frac %g must be in (0, 1)", ErrInvalid, c.Test.TrainFrac)
	}
	switch c.Log.Mode {
	case "dev", "prod":
	default:
		return fmt.Errorf("%w: log.mode %q must be dev or prod", ErrInvalid, c.Log.Mode)
	}
	return nil
}

// TestedMode returns the parsed update mode. Validate guarantees it parses.
func (c Config) TestedMode() session.TestedMode {
	m, _ := session.ParseTestedMode(c.Update.Mode)
	return m
}
