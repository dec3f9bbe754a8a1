package train

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid training config")

// Config holds the optimizer settings shared by batch fitting, incremental
// updates and the counterfactual steps of expected model change.
type Config struct {
	LearningRate float64 `yaml:"learning_rate"`
	BatchSize    int     `yaml:"batch_size"`
	NumEpochs    int     `yaml:"num_epochs"`

	// Seed drives mini-batch shuffling. Equal seeds give equal runs.
	Seed uint64 `yaml:"seed"`

	// LogStep logs the running loss every LogStep batches (0 = per epoch only).
	LogStep int `yaml:"log_step"`
}

// DefaultConfig returns the settings used by the CLI when nothing is configured.
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.002,
		BatchSize:    32,
		NumEpochs:    8,
		Seed:         1,
	}
}

// Validate rejects settings that cannot drive an optimizer.
func (c Config) Validate() error {
	switch {
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning_rate %g must be > 0", ErrInvalidConfig, c.LearningRate)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch_size %d must be >= 1", ErrInvalidConfig, c.BatchSize)
	case c.NumEpochs < 1:
		return fmt.Errorf("%w: num_epochs %d must be >= 1", ErrInvalidConfig, c.NumEpochs)
	case c.LogStep < 0:
		return fmt.Errorf("%w: log_step %d must be >= 0", ErrInvalidConfig, c.LogStep)
	}
	return nil
}
