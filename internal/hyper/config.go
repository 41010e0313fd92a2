package hyper

import (
	"fmt"
	"strconv"
	"strings"
)

// Config holds the training hyperparameters for a single run. The trainer
// consumes these as one flat --hpconfig string; values are passed through
// verbatim, so formatting must match what the trainer's parser expects.
type Config struct {
	// Depth is the number of stochastic layers in the model
	Depth int

	// NumBlocks is the number of residual blocks per layer
	NumBlocks int

	// KLMin is the free-bits floor on the KL divergence term
	KLMin float64

	// LearningRate for the Adamax optimizer
	LearningRate float64

	// BatchSize per training step
	BatchSize int

	// EnableIAF toggles inverse autoregressive flow posteriors
	EnableIAF bool

	// Dataset name, e.g. "cifar10"
	Dataset string
}

// Default returns the hyperparameters used by the reference experiment.
func Default() Config {
	return Config{
		Depth:        1,
		NumBlocks:    24,
		KLMin:        0.1,
		LearningRate: 0.002,
		BatchSize:    32,
		EnableIAF:    false,
		Dataset:      "cifar10",
	}
}

// String encodes the config as the comma-separated key=value string the
// trainer's --hpconfig flag expects. Key order is fixed; booleans render in
// the trainer's Python style ("True"/"False").
func (c Config) String() string {
	pairs := []string{
		"depth=" + strconv.Itoa(c.Depth),
		"num_blocks=" + strconv.Itoa(c.NumBlocks),
		"kl_min=" + formatFloat(c.KLMin),
		"learning_rate=" + formatFloat(c.LearningRate),
		"batch_size=" + strconv.Itoa(c.BatchSize),
		"enable_iaf=" + formatBool(c.EnableIAF),
		"dataset=" + c.Dataset,
	}
	return strings.Join(pairs, ",")
}

// Parse inverts String. Unknown keys are rejected so typos surface here
// rather than as silently ignored settings downstream.
func Parse(s string) (Config, error) {
	var c Config
	if s == "" {
		return c, fmt.Errorf("empty hyperparameter string")
	}

	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return c, fmt.Errorf("malformed hyperparameter %q (want key=value)", pair)
		}

		var err error
		switch key {
		case "depth":
			c.Depth, err = strconv.Atoi(value)
		case "num_blocks":
			c.NumBlocks, err = strconv.Atoi(value)
		case "kl_min":
			c.KLMin, err = strconv.ParseFloat(value, 64)
		case "learning_rate":
			c.LearningRate, err = strconv.ParseFloat(value, 64)
		case "batch_size":
			c.BatchSize, err = strconv.Atoi(value)
		case "enable_iaf":
			c.EnableIAF, err = parseBool(value)
		case "dataset":
			c.Dataset = value
		default:
			return c, fmt.Errorf("unknown hyperparameter key %q", key)
		}
		if err != nil {
			return c, fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}

	return c, nil
}

// Validate checks range sanity before a config is encoded. The launcher never
// clamps or rewrites values; a bad config is rejected outright.
func (c Config) Validate() error {
	if c.Depth < 1 {
		return fmt.Errorf("depth must be >= 1, got %d", c.Depth)
	}
	if c.NumBlocks < 1 {
		return fmt.Errorf("num_blocks must be >= 1, got %d", c.NumBlocks)
	}
	if c.KLMin < 0 {
		return fmt.Errorf("kl_min must be >= 0, got %v", c.KLMin)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0, got %v", c.LearningRate)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1, got %d", c.BatchSize)
	}
	if c.Dataset == "" {
		return fmt.Errorf("dataset must not be empty")
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseBool(s string) (bool, error) {
	switch s {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}
