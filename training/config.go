package training

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/tsawler/go-mgan/tensor"
)

// Config holds the trainer hyperparameters.
type Config struct {
	GradientPenaltyWeight float64 `json:"gradient_penalty_weight"`

	// DiversityWeight scales the pairwise classifier-disagreement term; 0 disables it.
	DiversityWeight float64 `json:"diversity_weight"`
	// DiversityInLoss adds DiversityWeight*(1-delta) to every generator loss
	// and backpropagates it. When false, delta is only recorded.
	DiversityInLoss bool `json:"diversity_in_loss"`

	CriticIterations int `json:"critic_iterations"`
	// LogInterval is the number of batches between progress prints; 0 disables them.
	LogInterval int `json:"log_interval"`

	Device tensor.DeviceType `json:"device"`

	// PenaltyDifferenceStep is the perturbation used for the penalty's parameter gradient.
	PenaltyDifferenceStep float64 `json:"penalty_difference_step"`

	// HistoryCapacity bounds the values kept in memory per loss series; 0 keeps everything.
	HistoryCapacity int `json:"history_capacity"`

	OutputDir        string     `json:"output_dir"`
	SaveTrainingGIF  bool       `json:"save_training_gif"`
	FixedLatentCount int        `json:"fixed_latent_count"`
	Grid             GridConfig `json:"grid"`

	Seed int64 `json:"seed"`
}

// DefaultConfig returns the standard WGAN-GP settings.
func DefaultConfig() Config {
	return Config{
		GradientPenaltyWeight: 10,
		DiversityWeight:       0,
		DiversityInLoss:       false,
		CriticIterations:      5,
		LogInterval:           50,
		Device:                tensor.CPU,
		PenaltyDifferenceStep: 1e-3,
		HistoryCapacity:       0,
		OutputDir:             "./imgs_generated",
		SaveTrainingGIF:       false,
		FixedLatentCount:      64,
		Grid:                  DefaultGridConfig(),
		Seed:                  1,
	}
}

// Validate checks the configuration, wrapping ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.GradientPenaltyWeight < 0:
		return errors.Wrapf(ErrInvalidConfig, "gradient penalty weight must be non-negative, got %v", c.GradientPenaltyWeight)
	case c.DiversityWeight < 0:
		return errors.Wrapf(ErrInvalidConfig, "diversity weight must be non-negative, got %v", c.DiversityWeight)
	case c.CriticIterations < 1:
		return errors.Wrapf(ErrInvalidConfig, "critic iterations must be at least 1, got %d", c.CriticIterations)
	case c.LogInterval < 0:
		return errors.Wrapf(ErrInvalidConfig, "log interval must be non-negative, got %d", c.LogInterval)
	case c.Device != tensor.CPU && c.Device != tensor.GPU:
		return errors.Wrapf(ErrInvalidConfig, "unknown device %d", int(c.Device))
	case c.PenaltyDifferenceStep <= 0:
		return errors.Wrapf(ErrInvalidConfig, "penalty difference step must be positive, got %v", c.PenaltyDifferenceStep)
	case c.HistoryCapacity < 0:
		return errors.Wrapf(ErrInvalidConfig, "history capacity must be non-negative, got %d", c.HistoryCapacity)
	case c.SaveTrainingGIF && c.FixedLatentCount < 1:
		return errors.Wrapf(ErrInvalidConfig, "fixed latent count must be positive when saving GIFs, got %d", c.FixedLatentCount)
	case c.SaveTrainingGIF && c.OutputDir == "":
		return errors.Wrap(ErrInvalidConfig, "output directory is required when saving GIFs")
	}
	if c.SaveTrainingGIF {
		if err := c.Grid.Validate(); err != nil {
			return errors.Wrap(ErrInvalidConfig, err.Error())
		}
	}
	return nil
}

// LoadConfig reads a JSON file over DefaultConfig. Fields absent from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return config, errors.Wrapf(err, "reading config %s", path)
	}
	if err := json.Unmarshal(raw, &config); err != nil {
		return config, errors.Wrapf(err, "parsing config %s", path)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}
