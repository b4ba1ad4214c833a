package optimizer

import (
	"math"

	"github.com/tsawler/go-mgan/tensor"
)

// AdamConfig holds configuration for Adam optimizer
type AdamConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	WeightDecay  float64
}

// DefaultAdamConfig returns default Adam optimizer configuration
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// WGANAdamConfig is the setting commonly used for WGAN-GP: lr 1e-4, betas (0.5, 0.9).
func WGANAdamConfig() AdamConfig {
	config := DefaultAdamConfig()
	config.LearningRate = 1e-4
	config.Beta1 = 0.5
	config.Beta2 = 0.9
	return config
}

// Adam implements the Adam optimizer with bias-corrected moment estimates.
type Adam struct {
	base
	config AdamConfig
	m      map[*tensor.Tensor][]float64 // First moment estimates
	v      map[*tensor.Tensor][]float64 // Second moment estimates
}

func NewAdam(parameters []*tensor.Tensor, config AdamConfig) (*Adam, error) {
	adam := &Adam{
		config: config,
		m:      make(map[*tensor.Tensor][]float64),
		v:      make(map[*tensor.Tensor][]float64),
	}
	if err := adam.init(parameters, config.LearningRate); err != nil {
		return nil, err
	}
	return adam, nil
}

func (adam *Adam) Step() error {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	adam.stepCount++

	// Bias correction factors
	bias1 := 1.0 - math.Pow(adam.config.Beta1, float64(adam.stepCount))
	bias2 := 1.0 - math.Pow(adam.config.Beta2, float64(adam.stepCount))

	return adam.gradients(adam.config.WeightDecay, func(_ int, param *tensor.Tensor, g []float64) error {
		m, ok := adam.m[param]
		if !ok {
			m = make([]float64, len(g))
			adam.m[param] = m
		}
		v, ok := adam.v[param]
		if !ok {
			v = make([]float64, len(g))
			adam.v[param] = v
		}

		for j, gj := range g {
			m[j] = adam.config.Beta1*m[j] + (1-adam.config.Beta1)*gj
			v[j] = adam.config.Beta2*v[j] + (1-adam.config.Beta2)*gj*gj

			mHat := m[j] / bias1
			vHat := v[j] / bias2
			param.Data[j] -= adam.lr * mHat / (math.Sqrt(vHat) + adam.config.Epsilon)
		}
		return nil
	})
}
