package optimizer

import (
	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-mgan/tensor"
)

// SGDConfig holds configuration for SGD optimizer
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	Dampening    float64
	WeightDecay  float64
	Nesterov     bool
}

// DefaultSGDConfig returns default SGD optimizer configuration
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.0,
		Dampening:    0.0,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

// SGD implements stochastic gradient descent with optional momentum.
type SGD struct {
	base
	config     SGDConfig
	velocities map[*tensor.Tensor][]float64
}

func NewSGD(parameters []*tensor.Tensor, config SGDConfig) (*SGD, error) {
	sgd := &SGD{
		config:     config,
		velocities: make(map[*tensor.Tensor][]float64),
	}
	if err := sgd.init(parameters, config.LearningRate); err != nil {
		return nil, err
	}
	return sgd, nil
}

// Step applies p -= lr * d, where d is the gradient or, with momentum,
// v = momentum*v + (1-dampening)*g and d = v (or g + momentum*v for Nesterov).
func (sgd *SGD) Step() error {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	sgd.stepCount++
	return sgd.gradients(sgd.config.WeightDecay, func(_ int, param *tensor.Tensor, g []float64) error {
		if sgd.config.Momentum != 0 {
			v, ok := sgd.velocities[param]
			if !ok {
				// First step initializes the buffer with the raw gradient
				v = make([]float64, len(g))
				copy(v, g)
				sgd.velocities[param] = v
			} else {
				floats.Scale(sgd.config.Momentum, v)
				floats.AddScaled(v, 1-sgd.config.Dampening, g)
			}

			if sgd.config.Nesterov {
				floats.AddScaled(g, sgd.config.Momentum, v)
			} else {
				copy(g, v)
			}
		}

		floats.AddScaled(param.Data, -sgd.lr, g)
		return nil
	})
}
