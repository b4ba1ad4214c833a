package optimizer

import (
	"math"

	"github.com/tsawler/go-mgan/tensor"
)

// RMSPropConfig holds configuration for RMSProp optimizer
type RMSPropConfig struct {
	LearningRate float64
	Alpha        float64 // Smoothing constant for the squared-gradient average
	Epsilon      float64
	WeightDecay  float64
	Momentum     float64
	Centered     bool // Normalize by the estimated gradient variance
}

// DefaultRMSPropConfig returns default RMSProp optimizer configuration
func DefaultRMSPropConfig() RMSPropConfig {
	return RMSPropConfig{
		LearningRate: 0.01,
		Alpha:        0.99,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
		Momentum:     0.0,
		Centered:     false,
	}
}

type rmsPropState struct {
	squareAvg []float64
	gradAvg   []float64
	buffer    []float64
}

// RMSProp implements the RMSProp optimizer.
type RMSProp struct {
	base
	config RMSPropConfig
	state  map[*tensor.Tensor]*rmsPropState
}

func NewRMSProp(parameters []*tensor.Tensor, config RMSPropConfig) (*RMSProp, error) {
	r := &RMSProp{
		config: config,
		state:  make(map[*tensor.Tensor]*rmsPropState),
	}
	if err := r.init(parameters, config.LearningRate); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RMSProp) Step() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.stepCount++
	alpha := r.config.Alpha

	return r.gradients(r.config.WeightDecay, func(_ int, param *tensor.Tensor, g []float64) error {
		s, ok := r.state[param]
		if !ok {
			s = &rmsPropState{
				squareAvg: make([]float64, len(g)),
				gradAvg:   make([]float64, len(g)),
				buffer:    make([]float64, len(g)),
			}
			r.state[param] = s
		}

		for j, gj := range g {
			s.squareAvg[j] = alpha*s.squareAvg[j] + (1-alpha)*gj*gj

			avg := s.squareAvg[j]
			if r.config.Centered {
				s.gradAvg[j] = alpha*s.gradAvg[j] + (1-alpha)*gj
				avg -= s.gradAvg[j] * s.gradAvg[j]
			}
			denom := math.Sqrt(avg) + r.config.Epsilon

			if r.config.Momentum > 0 {
				s.buffer[j] = r.config.Momentum*s.buffer[j] + gj/denom
				param.Data[j] -= r.lr * s.buffer[j]
			} else {
				param.Data[j] -= r.lr * gj / denom
			}
		}
		return nil
	})
}
