package optimizer

import (
	"fmt"
	"sync"

	"github.com/tsawler/go-mgan/tensor"
)

// Optimizer defines the common interface for all optimizers. An optimizer is
// bound to a fixed parameter list at construction and reads each parameter's
// accumulated gradient on Step.
type Optimizer interface {
	// Step performs a single optimization step
	Step() error

	// ZeroGrad clears the gradients of the bound parameters
	ZeroGrad()

	GetLR() float64
	SetLR(lr float64)

	// GetStepCount returns the current optimization step number
	GetStepCount() uint64

	Parameters() []*tensor.Tensor
}

// base holds the state every optimizer shares.
type base struct {
	parameters []*tensor.Tensor
	lr         float64
	stepCount  uint64
	mutex      sync.RWMutex
}

func (b *base) init(parameters []*tensor.Tensor, lr float64) error {
	if lr <= 0 {
		return fmt.Errorf("learning rate must be positive, got %v", lr)
	}
	b.parameters = make([]*tensor.Tensor, len(parameters))
	copy(b.parameters, parameters)
	b.lr = lr
	return nil
}

func (b *base) ZeroGrad() {
	tensor.ZeroGrad(b.parameters)
}

func (b *base) GetLR() float64 {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.lr
}

func (b *base) SetLR(lr float64) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.lr = lr
}

func (b *base) GetStepCount() uint64 {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.stepCount
}

func (b *base) Parameters() []*tensor.Tensor {
	return b.parameters
}

// gradients yields the parameters that take part in a step, with their
// gradient after optional L2 weight decay. The returned slice is scratch
// space the caller may modify.
func (b *base) gradients(weightDecay float64, fn func(i int, param *tensor.Tensor, grad []float64) error) error {
	for i, param := range b.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}
		grad := param.Grad()
		if grad.Device != param.Device {
			return fmt.Errorf("parameter %d: %w: gradient on %s, parameter on %s", i, tensor.ErrDeviceMismatch, grad.Device, param.Device)
		}

		g := make([]float64, len(grad.Data))
		copy(g, grad.Data)
		if weightDecay > 0 {
			// grad = grad + weight_decay * param
			for j, p := range param.Data {
				g[j] += weightDecay * p
			}
		}
		if err := fn(i, param, g); err != nil {
			return err
		}
	}
	return nil
}
