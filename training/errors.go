package training

import (
	"github.com/pkg/errors"
)

var (
	// ErrBatchNotDivisible is returned when a real batch cannot be split evenly across the generators.
	ErrBatchNotDivisible = errors.New("batch size is not divisible by the number of generators")
	// ErrOptimizerCount is returned when the number of generator optimizers differs from the number of generators.
	ErrOptimizerCount = errors.New("one optimizer per generator is required")
	// ErrNonFinite is returned when a loss or penalty evaluates to NaN or Inf.
	ErrNonFinite = errors.New("non-finite loss value")
	ErrNoGenerators = errors.New("at least one generator is required")
	ErrInvalidConfig = errors.New("invalid trainer configuration")
	// ErrNotDifferentiable is returned when the diversity term must be backpropagated
	// through a classifier that exposes no input gradient.
	ErrNotDifferentiable = errors.New("classifier does not expose input gradients")
)
