package training

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/tsawler/go-mgan/tensor"
)

// penaltyEpsilon stabilizes the gradient norm used by the penalty.
const penaltyEpsilon = 1e-12

// PenaltyResult carries the gradient penalty and the intermediate values
// needed for its parameter gradient and diagnostics.
type PenaltyResult struct {
	Penalty float64
	// GradientNorm is the mean per-example gradient norm, without epsilon.
	GradientNorm float64

	Interpolated   *tensor.Tensor
	InputGradients *tensor.Tensor
	// Norms holds sqrt(‖gᵢ‖² + 1e-12) per example.
	Norms []float64
}

// GradientPenalty evaluates weight·mean((‖∇D(x̂)‖ − 1)²) on random
// interpolates x̂ = α·real + (1−α)·generated, one α ~ U[0, 1) per example.
// It records nothing; callers decide what to log.
func GradientPenalty(critic Critic, real, generated *tensor.Tensor, weight float64, rng *rand.Rand) (*PenaltyResult, error) {
	if !tensor.SameShape(real, generated) {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "real %v vs generated %v", real.Shape, generated.Shape)
	}
	if err := tensor.CheckDevice(real.Device, generated); err != nil {
		return nil, errors.Wrap(err, "gradient penalty inputs")
	}
	if rng == nil {
		return nil, errors.New("gradient penalty requires a random source")
	}

	batch := real.BatchSize()
	interpolated := tensor.ZerosLike(real)
	for i := 0; i < batch; i++ {
		alpha := rng.Float64()
		out := interpolated.Row(i)
		r, g := real.Row(i), generated.Row(i)
		for j := range out {
			out[j] = alpha*r[j] + (1-alpha)*g[j]
		}
	}

	ones, err := tensor.Ones([]int{batch}, real.Device)
	if err != nil {
		return nil, err
	}
	inputGrads, _, err := critic.VJP(interpolated, ones)
	if err != nil {
		return nil, errors.Wrap(err, "critic input gradient")
	}

	raw := tensor.RowNorms(inputGrads)
	norms := make([]float64, batch)
	var normSum, penaltySum float64
	for i, n := range raw {
		normSum += n
		norms[i] = math.Sqrt(n*n + penaltyEpsilon)
		d := norms[i] - 1
		penaltySum += d * d
	}

	return &PenaltyResult{
		Penalty:        weight * penaltySum / float64(batch),
		GradientNorm:   normSum / float64(batch),
		Interpolated:   interpolated,
		InputGradients: inputGrads,
		Norms:          norms,
	}, nil
}

// PenaltyParameterGradients returns the gradient of the penalty with respect
// to the critic parameters. With vᵢ = (2w/B)·(nᵢ−1)/nᵢ·gᵢ this is the
// parameter gradient of Σ⟨vᵢ, ∇ₓD(x̂ᵢ)⟩, taken as a central difference of
// first-order parameter gradients at x̂ ± h·v. The difference is exact when
// the critic is affine in its input.
func PenaltyParameterGradients(critic Critic, result *PenaltyResult, weight, step float64) ([]*tensor.Tensor, error) {
	params := critic.Parameters()
	zeros := func() []*tensor.Tensor {
		grads := make([]*tensor.Tensor, len(params))
		for i, p := range params {
			grads[i] = tensor.ZerosLike(p)
		}
		return grads
	}

	batch := result.Interpolated.BatchSize()
	coeffs := make([]float64, batch)
	for i, n := range result.Norms {
		coeffs[i] = 2 * weight / float64(batch) * (n - 1) / n
	}
	direction, err := tensor.ScaleRows(result.InputGradients, coeffs)
	if err != nil {
		return nil, err
	}

	scale := tensor.MaxAbs(direction)
	if scale == 0 {
		return zeros(), nil
	}
	h := step / scale

	plus, err := tensor.AddScaled(result.Interpolated, h, direction)
	if err != nil {
		return nil, err
	}
	minus, err := tensor.AddScaled(result.Interpolated, -h, direction)
	if err != nil {
		return nil, err
	}

	ones, err := tensor.Ones([]int{batch}, result.Interpolated.Device)
	if err != nil {
		return nil, err
	}
	_, gradsPlus, err := critic.VJP(plus, ones)
	if err != nil {
		return nil, errors.Wrap(err, "critic gradient at x̂+hv")
	}
	_, gradsMinus, err := critic.VJP(minus, ones)
	if err != nil {
		return nil, errors.Wrap(err, "critic gradient at x̂-hv")
	}
	if len(gradsPlus) != len(params) || len(gradsMinus) != len(params) {
		return nil, errors.Errorf("critic returned %d/%d gradients for %d parameters", len(gradsPlus), len(gradsMinus), len(params))
	}

	grads := make([]*tensor.Tensor, len(params))
	for k := range params {
		diff, err := tensor.Sub(gradsPlus[k], gradsMinus[k])
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %d", k)
		}
		grads[k] = tensor.Scale(diff, 1/(2*h))
	}
	return grads, nil
}
