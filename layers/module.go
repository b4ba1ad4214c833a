package layers

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tsawler/go-mgan/tensor"
)

// Module is an executable layer. Backward recomputes whatever it needs from
// the input, so modules keep no per-call state and can be shared between
// forward passes.
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	// Backward returns the gradient with respect to input and one gradient
	// per tensor returned by Parameters, in the same order.
	Backward(input, gradOutput *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
}

// Linear implements a fully connected layer: y = xW + b, with W of shape
// [inputSize, outputSize]. Inputs are flattened per sample.
type Linear struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
}

// NewLinear creates a Linear layer with Xavier/Glorot uniform weights and zero bias.
func NewLinear(inputSize, outputSize int, bias bool, device tensor.DeviceType, rng *rand.Rand) (*Linear, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	// W ~ U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))
	weightData := make([]float64, inputSize*outputSize)
	for i := range weightData {
		weightData[i] = (rng.Float64()*2.0 - 1.0) * bound
	}

	weight, err := tensor.NewTensor([]int{inputSize, outputSize}, device, weightData)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %v", err)
	}
	weight.SetRequiresGrad(true)

	linear := &Linear{weight: weight}
	if bias {
		b, err := tensor.Zeros([]int{outputSize}, device)
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %v", err)
		}
		b.SetRequiresGrad(true)
		linear.bias = b
	}
	return linear, nil
}

func (l *Linear) Weight() *tensor.Tensor { return l.weight }
func (l *Linear) Bias() *tensor.Tensor   { return l.bias }

func (l *Linear) flatten(input *tensor.Tensor) (*tensor.Tensor, error) {
	if input.SampleSize() != l.weight.Shape[0] {
		return nil, fmt.Errorf("input size mismatch: expected %d, got %d", l.weight.Shape[0], input.SampleSize())
	}
	return input.Reshape([]int{input.BatchSize(), l.weight.Shape[0]})
}

func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	x, err := l.flatten(input)
	if err != nil {
		return nil, err
	}
	output, err := tensor.MatMul(x, l.weight)
	if err != nil {
		return nil, fmt.Errorf("linear forward failed: %w", err)
	}
	if l.bias != nil {
		outSize := l.bias.Shape[0]
		for i := 0; i < output.Shape[0]; i++ {
			row := output.Data[i*outSize : (i+1)*outSize]
			for j := range row {
				row[j] += l.bias.Data[j]
			}
		}
	}
	return output, nil
}

// Backward: dW = xᵀ·gy, db = Σ_batch gy, dx = gy·Wᵀ.
func (l *Linear) Backward(input, gradOutput *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	x, err := l.flatten(input)
	if err != nil {
		return nil, nil, err
	}

	gradWeight, err := tensor.MatMulTransA(x, gradOutput)
	if err != nil {
		return nil, nil, fmt.Errorf("weight gradient failed: %w", err)
	}
	grads := []*tensor.Tensor{gradWeight}

	if l.bias != nil {
		gradBias, err := tensor.SumRows(gradOutput)
		if err != nil {
			return nil, nil, fmt.Errorf("bias gradient failed: %w", err)
		}
		grads = append(grads, gradBias)
	}

	gradInput, err := tensor.MatMulTransB(gradOutput, l.weight)
	if err != nil {
		return nil, nil, fmt.Errorf("input gradient failed: %w", err)
	}
	gradInput, err = gradInput.Reshape(input.Shape)
	if err != nil {
		return nil, nil, err
	}
	return gradInput, grads, nil
}

func (l *Linear) Parameters() []*tensor.Tensor {
	if l.bias != nil {
		return []*tensor.Tensor{l.weight, l.bias}
	}
	return []*tensor.Tensor{l.weight}
}

// activation is an element-wise module defined by f and its derivative f'(x).
type activation struct {
	name  string
	f     func(float64) float64
	deriv func(float64) float64
}

func (a *activation) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Apply(input, a.f), nil
}

func (a *activation) Backward(input, gradOutput *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	gradInput, err := tensor.Mul(gradOutput, tensor.Apply(input, a.deriv))
	if err != nil {
		return nil, nil, fmt.Errorf("%s backward failed: %w", a.name, err)
	}
	return gradInput, nil, nil
}

func (a *activation) Parameters() []*tensor.Tensor { return nil }

func NewReLU() Module {
	return &activation{
		name: "ReLU",
		f:    func(x float64) float64 { return math.Max(0, x) },
		deriv: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
	}
}

// NewLeakyReLU creates max(x, slope*x) for slope in [0, 1).
func NewLeakyReLU(negativeSlope float64) Module {
	return &activation{
		name: "LeakyReLU",
		f: func(x float64) float64 {
			if x > 0 {
				return x
			}
			return negativeSlope * x
		},
		deriv: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return negativeSlope
		},
	}
}

func NewTanh() Module {
	return &activation{
		name: "Tanh",
		f:    math.Tanh,
		deriv: func(x float64) float64 {
			t := math.Tanh(x)
			return 1 - t*t
		},
	}
}

func NewSigmoid() Module {
	return &activation{
		name: "Sigmoid",
		f:    sigmoid,
		deriv: func(x float64) float64 {
			s := sigmoid(x)
			return s * (1 - s)
		},
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// ReshapeModule reshapes each sample, keeping the batch dimension.
type ReshapeModule struct {
	shape []int
}

func NewReshape(shape []int) *ReshapeModule {
	s := make([]int, len(shape))
	copy(s, shape)
	return &ReshapeModule{shape: s}
}

func (r *ReshapeModule) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return input.Reshape(append([]int{input.BatchSize()}, r.shape...))
}

func (r *ReshapeModule) Backward(input, gradOutput *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	gradInput, err := gradOutput.Reshape(input.Shape)
	if err != nil {
		return nil, nil, err
	}
	return gradInput, nil, nil
}

func (r *ReshapeModule) Parameters() []*tensor.Tensor { return nil }

// Sequential chains modules.
type Sequential struct {
	modules []Module
}

func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

func (s *Sequential) Add(module Module) *Sequential {
	s.modules = append(s.modules, module)
	return s
}

func (s *Sequential) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	output := input
	for i, module := range s.modules {
		var err error
		output, err = module.Forward(output)
		if err != nil {
			return nil, fmt.Errorf("module %d forward failed: %w", i, err)
		}
	}
	return output, nil
}

// Backward replays the forward pass to collect layer inputs, then runs the
// chain rule from the last module to the first.
func (s *Sequential) Backward(input, gradOutput *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	inputs := make([]*tensor.Tensor, len(s.modules))
	current := input
	for i, module := range s.modules {
		inputs[i] = current
		next, err := module.Forward(current)
		if err != nil {
			return nil, nil, fmt.Errorf("module %d forward failed: %w", i, err)
		}
		current = next
	}

	perModule := make([][]*tensor.Tensor, len(s.modules))
	grad := gradOutput
	for i := len(s.modules) - 1; i >= 0; i-- {
		gradInput, paramGrads, err := s.modules[i].Backward(inputs[i], grad)
		if err != nil {
			return nil, nil, fmt.Errorf("module %d backward failed: %w", i, err)
		}
		perModule[i] = paramGrads
		grad = gradInput
	}

	var grads []*tensor.Tensor
	for _, g := range perModule {
		grads = append(grads, g...)
	}
	return grad, grads, nil
}

func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

func (s *Sequential) Len() int { return len(s.modules) }

// Build instantiates a compiled spec. Weights are drawn from rng.
func (ms *ModelSpec) Build(device tensor.DeviceType, rng *rand.Rand) (*Sequential, error) {
	if !ms.Compiled {
		return nil, fmt.Errorf("model spec must be compiled before building")
	}

	seq := NewSequential()
	for i, layer := range ms.Layers {
		var module Module
		switch layer.Type {
		case Dense:
			linear, err := NewLinear(numElements(layer.InputShape), layer.Units, layer.UseBias, device, rng)
			if err != nil {
				return nil, fmt.Errorf("layer %d (%s): %v", i, layer.Name, err)
			}
			module = linear
		case ReLU:
			module = NewReLU()
		case LeakyReLU:
			module = NewLeakyReLU(layer.NegativeSlope)
		case Tanh:
			module = NewTanh()
		case Sigmoid:
			module = NewSigmoid()
		case Reshape:
			module = NewReshape(layer.OutputShape)
		default:
			return nil, fmt.Errorf("layer %d (%s): unsupported layer type %s", i, layer.Name, layer.Type)
		}
		seq.Add(module)
	}
	return seq, nil
}
