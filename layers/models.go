package layers

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-mgan/tensor"
)

// Generator maps latent vectors drawn from N(0, 1) to samples.
type Generator struct {
	net       *Sequential
	latentDim int
	rng       *rand.Rand
}

// NewGenerator builds a generator from a compiled spec whose input shape is
// the latent dimension, e.g. [100].
func NewGenerator(spec *ModelSpec, device tensor.DeviceType, rng *rand.Rand) (*Generator, error) {
	if len(spec.InputShape) != 1 {
		return nil, fmt.Errorf("generator input shape must be [latent_dim], got %v", spec.InputShape)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	net, err := spec.Build(device, rng)
	if err != nil {
		return nil, err
	}
	return &Generator{net: net, latentDim: spec.InputShape[0], rng: rng}, nil
}

func (g *Generator) LatentDim() int { return g.latentDim }

// SampleLatent draws n standard normal latent vectors on device.
func (g *Generator) SampleLatent(n int, device tensor.DeviceType) (*tensor.Tensor, error) {
	return tensor.RandomNormal([]int{n, g.latentDim}, 0, 1, device, g.rng)
}

func (g *Generator) Forward(z *tensor.Tensor) (*tensor.Tensor, error) {
	return g.net.Forward(z)
}

func (g *Generator) VJP(z, cotangent *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	return g.net.Backward(z, cotangent)
}

func (g *Generator) Parameters() []*tensor.Tensor {
	return g.net.Parameters()
}

// Critic scores samples with an unbounded real value per example.
type Critic struct {
	net *Sequential
}

// NewCritic builds a critic from a compiled spec with a single output unit.
func NewCritic(spec *ModelSpec, device tensor.DeviceType, rng *rand.Rand) (*Critic, error) {
	if numElements(spec.OutputShape) != 1 {
		return nil, fmt.Errorf("critic must produce one score per sample, got output shape %v", spec.OutputShape)
	}
	net, err := spec.Build(device, rng)
	if err != nil {
		return nil, err
	}
	return &Critic{net: net}, nil
}

// Forward returns a [B] tensor of scores.
func (c *Critic) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := c.net.Forward(x)
	if err != nil {
		return nil, err
	}
	return out.Reshape([]int{x.BatchSize()})
}

// VJP takes a [B] cotangent on the scores.
func (c *Critic) VJP(x, cotangent *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	cot, err := cotangent.Reshape([]int{cotangent.NumElems, 1})
	if err != nil {
		return nil, nil, err
	}
	return c.net.Backward(x, cot)
}

func (c *Critic) Parameters() []*tensor.Tensor {
	return c.net.Parameters()
}

// Classifier produces [B, K] logits. It is treated as frozen: gradients flow
// to its input only.
type Classifier struct {
	net *Sequential
}

func NewClassifier(spec *ModelSpec, device tensor.DeviceType, rng *rand.Rand) (*Classifier, error) {
	if len(spec.OutputShape) != 1 {
		return nil, fmt.Errorf("classifier must produce [classes] logits, got output shape %v", spec.OutputShape)
	}
	net, err := spec.Build(device, rng)
	if err != nil {
		return nil, err
	}
	return &Classifier{net: net}, nil
}

func (c *Classifier) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return c.net.Forward(x)
}

func (c *Classifier) InputGradient(x, cotangent *tensor.Tensor) (*tensor.Tensor, error) {
	gradInput, _, err := c.net.Backward(x, cotangent)
	return gradInput, err
}

func (c *Classifier) Parameters() []*tensor.Tensor {
	return c.net.Parameters()
}

// MLPGeneratorSpec is a small fully connected generator producing
// [channels, height, width] images in [-1, 1].
func MLPGeneratorSpec(latentDim, hidden, channels, height, width int) (*ModelSpec, error) {
	return NewModelBuilder([]int{latentDim}).
		AddDense(hidden, true, "fc1").
		AddReLU("relu1").
		AddDense(hidden, true, "fc2").
		AddReLU("relu2").
		AddDense(channels*height*width, true, "out").
		AddTanh("tanh").
		AddReshape([]int{channels, height, width}, "image").
		Compile()
}

// MLPCriticSpec is a fully connected critic over [channels, height, width] images.
func MLPCriticSpec(hidden, channels, height, width int) (*ModelSpec, error) {
	return NewModelBuilder([]int{channels, height, width}).
		AddDense(hidden, true, "fc1").
		AddLeakyReLU(0.2, "lrelu1").
		AddDense(hidden, true, "fc2").
		AddLeakyReLU(0.2, "lrelu2").
		AddDense(1, true, "score").
		Compile()
}

// MLPClassifierSpec is a fully connected classifier producing classes logits.
func MLPClassifierSpec(hidden, classes, channels, height, width int) (*ModelSpec, error) {
	return NewModelBuilder([]int{channels, height, width}).
		AddDense(hidden, true, "fc1").
		AddReLU("relu1").
		AddDense(classes, true, "logits").
		Compile()
}
