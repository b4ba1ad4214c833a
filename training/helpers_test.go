package training

import (
	"math"
	"math/rand"

	"github.com/tsawler/go-mgan/optimizer"
	"github.com/tsawler/go-mgan/tensor"
)

// constGenerator ignores its latent input and emits the same image, its
// only parameter, for every sample.
type constGenerator struct {
	image     *tensor.Tensor
	latentDim int
	rng       *rand.Rand
	forwards  int
}

func newConstGenerator(value float64, shape ...int) *constGenerator {
	img, _ := tensor.Full(shape, value, tensor.CPU)
	img.SetRequiresGrad(true)
	return &constGenerator{image: img, latentDim: 2, rng: rand.New(rand.NewSource(11))}
}

func (g *constGenerator) SampleLatent(n int, device tensor.DeviceType) (*tensor.Tensor, error) {
	return tensor.RandomNormal([]int{n, g.latentDim}, 0, 1, device, g.rng)
}

func (g *constGenerator) Forward(z *tensor.Tensor) (*tensor.Tensor, error) {
	g.forwards++
	n := z.BatchSize()
	out, err := tensor.Zeros(append([]int{n}, g.image.Shape...), g.image.Device)
	if err != nil {
		return nil, err
	}
	if err := tensor.CheckDevice(g.image.Device, z); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		copy(out.Row(i), g.image.Data)
	}
	return out, nil
}

func (g *constGenerator) VJP(z, cotangent *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	grad := tensor.ZerosLike(g.image)
	for i := 0; i < cotangent.BatchSize(); i++ {
		for j, v := range cotangent.Row(i) {
			grad.Data[j] += v
		}
	}
	return tensor.ZerosLike(z), []*tensor.Tensor{grad}, nil
}

func (g *constGenerator) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{g.image}
}

// affineCritic scores D(x) = ⟨w, x⟩ + c.
type affineCritic struct {
	w, c   *tensor.Tensor
	inputs [][]int
}

func newAffineCritic(weights []float64, bias float64) *affineCritic {
	w, _ := tensor.NewTensor([]int{len(weights)}, tensor.CPU, append([]float64(nil), weights...))
	c, _ := tensor.NewTensor([]int{1}, tensor.CPU, []float64{bias})
	w.SetRequiresGrad(true)
	c.SetRequiresGrad(true)
	return &affineCritic{w: w, c: c}
}

func (a *affineCritic) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	a.inputs = append(a.inputs, append([]int(nil), x.Shape...))
	if err := tensor.CheckDevice(a.w.Device, x); err != nil {
		return nil, err
	}
	out, _ := tensor.Zeros([]int{x.BatchSize()}, x.Device)
	for i := range out.Data {
		s := a.c.Data[0]
		for j, v := range x.Row(i) {
			s += a.w.Data[j] * v
		}
		out.Data[i] = s
	}
	return out, nil
}

func (a *affineCritic) VJP(x, cotangent *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	gx := tensor.ZerosLike(x)
	gw := tensor.ZerosLike(a.w)
	gc := tensor.ZerosLike(a.c)
	for i, ci := range cotangent.Data {
		row := x.Row(i)
		out := gx.Row(i)
		for j := range row {
			out[j] = ci * a.w.Data[j]
			gw.Data[j] += ci * row[j]
		}
		gc.Data[0] += ci
	}
	return gx, []*tensor.Tensor{gw, gc}, nil
}

func (a *affineCritic) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{a.w, a.c}
}

// nanCritic scores everything NaN.
type nanCritic struct{ *affineCritic }

func (n nanCritic) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Full([]int{x.BatchSize()}, math.NaN(), x.Device)
}

// meanClassifier has two logits per sample: (mean, -mean). It does not
// expose input gradients.
type meanClassifier struct{}

func (meanClassifier) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, _ := tensor.Zeros([]int{x.BatchSize(), 2}, x.Device)
	for i := 0; i < x.BatchSize(); i++ {
		m := 0.0
		for _, v := range x.Row(i) {
			m += v
		}
		m /= float64(x.SampleSize())
		out.Data[2*i] = m
		out.Data[2*i+1] = -m
	}
	return out, nil
}

// linearClassifier computes logits = x·M for M of shape [F, K].
type linearClassifier struct {
	m *tensor.Tensor
}

func newLinearClassifier(features, classes int, seed int64) *linearClassifier {
	m, _ := tensor.RandomNormal([]int{features, classes}, 0, 1, tensor.CPU, rand.New(rand.NewSource(seed)))
	return &linearClassifier{m: m}
}

func (l *linearClassifier) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	flat, err := x.Reshape([]int{x.BatchSize(), x.SampleSize()})
	if err != nil {
		return nil, err
	}
	return tensor.MatMul(flat, l.m)
}

func (l *linearClassifier) InputGradient(x, cotangent *tensor.Tensor) (*tensor.Tensor, error) {
	g, err := tensor.MatMulTransB(cotangent, l.m)
	if err != nil {
		return nil, err
	}
	return g.Reshape(x.Shape)
}

// sliceSource replays fixed batches every epoch.
type sliceSource struct {
	batches []*tensor.Tensor
	pos     int
	resets  int
}

func (s *sliceSource) Reset() {
	s.pos = 0
	s.resets++
}

func (s *sliceSource) Next() (*Batch, error) {
	if s.pos >= len(s.batches) {
		return nil, nil
	}
	b := s.batches[s.pos]
	s.pos++
	return &Batch{Data: b}, nil
}

// memorySink keeps every write.
type memorySink struct {
	writes []sinkWrite
}

type sinkWrite struct {
	series string
	offset int
	values []float64
}

func (m *memorySink) Write(series string, offset int, values []float64) error {
	m.writes = append(m.writes, sinkWrite{series, offset, append([]float64(nil), values...)})
	return nil
}

func realBatch(n int, value float64, shape ...int) *tensor.Tensor {
	t, _ := tensor.Full(append([]int{n}, shape...), value, tensor.CPU)
	return t
}

func sgdFor(params []*tensor.Tensor, lr float64) Optimizer {
	opt, _ := optimizer.NewSGD(params, optimizer.SGDConfig{LearningRate: lr})
	return opt
}

// newTestTrainer wires n constant generators (values 0.1, 0.2, ...) to an
// affine critic over [1, 2, 2] images.
func newTestTrainer(n int, config Config, opts ...Option) (*Trainer, []*constGenerator, *affineCritic, error) {
	gens := make([]Generator, n)
	consts := make([]*constGenerator, n)
	opts2 := make([]Optimizer, n)
	for i := range gens {
		consts[i] = newConstGenerator(0.1*float64(i+1), 1, 2, 2)
		gens[i] = consts[i]
		opts2[i] = sgdFor(consts[i].Parameters(), 0.01)
	}
	critic := newAffineCritic([]float64{0.5, -0.25, 0.1, 0.3}, 0.2)
	tr, err := NewTrainer(nil, gens, critic, opts2, sgdFor(critic.Parameters(), 0.01), config, opts...)
	return tr, consts, critic, err
}

func quietConfig() Config {
	c := DefaultConfig()
	c.LogInterval = 0
	return c
}
