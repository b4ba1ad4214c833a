package training

import (
	"context"
	"io"
	"math"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/tsawler/go-mgan/tensor"
)

// Trainer trains N generators against one critic with the WGAN-GP
// objective. The generators share the critic; each has its own optimizer.
type Trainer struct {
	classifier      Classifier
	generators      []Generator
	critic          Critic
	genOptimizers   []Optimizer
	criticOptimizer Optimizer

	config    Config
	history   *LossHistory
	reporter  *Reporter
	rng       *rand.Rand
	schedules []*ScheduleBinding
	hooks     Hooks

	steps        int
	fixedLatents *tensor.Tensor
	animations   []*Animation
}

// Option configures optional Trainer collaborators.
type Option func(*Trainer)

// WithOutput directs progress output to w (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(t *Trainer) { t.reporter = NewReporter(w) }
}

// WithHistorySink sends evicted and flushed loss values to sink.
func WithHistorySink(sink HistorySink) Option {
	return func(t *Trainer) { t.history.SetSink(sink) }
}

// WithSchedulers applies learning-rate schedules at the start of every epoch.
func WithSchedulers(bindings ...ScheduleBinding) Option {
	return func(t *Trainer) {
		for i := range bindings {
			b := bindings[i]
			t.schedules = append(t.schedules, &b)
		}
	}
}

func WithHooks(hooks Hooks) Option {
	return func(t *Trainer) { t.hooks = hooks }
}

// WithRand replaces the source used for interpolation coefficients.
func WithRand(rng *rand.Rand) Option {
	return func(t *Trainer) { t.rng = rng }
}

// NewTrainer validates the collaborators and moves every critic and
// generator parameter to config.Device. classifier may be nil when the
// diversity term is disabled.
func NewTrainer(classifier Classifier, generators []Generator, critic Critic, genOptimizers []Optimizer, criticOptimizer Optimizer, config Config, opts ...Option) (*Trainer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(generators) == 0 {
		return nil, ErrNoGenerators
	}
	if len(genOptimizers) != len(generators) {
		return nil, errors.Wrapf(ErrOptimizerCount, "%d optimizers for %d generators", len(genOptimizers), len(generators))
	}
	for i := range generators {
		if generators[i] == nil || genOptimizers[i] == nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "generator %d or its optimizer is nil", i)
		}
	}
	if critic == nil || criticOptimizer == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "critic and critic optimizer are required")
	}
	if config.DiversityWeight != 0 {
		if classifier == nil {
			return nil, errors.Wrap(ErrInvalidConfig, "diversity term requires a classifier")
		}
		if _, ok := classifier.(DifferentiableClassifier); config.DiversityInLoss && !ok {
			return nil, errors.Wrap(ErrNotDifferentiable, "diversity term in generator loss")
		}
	}

	if err := placeParameters(config.Device, critic.Parameters()); err != nil {
		return nil, errors.Wrap(err, "moving critic")
	}
	for i, g := range generators {
		if err := placeParameters(config.Device, g.Parameters()); err != nil {
			return nil, errors.Wrapf(err, "moving generator %d", i)
		}
	}

	t := &Trainer{
		classifier:      classifier,
		generators:      generators,
		critic:          critic,
		genOptimizers:   genOptimizers,
		criticOptimizer: criticOptimizer,
		config:          config,
		history:         NewLossHistory(config.HistoryCapacity, nil),
		reporter:        NewReporter(nil),
		rng:             rand.New(rand.NewSource(config.Seed)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func placeParameters(device tensor.DeviceType, params []*tensor.Tensor) error {
	if err := tensor.MoveTo(device, params); err != nil {
		return err
	}
	for _, p := range params {
		p.SetRequiresGrad(true)
	}
	return nil
}

// Steps returns the number of critic steps taken so far.
func (t *Trainer) Steps() int { return t.steps }

func (t *Trainer) History() *LossHistory { return t.history }

func (t *Trainer) NumGenerators() int { return len(t.generators) }

func (t *Trainer) Config() Config { return t.config }

func (t *Trainer) toDevice(x *tensor.Tensor) (*tensor.Tensor, error) {
	moved, err := x.ToDevice(t.config.Device)
	if err != nil {
		return nil, errors.Wrap(err, "moving batch to training device")
	}
	return moved, nil
}

// generate samples n latents from generator i and maps them through it.
func (t *Trainer) generate(i, n int) (*tensor.Tensor, *tensor.Tensor, error) {
	z, err := t.generators[i].SampleLatent(n, t.config.Device)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "sampling latents for generator %d", i)
	}
	x, err := t.generators[i].Forward(z)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "generator %d forward", i)
	}
	return z, x, nil
}

func (t *Trainer) record(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.Wrapf(ErrNonFinite, "%s = %v at step %d", name, v, t.steps)
	}
	return t.history.Append(name, v)
}

func checkFinite(name string, values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrNonFinite, "%s = %v", name, v)
		}
	}
	return nil
}

// CriticStep performs one critic update on a real batch whose size is a
// multiple of the generator count. Each generator contributes B/N samples.
func (t *Trainer) CriticStep(real *tensor.Tensor) error {
	n := len(t.generators)
	batch := real.BatchSize()
	if batch == 0 || batch%n != 0 {
		return errors.Wrapf(ErrBatchNotDivisible, "batch of %d for %d generators", batch, n)
	}
	real, err := t.toDevice(real)
	if err != nil {
		return err
	}

	parts := make([]*tensor.Tensor, n)
	for i := range t.generators {
		if _, parts[i], err = t.generate(i, batch/n); err != nil {
			return err
		}
	}
	generated, err := tensor.Concat(parts...)
	if err != nil {
		return errors.Wrap(err, "concatenating generated batches")
	}
	if !tensor.SameShape(generated, real) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "generated %v vs real %v", generated.Shape, real.Shape)
	}

	dReal, err := t.critic.Forward(real)
	if err != nil {
		return errors.Wrap(err, "critic forward on real batch")
	}
	dGenerated, err := t.critic.Forward(generated)
	if err != nil {
		return errors.Wrap(err, "critic forward on generated batch")
	}

	penalty, err := GradientPenalty(t.critic, real, generated, t.config.GradientPenaltyWeight, t.rng)
	if err != nil {
		return errors.Wrap(err, "gradient penalty")
	}

	loss := tensor.Mean(dGenerated) - tensor.Mean(dReal) + penalty.Penalty
	if err := checkFinite("critic loss", loss, penalty.Penalty, penalty.GradientNorm); err != nil {
		return err
	}

	params := t.critic.Parameters()
	t.criticOptimizer.ZeroGrad()
	tensor.ZeroGrad(params)

	// d loss/dθ = (1/B)Σ∇D(gen) − (1/B)Σ∇D(real) + d penalty/dθ
	inv := 1 / float64(batch)
	for _, term := range []struct {
		x     *tensor.Tensor
		scale float64
	}{{generated, inv}, {real, -inv}} {
		cot, err := tensor.Full([]int{batch}, term.scale, t.config.Device)
		if err != nil {
			return err
		}
		_, grads, err := t.critic.VJP(term.x, cot)
		if err != nil {
			return errors.Wrap(err, "critic backward")
		}
		if err := tensor.AccumulateGrads(params, grads); err != nil {
			return errors.Wrap(err, "accumulating critic gradients")
		}
	}

	if t.config.GradientPenaltyWeight != 0 {
		grads, err := PenaltyParameterGradients(t.critic, penalty, t.config.GradientPenaltyWeight, t.config.PenaltyDifferenceStep)
		if err != nil {
			return errors.Wrap(err, "gradient penalty backward")
		}
		if err := tensor.AccumulateGrads(params, grads); err != nil {
			return errors.Wrap(err, "accumulating penalty gradients")
		}
	}

	if err := t.criticOptimizer.Step(); err != nil {
		return errors.Wrap(err, "critic optimizer step")
	}

	if err := t.record(SeriesCritic, loss); err != nil {
		return err
	}
	if err := t.record(SeriesPenalty, penalty.Penalty); err != nil {
		return err
	}
	return t.record(SeriesGradientNorm, penalty.GradientNorm)
}

// GeneratorRound updates every generator once, in index order, each on a
// fresh batch of the real batch's size. The critic is not updated.
func (t *Trainer) GeneratorRound(real *tensor.Tensor) error {
	batch := real.BatchSize()
	if batch == 0 {
		return errors.Wrap(ErrBatchNotDivisible, "empty batch")
	}

	var (
		delta    float64
		latents  []*tensor.Tensor
		samples  []*tensor.Tensor
		probs    []*tensor.Tensor
		weight   = t.config.DiversityWeight
		withTerm = weight != 0 && t.config.DiversityInLoss
	)
	if weight != 0 {
		latents = make([]*tensor.Tensor, len(t.generators))
		samples = make([]*tensor.Tensor, len(t.generators))
		for i := range t.generators {
			var err error
			if latents[i], samples[i], err = t.generate(i, batch); err != nil {
				return err
			}
		}
		var err error
		if delta, probs, err = Diversity(t.classifier, samples); err != nil {
			return errors.Wrap(err, "diversity term")
		}
		if err := t.record(SeriesDelta, delta); err != nil {
			return err
		}
	}

	cot, err := tensor.Full([]int{batch}, -1/float64(batch), t.config.Device)
	if err != nil {
		return err
	}

	losses := make([]float64, len(t.generators))
	for i, g := range t.generators {
		params := g.Parameters()
		t.genOptimizers[i].ZeroGrad()
		tensor.ZeroGrad(params)

		z, x, err := t.generate(i, batch)
		if err != nil {
			return err
		}
		scores, err := t.critic.Forward(x)
		if err != nil {
			return errors.Wrapf(err, "critic forward on generator %d", i)
		}
		loss := -tensor.Mean(scores)
		if withTerm {
			loss += weight * (1 - delta)
		}
		if err := checkFinite(GeneratorSeries(i), loss); err != nil {
			return err
		}

		gradX, _, err := t.critic.VJP(x, cot)
		if err != nil {
			return errors.Wrapf(err, "critic input gradient for generator %d", i)
		}
		_, grads, err := g.VJP(z, gradX)
		if err != nil {
			return errors.Wrapf(err, "generator %d backward", i)
		}
		if err := tensor.AccumulateGrads(params, grads); err != nil {
			return errors.Wrapf(err, "accumulating generator %d gradients", i)
		}

		if withTerm {
			classifier := t.classifier.(DifferentiableClassifier)
			gradDiv, err := diversityInputGradient(classifier, samples, probs, i, weight)
			if err != nil {
				return err
			}
			_, divGrads, err := g.VJP(latents[i], gradDiv)
			if err != nil {
				return errors.Wrapf(err, "generator %d diversity backward", i)
			}
			if err := tensor.AccumulateGrads(params, divGrads); err != nil {
				return errors.Wrapf(err, "accumulating generator %d diversity gradients", i)
			}
		}

		if err := t.genOptimizers[i].Step(); err != nil {
			return errors.Wrapf(err, "generator %d optimizer step", i)
		}
		if err := t.record(GeneratorSeries(i), loss); err != nil {
			return err
		}
		losses[i] = loss
	}

	mean := 0.0
	for _, l := range losses {
		mean += l
	}
	return t.record(SeriesGenerator, mean/float64(len(losses)))
}

// TrainBatch advances the step counter, runs a critic step and, on every
// CriticIterations-th step, a generator round.
func (t *Trainer) TrainBatch(real *tensor.Tensor) error {
	t.steps++
	if err := t.CriticStep(real); err != nil {
		return err
	}
	if t.steps%t.config.CriticIterations == 0 {
		return t.GeneratorRound(real)
	}
	return nil
}

// Train runs epochs passes over source. It stops between batches when ctx
// is cancelled and returns ctx.Err().
func (t *Trainer) Train(ctx context.Context, source BatchSource, epochs int) error {
	if epochs < 0 {
		return errors.Wrapf(ErrInvalidConfig, "epochs must be non-negative, got %d", epochs)
	}
	if t.config.SaveTrainingGIF && t.fixedLatents == nil {
		// Fix latents to see how generation improves during training
		z, err := t.generators[0].SampleLatent(t.config.FixedLatentCount, t.config.Device)
		if err != nil {
			return errors.Wrap(err, "sampling fixed latents")
		}
		t.fixedLatents = z
		t.animations = make([]*Animation, len(t.generators))
		for i := range t.animations {
			t.animations[i] = NewAnimation(10)
		}
	}

	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, s := range t.schedules {
			s.apply(epoch, t.steps)
		}

		t.reporter.Epoch(epoch)
		start := time.Now()
		epochStart := make(map[string]int)
		for _, name := range t.history.Names() {
			epochStart[name] = t.history.Len(name)
		}

		if err := t.trainEpoch(ctx, source); err != nil {
			return err
		}

		t.reporter.EpochEnd(time.Since(start),
			t.history.MeanSince(SeriesCritic, epochStart[SeriesCritic]),
			t.history.MeanSince(SeriesGenerator, epochStart[SeriesGenerator]))

		for _, s := range t.schedules {
			s.observe(t.history, epochStart)
		}

		if t.config.SaveTrainingGIF {
			if err := t.saveProgress(epoch); err != nil {
				return err
			}
		}
		if t.hooks.OnEpochEnd != nil {
			if err := t.hooks.OnEpochEnd(epoch, t.history); err != nil {
				return errors.Wrapf(err, "epoch %d hook", epoch)
			}
		}
	}
	return nil
}

func (t *Trainer) trainEpoch(ctx context.Context, source BatchSource) error {
	source.Reset()
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := source.Next()
		if err != nil {
			return errors.Wrapf(err, "loading batch %d", i)
		}
		if batch == nil {
			return nil
		}
		if err := t.TrainBatch(batch.Data); err != nil {
			return errors.Wrapf(err, "batch %d", i)
		}
		if t.config.LogInterval > 0 && i%t.config.LogInterval == 0 {
			t.reporter.Iteration(i, t.history, len(t.generators))
		}
	}
}

// saveProgress renders each generator's fixed-latent grid, appends it to the
// generator's animation and rewrites the animation file for this epoch.
func (t *Trainer) saveProgress(epoch int) error {
	for i, g := range t.generators {
		x, err := g.Forward(t.fixedLatents)
		if err != nil {
			return errors.Wrapf(err, "generator %d forward on fixed latents", i)
		}
		x, err = x.ToCPU()
		if err != nil {
			return err
		}
		frame, err := MakeGrid(x, t.config.Grid)
		if err != nil {
			return errors.Wrapf(err, "image grid for generator %d", i)
		}
		t.animations[i].Add(frame)

		path := filepath.Join(t.config.OutputDir, GIFName(epoch, i))
		if err := t.animations[i].WriteGIF(path); err != nil {
			return err
		}
		t.reporter.Printf("Saved %s\n", path)
	}
	return nil
}

// Sample draws n images from generator index and returns them on the CPU as
// [n, H, W], dropping the single channel axis.
func (t *Trainer) Sample(index, n int) (*tensor.Tensor, error) {
	if index < 0 || index >= len(t.generators) {
		return nil, errors.Errorf("generator index %d out of range [0, %d)", index, len(t.generators))
	}
	if n <= 0 {
		return nil, errors.Errorf("sample count must be positive, got %d", n)
	}
	_, x, err := t.generate(index, n)
	if err != nil {
		return nil, err
	}
	x, err = x.ToCPU()
	if err != nil {
		return nil, err
	}
	if x.Dim() != 4 || x.Shape[1] != 1 {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "sampling needs single-channel [n, 1, H, W] output, got %v", x.Shape)
	}
	return tensor.Squeeze(x, 1)
}
