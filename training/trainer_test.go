package training

import (
	"bytes"
	"context"
	"image/gif"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/tsawler/go-mgan/tensor"
)

func TestNewTrainerValidation(t *testing.T) {
	gen := newConstGenerator(0, 1, 2, 2)
	critic := newAffineCritic([]float64{1, 1, 1, 1}, 0)
	genOpt := sgdFor(gen.Parameters(), 0.1)
	criticOpt := sgdFor(critic.Parameters(), 0.1)

	withConfig := func(mutate func(*Config)) Config {
		c := DefaultConfig()
		mutate(&c)
		return c
	}

	tests := []struct {
		name       string
		classifier Classifier
		generators []Generator
		genOpts    []Optimizer
		critic     Critic
		criticOpt  Optimizer
		config     Config
		expected   error
	}{
		{"no generators", nil, nil, nil, critic, criticOpt, DefaultConfig(), ErrNoGenerators},
		{"optimizer count", nil, []Generator{gen, gen}, []Optimizer{genOpt}, critic, criticOpt, DefaultConfig(), ErrOptimizerCount},
		{"nil critic", nil, []Generator{gen}, []Optimizer{genOpt}, nil, criticOpt, DefaultConfig(), ErrInvalidConfig},
		{"nil critic optimizer", nil, []Generator{gen}, []Optimizer{genOpt}, critic, nil, DefaultConfig(), ErrInvalidConfig},
		{"zero critic iterations", nil, []Generator{gen}, []Optimizer{genOpt}, critic, criticOpt, withConfig(func(c *Config) { c.CriticIterations = 0 }), ErrInvalidConfig},
		{"negative penalty weight", nil, []Generator{gen}, []Optimizer{genOpt}, critic, criticOpt, withConfig(func(c *Config) { c.GradientPenaltyWeight = -1 }), ErrInvalidConfig},
		{"diversity without classifier", nil, []Generator{gen}, []Optimizer{genOpt}, critic, criticOpt, withConfig(func(c *Config) { c.DiversityWeight = 1 }), ErrInvalidConfig},
		{"diversity in loss needs gradients", meanClassifier{}, []Generator{gen}, []Optimizer{genOpt}, critic, criticOpt, withConfig(func(c *Config) {
			c.DiversityWeight = 1
			c.DiversityInLoss = true
		}), ErrNotDifferentiable},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewTrainer(test.classifier, test.generators, test.critic, test.genOpts, test.criticOpt, test.config)
			if !errors.Is(err, test.expected) {
				t.Errorf("Expected %v, got %v", test.expected, err)
			}
		})
	}
}

func TestNewTrainerPlacesParameters(t *testing.T) {
	config := quietConfig()
	config.Device = tensor.GPU
	_, gens, critic, err := newTestTrainer(2, config, WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}
	for _, p := range critic.Parameters() {
		if p.Device != tensor.GPU {
			t.Errorf("Critic parameter on %s, expected GPU", p.Device)
		}
	}
	for i, g := range gens {
		if g.image.Device != tensor.GPU || !g.image.RequiresGrad() {
			t.Errorf("Generator %d parameter on %s (requiresGrad=%v)", i, g.image.Device, g.image.RequiresGrad())
		}
	}
}

func TestCriticStepBatchShapes(t *testing.T) {
	for _, n := range []int{1, 2, 4} {
		for _, batch := range []int{4, 8, 12} {
			tr, _, critic, err := newTestTrainer(n, quietConfig(), WithOutput(io.Discard))
			if err != nil {
				t.Fatalf("NewTrainer failed: %v", err)
			}
			real := realBatch(batch, 1, 1, 2, 2)
			if err := tr.CriticStep(real); err != nil {
				t.Fatalf("N=%d batch=%d: CriticStep failed: %v", n, batch, err)
			}
			// real, generated
			if !reflect.DeepEqual(critic.inputs[0], real.Shape) || !reflect.DeepEqual(critic.inputs[1], real.Shape) {
				t.Errorf("N=%d batch=%d: critic saw %v and %v, expected %v", n, batch, critic.inputs[0], critic.inputs[1], real.Shape)
			}
		}
	}
}

func TestCriticStepRejectsIndivisibleBatch(t *testing.T) {
	tr, gens, _, err := newTestTrainer(3, quietConfig(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}
	err = tr.CriticStep(realBatch(4, 1, 1, 2, 2))
	if !errors.Is(err, ErrBatchNotDivisible) {
		t.Fatalf("Expected ErrBatchNotDivisible, got %v", err)
	}
	if tr.History().Len(SeriesCritic) != 0 {
		t.Error("Rejected batch must not record losses")
	}
	for i, g := range gens {
		if g.forwards != 0 {
			t.Errorf("Generator %d ran before the batch was validated", i)
		}
	}
}

func TestCriticStepValues(t *testing.T) {
	tr, gens, critic, err := newTestTrainer(2, quietConfig(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}
	before := [][]float64{append([]float64(nil), gens[0].image.Data...), append([]float64(nil), gens[1].image.Data...)}
	w := append([]float64(nil), critic.w.Data...)

	if err := tr.CriticStep(realBatch(4, 1, 1, 2, 2)); err != nil {
		t.Fatalf("CriticStep failed: %v", err)
	}

	// Affine critic: ∇ₓD = w everywhere.
	normSq := 0.0
	sumW := 0.0
	for _, v := range w {
		normSq += v * v
		sumW += v
	}
	n := math.Sqrt(normSq + 1e-12)
	penalty := 10 * (n - 1) * (n - 1)
	// generated mean is 0.15 per pixel, real is 1
	loss := sumW*(0.15-1) + penalty

	checks := []struct {
		series   string
		expected float64
	}{
		{SeriesCritic, loss},
		{SeriesPenalty, penalty},
		{SeriesGradientNorm, math.Sqrt(normSq)},
	}
	for _, c := range checks {
		got, ok := tr.History().Last(c.series)
		if !ok || math.Abs(got-c.expected) > 1e-9 {
			t.Errorf("%s = %v, expected %v", c.series, got, c.expected)
		}
	}

	// w ← w − lr·(mean(gen) − mean(real) + 2·λ·(n−1)/n·w)
	for j := range w {
		expected := w[j] - 0.01*((0.15-1)+2*10*(n-1)/n*w[j])
		if math.Abs(critic.w.Data[j]-expected) > 1e-9 {
			t.Errorf("w[%d] = %v, expected %v", j, critic.w.Data[j], expected)
		}
	}
	if math.Abs(critic.c.Data[0]-0.2) > 1e-12 {
		t.Errorf("Critic bias moved to %v; its gradient is zero", critic.c.Data[0])
	}

	for i, g := range gens {
		if !reflect.DeepEqual(g.image.Data, before[i]) {
			t.Errorf("Critic step modified generator %d", i)
		}
	}
	if tr.Steps() != 0 {
		t.Errorf("CriticStep alone must not advance the step counter, got %d", tr.Steps())
	}
}

func TestCriticStepNonFinite(t *testing.T) {
	gen := newConstGenerator(0, 1, 2, 2)
	critic := nanCritic{newAffineCritic([]float64{1, 1, 1, 1}, 0)}
	tr, err := NewTrainer(nil, []Generator{gen}, critic, []Optimizer{sgdFor(gen.Parameters(), 0.1)},
		sgdFor(critic.Parameters(), 0.1), quietConfig(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}
	if err := tr.CriticStep(realBatch(2, 1, 1, 2, 2)); !errors.Is(err, ErrNonFinite) {
		t.Errorf("Expected ErrNonFinite, got %v", err)
	}
}

func TestGeneratorRound(t *testing.T) {
	tr, gens, critic, err := newTestTrainer(3, quietConfig(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}
	w := append([]float64(nil), critic.w.Data...)

	if err := tr.GeneratorRound(realBatch(6, 1, 1, 2, 2)); err != nil {
		t.Fatalf("GeneratorRound failed: %v", err)
	}

	h := tr.History()
	if h.Len(SeriesGenerator) != 1 {
		t.Errorf("G length = %d, expected 1", h.Len(SeriesGenerator))
	}
	sumW := 0.65
	mean := 0.0
	for i := range gens {
		if h.Len(GeneratorSeries(i)) != 1 {
			t.Errorf("%s length = %d, expected 1", GeneratorSeries(i), h.Len(GeneratorSeries(i)))
		}
		expected := -(0.2 + sumW*0.1*float64(i+1))
		mean += expected / 3
		if got, _ := h.Last(GeneratorSeries(i)); math.Abs(got-expected) > 1e-12 {
			t.Errorf("%s = %v, expected %v", GeneratorSeries(i), got, expected)
		}
		// d(−mean D)/d image = −w, so SGD adds lr·w
		for j, v := range gens[i].image.Data {
			if want := 0.1*float64(i+1) + 0.01*w[j]; math.Abs(v-want) > 1e-12 {
				t.Errorf("Generator %d pixel %d = %v, expected %v", i, j, v, want)
			}
		}
	}
	if got, _ := h.Last(SeriesGenerator); math.Abs(got-mean) > 1e-12 {
		t.Errorf("G = %v, expected mean %v", got, mean)
	}
	if h.Len(SeriesDelta) != 0 {
		t.Error("delta must not be recorded when the diversity weight is zero")
	}

	if !reflect.DeepEqual(critic.w.Data, w) {
		t.Error("Generator round modified the critic")
	}
	for _, shape := range critic.inputs {
		if shape[0] != 6 {
			t.Errorf("Generator round should sample the full batch of 6, critic saw %v", shape)
		}
	}
}

func TestGeneratorRoundDiversity(t *testing.T) {
	logistic := func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
	// meanClassifier logits (m, −m): P(class 0) = σ(2m)
	tvd := math.Abs(logistic(0.2) - logistic(0.4))

	t.Run("recorded only", func(t *testing.T) {
		config := quietConfig()
		config.DiversityWeight = 0.5
		gens := []Generator{newConstGenerator(0.1, 1, 2, 2), newConstGenerator(0.2, 1, 2, 2)}
		critic := newAffineCritic([]float64{0.5, -0.25, 0.1, 0.3}, 0.2)
		opts := []Optimizer{sgdFor(gens[0].Parameters(), 0.01), sgdFor(gens[1].Parameters(), 0.01)}
		tr, err := NewTrainer(meanClassifier{}, gens, critic, opts, sgdFor(critic.Parameters(), 0.01), config, WithOutput(io.Discard))
		if err != nil {
			t.Fatalf("NewTrainer failed: %v", err)
		}
		if err := tr.GeneratorRound(realBatch(4, 1, 1, 2, 2)); err != nil {
			t.Fatalf("GeneratorRound failed: %v", err)
		}

		delta, ok := tr.History().Last(SeriesDelta)
		if !ok || math.Abs(delta-tvd/2) > 1e-12 {
			t.Errorf("delta = %v, expected %v", delta, tvd/2)
		}
		if g1, _ := tr.History().Last(GeneratorSeries(0)); math.Abs(g1-(-(0.2+0.65*0.1))) > 1e-12 {
			t.Errorf("G_1 = %v should not include the diversity term", g1)
		}
	})

	t.Run("in loss", func(t *testing.T) {
		config := quietConfig()
		config.DiversityWeight = 0.5
		config.DiversityInLoss = true
		gens := []Generator{newConstGenerator(0.1, 1, 2, 2), newConstGenerator(0.2, 1, 2, 2)}
		critic := newAffineCritic([]float64{0.5, -0.25, 0.1, 0.3}, 0.2)
		classifier := newLinearClassifier(4, 3, 5)
		opts := []Optimizer{sgdFor(gens[0].Parameters(), 0.01), sgdFor(gens[1].Parameters(), 0.01)}
		tr, err := NewTrainer(classifier, gens, critic, opts, sgdFor(critic.Parameters(), 0.01), config, WithOutput(io.Discard))
		if err != nil {
			t.Fatalf("NewTrainer failed: %v", err)
		}
		if err := tr.GeneratorRound(realBatch(4, 1, 1, 2, 2)); err != nil {
			t.Fatalf("GeneratorRound failed: %v", err)
		}

		delta, _ := tr.History().Last(SeriesDelta)
		g1, _ := tr.History().Last(GeneratorSeries(0))
		if expected := -(0.2 + 0.65*0.1) + 0.5*(1-delta); math.Abs(g1-expected) > 1e-12 {
			t.Errorf("G_1 = %v, expected %v", g1, expected)
		}
	})
}

func TestAlternationPolicy(t *testing.T) {
	config := quietConfig()
	config.CriticIterations = 3
	tr, _, _, err := newTestTrainer(2, config, WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}

	for step := 1; step <= 7; step++ {
		if err := tr.TrainBatch(realBatch(4, 1, 1, 2, 2)); err != nil {
			t.Fatalf("TrainBatch %d failed: %v", step, err)
		}
		if tr.Steps() != step {
			t.Errorf("Steps = %d, expected %d", tr.Steps(), step)
		}
		if rounds := tr.History().Len(SeriesGenerator); rounds != step/3 {
			t.Errorf("After %d steps: %d generator rounds, expected %d", step, rounds, step/3)
		}
	}

	h := tr.History()
	if h.Len(SeriesCritic) != 7 || h.Len(SeriesPenalty) != 7 || h.Len(SeriesGradientNorm) != 7 {
		t.Errorf("Critic series lengths %d/%d/%d, expected 7", h.Len(SeriesCritic), h.Len(SeriesPenalty), h.Len(SeriesGradientNorm))
	}
	if h.Len(GeneratorSeries(0)) != 2 || h.Len(GeneratorSeries(1)) != 2 {
		t.Errorf("Per-generator lengths %d/%d, expected 2", h.Len(GeneratorSeries(0)), h.Len(GeneratorSeries(1)))
	}
}

func TestTrainEndToEnd(t *testing.T) {
	config := quietConfig()
	config.CriticIterations = 1
	tr, _, _, err := newTestTrainer(2, config, WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}

	source := &sliceSource{batches: []*tensor.Tensor{realBatch(4, 0.5, 1, 2, 2), realBatch(4, -0.5, 1, 2, 2)}}
	if err := tr.Train(context.Background(), source, 1); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	for _, name := range []string{SeriesCritic, SeriesGenerator, "G_1", "G_2"} {
		values := tr.History().Values(name)
		if len(values) != 2 {
			t.Errorf("%s has %d values, expected 2", name, len(values))
		}
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("%s contains non-finite value %v", name, v)
			}
		}
	}
	if source.resets != 1 {
		t.Errorf("Source reset %d times, expected 1", source.resets)
	}
}

func TestTrainOnGPU(t *testing.T) {
	config := quietConfig()
	config.CriticIterations = 1
	config.Device = tensor.GPU
	tr, gens, critic, err := newTestTrainer(2, config, WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}

	// CPU batches are moved to the training device.
	source := &sliceSource{batches: []*tensor.Tensor{realBatch(4, 1, 1, 2, 2)}}
	if err := tr.Train(context.Background(), source, 2); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if critic.w.Device != tensor.GPU || gens[1].image.Device != tensor.GPU {
		t.Error("Parameters left the training device")
	}

	s, err := tr.Sample(0, 2)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if s.Device != tensor.CPU {
		t.Errorf("Samples on %s, expected CPU", s.Device)
	}
}

// strayGenerator hides its parameter so the trainer cannot move it.
type strayGenerator struct{ *constGenerator }

func (strayGenerator) Parameters() []*tensor.Tensor { return nil }

func TestTrainDeviceMismatch(t *testing.T) {
	config := quietConfig()
	config.Device = tensor.GPU
	gen := strayGenerator{newConstGenerator(0, 1, 2, 2)}
	critic := newAffineCritic([]float64{1, 1, 1, 1}, 0)
	tr, err := NewTrainer(nil, []Generator{gen}, critic, []Optimizer{sgdFor(gen.constGenerator.Parameters(), 0.1)},
		sgdFor(critic.Parameters(), 0.1), config, WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}
	if err := tr.TrainBatch(realBatch(2, 1, 1, 2, 2)); !errors.Is(err, tensor.ErrDeviceMismatch) {
		t.Errorf("Expected ErrDeviceMismatch, got %v", err)
	}
}

func TestTrainLogging(t *testing.T) {
	config := DefaultConfig()
	config.CriticIterations = 1
	config.LogInterval = 1
	var out bytes.Buffer
	tr, _, _, err := newTestTrainer(2, config, WithOutput(&out))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}

	source := &sliceSource{batches: []*tensor.Tensor{realBatch(4, 1, 1, 2, 2), realBatch(4, 1, 1, 2, 2)}}
	if err := tr.Train(context.Background(), source, 1); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	for _, want := range []string{"Epoch 1\n", "Iteration 1\n", "Iteration 2\n", "D: ", "GP: ", "Gradient norm: ", "G: ", "G_1: ", "G_2: ", "Duration : "} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Output missing %q:\n%s", want, out.String())
		}
	}
}

func TestTrainCancellation(t *testing.T) {
	source := func() *sliceSource {
		return &sliceSource{batches: []*tensor.Tensor{realBatch(2, 1, 1, 2, 2), realBatch(2, 1, 1, 2, 2)}}
	}

	t.Run("before start", func(t *testing.T) {
		tr, _, _, _ := newTestTrainer(1, quietConfig(), WithOutput(io.Discard))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := tr.Train(ctx, source(), 3); !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
		if tr.Steps() != 0 {
			t.Errorf("Trained %d steps after cancellation", tr.Steps())
		}
	})

	t.Run("between epochs", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		hooks := Hooks{OnEpochEnd: func(epoch int, _ *LossHistory) error {
			cancel()
			return nil
		}}
		tr, _, _, _ := newTestTrainer(1, quietConfig(), WithOutput(io.Discard), WithHooks(hooks))
		if err := tr.Train(ctx, source(), 3); !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
		if tr.Steps() != 2 {
			t.Errorf("Steps = %d, expected one epoch of 2", tr.Steps())
		}
	})
}

func TestTrainHookError(t *testing.T) {
	boom := errors.New("checkpoint failed")
	var epochs []int
	hooks := Hooks{OnEpochEnd: func(epoch int, h *LossHistory) error {
		epochs = append(epochs, epoch)
		if h.Len(SeriesCritic) == 0 {
			t.Error("Hook should see the recorded history")
		}
		return boom
	}}
	tr, _, _, _ := newTestTrainer(1, quietConfig(), WithOutput(io.Discard), WithHooks(hooks))
	err := tr.Train(context.Background(), &sliceSource{batches: []*tensor.Tensor{realBatch(2, 1, 1, 2, 2)}}, 3)
	if !errors.Is(err, boom) {
		t.Errorf("Expected hook error, got %v", err)
	}
	if !reflect.DeepEqual(epochs, []int{0}) {
		t.Errorf("Hook ran for epochs %v, expected [0]", epochs)
	}
}

func TestTrainSavesGIFs(t *testing.T) {
	dir := t.TempDir()
	config := quietConfig()
	config.SaveTrainingGIF = true
	config.OutputDir = filepath.Join(dir, "imgs")
	config.FixedLatentCount = 4
	tr, gens, _, err := newTestTrainer(2, config, WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}

	source := &sliceSource{batches: []*tensor.Tensor{realBatch(4, 1, 1, 2, 2)}}
	if err := tr.Train(context.Background(), source, 2); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	for epoch := 0; epoch < 2; epoch++ {
		for i := range gens {
			path := filepath.Join(config.OutputDir, GIFName(epoch, i))
			f, err := os.Open(path)
			if err != nil {
				t.Fatalf("Missing %s: %v", path, err)
			}
			g, err := gif.DecodeAll(f)
			f.Close()
			if err != nil {
				t.Fatalf("Decoding %s failed: %v", path, err)
			}
			if len(g.Image) != epoch+1 {
				t.Errorf("%s has %d frames, expected %d", path, len(g.Image), epoch+1)
			}
			// 4 tiles of 2x2 in one row with padding 2
			if b := g.Image[0].Bounds(); b.Dx() != 18 || b.Dy() != 6 {
				t.Errorf("%s frame is %dx%d, expected 18x6", path, b.Dx(), b.Dy())
			}
		}
	}
	if _, err := os.Stat(filepath.Join(config.OutputDir, "training_0_epoch_generator_0.gif")); err != nil {
		t.Errorf("Expected literal file name: %v", err)
	}
}

func TestTrainSchedulers(t *testing.T) {
	tr, _, _, err := newTestTrainer(1, quietConfig(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}
	criticOpt := tr.criticOptimizer
	WithSchedulers(ScheduleBinding{Scheduler: NewStepLRScheduler(1, 0.5), Optimizer: criticOpt})(tr)

	source := &sliceSource{batches: []*tensor.Tensor{realBatch(2, 1, 1, 2, 2)}}
	if err := tr.Train(context.Background(), source, 3); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	// lr is set at the start of epochs 0, 1, 2
	if lr := criticOpt.GetLR(); math.Abs(lr-0.0025) > 1e-15 {
		t.Errorf("Critic LR after 3 epochs = %v, expected 0.0025", lr)
	}
	if lr := tr.genOptimizers[0].GetLR(); lr != 0.01 {
		t.Errorf("Unscheduled generator LR changed to %v", lr)
	}
}

func TestTrainHistoryCapacity(t *testing.T) {
	config := quietConfig()
	config.HistoryCapacity = 1
	config.CriticIterations = 1
	sink := &memorySink{}
	tr, _, _, err := newTestTrainer(1, config, WithOutput(io.Discard), WithHistorySink(sink))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := tr.TrainBatch(realBatch(2, 1, 1, 2, 2)); err != nil {
			t.Fatalf("TrainBatch failed: %v", err)
		}
	}

	h := tr.History()
	if h.Len(SeriesCritic) != 3 || len(h.Values(SeriesCritic)) != 1 {
		t.Errorf("D: Len=%d retained=%d, expected 3 and 1", h.Len(SeriesCritic), len(h.Values(SeriesCritic)))
	}
	flushed := 0
	for _, w := range sink.writes {
		if w.series == SeriesCritic {
			flushed += len(w.values)
		}
	}
	if flushed != 2 {
		t.Errorf("Sink received %d D values, expected 2", flushed)
	}
}

func TestSample(t *testing.T) {
	tr, _, _, err := newTestTrainer(2, quietConfig(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}

	s, err := tr.Sample(1, 3)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if !reflect.DeepEqual(s.Shape, []int{3, 2, 2}) {
		t.Errorf("Sample shape = %v, expected [3 2 2]", s.Shape)
	}
	for _, v := range s.Data {
		if math.Abs(v-0.2) > 1e-12 {
			t.Fatalf("Sample from generator 1 = %v, expected 0.2", v)
		}
	}

	if _, err := tr.Sample(2, 1); err == nil {
		t.Error("Expected error for out-of-range generator")
	}
	if _, err := tr.Sample(0, 0); err == nil {
		t.Error("Expected error for zero samples")
	}

	t.Run("multi-channel output", func(t *testing.T) {
		gen := newConstGenerator(0, 3, 2, 2)
		critic := newAffineCritic(make([]float64, 12), 0)
		tr, err := NewTrainer(nil, []Generator{gen}, critic, []Optimizer{sgdFor(gen.Parameters(), 0.1)},
			sgdFor(critic.Parameters(), 0.1), quietConfig(), WithOutput(io.Discard))
		if err != nil {
			t.Fatalf("NewTrainer failed: %v", err)
		}
		if _, err := tr.Sample(0, 2); !errors.Is(err, tensor.ErrShapeMismatch) {
			t.Errorf("Expected ErrShapeMismatch, got %v", err)
		}
	})
}
