package training

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Reporter prints human-readable training progress.
type Reporter struct {
	w io.Writer
}

func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stdout
	}
	return &Reporter{w: w}
}

func (r *Reporter) Epoch(epoch int) {
	fmt.Fprintf(r.w, "\nEpoch %d\n", epoch+1)
}

// Iteration prints the latest value of every critic series and, once the
// generators have been updated, of the generator series.
func (r *Reporter) Iteration(batch int, history *LossHistory, generators int) {
	fmt.Fprintf(r.w, "Iteration %d\n", batch+1)
	r.line("D", history, SeriesCritic)
	r.line("GP", history, SeriesPenalty)
	r.line("Gradient norm", history, SeriesGradientNorm)
	if history.Len(SeriesDelta) > 0 {
		r.line("Delta", history, SeriesDelta)
	}
	if history.Len(SeriesGenerator) > 0 {
		r.line("G", history, SeriesGenerator)
		for i := 0; i < generators; i++ {
			r.line(GeneratorSeries(i), history, GeneratorSeries(i))
		}
	}
}

func (r *Reporter) line(label string, history *LossHistory, name string) {
	if v, ok := history.Last(name); ok {
		fmt.Fprintf(r.w, "%s: %v\n", label, v)
	}
}

// EpochEnd prints the epoch duration and the epoch's mean critic and generator losses.
func (r *Reporter) EpochEnd(duration time.Duration, meanD, meanG float64) {
	fmt.Fprintln(r.w, "-------------------------------")
	fmt.Fprintf(r.w, "Duration : %.3fs\n", duration.Seconds())
	fmt.Fprintf(r.w, "Mean D: %.4f  Mean G: %.4f\n", meanD, meanG)
	fmt.Fprintln(r.w, "-------------------------------")
}

func (r *Reporter) Printf(format string, args ...interface{}) {
	fmt.Fprintf(r.w, format, args...)
}
