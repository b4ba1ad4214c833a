package training

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Loss series names.
const (
	SeriesCritic       = "D"
	SeriesPenalty      = "GP"
	SeriesGradientNorm = "gradient_norm"
	SeriesGenerator    = "G"
	SeriesDelta        = "delta"
)

// GeneratorSeries returns the per-generator series name for the 0-based
// generator index: G_1, G_2, ...
func GeneratorSeries(index int) string {
	return fmt.Sprintf("G_%d", index+1)
}

// HistorySink receives values evicted from, or flushed out of, a LossHistory.
// offset is the position of values[0] in the full series.
type HistorySink interface {
	Write(series string, offset int, values []float64) error
}

type series struct {
	values  []float64
	dropped int // values already evicted from memory
}

// LossHistory is an append-only accumulator of named loss series. With a
// positive Capacity only the newest values stay in memory; older ones go to
// the sink, if any, and are dropped.
type LossHistory struct {
	Capacity int

	sink   HistorySink
	series map[string]*series
}

func NewLossHistory(capacity int, sink HistorySink) *LossHistory {
	return &LossHistory{
		Capacity: capacity,
		sink:     sink,
		series:   make(map[string]*series),
	}
}

func (h *LossHistory) SetSink(sink HistorySink) {
	h.sink = sink
}

// Append adds v to the named series, evicting the oldest values once the
// series exceeds Capacity.
func (h *LossHistory) Append(name string, v float64) error {
	s, ok := h.series[name]
	if !ok {
		s = &series{}
		h.series[name] = s
	}
	s.values = append(s.values, v)

	if h.Capacity > 0 && len(s.values) > h.Capacity {
		evict := len(s.values) - h.Capacity
		if h.sink != nil {
			if err := h.sink.Write(name, s.dropped, s.values[:evict]); err != nil {
				return errors.Wrapf(err, "flushing series %s", name)
			}
		}
		s.dropped += evict
		s.values = append(s.values[:0], s.values[evict:]...)
	}
	return nil
}

// Last returns the most recent value of a series.
func (h *LossHistory) Last(name string) (float64, bool) {
	s, ok := h.series[name]
	if !ok || len(s.values) == 0 {
		return 0, false
	}
	return s.values[len(s.values)-1], true
}

// Len counts every value ever appended to the series, evicted ones included.
func (h *LossHistory) Len(name string) int {
	s, ok := h.series[name]
	if !ok {
		return 0
	}
	return s.dropped + len(s.values)
}

// Values returns a copy of the values still held in memory.
func (h *LossHistory) Values(name string) []float64 {
	s, ok := h.series[name]
	if !ok {
		return nil
	}
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Names returns the series names in sorted order.
func (h *LossHistory) Names() []string {
	names := make([]string, 0, len(h.series))
	for name := range h.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mean averages the values held in memory; NaN for an empty series.
func (h *LossHistory) Mean(name string) float64 {
	values := h.Values(name)
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// MeanSince averages the values at series positions >= from that are still in memory.
func (h *LossHistory) MeanSince(name string, from int) float64 {
	s, ok := h.series[name]
	if !ok {
		return math.NaN()
	}
	start := from - s.dropped
	if start < 0 {
		start = 0
	}
	if start >= len(s.values) {
		return math.NaN()
	}
	return stat.Mean(s.values[start:], nil)
}

// Flush writes every retained value to the sink and drops it from memory.
// Len is unaffected.
func (h *LossHistory) Flush() error {
	if h.sink == nil {
		return nil
	}
	for _, name := range h.Names() {
		s := h.series[name]
		if len(s.values) == 0 {
			continue
		}
		if err := h.sink.Write(name, s.dropped, s.values); err != nil {
			return errors.Wrapf(err, "flushing series %s", name)
		}
		s.dropped += len(s.values)
		s.values = s.values[:0]
	}
	return nil
}
