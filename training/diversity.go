package training

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-mgan/tensor"
)

// Softmax normalizes each row of [B, K] logits, subtracting the row maximum first.
func Softmax(logits *tensor.Tensor) (*tensor.Tensor, error) {
	if logits.Dim() != 2 {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "softmax expects [B, K] logits, got %v", logits.Shape)
	}
	probs := tensor.ZerosLike(logits)
	for i := 0; i < logits.Shape[0]; i++ {
		in, out := logits.Row(i), probs.Row(i)
		maxLogit := floats.Max(in)
		for k, v := range in {
			out[k] = math.Exp(v - maxLogit)
		}
		floats.Scale(1/floats.Sum(out), out)
	}
	return probs, nil
}

// TotalVariationDistance returns ½ Σ_k |P[b,k] − Q[b,k]| for every row b.
func TotalVariationDistance(p, q *tensor.Tensor) ([]float64, error) {
	if !tensor.SameShape(p, q) || p.Dim() != 2 {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "total variation of %v and %v", p.Shape, q.Shape)
	}
	dist := make([]float64, p.Shape[0])
	for i := range dist {
		dist[i] = 0.5 * floats.Distance(p.Row(i), q.Row(i), 1)
	}
	return dist, nil
}

// MeanTotalVariation averages TotalVariationDistance over the batch.
func MeanTotalVariation(p, q *tensor.Tensor) (float64, error) {
	dist, err := TotalVariationDistance(p, q)
	if err != nil {
		return 0, err
	}
	return floats.Sum(dist) / float64(len(dist)), nil
}

// Pairs lists every unordered pair (z, j) with z < j < n.
func Pairs(n int) [][2]int {
	var pairs [][2]int
	for z := 0; z < n; z++ {
		for j := z + 1; j < n; j++ {
			pairs = append(pairs, [2]int{z, j})
		}
	}
	return pairs
}

// Diversity computes delta = (1/N) Σ_{z<j} MeanTotalVariation(P_z, P_j),
// where P_i are the classifier's class probabilities for samples[i]. It also
// returns the probabilities.
func Diversity(classifier Classifier, samples []*tensor.Tensor) (float64, []*tensor.Tensor, error) {
	probs := make([]*tensor.Tensor, len(samples))
	for i, x := range samples {
		logits, err := classifier.Forward(x)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "classifying samples of generator %d", i)
		}
		if probs[i], err = Softmax(logits); err != nil {
			return 0, nil, err
		}
	}

	delta := 0.0
	for _, pair := range Pairs(len(samples)) {
		tvd, err := MeanTotalVariation(probs[pair[0]], probs[pair[1]])
		if err != nil {
			return 0, nil, err
		}
		delta += tvd
	}
	return delta / float64(len(samples)), probs, nil
}

// diversityProbGradient returns dδ/dP_i: (1/N)(1/B)·½·Σ_{j≠i} sign(P_i − P_j).
func diversityProbGradient(probs []*tensor.Tensor, i int) *tensor.Tensor {
	n := float64(len(probs))
	pi := probs[i]
	scale := 0.5 / (n * float64(pi.BatchSize()))
	grad := tensor.ZerosLike(pi)
	for j, pj := range probs {
		if j == i {
			continue
		}
		for k, v := range pi.Data {
			switch d := v - pj.Data[k]; {
			case d > 0:
				grad.Data[k] += scale
			case d < 0:
				grad.Data[k] -= scale
			}
		}
	}
	return grad
}

// softmaxVJP maps a gradient on probabilities to one on logits:
// dL/da = P ⊙ (dL/dP − ⟨dL/dP, P⟩) per row.
func softmaxVJP(probs, gradProbs *tensor.Tensor) *tensor.Tensor {
	grad := tensor.ZerosLike(probs)
	for b := 0; b < probs.Shape[0]; b++ {
		p, g, out := probs.Row(b), gradProbs.Row(b), grad.Row(b)
		dot := floats.Dot(g, p)
		for k := range out {
			out[k] = p[k] * (g[k] - dot)
		}
	}
	return grad
}

// diversityInputGradient returns d(−weight·δ)/dx_i through the classifier.
func diversityInputGradient(classifier DifferentiableClassifier, samples, probs []*tensor.Tensor, i int, weight float64) (*tensor.Tensor, error) {
	gradProbs := tensor.Scale(diversityProbGradient(probs, i), -weight)
	gradLogits := softmaxVJP(probs[i], gradProbs)
	gradInput, err := classifier.InputGradient(samples[i], gradLogits)
	if err != nil {
		return nil, errors.Wrapf(err, "classifier input gradient for generator %d", i)
	}
	return gradInput, nil
}
