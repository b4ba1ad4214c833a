package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// CheckDevice returns ErrDeviceMismatch unless every tensor is on device.
func CheckDevice(device DeviceType, tensors ...*Tensor) error {
	for i, t := range tensors {
		if t.Device != device {
			return fmt.Errorf("%w: operand %d on %s, expected %s", ErrDeviceMismatch, i, t.Device, device)
		}
	}
	return nil
}

func checkCompatibility(t1, t2 *Tensor) error {
	if t1.Device != t2.Device {
		return fmt.Errorf("%w: %s vs %s", ErrDeviceMismatch, t1.Device, t2.Device)
	}
	if !shapesEqual(t1.Shape, t2.Shape) {
		return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, t1.Shape, t2.Shape)
	}
	return nil
}

func Add(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	result := t1.Clone()
	result.requiresGrad = false
	floats.Add(result.Data, t2.Data)
	return result, nil
}

func Sub(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	result := t1.Clone()
	result.requiresGrad = false
	floats.Sub(result.Data, t2.Data)
	return result, nil
}

func Mul(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	result := t1.Clone()
	result.requiresGrad = false
	floats.Mul(result.Data, t2.Data)
	return result, nil
}

func Div(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	result := t1.Clone()
	result.requiresGrad = false
	floats.Div(result.Data, t2.Data)
	return result, nil
}

// Scale returns c*t.
func Scale(t *Tensor, c float64) *Tensor {
	result := t.Clone()
	result.requiresGrad = false
	floats.Scale(c, result.Data)
	return result
}

// AddScaled returns t1 + c*t2.
func AddScaled(t1 *Tensor, c float64, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	result := t1.Clone()
	result.requiresGrad = false
	floats.AddScaled(result.Data, c, t2.Data)
	return result, nil
}

// Apply returns a tensor with f applied to every element.
func Apply(t *Tensor, f func(float64) float64) *Tensor {
	result := t.Clone()
	result.requiresGrad = false
	for i, v := range result.Data {
		result.Data[i] = f(v)
	}
	return result
}

func Tanh(t *Tensor) *Tensor {
	return Apply(t, math.Tanh)
}

// Sqrt computes the element-wise square root; negative inputs yield NaN.
func Sqrt(t *Tensor) *Tensor {
	return Apply(t, math.Sqrt)
}

// Sum returns the sum of all elements.
func Sum(t *Tensor) float64 {
	return floats.Sum(t.Data)
}

// Mean returns the arithmetic mean of all elements.
func Mean(t *Tensor) float64 {
	if t.NumElems == 0 {
		return math.NaN()
	}
	return floats.Sum(t.Data) / float64(t.NumElems)
}

// MaxAbs returns the largest absolute element.
func MaxAbs(t *Tensor) float64 {
	m := 0.0
	for _, v := range t.Data {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// RowNorms returns the Euclidean norm of every sample along the leading dimension.
func RowNorms(t *Tensor) []float64 {
	b := t.BatchSize()
	norms := make([]float64, b)
	for i := 0; i < b; i++ {
		norms[i] = floats.Norm(t.Row(i), 2)
	}
	return norms
}

// ScaleRows multiplies sample i of t by coeffs[i].
func ScaleRows(t *Tensor, coeffs []float64) (*Tensor, error) {
	if len(coeffs) != t.BatchSize() {
		return nil, fmt.Errorf("%w: %d coefficients for batch of %d", ErrShapeMismatch, len(coeffs), t.BatchSize())
	}
	result := t.Clone()
	result.requiresGrad = false
	for i, c := range coeffs {
		floats.Scale(c, result.Row(i))
	}
	return result, nil
}
