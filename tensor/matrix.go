package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

func getIndex(indices []int, strides []int) int {
	index := 0
	for i, idx := range indices {
		index += idx * strides[i]
	}
	return index
}

// dense views a 2D tensor as a gonum matrix without copying.
func (t *Tensor) dense() (*mat.Dense, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("%w: expected 2D tensor, got shape %v", ErrShapeMismatch, t.Shape)
	}
	return mat.NewDense(t.Shape[0], t.Shape[1], t.Data), nil
}

func matMul(t1, t2 *Tensor, trans1, trans2 bool) (*Tensor, error) {
	if t1.Device != t2.Device {
		return nil, fmt.Errorf("%w: %s vs %s", ErrDeviceMismatch, t1.Device, t2.Device)
	}

	a, err := t1.dense()
	if err != nil {
		return nil, err
	}
	b, err := t2.dense()
	if err != nil {
		return nil, err
	}

	var ma, mb mat.Matrix = a, b
	if trans1 {
		ma = a.T()
	}
	if trans2 {
		mb = b.T()
	}

	rows1, cols1 := ma.Dims()
	rows2, cols2 := mb.Dims()
	if cols1 != rows2 {
		return nil, fmt.Errorf("%w: incompatible dimensions for matmul: (%d, %d) x (%d, %d)", ErrShapeMismatch, rows1, cols1, rows2, cols2)
	}

	result, err := Zeros([]int{rows1, cols2}, t1.Device)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(rows1, cols2, result.Data)
	out.Mul(ma, mb)
	return result, nil
}

// MatMul computes t1 @ t2 for 2D tensors.
func MatMul(t1, t2 *Tensor) (*Tensor, error) {
	return matMul(t1, t2, false, false)
}

// MatMulTransA computes t1ᵀ @ t2.
func MatMulTransA(t1, t2 *Tensor) (*Tensor, error) {
	return matMul(t1, t2, true, false)
}

// MatMulTransB computes t1 @ t2ᵀ.
func MatMulTransB(t1, t2 *Tensor) (*Tensor, error) {
	return matMul(t1, t2, false, true)
}

// Transpose swaps the two axes of a 2D tensor.
func Transpose(t *Tensor) (*Tensor, error) {
	a, err := t.dense()
	if err != nil {
		return nil, err
	}
	rows, cols := a.Dims()
	result, err := Zeros([]int{cols, rows}, t.Device)
	if err != nil {
		return nil, err
	}
	mat.NewDense(cols, rows, result.Data).Copy(a.T())
	return result, nil
}

// SumRows sums a [B, F] tensor over its leading dimension, giving [F].
func SumRows(t *Tensor) (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("%w: SumRows expects a 2D tensor, got shape %v", ErrShapeMismatch, t.Shape)
	}
	result, err := Zeros([]int{t.Shape[1]}, t.Device)
	if err != nil {
		return nil, err
	}
	for i := 0; i < t.Shape[0]; i++ {
		row := t.Row(i)
		for j, v := range row {
			result.Data[j] += v
		}
	}
	return result, nil
}

func Squeeze(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("dim %d out of range for tensor with %d dimensions", dim, len(t.Shape))
	}
	if t.Shape[dim] != 1 {
		return nil, fmt.Errorf("cannot squeeze dimension %d with size %d (must be 1)", dim, t.Shape[dim])
	}

	newShape := make([]int, 0, len(t.Shape)-1)
	for i, size := range t.Shape {
		if i != dim {
			newShape = append(newShape, size)
		}
	}
	return t.Reshape(newShape)
}

func Unsqueeze(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim > len(t.Shape) {
		return nil, fmt.Errorf("dim %d out of range for unsqueeze operation", dim)
	}

	newShape := make([]int, len(t.Shape)+1)
	copy(newShape[:dim], t.Shape[:dim])
	newShape[dim] = 1
	copy(newShape[dim+1:], t.Shape[dim:])
	return t.Reshape(newShape)
}

// Concat joins tensors along the leading dimension. All operands must share
// device and trailing shape.
func Concat(tensors ...*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("concat requires at least one tensor")
	}

	first := tensors[0]
	total := 0
	for i, t := range tensors {
		if t.Device != first.Device {
			return nil, fmt.Errorf("%w: operand %d on %s, operand 0 on %s", ErrDeviceMismatch, i, t.Device, first.Device)
		}
		if len(t.Shape) != len(first.Shape) || !shapesEqual(t.Shape[1:], first.Shape[1:]) {
			return nil, fmt.Errorf("%w: operand %d has shape %v, operand 0 has %v", ErrShapeMismatch, i, t.Shape, first.Shape)
		}
		total += t.Shape[0]
	}

	shape := append([]int{total}, first.Shape[1:]...)
	data := make([]float64, 0, total*first.SampleSize())
	for _, t := range tensors {
		data = append(data, t.Data...)
	}
	return NewTensor(shape, first.Device, data)
}

// Split divides t into n equal chunks along the leading dimension.
func Split(t *Tensor, n int) ([]*Tensor, error) {
	if n <= 0 {
		return nil, fmt.Errorf("split count must be positive, got %d", n)
	}
	b := t.BatchSize()
	if b%n != 0 {
		return nil, fmt.Errorf("%w: batch of %d cannot be split into %d equal parts", ErrShapeMismatch, b, n)
	}

	chunk := b / n
	stride := chunk * t.SampleSize()
	shape := append([]int{chunk}, t.Shape[1:]...)

	parts := make([]*Tensor, n)
	for i := range parts {
		data := make([]float64, stride)
		copy(data, t.Data[i*stride:(i+1)*stride])
		part, err := NewTensor(shape, t.Device, data)
		if err != nil {
			return nil, err
		}
		parts[i] = part
	}
	return parts, nil
}
