package tensor

import (
	"fmt"
	"math/rand"
	"time"
)

// NewTensor creates a tensor of the given shape. A nil data slice allocates
// zeros; otherwise the slice is adopted without copying.
func NewTensor(shape []int, device DeviceType, data []float64) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	if data == nil {
		data = make([]float64, numElems)
	} else if len(data) != numElems {
		return nil, fmt.Errorf("data length %d does not match tensor size %d", len(data), numElems)
	}

	s := make([]int, len(shape))
	copy(s, shape)

	return &Tensor{
		Shape:    s,
		Strides:  calculateStrides(s),
		Device:   device,
		Data:     data,
		NumElems: numElems,
	}, nil
}

func Zeros(shape []int, device DeviceType) (*Tensor, error) {
	return NewTensor(shape, device, nil)
}

func Ones(shape []int, device DeviceType) (*Tensor, error) {
	return Full(shape, 1.0, device)
}

func Full(shape []int, value float64, device DeviceType) (*Tensor, error) {
	t, err := NewTensor(shape, device, nil)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = value
	}
	return t, nil
}

// ZerosLike allocates a zero tensor with the shape and device of t.
func ZerosLike(t *Tensor) *Tensor {
	z, _ := NewTensor(t.Shape, t.Device, nil)
	return z
}

func newRng(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// Random fills a tensor with samples from U[0, 1). A nil rng uses a time-seeded source.
func Random(shape []int, device DeviceType, rng *rand.Rand) (*Tensor, error) {
	t, err := NewTensor(shape, device, nil)
	if err != nil {
		return nil, err
	}

	r := newRng(rng)
	for i := range t.Data {
		t.Data[i] = r.Float64()
	}
	return t, nil
}

// RandomNormal fills a tensor with samples from N(mean, std²).
func RandomNormal(shape []int, mean, std float64, device DeviceType, rng *rand.Rand) (*Tensor, error) {
	t, err := NewTensor(shape, device, nil)
	if err != nil {
		return nil, err
	}

	r := newRng(rng)
	for i := range t.Data {
		t.Data[i] = r.NormFloat64()*std + mean
	}
	return t, nil
}
