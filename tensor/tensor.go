package tensor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDeviceMismatch is returned when an operation mixes tensors placed on different devices.
	ErrDeviceMismatch = errors.New("tensors are on different devices")
	// ErrShapeMismatch is returned when operand shapes are incompatible.
	ErrShapeMismatch = errors.New("tensor shapes are incompatible")
)

type DeviceType int

const (
	CPU DeviceType = iota
	GPU
)

func (d DeviceType) String() string {
	switch d {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	default:
		return "Unknown"
	}
}

// ParseDevice accepts "cpu" or "gpu" in any case.
func ParseDevice(s string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return CPU, nil
	case "gpu", "cuda":
		return GPU, nil
	default:
		return CPU, fmt.Errorf("unknown device %q (valid: cpu, gpu)", s)
	}
}

func (d DeviceType) MarshalText() ([]byte, error) {
	if d != CPU && d != GPU {
		return nil, fmt.Errorf("invalid device type: %d", int(d))
	}
	return []byte(strings.ToLower(d.String())), nil
}

func (d *DeviceType) UnmarshalText(text []byte) error {
	parsed, err := ParseDevice(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Tensor is a dense, row-major float64 tensor. Parameters carry a gradient
// slot that optimizers read and the trainer accumulates into.
type Tensor struct {
	Shape        []int
	Strides      []int
	Device       DeviceType
	Data         []float64
	NumElems     int
	requiresGrad bool
	grad         *Tensor
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, device=%s, elements=%d)",
		t.Shape, t.Device, t.NumElems)
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

// Grad returns the accumulated gradient, or nil if nothing was accumulated yet.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// BatchSize returns the size of the leading dimension.
func (t *Tensor) BatchSize() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// SampleSize returns the number of elements per leading-dimension entry.
func (t *Tensor) SampleSize() int {
	if len(t.Shape) == 0 || t.Shape[0] == 0 {
		return 0
	}
	return t.NumElems / t.Shape[0]
}

// Row returns the slice of Data that backs sample i of the leading dimension.
func (t *Tensor) Row(i int) []float64 {
	n := t.SampleSize()
	return t.Data[i*n : (i+1)*n]
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

func shapesEqual(shape1, shape2 []int) bool {
	if len(shape1) != len(shape2) {
		return false
	}
	for i := range shape1 {
		if shape1[i] != shape2[i] {
			return false
		}
	}
	return true
}

// SameShape reports whether two tensors have identical shapes.
func SameShape(t1, t2 *Tensor) bool {
	return shapesEqual(t1.Shape, t2.Shape)
}
