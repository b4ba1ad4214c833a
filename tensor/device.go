package tensor

import (
	"fmt"

	"github.com/klauspost/cpuid/v2"
)

// ToDevice returns a copy of t placed on device. Gradients are moved with it.
// GPU tensors are host-resident mirrors: placement is tracked and checked,
// arithmetic runs on the host.
func (t *Tensor) ToDevice(device DeviceType) (*Tensor, error) {
	if device != CPU && device != GPU {
		return nil, fmt.Errorf("invalid device type: %v (valid types: CPU, GPU)", device)
	}
	if t.Device == device {
		return t, nil
	}

	moved := t.Clone()
	moved.Device = device
	if t.grad != nil {
		g := t.grad.Clone()
		g.Device = device
		moved.grad = g
	}
	return moved, nil
}

func (t *Tensor) ToCPU() (*Tensor, error) {
	return t.ToDevice(CPU)
}

// MoveTo relocates every tensor in place, preserving pointer identity so
// optimizers bound to the tensors keep working.
func MoveTo(device DeviceType, tensors []*Tensor) error {
	for i, t := range tensors {
		moved, err := t.ToDevice(device)
		if err != nil {
			return fmt.Errorf("failed to move tensor %d to %s: %v", i, device, err)
		}
		if moved != t {
			*t = *moved
		}
	}
	return nil
}

// DescribeDevice returns a one-line description of the compute device.
func DescribeDevice(device DeviceType) string {
	host := fmt.Sprintf("%s (%d physical / %d logical cores", cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
	if cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) {
		host += ", AVX2+FMA"
	}
	host += ")"

	switch device {
	case GPU:
		return "GPU (host-mirrored on " + host + ")"
	default:
		return "CPU " + host
	}
}
