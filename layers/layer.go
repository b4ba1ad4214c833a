package layers

import (
	"fmt"
	"strings"
)

// LayerType identifies the kind of layer a LayerSpec describes.
type LayerType int

const (
	Dense LayerType = iota
	ReLU
	LeakyReLU
	Tanh
	Sigmoid
	Reshape
)

var layerTypeNames = map[LayerType]string{
	Dense:     "Dense",
	ReLU:      "ReLU",
	LeakyReLU: "LeakyReLU",
	Tanh:      "Tanh",
	Sigmoid:   "Sigmoid",
	Reshape:   "Reshape",
}

func (lt LayerType) String() string {
	if name, ok := layerTypeNames[lt]; ok {
		return name
	}
	return "Unknown"
}

func (lt LayerType) MarshalText() ([]byte, error) {
	name, ok := layerTypeNames[lt]
	if !ok {
		return nil, fmt.Errorf("unknown layer type %d", int(lt))
	}
	return []byte(name), nil
}

func (lt *LayerType) UnmarshalText(text []byte) error {
	for t, name := range layerTypeNames {
		if strings.EqualFold(name, string(text)) {
			*lt = t
			return nil
		}
	}
	return fmt.Errorf("unknown layer type %q", text)
}

// LayerSpec is the configuration of one layer. Shapes are per sample and are
// filled in by Compile.
type LayerSpec struct {
	Type LayerType `json:"type"`
	Name string    `json:"name"`

	// Dense
	Units   int  `json:"units,omitempty"`
	UseBias bool `json:"use_bias,omitempty"`
	// LeakyReLU
	NegativeSlope float64 `json:"negative_slope,omitempty"`
	// Reshape target, excluding the batch axis
	Shape []int `json:"shape,omitempty"`

	InputShape      []int   `json:"input_shape,omitempty"`
	OutputShape     []int   `json:"output_shape,omitempty"`
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`
}

func DenseLayer(units int, useBias bool, name string) LayerSpec {
	return LayerSpec{Type: Dense, Name: name, Units: units, UseBias: useBias}
}

func LeakyReLULayer(negativeSlope float64, name string) LayerSpec {
	return LayerSpec{Type: LeakyReLU, Name: name, NegativeSlope: negativeSlope}
}

// ActivationLayer describes a parameter-free activation of the given type.
func ActivationLayer(t LayerType, name string) LayerSpec {
	return LayerSpec{Type: t, Name: name}
}

func ReshapeLayer(shape []int, name string) LayerSpec {
	return LayerSpec{Type: Reshape, Name: name, Shape: append([]int(nil), shape...)}
}

// infer fills the computed fields from the per-sample input shape.
func (l *LayerSpec) infer(input []int) error {
	l.InputShape = append([]int(nil), input...)
	l.ParameterShapes = nil
	l.ParameterCount = 0

	switch l.Type {
	case Dense:
		if l.Units <= 0 {
			return fmt.Errorf("dense layer needs a positive unit count, got %d", l.Units)
		}
		fanIn := numElements(input)
		l.ParameterShapes = [][]int{{fanIn, l.Units}}
		l.ParameterCount = int64(fanIn * l.Units)
		if l.UseBias {
			l.ParameterShapes = append(l.ParameterShapes, []int{l.Units})
			l.ParameterCount += int64(l.Units)
		}
		l.OutputShape = []int{l.Units}
	case Reshape:
		if len(l.Shape) == 0 {
			return fmt.Errorf("reshape layer has no target shape")
		}
		if numElements(l.Shape) != numElements(input) {
			return fmt.Errorf("cannot reshape %v into %v", input, l.Shape)
		}
		l.OutputShape = append([]int(nil), l.Shape...)
	case ReLU, LeakyReLU, Tanh, Sigmoid:
		l.OutputShape = append([]int(nil), input...)
	default:
		return fmt.Errorf("unsupported layer type %s", l.Type)
	}
	return nil
}

// ModelSpec is a compiled sequence of layers. Shapes exclude the batch axis.
type ModelSpec struct {
	Layers []LayerSpec `json:"layers"`

	InputShape      []int   `json:"input_shape"`
	OutputShape     []int   `json:"output_shape"`
	ParameterShapes [][]int `json:"parameter_shapes"`
	TotalParameters int64   `json:"total_parameters"`
	Compiled        bool    `json:"compiled"`
}

// ModelBuilder accumulates layer specs for a fixed per-sample input shape.
type ModelBuilder struct {
	inputShape []int
	layers     []LayerSpec
}

func NewModelBuilder(inputShape []int) *ModelBuilder {
	return &ModelBuilder{inputShape: append([]int(nil), inputShape...)}
}

func (mb *ModelBuilder) AddLayer(layer LayerSpec) *ModelBuilder {
	mb.layers = append(mb.layers, layer)
	return mb
}

// AddDense appends a fully connected layer; inputs are flattened per sample.
func (mb *ModelBuilder) AddDense(units int, useBias bool, name string) *ModelBuilder {
	return mb.AddLayer(DenseLayer(units, useBias, name))
}

func (mb *ModelBuilder) AddReLU(name string) *ModelBuilder {
	return mb.AddLayer(ActivationLayer(ReLU, name))
}

func (mb *ModelBuilder) AddLeakyReLU(negativeSlope float64, name string) *ModelBuilder {
	return mb.AddLayer(LeakyReLULayer(negativeSlope, name))
}

func (mb *ModelBuilder) AddTanh(name string) *ModelBuilder {
	return mb.AddLayer(ActivationLayer(Tanh, name))
}

func (mb *ModelBuilder) AddSigmoid(name string) *ModelBuilder {
	return mb.AddLayer(ActivationLayer(Sigmoid, name))
}

func (mb *ModelBuilder) AddReshape(shape []int, name string) *ModelBuilder {
	return mb.AddLayer(ReshapeLayer(shape, name))
}

// Compile propagates shapes through the layers and totals the parameters.
func (mb *ModelBuilder) Compile() (*ModelSpec, error) {
	if len(mb.inputShape) == 0 {
		return nil, fmt.Errorf("cannot compile model without an input shape")
	}
	if len(mb.layers) == 0 {
		return nil, fmt.Errorf("cannot compile empty model")
	}

	model := &ModelSpec{
		Layers:     append([]LayerSpec(nil), mb.layers...),
		InputShape: append([]int(nil), mb.inputShape...),
	}

	shape := model.InputShape
	for i := range model.Layers {
		layer := &model.Layers[i]
		if err := layer.infer(shape); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Name, err)
		}
		model.ParameterShapes = append(model.ParameterShapes, layer.ParameterShapes...)
		model.TotalParameters += layer.ParameterCount
		shape = layer.OutputShape
	}
	model.OutputShape = shape
	model.Compiled = true
	return model, nil
}

// Recompile recomputes shapes for a spec loaded from JSON.
func (ms *ModelSpec) Recompile() (*ModelSpec, error) {
	mb := NewModelBuilder(ms.InputShape)
	for _, l := range ms.Layers {
		mb.AddLayer(LayerSpec{
			Type:          l.Type,
			Name:          l.Name,
			Units:         l.Units,
			UseBias:       l.UseBias,
			NegativeSlope: l.NegativeSlope,
			Shape:         l.Shape,
		})
	}
	return mb.Compile()
}

func (ms *ModelSpec) Summary() string {
	if !ms.Compiled {
		return "Model not compiled"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Model Summary: %v -> %v, %d parameters\n", ms.InputShape, ms.OutputShape, ms.TotalParameters)
	for i, l := range ms.Layers {
		fmt.Fprintf(&sb, "%3d  %-12s %-10s %-14v %d\n", i+1, l.Name, l.Type, l.OutputShape, l.ParameterCount)
	}
	return sb.String()
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
