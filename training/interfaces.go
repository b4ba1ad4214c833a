package training

import (
	"github.com/tsawler/go-mgan/layers"
	"github.com/tsawler/go-mgan/tensor"
)

// Generator maps latent vectors to samples shaped like the real data.
type Generator interface {
	// SampleLatent draws n latent vectors placed on device.
	SampleLatent(n int, device tensor.DeviceType) (*tensor.Tensor, error)
	Forward(z *tensor.Tensor) (*tensor.Tensor, error)
	// VJP returns the gradient with respect to z and one gradient per
	// parameter for the given cotangent on Forward(z).
	VJP(z, cotangent *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
}

// Critic scores samples; Forward returns a [B] tensor.
type Critic interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	VJP(x, cotangent *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
}

// Classifier is a frozen model producing [B, K] logits.
type Classifier interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
}

// DifferentiableClassifier additionally exposes the gradient of its logits
// with respect to its input.
type DifferentiableClassifier interface {
	Classifier
	InputGradient(x, cotangent *tensor.Tensor) (*tensor.Tensor, error)
}

// BatchSource yields the real batches of one epoch. Next returns a nil batch
// once the epoch is exhausted.
type BatchSource interface {
	Reset()
	Next() (*Batch, error)
}

// Hooks are optional callbacks around the epoch loop.
type Hooks struct {
	// OnEpochEnd runs after each epoch's GIFs are written. A non-nil error aborts training.
	OnEpochEnd func(epoch int, history *LossHistory) error
}

var (
	_ Generator                = (*layers.Generator)(nil)
	_ Critic                   = (*layers.Critic)(nil)
	_ DifferentiableClassifier = (*layers.Classifier)(nil)
	_ BatchSource              = (*DataLoader)(nil)
)
