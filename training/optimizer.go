package training

import (
	"github.com/tsawler/go-mgan/optimizer"
)

// Optimizer updates one model's parameters from their accumulated gradients.
// Each optimizer must be bound to exactly the parameters of its model.
type Optimizer interface {
	Step() error
	ZeroGrad()
	GetLR() float64
	SetLR(lr float64)
}

var (
	_ Optimizer = (*optimizer.SGD)(nil)
	_ Optimizer = (*optimizer.Adam)(nil)
	_ Optimizer = (*optimizer.RMSProp)(nil)
)
