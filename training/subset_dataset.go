package training

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/tsawler/go-mgan/tensor"
)

// SubsetDataset exposes a selection of another dataset's samples.
type SubsetDataset struct {
	original Dataset
	indices  []int
}

// NewSubsetDataset keeps the first limit samples of original.
func NewSubsetDataset(original Dataset, limit int) (*SubsetDataset, error) {
	if limit < 0 {
		return nil, errors.New("limit cannot be negative")
	}
	if limit > original.Len() {
		limit = original.Len()
	}
	indices := make([]int, limit)
	for i := range indices {
		indices[i] = i
	}
	return &SubsetDataset{original: original, indices: indices}, nil
}

// NewRandomSubset keeps limit samples of original chosen without replacement.
func NewRandomSubset(original Dataset, limit int, rng *rand.Rand) (*SubsetDataset, error) {
	if limit < 0 {
		return nil, errors.New("limit cannot be negative")
	}
	if limit > original.Len() {
		limit = original.Len()
	}
	perm := rng.Perm(original.Len())
	return &SubsetDataset{original: original, indices: perm[:limit]}, nil
}

func (sd *SubsetDataset) Len() int {
	return len(sd.indices)
}

func (sd *SubsetDataset) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	if idx < 0 || idx >= len(sd.indices) {
		return nil, nil, errors.Errorf("index out of bounds for subset: %d (limit: %d)", idx, len(sd.indices))
	}
	return sd.original.Get(sd.indices[idx])
}
