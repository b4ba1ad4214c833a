package training

import (
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"github.com/tsawler/go-mgan/tensor"
)

// Dataset interface defines methods that all datasets must implement
type Dataset interface {
	Len() int                                                           // Total number of samples
	Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) // Returns a single sample on the CPU
}

// Batch represents a batch of data and labels. Labels may be nil.
type Batch struct {
	Data   *tensor.Tensor
	Labels *tensor.Tensor
}

// DataLoaderConfig controls batching.
type DataLoaderConfig struct {
	BatchSize int
	Shuffle   bool
	// DropLast skips a trailing batch smaller than BatchSize, keeping every
	// batch divisible by the generator count when BatchSize is.
	DropLast bool
	Device   tensor.DeviceType
	Seed     int64
}

// DataLoader provides batching and shuffling over a Dataset.
type DataLoader struct {
	dataset  Dataset
	config   DataLoaderConfig
	rng      *rand.Rand
	indices  []int
	position int
	mutex    sync.Mutex
}

// NewDataLoader creates a new DataLoader. Shuffling uses a source seeded
// with config.Seed, so runs are reproducible.
func NewDataLoader(dataset Dataset, config DataLoaderConfig) (*DataLoader, error) {
	if config.BatchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", config.BatchSize)
	}
	if dataset.Len() == 0 {
		return nil, errors.New("dataset is empty")
	}

	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}

	return &DataLoader{
		dataset: dataset,
		config:  config,
		rng:     rand.New(rand.NewSource(config.Seed)),
		indices: indices,
	}, nil
}

// Len returns the number of batches in an epoch
func (dl *DataLoader) Len() int {
	n := dl.dataset.Len()
	if dl.config.DropLast {
		return n / dl.config.BatchSize
	}
	return (n + dl.config.BatchSize - 1) / dl.config.BatchSize
}

// Reset rewinds the loader for a new epoch, reshuffling if enabled.
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0
	if dl.config.Shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// Next returns the next batch or nil if epoch is complete
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	remaining := len(dl.indices) - dl.position
	if remaining <= 0 || (dl.config.DropLast && remaining < dl.config.BatchSize) {
		return nil, nil // End of epoch
	}

	batchEnd := dl.position + dl.config.BatchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}
	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	batch, err := dl.loadBatch(batchIndices)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load batch")
	}
	return batch, nil
}

// HasNext returns true if there are more batches in the current epoch
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	remaining := len(dl.indices) - dl.position
	if dl.config.DropLast {
		return remaining >= dl.config.BatchSize
	}
	return remaining > 0
}

// loadBatch stacks samples into batched tensors on the configured device.
func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	firstData, firstLabel, err := dl.dataset.Get(indices[0])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load sample %d", indices[0])
	}

	batchData, err := tensor.Zeros(append([]int{len(indices)}, firstData.Shape...), dl.config.Device)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create batch data tensor")
	}
	var batchLabels *tensor.Tensor
	if firstLabel != nil {
		batchLabels, err = tensor.Zeros(append([]int{len(indices)}, firstLabel.Shape...), dl.config.Device)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create batch labels tensor")
		}
	}

	for i, idx := range indices {
		data, label, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load sample %d", idx)
		}
		if err := copyInto(batchData, data, i); err != nil {
			return nil, errors.Wrapf(err, "failed to copy data for sample %d", idx)
		}
		if batchLabels != nil {
			if err := copyInto(batchLabels, label, i); err != nil {
				return nil, errors.Wrapf(err, "failed to copy label for sample %d", idx)
			}
		}
	}

	return &Batch{Data: batchData, Labels: batchLabels}, nil
}

// copyInto copies a sample tensor into a specific position in the batch tensor
func copyInto(batchTensor, sampleTensor *tensor.Tensor, batchIndex int) error {
	if sampleTensor == nil {
		return errors.New("missing sample tensor")
	}
	sampleSize := batchTensor.SampleSize()
	if sampleTensor.NumElems != sampleSize {
		return errors.Errorf("sample data size mismatch: expected %d, got %d", sampleSize, sampleTensor.NumElems)
	}
	offset := batchIndex * sampleSize
	copy(batchTensor.Data[offset:offset+sampleSize], sampleTensor.Data)
	return nil
}

// SimpleDataset serves pre-built sample tensors.
type SimpleDataset struct {
	data   []*tensor.Tensor
	labels []*tensor.Tensor
}

// NewSimpleDataset creates a new SimpleDataset; labels may be nil.
func NewSimpleDataset(data, labels []*tensor.Tensor) (*SimpleDataset, error) {
	if labels != nil && len(data) != len(labels) {
		return nil, errors.Errorf("data and labels must have the same length: got %d and %d", len(data), len(labels))
	}
	return &SimpleDataset{data: data, labels: labels}, nil
}

func (ds *SimpleDataset) Len() int {
	return len(ds.data)
}

func (ds *SimpleDataset) Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) {
	if idx < 0 || idx >= len(ds.data) {
		return nil, nil, errors.Errorf("index %d out of range [0, %d)", idx, len(ds.data))
	}
	if ds.labels == nil {
		return ds.data[idx], nil, nil
	}
	return ds.data[idx], ds.labels[idx], nil
}

// TensorDataset exposes the rows of an in-memory [S, ...] tensor as samples.
type TensorDataset struct {
	data   *tensor.Tensor
	labels *tensor.Tensor
}

// NewTensorDataset wraps data and optional labels sharing the leading dimension.
func NewTensorDataset(data, labels *tensor.Tensor) (*TensorDataset, error) {
	if data.Dim() < 2 {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "dataset tensor needs a sample dimension, got %v", data.Shape)
	}
	if labels != nil && labels.BatchSize() != data.BatchSize() {
		return nil, errors.Errorf("data has %d samples but labels have %d", data.BatchSize(), labels.BatchSize())
	}
	return &TensorDataset{data: data, labels: labels}, nil
}

func (ds *TensorDataset) Len() int {
	return ds.data.BatchSize()
}

func (ds *TensorDataset) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	if idx < 0 || idx >= ds.Len() {
		return nil, nil, errors.Errorf("index %d out of range [0, %d)", idx, ds.Len())
	}
	data, err := rowTensor(ds.data, idx)
	if err != nil {
		return nil, nil, err
	}
	if ds.labels == nil {
		return data, nil, nil
	}
	label, err := rowTensor(ds.labels, idx)
	if err != nil {
		return nil, nil, err
	}
	return data, label, nil
}

func rowTensor(t *tensor.Tensor, idx int) (*tensor.Tensor, error) {
	shape := t.Shape[1:]
	if len(shape) == 0 {
		shape = []int{1}
	}
	row := make([]float64, t.SampleSize())
	copy(row, t.Row(idx))
	return tensor.NewTensor(shape, tensor.CPU, row)
}

// RandomDataset generates reproducible samples uniform in [-1, 1].
type RandomDataset struct {
	size      int
	dataShape []int
	seed      int64
}

func NewRandomDataset(size int, dataShape []int, seed int64) *RandomDataset {
	return &RandomDataset{size: size, dataShape: dataShape, seed: seed}
}

func (rd *RandomDataset) Len() int {
	return rd.size
}

// Get derives the sample from the seed and index, so repeated reads agree.
func (rd *RandomDataset) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	if idx < 0 || idx >= rd.size {
		return nil, nil, errors.Errorf("index %d out of range [0, %d)", idx, rd.size)
	}
	rng := rand.New(rand.NewSource(rd.seed + int64(idx)))
	data, err := tensor.Random(rd.dataShape, tensor.CPU, rng)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create data tensor")
	}
	for i, v := range data.Data {
		data.Data[i] = v*2 - 1
	}
	return data, nil, nil
}
