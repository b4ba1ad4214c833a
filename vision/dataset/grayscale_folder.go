package dataset

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tsawler/go-mgan/tensor"
	"github.com/tsawler/go-mgan/vision/cache"
	"github.com/tsawler/go-mgan/vision/preprocessing"
)

// FolderConfig controls how GrayscaleFolder reads images.
type FolderConfig struct {
	Height int
	Width  int
	// Extensions are matched case-insensitively. Defaults to .png, .jpg, .jpeg.
	Extensions []string
	// CacheSize is the number of decoded images kept in memory; 0 disables caching.
	CacheSize int
}

// GrayscaleFolder serves images from a directory as [1, H, W] tensors in
// [-1, 1]. Images directly under root form one class named after root;
// every subdirectory forms a further class.
type GrayscaleFolder struct {
	imagePaths []string
	labels     []int
	classNames []string
	classToIdx map[string]int

	processor *preprocessing.GrayscaleProcessor
	cache     *cache.LRU
}

// NewGrayscaleFolder scans root and its immediate subdirectories.
func NewGrayscaleFolder(root string, config FolderConfig) (*GrayscaleFolder, error) {
	if config.Height <= 0 || config.Width <= 0 {
		return nil, fmt.Errorf("image size must be positive, got %dx%d", config.Height, config.Width)
	}
	extensions := config.Extensions
	if len(extensions) == 0 {
		extensions = []string{".png", ".jpg", ".jpeg"}
	}

	d := &GrayscaleFolder{
		classToIdx: make(map[string]int),
		processor:  preprocessing.NewGrayscaleProcessor(config.Height, config.Width),
		cache:      cache.NewLRU(config.CacheSize),
	}

	dirs := []string{root}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}

	for _, dir := range dirs {
		files, err := imageFiles(dir, extensions)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			continue
		}

		className := filepath.Base(dir)
		idx := len(d.classNames)
		d.classNames = append(d.classNames, className)
		d.classToIdx[className] = idx
		for _, f := range files {
			d.imagePaths = append(d.imagePaths, f)
			d.labels = append(d.labels, idx)
		}
	}

	if len(d.imagePaths) == 0 {
		return nil, fmt.Errorf("no images found in %s", root)
	}
	return d, nil
}

func imageFiles(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range extensions {
			if ext == strings.ToLower(want) {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func (d *GrayscaleFolder) Len() int {
	return len(d.imagePaths)
}

// Get decodes image idx, or serves it from the cache, and returns it with
// its class index as a [1] label tensor.
func (d *GrayscaleFolder) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	if idx < 0 || idx >= len(d.imagePaths) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(d.imagePaths))
	}
	path := d.imagePaths[idx]

	pixels, ok := d.cache.Get(path)
	if !ok {
		img, err := d.processor.DecodeFile(path)
		if err != nil {
			return nil, nil, err
		}
		pixels = img.Data
		d.cache.Put(path, pixels)
	}

	data := make([]float64, len(pixels))
	copy(data, pixels)
	x, err := tensor.NewTensor([]int{1, d.processor.Height, d.processor.Width}, tensor.CPU, data)
	if err != nil {
		return nil, nil, err
	}
	label, err := tensor.NewTensor([]int{1}, tensor.CPU, []float64{float64(d.labels[idx])})
	if err != nil {
		return nil, nil, err
	}
	return x, label, nil
}

// Preload decodes every image with workers goroutines and fills the cache.
// It fails if the cache cannot hold the whole dataset.
func (d *GrayscaleFolder) Preload(workers int) error {
	if stats := d.cache.Stats(); stats.MaxSize < len(d.imagePaths) {
		return fmt.Errorf("cache holds %d images, dataset has %d", stats.MaxSize, len(d.imagePaths))
	}
	images, err := preprocessing.PreprocessBatch(d.imagePaths, d.processor.Height, d.processor.Width, workers)
	if err != nil {
		return err
	}
	for i, img := range images {
		d.cache.Put(d.imagePaths[i], img.Data)
	}
	return nil
}

func (d *GrayscaleFolder) CacheStats() cache.Stats {
	return d.cache.Stats()
}

func (d *GrayscaleFolder) NumClasses() int {
	return len(d.classNames)
}

func (d *GrayscaleFolder) ClassNames() []string {
	return d.classNames
}

// ClassDistribution returns the number of samples per class
func (d *GrayscaleFolder) ClassDistribution() map[string]int {
	dist := make(map[string]int)
	for _, label := range d.labels {
		dist[d.classNames[label]]++
	}
	return dist
}

// Split partitions the dataset into train and validation sets. The two
// halves share the cache.
func (d *GrayscaleFolder) Split(trainRatio float64, rng *rand.Rand) (*GrayscaleFolder, *GrayscaleFolder) {
	n := len(d.imagePaths)
	trainSize := int(float64(n) * trainRatio)

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if rng != nil {
		rng.Shuffle(n, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}
	return d.subset(indices[:trainSize]), d.subset(indices[trainSize:])
}

func (d *GrayscaleFolder) subset(indices []int) *GrayscaleFolder {
	s := &GrayscaleFolder{
		imagePaths: make([]string, len(indices)),
		labels:     make([]int, len(indices)),
		classNames: d.classNames,
		classToIdx: d.classToIdx,
		processor:  preprocessing.NewGrayscaleProcessor(d.processor.Height, d.processor.Width),
		cache:      d.cache,
	}
	for i, idx := range indices {
		s.imagePaths[i] = d.imagePaths[idx]
		s.labels[i] = d.labels[idx]
	}
	return s
}

func (d *GrayscaleFolder) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "GrayscaleFolder: %d samples, %d classes, %dx%d\n",
		len(d.imagePaths), len(d.classNames), d.processor.Height, d.processor.Width)

	dist := d.ClassDistribution()
	for _, className := range d.classNames {
		fmt.Fprintf(&sb, "  %s: %d samples\n", className, dist[className])
	}
	return sb.String()
}
