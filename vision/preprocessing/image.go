package preprocessing

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"sync"
)

// GrayscaleProcessor decodes images into single-channel pixel data scaled
// to [-1, 1], resized with nearest-neighbour sampling.
type GrayscaleProcessor struct {
	mu     sync.Mutex
	buffer []float64
	Height int
	Width  int
}

func NewGrayscaleProcessor(height, width int) *GrayscaleProcessor {
	return &GrayscaleProcessor{Height: height, Width: width}
}

// ProcessedImage is one decoded image in [1, H, W] order.
type ProcessedImage struct {
	Data   []float64
	Height int
	Width  int
}

// Decode reads a PNG or JPEG image.
func (p *GrayscaleProcessor) Decode(reader io.Reader) (*ProcessedImage, error) {
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return p.Process(img), nil
}

// Process converts img to luminance and resizes it to the target size.
func (p *GrayscaleProcessor) Process(img image.Image) *ProcessedImage {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	scaleX := float64(width) / float64(p.Width)
	scaleY := float64(height) / float64(p.Height)

	p.mu.Lock()
	defer p.mu.Unlock()

	size := p.Height * p.Width
	if len(p.buffer) < size {
		p.buffer = make([]float64, size)
	}
	data := p.buffer[:size]

	for y := 0; y < p.Height; y++ {
		srcY := int(float64(y) * scaleY)
		if srcY >= height {
			srcY = height - 1
		}
		for x := 0; x < p.Width; x++ {
			srcX := int(float64(x) * scaleX)
			if srcX >= width {
				srcX = width - 1
			}
			data[y*p.Width+x] = Luminance(img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY).RGBA())
		}
	}

	result := make([]float64, size)
	copy(result, data)
	return &ProcessedImage{Data: result, Height: p.Height, Width: p.Width}
}

// Luminance maps 16-bit RGBA components to [-1, 1] with ITU-R 601 weights.
func Luminance(r, g, b, _ uint32) float64 {
	y := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535.0
	if y < 0 || math.IsNaN(y) {
		y = 0
	}
	if y > 1 {
		y = 1
	}
	return y*2 - 1
}

// PreprocessBatch decodes imagePaths with maxWorkers goroutines, keeping input order.
func PreprocessBatch(imagePaths []string, height, width, maxWorkers int) ([]*ProcessedImage, error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	results := make([]*ProcessedImage, len(imagePaths))
	errs := make([]error, len(imagePaths))

	type job struct {
		index int
		path  string
	}

	jobs := make(chan job, len(imagePaths))
	var wg sync.WaitGroup

	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor := NewGrayscaleProcessor(height, width)

			for j := range jobs {
				results[j.index], errs[j.index] = processor.DecodeFile(j.path)
			}
		}()
	}

	for i, path := range imagePaths {
		jobs <- job{index: i, path: path}
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to process image %d: %w", i, err)
		}
	}
	return results, nil
}

// DecodeFile opens and decodes path.
func (p *GrayscaleProcessor) DecodeFile(path string) (*ProcessedImage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := p.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
