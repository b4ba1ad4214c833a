package training

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/tsawler/go-mgan/tensor"
)

// GridConfig controls how a batch of images is tiled into one frame.
type GridConfig struct {
	Columns int     `json:"columns"`
	Padding int     `json:"padding"`
	Low     float64 `json:"low"`  // value mapped to black
	High    float64 `json:"high"` // value mapped to white
}

func DefaultGridConfig() GridConfig {
	return GridConfig{Columns: 8, Padding: 2, Low: -1, High: 1}
}

func (g GridConfig) Validate() error {
	if g.Columns < 1 {
		return fmt.Errorf("grid columns must be positive, got %d", g.Columns)
	}
	if g.Padding < 0 {
		return fmt.Errorf("grid padding must be non-negative, got %d", g.Padding)
	}
	if g.High <= g.Low {
		return fmt.Errorf("grid range [%v, %v] is empty", g.Low, g.High)
	}
	return nil
}

var grayPalette = func() color.Palette {
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.Gray{Y: uint8(i)}
	}
	return p
}()

// MakeGrid tiles [B, C, H, W] (or [B, H, W]) images row by row, using the
// first channel, with padding between and around tiles.
func MakeGrid(images *tensor.Tensor, config GridConfig) (*image.Paletted, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var channels, height, width int
	switch images.Dim() {
	case 3:
		channels, height, width = 1, images.Shape[1], images.Shape[2]
	case 4:
		channels, height, width = images.Shape[1], images.Shape[2], images.Shape[3]
	default:
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "image grid expects [B, C, H, W], got %v", images.Shape)
	}

	count := images.BatchSize()
	cols := config.Columns
	if count < cols {
		cols = count
	}
	rows := (count + cols - 1) / cols
	pad := config.Padding

	img := image.NewPaletted(image.Rect(0, 0, cols*(width+pad)+pad, rows*(height+pad)+pad), grayPalette)
	span := config.High - config.Low
	plane := height * width

	for n := 0; n < count; n++ {
		x0 := pad + (n%cols)*(width+pad)
		y0 := pad + (n/cols)*(height+pad)
		// channel 0 of sample n
		pixels := images.Data[n*channels*plane : n*channels*plane+plane]
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := (pixels[y*width+x] - config.Low) / span
				switch {
				case v < 0 || math.IsNaN(v):
					v = 0
				case v > 1:
					v = 1
				}
				img.SetColorIndex(x0+x, y0+y, uint8(v*255+0.5))
			}
		}
	}
	return img, nil
}

// Animation accumulates grid frames for one generator.
type Animation struct {
	// Delay between frames in 100ths of a second
	Delay  int
	frames []*image.Paletted
}

func NewAnimation(delay int) *Animation {
	return &Animation{Delay: delay}
}

func (a *Animation) Add(frame *image.Paletted) {
	a.frames = append(a.frames, frame)
}

func (a *Animation) Len() int {
	return len(a.frames)
}

// Encode writes every frame so far as a looping GIF.
func (a *Animation) Encode(w io.Writer) error {
	if len(a.frames) == 0 {
		return errors.New("animation has no frames")
	}
	anim := &gif.GIF{
		Image: a.frames,
		Delay: make([]int, len(a.frames)),
	}
	for i := range anim.Delay {
		anim.Delay[i] = a.Delay
	}
	return gif.EncodeAll(w, anim)
}

// WriteGIF encodes the animation to path, creating parent directories.
func (a *Animation) WriteGIF(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := a.Encode(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding %s", path)
	}
	return f.Close()
}

// GIFName is the file name of generator index's animation after epoch (both 0-based).
func GIFName(epoch, index int) string {
	return fmt.Sprintf("training_%d_epoch_generator_%d.gif", epoch, index)
}
