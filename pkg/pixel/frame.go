package pixel

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"sync/atomic"
)

// Frame is a captured screen image in logical coordinates.
// Frames are owned by whoever acquired them and must be released on every
// exit path.
type Frame interface {
	// ColorAt samples the pixel at (x, y). Out of bounds reads return black.
	ColorAt(x, y int) RGB
	// Size returns the frame width and height.
	Size() (width, height int)
	// Image exposes the backing image for persistence.
	Image() image.Image
	// Release frees the frame. Calling it more than once is a no-op.
	Release()
}

// ImageFrame is a Frame backed by an image.Image.
type ImageFrame struct {
	img      image.Image
	released atomic.Bool
}

// NewImageFrame wraps img as a Frame.
func NewImageFrame(img image.Image) *ImageFrame {
	return &ImageFrame{img: img}
}

// LoadPNG decodes a PNG file into a Frame.
func LoadPNG(path string) (*ImageFrame, error) {
	f, err := os.Open(path) //#nosec G304 -- caller-provided frame file
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return NewImageFrame(img), nil
}

// ColorAt implements Frame.
func (f *ImageFrame) ColorAt(x, y int) RGB {
	if f.img == nil {
		return RGB{}
	}
	b := f.img.Bounds()
	px, py := b.Min.X+x, b.Min.Y+y
	if x < 0 || y < 0 || px >= b.Max.X || py >= b.Max.Y {
		return RGB{}
	}
	r, g, bl, _ := f.img.At(px, py).RGBA()
	return RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8)}
}

// Size implements Frame.
func (f *ImageFrame) Size() (int, int) {
	if f.img == nil {
		return 0, 0
	}
	b := f.img.Bounds()
	return b.Dx(), b.Dy()
}

// Image implements Frame.
func (f *ImageFrame) Image() image.Image {
	return f.img
}

// Release implements Frame.
func (f *ImageFrame) Release() {
	f.released.Store(true)
}

// Released reports whether Release has been called.
func (f *ImageFrame) Released() bool {
	return f.released.Load()
}
