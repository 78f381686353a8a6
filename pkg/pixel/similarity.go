package pixel

import (
	"image"
	"image/color"
	"image/draw"

	"gonum.org/v1/gonum/floats"
)

// sampleStride is the pixel step used when comparing whole frames.
const sampleStride = 2

// FrameSimilarity returns a score in [0, 1] describing how alike two frames
// are: one minus the mean absolute channel difference over a sampled grid.
// Frames of different sizes score 0.
func FrameSimilarity(a, b Frame) float64 {
	aw, ah := a.Size()
	bw, bh := b.Size()
	if aw != bw || ah != bh || aw == 0 || ah == 0 {
		return 0
	}

	va := channels(a, aw, ah)
	vb := channels(b, bw, bh)
	dist := floats.Distance(va, vb, 1)
	return 1 - dist/(255*float64(len(va)))
}

func channels(f Frame, w, h int) []float64 {
	out := make([]float64, 0, ((w+sampleStride-1)/sampleStride)*((h+sampleStride-1)/sampleStride)*3)
	for y := 0; y < h; y += sampleStride {
		for x := 0; x < w; x += sampleStride {
			c := f.ColorAt(x, y)
			out = append(out, float64(c.R), float64(c.G), float64(c.B))
		}
	}
	return out
}

// MarkPoints returns a copy of img with a filled circle of the given radius
// drawn at each point.
func MarkPoints(img image.Image, points []image.Point, radius int, c color.RGBA) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)

	r2 := radius * radius
	for _, p := range points {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if dx*dx+dy*dy > r2 {
					continue
				}
				pt := image.Pt(b.Min.X+p.X+dx, b.Min.Y+p.Y+dy)
				if pt.In(b) {
					out.SetRGBA(pt.X, pt.Y, c)
				}
			}
		}
	}
	return out
}
