// Package pixel provides color comparison and frame primitives used by page matching.
package pixel

import (
	"fmt"
	"math"
)

// RGB is an 8-bit color sample.
type RGB struct {
	R uint8 `yaml:"r" json:"r"`
	G uint8 `yaml:"g" json:"g"`
	B uint8 `yaml:"b" json:"b"`
}

// String formats the color with each channel padded to three columns.
func (c RGB) String() string {
	return fmt.Sprintf("{ r: %3d, g: %3d, b: %3d }", c.R, c.G, c.B)
}

// Similarity scores how close two colors are using the redmean weighted
// Euclidean distance. Identical colors score 1; black against white scores
// about 0.004. The result is symmetric.
func Similarity(a, b RGB) float64 {
	// sum is twice the red mean; the weights are scaled by two and shifted
	// one bit further so the floor matches the half-unit mean exactly.
	sum := int64(a.R) + int64(b.R)
	dr := int64(a.R) - int64(b.R)
	dg := int64(a.G) - int64(b.G)
	db := int64(a.B) - int64(b.B)

	rTerm := ((1024 + sum) * dr * dr) >> 9
	bTerm := ((1534 - sum) * db * db) >> 9

	return 1 - math.Sqrt(float64(rTerm+4*dg*dg+bTerm))/768
}
