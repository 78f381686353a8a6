// Package page defines visual page signatures and the pixel matching rules
// used to recognise them in a captured frame.
package page

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/rerouter/pkg/pixel"
)

// XY is a logical screen coordinate.
type XY struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// Point is an expected color at a logical coordinate.
type Point struct {
	X         int      `yaml:"x" json:"x"`
	Y         int      `yaml:"y" json:"y"`
	R         uint8    `yaml:"r" json:"r"`
	G         uint8    `yaml:"g" json:"g"`
	B         uint8    `yaml:"b" json:"b"`
	Threshold *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	// ShouldMatch set to false turns the point into a negative constraint:
	// the observed color must NOT be similar. Nil means true.
	ShouldMatch *bool `yaml:"match,omitempty" json:"match,omitempty"`
}

// Color returns the expected color of the point.
func (p Point) Color() pixel.RGB {
	return pixel.RGB{R: p.R, G: p.G, B: p.B}
}

// Expected reports whether the point should match.
func (p Point) Expected() bool {
	return p.ShouldMatch == nil || *p.ShouldMatch
}

// String formats the point the way debug traces print it.
func (p Point) String() string {
	return fmt.Sprintf("{ x: %3d, y: %3d, r: %3d, g: %3d, b: %3d }", p.X, p.Y, p.R, p.G, p.B)
}

// Page is a named screen signature made of color points.
type Page struct {
	Name      string   `yaml:"name" json:"name"`
	Points    []Point  `yaml:"points" json:"points"`
	Next      *XY      `yaml:"next,omitempty" json:"next,omitempty"`
	Back      *XY      `yaml:"back,omitempty" json:"back,omitempty"`
	Threshold *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

// MatchOp combines the children of a GroupPage.
type MatchOp int

const (
	OpOr  MatchOp = iota // at least one child matches
	OpAnd                // every child matches
)

// String returns the operator symbol.
func (o MatchOp) String() string {
	switch o {
	case OpOr:
		return "||"
	case OpAnd:
		return "&&"
	default:
		return "unknown"
	}
}

// ParseMatchOp accepts "or", "and", "||" and "&&". Empty means OR.
func ParseMatchOp(s string) (MatchOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "or", "||":
		return OpOr, nil
	case "and", "&&":
		return OpAnd, nil
	default:
		return OpOr, fmt.Errorf("unknown match op %q", s)
	}
}

// GroupPage is a named set of pages combined with a MatchOp.
type GroupPage struct {
	Name      string
	Pages     []*Page
	Op        MatchOp
	Next      *XY
	Back      *XY
	Threshold *float64
}

// Matchable is either a *Page or a *GroupPage.
type Matchable interface {
	PageName() string
	// Targets returns the next and back tap points, either may be nil.
	Targets() (next, back *XY)
	matchable()
}

// PageName implements Matchable.
func (p *Page) PageName() string { return p.Name }

// Targets implements Matchable.
func (p *Page) Targets() (*XY, *XY) { return p.Next, p.Back }

func (*Page) matchable() {}

// PageName implements Matchable.
func (g *GroupPage) PageName() string { return g.Name }

// Targets implements Matchable.
func (g *GroupPage) Targets() (*XY, *XY) { return g.Next, g.Back }

func (*GroupPage) matchable() {}

// Threshold returns a pointer to v, for populating optional thresholds.
func Threshold(v float64) *float64 {
	return &v
}

// Not returns a ShouldMatch value of false.
func Not() *bool {
	f := false
	return &f
}

// Names returns the names of pages in order.
func Names(pages []*Page) []string {
	names := make([]string, len(pages))
	for i, p := range pages {
		names[i] = p.Name
	}
	return names
}
