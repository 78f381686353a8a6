package page

import (
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
)

// ResolveThreshold picks the threshold for one point: the point's own value,
// then the page's, then parent.
func ResolveThreshold(pt Point, p *Page, parent float64) float64 {
	if pt.Threshold != nil {
		return *pt.Threshold
	}
	if p != nil && p.Threshold != nil {
		return *p.Threshold
	}
	return parent
}

// MatchPage reports whether every point of p holds in f. Points are checked
// in declaration order and evaluation stops at the first mismatch.
func MatchPage(f pixel.Frame, p *Page, parent float64, debug bool) bool {
	if debug {
		logger.Debug("checkMatchPage[%s]", p.Name)
	}

	matched := true
	for i, pt := range p.Points {
		thres := ResolveThreshold(pt, p, parent)
		observed := f.ColorAt(pt.X, pt.Y)
		score := pixel.Similarity(pt.Color(), observed)
		if (score >= thres) == pt.Expected() {
			continue
		}
		matched = false
		if debug {
			got := Point{X: pt.X, Y: pt.Y, R: observed.R, G: observed.G, B: observed.B}
			logger.Debug("point[%d] match false: score: %v, thres: %v\n expect: %s\n    get: %s", i, score, thres, pt, got)
		}
		break
	}

	if debug {
		logger.Debug("checkMatchPage[%s][match: %t]", p.Name, matched)
	}
	return matched
}

// MatchGroupPage evaluates every child of g and combines the results with
// g.Op. OR returns each matching child; AND returns all children only when
// every child matched. An empty result means no match.
func MatchGroupPage(f pixel.Frame, g *GroupPage, parent float64, debug bool) []*Page {
	thres := parent
	if g.Threshold != nil {
		thres = *g.Threshold
	}

	matched := make([]*Page, 0, len(g.Pages))
	for i, p := range g.Pages {
		ok := MatchPage(f, p, thres, debug)
		if debug {
			logger.Debug("checkMatchGroupPage: %s, page[%d]: %s match: %t", g.Name, i, p.Name, ok)
		}
		if ok {
			matched = append(matched, p)
		}
	}

	switch g.Op {
	case OpAnd:
		if len(matched) != len(g.Pages) {
			return nil
		}
	default:
		if len(matched) == 0 {
			return nil
		}
	}
	return matched
}

// PagesMatching returns every child of g that matches f, regardless of Op.
func PagesMatching(f pixel.Frame, g *GroupPage, parent float64, debug bool) []*Page {
	thres := parent
	if g.Threshold != nil {
		thres = *g.Threshold
	}
	var matched []*Page
	for _, p := range g.Pages {
		if MatchPage(f, p, thres, debug) {
			matched = append(matched, p)
		}
	}
	return matched
}

// Match dispatches on the concrete type of m. It returns whether m matched
// and the pages that did.
func Match(f pixel.Frame, m Matchable, pageParent, groupParent float64, debug bool) (bool, []*Page) {
	switch v := m.(type) {
	case *Page:
		if MatchPage(f, v, pageParent, debug) {
			return true, []*Page{v}
		}
	case *GroupPage:
		if pages := MatchGroupPage(f, v, groupParent, debug); len(pages) > 0 {
			return true, pages
		}
	}
	return false, nil
}
