package engine

import (
	"context"
	"image"
	"strings"

	"github.com/devicelab-dev/rerouter/pkg/core"
	"github.com/devicelab-dev/rerouter/pkg/logger"
	"github.com/devicelab-dev/rerouter/pkg/page"
	"github.com/devicelab-dev/rerouter/pkg/pixel"
	"github.com/devicelab-dev/rerouter/pkg/route"
)

// doActionForRoute performs m's action once the route has been seen stably.
// It reports whether the action ran; the error is only ever a context error.
func (e *Engine) doActionForRoute(ctx context.Context, rc *core.Context, f pixel.Frame, m route.Match, finish core.FinishFunc) (bool, error) {
	r := m.Route
	logger.Info("[Rerouter] handleMatchedRoute: %s, pages: [%s], times: %d, during: %d",
		r.Path, strings.Join(page.Names(m.Pages), ", "), rc.MatchTimes, rc.MatchDuring.Milliseconds())

	if rc.MatchTimes < r.ShouldMatchTimes || rc.MatchDuring < r.ShouldMatchDuring {
		return false, nil
	}

	if r.BeforeRoute != nil {
		e.logImpl(r.Debug, "Route: %s executing beforeRoute callback", r.Path)
		if err := safeCall(func() error { return r.BeforeRoute(rc, f, m.Pages) }); err != nil {
			warning("Route: %s beforeRoute callback error: %v", r.Path, err)
		}
	}

	if err := e.sleep(ctx, r.BeforeActionDelay); err != nil {
		return false, err
	}

	if err := e.dispatch(rc, f, r, m.Pages, finish); err != nil {
		warning("Route: %s action execution error: %v", r.Path, err)
	}

	e.savePageReference(f, m.Pages)
	if err := e.sleep(ctx, r.AfterActionDelay); err != nil {
		return true, err
	}

	if r.AfterRoute != nil {
		e.logImpl(r.Debug, "Route: %s executing afterRoute callback", r.Path)
		if err := safeCall(func() error { return r.AfterRoute(rc, f, m.Pages) }); err != nil {
			warning("Route: %s afterRoute callback error: %v", r.Path, err)
		}
	}
	return true, nil
}

func (e *Engine) dispatch(rc *core.Context, f pixel.Frame, r *core.Route, pages []*page.Page, finish core.FinishFunc) error {
	var first *page.Page
	if len(pages) > 0 {
		first = pages[0]
	}

	switch r.Action.Kind {
	case core.ActionGoNext:
		if first == nil || first.Next == nil {
			warning("%s action == goNext, but no next xy", r.Path)
			return nil
		}
		return e.screen.Tap(first.Next.X, first.Next.Y)
	case core.ActionGoBack:
		if first == nil || first.Back == nil {
			warning("%s action == goBack, but no back xy", r.Path)
			return nil
		}
		return e.screen.Tap(first.Back.X, first.Back.Y)
	case core.ActionKeycodeBack:
		return e.screen.Keycode("BACK")
	case core.ActionCustom:
		if r.Action.Func == nil {
			warning("%s custom action has no function", r.Path)
			return nil
		}
		return safeCall(func() error { return r.Action.Func(rc, f, pages, finish) })
	default:
		warning("%s unknown action kind %d", r.Path, r.Action.Kind)
		return nil
	}
}

func (e *Engine) savePageReference(f pixel.Frame, pages []*page.Page) {
	ref := e.cfg.PageReference
	if !ref.Enable || ref.Folder == "" || e.cfg.Images == nil || len(pages) == 0 {
		return
	}
	for _, p := range pages {
		points := make([]image.Point, len(p.Points))
		for i, pt := range p.Points {
			points[i] = image.Pt(pt.X, pt.Y)
		}
		if _, err := e.cfg.Images.SavePointsMarked(ref.Folder, p.Name, f.Image(), points, ref.Color); err != nil {
			logger.Warn("[Rerouter] failed to save page reference %s: %v", p.Name, err)
		}
	}
}
