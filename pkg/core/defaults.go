package core

import (
	"time"

	"github.com/devicelab-dev/rerouter/pkg/screen"
)

// Defaults fills in unset route and task fields.
type Defaults struct {
	PageThreshold      float64
	GroupPageThreshold float64

	ShouldMatchTimes  int
	ShouldMatchDuring time.Duration
	BeforeActionDelay time.Duration
	AfterActionDelay  time.Duration
	Priority          int
	Debug             bool
	Rotation          screen.Rotation

	MaxTaskRunTimes  int
	MaxTaskDuring    time.Duration
	MinRoundInterval time.Duration
	ForceStop        bool
	FindRouteDelay   time.Duration
}

// DefaultDefaults returns the stock defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		PageThreshold:      0.9,
		GroupPageThreshold: 0.9,
		ShouldMatchTimes:   1,
		BeforeActionDelay:  250 * time.Millisecond,
		AfterActionDelay:   250 * time.Millisecond,
		Priority:           1,
		Rotation:           screen.Horizontal,
		MaxTaskRunTimes:    1,
		FindRouteDelay:     2000 * time.Millisecond,
	}
}

// Ptr returns a pointer to v, for filling optional config fields.
func Ptr[T any](v T) *T {
	return &v
}

func valueOr[T any](v *T, def T) T {
	if v != nil {
		return *v
	}
	return def
}

// WrapRoute resolves cfg against d.
func (d Defaults) WrapRoute(cfg RouteConfig) *Route {
	return &Route{
		Path:              cfg.Path,
		Action:            cfg.Action,
		Match:             cfg.Match,
		CustomMatch:       cfg.CustomMatch,
		Rotation:          valueOr(cfg.Rotation, d.Rotation),
		ShouldMatchTimes:  valueOr(cfg.ShouldMatchTimes, d.ShouldMatchTimes),
		ShouldMatchDuring: valueOr(cfg.ShouldMatchDuring, d.ShouldMatchDuring),
		BeforeActionDelay: valueOr(cfg.BeforeActionDelay, d.BeforeActionDelay),
		AfterActionDelay:  valueOr(cfg.AfterActionDelay, d.AfterActionDelay),
		Priority:          valueOr(cfg.Priority, d.Priority),
		Debug:             valueOr(cfg.Debug, d.Debug),
		BeforeRoute:       cfg.BeforeRoute,
		AfterRoute:        cfg.AfterRoute,
		Source:            cfg,
	}
}

// WrapTask resolves cfg against d.
func (d Defaults) WrapTask(cfg TaskConfig) *Task {
	before := cfg.BeforeTask
	if before == nil {
		before = cfg.BeforeRoute
	}
	after := cfg.AfterTask
	if after == nil {
		after = cfg.AfterRoute
	}
	return &Task{
		Name:             cfg.Name,
		MaxTaskRunTimes:  valueOr(cfg.MaxTaskRunTimes, d.MaxTaskRunTimes),
		MaxTaskDuring:    valueOr(cfg.MaxTaskDuring, d.MaxTaskDuring),
		MinRoundInterval: valueOr(cfg.MinRoundInterval, d.MinRoundInterval),
		ForceStop:        valueOr(cfg.ForceStop, d.ForceStop),
		FindRouteDelay:   valueOr(cfg.FindRouteDelay, d.FindRouteDelay),
		BeforeTask:       before,
		AfterTask:        after,
	}
}
