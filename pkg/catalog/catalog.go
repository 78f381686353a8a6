// Package catalog loads pages, groups, routes and tasks from YAML and
// registers them with an engine.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/rerouter/pkg/page"
)

// Catalog is the parsed content of one or more catalog files.
type Catalog struct {
	Pages      []*page.Page `yaml:"pages"`
	Groups     []GroupSpec  `yaml:"groups"`
	RouteSpecs []RouteSpec  `yaml:"routes"`
	Tasks      []TaskSpec   `yaml:"tasks"`
}

// GroupSpec combines pages by name.
type GroupSpec struct {
	Name      string   `yaml:"name"`
	Op        string   `yaml:"op"`
	Pages     []string `yaml:"pages"`
	Next      *page.XY `yaml:"next,omitempty"`
	Back      *page.XY `yaml:"back,omitempty"`
	Threshold *float64 `yaml:"threshold,omitempty"`
}

// RouteSpec is a route. Durations are in milliseconds.
type RouteSpec struct {
	Path        string     `yaml:"path"`
	Match       string     `yaml:"match"`
	CustomMatch string     `yaml:"customMatch"`
	Action      ActionSpec `yaml:"action"`
	Rotation    string     `yaml:"rotation"`

	ShouldMatchTimes  *int  `yaml:"shouldMatchTimes"`
	ShouldMatchDuring *int  `yaml:"shouldMatchDuring"`
	BeforeActionDelay *int  `yaml:"beforeActionDelay"`
	AfterActionDelay  *int  `yaml:"afterActionDelay"`
	Priority          *int  `yaml:"priority"`
	Debug             *bool `yaml:"debug"`

	// BeforeRoute and AfterRoute are JavaScript sources.
	BeforeRoute string `yaml:"beforeRoute"`
	AfterRoute  string `yaml:"afterRoute"`
}

// ActionSpec is either a builtin name (goNext, goBack, keycodeBack) or a
// mapping of steps run in field order, optionally finishing the round.
type ActionSpec struct {
	Kind    string     `yaml:"-"`
	Tap     *page.XY   `yaml:"tap"`
	Swipe   *SwipeSpec `yaml:"swipe"`
	Keycode string     `yaml:"keycode"`
	Type    string     `yaml:"type"`
	Script  string     `yaml:"script"`
	// Finish ends the round after the steps; the value is exitTask.
	Finish *bool `yaml:"finish"`
}

// UnmarshalYAML accepts a scalar action name or a step mapping.
func (a *ActionSpec) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		a.Kind = n.Value
		return nil
	}
	type plain ActionSpec
	return n.Decode((*plain)(a))
}

// IsZero reports whether no action was configured.
func (a ActionSpec) IsZero() bool {
	return a.Kind == "" && a.Tap == nil && a.Swipe == nil && a.Keycode == "" &&
		a.Type == "" && a.Script == "" && a.Finish == nil
}

// SwipeSpec is a swipe in logical coordinates.
type SwipeSpec struct {
	From  page.XY `yaml:"from"`
	To    page.XY `yaml:"to"`
	Steps int     `yaml:"steps"`
}

// TaskSpec is a task. Durations are in milliseconds.
type TaskSpec struct {
	Name             string `yaml:"name"`
	MaxTaskRunTimes  *int   `yaml:"maxTaskRunTimes"`
	MaxTaskDuring    *int   `yaml:"maxTaskDuring"`
	MinRoundInterval *int   `yaml:"minRoundInterval"`
	ForceStop        *bool  `yaml:"forceStop"`
	FindRouteDelay   *int   `yaml:"findRouteDelay"`
	// SkipWhen is an expression over name, runTimes, hour and weekday; when
	// true the round skips its route loop.
	SkipWhen string `yaml:"skipWhen"`
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &c, nil
}

// Load reads and merges catalog files in order.
func Load(paths ...string) (*Catalog, error) {
	merged := &Catalog{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
		}
		c, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		merged.Merge(c)
	}
	return merged, nil
}

// Merge appends other's entries to c.
func (c *Catalog) Merge(other *Catalog) {
	c.Pages = append(c.Pages, other.Pages...)
	c.Groups = append(c.Groups, other.Groups...)
	c.RouteSpecs = append(c.RouteSpecs, other.RouteSpecs...)
	c.Tasks = append(c.Tasks, other.Tasks...)
}
