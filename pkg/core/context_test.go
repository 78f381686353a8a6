package core

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestContext_Observe(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewContext(&Task{Name: "t"}, nil, "", nil)

	steps := []struct {
		path       string
		at         time.Duration
		wantTimes  int
		wantDuring time.Duration
	}{
		{"/a", 0, 1, 0},
		{"/a", 2 * time.Second, 2, 2 * time.Second},
		{"/a", 4 * time.Second, 3, 4 * time.Second},
		{"/b", 6 * time.Second, 1, 0},
		{"", 8 * time.Second, 1, 0},
		{"", 10 * time.Second, 2, 2 * time.Second},
	}
	for i, s := range steps {
		c.Observe(s.path, base.Add(s.at))
		if c.MatchTimes != s.wantTimes || c.MatchDuring != s.wantDuring {
			t.Errorf("step %d (%q): times=%d during=%v, want %d/%v", i, s.path, c.MatchTimes, c.MatchDuring, s.wantTimes, s.wantDuring)
		}
		c.Settle()
	}
}

func TestContext_CarriesLastMatchedPath(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewContext(&Task{}, nil, "/a", nil)
	c.Observe("/a", now)
	if c.MatchTimes != 1 || !c.MatchStart.Equal(now) {
		t.Errorf("times=%d start=%v", c.MatchTimes, c.MatchStart)
	}
}

func TestContext_ScriptRunning(t *testing.T) {
	var running atomic.Bool
	c := NewContext(&Task{}, nil, "", &running)
	if c.ScriptRunning() {
		t.Error("should not be running")
	}
	running.Store(true)
	if !c.ScriptRunning() {
		t.Error("should be running")
	}
	if (&Context{}).ScriptRunning() {
		t.Error("unbound context should report not running")
	}
}
