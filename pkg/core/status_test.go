package core

import "testing"

func TestEngineState_String(t *testing.T) {
	tests := []struct {
		state    EngineState
		expected string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{StateRouteLooping, "route_looping"},
		{EngineState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("EngineState(%d).String() = %q, want %q", tt.state, got, tt.expected)
		}
	}
}

func TestErrorCategory_String(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		expected string
	}{
		{ErrCategoryNone, "none"},
		{ErrCategoryConfig, "config"},
		{ErrCategoryCallback, "callback"},
		{ErrCategoryConflict, "conflict"},
		{ErrCategoryDevice, "device"},
		{ErrCategoryApp, "app"},
		{ErrCategoryReplay, "replay"},
		{ErrorCategory(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.category.String(); got != tt.expected {
			t.Errorf("ErrorCategory(%d).String() = %q, want %q", tt.category, got, tt.expected)
		}
	}
}

func TestGameStatus_Valid(t *testing.T) {
	valid := []GameStatus{
		GameStatusWaitForInput, GameStatusLoginSucceeded, GameStatusLoginFailed,
		GameStatusLaunching, GameStatusPlaying, GameStatusNewAccount,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("GameStatus(%q).Valid() = false", s)
		}
	}
	if GameStatus("sleeping").Valid() {
		t.Error("unknown status should be invalid")
	}
}
