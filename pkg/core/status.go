package core

// EngineState is the lifecycle state of an engine.
type EngineState int

const (
	StateIdle         EngineState = iota // Not started or stopped
	StateRunning                         // Scheduling tasks
	StateRouteLooping                    // Inside a task's route loop
)

// String returns the string representation of EngineState
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateRouteLooping:
		return "route_looping"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone     ErrorCategory = iota // No error
	ErrCategoryConfig                        // Duplicate registration, missing target, bad catalogue
	ErrCategoryCallback                      // User hook or action failed
	ErrCategoryConflict                      // Equal-priority routes matched together
	ErrCategoryDevice                        // Capture or input failed
	ErrCategoryApp                           // App could not be launched or stopped
	ErrCategoryReplay                        // Folder replay found mismatches
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryCallback:
		return "callback"
	case ErrCategoryConflict:
		return "conflict"
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryApp:
		return "app"
	case ErrCategoryReplay:
		return "replay"
	default:
		return "unknown"
	}
}

// GameStatus is the app-level status reported to the status service.
type GameStatus string

const (
	GameStatusWaitForInput   GameStatus = "wait-for-input"
	GameStatusLoginSucceeded GameStatus = "login-succeeded"
	GameStatusLoginFailed    GameStatus = "login-failed"
	GameStatusLaunching      GameStatus = "launching"
	GameStatusPlaying        GameStatus = "playing"
	GameStatusNewAccount     GameStatus = "new-account"
)

// Valid reports whether s is a known status.
func (s GameStatus) Valid() bool {
	switch s {
	case GameStatusWaitForInput, GameStatusLoginSucceeded, GameStatusLoginFailed,
		GameStatusLaunching, GameStatusPlaying, GameStatusNewAccount:
		return true
	default:
		return false
	}
}
