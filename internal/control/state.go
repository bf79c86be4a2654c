// Package control owns the operator-facing run/pause/configuration state
// machine and the background Telegram command listener that drives it.
package control

import (
	"log/slog"
	"sync"
)

// State is the pipeline's operating mode.
type State int

const (
	Running State = iota
	Paused
	ConfigMode
)

func (s State) String() string {
	switch s {
	case Paused:
		return "paused"
	case ConfigMode:
		return "config-mode"
	default:
		return "running"
	}
}

// Status is a point-in-time snapshot of the control state.
type Status struct {
	State  State
	Reason string // set while paused
}

// Controller holds the state machine. Valid transitions:
// Running ⇄ Paused and Running ⇄ ConfigMode; anything else is ignored.
type Controller struct {
	mu     sync.Mutex
	state  State
	reason string
}

func NewController() *Controller {
	return &Controller{state: Running}
}

// Snapshot returns the current state atomically; the pipeline driver reads
// it once at the top of each cycle.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, Reason: c.reason}
}

// Pause moves Running -> Paused(reason). Returns false if not running.
func (c *Controller) Pause(reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return false
	}
	c.state = Paused
	c.reason = reason
	slog.Info("Pipeline paused", "reason", reason)
	return true
}

// Resume moves Paused -> Running, clearing the reason.
func (c *Controller) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return false
	}
	c.state = Running
	c.reason = ""
	slog.Info("Pipeline resumed")
	return true
}

// EnterConfig moves Running -> ConfigMode.
func (c *Controller) EnterConfig() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return false
	}
	c.state = ConfigMode
	slog.Info("Configuration mode enabled")
	return true
}

// ExitConfig moves ConfigMode -> Running.
func (c *Controller) ExitConfig() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ConfigMode {
		return false
	}
	c.state = Running
	slog.Info("Configuration mode disabled")
	return true
}
