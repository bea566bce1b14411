// Package toast holds the single process-wide user notification.
package toast

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultDuration = 3 * time.Second

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// State is the current notification. ID grows with every Show.
type State struct {
	Message string `json:"message"`
	Level   Level  `json:"level"`
	Visible bool   `json:"visible"`
	ID      uint64 `json:"id"`
}

// Notifier shows one message at a time. A later Show replaces an unexpired
// one, and the replaced message's timer can no longer hide the new one.
type Notifier struct {
	logger          *slog.Logger
	defaultDuration time.Duration

	mu        sync.Mutex
	state     State
	timer     *time.Timer
	observers []func(State)
}

func New(defaultDuration time.Duration, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultDuration == 0 {
		defaultDuration = DefaultDuration
	}
	return &Notifier{logger: logger, defaultDuration: defaultDuration}
}

// Show displays message for duration. A duration <= 0 keeps it until Hide.
func (n *Notifier) Show(message string, level Level, duration time.Duration) uint64 {
	n.mu.Lock()
	n.stopTimerLocked()
	n.state = State{Message: message, Level: level, Visible: true, ID: n.state.ID + 1}
	id := n.state.ID
	if duration > 0 {
		n.timer = time.AfterFunc(duration, func() { n.expire(id) })
	}
	state, observers := n.state, n.observersLocked()
	n.mu.Unlock()

	n.log(state)
	notify(observers, state)
	return id
}

func (n *Notifier) Info(message string) uint64 {
	return n.Show(message, LevelInfo, n.defaultDuration)
}

func (n *Notifier) Success(message string) uint64 {
	return n.Show(message, LevelSuccess, n.defaultDuration)
}

func (n *Notifier) Warning(message string) uint64 {
	return n.Show(message, LevelWarning, n.defaultDuration)
}

func (n *Notifier) Error(message string) uint64 {
	return n.Show(message, LevelError, n.defaultDuration)
}

// Hide clears the current notification.
func (n *Notifier) Hide() {
	n.mu.Lock()
	n.stopTimerLocked()
	if !n.state.Visible {
		n.mu.Unlock()
		return
	}
	n.state.Visible = false
	state, observers := n.state, n.observersLocked()
	n.mu.Unlock()

	notify(observers, state)
}

func (n *Notifier) Current() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// OnChange registers fn to be called after every show and hide.
func (n *Notifier) OnChange(fn func(State)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers, fn)
}

func (n *Notifier) expire(id uint64) {
	n.mu.Lock()
	if n.state.ID != id || !n.state.Visible {
		n.mu.Unlock()
		return
	}
	n.timer = nil
	n.state.Visible = false
	state, observers := n.state, n.observersLocked()
	n.mu.Unlock()

	notify(observers, state)
}

func (n *Notifier) stopTimerLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}

func (n *Notifier) observersLocked() []func(State) {
	return append([]func(State){}, n.observers...)
}

func (n *Notifier) log(state State) {
	level := slog.LevelInfo
	switch state.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	n.logger.Log(context.Background(), level, "notification", "message", state.Message, "level", string(state.Level))
}

func notify(observers []func(State), state State) {
	for _, fn := range observers {
		fn(state)
	}
}
