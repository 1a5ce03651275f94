package netstatus

import (
	"log/slog"
	"sync"

	"github.com/rickgao/realtime-sync/internal/event"
)

// Monitor reports network reachability.
type Monitor interface {
	// Online returns the last known state.
	Online() bool

	// Subscribe registers fn for transitions and returns a function that
	// removes it. fn runs on the goroutine that observed the change.
	Subscribe(fn func(online bool)) func()
}

// state is the transition-detecting core shared by every monitor.
type state struct {
	logger *slog.Logger
	feed   *event.Feed[bool]

	mu     sync.Mutex
	online bool
}

func newState(initial bool, logger *slog.Logger) *state {
	return &state{
		logger: logger,
		feed:   event.NewFeed[bool]("network", logger),
		online: initial,
	}
}

func (s *state) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *state) Subscribe(fn func(online bool)) func() {
	return s.feed.Subscribe(fn)
}

// set records the new state and notifies subscribers on a transition.
func (s *state) set(online bool) bool {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return false
	}
	s.online = online
	s.mu.Unlock()

	if online {
		s.logger.Info("network online")
	} else {
		s.logger.Warn("network offline")
	}
	s.feed.Emit(online)
	return true
}

// Manual is a Monitor whose state is driven by the caller.
type Manual struct {
	*state
}

// NewManual creates a manual monitor in the given initial state.
func NewManual(initial bool, logger *slog.Logger) *Manual {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manual{state: newState(initial, logger.With("component", "netstatus"))}
}

// Set updates the state. It returns true if this was a transition.
func (m *Manual) Set(online bool) bool {
	return m.set(online)
}
