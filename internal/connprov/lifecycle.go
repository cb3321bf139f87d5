package connprov

import (
	"sync"
	"sync/atomic"
)

// Lifecycle serializes Start/Stop/Close transitions and publishes the state
// flag read by the accept loop.
type Lifecycle struct {
	mu        sync.Mutex
	state     atomic.Int32
	destroyed bool
}

// State returns the current state without locking.
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// Active reports whether the provider is Active.
func (l *Lifecycle) Active() bool {
	return l.State() == StateActive
}

// Start runs start while holding the lifecycle lock and marks the provider
// Active when it succeeds. start runs with the state already Active so the
// accept loop it spawns observes it.
func (l *Lifecycle) Start(start func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return InvalidObject("provider has been closed")
	}
	if l.State() == StateActive {
		return InvalidObject("provider already started")
	}
	l.state.Store(int32(StateActive))
	if err := start(); err != nil {
		l.state.Store(int32(StateStopped))
		return err
	}
	return nil
}

// Stop flips the state to Stopped and then runs stop. Stopping a stopped
// provider is a no-op.
func (l *Lifecycle) Stop(stop func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return InvalidObject("provider has been closed")
	}
	if l.State() != StateActive {
		return nil
	}
	l.state.Store(int32(StateStopped))
	stop()
	return nil
}

// Close runs release once, only on a stopped provider.
func (l *Lifecycle) Close(release func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return InvalidObject("provider already closed")
	}
	if l.State() == StateActive {
		return InvalidObject("provider must be stopped before Close")
	}
	l.destroyed = true
	release()
	return nil
}

// RequireActive guards operations that need a started provider.
func (l *Lifecycle) RequireActive(op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return InvalidObject("%s: provider has been closed", op)
	}
	if l.State() != StateActive {
		return InvalidObject("%s: provider not started", op)
	}
	return nil
}
