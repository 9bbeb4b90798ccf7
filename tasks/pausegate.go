package tasks

import (
	"context"
	"sync"
)

// PauseGate is the shared paused-flag every running task samples at a
// yield point, backed by a resume channel so a paused task blocks
// instead of busy-polling.
type PauseGate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

// NewPauseGate returns a gate that starts resumed.
func NewPauseGate() *PauseGate {
	return &PauseGate{resume: make(chan struct{})}
}

// Pause flips the shared flag; tasks already blocked in Wait will stay
// blocked until Resume.
func (g *PauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = true
}

// Resume releases every task currently blocked in Wait.
func (g *PauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resume)
	g.resume = make(chan struct{})
}

// Wait blocks the caller while paused, returning ctx.Err() if cancelled
// while waiting. It is a no-op when not paused.
func (g *PauseGate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		paused, ch := g.paused, g.resume
		g.mu.Unlock()
		if !paused {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
