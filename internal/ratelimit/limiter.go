// Package ratelimit throttles chat traffic per connection.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether one more event is allowed for a key
// ARCHITECTURAL DISCOVERY: Same contract for the in-process and Redis backends,
// so the relay layer never knows which one it is talking to
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// MemoryLimiter implements per-key fixed window rate limiting
// ARCHITECTURAL DISCOVERY: Per-key state tracking with proper cleanup prevents memory leaks
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*windowState
	now     func() time.Time
}

// windowState tracks rate limiting for a single key
type windowState struct {
	count       int
	windowStart time.Time
}

// NewMemoryLimiter creates an in-process limiter allowing limit events per window
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*windowState),
		now:     time.Now,
	}
}

// Allow reports whether key may send one more event in the current window
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	state, exists := rl.clients[key]
	if !exists {
		// FUNCTIONAL DISCOVERY: First event always allowed, initialize tracking
		rl.clients[key] = &windowState{count: 1, windowStart: now}
		return true, nil
	}

	if now.Sub(state.windowStart) >= rl.window {
		state.count = 1
		state.windowStart = now
		return true, nil
	}

	if state.count >= rl.limit {
		return false, nil
	}

	state.count++
	return true, nil
}

// Reset forgets a key, used when its connection goes away
func (rl *MemoryLimiter) Reset(_ context.Context, key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, key)
	return nil
}

// Cleanup removes entries idle for more than five windows
func (rl *MemoryLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, state := range rl.clients {
		if now.Sub(state.windowStart) > 5*rl.window {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every window until ctx is done
func (rl *MemoryLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// Len returns the number of tracked keys
func (rl *MemoryLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
