package router

import (
	"sync"
	"time"
)

// RateLimiter counts publishes per key in fixed one-minute windows.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	clients map[string]*ClientLimit
	now     func() time.Time
}

// ClientLimit tracks the current window of one key.
type ClientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter allows limit publishes per key per minute. A limit of zero
// or less disables limiting.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		clients: make(map[string]*ClientLimit),
		now:     time.Now,
	}
}

// Allow records one publish for key and reports whether it fits the window.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	limit, exists := rl.clients[key]
	if !exists {
		rl.clients[key] = &ClientLimit{messageCount: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.messageCount = 1
		limit.windowStart = now
		return true
	}

	if limit.messageCount >= rl.limit {
		return false
	}
	limit.messageCount++
	return true
}

// Cleanup drops keys idle for five windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, key)
		}
	}
}
