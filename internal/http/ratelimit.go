package http

import (
	"net/http"
	"sync"
	"time"

	applog "oshikakeibo/internal/log"
)

// rateLimiter allows a fixed number of mutating requests per client and minute.
type rateLimiter struct {
	mu                sync.Mutex
	clients           map[string]*clientInfo
	requestsPerMinute int
	now               func() time.Time

	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	windowStart time.Time
	requests    int
}

func newRateLimiter(requestsPerMinute int, now func() time.Time) *rateLimiter {
	if now == nil {
		now = time.Now
	}
	return &rateLimiter{
		clients:           make(map[string]*clientInfo),
		requestsPerMinute: requestsPerMinute,
		now:               now,
		stopCleanup:       make(chan struct{}),
	}
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, ok := rl.clients[clientIP]
	if !ok || now.Sub(client.windowStart) >= time.Minute {
		rl.clients[clientIP] = &clientInfo{windowStart: now, requests: 1}
		return true
	}
	client.requests++
	return client.requests <= rl.requestsPerMinute
}

// cleanupStaleEntries drops clients idle for more than ten minutes.
func (rl *rateLimiter) cleanupStaleEntries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-10 * time.Minute)
	removed := 0
	for ip, client := range rl.clients {
		if client.windowStart.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

func (rl *rateLimiter) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() { close(rl.stopCleanup) })
}

// middleware limits POST, PUT, PATCH and DELETE. Reads are never limited.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		clientIP := extractClientIP(r)
		if !rl.allow(clientIP) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				"client_ip", clientIP,
				"method", r.Method,
				"path", r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").
				Header("Retry-After", "60").
				Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
