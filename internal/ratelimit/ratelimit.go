package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter enforces per-client request limits over sliding minute and hour windows
type RateLimiter struct {
	requestsPerMinute int
	requestsPerHour   int
	enabled           bool

	clients map[string]*window
	calls   int
	now     func() time.Time
	mu      sync.Mutex
}

// window holds the request times of one client
type window struct {
	minute []time.Time
	hour   []time.Time
}

// sweepEvery is how many calls pass between evictions of idle clients
const sweepEvery = 1000

// NewRateLimiter creates a new rate limiter with the given limits.
// A limit <= 0 is not enforced.
func NewRateLimiter(requestsPerMinute, requestsPerHour int, enabled bool) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		enabled:           enabled,
		clients:           make(map[string]*window),
		now:               time.Now,
	}
}

// Allow checks if a request from key is allowed and records it when it is.
// The second value is how long the client should wait when it is not.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	if rl == nil || !rl.enabled {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.calls++
	if rl.calls%sweepEvery == 0 {
		rl.sweep(now)
	}

	w, ok := rl.clients[key]
	if !ok {
		w = &window{}
		rl.clients[key] = w
	}
	w.cleanup(now)

	if rl.requestsPerMinute > 0 && len(w.minute) >= rl.requestsPerMinute {
		return false, w.minute[0].Add(time.Minute).Sub(now)
	}
	if rl.requestsPerHour > 0 && len(w.hour) >= rl.requestsPerHour {
		return false, w.hour[0].Add(time.Hour).Sub(now)
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	return true, 0
}

// cleanup removes expired entries from the time windows
func (w *window) cleanup(now time.Time) {
	w.minute = filterTimes(w.minute, now.Add(-time.Minute))
	w.hour = filterTimes(w.hour, now.Add(-time.Hour))
}

// sweep forgets clients with no request in the last hour
func (rl *RateLimiter) sweep(now time.Time) {
	for key, w := range rl.clients {
		w.cleanup(now)
		if len(w.hour) == 0 {
			delete(rl.clients, key)
		}
	}
}

// filterTimes keeps only times after the cutoff
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// GetStats returns current statistics for one client
func (rl *RateLimiter) GetStats(key string) Stats {
	if rl == nil || !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	var minute, hour int
	if w, ok := rl.clients[key]; ok {
		w.cleanup(rl.now())
		minute, hour = len(w.minute), len(w.hour)
	}

	return Stats{
		Enabled:             true,
		Clients:             len(rl.clients),
		RequestsLastMinute:  minute,
		RequestsLastHour:    hour,
		LimitPerMinute:      rl.requestsPerMinute,
		LimitPerHour:        rl.requestsPerHour,
		RemainingThisMinute: max(0, rl.requestsPerMinute-minute),
		RemainingThisHour:   max(0, rl.requestsPerHour-hour),
	}
}

// Stats contains rate limiter statistics
type Stats struct {
	Enabled             bool `json:"enabled"`
	Clients             int  `json:"clients"`
	RequestsLastMinute  int  `json:"requests_last_minute"`
	RequestsLastHour    int  `json:"requests_last_hour"`
	LimitPerMinute      int  `json:"limit_per_minute"`
	LimitPerHour        int  `json:"limit_per_hour"`
	RemainingThisMinute int  `json:"remaining_this_minute"`
	RemainingThisHour   int  `json:"remaining_this_hour"`
}

// Reset clears all tracked requests (useful for testing)
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.clients = make(map[string]*window)
}
