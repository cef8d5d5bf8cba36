package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter is a token-bucket limiter keyed by an arbitrary string, used
// per (user, action, room). Entries idle past maxIdle are swept periodically
// so the map does not grow without bound. The limiter is owned by whoever
// constructs it; nothing here is package-global.
type KeyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	maxIdle time.Duration
	done    chan struct{}
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter allows eventsPerMinute sustained with the given burst.
// The sweep goroutine runs until Stop is called.
func NewKeyedLimiter(eventsPerMinute, burst int) *KeyedLimiter {
	if eventsPerMinute <= 0 {
		eventsPerMinute = 20
	}
	if burst <= 0 {
		burst = 5
	}
	l := &KeyedLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(eventsPerMinute) / 60.0),
		burst:   burst,
		maxIdle: 5 * time.Minute,
		done:    make(chan struct{}),
	}
	go l.sweep(time.Minute)
	return l
}

func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e.lim.Allow()
}

func (l *KeyedLimiter) Stop() {
	close(l.done)
}

// Len reports the number of live entries.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *KeyedLimiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.expire(time.Now())
		case <-l.done:
			return
		}
	}
}

func (l *KeyedLimiter) expire(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > l.maxIdle {
			delete(l.entries, key)
		}
	}
}
