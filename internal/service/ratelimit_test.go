package service

import (
	"testing"
	"time"
)

func TestKeyedLimiterEnforcesBurst(t *testing.T) {
	l := NewKeyedLimiter(20, 3)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("u1:typing:r1") {
			t.Fatalf("request %d inside burst was denied", i+1)
		}
	}
	if l.Allow("u1:typing:r1") {
		t.Fatalf("request past burst was allowed")
	}
}

func TestKeyedLimiterIsolatesKeys(t *testing.T) {
	l := NewKeyedLimiter(20, 1)
	defer l.Stop()

	if !l.Allow("u1:typing:r1") {
		t.Fatalf("first key denied")
	}
	if l.Allow("u1:typing:r1") {
		t.Fatalf("exhausted key allowed")
	}
	if !l.Allow("u1:typing:r2") {
		t.Fatalf("fresh key denied; buckets are not isolated")
	}
	if !l.Allow("u2:typing:r1") {
		t.Fatalf("other user's key denied")
	}
}

func TestKeyedLimiterExpiresIdleEntries(t *testing.T) {
	l := NewKeyedLimiter(20, 5)
	defer l.Stop()

	l.Allow("stale")
	l.Allow("fresh")
	if n := l.Len(); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}

	// age only the stale entry past maxIdle
	l.mu.Lock()
	l.entries["stale"].lastSeen = time.Now().Add(-10 * time.Minute)
	l.mu.Unlock()

	l.expire(time.Now())
	if n := l.Len(); n != 1 {
		t.Fatalf("Len after expire = %d, want 1", n)
	}
	if _, ok := l.entries["fresh"]; !ok {
		t.Fatalf("fresh entry was swept")
	}
}
