package proxy

import (
	"testing"
	"time"
)

func TestPoolRotationAndFailures(t *testing.T) {
	pool := NewPool([]string{"p1", "p2", "p3"}, time.Minute)

	// Test rotation
	for _, want := range []string{"p1", "p2", "p3", "p1"} {
		if p := pool.Next(); p != want {
			t.Errorf("Expected %s, got %s", want, p)
		}
	}

	pool.MarkFailed("p2")

	// Should skip p2
	if p := pool.Next(); p != "p3" {
		t.Errorf("Expected p3 (skipping p2), got %s", p)
	}
	if p := pool.Next(); p != "p1" {
		t.Errorf("Expected p1, got %s", p)
	}
	if p := pool.Next(); p != "p3" {
		t.Errorf("Expected p3, got %s", p)
	}
	if n := pool.Healthy(); n != 2 {
		t.Errorf("Expected 2 healthy proxies, got %d", n)
	}

	pool.MarkHealthy("p2")

	if p := pool.Next(); p != "p1" {
		t.Errorf("Expected p1, got %s", p)
	}
	if p := pool.Next(); p != "p2" {
		t.Errorf("Expected p2, got %s", p)
	}
}

func TestPoolCooldownExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pool := NewPool([]string{"p1"}, time.Minute)
	pool.now = func() time.Time { return now }

	pool.MarkFailed("p1")
	if n := pool.Healthy(); n != 0 {
		t.Errorf("Expected 0 healthy proxies, got %d", n)
	}

	now = now.Add(2 * time.Minute)
	if p := pool.Next(); p != "p1" {
		t.Errorf("Expected p1 after cooldown, got %s", p)
	}
	if n := pool.Healthy(); n != 1 {
		t.Errorf("Expected 1 healthy proxy, got %d", n)
	}
}

func TestPoolAllFailedReturnsOldest(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pool := NewPool([]string{"p1", "p2"}, time.Hour)
	pool.now = func() time.Time { return now }

	pool.MarkFailed("p2")
	now = now.Add(time.Second)
	pool.MarkFailed("p1")

	if p := pool.Next(); p != "p2" {
		t.Errorf("Expected p2 (failed longest ago), got %s", p)
	}
}

func TestEmptyAndNilPool(t *testing.T) {
	var nilPool *Pool
	if p := nilPool.Next(); p != "" {
		t.Errorf("Expected empty proxy from nil pool, got %s", p)
	}
	if p := NewPool(nil, 0).Next(); p != "" {
		t.Errorf("Expected empty proxy, got %s", p)
	}
}

func TestParseList(t *testing.T) {
	got := ParseList("http://a:1, socks5://b:2\nhttp://c:3")
	if len(got) != 3 || got[1] != "socks5://b:2" {
		t.Errorf("Unexpected proxy list: %v", got)
	}
}
