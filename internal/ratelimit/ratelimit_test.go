package ratelimit

import (
	"errors"
	"testing"
)

func TestUnlimited(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 1000; i++ {
		if err := l.Allow("api-user"); err != nil {
			t.Fatalf("unlimited limiter rejected request %d: %v", i, err)
		}
	}
}

func TestBurstExhaustion(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("api-user"); err != nil {
			t.Fatalf("request %d within burst rejected: %v", i, err)
		}
	}
	if err := l.Allow("api-user"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Allow after burst = %v, want ErrRateLimited", err)
	}
}

func TestPerUserIsolation(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("alice"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("alice's second request = %v, want ErrRateLimited", err)
	}

	// One user's exhausted bucket must not affect another's.
	if err := l.Allow("bob"); err != nil {
		t.Errorf("bob limited by alice's bucket: %v", err)
	}
}

func TestBurstDefaultsToRate(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 2})

	if err := l.Allow("u"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("u"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("u"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("third request = %v, want ErrRateLimited", err)
	}
}
