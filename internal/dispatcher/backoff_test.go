package dispatcher

import (
	"testing"
	"time"
)

func TestBackoffTable(t *testing.T) {
	p := DefaultBackoff()

	want := []time.Duration{
		60 * time.Second,
		300 * time.Second,
		1800 * time.Second,
		7200 * time.Second,
		86400 * time.Second,
	}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Fatalf("Delay(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestBackoffNext(t *testing.T) {
	p := DefaultBackoff()

	for attempts := 1; attempts < p.MaxAttempts; attempts++ {
		delay, ok := p.Next(attempts)
		if !ok {
			t.Fatalf("Next(%d): expected a retry", attempts)
		}
		if delay != p.Delay(attempts) {
			t.Fatalf("Next(%d) = %s, want %s", attempts, delay, p.Delay(attempts))
		}
	}

	if _, ok := p.Next(p.MaxAttempts); ok {
		t.Fatal("expected no retry after the final attempt")
	}
	if _, ok := p.Next(p.MaxAttempts + 1); ok {
		t.Fatal("expected no retry past the final attempt")
	}
	if _, ok := p.Next(0); ok {
		t.Fatal("expected no retry before any attempt was made")
	}
}

func TestBackoffDelayClamps(t *testing.T) {
	p := DefaultBackoff()
	if got := p.Delay(0); got != 60*time.Second {
		t.Fatalf("Delay(0) = %s, want 60s", got)
	}
	if got := p.Delay(99); got != 86400*time.Second {
		t.Fatalf("Delay(99) = %s, want 24h", got)
	}
}
