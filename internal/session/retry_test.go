package session

import (
	"testing"
	"time"

	"marlin/internal/config"
)

func TestBackoffGrowsExponentiallyAndCaps(t *testing.T) {
	p := config.RetryPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		Jitter:       false,
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := nextBackoffDelay(p, i+1, nil); got != w {
			t.Fatalf("attempt %d: delay = %v, want %v", i+1, got, w)
		}
	}
}
