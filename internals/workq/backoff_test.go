package workq

import (
	"testing"
	"time"
)

func TestBackoffExponentialGrowth(t *testing.T) {
	backoff := BackoffExponential(BackoffConfig{Base: time.Second, Max: time.Minute})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{-1, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{10, time.Minute},
	}
	for _, tc := range cases {
		if got := backoff(tc.attempt); got != tc.want {
			t.Fatalf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffExponentialCustomFactor(t *testing.T) {
	backoff := BackoffExponential(BackoffConfig{Base: 100 * time.Millisecond, Max: time.Hour, Factor: 3})
	if got := backoff(3); got != 900*time.Millisecond {
		t.Fatalf("backoff(3) = %v", got)
	}
}

func TestBackoffExponentialZeroBase(t *testing.T) {
	backoff := BackoffExponential(BackoffConfig{})
	if got := backoff(5); got != 0 {
		t.Fatalf("backoff(5) = %v, want 0", got)
	}
}

func TestBackoffExponentialHugeAttemptCapped(t *testing.T) {
	backoff := BackoffExponential(BackoffConfig{Base: time.Second, Max: 2 * time.Minute})
	if got := backoff(200); got != 2*time.Minute {
		t.Fatalf("backoff(200) = %v", got)
	}
}
