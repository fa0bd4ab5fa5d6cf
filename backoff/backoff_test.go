package backoff_test

import (
	"testing"
	"time"

	"github.com/quartzite/quartzite/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestLinear_GrowsLinearly(t *testing.T) {
	l := backoff.NewLinear(time.Second, time.Minute)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 3 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := l.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestLinear_CapsAtMax(t *testing.T) {
	l := backoff.NewLinear(time.Second, 5*time.Second)

	if got := l.Delay(100); got != 5*time.Second {
		t.Errorf("Delay(100) = %v, want %v (capped at Max)", got, 5*time.Second)
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Minute, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Minute}, // 1 * 2^0
		{2, 2 * time.Minute}, // 1 * 2^1
		{3, 4 * time.Minute}, // 1 * 2^2
		{4, 8 * time.Minute}, // 1 * 2^3
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(5); got != 10*time.Second {
		t.Errorf("Delay(5) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestExponentialWithJitter_StaysInBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Minute, 0, 30*time.Second)

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{1, 1 * time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
	}
	for _, tt := range tests {
		for i := 0; i < 100; i++ {
			got := e.Delay(tt.attempt)
			if got < tt.base {
				t.Fatalf("Delay(%d) = %v, below base %v", tt.attempt, got, tt.base)
			}
			if got >= tt.base+30*time.Second {
				t.Fatalf("Delay(%d) = %v, at or above base+jitter %v", tt.attempt, got, tt.base+30*time.Second)
			}
		}
	}
}

func TestExponentialWithJitter_ZeroJitterIsDeterministic(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Minute, 0, 0)

	if got := e.Delay(3); got != 4*time.Minute {
		t.Errorf("Delay(3) = %v, want %v", got, 4*time.Minute)
	}
}

func TestExponentialWithJitter_CapsBaseAtMax(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Minute, 2*time.Minute, 0)

	if got := e.Delay(10); got != 2*time.Minute {
		t.Errorf("Delay(10) = %v, want %v (capped at Max)", got, 2*time.Minute)
	}
}
