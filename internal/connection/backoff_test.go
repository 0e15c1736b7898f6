package connection

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		max     time.Duration
		attempt int
		want    time.Duration
	}{
		{"attempt 1", time.Second, 0, 1, time.Second},
		{"attempt 2", time.Second, 0, 2, 2 * time.Second},
		{"attempt 3", time.Second, 0, 3, 4 * time.Second},
		{"attempt 5", time.Second, 0, 5, 16 * time.Second},
		{"attempt 0 treated as 1", time.Second, 0, 0, time.Second},
		{"custom base", 250 * time.Millisecond, 0, 3, time.Second},
		{"clamped", time.Second, 5 * time.Second, 4, 5 * time.Second},
		{"below clamp", time.Second, 5 * time.Second, 2, 2 * time.Second},
		{"zero base", 0, 0, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BackoffDelay(tt.base, tt.max, tt.attempt); got != tt.want {
				t.Errorf("BackoffDelay(%v, %v, %d) = %v, want %v", tt.base, tt.max, tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoffDelay_NonDecreasing(t *testing.T) {
	prev := time.Duration(0)
	for n := 1; n <= 200; n++ {
		d := BackoffDelay(time.Second, 0, n)
		if d < prev {
			t.Fatalf("attempt %d: delay %v < previous %v", n, d, prev)
		}
		prev = d
	}
}
