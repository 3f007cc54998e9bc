package usecases

import (
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second}

	tests := []struct {
		attempt int
		ceiling time.Duration
	}{
		{attempt: 0, ceiling: 100 * time.Millisecond},
		{attempt: 1, ceiling: 200 * time.Millisecond},
		{attempt: 3, ceiling: 800 * time.Millisecond},
		{attempt: 5, ceiling: 2 * time.Second},
		{attempt: 100, ceiling: 2 * time.Second},
	}

	for _, tt := range tests {
		for range 20 {
			d := b.Delay(tt.attempt)
			if d < tt.ceiling/2 || d > tt.ceiling {
				t.Errorf("attempt %d: expected delay in [%v, %v], got %v", tt.attempt, tt.ceiling/2, tt.ceiling, d)
			}
		}
	}
}

func TestBackoff_Defaults(t *testing.T) {
	d := (Backoff{}).Delay(0)
	if d < 500*time.Millisecond || d > time.Second {
		t.Errorf("expected default delay in [500ms, 1s], got %v", d)
	}
}
