package ratelimit

import (
	"testing"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		burst    int
		calls    int
		wantPass int
	}{
		{
			name:     "burst allows initial resyncs",
			rps:      1,
			burst:    3,
			calls:    3,
			wantPass: 3,
		},
		{
			name:     "exceeding burst is refused",
			rps:      1,
			burst:    2,
			calls:    5,
			wantPass: 2,
		},
		{
			name:     "zero rps disables limiting",
			rps:      0,
			burst:    1,
			calls:    50,
			wantPass: 50,
		},
		{
			name:     "zero burst is raised to one",
			rps:      1,
			burst:    0,
			calls:    3,
			wantPass: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.rps, tt.burst)

			passed := 0
			for i := 0; i < tt.calls; i++ {
				if rl.Allow("/docs/a.md") {
					passed++
				}
			}

			if passed != tt.wantPass {
				t.Errorf("Allow() passed %d, want %d", passed, tt.wantPass)
			}
		})
	}
}

func TestKeyedRateLimiter_IndependentKeys(t *testing.T) {
	rl := New(1, 1)

	rl.Allow("/docs/a.md")
	if rl.Allow("/docs/a.md") {
		t.Error("a.md should be exhausted")
	}
	if !rl.Allow("/docs/b.md") {
		t.Error("b.md should be independent and allowed")
	}
}

func TestKeyedRateLimiter_Forget(t *testing.T) {
	rl := New(1, 1)

	rl.Allow("/docs/a.md")
	if rl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", rl.Len())
	}

	rl.Forget("/docs/a.md")
	if rl.Len() != 0 {
		t.Errorf("Len() = %d after Forget, want 0", rl.Len())
	}
	if !rl.Allow("/docs/a.md") {
		t.Error("a forgotten key starts with a full bucket")
	}
}
