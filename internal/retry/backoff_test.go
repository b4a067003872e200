package retry

import (
	"context"
	"testing"
	"time"
)

func TestDelayGrowsGeometrically(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Factor: 2}

	for attempt := 0; attempt < 5; attempt++ {
		d := p.Delay(attempt)
		want := 100 * time.Millisecond << attempt
		lo := time.Duration(float64(want) * jitterLow)
		hi := time.Duration(float64(want) * jitterHigh)
		if d < lo || d > hi {
			t.Fatalf("attempt %d: delay %v outside jitter band [%v, %v]", attempt, d, lo, hi)
		}
	}
}

func TestDelayCapped(t *testing.T) {
	limit := 3 * time.Second
	p := Policy{Base: time.Second, Factor: 2, Max: limit}

	d := p.Delay(10)
	if hi := time.Duration(float64(limit) * jitterHigh); d > hi {
		t.Fatalf("delay %v exceeds jittered cap %v", d, hi)
	}
}

func TestDelayDefaultsForBadInputs(t *testing.T) {
	p := Policy{}
	if d := p.Delay(-1); d <= 0 {
		t.Fatalf("delay for negative attempt = %v, want positive", d)
	}
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Sleep blocked for %v after cancellation", elapsed)
	}
}

func TestSleepZeroReturnsImmediately(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
