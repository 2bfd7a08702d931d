package dispatch

import (
	"context"
	"math"
	"time"

	"github.com/ShayCichocki/taskweave/internal/config"
)

// Backoff returns the delay before retry n (0-based):
// InitialDelayMs × BackoffMultiplier^n, capped at MaxDelayMs when positive.
func Backoff(cfg config.RetryConfig, n int) time.Duration {
	if cfg.InitialDelayMs <= 0 {
		return 0
	}
	mult := cfg.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	ms := float64(cfg.InitialDelayMs) * math.Pow(mult, float64(n))
	if cfg.MaxDelayMs > 0 && ms > float64(cfg.MaxDelayMs) {
		ms = float64(cfg.MaxDelayMs)
	}
	return time.Duration(ms) * time.Millisecond
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
