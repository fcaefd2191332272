package otp

import (
	"context"
	"log/slog"
	"time"
)

type reaper interface {
	Reap(ctx context.Context) (int, error)
}

// RunReaper calls Reap every interval until ctx is cancelled. Each sweep gets
// its own timeout so a slow store cannot stack sweeps.
func RunReaper(ctx context.Context, l reaper, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sweep(ctx, l, interval)
		}
	}
}

func sweep(ctx context.Context, l reaper, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	n, err := l.Reap(ctx)
	if err != nil {
		slog.Warn("otp reap failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("reaped otp records", "count", n)
	}
}
