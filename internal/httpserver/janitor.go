package httpserver

import (
	"context"
	"log/slog"
	"time"

	"pastebox/internal/metrics"
	"pastebox/internal/storage"
)

// StartJanitor launches a background sweep that deletes time-expired pastes.
// View-exhausted pastes are left alone; the access gate already refuses them.
// A non-positive interval disables the janitor.
func StartJanitor(ctx context.Context, store storage.Store, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cleanOnce(ctx, store, time.Now(), logger, m)
			}
		}
	}()
}

func cleanOnce(ctx context.Context, store storage.Store, now time.Time, logger *slog.Logger, m *metrics.Metrics) int {
	c, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	removed, err := store.DeleteExpired(c, now)
	if err != nil {
		if logger != nil {
			logger.Error("janitor error", "error", err)
		}
		return 0
	}
	m.Swept(removed)
	if removed > 0 && logger != nil {
		logger.Info("janitor removed expired pastes", "count", removed)
	}
	return removed
}
