package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/totpgate/internal/pending"
)

// CleanupManager periodically removes expired pending enrollments and login challenges.
// Expiry is enforced on read, so this only bounds memory use.
type CleanupManager struct {
	stores   map[string]pending.Sweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager for the named stores
func NewCleanupManager(
	stores map[string]pending.Sweeper,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		stores:   stores,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup sweeps every store once
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for name, store := range cm.stores {
		removed, err := store.Sweep(cleanupCtx)
		if err != nil {
			cm.logger.Error("failed to sweep pending store", slog.String("store", name), slog.Any("error", err))
			continue
		}

		if removed > 0 {
			cm.logger.Debug("pending store swept", slog.String("store", name), slog.Int("removed", removed))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
