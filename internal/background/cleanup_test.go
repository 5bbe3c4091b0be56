package background

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/totpgate/internal/pending"
	"github.com/BradenHooton/totpgate/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSweeper struct{}

func (failingSweeper) Sweep(context.Context) (int, error) {
	return 0, errors.New("connection reset")
}

func TestCleanupManager_RunCleanupSweepsExpired(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))

	enrollments := pending.NewMemoryStore[string](clk)
	require.NoError(t, enrollments.Put(ctx, "expired", "a", clk.Now().Add(time.Minute)))
	require.NoError(t, enrollments.Put(ctx, "live", "b", clk.Now().Add(time.Hour)))

	clk.Advance(2 * time.Minute)

	cm := NewCleanupManager(map[string]pending.Sweeper{
		"enrollments": enrollments,
		"broken":      failingSweeper{},
	}, slog.New(slog.DiscardHandler), time.Minute)

	cm.runCleanup(ctx)

	assert.Equal(t, 1, enrollments.Len())
	_, err := enrollments.Get(ctx, "live")
	assert.NoError(t, err)
}

func TestCleanupManager_StopEndsLoop(t *testing.T) {
	cm := NewCleanupManager(nil, slog.New(slog.DiscardHandler), time.Hour)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	cm.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}
