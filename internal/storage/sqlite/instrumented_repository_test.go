package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/italolelis/fetchbox/internal/storage"
	"github.com/italolelis/fetchbox/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedHistoryRepository(t *testing.T) {
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := telemetry.New(ctx, telemetry.Config{Enabled: true, ServiceName: "fetchbox-test"})
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	repo := NewInstrumentedHistoryRepository(db, tel)
	finished := time.Now()

	rec := storage.TransferRecord{ID: "t1", SessionID: "s1", URL: "http://x/a", Status: "pending", StartedAt: finished.Add(-time.Hour)}
	require.NoError(t, repo.RecordStart(ctx, rec))

	rec.Status = "completed"
	rec.Filename = "a"
	rec.FinishedAt = &finished
	require.NoError(t, repo.RecordFinish(ctx, rec))

	old, err := repo.ListCompletedBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, old, 1)

	require.NoError(t, repo.MarkExpired(ctx, "t1"))

	list, err := repo.ListTransfers(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "expired", list[0].Status)

	err = repo.RecordFinish(ctx, storage.TransferRecord{ID: "missing"})
	require.ErrorIs(t, err, storage.ErrNotFound)
}
