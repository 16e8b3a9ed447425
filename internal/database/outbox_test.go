package database

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{8, 256 * time.Second},
		{9, 5 * time.Minute},
		{40, 5 * time.Minute},
		{-1, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.retry), "retry %d", tt.retry)
	}
}

func TestNextStatus(t *testing.T) {
	assert.Equal(t, OutboxStatusFailed, NextStatus(1))
	assert.Equal(t, OutboxStatusFailed, NextStatus(MaxRetryCount-1))
	assert.Equal(t, OutboxStatusDeadLetter, NextStatus(MaxRetryCount))
}

func TestOutboxEventPrepare(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Defaults", func(t *testing.T) {
		event := &OutboxEvent{AggregateType: "product_scan", EventType: "PRODUCT_SCANNED", Payload: json.RawMessage(`{}`)}
		require.NoError(t, event.prepare(now))
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, DefaultScanStream, event.TargetStream)
		assert.Equal(t, now, event.CreatedAt)
		require.NotNil(t, event.NextRetryAt)
		assert.Equal(t, now, *event.NextRetryAt)
	})

	t.Run("Required fields", func(t *testing.T) {
		cases := map[string]*OutboxEvent{
			"missing aggregate type": {EventType: "PRODUCT_SCANNED", Payload: json.RawMessage(`{}`)},
			"missing event type":     {AggregateType: "product_scan", Payload: json.RawMessage(`{}`)},
			"invalid payload":        {AggregateType: "product_scan", EventType: "PRODUCT_SCANNED", Payload: json.RawMessage(`{`)},
			"empty payload":          {AggregateType: "product_scan", EventType: "PRODUCT_SCANNED"},
		}
		for name, event := range cases {
			assert.Error(t, event.prepare(now), name)
		}
	})
}

// setupTestDB connects to TEST_DATABASE_URL and applies the schema, or
// skips the test when no database is configured.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, Config{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(func() {
		db.pool.Exec(ctx, `TRUNCATE product_scans, outbox_event`)
		db.Close()
	})
	return db
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)

	event := &OutboxEvent{
		AggregateType: "product_scan",
		AggregateID:   "https://www.ebay.de/itm/123456789",
		EventType:     "PRODUCT_SCANNED",
		Payload:       json.RawMessage(`{"price":42.5}`),
	}
	require.NoError(t, db.Transaction(ctx, func(tx pgx.Tx) error {
		return repo.InsertWithTx(ctx, tx, event)
	}))

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, event.ID, pending[0].ID)

	require.NoError(t, repo.MarkFailed(ctx, event.ID, errors.New("redis down")))
	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutboxStats{Pending: 1}, stats)

	pending, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "backoff hides the event until its retry time")

	require.NoError(t, repo.MarkProcessed(ctx, event.ID))
	assert.Error(t, repo.MarkProcessed(ctx, uuid.New()))
}

func TestOutboxRepository_RollbackDiscardsEvent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)

	err := db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := repo.InsertWithTx(ctx, tx, &OutboxEvent{
			AggregateType: "product_scan",
			AggregateID:   "rolled-back",
			EventType:     "PRODUCT_SCANNED",
			Payload:       json.RawMessage(`{}`),
		}); err != nil {
			return err
		}
		return errors.New("scan insert failed")
	})
	require.Error(t, err)

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestScanRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewScanRepository(db)

	older := &ScanRecord{
		URL: "https://shop.example.com/a", Platform: "generic", Title: "A",
		Price: decimal.RequireFromString("10.50"), Shipping: decimal.NewFromInt(20), Currency: "EUR",
		OriginCountry: "Невідомо", Product: json.RawMessage(`{}`),
		ScannedAt: time.Now().Add(-time.Hour),
	}
	newer := &ScanRecord{
		URL: "https://www.ebay.de/itm/123456789", Platform: "ebay", Title: "B",
		Price: decimal.RequireFromString("129.99"), Shipping: decimal.NewFromInt(15), Currency: "EUR",
		OriginCountry: "Німеччина", OriginConfidence: 80, Product: json.RawMessage(`{"title":"B"}`),
	}
	for _, rec := range []*ScanRecord{older, newer} {
		rec := rec
		require.NoError(t, db.Transaction(ctx, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, rec)
		}))
	}

	records, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, newer.ID, records[0].ID)
	assert.True(t, decimal.RequireFromString("129.99").Equal(records[0].Price))
	assert.Equal(t, 80, records[0].OriginConfidence)
}
