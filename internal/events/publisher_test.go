package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/product-scanner/internal/database"
	"github.com/maltedev/product-scanner/internal/models"
)

// fakeTx runs fn without a real transaction and remembers its result.
type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if err := fn(nil); err != nil {
		f.rolledBack = true
		return err
	}
	f.committed = true
	return nil
}

type MockScanStore struct {
	mock.Mock
}

func (m *MockScanStore) InsertWithTx(ctx context.Context, tx pgx.Tx, rec *database.ScanRecord) error {
	return m.Called(ctx, tx, rec).Error(0)
}

func (m *MockScanStore) Recent(ctx context.Context, limit int) ([]database.ScanRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]database.ScanRecord), args.Error(1)
}

type MockOutboxWriter struct {
	mock.Mock
}

func (m *MockOutboxWriter) InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error {
	return m.Called(ctx, tx, event).Error(0)
}

func ebayProduct() *models.ScrapedProduct {
	p := models.NewScrapedProduct("https://www.ebay.de/itm/123456789", models.PlatformEbay)
	p.Title = "Vintage Camera"
	p.Price = 129.99
	p.Shipping = 15
	p.Currency = "EUR"
	p.OriginCountry = "Німеччина"
	p.OriginConfidence = 80
	p.EbayItemID = "123456789"
	return p
}

func TestPublisher_RecordScan(t *testing.T) {
	ctx := context.Background()

	t.Run("Writes scan and event together", func(t *testing.T) {
		tx := &fakeTx{}
		scans := new(MockScanStore)
		outbox := new(MockOutboxWriter)
		notified := 0
		publisher := &Publisher{db: tx, scans: scans, outbox: outbox, stream: "stream:test", logger: slog.Default(),
			Notify: func() { notified++ }}

		var scanID string
		scans.On("InsertWithTx", ctx, mock.Anything, mock.MatchedBy(func(rec *database.ScanRecord) bool {
			scanID = rec.ID.String()
			return rec.URL == "https://www.ebay.de/itm/123456789" &&
				rec.Price.Equal(decimal.RequireFromString("129.99")) &&
				rec.OriginConfidence == 80 &&
				json.Valid(rec.Product)
		})).Return(nil)

		outbox.On("InsertWithTx", ctx, mock.Anything, mock.MatchedBy(func(event *database.OutboxEvent) bool {
			var p ProductScannedPayload
			if err := json.Unmarshal(event.Payload, &p); err != nil {
				return false
			}
			return event.AggregateType == "product_scan" &&
				event.AggregateID == scanID &&
				event.EventType == "PRODUCT_SCANNED" &&
				event.TargetStream == "stream:test" &&
				p.ScanID == scanID &&
				p.EventID != "" &&
				p.Price.Total.Equal(decimal.RequireFromString("144.99")) &&
				p.EbayItemID == "123456789"
		})).Return(nil)

		require.NoError(t, publisher.RecordScan(ctx, ebayProduct()))
		assert.True(t, tx.committed)
		assert.Equal(t, 1, notified)
		scans.AssertExpectations(t)
		outbox.AssertExpectations(t)
	})

	t.Run("Outbox failure rolls back", func(t *testing.T) {
		tx := &fakeTx{}
		scans := new(MockScanStore)
		outbox := new(MockOutboxWriter)
		publisher := &Publisher{db: tx, scans: scans, outbox: outbox, logger: slog.Default(),
			Notify: func() { t.Error("notified after rollback") }}

		scans.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(nil)
		outbox.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(assert.AnError)

		err := publisher.RecordScan(ctx, ebayProduct())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert outbox event")
		assert.ErrorIs(t, err, assert.AnError)
		assert.True(t, tx.rolledBack)
	})

	t.Run("Scan failure skips the outbox", func(t *testing.T) {
		scans := new(MockScanStore)
		outbox := new(MockOutboxWriter)
		publisher := &Publisher{db: &fakeTx{}, scans: scans, outbox: outbox, logger: slog.Default()}

		scans.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(errors.New("unique violation"))

		assert.Error(t, publisher.RecordScan(ctx, ebayProduct()))
		outbox.AssertNotCalled(t, "InsertWithTx", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPublisher_RecentScans(t *testing.T) {
	scans := new(MockScanStore)
	scans.On("Recent", mock.Anything, 5).Return([]database.ScanRecord{{URL: "https://x.test"}}, nil)
	publisher := &Publisher{db: &fakeTx{}, scans: scans, outbox: new(MockOutboxWriter), logger: slog.Default()}

	records, err := publisher.RecentScans(context.Background(), 5)

	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	assert.NoError(t, r.RecordScan(context.Background(), ebayProduct()))

	records, err := r.RecentScans(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}
