// Package events records scans and announces them through the
// transactional outbox.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/maltedev/product-scanner/internal/database"
	"github.com/maltedev/product-scanner/internal/models"
)

type EventType string

const (
	// EventTypeProductScanned is published once per recorded scan.
	EventTypeProductScanned EventType = "PRODUCT_SCANNED"

	aggregateType = "product_scan"
)

// Recorder persists scans. The HTTP layer uses NopRecorder when no
// database is configured.
type Recorder interface {
	RecordScan(ctx context.Context, product *models.ScrapedProduct) error
	RecentScans(ctx context.Context, limit int) ([]database.ScanRecord, error)
}

type ProductScannedPayload struct {
	EventID          string    `json:"event_id"`
	EventType        string    `json:"event_type"`
	Timestamp        time.Time `json:"timestamp"`
	ScanID           string    `json:"scan_id"`
	URL              string    `json:"url"`
	Platform         string    `json:"platform"`
	Title            string    `json:"title"`
	Price            Price     `json:"price"`
	OriginCountry    string    `json:"origin_country"`
	OriginConfidence int       `json:"origin_confidence"`
	IsFallback       bool      `json:"is_fallback"`
	ASIN             string    `json:"asin,omitempty"`
	EbayItemID       string    `json:"ebay_item_id,omitempty"`
	Source           string    `json:"source"`
}

type Price struct {
	Amount   decimal.Decimal `json:"amount"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

type txRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type scanStore interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, rec *database.ScanRecord) error
	Recent(ctx context.Context, limit int) ([]database.ScanRecord, error)
}

type outboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher writes the scan row and its PRODUCT_SCANNED outbox event in
// one transaction; the relay forwards the event to Redis later.
type Publisher struct {
	db     txRunner
	scans  scanStore
	outbox outboxWriter
	stream string
	logger *slog.Logger

	// Notify, when set, runs after every committed scan.
	Notify func()
}

func NewPublisher(db *database.DB, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = database.DefaultScanStream
	}
	return &Publisher{
		db:     db,
		scans:  database.NewScanRepository(db),
		outbox: database.NewOutboxRepository(db),
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

func (p *Publisher) RecordScan(ctx context.Context, product *models.ScrapedProduct) error {
	snapshot, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}

	rec := &database.ScanRecord{
		ID:               uuid.New(),
		URL:              product.URL,
		Platform:         string(product.Platform),
		Title:            product.Title,
		Price:            money(product.Price),
		Shipping:         money(product.Shipping),
		Currency:         product.Currency,
		OriginCountry:    product.OriginCountry,
		OriginConfidence: product.OriginConfidence,
		IsFallback:       product.IsFallback,
		Product:          snapshot,
		ScannedAt:        product.ScannedAt,
	}

	payload := NewProductScannedPayload(rec.ID, product)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   rec.ID.String(),
		EventType:     string(EventTypeProductScanned),
		Payload:       data,
		TargetStream:  p.stream,
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.scans.InsertWithTx(ctx, tx, rec); err != nil {
			return err
		}
		if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}
	if p.Notify != nil {
		p.Notify()
	}

	p.logger.Info("scan recorded",
		"scan_id", rec.ID,
		"event_id", payload.EventID,
		"url", product.URL,
		"fallback", product.IsFallback,
	)
	return nil
}

func (p *Publisher) RecentScans(ctx context.Context, limit int) ([]database.ScanRecord, error) {
	return p.scans.Recent(ctx, limit)
}

func NewProductScannedPayload(scanID uuid.UUID, product *models.ScrapedProduct) *ProductScannedPayload {
	return &ProductScannedPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeProductScanned),
		Timestamp: time.Now().UTC(),
		ScanID:    scanID.String(),
		URL:       product.URL,
		Platform:  string(product.Platform),
		Title:     product.Title,
		Price: Price{
			Amount:   money(product.Price),
			Shipping: money(product.Shipping),
			Total:    money(product.Total()),
			Currency: product.Currency,
		},
		OriginCountry:    product.OriginCountry,
		OriginConfidence: product.OriginConfidence,
		IsFallback:       product.IsFallback,
		ASIN:             product.ASIN,
		EbayItemID:       product.EbayItemID,
		Source:           "scanner",
	}
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// NopRecorder drops every scan.
type NopRecorder struct{}

func (NopRecorder) RecordScan(context.Context, *models.ScrapedProduct) error { return nil }

func (NopRecorder) RecentScans(context.Context, int) ([]database.ScanRecord, error) {
	return []database.ScanRecord{}, nil
}
