package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ScanRecord is one row of scan history. Product holds the full JSON
// response as it was returned to the caller.
type ScanRecord struct {
	ID               uuid.UUID       `json:"id"`
	URL              string          `json:"url"`
	Platform         string          `json:"platform"`
	Title            string          `json:"title"`
	Price            decimal.Decimal `json:"price"`
	Shipping         decimal.Decimal `json:"shipping"`
	Currency         string          `json:"currency"`
	OriginCountry    string          `json:"originCountry"`
	OriginConfidence int             `json:"originConfidence"`
	IsFallback       bool            `json:"isFallback"`
	Product          json.RawMessage `json:"product"`
	ScannedAt        time.Time       `json:"scannedAt"`
}

const DefaultRecentLimit = 20

type ScanRepository struct {
	db *DB
}

func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

func (r *ScanRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, rec *ScanRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ScannedAt.IsZero() {
		rec.ScannedAt = time.Now()
	}

	const query = `
		INSERT INTO product_scans (
			id, url, platform, title, price, shipping, currency,
			origin_country, origin_confidence, is_fallback, product, scanned_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		rec.ID, rec.URL, rec.Platform, rec.Title,
		rec.Price.StringFixed(2), rec.Shipping.StringFixed(2), rec.Currency,
		rec.OriginCountry, rec.OriginConfidence, rec.IsFallback, rec.Product, rec.ScannedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

// Recent returns the newest scans first.
func (r *ScanRepository) Recent(ctx context.Context, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	const query = `
		SELECT id, url, platform, title, price::text, shipping::text, currency,
			origin_country, origin_confidence, is_fallback, product, scanned_at
		FROM product_scans
		ORDER BY scanned_at DESC
		LIMIT $1`

	rows, err := r.db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	records := make([]ScanRecord, 0, limit)
	for rows.Next() {
		var (
			rec             ScanRecord
			price, shipping string
		)
		if err := rows.Scan(
			&rec.ID, &rec.URL, &rec.Platform, &rec.Title, &price, &shipping, &rec.Currency,
			&rec.OriginCountry, &rec.OriginConfidence, &rec.IsFallback, &rec.Product, &rec.ScannedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("bad price %q: %w", price, err)
		}
		if rec.Shipping, err = decimal.NewFromString(shipping); err != nil {
			return nil, fmt.Errorf("bad shipping %q: %w", shipping, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}
