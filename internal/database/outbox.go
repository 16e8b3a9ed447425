package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessed  = "processed"
	OutboxStatusFailed     = "failed"
	OutboxStatusDeadLetter = "dead_letter"

	// MaxRetryCount is how many failed relays move an event to dead letter.
	MaxRetryCount = 5

	DefaultScanStream = "stream:product_scans"

	maxBackoff = 5 * time.Minute
)

type OutboxEvent struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	TargetStream  string          `json:"target_stream"`
	Status        string          `json:"status"`
	RetryCount    int             `json:"retry_count"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
}

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, target_stream,
	status, retry_count, error_message, created_at, processed_at, next_retry_at`

func scanOutboxEvent(row pgx.CollectableRow) (*OutboxEvent, error) {
	var e OutboxEvent
	err := row.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.TargetStream,
		&e.Status, &e.RetryCount, &e.ErrorMessage, &e.CreatedAt, &e.ProcessedAt, &e.NextRetryAt)
	return &e, err
}

// OutboxStats is what the health endpoint reports.
type OutboxStats struct {
	Pending    int64 `json:"pending"`
	DeadLetter int64 `json:"dead_letter"`
}

type OutboxRepository struct {
	db  *DB
	now func() time.Time
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db, now: time.Now}
}

// InsertWithTx fills defaults on event and writes it inside tx, so it only
// becomes visible to the relay if the surrounding write commits.
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	if err := event.prepare(r.now()); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_event (id, aggregate_type, aggregate_id, event_type, payload,
			target_stream, status, retry_count, created_at, next_retry_at)
		VALUES (@id, @aggregate_type, @aggregate_id, @event_type, @payload,
			@target_stream, @status, @retry_count, @created_at, @next_retry_at)`,
		pgx.NamedArgs{
			"id":             event.ID,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
			"event_type":     event.EventType,
			"payload":        event.Payload,
			"target_stream":  event.TargetStream,
			"status":         event.Status,
			"retry_count":    event.RetryCount,
			"created_at":     event.CreatedAt,
			"next_retry_at":  event.NextRetryAt,
		})
	if err != nil {
		return fmt.Errorf("insert outbox event %s: %w", event.ID, err)
	}
	return nil
}

func (e *OutboxEvent) prepare(now time.Time) error {
	switch {
	case e.AggregateType == "":
		return fmt.Errorf("outbox event: aggregate type is required")
	case e.EventType == "":
		return fmt.Errorf("outbox event: event type is required")
	case len(e.Payload) == 0 || !json.Valid(e.Payload):
		return fmt.Errorf("outbox event: payload must be valid JSON")
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = OutboxStatusPending
	}
	if e.TargetStream == "" {
		e.TargetStream = DefaultScanStream
	}
	e.CreatedAt = now
	if e.NextRetryAt == nil {
		e.NextRetryAt = &now
	}
	return nil
}

// GetPending returns pending and failed events whose retry time has come,
// oldest first.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_event
		WHERE status IN ($1, $2) AND next_retry_at <= $3
		ORDER BY created_at
		LIMIT $4`,
		OutboxStatusPending, OutboxStatusFailed, r.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox events: %w", err)
	}

	events, err := pgx.CollectRows(rows, scanOutboxEvent)
	if err != nil {
		return nil, fmt.Errorf("read pending outbox events: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx,
		`UPDATE outbox_event SET status = $1, processed_at = $2, error_message = NULL WHERE id = $3`,
		OutboxStatusProcessed, r.now(), id)
	if err != nil {
		return fmt.Errorf("mark outbox event %s processed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event %s: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// MarkFailed bumps the retry count and schedules the next attempt, or parks
// the event in dead letter once MaxRetryCount is reached. The row is locked
// so two relays cannot both count the same failure.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, processErr error) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		var retries int
		err := tx.QueryRow(ctx, `SELECT retry_count FROM outbox_event WHERE id = $1 FOR UPDATE`, id).Scan(&retries)
		if err != nil {
			return fmt.Errorf("lock outbox event %s: %w", id, err)
		}

		retries++
		_, err = tx.Exec(ctx, `
			UPDATE outbox_event
			SET status = $1, retry_count = $2, error_message = $3, next_retry_at = $4
			WHERE id = $5`,
			NextStatus(retries), retries, processErr.Error(), r.now().Add(Backoff(retries)), id)
		if err != nil {
			return fmt.Errorf("record failure of outbox event %s: %w", id, err)
		}
		return nil
	})
}

// Stats counts events still waiting for the relay and events given up on.
func (r *OutboxRepository) Stats(ctx context.Context) (OutboxStats, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE status IN ($1, $2)),
			COUNT(*) FILTER (WHERE status = $3)
		FROM outbox_event`

	var stats OutboxStats
	err := r.db.pool.QueryRow(ctx, query, OutboxStatusPending, OutboxStatusFailed, OutboxStatusDeadLetter).
		Scan(&stats.Pending, &stats.DeadLetter)
	if err != nil {
		return OutboxStats{}, fmt.Errorf("failed to count outbox events: %w", err)
	}
	return stats, nil
}

// NextStatus is the status after retryCount failed relays.
func NextStatus(retryCount int) string {
	if retryCount >= MaxRetryCount {
		return OutboxStatusDeadLetter
	}
	return OutboxStatusFailed
}

// Backoff doubles from one second per retry and caps at five minutes.
func Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 16 {
		return maxBackoff
	}
	d := time.Duration(1<<retryCount) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
