package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StreamWriter is the part of *redis.Client the relay uses.
type StreamWriter interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// OutboxRepo is the part of *OutboxRepository the relay uses.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	Stats(ctx context.Context) (OutboxStats, error)
}

// Relay moves outbox events onto their Redis streams. It polls on an
// interval and can be woken early with Notify after a commit. Delivery is at
// least once: an event published but not marked processed goes out again.
type Relay struct {
	redis  StreamWriter
	outbox OutboxRepo
	logger *slog.Logger
	config RelayConfig
	wake   chan struct{}
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxLen caps each stream approximately; zero leaves streams untrimmed.
	MaxLen int64
	// Source is written into every stream entry's metadata.
	Source string
}

// BatchResult counts the outcome of one relay pass.
type BatchResult struct {
	Published int
	Failed    int
}

func NewRelay(outbox OutboxRepo, redisClient StreamWriter, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Source == "" {
		config.Source = "product-scanner"
	}

	return &Relay{
		redis:  redisClient,
		outbox: outbox,
		logger: logger.With("component", "relay"),
		config: config,
		wake:   make(chan struct{}, 1),
	}
}

// Notify asks a running relay to poll now. It never blocks.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start relays until ctx is done and returns ctx.Err().
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("relay started", "interval", r.config.PollInterval, "batch_size", r.config.BatchSize)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		r.drain(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// drain keeps relaying while batches come back full.
func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := r.processEvents(ctx)
		if err != nil {
			r.logger.Error("relay pass failed", "error", err)
			return
		}
		if res.Published+res.Failed > 0 {
			r.logger.Debug("relay pass", "published", res.Published, "failed", res.Failed)
		}
		if res.Published+res.Failed < r.config.BatchSize || res.Published == 0 {
			return
		}
	}
}

// Stats reports the outbox backlog for health checks.
func (r *Relay) Stats(ctx context.Context) (OutboxStats, error) {
	return r.outbox.Stats(ctx)
}

// processEvents relays one batch. A failing event is marked and skipped;
// only a failure to read the batch is returned.
func (r *Relay) processEvents(ctx context.Context) (BatchResult, error) {
	var res BatchResult

	events, err := r.outbox.GetPending(ctx, r.config.BatchSize)
	if err != nil {
		return res, fmt.Errorf("load pending events: %w", err)
	}

	for _, event := range events {
		if err := r.relay(ctx, event); err != nil {
			res.Failed++
			r.logger.Warn("event not relayed",
				"event_id", event.ID,
				"event_type", event.EventType,
				"retry_count", event.RetryCount,
				"error", err)
			continue
		}
		res.Published++
	}
	return res, nil
}

func (r *Relay) relay(ctx context.Context, event *OutboxEvent) error {
	if err := r.publish(ctx, event); err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("could not record relay failure", "event_id", event.ID, "error", markErr)
		}
		return err
	}
	return r.outbox.MarkProcessed(ctx, event.ID)
}

// StreamEntry is the JSON document carried in the "data" field of every
// stream message.
type StreamEntry struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     string          `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      StreamMetadata  `json:"metadata"`
}

type StreamMetadata struct {
	Source     string `json:"source"`
	OutboxID   string `json:"outbox_id"`
	RetryCount int    `json:"retry_count"`
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	if !json.Valid(event.Payload) {
		return fmt.Errorf("invalid payload for event %s", event.ID)
	}

	data, err := json.Marshal(StreamEntry{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Timestamp:     event.CreatedAt.UTC().Format(time.RFC3339),
		Payload:       event.Payload,
		Metadata: StreamMetadata{
			Source:     r.config.Source,
			OutboxID:   event.ID.String(),
			RetryCount: event.RetryCount,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal stream entry: %w", err)
	}

	err = r.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: event.TargetStream,
		MaxLen: r.config.MaxLen,
		Approx: r.config.MaxLen > 0,
		Values: []interface{}{
			"data", string(data),
			"event_type", event.EventType,
			"aggregate_type", event.AggregateType,
			"aggregate_id", event.AggregateID,
			"timestamp", strconv.FormatInt(event.CreatedAt.UnixNano(), 10),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", event.TargetStream, err)
	}
	return nil
}
