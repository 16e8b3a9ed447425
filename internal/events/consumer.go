package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/product-scanner/internal/database"
)

// StreamReader is the part of *redis.Client a Consumer uses.
type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler receives every PRODUCT_SCANNED event. A message whose handler
// fails is left unacknowledged in the group's pending list.
type Handler func(ctx context.Context, payload *ProductScannedPayload) error

type ConsumerConfig struct {
	Stream string
	Group  string
	Name   string
	Block  time.Duration
	Count  int64
}

// Consumer reads scan events from a Redis stream through a consumer group.
type Consumer struct {
	redis   StreamReader
	handler Handler
	config  ConsumerConfig
	logger  *slog.Logger
}

func NewConsumer(r StreamReader, handler Handler, logger *slog.Logger, config ConsumerConfig) *Consumer {
	if config.Stream == "" {
		config.Stream = database.DefaultScanStream
	}
	if config.Group == "" {
		config.Group = "scan-consumers"
	}
	if config.Name == "" {
		config.Name = "consumer-1"
	}
	if config.Block <= 0 {
		config.Block = 5 * time.Second
	}
	if config.Count <= 0 {
		config.Count = 10
	}

	return &Consumer{
		redis:   r,
		handler: handler,
		config:  config,
		logger:  logger.With("component", "scan_consumer", "stream", config.Stream, "group", config.Group),
	}
}

// Run consumes until ctx is done and returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.config.Stream, c.config.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "name", c.config.Name)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.config.Group,
			Consumer: c.config.Name,
			Streams:  []string{c.config.Stream, ">"},
			Count:    c.config.Count,
			Block:    c.config.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handleMessage(ctx, msg)
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg redis.XMessage) {
	payload, err := DecodeMessage(msg)
	switch {
	case err != nil:
		// Undecodable messages are acknowledged so they are not redelivered forever.
		c.logger.Error("dropping malformed message", "id", msg.ID, "error", err)
	case payload == nil:
		c.logger.Debug("skipping event", "id", msg.ID, "event_type", msg.Values["event_type"])
	default:
		if err := c.handler(ctx, payload); err != nil {
			c.logger.Error("failed to handle event", "id", msg.ID, "url", payload.URL, "error", err)
			return
		}
	}

	if err := c.redis.XAck(ctx, c.config.Stream, c.config.Group, msg.ID).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
	}
}

// DecodeMessage unwraps a relay stream entry. It returns nil without an
// error for events other than PRODUCT_SCANNED.
func DecodeMessage(msg redis.XMessage) (*ProductScannedPayload, error) {
	if eventType, _ := msg.Values["event_type"].(string); eventType != string(EventTypeProductScanned) {
		return nil, nil
	}

	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, errors.New("missing data field")
	}

	var entry database.StreamEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to parse stream entry: %w", err)
	}

	var payload ProductScannedPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	if payload.URL == "" {
		return nil, errors.New("payload has no url")
	}
	return &payload, nil
}
