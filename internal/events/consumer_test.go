package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/product-scanner/internal/database"
)

type MockStreamReader struct {
	mock.Mock
}

func (m *MockStreamReader) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	args := m.Called(ctx, stream, group, start)
	return redis.NewStatusResult("OK", args.Error(0))
}

func (m *MockStreamReader) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	args := m.Called(ctx, a)
	return redis.NewXStreamSliceCmdResult(args.Get(0).([]redis.XStream), args.Error(1))
}

func (m *MockStreamReader) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	args := m.Called(ctx, stream, group, ids)
	return redis.NewIntResult(1, args.Error(0))
}

func scannedMessage(t *testing.T, id string) redis.XMessage {
	t.Helper()

	payload, err := json.Marshal(NewProductScannedPayload(uuid.New(), ebayProduct()))
	require.NoError(t, err)

	data, err := json.Marshal(database.StreamEntry{
		ID:      uuid.NewString(),
		Type:    string(EventTypeProductScanned),
		Payload: payload,
	})
	require.NoError(t, err)

	return redis.XMessage{ID: id, Values: map[string]interface{}{
		"data":       string(data),
		"event_type": string(EventTypeProductScanned),
	}}
}

func TestDecodeMessage(t *testing.T) {
	payload, err := DecodeMessage(scannedMessage(t, "1-0"))
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "https://www.ebay.de/itm/123456789", payload.URL)
	assert.Equal(t, "144.99", payload.Price.Total.StringFixed(2))

	payload, err = DecodeMessage(redis.XMessage{ID: "2-0", Values: map[string]interface{}{"event_type": "OTHER"}})
	assert.NoError(t, err)
	assert.Nil(t, payload)

	_, err = DecodeMessage(redis.XMessage{ID: "3-0", Values: map[string]interface{}{
		"event_type": string(EventTypeProductScanned),
		"data":       "{broken",
	}})
	assert.Error(t, err)
}

func TestConsumer_HandleMessage(t *testing.T) {
	ctx := context.Background()
	cfg := ConsumerConfig{Stream: "stream:test", Group: "g"}

	t.Run("Acknowledges handled events", func(t *testing.T) {
		reader := new(MockStreamReader)
		reader.On("XAck", ctx, "stream:test", "g", []string{"1-0"}).Return(nil)

		var got *ProductScannedPayload
		c := NewConsumer(reader, func(_ context.Context, p *ProductScannedPayload) error {
			got = p
			return nil
		}, slog.Default(), cfg)

		c.handleMessage(ctx, scannedMessage(t, "1-0"))

		require.NotNil(t, got)
		assert.Equal(t, "Vintage Camera", got.Title)
		reader.AssertExpectations(t)
	})

	t.Run("Leaves failed events pending", func(t *testing.T) {
		reader := new(MockStreamReader)
		c := NewConsumer(reader, func(context.Context, *ProductScannedPayload) error {
			return errors.New("downstream unavailable")
		}, slog.Default(), cfg)

		c.handleMessage(ctx, scannedMessage(t, "1-0"))

		reader.AssertNotCalled(t, "XAck", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Acknowledges malformed events", func(t *testing.T) {
		reader := new(MockStreamReader)
		reader.On("XAck", ctx, "stream:test", "g", []string{"9-0"}).Return(nil)

		called := false
		c := NewConsumer(reader, func(context.Context, *ProductScannedPayload) error {
			called = true
			return nil
		}, slog.Default(), cfg)

		c.handleMessage(ctx, redis.XMessage{ID: "9-0", Values: map[string]interface{}{
			"event_type": string(EventTypeProductScanned),
		}})

		assert.False(t, called)
		reader.AssertExpectations(t)
	})
}

func TestConsumer_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := new(MockStreamReader)
	reader.On("XGroupCreateMkStream", mock.Anything, "stream:test", "g", "0").
		Return(errors.New("BUSYGROUP Consumer Group name already exists"))
	reader.On("XReadGroup", mock.Anything, mock.Anything).
		Return([]redis.XStream{{Stream: "stream:test", Messages: []redis.XMessage{scannedMessage(t, "1-0")}}}, nil).Once()
	reader.On("XReadGroup", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return([]redis.XStream(nil), context.Canceled)
	reader.On("XAck", mock.Anything, "stream:test", "g", []string{"1-0"}).Return(nil)

	handled := 0
	c := NewConsumer(reader, func(context.Context, *ProductScannedPayload) error {
		handled++
		return nil
	}, slog.Default(), ConsumerConfig{Stream: "stream:test", Group: "g"})

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, handled)
	reader.AssertExpectations(t)
}

func TestConsumer_RunGroupCreateFails(t *testing.T) {
	reader := new(MockStreamReader)
	reader.On("XGroupCreateMkStream", mock.Anything, mock.Anything, mock.Anything, "0").
		Return(errors.New("NOAUTH Authentication required"))

	c := NewConsumer(reader, nil, slog.Default(), ConsumerConfig{})
	assert.Error(t, c.Run(context.Background()))
}
