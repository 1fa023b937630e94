package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"GreenChat/module/chat/model"
	chatsvc "GreenChat/module/chat/service"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSinkEmit(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	p.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got map[string]any
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got["kind"] != chatsvc.EventMessageCreated || got["room_id"] != float64(3) {
			return errors.New("unexpected event body")
		}
		return nil
	})
	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	s := NewEventSinkWithProducer("greenchat.events", p)
	ev := chatsvc.Event{
		Kind:    chatsvc.EventMessageCreated,
		RoomID:  3,
		Message: &model.Message{ID: 9, RoomID: 3, Text: "hi"},
		At:      time.Now(),
	}
	require.NoError(t, s.Emit(context.Background(), ev))

	err := s.Emit(context.Background(), chatsvc.Event{Kind: chatsvc.EventPresenceJoin, RoomID: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.NoError(t, s.Close())
}

func TestEventSinkHonoursCancel(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	s := NewEventSinkWithProducer("greenchat.events", p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Emit(ctx, chatsvc.Event{Kind: chatsvc.EventPresenceLeave, RoomID: 1}), context.Canceled)
	require.NoError(t, s.Close())
}

func TestBuildBaseConfig(t *testing.T) {
	cfg := BuildBaseConfig(Config{Compression: "LZ4", Version: "2.6.0"})
	assert.Equal(t, sarama.CompressionLZ4, cfg.Producer.Compression)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.Equal(t, 3, cfg.Producer.Retry.Max)
	assert.True(t, cfg.Producer.Return.Successes)
	assert.Equal(t, sarama.V2_6_0_0, cfg.Version)

	cfg = BuildBaseConfig(Config{Version: "not-a-version"})
	assert.Equal(t, sarama.CompressionNone, cfg.Producer.Compression)
	assert.Equal(t, sarama.V2_1_0_0, cfg.Version)
}

func TestNewEventSinkNeedsBrokers(t *testing.T) {
	_, err := NewEventSink(Config{})
	assert.Error(t, err)
}
