package kafka

import (
	"context"
	"encoding/json"
	"strconv"

	"GreenChat/logger"
	chatsvc "GreenChat/module/chat/service"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EventSink writes chat events to one topic keyed by room id, so the events
// of a room keep their order on a single partition.
type EventSink struct {
	topic    string
	producer sarama.SyncProducer
	client   sarama.Client
	log      *zap.Logger
}

// NewEventSink connects to the brokers and, when asked, makes sure the topic
// exists first.
func NewEventSink(c Config) (*EventSink, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka brokers missing")
	}
	c.norm()
	log := logger.Named("kafka")
	client, err := sarama.NewClient(c.Brokers, BuildBaseConfig(c))
	if err != nil {
		return nil, errors.Wrap(err, "kafka client")
	}
	if c.EnsureTopic {
		admin, err := sarama.NewClusterAdminFromClient(client)
		if err != nil {
			_ = client.Close()
			return nil, errors.Wrap(err, "kafka admin")
		}
		if err := EnsureTopic(admin, c.Topic, c, log); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	p, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "kafka producer")
	}
	s := NewEventSinkWithProducer(c.Topic, p)
	s.client = client
	s.log = log
	return s, nil
}

// NewEventSinkWithProducer wraps an existing producer.
func NewEventSinkWithProducer(topic string, p sarama.SyncProducer) *EventSink {
	return &EventSink{topic: topic, producer: p, log: logger.Named("kafka")}
}

func (s *EventSink) Emit(ctx context.Context, ev chatsvc.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(ev.RoomID, 10)),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(ev.Kind)},
		},
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrapf(err, "emit %s", ev.Kind)
	}
	s.log.Debug("event emitted", zap.String("kind", ev.Kind), zap.Int64("room_id", ev.RoomID),
		zap.Int32("partition", partition), zap.Int64("offset", offset))
	return nil
}

func (s *EventSink) Close() error {
	err := s.producer.Close()
	if s.client != nil && !s.client.Closed() {
		if cerr := s.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
