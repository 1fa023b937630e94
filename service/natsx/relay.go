package natsx

import (
	"context"
	"strings"
	"sync"

	"GreenChat/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Deliverer hands a payload to the local subscribers of topic.
type Deliverer interface {
	Deliver(topic string, payload []byte) int
}

// Relay fans broadcasts out across gateway nodes. Publish goes to NATS only;
// every node, the publisher included, delivers what it receives back on its
// subscription to its local connections. One connection per node keeps the
// publish order of that node.
type Relay struct {
	nc     *nats.Conn
	prefix string
	local  Deliverer
	h      Handler
	log    *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

func NewRelay(nc *nats.Conn, prefix string, local Deliverer, mws ...Middleware) *Relay {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = "greenchat"
	}
	r := &Relay{nc: nc, prefix: prefix, local: local, log: logger.Named("relay")}
	base := func(_ context.Context, msg Message) error {
		r.local.Deliver(msg.Topic, msg.Data)
		return nil
	}
	r.h = Chain(base, append([]Middleware{LogErrors(r.log), Recover()}, mws...)...)
	return r
}

// Subject maps a room topic onto the relay subject space.
func (r *Relay) Subject(topic string) string { return r.prefix + "." + topic }

// Topic is the inverse of Subject; ok is false for foreign subjects.
func (r *Relay) Topic(subject string) (string, bool) {
	t, ok := strings.CutPrefix(subject, r.prefix+".")
	if !ok || t == "" {
		return "", false
	}
	return t, true
}

// Start subscribes to every subject under the prefix.
func (r *Relay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return nil
	}
	sub, err := r.nc.Subscribe(r.prefix+".>", r.onMsg)
	if err != nil {
		return err
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	r.sub = sub
	r.log.Info("relay subscribed", zap.String("subject", sub.Subject))
	return nil
}

func (r *Relay) onMsg(m *nats.Msg) {
	topic, ok := r.Topic(m.Subject)
	if !ok {
		return
	}
	_ = r.h(context.Background(), Message{
		Topic:  topic,
		Data:   append([]byte(nil), m.Data...),
		Header: headerToMap(m.Header),
	})
}

// Publish sends payload to every node subscribed to topic.
func (r *Relay) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.nc.Publish(r.Subject(topic), payload)
}

// Close drains the subscription; the connection belongs to the caller.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub == nil {
		return nil
	}
	err := r.sub.Drain()
	r.sub = nil
	return err
}
