package chat

import (
	"context"
	"sync"
)

// Hub is the in-process topic registry. Publish fans a payload out to every
// subscriber of the topic by queueing it on the connection, so one
// connection sees frames of a topic in publish order.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[string]*Client // topic -> conn id -> client
	byConn  map[string]map[string]struct{}
	dropped func(c *Client, topic string)
}

func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[string]*Client),
		byConn: make(map[string]map[string]struct{}),
	}
}

// OnDrop installs a callback for frames a full send queue refused.
func (h *Hub) OnDrop(fn func(c *Client, topic string)) { h.dropped = fn }

func (h *Hub) Subscribe(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[string]*Client)
		h.topics[topic] = subs
	}
	subs[c.ConnID] = c
	mine := h.byConn[c.ConnID]
	if mine == nil {
		mine = make(map[string]struct{})
		h.byConn[c.ConnID] = mine
	}
	mine[topic] = struct{}{}
}

func (h *Hub) Unsubscribe(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(topic, c.ConnID)
}

func (h *Hub) unsubscribeLocked(topic, connID string) {
	if subs := h.topics[topic]; subs != nil {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	if mine := h.byConn[connID]; mine != nil {
		delete(mine, topic)
		if len(mine) == 0 {
			delete(h.byConn, connID)
		}
	}
}

// UnsubscribeAll drops every subscription of c.
func (h *Hub) UnsubscribeAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range h.byConn[c.ConnID] {
		h.unsubscribeLocked(topic, c.ConnID)
	}
}

func (h *Hub) Subscribed(topic string, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.topics[topic][c.ConnID]
	return ok
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Publish delivers locally. It never blocks on a slow connection.
func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	h.Deliver(topic, payload)
	return nil
}

// Deliver queues payload on every local subscriber of topic and returns how
// many accepted it.
func (h *Hub) Deliver(topic string, payload []byte) int {
	h.mu.RLock()
	subs := make([]*Client, 0, len(h.topics[topic]))
	for _, c := range h.topics[topic] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range subs {
		if c.Send(payload) {
			n++
		} else if h.dropped != nil {
			h.dropped(c, topic)
		}
	}
	return n
}
