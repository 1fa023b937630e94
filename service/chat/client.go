package chat

import (
	"net"
	"sort"
	"sync"
	"time"

	"GreenChat/service/auth"

	"github.com/gorilla/websocket"
)

// Client is one websocket connection. Outbound frames go through Send and are
// written by a single writer goroutine.
type Client struct {
	ConnID string
	WS     *websocket.Conn
	Remote net.Addr

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	subject   string
	rooms     map[int64]auth.Identity
	createdAt time.Time
	expireAt  time.Time
}

func NewClient(connID string, ws *websocket.Conn, sendQueueSize int, now time.Time) *Client {
	c := &Client{
		ConnID:    connID,
		WS:        ws,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		rooms:     make(map[int64]auth.Identity),
		createdAt: now,
	}
	if ws != nil {
		c.Remote = ws.RemoteAddr()
	}
	return c
}

// Send queues payload without blocking. A full queue drops the frame and
// reports false; the connection is too slow to keep up.
func (c *Client) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Outbound is drained by the writer.
func (c *Client) Outbound() <-chan []byte { return c.send }

// Done closes when the connection is shut down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close stops the writer; it is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) Subject() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subject
}

func (c *Client) bind(subject string) {
	c.mu.Lock()
	c.subject = subject
	c.mu.Unlock()
}

// JoinRoom records roomID with the identity that joined it and reports
// whether it was new.
func (c *Client) JoinRoom(roomID int64, id auth.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, had := c.rooms[roomID]
	c.rooms[roomID] = id
	return !had
}

func (c *Client) LeaveRoom(roomID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[roomID]; !ok {
		return false
	}
	delete(c.rooms, roomID)
	return true
}

// Rooms lists the joined rooms in ascending order.
func (c *Client) Rooms() []int64 {
	c.mu.Lock()
	out := make([]int64, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RoomIdentity returns the identity roomID was joined under.
func (c *Client) RoomIdentity(roomID int64) (auth.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.rooms[roomID]
	return id, ok
}
