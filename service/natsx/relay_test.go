package natsx

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDeliverer struct {
	mu  sync.Mutex
	got map[string][]string
}

func (d *recordingDeliverer) Deliver(topic string, payload []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.got == nil {
		d.got = map[string][]string{}
	}
	d.got[topic] = append(d.got[topic], string(payload))
	return 1
}

func (d *recordingDeliverer) on(topic string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.got[topic]...)
}

func TestRelaySubjectMapping(t *testing.T) {
	r := NewRelay(nil, "gc.", &recordingDeliverer{})
	assert.Equal(t, "gc.team.7.presence", r.Subject("team.7.presence"))

	topic, ok := r.Topic("gc.team.7.presence")
	require.True(t, ok)
	assert.Equal(t, "team.7.presence", topic)

	_, ok = r.Topic("other.team.7")
	assert.False(t, ok)
	_, ok = r.Topic("gc.")
	assert.False(t, ok)
}

func TestChainOrderAndRecover(t *testing.T) {
	var seen []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, msg Message) error {
				seen = append(seen, name)
				return next(ctx, msg)
			}
		}
	}
	h := Chain(func(context.Context, Message) error { panic("boom") }, mark("a"), Recover(), mark("b"))
	err := h(context.Background(), Message{Topic: "team.1"})
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)

	sentinel := errors.New("x")
	h = Chain(func(context.Context, Message) error { return sentinel }, Recover())
	assert.ErrorIs(t, h(context.Background(), Message{}), sentinel)
}

func TestRelayRoundTrip(t *testing.T) {
	url := os.Getenv("GREENCHAT_TEST_NATS")
	if url == "" {
		url = "nats://127.0.0.1:4222"
	}
	nc, err := Connect(Config{Servers: []string{url}, Timeout: 500 * time.Millisecond})
	if err != nil {
		t.Skipf("nats not reachable at %s: %v", url, err)
	}
	defer nc.Close()

	prefix := "greenchat-test-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	local := &recordingDeliverer{}
	r := NewRelay(nc, prefix, local)
	require.NoError(t, r.Start())
	defer r.Close()
	require.NoError(t, nc.Flush())

	ctx := context.Background()
	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, r.Publish(ctx, "team.5", []byte(p)))
	}
	require.Eventually(t, func() bool { return len(local.on("team.5")) == 3 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3"}, local.on("team.5"))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, r.Publish(cctx, "team.5", []byte("late")), context.Canceled)
}
