package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	for _, topic := range RoomTopics(42) {
		id, ok := ParseTopic(topic)
		assert.True(t, ok, topic)
		assert.Equal(t, int64(42), id)
	}
	for _, bad := range []string{"", "team.", "team.x", "team.0", "team.5.typing", "room.5"} {
		_, ok := ParseTopic(bad)
		assert.False(t, ok, bad)
	}
}

func TestSequencerKeepsTicketOrder(t *testing.T) {
	s := newSequencer()
	var mu sync.Mutex
	var order []int

	w1, r1 := s.ticket(1)
	assert.Nil(t, w1)
	w2, r2 := s.ticket(1)
	require.NotNil(t, w2)
	w3, r3 := s.ticket(2)
	assert.Nil(t, w3, "other rooms are independent")
	r3()

	done := make(chan struct{})
	go func() {
		<-w2
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		r2()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	r1()
	<-done

	assert.Equal(t, []int{1, 2}, order)
	assert.Zero(t, s.pending())
}
