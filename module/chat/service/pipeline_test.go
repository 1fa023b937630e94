package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"GreenChat/module/chat/model"
	"GreenChat/service/store/storetest"
	"GreenChat/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendThenListRecent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.SeedRoom(t, f.store, 1, true)

	msg, err := f.pipeline.Send(ctx, 1, member("alice"), "hello", "TEXT")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.NotEmpty(t, msg.CacheID)
	assert.Equal(t, "name-alice", msg.SenderName)

	list, err := f.pipeline.ListRecent(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, msg.ID, list[0].ID)
	assert.Equal(t, "hello", list[0].Text)

	got := f.bus.onTopic(RoomTopic(1))
	require.Len(t, got, 1)
	assert.Equal(t, TypeMessage, got[0].Env["type"])

	cached := f.pipeline.ListCached(ctx, 1)
	require.Len(t, cached, 1)
	assert.Equal(t, msg.CacheID, cached[0].CacheID)

	st, err := f.pipeline.Settings().Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.TotalMessages)
	require.NotNil(t, st.LastMessageID)
	assert.Equal(t, msg.ID, *st.LastMessageID)

	assert.Equal(t, []string{EventMessageCreated}, f.sink.kinds())
}

func TestListRecentOrderAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.SeedRoom(t, f.store, 1, true)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var n int
	f.pipeline.conf.Clock = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	for i := 0; i < 4; i++ {
		_, err := f.pipeline.Send(ctx, 1, member("alice"), fmt.Sprintf("m%d", i), "")
		require.NoError(t, err)
	}

	list, err := f.pipeline.ListRecent(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m2", list[0].Text)
	assert.Equal(t, "m3", list[1].Text)

	cached := f.pipeline.ListCached(ctx, 1)
	require.Len(t, cached, 4)
	assert.Equal(t, "m3", cached[0].Text)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.SeedRoom(t, f.store, 1, true)
	storetest.SeedRoom(t, f.store, 2, false)

	cases := []struct {
		name   string
		room   int64
		author string
		text   string
		typ    string
		want   *errs.CodeError
	}{
		{"unauthenticated", 1, "", "hi", "", errs.ErrUnauthenticated},
		{"empty text", 1, "alice", "   ", "", errs.ErrEmptyText},
		{"unknown type", 1, "alice", "hi", "VIDEO", errs.ErrUnknownMessageType},
		{"missing room", 99, "alice", "hi", "", errs.ErrRoomNotFound},
		{"inactive room", 2, "alice", "hi", "", errs.ErrRoomInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var id = member(tc.author)
			if tc.author == "" {
				id = nil
			}
			_, err := f.pipeline.Send(ctx, tc.room, id, tc.text, tc.typ)
			require.Error(t, err)
			assert.Equal(t, tc.want.Code, errs.Code(err))
			assert.ErrorIs(t, err, errs.ErrSend)
		})
	}

	list, err := f.store.ListRecent(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, f.bus.count())
	assert.Empty(t, f.sink.kinds())
}

func TestSendRejectedWhenChatDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.SeedRoom(t, f.store, 1, true)
	require.NoError(t, f.pipeline.Settings().Deactivate(ctx, 1))

	_, err := f.pipeline.Send(ctx, 1, member("alice"), "hi", "")
	assert.Equal(t, errs.RoomInactive, errs.Code(err))
	assert.Zero(t, f.bus.count())

	require.NoError(t, f.pipeline.Settings().Activate(ctx, 1))
	_, err = f.pipeline.Send(ctx, 1, member("alice"), "hi", "")
	assert.NoError(t, err)
}

func TestSendDailyLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.SeedRoom(t, f.store, 1, true)
	require.NoError(t, f.pipeline.Settings().Save(ctx, &model.RoomSettings{RoomID: 1, ChatActive: true, RetentionDays: 30, DailyLimit: 2}))

	for i := 0; i < 2; i++ {
		_, err := f.pipeline.Send(ctx, 1, member("alice"), "hi", "")
		require.NoError(t, err)
	}
	_, err := f.pipeline.Send(ctx, 1, member("bob"), "one more", "")
	assert.Equal(t, errs.DailyLimitExceeded, errs.Code(err))
	assert.Len(t, f.bus.onTopic(RoomTopic(1)), 2)
}

func TestSendStorageFailureDoesNotBroadcast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.SeedRoom(t, f.store, 1, true)
	f.store.createErr = errors.New("disk full")

	_, err := f.pipeline.Send(ctx, 1, member("alice"), "hi", "")
	assert.Equal(t, errs.StorageFailure, errs.Code(err))
	assert.Zero(t, f.bus.count())
	assert.Empty(t, f.pipeline.ListCached(ctx, 1))
	assert.Empty(t, f.sink.kinds())
}

func TestSendSurvivesCacheOutage(t *testing.T) {
	f := newFixtureWithCache(t, brokenCache{})
	ctx := context.Background()
	storetest.SeedRoom(t, f.store, 1, true)

	_, err := f.pipeline.Send(ctx, 1, member("alice"), "hi", "")
	require.NoError(t, err)
	assert.Len(t, f.bus.onTopic(RoomTopic(1)), 1)
	assert.Empty(t, f.pipeline.ListCached(ctx, 1))
}

func TestSendCompletesAfterCallerCancels(t *testing.T) {
	f := newFixture(t)
	storetest.SeedRoom(t, f.store, 1, true)
	ctx, cancel := context.WithCancel(context.Background())

	f.store.onRecord = func(int64) { cancel() }
	_, err := f.pipeline.Send(ctx, 1, member("alice"), "hi", "")
	require.NoError(t, err)
	assert.Len(t, f.bus.onTopic(RoomTopic(1)), 1)
	assert.Len(t, f.pipeline.ListCached(context.Background(), 1), 1)
}

func TestBroadcastFollowsPersistenceOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.SeedRoom(t, f.store, 1, true)

	// The first message stalls after it is committed; the second one must not
	// overtake it on the wire.
	release := make(chan struct{})
	stalled := make(chan struct{})
	var once sync.Once
	f.store.onRecord = func(int64) {
		once.Do(func() {
			close(stalled)
			<-release
		})
	}

	var first, second *model.Message
	done := make(chan struct{})
	go func() {
		defer close(done)
		var err error
		first, err = f.pipeline.Send(ctx, 1, member("alice"), "first", "")
		assert.NoError(t, err)
	}()
	<-stalled

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		var err error
		second, err = f.pipeline.Send(ctx, 1, member("bob"), "second", "")
		assert.NoError(t, err)
	}()

	require.Never(t, func() bool { return len(f.bus.onTopic(RoomTopic(1))) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	close(release)
	<-done
	<-secondDone

	got := f.bus.onTopic(RoomTopic(1))
	require.Len(t, got, 2)
	assert.EqualValues(t, first.ID, got[0].Env["data"].(map[string]any)["id"])
	assert.EqualValues(t, second.ID, got[1].Env["data"].(map[string]any)["id"])
}

func TestConcurrentSendsDeliveredOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.SeedRoom(t, f.store, 1, true)
	storetest.SeedRoom(t, f.store, 2, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room := int64(1 + i%2)
			_, err := f.pipeline.Send(ctx, room, member(fmt.Sprintf("u%d", i)), "hi", "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.bus.onTopic(RoomTopic(1)), 10)
	assert.Len(t, f.bus.onTopic(RoomTopic(2)), 10)
	assert.Zero(t, f.pipeline.seq.pending())

	st, err := f.pipeline.Settings().Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), st.TotalMessages)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.SeedRoom(t, f.store, 1, true)
	storetest.SeedRoom(t, f.store, 2, true)

	msg, err := f.pipeline.Send(ctx, 1, member("alice"), "oops", "")
	require.NoError(t, err)

	err = f.pipeline.Delete(ctx, 1, msg.ID, member("bob"))
	assert.Equal(t, errs.Forbidden, errs.Code(err))
	got, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, got.Deleted)

	err = f.pipeline.Delete(ctx, 2, msg.ID, member("alice"))
	assert.Equal(t, errs.MessageNotFound, errs.Code(err))
	err = f.pipeline.Delete(ctx, 1, 4242, member("alice"))
	assert.Equal(t, errs.MessageNotFound, errs.Code(err))
	assert.ErrorIs(t, err, errs.ErrDelete)

	require.NoError(t, f.pipeline.Delete(ctx, 1, msg.ID, member("alice")))
	list, err := f.pipeline.ListRecent(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	got, err = f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	dels := f.bus.onTopic(DeleteTopic(1))
	require.Len(t, dels, 1)
	assert.Equal(t, TypeDeleted, dels[0].Env["type"])
	assert.EqualValues(t, msg.ID, dels[0].Env["data"].(map[string]any)["message_id"])
	assert.Equal(t, []string{EventMessageCreated, EventMessageDeleted}, f.sink.kinds())
}

func TestListRecentUnknownRoom(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.ListRecent(context.Background(), 7, 10)
	assert.Equal(t, errs.RoomNotFound, errs.Code(err))
	assert.Empty(t, f.pipeline.ListCached(context.Background(), 7))
}

func TestDeleteRequiresActiveRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.SeedRoom(t, f.store, 1, true)
	storetest.SeedRoom(t, f.store, 2, true)

	first, err := f.pipeline.Send(ctx, 1, member("alice"), "one", "")
	require.NoError(t, err)
	second, err := f.pipeline.Send(ctx, 2, member("alice"), "two", "")
	require.NoError(t, err)

	storetest.SeedRoom(t, f.store, 1, false)
	err = f.pipeline.Delete(ctx, 1, first.ID, member("alice"))
	assert.Equal(t, errs.RoomInactive, errs.Code(err))

	require.NoError(t, f.pipeline.Settings().Deactivate(ctx, 2))
	err = f.pipeline.Delete(ctx, 2, second.ID, member("alice"))
	assert.Equal(t, errs.RoomInactive, errs.Code(err))

	err = f.pipeline.Delete(ctx, 9, first.ID, member("alice"))
	assert.Equal(t, errs.RoomNotFound, errs.Code(err))

	for _, id := range []int64{first.ID, second.ID} {
		got, err := f.store.GetMessage(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.Deleted)
	}
	assert.Empty(t, f.bus.onTopic(DeleteTopic(1)))
	assert.Empty(t, f.bus.onTopic(DeleteTopic(2)))
	assert.Equal(t, []string{EventMessageCreated, EventMessageCreated}, f.sink.kinds())
}

func TestDeleteTwiceAnnouncesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.SeedRoom(t, f.store, 1, true)

	msg, err := f.pipeline.Send(ctx, 1, member("alice"), "oops", "")
	require.NoError(t, err)
	require.NoError(t, f.pipeline.Delete(ctx, 1, msg.ID, member("alice")))
	require.NoError(t, f.pipeline.Delete(ctx, 1, msg.ID, member("alice")))

	// another member still may not touch it
	err = f.pipeline.Delete(ctx, 1, msg.ID, member("bob"))
	assert.Equal(t, errs.Forbidden, errs.Code(err))

	assert.Len(t, f.bus.onTopic(DeleteTopic(1)), 1)
	assert.Equal(t, []string{EventMessageCreated, EventMessageDeleted}, f.sink.kinds())
}
