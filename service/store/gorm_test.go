package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"GreenChat/module/chat/model"
	"GreenChat/service/store"
	"GreenChat/service/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMessage(room int64, sender, text string, at time.Time) *model.Message {
	return &model.Message{RoomID: room, SenderID: sender, SenderName: sender, Text: text, Type: model.MessageText, CreatedAt: at}
}

func exerciseStore(t *testing.T, s store.Store) {
	ctx := context.Background()
	storetest.SeedRoom(t, s, 1, true)
	storetest.SeedMember(t, s, "u1", "Ada", model.MemberActive)

	r, err := s.GetRoom(ctx, 1)
	require.NoError(t, err)
	assert.True(t, r.Active)
	_, err = s.GetRoom(ctx, 99)
	assert.ErrorIs(t, err, store.ErrNotFound)

	m, err := s.GetMember(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, m.IsActive())

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	var ids []int64
	for i := 0; i < 5; i++ {
		msg := newMessage(1, "u1", "hello", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.CreateMessage(ctx, msg))
		require.NotZero(t, msg.ID)
		ids = append(ids, msg.ID)
	}
	require.NoError(t, s.MarkDeleted(ctx, ids[4]))
	assert.ErrorIs(t, s.MarkDeleted(ctx, 424242), store.ErrNotFound)

	recent, err := s.ListRecent(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []int64{ids[3], ids[2], ids[1]}, []int64{recent[0].ID, recent[1].ID, recent[2].ID})

	got, err := s.GetMessage(ctx, ids[4])
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	n, err := s.CountSince(ctx, 1, base.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = s.GetSettings(ctx, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, s.RecordMessage(ctx, 1, ids[0], base))
	require.NoError(t, s.RecordMessage(ctx, 1, ids[1], base.Add(time.Second)))
	st, err := s.GetSettings(ctx, 1)
	require.NoError(t, err)
	assert.True(t, st.ChatActive)
	assert.Equal(t, 30, st.RetentionDays)
	assert.Equal(t, int64(2), st.TotalMessages)
	require.NotNil(t, st.LastMessageID)
	assert.Equal(t, ids[1], *st.LastMessageID)

	require.NoError(t, s.SetChatActive(ctx, 1, false))
	st, err = s.GetSettings(ctx, 1)
	require.NoError(t, err)
	assert.False(t, st.ChatActive)
	assert.Equal(t, int64(2), st.TotalMessages)

	old, err := s.ListBefore(ctx, 1, base.Add(2*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, ids[0], old[0].ID)

	purged, err := s.PurgeMessages(ctx, []int64{old[0].ID, old[1].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)
	_, err = s.GetMessage(ctx, ids[0])
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveSettings(ctx, &model.RoomSettings{RoomID: 1, ChatActive: true, RetentionDays: 7, DailyLimit: 5}))
	st, err = s.GetSettings(ctx, 1)
	require.NoError(t, err)
	assert.True(t, st.ChatActive)
	assert.Equal(t, 7, st.RetentionDays)
	assert.Equal(t, 5, st.DailyLimit)
	assert.Equal(t, int64(2), st.TotalMessages)

	all, err := s.ListSettings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGormStore(t *testing.T) {
	exerciseStore(t, storetest.New(t))
}

func TestPgxStore(t *testing.T) {
	dsn := os.Getenv("GREENCHAT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("GREENCHAT_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := store.NewPgxStore(ctx, store.Config{DSN: dsn})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), store.Config{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
	_, err = store.Open(context.Background(), store.Config{Driver: "sqlite"})
	assert.Error(t, err)
}
