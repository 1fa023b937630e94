package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"GreenChat/logger"
	"GreenChat/module/chat/model"
	"GreenChat/service/auth"
	"GreenChat/service/storage"
	"GreenChat/service/store"
	"GreenChat/tools/errs"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 200
)

type PipelineConf struct {
	StoreTimeout time.Duration
	CacheTimeout time.Duration
	Clock        func() time.Time
}

func (c *PipelineConf) norm() {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.CacheTimeout <= 0 {
		c.CacheTimeout = 2 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Pipeline accepts sends, commits them durably, projects them into the hot
// cache and fans them out. Broadcasts for one room are released in the order
// their persistence completed.
type Pipeline struct {
	store    store.Store
	cache    storage.HotCache
	bus      Broadcaster
	sink     EventSink
	settings *Settings
	seq      *sequencer
	conf     PipelineConf
	log      *zap.Logger
}

func NewPipeline(st store.Store, cache storage.HotCache, bus Broadcaster, sink EventSink, conf PipelineConf) *Pipeline {
	conf.norm()
	if sink == nil {
		sink = NopSink{}
	}
	return &Pipeline{
		store:    st,
		cache:    cache,
		bus:      bus,
		sink:     sink,
		settings: NewSettings(st, conf.StoreTimeout),
		seq:      newSequencer(),
		conf:     conf,
		log:      logger.Named("pipeline"),
	}
}

func (p *Pipeline) Settings() *Settings { return p.settings }

// loadRoom maps store lookups onto send errors.
func (p *Pipeline) loadRoom(ctx context.Context, roomID int64) (*model.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, p.conf.StoreTimeout)
	defer cancel()
	room, err := p.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrRoomNotFound.WrapMsg("", "room_id", roomID)
	}
	if err != nil {
		return nil, errs.ErrStorageFailure.WrapMsg("load room", "room_id", roomID, "err", err)
	}
	return room, nil
}

// CheckRoom reports RoomNotFound for unknown rooms. Inactive rooms pass:
// reading history stays allowed.
func (p *Pipeline) CheckRoom(ctx context.Context, roomID int64) error {
	_, err := p.loadRoom(ctx, roomID)
	return err
}

// activeRoom loads the room's settings, failing with RoomNotFound or
// RoomInactive. A room is inactive when the room itself is or its chat is
// switched off.
func (p *Pipeline) activeRoom(ctx context.Context, roomID int64) (*model.RoomSettings, error) {
	room, err := p.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Active {
		return nil, errs.ErrRoomInactive.WrapMsg("", "room_id", roomID)
	}
	settings, err := p.settings.Get(ctx, roomID)
	if err != nil {
		return nil, errs.ErrStorageFailure.WrapMsg("load settings", "room_id", roomID, "err", err)
	}
	if !settings.ChatActive {
		return nil, errs.ErrRoomInactive.WrapMsg("chat disabled", "room_id", roomID)
	}
	return settings, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Send validates, persists, caches and broadcasts one message.
func (p *Pipeline) Send(ctx context.Context, roomID int64, author *auth.Identity, text, msgType string) (*model.Message, error) {
	if author == nil || author.SubjectID == "" {
		return nil, errs.ErrUnauthenticated.Wrap()
	}
	if strings.TrimSpace(text) == "" {
		return nil, errs.ErrEmptyText.Wrap()
	}
	typ, ok := model.ParseMessageType(msgType)
	if !ok {
		return nil, errs.ErrUnknownMessageType.WrapMsg("", "type", msgType)
	}

	settings, err := p.activeRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	now := p.conf.Clock().UTC()
	if settings.DailyLimit > 0 {
		cctx, cancel := context.WithTimeout(ctx, p.conf.StoreTimeout)
		n, cerr := p.store.CountSince(cctx, roomID, startOfDay(now))
		cancel()
		switch {
		case cerr != nil:
			p.log.Warn("daily count failed, not enforcing cap", zap.Int64("room_id", roomID), zap.Error(cerr))
		case n >= int64(settings.DailyLimit):
			return nil, errs.ErrDailyLimitExceeded.WrapMsg("", "room_id", roomID, "limit", settings.DailyLimit)
		}
	}

	msg := &model.Message{
		RoomID:     roomID,
		SenderID:   author.SubjectID,
		SenderName: author.DisplayName,
		Text:       text,
		Type:       typ,
		CreatedAt:  now,
		CacheID:    uuid.NewString(),
	}

	pctx, cancel := context.WithTimeout(ctx, p.conf.StoreTimeout)
	err = p.store.CreateMessage(pctx, msg)
	cancel()
	if err != nil {
		return nil, errs.ErrStorageFailure.WrapMsg("persist message", "room_id", roomID, "err", err)
	}

	// The message is committed; the remaining steps run even if the caller
	// has gone away.
	bctx := context.WithoutCancel(ctx)
	p.seq.run(roomID, func() {
		if err := p.settings.RecordMessage(bctx, msg); err != nil {
			p.log.Warn("settings update failed", zap.Int64("room_id", roomID), zap.Int64("message_id", msg.ID), zap.Error(err))
		}
		p.pushCache(bctx, msg)
		p.publish(bctx, RoomTopic(roomID), Envelope{Type: TypeMessage, Topic: RoomTopic(roomID), Data: msg})
	})
	p.emit(bctx, Event{Kind: EventMessageCreated, RoomID: roomID, SubjectID: msg.SenderID, MessageID: msg.ID, Message: msg, At: now})
	return msg, nil
}

func (p *Pipeline) pushCache(ctx context.Context, msg *model.Message) {
	if p.cache == nil {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("encode cache entry", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.conf.CacheTimeout)
	defer cancel()
	if err := p.cache.PushRecent(ctx, msg.RoomID, b); err != nil {
		p.log.Warn("cache push failed", zap.Int64("room_id", msg.RoomID), zap.Int64("message_id", msg.ID), zap.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, topic string, env Envelope) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, topic, Encode(env)); err != nil {
		p.log.Error("broadcast failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (p *Pipeline) emit(ctx context.Context, ev Event) {
	if err := p.sink.Emit(ctx, ev); err != nil {
		p.log.Warn("event sink failed", zap.String("kind", ev.Kind), zap.Int64("room_id", ev.RoomID), zap.Error(err))
	}
}

// ListRecent returns up to limit non-deleted messages in chronological order.
func (p *Pipeline) ListRecent(ctx context.Context, roomID int64, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	if _, err := p.loadRoom(ctx, roomID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.conf.StoreTimeout)
	defer cancel()
	list, err := p.store.ListRecent(ctx, roomID, limit)
	if err != nil {
		return nil, errs.ErrStorageFailure.WrapMsg("list recent", "room_id", roomID, "err", err)
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// ListCached returns the hot-cache projection, newest first. It never fails:
// a miss or a cache error yields an empty list.
func (p *Pipeline) ListCached(ctx context.Context, roomID int64) []*model.Message {
	out := make([]*model.Message, 0)
	if p.cache == nil {
		return out
	}
	ctx, cancel := context.WithTimeout(ctx, p.conf.CacheTimeout)
	defer cancel()
	raw, err := p.cache.Recent(ctx, roomID)
	if err != nil {
		p.log.Warn("cache read failed", zap.Int64("room_id", roomID), zap.Error(err))
		return out
	}
	for _, b := range raw {
		var m model.Message
		if err := json.Unmarshal(b, &m); err != nil {
			continue
		}
		out = append(out, &m)
	}
	return out
}

// Delete soft-deletes a message on behalf of its author and tells the room.
// Deleting an already deleted message is a no-op.
func (p *Pipeline) Delete(ctx context.Context, roomID, messageID int64, requester *auth.Identity) error {
	if requester == nil || requester.SubjectID == "" {
		return errs.ErrUnauthenticated.Wrap()
	}
	if _, err := p.activeRoom(ctx, roomID); err != nil {
		return err
	}
	gctx, cancel := context.WithTimeout(ctx, p.conf.StoreTimeout)
	msg, err := p.store.GetMessage(gctx, messageID)
	cancel()
	if errors.Is(err, store.ErrNotFound) || (err == nil && msg.RoomID != roomID) {
		return errs.ErrMessageNotFound.WrapMsg("", "room_id", roomID, "message_id", messageID)
	}
	if err != nil {
		return errs.ErrStorageFailure.WrapMsg("load message", "message_id", messageID, "err", err)
	}
	if msg.SenderID != requester.SubjectID {
		return errs.ErrForbidden.WrapMsg("only the author may delete", "message_id", messageID)
	}
	if msg.Deleted {
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, p.conf.StoreTimeout)
	err = p.store.MarkDeleted(dctx, messageID)
	cancel()
	if err != nil {
		return errs.ErrStorageFailure.WrapMsg("mark deleted", "message_id", messageID, "err", err)
	}

	bctx := context.WithoutCancel(ctx)
	p.seq.run(roomID, func() {
		p.publish(bctx, DeleteTopic(roomID), Envelope{Type: TypeDeleted, Topic: DeleteTopic(roomID), Data: DeleteEvent{RoomID: roomID, MessageID: messageID}})
	})
	p.emit(bctx, Event{Kind: EventMessageDeleted, RoomID: roomID, SubjectID: requester.SubjectID, MessageID: messageID, At: p.conf.Clock().UTC()})
	return nil
}
