package service

import (
	"context"
	"time"

	"GreenChat/logger"
	"GreenChat/service/auth"
	"GreenChat/service/storage"
	"GreenChat/tools/errs"

	"go.uber.org/zap"
)

// Presence tracks who is online per room. It is advisory: cache failures are
// logged and swallowed, and entries lapse with the cache TTL.
type Presence struct {
	cache   storage.HotCache
	timeout time.Duration
	rooms   *Pipeline
	log     *zap.Logger
}

// NewPresence shares room lookups and timeouts with pipeline.
func NewPresence(pipeline *Pipeline) *Presence {
	return &Presence{
		cache:   pipeline.cache,
		timeout: pipeline.conf.CacheTimeout,
		rooms:   pipeline,
		log:     logger.Named("presence"),
	}
}

// Join marks id online in the room and announces it. Repeated joins refresh
// the TTL and leave a single entry.
func (p *Presence) Join(ctx context.Context, roomID int64, id *auth.Identity) error {
	if id == nil || id.SubjectID == "" {
		return errs.ErrUnauthenticated.Wrap()
	}
	if _, err := p.rooms.activeRoom(ctx, roomID); err != nil {
		return err
	}

	if p.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		if err := p.cache.JoinPresence(cctx, roomID, id.SubjectID); err != nil {
			p.log.Warn("presence join not recorded", zap.Int64("room_id", roomID), zap.String("subject", id.SubjectID), zap.Error(err))
		}
		cancel()
	}
	p.announce(ctx, roomID, id, PresenceJoin)
	return nil
}

// Leave removes id from an active room. LEAVE is announced only when id was
// online there.
func (p *Presence) Leave(ctx context.Context, roomID int64, id *auth.Identity) error {
	if id == nil || id.SubjectID == "" {
		return errs.ErrUnauthenticated.Wrap()
	}
	if _, err := p.rooms.activeRoom(ctx, roomID); err != nil {
		return err
	}
	p.release(ctx, roomID, id)
	return nil
}

// Release is Leave without the room check, for connections going away from a
// room they joined.
func (p *Presence) Release(ctx context.Context, roomID int64, id *auth.Identity) error {
	if id == nil || id.SubjectID == "" {
		return errs.ErrUnauthenticated.Wrap()
	}
	p.release(ctx, roomID, id)
	return nil
}

// release announces when the entry was removed, or when the cache cannot
// tell.
func (p *Presence) release(ctx context.Context, roomID int64, id *auth.Identity) {
	if p.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		removed, err := p.cache.LeavePresence(cctx, roomID, id.SubjectID)
		cancel()
		if err != nil {
			p.log.Warn("presence leave not recorded", zap.Int64("room_id", roomID), zap.String("subject", id.SubjectID), zap.Error(err))
		} else if !removed {
			return
		}
	}
	p.announce(ctx, roomID, id, PresenceLeave)
}

func (p *Presence) announce(ctx context.Context, roomID int64, id *auth.Identity, kind PresenceKind) {
	ev := PresenceEvent{RoomID: roomID, SubjectID: id.SubjectID, DisplayName: id.DisplayName, Kind: kind}
	p.rooms.publish(ctx, PresenceTopic(roomID), Envelope{Type: TypePresence, Topic: PresenceTopic(roomID), Data: ev})

	evKind := EventPresenceJoin
	if kind == PresenceLeave {
		evKind = EventPresenceLeave
	}
	p.rooms.emit(ctx, Event{Kind: evKind, RoomID: roomID, SubjectID: id.SubjectID, At: time.Now().UTC()})
}

// OnlineMembers is a sorted point-in-time snapshot; empty when the cache is
// unavailable.
func (p *Presence) OnlineMembers(ctx context.Context, roomID int64) []string {
	out := make([]string, 0)
	if p.cache == nil {
		return out
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	members, err := p.cache.PresenceMembers(ctx, roomID)
	if err != nil {
		p.log.Warn("presence read failed", zap.Int64("room_id", roomID), zap.Error(err))
		return out
	}
	return append(out, members...)
}

// PublishOnline broadcasts the current snapshot on the room's online topic
// and returns it.
func (p *Presence) PublishOnline(ctx context.Context, roomID int64) ([]string, error) {
	if _, err := p.rooms.loadRoom(ctx, roomID); err != nil {
		return nil, err
	}
	members := p.OnlineMembers(ctx, roomID)
	p.rooms.publish(ctx, OnlineTopic(roomID), Envelope{Type: TypeOnline, Topic: OnlineTopic(roomID), Data: OnlineSnapshot{RoomID: roomID, Members: members}})
	return members, nil
}
