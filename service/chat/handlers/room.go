package handlers

import (
	"context"

	chatsvc "GreenChat/module/chat/service"
	"GreenChat/service/chat"
	"GreenChat/tools/errs"
)

func roomBody(f *chat.Frame) (int64, error) {
	var body chat.RoomBody
	if err := f.DecodeBody(&body); err != nil {
		return 0, err
	}
	if body.RoomID <= 0 {
		return 0, errs.ErrArgs.WrapMsg("room_id required")
	}
	return body.RoomID, nil
}

// JoinHandler registers presence and subscribes the connection to the room's
// topics.
type JoinHandler struct{}

func NewJoinHandler() chat.Handler { return JoinHandler{} }

func (JoinHandler) Type() string       { return chat.FrameJoin }
func (JoinHandler) NeedsSession() bool { return true }

func (JoinHandler) Handle(ctx context.Context, cc *chat.ChatContext, f *chat.Frame) error {
	roomID, err := roomBody(f)
	if err != nil {
		return err
	}
	id := cc.Session.Identity
	if err := cc.S.Presence().Join(ctx, roomID, &id); err != nil {
		return err
	}
	cc.Client.JoinRoom(roomID, id)
	for _, topic := range chatsvc.RoomTopics(roomID) {
		cc.S.Hub().Subscribe(topic, cc.Client)
	}
	cc.Reply(chat.AckFrame(f.ID, map[string]any{"room_id": roomID, "topics": chatsvc.RoomTopics(roomID)}))
	return nil
}

// LeaveHandler leaves an active room and drops the room's topics.
type LeaveHandler struct{}

func NewLeaveHandler() chat.Handler { return LeaveHandler{} }

func (LeaveHandler) Type() string       { return chat.FrameLeave }
func (LeaveHandler) NeedsSession() bool { return true }

func (LeaveHandler) Handle(ctx context.Context, cc *chat.ChatContext, f *chat.Frame) error {
	roomID, err := roomBody(f)
	if err != nil {
		return err
	}
	id := cc.Session.Identity
	if err := cc.S.Presence().Leave(ctx, roomID, &id); err != nil {
		return err
	}
	// a rejected leave keeps the membership so disconnect still releases it
	for _, topic := range chatsvc.RoomTopics(roomID) {
		cc.S.Hub().Unsubscribe(topic, cc.Client)
	}
	cc.Client.LeaveRoom(roomID)
	cc.Reply(chat.AckFrame(f.ID, map[string]any{"room_id": roomID}))
	return nil
}

// OnlineHandler broadcasts the room's online snapshot and returns it to the
// caller.
type OnlineHandler struct{}

func NewOnlineHandler() chat.Handler { return OnlineHandler{} }

func (OnlineHandler) Type() string       { return chat.FrameOnline }
func (OnlineHandler) NeedsSession() bool { return true }

func (OnlineHandler) Handle(ctx context.Context, cc *chat.ChatContext, f *chat.Frame) error {
	roomID, err := roomBody(f)
	if err != nil {
		return err
	}
	members, err := cc.S.Presence().PublishOnline(ctx, roomID)
	if err != nil {
		return err
	}
	cc.Reply(chat.AckFrame(f.ID, chatsvc.OnlineSnapshot{RoomID: roomID, Members: members}))
	return nil
}
