package handlers

import (
	"context"

	"GreenChat/service/chat"
	"GreenChat/tools/errs"
)

// SendHandler hands a message to the pipeline under the frame's identity.
// Joining the room first is not required.
type SendHandler struct{}

func NewSendHandler() chat.Handler { return SendHandler{} }

func (SendHandler) Type() string       { return chat.FrameSend }
func (SendHandler) NeedsSession() bool { return true }

func (SendHandler) Handle(ctx context.Context, cc *chat.ChatContext, f *chat.Frame) error {
	var body chat.SendBody
	if err := f.DecodeBody(&body); err != nil {
		return err
	}
	if body.RoomID <= 0 {
		return errs.ErrArgs.WrapMsg("room_id required")
	}
	id := cc.Session.Identity
	msg, err := cc.S.Pipeline().Send(ctx, body.RoomID, &id, body.Text, body.Type)
	if err != nil {
		return err
	}
	cc.Reply(chat.AckFrame(f.ID, map[string]any{
		"room_id":    msg.RoomID,
		"message_id": msg.ID,
		"cache_id":   msg.CacheID,
		"created_at": msg.CreatedAt,
	}))
	return nil
}

type DeleteHandler struct{}

func NewDeleteHandler() chat.Handler { return DeleteHandler{} }

func (DeleteHandler) Type() string       { return chat.FrameDelete }
func (DeleteHandler) NeedsSession() bool { return true }

func (DeleteHandler) Handle(ctx context.Context, cc *chat.ChatContext, f *chat.Frame) error {
	var body chat.DeleteBody
	if err := f.DecodeBody(&body); err != nil {
		return err
	}
	if body.RoomID <= 0 || body.MessageID <= 0 {
		return errs.ErrArgs.WrapMsg("room_id and message_id required")
	}
	id := cc.Session.Identity
	if err := cc.S.Pipeline().Delete(ctx, body.RoomID, body.MessageID, &id); err != nil {
		return err
	}
	cc.Reply(chat.AckFrame(f.ID, map[string]any{"room_id": body.RoomID, "message_id": body.MessageID}))
	return nil
}
