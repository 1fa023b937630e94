package handlers

import (
	"context"

	"GreenChat/service/chat"
)

// PingHandler answers application-level pings; websocket control pings are
// handled by the writer.
type PingHandler struct{}

func NewPingHandler() chat.Handler { return PingHandler{} }

func (PingHandler) Type() string       { return chat.FramePing }
func (PingHandler) NeedsSession() bool { return false }

func (PingHandler) Handle(_ context.Context, cc *chat.ChatContext, f *chat.Frame) error {
	cc.Reply(chat.PongFrame(f.ID))
	return nil
}
