package chat

import (
	"context"

	"GreenChat/service/auth"
)

// Handler serves one client frame type.
type Handler interface {
	Type() string
	// NeedsSession reports whether the frame must resolve to an identity
	// before Handle runs.
	NeedsSession() bool
	Handle(ctx context.Context, cc *ChatContext, f *Frame) error
}

// ChatContext is what a handler sees of the gateway for one frame. Session is
// nil for handlers that do not need one.
type ChatContext struct {
	S       *Server
	Client  *Client
	Session *auth.SessionContext
}

// Reply queues payload on the frame's own connection.
func (cc *ChatContext) Reply(payload []byte) {
	cc.S.reply(cc.Client, payload)
}
