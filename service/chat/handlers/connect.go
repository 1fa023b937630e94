package handlers

import (
	"context"

	"GreenChat/service/chat"
)

// ConnectHandler authenticates the connection with the frame's Authorization
// header and stores the session.
type ConnectHandler struct{}

func NewConnectHandler() chat.Handler { return ConnectHandler{} }

func (ConnectHandler) Type() string       { return chat.FrameConnect }
func (ConnectHandler) NeedsSession() bool { return false }

func (ConnectHandler) Handle(ctx context.Context, cc *chat.ChatContext, f *chat.Frame) error {
	sc, err := cc.S.Bridge().OnConnect(ctx, cc.Client.ConnID, f.AuthFrame(), "")
	if err != nil {
		return err
	}
	cc.S.BindSession(cc.Client, f.ID, sc)
	return nil
}
