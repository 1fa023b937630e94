package handlers

import (
	"context"

	chatsvc "GreenChat/module/chat/service"
	"GreenChat/service/chat"
	"GreenChat/tools/errs"
)

// SubscribeHandler lets a connection listen to one room topic without
// joining presence.
type SubscribeHandler struct{}

func NewSubscribeHandler() chat.Handler { return SubscribeHandler{} }

func (SubscribeHandler) Type() string       { return chat.FrameSubscribe }
func (SubscribeHandler) NeedsSession() bool { return true }

func (SubscribeHandler) Handle(ctx context.Context, cc *chat.ChatContext, f *chat.Frame) error {
	topic, roomID, err := topicBody(f)
	if err != nil {
		return err
	}
	if err := cc.S.Pipeline().CheckRoom(ctx, roomID); err != nil {
		return err
	}
	cc.S.Hub().Subscribe(topic, cc.Client)
	cc.Reply(chat.AckFrame(f.ID, map[string]any{"topic": topic}))
	return nil
}

type UnsubscribeHandler struct{}

func NewUnsubscribeHandler() chat.Handler { return UnsubscribeHandler{} }

func (UnsubscribeHandler) Type() string       { return chat.FrameUnsubscribe }
func (UnsubscribeHandler) NeedsSession() bool { return false }

func (UnsubscribeHandler) Handle(_ context.Context, cc *chat.ChatContext, f *chat.Frame) error {
	topic, _, err := topicBody(f)
	if err != nil {
		return err
	}
	cc.S.Hub().Unsubscribe(topic, cc.Client)
	cc.Reply(chat.AckFrame(f.ID, map[string]any{"topic": topic}))
	return nil
}

func topicBody(f *chat.Frame) (string, int64, error) {
	var body chat.TopicBody
	if err := f.DecodeBody(&body); err != nil {
		return "", 0, err
	}
	roomID, ok := chatsvc.ParseTopic(body.Topic)
	if !ok {
		return "", 0, errs.ErrArgs.WrapMsg("unknown topic", "topic", body.Topic)
	}
	return body.Topic, roomID, nil
}
