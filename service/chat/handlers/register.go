package handlers

import "GreenChat/service/chat"

// RegisterAll installs every client frame handler on s.
func RegisterAll(s *chat.Server) {
	s.Register(
		NewConnectHandler(),
		NewJoinHandler(),
		NewLeaveHandler(),
		NewSendHandler(),
		NewDeleteHandler(),
		NewOnlineHandler(),
		NewSubscribeHandler(),
		NewUnsubscribeHandler(),
		NewPingHandler(),
	)
}
