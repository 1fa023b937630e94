package chat

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"GreenChat/service/auth"
	"GreenChat/tools/errs"
	"GreenChat/tools/ids"
	"GreenChat/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// handshakeToken is the credential presented on the upgrade request: the
// Authorization header, else the access_token or token query parameter.
func handshakeToken(r *http.Request) string {
	if tok := security.BearerToken(r.Header.Get("Authorization")); tok != "" {
		return tok
	}
	q := r.URL.Query()
	for _, k := range []string{"access_token", "token"} {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// HandleWS upgrades the request and serves the connection until it closes.
// A credential on the handshake is checked before upgrading and a bad one is
// answered with 401. Without one, the client must send a connect frame
// within the auth timeout.
func (s *Server) HandleWS(c *gin.Context) {
	s.active.Add(1)
	defer s.active.Done()

	connID := ids.ConnID()
	var sc *auth.SessionContext
	if tok := handshakeToken(c.Request); tok != "" {
		var err error
		sc, err = s.bridge.OnConnect(c.Request.Context(), connID, auth.Frame{}, tok)
		if err != nil {
			ce, _ := errs.As(err)
			data := ErrorData{Code: errs.Code(err)}
			if ce != nil {
				data.Msg = ce.Msg
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, data)
			return
		}
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Info("upgrade failed", zap.String("conn_id", connID), zap.Error(err))
		s.bridge.Close(connID)
		return
	}
	client := NewClient(connID, ws, s.conf.SendQueue, time.Now())
	if err := s.mgr.Add(client); err != nil {
		s.log.Warn("register connection", zap.String("conn_id", connID), zap.Error(err))
		s.bridge.Close(connID)
		_ = ws.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(client)
	}()

	if sc != nil {
		s.BindSession(client, "", sc)
	}
	s.log.Debug("connection open", zap.String("conn_id", connID), zap.Bool("authenticated", sc != nil))

	s.readLoop(client)
	s.cleanup(client)
	<-writerDone
}

// BindSession attaches an authenticated session to the connection and tells
// the client.
func (s *Server) BindSession(c *Client, frameID string, sc *auth.SessionContext) {
	if err := s.mgr.BindUser(c.ConnID, sc.Identity.SubjectID); err != nil {
		s.log.Warn("bind session", zap.String("conn_id", c.ConnID), zap.Error(err))
	}
	s.reply(c, ConnectedFrame(frameID, sc))
}

func (s *Server) readLoop(c *Client) {
	ws := c.WS
	ws.SetReadLimit(s.conf.MaxFrameBytes)
	authDeadline := time.Now().Add(s.conf.AuthTimeout)
	extend := func() {
		if c.Subject() != "" {
			_ = ws.SetReadDeadline(time.Now().Add(s.conf.PongWait))
		} else {
			_ = ws.SetReadDeadline(authDeadline)
		}
	}
	extend()
	ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	ctx := context.Background()
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				s.log.Debug("peer closed", zap.String("conn_id", c.ConnID))
			case errors.As(err, &ne) && ne.Timeout():
				s.log.Info("read timeout", zap.String("conn_id", c.ConnID), zap.Bool("authenticated", c.Subject() != ""))
			default:
				s.log.Debug("read error", zap.String("conn_id", c.ConnID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		f, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			s.log.Debug("malformed frame", zap.String("conn_id", c.ConnID), zap.ByteString("sample", sample), zap.Error(perr))
			s.reply(c, ErrorFrame("", perr))
			continue
		}

		// connect changes what the next read deadline is, so wait for it
		if f.Type == FrameConnect {
			s.pool.SubmitWait(c.ConnID, func() { s.dispatch(ctx, c, f) })
		} else {
			s.pool.Submit(c.ConnID, func() { s.dispatch(ctx, c, f) })
		}
		extend()
	}
}

// writeLoop is the only writer of the socket. It drains what is queued once
// the client is closed, then closes the socket.
func (s *Server) writeLoop(c *Client) {
	ws := c.WS
	ticker := time.NewTicker(s.conf.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.SetWriteDeadline(time.Now().Add(s.conf.WriteWait))
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = ws.Close()
	}()

	write := func(payload []byte) bool {
		_ = ws.SetWriteDeadline(time.Now().Add(s.conf.WriteWait))
		if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.log.Debug("write failed", zap.String("conn_id", c.ConnID), zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case payload := <-c.Outbound():
			if !write(payload) {
				c.Close()
				return
			}
		case <-c.Done():
			for {
				select {
				case payload := <-c.Outbound():
					if !write(payload) {
						return
					}
				default:
					return
				}
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.conf.WriteWait)); err != nil {
				s.log.Debug("ping failed", zap.String("conn_id", c.ConnID), zap.Error(err))
				c.Close()
				return
			}
		}
	}
}

// cleanup runs behind the connection's pending frames, so a late join cannot
// outlive the disconnect.
func (s *Server) cleanup(c *Client) {
	s.pool.SubmitWait(c.ConnID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.conf.AuthTimeout)
		defer cancel()
		s.leaveAll(ctx, c)
	})
	s.hub.UnsubscribeAll(c)
	s.bridge.Close(c.ConnID)
	s.mgr.Remove(c.ConnID)
	c.Close()
	s.log.Debug("connection closed", zap.String("conn_id", c.ConnID))
}
