package chat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"GreenChat/logger"
	chatsvc "GreenChat/module/chat/service"
	"GreenChat/service/auth"
	"GreenChat/tools/errs"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type ServerConf struct {
	AuthTimeout   time.Duration `mapstructure:"auth_timeout"`
	SendQueue     int           `mapstructure:"send_queue"`
	WriteWait     time.Duration `mapstructure:"write_wait"`
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	PongWait      time.Duration `mapstructure:"pong_wait"`
	MaxFrameBytes int64         `mapstructure:"max_frame_bytes"`
	Workers       int           `mapstructure:"workers"`
	WorkerQueue   int           `mapstructure:"worker_queue"`
	MaxPerUser    int           `mapstructure:"max_per_user"`
}

func (c *ServerConf) norm() {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 5 * time.Second
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval * 3
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = 64 << 10
	}
}

// Server is the websocket gateway: it owns connections, routes client frames
// to handlers on the worker pool and delivers room topics through the Hub.
type Server struct {
	conf     ServerConf
	bridge   *auth.Bridge
	pipeline *chatsvc.Pipeline
	presence *chatsvc.Presence
	hub      *Hub
	mgr      *ConnManager
	pool     *Pool
	disp     *Dispatcher
	upgrader websocket.Upgrader
	active   sync.WaitGroup
	log      *zap.Logger
}

func NewServer(conf ServerConf, bridge *auth.Bridge, pipeline *chatsvc.Pipeline, presence *chatsvc.Presence, hub *Hub) *Server {
	conf.norm()
	s := &Server{
		conf:     conf,
		bridge:   bridge,
		pipeline: pipeline,
		presence: presence,
		hub:      hub,
		mgr:      NewConnManager(ManagerConf{UnauthTTL: conf.AuthTimeout, MaxPerUser: conf.MaxPerUser, EvictOldest: true}),
		pool:     NewPool(conf.Workers, conf.WorkerQueue),
		disp:     NewDispatcher(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logger.Named("gateway"),
	}
	hub.OnDrop(func(c *Client, topic string) {
		s.log.Warn("send queue full, frame dropped", zap.String("conn_id", c.ConnID), zap.String("topic", topic))
	})
	return s
}

func (s *Server) Bridge() *auth.Bridge        { return s.bridge }
func (s *Server) Pipeline() *chatsvc.Pipeline { return s.pipeline }
func (s *Server) Presence() *chatsvc.Presence { return s.presence }
func (s *Server) Hub() *Hub                   { return s.hub }
func (s *Server) ConnMgr() *ConnManager       { return s.mgr }
func (s *Server) Disp() *Dispatcher           { return s.disp }
func (s *Server) Conf() ServerConf            { return s.conf }

func (s *Server) Register(handlers ...Handler) {
	for _, h := range handlers {
		s.disp.Register(h)
	}
}

// Close disconnects every client, waits for their cleanup and stops the
// workers.
func (s *Server) Close() {
	s.mgr.Close()
	s.active.Wait()
	s.pool.Close()
}

// SendTo delivers payload privately to one local connection.
func (s *Server) SendTo(connID string, payload []byte) error {
	return s.mgr.SendOne(connID, payload)
}

func (s *Server) reply(c *Client, payload []byte) {
	if err := s.SendTo(c.ConnID, payload); err != nil {
		s.log.Warn("reply dropped", zap.String("conn_id", c.ConnID), zap.Error(err))
	}
}

// dispatch runs one frame on the worker of its connection. Errors go to the
// sender only.
func (s *Server) dispatch(ctx context.Context, c *Client, f *Frame) {
	h := s.disp.GetHandler(f.Type)
	if h == nil {
		s.reply(c, ErrorFrame(f.ID, errs.ErrUnsupportedFrame.WrapMsg("", "type", f.Type)))
		return
	}
	cc := &ChatContext{S: s, Client: c}
	if h.NeedsSession() {
		sc, err := s.bridge.OnFrame(ctx, c.ConnID, f.AuthFrame())
		if err != nil {
			s.reply(c, ErrorFrame(f.ID, err))
			return
		}
		cc.Session = sc
	}
	if err := h.Handle(ctx, cc, f); err != nil {
		s.log.Debug("frame failed", zap.String("conn_id", c.ConnID), zap.String("type", f.Type), zap.Int("code", errs.Code(err)), zap.Error(err))
		s.reply(c, ErrorFrame(f.ID, err))
	}
}

// leaveAll leaves every room c joined, under the identity it joined with.
func (s *Server) leaveAll(ctx context.Context, c *Client) {
	for _, roomID := range c.Rooms() {
		id, ok := c.RoomIdentity(roomID)
		if !ok {
			continue
		}
		c.LeaveRoom(roomID)
		for _, topic := range chatsvc.RoomTopics(roomID) {
			s.hub.Unsubscribe(topic, c)
		}
		if err := s.presence.Release(ctx, roomID, &id); err != nil {
			s.log.Warn("leave on disconnect failed", zap.String("conn_id", c.ConnID), zap.Int64("room_id", roomID), zap.Error(err))
		}
	}
}
