package chat

import (
	"errors"
	"sync"
	"time"

	"GreenChat/logger"

	"go.uber.org/zap"
)

type ManagerConf struct {
	UnauthTTL   time.Duration    // how long a connection may stay without a session
	SweepEvery  time.Duration    // sweeper period
	MaxPerUser  int              // <=0 means unlimited
	EvictOldest bool             // when over MaxPerUser, drop the oldest instead of refusing
	Clock       func() time.Time // nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.UnauthTTL <= 0 {
		c.UnauthTTL = 60 * time.Second
	}
}

var (
	ErrConnExists    = errors.New("conn id exists")
	ErrConnNotFound  = errors.New("conn id not found")
	ErrTooManyConns  = errors.New("too many connections for subject")
	ErrSendQueueFull = errors.New("send queue full")
	errEmptyConnArgs = errors.New("conn id/subject empty")
)

// ConnManager indexes live connections by connection id and by subject.
// Connections that never bind a subject are closed by the sweeper once their
// unauthenticated TTL runs out.
type ConnManager struct {
	mu     sync.RWMutex
	byConn map[string]*Client
	byUser map[string]map[string]*Client

	conf     ManagerConf
	stopOnce sync.Once
	stopCh   chan struct{}
	log      *zap.Logger
}

func NewConnManager(conf ManagerConf) *ConnManager {
	conf.norm()
	m := &ConnManager{
		byConn: make(map[string]*Client),
		byUser: make(map[string]map[string]*Client),
		conf:   conf,
		stopCh: make(chan struct{}),
		log:    logger.Named("conn"),
	}
	go m.sweeper()
	return m
}

// Close stops the sweeper and shuts every connection.
func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	all := make([]*Client, 0, len(m.byConn))
	for _, c := range m.byConn {
		all = append(all, c)
	}
	m.byConn = map[string]*Client{}
	m.byUser = map[string]map[string]*Client{}
	m.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}

// Add registers an unauthenticated connection.
func (m *ConnManager) Add(c *Client) error {
	if c == nil || c.ConnID == "" {
		return errEmptyConnArgs
	}
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byConn[c.ConnID]; ok {
		return ErrConnExists
	}
	c.mu.Lock()
	c.expireAt = now.Add(m.conf.UnauthTTL)
	c.mu.Unlock()
	m.byConn[c.ConnID] = c
	return nil
}

func (m *ConnManager) Get(connID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byConn[connID]
	return c, ok
}

// BindUser attaches subject to the connection. Rebinding to another subject
// moves it between indexes. MaxPerUser is enforced here.
func (m *ConnManager) BindUser(connID, subject string) error {
	if connID == "" || subject == "" {
		return errEmptyConnArgs
	}
	m.mu.Lock()
	c, ok := m.byConn[connID]
	if !ok {
		m.mu.Unlock()
		return ErrConnNotFound
	}
	if prev := c.Subject(); prev != "" && prev != subject {
		m.dropUserIndexLocked(prev, connID)
	}

	var evicted *Client
	if m.conf.MaxPerUser > 0 {
		cur := m.byUser[subject]
		if _, already := cur[connID]; !already && len(cur) >= m.conf.MaxPerUser {
			if !m.conf.EvictOldest {
				m.mu.Unlock()
				return ErrTooManyConns
			}
			evicted = m.oldestLocked(cur)
			m.dropUserIndexLocked(subject, evicted.ConnID)
			delete(m.byConn, evicted.ConnID)
		}
	}

	if m.byUser[subject] == nil {
		m.byUser[subject] = make(map[string]*Client)
	}
	m.byUser[subject][connID] = c
	c.bind(subject)
	c.mu.Lock()
	c.expireAt = time.Time{}
	c.mu.Unlock()
	m.mu.Unlock()

	if evicted != nil {
		m.log.Info("evicted oldest connection", zap.String("subject", subject), zap.String("conn_id", evicted.ConnID))
		evicted.Close()
	}
	return nil
}

func (m *ConnManager) oldestLocked(set map[string]*Client) *Client {
	var oldest *Client
	for _, c := range set {
		if oldest == nil || c.createdAt.Before(oldest.createdAt) {
			oldest = c
		}
	}
	return oldest
}

func (m *ConnManager) dropUserIndexLocked(subject, connID string) {
	if mm := m.byUser[subject]; mm != nil {
		delete(mm, connID)
		if len(mm) == 0 {
			delete(m.byUser, subject)
		}
	}
}

// Remove forgets the connection. The caller owns closing it.
func (m *ConnManager) Remove(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byConn[connID]
	if !ok {
		return
	}
	delete(m.byConn, connID)
	if s := c.Subject(); s != "" {
		m.dropUserIndexLocked(s, connID)
	}
}

// SendOne queues payload for a single connection.
func (m *ConnManager) SendOne(connID string, payload []byte) error {
	c, ok := m.Get(connID)
	if !ok {
		return ErrConnNotFound
	}
	if !c.Send(payload) {
		return ErrSendQueueFull
	}
	return nil
}

// UserConns is the number of live connections bound to subject.
func (m *ConnManager) UserConns(subject string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[subject])
}

func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byConn)
}

func (m *ConnManager) sweeper() {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.sweepOnce(m.conf.Clock())
		}
	}
}

// sweepOnce closes connections still unauthenticated past their TTL.
func (m *ConnManager) sweepOnce(now time.Time) int {
	var expired []*Client
	m.mu.Lock()
	for id, c := range m.byConn {
		c.mu.Lock()
		dead := c.subject == "" && !c.expireAt.IsZero() && now.After(c.expireAt)
		c.mu.Unlock()
		if dead {
			delete(m.byConn, id)
			expired = append(expired, c)
		}
	}
	m.mu.Unlock()

	for _, c := range expired {
		m.log.Info("unauthenticated connection expired", zap.String("conn_id", c.ConnID))
		c.Close()
	}
	return len(expired)
}
