package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"GreenChat/logger"
	"GreenChat/module/chat/model"
	"GreenChat/tools/errs"
	"GreenChat/tools/security"

	"go.uber.org/zap"
)

// Frame carries the headers of a connect or message frame. Header names are
// matched case-insensitively.
type Frame struct {
	Headers map[string]string
}

func (f Frame) Header(name string) string {
	if v, ok := f.Headers[name]; ok {
		return v
	}
	for k, v := range f.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Credential returns the bearer token of the frame, or "".
func (f Frame) Credential() string {
	return security.BearerToken(f.Header("Authorization"))
}

// SessionContext is the identity a frame is processed under.
type SessionContext struct {
	ConnID   string
	Identity Identity
	// Transient is set when the identity came from the frame's own headers
	// rather than the stored session.
	Transient bool
}

type BridgeConf struct {
	Timeout             time.Duration
	RequireActiveMember bool
	Clock               func() time.Time
}

func (c *BridgeConf) norm() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Bridge turns a bearer credential presented once at connect time into a
// per-connection identity that later frames are authorized with.
type Bridge struct {
	resolver Resolver
	members  MemberDirectory
	sessions *Sessions
	conf     BridgeConf
}

// NewBridge wires a resolver and an optional member directory (nil skips the
// member check).
func NewBridge(resolver Resolver, members MemberDirectory, sessions *Sessions, conf BridgeConf) *Bridge {
	conf.norm()
	if sessions == nil {
		sessions = NewSessions()
	}
	return &Bridge{resolver: resolver, members: members, sessions: sessions, conf: conf}
}

func (b *Bridge) Sessions() *Sessions { return b.sessions }

// Authenticate validates token within the bridge timeout and applies the
// member directory. It stores nothing.
func (b *Bridge) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errs.ErrMissingCredential.Wrap()
	}
	ctx, cancel := context.WithTimeout(ctx, b.conf.Timeout)
	defer cancel()

	id, err := b.resolver.Resolve(ctx, token)
	if err != nil {
		if _, ok := errs.As(err); !ok {
			err = errs.ErrInvalidCredential.WrapMsg(err.Error())
		}
		return nil, err
	}
	if id.Expired(b.conf.Clock()) {
		return nil, errs.ErrExpiredCredential.Wrap()
	}
	if b.members == nil {
		return id, nil
	}

	m, err := b.members.Member(ctx, id.SubjectID)
	switch {
	case errors.Is(err, ErrMemberUnknown):
		if b.conf.RequireActiveMember {
			return nil, errs.ErrInactiveMember.WrapMsg("unknown member", "subject", id.SubjectID)
		}
		return id, nil
	case err != nil:
		return nil, errs.ErrAuth.WrapMsg("member lookup", "subject", id.SubjectID, "err", err)
	}
	if b.conf.RequireActiveMember && m.Status != model.MemberActive {
		return nil, errs.ErrInactiveMember.WrapMsg("", "subject", id.SubjectID, "status", m.Status)
	}
	if m.Name != "" {
		id.DisplayName = m.Name
	}
	return id, nil
}

// OnConnect authenticates the connect frame. The header credential wins; the
// handshake token (query parameter) is the fallback. On success the session
// is stored under connID.
func (b *Bridge) OnConnect(ctx context.Context, connID string, frame Frame, handshakeToken string) (*SessionContext, error) {
	token := frame.Credential()
	if token == "" {
		token = strings.TrimSpace(handshakeToken)
	}
	id, err := b.Authenticate(ctx, token)
	if err != nil {
		logger.Info("[Bridge] connect rejected", zap.String("conn_id", connID), zap.Int("code", errs.Code(err)))
		return nil, err
	}
	b.sessions.Put(&Session{
		ConnID:     connID,
		Identity:   *id,
		IssuedAt:   b.conf.Clock(),
		Credential: token,
	})
	logger.Debug("[Bridge] session stored", zap.String("conn_id", connID), zap.String("subject", id.SubjectID))
	return &SessionContext{ConnID: connID, Identity: *id}, nil
}

// OnFrame resolves the identity for a frame on connID. The stored session is
// used when present; otherwise the frame's own credential is validated and
// used for this frame only.
func (b *Bridge) OnFrame(ctx context.Context, connID string, frame Frame) (*SessionContext, error) {
	if sess, ok := b.sessions.Get(connID); ok {
		if sess.Identity.Expired(b.conf.Clock()) {
			b.sessions.Delete(connID)
			return nil, errs.ErrExpiredCredential.WrapMsg("session expired", "conn_id", connID)
		}
		return &SessionContext{ConnID: connID, Identity: sess.Identity}, nil
	}
	id, err := b.Authenticate(ctx, frame.Credential())
	if err != nil {
		return nil, err
	}
	return &SessionContext{ConnID: connID, Identity: *id, Transient: true}, nil
}

// Close forgets the session of connID.
func (b *Bridge) Close(connID string) {
	b.sessions.Delete(connID)
}
