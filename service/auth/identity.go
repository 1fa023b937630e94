package auth

import (
	"context"
	"errors"
	"time"

	"GreenChat/module/chat/model"
	"GreenChat/service/store"
	"GreenChat/tools/errs"
	"GreenChat/tools/security"
)

// Identity is the authenticated principal of a connection or request. It is
// always passed explicitly; nothing in the process holds a current user.
type Identity struct {
	SubjectID   string    `json:"subject_id"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the credential behind id has lapsed at now. A zero
// expiry never lapses.
func (id *Identity) Expired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && !now.Before(id.ExpiresAt)
}

// Resolver validates a bearer credential.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// JWTResolver resolves HMAC-signed JWTs carrying sub, name and exp.
type JWTResolver struct {
	opts security.Options
}

func NewJWTResolver(opts security.Options) *JWTResolver {
	return &JWTResolver{opts: opts}
}

func (r *JWTResolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.ErrInvalidCredential.WrapMsg("resolve aborted", "cause", err)
	}
	if token == "" {
		return nil, errs.ErrMissingCredential.Wrap()
	}
	c, err := security.Verify(r.opts, token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, errs.ErrExpiredCredential.Wrap()
		}
		return nil, errs.ErrInvalidCredential.WrapMsg(err.Error())
	}
	name := c.Name
	if name == "" {
		name = c.Subject
	}
	return &Identity{SubjectID: c.Subject, DisplayName: name, ExpiresAt: c.ExpiresAt}, nil
}

// MemberDirectory looks up platform members; ErrMemberUnknown when absent.
type MemberDirectory interface {
	Member(ctx context.Context, subjectID string) (*model.Member, error)
}

var ErrMemberUnknown = errors.New("member unknown")

// StoreDirectory reads members from the durable store.
type StoreDirectory struct {
	Store store.Store
}

func (d StoreDirectory) Member(ctx context.Context, subjectID string) (*model.Member, error) {
	m, err := d.Store.GetMember(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMemberUnknown
	}
	return m, err
}
