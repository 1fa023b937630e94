package security

import (
	"context"
	"strings"

	"GreenChat/global"
	"GreenChat/service/auth"
	"GreenChat/tools/errs"
	tsec "GreenChat/tools/security"

	"github.com/gin-gonic/gin"
)

// context keys
const (
	CtxIdentityKey = "identity"
	CtxTokenKey    = "authorization"
)

// Authenticator checks a bearer credential; *auth.Bridge is one.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Identity, error)
}

type Options struct {
	// HeaderToken is read before Authorization, without a Bearer prefix.
	HeaderToken string
	// QueryToken allows ?access_token= for clients that cannot set headers.
	QueryToken bool
}

func DefaultOptions() *Options {
	return &Options{HeaderToken: "X-Access-Token"}
}

func tokenOf(c *gin.Context, opts *Options) string {
	if opts.HeaderToken != "" {
		if tok := strings.TrimSpace(c.GetHeader(opts.HeaderToken)); tok != "" {
			return tok
		}
	}
	if tok := tsec.BearerToken(c.GetHeader("Authorization")); tok != "" {
		return tok
	}
	if opts.QueryToken {
		return strings.TrimSpace(c.Query("access_token"))
	}
	return ""
}

// Middleware authenticates the request and stores the identity in the gin
// context. Failures abort with the coded error and its HTTP status.
func Middleware(a Authenticator, opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := tokenOf(c, opts)
		id, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(global.HTTPStatus(errs.Code(err)), global.Fail(err))
			return
		}
		c.Set(CtxTokenKey, token)
		c.Set(CtxIdentityKey, id)
		c.Next()
	}
}

// Identity returns the identity stored by Middleware.
func Identity(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(CtxIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*auth.Identity)
	return id, ok && id != nil
}
