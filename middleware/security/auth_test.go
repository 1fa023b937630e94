package security

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"GreenChat/global"
	"GreenChat/service/auth"
	"GreenChat/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenTable map[string]*auth.Identity

func (t tokenTable) Authenticate(_ context.Context, token string) (*auth.Identity, error) {
	if token == "" {
		return nil, errs.ErrMissingCredential.Wrap()
	}
	if id, ok := t[token]; ok {
		return id, nil
	}
	return nil, errs.ErrInvalidCredential.Wrap()
}

func newEngine(opts *Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	a := tokenTable{"good": {SubjectID: "u1", DisplayName: "Ada"}}
	r.GET("/me", Middleware(a, opts), func(c *gin.Context) {
		id, ok := Identity(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, global.Success(id))
	})
	return r
}

func TestMiddleware(t *testing.T) {
	cases := []struct {
		name   string
		opts   *Options
		header map[string]string
		query  string
		status int
		code   int
	}{
		{name: "bearer", header: map[string]string{"Authorization": "Bearer good"}, status: 200, code: 200},
		{name: "bearer lower case", header: map[string]string{"Authorization": "bearer good"}, status: 200, code: 200},
		{name: "custom header", header: map[string]string{"X-Access-Token": "good"}, status: 200, code: 200},
		{name: "missing", status: 401, code: errs.MissingCredential},
		{name: "bad token", header: map[string]string{"Authorization": "Bearer nope"}, status: 401, code: errs.InvalidCredential},
		{name: "query disabled", query: "?access_token=good", status: 401, code: errs.MissingCredential},
		{name: "query enabled", opts: &Options{QueryToken: true}, query: "?access_token=good", status: 200, code: 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			newEngine(tc.opts).ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)

			var body global.Msg
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
		})
	}
}
