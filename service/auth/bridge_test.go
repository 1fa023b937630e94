package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"GreenChat/module/chat/model"
	"GreenChat/service/store/storetest"
	"GreenChat/tools/errs"
	"GreenChat/tools/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOpts = security.DefaultOptions([]byte("bridge-test-secret-bridge-test-secret"))

func token(t *testing.T, sub, name string) string {
	t.Helper()
	tok, _, err := security.Generate(testOpts, sub, name)
	require.NoError(t, err)
	return tok
}

func bearer(tok string) Frame {
	return Frame{Headers: map[string]string{"authorization": "Bearer " + tok}}
}

func newBridge(members MemberDirectory, conf BridgeConf) *Bridge {
	return NewBridge(NewJWTResolver(testOpts), members, nil, conf)
}

func TestConnectStoresSession(t *testing.T) {
	b := newBridge(nil, BridgeConf{})
	ctx := context.Background()

	sc, err := b.OnConnect(ctx, "c1", bearer(token(t, "u1", "Ada")), "")
	require.NoError(t, err)
	assert.Equal(t, "u1", sc.Identity.SubjectID)
	assert.Equal(t, "Ada", sc.Identity.DisplayName)

	sess, ok := b.Sessions().Get("c1")
	require.True(t, ok)
	assert.Equal(t, "u1", sess.Identity.SubjectID)

	// no headers on the follow-up frame
	fc, err := b.OnFrame(ctx, "c1", Frame{})
	require.NoError(t, err)
	assert.Equal(t, "u1", fc.Identity.SubjectID)
	assert.False(t, fc.Transient)
}

func TestConnectFailures(t *testing.T) {
	b := newBridge(nil, BridgeConf{})
	ctx := context.Background()

	_, err := b.OnConnect(ctx, "c1", Frame{}, "")
	assert.True(t, errors.Is(err, errs.ErrMissingCredential))

	_, err = b.OnConnect(ctx, "c1", bearer("garbage"), "")
	assert.True(t, errors.Is(err, errs.ErrInvalidCredential))
	assert.True(t, errors.Is(err, errs.ErrAuth))

	_, err = b.OnConnect(ctx, "c1", Frame{Headers: map[string]string{"Authorization": "Token abc"}}, "")
	assert.True(t, errors.Is(err, errs.ErrMissingCredential))

	assert.Equal(t, 0, b.Sessions().Len())
}

func TestConnectWithHandshakeToken(t *testing.T) {
	b := newBridge(nil, BridgeConf{})
	sc, err := b.OnConnect(context.Background(), "c1", Frame{}, token(t, "u2", ""))
	require.NoError(t, err)
	assert.Equal(t, "u2", sc.Identity.SubjectID)
	assert.Equal(t, "u2", sc.Identity.DisplayName)
}

func TestFrameFallbackIsNotStored(t *testing.T) {
	b := newBridge(nil, BridgeConf{})
	ctx := context.Background()

	sc, err := b.OnFrame(ctx, "c9", bearer(token(t, "u3", "")))
	require.NoError(t, err)
	assert.True(t, sc.Transient)
	assert.Equal(t, "u3", sc.Identity.SubjectID)
	_, ok := b.Sessions().Get("c9")
	assert.False(t, ok)

	_, err = b.OnFrame(ctx, "c9", Frame{})
	assert.True(t, errors.Is(err, errs.ErrAuth))
}

func TestSessionsAreIsolated(t *testing.T) {
	b := newBridge(nil, BridgeConf{})
	ctx := context.Background()

	var wg sync.WaitGroup
	users := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, err := b.OnConnect(ctx, "conn-"+u, bearer(token(t, u, "")), "")
			assert.NoError(t, err)
		}(u)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		for _, u := range users {
			sc, err := b.OnFrame(ctx, "conn-"+u, Frame{})
			require.NoError(t, err)
			assert.Equal(t, u, sc.Identity.SubjectID)
		}
	}
}

func TestSessionExpiry(t *testing.T) {
	now := time.Now()
	b := newBridge(nil, BridgeConf{Clock: func() time.Time { return now }})
	ctx := context.Background()

	_, err := b.OnConnect(ctx, "c1", bearer(token(t, "u1", "")), "")
	require.NoError(t, err)

	now = now.Add(3 * time.Hour)
	_, err = b.OnFrame(ctx, "c1", Frame{})
	assert.True(t, errors.Is(err, errs.ErrExpiredCredential))
	_, ok := b.Sessions().Get("c1")
	assert.False(t, ok)
}

func TestCloseDropsSession(t *testing.T) {
	b := newBridge(nil, BridgeConf{})
	_, err := b.OnConnect(context.Background(), "c1", bearer(token(t, "u1", "")), "")
	require.NoError(t, err)
	b.Close("c1")
	assert.Equal(t, 0, b.Sessions().Len())
}

func TestMemberDirectory(t *testing.T) {
	s := storetest.New(t)
	storetest.SeedMember(t, s, "active", "Grace Hopper", model.MemberActive)
	storetest.SeedMember(t, s, "gone", "Old Timer", model.MemberInactive)
	b := newBridge(StoreDirectory{Store: s}, BridgeConf{RequireActiveMember: true})
	ctx := context.Background()

	sc, err := b.OnConnect(ctx, "c1", bearer(token(t, "active", "claim name")), "")
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", sc.Identity.DisplayName)

	_, err = b.OnConnect(ctx, "c2", bearer(token(t, "gone", "")), "")
	assert.True(t, errors.Is(err, errs.ErrInactiveMember))

	_, err = b.OnConnect(ctx, "c3", bearer(token(t, "stranger", "")), "")
	assert.True(t, errors.Is(err, errs.ErrInactiveMember))

	lenient := newBridge(StoreDirectory{Store: s}, BridgeConf{})
	sc, err = lenient.OnConnect(ctx, "c4", bearer(token(t, "stranger", "")), "")
	require.NoError(t, err)
	assert.Equal(t, "stranger", sc.Identity.SubjectID)
}

type slowResolver struct{}

func (slowResolver) Resolve(ctx context.Context, _ string) (*Identity, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAuthenticationTimeout(t *testing.T) {
	b := NewBridge(slowResolver{}, nil, nil, BridgeConf{Timeout: 20 * time.Millisecond})
	start := time.Now()
	_, err := b.OnConnect(context.Background(), "c1", bearer("x"), "")
	assert.True(t, errors.Is(err, errs.ErrInvalidCredential))
	assert.Less(t, time.Since(start), time.Second)
}
