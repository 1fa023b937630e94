package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"GreenChat/global/config"
	"GreenChat/logger"
	"GreenChat/service/nacos"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbSeq atomic.Int64

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Store.DSN = fmt.Sprintf("file:app_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	cfg.Auth.Secret = "app-test-secret-app-test-secret"
	cfg.Server.Mode = "test"
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.GRPC.Addr = "127.0.0.1:0"
	return cfg
}

func TestNewWiresRoutes(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	w := httptest.NewRecorder()
	a.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teams/1/messages", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// a plain GET on the websocket path is not an upgrade
	w = httptest.NewRecorder()
	a.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, WSPath, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNewRejectsBadBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "memcached"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Store.Driver = "oracle"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retention.Enabled = true
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestNewSweeper(t *testing.T) {
	sw, closer, err := NewSweeper(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer closer.Close()
	rep, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Rooms)
}

type fakeConfigClient struct {
	config_client.IConfigClient
	doc      string
	onChange func(namespace, group, dataId, data string)
}

func (f *fakeConfigClient) GetConfig(vo.ConfigParam) (string, error) { return f.doc, nil }

func (f *fakeConfigClient) ListenConfig(p vo.ConfigParam) error {
	f.onChange = p.OnChange
	return nil
}

func TestApplyRemote(t *testing.T) {
	prev := logger.Level()
	defer logger.SetLevel(prev)

	loader, err := config.NewLoader("", nil)
	require.NoError(t, err)
	cli := &fakeConfigClient{doc: "server:\n  addr: \":9999\"\nlog:\n  level: info\n"}
	cfg, err := ApplyRemote(loader, nacos.NewSource(cli, "greenchat.yaml", "DEFAULT_GROUP"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)

	require.NotNil(t, cli.onChange)
	cli.onChange("", "DEFAULT_GROUP", "greenchat.yaml", "log:\n  level: error\n")
	assert.Equal(t, "error", logger.Level())
}

func TestLoadConfigWithoutNacos(t *testing.T) {
	loader, err := config.NewLoader("", nil)
	require.NoError(t, err)
	cfg, remote, err := LoadConfig(loader)
	require.NoError(t, err)
	assert.Nil(t, remote)
	assert.False(t, cfg.Nacos.Enabled)
	// nil remote is safe to use
	require.NoError(t, remote.Register(cfg))
	remote.Close()
}
