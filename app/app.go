// Package app wires the configured components into a running gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"GreenChat/global/config"
	"GreenChat/logger"
	"GreenChat/middleware"
	"GreenChat/middleware/security"
	"GreenChat/module/chat/handler"
	chatsvc "GreenChat/module/chat/service"
	"GreenChat/service/auth"
	"GreenChat/service/chat"
	"GreenChat/service/chat/handlers"
	"GreenChat/service/kafka"
	"GreenChat/service/mgo"
	"GreenChat/service/natsx"
	"GreenChat/service/retention"
	"GreenChat/service/storage"
	"GreenChat/service/storage/redis"
	"GreenChat/service/store"
	"GreenChat/tools/ids"
	tsec "GreenChat/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const WSPath = "/ws/chat"

// App owns every component of one gateway process.
type App struct {
	cfg *config.AppConfig
	log *zap.Logger

	Store    store.Store
	Cache    storage.HotCache
	Hub      *chat.Hub
	Pipeline *chatsvc.Pipeline
	Presence *chatsvc.Presence
	Bridge   *auth.Bridge
	Server   *chat.Server
	Sweeper  *retention.Sweeper
	Engine   *gin.Engine

	health  *health.Server
	closers []func() error
}

// New builds the components named by cfg. Optional backends (NATS, Kafka,
// Mongo) are only dialled when enabled.
func New(ctx context.Context, cfg *config.AppConfig) (a *App, err error) {
	a = &App{cfg: cfg, log: logger.Named("app")}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	ids.SetNodeID(cfg.NodeID)

	if a.Store, err = store.Open(ctx, cfg.Store); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.onClose(a.Store.Close)

	if a.Cache, err = openCache(cfg); err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.onClose(a.Cache.Close)
	if strings.EqualFold(cfg.Cache.Backend, "redis") {
		a.onClose(redis.CloseRedis)
	}

	a.Hub = chat.NewHub()
	var bus chatsvc.Broadcaster = a.Hub
	if cfg.NATS.Enabled {
		relay, err := a.openRelay(cfg.NATS.Config)
		if err != nil {
			return nil, err
		}
		bus = relay
	}

	var sink chatsvc.EventSink
	if cfg.Kafka.Enabled {
		s, err := kafka.NewEventSink(cfg.Kafka.Config)
		if err != nil {
			return nil, fmt.Errorf("kafka sink: %w", err)
		}
		a.onClose(s.Close)
		sink = s
	}

	a.Pipeline = chatsvc.NewPipeline(a.Store, a.Cache, bus, sink, chatsvc.PipelineConf{
		StoreTimeout: cfg.Store.Timeout,
		CacheTimeout: cfg.Cache.Timeout,
	})
	a.Presence = chatsvc.NewPresence(a.Pipeline)

	a.Bridge = auth.NewBridge(
		auth.NewJWTResolver(JWTOptions(cfg.Auth)),
		auth.StoreDirectory{Store: a.Store},
		nil,
		auth.BridgeConf{Timeout: cfg.Auth.Timeout, RequireActiveMember: cfg.Auth.RequireActiveMember},
	)
	a.Server = chat.NewServer(cfg.Server.WS, a.Bridge, a.Pipeline, a.Presence, a.Hub)
	handlers.RegisterAll(a.Server)

	if a.Sweeper, err = a.newSweeper(ctx); err != nil {
		return nil, err
	}
	a.Engine = a.routes()
	a.health = health.NewServer()
	return a, nil
}

// JWTOptions maps the auth section onto token options.
func JWTOptions(c config.AuthSection) tsec.Options {
	opts := tsec.DefaultOptions([]byte(c.Secret))
	if c.Alg != "" {
		opts.Alg = c.Alg
	}
	if c.TTL > 0 {
		opts.TTL = c.TTL
	}
	opts.Leeway = c.Leeway
	return opts
}

func openCache(cfg *config.AppConfig) (storage.HotCache, error) {
	opts := cfg.CacheOptions()
	switch strings.ToLower(opts.Backend) {
	case "redis":
		if err := redis.InitRedis(cfg.Redis); err != nil {
			return nil, err
		}
		return storage.NewRedisCache(redis.GetRedis(), opts), nil
	case "buntdb", "bunt", "":
		return storage.NewBuntCache(opts.BuntPath, opts)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

func (a *App) openRelay(c natsx.Config) (*natsx.Relay, error) {
	nc, err := natsx.Connect(c)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	a.onClose(func() error { nc.Close(); return nil })
	relay := natsx.NewRelay(nc, c.Prefix, a.Hub)
	if err := relay.Start(); err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	a.onClose(relay.Close)
	a.log.Info("broadcast relay on nats", zap.Strings("servers", c.Servers), zap.String("url", nc.ConnectedUrl()))
	return relay, nil
}

// newSweeper builds the retention sweeper, archiving to Mongo when configured.
func (a *App) newSweeper(ctx context.Context) (*retention.Sweeper, error) {
	var archiver retention.Archiver
	if a.cfg.Mongo.Enabled() {
		mc := a.cfg.Mongo
		cli, err := mgo.NewMongoDB(ctx, &mc)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		a.onClose(func() error {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return cli.Close(cctx)
		})
		archive := mgo.NewArchive(cli, mc.Collection)
		if err := archive.EnsureIndexes(ctx); err != nil {
			a.log.Warn("archive index", zap.Error(err))
		}
		archiver = archive
	}
	return retention.NewSweeper(a.Store, archiver, a.cfg.Retention.Conf), nil
}

// NewSweeper builds only what a retention pass needs.
func NewSweeper(ctx context.Context, cfg *config.AppConfig) (*retention.Sweeper, io.Closer, error) {
	a := &App{cfg: cfg, log: logger.Named("app")}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = st
	a.onClose(st.Close)
	sw, err := a.newSweeper(ctx)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return sw, closerFunc(a.Close), nil
}

type closerFunc func()

func (f closerFunc) Close() error { f(); return nil }

func (a *App) routes() *gin.Engine {
	if a.cfg.Server.Mode != "" {
		gin.SetMode(a.cfg.Server.Mode)
	}
	r := gin.New()
	mm := middleware.NewManager()
	mm.Add(middleware.RequestLog(logger.Named("http")))
	mm.Add(middleware.Origin(WSPath, a.cfg.Server.AllowedOrigins))
	r.Use(gin.Recovery(), mm.Use())

	r.GET(WSPath, a.Server.HandleWS)
	rt := middleware.NewRouter(r, security.Middleware(a.Bridge, &security.Options{HeaderToken: "X-Access-Token"}))
	handler.New(a.Pipeline, a.Presence).Register(rt)
	rt.GET("/healthz", handler.Healthz(a.checks()), middleware.RouteOpt{})
	return r
}

func (a *App) checks() map[string]handler.Check {
	return map[string]handler.Check{
		"store": func(ctx context.Context) error {
			_, err := a.Store.GetRoom(ctx, 0)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		},
		"cache": func(ctx context.Context) error {
			_, err := a.Cache.PresenceMembers(ctx, 0)
			return err
		},
	}
}

// Run serves HTTP and gRPC health, and sweeps retention when enabled, until
// ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	httpSrv := &http.Server{Addr: a.cfg.Server.Addr, Handler: a.Engine, ReadHeaderTimeout: 10 * time.Second}
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, a.health)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	if a.cfg.GRPC.Addr != "" {
		g.Go(func() error {
			lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			a.health.SetServingStatus("greenchat.Gateway", healthpb.HealthCheckResponse_SERVING)
			a.log.Info("grpc health listening", zap.String("addr", a.cfg.GRPC.Addr))
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc: %w", err)
			}
			return nil
		})
	}
	if a.cfg.Retention.Enabled {
		g.Go(func() error { return a.Sweeper.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		a.health.Shutdown()
		sctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		err := httpSrv.Shutdown(sctx)
		a.Server.Close()
		gs.GracefulStop()
		return err
	})
	return g.Wait()
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

func (a *App) onClose(f func() error) { a.closers = append(a.closers, f) }

// Close releases components in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
}

var _ chatsvc.Broadcaster = (*natsx.Relay)(nil)
