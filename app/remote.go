package app

import (
	"net"
	"strconv"

	"GreenChat/global/config"
	"GreenChat/logger"
	"GreenChat/service/nacos"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Remote is the nacos side of a process: the watched config document and,
// optionally, the naming registration.
type Remote struct {
	Source   *nacos.Source
	Registry *nacos.Registry
}

// LoadConfig reads local configuration and, when nacos is enabled, merges
// the remote document on top and keeps watching it for log level changes.
func LoadConfig(loader *config.Loader) (*config.AppConfig, *Remote, error) {
	cfg, err := loader.Config()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Nacos.Enabled {
		return cfg, nil, nil
	}
	cli, err := nacos.NewConfigClient(cfg.Nacos)
	if err != nil {
		return nil, nil, errors.Wrap(err, "nacos config client")
	}
	src := nacos.NewSource(cli, cfg.Nacos.DataID, cfg.Nacos.Group)
	cfg, err = ApplyRemote(loader, src)
	if err != nil {
		_ = src.Close()
		return nil, nil, err
	}
	return cfg, &Remote{Source: src}, nil
}

// ApplyRemote merges the current remote document and installs the watcher.
func ApplyRemote(loader *config.Loader, src *nacos.Source) (*config.AppConfig, error) {
	doc, err := src.Load()
	if err != nil {
		return nil, errors.Wrap(err, "nacos get config")
	}
	if err := loader.Merge(doc); err != nil {
		return nil, errors.Wrap(err, "merge remote config")
	}
	cfg, err := loader.Config()
	if err != nil {
		return nil, err
	}
	err = src.Watch(func(data string) {
		if lvl, ok := config.LogLevelOf(data); ok {
			logger.SetLevel(lvl)
			logger.Info("log level changed", zap.String("level", logger.Level()))
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "nacos listen")
	}
	return cfg, nil
}

// Register announces the HTTP address in the nacos naming service.
func (r *Remote) Register(cfg *config.AppConfig) error {
	if r == nil || !cfg.Nacos.Register {
		return nil
	}
	host, port, err := net.SplitHostPort(cfg.Server.Addr)
	if err != nil {
		return errors.Wrap(err, "server addr")
	}
	if host == "" {
		host = "127.0.0.1"
	}
	p, err := strconv.ParseUint(port, 10, 64)
	if err != nil {
		return errors.Wrap(err, "server port")
	}
	cli, err := nacos.NewNamingClient(cfg.Nacos)
	if err != nil {
		return errors.Wrap(err, "nacos naming client")
	}
	r.Registry = nacos.NewRegistry(cli, cfg.Nacos.ServiceName, host, p, map[string]string{
		"grpc_addr": cfg.GRPC.Addr,
		"ws_path":   WSPath,
		"node_id":   strconv.FormatInt(cfg.NodeID, 10),
	})
	return r.Registry.Register()
}

func (r *Remote) Close() {
	if r == nil {
		return
	}
	if r.Registry != nil {
		if err := r.Registry.Deregister(); err != nil {
			logger.Warn("nacos deregister", zap.Error(err))
		}
	}
	if err := r.Source.Close(); err != nil {
		logger.Warn("nacos close", zap.Error(err))
	}
}
