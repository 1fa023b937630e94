package nacos

import (
	"fmt"
	"net"
	"strconv"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

type Config struct {
	Enabled   bool     `mapstructure:"enabled"`
	Servers   []string `mapstructure:"servers"` // host:port
	Namespace string   `mapstructure:"namespace"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	DataID    string   `mapstructure:"data_id"`
	Group     string   `mapstructure:"group"`
	TimeoutMs uint64   `mapstructure:"timeout_ms"`
	CacheDir  string   `mapstructure:"cache_dir"`
	LogDir    string   `mapstructure:"log_dir"`
	LogLevel  string   `mapstructure:"log_level"`
	// Register announces the gateway in the naming service.
	Register    bool   `mapstructure:"register"`
	ServiceName string `mapstructure:"service_name"`
}

func (c *Config) norm() {
	if c.DataID == "" {
		c.DataID = "greenchat.yaml"
	}
	if c.Group == "" {
		c.Group = "DEFAULT_GROUP"
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 5000
	}
	if c.CacheDir == "" {
		c.CacheDir = "nacos/cache"
	}
	if c.LogDir == "" {
		c.LogDir = "nacos/log"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.ServiceName == "" {
		c.ServiceName = "greenchat-gateway"
	}
}

func serverConfigs(servers []string) ([]constant.ServerConfig, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("nacos servers missing")
	}
	out := make([]constant.ServerConfig, 0, len(servers))
	for _, s := range servers {
		host, port, err := net.SplitHostPort(s)
		if err != nil {
			return nil, fmt.Errorf("nacos server %q: %w", s, err)
		}
		p, err := strconv.ParseUint(port, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("nacos server %q: bad port", s)
		}
		out = append(out, *constant.NewServerConfig(host, p))
	}
	return out, nil
}

func clientParam(c Config) (vo.NacosClientParam, error) {
	c.norm()
	sc, err := serverConfigs(c.Servers)
	if err != nil {
		return vo.NacosClientParam{}, err
	}
	cc := constant.NewClientConfig(
		constant.WithNamespaceId(c.Namespace),
		constant.WithTimeoutMs(c.TimeoutMs),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel(c.LogLevel),
		constant.WithCacheDir(c.CacheDir),
		constant.WithLogDir(c.LogDir),
		constant.WithUsername(c.Username),
		constant.WithPassword(c.Password),
	)
	return vo.NacosClientParam{ClientConfig: cc, ServerConfigs: sc}, nil
}

func NewConfigClient(c Config) (config_client.IConfigClient, error) {
	p, err := clientParam(c)
	if err != nil {
		return nil, err
	}
	return clients.NewConfigClient(p)
}

func NewNamingClient(c Config) (naming_client.INamingClient, error) {
	p, err := clientParam(c)
	if err != nil {
		return nil, err
	}
	return clients.NewNamingClient(p)
}
