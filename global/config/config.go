package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "GREENCHAT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_id", 1)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.ws.auth_timeout", "5s")
	v.SetDefault("server.ws.send_queue", 256)
	v.SetDefault("server.ws.ping_interval", "25s")
	v.SetDefault("server.ws.max_per_user", 0)
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.alg", "HS256")
	v.SetDefault("auth.ttl", "2h")
	v.SetDefault("auth.timeout", "5s")
	v.SetDefault("auth.require_active_member", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "file:greenchat.db?cache=shared")
	v.SetDefault("store.timeout", "5s")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("cache.backend", "buntdb")
	v.SetDefault("cache.bunt_path", ":memory:")
	v.SetDefault("cache.recent_size", 100)
	v.SetDefault("cache.recent_ttl", "24h")
	v.SetDefault("cache.timeout", "2s")
	v.SetDefault("presence.ttl", "1h")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.servers", []string{"nats://127.0.0.1:4222"})
	v.SetDefault("nats.prefix", "greenchat")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic", "greenchat.events")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "greenchat")
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.spec", "@every 1h")
	v.SetDefault("retention.batch", 500)
	v.SetDefault("nacos.enabled", false)
	v.SetDefault("nacos.servers", []string{"127.0.0.1:8848"})
	v.SetDefault("nacos.data_id", "greenchat.yaml")
	v.SetDefault("nacos.group", "DEFAULT_GROUP")
	v.SetDefault("nacos.service_name", "greenchat-gateway")
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"addr":       "server.addr",
	"grpc-addr":  "grpc.addr",
	"log-level":  "log.level",
	"log-format": "log.format",
	"store-dsn":  "store.dsn",
	"node-id":    "node_id",
}

// Flags is the flag set shared by the commands.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "path to a YAML config file")
	fs.String("addr", "", "HTTP listen address")
	fs.String("grpc-addr", "", "gRPC health listen address")
	fs.String("log-level", "", "debug|info|warn|error")
	fs.String("log-format", "", "console|json")
	fs.String("store-dsn", "", "durable store DSN")
	fs.Int64("node-id", 0, "node id for id generation")
	return fs
}

// Loader reads configuration from defaults, a YAML file, GREENCHAT_* env
// vars and flags, in increasing priority. A remote document can be merged
// on top later.
type Loader struct {
	v *viper.Viper
}

func NewLoader(path string, fs *pflag.FlagSet) (*Loader, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return &Loader{v: v}, nil
}

// Merge overlays a YAML document, e.g. one fetched from nacos.
func (l *Loader) Merge(yamlDoc string) error {
	if strings.TrimSpace(yamlDoc) == "" {
		return nil
	}
	l.v.SetConfigType("yaml")
	return l.v.MergeConfig(strings.NewReader(yamlDoc))
}

func (l *Loader) Config() (*AppConfig, error) {
	var cfg AppConfig
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Load is NewLoader followed by Config.
func Load(path string, fs *pflag.FlagSet) (*AppConfig, error) {
	l, err := NewLoader(path, fs)
	if err != nil {
		return nil, err
	}
	return l.Config()
}

// LogLevelOf extracts log.level from a YAML document, if set.
func LogLevelOf(yamlDoc string) (string, bool) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yamlDoc)); err != nil {
		return "", false
	}
	lvl := v.GetString("log.level")
	return lvl, lvl != ""
}
