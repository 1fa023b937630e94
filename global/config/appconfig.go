package config

import (
	"time"

	"GreenChat/service/chat"
	"GreenChat/service/kafka"
	"GreenChat/service/mgo"
	"GreenChat/service/nacos"
	"GreenChat/service/natsx"
	"GreenChat/service/retention"
	"GreenChat/service/storage"
	"GreenChat/service/storage/redis"
	"GreenChat/service/store"
)

// AppConfig is the whole process configuration. Every section maps to one
// component; disabled optional components are skipped at bootstrap.
type AppConfig struct {
	NodeID    int64            `mapstructure:"node_id"`
	Server    ServerSection    `mapstructure:"server"`
	GRPC      GRPCSection      `mapstructure:"grpc"`
	Log       LogSection       `mapstructure:"log"`
	Auth      AuthSection      `mapstructure:"auth"`
	Store     store.Config     `mapstructure:"store"`
	Redis     redis.Config     `mapstructure:"redis"`
	Cache     CacheSection     `mapstructure:"cache"`
	Presence  PresenceSection  `mapstructure:"presence"`
	NATS      NATSSection      `mapstructure:"nats"`
	Kafka     KafkaSection     `mapstructure:"kafka"`
	Mongo     mgo.Config       `mapstructure:"mongo"`
	Retention RetentionSection `mapstructure:"retention"`
	Nacos     nacos.Config     `mapstructure:"nacos"`
}

type ServerSection struct {
	Addr            string          `mapstructure:"addr"`
	Mode            string          `mapstructure:"mode"` // gin mode
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins"`
	WS              chat.ServerConf `mapstructure:"ws"`
}

type GRPCSection struct {
	Addr string `mapstructure:"addr"`
}

type LogSection struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console | json
}

type AuthSection struct {
	Secret              string        `mapstructure:"secret"`
	Alg                 string        `mapstructure:"alg"`
	TTL                 time.Duration `mapstructure:"ttl"`
	Leeway              time.Duration `mapstructure:"leeway"`
	Timeout             time.Duration `mapstructure:"timeout"`
	RequireActiveMember bool          `mapstructure:"require_active_member"`
}

type CacheSection struct {
	storage.Options `mapstructure:",squash"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type PresenceSection struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type NATSSection struct {
	Enabled      bool `mapstructure:"enabled"`
	natsx.Config `mapstructure:",squash"`
}

type KafkaSection struct {
	Enabled      bool `mapstructure:"enabled"`
	kafka.Config `mapstructure:",squash"`
}

type RetentionSection struct {
	Enabled        bool `mapstructure:"enabled"`
	retention.Conf `mapstructure:",squash"`
}

// CacheOptions merges the presence TTL into the cache options.
func (c *AppConfig) CacheOptions() storage.Options {
	o := c.Cache.Options
	if c.Presence.TTL > 0 {
		o.PresenceTTL = c.Presence.TTL
	}
	return o
}
