package kafka

import "github.com/Shopify/sarama"

type Config struct {
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	Version           string   `mapstructure:"version"`
	Retries           int      `mapstructure:"retries"`
	Compression       string   `mapstructure:"compression"` // none/snappy/lz4/zstd
	Partitions        int32    `mapstructure:"partitions"`
	ReplicationFactor int16    `mapstructure:"replication_factor"`
	EnsureTopic       bool     `mapstructure:"ensure_topic"`
}

func (c *Config) norm() {
	if c.Topic == "" {
		c.Topic = "greenchat.events"
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.Partitions <= 0 {
		c.Partitions = 8
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = 1
	}
}

func (c *Config) version() sarama.KafkaVersion {
	if c.Version == "" {
		return sarama.V2_1_0_0
	}
	v, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return sarama.V2_1_0_0
	}
	return v
}
