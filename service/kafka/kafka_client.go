package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// BuildBaseConfig is the producer configuration: acks from all replicas and
// the hash partitioner, so one key always lands on one partition.
func BuildBaseConfig(c Config) *sarama.Config {
	c.norm()
	cfg := sarama.NewConfig()
	cfg.Version = c.version()
	cfg.ClientID = "greenchat"

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = c.Retries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	switch strings.ToLower(c.Compression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}
