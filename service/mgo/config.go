package mgo

import (
	"fmt"
	"strings"

	"GreenChat/tools/errs"
)

const (
	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3
	defaultCollection  = "archived_messages"
)

type Config struct {
	Uri         string   `mapstructure:"uri"`
	Address     []string `mapstructure:"address"`
	Database    string   `mapstructure:"database"`
	Collection  string   `mapstructure:"collection"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	AuthSource  string   `mapstructure:"auth_source"`
	MaxPoolSize int      `mapstructure:"max_pool_size"`
	MaxRetry    int      `mapstructure:"max_retry"`
}

// Enabled reports whether an archive target is configured at all.
func (c *Config) Enabled() bool { return c.Uri != "" || len(c.Address) > 0 }

// ValidateAndSetDefaults validates the configuration and sets default values.
func (c *Config) ValidateAndSetDefaults() error {
	if !c.Enabled() {
		return errs.New("either uri or address must be provided")
	}
	if c.Database == "" {
		return errs.New("mongo database is required")
	}
	if c.Collection == "" {
		c.Collection = defaultCollection
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.Uri == "" {
		src := c.AuthSource
		if src == "" {
			src = c.Database
		}
		c.Uri = buildMongoURI(c, src)
	}
	return nil
}

func buildMongoURI(c *Config, authSource string) string {
	credentials := ""
	if c.Username != "" && c.Password != "" {
		credentials = fmt.Sprintf("%s:%s@", c.Username, c.Password)
	}
	return fmt.Sprintf(
		"mongodb://%s%s/%s?authSource=%s&maxPoolSize=%d",
		credentials,
		strings.Join(c.Address, ","),
		c.Database,
		authSource,
		c.MaxPoolSize,
	)
}
