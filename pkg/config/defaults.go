package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ccollicutt/logstream/pkg/parser"
	"github.com/ccollicutt/logstream/pkg/producer"
	"github.com/ccollicutt/logstream/pkg/session"
	"github.com/ccollicutt/logstream/pkg/tail"
	"github.com/ccollicutt/logstream/pkg/webhook"
)

// Default values for configuration.
const (
	DefaultFlushInterval          = session.DefaultFlushInterval
	DefaultTailInterval           = tail.DefaultInterval
	DefaultInitialParseErrorLimit = producer.DefaultInitialParseErrorLimit
	DefaultWebhookTimeout         = webhook.DefaultTimeout
	DefaultMaxLineLength          = parser.DefaultMaxLineLength
	DefaultSQLitePath             = "session.db"
	DefaultFileStorePath          = "session"
	DefaultCompression            = "zstd"
	DefaultPoolSize               = 4
)

// Environment variable names.
const (
	EnvStorePath     = "LOGSTREAM_STORE_PATH"
	EnvFlushInterval = "LOGSTREAM_FLUSH_INTERVAL"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			FlushInterval:          DefaultFlushInterval,
			TailInterval:           DefaultTailInterval,
			InitialParseErrorLimit: DefaultInitialParseErrorLimit,
		},
		Store: StoreConfig{
			Type:     StoreTypeSQLite,
			PoolSize: DefaultPoolSize,
		},
		Sources: []SourceConfig{},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvironmentOverrides() error {
	if path := os.Getenv(EnvStorePath); path != "" {
		c.Store.Path = path
	}

	if v := os.Getenv(EnvFlushInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFlushInterval, err)
		}
		c.Session.FlushInterval = d
	}

	return nil
}
