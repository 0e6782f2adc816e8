// Package config provides configuration loading and validation for
// logstream observe sessions.
package config

import (
	"net"
	"regexp"
	"time"

	"github.com/ccollicutt/logstream/pkg/webhook"
)

// Config is the root configuration structure loaded from YAML.
type Config struct {
	Session  SessionConfig   `yaml:"session"`
	Store    StoreConfig     `yaml:"store"`
	Sources  []SourceConfig  `yaml:"sources"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// SessionConfig tunes the session driver.
type SessionConfig struct {
	// FlushInterval is how long a source may stay idle before the session
	// is flushed to the store.
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`

	// TailInterval is how often tailed files are polled for growth.
	TailInterval time.Duration `yaml:"tail_interval,omitempty"`

	// InitialParseErrorLimit is how many bytes a parser may reject before
	// producing its first message.
	InitialParseErrorLimit int `yaml:"initial_parse_error_limit,omitempty"`

	// Sequential reads sources one after another in configuration order.
	Sequential bool `yaml:"sequential,omitempty"`
}

// StoreType selects the session store backend.
type StoreType string

const (
	StoreTypeSQLite StoreType = "sqlite"
	StoreTypeFile   StoreType = "file"
)

// StoreConfig defines where the session is written.
type StoreConfig struct {
	Type StoreType `yaml:"type,omitempty"`

	// Path is the database file (sqlite) or directory (file).
	Path string `yaml:"path,omitempty"`

	// Compression applies to attachments in the file store: zstd, lz4 or
	// none.
	Compression string `yaml:"compression,omitempty"`

	// PoolSize is the number of sqlite connections.
	PoolSize int `yaml:"pool_size,omitempty"`
}

// SourceType represents the kind of byte source.
type SourceType string

const (
	SourceTypeFile    SourceType = "file"
	SourceTypeStdin   SourceType = "stdin"
	SourceTypeTCP     SourceType = "tcp"
	SourceTypeUDP     SourceType = "udp"
	SourceTypeProcess SourceType = "process"
)

// SourceConfig defines a single source of log data.
type SourceConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // file, stdin, tcp, udp, process

	// File source fields. Path may be a glob.
	Path string `yaml:"path,omitempty"`
	Tail bool   `yaml:"tail,omitempty"`

	// Network source fields
	Address      string   `yaml:"address,omitempty"`
	AllowRemotes []string `yaml:"allow_remotes,omitempty"` // udp only

	// DropDatagrams discards whole datagrams matching this regex before
	// they reach the parser. udp only.
	DropDatagrams string `yaml:"drop_datagrams,omitempty"`

	// Process source fields. Plugin names a logstream-source-<plugin>
	// binary and is an alternative to Command.
	Command []string `yaml:"command,omitempty"`
	Plugin  string   `yaml:"plugin,omitempty"`
	Args    []string `yaml:"args,omitempty"`

	ChunkSize int `yaml:"chunk_size,omitempty"`

	Parser ParserConfig `yaml:"parser,omitempty"`

	// Populated during validation
	allowRemotes  []net.IP
	dropDatagrams *regexp.Regexp
}

// SourceTypeEnum returns the source type as a SourceType enum.
func (s *SourceConfig) SourceTypeEnum() SourceType {
	return SourceType(s.Type)
}

// AllowedRemotes returns the parsed allow_remotes list.
func (s *SourceConfig) AllowedRemotes() []net.IP {
	return s.allowRemotes
}

// CompiledDropDatagrams returns the compiled drop_datagrams pattern, or nil.
func (s *SourceConfig) CompiledDropDatagrams() *regexp.Regexp {
	return s.dropDatagrams
}

// ParserType selects how source bytes are decoded.
type ParserType string

const (
	ParserTypeText  ParserType = "text"
	ParserTypeFrame ParserType = "frame"
)

// TimestampAuto as timestamp_pattern selects format detection.
const TimestampAuto = "auto"

// ParserConfig defines how a source's bytes are turned into records.
type ParserConfig struct {
	Type string `yaml:"type,omitempty"` // text, frame

	// TimestampPattern is a regex whose first capture group holds the
	// timestamp. When set, text records become {timestamp_ms, line}.
	// "auto" detects the format from the head of a file source.
	TimestampPattern string `yaml:"timestamp_pattern,omitempty"`

	// TimestampLayout is the Go time layout for the captured timestamp.
	// See https://pkg.go.dev/time#pkg-constants for format.
	TimestampLayout string `yaml:"timestamp_layout,omitempty"`

	// Timezone is used for timestamps without zone information.
	Timezone string `yaml:"timezone,omitempty"`

	Include string `yaml:"include,omitempty"`
	Exclude string `yaml:"exclude,omitempty"`

	MaxLineLength int `yaml:"max_line_length,omitempty"`

	// DetectedFormat names the format chosen for timestamp_pattern: auto.
	DetectedFormat string `yaml:"-"`

	// Compiled patterns (populated during validation)
	compiledTimestamp *regexp.Regexp
	compiledInclude   *regexp.Regexp
	compiledExclude   *regexp.Regexp
	location          *time.Location
}

// ParserTypeEnum returns the parser type as a ParserType enum.
func (p *ParserConfig) ParserTypeEnum() ParserType {
	return ParserType(p.Type)
}

// CompiledTimestampPattern returns the compiled timestamp pattern, or nil.
func (p *ParserConfig) CompiledTimestampPattern() *regexp.Regexp {
	return p.compiledTimestamp
}

// CompiledInclude returns the compiled include pattern, or nil.
func (p *ParserConfig) CompiledInclude() *regexp.Regexp {
	return p.compiledInclude
}

// CompiledExclude returns the compiled exclude pattern, or nil.
func (p *ParserConfig) CompiledExclude() *regexp.Regexp {
	return p.compiledExclude
}

// Location returns the timezone for timestamps without zone information.
func (p *ParserConfig) Location() *time.Location {
	if p.location == nil {
		return time.UTC
	}
	return p.location
}

// WebhookConfig defines a webhook endpoint for sending session reports.
type WebhookConfig struct {
	// Name is an optional identifier for the webhook.
	Name string `yaml:"name,omitempty"`

	// URL is the webhook endpoint (required).
	URL string `yaml:"url"`

	// Token is an optional bearer token for authentication.
	Token string `yaml:"token,omitempty"`

	// Trigger determines when the webhook fires.
	// Defaults to "on_errors" if not specified.
	Trigger webhook.Trigger `yaml:"trigger,omitempty"`

	// Timeout is the HTTP request timeout.
	// Defaults to 10s if not specified.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}
