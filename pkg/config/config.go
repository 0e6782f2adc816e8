package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ccollicutt/logstream/pkg/detector"
	"github.com/ccollicutt/logstream/pkg/parser"
	"github.com/ccollicutt/logstream/pkg/store/file"
	"github.com/ccollicutt/logstream/pkg/webhook"
)

// Load reads and validates a configuration file.
func Load(_ context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided config path is expected
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks a configuration for errors, fills in defaults and
// compiles regex patterns.
func Validate(cfg *Config) error {
	if err := validateSession(&cfg.Session); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	if err := validateStore(&cfg.Store); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if len(cfg.Sources) == 0 {
		return errors.New("sources: at least one source is required")
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		if err := validateSource(src); err != nil {
			return fmt.Errorf("sources[%d] (%s): %w", i, src.Name, err)
		}
		if seen[src.Name] {
			return fmt.Errorf("sources[%d] (%s): duplicate name", i, src.Name)
		}
		seen[src.Name] = true
	}

	// Webhooks are optional, but validate if present
	for i := range cfg.Webhooks {
		if err := validateWebhook(&cfg.Webhooks[i]); err != nil {
			name := cfg.Webhooks[i].Name
			if name == "" {
				name = cfg.Webhooks[i].URL
			}
			return fmt.Errorf("webhooks[%d] (%s): %w", i, name, err)
		}
	}

	return nil
}

func validateSession(s *SessionConfig) error {
	if s.FlushInterval < 0 {
		return errors.New("flush_interval must not be negative")
	}
	if s.FlushInterval == 0 {
		s.FlushInterval = DefaultFlushInterval
	}

	if s.TailInterval < 0 {
		return errors.New("tail_interval must not be negative")
	}
	if s.TailInterval == 0 {
		s.TailInterval = DefaultTailInterval
	}

	if s.InitialParseErrorLimit < 0 {
		return errors.New("initial_parse_error_limit must not be negative")
	}
	if s.InitialParseErrorLimit == 0 {
		s.InitialParseErrorLimit = DefaultInitialParseErrorLimit
	}

	return nil
}

func validateStore(s *StoreConfig) error {
	switch s.Type {
	case "", StoreTypeSQLite:
		s.Type = StoreTypeSQLite
		if s.Path == "" {
			s.Path = DefaultSQLitePath
		}
		if s.PoolSize <= 0 {
			s.PoolSize = DefaultPoolSize
		}
	case StoreTypeFile:
		if s.Path == "" {
			s.Path = DefaultFileStorePath
		}
		if s.Compression == "" {
			s.Compression = DefaultCompression
		}
	default:
		return fmt.Errorf("invalid type %q (must be sqlite or file)", s.Type)
	}

	if s.Compression != "" {
		if _, err := file.ParseCompression(s.Compression); err != nil {
			return err
		}
	}

	return nil
}

func validateSource(src *SourceConfig) error {
	if src.Name == "" {
		return errors.New("name is required")
	}

	switch src.SourceTypeEnum() {
	case SourceTypeFile:
		if src.Path == "" {
			return errors.New("path is required for file sources")
		}
	case SourceTypeStdin:
		if src.Tail {
			return errors.New("tail is only supported for file sources")
		}
	case SourceTypeTCP:
		if err := validateAddress(src.Address); err != nil {
			return err
		}
	case SourceTypeUDP:
		if err := validateAddress(src.Address); err != nil {
			return err
		}
		for _, raw := range src.AllowRemotes {
			ip := net.ParseIP(raw)
			if ip == nil {
				return fmt.Errorf("allow_remotes: invalid IP %q", raw)
			}
			src.allowRemotes = append(src.allowRemotes, ip)
		}
		re, err := compileOptional(src.DropDatagrams)
		if err != nil {
			return fmt.Errorf("invalid drop_datagrams: %w", err)
		}
		src.dropDatagrams = re
	case SourceTypeProcess:
		if len(src.Command) == 0 && src.Plugin == "" {
			return errors.New("command or plugin is required for process sources")
		}
		if len(src.Command) > 0 && src.Plugin != "" {
			return errors.New("command and plugin are mutually exclusive")
		}
	default:
		return fmt.Errorf("invalid type %q (must be file, stdin, tcp, udp, or process)", src.Type)
	}

	if src.Tail && src.SourceTypeEnum() != SourceTypeFile {
		return errors.New("tail is only supported for file sources")
	}
	if src.Parser.TimestampPattern == TimestampAuto && src.SourceTypeEnum() != SourceTypeFile {
		return errors.New("timestamp_pattern: auto is only supported for file sources")
	}
	if len(src.AllowRemotes) > 0 && src.SourceTypeEnum() != SourceTypeUDP {
		return errors.New("allow_remotes is only supported for udp sources")
	}
	if src.DropDatagrams != "" && src.SourceTypeEnum() != SourceTypeUDP {
		return errors.New("drop_datagrams is only supported for udp sources")
	}
	if src.ChunkSize < 0 {
		return errors.New("chunk_size must not be negative")
	}

	if err := validateParser(&src.Parser); err != nil {
		return fmt.Errorf("parser: %w", err)
	}

	return nil
}

func validateAddress(addr string) error {
	if addr == "" {
		return errors.New("address is required for network sources")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	return nil
}

func validateParser(p *ParserConfig) error {
	switch p.ParserTypeEnum() {
	case "":
		p.Type = string(ParserTypeText)
	case ParserTypeText, ParserTypeFrame:
	default:
		return fmt.Errorf("invalid type %q (must be text or frame)", p.Type)
	}

	if p.ParserTypeEnum() == ParserTypeFrame {
		if p.TimestampPattern != "" || p.Include != "" || p.Exclude != "" {
			return errors.New("timestamp and filter patterns only apply to text parsers")
		}
		return nil
	}

	if p.TimestampPattern == TimestampAuto {
		if p.TimestampLayout != "" {
			return errors.New("timestamp_layout must be empty with timestamp_pattern: auto")
		}
	} else if p.TimestampPattern != "" {
		re, err := regexp.Compile(p.TimestampPattern)
		if err != nil {
			return fmt.Errorf("invalid timestamp_pattern: %w", err)
		}
		if re.NumSubexp() < 1 {
			return errors.New("timestamp_pattern must have at least one capture group for the timestamp")
		}
		p.compiledTimestamp = re

		if p.TimestampLayout == "" {
			return errors.New("timestamp_layout is required with timestamp_pattern")
		}
	}

	if p.Timezone != "" {
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
		p.location = loc
	}

	var err error
	if p.compiledInclude, err = compileOptional(p.Include); err != nil {
		return fmt.Errorf("invalid include: %w", err)
	}
	if p.compiledExclude, err = compileOptional(p.Exclude); err != nil {
		return fmt.Errorf("invalid exclude: %w", err)
	}

	if p.MaxLineLength < 0 {
		return errors.New("max_line_length must not be negative")
	}
	if p.MaxLineLength == 0 {
		p.MaxLineLength = DefaultMaxLineLength
	}

	return nil
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

func validateWebhook(wh *WebhookConfig) error {
	if wh.URL == "" {
		return errors.New("url is required")
	}

	u, err := url.Parse(wh.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("url must have a host")
	}

	// Expand environment variables in token
	wh.Token = expandEnvVar(wh.Token)

	switch wh.Trigger {
	case "":
		wh.Trigger = webhook.TriggerOnErrors
	case webhook.TriggerOnErrors, webhook.TriggerAlways, webhook.TriggerNever:
	default:
		return fmt.Errorf("invalid trigger %q (must be on_errors, always, or never)", wh.Trigger)
	}

	if wh.Timeout <= 0 {
		wh.Timeout = DefaultWebhookTimeout
	}

	return nil
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}

	if strings.HasPrefix(s, "$") && !strings.HasPrefix(s, "${") {
		varName := s[1:]
		return os.Getenv(varName)
	}

	return s
}

// ExpandSources returns the configured sources with file globs expanded
// to one source per matching file. Sources that match several files are
// named <name>:<file base name>. Automatic timestamp formats are
// resolved per file.
func (c *Config) ExpandSources(ctx context.Context) ([]SourceConfig, error) {
	out := make([]SourceConfig, 0, len(c.Sources))

	for _, src := range c.Sources {
		if src.SourceTypeEnum() != SourceTypeFile || !hasGlobMeta(src.Path) {
			out = append(out, src)
			continue
		}

		files, err := parser.ExpandGlobs([]string{src.Path})
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		for _, f := range files {
			expanded := src
			expanded.Path = f
			expanded.Name = src.Name + ":" + filepath.Base(f)
			out = append(out, expanded)
		}
	}

	for i := range out {
		if out[i].Parser.TimestampPattern != TimestampAuto {
			continue
		}
		if err := resolveTimestamp(ctx, &out[i]); err != nil {
			return nil, fmt.Errorf("source %s: %w", out[i].Name, err)
		}
	}

	return out, nil
}

// resolveTimestamp replaces timestamp_pattern: auto with the format
// detected in the source file. Files without a recognizable format are
// read as plain lines.
func resolveTimestamp(ctx context.Context, src *SourceConfig) error {
	p := &src.Parser
	result, err := detector.New(detector.WithLocation(p.Location())).DetectFile(ctx, src.Path)
	if err != nil {
		return fmt.Errorf("detecting timestamp format: %w", err)
	}

	best := result.Best()
	if best == nil {
		p.TimestampPattern = ""
		p.compiledTimestamp = nil
		return nil
	}
	p.TimestampPattern = best.Format.Pattern
	p.TimestampLayout = best.Format.Layout
	p.compiledTimestamp = best.Format.Regexp()
	p.DetectedFormat = best.Format.Name
	return nil
}

func hasGlobMeta(path string) bool {
	return strings.ContainsAny(path, "*?[")
}
