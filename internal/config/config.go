package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/ipwatch/internal/domain"
	"github.com/MrSnakeDoc/ipwatch/internal/logger"
)

const envPrefix = "IPWATCH_"

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Sampling
	PollInterval    time.Duration      // time between two samples (default: 5m)
	HistoryCapacity int                // entries kept in memory (default: 50)
	HistoryMode     domain.HistoryMode // "transitions" | "samples"
	DropOverlapping bool               // true => skip a tick while one is running, false => queue one
	FetchOnStart    bool               // sample immediately instead of waiting one interval
	SourceURL       string             // plain-text IP endpoint (default: https://api.ipify.org)
	FetchTimeout    time.Duration      // per-request timeout (default: 10s)

	// Redis mirror (optional, empty addr = disabled)
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisPrefix         string        // key prefix (default: ipwatch)
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // initial wait between retries (ex: 2s, grows exponentially)

	// Notifications
	TelegramToken  string        // optional, empty = telegram disabled
	TelegramChatID string        // required when TelegramToken is set
	TelegramAPIURL string        // override for self-hosted bot API
	SMTPHost       string        // optional, empty = email disabled
	SMTPPort       int           // default: 587
	SMTPUser       string        // optional, empty = no SMTP auth
	SMTPPassword   string        // optional
	SMTPFrom       string        // sender, defaults to SMTPUser
	SMTPTo         []string      // recipients, default to SMTPFrom
	SMTPTLS        string        // "opportunistic" | "mandatory" | "none"
	NotifyQueue    int           // pending change events before dropping (default: 16)
	NotifyTimeout  time.Duration // per-notifier delivery timeout (default: 10s)

	// Access restrictions
	AllowedHosts []string // optional, restrict operational routes to specific Host headers
	AllowedCIDRS []string // optional, restrict operational routes to specific networks
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	CORSOrigins  []string // allowed origins for /api/* (default: *)
	RateBurst    int      // per-client burst on /api/* (0 = disabled)
	RatePerMin   int      // per-client sustained rate on /api/*

	TraceStdout bool // export spans to stdout
}

// Load reads the configuration from the optional YAML file named by
// IPWATCH_CONFIG_FILE and the environment, env winning. It panics on invalid
// configuration since nothing can run without it.
func Load() *Config {
	cfg, err := Parse()
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Parse is Load without the panic.
func Parse() (*Config, error) {
	src := &source{}
	if path := os.Getenv(envPrefix + "CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}
	cfg := src.build()
	// mail goes to the sender's own mailbox unless told otherwise
	cfg.SMTPFrom = src.getenv("SMTP_FROM", cfg.SMTPUser)
	cfg.SMTPTo = splitAndTrim(src.getenv("SMTP_TO", cfg.SMTPFrom))
	if len(src.errs) > 0 {
		return nil, errors.Join(src.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *source) build() *Config {
	return &Config{
		// Server settings
		ListenPort:      s.getenv("LISTEN_PORT", ":8080"),
		ShutdownTimeout: s.mustDuration("SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  s.getenv("LOG_LEVEL", "info"),
		PrettyLog: s.mustBool("PRETTY_LOG", true),

		// Sampling
		PollInterval:    s.mustDuration("POLL_INTERVAL", 5*time.Minute),
		HistoryCapacity: s.getenvInt("HISTORY_CAPACITY", 50),
		HistoryMode:     domain.HistoryMode(strings.ToLower(s.getenv("HISTORY_MODE", string(domain.HistoryTransitions)))),
		DropOverlapping: s.mustBool("DROP_OVERLAPPING", true),
		FetchOnStart:    s.mustBool("FETCH_ON_START", true),
		SourceURL:       s.getenv("SOURCE_URL", "https://api.ipify.org"),
		FetchTimeout:    s.mustDuration("FETCH_TIMEOUT", 10*time.Second),

		// Redis settings
		RedisAddr:           s.getenv("REDIS_ADDR", ""),
		RedisUser:           s.getenv("REDIS_USERNAME", ""),
		RedisPassword:       s.getenv("REDIS_PASSWORD", ""),
		RedisDB:             s.getenvInt("REDIS_DB", 0),
		RedisPrefix:         s.getenv("REDIS_PREFIX", "ipwatch"),
		RedisDT:             s.mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             s.mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             s.mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        s.mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    s.mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       s.getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: s.mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  s.mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),

		// Notifications
		TelegramToken:  s.getenv("TELEGRAM_TOKEN", ""),
		TelegramChatID: s.getenv("TELEGRAM_CHAT_ID", ""),
		TelegramAPIURL: s.getenv("TELEGRAM_API_URL", "https://api.telegram.org"),
		SMTPHost:       s.getenv("SMTP_HOST", ""),
		SMTPPort:       s.getenvInt("SMTP_PORT", 587),
		SMTPUser:       s.getenv("SMTP_USERNAME", ""),
		SMTPPassword:   s.getenv("SMTP_PASSWORD", ""),
		SMTPTLS:        strings.ToLower(s.getenv("SMTP_TLS", "opportunistic")),
		NotifyQueue:    s.getenvInt("NOTIFY_QUEUE", 16),
		NotifyTimeout:  s.mustDuration("NOTIFY_TIMEOUT", 10*time.Second),

		// Access restrictions
		AllowedHosts: splitAndTrim(s.getenv("ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(s.getenv("ALLOWED_CIDRS", "")),
		TrustProxy:   s.mustBool("TRUST_PROXY", false),
		CORSOrigins:  splitAndTrim(s.getenv("CORS_ORIGINS", "*")),
		RateBurst:    s.getenvInt("RATE_BURST", 30),
		RatePerMin:   s.getenvInt("RATE_PER_MIN", 120),

		TraceStdout: s.mustBool("TRACE_STDOUT", false),
	}
}

// Validate reports the first setting the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.PollInterval <= 0:
		return &domain.ConfigError{Field: "pollInterval", Reason: "must be > 0"}
	case c.HistoryCapacity <= 0:
		return &domain.ConfigError{Field: "historyCapacity", Reason: "must be > 0"}
	case !c.HistoryMode.Valid():
		return &domain.ConfigError{Field: "historyMode", Reason: fmt.Sprintf("unknown mode %q", c.HistoryMode)}
	case c.FetchTimeout <= 0:
		return &domain.ConfigError{Field: "fetchTimeout", Reason: "must be > 0"}
	case !strings.HasPrefix(c.SourceURL, "http://") && !strings.HasPrefix(c.SourceURL, "https://"):
		return &domain.ConfigError{Field: "sourceURL", Reason: "must be an http(s) URL"}
	case c.TelegramToken != "" && c.TelegramChatID == "":
		return &domain.ConfigError{Field: "telegramChatID", Reason: "required when a telegram token is set"}
	case c.SMTPHost != "" && (c.SMTPFrom == "" || len(c.SMTPTo) == 0):
		return &domain.ConfigError{Field: "smtpFrom", Reason: "required when an smtp host is set"}
	case c.SMTPHost != "" && (c.SMTPPort <= 0 || c.SMTPPort > 65535):
		return &domain.ConfigError{Field: "smtpPort", Reason: fmt.Sprintf("out of range: %d", c.SMTPPort)}
	case c.SMTPTLS != "opportunistic" && c.SMTPTLS != "mandatory" && c.SMTPTLS != "none":
		return &domain.ConfigError{Field: "smtpTLS", Reason: fmt.Sprintf("unknown policy %q", c.SMTPTLS)}
	case c.NotifyQueue <= 0:
		return &domain.ConfigError{Field: "notifyQueue", Reason: "must be > 0"}
	case c.RateBurst < 0 || c.RatePerMin < 0:
		return &domain.ConfigError{Field: "rateLimit", Reason: "must not be negative"}
	}
	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return &domain.ConfigError{Field: "logLevel", Reason: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	return nil
}

// RedisEnabled reports whether change events are mirrored to Redis.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// TelegramEnabled reports whether change events are sent to Telegram.
func (c *Config) TelegramEnabled() bool { return c.TelegramToken != "" }

// EmailEnabled reports whether change events are sent by mail.
func (c *Config) EmailEnabled() bool { return c.SMTPHost != "" }

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.RedisPassword != "" {
		cp.RedisPassword = "***REDACTED***"
	}
	if cp.RedisUser != "" {
		cp.RedisUser = "***REDACTED***"
	}
	if cp.TelegramToken != "" {
		cp.TelegramToken = "***REDACTED***"
	}
	if cp.SMTPPassword != "" {
		cp.SMTPPassword = "***REDACTED***"
	}
	return cp
}

// source resolves a setting from the environment first, then the YAML file.
// Values that fail to parse are collected in errs.
type source struct {
	file map[string]string
	errs []error
}

// readFile flattens a YAML mapping into env-style keys:
// "poll_interval: 1m" answers IPWATCH_POLL_INTERVAL.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &domain.ConfigError{Field: "configFile", Reason: fmt.Sprintf("invalid YAML in %s: %v", path, err)}
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(k), "-", "_"))
		switch val := v.(type) {
		case nil:
			continue
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			values[key] = strings.Join(parts, ",")
		case map[string]any:
			return nil, &domain.ConfigError{Field: k, Reason: "nested sections are not supported"}
		default:
			values[key] = fmt.Sprint(val)
		}
	}
	return values, nil
}

func (s *source) lookup(key string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return s.file[key]
}

func (s *source) invalid(key, reason string) {
	s.errs = append(s.errs, &domain.ConfigError{Field: fieldName(key), Reason: reason})
}

// fieldName turns POLL_INTERVAL into pollInterval.
func fieldName(key string) string {
	parts := strings.Split(strings.ToLower(key), "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// helpers
func (s *source) getenv(key, def string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return def
}

func (s *source) getenvInt(key string, def int) int {
	v := s.lookup(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		s.invalid(key, fmt.Sprintf("invalid integer %q", v))
		return def
	}
	return i
}

func (s *source) mustBool(key string, def bool) bool {
	v := s.lookup(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		s.invalid(key, fmt.Sprintf("invalid boolean %q", v))
		return def
	}
	return b
}

func (s *source) mustDuration(key string, def time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		s.invalid(key, fmt.Sprintf("invalid duration %q", v))
		return def
	}
	return d
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
