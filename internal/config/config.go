package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultOrigin          = "http://localhost:8080"
	defaultAPIPath         = "/api/v1"
	defaultPushPath        = "/ws"
	defaultReconnectDelay  = 3 * time.Second
	defaultPingInterval    = 30 * time.Second
	defaultRequestTimeout  = 10 * time.Second
	defaultResyncInterval  = 5 * time.Second
	defaultToastDuration   = 3 * time.Second
	defaultMirrorAddr      = ":8099"
	defaultDevServerAddr   = ":8080"
	defaultDevServerDBPath = "deploysync-dev.db"
)

// Config stores runtime settings. Values come from defaults, then an optional
// YAML file, then environment variables.
type Config struct {
	Origin            string
	APIPath           string
	PushPath          string
	Token             string
	ReconnectDelay    time.Duration
	PingInterval      time.Duration
	RequestTimeout    time.Duration
	ResyncOnReconnect bool
	ResyncInterval    time.Duration
	ToastDuration     time.Duration
	LogLevel          slog.Level
	MirrorAddr        string
	DevServerAddr     string
	DevServerDBPath   string
}

// fileConfig is the YAML form. Durations are strings such as "3s".
type fileConfig struct {
	Origin            string `yaml:"origin"`
	APIPath           string `yaml:"api_path"`
	PushPath          string `yaml:"push_path"`
	Token             string `yaml:"token"`
	ReconnectDelay    string `yaml:"reconnect_delay"`
	PingInterval      string `yaml:"ping_interval"`
	RequestTimeout    string `yaml:"request_timeout"`
	ResyncOnReconnect *bool  `yaml:"resync_on_reconnect"`
	ResyncInterval    string `yaml:"resync_interval"`
	ToastDuration     string `yaml:"toast_duration"`
	LogLevel          string `yaml:"log_level"`
	MirrorAddr        string `yaml:"mirror_addr"`
	DevServerAddr     string `yaml:"devserver_addr"`
	DevServerDBPath   string `yaml:"devserver_db_path"`
}

func Default() Config {
	return Config{
		Origin:            defaultOrigin,
		APIPath:           defaultAPIPath,
		PushPath:          defaultPushPath,
		ReconnectDelay:    defaultReconnectDelay,
		PingInterval:      defaultPingInterval,
		RequestTimeout:    defaultRequestTimeout,
		ResyncOnReconnect: true,
		ResyncInterval:    defaultResyncInterval,
		ToastDuration:     defaultToastDuration,
		LogLevel:          slog.LevelInfo,
		MirrorAddr:        defaultMirrorAddr,
		DevServerAddr:     defaultDevServerAddr,
		DevServerDBPath:   defaultDevServerDBPath,
	}
}

// Load builds Config. An empty path skips the YAML file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	origin, err := NormalizeOrigin(cfg.Origin)
	if err != nil {
		return Config{}, err
	}
	cfg.Origin = origin
	cfg.APIPath = normalizePath(cfg.APIPath, defaultAPIPath)
	cfg.PushPath = normalizePath(cfg.PushPath, defaultPushPath)
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	c.Origin = pick(file.Origin, c.Origin)
	c.APIPath = pick(file.APIPath, c.APIPath)
	c.PushPath = pick(file.PushPath, c.PushPath)
	c.Token = pick(file.Token, c.Token)
	c.MirrorAddr = pick(file.MirrorAddr, c.MirrorAddr)
	c.DevServerAddr = pick(file.DevServerAddr, c.DevServerAddr)
	c.DevServerDBPath = pick(file.DevServerDBPath, c.DevServerDBPath)
	if file.LogLevel != "" {
		c.LogLevel = parseLogLevel(file.LogLevel)
	}
	if file.ResyncOnReconnect != nil {
		c.ResyncOnReconnect = *file.ResyncOnReconnect
	}

	durations := []struct {
		key  string
		raw  string
		dst  *time.Duration
		zero bool
	}{
		{"reconnect_delay", file.ReconnectDelay, &c.ReconnectDelay, false},
		{"ping_interval", file.PingInterval, &c.PingInterval, true},
		{"request_timeout", file.RequestTimeout, &c.RequestTimeout, false},
		{"resync_interval", file.ResyncInterval, &c.ResyncInterval, true},
		{"toast_duration", file.ToastDuration, &c.ToastDuration, true},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		value, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil || value < 0 || (value == 0 && !d.zero) {
			return fmt.Errorf("invalid %s %q", d.key, d.raw)
		}
		*d.dst = value
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Origin = getenv("DEPLOYSYNC_ORIGIN", c.Origin)
	c.APIPath = getenv("DEPLOYSYNC_API_PATH", c.APIPath)
	c.PushPath = getenv("DEPLOYSYNC_PUSH_PATH", c.PushPath)
	c.Token = getenv("DEPLOYSYNC_TOKEN", c.Token)
	c.ReconnectDelay = parseDuration("DEPLOYSYNC_RECONNECT_DELAY", c.ReconnectDelay)
	c.PingInterval = parseDuration("DEPLOYSYNC_PING_INTERVAL", c.PingInterval)
	c.RequestTimeout = parseDuration("DEPLOYSYNC_REQUEST_TIMEOUT", c.RequestTimeout)
	c.ResyncOnReconnect = parseBool("DEPLOYSYNC_RESYNC_ON_RECONNECT", c.ResyncOnReconnect)
	c.ResyncInterval = parseDuration("DEPLOYSYNC_RESYNC_INTERVAL", c.ResyncInterval)
	c.ToastDuration = parseDuration("DEPLOYSYNC_TOAST_DURATION", c.ToastDuration)
	if raw, ok := os.LookupEnv("LOG_LEVEL"); ok && strings.TrimSpace(raw) != "" {
		c.LogLevel = parseLogLevel(raw)
	}
	c.MirrorAddr = getenv("HTTP_ADDR", c.MirrorAddr)
	c.DevServerAddr = getenv("DEPLOYSYNC_DEVSERVER_ADDR", c.DevServerAddr)
	c.DevServerDBPath = getenv("DB_PATH", c.DevServerDBPath)
}

// APIBaseURL is the REST root, for example "https://chklst.example/api/v1".
func (c Config) APIBaseURL() string {
	return c.Origin + c.APIPath
}

// DBDir returns the target directory for DevServerDBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DevServerDBPath)
}

// NormalizeOrigin reduces raw to "scheme://host[:port]". A bare host gets the
// http scheme; paths, queries and trailing slashes are dropped.
func NormalizeOrigin(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("origin is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", raw, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("invalid origin %q: scheme must be http or https", raw)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", fmt.Errorf("invalid origin %q: missing host", raw)
	}
	return scheme + "://" + parsed.Host, nil
}

func normalizePath(raw, fallback string) string {
	path := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if path == "" {
		return fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func pick(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func parseBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
