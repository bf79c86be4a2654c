package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative part of the relay configuration, loaded from a
// YAML file. Routing profiles are read-only during a pipeline cycle; the
// file can be reloaded between cycles.
type Config struct {
	Logging  LoggingConfig           `yaml:"logging"`
	Telegram TelegramConfig          `yaml:"telegram"`
	Sources  map[string]SourceConfig `yaml:"sources"`
	Profiles map[string]ProfileSet   `yaml:"profiles"`
	Defaults DefaultsConfig          `yaml:"defaults"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelegramConfig struct {
	ControlChannelID int64   `yaml:"control_channel_id"`
	ErrorChannelID   string  `yaml:"error_channel_id"`
	AllowedUserIDs   []int64 `yaml:"allowed_user_ids"`
}

// SourceConfig describes one monitored content source: the page to open and
// the URL patterns whose network traffic carries opportunity payloads.
type SourceConfig struct {
	URL      string   `yaml:"url"`
	Include  []string `yaml:"include"`
	Exclude  []string `yaml:"exclude"`
	Profiles []string `yaml:"profiles"`
}

// ProfileSet maps profile-key -> channel profile for one platform.
type ProfileSet map[string]ChannelProfile

// ChannelProfile is one routing configuration entry.
type ChannelProfile struct {
	ChannelID      string            `yaml:"channel_id"`
	RequiredFields []string          `yaml:"required_fields"`
	Filters        FilterPredicates  `yaml:"filters"`
	UIFilterName   string            `yaml:"ui_filter_name"`
	Defaults       map[string]string `yaml:"defaults"`
}

// FilterPredicates are ANDed: a profile matches an alert only when every
// configured predicate holds.
type FilterPredicates struct {
	MinProfit  *float64 `yaml:"min_profit"`
	Sports     []string `yaml:"sports"`
	Bookmakers []string `yaml:"bookmakers"`
}

type DefaultsConfig struct {
	Notifications NotificationDefaults `yaml:"notifications"`
}

type NotificationDefaults struct {
	ErrorChannel string `yaml:"error_channel"`
}

// Load reads and parses the YAML configuration file.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ErrorChannel returns the configured fallback/error channel, preferring the
// telegram section over the legacy defaults block.
func (c *Config) ErrorChannel() string {
	if c.Telegram.ErrorChannelID != "" {
		return c.Telegram.ErrorChannelID
	}
	return c.Defaults.Notifications.ErrorChannel
}

// Profile returns the channel profile for (platform, key), if configured.
func (c *Config) Profile(platform, key string) (ChannelProfile, bool) {
	set, ok := c.Profiles[platform]
	if !ok {
		return ChannelProfile{}, false
	}
	p, ok := set[key]
	return p, ok
}

// Settings are the environment-driven tunables. Every option is optional and
// carries an explicit default.
type Settings struct {
	BotToken         string
	PollTimeoutSec   int
	SendMinInterval  time.Duration
	SupportChannelID string
	AllowedUserIDs   []int64

	LogLevel  string
	LogFormat string

	CaptureBufferSize   int
	CaptureOverflow     string // drop-oldest | drop-new
	CaptureSampleRate   float64
	CaptureMaxBodyBytes int
	CaptureSinkPath     string
	CaptureSinkFlush    bool
	CaptureSinkCompress bool

	SnapshotDir            string
	SnapshotRetentionHours int

	ProxyPool     string
	ProxyPoolFile string
	ProxySchemes  []string

	Headless       bool
	ScrapeInterval time.Duration
}

// LoadSettings reads all tunables from the environment, applying defaults.
func LoadSettings() Settings {
	return Settings{
		BotToken:         os.Getenv("TELEGRAM_BOT_TOKEN"),
		PollTimeoutSec:   envInt("TELEGRAM_POLL_TIMEOUT_SEC", 25),
		SendMinInterval:  envDuration("SEND_MIN_INTERVAL", 2*time.Second),
		SupportChannelID: os.Getenv("TELEGRAM_SUPPORT_CHANNEL_ID"),
		AllowedUserIDs:   envInt64List("TELEGRAM_ALLOWED_USER_IDS"),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "text"),

		CaptureBufferSize:   envInt("CAPTURE_BUFFER_SIZE", 512),
		CaptureOverflow:     envStr("CAPTURE_OVERFLOW_POLICY", "drop-oldest"),
		CaptureSampleRate:   envFloat("CAPTURE_SAMPLE_RATE", 1.0),
		CaptureMaxBodyBytes: envInt("CAPTURE_MAX_BODY_BYTES", 64*1024),
		CaptureSinkPath:     os.Getenv("CAPTURE_SINK_PATH"),
		CaptureSinkFlush:    envBool("CAPTURE_SINK_FLUSH_EVERY", false),
		CaptureSinkCompress: envBool("CAPTURE_SINK_COMPRESS", false),

		SnapshotDir:            envStr("SNAPSHOT_DIR", "logs/html"),
		SnapshotRetentionHours: envInt("SNAPSHOT_RETENTION_HOURS", 6),

		ProxyPool:     os.Getenv("PROXY_POOL"),
		ProxyPoolFile: os.Getenv("PROXY_POOL_FILE"),
		ProxySchemes:  envList("PROXY_SCHEMES", []string{"http", "https", "socks5"}),

		Headless:       envBool("BOT_HEADLESS", true),
		ScrapeInterval: envDuration("SCRAPE_INTERVAL", 5*time.Second),
	}
}

func envStr(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(name string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(name string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func envDuration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envInt64List(name string) []int64 {
	var out []int64
	for _, part := range strings.Split(os.Getenv(name), ",") {
		s := strings.TrimSpace(part)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func envList(name string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
