package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
}

type WSConfig struct {
	Addr         string        `mapstructure:"addr"`
	Path         string        `mapstructure:"path"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// AllowedOrigins is passed to the websocket acceptor; "*" accepts any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RulesConfig struct {
	Engine string `mapstructure:"engine"` // permissive | standard
}

type MessagesConfig struct {
	Locale string `mapstructure:"locale"`
	Dir    string `mapstructure:"dir"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	ToConsole bool   `mapstructure:"to_console"`
	ToFile    bool   `mapstructure:"to_file"`
	File      string `mapstructure:"file"`
	Caller    bool   `mapstructure:"caller"`
}

// AppConfig is the whole server configuration. Every key maps to an
// environment variable with dots replaced by underscores (ws.addr → WS_ADDR).
type AppConfig struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	WS       WSConfig       `mapstructure:"ws"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Messages MessagesConfig `mapstructure:"messages"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Log      LogConfig      `mapstructure:"log"`
}

// Load reads defaults, an optional YAML file named by CONFIG_FILE, then the environment.
func Load() (*AppConfig, error) {
	return LoadFile(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
}

// LoadFile is Load with an explicit config path; empty means none.
func LoadFile(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindAliases(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":3000")
	v.SetDefault("http.static_dir", "public")

	v.SetDefault("ws.addr", ":3001")
	v.SetDefault("ws.path", "/ws")
	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("ws.ping_interval", "25s")
	v.SetDefault("ws.allowed_origins", []string{"*"})

	v.SetDefault("rules.engine", "permissive")

	v.SetDefault("messages.locale", "en")
	v.SetDefault("messages.dir", "")

	v.SetDefault("redis.url", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", true)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "rooms.results")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", "5s")
	v.SetDefault("webhook.retries", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "legacy")
	v.SetDefault("log.to_console", true)
	v.SetDefault("log.to_file", false)
	v.SetDefault("log.file", "logs/rooms.log")
	v.SetDefault("log.caller", false)
}

// Short environment names kept for deployments that predate the nested keys.
var envAliases = map[string][]string{
	"http.static_dir":    {"HTTP_STATIC_DIR", "STATIC_DIR"},
	"ws.send_buffer":     {"WS_SEND_BUFFER", "SEND_BUFFER"},
	"ws.allowed_origins": {"WS_ALLOWED_ORIGINS", "ALLOWED_ORIGINS"},
	"messages.dir":       {"MESSAGES_DIR"},
	"webhook.url":        {"WEBHOOK_URL", "RESULT_WEBHOOK_URL"},
}

func bindAliases(v *viper.Viper) error {
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("binding env for %s: %w", key, err)
		}
	}
	return nil
}

func (c *AppConfig) normalize() {
	c.Rules.Engine = strings.ToLower(strings.TrimSpace(c.Rules.Engine))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Messages.Locale = strings.ToLower(strings.TrimSpace(c.Messages.Locale))
	c.Redis.URL = strings.TrimSpace(c.Redis.URL)
	c.Database.URL = strings.TrimSpace(c.Database.URL)
	c.NATS.URL = strings.TrimSpace(c.NATS.URL)
	c.Webhook.URL = strings.TrimSpace(c.Webhook.URL)

	// Env values arrive as one comma-separated string.
	var origins []string
	for _, o := range c.WS.AllowedOrigins {
		for _, p := range strings.Split(o, ",") {
			if s := strings.TrimSpace(p); s != "" {
				origins = append(origins, s)
			}
		}
	}
	c.WS.AllowedOrigins = origins
}

// Validate reports every violation at once.
func (c AppConfig) Validate() error {
	var errs []string
	if c.HTTP.Addr == "" {
		errs = append(errs, "http.addr must not be empty")
	}
	if c.WS.Addr == "" {
		errs = append(errs, "ws.addr must not be empty")
	}
	if c.HTTP.Addr != "" && c.HTTP.Addr == c.WS.Addr {
		errs = append(errs, "http.addr and ws.addr must differ")
	}
	if !strings.HasPrefix(c.WS.Path, "/") {
		errs = append(errs, fmt.Sprintf("ws.path must start with /, got %q", c.WS.Path))
	}
	if c.WS.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("ws.send_buffer must be >= 1, got %d", c.WS.SendBuffer))
	}
	if c.WS.PingInterval < 0 {
		errs = append(errs, "ws.ping_interval must not be negative")
	}
	if c.Rules.Engine != "permissive" && c.Rules.Engine != "standard" {
		errs = append(errs, fmt.Sprintf("rules.engine must be one of [permissive, standard], got %q", c.Rules.Engine))
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"legacy": true, "json": true, "console": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [legacy, json, console], got %q", c.Log.Format))
	}
	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		errs = append(errs, "redis.url must use redis:// or rediss://")
	}
	if c.NATS.URL != "" && strings.TrimSpace(c.NATS.Subject) == "" {
		errs = append(errs, "nats.subject must not be empty when nats.url is set")
	}
	if c.Webhook.Retries < 0 {
		errs = append(errs, "webhook.retries must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
