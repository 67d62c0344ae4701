package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mbeoliero/chatsync/pkg/constant"
	"github.com/spf13/viper"
)

// Transport names
const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

// Config holds all configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Transport string          `mapstructure:"transport"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
}

// ServerConfig holds backend endpoint configuration
type ServerConfig struct {
	BaseURL string `mapstructure:"base_url"`
	WSURL   string `mapstructure:"ws_url"`
	Mode    string `mapstructure:"mode"`
}

// AuthConfig holds the local identity
type AuthConfig struct {
	Token      string `mapstructure:"token"`
	UserId     string `mapstructure:"user_id"`
	PlatformId int    `mapstructure:"platform_id"`
	Secret     string `mapstructure:"secret"` // optional, verifies the token locally when set
}

// WebSocketConfig holds WebSocket client configuration
type WebSocketConfig struct {
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
}

// RedisConfig holds Redis configuration for the pub/sub transport
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SyncConfig holds engine timings
type SyncConfig struct {
	TypingTimeout  time.Duration `mapstructure:"typing_timeout"`
	TypingDebounce time.Duration `mapstructure:"typing_debounce"`
	HistoryLimit   int           `mapstructure:"history_limit"`
	SignalTimeout  time.Duration `mapstructure:"signal_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ReconnectConfig holds the caller-side reconnect policy used by the CLI
type ReconnectConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// Global config instance
var GlobalConfig *Config

// Load loads configuration from file. CHATSYNC_* environment variables override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CHATSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows; bind the rest so
	// keys absent from the file can still come from the environment
	for _, key := range configKeys(reflect.TypeOf(Config{}), "") {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// configKeys lists the dotted mapstructure keys of every leaf field of t
func configKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + tag
		if f.Type.Kind() == reflect.Struct {
			keys = append(keys, configKeys(f.Type, key+".")...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func (cfg *Config) setDefaults() error {
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8080"
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	if cfg.Server.WSURL == "" {
		ws := strings.Replace(cfg.Server.BaseURL, "https://", "wss://", 1)
		ws = strings.Replace(ws, "http://", "ws://", 1)
		cfg.Server.WSURL = ws + "/ws"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Auth.PlatformId == 0 {
		cfg.Auth.PlatformId = constant.PlatformIdWeb
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportWebSocket
	}
	if cfg.Transport != TransportWebSocket && cfg.Transport != TransportRedis {
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if cfg.WebSocket.DialTimeout == 0 {
		cfg.WebSocket.DialTimeout = 10 * time.Second
	}
	if cfg.WebSocket.WriteWait == 0 {
		cfg.WebSocket.WriteWait = 10 * time.Second
	}
	if cfg.WebSocket.PongWait == 0 {
		cfg.WebSocket.PongWait = 30 * time.Second
	}
	if cfg.WebSocket.PingPeriod == 0 {
		cfg.WebSocket.PingPeriod = (cfg.WebSocket.PongWait * 9) / 10
	}
	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 51200
	}
	if cfg.WebSocket.WriteChannelSize == 0 {
		cfg.WebSocket.WriteChannelSize = 256
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "chatsync:"
	}
	if cfg.Sync.TypingTimeout == 0 {
		cfg.Sync.TypingTimeout = constant.DefaultTypingTimeout
	}
	if cfg.Sync.TypingDebounce == 0 {
		cfg.Sync.TypingDebounce = constant.DefaultTypingDebounce
	}
	if cfg.Sync.HistoryLimit == 0 {
		cfg.Sync.HistoryLimit = constant.DefaultHistoryLimit
	}
	if cfg.Sync.SignalTimeout == 0 {
		cfg.Sync.SignalTimeout = 5 * time.Second
	}
	if cfg.Sync.RequestTimeout == 0 {
		cfg.Sync.RequestTimeout = 30 * time.Second
	}
	if cfg.Reconnect.BaseDelay == 0 {
		cfg.Reconnect.BaseDelay = 1 * time.Second
	}
	if cfg.Reconnect.MaxDelay == 0 {
		cfg.Reconnect.MaxDelay = 30 * time.Second
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect.MaxAttempts = 10
	}
	return nil
}
