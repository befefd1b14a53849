package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Slaves   SlavesConfig   `mapstructure:"slaves"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Events   EventsConfig   `mapstructure:"events"`

	// 实际加载的配置文件, 供热加载使用
	File string `mapstructure:"-"`
}

// TelegramConfig Telegram 主平台配置
type TelegramConfig struct {
	BotToken    string  `mapstructure:"bot_token"`
	Admins      []int64 `mapstructure:"admins"` // 允许操作 bot 的用户 ID
	Debug       bool    `mapstructure:"debug"`
	PollTimeout int     `mapstructure:"poll_timeout"` // 长轮询超时 (秒)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`

	// 文件日志保留时长 (按天切分)
	MaxAge time.Duration `mapstructure:"max_age"`
}

// HTTPConfig 管理接口配置
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"` // debug, release
	// Token 管理接口 Bearer 令牌, 为空时不校验
	Token string `mapstructure:"token"`
}

// SlavesConfig 远程从通道配置
type SlavesConfig struct {
	// channel id → websocket 接入令牌
	Tokens map[string]string `mapstructure:"tokens"`

	// 等待远端 result 帧的超时
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// EventsConfig 桥接事件输出
type EventsConfig struct {
	// Journal 写入 ~/.ngobridge/logs/events.jsonl
	Journal bool `mapstructure:"journal"`

	// AMQPURL 非空时把事件转发到 RabbitMQ
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
}

// Notification policies for relay.your_message_on_slave / relay.message_muted_on_slave.
const (
	PolicyNormal = "normal"
	PolicySilent = "silent"
	PolicyMute   = "mute"
)

// Destination cache modes for relay.send_to_last_chat.
const (
	CacheEnabled  = "enabled"
	CacheWarn     = "warn"
	CacheDisabled = "disabled"
)

// RelayConfig 转发行为开关, 可热加载
type RelayConfig struct {
	MultipleSlaveChats    bool          `mapstructure:"multiple_slave_chats" yaml:"multiple_slave_chats"`
	PreventMessageRemoval bool          `mapstructure:"prevent_message_removal" yaml:"prevent_message_removal"`
	YourMessageOnSlave    string        `mapstructure:"your_message_on_slave" yaml:"your_message_on_slave"`
	MessageMutedOnSlave   string        `mapstructure:"message_muted_on_slave" yaml:"message_muted_on_slave"`
	SendToLastChat        string        `mapstructure:"send_to_last_chat" yaml:"send_to_last_chat"`
	DeleteFlag            string        `mapstructure:"delete_flag" yaml:"delete_flag"`
	FallbackChat          string        `mapstructure:"fallback_chat" yaml:"fallback_chat"`
	InboundQueueSize      int           `mapstructure:"inbound_queue_size" yaml:"inbound_queue_size"`
	WriteQueueSize        int           `mapstructure:"write_queue_size" yaml:"write_queue_size"`
	DestinationCacheSize  int           `mapstructure:"destination_cache_size" yaml:"destination_cache_size"`
	DestinationCacheTTL   time.Duration `mapstructure:"destination_cache_ttl" yaml:"destination_cache_ttl"`
	SuggestionTTL         time.Duration `mapstructure:"suggestion_ttl" yaml:"suggestion_ttl"`
}

// DefaultRelayConfig 默认转发开关
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		MultipleSlaveChats:    false,
		PreventMessageRemoval: true,
		YourMessageOnSlave:    PolicySilent,
		MessageMutedOnSlave:   PolicyNormal,
		SendToLastChat:        CacheWarn,
		DeleteFlag:            "rm`",
		InboundQueueSize:      256,
		WriteQueueSize:        1024,
		DestinationCacheSize:  20,
		DestinationCacheTTL:   time.Hour,
		SuggestionTTL:         10 * time.Minute,
	}
}

// Load 加载配置
func Load() (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 优先级 (低 → 高): 默认值 → 全局 ~/.ngobridge/ → 项目本地 → 环境变量
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(HomeDir())

	file := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read global config: %w", err)
		}
	} else {
		file = v.ConfigFileUsed()
	}

	// 项目本地配置: ./config/config.yaml 或 ./config.yaml, 只取第一个
	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
				file = localPath
			}
			break
		}
	}

	// 环境变量覆盖
	v.SetEnvPrefix("NGOBRIDGE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = file
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = filepath.Join(HomeDir(), "bridge.db")
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	cfg.Relay.normalize(cfg.Telegram.Admins)

	return &cfg, nil
}

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper) {
	// Telegram 默认值
	v.SetDefault("telegram.poll_timeout", 60)

	// Database 默认值
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", filepath.Join(HomeDir(), "bridge.db"))

	// Log 默认值
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_age", "168h")

	// 管理接口默认值
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.host", "127.0.0.1")
	v.SetDefault("http.port", 18790)
	v.SetDefault("http.mode", "release")

	v.SetDefault("slaves.request_timeout", "30s")

	v.SetDefault("events.journal", true)
	v.SetDefault("events.exchange", "ngobridge.events")

	// Relay 默认值
	d := DefaultRelayConfig()
	v.SetDefault("relay.multiple_slave_chats", d.MultipleSlaveChats)
	v.SetDefault("relay.prevent_message_removal", d.PreventMessageRemoval)
	v.SetDefault("relay.your_message_on_slave", d.YourMessageOnSlave)
	v.SetDefault("relay.message_muted_on_slave", d.MessageMutedOnSlave)
	v.SetDefault("relay.send_to_last_chat", d.SendToLastChat)
	v.SetDefault("relay.delete_flag", d.DeleteFlag)
	v.SetDefault("relay.inbound_queue_size", d.InboundQueueSize)
	v.SetDefault("relay.write_queue_size", d.WriteQueueSize)
	v.SetDefault("relay.destination_cache_size", d.DestinationCacheSize)
	v.SetDefault("relay.destination_cache_ttl", d.DestinationCacheTTL.String())
	v.SetDefault("relay.suggestion_ttl", d.SuggestionTTL.String())
}

// normalize 修正非法取值, 未配置的回退会话默认为第一个管理员
func (r *RelayConfig) normalize(admins []int64) {
	d := DefaultRelayConfig()

	switch r.YourMessageOnSlave {
	case PolicyNormal, PolicySilent, PolicyMute:
	default:
		r.YourMessageOnSlave = d.YourMessageOnSlave
	}
	switch r.MessageMutedOnSlave {
	case PolicyNormal, PolicySilent, PolicyMute:
	default:
		r.MessageMutedOnSlave = d.MessageMutedOnSlave
	}
	switch r.SendToLastChat {
	case CacheEnabled, CacheWarn, CacheDisabled:
	default:
		r.SendToLastChat = d.SendToLastChat
	}
	if r.FallbackChat == "" && len(admins) > 0 {
		r.FallbackChat = strconv.FormatInt(admins[0], 10)
	}
	if r.InboundQueueSize <= 0 {
		r.InboundQueueSize = d.InboundQueueSize
	}
	if r.WriteQueueSize <= 0 {
		r.WriteQueueSize = d.WriteQueueSize
	}
	if r.DestinationCacheSize <= 0 {
		r.DestinationCacheSize = d.DestinationCacheSize
	}
	if r.DestinationCacheTTL <= 0 {
		r.DestinationCacheTTL = d.DestinationCacheTTL
	}
	if r.SuggestionTTL <= 0 {
		r.SuggestionTTL = d.SuggestionTTL
	}
}
