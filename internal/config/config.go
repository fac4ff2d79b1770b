package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Log      LogConfig       `mapstructure:"log"`
	MySQL    MySQLConfig     `mapstructure:"mysql"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Kafka    KafkaConfig     `mapstructure:"kafka"`
	Storage  StorageConfig   `mapstructure:"storage"`
	Auth     AuthConfig      `mapstructure:"auth"`
	Captcha  CaptchaConfig   `mapstructure:"captcha"`
	Business BusinessConfig  `mapstructure:"business"`
	Channels []ChannelConfig `mapstructure:"channels"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	PublicBaseURL  string   `mapstructure:"public_base_url"` // 客户支付链接前缀
	TrustedProxies []string `mapstructure:"trusted_proxies"` // 为空时只信任 RemoteAddr，忽略 X-Forwarded-For
}

type LogConfig struct {
	Mode       string `mapstructure:"mode"` // debug 输出到控制台，其它写文件
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"` // silent / error / warn / info
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	OrderEvent string `mapstructure:"order_event"`
}

type StorageConfig struct {
	Dir               string   `mapstructure:"dir"`
	URLPrefix         string   `mapstructure:"url_prefix"`
	MaxSize           int64    `mapstructure:"max_size"`
	AllowedTypes      []string `mapstructure:"allowed_types"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

type AuthConfig struct {
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"` // bcrypt，优先于 password
	SecretKey    string `mapstructure:"secret_key"`
	ExpireHours  int    `mapstructure:"expire_hours"`
}

type CaptchaConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Width         int  `mapstructure:"width"`
	Height        int  `mapstructure:"height"`
	NoiseCount    int  `mapstructure:"noise_count"`
	MaxStore      int  `mapstructure:"max_store"`
	ExpireSeconds int  `mapstructure:"expire_seconds"`
}

type BusinessConfig struct {
	MaxRetryCount int    `mapstructure:"max_retry_count"`
	AutoReset     bool   `mapstructure:"auto_reset"`
	ResetCron     string `mapstructure:"reset_cron"`
	ResetScope    string `mapstructure:"reset_scope"`
	Timezone      string `mapstructure:"timezone"`
}

// ChannelConfig 支付通道，对应一组收款码
type ChannelConfig struct {
	ID   string `mapstructure:"id" json:"id"`
	Name string `mapstructure:"name" json:"name"`
	Hint string `mapstructure:"hint" json:"hint"`
	Dual bool   `mapstructure:"dual" json:"dual"`
}

// Arity 通道需要同时分配的收款码数量
func (c ChannelConfig) Arity() int {
	if c.Dual {
		return 2
	}
	return 1
}

// Channel 按 ID 查找通道
func (c *Config) Channel(id string) (ChannelConfig, bool) {
	id = strings.TrimSpace(id)
	for _, ch := range c.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

var defaultChannels = []ChannelConfig{
	{
		ID:   "alipay",
		Name: "支付宝 (Alipay)",
		Hint: "平台采用第三方资金代收，当前通道为支付宝通道，请转入正确金额并截图上传支付凭证，如当前通道受限，请切换备用通道或更换其他支付方式。",
		Dual: true,
	},
	{
		ID:   "wechat",
		Name: "微信支付 (WeChat)",
		Hint: "平台采用第三方资金代收，当前通道为微信通道，请扫码添加好友并转账后截图上传支付凭证，请勿向收款账号发送任何信息，如当前通道受限，请切换备用通道或更换其他支付方式。",
		Dual: true,
	},
	{
		ID:   "usdt",
		Name: "USDT (TRC20)",
		Hint: "当前仅支持 TRC20 网络转账。转账金额需与工单显示金额完全一致，转账后请立即截图并上传支付凭证。",
		Dual: false,
	},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.public_base_url", "http://localhost:8080")

	v.SetDefault("log.mode", "release")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.compress", true)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.database", "qrcollect")
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.log_level", "warn")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic.order_event", "qrcollect.order_event")

	v.SetDefault("storage.dir", "uploads")
	v.SetDefault("storage.url_prefix", "/uploads")
	v.SetDefault("storage.max_size", 10*1024*1024)
	v.SetDefault("storage.allowed_types", []string{"image/png", "image/jpeg", "image/gif", "image/webp"})
	v.SetDefault("storage.allowed_extensions", []string{".png", ".jpg", ".jpeg", ".gif", ".webp"})

	v.SetDefault("auth.expire_hours", 24)

	v.SetDefault("captcha.enabled", true)
	v.SetDefault("captcha.width", 240)
	v.SetDefault("captcha.height", 80)
	v.SetDefault("captcha.noise_count", 0)
	v.SetDefault("captcha.max_store", 10240)
	v.SetDefault("captcha.expire_seconds", 300)

	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.auto_reset", false)
	v.SetDefault("business.reset_cron", "0 0 * * *")
	v.SetDefault("business.reset_scope", "active")
	v.SetDefault("business.timezone", "Asia/Shanghai")
}

// LoadConfig 加载配置文件，configPath 为空时只使用默认值和环境变量
//
// 环境变量前缀 QRCOLLECT_，层级用下划线分隔，例如 QRCOLLECT_MYSQL_HOST
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QRCOLLECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if len(cfg.Channels) == 0 {
		cfg.Channels = append([]ChannelConfig(nil), defaultChannels...)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	seen := make(map[string]struct{}, len(c.Channels))
	for _, ch := range c.Channels {
		if strings.TrimSpace(ch.ID) == "" {
			return fmt.Errorf("通道 ID 不能为空")
		}
		if _, ok := seen[ch.ID]; ok {
			return fmt.Errorf("通道 ID 重复: %s", ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}
	if strings.TrimSpace(c.Auth.SecretKey) == "" {
		return fmt.Errorf("auth.secret_key 未配置")
	}
	if c.Auth.Password == "" && c.Auth.PasswordHash == "" {
		return fmt.Errorf("auth.password 或 auth.password_hash 至少配置一项")
	}
	return nil
}
