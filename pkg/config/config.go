package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"katydid-common-validation/pkg/logger"
)

// EnvPrefix 环境变量前缀，例如 VALIDATIOND_SERVER_ADDR
const EnvPrefix = "VALIDATIOND"

// 派发方式
const (
	DispatchAsync  = "async"
	DispatchManual = "manual"
)

// 交接存储驱动
const (
	HandoffNone  = "none"
	HandoffRedis = "redis"
	HandoffGorm  = "gorm"
)

// Config 服务配置
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     logger.Config `mapstructure:"log"`
	Session SessionConfig `mapstructure:"session"`
	Handoff HandoffConfig `mapstructure:"handoff"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr      string `mapstructure:"addr" validate:"required"`
	Mode      string `mapstructure:"mode" validate:"oneof=debug release test"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	MaxSessions   int           `mapstructure:"max_sessions" validate:"gte=1,lte=100000"`
	Dispatch      string        `mapstructure:"dispatch" validate:"oneof=async manual"`
	FlushInterval time.Duration `mapstructure:"flush_interval" validate:"gt=0"`
}

// HandoffConfig 交接存储配置
type HandoffConfig struct {
	Driver string        `mapstructure:"driver" validate:"oneof=none redis gorm"`
	TTL    time.Duration `mapstructure:"ttl" validate:"gte=0"`
	Redis  RedisConfig   `mapstructure:"redis"`
	Gorm   GormConfig    `mapstructure:"gorm"`
}

// RedisConfig redis 连接
type RedisConfig struct {
	Addr      string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
	Enabled   bool   `mapstructure:"-"`
}

// GormConfig 数据库连接
type GormConfig struct {
	Dialect string `mapstructure:"dialect" validate:"oneof=sqlite mysql postgres"`
	DSN     string `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Enabled bool   `mapstructure:"-"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatJSON)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", false)

	v.SetDefault("session.max_sessions", 1000)
	v.SetDefault("session.dispatch", DispatchAsync)
	v.SetDefault("session.flush_interval", 50*time.Millisecond)

	v.SetDefault("handoff.driver", HandoffNone)
	v.SetDefault("handoff.ttl", 5*time.Minute)
	v.SetDefault("handoff.redis.addr", "")
	v.SetDefault("handoff.redis.password", "")
	v.SetDefault("handoff.redis.db", 0)
	v.SetDefault("handoff.redis.key_prefix", "")
	v.SetDefault("handoff.gorm.dialect", "sqlite")
	v.SetDefault("handoff.gorm.dsn", "")
}

// Load 读取配置，path 为空时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	c.Handoff.Redis.Enabled = c.Handoff.Driver == HandoffRedis
	c.Handoff.Gorm.Enabled = c.Handoff.Driver == HandoffGorm

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
