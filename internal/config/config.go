package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port     int `mapstructure:"port"`
	WorkerID int `mapstructure:"worker_id"`
}

const (
	StoreBackendGorm   = "gorm"
	StoreBackendMemory = "memory"
)

// StoreConfig 选择存储后端：gorm（MySQL/Postgres）或 memory（单进程内存存储）
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN 根据驱动拼接连接串
func (c *DatabaseConfig) DSN() string {
	if c.Driver == DriverPostgres {
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	MarketEvents string `mapstructure:"market_events"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type BusinessConfig struct {
	RondListingFee      int64           `mapstructure:"rond_listing_fee"`
	LockTTLSeconds      int             `mapstructure:"lock_ttl_seconds"`
	LockRetryIntervalMs int             `mapstructure:"lock_retry_interval_ms"`
	LockMaxRetries      int             `mapstructure:"lock_max_retries"`
	MaxRetryCount       int             `mapstructure:"max_retry_count"`
	ReconcileSpec       string          `mapstructure:"reconcile_spec"`
	DefaultPackages     []PackageConfig `mapstructure:"default_packages"`
}

// PackageConfig 默认套餐，套餐表为空时写入
type PackageConfig struct {
	Name         string `mapstructure:"name"`
	Price        int64  `mapstructure:"price"`
	DurationDays int    `mapstructure:"duration_days"`
	ListingLimit int    `mapstructure:"listing_limit"`
	Description  string `mapstructure:"description"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("store.backend", StoreBackendGorm)
	v.SetDefault("database.driver", DriverMySQL)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("kafka.topic.market_events", "sim_market_events")
	v.SetDefault("log.level", "info")
	v.SetDefault("business.rond_listing_fee", 5000)
	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("business.lock_retry_interval_ms", 100)
	v.SetDefault("business.lock_max_retries", 30)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.reconcile_spec", "@every 5m")
}

// Load 加载配置文件，环境变量 MARKET_* 覆盖文件中的值
// 例如 MARKET_DATABASE_HOST 覆盖 database.host
func Load(configPath string) (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreBackendGorm, StoreBackendMemory:
	default:
		return fmt.Errorf("不支持的存储后端: %s", c.Store.Backend)
	}
	if c.Store.Backend == StoreBackendGorm {
		switch c.Database.Driver {
		case DriverMySQL, DriverPostgres:
		default:
			return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
		}
	}
	if c.Business.RondListingFee < 0 {
		return fmt.Errorf("rond_listing_fee 不能为负数")
	}
	return nil
}
