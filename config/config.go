package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/remibonds525-star/loyalty-engine/logging"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	JWT         JWTConfig      `mapstructure:"jwt"`
	Logging     logging.Config `mapstructure:"logging"`
	Quota       QuotaConfig    `mapstructure:"quota"`
	Games       GamesConfig    `mapstructure:"games"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	EnableCORS   bool          `mapstructure:"enable_cors"`
}

// StorageConfig selects the backing store for wallets, quotas and the pool.
// Backend is "memory" or "redis".
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled       bool              `mapstructure:"enabled"`
	Brokers       []string          `mapstructure:"brokers"`
	ConsumerGroup string            `mapstructure:"consumer_group"`
	Topics        map[string]string `mapstructure:"topics"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// QuotaConfig holds daily free-play quota configuration.
// Timezone is the IANA name used to derive the day key for every user.
type QuotaConfig struct {
	Timezone   string      `mapstructure:"timezone"`
	TierLimits map[int]int `mapstructure:"tier_limits"`
}

// GamesConfig holds per-game tunables
type GamesConfig struct {
	Saw     SawConfig     `mapstructure:"saw"`
	Mines   MinesConfig   `mapstructure:"mines"`
	Jackpot JackpotConfig `mapstructure:"jackpot"`
	Daily   DailyConfig   `mapstructure:"daily"`
}

// SawConfig holds saw game configuration
type SawConfig struct {
	Cost int64 `mapstructure:"cost"`
	Tax  int64 `mapstructure:"tax"`
}

// MinesConfig holds job site game configuration
type MinesConfig struct {
	Cost       int64 `mapstructure:"cost"`
	CellReward int64 `mapstructure:"cell_reward"`
}

// JackpotConfig holds jackpot pool configuration
type JackpotConfig struct {
	BaseValue   int64 `mapstructure:"base_value"`
	LuckyNumber int   `mapstructure:"lucky_number"`
	RollSpace   int   `mapstructure:"roll_space"`
}

// DailyConfig holds daily spin configuration
type DailyConfig struct {
	Prizes []int64 `mapstructure:"prizes"`
}

// Load loads configuration from YAML file using Viper
func Load(filename string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(filename)
	v.SetConfigType("yaml")

	// Enable environment variable substitution
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set defaults
	config.setDefaults()

	return &config, nil
}

// LoadByEnv loads configuration based on environment using Viper
func LoadByEnv(configDir string) (*Config, error) {
	v := viper.New()

	// Set config search paths
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	// Get environment
	env := viper.GetString("ENV")
	if env == "" {
		env = viper.GetString("APP_ENV")
	}
	if env == "" {
		env = "development"
	}

	v.SetConfigName(fmt.Sprintf("config-%s", env))
	v.SetConfigType("yaml")

	// Enable environment variable substitution
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.setDefaults()

	return &config, nil
}

// Default returns a configuration with all defaults applied and no file read.
// Useful for tests and local development without a config file.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// setDefaults sets default values for missing configuration
func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Quota.Timezone == "" {
		c.Quota.Timezone = "UTC"
	}
	if c.Quota.TierLimits == nil {
		c.Quota.TierLimits = map[int]int{0: 1, 1: 3, 2: 5}
	}
	if c.Games.Saw.Cost == 0 {
		c.Games.Saw.Cost = 20
	}
	if c.Games.Saw.Tax == 0 {
		c.Games.Saw.Tax = 1
	}
	if c.Games.Mines.Cost == 0 {
		c.Games.Mines.Cost = 25
	}
	if c.Games.Mines.CellReward == 0 {
		c.Games.Mines.CellReward = 25
	}
	if c.Games.Jackpot.BaseValue == 0 {
		c.Games.Jackpot.BaseValue = 10000
	}
	if c.Games.Jackpot.LuckyNumber == 0 {
		c.Games.Jackpot.LuckyNumber = 7777
	}
	if c.Games.Jackpot.RollSpace == 0 {
		c.Games.Jackpot.RollSpace = 100000
	}
	if len(c.Games.Daily.Prizes) == 0 {
		c.Games.Daily.Prizes = []int64{0, 10, 10, 10, 50, 50, 100}
	}
}

// GetAddr returns Redis address
func (c *RedisConfig) GetAddr() string {
	return c.Addr
}

// IsDevelopment returns true if environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// IsProduction returns true if environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
