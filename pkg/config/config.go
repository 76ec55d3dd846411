package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	MaxWorkers   int           `mapstructure:"max_workers"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
}

type DispatcherConfig struct {
	MaxWorkers     int           `mapstructure:"max_workers"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffFactor  int           `mapstructure:"backoff_factor"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

type ScanConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Host                  string        `mapstructure:"host"`
	Port                  int           `mapstructure:"port"`
	Database              string        `mapstructure:"database"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	MaxConnections        int           `mapstructure:"max_connections"`
	MaxIdleConnections    int           `mapstructure:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
}

type ServerConfig struct {
	IP             string        `mapstructure:"ip"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 设置默认值
	viper.SetDefault("scheduler.tick_interval", "30s")
	viper.SetDefault("scheduler.max_workers", 5)
	viper.SetDefault("scheduler.run_timeout", "30m")

	viper.SetDefault("dispatcher.max_workers", 8)
	viper.SetDefault("dispatcher.max_attempts", 3)
	viper.SetDefault("dispatcher.backoff_base", "1s")
	viper.SetDefault("dispatcher.backoff_factor", 5)
	viper.SetDefault("dispatcher.attempt_timeout", "10s")

	viper.SetDefault("scan.base_url", "http://localhost:8090")
	viper.SetDefault("scan.timeout", "5m")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.max_connections", 20)
	viper.SetDefault("database.max_idle_connections", 10)
	viper.SetDefault("database.connection_max_lifetime", "1h")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.max_header_bytes", 1048576)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	// 读取配置文件（文件不存在时使用默认值）
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
