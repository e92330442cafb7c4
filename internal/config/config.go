// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	YouTube   YouTubeConfig
	Sources   SourcesConfig
	Scheduler SchedulerConfig
	Backfill  BackfillConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	Mode            string
	ShutdownTimeout time.Duration
	APIKeys         []string
}

// DatabaseConfig contains database connection configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	Host           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// URL returns the database URL in the form golang-migrate expects.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig contains the cache connection settings.
type RedisConfig struct {
	URL         string
	UpcomingKey string
	TTL         time.Duration
}

// RabbitMQConfig contains RabbitMQ connection and exchange configuration.
// Publishing is disabled when Host is empty.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Host     string
	User     string
	Password string
	Exchange string
	Port     int
}

// YouTubeConfig contains video catalogue settings.
type YouTubeConfig struct {
	APIKey    string
	Playlists []string
	Workers   int
}

// SourceConfig describes one upstream contest platform.
type SourceConfig struct {
	BaseURL string
	Timeout time.Duration
	Retries int
	Proxy   string
}

// SourcesConfig groups the upstream platforms.
type SourcesConfig struct {
	Codeforces SourceConfig
	CodeChef   SourceConfig
	LeetCode   SourceConfig
}

// SchedulerConfig controls the periodic jobs.
type SchedulerConfig struct {
	Interval   time.Duration
	RunOnStart bool
}

// BackfillConfig controls historical imports on an empty store.
type BackfillConfig struct {
	StopAfterExisting int
	PageSize          int
	MaxPages          int
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// MetricsConfig controls the worker's metrics listener.
type MetricsConfig struct {
	Port int
}

// Load loads configuration from file and environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma separated lists arrive as a single element from the environment.
	cfg.Server.APIKeys = splitList(cfg.Server.APIKeys)
	cfg.YouTube.Playlists = splitList(cfg.YouTube.Playlists)

	return &cfg, nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)
	viper.SetDefault("server.apikeys", []string{})

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "contests")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.minconnections", 2)
	viper.SetDefault("database.maxidletime", 10*time.Minute)
	viper.SetDefault("database.maxlifetime", 1*time.Hour)

	// Redis
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.upcomingkey", "upcoming_contests")
	viper.SetDefault("redis.ttl", 10*time.Minute)

	// RabbitMQ
	viper.SetDefault("rabbitmq.host", "")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "contests.events")

	// YouTube
	viper.SetDefault("youtube.apikey", "")
	viper.SetDefault("youtube.playlists", []string{
		"PLcXpkI9A-RZI6FhydNz3JBt_-p_i25Cbr",
		"PLcXpkI9A-RZIZ6lsE0KCcLWeKNoG45fYr",
		"PLcXpkI9A-RZLUfBSNp-YQBCOezZKbDSgB",
	})
	viper.SetDefault("youtube.workers", 4)

	// Sources
	viper.SetDefault("sources.codeforces.baseurl", "https://codeforces.com")
	viper.SetDefault("sources.codechef.baseurl", "https://www.codechef.com")
	viper.SetDefault("sources.leetcode.baseurl", "https://leetcode.com")
	for _, name := range []string{"codeforces", "codechef", "leetcode"} {
		viper.SetDefault("sources."+name+".timeout", 20*time.Second)
		viper.SetDefault("sources."+name+".retries", 2)
		viper.SetDefault("sources."+name+".proxy", "")
	}

	// Scheduler
	viper.SetDefault("scheduler.interval", 10*time.Minute)
	viper.SetDefault("scheduler.runonstart", true)

	// Backfill
	viper.SetDefault("backfill.stopafterexisting", 3)
	viper.SetDefault("backfill.pagesize", 20)
	viper.SetDefault("backfill.maxpages", 100)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")

	// Metrics
	viper.SetDefault("metrics.port", 9090)
}
