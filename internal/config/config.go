package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string     `yaml:"host"`
	Port int        `yaml:"port"`
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig controls the Access-Control-Allow-Origin policy. An empty list
// or "*" allows every origin.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

// EngineConfig holds request defaults handed to the fetch engine.
type EngineConfig struct {
	DefaultFormat     string `yaml:"defaultFormat"`
	DefaultOutput     string `yaml:"defaultOutput"`
	SourceURLTemplate string `yaml:"sourceURLTemplate"`
}

type StorageConfig struct {
	DownloadDir string `yaml:"downloadDir"`
}

type WorkerConfig struct {
	// MaxConcurrentJobs bounds the number of running downloads. Zero or a
	// negative value means unbounded.
	MaxConcurrentJobs int `yaml:"maxConcurrentJobs"`
}

// RetentionConfig controls reclamation of old artifacts and, optionally,
// eviction of finished job records.
type RetentionConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Schedule    string `yaml:"schedule"`
	MaxAgeHours int    `yaml:"maxAgeHours"`
	JobTTLHours int    `yaml:"jobTTLHours"`
}

type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Storage   StorageConfig   `yaml:"storage"`
	Worker    WorkerConfig    `yaml:"worker"`
	Retention RetentionConfig `yaml:"retention"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
}

const (
	DefaultFormat            = "best[height<=720]"
	DefaultOutput            = "%(id)s.%(ext)s"
	DefaultSourceURLTemplate = "https://www.youtube.com/watch?v=%s"
	DefaultSchedule          = "@every 1h"
	DefaultMaxAgeHours       = 24
	DefaultJobTTLHours       = 72
	DefaultRedisChannel      = "fetchd:jobs"
)

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	cfg.Retention.Enabled = true
	cfg.ApplyDefaults()
	return cfg
}

// Load reads the YAML config at path, applies environment overrides and
// defaults, and exits the process when the result is unusable. A missing
// file is not an error: the defaults are used instead.
func Load(path string) *Config {
	cfg, err := Read(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Read is the non-fatal variant of Load.
func Read(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Retention.Enabled = true

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// fall through to defaults
	default:
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}

	applyEnv(cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5001
	}
	if c.Engine.DefaultFormat == "" {
		c.Engine.DefaultFormat = DefaultFormat
	}
	if c.Engine.DefaultOutput == "" {
		c.Engine.DefaultOutput = DefaultOutput
	}
	if c.Engine.SourceURLTemplate == "" {
		c.Engine.SourceURLTemplate = DefaultSourceURLTemplate
	}
	if c.Storage.DownloadDir == "" {
		c.Storage.DownloadDir = "downloads"
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = DefaultSchedule
	}
	if c.Retention.MaxAgeHours == 0 {
		c.Retention.MaxAgeHours = DefaultMaxAgeHours
	}
	if c.Retention.JobTTLHours == 0 {
		c.Retention.JobTTLHours = DefaultJobTTLHours
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = DefaultRedisChannel
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports settings that would make the server misbehave.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if !strings.Contains(c.Engine.SourceURLTemplate, "%s") {
		return fmt.Errorf("engine.sourceURLTemplate must contain %%s: %q", c.Engine.SourceURLTemplate)
	}
	if c.Retention.MaxAgeHours < 0 {
		return fmt.Errorf("retention.maxAgeHours must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// applyEnv lets a handful of environment variables override the file.
func applyEnv(c *Config) {
	if v := getEnv("FETCHD_HOST", ""); v != "" {
		c.Server.Host = v
	}
	if v := getEnvAsInt("FETCHD_PORT", 0); v > 0 {
		c.Server.Port = v
	}
	if v := getEnv("FETCHD_DOWNLOAD_DIR", ""); v != "" {
		c.Storage.DownloadDir = v
	}
	if v := getEnv("FETCHD_REDIS_URL", ""); v != "" {
		c.Redis.URL = v
	}
	if v := getEnv("FETCHD_LOG_LEVEL", ""); v != "" {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("FETCHD_MAX_CONCURRENT_JOBS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.MaxConcurrentJobs = n
		}
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if val, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return val
	}
	return fallback
}
