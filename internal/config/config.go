package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
)

// Storage backends.
const (
	StorageGorm  = "gorm"
	StorageMongo = "mongo"
)

type Config struct {
	Storage  string         `toml:"storage"`
	Database DBConfig       `toml:"database"`
	Mongo    MongoConfig    `toml:"mongo"`
	Schedule ScheduleConfig `toml:"schedule"`
	GRPC     GRPCConfig     `toml:"grpc"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Log      LogConfig      `toml:"log"`
	Tracing  TracingConfig  `toml:"tracing"`
	Maintain MaintainConfig `toml:"maintain"`
}

type MongoConfig struct {
	URI               string `toml:"uri"`
	Database          string `toml:"database"`
	ConnectTimeoutSec int    `toml:"connect_timeout_sec"`
}

type ScheduleConfig struct {
	TimeZone            string `toml:"time_zone"`
	HorizonMonths       int    `toml:"horizon_months"`
	AssessmentTimeOfDay int    `toml:"assessment_time_of_day"`
}

// Location loads the schedule time zone.
func (c ScheduleConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("schedule time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

type GRPCConfig struct {
	Addr string `toml:"addr"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"` // empty disables the endpoint
}

type LogConfig struct {
	Mode  string `toml:"mode"`
	Level string `toml:"level"`
}

type TracingConfig struct {
	Enabled     bool    `toml:"enabled"`
	ServiceName string  `toml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio"`
}

type MaintainConfig struct {
	Concurrency int `toml:"concurrency"`
}

func Default() *Config {
	return &Config{
		Storage:  StorageGorm,
		Database: defaultDBConfig(),
		Mongo: MongoConfig{
			URI:               "mongodb://localhost:27017",
			Database:          "scope",
			ConnectTimeoutSec: 10,
		},
		Schedule: ScheduleConfig{
			TimeZone:            "America/Los_Angeles",
			HorizonMonths:       3,
			AssessmentTimeOfDay: 8,
		},
		GRPC:     GRPCConfig{Addr: ":50051"},
		Metrics:  MetricsConfig{Addr: ":9090"},
		Log:      LogConfig{Mode: "dev", Level: "info"},
		Tracing:  TracingConfig{ServiceName: "scope-records", SampleRatio: 1},
		Maintain: MaintainConfig{Concurrency: 4},
	}
}

// Load reads defaults, then the TOML file at path (if any), then the
// environment. Later sources win.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Storage = getEnv("SCOPE_STORAGE", c.Storage)
	c.Database.applyEnv()
	c.Mongo.URI = getEnv("SCOPE_MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("SCOPE_MONGO_DATABASE", c.Mongo.Database)
	c.Schedule.TimeZone = getEnv("SCOPE_TIME_ZONE", c.Schedule.TimeZone)
	c.Schedule.HorizonMonths = getEnvInt("SCOPE_HORIZON_MONTHS", c.Schedule.HorizonMonths)
	c.GRPC.Addr = getEnv("SCOPE_GRPC_ADDR", c.GRPC.Addr)
	c.Metrics.Addr = getEnv("SCOPE_METRICS_ADDR", c.Metrics.Addr)
	c.Log.Mode = getEnv("SCOPE_LOG_MODE", c.Log.Mode)
	c.Log.Level = getEnv("SCOPE_LOG_LEVEL", c.Log.Level)
	c.Tracing.Enabled = getEnvBool("SCOPE_TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.SampleRatio = getEnvFloat("SCOPE_TRACING_SAMPLE_RATIO", c.Tracing.SampleRatio)
	c.Maintain.Concurrency = getEnvInt("SCOPE_MAINTAIN_CONCURRENCY", c.Maintain.Concurrency)
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageGorm:
		if err := c.Database.validate(); err != nil {
			return err
		}
	case StorageMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return fmt.Errorf("invalid mongo config: uri/database must not be empty")
		}
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	if _, err := c.Schedule.Location(); err != nil {
		return err
	}
	if c.Schedule.HorizonMonths < 1 {
		return fmt.Errorf("schedule horizon must be at least one month, got %d", c.Schedule.HorizonMonths)
	}
	if c.Schedule.AssessmentTimeOfDay < 0 || c.Schedule.AssessmentTimeOfDay > 23 {
		return fmt.Errorf("assessment time of day %d outside 0-23", c.Schedule.AssessmentTimeOfDay)
	}
	if c.Maintain.Concurrency < 1 {
		c.Maintain.Concurrency = 1
	}
	return nil
}
