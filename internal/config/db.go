package config

import (
	"fmt"
	"os"
	"strconv"
)

type DBConfig struct {
	Driver          string `toml:"driver"` // postgres | sqlite
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	Name            string `toml:"name"`
	SSLMode         string `toml:"ssl_mode"`
	TimeZone        string `toml:"time_zone"`
	SQLitePath      string `toml:"sqlite_path"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifeTime int    `toml:"conn_max_lifetime_min"` // minutes
}

func defaultDBConfig() DBConfig {
	return DBConfig{
		Driver:          "postgres",
		Host:            "postgres",
		User:            "scope",
		Password:        "scope",
		Name:            "scope",
		SSLMode:         "disable",
		TimeZone:        "UTC",
		Port:            5432,
		SQLitePath:      "scope.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifeTime: 30,
	}
}

func (c *DBConfig) applyEnv() {
	c.Driver = getEnv("DB_DRIVER", c.Driver)
	c.Host = getEnv("DB_HOST", c.Host)
	c.User = getEnv("DB_USER", c.User)
	c.Password = getEnv("DB_PASSWORD", c.Password)
	c.Name = getEnv("DB_NAME", c.Name)
	c.SSLMode = getEnv("DB_SSLMODE", c.SSLMode)
	c.TimeZone = getEnv("DB_TIMEZONE", c.TimeZone)
	c.SQLitePath = getEnv("DB_SQLITE_PATH", c.SQLitePath)
	c.Port = getEnvInt("DB_PORT", c.Port)
	c.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.MaxOpenConns)
	c.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.MaxIdleConns)
	c.ConnMaxLifeTime = getEnvInt("DB_CONN_MAX_LIFETIME_MIN", c.ConnMaxLifeTime)
}

func (c *DBConfig) validate() error {
	switch c.Driver {
	case "postgres":
		if c.Host == "" || c.User == "" || c.Name == "" {
			return fmt.Errorf("invalid DB config: host/user/name must not be empty")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("invalid DB config: sqlite_path must not be empty")
		}
	default:
		return fmt.Errorf("invalid DB config: unknown driver %q", c.Driver)
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}
