package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Addr                     string
	AppEnv                   string
	LogLevel                 string
	DatabaseURL              string
	RoomInboxSize            int
	SubscriberBuffer         int
	ArchiveBuffer            int
	WSWriteTimeoutMillis     int
	WSPingSeconds            int
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
}

func Default() Config {
	return Config{
		Addr:                     ":8080",
		AppEnv:                   "development",
		LogLevel:                 "info",
		RoomInboxSize:            64,
		SubscriberBuffer:         64,
		ArchiveBuffer:            256,
		WSWriteTimeoutMillis:     3000,
		WSPingSeconds:            30,
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("ADDR"); raw != "" {
		cfg.Addr = raw
	}
	if raw := os.Getenv("APP_ENV"); raw != "" {
		cfg.AppEnv = raw
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		cfg.DatabaseURL = raw
	}
	positive(&cfg.RoomInboxSize, "ROOM_INBOX_SIZE")
	positive(&cfg.SubscriberBuffer, "SUBSCRIBER_BUFFER")
	positive(&cfg.ArchiveBuffer, "ARCHIVE_BUFFER")
	positive(&cfg.WSWriteTimeoutMillis, "WS_WRITE_TIMEOUT_MS")
	positive(&cfg.WSPingSeconds, "WS_PING_SECONDS")
	positive(&cfg.DBMaxOpenConns, "DB_MAX_OPEN_CONNS")
	positive(&cfg.DBMaxIdleConns, "DB_MAX_IDLE_CONNS")
	positive(&cfg.DBConnMaxLifetimeSeconds, "DB_CONN_MAX_LIFETIME_SECONDS")
	return cfg
}

func (c Config) Production() bool { return c.AppEnv == "production" }

func (c Config) WSWriteTimeout() time.Duration {
	return time.Duration(c.WSWriteTimeoutMillis) * time.Millisecond
}

func (c Config) WSPingInterval() time.Duration {
	return time.Duration(c.WSPingSeconds) * time.Second
}

func (c Config) DBConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeSeconds) * time.Second
}

func positive(dst *int, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if value, err := strconv.Atoi(raw); err == nil && value > 0 {
		*dst = value
	}
}
