package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries the process configuration. Handles built from it are
// passed explicitly to the components that need them; nothing reads the
// environment after Load.
type Config struct {
	DatabaseURL      string
	DBMaxConns       int32
	Port             string
	KafkaBrokers     []string
	NotifyTopic      string
	DispatchBatch    int
	DispatchInterval time.Duration
	DispatchWorkers  int
	MaxPublishTries  int
	LockTimeout      time.Duration
}

// Load reads configuration from the environment, applying defaults for
// everything except the database URL.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		Port:             envOr("PORT", "8080"),
		NotifyTopic:      envOr("NOTIFY_TOPIC", "dispute.notifications"),
		DispatchBatch:    envInt("DISPATCH_BATCH", 25),
		DispatchWorkers:  envInt("DISPATCH_WORKERS", 2),
		MaxPublishTries:  envInt("MAX_PUBLISH_TRIES", 5),
		DispatchInterval: envDuration("DISPATCH_INTERVAL", 500*time.Millisecond),
		LockTimeout:      envDuration("LOCK_TIMEOUT", 2*time.Second),
		DBMaxConns:       int32(envInt("DB_MAX_CONNS", 0)),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
