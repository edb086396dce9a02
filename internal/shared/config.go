package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string

	StoreDriver string
	MySQLDSN    string
	SeedFile    string

	RedisAddr string
	RedisDB   int
	RedisPass string
	CacheTTL  time.Duration

	EventsChannel    string
	EventsWebhookURL string
	EventsWebhookRPS int
	EventsTimeout    time.Duration

	ClaimAttempts  int
	RatingAttempts int

	SweepWorkers  int
	SweepSchedule string
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg(".env could not be loaded")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
		}
		return def
	}
	c := Config{
		AppEnv:           env("APP_ENV", "prod"),
		HTTPAddr:         env("HTTP_ADDR", ":8080"),
		MetricsAddr:      env("METRICS_ADDR", ""),
		StoreDriver:      strings.ToLower(env("STORE_DRIVER", StoreMySQL)),
		MySQLDSN:         env("MYSQL_DSN", "root:root@tcp(localhost:3306)/tours?parseTime=true&clientFoundRows=true&charset=utf8mb4,utf8&loc=UTC"),
		SeedFile:         env("TOURS_SEED_FILE", ""),
		RedisAddr:        env("REDIS_ADDR", "localhost:6379"),
		RedisPass:        env("REDIS_PASSWORD", ""),
		RedisDB:          atoi("REDIS_DB", 0),
		CacheTTL:         time.Duration(atoi("CACHE_TTL_SECONDS", 60)) * time.Second,
		EventsChannel:    env("EVENTS_REDIS_CHANNEL", "booking-events"),
		EventsWebhookURL: env("EVENTS_WEBHOOK_URL", ""),
		EventsWebhookRPS: atoi("EVENTS_WEBHOOK_RPS", 5),
		EventsTimeout:    time.Duration(atoi("EVENTS_TIMEOUT_SECONDS", 30)) * time.Second,
		ClaimAttempts:    atoi("CAPACITY_CLAIM_ATTEMPTS", 3),
		RatingAttempts:   atoi("RATING_ATTEMPTS", 3),
		SweepWorkers:     atoi("SWEEP_WORKERS", 4),
		SweepSchedule:    env("SWEEP_SCHEDULE", ""),
	}
	if c.StoreDriver != StoreMySQL && c.StoreDriver != StoreMemory {
		log.Warn().Str("driver", c.StoreDriver).Msg("unknown STORE_DRIVER, falling back to mysql")
		c.StoreDriver = StoreMySQL
	}
	if c.StoreDriver == StoreMySQL && !strings.Contains(c.MySQLDSN, "clientFoundRows=true") {
		log.Warn().Msg("MYSQL_DSN lacks clientFoundRows=true; unchanged conditional writes will be probed")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
