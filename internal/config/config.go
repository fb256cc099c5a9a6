package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	APIKey         string        `validate:"required"`
	BaseURL        string        `validate:"required,url"`
	PreviewMinutes int           `validate:"gte=1,lte=60"`
	RequestTimeout time.Duration `validate:"gt=0"`

	HTTPAddr    string `validate:"required"`
	CORSOrigins []string
	StaticDir   string

	// Postgres favorites when set, SQLite otherwise.
	DatabaseURL    string
	FavoritesDB    string
	SQLiteDatabase string `validate:"required_without=DatabaseURL"`

	NATSURL           string `validate:"omitempty,url"`
	NATSSubjectPrefix string `validate:"required"`
	LogNATSSubjects   bool

	MetricsAddr string

	BoardRefreshInterval time.Duration `validate:"gt=0"`
	StopsRefreshInterval time.Duration `validate:"gte=0"`
	Location             *time.Location
	LogDev               bool
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:            os.Getenv("MTD_API_KEY"),
		BaseURL:           getenvDefault("MTD_BASE_URL", "https://developer.cumtd.com/api/v2.2/json/"),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		StaticDir:         os.Getenv("STATIC_DIR"),
		DatabaseURL:       firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")),
		FavoritesDB:       os.Getenv("FAVORITES_DB"),
		SQLiteDatabase:    getenvDefault("SQLITE_DATABASE", "favorites.db"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getenvDefault("NATS_SUBJECT_PREFIX", "arrivals.stop"),
		LogNATSSubjects:   parseBool(os.Getenv("LOG_NATS_SUBJECTS")),
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
		LogDev:            parseBool(os.Getenv("LOG_DEV")),
	}

	var err error
	if cfg.PreviewMinutes, err = intEnv("MTD_PREVIEW_MINUTES", 60); err != nil {
		return nil, err
	}
	ms, err := intEnv("MTD_TIMEOUT_MS", 10000)
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout = time.Duration(ms) * time.Millisecond

	sec, err := intEnv("BOARD_REFRESH_INTERVAL_SEC", 30)
	if err != nil {
		return nil, err
	}
	cfg.BoardRefreshInterval = time.Duration(sec) * time.Second

	// 0 disables the periodic stop index reload
	mins, err := intEnv("STOPS_REFRESH_INTERVAL_MIN", 24*60)
	if err != nil {
		return nil, err
	}
	cfg.StopsRefreshInterval = time.Duration(mins) * time.Minute

	cfg.CORSOrigins = splitList(getenvDefault("CORS_ORIGINS", "*"))

	if tz := os.Getenv("TZ"); tz == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %w", err)
		}
		cfg.Location = loc
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func intEnv(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
