package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
)

type Config struct {
	HTTPAddr     string `validate:"required"`
	BusSource    string `validate:"oneof=http postgres"`
	BusServerURL string `validate:"omitempty,url"`
	DatabaseURL  string
	Fleet        string

	HTTPTimeout     time.Duration
	RefreshInterval time.Duration
	LineCacheSize   int `validate:"gt=0"`
	SessionTTL      time.Duration

	NATSURL           string
	NATSSubjectPrefix string `validate:"required"`
	LogNATSSubjects   bool
	MetricsAddr       string

	Location        *time.Location
	DisplayLocation *time.Location
}

// fileConfig is the optional YAML file named by CONFIG_FILE. Environment
// variables override anything set here.
type fileConfig struct {
	HTTPAddr      string `yaml:"httpAddr"`
	BusSource     string `yaml:"busSource" validate:"omitempty,oneof=http postgres"`
	BusServerURL  string `yaml:"busServerURL" validate:"omitempty,url"`
	DatabaseURL   string `yaml:"databaseURL"`
	Fleet         string `yaml:"fleet"`
	TimeZone      string `yaml:"timeZone"`
	DisplayTZ     string `yaml:"displayTimeZone"`
	MetricsAddr   string `yaml:"metricsAddr"`
	LineCacheSize int    `yaml:"lineCacheSize" validate:"gte=0"`
	NATS          struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subjectPrefix"`
	} `yaml:"nats"`
}

var validate = validator.New()

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse CONFIG_FILE: %w", err)
		}
		if err := validate.Struct(fc); err != nil {
			return nil, fmt.Errorf("invalid CONFIG_FILE: %w", err)
		}
	}

	cfg := &Config{}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", firstNonEmpty(fc.HTTPAddr, ":8080"))
	cfg.BusServerURL = getenvDefault("BUS_SERVER_URL", fc.BusServerURL)
	cfg.Fleet = getenvDefault("FLEET", fc.Fleet)

	// Database URL (cluster DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"), fc.DatabaseURL)
	if cfg.DatabaseURL == "" && os.Getenv("PGDATABASE") != "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, os.Getenv("PGDATABASE"), sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, os.Getenv("PGDATABASE"), sslmode)
		}
	}

	// Source: explicit, else whichever of bus server / database is configured
	cfg.BusSource = strings.ToLower(getenvDefault("BUS_SOURCE", fc.BusSource))
	if cfg.BusSource == "" {
		switch {
		case cfg.BusServerURL != "":
			cfg.BusSource = SourceHTTP
		case cfg.DatabaseURL != "":
			cfg.BusSource = SourcePostgres
		default:
			return nil, errors.New("BUS_SERVER_URL or DATABASE_URL must be set")
		}
	}
	if cfg.BusSource == SourceHTTP && cfg.BusServerURL == "" {
		return nil, errors.New("BUS_SERVER_URL must be set when BUS_SOURCE=http")
	}
	if cfg.BusSource == SourcePostgres && cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL or PGDATABASE must be set when BUS_SOURCE=postgres")
	}

	var err error
	if cfg.HTTPTimeout, err = secondsEnv("HTTP_TIMEOUT_SEC", 10, false); err != nil {
		return nil, err
	}
	// 0 keeps the catalog until an explicit refresh
	if cfg.RefreshInterval, err = secondsEnv("CATALOG_REFRESH_INTERVAL_SEC", 0, true); err != nil {
		return nil, err
	}

	if v := os.Getenv("SESSION_TTL_MIN"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes < 0 {
			return nil, fmt.Errorf("invalid SESSION_TTL_MIN: %q", v)
		}
		cfg.SessionTTL = time.Duration(minutes) * time.Minute
	} else {
		cfg.SessionTTL = 30 * time.Minute
	}

	cfg.LineCacheSize = 256
	if fc.LineCacheSize > 0 {
		cfg.LineCacheSize = fc.LineCacheSize
	}
	if v := os.Getenv("LINE_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid LINE_CACHE_SIZE: %q", v)
		}
		cfg.LineCacheSize = n
	}

	// Empty NATS_URL disables plan publishing
	cfg.NATSURL = getenvDefault("NATS_URL", fc.NATS.URL)
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", firstNonEmpty(fc.NATS.SubjectPrefix, "trackly.plans"))
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", fc.MetricsAddr)

	// Time zone of the schedules; weekday and HH:MM are read in it
	if cfg.Location, err = loadLocation("TZ", getenvDefault("TZ", fc.TimeZone), time.Local); err != nil {
		return nil, err
	}
	if cfg.DisplayLocation, err = loadLocation("DISPLAY_TZ", getenvDefault("DISPLAY_TZ", fc.DisplayTZ), cfg.Location); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadLocation(key, name string, def *time.Location) (*time.Location, error) {
	if name == "" {
		return def, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", key, err)
	}
	return loc, nil
}

func secondsEnv(key string, def int, allowZero bool) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * time.Second, nil
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec < 0 || (sec == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(sec) * time.Second, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
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

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
