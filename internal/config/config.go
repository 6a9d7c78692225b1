// Package config loads runtime configuration from environment variables,
// an optional .env file and an optional YAML file named by CONFIG_FILE.
// Environment variables win over the YAML file, which wins over defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/efreitasn/papertrade/internal/domain"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverPebble   = "pebble"
)

// Config holds all runtime configuration for papertrade.
type Config struct {
	Port            int
	LogLevel        string
	LogFormat       string
	StoreDriver     string
	DatabaseURL     string
	PebblePath      string
	Symbols         []string
	OpeningCash     decimal.Decimal
	PriceWindow     time.Duration
	WebhookTimeout  time.Duration
	KafkaBrokers    []string
	KafkaTopic      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads .env (if present) into the environment, then the YAML file
// named by CONFIG_FILE (if set), applies defaults, and validates values.
// It returns an error for any invalid value.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := readYAML(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}
	return src.load()
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// readYAML reads a flat YAML mapping. Keys are matched case-insensitively
// against the environment variable names; list values are joined with
// commas.
func readYAML(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	out := make(map[string]string, len(doc))
	for k, v := range doc {
		key := strings.ToUpper(k)
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, len(val))
			for i, p := range val {
				parts[i] = fmt.Sprint(p)
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return out, nil
}

type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) load() (*Config, error) {
	port, err := s.getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d out of range", port)
	}

	logLevel := s.getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	logFormat := s.getStr("LOG_FORMAT", "json")
	if logFormat != "json" && logFormat != "console" {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q, must be json or console", logFormat)
	}

	driver := s.getStr("STORE_DRIVER", DriverMemory)
	databaseURL := s.getStr("DATABASE_URL", "")
	pebblePath := s.getStr("PEBBLE_PATH", "data/papertrade")
	switch driver {
	case DriverMemory, DriverPebble:
	case DriverPostgres:
		if databaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER: %q, must be one of: memory, postgres, pebble", driver)
	}

	symbols := s.getList("SYMBOLS", []string{"AAPL", "AMZN", "GOOG", "MSFT", "TSLA"})
	for _, sym := range symbols {
		if !domain.ValidSymbol(sym) {
			return nil, fmt.Errorf("invalid SYMBOLS: %q must match ^[A-Z]{1,10}$", sym)
		}
	}

	openingCash, err := domain.ParseAmount(s.getStr("OPENING_CASH", "10000"))
	if err != nil {
		return nil, fmt.Errorf("invalid OPENING_CASH: %w", err)
	}
	if openingCash.IsNegative() {
		return nil, errors.New("invalid OPENING_CASH: must be >= 0")
	}

	priceWindow, err := s.getDuration("PRICE_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_WINDOW: %w", err)
	}

	webhookTimeout, err := s.getDuration("WEBHOOK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	readTimeout, err := s.getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := s.getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := s.getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := s.getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		LogFormat:       logFormat,
		StoreDriver:     driver,
		DatabaseURL:     databaseURL,
		PebblePath:      pebblePath,
		Symbols:         symbols,
		OpeningCash:     openingCash,
		PriceWindow:     priceWindow,
		WebhookTimeout:  webhookTimeout,
		KafkaBrokers:    s.getList("KAFKA_BROKERS", nil),
		KafkaTopic:      s.getStr("KAFKA_TOPIC", "papertrade.events"),
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func (s source) getStr(key, defaultVal string) string {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func (s source) getInt(key string, defaultVal int) (int, error) {
	v := s.lookup(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func (s source) getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := s.lookup(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", v)
	}
	return d, nil
}

func (s source) getList(key string, defaultVal []string) []string {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
