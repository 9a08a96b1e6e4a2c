package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DisabledPath turns the activity ledger off when used as SKETCH_DB_PATH.
const DisabledPath = "off"

type Config struct {
	Port            int
	LogLevel        slog.Level
	DBPath          string
	MDNS            bool
	MessageRate     float64
	MessageBurst    int
	LedgerInterval  time.Duration
	LedgerRetention time.Duration
}

func Default() Config {
	return Config{
		Port:            8080,
		LogLevel:        slog.LevelInfo,
		DBPath:          "./data/sketchroom.db",
		MessageRate:     100,
		MessageBurst:    200,
		LedgerInterval:  5 * time.Second,
		LedgerRetention: 720 * time.Hour,
	}
}

// LedgerEnabled reports whether activity should be recorded to disk.
func (c Config) LedgerEnabled() bool {
	return c.DBPath != "" && c.DBPath != DisabledPath
}

// Load reads the given dotenv files, or .env when none are given, and then
// the process environment. Missing files are not an error; variables already
// set in the environment win over the files.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, starting from Default.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	var errs []error

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("PORT: invalid port %q", v))
		} else {
			cfg.Port = port
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		level, err := ParseLevel(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		} else {
			cfg.LogLevel = level
		}
	}
	if v := getenv("SKETCH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("SKETCH_MDNS"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SKETCH_MDNS: %w", err))
		} else {
			cfg.MDNS = on
		}
	}
	if v := getenv("SKETCH_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate <= 0 {
			errs = append(errs, fmt.Errorf("SKETCH_RATE: invalid rate %q", v))
		} else {
			cfg.MessageRate = rate
		}
	}
	if v := getenv("SKETCH_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil || burst <= 0 {
			errs = append(errs, fmt.Errorf("SKETCH_BURST: invalid burst %q", v))
		} else {
			cfg.MessageBurst = burst
		}
	}
	if v := getenv("SKETCH_LEDGER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("SKETCH_LEDGER_INTERVAL: invalid duration %q", v))
		} else {
			cfg.LedgerInterval = d
		}
	}
	if v := getenv("SKETCH_LEDGER_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("SKETCH_LEDGER_RETENTION: invalid duration %q", v))
		} else {
			cfg.LedgerRetention = d
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
