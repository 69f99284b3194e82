package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the studio server.
// Precedence: CLI flags > env vars > .env file > defaults.
type Config struct {
	MasterDir   string // corpus root holding texts/, waves/ and recorded/
	DataDir     string // journal database location
	JournalDSN  string // PostgreSQL DSN; empty selects the SQLite journal
	HTTPPort    int
	PageSize    int
	SampleRate  int // download rate for WAV conversion
	MaxUploadMB int
	CORSOrigins string
	LogLevel    string
	LogFormat   string  // log output format: "text" or "json"
	RateLimit   float64 // requests per second per client IP, 0 disables
}

// defaults
const (
	defaultMasterDir   = "./master"
	defaultDataDir     = "./data"
	defaultHTTPPort    = 5000
	defaultPageSize    = 10
	defaultSampleRate  = 44100
	defaultMaxUploadMB = 20
	defaultCORSOrigins = "*"
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
)

const (
	maxPageSize   = 1000
	minSampleRate = 8000
	maxSampleRate = 192000
)

// envPrefix is the prefix for all studio environment variables.
const envPrefix = "STUDIO_"

// EnvFile is read from the working directory at load time when present.
// Variables already set in the process environment win.
const EnvFile = ".env"

// Load parses configuration from CLI flags and environment variables.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	if err := loadEnvFile(EnvFile); err != nil {
		return nil, err
	}

	cfg := &Config{}

	fs := flag.NewFlagSet("studio", flag.ContinueOnError)

	fs.StringVar(&cfg.MasterDir, "master-dir", defaultMasterDir, "corpus root containing texts/, waves/ and recorded/")
	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "directory for the take journal database")
	fs.StringVar(&cfg.JournalDSN, "journal-dsn", "", "PostgreSQL DSN for the take journal (SQLite in data-dir if empty)")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.IntVar(&cfg.PageSize, "page-size", defaultPageSize, "number of prompts per page")
	fs.IntVar(&cfg.SampleRate, "sample-rate", defaultSampleRate, "sample rate for WAV downloads")
	fs.IntVar(&cfg.MaxUploadMB, "max-upload-mb", defaultMaxUploadMB, "maximum take upload size in megabytes")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", defaultCORSOrigins, "comma-separated list of allowed CORS origins (use * for all)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", 0, "requests per second allowed per client IP (0 disables)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// loadEnvFile exports the variables in path that are not already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// applyEnvOverrides fills every flag that was not given on the command line
// from its STUDIO_* variable. Unparseable numbers are ignored.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	fs.VisitAll(func(f *flag.Flag) {
		if set[f.Name] {
			return
		}
		val, ok := os.LookupEnv(envName(f.Name))
		if !ok || val == "" {
			return
		}
		switch f.Name {
		case "master-dir":
			cfg.MasterDir = val
		case "data-dir":
			cfg.DataDir = val
		case "journal-dsn":
			cfg.JournalDSN = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "page-size":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.PageSize = v
			}
		case "sample-rate":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SampleRate = v
			}
		case "max-upload-mb":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.MaxUploadMB = v
			}
		case "cors-origins":
			cfg.CORSOrigins = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "rate-limit":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				cfg.RateLimit = v
			}
		}
	})
}

// envName maps a flag name to its environment variable, e.g. page-size to
// STUDIO_PAGE_SIZE.
func envName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.MasterDir == "" {
		return fmt.Errorf("master-dir must not be empty")
	}
	if c.JournalDSN == "" && c.DataDir == "" {
		return fmt.Errorf("data-dir must not be empty when journal-dsn is unset")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.PageSize < 1 || c.PageSize > maxPageSize {
		return fmt.Errorf("page-size must be between 1 and %d, got %d", maxPageSize, c.PageSize)
	}
	if c.SampleRate < minSampleRate || c.SampleRate > maxSampleRate {
		return fmt.Errorf("sample-rate must be between %d and %d, got %d", minSampleRate, maxSampleRate, c.SampleRate)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("max-upload-mb must be positive, got %d", c.MaxUploadMB)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate-limit must not be negative, got %g", c.RateLimit)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
