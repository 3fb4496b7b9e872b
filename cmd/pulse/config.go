package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fwojciec/pulse"
	"github.com/fwojciec/pulse/stream"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const defaultEndpoint = "http://localhost:8080/api/query"

// config is the resolved CLI configuration. Sources are applied in order:
// defaults, YAML file, environment (after .env loading), flags.
type config struct {
	Endpoint       string            `yaml:"endpoint"`
	MaxRetries     int               `yaml:"max_retries"`
	InitialBackoff time.Duration     `yaml:"initial_backoff"`
	MaxBackoff     time.Duration     `yaml:"max_backoff"`
	Reset          string            `yaml:"reset"`
	Headers        map[string]string `yaml:"headers"`
	LogFile        string            `yaml:"log_file"`
	LogLevel       string            `yaml:"log_level"`
}

func defaultConfig() config {
	return config{
		Endpoint:       defaultEndpoint,
		MaxRetries:     pulse.DefaultMaxRetries,
		InitialBackoff: pulse.DefaultInitialBackoff,
		MaxBackoff:     pulse.DefaultMaxBackoff,
		LogLevel:       "info",
	}
}

// defaultConfigPath returns ~/.config/pulse/config.yaml.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pulse", "config.yaml")
}

// loadFile merges the YAML file at path into cfg. A missing file is only an
// error when the user asked for it explicitly.
func loadFile(cfg *config, path string, explicit bool) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !explicit:
		return nil
	default:
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides cfg with PULSE_* variables. getenv is passed in so that
// the environment is only read in main.
func applyEnv(cfg *config, getenv func(string) string) error {
	if v := getenv("PULSE_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := getenv("PULSE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PULSE_MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	}
	if v := getenv("PULSE_INITIAL_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PULSE_INITIAL_BACKOFF: %w", err)
		}
		cfg.InitialBackoff = d
	}
	if v := getenv("PULSE_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PULSE_MAX_BACKOFF: %w", err)
		}
		cfg.MaxBackoff = d
	}
	if v := getenv("PULSE_RESET"); v != "" {
		cfg.Reset = v
	}
	if v := getenv("PULSE_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := getenv("PULSE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("PULSE_AUTHORIZATION"); v != "" {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers["Authorization"] = v
	}
	return nil
}

// flags holds the values bound to the command line.
type flags struct {
	configPath     string
	endpoint       string
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	reset          string
	logFile        string
	logLevel       string
	help           bool
}

func newFlagSet(f *flags) *pflag.FlagSet {
	fs := pflag.NewFlagSet("pulse", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", "", "path to config file (default ~/.config/pulse/config.yaml)")
	fs.StringVarP(&f.endpoint, "endpoint", "e", defaultEndpoint, "streaming query endpoint")
	fs.IntVar(&f.maxRetries, "max-retries", pulse.DefaultMaxRetries, "attempts per query, including the first")
	fs.DurationVar(&f.initialBackoff, "initial-backoff", pulse.DefaultInitialBackoff, "delay before the first retry")
	fs.DurationVar(&f.maxBackoff, "max-backoff", pulse.DefaultMaxBackoff, "upper bound on retry delay")
	fs.StringVar(&f.reset, "reset", "first-event", "when to forget earlier failures: first-event, open, never")
	fs.StringVar(&f.logFile, "log-file", "", "write logs to this file (default: discard)")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.BoolVarP(&f.help, "help", "h", false, "show help")
	return fs
}

// applyFlags overrides cfg with flags the user set explicitly.
func applyFlags(cfg *config, fs *pflag.FlagSet, f flags) {
	if fs.Changed("endpoint") {
		cfg.Endpoint = f.endpoint
	}
	if fs.Changed("max-retries") {
		cfg.MaxRetries = f.maxRetries
	}
	if fs.Changed("initial-backoff") {
		cfg.InitialBackoff = f.initialBackoff
	}
	if fs.Changed("max-backoff") {
		cfg.MaxBackoff = f.maxBackoff
	}
	if fs.Changed("reset") {
		cfg.Reset = f.reset
	}
	if fs.Changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
}

// Validate checks the resolved configuration.
func (c config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint %q must be an absolute URL: %w", c.Endpoint, pulse.ErrValidation)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint scheme %q not supported: %w", u.Scheme, pulse.ErrValidation)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d: %w", c.MaxRetries, pulse.ErrValidation)
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff <= 0 {
		return fmt.Errorf("backoff durations must be positive: %w", pulse.ErrValidation)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max backoff %s is shorter than initial backoff %s: %w", c.MaxBackoff, c.InitialBackoff, pulse.ErrValidation)
	}
	if _, err := stream.ParseResetPolicy(c.Reset); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// streamConfig converts c to a connection config. c must be valid.
func (c config) streamConfig() stream.Config {
	reset, _ := stream.ParseResetPolicy(c.Reset)
	return stream.Config{
		MaxRetries:     c.MaxRetries,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		Reset:          reset,
	}
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, pulse.ErrValidation)
	}
	return l, nil
}
