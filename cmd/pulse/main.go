// Command pulse asks analytics questions against a streaming query endpoint.
//
// Usage:
//
//	pulse [flags]              interactive TUI
//	pulse [flags] <question>   ask once and print the answer
//
// Configuration is read from ~/.config/pulse/config.yaml (or --config),
// then .env and PULSE_* environment variables, then flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/fwojciec/pulse"
	bt "github.com/fwojciec/pulse/bubbletea"
	"github.com/fwojciec/pulse/goldmark"
	"github.com/fwojciec/pulse/session"
	"github.com/fwojciec/pulse/sse"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pulse: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var f flags
	fs := newFlagSet(&f)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(fs)
			return nil
		}
		return err
	}
	if f.help {
		printHelp(fs)
		return nil
	}

	cfg := defaultConfig()
	path, explicit := f.configPath, f.configPath != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if err := loadFile(&cfg, path, explicit); err != nil {
		return err
	}
	// A missing .env is normal.
	_ = godotenv.Load()
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return err
	}
	applyFlags(&cfg, fs, f)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var clientOpts []sse.Option
	for k, v := range cfg.Headers {
		clientOpts = append(clientOpts, sse.WithHeader(k, v))
	}
	client := sse.New(clientOpts...)

	notifier := bt.NewNotifier()
	sess := session.New(client, cfg.Endpoint,
		session.WithConfig(cfg.streamConfig()),
		session.WithOnChange(notifier.Notify),
		session.WithLogger(logger),
	)
	defer sess.Close()

	logger.Info("starting", "endpoint", cfg.Endpoint, "max_retries", cfg.MaxRetries, "reset", cfg.Reset)

	if args := fs.Args(); len(args) > 0 {
		return ask(ctx, sess, notifier.C(), strings.Join(args, " "), os.Stdout)
	}

	if err := bt.Run(ctx, bt.New(sess, notifier.C(), pulse.DefaultTheme())); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	return nil
}

// ask sends one query and prints the answer once the exchange settles.
func ask(ctx context.Context, sess *session.Session, changes <-chan struct{}, query string, w io.Writer) error {
	if err := sess.Send(query); err != nil {
		return err
	}
	for {
		xs := sess.Exchanges()
		if x := xs[len(xs)-1]; x.Done() {
			if x.Assistant.Status == pulse.TurnError {
				return errors.New(strings.TrimPrefix(x.Assistant.Content, "Error: "))
			}
			printAnswer(w, x.Assistant)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
		}
	}
}

func printAnswer(w io.Writer, turn pulse.Turn) {
	fmt.Fprintln(w, goldmark.Render(turn.Content, 0, pulse.DefaultTheme()))
	if turn.Result == nil {
		return
	}
	if len(turn.Result.Metrics) > 0 {
		fmt.Fprintln(w)
	}
	for _, m := range turn.Result.Metrics {
		value := m.Value
		if m.Unit != "" {
			value += " " + m.Unit
		}
		fmt.Fprintf(w, "%s: %s\n", m.Label, value)
	}
	for _, c := range turn.Result.Charts {
		fmt.Fprintf(w, "chart: %s (%s)\n", c.Title, c.Type)
	}
}

// newLogger writes text logs to the configured file. The terminal belongs
// to the TUI, so without a file logs are discarded.
func newLogger(cfg config) (*slog.Logger, func(), error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if cfg.LogFile == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return logger, func() { _ = f.Close() }, nil
}

func printHelp(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `pulse asks analytics questions and streams the answers.

Usage:
  pulse [flags]              interactive mode
  pulse [flags] <question>   ask once and print the answer

Environment:
  PULSE_ENDPOINT, PULSE_MAX_RETRIES, PULSE_INITIAL_BACKOFF, PULSE_MAX_BACKOFF,
  PULSE_RESET, PULSE_LOG_FILE, PULSE_LOG_LEVEL, PULSE_AUTHORIZATION

Flags:
`)
	fs.PrintDefaults()
}
