// Command pulse-devserver serves a demo streaming query endpoint for local
// development. It honors request_id idempotency and can inject faults to
// exercise client reconnects.
//
// Usage:
//
//	pulse-devserver [--addr :8080] [--fail-first n] [--drop-first n] [--step 400ms]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fwojciec/pulse/devserver"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pulse-devserver: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	addr := os.Getenv("PULSE_DEVSERVER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	var (
		failFirst int
		dropFirst int
		cacheSize int
		step      time.Duration
	)
	fs := pflag.NewFlagSet("pulse-devserver", pflag.ContinueOnError)
	fs.StringVar(&addr, "addr", addr, "listen address")
	fs.IntVar(&failFirst, "fail-first", 0, "reject attempts with retry_attempt below n with 503")
	fs.IntVar(&dropFirst, "drop-first", 0, "drop streams after one event for attempts below n")
	fs.IntVar(&cacheSize, "cache-size", devserver.DefaultCacheSize, "number of request_ids to remember")
	fs.DurationVar(&step, "step", 400*time.Millisecond, "pause between demo events")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	srv, err := devserver.New(devserver.Demo{Step: step},
		devserver.WithCacheSize(cacheSize),
		devserver.WithFailFirst(failFirst),
		devserver.WithDropFirst(dropFirst),
		devserver.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "fail_first", failFirst, "drop_first", dropFirst)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// Streams stay open until their answers finish; cancel them first so
	// Shutdown does not wait out the timeout.
	srv.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
