// Command degenradar is the crypto-social ingestion daemon.
//
// Usage:
//
//	degenradar -config radar.yaml           # run all enabled sources on schedule
//	degenradar -config radar.yaml -once dex # run one source once and exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/solweave/degenradar/radar"
)

func main() {
	configPath := flag.String("config", "", "path to radar.yaml config file")
	once := flag.String("once", "", "run a single source once and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *once); err != nil {
		logger.Error("degenradar: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, once string) error {
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: degenradar -config <file> [-once <source>]")
		os.Exit(1)
	}

	cfg, err := radar.LoadConfig(configPath)
	if err != nil {
		return err
	}

	svc, err := radar.New(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if once != "" {
		sum, err := svc.RunSourceOnce(ctx, once)
		if err != nil {
			return err
		}
		data, _ := json.MarshalIndent(sum, "", "  ")
		os.Stdout.Write(data)
		os.Stdout.Write([]byte("\n"))
		return nil
	}

	return svc.Start(ctx)
}
