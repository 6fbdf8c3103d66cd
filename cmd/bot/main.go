// cmd/bot/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/avolkoff/solana-sentry/internal/bot"
	"github.com/avolkoff/solana-sentry/internal/config"
	"github.com/avolkoff/solana-sentry/internal/logger"
	"github.com/avolkoff/solana-sentry/internal/tradelog"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to config file")
	exportFormat := flag.String("export", "", "export trade history instead of running (csv or json)")
	exportDir := flag.String("export-dir", "exports", "directory for exported reports")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, closeLogger, err := logger.New(cfg.DebugLogging, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *exportFormat != "" {
		if err := exportTrades(ctx, cfg, log, *exportFormat, *exportDir); err != nil {
			log.Error("Export failed", zap.Error(err))
			closeLogger()
			os.Exit(1)
		}
		return
	}

	runner, err := bot.NewRunner(ctx, cfg, log)
	if err != nil {
		log.Fatal("💥 Failed to initialize", zap.Error(err))
	}

	if err := runner.Run(ctx); err != nil {
		log.Error("Bot stopped with error", zap.Error(err))
		closeLogger()
		os.Exit(1)
	}
}

func exportTrades(ctx context.Context, cfg *config.Config, log *zap.Logger, format, dir string) error {
	trades, err := tradelog.Open(ctx, cfg.PostgresURL, cfg.SQLitePath, log)
	if err != nil {
		return err
	}
	defer trades.Close()

	path, err := tradelog.NewExporter(log).Export(ctx, trades, tradelog.ExportOptions{
		Format:    tradelog.ExportFormat(format),
		OutputDir: dir,
	})
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
