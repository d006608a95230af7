package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"foodtruck-preorder/internal/config"
	"foodtruck-preorder/internal/server"
	"foodtruck-preorder/internal/storage/postgres"
	"foodtruck-preorder/internal/timeutil"
	"foodtruck-preorder/pkg/logger"
)

func main() {
	mode := flag.String("mode", "serve", "serve | materialize | migrate")
	configPath := flag.String("config", ".", "directory holding config.yaml")
	date := flag.String("date", "", "materialize: day to run, YYYY-MM-DD (default today)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appLog := logger.New(cfg.Log)
	defer appLog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "serve":
		err = serve(ctx, cfg, appLog)
	case "materialize":
		err = materialize(ctx, cfg, appLog, *date)
	case "migrate":
		err = migrate(ctx, cfg, appLog)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		appLog.Error("exiting", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	app, err := server.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Serve(ctx)
}

func materialize(ctx context.Context, cfg *config.Config, log *logger.Logger, date string) error {
	app, err := server.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	day := time.Now().In(app.Location)
	if date != "" {
		day, err = time.ParseInLocation(timeutil.DateLayout, date, app.Location)
		if err != nil {
			return fmt.Errorf("-date: %w", err)
		}
	}
	result, err := app.Materialize(ctx, day)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func migrate(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if cfg.Storage.Driver != "postgres" {
		log.Info("nothing to migrate", "driver", cfg.Storage.Driver)
		return nil
	}
	pool, err := postgres.Connect(ctx, cfg.Storage.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}
	log.Info("schema applied")
	return nil
}
