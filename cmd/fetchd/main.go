package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fetchd/internal/config"
	"fetchd/internal/engine"
	server "fetchd/internal/http"
	"fetchd/internal/jobs"
	"fetchd/internal/notify"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()

	cfg := config.Load(*configPath)

	// Set up logger
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Storage.DownloadDir, 0o755); err != nil {
		log.Fatalf("create download dir failed: %v", err)
	}

	if path, ok := engine.Available(); ok {
		logger.Info("fetch_engine", "path", path)
	} else {
		logger.Warn("fetch_engine_missing", "hint", "install yt-dlp and make sure it is on PATH")
	}
	eng := engine.NewYTDLP()

	publisher, err := notify.FromConfig(cfg)
	if err != nil {
		log.Fatalf("redis publisher failed: %v", err)
	}

	opts := jobs.OptionsFromConfig(cfg)
	opts.Logger = logger
	var pinger server.Pinger
	if publisher != nil {
		opts.Publisher = publisher
		pinger = publisher
		logger.Info("job_events_enabled", "channel", publisher.Channel())
	}

	store := jobs.NewStore()
	mgr := jobs.NewManager(store, eng, opts)

	sweeper := jobs.SweeperFromConfig(cfg, store, logger)
	if cfg.Retention.Enabled {
		if err := sweeper.Start(cfg.Retention.Schedule); err != nil {
			log.Fatalf("retention schedule failed: %v", err)
		}
	}

	srv := server.NewServer(cfg, mgr, sweeper, eng, pinger, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Listen)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting_down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		sweeper.Stop()
		if werr := mgr.Wait(shutdownCtx); werr != nil {
			logger.Warn("jobs_still_running", "error", werr)
		}
		if publisher != nil {
			_ = publisher.Close()
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
