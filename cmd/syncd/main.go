package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"leaflet-sync/internal/config"
	"leaflet-sync/internal/daemon"
	"leaflet-sync/internal/remote"
	"leaflet-sync/internal/remote/couch"
	"leaflet-sync/internal/remote/s3"
	"leaflet-sync/internal/repository/sqlite"
	"leaflet-sync/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Logging.File != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}))
	}

	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	remoteStore, err := buildRemote(ctx, cfg.Remote)
	if err != nil {
		log.Fatalf("Failed to connect to remote store: %v", err)
	}

	syncService := service.NewSyncService(store, remoteStore)

	d := daemon.New(syncService, daemon.Config{
		Interval:  cfg.Sync.Interval,
		Debounce:  cfg.Sync.Debounce,
		WatchPath: cfg.Sync.WatchPath,
	})

	log.Printf("Starting leaflet sync daemon (database: %s, remote: %s)", cfg.Database.Path, cfg.Remote.Backend)
	if err := d.Run(ctx); err != nil {
		log.Fatalf("Daemon failed: %v", err)
	}
	log.Println("Daemon stopped gracefully")
}

func buildRemote(ctx context.Context, cfg config.RemoteConfig) (remote.Store, error) {
	switch cfg.Backend {
	case "s3":
		return s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			UseSSL:    cfg.S3.UseSSL,
		})
	case "couch":
		return couch.New(ctx, couch.Config{
			URL:      cfg.Couch.URL,
			Database: cfg.Couch.Database,
		})
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Backend)
	}
}
