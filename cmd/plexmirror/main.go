package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mmcdole/plexmirror/internal/config"
	"github.com/mmcdole/plexmirror/internal/debounce"
	"github.com/mmcdole/plexmirror/internal/domain"
	"github.com/mmcdole/plexmirror/internal/libsync"
	"github.com/mmcdole/plexmirror/internal/log"
	"github.com/mmcdole/plexmirror/internal/mediaserver/plex"
	"github.com/mmcdole/plexmirror/internal/pipeline"
	"github.com/mmcdole/plexmirror/internal/playqueue"
	"github.com/mmcdole/plexmirror/internal/store"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Parse()

	if showVersion {
		fmt.Printf("plexmirror %s\n", Version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.IsConfigured() {
		return fmt.Errorf("server url and token must be configured")
	}

	// Setup logger
	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting plexmirror", "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewCatalogStore(cfg.Store.Dir)
	if err != nil {
		return fmt.Errorf("failed to open mirror store: %w", err)
	}
	defer st.Close()

	client := plex.NewClient(cfg.Server.URL, cfg.Server.Token, cfg.Server.ClientID, logger)
	if err := client.FetchIdentity(ctx); err != nil {
		// Library sync works without it; play queue mutation does not.
		logger.Warn("could not fetch server identity", "error", err)
	}

	mats := make(map[domain.MediaCategory]domain.Materializer)
	for _, cat := range cfg.EnabledCategories() {
		mats[cat] = store.NewMaterializer(st, cat, logger)
	}

	pipe := pipeline.New(client, cfg.Sync.Workers, logger)
	engine := libsync.New(client, st, pipe, mats, libsync.Options{
		Interval:          cfg.Sync.Interval,
		Repair:            cfg.Sync.Repair,
		StartupAttempts:   cfg.Sync.StartupAttempts,
		StartupRetryDelay: cfg.Sync.StartupRetryDelay,
	}, logger)

	var wg sync.WaitGroup
	fatal := make(chan error, 1)

	if cfg.Events.Enabled {
		deb := debounce.New(engine, debounce.Options{
			SafetyMargin: cfg.Events.SafetyMargin,
			IgnoreWindow: cfg.Events.IgnoreWindow,
			MaxAttempts:  cfg.Events.MaxAttempts,
		}, logger)
		engine.SetRecorder(deb)

		events := make(chan domain.RemoteEvent, 64)
		listener := plex.NewEventListener(cfg.Server.URL, cfg.Server.Token, cfg.Server.ClientID, logger)

		wg.Add(2)
		go func() {
			defer wg.Done()
			listener.Run(ctx, events)
		}()
		go func() {
			defer wg.Done()
			deb.Run(ctx, events)
		}()
	}

	if cfg.Queue.Enabled {
		localQueue := playqueue.NewMemoryQueue()
		reconciler := playqueue.New(client, localQueue, st, playqueue.Options{
			PollInterval: cfg.Queue.PollInterval,
			OwnPrefix:    cfg.Queue.OwnPrefix,
			Suspended:    engine.Suspended,
		}, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			reconciler.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			select {
			case fatal <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-fatal:
		logger.Error("sync engine stopped", "error", err)
		stop()
		wg.Wait()
		return err
	}

	stop()
	wg.Wait()
	return nil
}
