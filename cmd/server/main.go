package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fghsg9075-lab/aios/cmd"
	"github.com/fghsg9075-lab/aios/internal/analytics"
	"github.com/fghsg9075-lab/aios/internal/cli"
	"github.com/fghsg9075-lab/aios/internal/config"
	"github.com/fghsg9075-lab/aios/internal/dispatcher"
	"github.com/fghsg9075-lab/aios/internal/platform/logger"
	"github.com/fghsg9075-lab/aios/internal/platform/otel"
	"github.com/fghsg9075-lab/aios/internal/server"
	"github.com/fghsg9075-lab/aios/internal/store"
	"github.com/fghsg9075-lab/aios/internal/store/driver"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	// adapters register themselves in init()
	_ "github.com/fghsg9075-lab/aios/internal/llm/compat"
	_ "github.com/fghsg9075-lab/aios/internal/llm/google"
)

var banner = []string{
	"    _    ___ ___  ____  ",
	"   / \\  |_ _/ _ \\/ ___| ",
	"  / _ \\  | | | | \\___ \\ ",
	" / ___ \\ | | |_| |___) |",
	"/_/   \\_\\___\\___/|____/ ",
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, cli.CrossMark(), err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logger.Initialize(logCfg)
	log := logger.Get()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Print(cli.Banner(banner))
	log.Info("Starting aios", zap.String("version", cmd.AppVersion), zap.String("env", cfg.Server.Env))
	go checkForUpdates(ctx, log)

	shutdownTracer, err := otel.InitTracer(cfg.Telemetry, log, os.Stdout)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			log.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	cs, err := driver.Open(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := cs.Close(); err != nil {
			log.Warn("Store close failed", zap.Error(err))
		}
	}()

	opts := []dispatcher.Option{
		dispatcher.WithLogger(log.Named("dispatcher")),
		dispatcher.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout}),
		dispatcher.WithMetrics(dispatcher.NewMetrics(prometheus.DefaultRegisterer)),
	}
	if cfg.Breaker.Enabled {
		opts = append(opts, dispatcher.WithBreaker(dispatcher.BreakerSettings{
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     cfg.Breaker.Timeout,
			Interval:    cfg.Breaker.Interval,
		}))
	}

	var stats analytics.Service
	if repo, ok := cs.(store.AttemptRepository); ok && cfg.Analytics.Enabled {
		ingestor := analytics.NewIngestor(log.Named("analytics"), repo, analytics.Options{
			BufferSize:    cfg.Analytics.BufferSize,
			BatchSize:     cfg.Analytics.BatchSize,
			FlushInterval: cfg.Analytics.FlushInterval,
		})
		// in-flight requests keep logging during graceful shutdown, Stop drains them
		ingestor.Start(context.WithoutCancel(ctx))
		defer ingestor.Stop()

		opts = append(opts, dispatcher.WithRecorder(ingestor))
		stats = analytics.NewService(repo)
	} else if cfg.Analytics.Enabled {
		log.Info("Analytics disabled, store does not record attempts", zap.String("driver", cfg.Store.Driver))
	}

	d := dispatcher.New(cs, opts...)
	if err := d.Load(ctx); err != nil {
		return err
	}
	if len(cfg.Providers) > 0 {
		if err := d.ApplySeeds(seeds(cfg.Providers)); err != nil {
			return err
		}
		if err := d.Save(ctx); err != nil {
			log.Warn("Could not persist seeded providers", zap.Error(err))
		}
	}
	printProviders(d)

	srv := server.New(cfg, log.Named("http"), server.Deps{
		Dispatcher: d,
		Analytics:  stats,
		Version:    cmd.AppVersion,
	})
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	// persist counters accumulated since the last admin change
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Save(saveCtx); err != nil {
		log.Warn("Could not persist configuration on shutdown", zap.Error(err))
	}
	log.Info("Bye")
	return nil
}

func seeds(providers []config.ProviderSeed) []dispatcher.Seed {
	out := make([]dispatcher.Seed, 0, len(providers))
	for _, p := range providers {
		out = append(out, dispatcher.Seed{
			ID:      p.ID,
			Type:    p.Type,
			Name:    p.Name,
			BaseURL: p.BaseURL,
			Keys:    p.APIKeys,
		})
	}
	return out
}

func printProviders(d *dispatcher.Dispatcher) {
	for _, p := range d.GetProviders() {
		usable := 0
		for _, k := range p.APIKeys {
			if k.Usable() {
				usable++
			}
		}
		fmt.Println(cli.ProviderLine(p.ID, p.Enabled, usable, len(p.APIKeys)))
	}
	table := d.GetRoutingTable()
	fmt.Printf("  %s default %s, fallback %v\n\n", cli.Arrow(), cli.Style(table.DefaultProviderID, cli.Bold), table.FallbackOrder)
}

func checkForUpdates(ctx context.Context, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	info, err := cmd.CheckForUpdates(ctx, nil, cmd.ReleasesURL, cmd.AppVersion)
	if err != nil {
		log.Debug("Update check failed", zap.Error(err))
		return
	}
	if info.Outdated {
		log.Warn("A newer release is available", zap.String("current", info.Current), zap.String("latest", info.Latest))
	}
}
