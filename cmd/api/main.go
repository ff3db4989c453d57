package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/fieldpath/visittracker/api"
	"github.com/fieldpath/visittracker/api/controllers"
	"github.com/fieldpath/visittracker/api/routes"
	"github.com/fieldpath/visittracker/internal/directory"
	"github.com/fieldpath/visittracker/internal/visits"
	"github.com/fieldpath/visittracker/pkg/config"
	"github.com/fieldpath/visittracker/pkg/docstore"
	"github.com/fieldpath/visittracker/pkg/docstore/firestore"
	"github.com/fieldpath/visittracker/pkg/docstore/memory"
	"github.com/fieldpath/visittracker/pkg/docstore/redisstore"
	"github.com/fieldpath/visittracker/pkg/instance"
	"github.com/fieldpath/visittracker/pkg/logger"
	"github.com/fieldpath/visittracker/pkg/metrics"
	"github.com/fieldpath/visittracker/pkg/pubsub"
	"github.com/fieldpath/visittracker/pkg/redis"
)

func main() {
	os.Exit(run())
}

func run() int {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return 1
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		var closeErr error
		for i := len(closers) - 1; i >= 0; i-- {
			closeErr = multierr.Append(closeErr, closers[i].Close())
		}
		if closeErr != nil {
			logg.Error(context.Background(), "error closing dependencies", closeErr)
		}
	}()

	store, redisClient, err := openStore(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap document store", err)
		return 1
	}
	closers = append(closers, store)
	deps := map[string]controllers.Pinger{"store": store}

	var publisher visits.EventPublisher
	if cfg.PubSub.Enabled() {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			return 1
		}
		closers = append(closers, pubsubClient)
		publisher = pubsubClient.VisitEvents()
		deps["pubsub"] = pubsubClient
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	visitMetrics := metrics.NewVisitMetrics(registry)

	visitsService, err := visits.NewService(visits.ServiceParams{
		Repository: visits.NewRepository(store, logg, visitMetrics),
		Logger:     logg,
		Metrics:    visitMetrics,
		Publisher:  publisher,
	})
	if err != nil {
		logg.Error(ctx, "failed to create visits service", err)
		return 1
	}

	directoryService, err := directory.NewService(directory.ServiceParams{
		Repository: directory.NewRepository(store, logg),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create directory service", err)
		return 1
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"backend": cfg.Store.Kind(),
	})
	logg.Info(logCtx, "starting api server")

	handler := routes.NewRouter(
		cfg,
		logg,
		deps,
		redisClient,
		visitsService,
		directoryService,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	)
	if err := api.ListenAndServe(ctx, api.NewServer(addr, handler), logg); err != nil {
		logg.Error(logCtx, "api server stopped unexpectedly", err)
		return 1
	}
	return 0
}

// openStore selects the document store backend. The redis client is also
// returned for rate limiting and is nil for the other backends.
func openStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (docstore.Store, *redis.Client, error) {
	switch cfg.Store.Kind() {
	case config.StoreBackendRedis:
		client, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(client, logg), client, nil
	case config.StoreBackendMemory:
		logg.Warn(ctx, "using in-memory document store; data is lost on restart")
		return memory.New(), nil, nil
	default:
		store, err := firestore.New(ctx, cfg.GCP, logg)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}
