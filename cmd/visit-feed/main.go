package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/fieldpath/visittracker/internal/feed"
	"github.com/fieldpath/visittracker/pkg/config"
	"github.com/fieldpath/visittracker/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "visit-feed", Output: os.Stderr})

	_ = godotenv.Load()

	baseURL := flag.String("base-url", "", "feed base url (overrides "+config.EnvVisitFeedBaseURL+")")
	timeout := flag.Duration("timeout", 0, "request timeout (overrides config)")
	quiet := flag.Bool("quiet", false, "log the outcome only, do not print records")
	flag.Parse()

	app, feedCfg, err := config.LoadVisitFeed()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "visit-feed",
		Output:      os.Stderr,
		Level:       logger.ParseLevel(app.LogLevel),
		Format:      app.LogFormat,
		WarnStack:   app.LogWarnStack,
	})

	if *baseURL != "" {
		feedCfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		feedCfg.Timeout = *timeout
	}

	client, err := feed.NewClient(feedCfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create feed client", err)
		os.Exit(1)
	}

	ctx := logg.WithField(context.Background(), "base_url", feedCfg.BaseURL)
	start := time.Now()
	records, err := client.FetchVisits(ctx)
	ctx = logg.WithFields(ctx, map[string]any{
		"outcome":     feed.Outcome(err),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		logg.Error(ctx, "visit feed fetch failed", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "records", len(records)), "visit feed fetched")

	if *quiet {
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write records: %v\n", err)
		os.Exit(1)
	}
}
