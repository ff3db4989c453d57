package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "prod" {
		t.Fatalf("expected App.Env to be prod, got %q", cfg.App.Env)
	}
	if cfg.Store.Kind() != StoreBackendFirestore {
		t.Fatalf("expected firestore backend by default, got %q", cfg.Store.Kind())
	}
	if cfg.GCP.ProjectID != "project-123" {
		t.Fatalf("unexpected project id %q", cfg.GCP.ProjectID)
	}
	if got := cfg.VisitFeed.Timeout; got != 15*time.Second {
		t.Fatalf("expected feed timeout 15s, got %v", got)
	}
	if got := cfg.VisitFeed.LogBodyBytes; got != 256*1024 {
		t.Fatalf("expected 256KiB feed log budget, got %d", got)
	}
	if cfg.PubSub.Enabled() {
		t.Fatal("pubsub should be disabled without a topic")
	}
	if cfg.App.LogFormat != "json" {
		t.Fatalf("expected json log format by default, got %q", cfg.App.LogFormat)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv(EnvAppEnv); err != nil {
		t.Fatalf("failed to unset %s: %v", EnvAppEnv, err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_BackendRequirements(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{name: "firestore without project", env: map[string]string{EnvGCPProjectID: ""}, wantErr: true},
		{name: "redis with url", env: map[string]string{EnvStoreBackend: "redis", EnvRedisURL: "redis://localhost:6379/0"}},
		{name: "redis without address", env: map[string]string{EnvStoreBackend: "redis"}, wantErr: true},
		{name: "memory in prod", env: map[string]string{EnvStoreBackend: "memory"}, wantErr: true},
		{name: "memory in dev", env: map[string]string{EnvStoreBackend: "memory", EnvAppEnv: "dev"}},
		{name: "unknown backend", env: map[string]string{EnvStoreBackend: "mongo"}, wantErr: true},
		{name: "pubsub without project", env: map[string]string{EnvStoreBackend: "memory", EnvAppEnv: "dev", EnvGCPProjectID: "", EnvPubSubVisitEventsTopic: "visit-events"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMinimalEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoad_StreamOrigins(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvStreamAllowedOrigins, "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if len(cfg.Stream.AllowedOrigins) != 2 || cfg.Stream.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.Stream.AllowedOrigins)
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "prod")
	t.Setenv(EnvPort, "8081")
	t.Setenv(EnvStoreBackend, "")
	t.Setenv(EnvGCPProjectID, "project-123")
	t.Setenv(EnvRedisURL, "")
	t.Setenv(EnvRedisAddr, "")
	t.Setenv(EnvPubSubVisitEventsTopic, "")
}

func TestAppConfigEnvHelpers(t *testing.T) {
	devConfig := AppConfig{Env: "DEV"}
	if !devConfig.IsDev() {
		t.Fatalf("expected IsDev true for %q", devConfig.Env)
	}
	if devConfig.IsProd() {
		t.Fatalf("expected IsProd false for %q", devConfig.Env)
	}

	prodConfig := AppConfig{Env: "prod"}
	if !prodConfig.IsProd() {
		t.Fatalf("expected IsProd true for %q", prodConfig.Env)
	}
	if prodConfig.IsDev() {
		t.Fatalf("expected IsDev false for %q", prodConfig.Env)
	}
}

func TestGCPClientOptions(t *testing.T) {
	if opts := (GCPConfig{}).ClientOptions(); len(opts) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(opts))
	}
	if opts := (GCPConfig{CredentialsJSON: `{"type":"service_account"}`}).ClientOptions(); len(opts) != 1 {
		t.Fatalf("expected json credentials option, got %d", len(opts))
	}
	if opts := (GCPConfig{ApplicationCredentials: "/etc/creds.json"}).ClientOptions(); len(opts) != 1 {
		t.Fatalf("expected credentials file option, got %d", len(opts))
	}
}

func TestLoad_RateLimitDefaults(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.RateLimit.Window != time.Minute || cfg.RateLimit.WriteLimit != 120 {
		t.Fatalf("unexpected rate limit defaults %+v", cfg.RateLimit)
	}
}

func TestLoadVisitFeed_IgnoresBackendRequirements(t *testing.T) {
	t.Setenv(EnvAppEnv, "dev")
	t.Setenv(EnvStoreBackend, "redis")
	t.Setenv(EnvVisitFeedBaseURL, "https://feed.example.com/")

	app, feed, err := LoadVisitFeed()
	if err != nil {
		t.Fatalf("LoadVisitFeed() returned unexpected error: %v", err)
	}
	if app.Env != "dev" {
		t.Fatalf("unexpected env %q", app.Env)
	}
	if feed.BaseURL != "https://feed.example.com/" {
		t.Fatalf("unexpected base url %q", feed.BaseURL)
	}
	if feed.Timeout != 15*time.Second {
		t.Fatalf("expected default timeout, got %v", feed.Timeout)
	}
}
