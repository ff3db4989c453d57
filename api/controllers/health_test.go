package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldpath/visittracker/pkg/config"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	tests := []struct {
		name string
		deps map[string]Pinger
		want int
	}{
		{name: "all healthy", deps: map[string]Pinger{"store": stubPinger{}, "pubsub": stubPinger{}}, want: http.StatusOK},
		{name: "nil skipped", deps: map[string]Pinger{"store": stubPinger{}, "redis": nil}, want: http.StatusOK},
		{name: "store down", deps: map[string]Pinger{"store": stubPinger{err: errors.New("unavailable")}}, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			HealthReady(cfg, testLogger(), tt.deps)(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if resp.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.Code)
			}
			if resp.Header().Get("X-VisitTracker-Env") != "dev" {
				t.Fatal("missing env header")
			}
		})
	}
}

func TestHealthLive(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthLive(&config.Config{})(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
