package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestVisitMetricsExportsStreamCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewVisitMetrics(reg)

	metrics.ListenerStarted()
	metrics.ListenerStarted()
	metrics.ListenerStopped()
	metrics.IncSnapshot()
	metrics.IncSnapshot()
	metrics.AddDecodeDrops(3)
	metrics.AddDecodeDrops(0)
	metrics.IncStreamError()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchGaugeValue(mfs, "visit_stream_active_listeners"); err != nil {
		t.Fatalf("fetch listeners: %v", err)
	} else if got != 1 {
		t.Fatalf("expected listeners=1, got %f", got)
	}
	for name, want := range map[string]float64{
		"visit_stream_snapshots_total":    2,
		"visit_stream_decode_drops_total": 3,
		"visit_stream_errors_total":       1,
	} {
		if got, err := fetchCounterValue(mfs, name, "", ""); err != nil {
			t.Fatalf("fetch %s: %v", name, err)
		} else if got != want {
			t.Fatalf("expected %s=%f, got %f", name, want, got)
		}
	}
}

func TestVisitMetricsExportsWritesAndFeedHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewVisitMetrics(reg)

	metrics.IncWrite("approve", "ok")
	metrics.IncWrite("approve", "ok")
	metrics.IncWrite("", "")
	metrics.ObserveFeedRequest("ok", 120*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "visit_writes_total", "op", "approve"); err != nil {
		t.Fatalf("fetch writes: %v", err)
	} else if got != 2 {
		t.Fatalf("expected writes=2, got %f", got)
	}
	if _, err := fetchCounterValue(mfs, "visit_writes_total", "op", "unknown"); err != nil {
		t.Fatalf("expected empty op to normalize: %v", err)
	}
	if got, err := fetchHistogramSum(mfs, "visit_feed_request_duration_seconds", "outcome", "ok"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestVisitMetricsNilSafe(t *testing.T) {
	var metrics *VisitMetrics
	metrics.ListenerStarted()
	metrics.IncWrite("create", "ok")

	unregistered := NewVisitMetrics(nil)
	unregistered.IncSnapshot()
	unregistered.ObserveFeedRequest("ok", time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if label == "" || matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	return mf.GetMetric()[0].GetGauge().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
