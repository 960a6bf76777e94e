package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistryInitializesEveryMetric(t *testing.T) {
	r := NewRegistry(DefaultOptions())
	if r.Prometheus() == nil {
		t.Fatal("expected a non-nil prometheus.Registry")
	}
	if r.operationsTotal == nil || r.operationDuration == nil {
		t.Fatal("expected operation counters/histogram to be initialized")
	}
}

func TestRecordOperationUpdatesCounterAndHistogram(t *testing.T) {
	r := NewRegistry(DefaultOptions())
	r.RecordOperation("lsm", "get", "ok", 5*time.Millisecond)
	r.RecordOperation("lsm", "get", "ok", 10*time.Millisecond)

	counter, err := r.operationsTotal.GetMetricWithLabelValues("lsm", "get", "ok")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Fatalf("expected counter value 2, got %v", metric.Counter.GetValue())
	}

	hist, err := r.operationDuration.GetMetricWithLabelValues("lsm", "get")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	var histMetric dto.Metric
	if err := hist.Write(&histMetric); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if histMetric.Histogram.GetSampleCount() != 2 {
		t.Fatalf("expected 2 observations, got %v", histMetric.Histogram.GetSampleCount())
	}
}

func TestSetMemoryBytesAndCacheHitRate(t *testing.T) {
	r := NewRegistry(DefaultOptions())
	r.SetMemoryBytes("btree", 4096)
	r.SetCacheHitRate("btree", 0.75)

	mem, err := r.memoryBytes.GetMetricWithLabelValues("btree")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	var metric dto.Metric
	if err := mem.Write(&metric); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if metric.Gauge.GetValue() != 4096 {
		t.Fatalf("expected memory gauge 4096, got %v", metric.Gauge.GetValue())
	}

	rate, err := r.cacheHitRate.GetMetricWithLabelValues("btree")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	var rateMetric dto.Metric
	if err := rate.Write(&rateMetric); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rateMetric.Gauge.GetValue() != 0.75 {
		t.Fatalf("expected hit-rate gauge 0.75, got %v", rateMetric.Gauge.GetValue())
	}
}
