package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCoreMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCoreMetrics(reg)
	m.AddCodesIssued("qr", 3)
	m.AddBulkRows("applied", 100)
	m.AddBulkRows("not_allowed", 2)
	m.ObserveBulkChunk(120 * time.Millisecond)
	m.IncBulkJob("completed")
	m.IncBinding("")
	m.AddGraphEdges(4)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	checks := []struct {
		name  string
		label string
		value string
		want  float64
	}{
		{name: "codes_issued_total", label: "mode", value: "qr", want: 3},
		{name: "bulk_status_rows_total", label: "result", value: "applied", want: 100},
		{name: "bulk_status_rows_total", label: "result", value: "not_allowed", want: 2},
		{name: "bulk_jobs_total", label: "status", value: "completed", want: 1},
		{name: "device_bind_total", label: "result", value: "unknown", want: 1},
	}
	for _, c := range checks {
		got, err := fetchCounterValue(mfs, c.name, c.label, c.value)
		if err != nil {
			t.Fatalf("fetch %s: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s{%s=%s} want %v got %v", c.name, c.label, c.value, c.want, got)
		}
	}

	mf := findMetricFamily(mfs, "bulk_status_chunk_seconds")
	if mf == nil || len(mf.GetMetric()) != 1 || mf.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("chunk histogram should have one sample")
	}
	edges := findMetricFamily(mfs, "code_graph_edges_total")
	if edges == nil || edges.GetMetric()[0].GetCounter().GetValue() != 4 {
		t.Fatalf("graph edge counter mismatch")
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	m := NewCoreMetrics(nil)
	m.AddCodesIssued("qr", 1)
	m.ObserveBulkChunk(time.Second)
	var none *CoreMetrics
	none.IncBulkJob("failed")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
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
