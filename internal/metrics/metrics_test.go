package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Compile-time check: promhttp serves the registry directly.
var _ prometheus.Gatherer = (*Registry)(nil)

func TestNewRegistry_RegistersRuntimeCollectors(t *testing.T) {
	reg := NewRegistry()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	var hasGo bool
	for _, mf := range mfs {
		if strings.HasPrefix(mf.GetName(), "go_") {
			hasGo = true
			break
		}
	}
	if !hasGo {
		t.Error("expected go runtime metrics")
	}
}

func TestRegistry_RecordRequest(t *testing.T) {
	tests := []struct {
		status int
		class  string
	}{
		{101, "1xx"},
		{200, "2xx"},
		{202, "2xx"},
		{304, "3xx"},
		{402, "4xx"},
		{429, "4xx"},
		{502, "5xx"},
	}

	reg := NewRegistry()
	for _, tt := range tests {
		reg.RecordRequest("POST", "/api/uploads", tt.status, 0.01)
	}

	for _, class := range []string{"1xx", "2xx", "3xx", "4xx", "5xx"} {
		var want float64
		for _, tt := range tests {
			if tt.class == class {
				want++
			}
		}
		got := testutil.ToFloat64(reg.httpRequestsTotal.WithLabelValues("POST", "/api/uploads", class))
		if got != want {
			t.Errorf("status %s: got %v requests, want %v", class, got, want)
		}
	}
}

func TestRegistry_DurationHistogram(t *testing.T) {
	reg := NewRegistry()
	reg.RecordRequest("POST", "/api/stats", 202, 0.25)

	expected := `
# HELP http_request_duration_seconds HTTP request duration in seconds
# TYPE http_request_duration_seconds histogram
http_request_duration_seconds_bucket{method="POST",path="/api/stats",le="0.005"} 0
http_request_duration_seconds_bucket{method="POST",path="/api/stats",le="0.01"} 0
http_request_duration_seconds_bucket{method="POST",path="/api/stats",le="0.025"} 0
http_request_duration_seconds_bucket{method="POST",path="/api/stats",le="0.05"} 0
http_request_duration_seconds_bucket{method="POST",path="/api/stats",le="0.1"} 0
http_request_duration_seconds_bucket{method="POST",path="/api/stats",le="0.25"} 1
http_request_duration_seconds_bucket{method="POST",path="/api/stats",le="0.5"} 1
http_request_duration_seconds_bucket{method="POST",path="/api/stats",le="1"} 1
http_request_duration_seconds_bucket{method="POST",path="/api/stats",le="2.5"} 1
http_request_duration_seconds_bucket{method="POST",path="/api/stats",le="5"} 1
http_request_duration_seconds_bucket{method="POST",path="/api/stats",le="10"} 1
http_request_duration_seconds_bucket{method="POST",path="/api/stats",le="+Inf"} 1
http_request_duration_seconds_sum{method="POST",path="/api/stats"} 0.25
http_request_duration_seconds_count{method="POST",path="/api/stats"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "http_request_duration_seconds"); err != nil {
		t.Error(err)
	}
}

func TestRegistry_InFlight(t *testing.T) {
	reg := NewRegistry()

	reg.InFlightInc()
	reg.InFlightInc()
	reg.InFlightDec()

	if got := testutil.ToFloat64(reg.httpRequestsInFlight); got != 1 {
		t.Errorf("in-flight = %v, want 1", got)
	}
}

func TestRegistry_BusinessMetrics(t *testing.T) {
	reg := NewRegistry()

	reg.RecordBatch("ok", 3, 120)
	reg.RecordBatch("ok", 2, 80)
	reg.RecordBatch("failed", 0, 0)
	reg.RecordStatsJob("completed")
	reg.RecordPortfolioRun("ok", 0.4)
	reg.RecordPortfolioRun("failed", 0.1)
	reg.RecordPlanRejection("free", "runs")
	reg.RecordNotification("slack", "ok")
	reg.RecordNotification("slack", "error")
	reg.SetJobsActive("stats", 2)
	reg.SetJobsActive("stats", 1)

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"ok batches", reg.batchesIngested.WithLabelValues("ok"), 2},
		{"failed batches", reg.batchesIngested.WithLabelValues("failed"), 1},
		{"files", reg.filesIngested, 5},
		{"rows", reg.rowsParsed, 200},
		{"stats jobs", reg.statsJobs.WithLabelValues("completed"), 1},
		{"failed runs", reg.portfolioRuns.WithLabelValues("failed"), 1},
		{"plan rejections", reg.planRejections.WithLabelValues("free", "runs"), 1},
		{"notification errors", reg.notifications.WithLabelValues("slack", "error"), 1},
		{"active stats jobs", reg.jobsActive.WithLabelValues("stats"), 1},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Errorf("%s = %v, want %v", c.name, got, c.want)
		}
	}

	if n := testutil.CollectAndCount(reg.portfolioDuration); n != 1 {
		t.Errorf("expected one duration series, got %d", n)
	}
}
