package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	batchesIngested   *prometheus.CounterVec
	filesIngested     prometheus.Counter
	rowsParsed        prometheus.Counter
	statsJobs         *prometheus.CounterVec
	portfolioRuns     *prometheus.CounterVec
	portfolioDuration prometheus.Histogram
	planRejections    *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	jobsActive        *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Business metrics
	r.batchesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equicurve_batches_ingested_total",
			Help: "Total number of upload batches by outcome",
		},
		[]string{"status"},
	)
	r.filesIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "equicurve_files_ingested_total",
			Help: "Total number of trade export files stored",
		},
	)
	r.rowsParsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "equicurve_rows_parsed_total",
			Help: "Total number of data rows parsed from uploads",
		},
	)
	r.statsJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equicurve_stats_jobs_total",
			Help: "Total number of summary statistics jobs",
		},
		[]string{"status"},
	)
	r.portfolioRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equicurve_portfolio_runs_total",
			Help: "Total number of portfolio runs",
		},
		[]string{"status"},
	)
	r.portfolioDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "equicurve_portfolio_run_duration_seconds",
			Help:    "Portfolio run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	r.planRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equicurve_plan_rejections_total",
			Help: "Requests rejected by plan limits",
		},
		[]string{"plan", "kind"},
	)
	r.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equicurve_notifications_total",
			Help: "Total number of notifications sent",
		},
		[]string{"notifier", "status"},
	)
	r.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "equicurve_jobs_active",
			Help: "Number of active jobs",
		},
		[]string{"type"},
	)

	reg.MustRegister(r.batchesIngested)
	reg.MustRegister(r.filesIngested)
	reg.MustRegister(r.rowsParsed)
	reg.MustRegister(r.statsJobs)
	reg.MustRegister(r.portfolioRuns)
	reg.MustRegister(r.portfolioDuration)
	reg.MustRegister(r.planRejections)
	reg.MustRegister(r.notifications)
	reg.MustRegister(r.jobsActive)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordBatch records an upload batch outcome along with its file and row counts.
func (r *Registry) RecordBatch(status string, files, rows int) {
	r.batchesIngested.WithLabelValues(status).Inc()
	r.filesIngested.Add(float64(files))
	r.rowsParsed.Add(float64(rows))
}

// RecordStatsJob records a finished summary statistics job.
func (r *Registry) RecordStatsJob(status string) {
	r.statsJobs.WithLabelValues(status).Inc()
}

// RecordPortfolioRun records a portfolio run completion.
func (r *Registry) RecordPortfolioRun(status string, duration float64) {
	r.portfolioRuns.WithLabelValues(status).Inc()
	r.portfolioDuration.Observe(duration)
}

// RecordPlanRejection records a request refused by a plan limit.
func (r *Registry) RecordPlanRejection(plan, kind string) {
	r.planRejections.WithLabelValues(plan, kind).Inc()
}

// RecordNotification records a notifier delivery.
func (r *Registry) RecordNotification(notifier, status string) {
	r.notifications.WithLabelValues(notifier, status).Inc()
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
