package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the agent's Prometheus collectors. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	PendingScans  prometheus.Gauge
	ScanOutcomes  *prometheus.CounterVec
	ReplayPasses  prometheus.Counter
	Online        prometheus.Gauge
	Sales         *prometheus.CounterVec
	TicketsIssued prometheus.Counter
	PrintJobs     *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		PendingScans: f.NewGauge(prometheus.GaugeOpts{
			Name: "gopass_pending_scans",
			Help: "Scans waiting in the offline queue",
		}),
		ScanOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gopass_scan_outcomes_total",
			Help: "Scan results by outcome code and path (live or replay)",
		}, []string{"code", "path"}),
		ReplayPasses: f.NewCounter(prometheus.CounterOpts{
			Name: "gopass_replay_passes_total",
			Help: "Offline queue replay passes started",
		}),
		Online: f.NewGauge(prometheus.GaugeOpts{
			Name: "gopass_cloud_online",
			Help: "1 when the GoPass API is reachable",
		}),
		Sales: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gopass_sales_total",
			Help: "Point-of-sale submissions by result",
		}, []string{"result"}),
		TicketsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "gopass_tickets_issued_total",
			Help: "Tickets issued by completed sales",
		}),
		PrintJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gopass_print_jobs_total",
			Help: "Ticket print jobs by status",
		}, []string{"status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
