package reportsync

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts report lifecycle events per tenant.
type Metrics struct {
	reportsCreated *prometheus.CounterVec
	polls          *prometheus.CounterVec
	downloads      *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reportsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesreport",
			Name:      "reports_created_total",
			Help:      "Reports requested from the reporting API.",
		}, []string{"tenant"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesreport",
			Name:      "report_polls_total",
			Help:      "Report status polls by observed processing status.",
		}, []string{"tenant", "status"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesreport",
			Name:      "report_downloads_total",
			Help:      "Report documents downloaded.",
		}, []string{"tenant"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salesreport",
			Name:      "erp_deliveries_total",
			Help:      "ERP submissions by outcome.",
		}, []string{"tenant", "outcome"}),
	}
	reg.MustRegister(m.reportsCreated, m.polls, m.downloads, m.deliveries)
	return m
}

func (m *Metrics) reportCreated(tenant string) {
	if m != nil {
		m.reportsCreated.WithLabelValues(tenant).Inc()
	}
}

func (m *Metrics) polled(tenant, status string) {
	if m != nil {
		m.polls.WithLabelValues(tenant, status).Inc()
	}
}

func (m *Metrics) downloaded(tenant string) {
	if m != nil {
		m.downloads.WithLabelValues(tenant).Inc()
	}
}

func (m *Metrics) delivered(tenant string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.deliveries.WithLabelValues(tenant, outcome).Inc()
}
