package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all domain-specific metrics for the pipeline
type Registry struct {
	// Compliance metrics
	ComplianceCheckDuration *prometheus.HistogramVec
	ComplianceVerdicts      *prometheus.CounterVec
	CheckerRetries          *prometheus.CounterVec

	// Distribution metrics
	LeadsSubmitted    prometheus.Counter
	LeadsRejected     *prometheus.CounterVec
	DialerPosts       *prometheus.CounterVec
	DialerPostLatency *prometheus.HistogramVec

	// Repair metrics
	RepairWaves      prometheus.Counter
	RepairedLeads    prometheus.Counter
	MismatchedLeads  prometheus.Gauge
	ExportDNCMatches prometheus.Counter
}

// NewRegistry creates and registers all metrics against the given registerer.
// Pass prometheus.NewRegistry() in tests to avoid global state.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ComplianceCheckDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compliance_check_duration_seconds",
			Help:    "Duration of individual compliance checker calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		ComplianceVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_verdicts_total",
			Help: "Per-checker verdicts by outcome",
		}, []string{"source", "verdict"}),
		CheckerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checker_retries_total",
			Help: "Retry attempts against rate-limited upstreams",
		}, []string{"source"}),
		LeadsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leads_submitted_total",
			Help: "Leads accepted into the intake pipeline",
		}),
		LeadsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_rejected_total",
			Help: "Leads rejected before persistence, by reason",
		}, []string{"reason"}),
		DialerPosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dialer_posts_total",
			Help: "Lead posts to downstream destinations by outcome",
		}, []string{"destination", "outcome"}),
		DialerPostLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dialer_post_duration_seconds",
			Help:    "Latency of destination post calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"destination"}),
		RepairWaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repair_waves_total",
			Help: "Repair waves executed",
		}),
		RepairedLeads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repaired_leads_total",
			Help: "Leads whose campaign id was corrected",
		}),
		MismatchedLeads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mismatched_leads",
			Help: "Mismatched leads found by the most recent detection scan",
		}),
		ExportDNCMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dnc_export_matches_total",
			Help: "DNC matches found by monthly export scrubs",
		}),
	}

	reg.MustRegister(
		r.ComplianceCheckDuration,
		r.ComplianceVerdicts,
		r.CheckerRetries,
		r.LeadsSubmitted,
		r.LeadsRejected,
		r.DialerPosts,
		r.DialerPostLatency,
		r.RepairWaves,
		r.RepairedLeads,
		r.MismatchedLeads,
		r.ExportDNCMatches,
	)

	return r
}
