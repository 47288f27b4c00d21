// Package metrics defines the Prometheus collectors shared by the API and
// the worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the attendance collectors.
type Metrics struct {
	CheckIns        *prometheus.CounterVec
	FraudScore      prometheus.Histogram
	HTTPDuration    *prometheus.HistogramVec
	ScanDuration    prometheus.Histogram
	ScanFailures    prometheus.Counter
	StudentFailures prometheus.Counter
	Warnings        prometheus.Counter
	Notifications   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "checkins_total",
			Help:      "Check-in attempts by outcome.",
		}, []string{"outcome"}),
		FraudScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "fraud_score",
			Help:      "Fraud score of accepted check-ins.",
			Buckets:   []float64{0, 30, 40, 50, 60, 70, 100},
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "absentee",
			Name:      "scan_duration_seconds",
			Help:      "Duration of absentee scans.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ScanFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "absentee",
			Name:      "scan_failures_total",
			Help:      "Absentee scans that failed before completing.",
		}),
		StudentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "absentee",
			Name:      "student_failures_total",
			Help:      "Students skipped in a scan because of an error.",
		}),
		Warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "absentee",
			Name:      "warnings_total",
			Help:      "Absentee warnings sent.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "notifications_total",
			Help:      "Notifications handed to the delivery queue by category and result.",
		}, []string{"category", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.CheckIns, m.FraudScore, m.HTTPDuration, m.ScanDuration,
			m.ScanFailures, m.StudentFailures, m.Warnings, m.Notifications)
	}
	return m
}
