// Package metrics holds the prometheus collectors for admission decisions.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	admissionVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membergate_admission_verdicts_total",
			Help: "Signup admission verdicts by deciding source and result.",
		},
		[]string{"source", "admitted"},
	)

	remoteLookupSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "membergate_remote_lookup_seconds",
			Help:    "Registry lookup latency by outcome.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	configResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membergate_config_resolutions_total",
			Help: "Remote registry configuration resolutions by result.",
		},
		[]string{"result"},
	)

	usageUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membergate_usage_updates_total",
			Help: "Invite code usage count updates by result.",
		},
		[]string{"result"},
	)

	fallbackAdmissions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "membergate_fallback_admissions_total",
			Help: "Signups admitted by the static fallback list, not counted against any code.",
		},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			admissionVerdicts, remoteLookupSeconds, configResolutions,
			usageUpdates, fallbackAdmissions,
		)
	})
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func ObserveVerdict(source string, admitted bool) {
	admissionVerdicts.WithLabelValues(source, strconv.FormatBool(admitted)).Inc()
}

func ObserveRemoteLookup(outcome string, d time.Duration) {
	remoteLookupSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

func IncConfigResolution(result string) {
	configResolutions.WithLabelValues(result).Inc()
}

func IncUsageUpdate(result string) {
	usageUpdates.WithLabelValues(result).Inc()
}

func IncFallbackAdmission() {
	fallbackAdmissions.Inc()
}
