// Package monitoring holds the Prometheus collectors shared by the
// browsershell components. A nil *Metrics is valid and records nothing.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Pixel metrics
	PixelsFired  *prometheus.CounterVec
	PixelsFailed *prometheus.CounterVec
	PixelsQueued prometheus.Gauge

	// Download metrics
	Downloads     *prometheus.CounterVec
	DownloadBytes prometheus.Counter

	// Sync metrics
	SyncPauses *prometheus.CounterVec

	// Search metrics
	SearchDuration  prometheus.Histogram
	SearchCacheMiss prometheus.Counter

	// Content blocking metrics
	RulesCompiled prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		PixelsFired: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browsershell_pixels_fired_total",
				Help: "Total number of pixels sent successfully",
			},
			[]string{"kind"},
		),
		PixelsFailed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browsershell_pixels_failed_total",
				Help: "Total number of pixels that failed to send",
			},
			[]string{"kind"},
		),
		PixelsQueued: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "browsershell_pixels_queued",
				Help: "Number of pixels waiting in the retry queue",
			},
		),

		Downloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browsershell_downloads_total",
				Help: "Total number of finished downloads",
			},
			[]string{"result"},
		),
		DownloadBytes: f.NewCounter(
			prometheus.CounterOpts{
				Name: "browsershell_download_bytes_total",
				Help: "Total bytes written by downloads",
			},
		),

		SyncPauses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "browsershell_sync_pauses_total",
				Help: "Total number of sync pauses by reason",
			},
			[]string{"reason"},
		),

		SearchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "browsershell_search_duration_seconds",
				Help:    "Bookmark search duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
		),
		SearchCacheMiss: f.NewCounter(
			prometheus.CounterOpts{
				Name: "browsershell_search_cache_miss_total",
				Help: "Number of times the search snapshot was reloaded from the store",
			},
		),

		RulesCompiled: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "browsershell_content_blocker_rules",
				Help: "Number of rules in the last compiled content blocker list",
			},
		),
	}
}

// PixelFired records a pixel send of the given kind.
func (m *Metrics) PixelFired(kind string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PixelsFailed.WithLabelValues(kind).Inc()
		return
	}
	m.PixelsFired.WithLabelValues(kind).Inc()
}

// SetQueued records the retry queue length.
func (m *Metrics) SetQueued(n int) {
	if m == nil {
		return
	}
	m.PixelsQueued.Set(float64(n))
}

// DownloadFinished records a download result and its size.
func (m *Metrics) DownloadFinished(result string, bytes int64) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.DownloadBytes.Add(float64(bytes))
	}
}

// SyncPaused records a sync pause.
func (m *Metrics) SyncPaused(reason string) {
	if m == nil {
		return
	}
	m.SyncPauses.WithLabelValues(reason).Inc()
}

// ObserveSearch records a search duration.
func (m *Metrics) ObserveSearch(d time.Duration) {
	if m == nil {
		return
	}
	m.SearchDuration.Observe(d.Seconds())
}

// SearchReloaded records a cache miss.
func (m *Metrics) SearchReloaded() {
	if m == nil {
		return
	}
	m.SearchCacheMiss.Inc()
}

// SetRules records the size of a compiled rule list.
func (m *Metrics) SetRules(n int) {
	if m == nil {
		return
	}
	m.RulesCompiled.Set(float64(n))
}
