package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.PixelFired("daily", nil)
	m.PixelFired("daily", nil)
	m.PixelFired("daily", errors.New("boom"))
	m.SetQueued(3)
	m.DownloadFinished("success", 10)
	m.SyncPaused("invalid_login")
	m.ObserveSearch(time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PixelsFired.WithLabelValues("daily")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PixelsFailed.WithLabelValues("daily")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PixelsQueued))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.DownloadBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncPauses.WithLabelValues("invalid_login")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.PixelFired("x", nil)
		m.SetQueued(1)
		m.DownloadFinished("failure", 0)
		m.SyncPaused("x")
		m.ObserveSearch(time.Second)
		m.SearchReloaded()
		m.SetRules(1)
	})
}
