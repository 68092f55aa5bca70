package pixel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dastanaron/browsershell/internal/config"
	"github.com/dastanaron/browsershell/internal/httpclient"
	"github.com/dastanaron/browsershell/internal/logging"
	"github.com/dastanaron/browsershell/internal/monitoring"
)

type memStore map[string]string

func (s memStore) Get(key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

func (s memStore) Set(key, value string) error {
	s[key] = value
	return nil
}

type firedPixel struct {
	name   string
	params map[string]string
}

type fakeSender struct {
	mu    sync.Mutex
	fired []firedPixel
	fail  map[string]bool
}

func (s *fakeSender) Fire(_ context.Context, name string, params map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fired = append(s.fired, firedPixel{name: name, params: params})
	if s.fail[name] {
		return errors.Error("network down")
	}
	return nil
}

func (s *fakeSender) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.fired))
	for _, f := range s.fired {
		names = append(names, f.name)
	}
	return names
}

func testClient() *httpclient.Client {
	opts := httpclient.DefaultOptions()
	opts.RetryMax = 0
	opts.Timeout = 5 * time.Second
	return httpclient.New(opts)
}

func TestFirer(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	f := NewFirer(config.PixelConfig{Endpoint: srv.URL + "/t/", FormFactor: "desktop"}, testClient(), logging.Nop(), metrics)

	assert.Equal(t, srv.URL+"/t/m_event_desktop", f.URL("m_event"))

	require.NoError(t, f.Fire(context.Background(), "m_event", map[string]string{"key": "value"}))
	assert.Equal(t, "/t/m_event_desktop", gotPath)
	assert.Equal(t, "value", gotQuery)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PixelsFired.WithLabelValues("standard")))
}

func TestFirer_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFirer(config.PixelConfig{Endpoint: srv.URL}, testClient(), logging.Nop(), nil)

	err := f.Fire(context.Background(), "m_event", nil)
	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
}

func TestFirer_Disabled(t *testing.T) {
	f := NewFirer(config.PixelConfig{Endpoint: "http://127.0.0.1:0", Disabled: true}, testClient(), nil, nil)
	assert.NoError(t, f.Fire(context.Background(), "m_event", nil))
}

func TestDaily_OncePerDay(t *testing.T) {
	sender := &fakeSender{}
	d := NewDaily(sender, memStore{})
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	d.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, d.Fire(ctx, "m_pixel", nil, nil))
	assert.ErrorIs(t, d.Fire(ctx, "m_pixel", nil, nil), ErrAlreadyFired)

	now = now.Add(24 * time.Hour)
	require.NoError(t, d.Fire(ctx, "m_pixel", nil, nil))

	assert.Equal(t, []string{"m_pixel", "m_pixel"}, sender.names())
}

func TestDaily_PerError(t *testing.T) {
	sender := &fakeSender{}
	d := NewDaily(sender, memStore{})
	ctx := context.Background()

	errA, errB := errors.Error("a"), errors.Error("b")
	require.NoError(t, d.Fire(ctx, "m_pixel", errA, nil))
	require.NoError(t, d.Fire(ctx, "m_pixel", errB, nil))
	assert.ErrorIs(t, d.Fire(ctx, "m_pixel", errA, nil), ErrAlreadyFired)
	assert.ErrorIs(t, d.Fire(ctx, "m_pixel", errB, nil), ErrAlreadyFired)

	require.Len(t, sender.fired, 2)
	assert.Equal(t, "a", sender.fired[0].params[ParamError])
	assert.Equal(t, "b", sender.fired[1].params[ParamError])
}

func TestDaily_FireDailyAndCount(t *testing.T) {
	sender := &fakeSender{}
	d := NewDaily(sender, memStore{})
	ctx := context.Background()

	dailyErr, countErr := d.FireDailyAndCount(ctx, "m_pixel", LegacySuffixes, nil, nil)
	require.NoError(t, dailyErr)
	require.NoError(t, countErr)

	dailyErr, countErr = d.FireDailyAndCount(ctx, "m_pixel", LegacySuffixes, nil, nil)
	assert.ErrorIs(t, dailyErr, ErrAlreadyFired)
	assert.NoError(t, countErr)

	assert.Equal(t, []string{"m_pixel_d", "m_pixel_c", "m_pixel_c"}, sender.names())

	sender.fired = nil
	_, _ = d.FireDailyAndCount(ctx, "m_other", ModernSuffixes, nil, nil)
	assert.Equal(t, []string{"m_other_daily", "m_other_count"}, sender.names())
}

func TestDaily_NetworkErrorsBubbleUp(t *testing.T) {
	sender := &fakeSender{fail: map[string]bool{"m_pixel_d": true, "m_pixel_c": true}}
	d := NewDaily(sender, memStore{})

	dailyErr, countErr := d.FireDailyAndCount(context.Background(), "m_pixel", LegacySuffixes, nil, nil)
	assert.Error(t, dailyErr)
	assert.Error(t, countErr)
	assert.NotErrorIs(t, dailyErr, ErrAlreadyFired)
}

func newTestPersistent(t *testing.T, sender Sender, now *time.Time) (*Persistent, *Queue) {
	t.Helper()

	q := NewQueue(t.TempDir())
	p := NewPersistent(sender, memStore{}, q, logging.Nop(), nil)
	p.now = func() time.Time { return *now }
	return p, q
}

func TestPersistent_SuccessStoresNothing(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	p, q := newTestPersistent(t, sender, &now)

	require.NoError(t, p.FireDailyAndCount(context.Background(), "m_pixel", ModernSuffixes, nil, map[string]string{"key": "value"}))

	stored, err := q.Stored()
	require.NoError(t, err)
	assert.Empty(t, stored)

	require.Len(t, sender.fired, 2)
	assert.Equal(t, map[string]string{"key": "value", ParamOriginalTimestamp: "2024-05-01T10:00:00Z"}, sender.fired[0].params)
}

func TestPersistent_AlreadyFiredIsNotStored(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	p, q := newTestPersistent(t, sender, &now)
	ctx := context.Background()

	require.NoError(t, p.FireDailyAndCount(ctx, "m_pixel", ModernSuffixes, nil, nil))
	require.NoError(t, p.FireDailyAndCount(ctx, "m_pixel", ModernSuffixes, nil, nil))

	stored, err := q.Stored()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestPersistent_FailuresAreStored(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sender := &fakeSender{fail: map[string]bool{"m_pixel_count": true}}
	p, q := newTestPersistent(t, sender, &now)

	require.NoError(t, p.FireDailyAndCount(context.Background(), "m_pixel", ModernSuffixes, nil, map[string]string{"param": "value"}))

	stored, err := q.Stored()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "m_pixel_count", stored[0].Name)
	assert.Equal(t, map[string]string{"param": "value", ParamOriginalTimestamp: "2024-05-01T10:00:00Z"}, stored[0].Params)

	ts, ok := stored[0].Timestamp()
	require.True(t, ok)
	assert.True(t, ts.Equal(now))
}

func TestPersistent_SendQueued(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sender := &fakeSender{fail: map[string]bool{"m_pixel_daily": true, "m_pixel_count": true}}
	p, q := newTestPersistent(t, sender, &now)
	ctx := context.Background()

	require.NoError(t, p.FireDailyAndCount(ctx, "m_pixel", ModernSuffixes, nil, nil))
	stored, err := q.Stored()
	require.NoError(t, err)
	require.Len(t, stored, 2)

	// The retry of the daily pixel still fails, the count one goes through.
	sender.fail = map[string]bool{"m_pixel_daily": true}
	sender.fired = nil
	now = now.Add(2 * time.Hour)
	require.NoError(t, p.SendQueued(ctx))

	require.Len(t, sender.fired, 2)
	for _, f := range sender.fired {
		assert.Equal(t, "true", f.params[ParamRetry])
		assert.Equal(t, "2024-05-01T10:00:00Z", f.params[ParamOriginalTimestamp])
	}

	stored, err = q.Stored()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "m_pixel_daily", stored[0].Name)
	assert.Empty(t, stored[0].Params[ParamRetry])

	// Processed less than an hour ago.
	sender.fired = nil
	now = now.Add(30 * time.Minute)
	require.NoError(t, p.SendQueued(ctx))
	assert.Empty(t, sender.fired)
}

func TestPersistent_DropsExpiredPixels(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	p, q := newTestPersistent(t, sender, &now)

	old := now.Add(-29 * 24 * time.Hour).Format(time.RFC3339)
	require.NoError(t, q.Append(Metadata{Name: "m_old", Params: map[string]string{ParamOriginalTimestamp: old}}))

	require.NoError(t, p.SendQueued(context.Background()))
	assert.Empty(t, sender.fired)

	stored, err := q.Stored()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestQueue_Limit(t *testing.T) {
	q := NewQueue(t.TempDir())
	for i := 0; i < QueueLimit+5; i++ {
		require.NoError(t, q.Append(Metadata{Name: "m_pixel", Params: map[string]string{"i": string(rune('a' + i%26))}}))
	}

	stored, err := q.Stored()
	require.NoError(t, err)
	assert.Len(t, stored, QueueLimit)

	// A fresh queue reads the same file.
	reread, err := NewQueue(filepath.Dir(q.path)).Stored()
	require.NoError(t, err)
	assert.Len(t, reread, QueueLimit)
}
