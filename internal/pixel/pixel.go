// Package pixel sends anonymous usage pixels, limits some of them to once a
// day and keeps failed ones in a retry queue.
package pixel

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dastanaron/browsershell/internal/config"
	"github.com/dastanaron/browsershell/internal/httpclient"
	"github.com/dastanaron/browsershell/internal/monitoring"
)

// Parameter names added by this package.
const (
	ParamOriginalTimestamp = "originalPixelTimestamp"
	ParamRetry             = "retry"
	ParamError             = "e"
)

// Sender fires a single pixel.
type Sender interface {
	Fire(ctx context.Context, name string, params map[string]string) error
}

// KeyValueStore persists small string values.
type KeyValueStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Firer sends pixels as GET {endpoint}/{name}_{formFactor}?params.
type Firer struct {
	client     *httpclient.Client
	endpoint   string
	formFactor string
	disabled   bool
	logger     *zap.Logger
	metrics    *monitoring.Metrics
}

// NewFirer creates a firer from the pixel configuration.
func NewFirer(cfg config.PixelConfig, client *httpclient.Client, logger *zap.Logger, metrics *monitoring.Metrics) *Firer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Firer{
		client:     client,
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		formFactor: cfg.FormFactor,
		disabled:   cfg.Disabled,
		logger:     logger.Named("pixel"),
		metrics:    metrics,
	}
}

// URL returns the address a pixel named name is sent to.
func (f *Firer) URL(name string) string {
	if f.formFactor == "" {
		return fmt.Sprintf("%s/%s", f.endpoint, name)
	}
	return fmt.Sprintf("%s/%s_%s", f.endpoint, name, f.formFactor)
}

// Fire sends the pixel. A non-2xx response is an error.
func (f *Firer) Fire(ctx context.Context, name string, params map[string]string) error {
	if f.disabled {
		f.logger.Debug("pixels disabled", zap.String("pixel", name))
		return nil
	}

	err := f.fire(ctx, name, params)
	f.metrics.PixelFired(kindOf(params), err)
	if err != nil {
		f.logger.Warn("pixel failed", zap.String("pixel", name), zap.Error(err))
		return err
	}

	f.logger.Debug("pixel fired", zap.String("pixel", name))
	return nil
}

func (f *Firer) fire(ctx context.Context, name string, params map[string]string) error {
	req, err := f.client.Request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.SetQueryParams(params).Get(f.URL(name))
	if err != nil {
		return fmt.Errorf("firing %s: %w", name, err)
	}
	return httpclient.CheckResponse(resp)
}

func kindOf(params map[string]string) string {
	if params[ParamRetry] != "" {
		return "retry"
	}
	return "standard"
}

func copyParams(params map[string]string, extra ...string) map[string]string {
	out := make(map[string]string, len(params)+len(extra)/2)
	for k, v := range params {
		out[k] = v
	}
	for i := 0; i+1 < len(extra); i += 2 {
		out[extra[i]] = extra[i+1]
	}
	return out
}
