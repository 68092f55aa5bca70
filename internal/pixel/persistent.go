package pixel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dastanaron/browsershell/internal/monitoring"
)

// Queue defaults.
const (
	QueueFileName   = "queued-pixels.json"
	QueueLimit      = 100
	MaxPixelAge     = 28 * 24 * time.Hour
	ProcessingGap   = time.Hour
	lastQueueRunKey = "pixel.persistent.lastProcessed"
)

// Metadata is a queued pixel.
type Metadata struct {
	ID     uuid.UUID         `json:"id"`
	Name   string            `json:"eventName"`
	Params map[string]string `json:"additionalParameters"`
}

// Timestamp returns the time the pixel was first fired.
func (m Metadata) Timestamp() (time.Time, bool) {
	ts, ok := m.Params[ParamOriginalTimestamp]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, ts)
	return t, err == nil
}

// Queue is the JSON file holding pixels waiting for a retry. It keeps at most
// limit entries, dropping the oldest.
type Queue struct {
	path  string
	limit int

	mu     sync.Mutex
	cached []Metadata
}

// NewQueue creates a queue stored in dir.
func NewQueue(dir string) *Queue {
	return &Queue{path: filepath.Join(dir, QueueFileName), limit: QueueLimit}
}

// Append adds pixels to the end of the queue.
func (q *Queue) Append(pixels ...Metadata) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, err := q.read()
	if err != nil {
		return err
	}

	stored = append(stored, pixels...)
	if len(stored) > q.limit {
		stored = stored[len(stored)-q.limit:]
	}
	return q.write(stored)
}

// Remove drops the pixels with the given IDs.
func (q *Queue) Remove(ids map[uuid.UUID]struct{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, err := q.read()
	if err != nil {
		return err
	}

	kept := make([]Metadata, 0, len(stored))
	for _, p := range stored {
		if _, ok := ids[p.ID]; !ok {
			kept = append(kept, p)
		}
	}
	return q.write(kept)
}

// Stored returns the queued pixels.
func (q *Queue) Stored() ([]Metadata, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, err := q.read()
	if err != nil {
		return nil, err
	}
	return append([]Metadata(nil), stored...), nil
}

func (q *Queue) read() ([]Metadata, error) {
	if q.cached != nil {
		return q.cached, nil
	}

	data, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading pixel queue: %w", err)
	}

	var pixels []Metadata
	if err := json.Unmarshal(data, &pixels); err != nil {
		return nil, fmt.Errorf("decoding pixel queue: %w", err)
	}
	q.cached = pixels
	return pixels, nil
}

func (q *Queue) write(pixels []Metadata) error {
	if pixels == nil {
		pixels = []Metadata{}
	}

	data, err := json.Marshal(pixels)
	if err != nil {
		return fmt.Errorf("encoding pixel queue: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(q.path, data, 0o644); err != nil {
		return fmt.Errorf("writing pixel queue: %w", err)
	}
	q.cached = pixels
	return nil
}

// Persistent sends daily and count pixels and queues the failed ones for a
// later retry.
type Persistent struct {
	daily   *Daily
	sender  Sender
	queue   *Queue
	store   KeyValueStore
	logger  *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time

	sending atomic.Bool
}

// NewPersistent creates a persistent pixel sender.
func NewPersistent(sender Sender, store KeyValueStore, queue *Queue, logger *zap.Logger, metrics *monitoring.Metrics) *Persistent {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Persistent{
		daily:   NewDaily(sender, store),
		sender:  sender,
		queue:   queue,
		store:   store,
		logger:  logger.Named("pixel"),
		metrics: metrics,
		now:     time.Now,
	}
	p.daily.now = func() time.Time { return p.now() }
	return p
}

// FireDailyAndCount fires the pair of pixels stamping them with the current
// time. Sends that fail for any reason other than ErrAlreadyFired are queued.
// Only a failure to queue is returned.
func (p *Persistent) FireDailyAndCount(ctx context.Context, name string, suffixes Suffixes, pixelErr error, params map[string]string) error {
	params = copyParams(params, ParamOriginalTimestamp, p.now().UTC().Format(time.RFC3339))
	if pixelErr != nil {
		params = copyParams(params, ParamError, pixelErr.Error())
	}

	dailyErr, countErr := p.daily.FireDailyAndCount(ctx, name, suffixes, pixelErr, params)

	var failed []Metadata
	if dailyErr != nil && !errors.Is(dailyErr, ErrAlreadyFired) {
		failed = append(failed, Metadata{ID: uuid.New(), Name: name + suffixes.Daily, Params: params})
	}
	if countErr != nil {
		failed = append(failed, Metadata{ID: uuid.New(), Name: name + suffixes.Count, Params: params})
	}
	if len(failed) == 0 {
		return nil
	}

	p.logger.Info("queueing failed pixels", zap.String("pixel", name), zap.Int("count", len(failed)))
	if err := p.queue.Append(failed...); err != nil {
		return errors.Annotate(err, "queueing %s: %w", name)
	}
	p.reportQueued()
	return nil
}

// SendQueued retries the queued pixels, marking them as retries. Pixels older
// than MaxPixelAge are dropped unsent and failures stay queued. It does
// nothing when the queue was processed less than ProcessingGap ago or is
// being processed already. Pixels queued while it runs are kept.
func (p *Persistent) SendQueued(ctx context.Context) error {
	if !p.sending.CompareAndSwap(false, true) {
		return nil
	}
	defer p.sending.Store(false)

	now := p.now()
	if last, ok, err := p.store.Get(lastQueueRunKey); err == nil && ok {
		if t, err := time.Parse(time.RFC3339, last); err == nil && now.Sub(t) < ProcessingGap {
			p.logger.Debug("pixel queue processed recently", zap.Time("last", t))
			return nil
		}
	}

	pixels, err := p.queue.Stored()
	if err != nil {
		return err
	}

	done := make(map[uuid.UUID]struct{}, len(pixels))
	for _, px := range pixels {
		if ts, ok := px.Timestamp(); ok && now.Sub(ts) > MaxPixelAge {
			done[px.ID] = struct{}{}
			continue
		}

		if err := p.sender.Fire(ctx, px.Name, copyParams(px.Params, ParamRetry, "true")); err != nil {
			continue
		}
		done[px.ID] = struct{}{}
	}

	if err := p.queue.Remove(done); err != nil {
		return err
	}
	if err := p.store.Set(lastQueueRunKey, now.UTC().Format(time.RFC3339)); err != nil {
		p.logger.Warn("saving queue run time", zap.Error(err))
	}

	p.logger.Info("pixel queue processed",
		zap.Int("queued", len(pixels)),
		zap.Int("removed", len(done)))
	p.reportQueued()

	return nil
}

func (p *Persistent) reportQueued() {
	if pixels, err := p.queue.Stored(); err == nil {
		p.metrics.SetQueued(len(pixels))
	}
}
