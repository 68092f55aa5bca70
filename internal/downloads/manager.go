// Package downloads fetches files into the downloads directory.
package downloads

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dastanaron/browsershell/internal/httpclient"
	"github.com/dastanaron/browsershell/internal/monitoring"
)

// Errors.
const (
	ErrCancelled errors.Error = "download cancelled"
	ErrStarted   errors.Error = "download already started"
)

const (
	unseenKey  = "downloads.unseen"
	partialDir = ".partial"
)

// PreviewTypes are MIME patterns of files previewed in place instead of
// being kept in the downloads directory.
var PreviewTypes = []string{
	"application/vnd.apple.pkpass",
	"model/vnd.reality",
	"model/vnd.usdz+zip",
}

// Store keeps the unseen downloads flag.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Metadata describes a resource about to be downloaded.
type Metadata struct {
	URL               string
	MIMEType          string
	SuggestedFilename string
}

// State is the state of a download.
type State int

// Download states.
const (
	StatePending State = iota
	StateRunning
	StateFinished
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Download is a single file transfer.
type Download struct {
	ID        uuid.UUID
	URL       string
	Filename  string
	MIMEType  string
	Temporary bool

	mu       sync.Mutex
	state    State
	location string
	written  int64
	err      error
	cancel   context.CancelFunc
	done     chan struct{}
}

// State returns the current state.
func (d *Download) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Location returns where the file ended up once finished.
func (d *Download) Location() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location
}

// BytesWritten returns the number of bytes received so far.
func (d *Download) BytesWritten() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}

// Wait blocks until the download ends and returns its error.
func (d *Download) Wait(ctx context.Context) error {
	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// EventType tells what happened to a download.
type EventType int

// Event types.
const (
	EventStarted EventType = iota
	EventFinished
)

// Event is sent to subscribers when a download starts or finishes.
type Event struct {
	Type     EventType
	Download *Download
	Err      error
}

// Manager owns the running downloads.
type Manager struct {
	dir     string
	tmpDir  string
	client  *httpclient.Client
	store   Store
	logger  *zap.Logger
	metrics *monitoring.Metrics
	preview []glob.Glob

	mu          sync.Mutex
	downloads   map[uuid.UUID]*Download
	subscribers map[int]func(Event)
	nextSub     int
}

// NewManager creates a manager saving into dir. Files are fetched into a
// hidden directory inside dir first so the final move never crosses devices.
func NewManager(dir string, client *httpclient.Client, store Store, logger *zap.Logger, metrics *monitoring.Metrics) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = httpclient.New(httpclient.DefaultOptions())
	}

	preview := make([]glob.Glob, 0, len(PreviewTypes))
	for _, p := range PreviewTypes {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Annotate(err, "compiling preview type %q: %w", p)
		}
		preview = append(preview, g)
	}

	tmpDir := filepath.Join(dir, partialDir)
	for _, d := range []string{dir, tmpDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, errors.Annotate(err, "creating %s: %w", d)
		}
	}

	return &Manager{
		dir:         dir,
		tmpDir:      tmpDir,
		client:      client,
		store:       store,
		logger:      logger.Named("downloads"),
		metrics:     metrics,
		preview:     preview,
		downloads:   map[uuid.UUID]*Download{},
		subscribers: map[int]func(Event){},
	}, nil
}

// Dir returns the downloads directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Subscribe registers fn for download events and returns a function removing
// it.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// IsTemporary reports whether files of mimeType are previewed in place.
func (m *Manager) IsTemporary(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	for _, g := range m.preview {
		if g.Match(mimeType) {
			return true
		}
	}
	return false
}

// MakeDownload registers a download for md. The filename is sanitized and
// made unique among the running downloads and the files in the downloads
// directory. A nil temporary lets the MIME type decide.
func (m *Manager) MakeDownload(md Metadata, temporary *bool) (*Download, error) {
	name := md.SuggestedFilename
	if name == "" {
		name = SuggestedFilename("", md.URL)
	}
	name = SanitizeFilename(name, md.MIMEType)

	temp := m.IsTemporary(md.MIMEType)
	if temporary != nil {
		temp = *temporary
	}

	taken, err := m.dirFilenames()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.downloads {
		taken[d.Filename] = struct{}{}
	}

	d := &Download{
		ID:        uuid.New(),
		URL:       md.URL,
		Filename:  UniqueFilename(name, taken),
		MIMEType:  md.MIMEType,
		Temporary: temp,
		done:      make(chan struct{}),
	}
	m.downloads[d.ID] = d

	return d, nil
}

// Downloads returns the registered downloads ordered by filename.
func (m *Manager) Downloads() []*Download {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := make([]*Download, 0, len(m.downloads))
	for _, d := range m.downloads {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Filename < list[j].Filename })
	return list
}

// Start begins fetching d in the background.
func (m *Manager) Start(ctx context.Context, d *Download) error {
	d.mu.Lock()
	if d.state != StatePending {
		d.mu.Unlock()
		return ErrStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.state = StateRunning
	d.mu.Unlock()

	m.logger.Info("download started", zap.String("file", d.Filename), zap.String("url", d.URL))
	m.post(Event{Type: EventStarted, Download: d})

	go func() {
		defer cancel()
		err := m.fetch(ctx, d)
		if err != nil && ctx.Err() != nil {
			err = ErrCancelled
		}
		m.finish(d, err)
	}()

	return nil
}

// Cancel stops d. A download that never started finishes right away.
func (m *Manager) Cancel(d *Download) {
	d.mu.Lock()
	state, cancel := d.state, d.cancel
	d.mu.Unlock()

	switch state {
	case StateRunning:
		cancel()
	case StatePending:
		m.finish(d, ErrCancelled)
	}
}

// CancelAll stops every download.
func (m *Manager) CancelAll() {
	for _, d := range m.Downloads() {
		m.Cancel(d)
	}
}

// UnseenDownloadsAvailable reports whether a download finished since the
// last MarkAllSeen.
func (m *Manager) UnseenDownloadsAvailable() bool {
	v, ok, err := m.store.Get(unseenKey)
	return err == nil && ok && v == "true"
}

// MarkAllSeen clears the unseen downloads flag.
func (m *Manager) MarkAllSeen() error {
	return m.store.Set(unseenKey, "false")
}

func (m *Manager) fetch(ctx context.Context, d *Download) error {
	req, err := m.client.Request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.SetDoNotParseResponse(true).Get(d.URL)
	if err != nil {
		return errors.Annotate(err, "fetching %s: %w", d.URL)
	}
	body := resp.RawBody()
	defer func() { _ = body.Close() }()

	if err := httpclient.CheckResponse(resp); err != nil {
		return err
	}

	tmp, err := os.Create(filepath.Join(m.tmpDir, d.ID.String()+"-"+d.Filename))
	if err != nil {
		return err
	}

	n, err := io.Copy(tmp, &progressReader{r: body, d: d})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Annotate(err, "writing %s: %w", d.Filename)
	}

	location := tmp.Name()
	if !d.Temporary {
		location, err = m.move(tmp.Name(), d.Filename)
		if err != nil {
			_ = os.Remove(tmp.Name())
			return err
		}
	}

	d.mu.Lock()
	d.location = location
	d.written = n
	d.mu.Unlock()

	return nil
}

// move puts the file at src into the downloads directory under name,
// replacing a file with the same name.
func (m *Manager) move(src, name string) (string, error) {
	dst := filepath.Join(m.dir, name)
	if _, err := os.Stat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return "", errors.Annotate(err, "replacing %s: %w", dst)
		}
	}
	if err := os.Rename(src, dst); err != nil {
		return "", errors.Annotate(err, "moving to %s: %w", dst)
	}
	return dst, nil
}

func (m *Manager) finish(d *Download, err error) {
	if err != nil && errors.Is(err, context.Canceled) {
		err = ErrCancelled
	}

	d.mu.Lock()
	if d.state == StateFinished || d.state == StateFailed || d.state == StateCancelled {
		d.mu.Unlock()
		return
	}
	switch {
	case err == nil:
		d.state = StateFinished
	case errors.Is(err, ErrCancelled):
		d.state = StateCancelled
	default:
		d.state = StateFailed
	}
	d.err = err
	state, written := d.state, d.written
	d.mu.Unlock()

	if err == nil && !d.Temporary {
		if serr := m.store.Set(unseenKey, "true"); serr != nil {
			m.logger.Warn("saving unseen flag", zap.Error(serr))
		}
	}

	m.mu.Lock()
	delete(m.downloads, d.ID)
	m.mu.Unlock()

	m.metrics.DownloadFinished(state.String(), written)
	if err != nil {
		m.logger.Info("download ended", zap.String("file", d.Filename), zap.Stringer("state", state), zap.Error(err))
	} else {
		m.logger.Info("download finished", zap.String("file", d.Filename), zap.Int64("bytes", written))
	}

	close(d.done)
	m.post(Event{Type: EventFinished, Download: d, Err: err})
}

func (m *Manager) post(e Event) {
	m.mu.Lock()
	subs := make([]func(Event), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

func (m *Manager) dirFilenames() (map[string]struct{}, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Annotate(err, "listing %s: %w", m.dir)
	}

	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		names[e.Name()] = struct{}{}
	}
	return names, nil
}

// progressReader counts bytes read for a download.
type progressReader struct {
	r io.Reader
	d *Download
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.d.mu.Lock()
		p.d.written += int64(n)
		p.d.mu.Unlock()
	}
	return n, err
}
