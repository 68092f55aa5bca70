// Package syncerrors maps sync failures to paused states, decides when the
// user is alerted about them and remembers all of it across runs.
package syncerrors

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"go.uber.org/zap"

	"github.com/dastanaron/browsershell/internal/httpclient"
	"github.com/dastanaron/browsershell/internal/monitoring"
	"github.com/dastanaron/browsershell/internal/pixel"
)

// ModelType is a synced data type.
type ModelType int

// Synced data types.
const (
	Bookmarks ModelType = iota
	Credentials
)

func (m ModelType) String() string {
	if m == Credentials {
		return "credentials"
	}
	return "bookmarks"
}

// ErrUnknownModel is returned by ParseModelType.
const ErrUnknownModel errors.Error = "unknown sync model"

// ParseModelType reads "bookmarks" or "credentials".
func ParseModelType(s string) (ModelType, error) {
	switch s {
	case "bookmarks":
		return Bookmarks, nil
	case "credentials", "passwords":
		return Credentials, nil
	default:
		return 0, errors.Annotate(ErrUnknownModel, "%q: %w", s)
	}
}

// ErrorType is the reason sync was paused.
type ErrorType int

// Pause reasons.
const (
	BookmarksCountLimitExceeded ErrorType = iota + 1
	CredentialsCountLimitExceeded
	BookmarksRequestSizeLimitExceeded
	CredentialsRequestSizeLimitExceeded
	InvalidLoginCredentials
	TooManyRequests
	BadRequest
)

var errorTypeNames = map[ErrorType]string{
	BookmarksCountLimitExceeded:         "bookmarks_count_limit_exceeded",
	CredentialsCountLimitExceeded:       "credentials_count_limit_exceeded",
	BookmarksRequestSizeLimitExceeded:   "bookmarks_request_size_limit_exceeded",
	CredentialsRequestSizeLimitExceeded: "credentials_request_size_limit_exceeded",
	InvalidLoginCredentials:             "invalid_login_credentials",
	TooManyRequests:                     "too_many_requests",
	BadRequest:                          "bad_request",
}

func (e ErrorType) String() string {
	return errorTypeNames[e]
}

// Daily pixels fired when a model gets paused.
var limitPixels = map[ErrorType]string{
	BookmarksCountLimitExceeded:         "m_d_sync_bookmarks_count_limit_exceeded_daily",
	CredentialsCountLimitExceeded:       "m_d_sync_credentials_count_limit_exceeded_daily",
	BookmarksRequestSizeLimitExceeded:   "m_d_sync_bookmarks_request_size_limit_exceeded_daily",
	CredentialsRequestSizeLimitExceeded: "m_d_sync_credentials_request_size_limit_exceeded_daily",
}

// Pixels fired for failures that are not sync status errors.
const (
	PixelBookmarksFailed   = "m_d_sync_bookmarks_failed"
	PixelCredentialsFailed = "m_d_sync_credentials_failed"
)

const (
	keyBookmarksPaused          = "sync.bookmarks.paused"
	keyCredentialsPaused        = "sync.credentials.paused"
	keyPaused                   = "sync.paused"
	keyPausedError              = "sync.pausedError"
	keyBookmarksAlertShown      = "sync.bookmarks.pausedAlertShown"
	keyCredentialsAlertShown    = "sync.credentials.pausedAlertShown"
	keyInvalidLoginAlertShown   = "sync.invalidLogin.pausedAlertShown"
	keyLastErrorNotification    = "sync.lastErrorNotificationTime"
	keyLastSuccess              = "sync.lastSuccessTime"
	keyNonActionableErrorCount  = "sync.nonActionableErrorCount"
	nonActionableAlertThreshold = 10
)

// StatusError is an unexpected HTTP status returned by the sync server.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "unexpected status code " + strconv.Itoa(e.Code)
}

// Store persists the handler state.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// AlertPresenter shows the sync paused alert.
type AlertPresenter interface {
	ShowSyncPausedAlert(title, informative string)
}

// DailyPixelFirer fires a pixel at most once a day.
type DailyPixelFirer interface {
	Fire(ctx context.Context, name string, pixelErr error, params map[string]string) error
}

// PixelFirer fires a pixel.
type PixelFirer interface {
	Fire(ctx context.Context, name string, params map[string]string) error
}

// PausedMetadata describes a paused state to the user.
type PausedMetadata struct {
	Title       string
	Message     string
	ButtonTitle string
}

// Handler tracks sync errors per model type.
type Handler struct {
	store   Store
	daily   DailyPixelFirer
	pixels  PixelFirer
	logger  *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time

	mu          sync.Mutex
	alerts      AlertPresenter
	subscribers map[int]func()
	nextSub     int
}

// NewHandler creates a handler. daily and pixels may be nil.
func NewHandler(store Store, daily DailyPixelFirer, pixels PixelFirer, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:       store,
		daily:       daily,
		pixels:      pixels,
		logger:      logger.Named("syncerrors"),
		metrics:     metrics,
		now:         time.Now,
		subscribers: make(map[int]func()),
	}
}

// SetAlertPresenter sets where alerts are shown.
func (h *Handler) SetAlertPresenter(p AlertPresenter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = p
}

// Subscribe registers fn to be called whenever a paused flag is written. The
// returned function unsubscribes.
func (h *Handler) Subscribe(fn func()) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	h.subscribers[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subscribers, id)
	}
}

// IsBookmarksPaused reports whether bookmarks sync is paused.
func (h *Handler) IsBookmarksPaused() bool {
	return h.getBool(keyBookmarksPaused)
}

// IsCredentialsPaused reports whether credentials sync is paused.
func (h *Handler) IsCredentialsPaused() bool {
	return h.getBool(keyCredentialsPaused)
}

// IsPaused reports whether all of sync is paused.
func (h *Handler) IsPaused() bool {
	return h.getBool(keyPaused)
}

// HandleBookmarkError handles a bookmarks sync failure.
func (h *Handler) HandleBookmarkError(ctx context.Context, err error) {
	h.handleError(ctx, err, Bookmarks)
}

// HandleCredentialError handles a credentials sync failure.
func (h *Handler) HandleCredentialError(ctx context.Context, err error) {
	h.handleError(ctx, err, Credentials)
}

// BookmarksSucceeded resets the bookmarks and general errors.
func (h *Handler) BookmarksSucceeded() {
	h.mu.Lock()
	h.setTime(keyLastSuccess, h.now())
	notify := h.resetModelErrors(Bookmarks)
	h.mu.Unlock()

	notifyAll(notify)
}

// CredentialsSucceeded resets the credentials and general errors.
func (h *Handler) CredentialsSucceeded() {
	h.mu.Lock()
	h.setTime(keyLastSuccess, h.now())
	notify := h.resetModelErrors(Credentials)
	h.mu.Unlock()

	notifyAll(notify)
}

// SyncDidTurnOff resets every error.
func (h *Handler) SyncDidTurnOff() {
	h.mu.Lock()
	notify := h.resetModelErrors(Bookmarks)
	notify = append(notify, h.resetModelErrors(Credentials)...)
	h.mu.Unlock()

	notifyAll(notify)
}

// PausedMetadata describes why all of sync is paused. It reports false when
// sync is not paused for one of those reasons.
func (h *Handler) PausedMetadata() (PausedMetadata, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch ErrorType(h.getInt(keyPausedError)) {
	case InvalidLoginCredentials:
		return PausedMetadata{Title: TextSyncPaused, Message: TextInvalidLoginDescription}, true
	case TooManyRequests:
		return PausedMetadata{Title: TextSyncError, Message: TextTooManyRequestsDescription}, true
	case BadRequest:
		return PausedMetadata{Title: TextSyncError, Message: TextBadRequestDescription}, true
	default:
		return PausedMetadata{}, false
	}
}

// BookmarksPausedMetadata describes the paused bookmarks sync.
func (h *Handler) BookmarksPausedMetadata() PausedMetadata {
	return PausedMetadata{
		Title:       TextLimitExceeded,
		Message:     TextBookmarksLimitDescription,
		ButtonTitle: TextBookmarksLimitAction,
	}
}

// CredentialsPausedMetadata describes the paused credentials sync.
func (h *Handler) CredentialsPausedMetadata() PausedMetadata {
	return PausedMetadata{
		Title:       TextLimitExceeded,
		Message:     TextCredentialsLimitDescription,
		ButtonTitle: TextCredentialsLimitAction,
	}
}

func (h *Handler) handleError(ctx context.Context, err error, model ModelType) {
	h.logger.Warn("sync error", zap.Stringer("model", model), zap.Error(err))

	code, ok := statusCode(err)
	if !ok {
		h.firePixel(ctx, model, err)
		return
	}

	errType, ok := classify(code, model)
	if !ok {
		return
	}

	h.mu.Lock()
	notify := h.syncIsPaused(errType)
	h.mu.Unlock()

	h.metrics.SyncPaused(errType.String())
	if name, ok := limitPixels[errType]; ok && h.daily != nil {
		if err := h.daily.Fire(ctx, name, nil, nil); err != nil && !errors.Is(err, pixel.ErrAlreadyFired) {
			h.logger.Debug("limit pixel not sent", zap.String("pixel", name), zap.Error(err))
		}
	}

	notifyAll(notify)
}

func (h *Handler) firePixel(ctx context.Context, model ModelType, err error) {
	if h.pixels == nil || isNetworkError(err) {
		return
	}

	name := PixelBookmarksFailed
	if model == Credentials {
		name = PixelCredentialsFailed
	}
	if ferr := h.pixels.Fire(ctx, name, map[string]string{"e": err.Error()}); ferr != nil {
		h.logger.Debug("sync failure pixel not sent", zap.Error(ferr))
	}
}

func isNetworkError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne)
}

func statusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	var he *httpclient.StatusError
	if errors.As(err, &he) {
		return he.Code, true
	}
	return 0, false
}

func classify(code int, model ModelType) (ErrorType, bool) {
	switch code {
	case 409:
		if model == Credentials {
			return CredentialsCountLimitExceeded, true
		}
		return BookmarksCountLimitExceeded, true
	case 413:
		if model == Credentials {
			return CredentialsRequestSizeLimitExceeded, true
		}
		return BookmarksRequestSizeLimitExceeded, true
	case 401:
		return InvalidLoginCredentials, true
	case 400:
		return BadRequest, true
	case 418, 429:
		return TooManyRequests, true
	default:
		return 0, false
	}
}

// syncIsPaused shows the alert if needed and sets the paused flag. It returns
// the subscribers to notify once the lock is released.
func (h *Handler) syncIsPaused(errType ErrorType) []func() {
	h.showAlertIfNeeded(errType)

	switch errType {
	case BookmarksCountLimitExceeded, BookmarksRequestSizeLimitExceeded:
		h.setBool(keyBookmarksPaused, true)
	case CredentialsCountLimitExceeded, CredentialsRequestSizeLimitExceeded:
		h.setBool(keyCredentialsPaused, true)
	default:
		h.setInt(keyPausedError, int(errType))
		h.setBool(keyPaused, true)
	}
	return h.subscriberList()
}

func (h *Handler) showAlertIfNeeded(errType ErrorType) {
	switch errType {
	case BookmarksCountLimitExceeded, BookmarksRequestSizeLimitExceeded:
		h.showOnce(keyBookmarksAlertShown, TextBookmarksPausedAlertTitle, TextBookmarksPausedAlertDescription)
	case CredentialsCountLimitExceeded, CredentialsRequestSizeLimitExceeded:
		h.showOnce(keyCredentialsAlertShown, TextCredentialsPausedAlertTitle, TextCredentialsPausedAlertDescription)
	case InvalidLoginCredentials:
		h.showOnce(keyInvalidLoginAlertShown, TextSyncPausedAlertTitle, TextInvalidLoginAlertDescription)
	case TooManyRequests:
		if h.shouldAlertNonActionable() {
			h.show(TextSyncErrorAlertTitle, TextTooManyRequestsAlertDescription)
			h.setTime(keyLastErrorNotification, h.now())
		}
	case BadRequest:
		if h.shouldAlertNonActionable() {
			h.show(TextSyncErrorAlertTitle, TextBadRequestAlertDescription)
			h.setTime(keyLastErrorNotification, h.now())
		}
	}
}

func (h *Handler) showOnce(key, title, informative string) {
	if h.getBoolLocked(key) {
		return
	}
	h.show(title, informative)
	h.setBool(key, true)
}

func (h *Handler) show(title, informative string) {
	if h.alerts != nil {
		h.alerts.ShowSyncPausedAlert(title, informative)
	}
}

// shouldAlertNonActionable counts the error and reports whether an alert is
// due: the last one was more than a day ago and there were either ten errors
// in a row or no successful sync for twelve hours.
func (h *Handler) shouldAlertNonActionable() bool {
	now := h.now()

	count := h.getInt(keyNonActionableErrorCount) + 1

	lastAlertLongAgo := true
	if last, ok := h.getTime(keyLastErrorNotification); ok {
		lastAlertLongAgo = last.Before(now.Add(-24 * time.Hour))
	}

	tenInARow := count >= nonActionableAlertThreshold
	if tenInARow {
		count = 0
	}
	h.setInt(keyNonActionableErrorCount, count)

	lastSuccess, ok := h.getTime(keyLastSuccess)
	if !ok {
		lastSuccess = now
	}
	noSuccessFor12h := count > 1 && !lastSuccess.After(now.Add(-12*time.Hour))

	return lastAlertLongAgo && (tenInARow || noSuccessFor12h)
}

func (h *Handler) resetModelErrors(model ModelType) []func() {
	if model == Credentials {
		h.setBool(keyCredentialsPaused, false)
		h.setBool(keyCredentialsAlertShown, false)
	} else {
		h.setBool(keyBookmarksPaused, false)
		h.setBool(keyBookmarksAlertShown, false)
	}

	h.setBool(keyPaused, false)
	h.setBool(keyInvalidLoginAlertShown, false)
	h.remove(keyLastErrorNotification)
	h.remove(keyPausedError)
	h.setInt(keyNonActionableErrorCount, 0)

	return h.subscriberList()
}

func (h *Handler) subscriberList() []func() {
	list := make([]func(), 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		list = append(list, fn)
	}
	return list
}

func notifyAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func (h *Handler) getBool(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.getBoolLocked(key)
}

func (h *Handler) getBoolLocked(key string) bool {
	v, ok, err := h.store.Get(key)
	if err != nil {
		h.logger.Error("reading sync state", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok && v == "true"
}

func (h *Handler) setBool(key string, v bool) {
	h.set(key, strconv.FormatBool(v))
}

func (h *Handler) getInt(key string) int {
	v, ok, err := h.store.Get(key)
	if err != nil || !ok {
		return 0
	}
	n, _ := strconv.Atoi(v)
	return n
}

func (h *Handler) setInt(key string, n int) {
	h.set(key, strconv.Itoa(n))
}

func (h *Handler) getTime(key string) (time.Time, bool) {
	v, ok, err := h.store.Get(key)
	if err != nil || !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	return t, err == nil
}

func (h *Handler) setTime(key string, t time.Time) {
	h.set(key, t.UTC().Format(time.RFC3339Nano))
}

func (h *Handler) set(key, value string) {
	if err := h.store.Set(key, value); err != nil {
		h.logger.Error("saving sync state", zap.String("key", key), zap.Error(err))
	}
}

func (h *Handler) remove(key string) {
	if err := h.store.Delete(key); err != nil {
		h.logger.Error("clearing sync state", zap.String("key", key), zap.Error(err))
	}
}
