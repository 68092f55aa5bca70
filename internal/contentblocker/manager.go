package contentblocker

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"go.uber.org/zap"

	"github.com/dastanaron/browsershell/internal/monitoring"
	"github.com/dastanaron/browsershell/internal/trackerdata"
)

// ErrNoValidInputs is returned when even the embedded tracker data cannot be
// compiled.
const ErrNoValidInputs errors.Error = "no valid content blocker inputs"

// Settings keys remembering the inputs that failed to compile.
const (
	brokenTDSKey         = "contentblocker.broken.tds"
	brokenTempListKey    = "contentblocker.broken.templist"
	brokenAllowlistKey   = "contentblocker.broken.allowlist"
	brokenUnprotectedKey = "contentblocker.broken.unprotected"

	lastIdentifierKey = "contentblocker.lastIdentifier"
)

// SettingsStore persists small string values.
type SettingsStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// TDSSource is a tracker data set with the etag it was served with.
type TDSSource struct {
	Data *trackerdata.TrackerData
	Etag string
}

// Sources are every input the rule list may be compiled from.
type Sources struct {
	// Embedded is shipped with the binary and assumed to always compile.
	Embedded TDSSource
	// Downloaded is the latest fetched tracker data, if any.
	Downloaded *TDSSource

	TempList      []string
	TempListEtag  string
	Allowlist     []AllowlistEntry
	AllowlistEtag string
	Unprotected   []string
}

// inputs is the subset of Sources a compilation attempt uses.
type inputs struct {
	tds           TDSSource
	embedded      bool
	tempList      []string
	tempListEtag  string
	allowlist     []AllowlistEntry
	allowlistEtag string
	unprotected   []string
}

func (in inputs) identifier() Identifier {
	return NewIdentifier(in.tds.Etag, in.tempListEtag, in.allowlistEtag, HashDomains(in.unprotected))
}

// RuleList is a compiled set of rules.
type RuleList struct {
	Identifier string `json:"identifier"`
	Rules      []Rule `json:"rules"`
}

// CompileResult describes the outcome of Manager.Compile.
type CompileResult struct {
	Identifier Identifier
	Rules      []Rule
	// Changes lists the components that differ from the previously
	// compiled list, which is remembered across managers sharing the
	// settings store. The first compilation reports DiffAll.
	Changes   Difference
	FromCache bool
}

// Manager compiles rule lists and keeps them in an on-disk cache keyed by
// identifier. Inputs that fail to compile are remembered and skipped until
// their version changes.
type Manager struct {
	cacheDir string
	settings SettingsStore
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu      sync.Mutex
	current *Identifier
}

// NewManager creates a manager caching compiled lists in cacheDir.
func NewManager(cacheDir string, settings SettingsStore, logger *zap.Logger, metrics *monitoring.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cacheDir: cacheDir,
		settings: settings,
		logger:   logger.Named("contentblocker"),
		metrics:  metrics,
	}
}

// Compile returns the rule list for src, using the cache when it holds a
// list for the same identifier.
func (m *Manager) Compile(src Sources) (*CompileResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		in, err := m.prepareInputs(src)
		if err != nil {
			return nil, err
		}
		id := in.identifier()

		rules, fromCache, err := m.loadOrBuild(in, id)
		if err == nil {
			res := &CompileResult{
				Identifier: id,
				Rules:      rules,
				Changes:    DiffAll,
				FromCache:  fromCache,
			}
			if prev, ok := m.last(); ok {
				res.Changes = prev.Compare(id)
			}
			m.current = &id
			if err := m.settings.Set(lastIdentifierKey, id.String()); err != nil {
				m.logger.Error("saving rules identifier", zap.Error(err))
			}
			m.metrics.SetRules(len(rules))

			m.logger.Info("rules ready",
				zap.Stringer("identifier", id),
				zap.Int("rules", len(rules)),
				zap.Bool("cached", fromCache))

			return res, nil
		}

		m.logger.Warn("rules compilation failed", zap.Stringer("identifier", id), zap.Error(err))
		if !m.compilationFailed(in) {
			return nil, errors.Annotate(err, "compiling embedded rules: %w")
		}
	}
}

// Current returns the identifier of the last compiled list.
func (m *Manager) Current() (Identifier, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.last()
}

// last returns the identifier compiled by this manager, or the one stored by
// an earlier manager.
func (m *Manager) last() (Identifier, bool) {
	if m.current != nil {
		return *m.current, true
	}

	v, ok, err := m.settings.Get(lastIdentifierKey)
	if err != nil {
		m.logger.Error("reading rules identifier", zap.Error(err))
		return Identifier{}, false
	}
	if !ok {
		return Identifier{}, false
	}
	return ParseIdentifier(v)
}

// prepareInputs picks the downloaded tracker data unless its version failed
// before and leaves out the lists that failed before.
func (m *Manager) prepareInputs(src Sources) (inputs, error) {
	if src.Embedded.Data == nil {
		return inputs{}, ErrNoValidInputs
	}

	in := inputs{tds: src.Embedded, embedded: true}
	if d := src.Downloaded; d != nil && d.Data != nil && !m.isBroken(brokenTDSKey, d.Etag) {
		in.tds = *d
		in.embedded = false
	}

	if len(src.TempList) > 0 && !m.isBroken(brokenTempListKey, src.TempListEtag) {
		in.tempList = src.TempList
		in.tempListEtag = src.TempListEtag
	}
	if len(src.Allowlist) > 0 && !m.isBroken(brokenAllowlistKey, src.AllowlistEtag) {
		in.allowlist = src.Allowlist
		in.allowlistEtag = src.AllowlistEtag
	}
	if len(src.Unprotected) > 0 && !m.isBroken(brokenUnprotectedKey, HashDomains(src.Unprotected)) {
		in.unprotected = src.Unprotected
	}

	return in, nil
}

// compilationFailed marks the most likely culprit of a failed compilation as
// broken. It reports false when nothing is left to drop.
func (m *Manager) compilationFailed(in inputs) bool {
	var key, version string
	switch {
	case !in.embedded:
		key, version = brokenTDSKey, in.tds.Etag
	case in.tempList != nil:
		key, version = brokenTempListKey, in.tempListEtag
	case in.allowlist != nil:
		key, version = brokenAllowlistKey, in.allowlistEtag
	case in.unprotected != nil:
		key, version = brokenUnprotectedKey, HashDomains(in.unprotected)
	default:
		return false
	}

	m.logger.Warn("marking input as broken", zap.String("input", key), zap.String("version", version))
	if err := m.settings.Set(key, version); err != nil {
		m.logger.Error("saving broken input", zap.String("input", key), zap.Error(err))
	}
	return true
}

func (m *Manager) isBroken(key, version string) bool {
	v, ok, err := m.settings.Get(key)
	if err != nil {
		m.logger.Error("reading broken input", zap.String("input", key), zap.Error(err))
		return false
	}
	return ok && v == version
}

func (m *Manager) loadOrBuild(in inputs, id Identifier) ([]Rule, bool, error) {
	path := m.cachePath(id)

	if list, err := readRuleList(path); err == nil && list.Identifier == id.String() {
		return list.Rules, true, nil
	} else if err != nil && !os.IsNotExist(err) {
		m.logger.Debug("ignoring unreadable cached rules", zap.String("path", path), zap.Error(err))
	}

	rules := NewBuilder(in.tds.Data).BuildRules(in.unprotected, in.tempList, in.allowlist)
	if err := Validate(rules); err != nil {
		return nil, false, err
	}

	if err := writeRuleList(path, RuleList{Identifier: id.String(), Rules: rules}); err != nil {
		m.logger.Warn("caching rules", zap.String("path", path), zap.Error(err))
	}
	return rules, false, nil
}

func (m *Manager) cachePath(id Identifier) string {
	sum := sha1.Sum([]byte(id.String()))
	return filepath.Join(m.cacheDir, "rules-"+hex.EncodeToString(sum[:])+".json")
}

// Validate checks that every rule can be evaluated: url filters must be
// valid regular expressions and domain lists must not be empty.
func Validate(rules []Rule) error {
	for i, r := range rules {
		if r.Trigger.URLFilter == "" {
			return fmt.Errorf("rule %d: empty url-filter", i)
		}
		if _, err := regexp.Compile(r.Trigger.URLFilter); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		if r.Trigger.IfDomain != nil && len(r.Trigger.IfDomain) == 0 {
			return fmt.Errorf("rule %d: empty if-domain", i)
		}
		if len(r.Trigger.IfDomain) > 0 && len(r.Trigger.UnlessDomain) > 0 {
			return fmt.Errorf("rule %d: both if-domain and unless-domain", i)
		}
	}
	return nil
}

func readRuleList(path string) (*RuleList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list RuleList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &list, nil
}

func writeRuleList(path string, list RuleList) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.Marshal(list)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WriteRules writes rules as the JSON array a content blocker loads.
func WriteRules(w io.Writer, rules []Rule) error {
	if rules == nil {
		rules = []Rule{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rules)
}
