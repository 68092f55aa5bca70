// Package textzoom keeps the text zoom level chosen for each site.
package textzoom

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/net/publicsuffix"

	"github.com/dastanaron/browsershell/internal/config"
)

// Errors.
const (
	ErrInvalidLevel errors.Error = "invalid text zoom level"
	ErrNoDomain     errors.Error = "host has no registrable domain"
	ErrDisabled     errors.Error = "text zoom is disabled"
)

// Level is a text zoom percentage.
type Level int

// Level bounds.
const (
	MinLevel     Level = 50
	MaxLevel     Level = 200
	LevelStep    Level = 10
	DefaultLevel Level = 100
)

// Levels returns every selectable level in increasing order.
func Levels() []Level {
	levels := make([]Level, 0, int((MaxLevel-MinLevel)/LevelStep)+1)
	for l := MinLevel; l <= MaxLevel; l += LevelStep {
		levels = append(levels, l)
	}
	return levels
}

// ParseLevel reads a level written as "120" or "120%".
func ParseLevel(s string) (Level, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return 0, errors.Annotate(ErrInvalidLevel, "%q: %w", s)
	}
	l := Level(n)
	if !l.Valid() {
		return 0, errors.Annotate(ErrInvalidLevel, "%d: %w", n)
	}
	return l, nil
}

// Valid reports whether l is one of Levels.
func (l Level) Valid() bool {
	return l >= MinLevel && l <= MaxLevel && (l-MinLevel)%LevelStep == 0
}

// Scale returns the level as a view scale factor.
func (l Level) Scale() float64 {
	return float64(l) / 100
}

func (l Level) String() string {
	return fmt.Sprintf("%d%%", int(l))
}

// Store persists the levels.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}

const (
	domainKeyPrefix = "textzoom.domain."
	defaultKey      = "textzoom.default"
)

// MenuLabel is the browsing menu entry for sites without a custom level.
const MenuLabel = "Zoom"

// Coordinator answers which level applies to a host.
type Coordinator struct {
	store        Store
	enabled      bool
	defaultLevel Level
}

// NewCoordinator creates a coordinator. The default level stored in store
// takes precedence over the configured one.
func NewCoordinator(store Store, cfg config.TextZoomConfig) *Coordinator {
	def := Level(cfg.DefaultLevel)
	if !def.Valid() {
		def = DefaultLevel
	}
	return &Coordinator{store: store, enabled: cfg.Enabled, defaultLevel: def}
}

// IsEnabled reports whether the feature is on.
func (c *Coordinator) IsEnabled() bool {
	return c.enabled
}

// DefaultLevel returns the app wide level.
func (c *Coordinator) DefaultLevel() Level {
	if v, ok, err := c.store.Get(defaultKey); err == nil && ok {
		if l, err := ParseLevel(v); err == nil {
			return l
		}
	}
	return c.defaultLevel
}

// SetDefaultLevel changes the app wide level.
func (c *Coordinator) SetDefaultLevel(level Level) error {
	if !level.Valid() {
		return ErrInvalidLevel
	}
	return c.store.Set(defaultKey, strconv.Itoa(int(level)))
}

// Level returns the level for host's registrable domain or the default.
func (c *Coordinator) Level(host string) Level {
	if l, ok := c.domainLevel(host); ok {
		return l
	}
	return c.DefaultLevel()
}

// SetLevel stores level for host's registrable domain. Setting the default
// level forgets the domain.
func (c *Coordinator) SetLevel(level Level, host string) error {
	if !level.Valid() {
		return ErrInvalidLevel
	}
	domain, ok := RegistrableDomain(host)
	if !ok {
		return errors.Annotate(ErrNoDomain, "%q: %w", host)
	}

	if level == c.DefaultLevel() {
		return c.store.Delete(domainKeyPrefix + domain)
	}
	return c.store.Set(domainKeyPrefix+domain, strconv.Itoa(int(level)))
}

// Reset forgets every domain level except those of the excluded domains.
func (c *Coordinator) Reset(excluding []string) error {
	keep := make(map[string]struct{}, len(excluding))
	for _, d := range excluding {
		if domain, ok := RegistrableDomain(d); ok {
			keep[domain] = struct{}{}
		}
	}

	keys, err := c.store.Keys(domainKeyPrefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, ok := keep[strings.TrimPrefix(k, domainKeyPrefix)]; ok {
			continue
		}
		if err := c.store.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// DomainLevel is a custom level for a domain.
type DomainLevel struct {
	Domain string
	Level  Level
}

// Domains returns the domains with a custom level, sorted by domain.
func (c *Coordinator) Domains() ([]DomainLevel, error) {
	keys, err := c.store.Keys(domainKeyPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]DomainLevel, 0, len(keys))
	for _, k := range keys {
		v, ok, err := c.store.Get(k)
		if err != nil {
			return nil, err
		}
		l, perr := ParseLevel(v)
		if !ok || perr != nil {
			continue
		}
		out = append(out, DomainLevel{Domain: strings.TrimPrefix(k, domainKeyPrefix), Level: l})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

// MenuEntry returns the browsing menu label for host, "Zoom (120%)" when the
// site has a custom level. It reports false when the feature is off.
func (c *Coordinator) MenuEntry(host string) (string, bool) {
	if !c.enabled {
		return "", false
	}
	if l, ok := c.domainLevel(host); ok {
		return fmt.Sprintf("%s (%s)", MenuLabel, l), true
	}
	return MenuLabel, true
}

// ViewScale returns the scale to apply to a page on host, 1 when disabled.
func (c *Coordinator) ViewScale(host string) float64 {
	if !c.enabled {
		return 1
	}
	return c.Level(host).Scale()
}

func (c *Coordinator) domainLevel(host string) (Level, bool) {
	domain, ok := RegistrableDomain(host)
	if !ok {
		return 0, false
	}
	v, ok, err := c.store.Get(domainKeyPrefix + domain)
	if err != nil || !ok {
		return 0, false
	}
	l, err := ParseLevel(v)
	return l, err == nil
}

// RegistrableDomain returns the eTLD+1 of host.
func RegistrableDomain(host string) (string, bool) {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return "", false
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", false
	}
	return domain, true
}
