// Package onboarding decides which Dax dialog, if any, to show on the home
// screen and while browsing. Each dialog is shown at most once and the state
// survives restarts through the settings store.
package onboarding

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dastanaron/browsershell/internal/trackerdata"
)

// Major tracking networks.
const (
	FacebookDomain = "facebook.com"
	GoogleDomain   = "google.com"
)

var majorTrackerDomains = []string{FacebookDomain, GoogleDomain}

// Kind names a dialog.
type Kind string

// Dialog kinds.
const (
	HomeInitial    Kind = "home_initial"
	HomeSubsequent Kind = "home_subsequent"

	BrowsingAfterSearch                  Kind = "browsing_after_search"
	BrowsingWithoutTrackers              Kind = "browsing_without_trackers"
	BrowsingSiteIsMajorTracker           Kind = "browsing_site_is_major_tracker"
	BrowsingSiteOwnedByMajorTracker      Kind = "browsing_site_owned_by_major_tracker"
	BrowsingWithOneMajorTracker          Kind = "browsing_one_major_tracker"
	BrowsingWithOneMajorTrackerAndOther  Kind = "browsing_one_major_tracker_and_others"
	BrowsingWithTwoMajorTrackers         Kind = "browsing_two_major_trackers"
	BrowsingWithTwoMajorTrackersAndOther Kind = "browsing_two_major_trackers_and_others"
)

// Message is a dialog to present.
type Message struct {
	Kind Kind
	Text string
	CTA  string
}

// maxHomeMessages is the number of home screen dialogs in the flow.
const maxHomeMessages = 2

const (
	keyPrefix           = "onboarding.dax."
	keyDismissed        = keyPrefix + "dismissed"
	keyHomeMessagesSeen = keyPrefix + "homeMessagesSeen"
	keyAfterSearch      = keyPrefix + "browsing.afterSearch"
	keyWithTrackers     = keyPrefix + "browsing.withTrackers"
	keyWithoutTrackers  = keyPrefix + "browsing.withoutTrackers"
	keyMajorTracker     = keyPrefix + "browsing.majorTracker"
	keyOwnedByMajor     = keyPrefix + "browsing.ownedByMajorTracker"
)

var browsingKeys = []string{keyAfterSearch, keyWithTrackers, keyWithoutTrackers, keyMajorTracker, keyOwnedByMajor}

// Store persists the dialog state.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// EntityFinder resolves the company owning a host.
type EntityFinder interface {
	FindEntityForHost(host string) (trackerdata.Entity, bool)
}

// Visit is a page the user is looking at.
type Visit struct {
	URL string
	// TrackersBlocked holds the owner of each tracker blocked on the page. A
	// zero Entity stands for a tracker with no known owner.
	TrackersBlocked []trackerdata.Entity
}

// Dialogs is the onboarding state machine.
type Dialogs struct {
	store    Store
	entities EntityFinder
	logger   *zap.Logger
}

// NewDialogs creates the state machine. entities may be nil, in which case no
// site is recognized as owned by a major tracker.
func NewDialogs(store Store, entities EntityFinder, logger *zap.Logger) *Dialogs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialogs{store: store, entities: entities, logger: logger.Named("onboarding")}
}

// Dismiss turns the whole flow off.
func (d *Dialogs) Dismiss() error {
	d.logger.Debug("onboarding dismissed")
	return d.setFlag(keyDismissed)
}

// Enable turns the flow back on, keeping what was already shown.
func (d *Dialogs) Enable() error {
	return d.store.Set(keyDismissed, "false")
}

// IsDismissed reports whether the flow was turned off.
func (d *Dialogs) IsDismissed() (bool, error) {
	return d.flag(keyDismissed)
}

// HomeMessagesSeen returns the number of home screen dialogs shown.
func (d *Dialogs) HomeMessagesSeen() (int, error) {
	v, ok, err := d.store.Get(keyHomeMessagesSeen)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// NextHomeScreenMessage returns the home screen dialog to show, or nil. The
// first call shows the initial dialog, the subsequent one waits until a
// browsing dialog has been seen.
func (d *Dialogs) NextHomeScreenMessage() (*Message, error) {
	if dismissed, err := d.IsDismissed(); err != nil || dismissed {
		return nil, err
	}

	seen, err := d.HomeMessagesSeen()
	if err != nil || seen >= maxHomeMessages {
		return nil, err
	}

	var msg Message
	switch {
	case seen == 0:
		msg = Message{Kind: HomeInitial, Text: textHomeInitial}
	default:
		browsed, err := d.browsingMessageSeen()
		if err != nil || !browsed {
			return nil, err
		}
		msg = Message{Kind: HomeSubsequent, Text: textHomeSubsequent}
	}

	if err := d.store.Set(keyHomeMessagesSeen, strconv.Itoa(seen+1)); err != nil {
		return nil, err
	}
	return &msg, nil
}

// NextBrowsingMessage returns the dialog to show for v, or nil.
func (d *Dialogs) NextBrowsingMessage(v Visit) (*Message, error) {
	u, err := url.Parse(v.URL)
	if err != nil || u.Hostname() == "" {
		return nil, nil
	}
	host := strings.ToLower(u.Hostname())

	if dismissed, err := d.IsDismissed(); err != nil || dismissed {
		return nil, err
	}

	if IsSearchURL(u) {
		return d.once(keyAfterSearch, func() *Message {
			return &Message{Kind: BrowsingAfterSearch, Text: textAfterSearch, CTA: ctaAfterSearch}
		})
	}

	if IsMajorTracker(host) {
		return d.once(keyMajorTracker, func() *Message {
			return &Message{Kind: BrowsingSiteIsMajorTracker, Text: textSiteIsMajorTracker, CTA: ctaGotIt}
		})
	}

	if owner, ok := d.majorTrackerOwnerOf(host); ok {
		return d.once(keyOwnedByMajor, func() *Message {
			return &Message{
				Kind: BrowsingSiteOwnedByMajorTracker,
				Text: fmt.Sprintf(textSiteOwnedByMajorTracker, strings.TrimPrefix(host, "www."), owner.DisplayName, owner.Prevalence),
				CTA:  ctaGotIt,
			}
		})
	}

	if len(v.TrackersBlocked) == 0 {
		return d.once(keyWithoutTrackers, func() *Message {
			return &Message{Kind: BrowsingWithoutTrackers, Text: textWithoutTrackers, CTA: ctaGotIt}
		})
	}

	major, others := splitTrackers(v.TrackersBlocked)
	return d.once(keyWithTrackers, func() *Message {
		return trackersBlockedMessage(major, others)
	})
}

// once returns the message built by build unless key was already set, and
// sets key. The key is set even when build has nothing to show.
func (d *Dialogs) once(key string, build func() *Message) (*Message, error) {
	shown, err := d.flag(key)
	if err != nil || shown {
		return nil, err
	}
	if err := d.setFlag(key); err != nil {
		return nil, err
	}

	msg := build()
	if msg != nil {
		d.logger.Debug("showing dialog", zap.String("kind", string(msg.Kind)))
	}
	return msg, nil
}

func trackersBlockedMessage(major []trackerdata.Entity, others int) *Message {
	switch {
	case len(major) == 1 && others == 0:
		return &Message{
			Kind: BrowsingWithOneMajorTracker,
			Text: fmt.Sprintf(textOneMajorTracker, major[0].DisplayName),
			CTA:  ctaHighFive,
		}
	case len(major) == 1:
		return &Message{
			Kind: BrowsingWithOneMajorTrackerAndOther,
			Text: fmt.Sprintf(textOneMajorTrackerWithOthers, major[0].DisplayName, others),
			CTA:  ctaHighFive,
		}
	case len(major) == 2 && others == 0:
		return &Message{
			Kind: BrowsingWithTwoMajorTrackers,
			Text: fmt.Sprintf(textTwoMajorTrackers, major[0].DisplayName, major[1].DisplayName),
			CTA:  ctaHighFive,
		}
	case len(major) == 2:
		return &Message{
			Kind: BrowsingWithTwoMajorTrackersAndOther,
			Text: fmt.Sprintf(textTwoMajorTrackersWithOthers, major[0].DisplayName, major[1].DisplayName, others),
			CTA:  ctaHighFive,
		}
	default:
		return nil
	}
}

// splitTrackers returns the distinct major tracker entities, most prevalent
// first, and the number of distinct other entities. Trackers without an owner
// are ignored.
func splitTrackers(blocked []trackerdata.Entity) ([]trackerdata.Entity, int) {
	major := map[string]trackerdata.Entity{}
	others := map[string]struct{}{}

	for _, e := range blocked {
		if e.DisplayName == "" && len(e.Domains) == 0 {
			continue
		}
		if ownsMajorDomain(e) {
			major[e.DisplayName] = e
		} else {
			others[e.DisplayName] = struct{}{}
		}
	}

	list := make([]trackerdata.Entity, 0, len(major))
	for _, e := range major {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Prevalence != list[j].Prevalence {
			return list[i].Prevalence > list[j].Prevalence
		}
		return list[i].DisplayName < list[j].DisplayName
	})

	return list, len(others)
}

func ownsMajorDomain(e trackerdata.Entity) bool {
	for _, d := range e.Domains {
		for _, m := range majorTrackerDomains {
			if d == m {
				return true
			}
		}
	}
	return false
}

func (d *Dialogs) majorTrackerOwnerOf(host string) (trackerdata.Entity, bool) {
	if d.entities == nil {
		return trackerdata.Entity{}, false
	}
	e, ok := d.entities.FindEntityForHost(host)
	if !ok || !ownsMajorDomain(e) {
		return trackerdata.Entity{}, false
	}
	return e, true
}

func (d *Dialogs) browsingMessageSeen() (bool, error) {
	for _, k := range browsingKeys {
		seen, err := d.flag(k)
		if err != nil || seen {
			return seen, err
		}
	}
	return false, nil
}

func (d *Dialogs) flag(key string) (bool, error) {
	v, ok, err := d.store.Get(key)
	if err != nil || !ok {
		return false, err
	}
	return v == "true", nil
}

func (d *Dialogs) setFlag(key string) error {
	return d.store.Set(key, "true")
}

// IsMajorTracker reports whether host belongs to a major tracking network.
func IsMajorTracker(host string) bool {
	for _, domain := range majorTrackerDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// IsSearchURL reports whether u is a DuckDuckGo search results page.
func IsSearchURL(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host != "duckduckgo.com" && !strings.HasSuffix(host, ".duckduckgo.com") {
		return false
	}
	return u.Query().Get("q") != ""
}
