package contentblocker

import (
	"regexp"
	"slices"
	"strings"

	"github.com/dastanaron/browsershell/internal/trackerdata"
)

// DetectedTracker is a third-party request attributed to a known tracker.
type DetectedTracker struct {
	URL     string
	Tracker trackerdata.Tracker
	Entity  trackerdata.Entity
	Blocked bool
}

// Resolver classifies requests against the tracker data set.
type Resolver struct {
	td          *trackerdata.TrackerData
	unprotected []string
	tempList    []string
	allowlist   []AllowlistEntry
	filters     *FilterEngine
}

// WithFilters makes user filter lists take part in the decision: exception
// rules unblock a tracker, blocking rules block it even when the tracker data
// would not.
func (r *Resolver) WithFilters(f *FilterEngine) *Resolver {
	r.filters = f
	return r
}

// NewResolver creates a resolver. Requests made from unprotected or temp
// listed sites are reported but never blocked, and so are requests the
// allowlist lets through.
func NewResolver(td *trackerdata.TrackerData, unprotected, tempList []string, allowlist []AllowlistEntry) *Resolver {
	return &Resolver{
		td:          td,
		unprotected: unprotected,
		tempList:    tempList,
		allowlist:   allowlist,
	}
}

type ruleAction int

const (
	ruleNone ruleAction = iota
	ruleAllow
	ruleBlock
)

// TrackerFromURL returns the tracker serving trackerURL when it is loaded by
// pageURL, or nil when the URL is not a tracker or the page belongs to the
// tracker's own entity. potentiallyBlocked says whether the content blocker
// is active for the request at all.
func (r *Resolver) TrackerFromURL(trackerURL, pageURL, resourceType string, potentiallyBlocked bool) *DetectedTracker {
	tracker, ok := r.td.FindTracker(trackerURL)
	if !ok {
		return nil
	}

	pageHost := hostOf(pageURL)

	var blocked bool
	switch {
	case pageHost != "" && (slices.Contains(r.unprotected, pageHost) || slices.Contains(r.tempList, pageHost)):
		blocked = false
	case Allowlisted(r.allowlist, trackerURL, pageURL):
		blocked = false
	default:
		switch matchTrackerRules(tracker, trackerURL, resourceType, pageHost) {
		case ruleNone:
			blocked = tracker.Default == trackerdata.ActionBlock && potentiallyBlocked
		case ruleAllow:
			blocked = false
		case ruleBlock:
			blocked = potentiallyBlocked
		}

		switch verdict, _ := r.filters.Match(trackerURL, pageURL, resourceType); verdict {
		case FilterAllow:
			blocked = false
		case FilterBlock:
			blocked = potentiallyBlocked
		}
	}

	entity, ok := r.td.FindEntity(tracker.OwnerName())
	if !ok {
		return nil
	}

	if pageHost != "" {
		if pageEntity, ok := r.td.FindEntityForHost(pageHost); ok && pageEntity.DisplayName == entity.DisplayName {
			return nil
		}
	}

	return &DetectedTracker{
		URL:     trackerURL,
		Tracker: tracker,
		Entity:  entity,
		Blocked: blocked,
	}
}

// matchTrackerRules applies the first tracker rule whose pattern matches
// trackerURL.
func matchTrackerRules(t trackerdata.Tracker, trackerURL, resourceType, pageHost string) ruleAction {
	if pageHost == "" {
		return ruleNone
	}

	for _, rule := range t.Rules {
		re, err := regexp.Compile(rule.Rule)
		if err != nil || !re.MatchString(trackerURL) {
			continue
		}

		switch {
		case rule.Action == trackerdata.ActionIgnore:
			return ruleAllow
		case rule.Options != nil && !isMatching(*rule.Options, pageHost, resourceType):
			return ruleAllow
		case rule.Exceptions != nil && isMatching(*rule.Exceptions, pageHost, resourceType):
			return ruleAllow
		default:
			return ruleBlock
		}
	}

	return ruleNone
}

// isMatching reports whether host is one of the option's domains or their
// subdomains and resourceType is one of its types. Absent lists match all.
func isMatching(m trackerdata.Matching, host, resourceType string) bool {
	matching := true

	if m.Domains != nil {
		matching = slices.ContainsFunc(m.Domains, func(domain string) bool {
			return host == domain || strings.HasSuffix(host, "."+domain)
		})
	}

	if m.Types != nil {
		matching = matching && slices.Contains(m.Types, resourceType)
	}

	return matching
}
