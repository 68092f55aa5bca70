package contentblocker

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/dastanaron/browsershell/internal/trackerdata"
)

// allSites in an allowlist entry's domains applies the entry everywhere.
const allSites = "<all>"

// AllowlistEntry lets requests matching Rule load on Domains.
type AllowlistEntry struct {
	Rule    string   `json:"rule"`
	Domains []string `json:"domains"`
}

type allowlistedTracker struct {
	Rules []AllowlistEntry `json:"rules"`
}

// ParseAllowlist reads the allowlistedTrackers document, a map from tracker
// domain to its rules. Entries are returned ordered by tracker domain.
func ParseAllowlist(r io.Reader) ([]AllowlistEntry, error) {
	var doc map[string]allowlistedTracker
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding tracker allowlist: %w", err)
	}

	var entries []AllowlistEntry
	for _, tracker := range sortedKeys(doc) {
		for _, e := range doc[tracker].Rules {
			if e.Rule == "" || e.Domains == nil {
				continue
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// TransformAllowlist turns allowlist entries into ignore-previous-rules
// rules, limited to the listed sites unless the entry applies to all.
func TransformAllowlist(entries []AllowlistEntry) []Rule {
	rules := make([]Rule, 0, len(entries))
	for _, e := range entries {
		rules = append(rules, e.rule())
	}
	return rules
}

func (e AllowlistEntry) rule() Rule {
	t := Trigger{
		URLFilter: subDomainPrefix + regexEscape(e.Rule),
		LoadType:  []LoadType{LoadThirdParty},
	}
	if !slices.Contains(e.Domains, allSites) {
		t.IfDomain = wildcards(e.Domains)
	}
	return ignoreRule(t)
}

// Allowlisted reports whether any entry allows resourceURL on pageURL.
func Allowlisted(entries []AllowlistEntry, resourceURL, pageURL string) bool {
	pageHosts := trackerdata.HostVariations(hostOf(pageURL))

	for _, e := range entries {
		if !patternMatches(subDomainPrefix+regexEscape(e.Rule), resourceURL) {
			continue
		}
		if slices.Contains(e.Domains, allSites) {
			return true
		}
		for _, h := range pageHosts {
			if slices.Contains(e.Domains, h) {
				return true
			}
		}
	}
	return false
}
