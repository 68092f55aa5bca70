// Package trackerdata decodes the tracker data set (TDS) and answers the
// lookups the content blocker needs: which tracker serves a URL, which entity
// owns a host and which domains belong to an owner.
package trackerdata

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// Action is a tracker's default action or a rule's action.
type Action string

// Actions.
const (
	ActionBlock  Action = "block"
	ActionIgnore Action = "ignore"
)

// Owner names the entity behind a tracker.
type Owner struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
}

// Matching restricts a rule to page domains and resource types.
type Matching struct {
	Domains []string `json:"domains,omitempty"`
	Types   []string `json:"types,omitempty"`
}

// Rule is a per-URL-pattern refinement of a tracker's default action.
type Rule struct {
	Rule       string    `json:"rule"`
	Surrogate  string    `json:"surrogate,omitempty"`
	Action     Action    `json:"action,omitempty"`
	Options    *Matching `json:"options,omitempty"`
	Exceptions *Matching `json:"exceptions,omitempty"`
}

// Tracker is a known tracker domain.
type Tracker struct {
	Domain         string   `json:"domain"`
	Owner          *Owner   `json:"owner,omitempty"`
	Prevalence     float64  `json:"prevalence,omitempty"`
	Fingerprinting int      `json:"fingerprinting,omitempty"`
	Cookies        float64  `json:"cookies,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	Default        Action   `json:"default"`
	Rules          []Rule   `json:"rules,omitempty"`
}

// WithDomain returns a copy of t answering for domain. CNAME cloaked
// trackers are modelled this way.
func (t Tracker) WithDomain(domain string) Tracker {
	t.Domain = domain
	return t
}

// OwnerName returns the owner's name or "" when unowned.
func (t Tracker) OwnerName() string {
	if t.Owner == nil {
		return ""
	}
	return t.Owner.Name
}

// Entity is a company owning one or more domains.
type Entity struct {
	DisplayName string   `json:"displayName"`
	Domains     []string `json:"domains"`
	Prevalence  float64  `json:"prevalence"`
}

// TrackerData is the decoded tracker data set.
type TrackerData struct {
	Trackers map[string]Tracker `json:"trackers"`
	Entities map[string]Entity  `json:"entities"`
	Domains  map[string]string  `json:"domains"`
	CNAMEs   map[string]string  `json:"cnames,omitempty"`
}

// Decode reads a TDS document.
func Decode(r io.Reader) (*TrackerData, error) {
	var td TrackerData
	if err := json.NewDecoder(r).Decode(&td); err != nil {
		return nil, fmt.Errorf("decoding tracker data: %w", err)
	}
	return &td, nil
}

// Load reads a TDS document from path.
func Load(path string) (*TrackerData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f)
}

// FindTracker returns the tracker serving rawURL, walking from the full host
// up through its parent domains.
func (td *TrackerData) FindTracker(rawURL string) (Tracker, bool) {
	host := hostOf(rawURL)
	if host == "" {
		return Tracker{}, false
	}
	return td.FindTrackerByHost(host)
}

// FindTrackerByHost is FindTracker for a bare host.
func (td *TrackerData) FindTrackerByHost(host string) (Tracker, bool) {
	for _, d := range HostVariations(host) {
		if t, ok := td.Trackers[d]; ok {
			return t, true
		}
	}
	return Tracker{}, false
}

// FindTrackerByCNAME returns the tracker a CNAME target resolves to.
func (td *TrackerData) FindTrackerByCNAME(target string) (Tracker, bool) {
	return td.FindTrackerByHost(strings.ToLower(target))
}

// FindEntity returns the entity named name.
func (td *TrackerData) FindEntity(name string) (Entity, bool) {
	e, ok := td.Entities[name]
	return e, ok
}

// FindEntityForHost returns the entity owning host or one of its parents.
func (td *TrackerData) FindEntityForHost(host string) (Entity, bool) {
	for _, d := range HostVariations(strings.ToLower(host)) {
		if name, ok := td.Domains[d]; ok {
			return td.FindEntity(name)
		}
	}
	return Entity{}, false
}

// RelatedDomains returns the domains of the entity owning trackers of owner.
func (td *TrackerData) RelatedDomains(owner *Owner) []string {
	if owner == nil {
		return nil
	}
	e, ok := td.Entities[owner.Name]
	if !ok {
		return nil
	}
	return e.Domains
}

// HostVariations returns host followed by each parent domain that still has
// at least two labels: a.b.example.com, b.example.com, example.com.
func HostVariations(host string) []string {
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return nil
	}

	variations := []string{host}
	for {
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
		if !strings.Contains(host, ".") {
			break
		}
		variations = append(variations, host)
	}
	return variations
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
