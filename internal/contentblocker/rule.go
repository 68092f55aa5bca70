// Package contentblocker compiles the tracker data set into content blocking
// rules in the WebKit JSON format, evaluates them and classifies requests.
package contentblocker

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// ResourceType is a WebKit content blocker resource type.
type ResourceType string

// Resource types.
const (
	ResourceDocument   ResourceType = "document"
	ResourceImage      ResourceType = "image"
	ResourceStyleSheet ResourceType = "style-sheet"
	ResourceScript     ResourceType = "script"
	ResourceFont       ResourceType = "font"
	ResourceRaw        ResourceType = "raw"
	ResourceSVG        ResourceType = "svg-document"
	ResourceMedia      ResourceType = "media"
	ResourcePopup      ResourceType = "popup"
)

// LoadType is a WebKit content blocker load type.
type LoadType string

// Load types. A load is third-party when the resource and the page have
// different registrable domains.
const (
	LoadFirstParty LoadType = "first-party"
	LoadThirdParty LoadType = "third-party"
)

// ActionType is what a matching rule does.
type ActionType string

// Action types.
const (
	ActionBlock               ActionType = "block"
	ActionIgnorePreviousRules ActionType = "ignore-previous-rules"
	ActionCSSDisplayNone      ActionType = "css-display-none"
)

// Trigger selects the requests a rule applies to.
type Trigger struct {
	URLFilter    string         `json:"url-filter"`
	UnlessDomain []string       `json:"unless-domain,omitempty"`
	IfDomain     []string       `json:"if-domain,omitempty"`
	ResourceType []ResourceType `json:"resource-type,omitempty"`
	LoadType     []LoadType     `json:"load-type,omitempty"`
}

// Action is the effect of a rule.
type Action struct {
	Type     ActionType `json:"type"`
	Selector string     `json:"selector,omitempty"`
}

// Rule is a single WebKit content blocker rule.
type Rule struct {
	Trigger Trigger `json:"trigger"`
	Action  Action  `json:"action"`
}

func blockRule(t Trigger) Rule {
	return Rule{Trigger: t, Action: Action{Type: ActionBlock}}
}

func ignoreRule(t Trigger) Rule {
	return Rule{Trigger: t, Action: Action{Type: ActionIgnorePreviousRules}}
}

// CSSDisplayNoneRule hides the elements matching selector on pages whose
// resources match urlFilter.
func CSSDisplayNoneRule(urlFilter, selector string) Rule {
	return Rule{
		Trigger: Trigger{URLFilter: urlFilter},
		Action:  Action{Type: ActionCSSDisplayNone, Selector: selector},
	}
}

// Matches reports whether the rule's trigger selects the request for
// resourceURL made from pageURL. An empty resourceType matches only rules
// without a resource type restriction.
func (r Rule) Matches(resourceURL, pageURL string, resourceType ResourceType) bool {
	pageHost := hostOf(pageURL)

	if len(r.Trigger.UnlessDomain) > 0 && domainListMatches(r.Trigger.UnlessDomain, pageHost) {
		return false
	}
	if !patternMatches(r.Trigger.URLFilter, resourceURL) {
		return false
	}
	if len(r.Trigger.IfDomain) > 0 && !domainListMatches(r.Trigger.IfDomain, pageHost) {
		return false
	}
	if len(r.Trigger.LoadType) > 0 && !slices.Contains(r.Trigger.LoadType, loadTypeOf(hostOf(resourceURL), pageHost)) {
		return false
	}
	if len(r.Trigger.ResourceType) > 0 {
		return resourceType != "" && slices.Contains(r.Trigger.ResourceType, resourceType)
	}
	return true
}

// domainListMatches reports whether host is in domains. An entry starting
// with "*" also covers the subdomains of the rest of the entry.
func domainListMatches(domains []string, host string) bool {
	for _, d := range domains {
		base, wildcard := strings.CutPrefix(d, "*")
		if host == base || (wildcard && strings.HasSuffix(host, "."+base)) {
			return true
		}
	}
	return false
}

func loadTypeOf(resourceHost, pageHost string) LoadType {
	if registrableDomain(resourceHost) == registrableDomain(pageHost) {
		return LoadFirstParty
	}
	return LoadThirdParty
}

func registrableDomain(host string) string {
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

var patternCache sync.Map // string -> *regexp.Regexp, nil when invalid

// patternMatches evaluates a url-filter case-insensitively. Patterns that do
// not compile never match.
func patternMatches(pattern, s string) bool {
	if cached, ok := patternCache.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp)
		return re != nil && re.MatchString(s)
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}
	patternCache.Store(pattern, re)

	return re != nil && re.MatchString(s)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
