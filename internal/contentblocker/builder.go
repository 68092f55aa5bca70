package contentblocker

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/dastanaron/browsershell/internal/trackerdata"
)

const (
	// The scheme is spelled out since ".*" overmatches and alternation is
	// not supported by the WebKit compiler.
	subDomainPrefix   = `^(https?)?(wss?)?://([a-z0-9-]+\.)*`
	domainMatchSuffix = `(:?[0-9]+)?/.*`
)

var resourceMapping = map[string]ResourceType{
	"script":         ResourceScript,
	"xmlhttprequest": ResourceRaw,
	"subdocument":    ResourceDocument,
	"image":          ResourceImage,
	"stylesheet":     ResourceStyleSheet,
}

// Builder turns tracker data into content blocker rules.
type Builder struct {
	td *trackerdata.TrackerData
}

// NewBuilder creates a builder over td.
func NewBuilder(td *trackerdata.TrackerData) *Builder {
	return &Builder{td: td}
}

// BuildRules returns the rules for every tracker, then for every CNAME
// cloaked tracker, then the allowlist entries, and finally a single rule
// disabling everything on the exception and temporarily unprotected sites.
func (b *Builder) BuildRules(exceptions, tempUnprotected []string, allowlist []AllowlistEntry) []Rule {
	var rules []Rule

	for _, domain := range sortedKeys(b.td.Trackers) {
		rules = append(rules, b.BuildTrackerRules(b.td.Trackers[domain])...)
	}

	for _, cname := range sortedKeys(b.td.CNAMEs) {
		tracker, ok := b.td.FindTrackerByCNAME(b.td.CNAMEs[cname])
		if !ok {
			continue
		}
		rules = append(rules, b.BuildTrackerRules(tracker.WithDomain(cname))...)
	}

	rules = append(rules, TransformAllowlist(allowlist)...)

	return append(rules, buildExceptions(exceptions, tempUnprotected)...)
}

// BuildTrackerRules returns the rules of a single tracker: the domain-wide
// block first, then the per-pattern rules.
func (b *Builder) BuildTrackerRules(t trackerdata.Tracker) []Rule {
	rules := b.buildBlockingRules(t)

	special := make([][]Rule, 0, len(t.Rules))
	for _, r := range t.Rules {
		if r.Rule == "" {
			continue
		}
		if t.Default == trackerdata.ActionBlock {
			special = append(special, b.rulesForBlockingTracker(r, t))
		} else {
			special = append(special, b.rulesForIgnoringTracker(r, t))
		}
	}

	sort.SliceStable(special, func(i, j int) bool { return len(special[i]) > len(special[j]) })

	seen := make(map[string]struct{})
	for _, group := range special {
		for _, r := range group {
			key := ruleKey(r)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			rules = append(rules, r)
		}
	}

	return rules
}

func buildExceptions(exceptions, unprotected []string) []Rule {
	all := append(append([]string{}, exceptions...), wildcards(unprotected)...)
	if len(all) == 0 {
		return nil
	}
	return []Rule{ignoreRule(Trigger{
		URLFilter: ".*",
		IfDomain:  all,
		LoadType:  []LoadType{LoadThirdParty},
	})}
}

func (b *Builder) buildBlockingRules(t trackerdata.Tracker) []Rule {
	if t.Default != trackerdata.ActionBlock || t.Domain == "" {
		return nil
	}

	return []Rule{blockRule(Trigger{
		URLFilter:    subDomainPrefix + regexEscape(t.Domain) + domainMatchSuffix,
		UnlessDomain: wildcards(b.td.RelatedDomains(t.Owner)),
		LoadType:     []LoadType{LoadThirdParty},
	})}
}

func (b *Builder) rulesForIgnoringTracker(r trackerdata.Rule, t trackerdata.Tracker) []Rule {
	switch {
	case r.Action == trackerdata.ActionIgnore:
		return []Rule{b.block(r, t.Owner, nil), ignorePrevious(r, r.Options)}
	case r.Options == nil && r.Exceptions == nil:
		return []Rule{b.block(r, t.Owner, nil)}
	case r.Options != nil && r.Exceptions != nil:
		return []Rule{b.block(r, t.Owner, r.Options), ignorePrevious(r, r.Exceptions)}
	case r.Options != nil:
		return []Rule{b.block(r, t.Owner, r.Options)}
	default:
		return []Rule{b.block(r, t.Owner, nil), ignorePrevious(r, r.Exceptions)}
	}
}

func (b *Builder) rulesForBlockingTracker(r trackerdata.Rule, t trackerdata.Tracker) []Rule {
	switch {
	case r.Options != nil && r.Exceptions != nil:
		return []Rule{ignorePrevious(r, nil), b.block(r, t.Owner, r.Options), ignorePrevious(r, r.Exceptions)}
	case r.Action == trackerdata.ActionIgnore:
		return []Rule{ignorePrevious(r, r.Options)}
	case r.Options != nil:
		return []Rule{ignorePrevious(r, nil), b.block(r, t.Owner, r.Options)}
	case r.Exceptions != nil:
		return []Rule{ignorePrevious(r, r.Exceptions)}
	default:
		return []Rule{b.block(r, t.Owner, nil)}
	}
}

// block blocks the rule's pattern, either on the matching page domains and
// types or everywhere except the owner's own sites.
func (b *Builder) block(r trackerdata.Rule, owner *trackerdata.Owner, matching *trackerdata.Matching) Rule {
	if matching != nil {
		return blockRule(Trigger{
			URLFilter:    normalizedRule(r.Rule),
			IfDomain:     prefixAll(matching.Domains, "*"),
			ResourceType: mapResources(matching.Types),
			LoadType:     []LoadType{LoadThirdParty},
		})
	}

	return blockRule(Trigger{
		URLFilter:    normalizedRule(r.Rule),
		UnlessDomain: wildcards(b.td.RelatedDomains(owner)),
		LoadType:     []LoadType{LoadThirdParty},
	})
}

func ignorePrevious(r trackerdata.Rule, matching *trackerdata.Matching) Rule {
	t := Trigger{
		URLFilter: normalizedRule(r.Rule),
		LoadType:  []LoadType{LoadThirdParty},
	}
	if matching != nil {
		t.IfDomain = prefixAll(matching.Domains, "*")
		t.ResourceType = mapResources(matching.Types)
	}
	return ignoreRule(t)
}

func normalizedRule(rule string) string {
	if strings.HasPrefix(rule, "http") {
		return rule
	}
	return subDomainPrefix + rule
}

func regexEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `.`, `\.`).Replace(s)
}

func wildcards(domains []string) []string {
	return prefixAll(domains, "*")
}

func prefixAll(values []string, prefix string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, prefix+v)
	}
	return out
}

func mapResources(types []string) []ResourceType {
	if types == nil {
		return nil
	}
	out := make([]ResourceType, 0, len(types))
	for _, t := range types {
		if rt, ok := resourceMapping[t]; ok {
			out = append(out, rt)
		}
	}
	return out
}

func ruleKey(r Rule) string {
	data, _ := json.Marshal(r)
	return string(data)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
