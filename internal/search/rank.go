// Package search implements the ranked bookmark and favorite search used by
// the address bar and the terminal UI.
package search

import (
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/dastanaron/browsershell/internal/models"
	"golang.org/x/net/publicsuffix"
)

// Score components.
const (
	scoreTitlePrefix     = 200
	scoreWordPrefix      = 100
	scoreAllTokens       = 10
	scoreDomainPrefix    = 300
	scoreFirstTokenTitle = 50
)

// Result is a bookmark together with its ranking score.
type Result struct {
	models.Bookmark
	Score int
}

// Rank scores candidates against query and returns the matches best first.
// Ties keep favorites before bookmarks and then the candidates' order.
// The returned slice is never nil.
func Rank(query string, candidates []models.Bookmark) []Result {
	results := []Result{}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return results
	}
	tokens := strings.Fields(q)

	type dedupKey struct {
		title, url string
		favorite   bool
	}
	seen := make(map[dedupKey]struct{}, len(candidates))

	for _, c := range candidates {
		k := dedupKey{c.Title, c.URL, c.IsFavorite}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}

		if s := score(q, tokens, c); s > 0 {
			results = append(results, Result{Bookmark: c, Score: s})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].IsFavorite && !results[j].IsFavorite
	})

	return results
}

func score(q string, tokens []string, b models.Bookmark) int {
	title := strings.ToLower(strings.TrimSpace(b.Title))
	domains := domainsOf(b.URL)

	total := 0
	switch {
	case hasPrefix(title, q):
		total = scoreTitlePrefix
	case anyWordHasPrefix(title, q):
		total = scoreWordPrefix
	}

	if len(tokens) == 1 {
		if domainHasPrefix(domains, q) {
			total += scoreDomainPrefix
		}
		return total
	}

	for _, t := range tokens {
		if !anyWordHasPrefix(title, t) && !domainHasPrefix(domains, t) {
			return total
		}
	}

	total += scoreAllTokens
	switch {
	case domainHasPrefix(domains, tokens[0]):
		total += scoreDomainPrefix
	case hasPrefix(title, tokens[0]):
		total += scoreFirstTokenTitle
	}

	return total
}

// hasPrefix reports whether s starts with prefix, either as is or once its
// leading punctuation is dropped.
func hasPrefix(s, prefix string) bool {
	if strings.HasPrefix(s, prefix) {
		return true
	}
	trimmed := strings.TrimLeftFunc(s, unicode.IsPunct)
	return len(trimmed) != len(s) && strings.HasPrefix(trimmed, prefix)
}

func anyWordHasPrefix(title, prefix string) bool {
	atStart := true
	for i, r := range title {
		if unicode.IsSpace(r) {
			atStart = true
			continue
		}
		if atStart && hasPrefix(title[i:], prefix) {
			return true
		}
		atStart = false
	}
	return false
}

func domainHasPrefix(domains []string, prefix string) bool {
	for _, d := range domains {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}

// domainsOf returns the lowercased host without "www." and, when it differs,
// its registrable domain.
func domainsOf(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	domains := []string{host}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil && etld1 != host {
		domains = append(domains, etld1)
	}
	return domains
}
