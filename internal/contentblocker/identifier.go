package contentblocker

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Difference is a set of identifier components that changed.
type Difference uint8

// Identifier components.
const (
	DiffTDS Difference = 1 << iota
	DiffTempList
	DiffUnprotectedSites
	DiffAllowlist

	DiffAll = DiffTDS | DiffTempList | DiffUnprotectedSites | DiffAllowlist
)

var diffNames = []struct {
	d    Difference
	name string
}{
	{DiffTDS, "tds"},
	{DiffTempList, "templist"},
	{DiffUnprotectedSites, "unprotected"},
	{DiffAllowlist, "allowlist"},
}

func (d Difference) String() string {
	var names []string
	for _, n := range diffNames {
		if d.Contains(n.d) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Contains reports whether d includes all of other.
func (d Difference) Contains(other Difference) bool {
	return d&other == other
}

// Identifier names a compiled rule list by the versions of its inputs. Each
// component is kept in double quotes, an absent one is "".
type Identifier struct {
	tds         string
	tempList    string
	allowlist   string
	unprotected string
}

// NewIdentifier creates an identifier. Empty components mean absent inputs.
func NewIdentifier(tdsEtag, tempListEtag, allowlistEtag, unprotectedHash string) Identifier {
	return Identifier{
		tds:         normalizeComponent(tdsEtag),
		tempList:    normalizeComponent(tempListEtag),
		allowlist:   normalizeComponent(allowlistEtag),
		unprotected: normalizeComponent(unprotectedHash),
	}
}

// ParseIdentifier reads an identifier string. Besides the current four
// component form it accepts the older forms holding the tracker data and
// temp list etags optionally followed by an unquoted unprotected sites hash.
// A bare legacy name such as "tds" is not an identifier.
func ParseIdentifier(s string) (Identifier, bool) {
	var parts []string
	rest := s
	for strings.HasPrefix(rest, `"`) {
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			return Identifier{}, false
		}
		parts = append(parts, rest[1:end+1])
		rest = rest[end+2:]
	}

	switch {
	case len(parts) == 2:
		return NewIdentifier(parts[0], parts[1], "", rest), true
	case rest != "":
		return Identifier{}, false
	case len(parts) == 3:
		return NewIdentifier(parts[0], parts[1], "", parts[2]), true
	case len(parts) == 4:
		return NewIdentifier(parts[0], parts[1], parts[2], parts[3]), true
	default:
		return Identifier{}, false
	}
}

// String returns the quoted components concatenated.
func (id Identifier) String() string {
	return id.tds + id.tempList + id.allowlist + id.unprotected
}

// TDSEtag returns the tracker data set component without quotes.
func (id Identifier) TDSEtag() string {
	return strings.Trim(id.tds, `"`)
}

// Compare returns the components that differ between id and other.
func (id Identifier) Compare(other Identifier) Difference {
	var d Difference
	if id.tds != other.tds {
		d |= DiffTDS
	}
	if id.tempList != other.tempList {
		d |= DiffTempList
	}
	if id.allowlist != other.allowlist {
		d |= DiffAllowlist
	}
	if id.unprotected != other.unprotected {
		d |= DiffUnprotectedSites
	}
	return d
}

// HashDomains returns the hash identifying a list of unprotected domains, or
// "" for an empty list.
func HashDomains(domains []string) string {
	if len(domains) == 0 {
		return ""
	}
	sum := sha1.Sum([]byte(strings.Join(domains, "")))
	return hex.EncodeToString(sum[:])
}

func normalizeComponent(c string) string {
	if !strings.HasSuffix(c, `"`) {
		c += `"`
	}
	if !strings.HasPrefix(c, `"`) || len(c) == 1 {
		c = `"` + c
	}
	return c
}
