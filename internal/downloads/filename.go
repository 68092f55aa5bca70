package downloads

import (
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

const unknownFilename = "unknown"

// SanitizeFilename keeps letters, digits and punctuation of name and appends
// the extension of mimeType when name does not already carry one matching
// it. Path separators and invisible characters such as bidi overrides are
// removed.
func SanitizeFilename(name, mimeType string) string {
	if name == "" {
		name = unknownFilename
	}

	if ext := extensionFor(name, mimeType); ext != "" {
		name += ext
	}

	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return -1
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) {
			return r
		}
		return -1
	}, name)

	name = strings.TrimLeft(name, ".")
	if name == "" {
		return unknownFilename
	}
	return name
}

// extensionFor returns the extension to append to name for mimeType, or "".
func extensionFor(name, mimeType string) string {
	if mimeType == "" {
		return ""
	}
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}

	m := mimetype.Lookup(base)
	if m == nil || m.Extension() == "" {
		return ""
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return m.Extension()
	}
	if ext == m.Extension() {
		return ""
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		if t, _, err := mime.ParseMediaType(byExt); err == nil && m.Is(t) {
			return ""
		}
	}
	return m.Extension()
}

// UniqueFilename returns name, or "name 1.ext", "name 2.ext" and so on, the
// first that is not in taken.
func UniqueFilename(name string, taken map[string]struct{}) string {
	ext := filepath.Ext(name)
	prefix := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 1; ; i++ {
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
		candidate = prefix + " " + strconv.Itoa(i) + ext
	}
}

// SuggestedFilename derives a filename from a Content-Disposition header,
// falling back to the last element of the URL path.
func SuggestedFilename(contentDisposition, rawURL string) string {
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil && params["filename"] != "" {
			return path.Base(params["filename"])
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	return base
}
