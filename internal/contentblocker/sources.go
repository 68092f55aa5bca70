package contentblocker

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/dastanaron/browsershell/internal/config"
	"github.com/dastanaron/browsershell/internal/trackerdata"
)

// LoadSources reads the inputs named by cfg. The embedded tracker data is
// always present; the files are optional. Each file's etag is derived from
// its content.
func LoadSources(cfg config.BlockingConfig) (Sources, error) {
	src := Sources{
		Embedded:    TDSSource{Data: trackerdata.Embedded(), Etag: trackerdata.EmbeddedEtag},
		Unprotected: cfg.Unprotected,
	}

	if cfg.TrackerDataPath != "" {
		data, err := os.ReadFile(cfg.TrackerDataPath)
		if err != nil {
			return Sources{}, errors.Annotate(err, "reading tracker data: %w")
		}
		td, err := trackerdata.Decode(bytes.NewReader(data))
		if err != nil {
			return Sources{}, err
		}
		src.Downloaded = &TDSSource{Data: td, Etag: contentEtag(data)}
	}

	if cfg.TempListPath != "" {
		data, err := os.ReadFile(cfg.TempListPath)
		if err != nil {
			return Sources{}, errors.Annotate(err, "reading temp list: %w")
		}
		if src.TempList, err = ReadTempList(bytes.NewReader(data)); err != nil {
			return Sources{}, err
		}
		src.TempListEtag = contentEtag(data)
	}

	if cfg.AllowlistPath != "" {
		data, err := os.ReadFile(cfg.AllowlistPath)
		if err != nil {
			return Sources{}, errors.Annotate(err, "reading allowlist: %w")
		}
		if src.Allowlist, err = ParseAllowlist(bytes.NewReader(data)); err != nil {
			return Sources{}, err
		}
		src.AllowlistEtag = contentEtag(data)
	}

	return src, nil
}

// TrackerData returns the downloaded tracker data, or the embedded one.
func (s Sources) TrackerData() *trackerdata.TrackerData {
	if s.Downloaded != nil && s.Downloaded.Data != nil {
		return s.Downloaded.Data
	}
	return s.Embedded.Data
}

// ReadTempList reads one domain per line. Blank lines and lines starting
// with # are skipped.
func ReadTempList(r io.Reader) ([]string, error) {
	var domains []string
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domains = append(domains, strings.ToLower(line))
	}
	if err := s.Err(); err != nil {
		return nil, errors.Annotate(err, "reading temp list: %w")
	}
	return domains, nil
}

func contentEtag(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
