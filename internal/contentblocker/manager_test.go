package contentblocker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dastanaron/browsershell/internal/logging"
	"github.com/dastanaron/browsershell/internal/trackerdata"
)

type memSettings map[string]string

func (s memSettings) Get(key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

func (s memSettings) Set(key, value string) error {
	s[key] = value
	return nil
}

func brokenTDS(t *testing.T) *trackerdata.TrackerData {
	t.Helper()

	td := loadTestTDS(t)
	tr := td.Trackers["tracker.com"]
	tr.Rules = append(tr.Rules, trackerdata.Rule{Rule: `tracker\.com/(`})
	td.Trackers["tracker.com"] = tr
	return td
}

func TestManager_CompileAndCache(t *testing.T) {
	dir := t.TempDir()
	src := Sources{Embedded: TDSSource{Data: loadTestTDS(t), Etag: "embedded"}}

	m := NewManager(dir, memSettings{}, logging.Nop(), nil)
	res, err := m.Compile(src)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, DiffAll, res.Changes)
	assert.Len(t, res.Rules, 9)
	assert.Equal(t, "embedded", res.Identifier.TDSEtag())

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, res.Identifier, cur)

	again, err := NewManager(dir, memSettings{}, logging.Nop(), nil).Compile(src)
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Equal(t, res.Rules, again.Rules)
}

func TestManager_ChangesAcrossManagers(t *testing.T) {
	dir := t.TempDir()
	settings := memSettings{}
	src := Sources{Embedded: TDSSource{Data: loadTestTDS(t), Etag: "embedded"}}

	_, err := NewManager(dir, settings, logging.Nop(), nil).Compile(src)
	require.NoError(t, err)

	m := NewManager(dir, settings, logging.Nop(), nil)
	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "embedded", cur.TDSEtag())

	res, err := m.Compile(src)
	require.NoError(t, err)
	assert.Equal(t, Difference(0), res.Changes)

	src.TempList = []string{"temp.com"}
	src.TempListEtag = "t1"
	res, err = NewManager(dir, settings, logging.Nop(), nil).Compile(src)
	require.NoError(t, err)
	assert.Equal(t, DiffTempList, res.Changes)

	settings[lastIdentifierKey] = "tds"
	res, err = NewManager(dir, settings, logging.Nop(), nil).Compile(src)
	require.NoError(t, err)
	assert.Equal(t, DiffAll, res.Changes)
}

func TestManager_ReportsChanges(t *testing.T) {
	m := NewManager(t.TempDir(), memSettings{}, logging.Nop(), nil)
	src := Sources{Embedded: TDSSource{Data: loadTestTDS(t), Etag: "embedded"}}

	_, err := m.Compile(src)
	require.NoError(t, err)

	src.TempList = []string{"temp.com"}
	src.TempListEtag = "t1"
	res, err := m.Compile(src)
	require.NoError(t, err)
	assert.Equal(t, DiffTempList, res.Changes)
	assert.Len(t, res.Rules, 10)

	src.Downloaded = &TDSSource{Data: loadTestTDS(t), Etag: "downloaded"}
	src.Unprotected = []string{"site.com"}
	res, err = m.Compile(src)
	require.NoError(t, err)
	assert.Equal(t, DiffTDS|DiffUnprotectedSites, res.Changes)
	assert.Equal(t, "downloaded", res.Identifier.TDSEtag())
}

func TestManager_BrokenDownloadedTDS(t *testing.T) {
	settings := memSettings{}
	m := NewManager(t.TempDir(), settings, logging.Nop(), nil)
	src := Sources{
		Embedded:   TDSSource{Data: loadTestTDS(t), Etag: "embedded"},
		Downloaded: &TDSSource{Data: brokenTDS(t), Etag: "bad"},
	}

	res, err := m.Compile(src)
	require.NoError(t, err)
	assert.Equal(t, "embedded", res.Identifier.TDSEtag())
	assert.Equal(t, "bad", settings[brokenTDSKey])

	// A new version of the downloaded data is tried again.
	src.Downloaded = &TDSSource{Data: loadTestTDS(t), Etag: "good"}
	res, err = m.Compile(src)
	require.NoError(t, err)
	assert.Equal(t, "good", res.Identifier.TDSEtag())
}

func TestManager_BrokenAllowlist(t *testing.T) {
	settings := memSettings{}
	m := NewManager(t.TempDir(), settings, logging.Nop(), nil)
	src := Sources{
		Embedded:      TDSSource{Data: loadTestTDS(t), Etag: "embedded"},
		Allowlist:     []AllowlistEntry{{Rule: "tracker.com/x.js", Domains: []string{}}},
		AllowlistEtag: "a1",
		TempList:      []string{"temp.com"},
		TempListEtag:  "t1",
	}

	// The temp list goes first, then the allowlist.
	res, err := m.Compile(src)
	require.NoError(t, err)
	assert.Equal(t, "t1", settings[brokenTempListKey])
	assert.Equal(t, "a1", settings[brokenAllowlistKey])
	assert.Equal(t, NewIdentifier("embedded", "", "", ""), res.Identifier)
}

func TestManager_BrokenEmbedded(t *testing.T) {
	m := NewManager(t.TempDir(), memSettings{}, logging.Nop(), nil)

	_, err := m.Compile(Sources{Embedded: TDSSource{Data: brokenTDS(t), Etag: "embedded"}})
	assert.Error(t, err)

	_, err = m.Compile(Sources{})
	assert.ErrorIs(t, err, ErrNoValidInputs)
}
