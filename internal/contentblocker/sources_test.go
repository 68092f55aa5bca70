package contentblocker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dastanaron/browsershell/internal/config"
	"github.com/dastanaron/browsershell/internal/trackerdata"
)

func TestReadTempList(t *testing.T) {
	domains, err := ReadTempList(strings.NewReader("# broken sites\nExample.com\n\n  shop.org  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "shop.org"}, domains)
}

func TestLoadSources(t *testing.T) {
	src, err := LoadSources(config.BlockingConfig{})
	require.NoError(t, err)
	assert.Equal(t, trackerdata.EmbeddedEtag, src.Embedded.Etag)
	assert.Nil(t, src.Downloaded)
	assert.Same(t, src.Embedded.Data, src.TrackerData())

	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	cfg := config.BlockingConfig{
		TrackerDataPath: write("tds.json", testTDS),
		TempListPath:    write("temp.txt", "temp.com\n"),
		AllowlistPath:   write("allow.json", `{"tracker.com": {"rules": [{"rule": "tracker.com/widget", "domains": ["<all>"]}]}}`),
		Unprotected:     []string{"unprotected.com"},
	}
	src, err = LoadSources(cfg)
	require.NoError(t, err)

	require.NotNil(t, src.Downloaded)
	assert.Len(t, src.Downloaded.Etag, 16)
	assert.Same(t, src.Downloaded.Data, src.TrackerData())
	assert.Equal(t, []string{"temp.com"}, src.TempList)
	assert.NotEmpty(t, src.TempListEtag)
	require.Len(t, src.Allowlist, 1)
	assert.NotEmpty(t, src.AllowlistEtag)

	again, err := LoadSources(cfg)
	require.NoError(t, err)
	assert.Equal(t, src.Downloaded.Etag, again.Downloaded.Etag)

	_, err = LoadSources(config.BlockingConfig{TempListPath: filepath.Join(dir, "missing")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDifferenceString(t *testing.T) {
	assert.Equal(t, "tds,templist,unprotected,allowlist", DiffAll.String())
	assert.Equal(t, "templist", DiffTempList.String())
	assert.Equal(t, "none", Difference(0).String())
}
