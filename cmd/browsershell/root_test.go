package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bookmarksHTML = `<!DOCTYPE NETSCAPE-Bookmark-file-1>
<DL><p>
    <DT><H3>Dev</H3>
    <DL><p>
        <DT><A HREF="https://go.dev/">Go</A>
        <DT><A HREF="https://pkg.go.dev/">Go Packages</A>
    </DL><p>
</DL><p>
`

// executeCommand runs a fresh root command against dataDir and returns what
// it printed.
func executeCommand(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd := newRootCommand(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--data-dir", dataDir}, args...))

	err := cmd.Execute()
	return buf.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("BROWSERSHELL_PIXEL_DISABLED", "true")
	t.Setenv("BROWSERSHELL_LOG_LEVEL", "error")
	return t.TempDir()
}

func TestRootCommand_Version(t *testing.T) {
	out, err := executeCommand(t, setupEnv(t), "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
}

func TestRootCommand_Help(t *testing.T) {
	out, err := executeCommand(t, setupEnv(t), "--help")
	require.NoError(t, err)
	for _, name := range []string{"import", "search", "rules", "download", "zoom", "sync", "onboarding", "autofill"} {
		assert.Contains(t, out, name)
	}
}

func TestBookmarkCommands(t *testing.T) {
	dir := setupEnv(t)
	file := filepath.Join(dir, "bookmarks.html")
	require.NoError(t, os.WriteFile(file, []byte(bookmarksHTML), 0o644))

	out, err := executeCommand(t, dir, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 bookmarks")
	assert.FileExists(t, filepath.Join(dir, "browsershell.db"))

	out, err = executeCommand(t, dir, "search", "packages")
	require.NoError(t, err)
	assert.Contains(t, out, "Go Packages")
	assert.NotContains(t, out, "https://go.dev/\n")

	out, err = executeCommand(t, dir, "favorite", "toggle", "1")
	require.NoError(t, err)
	assert.Equal(t, "Bookmark 1 added to favorites.\n", out)

	out, err = executeCommand(t, dir, "favorite")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Go\t")

	_, err = executeCommand(t, dir, "favorite", "move", "1", "0")
	assert.Error(t, err)

	exported := filepath.Join(dir, "out.html")
	out, err = executeCommand(t, dir, "export", exported)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 bookmarks")
	assert.FileExists(t, exported)
}

func TestZoomCommands(t *testing.T) {
	dir := setupEnv(t)

	out, err := executeCommand(t, dir, "zoom", "set", "www.example.com", "150")
	require.NoError(t, err)
	assert.Equal(t, "Zoom for example.com set to 150%.\n", out)

	out, err = executeCommand(t, dir, "zoom", "get")
	require.NoError(t, err)
	assert.Equal(t, "default\t100%\nexample.com\t150%\n", out)

	t.Setenv("BROWSERSHELL_TEXT_ZOOM_ENABLED", "false")
	_, err = executeCommand(t, dir, "zoom", "get")
	assert.Error(t, err)
}

func TestSyncCommands(t *testing.T) {
	dir := setupEnv(t)

	out, err := executeCommand(t, dir, "sync", "report", "bookmarks", "409")
	require.NoError(t, err)
	assert.Contains(t, out, "Bookmarks paused:")

	out, err = executeCommand(t, dir, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Bookmarks paused:")

	out, err = executeCommand(t, dir, "sync", "ok", "bookmarks")
	require.NoError(t, err)
	assert.Equal(t, "Sync is running.\n", out)

	_, err = executeCommand(t, dir, "sync", "report", "credentials", "401")
	require.NoError(t, err)
	out, err = executeCommand(t, dir, "sync", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Sync is Paused: ")

	_, err = executeCommand(t, dir, "sync", "off")
	require.NoError(t, err)

	_, err = executeCommand(t, dir, "sync", "report", "history", "409")
	assert.Error(t, err)

	_, err = executeCommand(t, dir, "sync", "report", "bookmarks", "conflict")
	assert.Error(t, err)
}

func TestOnboardingAndAutofillCommands(t *testing.T) {
	dir := setupEnv(t)

	out, err := executeCommand(t, dir, "onboarding", "visit", "https://news.com/", "https://www.google-analytics.com/ga.js")
	require.NoError(t, err)
	assert.Contains(t, out, "Google")

	_, err = executeCommand(t, dir, "onboarding", "dismiss")
	require.NoError(t, err)

	out, err = executeCommand(t, dir, "onboarding", "home")
	require.NoError(t, err)
	assert.Equal(t, "Nothing to show.\n", out)

	out, err = executeCommand(t, dir, "autofill", "migrate")
	require.NoError(t, err)
	assert.Equal(t, "Vault: vault missing\n", out)
}

func TestRulesCommands(t *testing.T) {
	dir := setupEnv(t)
	rules := filepath.Join(dir, "rules.json")

	out, err := executeCommand(t, dir, "rules", "compile", "-o", rules)
	require.NoError(t, err)
	assert.Contains(t, out, "Identifier: ")
	assert.FileExists(t, rules)

	out, err = executeCommand(t, dir, "rules", "compile")
	require.NoError(t, err)
	assert.Contains(t, out, "Changed: none")

	out, err = executeCommand(t, dir, "rules", "check", "https://doubleclick.net/ad.js", "https://news.com/")
	require.NoError(t, err)
	assert.Contains(t, out, "blocked")
}

func TestPixelsList_Empty(t *testing.T) {
	out, err := executeCommand(t, setupEnv(t), "pixels", "list")
	require.NoError(t, err)
	assert.Equal(t, "No queued pixels.\n", out)
}
