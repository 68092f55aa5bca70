package autofill

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dastanaron/browsershell/internal/repository"
)

type mockKeychain struct {
	services map[string]bool
	deleted  []string
}

func (k *mockKeychain) HasItems(service string) (bool, error) {
	return k.services[service], nil
}

func (k *mockKeychain) DeleteItems(service string) error {
	k.deleted = append(k.deleted, service)
	delete(k.services, service)
	return nil
}

type mockFS struct {
	existing map[string]bool
	moves    [][2]string
}

func (f *mockFS) Exists(path string) bool { return f.existing[path] }

func (f *mockFS) Move(src, dst string) error {
	f.moves = append(f.moves, [2]string{src, dst})
	return nil
}

type memStore map[string]string

func (s memStore) Get(key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

func (s memStore) Set(key, value string) error {
	s[key] = value
	return nil
}

var testPaths = DefaultPaths("/data")

type fixture struct {
	keychain *mockKeychain
	fs       *mockFS
	store    memStore
	migrator *Migrator
	empty    bool
}

func newFixture(existing []string, services ...string) *fixture {
	f := &fixture{
		keychain: &mockKeychain{services: map[string]bool{}},
		fs:       &mockFS{existing: map[string]bool{}},
		store:    memStore{},
		empty:    true,
	}
	for _, p := range existing {
		f.fs.existing[p] = true
	}
	for _, s := range services {
		f.keychain.services[s] = true
	}

	f.migrator = NewMigrator(f.keychain, f.store, testPaths, nil)
	f.migrator.fs = f.fs
	f.migrator.isEmpty = func(string) (bool, error) { return f.empty, nil }
	return f
}

func (f *fixture) migrated() bool {
	return f.store[MigratedKey] == "true"
}

func TestMigrator(t *testing.T) {
	both := []string{testPaths.Original, testPaths.Shared}

	testCases := []struct {
		name        string
		existing    []string
		services    []string
		notEmpty    bool
		want        Outcome
		wantMoved   bool
		wantDeleted []string
	}{{
		name:     "original missing",
		existing: []string{testPaths.Shared},
		want:     OutcomeVaultMissing,
	}, {
		name:     "shared missing",
		existing: []string{testPaths.Original},
		want:     OutcomeVaultMissing,
	}, {
		name:     "no v4 items",
		existing: both,
		services: []string{ServiceV3},
		want:     OutcomeNoV4Items,
	}, {
		name:     "no legacy items",
		existing: both,
		services: []string{ServiceV4},
		want:     OutcomeNoLegacyItems,
	}, {
		name:     "database not empty",
		existing: both,
		services: []string{ServiceV4, ServiceV3},
		notEmpty: true,
		want:     OutcomeDatabaseNotEmpty,
	}, {
		name:        "empty database is reset",
		existing:    both,
		services:    []string{ServiceV4, ServiceV2},
		want:        OutcomeReset,
		wantMoved:   true,
		wantDeleted: []string{ServiceV4},
	}, {
		name:        "v1 counts as legacy",
		existing:    both,
		services:    []string{ServiceV4, ServiceV1},
		want:        OutcomeReset,
		wantMoved:   true,
		wantDeleted: []string{ServiceV4},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(tc.existing, tc.services...)
			f.empty = !tc.notEmpty

			got, err := f.migrator.ResetVaultMigrationIfRequired()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.True(t, f.migrated())

			if tc.wantMoved {
				assert.Equal(t, [][2]string{{testPaths.Shared, testPaths.Shared + ".bak"}}, f.fs.moves)
			} else {
				assert.Empty(t, f.fs.moves)
			}
			assert.Equal(t, tc.wantDeleted, f.keychain.deleted)
		})
	}
}

func TestMigrator_SkipsIfAlreadyMigrated(t *testing.T) {
	f := newFixture([]string{testPaths.Original, testPaths.Shared}, ServiceV4, ServiceV3)
	f.store[MigratedKey] = "true"

	got, err := f.migrator.ResetVaultMigrationIfRequired()
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyMigrated, got)
	assert.Empty(t, f.fs.moves)
	assert.Empty(t, f.keychain.deleted)
}

func TestMigrator_MarksMigratedOnError(t *testing.T) {
	f := newFixture([]string{testPaths.Original, testPaths.Shared}, ServiceV4, ServiceV3)
	f.migrator.isEmpty = func(string) (bool, error) { return false, os.ErrPermission }

	_, err := f.migrator.ResetVaultMigrationIfRequired()
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.True(t, f.migrated())
	assert.Empty(t, f.keychain.deleted)
}

func TestDatabaseIsEmpty(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "no-table.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE other (id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	empty, err := DatabaseIsEmpty(path)
	require.NoError(t, err)
	assert.True(t, empty)

	path = filepath.Join(dir, "vault.db")
	db, err = sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE website_accounts (id INTEGER PRIMARY KEY, domain TEXT)")
	require.NoError(t, err)

	empty, err = DatabaseIsEmpty(path)
	require.NoError(t, err)
	assert.True(t, empty)

	_, err = db.Exec("INSERT INTO website_accounts (domain) VALUES ('example.com')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	empty, err = DatabaseIsEmpty(path)
	require.NoError(t, err)
	assert.False(t, empty)

	// Only a table counts, not a view carrying the same name.
	path = filepath.Join(dir, "view.db")
	db, err = sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE VIEW website_accounts AS SELECT 1 AS id")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	empty, err = DatabaseIsEmpty(path)
	require.NoError(t, err)
	assert.True(t, empty)

	path = filepath.Join(dir, "garbage.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a database file, only some text padding it out"), 0o644))
	_, err = DatabaseIsEmpty(path)
	assert.Error(t, err)
}

func TestMigratorOnDisk(t *testing.T) {
	dir := t.TempDir()
	paths := DefaultPaths(dir)

	require.NoError(t, os.MkdirAll(filepath.Dir(paths.Shared), 0o755))
	require.NoError(t, os.WriteFile(paths.Original, nil, 0o644))
	db, err := sql.Open("sqlite3", paths.Shared)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE website_accounts (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := repository.NewSQLiteRepository(filepath.Join(dir, "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	keychain := NewStoreKeychain(repo.Settings())
	require.NoError(t, keychain.Add(ServiceV4, "key", "k4"))
	require.NoError(t, keychain.Add(ServiceV3, "key", "k3"))
	require.NoError(t, keychain.Add(ServiceV3, "l2", "l3"))

	services, err := keychain.Services()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ServiceV3, ServiceV4}, services)

	got, err := NewMigrator(keychain, repo.Settings(), paths, nil).ResetVaultMigrationIfRequired()
	require.NoError(t, err)
	assert.Equal(t, OutcomeReset, got)

	assert.NoFileExists(t, paths.Shared)
	assert.FileExists(t, paths.Shared+".bak")

	hasV4, err := keychain.HasItems(ServiceV4)
	require.NoError(t, err)
	assert.False(t, hasV4)
	hasV3, err := keychain.HasItems(ServiceV3)
	require.NoError(t, err)
	assert.True(t, hasV3)
}
