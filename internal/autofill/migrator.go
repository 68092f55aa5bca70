// Package autofill repairs autofill vaults left behind by a broken migration
// to the shared vault location.
package autofill

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/AdguardTeam/golibs/errors"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// MigratedKey is the settings key set once the vault has been checked.
const MigratedKey = "com.duckduckgo.app.autofill.VaultMigrated"

// Keychain service names of the vault key generations.
const (
	ServiceV1 = "DuckDuckGo Secure Vault"
	ServiceV2 = "DuckDuckGo Secure Vault v2"
	ServiceV3 = "DuckDuckGo Secure Vault v3"
	ServiceV4 = "DuckDuckGo Secure Vault v4"
)

var legacyServices = []string{ServiceV1, ServiceV2, ServiceV3}

// Vault file names.
const (
	VaultFileName = "Vault.db"
	sharedDirName = "Shared"
	backupSuffix  = ".bak"
)

// Keychain holds the vault encryption keys.
type Keychain interface {
	HasItems(service string) (bool, error)
	DeleteItems(service string) error
}

// FileSystem is the part of the file system the migrator touches.
type FileSystem interface {
	Exists(path string) bool
	Move(src, dst string) error
}

// Store keeps the migrated flag.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Paths locates the original and shared vault databases.
type Paths struct {
	Original string
	Shared   string
}

// DefaultPaths returns the vault locations inside dataDir.
func DefaultPaths(dataDir string) Paths {
	return Paths{
		Original: filepath.Join(dataDir, VaultFileName),
		Shared:   filepath.Join(dataDir, sharedDirName, VaultFileName),
	}
}

// Outcome tells what a migration check did.
type Outcome string

// Outcomes.
const (
	OutcomeAlreadyMigrated  Outcome = "already migrated"
	OutcomeVaultMissing     Outcome = "vault missing"
	OutcomeNoV4Items        Outcome = "no v4 keychain items"
	OutcomeNoLegacyItems    Outcome = "no legacy keychain items"
	OutcomeDatabaseNotEmpty Outcome = "shared vault not empty"
	OutcomeReset            Outcome = "shared vault reset"
)

// Migrator resets a shared vault that was created empty while the original
// vault still holds the user's credentials.
type Migrator struct {
	keychain Keychain
	fs       FileSystem
	store    Store
	paths    Paths
	logger   *zap.Logger

	// isEmpty reports whether the vault database at path has no credentials.
	isEmpty func(path string) (bool, error)
}

// NewMigrator creates a migrator using the operating system's file system.
func NewMigrator(keychain Keychain, store Store, paths Paths, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{
		keychain: keychain,
		fs:       OSFileSystem{},
		store:    store,
		paths:    paths,
		logger:   logger.Named("autofill"),
		isEmpty:  DatabaseIsEmpty,
	}
}

// ResetVaultMigrationIfRequired runs the check once. When the shared vault
// has no credentials while keys of both the original and the shared vault
// exist, the shared vault is moved aside and its keys deleted so the next
// launch migrates again. The vault is marked migrated in every case.
func (m *Migrator) ResetVaultMigrationIfRequired() (Outcome, error) {
	if v, ok, err := m.store.Get(MigratedKey); err != nil {
		return "", err
	} else if ok && v == "true" {
		return OutcomeAlreadyMigrated, nil
	}

	outcome, err := m.check()
	if err != nil {
		m.logger.Warn("vault migration check failed", zap.Error(err))
	} else {
		m.logger.Info("vault migration checked", zap.String("outcome", string(outcome)))
	}

	if serr := m.store.Set(MigratedKey, "true"); serr != nil {
		return outcome, errors.Join(err, serr)
	}
	return outcome, err
}

func (m *Migrator) check() (Outcome, error) {
	if !m.fs.Exists(m.paths.Original) || !m.fs.Exists(m.paths.Shared) {
		return OutcomeVaultMissing, nil
	}

	hasV4, err := m.keychain.HasItems(ServiceV4)
	if err != nil {
		return "", errors.Annotate(err, "checking %s: %w", ServiceV4)
	}
	if !hasV4 {
		return OutcomeNoV4Items, nil
	}

	hasLegacy := false
	for _, s := range legacyServices {
		ok, err := m.keychain.HasItems(s)
		if err != nil {
			return "", errors.Annotate(err, "checking %s: %w", s)
		}
		if ok {
			hasLegacy = true
			break
		}
	}
	if !hasLegacy {
		return OutcomeNoLegacyItems, nil
	}

	empty, err := m.isEmpty(m.paths.Shared)
	if err != nil {
		return "", errors.Annotate(err, "reading shared vault: %w")
	}
	if !empty {
		return OutcomeDatabaseNotEmpty, nil
	}

	if err := m.fs.Move(m.paths.Shared, m.paths.Shared+backupSuffix); err != nil {
		return "", errors.Annotate(err, "backing up shared vault: %w")
	}
	if err := m.keychain.DeleteItems(ServiceV4); err != nil {
		return "", errors.Annotate(err, "deleting %s: %w", ServiceV4)
	}
	return OutcomeReset, nil
}

// DatabaseIsEmpty reports whether the vault database at path holds no
// website credentials. A database without the credentials table is empty.
func DatabaseIsEmpty(path string) (bool, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return false, err
	}
	defer db.Close()

	var tables int
	err = db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'website_accounts'",
	).Scan(&tables)
	if err != nil {
		return false, err
	}
	if tables == 0 {
		return true, nil
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM website_accounts").Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

// OSFileSystem is the FileSystem of the running process.
type OSFileSystem struct{}

// Exists implements FileSystem.
func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Move implements FileSystem. An existing destination is replaced.
func (OSFileSystem) Move(src, dst string) error {
	return os.Rename(src, dst)
}
