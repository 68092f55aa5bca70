package repository

import (
	"github.com/AdguardTeam/golibs/errors"
	"github.com/dastanaron/browsershell/internal/models"
)

// ErrNotFound is returned by mutations addressing a row that does not exist.
const ErrNotFound errors.Error = "not found"

// BookmarkRepository defines operations for bookmarks
type BookmarkRepository interface {
	List() ([]models.Bookmark, error)
	GetByID(id int) (*models.Bookmark, error)
	GetByURL(url string) (*models.Bookmark, error)
	Create(b *models.Bookmark) error
	Update(b *models.Bookmark) error
	// Upsert creates a new bookmark if URL doesn't exist, otherwise updates the existing one.
	// Returns true if created, false if updated.
	Upsert(b *models.Bookmark) (bool, error)
	Delete(id int) error
}

// FolderRepository defines operations for folders
type FolderRepository interface {
	List() ([]models.Folder, error)
	GetByID(id int) (*models.Folder, error)
	Create(name string, parentID *int) (*models.Folder, error)
	Update(f *models.Folder) error
	// Delete removes the folder together with its subfolders and their bookmarks.
	Delete(id int) error
	Upsert(name string, parentID *int) (*models.Folder, error)
	// GetFolderContent returns subfolders first, then bookmarks. A nil folderID
	// addresses the root.
	GetFolderContent(folderID *int) ([]models.Item, error)
}

// FavoriteRepository keeps the ordered favorites list.
type FavoriteRepository interface {
	List() ([]models.Favorite, error)
	// Add appends the bookmark to the end of the list. Adding an existing
	// favorite is a no-op.
	Add(bookmarkID int) error
	Remove(bookmarkID int) error
	// Move places the favorite at position to, shifting the others.
	Move(bookmarkID, to int) error
}

// SettingsRepository is a string key/value store for feature state.
type SettingsRepository interface {
	// Get returns the value and whether it was set.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	// Keys returns all keys starting with prefix.
	Keys(prefix string) ([]string, error)
}

// Repository combines all repositories
type Repository interface {
	Bookmarks() BookmarkRepository
	Folders() FolderRepository
	Favorites() FavoriteRepository
	Settings() SettingsRepository
	// BookmarksAndFavorites returns the favorites in list order followed by
	// the other bookmarks.
	BookmarksAndFavorites() ([]models.Bookmark, error)
	// OnChange registers fn to be called after any bookmark, folder or
	// favorite mutation.
	OnChange(fn func())
	Close() error
}
