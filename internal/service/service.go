package service

import (
	"github.com/dastanaron/browsershell/internal/models"
	"github.com/dastanaron/browsershell/internal/repository"
	"github.com/dastanaron/browsershell/internal/search"
)

// BookmarkService provides business logic for bookmarks
type BookmarkService struct {
	repo   repository.Repository
	search *search.CachingSearch
}

// NewBookmarkService creates a new bookmark service. Search queries go
// through s, which must be backed by the same repository. With a nil s every
// query ranks a fresh snapshot.
func NewBookmarkService(repo repository.Repository, s *search.CachingSearch) *BookmarkService {
	return &BookmarkService{repo: repo, search: s}
}

// ListAll returns all bookmarks
func (s *BookmarkService) ListAll() ([]models.Bookmark, error) {
	return s.repo.Bookmarks().List()
}

// Search returns bookmarks and favorites ranked against query. An empty
// query lists everything.
func (s *BookmarkService) Search(query string) ([]models.Bookmark, error) {
	if query == "" {
		return s.ListAll()
	}

	results, err := s.SearchRanked(query)
	if err != nil {
		return nil, err
	}
	return search.Bookmarks(results), nil
}

// SearchRanked is Search with the scores kept.
func (s *BookmarkService) SearchRanked(query string) ([]search.Result, error) {
	if s.search != nil {
		return s.search.SearchRanked(query)
	}

	all, err := s.repo.BookmarksAndFavorites()
	if err != nil {
		return nil, err
	}
	return search.Rank(query, all), nil
}

// GetByFolderID returns bookmarks in a specific folder
func (s *BookmarkService) GetByFolderID(folderID *int) ([]models.Bookmark, error) {
	all, err := s.repo.Bookmarks().List()
	if err != nil {
		return nil, err
	}

	if folderID == nil {
		return all, nil
	}

	var filtered []models.Bookmark
	for _, b := range all {
		if b.FolderID != nil && *b.FolderID == *folderID {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}

// SearchInFolder ranks the bookmarks of a specific folder against query
func (s *BookmarkService) SearchInFolder(query string, folderID *int) ([]models.Bookmark, error) {
	if folderID == nil {
		return s.Search(query)
	}

	inFolder, err := s.GetByFolderID(folderID)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return inFolder, nil
	}
	return search.Bookmarks(search.Rank(query, inFolder)), nil
}

// GetByID returns a bookmark by ID
func (s *BookmarkService) GetByID(id int) (*models.Bookmark, error) {
	return s.repo.Bookmarks().GetByID(id)
}

// GetByURL returns a bookmark by URL
func (s *BookmarkService) GetByURL(url string) (*models.Bookmark, error) {
	return s.repo.Bookmarks().GetByURL(url)
}

// Create creates a new bookmark
func (s *BookmarkService) Create(b *models.Bookmark) error {
	return s.repo.Bookmarks().Create(b)
}

// Update updates an existing bookmark
func (s *BookmarkService) Update(b *models.Bookmark) error {
	return s.repo.Bookmarks().Update(b)
}

// Upsert creates a new bookmark if URL doesn't exist, otherwise updates the existing one.
// Returns true if created, false if updated.
func (s *BookmarkService) Upsert(b *models.Bookmark) (bool, error) {
	return s.repo.Bookmarks().Upsert(b)
}

// Delete deletes a bookmark by ID
func (s *BookmarkService) Delete(id int) error {
	return s.repo.Bookmarks().Delete(id)
}

// FolderService provides business logic for folders
type FolderService struct {
	repo repository.Repository
}

// NewFolderService creates a new folder service
func NewFolderService(repo repository.Repository) *FolderService {
	return &FolderService{repo: repo}
}

// ListAll returns all folders
func (s *FolderService) ListAll() ([]models.Folder, error) {
	return s.repo.Folders().List()
}

// GetByID returns a folder by ID
func (s *FolderService) GetByID(id int) (*models.Folder, error) {
	return s.repo.Folders().GetByID(id)
}

// Create creates a new folder
func (s *FolderService) Create(name string, parentID *int) (*models.Folder, error) {
	return s.repo.Folders().Create(name, parentID)
}

// Update updates an existing folder
func (s *FolderService) Update(f *models.Folder) error {
	return s.repo.Folders().Update(f)
}

// Delete deletes a folder with its subfolders and bookmarks
func (s *FolderService) Delete(id int) error {
	return s.repo.Folders().Delete(id)
}

// GetFolderContent returns all items (bookmarks and subfolders) in a folder
// If folderID is nil, returns all root items (bookmarks without folder and root folders)
func (s *FolderService) GetFolderContent(folderID *int) ([]models.Item, error) {
	return s.repo.Folders().GetFolderContent(folderID)
}

// FavoritesService manages the ordered favorites list
type FavoritesService struct {
	repo repository.Repository
}

// NewFavoritesService creates a new favorites service
func NewFavoritesService(repo repository.Repository) *FavoritesService {
	return &FavoritesService{repo: repo}
}

// List returns favorites in display order
func (s *FavoritesService) List() ([]models.Favorite, error) {
	return s.repo.Favorites().List()
}

// Toggle adds the bookmark to favorites or removes it. It returns the new
// favorite state.
func (s *FavoritesService) Toggle(bookmarkID int) (bool, error) {
	b, err := s.repo.Bookmarks().GetByID(bookmarkID)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, repository.ErrNotFound
	}

	if b.IsFavorite {
		return false, s.repo.Favorites().Remove(bookmarkID)
	}
	return true, s.repo.Favorites().Add(bookmarkID)
}

// Move places a favorite at position to
func (s *FavoritesService) Move(bookmarkID, to int) error {
	return s.repo.Favorites().Move(bookmarkID, to)
}
