package service_test

import (
	"path/filepath"
	"testing"

	"github.com/dastanaron/browsershell/internal/models"
	"github.com/dastanaron/browsershell/internal/repository"
	"github.com/dastanaron/browsershell/internal/search"
	"github.com/dastanaron/browsershell/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*repository.SQLiteRepository, *service.BookmarkService, *service.FavoritesService) {
	t.Helper()

	repo, err := repository.NewSQLiteRepository(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	s := search.NewCachingSearch(repo, zap.NewNop(), nil)
	return repo, service.NewBookmarkService(repo, s), service.NewFavoritesService(repo)
}

func TestBookmarkService_SearchSeesChanges(t *testing.T) {
	_, bookmarks, favorites := setup(t)

	b := &models.Bookmark{Title: "Go documentation", URL: "https://go.dev/doc"}
	require.NoError(t, bookmarks.Create(b))
	require.NoError(t, bookmarks.Create(&models.Bookmark{Title: "Good news", URL: "https://news.example"}))

	got, err := bookmarks.Search("go")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Go documentation", got[0].Title)

	fav, err := favorites.Toggle(b.ID)
	require.NoError(t, err)
	assert.True(t, fav)

	got, err = bookmarks.Search("go")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].IsFavorite)

	require.NoError(t, bookmarks.Delete(b.ID))
	got, err = bookmarks.Search("go")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Good news", got[0].Title)

	all, err := bookmarks.Search("")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBookmarkService_SearchInFolder(t *testing.T) {
	repo, bookmarks, _ := setup(t)

	folder, err := repo.Folders().Create("Work", nil)
	require.NoError(t, err)
	require.NoError(t, bookmarks.Create(&models.Bookmark{Title: "test inside", URL: "https://in.example", FolderID: &folder.ID}))
	require.NoError(t, bookmarks.Create(&models.Bookmark{Title: "test outside", URL: "https://out.example"}))

	got, err := bookmarks.SearchInFolder("test", &folder.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "test inside", got[0].Title)

	got, err = bookmarks.SearchInFolder("test", nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFavoritesService_Toggle(t *testing.T) {
	_, bookmarks, favorites := setup(t)

	b := &models.Bookmark{Title: "x", URL: "https://x.example"}
	require.NoError(t, bookmarks.Create(b))

	on, err := favorites.Toggle(b.ID)
	require.NoError(t, err)
	assert.True(t, on)

	off, err := favorites.Toggle(b.ID)
	require.NoError(t, err)
	assert.False(t, off)

	list, err := favorites.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = favorites.Toggle(999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFolderService_Lifecycle(t *testing.T) {
	repo, bookmarks, _ := setup(t)
	folders := service.NewFolderService(repo)

	work, err := folders.Create("Work", nil)
	require.NoError(t, err)
	docs, err := folders.Create("Docs", &work.ID)
	require.NoError(t, err)
	require.NoError(t, bookmarks.Create(&models.Bookmark{Title: "Go", URL: "https://go.dev", FolderID: &docs.ID}))

	content, err := folders.GetFolderContent(&work.ID)
	require.NoError(t, err)
	require.Len(t, content, 1)
	assert.Equal(t, models.ItemTypeFolder, content[0].Type)
	assert.Equal(t, "Docs", content[0].Name)

	docs.Name = "Reference"
	require.NoError(t, folders.Update(docs))
	got, err := folders.GetByID(docs.ID)
	require.NoError(t, err)
	assert.Equal(t, "Reference", got.Name)

	b, err := bookmarks.GetByURL("https://go.dev")
	require.NoError(t, err)
	require.NotNil(t, b)
	b.Title = "Go home"
	require.NoError(t, bookmarks.Update(b))
	inFolder, err := bookmarks.SearchInFolder("", &docs.ID)
	require.NoError(t, err)
	require.Len(t, inFolder, 1)
	assert.Equal(t, "Go home", inFolder[0].Title)

	require.NoError(t, folders.Delete(work.ID))
	all, err := folders.ListAll()
	require.NoError(t, err)
	assert.Empty(t, all)

	b, err = bookmarks.GetByURL("https://go.dev")
	require.NoError(t, err)
	assert.Nil(t, b)
}
