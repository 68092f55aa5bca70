package repository_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dastanaron/browsershell/internal/models"
	"github.com/dastanaron/browsershell/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *repository.SQLiteRepository {
	t.Helper()

	repo, _ := newRepoAt(t)
	return repo
}

func newRepoAt(t *testing.T) (*repository.SQLiteRepository, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	repo, err := repository.NewSQLiteRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo, path
}

// rejectFavorites makes every insert into the favorites table fail.
func rejectFavorites(t *testing.T, path string) {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TRIGGER reject_favorites BEFORE INSERT ON favorites
		BEGIN SELECT RAISE(ABORT, 'favorites are read-only'); END`)
	require.NoError(t, err)
}

func TestBookmarks_CRUD(t *testing.T) {
	repo := newRepo(t)
	bookmarks := repo.Bookmarks()

	b := &models.Bookmark{Title: "Example", URL: "https://example.com", Description: "desc"}
	require.NoError(t, bookmarks.Create(b))
	assert.NotZero(t, b.ID)

	got, err := bookmarks.GetByID(b.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Example", got.Title)
	assert.Equal(t, "desc", got.Description)
	assert.False(t, got.IsFavorite)

	got.Title = "Renamed"
	require.NoError(t, bookmarks.Update(got))

	byURL, err := bookmarks.GetByURL("https://example.com")
	require.NoError(t, err)
	require.NotNil(t, byURL)
	assert.Equal(t, "Renamed", byURL.Title)

	require.NoError(t, bookmarks.Delete(b.ID))
	missing, err := bookmarks.GetByID(b.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = bookmarks.Update(&models.Bookmark{ID: 999, Title: "x", URL: "y"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBookmarks_Upsert(t *testing.T) {
	repo := newRepo(t)
	bookmarks := repo.Bookmarks()

	created, err := bookmarks.Upsert(&models.Bookmark{Title: "One", URL: "https://one.example"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = bookmarks.Upsert(&models.Bookmark{Title: "Uno", URL: "https://one.example", IsFavorite: true})
	require.NoError(t, err)
	assert.False(t, created)

	list, err := bookmarks.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Uno", list[0].Title)
	assert.True(t, list[0].IsFavorite)
}

func TestBookmarks_FavoriteWriteIsAtomic(t *testing.T) {
	repo, path := newRepoAt(t)
	bookmarks := repo.Bookmarks()

	created, err := bookmarks.Upsert(&models.Bookmark{Title: "One", URL: "https://one.example"})
	require.NoError(t, err)
	require.True(t, created)

	rejectFavorites(t, path)

	b := &models.Bookmark{Title: "Two", URL: "https://two.example", IsFavorite: true}
	assert.Error(t, bookmarks.Create(b))
	assert.Zero(t, b.ID)

	got, err := bookmarks.GetByURL("https://two.example")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = bookmarks.Upsert(&models.Bookmark{Title: "Uno", URL: "https://one.example", IsFavorite: true})
	assert.Error(t, err)

	got, err = bookmarks.GetByURL("https://one.example")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "One", got.Title)
	assert.False(t, got.IsFavorite)
}

func TestFolders_ContentAndCascadeDelete(t *testing.T) {
	repo := newRepo(t)
	folders := repo.Folders()

	parent, err := folders.Upsert("Parent", nil)
	require.NoError(t, err)
	again, err := folders.Upsert("Parent", nil)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, again.ID)

	child, err := folders.Create("Child", &parent.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Bookmarks().Create(&models.Bookmark{Title: "In parent", URL: "https://a.example", FolderID: &parent.ID}))
	require.NoError(t, repo.Bookmarks().Create(&models.Bookmark{Title: "In child", URL: "https://b.example", FolderID: &child.ID, IsFavorite: true}))

	items, err := folders.GetFolderContent(&parent.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.ItemTypeFolder, items[0].Type)
	assert.Equal(t, "Child", items[0].Name)
	assert.Equal(t, models.ItemTypeBookmark, items[1].Type)
	assert.Equal(t, "In parent", items[1].Name)

	root, err := folders.GetFolderContent(nil)
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.Equal(t, "Parent", root[0].Name)

	require.NoError(t, folders.Delete(parent.ID))

	list, err := repo.Bookmarks().List()
	require.NoError(t, err)
	assert.Empty(t, list)

	favs, err := repo.Favorites().List()
	require.NoError(t, err)
	assert.Empty(t, favs)

	all, err := folders.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFavorites_Order(t *testing.T) {
	repo := newRepo(t)

	var ids []int
	for _, title := range []string{"a", "b", "c"} {
		b := &models.Bookmark{Title: title, URL: "https://" + title + ".example"}
		require.NoError(t, repo.Bookmarks().Create(b))
		require.NoError(t, repo.Favorites().Add(b.ID))
		ids = append(ids, b.ID)
	}
	require.NoError(t, repo.Favorites().Add(ids[0]))

	titles := func() []string {
		favs, err := repo.Favorites().List()
		require.NoError(t, err)

		var out []string
		for i, f := range favs {
			assert.Equal(t, i, f.Position)
			out = append(out, f.Title)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b", "c"}, titles())

	require.NoError(t, repo.Favorites().Move(ids[2], 0))
	assert.Equal(t, []string{"c", "a", "b"}, titles())

	require.NoError(t, repo.Favorites().Move(ids[2], 10))
	assert.Equal(t, []string{"a", "b", "c"}, titles())

	require.NoError(t, repo.Favorites().Remove(ids[0]))
	assert.Equal(t, []string{"b", "c"}, titles())

	assert.ErrorIs(t, repo.Favorites().Add(12345), repository.ErrNotFound)
	assert.ErrorIs(t, repo.Favorites().Move(ids[0], 0), repository.ErrNotFound)
}

func TestBookmarksAndFavorites(t *testing.T) {
	repo := newRepo(t)

	require.NoError(t, repo.Bookmarks().Create(&models.Bookmark{Title: "plain", URL: "https://p.example"}))
	require.NoError(t, repo.Bookmarks().Create(&models.Bookmark{Title: "fav", URL: "https://f.example", IsFavorite: true}))

	all, err := repo.BookmarksAndFavorites()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "fav", all[0].Title)
	assert.True(t, all[0].IsFavorite)
	assert.Equal(t, "plain", all[1].Title)
}

func TestOnChange(t *testing.T) {
	repo := newRepo(t)

	calls := 0
	repo.OnChange(func() { calls++ })

	b := &models.Bookmark{Title: "t", URL: "https://t.example"}
	require.NoError(t, repo.Bookmarks().Create(b))
	require.NoError(t, repo.Favorites().Add(b.ID))
	_, err := repo.Folders().Create("f", nil)
	require.NoError(t, err)
	require.NoError(t, repo.Settings().Set("k", "v"))

	assert.Equal(t, 3, calls)
}

func TestSettings(t *testing.T) {
	settings := newRepo(t).Settings()

	_, ok, err := settings.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, settings.Set("zoom.example.com", "120"))
	require.NoError(t, settings.Set("zoom.example.com", "140"))
	require.NoError(t, settings.Set("zoom_other", "1"))
	require.NoError(t, settings.Set("pixel.x", "1"))

	v, ok, err := settings.Get("zoom.example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "140", v)

	keys, err := settings.Keys("zoom.")
	require.NoError(t, err)
	assert.Equal(t, []string{"zoom.example.com"}, keys)

	require.NoError(t, settings.Delete("zoom.example.com"))
	_, ok, err = settings.Get("zoom.example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}
