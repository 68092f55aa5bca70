package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dastanaron/browsershell/internal/models"
)

func TestListText(t *testing.T) {
	assert.Equal(t, "★ Go", listText(models.Bookmark{Title: "Go", URL: "https://go.dev", IsFavorite: true}))
	assert.Equal(t, "  https://go.dev", listText(models.Bookmark{URL: "https://go.dev"}))
	assert.Equal(t, "  [red[]", listText(models.Bookmark{Title: "[red]"}))
}

func TestDetailsText(t *testing.T) {
	folder := "Dev"
	b := models.Bookmark{Title: "Go", URL: "https://go.dev", FolderName: &folder, IsFavorite: true}

	text := detailsText(b, "Zoom (120%)")
	assert.Contains(t, text, "Dev")
	assert.Contains(t, text, "[::b]Favorite:[::-]\nyes")
	assert.Contains(t, text, "Zoom (120%)")
	assert.NotContains(t, text, "Description")

	text = detailsText(models.Bookmark{Title: "x", Description: "notes"}, "")
	assert.Contains(t, text, "notes")
	assert.Contains(t, text, "[::b]Folder:[::-]\n/")
	assert.NotContains(t, text, "Text size")
}

func TestFolderTree(t *testing.T) {
	work, docs, missing := 1, 3, 99
	items := folderTree([]models.Folder{
		{ID: 3, Name: "Docs", ParentID: &work},
		{ID: 1, Name: "Work"},
		{ID: 2, Name: "Home"},
		{ID: 4, Name: "Orphan", ParentID: &missing},
		{ID: 5, Name: "Go", ParentID: &docs},
	})

	var labels []string
	for _, item := range items {
		labels = append(labels, folderLabel(item))
	}
	assert.Equal(t, []string{"All Bookmarks", "Work", "└─ Docs", "  └─ Go", "Home", "Orphan"}, labels)
	assert.Nil(t, items[0].ID)
	assert.Equal(t, 2, folderIndex(items, 3))
	assert.Equal(t, -1, folderIndex(items, 42))
}

func TestFolderChoices(t *testing.T) {
	work, docs := 1, 3
	items := folderTree([]models.Folder{
		{ID: 1, Name: "Work"},
		{ID: 3, Name: "Docs", ParentID: &work},
		{ID: 5, Name: "Go", ParentID: &docs},
		{ID: 2, Name: "Home"},
	})

	options, ids := folderChoices(items, nil)
	assert.Equal(t, []string{"None", "Work", "└─ Docs", "  └─ Go", "Home"}, options)
	assert.Equal(t, 2, choiceIndex(ids, &docs))
	assert.Equal(t, 0, choiceIndex(ids, nil))

	// A folder cannot become its own parent or a child of its subtree.
	options, ids = folderChoices(items, &docs)
	assert.Equal(t, []string{"None", "Work", "Home"}, options)
	assert.Len(t, ids, 3)
	assert.Equal(t, 0, choiceIndex(ids, &docs))
}

func TestFolderDetailsText(t *testing.T) {
	text := folderDetailsText("Work", []models.Item{
		{Type: models.ItemTypeFolder, Name: "Docs"},
		{Type: models.ItemTypeBookmark, Name: "Go"},
		{Type: models.ItemTypeBookmark, Name: "[red]"},
	})
	assert.Contains(t, text, "[::b]Folder:[::-]\nWork")
	assert.Contains(t, text, "[::b]Subfolders (1):[::-]\nDocs")
	assert.Contains(t, text, "[::b]Bookmarks (2):[::-]\nGo\n[red[]")
}

func TestValidateBookmark(t *testing.T) {
	assert.NoError(t, validateBookmark(&models.Bookmark{URL: "https://go.dev"}))
	assert.Error(t, validateBookmark(&models.Bookmark{URL: "  "}))
	assert.Error(t, validateBookmark(&models.Bookmark{URL: "go.dev/doc"}))
}
