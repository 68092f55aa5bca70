package commands

import (
	"fmt"
	"io"

	"github.com/dastanaron/browsershell/internal/repository"
	"github.com/dastanaron/browsershell/internal/service"
	"go.uber.org/zap"
)

// ClearDoublesCommand handles removal of duplicate bookmarks
type ClearDoublesCommand struct {
	bookmarkSvc *service.BookmarkService
	out         io.Writer
	logger      *zap.Logger
}

// NewClearDoublesCommand creates a new clear doubles command
func NewClearDoublesCommand(repo repository.Repository, out io.Writer, logger *zap.Logger) *ClearDoublesCommand {
	return &ClearDoublesCommand{
		bookmarkSvc: service.NewBookmarkService(repo, nil),
		out:         out,
		logger:      logger.Named("clear-doubles"),
	}
}

// Execute removes bookmarks sharing a URL, keeping the first one found. A
// favorite always wins over a plain bookmark with the same URL. It returns
// the number of deleted bookmarks.
func (c *ClearDoublesCommand) Execute() (int, error) {
	allBookmarks, err := c.bookmarkSvc.ListAll()
	if err != nil {
		return 0, fmt.Errorf("failed to get bookmarks: %w", err)
	}

	// URL -> index into allBookmarks of the bookmark to keep
	keep := make(map[string]int)
	var duplicates []int

	for i, b := range allBookmarks {
		if b.URL == "" {
			continue
		}

		j, seen := keep[b.URL]
		switch {
		case !seen:
			keep[b.URL] = i
			continue
		case b.IsFavorite && !allBookmarks[j].IsFavorite:
			keep[b.URL] = i
			duplicates = append(duplicates, allBookmarks[j].ID)
			j = i
		default:
			duplicates = append(duplicates, b.ID)
		}
		fmt.Fprintf(c.out, "Found duplicate: '%s' (keeping ID: %d)\n", b.Title, allBookmarks[j].ID)
	}

	if len(duplicates) == 0 {
		fmt.Fprintln(c.out, "No duplicate bookmarks found.")
		return 0, nil
	}

	deleted := 0
	for _, id := range duplicates {
		if err := c.bookmarkSvc.Delete(id); err != nil {
			c.logger.Warn("failed to delete bookmark", zap.Int("id", id), zap.Error(err))
			continue
		}
		deleted++
	}

	fmt.Fprintf(c.out, "Deleted %d duplicate bookmark(s).\n", deleted)
	return deleted, nil
}
