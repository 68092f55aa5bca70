package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dastanaron/browsershell/internal/service"
)

// SearchCommand prints ranked bookmark matches
type SearchCommand struct {
	bookmarkSvc *service.BookmarkService
	out         io.Writer
}

// NewSearchCommand creates a new search command
func NewSearchCommand(bookmarkSvc *service.BookmarkService, out io.Writer) *SearchCommand {
	return &SearchCommand{bookmarkSvc: bookmarkSvc, out: out}
}

// Execute prints at most limit matches for query, best first. A limit of
// zero prints all of them.
func (c *SearchCommand) Execute(query string, limit int, showScore bool) error {
	results, err := c.bookmarkSvc.SearchRanked(query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Fprintln(c.out, "No bookmarks found.")
		return nil
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	for _, r := range results {
		mark := " "
		if r.IsFavorite {
			mark = "★"
		}
		score := ""
		if showScore {
			score = " [" + strconv.Itoa(r.Score) + "]"
		}
		fmt.Fprintf(c.out, "%s %d\t%s\t%s%s\n", mark, r.ID, r.Title, r.URL, score)
	}
	return nil
}

// FavoriteCommand toggles and lists favorites
type FavoriteCommand struct {
	favoritesSvc *service.FavoritesService
	out          io.Writer
}

// NewFavoriteCommand creates a new favorite command
func NewFavoriteCommand(favoritesSvc *service.FavoritesService, out io.Writer) *FavoriteCommand {
	return &FavoriteCommand{favoritesSvc: favoritesSvc, out: out}
}

// Toggle flips the favorite state of a bookmark
func (c *FavoriteCommand) Toggle(bookmarkID int) error {
	on, err := c.favoritesSvc.Toggle(bookmarkID)
	if err != nil {
		return fmt.Errorf("failed to toggle favorite %d: %w", bookmarkID, err)
	}

	if on {
		fmt.Fprintf(c.out, "Bookmark %d added to favorites.\n", bookmarkID)
	} else {
		fmt.Fprintf(c.out, "Bookmark %d removed from favorites.\n", bookmarkID)
	}
	return nil
}

// Move places a favorite at position to
func (c *FavoriteCommand) Move(bookmarkID, to int) error {
	if err := c.favoritesSvc.Move(bookmarkID, to); err != nil {
		return fmt.Errorf("failed to move favorite %d: %w", bookmarkID, err)
	}
	return c.List()
}

// List prints the favorites in order
func (c *FavoriteCommand) List() error {
	favorites, err := c.favoritesSvc.List()
	if err != nil {
		return fmt.Errorf("failed to list favorites: %w", err)
	}

	for _, f := range favorites {
		fmt.Fprintf(c.out, "%d. %s\t%s (ID: %d)\n", f.Position+1, f.Title, f.URL, f.ID)
	}
	return nil
}
