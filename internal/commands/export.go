package commands

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dastanaron/browsershell/internal/models"
	"github.com/dastanaron/browsershell/internal/parser"
	"github.com/dastanaron/browsershell/internal/repository"
	"github.com/dastanaron/browsershell/internal/service"
)

// ExportCommand handles bookmark export to HTML file
type ExportCommand struct {
	bookmarkSvc *service.BookmarkService
	folderSvc   *service.FolderService
	out         io.Writer
}

// NewExportCommand creates a new export command
func NewExportCommand(repo repository.Repository, out io.Writer) *ExportCommand {
	return &ExportCommand{
		bookmarkSvc: service.NewBookmarkService(repo, nil),
		folderSvc:   service.NewFolderService(repo),
		out:         out,
	}
}

// Execute exports bookmarks to HTML file
func (c *ExportCommand) Execute(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("cannot create file: %w", err)
	}
	defer file.Close()

	n, err := c.Export(file)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Exported %d bookmarks to %s\n", n, filePath)
	return nil
}

// Export writes all folders and bookmarks to w in the Netscape bookmark
// format and returns the number of bookmarks written.
func (c *ExportCommand) Export(w io.Writer) (int, error) {
	folders, err := c.folderSvc.ListAll()
	if err != nil {
		return 0, fmt.Errorf("failed to get folders: %w", err)
	}

	bookmarks, err := c.bookmarkSvc.ListAll()
	if err != nil {
		return 0, fmt.Errorf("failed to get bookmarks: %w", err)
	}

	// Group bookmarks by folder ID (use -1 for nil folder)
	bookmarksByFolder := make(map[int][]models.Bookmark)
	for _, b := range bookmarks {
		folderKey := -1
		if b.FolderID != nil {
			folderKey = *b.FolderID
		}
		bookmarksByFolder[folderKey] = append(bookmarksByFolder[folderKey], b)
	}
	for key := range bookmarksByFolder {
		list := bookmarksByFolder[key]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Title < list[j].Title })
	}

	bw := bufio.NewWriter(w)
	e := &exportWriter{w: bw, folders: folders, bookmarksByFolder: bookmarksByFolder}

	fmt.Fprint(bw, "<!DOCTYPE NETSCAPE-Bookmark-file-1>\n")
	fmt.Fprint(bw, "<META HTTP-EQUIV=\"Content-Type\" CONTENT=\"text/html; charset=UTF-8\">\n")
	fmt.Fprint(bw, "<TITLE>Bookmarks</TITLE>\n")
	fmt.Fprint(bw, "<H1>Bookmarks</H1>\n")
	fmt.Fprint(bw, "<DL><p>\n")

	for _, folder := range e.children(nil) {
		e.writeFolder(folder, 1)
	}
	for _, b := range bookmarksByFolder[-1] {
		e.writeBookmark(b, 1)
	}

	fmt.Fprint(bw, "</DL><p>\n")

	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to write export: %w", err)
	}
	return len(bookmarks), nil
}

type exportWriter struct {
	w                 io.Writer
	folders           []models.Folder
	bookmarksByFolder map[int][]models.Bookmark
}

// children returns the subfolders of parentID sorted by name. A nil parentID
// (or the legacy 0) selects the root folders.
func (e *exportWriter) children(parentID *int) []models.Folder {
	var out []models.Folder
	for _, f := range e.folders {
		isRoot := f.ParentID == nil || *f.ParentID == 0
		switch {
		case parentID == nil && isRoot:
			out = append(out, f)
		case parentID != nil && !isRoot && *f.ParentID == *parentID:
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e *exportWriter) writeFolder(folder models.Folder, level int) {
	indent := strings.Repeat("    ", level)
	fmt.Fprintf(e.w, "%s<DT><H3>%s</H3>\n", indent, html.EscapeString(folder.Name))
	fmt.Fprintf(e.w, "%s<DL><p>\n", indent)

	for _, child := range e.children(&folder.ID) {
		e.writeFolder(child, level+1)
	}
	for _, b := range e.bookmarksByFolder[folder.ID] {
		e.writeBookmark(b, level+1)
	}

	fmt.Fprintf(e.w, "%s</DL><p>\n", indent)
}

func (e *exportWriter) writeBookmark(b models.Bookmark, level int) {
	attrs := fmt.Sprintf(` HREF="%s"`, html.EscapeString(b.URL))
	if b.Icon != nil && *b.Icon != "" {
		attrs += fmt.Sprintf(` ICON="%s"`, html.EscapeString(*b.Icon))
	}
	if b.IsFavorite {
		attrs += fmt.Sprintf(` %s="true"`, parser.FavoriteAttr)
	}

	fmt.Fprintf(e.w, "%s<DT><A%s>%s</A>\n", strings.Repeat("    ", level), attrs, html.EscapeString(b.Title))
}
