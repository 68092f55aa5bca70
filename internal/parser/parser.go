package parser

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/dastanaron/browsershell/internal/models"

	"golang.org/x/net/html"
)

// ErrNoDLTag is returned for documents without a <DL> bookmark list.
const ErrNoDLTag errors.Error = "invalid bookmarks html: no DL tag"

// Marker folders written by DuckDuckGo apps. Their content is imported
// without creating the folder itself.
const (
	FavoritesFolder = "DuckDuckGo Favorites"
	BookmarksFolder = "DuckDuckGo Bookmarks"

	// FavoriteAttr marks an anchor as a favorite when set to "true".
	FavoriteAttr = "duckduckgo:favorite"
)

// ddTag matches the description tags of old Netscape and Firefox exports.
var ddTag = regexp.MustCompile(`(?i)<dd>`)

// FolderUpserter creates a folder or returns the existing one with the same
// name and parent.
type FolderUpserter interface {
	Upsert(name string, parentID *int) (*models.Folder, error)
}

// Parser parses HTML bookmark files
type Parser struct {
	folders FolderUpserter
}

// NewParser creates a new parser
func NewParser(folders FolderUpserter) *Parser {
	return &Parser{folders: folders}
}

type folderFrame struct {
	id        *int
	favorites bool
}

// ParseBookmarksHTML parses an HTML bookmark file. Folders are created
// through the FolderUpserter as they are met; bookmarks are returned with
// their FolderID and IsFavorite set.
func (p *Parser) ParseBookmarksHTML(r io.Reader) ([]models.Bookmark, error) {
	doc, err := parseNormalized(r)
	if err != nil {
		return nil, err
	}
	if findElement(doc, "dl") == nil {
		return nil, ErrNoDLTag
	}

	var (
		bookmarks []models.Bookmark
		stack     []folderFrame
		walkErr   error
	)

	current := func() folderFrame {
		if len(stack) == 0 {
			return folderFrame{}
		}
		return stack[len(stack)-1]
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if walkErr != nil {
			return
		}

		if n.Type == html.ElementNode {
			switch n.Data {
			case "dt":
				// A folder is a DT holding an H3 header followed by its DL.
				if h3 := childElement(n, "h3"); h3 != nil {
					frame, err := p.openFolder(textContent(h3), current())
					if err != nil {
						walkErr = err
						return
					}

					stack = append(stack, frame)
					for c := n.FirstChild; c != nil; c = c.NextSibling {
						walk(c)
					}
					stack = stack[:len(stack)-1]
					return
				}
			case "a":
				if b, ok := anchorBookmark(n); ok {
					frame := current()
					b.FolderID = frame.id
					b.IsFavorite = b.IsFavorite || frame.favorites
					bookmarks = append(bookmarks, b)
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	if walkErr != nil {
		return nil, walkErr
	}
	return bookmarks, nil
}

func (p *Parser) openFolder(name string, parent folderFrame) (folderFrame, error) {
	switch name {
	case FavoritesFolder:
		return folderFrame{id: parent.id, favorites: true}, nil
	case BookmarksFolder:
		return parent, nil
	}

	folder, err := p.folders.Upsert(name, parent.id)
	if err != nil {
		return folderFrame{}, errors.Annotate(err, "creating folder %q: %w", name)
	}
	return folderFrame{id: &folder.ID, favorites: parent.favorites}, nil
}

// CountBookmarks returns the number of folders and links in the document, or
// zero when it is not a valid bookmark file.
func CountBookmarks(r io.Reader) int {
	doc, err := parseNormalized(r)
	if err != nil || findElement(doc, "dl") == nil {
		return 0
	}

	count := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "h3":
				count++
			case "a":
				if _, ok := anchorBookmark(n); ok {
					count++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return count
}

func parseNormalized(r io.Reader) (*html.Node, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return html.Parse(bytes.NewReader(ddTag.ReplaceAll(raw, nil)))
}

func anchorBookmark(n *html.Node) (models.Bookmark, bool) {
	var b models.Bookmark
	for _, attr := range n.Attr {
		switch attr.Key {
		case "href":
			b.URL = attr.Val
		case "icon":
			icon := attr.Val
			b.Icon = &icon
		case FavoriteAttr:
			b.IsFavorite = attr.Val == "true"
		}
	}
	b.Title = textContent(n)

	return b, b.URL != ""
}

func childElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
	}
	return nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.TrimSpace(sb.String())
}
