package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/dastanaron/browsershell/internal/parser"
	"github.com/dastanaron/browsershell/internal/repository"
	"github.com/dastanaron/browsershell/internal/service"
	"go.uber.org/zap"
)

// ImportSummary counts the outcome of an import.
type ImportSummary struct {
	Successful int
	Duplicates int
	Failed     int
}

// ImportCommand handles bookmark import from HTML file
type ImportCommand struct {
	bookmarkSvc *service.BookmarkService
	parser      *parser.Parser
	out         io.Writer
	logger      *zap.Logger
}

// NewImportCommand creates a new import command
func NewImportCommand(repo repository.Repository, out io.Writer, logger *zap.Logger) *ImportCommand {
	return &ImportCommand{
		bookmarkSvc: service.NewBookmarkService(repo, nil),
		parser:      parser.NewParser(repo.Folders()),
		out:         out,
		logger:      logger.Named("import"),
	}
}

// Execute imports bookmarks from HTML file
func (c *ImportCommand) Execute(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("cannot open file: %w", err)
	}
	defer file.Close()

	summary, err := c.Import(file)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Imported %d bookmarks (%d already present, %d failed).\n",
		summary.Successful, summary.Duplicates, summary.Failed)
	return nil
}

// Import reads a bookmark document from r and stores its bookmarks. A
// bookmark whose URL is already stored updates the existing one.
func (c *ImportCommand) Import(r io.Reader) (ImportSummary, error) {
	var summary ImportSummary

	bookmarks, err := c.parser.ParseBookmarksHTML(r)
	if err != nil {
		return summary, fmt.Errorf("failed to parse HTML: %w", err)
	}

	for i := range bookmarks {
		b := &bookmarks[i]
		created, err := c.bookmarkSvc.Upsert(b)
		switch {
		case err != nil:
			c.logger.Warn("failed to import bookmark", zap.String("title", b.Title), zap.Error(err))
			summary.Failed++
		case created:
			summary.Successful++
		default:
			summary.Duplicates++
		}
	}

	c.logger.Info("import finished",
		zap.Int("successful", summary.Successful),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}
