package commands

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dastanaron/browsershell/internal/downloads"
)

// DownloadCommand fetches a URL into the downloads directory
type DownloadCommand struct {
	manager *downloads.Manager
	out     io.Writer
	logger  *zap.Logger
}

// NewDownloadCommand creates a new download command
func NewDownloadCommand(manager *downloads.Manager, out io.Writer, logger *zap.Logger) *DownloadCommand {
	return &DownloadCommand{manager: manager, out: out, logger: logger.Named("download")}
}

// Execute downloads rawURL and waits for it to finish. An empty filename or
// mimeType is derived from the URL.
func (c *DownloadCommand) Execute(ctx context.Context, rawURL, filename, mimeType string) error {
	if mimeType == "" {
		mimeType = guessMIMEType(filename)
	}

	d, err := c.manager.MakeDownload(downloads.Metadata{
		URL:               rawURL,
		MIMEType:          mimeType,
		SuggestedFilename: filename,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to prepare download: %w", err)
	}

	unsubscribe := c.manager.Subscribe(func(e downloads.Event) {
		if e.Download != d || e.Type != downloads.EventStarted {
			return
		}
		fmt.Fprintf(c.out, "Downloading %s...\n", d.Filename)
	})
	defer unsubscribe()

	if err := c.manager.Start(ctx, d); err != nil {
		return fmt.Errorf("failed to start download: %w", err)
	}

	if err := d.Wait(ctx); err != nil {
		c.manager.Cancel(d)
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Fprintf(c.out, "Saved %s (%d bytes)\n", d.Location(), d.BytesWritten())
	return nil
}

// MarkSeen clears the unseen downloads indicator.
func (c *DownloadCommand) MarkSeen() error {
	if !c.manager.UnseenDownloadsAvailable() {
		fmt.Fprintln(c.out, "No unseen downloads.")
		return nil
	}
	if err := c.manager.MarkAllSeen(); err != nil {
		return fmt.Errorf("failed to mark downloads seen: %w", err)
	}
	fmt.Fprintln(c.out, "Downloads marked as seen.")
	return nil
}

func guessMIMEType(filename string) string {
	if filename == "" {
		return ""
	}
	return mime.TypeByExtension(filepath.Ext(filename))
}
