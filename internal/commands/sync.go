package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/dastanaron/browsershell/internal/syncerrors"
)

// SyncCommand feeds sync results to the error handler and shows its state
type SyncCommand struct {
	handler *syncerrors.Handler
	out     io.Writer
}

// NewSyncCommand creates a new sync command. Alerts raised by the handler
// are printed to out.
func NewSyncCommand(handler *syncerrors.Handler, out io.Writer) *SyncCommand {
	c := &SyncCommand{handler: handler, out: out}
	handler.SetAlertPresenter(c)
	return c
}

// ShowSyncPausedAlert implements syncerrors.AlertPresenter.
func (c *SyncCommand) ShowSyncPausedAlert(title, informative string) {
	fmt.Fprintf(c.out, "! %s: %s\n", title, informative)
}

// Report records a failed sync of model with an HTTP status code.
func (c *SyncCommand) Report(ctx context.Context, model syncerrors.ModelType, code int) error {
	err := &syncerrors.StatusError{Code: code}
	switch model {
	case syncerrors.Bookmarks:
		c.handler.HandleBookmarkError(ctx, err)
	case syncerrors.Credentials:
		c.handler.HandleCredentialError(ctx, err)
	default:
		return fmt.Errorf("unknown model %d", model)
	}
	return c.Status()
}

// Succeeded records a successful sync of model.
func (c *SyncCommand) Succeeded(model syncerrors.ModelType) error {
	switch model {
	case syncerrors.Bookmarks:
		c.handler.BookmarksSucceeded()
	case syncerrors.Credentials:
		c.handler.CredentialsSucceeded()
	default:
		return fmt.Errorf("unknown model %d", model)
	}
	return c.Status()
}

// TurnOff resets every sync error.
func (c *SyncCommand) TurnOff() error {
	c.handler.SyncDidTurnOff()
	return c.Status()
}

// Status prints which models are paused.
func (c *SyncCommand) Status() error {
	if md, ok := c.handler.PausedMetadata(); ok {
		fmt.Fprintf(c.out, "%s: %s\n", md.Title, md.Message)
	}
	if c.handler.IsBookmarksPaused() {
		md := c.handler.BookmarksPausedMetadata()
		fmt.Fprintf(c.out, "Bookmarks paused: %s [%s]\n", md.Message, md.ButtonTitle)
	}
	if c.handler.IsCredentialsPaused() {
		md := c.handler.CredentialsPausedMetadata()
		fmt.Fprintf(c.out, "Passwords paused: %s [%s]\n", md.Message, md.ButtonTitle)
	}
	if !c.handler.IsPaused() && !c.handler.IsBookmarksPaused() && !c.handler.IsCredentialsPaused() {
		fmt.Fprintln(c.out, "Sync is running.")
	}
	return nil
}
