package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/dastanaron/browsershell/internal/pixel"
)

// PixelsCommand inspects and flushes the pixel retry queue
type PixelsCommand struct {
	persistent *pixel.Persistent
	queue      *pixel.Queue
	out        io.Writer
}

// NewPixelsCommand creates a new pixels command
func NewPixelsCommand(persistent *pixel.Persistent, queue *pixel.Queue, out io.Writer) *PixelsCommand {
	return &PixelsCommand{persistent: persistent, queue: queue, out: out}
}

// Flush retries the queued pixels and prints how many remain.
func (c *PixelsCommand) Flush(ctx context.Context) error {
	before, err := c.queue.Stored()
	if err != nil {
		return fmt.Errorf("failed to read pixel queue: %w", err)
	}

	if err := c.persistent.SendQueued(ctx); err != nil {
		return fmt.Errorf("failed to send queued pixels: %w", err)
	}

	after, err := c.queue.Stored()
	if err != nil {
		return fmt.Errorf("failed to read pixel queue: %w", err)
	}

	fmt.Fprintf(c.out, "Sent %d of %d queued pixels, %d remain.\n", len(before)-len(after), len(before), len(after))
	return nil
}

// List prints the queued pixels.
func (c *PixelsCommand) List() error {
	pixels, err := c.queue.Stored()
	if err != nil {
		return fmt.Errorf("failed to read pixel queue: %w", err)
	}

	if len(pixels) == 0 {
		fmt.Fprintln(c.out, "No queued pixels.")
		return nil
	}
	for _, p := range pixels {
		ts := "-"
		if t, ok := p.Timestamp(); ok {
			ts = t.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(c.out, "%s\t%s\t%s\n", p.ID, ts, p.Name)
	}
	return nil
}
