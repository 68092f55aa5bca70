package commands

import (
	"fmt"
	"io"

	"github.com/dastanaron/browsershell/internal/textzoom"
)

// ZoomCommand reads and changes per-site text zoom levels
type ZoomCommand struct {
	coordinator *textzoom.Coordinator
	out         io.Writer
}

// NewZoomCommand creates a new zoom command
func NewZoomCommand(coordinator *textzoom.Coordinator, out io.Writer) *ZoomCommand {
	return &ZoomCommand{coordinator: coordinator, out: out}
}

// Get prints the level applied to host, or every customized domain when host
// is empty.
func (c *ZoomCommand) Get(host string) error {
	if !c.coordinator.IsEnabled() {
		return textzoom.ErrDisabled
	}

	if host != "" {
		label, _ := c.coordinator.MenuEntry(host)
		fmt.Fprintf(c.out, "%s\t%s\t%s\n", host, c.coordinator.Level(host), label)
		return nil
	}

	fmt.Fprintf(c.out, "default\t%s\n", c.coordinator.DefaultLevel())
	domains, err := c.coordinator.Domains()
	if err != nil {
		return fmt.Errorf("failed to list zoom levels: %w", err)
	}
	for _, d := range domains {
		fmt.Fprintf(c.out, "%s\t%s\n", d.Domain, d.Level)
	}
	return nil
}

// Set stores level for host, or the default level when host is empty.
func (c *ZoomCommand) Set(host, level string) error {
	if !c.coordinator.IsEnabled() {
		return textzoom.ErrDisabled
	}

	l, err := textzoom.ParseLevel(level)
	if err != nil {
		return err
	}

	if host == "" {
		if err := c.coordinator.SetDefaultLevel(l); err != nil {
			return fmt.Errorf("failed to set default zoom: %w", err)
		}
		fmt.Fprintf(c.out, "Default zoom set to %s.\n", l)
		return nil
	}

	if err := c.coordinator.SetLevel(l, host); err != nil {
		return fmt.Errorf("failed to set zoom for %s: %w", host, err)
	}
	domain, _ := textzoom.RegistrableDomain(host)
	fmt.Fprintf(c.out, "Zoom for %s set to %s.\n", domain, l)
	return nil
}

// Reset forgets every customized level except those of keep.
func (c *ZoomCommand) Reset(keep []string) error {
	if err := c.coordinator.Reset(keep); err != nil {
		return fmt.Errorf("failed to reset zoom levels: %w", err)
	}
	fmt.Fprintln(c.out, "Zoom levels reset.")
	return nil
}
