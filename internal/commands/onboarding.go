package commands

import (
	"fmt"
	"io"

	"github.com/dastanaron/browsershell/internal/onboarding"
	"github.com/dastanaron/browsershell/internal/trackerdata"
)

// OnboardingCommand walks through the onboarding dialogs
type OnboardingCommand struct {
	dialogs *onboarding.Dialogs
	td      *trackerdata.TrackerData
	out     io.Writer
}

// NewOnboardingCommand creates a new onboarding command. td resolves the
// owners of blocked trackers.
func NewOnboardingCommand(dialogs *onboarding.Dialogs, td *trackerdata.TrackerData, out io.Writer) *OnboardingCommand {
	return &OnboardingCommand{dialogs: dialogs, td: td, out: out}
}

// Home prints the next home screen dialog.
func (c *OnboardingCommand) Home() error {
	msg, err := c.dialogs.NextHomeScreenMessage()
	if err != nil {
		return fmt.Errorf("failed to read onboarding state: %w", err)
	}
	c.print(msg)
	return nil
}

// Visit prints the dialog for a visit to pageURL where requests to
// trackerURLs were blocked.
func (c *OnboardingCommand) Visit(pageURL string, trackerURLs []string) error {
	v := onboarding.Visit{URL: pageURL}
	for _, u := range trackerURLs {
		var owner trackerdata.Entity
		if t, ok := c.td.FindTracker(u); ok && t.Owner != nil {
			owner, _ = c.td.FindEntity(t.Owner.Name)
		}
		v.TrackersBlocked = append(v.TrackersBlocked, owner)
	}

	msg, err := c.dialogs.NextBrowsingMessage(v)
	if err != nil {
		return fmt.Errorf("failed to read onboarding state: %w", err)
	}
	c.print(msg)
	return nil
}

// Dismiss turns the dialogs off.
func (c *OnboardingCommand) Dismiss() error {
	if err := c.dialogs.Dismiss(); err != nil {
		return fmt.Errorf("failed to dismiss onboarding: %w", err)
	}
	fmt.Fprintln(c.out, "Onboarding dismissed.")
	return nil
}

func (c *OnboardingCommand) print(msg *onboarding.Message) {
	if msg == nil {
		fmt.Fprintln(c.out, "Nothing to show.")
		return
	}
	fmt.Fprintln(c.out, msg.Text)
	if msg.CTA != "" {
		fmt.Fprintf(c.out, "[%s]\n", msg.CTA)
	}
}
