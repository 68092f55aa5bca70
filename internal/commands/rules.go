package commands

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/dastanaron/browsershell/internal/config"
	"github.com/dastanaron/browsershell/internal/contentblocker"
)

// RulesCommand compiles content blocking rules and checks requests against
// them
type RulesCommand struct {
	manager *contentblocker.Manager
	cfg     config.BlockingConfig
	out     io.Writer
	logger  *zap.Logger
}

// NewRulesCommand creates a new rules command
func NewRulesCommand(manager *contentblocker.Manager, cfg config.BlockingConfig, out io.Writer, logger *zap.Logger) *RulesCommand {
	return &RulesCommand{manager: manager, cfg: cfg, out: out, logger: logger.Named("rules")}
}

// Compile builds the rule list for the configured inputs, optionally writing
// it as JSON to w.
func (c *RulesCommand) Compile(w io.Writer) error {
	src, err := contentblocker.LoadSources(c.cfg)
	if err != nil {
		return fmt.Errorf("failed to load rule sources: %w", err)
	}

	res, err := c.manager.Compile(src)
	if err != nil {
		return fmt.Errorf("failed to compile rules: %w", err)
	}

	fmt.Fprintf(c.out, "Identifier: %s\n", res.Identifier)
	fmt.Fprintf(c.out, "Rules: %d (cached: %t)\n", len(res.Rules), res.FromCache)
	fmt.Fprintf(c.out, "Changed: %s\n", res.Changes)

	if w != nil {
		if err := contentblocker.WriteRules(w, res.Rules); err != nil {
			return fmt.Errorf("failed to write rules: %w", err)
		}
	}
	return nil
}

// Check reports how a request for resourceURL made by pageURL is treated.
func (c *RulesCommand) Check(resourceURL, pageURL, resourceType string) error {
	src, err := contentblocker.LoadSources(c.cfg)
	if err != nil {
		return fmt.Errorf("failed to load rule sources: %w", err)
	}

	filters, err := contentblocker.LoadFilterEngine(c.cfg.FilterLists)
	if err != nil {
		return fmt.Errorf("failed to load filter lists: %w", err)
	}
	defer func() { _ = filters.Close() }()

	resolver := contentblocker.NewResolver(src.TrackerData(), src.Unprotected, src.TempList, src.Allowlist).
		WithFilters(filters)

	detected := resolver.TrackerFromURL(resourceURL, pageURL, resourceType, true)
	if detected == nil {
		verdict, rule := filters.Match(resourceURL, pageURL, resourceType)
		if verdict == contentblocker.FilterBlock {
			fmt.Fprintf(c.out, "Blocked by filter rule %s\n", rule)
			return nil
		}
		fmt.Fprintln(c.out, "Not a tracker.")
		return nil
	}

	state := "allowed"
	if detected.Blocked {
		state = "blocked"
	}
	owner := detected.Entity.DisplayName
	if owner == "" {
		owner = detected.Tracker.OwnerName()
	}
	fmt.Fprintf(c.out, "Tracker %s (%s): %s\n", detected.Tracker.Domain, owner, state)
	return nil
}
