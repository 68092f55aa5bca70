package commands

import (
	"fmt"
	"io"

	"github.com/dastanaron/browsershell/internal/autofill"
)

// AutofillCommand repairs the autofill vault
type AutofillCommand struct {
	migrator *autofill.Migrator
	out      io.Writer
}

// NewAutofillCommand creates a new autofill command
func NewAutofillCommand(migrator *autofill.Migrator, out io.Writer) *AutofillCommand {
	return &AutofillCommand{migrator: migrator, out: out}
}

// Migrate runs the vault migration check.
func (c *AutofillCommand) Migrate() error {
	outcome, err := c.migrator.ResetVaultMigrationIfRequired()
	if err != nil {
		return fmt.Errorf("vault migration check failed: %w", err)
	}
	fmt.Fprintf(c.out, "Vault: %s\n", outcome)
	return nil
}
