package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dastanaron/browsershell/internal/autofill"
	"github.com/dastanaron/browsershell/internal/commands"
	"github.com/dastanaron/browsershell/internal/contentblocker"
	"github.com/dastanaron/browsershell/internal/downloads"
	"github.com/dastanaron/browsershell/internal/onboarding"
	"github.com/dastanaron/browsershell/internal/pixel"
	"github.com/dastanaron/browsershell/internal/syncerrors"
	"github.com/dastanaron/browsershell/internal/textzoom"
	"github.com/dastanaron/browsershell/internal/trackerdata"
)

func newRulesCommand(e *env) *cobra.Command {
	rules := func() *commands.RulesCommand {
		manager := contentblocker.NewManager(filepath.Join(e.cfg.DataDir, "rules"), e.repo.Settings(), e.logger, e.metrics)
		return commands.NewRulesCommand(manager, e.cfg.Blocking, e.out, e.logger)
	}

	var output string
	compile := &cobra.Command{
		Use:   "compile",
		Short: "Compile the content blocking rules for the configured inputs",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if output == "" {
				return rules().Compile(nil)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("cannot create file: %w", err)
			}
			defer f.Close()
			return rules().Compile(f)
		},
	}
	compile.Flags().StringVarP(&output, "output", "o", "", "Write the compiled rules as JSON to this file")

	var resourceType string
	check := &cobra.Command{
		Use:   "check RESOURCE_URL PAGE_URL",
		Short: "Tell whether a request made by a page would be blocked",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return rules().Check(args[0], args[1], resourceType)
		},
	}
	check.Flags().StringVarP(&resourceType, "type", "t", "script", "Resource type of the request")

	cmd := &cobra.Command{Use: "rules", Short: "Content blocking rules"}
	cmd.AddCommand(compile, check)
	return cmd
}

func newPixelsCommand(e *env) *cobra.Command {
	pixels := func() *commands.PixelsCommand {
		queue := e.pixelQueue()
		persistent := pixel.NewPersistent(e.pixelFirer(), e.repo.Settings(), queue, e.logger, e.metrics)
		return commands.NewPixelsCommand(persistent, queue, e.out)
	}

	cmd := &cobra.Command{Use: "pixels", Short: "Usage pixels waiting for a retry"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "flush",
			Short: "Send the queued pixels",
			Args:  cobra.NoArgs,
			RunE:  func(c *cobra.Command, _ []string) error { return pixels().Flush(c.Context()) },
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the queued pixels",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return pixels().List() },
		},
	)
	return cmd
}

func newDownloadCommand(e *env) *cobra.Command {
	download := func() (*commands.DownloadCommand, error) {
		manager, err := downloads.NewManager(e.cfg.Downloads.Dir, e.client, e.repo.Settings(), e.logger, e.metrics)
		if err != nil {
			return nil, err
		}
		return commands.NewDownloadCommand(manager, e.out, e.logger), nil
	}

	var (
		filename string
		mimeType string
	)
	cmd := &cobra.Command{
		Use:   "download URL",
		Short: "Download a file into the downloads directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			d, err := download()
			if err != nil {
				return err
			}
			return d.Execute(c.Context(), args[0], filename, mimeType)
		},
	}
	cmd.Flags().StringVar(&filename, "name", "", "File name to save as")
	cmd.Flags().StringVar(&mimeType, "type", "", "MIME type of the file")

	cmd.AddCommand(&cobra.Command{
		Use:   "seen",
		Short: "Mark finished downloads as seen",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			d, err := download()
			if err != nil {
				return err
			}
			return d.MarkSeen()
		},
	})
	return cmd
}

func newZoomCommand(e *env) *cobra.Command {
	zoom := func() *commands.ZoomCommand {
		return commands.NewZoomCommand(textzoom.NewCoordinator(e.repo.Settings(), e.cfg.TextZoom), e.out)
	}

	var keep []string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Forget customized zoom levels",
		Args:  cobra.NoArgs,
		RunE:  func(*cobra.Command, []string) error { return zoom().Reset(keep) },
	}
	reset.Flags().StringSliceVar(&keep, "keep", nil, "Domains whose level is kept")

	cmd := &cobra.Command{Use: "zoom", Short: "Per-site text zoom"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [HOST]",
			Short: "Show the zoom level of a host, or all customized levels",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				host := ""
				if len(args) == 1 {
					host = args[0]
				}
				return zoom().Get(host)
			},
		},
		&cobra.Command{
			Use:   "set [HOST] LEVEL",
			Short: "Set the zoom level of a host, or the default level",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(_ *cobra.Command, args []string) error {
				if len(args) == 1 {
					return zoom().Set("", args[0])
				}
				return zoom().Set(args[0], args[1])
			},
		},
		reset,
	)
	return cmd
}

func newSyncCommand(e *env) *cobra.Command {
	sync := func() *commands.SyncCommand {
		firer := e.pixelFirer()
		handler := syncerrors.NewHandler(e.repo.Settings(), pixel.NewDaily(firer, e.repo.Settings()), firer, e.logger, e.metrics)
		return commands.NewSyncCommand(handler, e.out)
	}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync error state",
		Args:  cobra.NoArgs,
		RunE:  func(*cobra.Command, []string) error { return sync().Status() },
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "report MODEL STATUS",
			Short: "Record a failed sync of bookmarks or credentials",
			Args:  cobra.ExactArgs(2),
			RunE: func(c *cobra.Command, args []string) error {
				model, err := syncerrors.ParseModelType(args[0])
				if err != nil {
					return err
				}
				code, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid status code %q: %w", args[1], err)
				}
				return sync().Report(c.Context(), model, code)
			},
		},
		&cobra.Command{
			Use:   "ok MODEL",
			Short: "Record a successful sync of bookmarks or credentials",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				model, err := syncerrors.ParseModelType(args[0])
				if err != nil {
					return err
				}
				return sync().Succeeded(model)
			},
		},
		&cobra.Command{
			Use:   "off",
			Short: "Turn sync off and forget its errors",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return sync().TurnOff() },
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show which models are paused",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return sync().Status() },
		},
	)
	return cmd
}

func newOnboardingCommand(e *env) *cobra.Command {
	dialogs := func() *commands.OnboardingCommand {
		td := trackerdata.Embedded()
		return commands.NewOnboardingCommand(onboarding.NewDialogs(e.repo.Settings(), td, e.logger), td, e.out)
	}

	cmd := &cobra.Command{Use: "onboarding", Short: "Onboarding dialogs"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "home",
			Short: "Show the next home screen dialog",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return dialogs().Home() },
		},
		&cobra.Command{
			Use:   "visit PAGE_URL [BLOCKED_URL...]",
			Short: "Show the dialog for a page visit",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return dialogs().Visit(args[0], args[1:])
			},
		},
		&cobra.Command{
			Use:   "dismiss",
			Short: "Stop showing onboarding dialogs",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return dialogs().Dismiss() },
		},
	)
	return cmd
}

func newAutofillCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "autofill", Short: "Autofill vault maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Reset the vault migration when the shared vault is unusable",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			settings := e.repo.Settings()
			migrator := autofill.NewMigrator(autofill.NewStoreKeychain(settings), settings, autofill.DefaultPaths(e.cfg.DataDir), e.logger)
			return commands.NewAutofillCommand(migrator, e.out).Migrate()
		},
	})
	return cmd
}
