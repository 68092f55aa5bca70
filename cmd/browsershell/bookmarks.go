package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dastanaron/browsershell/internal/commands"
	"github.com/dastanaron/browsershell/internal/search"
	"github.com/dastanaron/browsershell/internal/service"
	"github.com/dastanaron/browsershell/internal/textzoom"
	"github.com/dastanaron/browsershell/internal/ui"
)

func (e *env) bookmarkService() *service.BookmarkService {
	return service.NewBookmarkService(e.repo, search.NewCachingSearch(e.repo, e.logger, e.metrics))
}

func (e *env) runUI() error {
	app := ui.NewApp(
		e.bookmarkService(),
		service.NewFolderService(e.repo),
		service.NewFavoritesService(e.repo),
		textzoom.NewCoordinator(e.repo.Settings(), e.cfg.TextZoom),
	)
	return app.Run()
}

func newUICommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Browse bookmarks in the terminal",
		Args:  cobra.NoArgs,
		RunE:  func(*cobra.Command, []string) error { return e.runUI() },
	}
}

func newImportCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import bookmarks from a Netscape bookmark HTML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return commands.NewImportCommand(e.repo, e.out, e.logger).Execute(args[0])
		},
	}
}

func newExportCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "Export bookmarks to a Netscape bookmark HTML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return commands.NewExportCommand(e.repo, e.out).Execute(args[0])
		},
	}
}

func newClearDoublesCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-doubles",
		Short: "Remove bookmarks that share a URL",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := commands.NewClearDoublesCommand(e.repo, e.out, e.logger).Execute()
			return err
		},
	}
}

func newSearchCommand(e *env) *cobra.Command {
	var (
		limit     int
		showScore bool
	)

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search bookmarks and favorites, best match first",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return commands.NewSearchCommand(e.bookmarkService(), e.out).Execute(args[0], limit, showScore)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results, 0 for all")
	cmd.Flags().BoolVar(&showScore, "score", false, "Show the match score")
	return cmd
}

func newFavoriteCommand(e *env) *cobra.Command {
	favorites := func() *commands.FavoriteCommand {
		return commands.NewFavoriteCommand(service.NewFavoritesService(e.repo), e.out)
	}

	cmd := &cobra.Command{
		Use:   "favorite",
		Short: "List and reorder favorites",
		Args:  cobra.NoArgs,
		RunE:  func(*cobra.Command, []string) error { return favorites().List() },
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "toggle ID",
			Short: "Add a bookmark to favorites or remove it",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return favorites().Toggle(id)
			},
		},
		&cobra.Command{
			Use:   "move ID POSITION",
			Short: "Move a favorite to a position, starting at 1",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				pos, err := parseID(args[1])
				if err != nil {
					return err
				}
				if pos < 1 {
					return fmt.Errorf("position must be at least 1, got %d", pos)
				}
				return favorites().Move(id, pos-1)
			},
		},
	)
	return cmd
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return id, nil
}
