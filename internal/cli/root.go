// Package cli implements bookclubctl, the admin tool that works directly on
// the configured storage: seeding the catalog, backing collections up and
// restoring them, creating accounts and listing clubs.
//
// It reads the same configuration as the server (bookclub.yml and
// BOOKCLUB_* variables) and goes through the same services, so an account
// created here obeys the same validation as one created over HTTP.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sakif/book-club/internal/auth"
	"github.com/sakif/book-club/internal/config"
	"github.com/sakif/book-club/internal/server"
	"github.com/sakif/book-club/internal/service"
)

// app holds what the subcommands share. The root command's
// PersistentPreRunE fills it in; execute tears it down.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	stores  *server.Stores
	cols    *service.Collections
	users   *service.AuthService
	clubs   *service.ClubService
	catalog *service.CatalogService

	verbose bool
	noColor bool
}

// Execute runs the command tree against os.Args and exits non-zero on error.
func Execute(version string) {
	root, a := newRootCmd(version)
	if err := execute(root, a); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

// execute runs root and closes the stores even when a command failed.
func execute(root *cobra.Command, a *app) error {
	err := root.Execute()
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	return err
}

func newRootCmd(version string) (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:           "bookclubctl",
		Short:         "Administer a book club server's storage",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log storage activity to stderr")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newSeedCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newUsersCmd(a),
		newClubsCmd(a),
	)
	return root, a
}

func (a *app) open(cmd *cobra.Command) error {
	if a.noColor || !isTerminal(cmd.OutOrStdout()) {
		color.NoColor = true
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	stores, err := server.OpenStores(cmd.Context(), cfg, nil, a.logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	a.stores = stores

	// The CLI never issues tokens, so it does not need auth.jwt_secret.
	a.cols = service.NewCollections(stores.Collections, a.logger)
	a.users = service.NewAuthService(a.cols, nil, auth.NewPasswordService(), a.logger)
	a.clubs = service.NewClubService(a.cols, a.logger)
	a.catalog = service.NewCatalogService(a.cols, nil, nil, a.logger)
	return nil
}

func (a *app) close() error {
	if a.stores == nil {
		return nil
	}
	err := a.stores.Close()
	a.stores = nil
	return err
}

// ok prints a green success line.
func ok(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func isTerminal(w io.Writer) bool {
	f, isFile := w.(*os.File)
	return isFile && term.IsTerminal(int(f.Fd()))
}
