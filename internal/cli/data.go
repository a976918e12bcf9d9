package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sakif/book-club/internal/catalog"
	"github.com/sakif/book-club/internal/repository"
	"github.com/sakif/book-club/internal/server"
)

var collectionKeys = []string{repository.KeyClubs, repository.KeyBooks, repository.KeyUsers}

func checkKey(key string) error {
	if !slices.Contains(collectionKeys, key) {
		return fmt.Errorf("unknown collection %q (want one of %v)", key, collectionKeys)
	}
	return nil
}

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file]",
		Short: "Merge books into the catalog",
		Long: `Merges books into the catalog, replacing books with the same ID.

With a file argument, the books come from that YAML file (a top-level
"books" list). Without one, the built-in starter books are restored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				n, err := server.SeedCatalog(cmd.Context(), a.catalog, args[0])
				if err != nil {
					return err
				}
				ok(cmd.OutOrStdout(), "seeded %d books from %s", n, args[0])
				return nil
			}

			books := catalog.DefaultBooks()
			if err := a.catalog.PutBooks(cmd.Context(), books); err != nil {
				return err
			}
			ok(cmd.OutOrStdout(), "restored %d built-in books", len(books))
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "export <key>",
		Short:     "Print a collection as indented JSON",
		Long:      "Prints bookClubs, bookCache or users. The users export includes password hashes.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: collectionKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := checkKey(key); err != nil {
				return err
			}

			var (
				items any
				err   error
			)
			switch key {
			case repository.KeyClubs:
				items, err = a.cols.Clubs.Snapshot(cmd.Context())
			case repository.KeyBooks:
				items, err = a.cols.Books.Snapshot(cmd.Context())
			case repository.KeyUsers:
				items, err = a.cols.Users.Snapshot(cmd.Context())
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <key> <file>",
		Short: "Replace a collection with the JSON array in file",
		Long: `Replaces a whole collection. The file must hold a JSON array in the
same shape export prints; nothing is written if it does not parse.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, path := args[0], args[1]
			if err := checkKey(key); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			var n int
			switch key {
			case repository.KeyClubs:
				n, err = replace(cmd, a.cols.Clubs, data)
			case repository.KeyBooks:
				n, err = replace(cmd, a.cols.Books, data)
			case repository.KeyUsers:
				n, err = replace(cmd, a.cols.Users, data)
			}
			if err != nil {
				return fmt.Errorf("importing %s: %w", key, err)
			}
			ok(cmd.OutOrStdout(), "imported %d records into %s", n, key)
			return nil
		},
	}
}

func replace[T repository.Cloner[T]](cmd *cobra.Command, c *repository.Collection[T], data []byte) (int, error) {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return 0, fmt.Errorf("parsing JSON array: %w", err)
	}
	if err := c.Replace(cmd.Context(), items); err != nil {
		return 0, err
	}
	return len(items), nil
}
