package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/service"
)

func newClubsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clubs",
		Short: "Inspect clubs",
	}
	cmd.AddCommand(newClubsListCmd(a))
	return cmd
}

func newClubsListCmd(a *app) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every club, private ones included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clubs, err := a.cols.Clubs.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			q := strings.ToLower(strings.TrimSpace(query))
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tMEMBERS\tOWNERS\tBOOKS\tVISIBILITY")
			shown := 0
			for i := range clubs {
				c := &clubs[i]
				if q != "" && !strings.Contains(strings.ToLower(c.Name), q) {
					continue
				}
				shown++
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\n",
					c.ID, c.Name, len(c.Members), ownerCount(c), len(c.Books), visibility(c))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.New(color.Faint).Sprintf("%d of %d clubs", shown, len(clubs)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Only clubs whose name contains this text")
	return cmd
}

// ownerCount is highlighted when a club has left the allowed owner range,
// which only a hand-edited import can cause.
func ownerCount(c *model.Club) string {
	n := c.OwnerCount()
	s := fmt.Sprintf("%d", n)
	if n < 1 || n > service.MaxOwners {
		return color.RedString(s)
	}
	return s
}

func visibility(c *model.Club) string {
	switch {
	case !c.IsActive:
		return color.YellowString("inactive")
	case c.IsPrivate:
		return color.CyanString("private")
	}
	return "public"
}
