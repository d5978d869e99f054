package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newJournalCommand() *cobra.Command {
	var (
		account string
		days    int
		limit   int
		offset  int
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List closed usage intervals",
		Long: `List the append-only usage journal: one row per closed interval, written
when a host powers off. The journal is the accounting record; rows are
never updated or deleted.`,
		Example: `  # The last 50 intervals
  stratus journal

  # One account's intervals over the last 30 days
  stratus journal --account chem --days 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			var since int64
			if days > 0 {
				since = time.Now().AddDate(0, 0, -days).Unix()
			}

			var accountFilter *string
			if account != "" {
				accountFilter = &account
			}

			entries, err := app.store.ListJournal(ctx, accountFilter, since, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(entries)
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Host", "Account", "Cloud", "Type", "Instance", "Start", "End", "Hours"})
			table.SetAutoWrapText(false)

			for _, entry := range entries {
				table.Append([]string{
					entry.Host,
					entry.Account,
					entry.Cloud,
					entry.Type,
					entry.Instance,
					time.Unix(entry.Start, 0).Format(time.RFC3339),
					time.Unix(entry.End, 0).Format(time.RFC3339),
					fmt.Sprintf("%.2f", entry.Hours()),
				})
			}
			table.Render()

			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "restrict to one account")
	cmd.Flags().IntVar(&days, "days", 0, "restrict to intervals ending in the last N days")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	return cmd
}
