package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newSummaryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize usage per account",
	}

	cmd.AddCommand(newSummaryRunningCommand())
	cmd.AddCommand(newSummaryUsageCommand())

	return cmd
}

// summaryAccounts resolves the --account flag: one account, or all.
func summaryAccounts(app *app, account string) ([]string, error) {
	if account != "" {
		return []string{account}, nil
	}
	accounts, err := app.loader.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func newSummaryRunningCommand() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "running",
		Short: "Count powered-on nodes per account and type",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			accounts, err := summaryAccounts(app, account)
			if err != nil {
				return err
			}

			running := make(map[string]map[string]int, len(accounts))
			for _, acct := range accounts {
				counts, err := app.manager.RunningSummary(ctx, acct)
				if err != nil {
					return err
				}
				if len(counts) > 0 {
					running[acct] = counts
				}
			}

			if jsonOutput {
				return printJSON(running)
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Account", "Type", "Running"})

			for _, acct := range accounts {
				for _, nodeType := range sortedKeys(running[acct]) {
					table.Append([]string{acct, nodeType, fmt.Sprintf("%d", running[acct][nodeType])})
				}
			}
			table.Render()

			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "restrict to one account")

	return cmd
}

func newSummaryUsageCommand() *cobra.Command {
	var (
		account string
		days    int
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Sum usage hours per account and type",
		Long: `Sum usage hours per account and node type: closed journal intervals
plus the still-open interval of every powered-on node. The estimated
cost column multiplies hours by the catalog unit price and is
informational only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			since := time.Time{}
			if days > 0 {
				since = time.Now().AddDate(0, 0, -days)
			}

			accounts, err := summaryAccounts(app, account)
			if err != nil {
				return err
			}

			usage := make(map[string]map[string]float64, len(accounts))
			for _, acct := range accounts {
				hours, err := app.manager.HistorySummary(ctx, acct, since)
				if err != nil {
					return err
				}
				if len(hours) > 0 {
					usage[acct] = hours
				}
			}

			if jsonOutput {
				return printJSON(usage)
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Account", "Type", "Hours", "Est. Cost"})

			for _, acct := range accounts {
				for _, nodeType := range sortedFloatKeys(usage[acct]) {
					hours := usage[acct][nodeType]
					table.Append([]string{
						acct,
						nodeType,
						fmt.Sprintf("%.2f", hours),
						estimateCost(ctx, app, acct, nodeType, hours),
					})
				}
			}
			table.Render()

			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "restrict to one account")
	cmd.Flags().IntVar(&days, "days", 0, "restrict to the last N days")

	return cmd
}

// estimateCost looks the type's unit price up in the catalog; unknown
// types render as a dash.
func estimateCost(ctx context.Context, app *app, account, nodeType string, hours float64) string {
	acct, err := app.loader.LoadAccount(account)
	if err != nil {
		return "-"
	}
	spec, err := app.nodeTypeSpec(acct.Cloud, nodeType)
	if err != nil || spec.Price == 0 {
		return "-"
	}
	return fmt.Sprintf("$%.2f", hours*spec.Price)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFloatKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
