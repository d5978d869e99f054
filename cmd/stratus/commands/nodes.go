package commands

import (
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stratushpc/stratus/pkg/stores"
)

func newNodesCommand() *cobra.Command {
	var (
		account string
		onOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List the registry",
		Long:  `List registry rows: every burstable host and, for powered-on hosts, the instance and address behind it.`,
		Example: `  # All hosts
  stratus nodes

  # Only powered-on hosts of one account
  stratus nodes --account chem --on`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			var nodes []*stores.Node
			if account != "" {
				nodes, err = app.store.ListNodesByAccount(ctx, account)
			} else {
				nodes, err = app.store.ListNodes(ctx)
			}
			if err != nil {
				return err
			}

			if onOnly {
				filtered := nodes[:0]
				for _, node := range nodes {
					if node.On() {
						filtered = append(filtered, node)
					}
				}
				nodes = filtered
			}

			if jsonOutput {
				return printJSON(nodes)
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Host", "Account", "Cloud", "Type", "State", "Instance", "IP", "Since"})
			table.SetAutoWrapText(false)

			for _, node := range nodes {
				state, since := "off", ""
				if node.On() {
					state = "on"
					since = time.Unix(node.Start, 0).Format(time.RFC3339)
				}
				table.Append([]string{node.Host, node.Account, node.Cloud, node.Type, state, node.Instance, node.IP, since})
			}
			table.Render()

			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "restrict to one account")
	cmd.Flags().BoolVar(&onOnly, "on", false, "only powered-on hosts")

	return cmd
}
