package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newFleetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleet",
		Short: "Work with the fleet file",
	}

	cmd.AddCommand(newFleetValidateCommand())
	cmd.AddCommand(newFleetWatchCommand())

	return cmd
}

func newFleetValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the fleet file and show its expansion",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			hosts, err := app.fleet.LoadHosts(app.cfg.Fleet)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(hosts)
			}
			fmt.Printf("%s: %d hosts\n", app.cfg.Fleet, len(hosts))
			for _, host := range hosts {
				fmt.Println(host)
			}
			return nil
		},
	}

	return cmd
}

func newFleetWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the fleet file and rebuild on change",
		Long: `Watch the fleet file and reconcile the registry whenever it changes.
Runs until interrupted. A fleet file that fails to load keeps the
previous host set in effect; a rebuild rejected by policy or holding a
live node is logged and skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			return app.fleet.Watch(ctx, app.cfg.Fleet, func(desired []string) error {
				if err := admitRebuild(ctx, app, desired); err != nil {
					return err
				}
				result, err := app.manager.Rebuild(ctx, desired)
				if err != nil {
					return err
				}
				log.Info().
					Int("added", len(result.Added)).
					Int("removed", len(result.Removed)).
					Msg("Fleet change reconciled")
				return nil
			})
		},
	}

	return cmd
}
