package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stratushpc/stratus/pkg/policy"
)

func newRebuildCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Reconcile the registry with the fleet file",
		Long: `Expand the fleet file into the desired host set and reconcile the
registry against it: hosts missing from the registry are added as
powered-off rows, registry hosts absent from the fleet are removed.

A host that still holds a running instance is never removed; such a
rebuild is rejected before anything changes. Power it off first.`,
		Example: `  # Show what a rebuild would change
  stratus rebuild --dry-run

  # Apply the fleet file
  stratus rebuild`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			desired, err := app.fleet.LoadHosts(app.cfg.Fleet)
			if err != nil {
				return fmt.Errorf("failed to load fleet file: %w", err)
			}

			if err := admitRebuild(ctx, app, desired); err != nil {
				return err
			}

			if dryRun {
				return printRebuildPlan(ctx, app, desired)
			}

			result, err := app.manager.Rebuild(ctx, desired)
			if err != nil {
				return err
			}

			log.Info().
				Int("added", len(result.Added)).
				Int("removed", len(result.Removed)).
				Int("invalid", len(result.Invalid)).
				Msg("Rebuild complete")
			for _, invalid := range result.Invalid {
				log.Warn().Err(invalid).Msg("Fleet host rejected")
			}

			if jsonOutput {
				return printJSON(result)
			}
			for _, host := range result.Added {
				fmt.Printf("added    %s\n", host)
			}
			for _, host := range result.Removed {
				fmt.Printf("removed  %s\n", host)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the plan without applying it")

	return cmd
}

// admitRebuild runs admission policy for the rebuild itself and for every
// host the rebuild would remove.
func admitRebuild(ctx context.Context, app *app, desired []string) error {
	err := app.policy.Admit(ctx, &policy.Input{
		Operation:    "rebuild",
		DesiredSize:  len(desired),
		MaxFleetSize: app.cfg.Policy.MaxFleetSize,
	})
	if err != nil {
		return err
	}

	_, removed, err := rebuildDiff(ctx, app, desired)
	if err != nil {
		return err
	}
	logger := app.tel.Logger.Zerolog()
	for _, host := range removed {
		if err := app.admitHostOp(ctx, "remove", host, logger); err != nil {
			return err
		}
	}
	return nil
}

// rebuildDiff computes the sorted host additions and removals a rebuild
// would perform.
func rebuildDiff(ctx context.Context, app *app, desired []string) (added, removed []string, err error) {
	nodes, err := app.store.ListNodes(ctx)
	if err != nil {
		return nil, nil, err
	}

	current := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		current[node.Host] = true
	}
	want := make(map[string]bool, len(desired))
	for _, host := range desired {
		want[host] = true
		if !current[host] {
			added = append(added, host)
		}
	}
	for host := range current {
		if !want[host] {
			removed = append(removed, host)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed, nil
}

// printRebuildPlan writes the would-be diff without touching anything.
func printRebuildPlan(ctx context.Context, app *app, desired []string) error {
	added, removed, err := rebuildDiff(ctx, app, desired)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string][]string{"added": added, "removed": removed})
	}
	if len(added) == 0 && len(removed) == 0 {
		fmt.Println("registry matches the fleet file")
		return nil
	}
	for _, host := range added {
		fmt.Printf("would add     %s\n", host)
	}
	for _, host := range removed {
		fmt.Printf("would remove  %s\n", host)
	}
	return nil
}
