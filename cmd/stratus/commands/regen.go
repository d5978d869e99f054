package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRegenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regen",
		Short: "Regenerate the hosts and netgroup artifacts",
		Long: `Rewrite the hosts and netgroup files from the current registry, and
push them to any configured mirror peers.

Every mutating command regenerates the artifacts itself; regen exists to
repair them after manual edits or a failed mirror push.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			if err := app.manager.Regenerate(ctx); err != nil {
				return err
			}

			log.Info().
				Str("hosts", app.cfg.Paths.Hosts).
				Str("netgroup", app.cfg.Paths.Netgroup).
				Msg("Artifacts regenerated")
			return nil
		},
	}

	return cmd
}
