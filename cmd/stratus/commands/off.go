package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stratushpc/stratus/pkg/drivers"
	"github.com/stratushpc/stratus/pkg/nodemap"
	"github.com/stratushpc/stratus/pkg/notify"
	"github.com/stratushpc/stratus/pkg/stores"
)

func newOffCommand() *cobra.Command {
	var (
		cloud      string
		instanceID string
		terminate  bool
	)

	cmd := &cobra.Command{
		Use:   "off [host]",
		Short: "Power off a host",
		Long: `Close a host's usage interval, journal it, clear its instance binding,
and terminate the instance.

The node can be named by host, or located by its (cloud, instance) pair
as reported by the vendor, which covers instances the cloud reclaimed.
Powering off a host that has no running instance is not an error: the
command logs it and exits cleanly.`,
		Example: `  # Power off by host name
  stratus off chem-aws-t11

  # Power off whichever host holds a reclaimed instance
  stratus off --cloud aws --instance i-0abc123

  # Release the registry row but keep the instance running
  stratus off chem-aws-t11 --terminate=false`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var host string
			if len(args) == 1 {
				host = args[0]
			}
			if host == "" && (cloud == "" || instanceID == "") {
				return fmt.Errorf("name a host, or give both --cloud and --instance")
			}
			if host != "" && (cloud != "" || instanceID != "") {
				return fmt.Errorf("host and --cloud/--instance are mutually exclusive")
			}

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)
			logger := app.tel.Logger.Zerolog()

			// Resolve the (cloud, instance) form to a host for admission
			admitHost := host
			if admitHost == "" {
				node, err := app.store.FindNodeByInstance(ctx, cloud, instanceID)
				if err != nil {
					if errors.Is(err, stores.ErrNodeNotFound) {
						log.Warn().
							Str("cloud", cloud).
							Str("instance", instanceID).
							Msg("No host holds this instance; nothing to do")
						return nil
					}
					return err
				}
				admitHost = node.Host
			}

			if err := app.admitHostOp(ctx, "power_off", admitHost, logger); err != nil {
				return err
			}

			freed, err := app.manager.PowerOff(ctx, nodemap.PowerOffQuery{
				Host:     host,
				Cloud:    cloud,
				Instance: instanceID,
			})
			if err != nil {
				return err
			}
			if freed == "" {
				log.Warn().Str("host", admitHost).Msg("Host already powered off; nothing to do")
				return nil
			}

			log.Info().
				Str("host", admitHost).
				Str("instance", freed).
				Msg("Host powered off")

			if terminate {
				if err := terminateInstance(cmd, app, admitHost, freed); err != nil {
					// The registry is already consistent; the instance
					// must be cleaned up by hand.
					log.Error().Err(err).
						Str("instance", freed).
						Msg("Instance termination failed; terminate it manually")
				}
			}

			notifyEvent(ctx, app, &notify.Event{
				Operation: "power_off",
				Host:      admitHost,
				Instance:  freed,
			})

			return nil
		},
	}

	cmd.Flags().StringVar(&cloud, "cloud", "", "cloud vendor tag of the instance to release")
	cmd.Flags().StringVar(&instanceID, "instance", "", "vendor instance ID to release")
	cmd.Flags().BoolVar(&terminate, "terminate", true, "terminate the freed instance")

	return cmd
}

// terminateInstance shuts down the freed instance through the host's
// account driver.
func terminateInstance(cmd *cobra.Command, app *app, host, instanceID string) error {
	ctx := cmd.Context()

	parts, err := nodemap.ParseHost(host)
	if err != nil {
		return err
	}
	account, err := app.accountFor(parts)
	if err != nil {
		return err
	}

	driver, err := drivers.Open(ctx, parts.Cloud, account, app.tel.Logger.Zerolog())
	if err != nil {
		return err
	}
	return driver.Terminate(ctx, instanceID)
}
