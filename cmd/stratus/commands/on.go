package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stratushpc/stratus/pkg/drivers"
	"github.com/stratushpc/stratus/pkg/nodemap"
	"github.com/stratushpc/stratus/pkg/notify"
)

// ipWaitInterval is how often a pending instance is re-described while
// waiting for its private address.
const ipWaitInterval = 3 * time.Second

func newOnCommand() *cobra.Command {
	var (
		instanceID string
		ip         string
		waitSecs   int
		walltime   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "on <host>",
		Short: "Power on a host",
		Long: `Launch a cloud instance for a registered host and record it.

The host's account config selects the cloud account and image; the cloud
catalog maps the host's type tag to a vendor instance type. Once the
instance reports its private address, the registry is updated, the usage
interval opens, and the hosts/netgroup artifacts are regenerated.

An instance launched outside stratus can be adopted instead by passing
--instance and --ip, which skips the driver entirely.`,
		Example: `  # Launch and record an instance for chem-aws-t11
  stratus on chem-aws-t11

  # Adopt an externally launched instance
  stratus on chem-aws-t11 --instance i-0abc123 --ip 10.0.0.7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			host := args[0]

			if (instanceID == "") != (ip == "") {
				return fmt.Errorf("--instance and --ip must be given together")
			}

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)
			logger := app.tel.Logger.Zerolog()

			if err := app.admitHostOp(ctx, "power_on", host, logger); err != nil {
				return err
			}

			if instanceID == "" {
				instanceID, ip, err = launchInstance(ctx, app, host, time.Duration(waitSecs)*time.Second)
				if err != nil {
					return err
				}
			}

			node, err := app.manager.PowerOn(ctx, host, instanceID, ip)
			if err != nil {
				return err
			}

			entry := log.Info().
				Str("host", node.Host).
				Str("instance", node.Instance).
				Str("ip", node.IP)
			if walltime > 0 {
				entry = entry.Dur("walltime", walltime)
			}
			entry.Msg("Host powered on")

			event := &notify.Event{
				Operation: "power_on",
				Host:      node.Host,
				Instance:  node.Instance,
			}
			// The walltime is advisory: nothing in-process outlives the
			// command, so enforcement belongs to the operator's cron.
			if walltime > 0 {
				event.Detail = fmt.Sprintf("requested walltime %s", walltime)
			}
			notifyEvent(ctx, app, event)

			if jsonOutput {
				return printJSON(node)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "adopt this existing instance instead of launching")
	cmd.Flags().StringVar(&ip, "ip", "", "private address of the adopted instance")
	cmd.Flags().IntVar(&waitSecs, "wait", 120, "seconds to wait for the instance address")
	cmd.Flags().DurationVar(&walltime, "walltime", 0, "advisory runtime budget recorded with the event")

	return cmd
}

// launchInstance starts an instance for the host and waits for its
// private address.
func launchInstance(ctx context.Context, app *app, host string, wait time.Duration) (string, string, error) {
	parts, err := nodemap.ParseHost(host)
	if err != nil {
		return "", "", err
	}

	account, err := app.accountFor(parts)
	if err != nil {
		return "", "", err
	}

	nodeType, err := app.nodeTypeSpec(parts.Cloud, parts.Type)
	if err != nil {
		return "", "", err
	}

	logger := app.tel.Logger.Zerolog()
	driver, err := drivers.Open(ctx, parts.Cloud, account, logger)
	if err != nil {
		return "", "", err
	}

	instance, err := driver.Launch(ctx, &drivers.LaunchSpec{
		Host:           host,
		InstanceType:   nodeType.Instance,
		ImageID:        account.ImageID,
		KeyName:        account.KeyName,
		SecurityGroups: account.SecurityGroups,
	})
	if err != nil {
		return "", "", err
	}

	if instance.PrivateIP != "" {
		return instance.ID, instance.PrivateIP, nil
	}

	// Poll until the address shows up or the wait expires
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(ipWaitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-ticker.C:
			described, err := driver.Describe(ctx, instance.ID)
			if err != nil {
				return "", "", err
			}
			if described.PrivateIP != "" {
				return described.ID, described.PrivateIP, nil
			}
			if time.Now().After(deadline) {
				return "", "", fmt.Errorf("instance %s has no private address after %s", instance.ID, wait)
			}
		}
	}
}

// notifyEvent sends mail to the host's account owners, best-effort.
func notifyEvent(ctx context.Context, app *app, event *notify.Event) {
	if app.notifier == nil {
		return
	}

	parts, err := nodemap.ParseHost(event.Host)
	if err != nil {
		return
	}
	account, err := app.loader.LoadAccount(parts.Account)
	if err != nil || len(account.Email) == 0 {
		return
	}
	event.Recipients = account.Email

	if err := app.notifier.Send(ctx, event); err != nil {
		log.Warn().Err(err).Str("host", event.Host).Msg("Notification failed")
	}
}
