package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stratushpc/stratus/pkg/config"
)

const skeletonCluster = `# Stratus cluster configuration.
cluster: stratus

paths:
  database: var/stratus.db
  lock: var/stratus.lock
  hosts_base: hosts.base
  hosts: var/hosts
  netgroup: var/netgroup

fleet: fleet.cue

policy:
  mode: enforcing
  dir: policies
`

const skeletonCloud = `# Node-type catalog per cloud vendor.
vendors:
  aws:
    region: us-east-1
    node_types:
      t1:
        instance: t3.micro
        cores: 2
        memory_gb: 1
        price: 0.0104
`

const skeletonFleet = `// Declarative fleet: pools of burstable host slots.
// A pool of count 1 yields <account>-<cloud>-<type>; larger pools
// number the hosts (type t1, count 2 expands to t11 and t12).
pools: [
	// {account: "chem", cloud: "aws", type: "t1", count: 2},
]
`

const skeletonHostsBase = `127.0.0.1 localhost
`

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Bootstrap the config tree and initialize the registry",
		Long: `Write a starter configuration tree (cluster.yaml, cloud.yaml, fleet.cue,
hosts.base, policies/, accounts/) into the config directory, create the
registry database, apply schema migrations, and write initial (empty)
hosts and netgroup artifacts.

Safe to re-run: existing config files are never overwritten, migrations
are idempotent, and regeneration rewrites the artifacts from the current
registry.`,
		Example: `  # Initialize with the default config directory
  stratus init

  # Initialize a staging config tree
  stratus --etc /srv/stratus/etc init`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			etc := config.ResolveEtcDir(etcDir)
			if err := writeSkeleton(etc); err != nil {
				return fmt.Errorf("failed to write config skeleton: %w", err)
			}

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			if err := app.manager.Regenerate(ctx); err != nil {
				return fmt.Errorf("failed to write initial artifacts: %w", err)
			}

			log.Info().
				Str("etc", etc).
				Str("database", app.cfg.Paths.Database).
				Str("hosts", app.cfg.Paths.Hosts).
				Str("netgroup", app.cfg.Paths.Netgroup).
				Msg("Registry initialized")

			return nil
		},
	}

	return cmd
}

// writeSkeleton lays out the config directory, creating only what is
// missing.
func writeSkeleton(etc string) error {
	for _, dir := range []string{etc, filepath.Join(etc, "var"), filepath.Join(etc, "policies"), filepath.Join(etc, "accounts")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	files := map[string]string{
		"cluster.yaml": skeletonCluster,
		"cloud.yaml":   skeletonCloud,
		"fleet.cue":    skeletonFleet,
		"hosts.base":   skeletonHostsBase,
	}
	for name, content := range files {
		created, err := writeFileIfMissing(filepath.Join(etc, name), content)
		if err != nil {
			return err
		}
		if created {
			log.Info().Str("file", filepath.Join(etc, name)).Msg("Wrote starter config")
		}
	}
	return nil
}

func writeFileIfMissing(path, content string) (bool, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer file.Close()

	if _, err := file.WriteString(content); err != nil {
		return true, err
	}
	return true, nil
}
