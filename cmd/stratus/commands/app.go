package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stratushpc/stratus/pkg/config"
	"github.com/stratushpc/stratus/pkg/fleet"
	"github.com/stratushpc/stratus/pkg/lockfile"
	"github.com/stratushpc/stratus/pkg/mirror"
	"github.com/stratushpc/stratus/pkg/nodemap"
	"github.com/stratushpc/stratus/pkg/notify"
	"github.com/stratushpc/stratus/pkg/policy"
	"github.com/stratushpc/stratus/pkg/resolv"
	"github.com/stratushpc/stratus/pkg/stores"
	"github.com/stratushpc/stratus/pkg/telemetry"
)

// app wires the packages behind every command: config, telemetry, the
// store, the node-map manager, admission policy, and notification.
type app struct {
	cfg      *config.ClusterConfig
	loader   *config.Loader
	tel      *telemetry.Telemetry
	store    stores.Store
	manager  *nodemap.Manager
	policy   *policy.Engine
	notifier *notify.Notifier
	fleet    *fleet.Loader
}

// newApp loads configuration and assembles the application. Callers must
// call close when done.
func newApp(ctx context.Context) (*app, error) {
	loader := config.NewLoader(config.ResolveEtcDir(etcDir))

	cfg, err := loader.LoadCluster()
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster config: %w", err)
	}

	tel, err := newTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger.Zerolog()

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Paths.Database})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	opts := nodemap.Options{
		Store:  store,
		Lock:   lockfile.New(cfg.Paths.Lock),
		Resolv: resolv.NewGenerator(resolv.Config{
			HostsPath:    cfg.Paths.Hosts,
			NetgroupPath: cfg.Paths.Netgroup,
			BasePath:     cfg.Paths.HostsBase,
			Netgroup:     cfg.Cluster,
		}, logger),
		Logger: logger,
	}
	if tel.Metrics != nil && cfg.Metrics.Textfile != "" {
		opts.Snapshot = tel.Metrics
	}
	if m := mirror.New(&cfg.Mirror, []string{cfg.Paths.Hosts, cfg.Paths.Netgroup}, logger); m != nil {
		opts.Mirror = m
	}

	mode := policy.Mode(cfg.Policy.Mode)
	engine, err := policy.NewEngine(logger, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}
	if cfg.Policy.Dir != "" {
		if err := engine.LoadPolicies(ctx, []string{cfg.Policy.Dir}); err != nil {
			return nil, fmt.Errorf("failed to load site policies: %w", err)
		}
	}

	return &app{
		cfg:      cfg,
		loader:   loader,
		tel:      tel,
		store:    store,
		manager:  nodemap.NewManager(opts),
		policy:   engine,
		notifier: notify.New(&cfg.Notify, cfg.Cluster, logger),
		fleet:    fleet.NewLoader(logger),
	}, nil
}

// close releases the store and flushes telemetry.
func (a *app) close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.tel.Logger.WithError(err).Warn("Failed to close store")
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.tel.Logger.WithError(err).Warn("Failed to shut down telemetry")
	}
}

// newTelemetry maps cluster config onto the telemetry stack.
func newTelemetry(cfg *config.ClusterConfig) (*telemetry.Telemetry, error) {
	telCfg := telemetry.DefaultConfig()
	if verbose {
		telCfg.Logging.Level = "debug"
	}

	telCfg.Metrics = telemetry.MetricsConfig{
		Enabled:      cfg.Metrics.Textfile != "",
		TextfilePath: cfg.Metrics.Textfile,
		Namespace:    "stratus",
	}

	if cfg.Tracing.Exporter != "" && cfg.Tracing.Exporter != "none" {
		telCfg.Tracing.Enabled = true
		telCfg.Tracing.Exporter = cfg.Tracing.Exporter
		telCfg.Tracing.Endpoint = cfg.Tracing.Endpoint
		telCfg.Tracing.Insecure = cfg.Tracing.Insecure
	}

	return telemetry.NewTelemetry(telCfg)
}

// accountFor loads the account configuration owning a host.
func (a *app) accountFor(parts nodemap.HostParts) (*config.AccountConfig, error) {
	account, err := a.loader.LoadAccount(parts.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", parts.Account, err)
	}
	if account.Cloud != parts.Cloud {
		return nil, fmt.Errorf("host cloud %q does not match account %s cloud %q", parts.Cloud, account.Name, account.Cloud)
	}
	return account, nil
}

// isProtected reports whether an account lists the host as protected.
func isProtected(account *config.AccountConfig, host string) bool {
	for _, p := range account.Protected {
		if p == host {
			return true
		}
	}
	return false
}

// admitHostOp runs admission policy for a power transition on one host.
func (a *app) admitHostOp(ctx context.Context, operation, host string, logger zerolog.Logger) error {
	parts, err := nodemap.ParseHost(host)
	if err != nil {
		return err
	}

	input := &policy.Input{
		Operation: operation,
		Host:      host,
		Account:   parts.Account,
		Cloud:     parts.Cloud,
		Type:      parts.Type,
	}
	if account, err := a.accountFor(parts); err == nil {
		input.Protected = isProtected(account, host)
	} else {
		logger.Warn().Err(err).Str("host", host).Msg("No account config; policy runs without protection data")
	}

	return a.policy.Admit(ctx, input)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// nodeTypeSpec resolves a host's type tag against the cloud catalog.
// Numbered hosts carry an index suffix on the type tag (t11 is the first
// t1 host), so an exact match is tried first and the trailing digits are
// stripped as a fallback.
func (a *app) nodeTypeSpec(cloud, typeTag string) (*config.NodeTypeConfig, error) {
	catalog, err := a.loader.LoadCloud()
	if err != nil {
		return nil, fmt.Errorf("failed to load cloud catalog: %w", err)
	}

	vendor, exists := catalog.Vendors[cloud]
	if !exists {
		return nil, fmt.Errorf("cloud %q not in catalog", cloud)
	}

	if nt, exists := vendor.NodeTypes[typeTag]; exists {
		return &nt, nil
	}
	base := strings.TrimRight(typeTag, "0123456789")
	if nt, exists := vendor.NodeTypes[base]; exists && base != "" {
		return &nt, nil
	}
	return nil, fmt.Errorf("node type %q not in %s catalog", typeTag, cloud)
}
