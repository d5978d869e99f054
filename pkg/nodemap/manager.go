package nodemap

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratushpc/stratus/pkg/lockfile"
	"github.com/stratushpc/stratus/pkg/resolv"
	"github.com/stratushpc/stratus/pkg/stores"
)

// SnapshotWriter receives the registry snapshot after every mutation, for
// observability sinks such as the metrics textfile. Failures are logged,
// never propagated: the mutation has already landed.
type SnapshotWriter interface {
	WriteNodeSnapshot(nodes []*stores.Node) error
}

// ArtifactMirror pushes freshly regenerated resolution artifacts to peer
// machines. Failures are logged, never propagated: the local artifacts are
// authoritative and peers catch up on the next mutation.
type ArtifactMirror interface {
	Push(ctx context.Context) error
}

// Manager is the node registry and lifecycle reconciler. Every mutating
// method runs entirely within one cross-process lock scope: acquire, read,
// modify, persist, journal, regenerate resolution artifacts, release.
// Summary queries skip the lock and tolerate staleness.
type Manager struct {
	store    stores.Store
	lock     *lockfile.Manager
	resolv   *resolv.Generator
	logger   zerolog.Logger
	tracer   trace.Tracer
	snapshot SnapshotWriter
	mirror   ArtifactMirror
	now      func() time.Time
}

// Options configures a Manager. Store, Lock, and Resolv are required;
// Snapshot and Mirror are optional sinks; Now defaults to time.Now.
type Options struct {
	Store    stores.Store
	Lock     *lockfile.Manager
	Resolv   *resolv.Generator
	Logger   zerolog.Logger
	Snapshot SnapshotWriter
	Mirror   ArtifactMirror
	Now      func() time.Time
}

// NewManager creates a node-map manager.
func NewManager(opts Options) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:    opts.Store,
		lock:     opts.Lock,
		resolv:   opts.Resolv,
		logger:   opts.Logger.With().Str("component", "nodemap").Logger(),
		tracer:   otel.Tracer("stratus/nodemap"),
		snapshot: opts.Snapshot,
		mirror:   opts.Mirror,
		now:      now,
	}
}

// PowerOffQuery identifies the node to power off: either by host name, or
// by the (cloud, instance) pair reported by a vendor driver.
type PowerOffQuery struct {
	Host     string
	Cloud    string
	Instance string
}

// RebuildResult reports what a rebuild changed.
type RebuildResult struct {
	// Added lists the hosts inserted as powered-off rows.
	Added []string `json:"added"`

	// Removed lists the hosts deleted from the registry.
	Removed []string `json:"removed"`

	// Invalid collects the naming-grammar errors of desired hosts that
	// could not be inserted. Grammar failures are per-host and do not
	// abort the rest of the rebuild.
	Invalid []error `json:"-"`
}

// Changed reports whether the rebuild mutated the registry.
func (r *RebuildResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// PowerOn binds a host to a live cloud instance: sets instance, ip, and
// start=now, persists, and regenerates the resolution artifacts. The host
// must already have a registry row; overwriting a powered-on row is
// permitted (idempotent re-announcement by a driver callback).
func (m *Manager) PowerOn(ctx context.Context, host, instance, ip string) (*stores.Node, error) {
	ctx, span := m.tracer.Start(ctx, "nodemap.power_on", trace.WithAttributes(
		attribute.String("host", host),
		attribute.String("instance", instance),
	))
	defer span.End()

	// The store's liveness constraint would reject these anyway; failing
	// early keeps the message usable.
	if instance == "" || ip == "" {
		err := &Error{
			Kind:    KindPersistenceFailure,
			Message: "power on requires a non-empty instance and ip",
			Host:    host,
			Op:      "power_on",
		}
		span.RecordError(err)
		return nil, err
	}

	lease, err := m.lock.Acquire()
	if err != nil {
		span.RecordError(err)
		return nil, NewLockUnavailableError("failed to acquire node-map lock", err).WithOp("power_on")
	}
	defer lease.Release()

	node, err := m.store.GetNode(ctx, host)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, stores.ErrNodeNotFound) {
			return nil, NewUnknownHostError(host, err).WithOp("power_on")
		}
		return nil, NewPersistenceError("failed to load node", err).WithOp("power_on")
	}

	node.Instance = instance
	node.IP = ip
	node.Start = m.now().Unix()

	if err := m.store.UpsertNode(ctx, node); err != nil {
		span.RecordError(err)
		return nil, NewPersistenceError("failed to persist power on", err).WithOp("power_on")
	}

	if err := m.regenerate(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	m.logger.Info().
		Str("host", host).
		Str("instance", instance).
		Str("ip", ip).
		Msg("Node powered on")

	return node, nil
}

// PowerOff releases a host's instance assignment. The query names either a
// host, or a (cloud, instance) pair resolved by scanning powered-on nodes.
// No match, or a match that is already off, is the documented soft failure:
// an empty instance id and a nil error, with registry and journal
// untouched. On a live match the node flips off, one journal entry is
// appended with end=now, artifacts regenerate, and the freed instance id is
// returned for the caller to terminate. The core never calls a cloud API.
func (m *Manager) PowerOff(ctx context.Context, query PowerOffQuery) (string, error) {
	ctx, span := m.tracer.Start(ctx, "nodemap.power_off", trace.WithAttributes(
		attribute.String("host", query.Host),
		attribute.String("cloud", query.Cloud),
		attribute.String("instance", query.Instance),
	))
	defer span.End()

	lease, err := m.lock.Acquire()
	if err != nil {
		span.RecordError(err)
		return "", NewLockUnavailableError("failed to acquire node-map lock", err).WithOp("power_off")
	}
	defer lease.Release()

	node, err := m.resolvePowerOffTarget(ctx, query)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if node == nil || !node.On() {
		m.logger.Info().
			Str("host", query.Host).
			Str("cloud", query.Cloud).
			Str("instance", query.Instance).
			Msg("Power off matched no live node")
		return "", nil
	}

	freed := node.Instance
	if err := m.store.CloseNodeInterval(ctx, node, m.now().Unix()); err != nil {
		span.RecordError(err)
		return "", NewPersistenceError("failed to persist power off", err).WithOp("power_off")
	}

	if err := m.regenerate(ctx); err != nil {
		span.RecordError(err)
		return "", err
	}

	m.logger.Info().
		Str("host", node.Host).
		Str("instance", freed).
		Msg("Node powered off")

	return freed, nil
}

// resolvePowerOffTarget finds the node a power-off query refers to, or nil
// when nothing matches.
func (m *Manager) resolvePowerOffTarget(ctx context.Context, query PowerOffQuery) (*stores.Node, error) {
	if query.Host == "" && query.Cloud != "" && query.Instance != "" {
		node, err := m.store.FindNodeByInstance(ctx, query.Cloud, query.Instance)
		if err != nil {
			if errors.Is(err, stores.ErrNodeNotFound) {
				return nil, nil
			}
			return nil, NewPersistenceError("failed to resolve instance", err).WithOp("power_off")
		}
		return node, nil
	}

	if query.Host == "" {
		return nil, nil
	}

	node, err := m.store.GetNode(ctx, query.Host)
	if err != nil {
		if errors.Is(err, stores.ErrNodeNotFound) {
			return nil, nil
		}
		return nil, NewPersistenceError("failed to load node", err).WithOp("power_off")
	}
	return node, nil
}

// Rebuild brings the registry's host set into agreement with the desired
// set. A desired set that excludes a powered-on host aborts the whole
// rebuild with the registry unchanged; otherwise obsolete rows are deleted
// and missing hosts inserted as powered-off rows synthesized from the
// naming grammar, all in one transaction, with artifacts regenerated once
// at the end. Re-running with the same set is a no-op.
func (m *Manager) Rebuild(ctx context.Context, desired []string) (*RebuildResult, error) {
	ctx, span := m.tracer.Start(ctx, "nodemap.rebuild", trace.WithAttributes(
		attribute.Int("desired", len(desired)),
	))
	defer span.End()

	lease, err := m.lock.Acquire()
	if err != nil {
		span.RecordError(err)
		return nil, NewLockUnavailableError("failed to acquire node-map lock", err).WithOp("rebuild")
	}
	defer lease.Release()

	current, err := m.store.ListNodes(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, NewPersistenceError("failed to list nodes", err).WithOp("rebuild")
	}

	desiredSet := make(map[string]bool, len(desired))
	for _, host := range desired {
		desiredSet[host] = true
	}

	// Validate removals before touching anything: a live node must never
	// silently lose its bookkeeping.
	result := &RebuildResult{}
	currentSet := make(map[string]bool, len(current))
	for _, node := range current {
		currentSet[node.Host] = true
		if desiredSet[node.Host] {
			continue
		}
		if node.On() {
			err := NewInconsistentRebuildError(node.Host).WithOp("rebuild")
			span.RecordError(err)
			return nil, err
		}
		result.Removed = append(result.Removed, node.Host)
	}

	var added []*stores.Node
	for _, host := range desired {
		if currentSet[host] {
			continue
		}
		parts, err := ParseHost(host)
		if err != nil {
			result.Invalid = append(result.Invalid, err)
			continue
		}
		added = append(added, &stores.Node{
			Host:    host,
			Type:    parts.Type,
			Cloud:   parts.Cloud,
			Account: parts.Account,
		})
		result.Added = append(result.Added, host)
	}
	sort.Strings(result.Added)
	sort.Strings(result.Removed)

	if err := m.store.ApplyRebuild(ctx, result.Removed, added); err != nil {
		span.RecordError(err)
		return nil, NewPersistenceError("failed to apply rebuild", err).WithOp("rebuild")
	}

	if result.Changed() {
		if err := m.regenerate(ctx); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	m.logger.Info().
		Int("added", len(result.Added)).
		Int("removed", len(result.Removed)).
		Int("invalid", len(result.Invalid)).
		Msg("Registry rebuilt")

	for _, issue := range result.Invalid {
		m.logger.Error().Err(issue).Msg("Desired host rejected by naming grammar")
	}

	return result, nil
}

// Regenerate rewrites the resolution artifacts from the current snapshot
// under the lock, without mutating the registry. Operator command, also
// used after restoring a database backup.
func (m *Manager) Regenerate(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "nodemap.regenerate")
	defer span.End()

	lease, err := m.lock.Acquire()
	if err != nil {
		span.RecordError(err)
		return NewLockUnavailableError("failed to acquire node-map lock", err).WithOp("regenerate")
	}
	defer lease.Release()

	if err := m.regenerate(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// regenerate rewrites artifacts and feeds the optional sinks. Callers must
// hold the lock.
func (m *Manager) regenerate(ctx context.Context) error {
	nodes, err := m.store.ListNodes(ctx)
	if err != nil {
		return NewPersistenceError("failed to snapshot registry", err).WithOp("regenerate")
	}

	if err := m.resolv.Generate(nodes); err != nil {
		return NewPersistenceError("failed to write resolution artifacts", err).WithOp("regenerate")
	}

	if m.snapshot != nil {
		if err := m.snapshot.WriteNodeSnapshot(nodes); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to write metrics snapshot")
		}
	}
	if m.mirror != nil {
		if err := m.mirror.Push(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to mirror resolution artifacts")
		}
	}
	return nil
}

// RunningSummary counts the powered-on nodes of one account grouped by
// type. Lock-free: reporting tolerates a snapshot that is instants stale.
func (m *Manager) RunningSummary(ctx context.Context, account string) (map[string]int, error) {
	counts, err := m.store.RunningCountByType(ctx, account)
	if err != nil {
		return nil, NewPersistenceError("failed to summarize running nodes", err).WithOp("running_summary")
	}
	return counts, nil
}

// HistorySummary sums usage hours per type for one account: closed journal
// intervals ending after since, plus the open intervals of currently
// powered-on nodes measured to now. The two sources add when a type appears
// in both. Lock-free.
func (m *Manager) HistorySummary(ctx context.Context, account string, since time.Time) (map[string]float64, error) {
	hours, err := m.store.JournalHoursByType(ctx, account, since.Unix())
	if err != nil {
		return nil, NewPersistenceError("failed to summarize journal", err).WithOp("history_summary")
	}

	open, err := m.store.OnNodeHoursByType(ctx, account, m.now().Unix())
	if err != nil {
		return nil, NewPersistenceError("failed to summarize open intervals", err).WithOp("history_summary")
	}

	for nodeType, h := range open {
		hours[nodeType] += h
	}
	return hours, nil
}
