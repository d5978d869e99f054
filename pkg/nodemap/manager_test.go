package nodemap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stratushpc/stratus/pkg/lockfile"
	"github.com/stratushpc/stratus/pkg/resolv"
	"github.com/stratushpc/stratus/pkg/stores"
)

type testEnv struct {
	manager  *Manager
	store    *stores.SQLiteStore
	hosts    string
	netgroup string
	clock    *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setupManager(t *testing.T) *testEnv {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	dir := t.TempDir()
	basePath := filepath.Join(dir, "hosts.base")
	if err := os.WriteFile(basePath, []byte("127.0.0.1 localhost\n"), 0o644); err != nil {
		t.Fatalf("failed to write hosts base: %v", err)
	}

	env := &testEnv{
		store:    store,
		hosts:    filepath.Join(dir, "hosts"),
		netgroup: filepath.Join(dir, "netgroup"),
		clock:    &fakeClock{now: time.Unix(1_700_000_000, 0)},
	}

	generator := resolv.NewGenerator(resolv.Config{
		HostsPath:    env.hosts,
		NetgroupPath: env.netgroup,
		BasePath:     basePath,
		Netgroup:     "stratus",
	}, zerolog.Nop())

	env.manager = NewManager(Options{
		Store:  store,
		Lock:   lockfile.New(filepath.Join(dir, "nodemap.lock")),
		Resolv: generator,
		Logger: zerolog.Nop(),
		Now:    env.clock.Now,
	})

	return env
}

// checkLiveness asserts the on/off fields of every persisted row flip
// together.
func checkLiveness(t *testing.T, env *testEnv) {
	t.Helper()

	nodes, err := env.store.ListNodes(context.Background())
	if err != nil {
		t.Fatalf("failed to list nodes: %v", err)
	}
	for _, node := range nodes {
		onByInstance := node.Instance != ""
		onByIP := node.IP != ""
		onByStart := node.Start != 0
		if onByInstance != onByIP || onByInstance != onByStart {
			t.Errorf("node %s has partial liveness state: instance=%q ip=%q start=%d",
				node.Host, node.Instance, node.IP, node.Start)
		}
	}
}

func mustRebuild(t *testing.T, env *testEnv, desired ...string) *RebuildResult {
	t.Helper()

	result, err := env.manager.Rebuild(context.Background(), desired)
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	checkLiveness(t, env)
	return result
}

func TestPowerOnThenOffReturnsInstance(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()
	mustRebuild(t, env, "chem-aws-t1")

	node, err := env.manager.PowerOn(ctx, "chem-aws-t1", "i-123", "10.0.0.5")
	if err != nil {
		t.Fatalf("power on failed: %v", err)
	}
	if node.Instance != "i-123" || node.IP != "10.0.0.5" || node.Start == 0 {
		t.Errorf("unexpected node after power on: %+v", node)
	}
	checkLiveness(t, env)

	env.clock.Advance(time.Hour)
	freed, err := env.manager.PowerOff(ctx, PowerOffQuery{Host: "chem-aws-t1"})
	if err != nil {
		t.Fatalf("power off failed: %v", err)
	}
	if freed != "i-123" {
		t.Errorf("power off returned %q, want i-123", freed)
	}
	checkLiveness(t, env)

	entries, err := env.store.ListJournal(ctx, nil, 0, 10, 0)
	if err != nil {
		t.Fatalf("failed to list journal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("journal has %d entries, want 1", len(entries))
	}
	if entries[0].Instance != "i-123" || entries[0].End-entries[0].Start != 3600 {
		t.Errorf("unexpected journal entry: %+v", entries[0])
	}
}

func TestPowerOnUnknownHost(t *testing.T) {
	env := setupManager(t)

	_, err := env.manager.PowerOn(context.Background(), "ghost-aws-t1", "i-1", "10.0.0.1")
	if !IsUnknownHost(err) {
		t.Fatalf("expected unknown host error, got %v", err)
	}
}

func TestPowerOnRejectsEmptyInstance(t *testing.T) {
	env := setupManager(t)
	mustRebuild(t, env, "chem-aws-t1")

	if _, err := env.manager.PowerOn(context.Background(), "chem-aws-t1", "", "10.0.0.1"); err == nil {
		t.Fatal("expected error for empty instance")
	}
	if _, err := env.manager.PowerOn(context.Background(), "chem-aws-t1", "i-1", ""); err == nil {
		t.Fatal("expected error for empty ip")
	}
	checkLiveness(t, env)
}

func TestPowerOffGhostIsSoftFailure(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()
	mustRebuild(t, env, "chem-aws-t1")

	freed, err := env.manager.PowerOff(ctx, PowerOffQuery{Host: "ghost"})
	if err != nil {
		t.Fatalf("power off returned error: %v", err)
	}
	if freed != "" {
		t.Errorf("power off returned %q, want empty sentinel", freed)
	}

	// An off node is the same soft failure: there is no interval to close.
	freed, err = env.manager.PowerOff(ctx, PowerOffQuery{Host: "chem-aws-t1"})
	if err != nil || freed != "" {
		t.Errorf("power off on off node = (%q, %v), want empty sentinel", freed, err)
	}

	entries, err := env.store.ListJournal(ctx, nil, 0, 10, 0)
	if err != nil {
		t.Fatalf("failed to list journal: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("soft power off wrote %d journal entries", len(entries))
	}
}

func TestPowerOffByCloudInstance(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()
	mustRebuild(t, env, "chem-aws-t1", "chem-aws-t2")

	if _, err := env.manager.PowerOn(ctx, "chem-aws-t1", "i-1", "10.0.0.1"); err != nil {
		t.Fatalf("power on failed: %v", err)
	}
	if _, err := env.manager.PowerOn(ctx, "chem-aws-t2", "i-2", "10.0.0.2"); err != nil {
		t.Fatalf("power on failed: %v", err)
	}

	env.clock.Advance(time.Minute)
	freed, err := env.manager.PowerOff(ctx, PowerOffQuery{Cloud: "aws", Instance: "i-2"})
	if err != nil {
		t.Fatalf("power off failed: %v", err)
	}
	if freed != "i-2" {
		t.Errorf("power off freed %q, want i-2", freed)
	}

	node, err := env.store.GetNode(ctx, "chem-aws-t1")
	if err != nil {
		t.Fatalf("failed to load sibling: %v", err)
	}
	if !node.On() {
		t.Error("power off by instance touched the wrong host")
	}
}

func TestRebuildIdempotent(t *testing.T) {
	env := setupManager(t)
	desired := []string{"chem-aws-t1", "phys-gcp-n2"}

	first := mustRebuild(t, env, desired...)
	if len(first.Added) != 2 {
		t.Fatalf("first rebuild added %v, want 2 hosts", first.Added)
	}

	second := mustRebuild(t, env, desired...)
	if second.Changed() {
		t.Errorf("second rebuild changed the registry: %+v", second)
	}
}

func TestRebuildRefusesToDropLiveNode(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()
	mustRebuild(t, env, "chem-aws-t1", "chem-aws-t2")

	if _, err := env.manager.PowerOn(ctx, "chem-aws-t1", "i-1", "10.0.0.1"); err != nil {
		t.Fatalf("power on failed: %v", err)
	}

	_, err := env.manager.Rebuild(ctx, []string{"chem-aws-t2"})
	if !IsInconsistentRebuild(err) {
		t.Fatalf("expected inconsistent rebuild error, got %v", err)
	}
	if !strings.Contains(err.Error(), "chem-aws-t1") {
		t.Errorf("error does not name the offending host: %v", err)
	}

	// The registry is untouched, including the live row.
	node, err := env.store.GetNode(ctx, "chem-aws-t1")
	if err != nil {
		t.Fatalf("live node disappeared: %v", err)
	}
	if node.Instance != "i-1" {
		t.Errorf("live node mutated: %+v", node)
	}
}

func TestRebuildRemovesOffNodes(t *testing.T) {
	env := setupManager(t)
	mustRebuild(t, env, "chem-aws-t1", "chem-aws-t2")

	result := mustRebuild(t, env, "chem-aws-t1")
	if len(result.Removed) != 1 || result.Removed[0] != "chem-aws-t2" {
		t.Errorf("removed = %v, want [chem-aws-t2]", result.Removed)
	}

	nodes, err := env.store.ListNodes(context.Background())
	if err != nil {
		t.Fatalf("failed to list nodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Host != "chem-aws-t1" {
		t.Errorf("unexpected registry after removal: %+v", nodes)
	}
}

func TestRebuildCollectsGrammarErrors(t *testing.T) {
	env := setupManager(t)

	result := mustRebuild(t, env, "chem-aws-t1", "malformed", "phys-gcp-n2")
	if len(result.Invalid) != 1 {
		t.Fatalf("invalid = %v, want one grammar error", result.Invalid)
	}
	if !IsNamingGrammarError(result.Invalid[0]) {
		t.Errorf("invalid entry is not a grammar error: %v", result.Invalid[0])
	}
	if len(result.Added) != 2 {
		t.Errorf("grammar failure aborted sibling hosts: added=%v", result.Added)
	}
}

func TestRebuildSynthesizesRowsFromGrammar(t *testing.T) {
	env := setupManager(t)
	mustRebuild(t, env, "chem-aws-c5n-xlarge")

	node, err := env.store.GetNode(context.Background(), "chem-aws-c5n-xlarge")
	if err != nil {
		t.Fatalf("failed to load synthesized row: %v", err)
	}
	if node.Account != "chem" || node.Cloud != "aws" || node.Type != "c5n-xlarge" {
		t.Errorf("grammar fields wrong: %+v", node)
	}
	if node.On() {
		t.Error("synthesized row is not powered off")
	}
}

func TestArtifactsReflectRegistry(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()
	mustRebuild(t, env, "chem-aws-t1", "chem-aws-t2")

	if _, err := env.manager.PowerOn(ctx, "chem-aws-t1", "i-1", "10.0.0.1"); err != nil {
		t.Fatalf("power on failed: %v", err)
	}

	hosts, err := os.ReadFile(env.hosts)
	if err != nil {
		t.Fatalf("failed to read hosts artifact: %v", err)
	}
	if string(hosts) != "127.0.0.1 localhost\n10.0.0.1 chem-aws-t1\n" {
		t.Errorf("hosts artifact = %q", hosts)
	}
	if strings.Contains(string(hosts), "chem-aws-t2") {
		t.Error("hosts artifact references a powered-off node")
	}

	// Two serialized power-ons both land in the final artifact.
	if _, err := env.manager.PowerOn(ctx, "chem-aws-t2", "i-2", "10.0.0.2"); err != nil {
		t.Fatalf("power on failed: %v", err)
	}
	hosts, _ = os.ReadFile(env.hosts)
	for _, line := range []string{"10.0.0.1 chem-aws-t1", "10.0.0.2 chem-aws-t2"} {
		if !strings.Contains(string(hosts), line) {
			t.Errorf("hosts artifact missing %q: %q", line, hosts)
		}
	}

	netgroup, _ := os.ReadFile(env.netgroup)
	if string(netgroup) != "stratus    (10.0.0.1,,) (10.0.0.2,,)\n" {
		t.Errorf("netgroup artifact = %q", netgroup)
	}
}

func TestRunningSummary(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()
	mustRebuild(t, env, "chem-aws-t1", "chem-aws-t11", "chem-aws-t2", "phys-aws-t1")

	for host, spec := range map[string][2]string{
		"chem-aws-t1":  {"i-1", "10.0.0.1"},
		"chem-aws-t11": {"i-2", "10.0.0.2"},
		"phys-aws-t1":  {"i-3", "10.0.0.3"},
	} {
		if _, err := env.manager.PowerOn(ctx, host, spec[0], spec[1]); err != nil {
			t.Fatalf("power on %s failed: %v", host, err)
		}
	}

	counts, err := env.manager.RunningSummary(ctx, "chem")
	if err != nil {
		t.Fatalf("running summary failed: %v", err)
	}
	if counts["t1"] != 1 || counts["t11"] != 1 || counts["t2"] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestHistorySummaryMergesClosedAndOpenIntervals(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()
	since := env.clock.Now().Add(-24 * time.Hour)
	mustRebuild(t, env, "chem-aws-t1", "chem-aws-t11")

	// Closed interval: two hours on t1's type.
	if _, err := env.manager.PowerOn(ctx, "chem-aws-t1", "i-1", "10.0.0.1"); err != nil {
		t.Fatalf("power on failed: %v", err)
	}
	env.clock.Advance(2 * time.Hour)
	if _, err := env.manager.PowerOff(ctx, PowerOffQuery{Host: "chem-aws-t1"}); err != nil {
		t.Fatalf("power off failed: %v", err)
	}

	// Open interval: one hour accrued on the same type.
	if _, err := env.manager.PowerOn(ctx, "chem-aws-t1", "i-2", "10.0.0.1"); err != nil {
		t.Fatalf("power on failed: %v", err)
	}
	env.clock.Advance(time.Hour)

	hours, err := env.manager.HistorySummary(ctx, "chem", since)
	if err != nil {
		t.Fatalf("history summary failed: %v", err)
	}
	if got := hours["t1"]; got < 2.999 || got > 3.001 {
		t.Errorf("hours[t1] = %v, want 3.0", got)
	}
}

func TestHistorySummaryExcludesOldIntervals(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()
	mustRebuild(t, env, "chem-aws-t1")

	if _, err := env.manager.PowerOn(ctx, "chem-aws-t1", "i-1", "10.0.0.1"); err != nil {
		t.Fatalf("power on failed: %v", err)
	}
	env.clock.Advance(2 * time.Hour)
	if _, err := env.manager.PowerOff(ctx, PowerOffQuery{Host: "chem-aws-t1"}); err != nil {
		t.Fatalf("power off failed: %v", err)
	}

	// A cutoff after the interval closed excludes it.
	since := env.clock.Now().Add(time.Hour)
	hours, err := env.manager.HistorySummary(ctx, "chem", since)
	if err != nil {
		t.Fatalf("history summary failed: %v", err)
	}
	if len(hours) != 0 {
		t.Errorf("expected no hours past the cutoff, got %v", hours)
	}
}

func TestPowerOnIsIdempotentOverwrite(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()
	mustRebuild(t, env, "chem-aws-t1")

	if _, err := env.manager.PowerOn(ctx, "chem-aws-t1", "i-1", "10.0.0.1"); err != nil {
		t.Fatalf("power on failed: %v", err)
	}
	env.clock.Advance(time.Minute)
	node, err := env.manager.PowerOn(ctx, "chem-aws-t1", "i-1b", "10.0.0.9")
	if err != nil {
		t.Fatalf("second power on failed: %v", err)
	}
	if node.Instance != "i-1b" || node.IP != "10.0.0.9" {
		t.Errorf("overwrite did not land: %+v", node)
	}
	checkLiveness(t, env)
}
