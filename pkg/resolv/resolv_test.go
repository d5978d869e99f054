package resolv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stratushpc/stratus/pkg/stores"
)

func setupGenerator(t *testing.T, base string) (*Generator, string, string) {
	t.Helper()

	dir := t.TempDir()
	basePath := filepath.Join(dir, "hosts.base")
	if err := os.WriteFile(basePath, []byte(base), 0o644); err != nil {
		t.Fatalf("failed to write hosts base: %v", err)
	}

	hostsPath := filepath.Join(dir, "hosts")
	netgroupPath := filepath.Join(dir, "netgroup")
	g := NewGenerator(Config{
		HostsPath:    hostsPath,
		NetgroupPath: netgroupPath,
		BasePath:     basePath,
		Netgroup:     "stratus",
	}, zerolog.Nop())

	return g, hostsPath, netgroupPath
}

func TestGenerateListsOnlyOnNodes(t *testing.T) {
	g, hostsPath, netgroupPath := setupGenerator(t, "127.0.0.1 localhost\n")

	nodes := []*stores.Node{
		{Host: "a", IP: "10.0.0.1", Instance: "i-1", Start: 100},
		{Host: "b"},
	}
	if err := g.Generate(nodes); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	hosts, err := os.ReadFile(hostsPath)
	if err != nil {
		t.Fatalf("failed to read hosts artifact: %v", err)
	}
	want := "127.0.0.1 localhost\n10.0.0.1 a\n"
	if string(hosts) != want {
		t.Errorf("hosts artifact = %q, want %q", hosts, want)
	}
	if strings.Contains(string(hosts), "b") {
		t.Error("hosts artifact references a powered-off node")
	}

	netgroup, err := os.ReadFile(netgroupPath)
	if err != nil {
		t.Fatalf("failed to read netgroup artifact: %v", err)
	}
	if string(netgroup) != "stratus    (10.0.0.1,,)\n" {
		t.Errorf("netgroup artifact = %q", netgroup)
	}
}

func TestGenerateSubstitutesSentinelIP(t *testing.T) {
	g, hostsPath, netgroupPath := setupGenerator(t, "")

	// An on node with empty ip cannot come out of the store, but the
	// generator must still emit a well-formed line for it.
	nodes := []*stores.Node{
		{Host: "a", Instance: "i-1", Start: 100},
	}
	if err := g.Generate(nodes); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	hosts, _ := os.ReadFile(hostsPath)
	if string(hosts) != SentinelIP+" a\n" {
		t.Errorf("hosts artifact = %q, want sentinel line", hosts)
	}

	// The netgroup tuple list skips nodes without a known ip.
	netgroup, _ := os.ReadFile(netgroupPath)
	if string(netgroup) != "stratus    \n" {
		t.Errorf("netgroup artifact = %q", netgroup)
	}
}

func TestGenerateBaseWithoutTrailingNewline(t *testing.T) {
	g, hostsPath, _ := setupGenerator(t, "127.0.0.1 localhost")

	nodes := []*stores.Node{
		{Host: "a", IP: "10.0.0.1", Instance: "i-1", Start: 100},
	}
	if err := g.Generate(nodes); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	hosts, _ := os.ReadFile(hostsPath)
	if string(hosts) != "127.0.0.1 localhost\n10.0.0.1 a\n" {
		t.Errorf("hosts artifact = %q", hosts)
	}
}

func TestGenerateOverwritesPreviousArtifacts(t *testing.T) {
	g, hostsPath, netgroupPath := setupGenerator(t, "")

	on := []*stores.Node{
		{Host: "a", IP: "10.0.0.1", Instance: "i-1", Start: 100},
	}
	if err := g.Generate(on); err != nil {
		t.Fatalf("first generate failed: %v", err)
	}
	if err := g.Generate([]*stores.Node{{Host: "a"}}); err != nil {
		t.Fatalf("second generate failed: %v", err)
	}

	hosts, _ := os.ReadFile(hostsPath)
	if string(hosts) != "" {
		t.Errorf("hosts artifact should be empty after power off, got %q", hosts)
	}
	netgroup, _ := os.ReadFile(netgroupPath)
	if string(netgroup) != "stratus    \n" {
		t.Errorf("netgroup artifact = %q", netgroup)
	}
}

func TestGenerateFailsOnMissingBase(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(Config{
		HostsPath:    filepath.Join(dir, "hosts"),
		NetgroupPath: filepath.Join(dir, "netgroup"),
		BasePath:     filepath.Join(dir, "hosts.base"),
	}, zerolog.Nop())

	if err := g.Generate(nil); err == nil {
		t.Fatal("expected error when hosts base is missing")
	}
}
