// Package resolv derives the system name-resolution artifacts from a
// registry snapshot: a hosts table and a netgroup table listing the
// powered-on nodes. The node-map manager regenerates both inside the same
// lock scope as the mutation that changed the registry, so no reader ever
// observes artifacts describing a different registry state than what is
// persisted.
package resolv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stratushpc/stratus/pkg/stores"
)

// SentinelIP is substituted for a powered-on node that somehow has an empty
// ip, so the hosts table never contains a malformed line. The store's
// liveness constraint makes this unreachable in practice.
const SentinelIP = "1.2.3.4"

// Config locates the artifacts and the static prefix block.
type Config struct {
	// HostsPath is the hosts artifact destination (e.g. /etc/hosts).
	HostsPath string

	// NetgroupPath is the netgroup artifact destination (e.g. /etc/netgroup).
	NetgroupPath string

	// BasePath is the static prefix file prepended to the hosts artifact.
	BasePath string

	// Netgroup is the fixed group name in the netgroup artifact.
	Netgroup string
}

// Generator writes the two resolution artifacts.
type Generator struct {
	config Config
	logger zerolog.Logger
}

// NewGenerator creates a generator. An empty netgroup name defaults to
// "stratus".
func NewGenerator(cfg Config, logger zerolog.Logger) *Generator {
	if cfg.Netgroup == "" {
		cfg.Netgroup = "stratus"
	}
	return &Generator{
		config: cfg,
		logger: logger.With().Str("component", "resolv").Logger(),
	}
}

// Generate rewrites both artifacts from the snapshot. Only powered-on nodes
// appear. Each artifact is written to a temp file in its own directory and
// renamed into place, so a crash mid-write never leaves a partial file.
func (g *Generator) Generate(nodes []*stores.Node) error {
	if err := g.writeHosts(nodes); err != nil {
		return err
	}
	if err := g.writeNetgroup(nodes); err != nil {
		return err
	}

	g.logger.Debug().
		Int("nodes", len(nodes)).
		Str("hosts", g.config.HostsPath).
		Str("netgroup", g.config.NetgroupPath).
		Msg("Resolution artifacts regenerated")

	return nil
}

// writeHosts writes the static prefix block followed by one "<ip> <host>"
// line per powered-on node.
func (g *Generator) writeHosts(nodes []*stores.Node) error {
	base, err := os.ReadFile(g.config.BasePath)
	if err != nil {
		return fmt.Errorf("failed to read hosts base %s: %w", g.config.BasePath, err)
	}

	var b strings.Builder
	b.Write(base)
	if len(base) > 0 && base[len(base)-1] != '\n' {
		b.WriteByte('\n')
	}
	for _, node := range nodes {
		if !node.On() {
			continue
		}
		ip := node.IP
		if ip == "" {
			ip = SentinelIP
		}
		b.WriteString(ip + " " + node.Host + "\n")
	}

	return atomicWrite(g.config.HostsPath, []byte(b.String()))
}

// writeNetgroup writes the fixed group name followed by space-separated
// "(<ip>,,)" tuples for powered-on nodes with a known ip.
func (g *Generator) writeNetgroup(nodes []*stores.Node) error {
	tuples := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if !node.On() || node.IP == "" {
			continue
		}
		tuples = append(tuples, "("+node.IP+",,)")
	}

	line := g.config.Netgroup + "    " + strings.Join(tuples, " ") + "\n"
	return atomicWrite(g.config.NetgroupPath, []byte(line))
}

// atomicWrite lands content at path via a sibling temp file and rename.
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
