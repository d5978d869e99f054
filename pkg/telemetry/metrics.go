package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stratushpc/stratus/pkg/stores"
)

// Metrics writes a node-exporter textfile snapshot of the registry after
// every mutation. Counters are deliberately absent: each stratus invocation
// is a fresh process, so only point-in-time gauges are meaningful.
type Metrics struct {
	config MetricsConfig
}

// NewMetrics creates a metrics snapshot writer with the given
// configuration. A disabled configuration yields a no-op writer.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if cfg.Enabled && cfg.TextfilePath == "" {
		return nil, fmt.Errorf("metrics textfile path is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "stratus"
	}
	return &Metrics{config: cfg}, nil
}

// Enabled reports whether snapshots are written.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled
}

// WriteNodeSnapshot rebuilds the gauge set from the registry snapshot and
// writes it to the textfile via write-to-temp-then-rename. A fresh registry
// per write means removed hosts never leave stale series behind.
func (m *Metrics) WriteNodeSnapshot(nodes []*stores.Node) error {
	if !m.config.Enabled {
		return nil
	}

	registry := prometheus.NewRegistry()
	namespace := m.config.Namespace

	nodeOn := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_on",
			Help:      "Whether the host is currently backed by a cloud instance (1=on, 0=off)",
		},
		[]string{"host", "account", "cloud", "type"},
	)
	nodesOnTotal := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_on_total",
			Help:      "Number of powered-on nodes per account and type",
		},
		[]string{"account", "type"},
	)
	registryHosts := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_hosts",
			Help:      "Number of hosts in the node registry",
		},
	)
	lastMutation := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_mutation_timestamp_seconds",
			Help:      "Unix time the registry snapshot was last written",
		},
	)

	registry.MustRegister(nodeOn, nodesOnTotal, registryHosts, lastMutation)

	for _, node := range nodes {
		value := 0.0
		if node.On() {
			value = 1.0
			nodesOnTotal.WithLabelValues(node.Account, node.Type).Inc()
		}
		nodeOn.WithLabelValues(node.Host, node.Account, node.Cloud, node.Type).Set(value)
	}
	registryHosts.Set(float64(len(nodes)))
	lastMutation.SetToCurrentTime()

	if err := prometheus.WriteToTextfile(m.config.TextfilePath, registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
