package stores

import (
	"context"
	"database/sql"
)

// Node represents one registry row: a cluster host and, while powered on,
// the cloud instance currently backing it. A powered-off node keeps its
// identity columns (host, type, cloud, account) and has empty instance,
// empty ip, and zero start; the schema enforces that the three liveness
// fields flip together.
type Node struct {
	Host     string `json:"host"`
	Type     string `json:"type"`
	Cloud    string `json:"cloud"`
	Account  string `json:"account"`
	Instance string `json:"instance"`
	IP       string `json:"ip"`
	Start    int64  `json:"start"` // unix seconds; 0 while powered off
}

// On reports whether the node is currently backed by a live instance.
func (n *Node) On() bool {
	return n.Instance != ""
}

// JournalEntry is one closed usage interval. Rows are written exactly once,
// when a node powers off, and are never updated or deleted.
type JournalEntry struct {
	ID       int64  `json:"id"`
	Host     string `json:"host"`
	Type     string `json:"type"`
	Cloud    string `json:"cloud"`
	Account  string `json:"account"`
	Instance string `json:"instance"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
}

// Hours returns the interval length in fractional hours.
func (e *JournalEntry) Hours() float64 {
	return float64(e.End-e.Start) / 3600.0
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Registry operations
	GetNode(ctx context.Context, host string) (*Node, error)
	FindNodeByInstance(ctx context.Context, cloud, instance string) (*Node, error)
	ListNodes(ctx context.Context) ([]*Node, error)
	ListNodesByAccount(ctx context.Context, account string) ([]*Node, error)
	UpsertNode(ctx context.Context, node *Node) error
	RemoveNode(ctx context.Context, host string) error

	// Compound mutations; each runs in a single transaction
	CloseNodeInterval(ctx context.Context, node *Node, end int64) error
	ApplyRebuild(ctx context.Context, removed []string, added []*Node) error

	// Journal reads
	ListJournal(ctx context.Context, account *string, since int64, limit, offset int) ([]*JournalEntry, error)

	// Summary aggregates
	RunningCountByType(ctx context.Context, account string) (map[string]int, error)
	JournalHoursByType(ctx context.Context, account string, since int64) (map[string]float64, error)
	OnNodeHoursByType(ctx context.Context, account string, now int64) (map[string]float64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
