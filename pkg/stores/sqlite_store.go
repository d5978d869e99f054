package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNodeNotFound is returned when a lookup matches no registry row.
// Callers distinguish it from infrastructure failures with errors.Is.
var ErrNodeNotFound = errors.New("node not found")

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// GetNode retrieves a registry row by host.
func (s *SQLiteStore) GetNode(ctx context.Context, host string) (*Node, error) {
	query := `
		SELECT host, type, cloud, account, instance, ip, start
		FROM nodes
		WHERE host = ?
	`

	node := &Node{}
	err := s.db.QueryRowContext(ctx, query, host).Scan(
		&node.Host,
		&node.Type,
		&node.Cloud,
		&node.Account,
		&node.Instance,
		&node.IP,
		&node.Start,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, host)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	return node, nil
}

// FindNodeByInstance resolves a powered-on host from its cloud tag and
// instance id. Powered-off rows have an empty instance column and can
// never match.
func (s *SQLiteStore) FindNodeByInstance(ctx context.Context, cloud, instance string) (*Node, error) {
	query := `
		SELECT host, type, cloud, account, instance, ip, start
		FROM nodes
		WHERE cloud = ? AND instance = ? AND instance != ''
	`

	node := &Node{}
	err := s.db.QueryRowContext(ctx, query, cloud, instance).Scan(
		&node.Host,
		&node.Type,
		&node.Cloud,
		&node.Account,
		&node.Instance,
		&node.IP,
		&node.Start,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: cloud=%s instance=%s", ErrNodeNotFound, cloud, instance)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find node by instance: %w", err)
	}

	return node, nil
}

// ListNodes lists the full registry ordered by host.
func (s *SQLiteStore) ListNodes(ctx context.Context) ([]*Node, error) {
	query := `
		SELECT host, type, cloud, account, instance, ip, start
		FROM nodes
		ORDER BY host ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// ListNodesByAccount lists the registry rows belonging to one account.
func (s *SQLiteStore) ListNodesByAccount(ctx context.Context, account string) ([]*Node, error) {
	query := `
		SELECT host, type, cloud, account, instance, ip, start
		FROM nodes
		WHERE account = ?
		ORDER BY host ASC
	`

	rows, err := s.db.QueryContext(ctx, query, account)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes by account: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// scanNodes drains a node result set.
func scanNodes(rows *sql.Rows) ([]*Node, error) {
	nodes := []*Node{}
	for rows.Next() {
		node := &Node{}
		err := rows.Scan(
			&node.Host,
			&node.Type,
			&node.Cloud,
			&node.Account,
			&node.Instance,
			&node.IP,
			&node.Start,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

// UpsertNode inserts or updates a registry row.
func (s *SQLiteStore) UpsertNode(ctx context.Context, node *Node) error {
	query := `
		INSERT INTO nodes (host, type, cloud, account, instance, ip, start)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			type = excluded.type,
			cloud = excluded.cloud,
			account = excluded.account,
			instance = excluded.instance,
			ip = excluded.ip,
			start = excluded.start
	`

	_, err := s.db.ExecContext(ctx, query,
		node.Host,
		node.Type,
		node.Cloud,
		node.Account,
		node.Instance,
		node.IP,
		node.Start,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert node: %w", err)
	}

	return nil
}

// RemoveNode deletes a registry row by host.
func (s *SQLiteStore) RemoveNode(ctx context.Context, host string) error {
	query := `DELETE FROM nodes WHERE host = ?`

	result, err := s.db.ExecContext(ctx, query, host)
	if err != nil {
		return fmt.Errorf("failed to remove node: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, host)
	}

	return nil
}

// CloseNodeInterval flips a powered-on node off and appends the closed
// interval to the journal in a single transaction. The journal row keeps
// the identity and instance fields captured from the node before the
// reset; the ip is deliberately not journaled.
func (s *SQLiteStore) CloseNodeInterval(ctx context.Context, node *Node, end int64) error {
	if !node.On() {
		return fmt.Errorf("node %s is not powered on", node.Host)
	}
	if end <= node.Start {
		return fmt.Errorf("interval end %d not after start %d for %s", end, node.Start, node.Host)
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE nodes SET instance = '', ip = '', start = 0 WHERE host = ?`,
		node.Host,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to reset node: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, node.Host)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO journal (host, type, cloud, account, instance, start, "end")
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		node.Host,
		node.Type,
		node.Cloud,
		node.Account,
		node.Instance,
		node.Start,
		end,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit power-off: %w", err)
	}

	return nil
}

// ApplyRebuild deletes the removed hosts and inserts the added rows in a
// single transaction, so a rebuild either lands completely or not at all.
// Added rows are expected to be powered off.
func (s *SQLiteStore) ApplyRebuild(ctx context.Context, removed []string, added []*Node) error {
	if len(removed) == 0 && len(added) == 0 {
		return nil
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, host := range removed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE host = ?`, host); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to remove node %s: %w", host, err)
		}
	}

	for _, node := range added {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO nodes (host, type, cloud, account, instance, ip, start)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			node.Host,
			node.Type,
			node.Cloud,
			node.Account,
			node.Instance,
			node.IP,
			node.Start,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert node %s: %w", node.Host, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rebuild: %w", err)
	}

	return nil
}

// ListJournal retrieves journal entries with optional account filter and
// pagination. Only intervals ending after since are returned.
func (s *SQLiteStore) ListJournal(ctx context.Context, account *string, since int64, limit, offset int) ([]*JournalEntry, error) {
	query := `
		SELECT id, host, type, cloud, account, instance, start, "end"
		FROM journal
		WHERE (? IS NULL OR account = ?)
		  AND "end" > ?
		ORDER BY "end" DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, account, account, since, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	defer rows.Close()

	entries := []*JournalEntry{}
	for rows.Next() {
		entry := &JournalEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Host,
			&entry.Type,
			&entry.Cloud,
			&entry.Account,
			&entry.Instance,
			&entry.Start,
			&entry.End,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}

	return entries, nil
}

// RunningCountByType counts the powered-on nodes of one account grouped by
// node type.
func (s *SQLiteStore) RunningCountByType(ctx context.Context, account string) (map[string]int, error) {
	query := `
		SELECT type, COUNT(*)
		FROM nodes
		WHERE account = ? AND instance != ''
		GROUP BY type
	`

	rows, err := s.db.QueryContext(ctx, query, account)
	if err != nil {
		return nil, fmt.Errorf("failed to count running nodes: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var nodeType string
		var count int
		if err := rows.Scan(&nodeType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan running count: %w", err)
		}
		counts[nodeType] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating running counts: %w", err)
	}

	return counts, nil
}

// JournalHoursByType sums closed interval hours per node type for one
// account, counting intervals that ended after since.
func (s *SQLiteStore) JournalHoursByType(ctx context.Context, account string, since int64) (map[string]float64, error) {
	query := `
		SELECT type, CAST(SUM("end" - start) AS REAL) / 3600.0
		FROM journal
		WHERE account = ? AND "end" > ?
		GROUP BY type
	`

	return s.queryHoursByType(ctx, query, account, since)
}

// OnNodeHoursByType sums the open interval hours of currently powered-on
// nodes per type for one account, measured up to now.
func (s *SQLiteStore) OnNodeHoursByType(ctx context.Context, account string, now int64) (map[string]float64, error) {
	query := `
		SELECT type, CAST(SUM(? - start) AS REAL) / 3600.0
		FROM nodes
		WHERE account = ? AND instance != ''
		GROUP BY type
	`

	return s.queryHoursByType(ctx, query, now, account)
}

// queryHoursByType runs a two-column (type, hours) aggregate query.
func (s *SQLiteStore) queryHoursByType(ctx context.Context, query string, args ...interface{}) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to sum hours: %w", err)
	}
	defer rows.Close()

	hours := map[string]float64{}
	for rows.Next() {
		var nodeType string
		var h float64
		if err := rows.Scan(&nodeType, &h); err != nil {
			return nil, fmt.Errorf("failed to scan hours: %w", err)
		}
		hours[nodeType] = h
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hours: %w", err)
	}

	return hours, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
