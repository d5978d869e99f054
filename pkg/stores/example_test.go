package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stratushpc/stratus/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	// Create store configuration
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	// Store is now ready to use
	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_UpsertNode demonstrates registering and powering on a host.
func ExampleSQLiteStore_UpsertNode() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Register a powered-off host
	node := &stores.Node{
		Host:    "chem-aws-t11",
		Type:    "t11",
		Cloud:   "aws",
		Account: "chem",
	}
	if err := store.UpsertNode(ctx, node); err != nil {
		log.Fatal(err)
	}

	// Power it on: bind the instance, address, and interval start
	node.Instance = "i-0abc123"
	node.IP = "10.0.0.7"
	node.Start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Unix()
	if err := store.UpsertNode(ctx, node); err != nil {
		log.Fatal(err)
	}

	// Retrieve the row
	retrieved, err := store.GetNode(ctx, "chem-aws-t11")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Host: %s, On: %v, Instance: %s\n", retrieved.Host, retrieved.On(), retrieved.Instance)
	// Output: Host: chem-aws-t11, On: true, Instance: i-0abc123
}

// ExampleSQLiteStore_CloseNodeInterval demonstrates powering off and journaling.
func ExampleSQLiteStore_CloseNodeInterval() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Unix()
	node := &stores.Node{
		Host:     "chem-aws-t11",
		Type:     "t11",
		Cloud:    "aws",
		Account:  "chem",
		Instance: "i-0abc123",
		IP:       "10.0.0.7",
		Start:    start,
	}
	_ = store.UpsertNode(ctx, node)

	// Power off: flip the row to off and journal the closed interval
	if err := store.CloseNodeInterval(ctx, node, start+7200); err != nil {
		log.Fatal(err)
	}

	entries, err := store.ListJournal(ctx, nil, 0, 10, 0)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Intervals: %d, Hours: %.1f\n", len(entries), entries[0].Hours())
	// Output: Intervals: 1, Hours: 2.0
}

// ExampleSQLiteStore_ApplyRebuild demonstrates reconciling the registry.
func ExampleSQLiteStore_ApplyRebuild() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	_ = store.UpsertNode(ctx, &stores.Node{Host: "chem-aws-t11", Type: "t11", Cloud: "aws", Account: "chem"})

	// One transaction: drop the stale host, add the new one
	added := []*stores.Node{
		{Host: "phys-gcp-n2", Type: "n2", Cloud: "gcp", Account: "phys"},
	}
	if err := store.ApplyRebuild(ctx, []string{"chem-aws-t11"}, added); err != nil {
		log.Fatal(err)
	}

	nodes, err := store.ListNodes(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Hosts: %d, First: %s\n", len(nodes), nodes[0].Host)
	// Output: Hosts: 1, First: phys-gcp-n2
}
