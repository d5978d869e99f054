// Package fake implements an in-memory cloud driver for tests and for
// exercising the lifecycle without vendor credentials.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stratushpc/stratus/pkg/config"
	"github.com/stratushpc/stratus/pkg/drivers"
)

func init() {
	drivers.Register("fake", func(ctx context.Context, account *config.AccountConfig, logger zerolog.Logger) (drivers.Driver, error) {
		return New(), nil
	})
}

// Driver keeps its instances in memory. IDs and addresses are assigned
// from a counter so tests get deterministic values.
type Driver struct {
	mu        sync.Mutex
	counter   int
	instances map[string]*drivers.Instance
}

// New creates an empty fake driver.
func New() *Driver {
	return &Driver{instances: make(map[string]*drivers.Instance)}
}

// Launch creates a running instance with a deterministic ID and address.
func (d *Driver) Launch(ctx context.Context, spec *drivers.LaunchSpec) (*drivers.Instance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counter++
	instance := &drivers.Instance{
		ID:        fmt.Sprintf("i-%08d", d.counter),
		PrivateIP: fmt.Sprintf("10.0.%d.%d", d.counter/256, d.counter%256),
		State:     "running",
		Host:      spec.Host,
	}
	d.instances[instance.ID] = instance

	copied := *instance
	return &copied, nil
}

// Describe returns one instance.
func (d *Driver) Describe(ctx context.Context, instanceID string) (*drivers.Instance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	instance, exists := d.instances[instanceID]
	if !exists {
		return nil, fmt.Errorf("instance %s not found", instanceID)
	}
	copied := *instance
	return &copied, nil
}

// List returns all instances sorted by ID.
func (d *Driver) List(ctx context.Context) ([]drivers.Instance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	instances := make([]drivers.Instance, 0, len(d.instances))
	for _, instance := range d.instances {
		instances = append(instances, *instance)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].ID < instances[j].ID })
	return instances, nil
}

// Terminate removes one instance.
func (d *Driver) Terminate(ctx context.Context, instanceID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.instances[instanceID]; !exists {
		return fmt.Errorf("instance %s not found", instanceID)
	}
	delete(d.instances, instanceID)
	return nil
}
