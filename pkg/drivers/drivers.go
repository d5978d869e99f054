// Package drivers defines the cloud driver interface used to launch and
// terminate the instances behind cluster hosts, and a registry that maps
// cloud vendor tags to driver factories.
package drivers

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stratushpc/stratus/pkg/config"
)

// LaunchSpec describes the instance to launch for one host.
type LaunchSpec struct {
	// Host is the cluster host name the instance will back. Drivers tag
	// the instance with it so List can attribute instances to hosts.
	Host string

	// InstanceType is the vendor instance type, e.g. t2.micro.
	InstanceType string

	// ImageID is the machine image to boot.
	ImageID string

	// KeyName is the SSH key pair name, if any.
	KeyName string

	// SecurityGroups are the security group IDs to attach.
	SecurityGroups []string
}

// Instance is a driver's view of one running instance.
type Instance struct {
	// ID is the vendor instance identifier.
	ID string

	// PrivateIP is the instance's private address, once assigned.
	PrivateIP string

	// State is the vendor lifecycle state, e.g. pending or running.
	State string

	// Host is the cluster host the instance is tagged with, if any.
	Host string
}

// Driver launches and terminates instances for one cloud account.
type Driver interface {
	// Launch starts one instance per spec and returns it. The returned
	// instance may still be pending; callers poll Describe until the
	// private IP is assigned.
	Launch(ctx context.Context, spec *LaunchSpec) (*Instance, error)

	// Describe returns the current state of one instance.
	Describe(ctx context.Context, instanceID string) (*Instance, error)

	// List returns all non-terminated instances visible to the account.
	List(ctx context.Context) ([]Instance, error)

	// Terminate shuts down and releases one instance.
	Terminate(ctx context.Context, instanceID string) error
}

// Factory creates a driver for one account.
type Factory func(ctx context.Context, account *config.AccountConfig, logger zerolog.Logger) (Driver, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register registers a driver factory under a cloud vendor tag.
// Drivers register themselves from their package init.
func Register(cloud string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[cloud]; exists {
		panic(fmt.Sprintf("drivers: duplicate registration for cloud %q", cloud))
	}
	factories[cloud] = factory
}

// Open creates a driver for the given cloud vendor and account.
func Open(ctx context.Context, cloud string, account *config.AccountConfig, logger zerolog.Logger) (Driver, error) {
	mu.RLock()
	factory, exists := factories[cloud]
	mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no driver registered for cloud %q", cloud)
	}
	return factory(ctx, account, logger)
}

// Registered returns the registered cloud vendor tags.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()

	clouds := make([]string, 0, len(factories))
	for cloud := range factories {
		clouds = append(clouds, cloud)
	}
	return clouds
}
