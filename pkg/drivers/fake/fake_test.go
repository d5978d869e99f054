package fake

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stratushpc/stratus/pkg/drivers"
)

func TestLaunchAssignsDeterministicIdentity(t *testing.T) {
	driver := New()
	ctx := context.Background()

	first, err := driver.Launch(ctx, &drivers.LaunchSpec{Host: "chem-aws-t1"})
	if err != nil {
		t.Fatalf("failed to launch: %v", err)
	}
	if first.ID != "i-00000001" {
		t.Errorf("id = %q", first.ID)
	}
	if first.PrivateIP != "10.0.0.1" {
		t.Errorf("ip = %q", first.PrivateIP)
	}
	if first.State != "running" {
		t.Errorf("state = %q", first.State)
	}

	second, err := driver.Launch(ctx, &drivers.LaunchSpec{Host: "chem-aws-t2"})
	if err != nil {
		t.Fatalf("failed to launch second: %v", err)
	}
	if second.ID != "i-00000002" || second.PrivateIP != "10.0.0.2" {
		t.Errorf("second instance = %+v", second)
	}
}

func TestDescribeAndList(t *testing.T) {
	driver := New()
	ctx := context.Background()

	launched, err := driver.Launch(ctx, &drivers.LaunchSpec{Host: "chem-aws-t1"})
	if err != nil {
		t.Fatalf("failed to launch: %v", err)
	}

	described, err := driver.Describe(ctx, launched.ID)
	if err != nil {
		t.Fatalf("failed to describe: %v", err)
	}
	if described.Host != "chem-aws-t1" {
		t.Errorf("host = %q", described.Host)
	}

	instances, err := driver.List(ctx)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(instances) != 1 {
		t.Errorf("instances = %d, want 1", len(instances))
	}
}

func TestTerminateRemovesInstance(t *testing.T) {
	driver := New()
	ctx := context.Background()

	launched, err := driver.Launch(ctx, &drivers.LaunchSpec{Host: "chem-aws-t1"})
	if err != nil {
		t.Fatalf("failed to launch: %v", err)
	}

	if err := driver.Terminate(ctx, launched.ID); err != nil {
		t.Fatalf("failed to terminate: %v", err)
	}
	if _, err := driver.Describe(ctx, launched.ID); err == nil {
		t.Error("terminated instance still describable")
	}
	if err := driver.Terminate(ctx, launched.ID); err == nil {
		t.Error("expected error terminating unknown instance")
	}
}

func TestOpenRegisteredFakeDriver(t *testing.T) {
	driver, err := drivers.Open(context.Background(), "fake", nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open fake driver: %v", err)
	}
	if driver == nil {
		t.Fatal("nil driver")
	}
}

func TestOpenUnknownCloud(t *testing.T) {
	if _, err := drivers.Open(context.Background(), "nebula", nil, zerolog.Nop()); err == nil {
		t.Error("expected error for unregistered cloud")
	}
}
