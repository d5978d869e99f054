// Package aws implements the cloud driver for Amazon EC2.
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stratushpc/stratus/pkg/config"
	"github.com/stratushpc/stratus/pkg/drivers"
)

// hostTag is the instance tag carrying the cluster host name.
const hostTag = "stratus:host"

func init() {
	drivers.Register("aws", New)
}

// Driver talks to EC2 for one account.
type Driver struct {
	client *ec2.Client
	logger zerolog.Logger
}

// New creates an EC2 driver using the account's region and shared-config
// profile. Credentials come from the standard AWS credential chain.
func New(ctx context.Context, account *config.AccountConfig, logger zerolog.Logger) (drivers.Driver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(account.Region),
	}
	if account.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(account.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Driver{
		client: ec2.NewFromConfig(cfg),
		logger: logger.With().Str("component", "aws-driver").Str("account", account.Name).Logger(),
	}, nil
}

// Launch starts one instance for the given host.
func (d *Driver) Launch(ctx context.Context, spec *drivers.LaunchSpec) (*drivers.Instance, error) {
	input := &ec2.RunInstancesInput{
		ImageId:      awssdk.String(spec.ImageID),
		InstanceType: ec2types.InstanceType(spec.InstanceType),
		MinCount:     awssdk.Int32(1),
		MaxCount:     awssdk.Int32(1),
		// Client token makes retried launches idempotent on the EC2 side
		ClientToken: awssdk.String(uuid.NewString()),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags: []ec2types.Tag{
				{Key: awssdk.String("Name"), Value: awssdk.String(spec.Host)},
				{Key: awssdk.String(hostTag), Value: awssdk.String(spec.Host)},
			},
		}},
	}
	if spec.KeyName != "" {
		input.KeyName = awssdk.String(spec.KeyName)
	}
	if len(spec.SecurityGroups) > 0 {
		input.SecurityGroupIds = spec.SecurityGroups
	}

	resp, err := d.client.RunInstances(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to run instance for %s: %w", spec.Host, err)
	}
	if len(resp.Instances) == 0 {
		return nil, fmt.Errorf("run instance for %s returned no instances", spec.Host)
	}

	instance := fromEC2(&resp.Instances[0])
	d.logger.Info().
		Str("host", spec.Host).
		Str("instance", instance.ID).
		Str("state", instance.State).
		Msg("Instance launched")

	return instance, nil
}

// Describe returns the current state of one instance.
func (d *Driver) Describe(ctx context.Context, instanceID string) (*drivers.Instance, error) {
	resp, err := d.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance %s: %w", instanceID, err)
	}

	for i := range resp.Reservations {
		for j := range resp.Reservations[i].Instances {
			return fromEC2(&resp.Reservations[i].Instances[j]), nil
		}
	}
	return nil, fmt.Errorf("instance %s not found", instanceID)
}

// List returns all non-terminated instances tagged with a cluster host.
func (d *Driver) List(ctx context.Context) ([]drivers.Instance, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: awssdk.String("tag-key"), Values: []string{hostTag}},
			{Name: awssdk.String("instance-state-name"), Values: []string{"pending", "running", "stopping", "stopped"}},
		},
	}

	var instances []drivers.Instance
	paginator := ec2.NewDescribeInstancesPaginator(d.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list instances: %w", err)
		}
		for i := range page.Reservations {
			for j := range page.Reservations[i].Instances {
				instances = append(instances, *fromEC2(&page.Reservations[i].Instances[j]))
			}
		}
	}
	return instances, nil
}

// Terminate shuts down one instance.
func (d *Driver) Terminate(ctx context.Context, instanceID string) error {
	_, err := d.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return fmt.Errorf("failed to terminate instance %s: %w", instanceID, err)
	}

	d.logger.Info().Str("instance", instanceID).Msg("Instance terminated")
	return nil
}

// fromEC2 converts an EC2 instance to the driver representation.
func fromEC2(in *ec2types.Instance) *drivers.Instance {
	instance := &drivers.Instance{
		ID:        awssdk.ToString(in.InstanceId),
		PrivateIP: awssdk.ToString(in.PrivateIpAddress),
	}
	if in.State != nil {
		instance.State = string(in.State.Name)
	}
	for _, tag := range in.Tags {
		if awssdk.ToString(tag.Key) == hostTag {
			instance.Host = awssdk.ToString(tag.Value)
		}
	}
	return instance
}
