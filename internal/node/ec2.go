package node

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/shipshift/orchestrator/internal/domain"
)

const (
	tagModule  = "shipshift:module"
	tagVersion = "shipshift:desired-version"
)

// ec2API is the slice of the EC2 client the node driver uses
type ec2API interface {
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DescribeTags(ctx context.Context, params *ec2.DescribeTagsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeTagsOutput, error)
	DescribeInstanceStatus(ctx context.Context, params *ec2.DescribeInstanceStatusInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error)
}

// EC2 is a node backed by one EC2 instance running the pull-mode agent.
// Deploying writes desired-version tags that the on-host agent reconciles;
// health comes from the instance status checks.
type EC2 struct {
	id         string
	client     ec2API
	instanceID string
	env        domain.Environment

	mu       sync.Mutex
	deployed string
	previous string
}

// NewEC2 creates an EC2 node in the given region
func NewEC2(ctx context.Context, region, instanceID string, env domain.Environment) (*EC2, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	return &EC2{
		id:         shortID(),
		client:     ec2.NewFromConfig(cfg),
		instanceID: instanceID,
		env:        env,
	}, nil
}

func (n *EC2) ID() string                      { return n.id }
func (n *EC2) Hostname() string                { return n.instanceID }
func (n *EC2) Environment() domain.Environment { return n.env }

func (n *EC2) DeployedVersion() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.deployed
}

// Deploy records the current desired-version tag, then overwrites it with
// the requested version for the agent to reconcile
func (n *EC2) Deploy(ctx context.Context, req domain.ModuleDeploymentRequest) error {
	current, err := n.readVersionTag(ctx)
	if err != nil {
		return fmt.Errorf("%w: read tags: %v", domain.ErrDeployFailed, err)
	}

	version := req.Version.String()
	if err := n.writeTags(ctx, req.ModuleName, version); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeployFailed, err)
	}

	n.mu.Lock()
	n.previous = current
	n.deployed = version
	n.mu.Unlock()

	log.Printf("Tagged %s with %s=%s", n.instanceID, tagVersion, version)
	return nil
}

// Rollback restores the desired-version tag recorded before the last deploy
func (n *EC2) Rollback(ctx context.Context) error {
	n.mu.Lock()
	previous := n.previous
	n.mu.Unlock()

	if previous == "" {
		return nil
	}

	_, err := n.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{n.instanceID},
		Tags: []ec2types.Tag{
			{Key: aws.String(tagVersion), Value: aws.String(previous)},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRollbackFailed, err)
	}

	n.mu.Lock()
	n.deployed = previous
	n.mu.Unlock()

	log.Printf("Rollback: restored %s on %s to %s", tagVersion, n.instanceID, previous)
	return nil
}

// Healthy reports whether the instance is running with both status checks ok
func (n *EC2) Healthy(ctx context.Context) bool {
	out, err := n.client.DescribeInstanceStatus(ctx, &ec2.DescribeInstanceStatusInput{
		InstanceIds:         []string{n.instanceID},
		IncludeAllInstances: aws.Bool(true),
	})
	if err != nil || len(out.InstanceStatuses) == 0 {
		return false
	}

	st := out.InstanceStatuses[0]
	if st.InstanceState == nil || st.InstanceState.Name != ec2types.InstanceStateNameRunning {
		return false
	}
	return st.InstanceStatus != nil && st.InstanceStatus.Status == ec2types.SummaryStatusOk &&
		st.SystemStatus != nil && st.SystemStatus.Status == ec2types.SummaryStatusOk
}

func (n *EC2) readVersionTag(ctx context.Context) (string, error) {
	out, err := n.client.DescribeTags(ctx, &ec2.DescribeTagsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("resource-id"), Values: []string{n.instanceID}},
			{Name: aws.String("key"), Values: []string{tagVersion}},
		},
	})
	if err != nil {
		return "", err
	}
	if len(out.Tags) == 0 {
		return "", nil
	}
	return aws.ToString(out.Tags[0].Value), nil
}

func (n *EC2) writeTags(ctx context.Context, module, version string) error {
	_, err := n.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{n.instanceID},
		Tags: []ec2types.Tag{
			{Key: aws.String(tagModule), Value: aws.String(module)},
			{Key: aws.String(tagVersion), Value: aws.String(version)},
		},
	})
	return err
}
