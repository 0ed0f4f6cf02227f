package aws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredphp/yunwei/internal/model"
)

type fakeCostExplorer struct {
	pages  []*costexplorer.GetCostAndUsageOutput
	inputs []costexplorer.GetCostAndUsageInput
	err    error
}

func (f *fakeCostExplorer) GetCostAndUsage(_ context.Context, in *costexplorer.GetCostAndUsageInput, _ ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
	f.inputs = append(f.inputs, *in)
	if f.err != nil {
		return nil, f.err
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

type fakeEC2 struct {
	instances []ec2types.Instance
	volumes   []ec2types.Volume
}

func (f *fakeEC2) DescribeInstances(context.Context, *ec2.DescribeInstancesInput, ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{Instances: f.instances}},
	}, nil
}

func (f *fakeEC2) DescribeVolumes(_ context.Context, in *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	return &ec2.DescribeVolumesOutput{Volumes: f.volumes}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func group(service, amount string) cetypes.Group {
	return cetypes.Group{
		Keys: []string{service},
		Metrics: map[string]cetypes.MetricValue{
			"UnblendedCost": {Amount: aws.String(amount), Unit: aws.String("USD")},
			"UsageQuantity": {Amount: aws.String("24"), Unit: aws.String("Hrs")},
		},
	}
}

var account = model.CloudAccount{ID: "acc-1", AccountID: "123456789012", Provider: model.CloudProviderAWS}

func TestFetchCostsPaginates(t *testing.T) {
	ce := &fakeCostExplorer{pages: []*costexplorer.GetCostAndUsageOutput{
		{
			ResultsByTime: []cetypes.ResultByTime{{
				TimePeriod: &cetypes.DateInterval{Start: aws.String("2024-06-01"), End: aws.String("2024-06-02")},
				Groups: []cetypes.Group{
					group("Amazon Elastic Compute Cloud - Compute", "12.50"),
					group("Amazon Simple Storage Service", "3.25"),
				},
			}},
			NextPageToken: aws.String("page-2"),
		},
		{
			ResultsByTime: []cetypes.ResultByTime{{
				TimePeriod: &cetypes.DateInterval{Start: aws.String("2024-06-02"), End: aws.String("2024-06-03")},
				Groups:     []cetypes.Group{group("Tax", "-1.00")},
			}},
		},
	}}
	p := New("us-east-1", ce, &fakeEC2{}, discard())
	r := model.DateRange{
		Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	}

	records, err := p.FetchCosts(context.Background(), account, r)

	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Len(t, ce.inputs, 2)
	assert.Equal(t, "2024-06-03", aws.ToString(ce.inputs[0].TimePeriod.End), "end is exclusive")
	assert.Equal(t, "page-2", aws.ToString(ce.inputs[1].NextPageToken))
	assert.Equal(t, []string{"123456789012"}, ce.inputs[0].Filter.Dimensions.Values)

	compute := records[0]
	assert.Equal(t, "acc-1", compute.AccountID)
	assert.Equal(t, model.CategoryCompute, compute.Category)
	assert.Equal(t, 12.5, compute.Cost)
	assert.Equal(t, 24.0, compute.UsageQuantity)
	assert.Equal(t, "aws:123456789012:2024-06-01:Amazon Elastic Compute Cloud - Compute", compute.SourceKey)
	assert.Equal(t, model.StableID("cost", compute.SourceKey), compute.ID)

	assert.Equal(t, model.CategoryStorage, records[1].Category)
	assert.Equal(t, 0.0, records[2].Cost, "credits clamp to zero")
	assert.Equal(t, model.CategoryOther, records[2].Category)
}

func TestFetchCostsError(t *testing.T) {
	p := New("us-east-1", &fakeCostExplorer{err: errors.New("throttled")}, &fakeEC2{}, discard())

	_, err := p.FetchCosts(context.Background(), account, model.DateRange{Start: time.Now(), End: time.Now()})

	assert.ErrorContains(t, err, "throttled")
}

func TestFetchResources(t *testing.T) {
	launched := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	fake := &fakeEC2{
		instances: []ec2types.Instance{
			{
				InstanceId:   aws.String("i-run"),
				InstanceType: ec2types.InstanceTypeM5Large,
				State:        &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
				Placement:    &ec2types.Placement{AvailabilityZone: aws.String("eu-west-1b")},
				LaunchTime:   &launched,
				Tags: []ec2types.Tag{
					{Key: aws.String("Name"), Value: aws.String("api")},
					{Key: aws.String("aws:autoscaling:groupName"), Value: aws.String("api-asg")},
				},
			},
			{
				InstanceId:            aws.String("i-stop"),
				InstanceType:          ec2types.InstanceTypeT3Small,
				State:                 &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped},
				StateTransitionReason: aws.String("User initiated (2024-05-01 10:00:00 GMT)"),
			},
		},
		volumes: []ec2types.Volume{{
			VolumeId:   aws.String("vol-1"),
			VolumeType: ec2types.VolumeTypeGp3,
			Size:       aws.Int32(100),
		}},
	}
	p := New("us-east-1", &fakeCostExplorer{}, fake, discard())

	resources, err := p.FetchResources(context.Background(), account)

	require.NoError(t, err)
	require.Len(t, resources, 3)

	running := resources[0]
	assert.Equal(t, model.StableID("resource", "acc-1", "i-run"), running.ID)
	assert.Equal(t, "api", running.Name)
	assert.Equal(t, "eu-west-1", running.Region)
	assert.Equal(t, 0.096, running.CostPerHour)
	assert.Equal(t, model.ResourceStatusRunning, running.Status)
	assert.Equal(t, "aws:autoscaling:groupName=api-asg", running.WorkloadRef)
	assert.Equal(t, launched, running.CreatedAt)

	stopped := resources[1]
	assert.Equal(t, model.ResourceStatusStopped, stopped.Status)
	require.NotNil(t, stopped.StoppedAt)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), *stopped.StoppedAt)
	assert.Empty(t, stopped.WorkloadRef)

	vol := resources[2]
	assert.Equal(t, "ebs.gp3", vol.Type)
	assert.Equal(t, model.CategoryStorage, vol.Category)
	assert.InDelta(t, 8.0/720, vol.CostPerHour, 1e-9)
}

func TestStoppedAt(t *testing.T) {
	tests := []struct {
		reason string
		ok     bool
	}{
		{"User initiated (2024-05-01 10:00:00 GMT)", true},
		{"Server.ScheduledStop (2023-12-31 23:59:59 GMT)", true},
		{"", false},
		{"User initiated", false},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			_, ok := StoppedAt(tt.reason)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestInstanceRate(t *testing.T) {
	assert.Equal(t, 0.0416, InstanceRate("t3.medium"))
	assert.InDelta(t, 0.4, InstanceRate("x2iedn.4xlarge"), 1e-9)
	assert.Zero(t, InstanceRate("mac1.metal"))
}
