// Package aws reads daily costs from Cost Explorer and inventory from EC2.
package aws

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/provider"
)

// CostExplorerAPI is the part of the Cost Explorer client the provider uses.
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, in *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// EC2API is the part of the EC2 client the provider uses.
type EC2API interface {
	ec2.DescribeInstancesAPIClient
	ec2.DescribeVolumesAPIClient
}

// Provider implements provider.Provider for AWS.
type Provider struct {
	region       string
	costExplorer CostExplorerAPI
	ec2          EC2API
	logger       *slog.Logger
}

// NewProvider loads AWS credentials: static keys when configured, otherwise the default
// chain, optionally assuming a role.
func NewProvider(ctx context.Context, cfg config.AWSConfig, logger *slog.Logger) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.AssumeRoleARN != "" {
		stsClient := sts.NewFromConfig(awsCfg)
		creds := stscreds.NewAssumeRoleProvider(stsClient, cfg.AssumeRoleARN, func(o *stscreds.AssumeRoleOptions) {
			if cfg.ExternalID != "" {
				o.ExternalID = aws.String(cfg.ExternalID)
			}
		})
		awsCfg.Credentials = aws.NewCredentialsCache(creds)
	}

	return New(cfg.Region, costexplorer.NewFromConfig(awsCfg), ec2.NewFromConfig(awsCfg), logger), nil
}

// New builds a Provider from existing clients.
func New(region string, ce CostExplorerAPI, ec2Client EC2API, logger *slog.Logger) *Provider {
	return &Provider{region: region, costExplorer: ce, ec2: ec2Client, logger: logger}
}

func (p *Provider) Name() string { return "aws" }

func (p *Provider) Type() model.CloudProvider { return model.CloudProviderAWS }

// Health asks Cost Explorer for yesterday's total.
func (p *Provider) Health(ctx context.Context) provider.HealthStatus {
	now := time.Now().UTC()
	_, err := p.costExplorer.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(now.AddDate(0, 0, -1).Format(model.DateLayout)),
			End:   aws.String(now.Format(model.DateLayout)),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
	})

	status := provider.HealthStatus{
		LastChecked: now,
		Details:     map[string]any{"region": p.region},
	}
	if err != nil {
		status.Message = fmt.Sprintf("AWS health check failed: %v", err)
		return status
	}
	status.Healthy = true
	status.Message = "AWS provider healthy"
	return status
}

// FetchCosts returns one record per day and service for the linked account. Each record
// carries a source key so re-syncing a day updates it in place.
func (p *Provider) FetchCosts(ctx context.Context, account model.CloudAccount, r model.DateRange) ([]model.CostRecord, error) {
	p.logger.Info("fetching AWS costs",
		"account", account.AccountID,
		"start", r.Start.Format(model.DateLayout),
		"end", r.End.Format(model.DateLayout),
	)

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(model.TruncateDay(r.Start).Format(model.DateLayout)),
			// Cost Explorer treats End as exclusive.
			End: aws.String(model.TruncateDay(r.End).AddDate(0, 0, 1).Format(model.DateLayout)),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"UnblendedCost", "UsageQuantity"},
		GroupBy: []cetypes.GroupDefinition{{
			Type: cetypes.GroupDefinitionTypeDimension,
			Key:  aws.String("SERVICE"),
		}},
		Filter: &cetypes.Expression{
			Dimensions: &cetypes.DimensionValues{
				Key:    cetypes.DimensionLinkedAccount,
				Values: []string{account.AccountID},
			},
		},
	}

	var records []model.CostRecord
	for {
		out, err := p.costExplorer.GetCostAndUsage(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to get cost data: %w", err)
		}
		for _, result := range out.ResultsByTime {
			if result.TimePeriod == nil {
				continue
			}
			date, err := time.Parse(model.DateLayout, aws.ToString(result.TimePeriod.Start))
			if err != nil {
				return nil, fmt.Errorf("parsing cost period %q: %w", aws.ToString(result.TimePeriod.Start), err)
			}
			for _, group := range result.Groups {
				if len(group.Keys) == 0 {
					continue
				}
				rec, err := costRecord(account, date, group.Keys[0], group.Metrics)
				if err != nil {
					return nil, err
				}
				records = append(records, rec)
			}
		}
		if out.NextPageToken == nil {
			break
		}
		input.NextPageToken = out.NextPageToken
	}
	return records, nil
}

func costRecord(account model.CloudAccount, date time.Time, service string, metrics map[string]cetypes.MetricValue) (model.CostRecord, error) {
	key := fmt.Sprintf("aws:%s:%s:%s", account.AccountID, date.Format(model.DateLayout), service)
	rec := model.CostRecord{
		ID:        model.StableID("cost", key),
		AccountID: account.ID,
		Date:      date,
		Category:  provider.CategoryFor(service),
		Service:   service,
		Currency:  model.CurrencyUSD,
		SourceKey: key,
	}
	if m, ok := metrics["UnblendedCost"]; ok && m.Amount != nil {
		v, err := strconv.ParseFloat(*m.Amount, 64)
		if err != nil {
			return rec, fmt.Errorf("parsing cost of %s on %s: %w", service, date.Format(model.DateLayout), err)
		}
		// Credits show up as negative amounts; the analytics only account for spend.
		rec.Cost = max(v, 0)
		if m.Unit != nil && *m.Unit != "" {
			rec.Currency = model.Currency(*m.Unit)
		}
	}
	if m, ok := metrics["UsageQuantity"]; ok && m.Amount != nil {
		if v, err := strconv.ParseFloat(*m.Amount, 64); err == nil {
			rec.UsageQuantity = v
		}
		rec.UsageUnit = aws.ToString(m.Unit)
	}
	return rec, nil
}

// FetchResources lists the account's running and stopped instances plus its unattached
// EBS volumes.
func (p *Provider) FetchResources(ctx context.Context, account model.CloudAccount) ([]model.Resource, error) {
	var resources []model.Resource

	instances := ec2.NewDescribeInstancesPaginator(p.ec2, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{{
			Name:   aws.String("instance-state-name"),
			Values: []string{"pending", "running", "stopping", "stopped"},
		}},
	})
	for instances.HasMorePages() {
		page, err := instances.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				resources = append(resources, p.instanceResource(account, inst))
			}
		}
	}

	volumes := ec2.NewDescribeVolumesPaginator(p.ec2, &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{{
			Name:   aws.String("status"),
			Values: []string{"available"},
		}},
	})
	for volumes.HasMorePages() {
		page, err := volumes.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing volumes: %w", err)
		}
		for _, vol := range page.Volumes {
			resources = append(resources, p.volumeResource(account, vol))
		}
	}

	p.logger.Info("fetched AWS inventory", "account", account.AccountID, "resources", len(resources))
	return resources, nil
}

var transitionReason = regexp.MustCompile(`\((\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) GMT\)`)

// StoppedAt extracts the stop time from an instance's state transition reason, such as
// "User initiated (2024-05-01 10:00:00 GMT)".
func StoppedAt(reason string) (time.Time, bool) {
	m := transitionReason.FindStringSubmatch(reason)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02 15:04:05", m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// workloadTags mark an instance as owned by a higher-level workload.
var workloadTags = []string{
	"aws:autoscaling:groupName",
	"aws:cloudformation:stack-name",
	"eks:cluster-name",
	"kubernetes.io/cluster",
	"workload",
}

func (p *Provider) instanceResource(account model.CloudAccount, inst ec2types.Instance) model.Resource {
	id := aws.ToString(inst.InstanceId)
	tags := make(model.Tags, len(inst.Tags))
	for _, t := range inst.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}

	r := model.Resource{
		ID:          model.StableID("resource", account.ID, id),
		AccountID:   account.ID,
		ResourceID:  id,
		Name:        tags["Name"],
		Type:        string(inst.InstanceType),
		Category:    model.CategoryCompute,
		Region:      p.region,
		CostPerHour: InstanceRate(string(inst.InstanceType)),
		Status:      model.ResourceStatusRunning,
		WorkloadRef: workloadRef(tags),
		Tags:        tags,
	}
	if inst.Placement != nil && inst.Placement.AvailabilityZone != nil {
		r.Region = regionOf(*inst.Placement.AvailabilityZone)
	}
	if inst.LaunchTime != nil {
		r.CreatedAt = inst.LaunchTime.UTC()
	}
	if inst.State != nil && (inst.State.Name == ec2types.InstanceStateNameStopped || inst.State.Name == ec2types.InstanceStateNameStopping) {
		r.Status = model.ResourceStatusStopped
		if at, ok := StoppedAt(aws.ToString(inst.StateTransitionReason)); ok {
			r.StoppedAt = &at
		}
	}
	return r
}

func (p *Provider) volumeResource(account model.CloudAccount, vol ec2types.Volume) model.Resource {
	id := aws.ToString(vol.VolumeId)
	tags := make(model.Tags, len(vol.Tags))
	for _, t := range vol.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	r := model.Resource{
		ID:          model.StableID("resource", account.ID, id),
		AccountID:   account.ID,
		ResourceID:  id,
		Name:        tags["Name"],
		Type:        "ebs." + string(vol.VolumeType),
		Category:    model.CategoryStorage,
		Region:      p.region,
		CostPerHour: VolumeRate(string(vol.VolumeType), aws.ToInt32(vol.Size)),
		Status:      model.ResourceStatusRunning,
		WorkloadRef: workloadRef(tags),
		Tags:        tags,
	}
	if vol.AvailabilityZone != nil {
		r.Region = regionOf(*vol.AvailabilityZone)
	}
	if vol.CreateTime != nil {
		r.CreatedAt = vol.CreateTime.UTC()
	}
	return r
}

func workloadRef(tags model.Tags) string {
	for _, k := range workloadTags {
		if v := tags[k]; v != "" {
			return k + "=" + v
		}
	}
	return ""
}

// regionOf strips the zone letter from an availability zone name.
func regionOf(zone string) string {
	if n := len(zone); n > 1 && zone[n-1] >= 'a' && zone[n-1] <= 'z' {
		return zone[:n-1]
	}
	return zone
}

// Close cleans up provider resources.
func (p *Provider) Close() error {
	return nil
}
