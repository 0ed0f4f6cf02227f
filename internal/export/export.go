// Package export renders findings as CSV reports and publishes them to S3.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/model"
)

// ErrNotConfigured is returned by Publish when no bucket is set.
var ErrNotConfigured = errors.New("report bucket not configured")

var wasteHeader = []string{
	"id", "resource_id", "account_id", "resource_name", "resource_type", "waste_type", "severity",
	"estimated_savings", "avg_cpu", "avg_memory", "status", "detected_at", "reason", "recommendation",
}

var idleHeader = []string{
	"id", "resource_id", "account_id", "resource_name", "resource_type", "idle_type", "idle_days",
	"monthly_cost", "potential_savings", "recommendation", "priority", "status", "detected_at",
}

// WriteWasteCSV writes one row per finding under a header row.
func WriteWasteCSV(w io.Writer, findings []model.WasteFinding) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(wasteHeader); err != nil {
		return err
	}
	for _, f := range findings {
		if err := cw.Write([]string{
			f.ID, f.ResourceID, f.AccountID, f.ResourceName, f.ResourceType,
			string(f.WasteType), string(f.Severity),
			amount(f.EstimatedSavings), percent(f.AvgCPU), percent(f.AvgMemory),
			string(f.Status), f.DetectedAt.UTC().Format(time.RFC3339),
			f.Reason, f.Recommendation,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteIdleCSV writes one row per finding under a header row.
func WriteIdleCSV(w io.Writer, findings []model.IdleFinding) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(idleHeader); err != nil {
		return err
	}
	for _, f := range findings {
		if err := cw.Write([]string{
			f.ID, f.ResourceID, f.AccountID, f.ResourceName, f.ResourceType,
			string(f.IdleType), strconv.Itoa(f.IdleDays),
			amount(f.MonthlyCost), amount(f.PotentialSavings),
			string(f.Recommendation), string(f.Priority), string(f.Status),
			f.DetectedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func amount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// ObjectPutter is the part of the S3 client reports are uploaded with.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client from the default credential chain.
func NewS3Client(ctx context.Context, cfg config.AWSConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// Store is the part of the store reports read.
type Store interface {
	ListWasteFindings(ctx context.Context, filter model.WasteFilter) ([]model.WasteFinding, error)
	ListIdleFindings(ctx context.Context, filter model.IdleFilter) ([]model.IdleFinding, error)
}

// Service renders and publishes reports.
type Service struct {
	store  Store
	putter ObjectPutter
	bucket string
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service. putter may be nil when reports are only downloaded.
func NewService(store Store, putter ObjectPutter, cfg config.ExportConfig, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		putter: putter,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
		now:    time.Now,
	}
}

// Configured reports whether Publish has somewhere to upload to.
func (s *Service) Configured() bool {
	return s.putter != nil && s.bucket != ""
}

// WasteCSV writes the findings matching filter to w.
func (s *Service) WasteCSV(ctx context.Context, filter model.WasteFilter, w io.Writer) error {
	findings, err := s.store.ListWasteFindings(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing waste findings: %w", err)
	}
	return WriteWasteCSV(w, findings)
}

// IdleCSV writes the findings matching filter to w.
func (s *Service) IdleCSV(ctx context.Context, filter model.IdleFilter, w io.Writer) error {
	findings, err := s.store.ListIdleFindings(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing idle findings: %w", err)
	}
	return WriteIdleCSV(w, findings)
}

// Publish uploads today's open waste and active idle reports and returns their keys.
func (s *Service) Publish(ctx context.Context) ([]string, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	day := s.now().UTC().Format(model.DateLayout)

	var waste, idle bytes.Buffer
	if err := s.WasteCSV(ctx, model.WasteFilter{Statuses: []model.WasteStatus{model.WasteStatusOpen}}, &waste); err != nil {
		return nil, err
	}
	if err := s.IdleCSV(ctx, model.IdleFilter{Statuses: []model.IdleStatus{model.IdleStatusActive, model.IdleStatusReviewing}}, &idle); err != nil {
		return nil, err
	}

	reports := []struct {
		name string
		body *bytes.Buffer
	}{
		{"waste.csv", &waste},
		{"idle.csv", &idle},
	}
	keys := make([]string, 0, len(reports))
	for _, r := range reports {
		key := path.Join(s.prefix, day, r.name)
		_, err := s.putter.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(r.body.Bytes()),
			ContentType: aws.String("text/csv"),
		})
		if err != nil {
			return keys, fmt.Errorf("uploading %s: %w", key, err)
		}
		keys = append(keys, key)
	}

	s.logger.Info("findings reports published", "bucket", s.bucket, "keys", keys)
	return keys, nil
}
