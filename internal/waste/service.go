package waste

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/repository"
	"github.com/fredphp/yunwei/internal/usage"
)

// Store is the data the waste detector reads and writes.
type Store interface {
	repository.ResourceReader
	repository.UsageReader
	repository.WasteRepository
}

// Notifier announces newly detected findings.
type Notifier interface {
	SendWasteAlert(ctx context.Context, finding model.WasteFinding) error
}

// Service runs detection passes and serves finding lists.
type Service struct {
	store    Store
	usage    *usage.Service
	notifier Notifier
	policy   config.WastePolicy
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service. notifier may be nil.
func NewService(store Store, notifier Notifier, policy config.WastePolicy, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		usage:    usage.NewService(store),
		notifier: notifier,
		policy:   policy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run examines every resource matching filter and upserts one finding per wasteful
// resource. All findings of the pass are written in one transaction, so a failed pass
// leaves earlier findings untouched.
func (s *Service) Run(ctx context.Context, filter model.ResourceFilter) (*model.PassResult, error) {
	now := s.now()
	resources, err := s.store.ListResources(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}

	result := &model.PassResult{Examined: len(resources)}
	var fresh []model.WasteFinding
	for _, r := range resources {
		samples, err := s.usage.Window(ctx, r.ID, s.policy.SampleWindow)
		if err != nil {
			return nil, err
		}
		if f, ok := Detect(r, usage.Classify(samples), s.policy, now); ok {
			fresh = append(fresh, f)
		}
	}
	result.Flagged = len(fresh)
	if len(fresh) == 0 {
		return result, nil
	}

	ids := make([]string, len(fresh))
	for i, f := range fresh {
		ids[i] = f.ResourceID
	}
	existing, err := s.store.ListWasteFindings(ctx, model.WasteFilter{ResourceIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("listing prior findings: %w", err)
	}
	prior := make(map[string]*model.WasteFinding, len(existing))
	for i := range existing {
		prior[existing[i].ResourceID] = &existing[i]
	}

	merged := make([]model.WasteFinding, len(fresh))
	var created []model.WasteFinding
	for i, f := range fresh {
		p := prior[f.ResourceID]
		merged[i] = Merge(p, f)
		if p == nil {
			result.Created++
			created = append(created, merged[i])
		} else {
			result.Updated++
		}
	}

	if err := s.store.UpsertWasteFindings(ctx, merged); err != nil {
		return nil, fmt.Errorf("saving findings: %w", err)
	}

	s.logger.Info("waste detection pass complete",
		"examined", result.Examined, "flagged", result.Flagged, "created", result.Created, "updated", result.Updated)
	s.notify(ctx, created)
	return result, nil
}

// notify announces new findings of high or critical severity. Delivery failures are logged.
func (s *Service) notify(ctx context.Context, created []model.WasteFinding) {
	if s.notifier == nil {
		return
	}
	for _, f := range created {
		if f.Severity.Rank() < model.SeverityHigh.Rank() {
			continue
		}
		if err := s.notifier.SendWasteAlert(ctx, f); err != nil {
			s.logger.Warn("waste alert not delivered", "finding_id", f.ID, "error", err)
		}
	}
}

// List returns matching findings sorted by severity and savings, with their summary.
func (s *Service) List(ctx context.Context, filter model.WasteFilter) (*model.WasteReport, error) {
	findings, err := s.store.ListWasteFindings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing findings: %w", err)
	}
	if findings == nil {
		findings = []model.WasteFinding{}
	}
	Sort(findings)
	return &model.WasteReport{Findings: findings, Summary: Summarize(findings)}, nil
}

// UpdateStatus moves a finding forward in its lifecycle. Setting the current status again
// is a no-op; moving backwards fails with model.ErrInvalidTransition.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.WasteStatus) (*model.WasteFinding, error) {
	if !status.Valid() {
		return nil, model.NewInputError("status", string(status), "must be one of open, acknowledged, resolved")
	}
	f, err := s.store.GetWasteFinding(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Status == status {
		return f, nil
	}
	if !f.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("waste finding %s %s -> %s: %w", id, f.Status, status, model.ErrInvalidTransition)
	}

	now := s.now()
	var resolvedAt *time.Time
	if status == model.WasteStatusResolved {
		resolvedAt = &now
	}
	if err := s.store.UpdateWasteStatus(ctx, id, status, resolvedAt, now); err != nil {
		return nil, err
	}
	f.Status = status
	f.UpdatedAt = now
	if resolvedAt != nil {
		f.ResolvedAt = resolvedAt
	}
	return f, nil
}
