package idle

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

// Store is the data the idle tracker reads and writes.
type Store interface {
	repository.ResourceReader
	repository.UsageReader
	repository.IdleRepository
}

// Service runs tracking passes and serves finding lists.
type Service struct {
	store  Store
	usage  *usage.Service
	policy config.IdlePolicy
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, policy config.IdlePolicy, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		usage:  usage.NewService(store),
		policy: policy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run classifies every resource matching filter. New findings start active; open findings
// get fresh metrics; actioned and dismissed findings are not touched.
func (s *Service) Run(ctx context.Context, filter model.ResourceFilter) (*model.PassResult, error) {
	now := s.now()
	resources, err := s.store.ListResources(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}

	result := &model.PassResult{Examined: len(resources)}
	var fresh []model.IdleFinding
	for _, r := range resources {
		var samples []model.UsageSample
		if r.Status == model.ResourceStatusRunning {
			if samples, err = s.usage.Window(ctx, r.ID, s.policy.SampleWindow); err != nil {
				return nil, err
			}
		}
		if f, ok := Track(r, samples, s.policy, now); ok {
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
	existing, err := s.store.ListIdleFindings(ctx, model.IdleFilter{ResourceIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("listing prior findings: %w", err)
	}
	prior := make(map[string]*model.IdleFinding, len(existing))
	for i := range existing {
		prior[existing[i].ResourceID] = &existing[i]
	}

	var merged []model.IdleFinding
	for _, f := range fresh {
		p := prior[f.ResourceID]
		m, ok := Merge(p, f)
		if !ok {
			continue
		}
		if p == nil {
			result.Created++
		} else {
			result.Updated++
		}
		merged = append(merged, m)
	}

	if err := s.store.UpsertIdleFindings(ctx, merged); err != nil {
		return nil, fmt.Errorf("saving findings: %w", err)
	}
	s.logger.Info("idle tracking pass complete",
		"examined", result.Examined, "flagged", result.Flagged, "created", result.Created, "updated", result.Updated)
	return result, nil
}

// List returns matching findings sorted by savings and idle days, with their summary.
func (s *Service) List(ctx context.Context, filter model.IdleFilter) (*model.IdleReport, error) {
	findings, err := s.store.ListIdleFindings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing findings: %w", err)
	}
	if findings == nil {
		findings = []model.IdleFinding{}
	}
	Sort(findings)
	return &model.IdleReport{Findings: findings, Summary: Summarize(findings)}, nil
}

// UpdateStatus moves a finding along active -> reviewing -> actioned | dismissed.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.IdleStatus) (*model.IdleFinding, error) {
	if !status.Valid() {
		return nil, model.NewInputError("status", string(status), "must be one of active, reviewing, actioned, dismissed")
	}
	f, err := s.store.GetIdleFinding(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Status == status {
		return f, nil
	}
	if !f.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("idle finding %s %s -> %s: %w", id, f.Status, status, model.ErrInvalidTransition)
	}

	now := s.now()
	if err := s.store.UpdateIdleStatus(ctx, id, status, now); err != nil {
		return nil, err
	}
	f.Status = status
	f.UpdatedAt = now
	return f, nil
}
