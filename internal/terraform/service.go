package terraform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/repository"
)

// Store is the part of the store plans are built from.
type Store interface {
	repository.ResourceReader
	ListWasteFindings(ctx context.Context, filter model.WasteFilter) ([]model.WasteFinding, error)
}

// Service builds validated remediation plans.
type Service struct {
	store     Store
	generator *Generator
	validator *Validator
	logger    *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, generator: NewGenerator(), validator: NewValidator(), logger: logger}
}

// Plan renders the findings matching filter. The HCL is parsed back before it is returned.
func (s *Service) Plan(ctx context.Context, filter model.WasteFilter) (*Plan, error) {
	findings, err := s.store.ListWasteFindings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing waste findings: %w", err)
	}

	resources := make(map[string]model.Resource)
	if len(findings) > 0 {
		ids := make([]string, 0, len(findings))
		for _, f := range findings {
			ids = append(ids, f.ResourceID)
		}
		list, err := s.store.ListResources(ctx, model.ResourceFilter{IDs: ids})
		if err != nil {
			return nil, fmt.Errorf("listing resources: %w", err)
		}
		for _, r := range list {
			resources[r.ID] = r
		}
	}

	plan := s.generator.Generate(findings, resources)
	formatted, err := s.validator.ValidateAndFormat(plan.HCL)
	if err != nil {
		return nil, fmt.Errorf("rendering remediation plan: %w", err)
	}
	plan.HCL = formatted

	s.logger.Info("remediation plan generated", "steps", len(plan.Steps), "skipped", len(plan.Skipped))
	return plan, nil
}
