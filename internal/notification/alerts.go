package notification

import (
	"context"
	"fmt"

	"github.com/fredphp/yunwei/internal/model"
)

func usd(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// SendBudgetAlert announces that an account crossed its alert threshold or its budget.
func (s *Service) SendBudgetAlert(ctx context.Context, alert model.BudgetAlert, account model.CloudAccount) error {
	name := account.Name
	if name == "" {
		name = account.AccountID
	}

	msg := Message{
		EventType: EventBudgetWarning,
		Title:     fmt.Sprintf("Budget Warning: %s", name),
		Body:      alert.Message,
		Severity:  string(model.SeverityMedium),
		AccountID: alert.AccountID,
		Amount:    alert.CurrentSpend,
		Facts: []Fact{
			{"Account", name},
			{"Provider", string(account.Provider)},
			{"Period", alert.Period},
			{"Budget", usd(alert.BudgetAmount)},
			{"Spent", usd(alert.CurrentSpend)},
			{"Threshold", fmt.Sprintf("%.0f%%", alert.Threshold)},
		},
	}
	if alert.AlertType == model.AlertTypeExceeded {
		msg.EventType = EventBudgetExceeded
		msg.Title = fmt.Sprintf("Budget Exceeded: %s", name)
		msg.Severity = string(model.SeverityHigh)
		msg.Facts = append(msg.Facts, Fact{"Over by", usd(alert.CurrentSpend - alert.BudgetAmount)})
	}
	return s.Send(ctx, msg)
}

// SendWasteAlert announces a newly detected waste finding.
func (s *Service) SendWasteAlert(ctx context.Context, f model.WasteFinding) error {
	name := f.ResourceName
	if name == "" {
		name = f.ResourceID
	}
	return s.Send(ctx, Message{
		EventType:  EventWasteDetected,
		Title:      fmt.Sprintf("Wasted Resource: %s (%s)", name, f.WasteType),
		Body:       fmt.Sprintf("%s\n*Recommendation:* %s", f.Reason, f.Recommendation),
		Severity:   string(f.Severity),
		AccountID:  f.AccountID,
		ResourceID: f.ResourceID,
		Amount:     f.EstimatedSavings,
		Facts: []Fact{
			{"Resource", name},
			{"Type", f.ResourceType},
			{"Waste", string(f.WasteType)},
			{"Severity", string(f.Severity)},
			{"CPU avg", fmt.Sprintf("%.1f%%", f.AvgCPU)},
			{"Savings", usd(f.EstimatedSavings) + "/mo"},
		},
	})
}
