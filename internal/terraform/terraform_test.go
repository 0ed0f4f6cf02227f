package terraform

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/repository"
)

func fixtures() ([]model.WasteFinding, map[string]model.Resource) {
	resources := map[string]model.Resource{
		"r1": {ID: "r1", ResourceID: "i-1", Name: "API server", Type: "m5.xlarge", Category: model.CategoryCompute,
			Tags: model.Tags{"team": "core"}},
		"r2": {ID: "r2", ResourceID: "vol-1", Type: "ebs.gp3", Category: model.CategoryStorage},
		"r3": {ID: "r3", ResourceID: "i-3", Name: "tiny", Type: "t3.nano", Category: model.CategoryCompute},
		"r5": {ID: "r5", ResourceID: "i-5", Name: "batch", Type: "c5.large", Category: model.CategoryCompute},
	}
	findings := []model.WasteFinding{
		{ID: "f5", ResourceID: "r5", WasteType: model.WasteUnused, EstimatedSavings: 55.08, Status: model.WasteStatusOpen},
		{ID: "f1", ResourceID: "r1", WasteType: model.WasteOverprovisioned, EstimatedSavings: 69.12, Status: model.WasteStatusOpen},
		{ID: "f2", ResourceID: "r2", WasteType: model.WasteUnused, EstimatedSavings: 7.2, Status: model.WasteStatusOpen},
		{ID: "f3", ResourceID: "r3", WasteType: model.WasteOverprovisioned, EstimatedSavings: 1, Status: model.WasteStatusOpen},
		{ID: "f4", ResourceID: "r4", WasteType: model.WasteZombie, EstimatedSavings: 10, Status: model.WasteStatusOpen},
	}
	return findings, resources
}

func TestGenerate(t *testing.T) {
	g := NewGenerator()
	g.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	findings, resources := fixtures()

	plan := g.Generate(findings, resources)

	require.Len(t, plan.Steps, 3)
	assert.Equal(t, []string{"f3", "f4"}, plan.Skipped)
	assert.InDelta(t, 131.4, plan.Savings, 1e-9)

	rightsize := plan.Steps[0]
	assert.Equal(t, "aws_instance.api_server", rightsize.Address)
	assert.Equal(t, ActionRightsize, rightsize.Action)
	assert.Equal(t, "terraform import aws_instance.api_server i-1", rightsize.ImportCommand)

	assert.Equal(t, ActionDelete, plan.Steps[1].Action)
	assert.Equal(t, "aws_ebs_volume.vol-1", plan.Steps[1].Address)
	assert.Contains(t, plan.Steps[1].Warnings[0], "DESTRUCTIVE")

	assert.Equal(t, ActionStop, plan.Steps[2].Action)

	assert.Contains(t, plan.HCL, `instance_type = "m5.large"`)
	assert.Contains(t, plan.HCL, `to = aws_instance.api_server`)
	assert.Contains(t, plan.HCL, `instance_id = aws_instance.batch.id`)
	assert.Contains(t, plan.HCL, "# Remediation plan generated 2024-06-01T00:00:00Z")

	result := NewValidator().Validate(plan.HCL)
	assert.True(t, result.Valid, "%v", result.Errors)
	assert.Equal(t, 7, result.Blocks)
}

func TestGenerateDeduplicatesNames(t *testing.T) {
	resources := map[string]model.Resource{
		"a": {ID: "a", ResourceID: "vol-a", Name: "data", Type: "ebs.gp2"},
		"b": {ID: "b", ResourceID: "vol-b", Name: "data", Type: "ebs.gp2"},
	}
	findings := []model.WasteFinding{
		{ID: "fa", ResourceID: "a", WasteType: model.WasteZombie},
		{ID: "fb", ResourceID: "b", WasteType: model.WasteZombie},
	}

	plan := NewGenerator().Generate(findings, resources)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "aws_ebs_volume.data", plan.Steps[0].Address)
	assert.Equal(t, "aws_ebs_volume.data_2", plan.Steps[1].Address)
	assert.True(t, NewValidator().Validate(plan.HCL).Valid)
}

func TestDownsize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"m5.xlarge", "m5.large"},
		{"m5.2xlarge", "m5.xlarge"},
		{"t3.medium", "t3.small"},
		{"db.r5.large", "db.r5.medium"},
		{"t3.nano", ""},
		{"custom", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Downsize(tt.in))
		})
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "api_server", label(model.Resource{Name: "API server"}))
	assert.Equal(t, "i-0abc", label(model.Resource{ResourceID: "i-0abc"}))
	assert.Equal(t, "r_42-web", label(model.Resource{Name: "42-web"}))
	assert.Equal(t, "resource", label(model.Resource{Name: "***"}))
}

func TestValidateRejectsBrokenHCL(t *testing.T) {
	v := NewValidator()

	result := v.Validate(`resource "aws_instance" "x" {`)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)

	_, err := v.ValidateAndFormat(`resource "aws_instance" "x" {`)
	assert.ErrorContains(t, err, "HCL validation failed")

	formatted, err := v.ValidateAndFormat("resource \"aws_instance\" \"x\" {\ninstance_type=\"t3.small\"\n}\n")
	require.NoError(t, err)
	assert.Contains(t, formatted, `  instance_type = "t3.small"`)
}

func TestServicePlan(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	findings, resources := fixtures()
	list := make([]model.Resource, 0, len(resources))
	for _, r := range resources {
		list = append(list, r)
	}
	require.NoError(t, store.UpsertResources(ctx, list))
	findings[0].Status = model.WasteStatusResolved
	require.NoError(t, store.UpsertWasteFindings(ctx, findings))

	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	plan, err := svc.Plan(ctx, model.WasteFilter{Statuses: []model.WasteStatus{model.WasteStatusOpen}})

	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2, "resolved findings are left out")
	assert.NotContains(t, plan.HCL, "aws_ec2_instance_state")
}
