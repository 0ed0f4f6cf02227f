// Package terraform turns open waste findings into a reviewable Terraform remediation plan.
package terraform

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/fredphp/yunwei/internal/model"
)

// Action is the remediation chosen for one finding.
type Action string

const (
	ActionRightsize Action = "rightsize"
	ActionStop      Action = "stop"
	ActionDelete    Action = "delete"
)

// Step is one remediated finding within a plan.
type Step struct {
	FindingID     string   `json:"finding_id"`
	ResourceID    string   `json:"resource_id"`
	Address       string   `json:"address"`
	Action        Action   `json:"action"`
	ImportCommand string   `json:"import_command"`
	Warnings      []string `json:"warnings,omitempty"`
	Savings       float64  `json:"monthly_savings"`
}

// Plan is the generated HCL plus what it covers.
type Plan struct {
	HCL     string   `json:"hcl"`
	Steps   []Step   `json:"steps"`
	Skipped []string `json:"skipped,omitempty"`
	Savings float64  `json:"monthly_savings"`
}

// Generator renders plans with hclwrite.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a Generator.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Generate renders one block group per finding it knows how to remediate. resources maps
// internal resource ids onto the resources the findings point at; findings whose resource
// is missing or of an unsupported kind are listed in Skipped.
func (g *Generator) Generate(findings []model.WasteFinding, resources map[string]model.Resource) *Plan {
	findings = append([]model.WasteFinding(nil), findings...)
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].ResourceID < findings[j].ResourceID })

	f := hclwrite.NewEmptyFile()
	body := f.Body()
	comment(body, fmt.Sprintf("Remediation plan generated %s. Review every block before applying.",
		g.now().UTC().Format(time.RFC3339)))

	plan := &Plan{Steps: []Step{}}
	used := make(map[string]int)
	for _, finding := range findings {
		r, ok := resources[finding.ResourceID]
		if !ok || r.ResourceID == "" {
			plan.Skipped = append(plan.Skipped, finding.ID)
			continue
		}
		kind, ok := kindOf(r)
		if !ok {
			plan.Skipped = append(plan.Skipped, finding.ID)
			continue
		}
		action, ok := actionFor(finding, r, kind)
		if !ok {
			plan.Skipped = append(plan.Skipped, finding.ID)
			continue
		}

		name := label(r)
		if n := used[name]; n > 0 {
			used[name]++
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			used[name] = 1
		}

		body.AppendNewline()
		step := write(body, finding, r, kind, action, name)
		plan.Steps = append(plan.Steps, step)
		plan.Savings += finding.EstimatedSavings
	}

	plan.HCL = string(hclwrite.Format(f.Bytes()))
	return plan
}

type kind struct {
	resourceType string
	sizeAttr     string
}

var (
	instanceKind = kind{"aws_instance", "instance_type"}
	volumeKind   = kind{"aws_ebs_volume", ""}
	databaseKind = kind{"aws_db_instance", "instance_class"}
)

func kindOf(r model.Resource) (kind, bool) {
	switch {
	case strings.HasPrefix(r.Type, "ebs."):
		return volumeKind, true
	case strings.HasPrefix(r.Type, "db."):
		return databaseKind, true
	case r.Category == model.CategoryCompute && strings.HasPrefix(r.ResourceID, "i-"):
		return instanceKind, true
	}
	return kind{}, false
}

func actionFor(f model.WasteFinding, r model.Resource, k kind) (Action, bool) {
	switch f.WasteType {
	case model.WasteOverprovisioned:
		if k.sizeAttr == "" || Downsize(r.Type) == "" {
			return "", false
		}
		return ActionRightsize, true
	case model.WasteZombie:
		return ActionDelete, true
	case model.WasteUnused, model.WasteOrphaned:
		if k == volumeKind {
			return ActionDelete, true
		}
		if k == instanceKind {
			return ActionStop, true
		}
	}
	return "", false
}

func write(body *hclwrite.Body, f model.WasteFinding, r model.Resource, k kind, action Action, name string) Step {
	address := k.resourceType + "." + name
	step := Step{
		FindingID:     f.ID,
		ResourceID:    r.ResourceID,
		Address:       address,
		Action:        action,
		ImportCommand: fmt.Sprintf("terraform import %s %s", address, r.ResourceID),
		Savings:       f.EstimatedSavings,
	}

	comment(body, fmt.Sprintf("%s %s (%s): %s", action, r.ResourceID, f.WasteType, f.Reason))
	comment(body, fmt.Sprintf("Estimated savings: $%.2f/month", f.EstimatedSavings))

	imp := body.AppendNewBlock("import", nil)
	imp.Body().SetAttributeTraversal("to", hcl.Traversal{
		hcl.TraverseRoot{Name: k.resourceType},
		hcl.TraverseAttr{Name: name},
	})
	imp.Body().SetAttributeValue("id", cty.StringVal(r.ResourceID))
	body.AppendNewline()

	switch action {
	case ActionRightsize:
		res := body.AppendNewBlock("resource", []string{k.resourceType, name})
		res.Body().SetAttributeValue(k.sizeAttr, cty.StringVal(Downsize(r.Type)))
		tags(res.Body(), r)
		if k == instanceKind {
			step.Warnings = append(step.Warnings, "Instance will be stopped and started")
		} else {
			step.Warnings = append(step.Warnings, "Brief downtime during modification")
		}

	case ActionStop:
		res := body.AppendNewBlock("resource", []string{k.resourceType, name})
		tags(res.Body(), r)
		body.AppendNewline()
		state := body.AppendNewBlock("resource", []string{"aws_ec2_instance_state", name})
		state.Body().SetAttributeTraversal("instance_id", hcl.Traversal{
			hcl.TraverseRoot{Name: k.resourceType},
			hcl.TraverseAttr{Name: name},
			hcl.TraverseAttr{Name: "id"},
		})
		state.Body().SetAttributeValue("state", cty.StringVal("stopped"))
		step.Warnings = append(step.Warnings, "Instance will be stopped")

	case ActionDelete:
		res := body.AppendNewBlock("resource", []string{k.resourceType, name})
		tags(res.Body(), r)
		comment(body, fmt.Sprintf("After import: terraform destroy -target=%s", address))
		step.Warnings = append(step.Warnings, "DESTRUCTIVE: Resource will be permanently deleted")
	}
	return step
}

func tags(body *hclwrite.Body, r model.Resource) {
	if len(r.Tags) == 0 {
		return
	}
	vals := make(map[string]cty.Value, len(r.Tags))
	for k, v := range r.Tags {
		vals[k] = cty.StringVal(v)
	}
	body.SetAttributeValue("tags", cty.MapVal(vals))
}

func comment(body *hclwrite.Body, text string) {
	text = strings.ReplaceAll(text, "\n", " ")
	body.AppendUnstructuredTokens(hclwrite.Tokens{{
		Type:  hclsyntax.TokenComment,
		Bytes: []byte("# " + text + "\n"),
	}})
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// label derives a Terraform resource name from the resource's name or provider id.
func label(r model.Resource) string {
	s := r.Name
	if s == "" {
		s = r.ResourceID
	}
	s = strings.Trim(nonIdent.ReplaceAllString(strings.ToLower(s), "_"), "_-")
	if s == "" {
		return "resource"
	}
	if c := s[0]; !(c >= 'a' && c <= 'z') && c != '_' {
		s = "r_" + s
	}
	return s
}

var sizes = []string{"nano", "micro", "small", "medium", "large", "xlarge", "2xlarge", "4xlarge", "8xlarge", "12xlarge", "16xlarge", "24xlarge"}

// Downsize returns the next size down within the same family, such as m5.large for
// m5.xlarge or db.r5.large for db.r5.xlarge. It returns "" for the smallest size or an
// unrecognized type.
func Downsize(instanceType string) string {
	i := strings.LastIndex(instanceType, ".")
	if i < 0 {
		return ""
	}
	family, size := instanceType[:i], instanceType[i+1:]
	for j, s := range sizes {
		if s == size && j > 0 {
			return family + "." + sizes[j-1]
		}
	}
	return ""
}
