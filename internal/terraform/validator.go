package terraform

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// ValidationResult reports the diagnostics of parsing a plan.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Warnings  []ValidationError `json:"warnings,omitempty"`
	Blocks    int               `json:"blocks"`
	Formatted string            `json:"formatted,omitempty"`
}

type ValidationError struct {
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// Validator parses generated HCL back to catch rendering mistakes.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate parses src and counts its top-level blocks.
func (v *Validator) Validate(src string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	// A fresh parser per call; hclparse.Parser caches files by name.
	file, diags := hclparse.NewParser().ParseHCL([]byte(src), "remediation.tf")
	for _, diag := range diags {
		verr := ValidationError{Message: diag.Summary}
		if diag.Detail != "" {
			verr.Message += ": " + diag.Detail
		}
		if diag.Subject != nil {
			verr.Line = diag.Subject.Start.Line
			verr.Column = diag.Subject.Start.Column
		}
		if diag.Severity == hcl.DiagError {
			result.Valid = false
			result.Errors = append(result.Errors, verr)
		} else {
			result.Warnings = append(result.Warnings, verr)
		}
	}

	if result.Valid && file != nil {
		if content, _, d := file.Body.PartialContent(&hcl.BodySchema{Blocks: []hcl.BlockHeaderSchema{
			{Type: "import"},
			{Type: "resource", LabelNames: []string{"type", "name"}},
		}}); !d.HasErrors() {
			result.Blocks = len(content.Blocks)
		}
		result.Formatted = string(hclwrite.Format([]byte(src)))
	}
	return result
}

// ValidateAndFormat returns the canonically formatted src, or an error listing every
// parse error.
func (v *Validator) ValidateAndFormat(src string) (string, error) {
	result := v.Validate(src)
	if !result.Valid {
		msgs := make([]string, 0, len(result.Errors))
		for _, err := range result.Errors {
			if err.Line > 0 {
				msgs = append(msgs, fmt.Sprintf("line %d: %s", err.Line, err.Message))
			} else {
				msgs = append(msgs, err.Message)
			}
		}
		return "", fmt.Errorf("HCL validation failed: %s", strings.Join(msgs, "; "))
	}
	return result.Formatted, nil
}
