// Package jdschema checks a dissected job description before it may drive
// assessment generation.
package jdschema

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/hirelens/assessment-api/internal/types"
)

const (
	// Allowed distance of the competency weight sum from 1.0
	WeightTolerance = 0.05
	MaxCompetencies = 5
)

var toolLikeName = regexp.MustCompile(
	`(?i)^(excel|word|figma|slack|jira|asana|notion|python|javascript|sql|react|node)`,
)

// Validate applies the structural and business rules to a parsed job description.
// Errors block generation, warnings are advisory.
func Validate(p *types.ParsedJD) types.SchemaValidation {
	errs := []string{}
	warnings := []string{}

	if !slices.Contains(types.Functions, p.Function) {
		errs = append(errs, fmt.Sprintf(
			"Invalid function %q. Must be one of: %s",
			p.Function,
			joinEnum(types.Functions),
		))
	}

	if !slices.Contains(types.Seniorities, p.Seniority) {
		errs = append(errs, fmt.Sprintf(
			"Invalid seniority %q. Must be one of: %s",
			p.Seniority,
			joinEnum(types.Seniorities),
		))
	}

	switch n := len(p.CoreCompetencies); {
	case n == 0:
		errs = append(errs, "No competencies extracted")
	case n > MaxCompetencies:
		errs = append(errs, fmt.Sprintf(
			"Too many competencies (%d). Maximum is %d",
			n,
			MaxCompetencies,
		))
	}

	if len(p.CoreCompetencies) > 0 {
		sum := WeightSum(p.CoreCompetencies)
		if math.Abs(sum-1.0) > WeightTolerance {
			errs = append(errs, fmt.Sprintf("Competency weights sum to %.2f, not 1.0", sum))
		}
	}

	for _, c := range p.CoreCompetencies {
		if toolLikeName.MatchString(strings.TrimSpace(c.Name)) {
			warnings = append(warnings, fmt.Sprintf("%q looks like a tool, not a competency", c.Name))
		}
	}

	if p.ConfidenceScore < 0 || p.ConfidenceScore > 1 {
		warnings = append(warnings, fmt.Sprintf(
			"Confidence score %v is outside [0, 1]",
			p.ConfidenceScore,
		))
	}

	if strings.TrimSpace(p.RoleFamily) == "" {
		warnings = append(warnings, "Missing role_family")
	}
	if strings.TrimSpace(p.DecisionContext) == "" {
		warnings = append(warnings, "Missing decision_context")
	}

	return types.SchemaValidation{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

func WeightSum(competencies []types.Competency) float64 {
	sum := 0.0
	for _, c := range competencies {
		sum += c.Weight
	}
	return sum
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
