// pkg/rules/report.go
package rules

import (
	"fmt"
	"strings"

	"github.com/meridian-data/etl-runner/pkg/model"
)

// RenderQualityReport formats a run's validation outcome as a human-readable
// summary, grouping rejected records' issues by rule kind.
func RenderQualityReport(report *model.RunReport) string {
	var sb strings.Builder
	divider := strings.Repeat("=", 60)

	sb.WriteString(divider + "\n")
	sb.WriteString("DATA QUALITY REPORT\n")
	sb.WriteString(divider + "\n")
	sb.WriteString(fmt.Sprintf("Run:              %s\n", report.RunID))
	sb.WriteString(fmt.Sprintf("Source:           %s\n", report.SourceID))
	sb.WriteString(fmt.Sprintf("Window:           %s\n", report.Window))
	sb.WriteString(fmt.Sprintf("State:            %s\n", report.State))
	sb.WriteString(fmt.Sprintf("Records Extracted: %d\n", report.RecordsExtracted))
	sb.WriteString(fmt.Sprintf("Records Valid:     %d\n", report.RecordsValid))
	sb.WriteString(fmt.Sprintf("Records Invalid:   %d\n", report.RecordsInvalid))
	sb.WriteString(fmt.Sprintf("Records Loaded:    %d\n", report.RecordsLoaded))
	sb.WriteString(divider + "\n")

	byRule := make(map[model.RuleKind]int)
	var details []string
	for _, rec := range report.Rejected {
		for _, iss := range rec.Issues() {
			byRule[iss.Rule]++
			details = append(details, fmt.Sprintf("record %s: %s", rec.ID(), iss))
		}
	}

	if len(details) == 0 && len(report.Errors) == 0 {
		sb.WriteString("No data quality issues found.\n")
		return sb.String()
	}

	if len(details) > 0 {
		sb.WriteString("ISSUES BY RULE:\n")
		for _, kind := range []model.RuleKind{
			model.RuleNotNull,
			model.RuleRegexMatch,
			model.RuleNumericRange,
			model.RuleNotFutureDate,
			model.RuleUniqueKey,
		} {
			if count := byRule[kind]; count > 0 {
				sb.WriteString(fmt.Sprintf("  %-16s %d\n", kind, count))
			}
		}
		sb.WriteString("\nDETAILS:\n")
		for i, d := range details {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, d))
		}
	}

	if len(report.Errors) > 0 {
		sb.WriteString("\nRUN ERRORS:\n")
		for i, e := range report.Errors {
			sb.WriteString(fmt.Sprintf("%d. [%s attempt %d] %s\n", i+1, e.Stage, e.Attempt, e.Message))
		}
	}

	return sb.String()
}
