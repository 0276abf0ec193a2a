package validation

import (
	"fmt"
	"strings"

	"media-pipeline-go/pkg/job"
)

// Report renders a human readable validation report
func Report(result *job.ValidationResult) string {
	var b strings.Builder

	status := "FAILED"
	if result.IsValid {
		status = "PASSED"
	}

	b.WriteString("=== VALIDATION REPORT ===\n")
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Quality Score: %.2f/1.00\n", result.QualityScore)
	fmt.Fprintf(&b, "Processing Time: %.2fs\n\n", result.ProcessingTime.Seconds())

	if len(result.Issues) > 0 {
		b.WriteString("ISSUES:\n")
		for _, issue := range result.Issues {
			fmt.Fprintf(&b, "  - %s\n", issue)
		}
		b.WriteString("\n")
	}

	if len(result.Warnings) > 0 {
		b.WriteString("WARNINGS:\n")
		for _, warning := range result.Warnings {
			fmt.Fprintf(&b, "  - %s\n", warning)
		}
		b.WriteString("\n")
	}

	if len(result.Issues) == 0 && len(result.Warnings) == 0 {
		b.WriteString("No issues found\n\n")
	}

	b.WriteString("=== END REPORT ===\n")
	return b.String()
}
