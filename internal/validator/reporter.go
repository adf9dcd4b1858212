package validator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Report is the JSON form of a validation outcome.
type Report struct {
	Role         string    `json:"role"`
	Valid        bool      `json:"valid"`
	ErrorCount   int       `json:"errorCount"`
	WarningCount int       `json:"warningCount"`
	Findings     []Finding `json:"findings"`
}

// FormatFinding formats a single finding for terminal output.
func FormatFinding(f Finding) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s[%s] %s: %s", f.Severity, f.Rule, f.Key, f.Message))
	if len(f.Related) > 0 {
		sb.WriteString(fmt.Sprintf("\n  related: %s", strings.Join(f.Related, ", ")))
	}
	return sb.String()
}

// FormatFindings formats all findings followed by a summary line. It
// returns "" when there are no findings.
func FormatFindings(role string, fs []Finding) string {
	if len(fs) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, f := range fs {
		sb.WriteString(FormatFinding(f))
		sb.WriteString("\n")
	}

	errs, warns := Count(fs)
	sb.WriteString("\n")
	if errs > 0 {
		sb.WriteString(fmt.Sprintf("❌ Role '%s': %d error(s), %d warning(s)\n", role, errs, warns))
	} else {
		sb.WriteString(fmt.Sprintf("⚠️  Role '%s': %d warning(s)\n", role, warns))
	}
	return sb.String()
}

// FormatCI formats findings as GitHub Actions annotations. file names the
// layer file the annotations point at.
func FormatCI(file string, fs []Finding) string {
	var sb strings.Builder
	for _, f := range fs {
		level := "error"
		if f.Severity == SeverityWarning {
			level = "warning"
		}
		sb.WriteString(fmt.Sprintf("::%s file=%s,title=%s::%s: %s\n", level, file, f.Rule, f.Key, escapeAnnotation(f.Message)))
	}
	return sb.String()
}

// escapeAnnotation applies the workflow command escaping for messages.
func escapeAnnotation(s string) string {
	return strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A").Replace(s)
}

// FormatJSON formats findings as an indented JSON report.
func FormatJSON(role string, fs []Finding) (string, error) {
	errs, warns := Count(fs)
	report := Report{
		Role:         role,
		Valid:        errs == 0,
		ErrorCount:   errs,
		WarningCount: warns,
		Findings:     fs,
	}
	if report.Findings == nil {
		report.Findings = []Finding{}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal findings: %w", err)
	}
	return string(data), nil
}
