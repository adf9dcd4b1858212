package drift

import (
	"encoding/json"
	"fmt"
	"strings"
)

const redacted = "<redacted>"

func (c KeyDrift) shown() (baseline, current string) {
	if c.Secret {
		return redacted, redacted
	}
	return c.BaselineValue, c.CurrentValue
}

// source names the baseline: its name when known, else its config version.
func (r DriftReport) source() string {
	if r.Baseline != "" {
		return fmt.Sprintf("'%s'", r.Baseline)
	}
	return r.BaselineHash
}

const skippedNote = "secret values were not compared: the baseline was digested under a different key"

// FormatCLI formats drift report for terminal output.
func FormatCLI(report DriftReport) string {
	if !report.HasDrift {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⚠️  Configuration drift detected since baseline %s:\n", report.source()))
	if report.RoleChanged() {
		sb.WriteString(fmt.Sprintf("  ~ role: %s → %s\n", report.BaselineRole, report.CurrentRole))
	}

	for _, change := range report.Changes {
		old, cur := change.shown()
		switch change.Type {
		case DriftAdded:
			sb.WriteString(fmt.Sprintf("  + %s: (new) → %s\n", change.Key, cur))
		case DriftRemoved:
			sb.WriteString(fmt.Sprintf("  - %s: %s → (removed)\n", change.Key, old))
		case DriftChanged:
			sb.WriteString(fmt.Sprintf("  ~ %s: %s → %s\n", change.Key, old, cur))
		}
	}

	if report.SecretsSkipped {
		sb.WriteString("  ? " + skippedNote + "\n")
	}

	sb.WriteString("\nResolution continues.\n")
	return sb.String()
}

// FormatCI formats drift report as GitHub Actions warning annotations
// against file.
func FormatCI(file string, report DriftReport) string {
	if !report.HasDrift {
		return ""
	}

	var sb strings.Builder
	if report.RoleChanged() {
		sb.WriteString(fmt.Sprintf("::warning file=%s::Config drift: role changed from '%s' to '%s'\n", file, report.BaselineRole, report.CurrentRole))
	}

	for _, change := range report.Changes {
		old, cur := change.shown()
		var msg string
		switch change.Type {
		case DriftAdded:
			msg = fmt.Sprintf("Config drift: %s added (value: %s)", change.Key, cur)
		case DriftRemoved:
			msg = fmt.Sprintf("Config drift: %s removed (was: %s)", change.Key, old)
		case DriftChanged:
			msg = fmt.Sprintf("Config drift: %s changed from '%s' to '%s'", change.Key, old, cur)
		}
		sb.WriteString(fmt.Sprintf("::warning file=%s::%s\n", file, msg))
	}

	if report.SecretsSkipped {
		sb.WriteString(fmt.Sprintf("::notice file=%s::%s\n", file, skippedNote))
	}

	sb.WriteString(fmt.Sprintf("\n⚠️  Configuration drift detected: %d change(s) since baseline %s\n", len(report.Changes), report.source()))
	return sb.String()
}

// FormatJSON formats drift report as JSON. Secret values are digests.
func FormatJSON(report DriftReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
