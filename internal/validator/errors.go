package validator

import (
	"fmt"
	"strings"
)

// ValidationError carries the error findings of a failed validation.
type ValidationError struct {
	Findings []Finding
}

func (e *ValidationError) Error() string {
	return summarize("validation error", e.Findings)
}

// ValidationWarning carries warning findings. It never blocks rendering.
type ValidationWarning struct {
	Findings []Finding
}

func (e *ValidationWarning) Error() string {
	return summarize("validation warning", e.Findings)
}

func summarize(noun string, fs []Finding) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = fmt.Sprintf("%s: %s", f.Key, f.Message)
	}
	return fmt.Sprintf("%d %s(s): %s", len(fs), noun, strings.Join(parts, "; "))
}

// Errors returns a *ValidationError holding the error findings of fs, or
// nil when there are none.
func Errors(fs []Finding) error {
	errs := Filter(fs, SeverityError)
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Findings: errs}
}

// Warnings returns a *ValidationWarning holding the warning findings of fs,
// or nil when there are none.
func Warnings(fs []Finding) error {
	warns := Filter(fs, SeverityWarning)
	if len(warns) == 0 {
		return nil
	}
	return &ValidationWarning{Findings: warns}
}

// HasErrors reports whether any finding is an error.
func HasErrors(fs []Finding) bool {
	for _, f := range fs {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of error and warning findings.
func Count(fs []Finding) (errs, warns int) {
	for _, f := range fs {
		switch f.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warns++
		}
	}
	return errs, warns
}

// Filter returns the findings of the given severity, in order.
func Filter(fs []Finding, sev Severity) []Finding {
	var out []Finding
	for _, f := range fs {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}
