package drift

import (
	"sort"

	"topo/internal/artifact"
)

// DriftType is the kind of change a key went through.
type DriftType string

const (
	DriftAdded   DriftType = "added"
	DriftRemoved DriftType = "removed"
	DriftChanged DriftType = "changed"
)

// KeyDrift represents a single key's drift. Values of secret keys are
// digests.
type KeyDrift struct {
	Key           string    `json:"key"`
	Type          DriftType `json:"type"`
	Secret        bool      `json:"secret,omitempty"`
	BaselineValue string    `json:"baselineValue,omitempty"`
	CurrentValue  string    `json:"currentValue,omitempty"`
}

// DriftReport is the result of comparing two artifacts.
type DriftReport struct {
	HasDrift     bool       `json:"hasDrift"`
	Baseline     string     `json:"baseline,omitempty"`
	BaselineRole string     `json:"baselineRole"`
	CurrentRole  string     `json:"currentRole"`
	BaselineHash string     `json:"baselineHash"`
	CurrentHash  string     `json:"currentHash"`
	Changes      []KeyDrift `json:"changes"`

	// SecretsSkipped is set when the artifacts' secrets were digested
	// under different keys and so could not be compared.
	SecretsSkipped bool `json:"secretsSkipped,omitempty"`
}

// RoleChanged reports whether the node changed role since the baseline.
func (r DriftReport) RoleChanged() bool { return r.BaselineRole != r.CurrentRole }

// Detect compares the current artifact against a baseline artifact. Drift
// is informational and never blocks resolution. name labels the baseline
// in reports and may be empty.
func Detect(name string, baseline, current artifact.ConfigArtifact) DriftReport {
	report := DriftReport{
		Baseline:     name,
		BaselineRole: baseline.Role,
		CurrentRole:  current.Role,
		BaselineHash: baseline.ConfigVersion,
		CurrentHash:  current.ConfigVersion,
		Changes:      []KeyDrift{},
	}

	// Equal versions mean equal contents.
	if baseline.ConfigVersion == current.ConfigVersion {
		return report
	}

	sameKey := baseline.SecretKeyID == current.SecretKeyID
	for _, key := range unionKeys(baseline.Values, current.Values) {
		c := KeyDrift{Key: key, Secret: baseline.IsSecret(key) || current.IsSecret(key)}
		var inBaseline, inCurrent bool
		c.BaselineValue, inBaseline = baseline.Values[key]
		c.CurrentValue, inCurrent = current.Values[key]
		switch {
		case c.Secret && inBaseline && inCurrent && !sameKey:
			report.SecretsSkipped = true
			continue
		case !inCurrent:
			c.Type = DriftRemoved
		case !inBaseline:
			c.Type = DriftAdded
		case c.BaselineValue != c.CurrentValue:
			c.Type = DriftChanged
		default:
			continue
		}
		report.Changes = append(report.Changes, c)
	}

	report.HasDrift = len(report.Changes) > 0 || report.RoleChanged()
	return report
}

// unionKeys returns the keys of a and b, sorted and deduplicated.
func unionKeys(a, b map[string]string) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
