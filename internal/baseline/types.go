package baseline

import (
	"time"

	"topo/internal/artifact"
)

// Baseline is a named, known-good config artifact that later resolutions
// are compared against.
type Baseline struct {
	Name      string                  `json:"name"`
	Node      string                  `json:"node,omitempty"`
	Artifact  artifact.ConfigArtifact `json:"artifact"`
	Timestamp time.Time               `json:"timestamp"`
}

// Summary is a lightweight view for listing baselines.
type Summary struct {
	Name          string    `json:"name"`
	Node          string    `json:"node,omitempty"`
	Role          string    `json:"role"`
	ConfigVersion string    `json:"configVersion"`
	Timestamp     time.Time `json:"timestamp"`
}
