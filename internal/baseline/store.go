// Package baseline stores named config artifacts so drift can be reported
// against a known-good resolution.
package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrBaselineNotFound is returned when a baseline doesn't exist.
var ErrBaselineNotFound = errors.New("baseline not found")

// EnvDir overrides the baseline directory.
const EnvDir = "TOPO_BASELINE_DIR"

// Store manages baseline persistence. Each baseline is one JSON file.
type Store struct {
	Dir string
}

// NewStore creates a store with the given directory.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// DefaultDir returns the default baseline directory (~/.topo/baselines).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".topo/baselines"
	}
	return filepath.Join(home, ".topo", "baselines")
}

// ResolveDir returns the baseline directory from environ or the default.
func ResolveDir(environ []string) string {
	for _, env := range environ {
		if dir, ok := strings.CutPrefix(env, EnvDir+"="); ok && dir != "" {
			return dir
		}
	}
	return DefaultDir()
}

// Save stores b under its name, replacing any baseline of the same name.
// The artifact must verify.
func (s *Store) Save(b Baseline) error {
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("baseline name must not be empty")
	}
	if err := b.Artifact.Verify(); err != nil {
		return fmt.Errorf("baseline '%s': %w", b.Name, err)
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(b.Name), append(data, '\n'), 0644)
}

// Load retrieves a baseline by name and verifies its artifact.
func (s *Store) Load(name string) (Baseline, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Baseline{}, fmt.Errorf("%w: '%s'", ErrBaselineNotFound, name)
		}
		return Baseline{}, err
	}
	return decode(data, name)
}

func decode(data []byte, name string) (Baseline, error) {
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return Baseline{}, fmt.Errorf("baseline '%s': %w", name, err)
	}
	if b.Artifact.Values == nil {
		b.Artifact.Values = map[string]string{}
	}
	if err := b.Artifact.Verify(); err != nil {
		return Baseline{}, fmt.Errorf("baseline '%s': %w", name, err)
	}
	return b, nil
}

// List returns summaries of all stored baselines sorted by name.
// Unreadable or corrupt files are skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Summary{}, nil
		}
		return nil, err
	}

	summaries := []Summary{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			continue
		}
		b, err := decode(data, entry.Name())
		if err != nil {
			continue
		}
		summaries = append(summaries, Summary{
			Name:          b.Name,
			Node:          b.Node,
			Role:          b.Artifact.Role,
			ConfigVersion: b.Artifact.ConfigVersion,
			Timestamp:     b.Timestamp,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })

	return summaries, nil
}

// Delete removes a baseline by name.
func (s *Store) Delete(name string) error {
	err := os.Remove(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: '%s'", ErrBaselineNotFound, name)
		}
		return err
	}
	return nil
}

// Exists checks if a baseline exists.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// path returns the file path for a baseline name.
func (s *Store) path(name string) string {
	safeName := strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	return filepath.Join(s.Dir, safeName+".json")
}
