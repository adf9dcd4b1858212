// Package topology describes a multi-node deployment and resolves every
// node of it, validating each against its paired node.
package topology

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"topo/internal/role"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Node is one host of the topology.
type Node struct {
	Name      string         `yaml:"name"`
	Role      string         `yaml:"role"`
	Peer      string         `yaml:"peer,omitempty"`
	Files     []string       `yaml:"files,omitempty"`
	Overrides map[string]any `yaml:"overrides,omitempty"`
}

// File is a parsed topology file. Relative layer paths resolve against the
// file's directory.
type File struct {
	PlatformVersion string `yaml:"platform_version,omitempty"`
	Syntax          string `yaml:"syntax,omitempty"`
	Defaults        string `yaml:"defaults,omitempty"`
	Nodes           []Node `yaml:"nodes"`

	dir string
}

// Parse decodes a topology document. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}
	if len(f.Nodes) == 0 {
		return nil, fmt.Errorf("invalid topology: missing required field 'nodes'")
	}
	if f.PlatformVersion != "" {
		if _, err := semver.NewVersion(f.PlatformVersion); err != nil {
			return nil, fmt.Errorf("invalid topology: platform_version: %w", err)
		}
	}
	return &f, nil
}

// Load reads and parses the topology file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	f.dir = filepath.Dir(path)
	return f, nil
}

// Path resolves a layer path named in the file.
func (f *File) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || f.dir == "" {
		return p
	}
	return filepath.Join(f.dir, p)
}

// Version returns the parsed platform version, nil when unset.
func (f *File) Version() *semver.Version {
	if f.PlatformVersion == "" {
		return nil
	}
	v, err := semver.NewVersion(f.PlatformVersion)
	if err != nil {
		return nil
	}
	return v
}

// Node returns the node called name.
func (f *File) Node(name string) (Node, bool) {
	for _, n := range f.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// PeerOf returns the node paired with name: the node it names, or else the
// single node naming it.
func (f *File) PeerOf(name string) (string, bool) {
	n, ok := f.Node(name)
	if !ok {
		return "", false
	}
	if n.Peer != "" {
		return n.Peer, true
	}
	found := ""
	for _, other := range f.Nodes {
		if other.Peer == name {
			if found != "" {
				return "", false
			}
			found = other.Name
		}
	}
	return found, found != ""
}

// Validate checks node names, roles and peer links. All problems are
// reported together.
func (f *File) Validate(reg *role.Registry) error {
	var errs []error
	seen := map[string]bool{}
	namedBy := map[string][]string{}

	for i, n := range f.Nodes {
		switch {
		case n.Name == "":
			errs = append(errs, fmt.Errorf("node at index %d: missing required field 'name'", i))
			continue
		case seen[n.Name]:
			errs = append(errs, fmt.Errorf("duplicate node name: '%s'", n.Name))
			continue
		}
		seen[n.Name] = true

		if _, err := reg.Lookup(n.Role); err != nil {
			errs = append(errs, fmt.Errorf("node '%s': %w", n.Name, err))
		}
		if n.Peer != "" {
			namedBy[n.Peer] = append(namedBy[n.Peer], n.Name)
		}
	}

	for _, n := range f.Nodes {
		if n.Peer == "" || n.Name == "" {
			continue
		}
		if n.Peer == n.Name {
			errs = append(errs, fmt.Errorf("node '%s': cannot pair with itself", n.Name))
			continue
		}
		peer, ok := f.Node(n.Peer)
		if !ok {
			errs = append(errs, fmt.Errorf("node '%s': unknown peer '%s'", n.Name, n.Peer))
			continue
		}
		r, err := reg.Lookup(n.Role)
		if err == nil && !r.AcceptsPeer(peer.Role) {
			errs = append(errs, fmt.Errorf("node '%s': role '%s' does not pair with '%s' (node '%s')", n.Name, n.Role, peer.Role, peer.Name))
		}
		if peer.Peer != "" && peer.Peer != n.Name {
			errs = append(errs, fmt.Errorf("node '%s': peer '%s' is paired with '%s'", n.Name, peer.Name, peer.Peer))
		}
	}

	names := make([]string, 0, len(namedBy))
	for name := range namedBy {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if by := namedBy[name]; len(by) > 1 {
			if n, ok := f.Node(name); ok && n.Peer == "" {
				errs = append(errs, fmt.Errorf("node '%s': named as peer by %d nodes, set 'peer' explicitly", name, len(by)))
			}
		}
	}
	return errors.Join(errs...)
}
