// Package role holds the deployment roles a node can take and the keys each
// role requires, forbids, pins and pairs with a peer node.
package role

import (
	"fmt"

	"topo/internal/merge"
	"topo/internal/schema"
)

// KV is an ordered key/value entry of a role layer.
type KV struct {
	Path  string
	Value schema.Value
}

// Pair links a key of this node to a key of the paired node that must hold
// the same value.
type Pair struct {
	Local string
	Peer  string
}

// Role describes one deployment role.
type Role struct {
	ID          string
	Description string
	Defaults    []KV     // role-supplied values a user may override
	Pinned      []KV     // values the role enforces
	Required    []string // keys that must be set to a non-default value
	Forbidden   []string // key patterns that must stay unset, see MatchGlob
	Pairs       []Pair
	PeerRoles   []string // roles a paired node may take
}

// Layer returns the role layer: defaults first, then pinned values.
func (r Role) Layer() merge.Layer {
	l := make(merge.Layer, len(r.Defaults)+len(r.Pinned))
	for _, kv := range r.Defaults {
		l[kv.Path] = kv.Value
	}
	for _, kv := range r.Pinned {
		l[kv.Path] = kv.Value
	}
	return l
}

// AcceptsPeer reports whether a node of role id may pair with r.
func (r Role) AcceptsPeer(id string) bool {
	for _, p := range r.PeerRoles {
		if p == id {
			return true
		}
	}
	return false
}

// Forbids returns the first forbidden pattern matching path.
func (r Role) Forbids(path string) (string, bool) {
	for _, p := range r.Forbidden {
		if MatchGlob(p, path) {
			return p, true
		}
	}
	return "", false
}

// UnknownRoleError is returned when a role id is not registered.
type UnknownRoleError struct {
	ID    string
	Known []string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role %q (known roles: %v)", e.ID, e.Known)
}

// Registry is an immutable, ordered set of roles.
type Registry struct {
	roles map[string]Role
	order []string
}

// NewRegistry builds a registry. Empty or duplicate IDs are rejected.
func NewRegistry(roles ...Role) (*Registry, error) {
	reg := &Registry{roles: make(map[string]Role, len(roles))}
	for i, r := range roles {
		if r.ID == "" {
			return nil, fmt.Errorf("role at index %d: missing id", i)
		}
		if _, dup := reg.roles[r.ID]; dup {
			return nil, fmt.Errorf("duplicate role id: %q", r.ID)
		}
		reg.roles[r.ID] = clone(r)
		reg.order = append(reg.order, r.ID)
	}
	return reg, nil
}

// Lookup returns the role registered under id.
func (reg *Registry) Lookup(id string) (Role, error) {
	r, ok := reg.roles[id]
	if !ok {
		return Role{}, &UnknownRoleError{ID: id, Known: reg.IDs()}
	}
	return clone(r), nil
}

// ListRequiredKeys returns the required keys of a role in declaration order.
func (reg *Registry) ListRequiredKeys(id string) ([]string, error) {
	r, err := reg.Lookup(id)
	if err != nil {
		return nil, err
	}
	return r.Required, nil
}

// ListForbiddenKeys returns the forbidden key patterns of a role in
// declaration order.
func (reg *Registry) ListForbiddenKeys(id string) ([]string, error) {
	r, err := reg.Lookup(id)
	if err != nil {
		return nil, err
	}
	return r.Forbidden, nil
}

// IDs returns the registered role ids in registration order.
func (reg *Registry) IDs() []string {
	return append([]string(nil), reg.order...)
}

// clone copies every slice of r so callers cannot reach registry state.
func clone(r Role) Role {
	r.Defaults = append([]KV(nil), r.Defaults...)
	r.Pinned = append([]KV(nil), r.Pinned...)
	r.Required = append([]string(nil), r.Required...)
	r.Forbidden = append([]string(nil), r.Forbidden...)
	r.Pairs = append([]Pair(nil), r.Pairs...)
	r.PeerRoles = append([]string(nil), r.PeerRoles...)
	return r
}
