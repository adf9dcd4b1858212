package topology

import (
	"context"
	"fmt"

	"topo/internal/layer"
	"topo/internal/merge"
	"topo/internal/render"
	"topo/internal/resolver"
	"topo/internal/role"

	"golang.org/x/sync/errgroup"
)

// NodeResult is the outcome for one node. Err holds validation and render
// failures; Result is populated even when Err is set.
type NodeResult struct {
	Node   Node
	Peer   string
	Result resolver.Result
	Err    error
}

// Resolve resolves every node of f in parallel. All nodes are merged
// before any is validated so each can be checked against its peer's merged
// config. Load and merge failures abort the whole run; per-node validation
// and render failures are returned in the results, in node order.
func Resolve(ctx context.Context, f *File, res *resolver.Resolver, loader *layer.Loader, syntax render.Syntax) ([]NodeResult, error) {
	if err := f.Validate(res.Registry()); err != nil {
		return nil, err
	}

	var defaults merge.Layer
	if f.Defaults != "" {
		d, err := loader.Load(f.Path(f.Defaults))
		if err != nil {
			return nil, fmt.Errorf("defaults: %w", err)
		}
		defaults = merge.Layer(res.Schema().DefaultLayer())
		for k, v := range d {
			defaults[k] = v
		}
	}

	merged := make([]*merge.Config, len(f.Nodes))
	roles := make([]role.Role, len(f.Nodes))

	g, gctx := errgroup.WithContext(ctx)
	for i, n := range f.Nodes {
		i, n := i, n
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			paths := make([]string, len(n.Files))
			for j, p := range n.Files {
				paths[j] = f.Path(p)
			}
			user, err := loader.LoadAll(paths)
			if err != nil {
				return fmt.Errorf("node '%s': %w", n.Name, err)
			}
			for k, v := range loader.Flatten(n.Overrides) {
				user[k] = v
			}
			cfg, r, err := res.Merge(n.Role, defaults, user)
			if err != nil {
				return fmt.Errorf("node '%s': %w", n.Name, err)
			}
			merged[i], roles[i] = cfg, r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(f.Nodes))
	for i, n := range f.Nodes {
		index[n.Name] = i
	}

	results := make([]NodeResult, len(f.Nodes))
	g, gctx = errgroup.WithContext(ctx)
	for i, n := range f.Nodes {
		i, n := i, n
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var peer *merge.Config
			peerName, ok := f.PeerOf(n.Name)
			if ok {
				peer = merged[index[peerName]]
			}
			out, err := res.Evaluate(merged[i], roles[i], peer, syntax)
			results[i] = NodeResult{Node: n, Peer: peerName, Result: out, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Failed reports whether any node failed.
func Failed(results []NodeResult) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}
