// Package resolver runs the single-node pipeline: role lookup, merge,
// validation and rendering.
package resolver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"topo/internal/merge"
	"topo/internal/render"
	"topo/internal/role"
	"topo/internal/schema"
	"topo/internal/validator"

	"github.com/google/uuid"
)

// ErrIncompatiblePeer is returned when a peer's role cannot pair with the
// node's role.
var ErrIncompatiblePeer = errors.New("incompatible peer role")

// Resolver resolves node configurations. It holds no per-request state and
// is safe for concurrent use.
type Resolver struct {
	registry  *role.Registry
	schema    *schema.Schema
	validator *validator.Validator
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger for per-request debug records.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New returns a resolver. A nil validator runs the built-in rules against s.
func New(reg *role.Registry, s *schema.Schema, v *validator.Validator, opts ...Option) *Resolver {
	if v == nil {
		v = validator.New(s)
	}
	r := &Resolver{
		registry:  reg,
		schema:    s,
		validator: v,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Schema returns the schema the resolver merges against.
func (r *Resolver) Schema() *schema.Schema { return r.schema }

// Rules returns the validation rules the resolver runs, in order.
func (r *Resolver) Rules() []validator.Rule { return r.validator.Rules() }

// Registry returns the role registry.
func (r *Resolver) Registry() *role.Registry { return r.registry }

// Merge looks up roleID and merges defaults, the role layer and user. A nil
// defaults layer uses the schema defaults.
func (r *Resolver) Merge(roleID string, defaults, user merge.Layer) (*merge.Config, role.Role, error) {
	ro, err := r.registry.Lookup(roleID)
	if err != nil {
		return nil, role.Role{}, err
	}
	if defaults == nil {
		defaults = r.schema.DefaultLayer()
	}
	return merge.Merge(r.schema, defaults, ro.Layer(), user), ro, nil
}

// Check validates cfg for ro. peer may be nil.
func (r *Resolver) Check(cfg *merge.Config, ro role.Role, peer *merge.Config) []validator.Finding {
	return r.validator.Validate(cfg, ro, peer)
}

// Peer describes the paired node of a request.
type Peer struct {
	Role     string
	Defaults merge.Layer
	User     merge.Layer
}

// Request is a single-node resolution. Syntax "" skips rendering.
type Request struct {
	Role     string
	Defaults merge.Layer
	User     merge.Layer
	Peer     *Peer
	Syntax   render.Syntax
}

// Result is the outcome of a resolution. Output is nil when rendering was
// skipped or refused.
type Result struct {
	ID       uuid.UUID
	Role     role.Role
	Config   *merge.Config
	Findings []validator.Finding
	Syntax   render.Syntax
	Output   []byte
}

// Resolve runs the pipeline for req. When validation reports errors the
// result carries every finding and the error is a *validator.ValidationError;
// nothing is rendered.
func (r *Resolver) Resolve(req Request) (Result, error) {
	id := uuid.New()
	log := r.logger.With("resolution", id.String(), "role", req.Role)

	cfg, ro, err := r.Merge(req.Role, req.Defaults, req.User)
	if err != nil {
		return Result{ID: id}, err
	}
	log.Debug("merged", "keys", cfg.Len(), "user", len(req.User))

	var peer *merge.Config
	if req.Peer != nil {
		if !ro.AcceptsPeer(req.Peer.Role) {
			return Result{ID: id, Role: ro, Config: cfg}, fmt.Errorf("%w: role '%s' does not pair with '%s'", ErrIncompatiblePeer, ro.ID, req.Peer.Role)
		}
		peer, _, err = r.Merge(req.Peer.Role, req.Peer.Defaults, req.Peer.User)
		if err != nil {
			return Result{ID: id, Role: ro, Config: cfg}, fmt.Errorf("peer: %w", err)
		}
		log.Debug("merged peer", "peer_role", req.Peer.Role, "keys", peer.Len())
	}

	return r.evaluate(log, id, cfg, ro, peer, req.Syntax)
}

// Evaluate validates an already merged config and renders it. It is the
// second half of Resolve, used when every node of a topology is merged
// before any is validated.
func (r *Resolver) Evaluate(cfg *merge.Config, ro role.Role, peer *merge.Config, syntax render.Syntax) (Result, error) {
	id := uuid.New()
	return r.evaluate(r.logger.With("resolution", id.String(), "role", ro.ID), id, cfg, ro, peer, syntax)
}

func (r *Resolver) evaluate(log *slog.Logger, id uuid.UUID, cfg *merge.Config, ro role.Role, peer *merge.Config, syntax render.Syntax) (Result, error) {
	res := Result{ID: id, Role: ro, Config: cfg, Syntax: syntax}

	res.Findings = r.Check(cfg, ro, peer)
	errs, warns := validator.Count(res.Findings)
	log.Debug("validated", "errors", errs, "warnings", warns, "peer", peer != nil)
	if err := validator.Errors(res.Findings); err != nil {
		return res, err
	}

	if syntax == "" {
		return res, nil
	}
	out, err := render.Render(cfg, syntax)
	if err != nil {
		return res, err
	}
	res.Output = out
	log.Debug("rendered", "syntax", syntax, "bytes", len(out))
	return res, nil
}
