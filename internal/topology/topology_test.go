package topology

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"topo/internal/layer"
	"topo/internal/render"
	"topo/internal/resolver"
	"topo/internal/role"
	"topo/internal/schema"
	"topo/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no nodes", "syntax: yaml\n", "missing required field 'nodes'"},
		{"unknown field", "nodes:\n  - name: a\n    role: standalone\n    pear: b\n", "field pear not found"},
		{"bad version", "platform_version: sixteen\nnodes:\n  - name: a\n", "platform_version"},
		{"not yaml", "nodes: [", "invalid topology"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestValidate(t *testing.T) {
	reg := role.Builtin()

	f := &File{Nodes: []Node{
		{Name: "a", Role: "standalone"},
		{Name: "a", Role: "standalone"},
		{Name: "b", Role: "geo-tertiary"},
		{Name: "c", Role: "geo-primary", Peer: "missing"},
		{Name: "d", Role: "geo-primary", Peer: "d"},
		{Name: "e", Role: "geo-primary", Peer: "a"},
		{Name: "", Role: "standalone"},
	}}
	err := f.Validate(reg)
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"duplicate node name: 'a'",
		"node 'b': unknown role",
		"node 'c': unknown peer 'missing'",
		"node 'd': cannot pair with itself",
		"role 'geo-primary' does not pair with 'standalone'",
		"node at index 6: missing required field 'name'",
	} {
		assert.Contains(t, msg, want)
	}

	var unknown *role.UnknownRoleError
	assert.True(t, errors.As(err, &unknown))
}

func TestValidate_PeerLinks(t *testing.T) {
	reg := role.Builtin()

	ok := &File{Nodes: []Node{
		{Name: "primary", Role: "geo-primary"},
		{Name: "secondary", Role: "geo-secondary", Peer: "primary"},
	}}
	require.NoError(t, ok.Validate(reg))
	peer, found := ok.PeerOf("primary")
	assert.True(t, found)
	assert.Equal(t, "secondary", peer)
	peer, _ = ok.PeerOf("secondary")
	assert.Equal(t, "primary", peer)

	crossed := &File{Nodes: []Node{
		{Name: "primary", Role: "geo-primary", Peer: "s2"},
		{Name: "s1", Role: "geo-secondary", Peer: "primary"},
		{Name: "s2", Role: "geo-secondary", Peer: "primary"},
	}}
	assert.ErrorContains(t, crossed.Validate(reg), "node 's1': peer 'primary' is paired with 's2'")

	ambiguous := &File{Nodes: []Node{
		{Name: "primary", Role: "geo-primary"},
		{Name: "s1", Role: "geo-secondary", Peer: "primary"},
		{Name: "s2", Role: "geo-secondary", Peer: "primary"},
	}}
	assert.ErrorContains(t, ambiguous.Validate(reg), "named as peer by 2 nodes")
	_, found = ambiguous.PeerOf("primary")
	assert.False(t, found)
}

func writeTopology(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return filepath.Join(dir, "topology.yaml")
}

const geoTopology = `
platform_version: 16.4.0
syntax: omnibus
defaults: common.yaml
nodes:
  - name: primary
    role: geo-primary
    files: [primary.rb]
  - name: secondary
    role: geo-secondary
    peer: primary
    files: [secondary.yaml]
    overrides:
      gitlab_rails.db_key_base: %s
`

const primaryRb = `
external_url 'https://primary.example.com'
gitlab_rails['geo_node_name'] = 'primary'
gitlab_rails['db_key_base'] = 'abc'
`

const secondaryYaml = `
external_url: https://secondary.example.com
gitlab_rails:
  geo_node_name: secondary
  db_key_base: placeholder
  db_host: primary.example.com
  db_port: 5432
  db_username: gitlab
  db_password: pw
  redis_host: primary.example.com
  redis_port: 6379
`

const commonYaml = `
gitlab_rails:
  secret_key_base: shared-secret
  otp_key_base: shared-otp
`

func resolveTopology(t *testing.T, dbKey string) ([]NodeResult, error) {
	path := writeTopology(t, map[string]string{
		"topology.yaml":  strings.Replace(geoTopology, "%s", dbKey, 1),
		"primary.rb":     primaryRb,
		"secondary.yaml": secondaryYaml,
		"common.yaml":    commonYaml,
	})
	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "16.4.0", f.Version().String())

	s := schema.Builtin()
	res := resolver.New(role.Builtin(), s, validator.New(s, validator.WithPlatformVersion(f.Version())))
	return Resolve(context.Background(), f, res, layer.NewLoader(s, nil), render.Omnibus)
}

func TestResolve_Geo(t *testing.T) {
	t.Run("matching keys", func(t *testing.T) {
		results, err := resolveTopology(t, "abc")
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.False(t, Failed(results))

		assert.Equal(t, "primary", results[0].Node.Name)
		assert.Equal(t, "secondary", results[0].Peer)
		assert.Equal(t, "primary", results[1].Peer)
		assert.Contains(t, string(results[0].Result.Output), "gitlab_rails['geo_primary_role'] = true")
		assert.Contains(t, string(results[1].Result.Output), "gitlab_rails['secret_key_base'] = \"shared-secret\"")
	})

	t.Run("mismatched keys", func(t *testing.T) {
		results, err := resolveTopology(t, "xyz")
		require.NoError(t, err)
		assert.True(t, Failed(results))

		for _, r := range results {
			var verr *validator.ValidationError
			require.True(t, errors.As(r.Err, &verr), "node %s", r.Node.Name)
			require.Len(t, verr.Findings, 1)
			assert.Equal(t, "gitlab_rails.db_key_base", verr.Findings[0].Key)
			assert.Nil(t, r.Result.Output)
		}
	})
}

func TestResolve_LoadFailureAborts(t *testing.T) {
	path := writeTopology(t, map[string]string{
		"topology.yaml": "nodes:\n  - name: a\n    role: standalone\n    files: [missing.rb]\n",
	})
	f, err := Load(path)
	require.NoError(t, err)

	s := schema.Builtin()
	_, err = Resolve(context.Background(), f, resolver.New(role.Builtin(), s, nil), layer.NewLoader(s, nil), render.YAML)
	assert.ErrorContains(t, err, "node 'a'")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolve_CancelledContext(t *testing.T) {
	f := &File{Nodes: []Node{{Name: "a", Role: "standalone"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := schema.Builtin()
	_, err := Resolve(ctx, f, resolver.New(role.Builtin(), s, nil), layer.NewLoader(s, nil), render.YAML)
	assert.ErrorIs(t, err, context.Canceled)
}
