package render

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"topo/internal/merge"
	"topo/internal/schema"

	"github.com/BurntSushi/toml"
	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func userConfig(l merge.Layer) *merge.Config {
	return merge.Merge(schema.Builtin(), nil, nil, l)
}

func TestRender_Omnibus(t *testing.T) {
	cfg := userConfig(merge.Layer{
		"external_url":                           schema.String("http://gitlab.example.com"),
		"roles":                                  schema.Strings("gitaly"),
		"gitlab_rails.db_host":                   schema.String("db.internal"),
		"gitlab_rails.db_port":                   schema.Int(5432),
		"gitlab_rails.db_statement_timeout":      schema.Duration(15 * time.Second),
		"gitlab_rails.ldap_enabled":              schema.Bool(false),
		"git_data_dirs":                          schema.FromAny(map[string]any{"default": map[string]any{"path": "/var/opt/gitlab/git-data"}}),
		"redis.password":                         schema.Null(),
		"gitlab_rails.gitlab_ci_default_timeout": schema.Duration(time.Hour),
	})

	out, err := Render(cfg, Omnibus)
	require.NoError(t, err)

	want := `external_url "http://gitlab.example.com"

git_data_dirs({
  "default" => {
    "path" => "/var/opt/gitlab/git-data",
  },
})

gitlab_rails['db_host'] = "db.internal"
gitlab_rails['db_port'] = 5432
gitlab_rails['db_statement_timeout'] = 15000
gitlab_rails['gitlab_ci_default_timeout'] = 3600
gitlab_rails['ldap_enabled'] = false

redis['password'] = nil

roles ["gitaly"]
`
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("Render(omnibus) mismatch (-want +got):\n%s", diff)
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", `"plain"`},
		{`a"b`, `"a\"b"`},
		{`c:\path`, `"c:\\path"`},
		{"#{system('id')}", `"\#{system('id')}"`},
		{"line\nbreak\ttab", `"line\nbreak\ttab"`},
		{"bell\x07", `"bell\x07"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Quote(tt.in), "Quote(%q)", tt.in)
	}
}

func TestRender_TreeSyntaxes(t *testing.T) {
	cfg := userConfig(merge.Layer{
		"external_url":                        schema.String("http://gitlab.example.com"),
		"gitlab_rails.db_port":                schema.Int(5432),
		"gitlab_rails.db_statement_timeout":   schema.Duration(15 * time.Second),
		"gitlab_rails.ldap_servers":           schema.FromAny(map[string]any{"main": map[string]any{"port": 389}}),
		"gitlab_rails.ldap_servers.main.host": schema.String("ldap.internal"),
		"postgresql.md5_auth_cidr_addresses":  schema.Strings("10.0.0.0/8", "127.0.0.1/32"),
	})

	want := map[string]any{
		"external_url": "http://gitlab.example.com",
		"gitlab_rails": map[string]any{
			"db_port":              float64(5432),
			"db_statement_timeout": "15s",
			"ldap_servers": map[string]any{
				"main": map[string]any{"port": float64(389), "host": "ldap.internal"},
			},
		},
		"postgresql": map[string]any{
			"md5_auth_cidr_addresses": []any{"10.0.0.0/8", "127.0.0.1/32"},
		},
	}

	t.Run("json", func(t *testing.T) {
		out, err := Render(cfg, JSON)
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, json.Unmarshal(out, &got))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("json mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := Render(cfg, YAML)
		require.NoError(t, err)
		assert.Contains(t, string(out), `external_url: "http://gitlab.example.com"`)
		var got map[string]any
		require.NoError(t, yaml.Unmarshal(out, &got))
		sub := got["gitlab_rails"].(map[string]any)
		assert.Equal(t, 5432, sub["db_port"])
		assert.Equal(t, "15s", sub["db_statement_timeout"])
	})

	t.Run("toml", func(t *testing.T) {
		out, err := Render(cfg, TOML)
		require.NoError(t, err)
		var got map[string]any
		_, err = toml.Decode(string(out), &got)
		require.NoError(t, err)
		sub := got["gitlab_rails"].(map[string]any)
		assert.Equal(t, int64(5432), sub["db_port"])
		ldap := sub["ldap_servers"].(map[string]any)["main"].(map[string]any)
		assert.Equal(t, "ldap.internal", ldap["host"])
	})
}

func TestRender_Errors(t *testing.T) {
	t.Run("null in toml", func(t *testing.T) {
		cfg := userConfig(merge.Layer{
			"redis.password": schema.Null(),
			"redis.port":     schema.Null(),
		})
		_, err := Render(cfg, TOML)
		var uerr *UnsupportedValueTypeError
		require.True(t, errors.As(err, &uerr))
		assert.Equal(t, "redis.password", uerr.Key)
		assert.Equal(t, schema.TypeNull, uerr.Type)
		assert.Equal(t, TOML, uerr.Syntax)
	})

	t.Run("opaque", func(t *testing.T) {
		cfg := userConfig(merge.Layer{"postgresql.custom_ratio": schema.Opaque(1.5)})
		for _, syn := range []Syntax{Omnibus, TOML} {
			out, err := Render(cfg, syn)
			var uerr *UnsupportedValueTypeError
			assert.True(t, errors.As(err, &uerr), "syntax %s", syn)
			assert.Nil(t, out)
		}
		for _, syn := range []Syntax{YAML, JSON} {
			_, err := Render(cfg, syn)
			assert.NoError(t, err, "syntax %s", syn)
		}
	})

	t.Run("path conflict", func(t *testing.T) {
		cfg := userConfig(merge.Layer{
			"redis.bind":      schema.String("0.0.0.0"),
			"redis.bind.port": schema.Int(1),
		})
		_, err := Render(cfg, JSON)
		var perr *PathConflictError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, "redis.bind.port", perr.Key)
		assert.Equal(t, "redis.bind", perr.Prefix)

		_, err = Render(cfg, Omnibus)
		assert.NoError(t, err)
	})

	t.Run("key that is not a ruby identifier", func(t *testing.T) {
		for _, key := range []string{
			"x = 1; system('touch /tmp/pwned'); y",
			"Redis.bind",
			"1redis",
			"redis-sentinel.port",
		} {
			cfg := userConfig(merge.Layer{key: schema.String("v")})
			out, err := Render(cfg, Omnibus)
			var kerr *InvalidKeyError
			require.True(t, errors.As(err, &kerr), "key %q", key)
			assert.Equal(t, key, kerr.Key)
			assert.Nil(t, out)

			_, err = Render(cfg, JSON)
			assert.NoError(t, err, "key %q", key)
		}
	})

	t.Run("nested segments are quoted", func(t *testing.T) {
		cfg := userConfig(merge.Layer{"redis.x'; system('y'); '": schema.String("v")})
		out, err := Render(cfg, Omnibus)
		require.NoError(t, err)
		assert.Contains(t, string(out), "redis['x\\'; system(\\'y\\'); \\''] = \"v\"\n")
	})

	t.Run("unknown syntax", func(t *testing.T) {
		_, err := Render(userConfig(nil), Syntax("hcl"))
		assert.ErrorIs(t, err, ErrUnknownSyntax)
	})
}

func TestParseSyntax(t *testing.T) {
	for in, want := range map[string]Syntax{"rb": Omnibus, "YAML": YAML, "yml": YAML, "toml": TOML, " json ": JSON} {
		got, err := ParseSyntax(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSyntax("ini")
	assert.ErrorIs(t, err, ErrUnknownSyntax)
	assert.EqualError(t, err, "unknown syntax 'ini' (supported: omnibus, toml, yaml, json)")

	s, ok := ForPath("/etc/gitlab/gitlab.rb")
	assert.True(t, ok)
	assert.Equal(t, Omnibus, s)
	s, ok = ForPath("node.yml")
	assert.True(t, ok)
	assert.Equal(t, YAML, s)
	_, ok = ForPath("node.ini")
	assert.False(t, ok)
}

// Feature: topo-render, Property 1: Rendering Is Deterministic
// For any configuration and any syntax, rendering twice yields identical
// bytes, and rendering a config merged from a reordered layer yields the
// same bytes again.
func TestProperty1_RenderingIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	s := schema.Builtin()
	paths := s.Paths()

	properties.Property("render is idempotent", prop.ForAll(
		func(picks []int, n int64, text string, syn string) bool {
			user := merge.Layer{}
			for i, p := range picks {
				path := paths[p%len(paths)]
				k, _ := s.Lookup(path)
				switch k.Type {
				case schema.TypeBool:
					user[path] = schema.Bool(i%2 == 0)
				case schema.TypeInt:
					user[path] = schema.Int(n + int64(i))
				case schema.TypeDuration:
					user[path] = schema.Duration(time.Duration(n%1000) * k.DurationUnit())
				case schema.TypeList:
					user[path] = schema.Strings(text, "x")
				case schema.TypeMap:
					user[path] = schema.Map(map[string]schema.Value{"a": schema.String(text), "b": schema.Int(n)})
				default:
					user[path] = schema.String(text)
				}
			}

			a, errA := Render(merge.Merge(s, nil, nil, user), Syntax(syn))
			b, errB := Render(merge.Merge(s, nil, nil, user), Syntax(syn))
			return errA == nil && errB == nil && string(a) == string(b)
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.Int64Range(-1000000, 1000000),
		gen.AnyString(),
		gen.OneConstOf("omnibus", "toml", "yaml", "json"),
	))

	properties.TestingRun(t)
}
