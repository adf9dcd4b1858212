package merge

import (
	"testing"

	"topo/internal/schema"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_LayerPrecedence(t *testing.T) {
	s := schema.Builtin()
	cfg := Merge(s,
		Layer{"redis.bind": schema.String("127.0.0.1"), "redis.port": schema.Int(6379)},
		Layer{"redis.bind": schema.String("0.0.0.0"), "redis.enable": schema.Bool(true)},
		Layer{"redis['port']": schema.Int(6380)},
	)

	tests := []struct {
		path   string
		want   schema.Value
		origin LayerKind
	}{
		{"redis.bind", schema.String("0.0.0.0"), LayerRole},
		{"redis.port", schema.Int(6380), LayerUser},
		{"redis.enable", schema.Bool(true), LayerRole},
	}
	for _, tt := range tests {
		got, ok := cfg.Get(tt.path)
		require.True(t, ok, tt.path)
		assert.True(t, tt.want.Equal(got), "%s = %s, want %s", tt.path, got, tt.want)
		assert.Equal(t, tt.origin, cfg.Origin(tt.path), tt.path)
	}
	assert.Equal(t, []string{"redis.bind", "redis.enable", "redis.port"}, cfg.Keys())
	assert.Equal(t, LayerNone, cfg.Origin("redis.password"))
}

func TestMerge_NoDeepMergeWithoutAnnotation(t *testing.T) {
	s := &schema.Schema{Keys: map[string]schema.ConfigKey{
		"svc.opts": {Path: "svc.opts", Type: schema.TypeMap},
	}}
	cfg := Merge(s,
		Layer{"svc.opts": schema.Map(map[string]schema.Value{"a": schema.Int(1)})},
		nil,
		Layer{"svc.opts": schema.Map(map[string]schema.Value{"b": schema.Int(2)})},
	)
	got, _ := cfg.Get("svc.opts")
	assert.Equal(t, []string{"b"}, got.MapKeys())
}

func TestMerge_MergeNested(t *testing.T) {
	s := schema.Builtin()
	role := Layer{
		"gitlab_rails.ldap_servers": schema.FromAny(map[string]any{
			"main": map[string]any{"host": "ldap", "port": 389, "attributes": map[string]any{"name": "cn"}},
		}),
		"postgresql.md5_auth_cidr_addresses": schema.Strings("10.0.0.0/8"),
	}
	user := Layer{
		"gitlab_rails.ldap_servers": schema.FromAny(map[string]any{
			"main": map[string]any{"port": 636, "attributes": map[string]any{"email": "mail"}},
		}),
		"postgresql.md5_auth_cidr_addresses": schema.Strings("192.168.0.0/16", "10.0.0.0/8"),
	}

	cfg := Merge(s, nil, role, user)

	ldap, _ := cfg.Get("gitlab_rails.ldap_servers")
	want := map[string]any{
		"main": map[string]any{
			"host":       "ldap",
			"port":       int64(636),
			"attributes": map[string]any{"name": "cn", "email": "mail"},
		},
	}
	if diff := cmp.Diff(want, ldap.Interface()); diff != "" {
		t.Errorf("ldap_servers mismatch (-want +got):\n%s", diff)
	}

	cidrs, _ := cfg.Get("postgresql.md5_auth_cidr_addresses")
	assert.True(t, schema.Strings("10.0.0.0/8", "192.168.0.0/16").Equal(cidrs), "got %s", cidrs)
}

func TestMerge_CollidingSpellings(t *testing.T) {
	user := Layer{
		"gitlab_rails.db_host":    schema.String("dotted"),
		"gitlab_rails['db_host']": schema.String("bracketed"),
	}
	for i := 0; i < 20; i++ {
		cfg := Merge(schema.Builtin(), nil, nil, user)
		got, _ := cfg.Get("gitlab_rails.db_host")
		// "gitlab_rails[" sorts after "gitlab_rails."
		require.Equal(t, "bracketed", got.AsString())
	}
}

func TestMerge_UnnormalizablePassesThrough(t *testing.T) {
	cfg := Merge(schema.Builtin(), nil, nil, Layer{"a..b": schema.Int(1)})
	assert.True(t, cfg.Has("a..b"))
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	role := Layer{"gitlab_rails.sidekiq_queues": schema.Strings("default")}
	user := Layer{"gitlab_rails.sidekiq_queues": schema.Strings("mailers")}
	_ = Merge(schema.Builtin(), nil, role, user)

	assert.True(t, schema.Strings("default").Equal(role["gitlab_rails.sidekiq_queues"]))
	assert.True(t, schema.Strings("mailers").Equal(user["gitlab_rails.sidekiq_queues"]))
}

func TestConfig_Texts(t *testing.T) {
	cfg := Merge(schema.Builtin(), nil, nil, Layer{
		"gitlab_rails.ldap_servers": schema.FromAny(map[string]any{"main": map[string]any{"host": "ldap"}}),
		"redis.port":                schema.Int(6379),
	})
	texts := cfg.Texts()
	assert.Equal(t, "ldap", texts["gitlab_rails.ldap_servers.main.host"])
	assert.Equal(t, "6379", texts["redis.port"])
}

// Feature: topo-merge, Property 1: Layer Order Decides, Map Order Does Not
// For any three layers over the same keys, the merged value of each key is
// the one from the highest layer that sets it, no matter how often the
// merge is repeated.
func TestProperty1_LayerOrderDecides(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	paths := []string{"redis.port", "postgresql.port", "puma.port", "sidekiq.concurrency"}

	// Each generated int encodes which layers set the key: bit 0 default,
	// bit 1 role, bit 2 user.
	genMask := gen.SliceOfN(len(paths), gen.IntRange(0, 7))

	properties.Property("highest setting layer wins", prop.ForAll(
		func(masks []int) bool {
			d, r, u := Layer{}, Layer{}, Layer{}
			for i, p := range paths {
				if masks[i]&1 != 0 {
					d[p] = schema.Int(1)
				}
				if masks[i]&2 != 0 {
					r[p] = schema.Int(2)
				}
				if masks[i]&4 != 0 {
					u[p] = schema.Int(3)
				}
			}
			first := Merge(schema.Builtin(), d, r, u)
			second := Merge(schema.Builtin(), d, r, u)

			for i, p := range paths {
				var want int64
				switch {
				case masks[i]&4 != 0:
					want = 3
				case masks[i]&2 != 0:
					want = 2
				case masks[i]&1 != 0:
					want = 1
				}
				got, ok := first.Get(p)
				if want == 0 {
					if ok {
						return false
					}
					continue
				}
				if !ok || got.AsInt() != want {
					return false
				}
			}
			return cmp.Equal(first.Keys(), second.Keys()) && cmp.Equal(first.Texts(), second.Texts())
		},
		genMask,
	))

	properties.TestingRun(t)
}
