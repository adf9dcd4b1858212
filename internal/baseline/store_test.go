package baseline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"topo/internal/artifact"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArtifact(role string, values map[string]string) artifact.ConfigArtifact {
	return artifact.New(role, values, nil, "")
}

// genValues generates random config value maps keyed by dotted paths.
func genValues() gopter.Gen {
	key := gopter.CombineGens(gen.Identifier(), gen.Identifier()).Map(func(v []interface{}) string {
		return v[0].(string) + "." + v[1].(string)
	})
	return gen.MapOf(key, gen.AlphaString()).Map(func(m map[string]string) map[string]string {
		if m == nil {
			return map[string]string{}
		}
		return m
	})
}

func genBaseline() gopter.Gen {
	return gopter.CombineGens(
		gen.Identifier(),
		gen.Identifier(),
		gen.OneConstOf("standalone", "geo-primary", "redis-only"),
		genValues(),
	).Map(func(vals []interface{}) Baseline {
		return Baseline{
			Name:      vals[0].(string),
			Node:      vals[1].(string),
			Artifact:  newArtifact(vals[2].(string), vals[3].(map[string]string)),
			Timestamp: time.Now().UTC().Truncate(time.Second),
		}
	})
}

// Feature: topo-baseline, Property 1: Baseline Round-Trip
// For any baseline, saving and loading preserves every field.
func TestProperty1_BaselineRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("save then load preserves baseline", prop.ForAll(
		func(b Baseline) bool {
			store := NewStore(t.TempDir())
			if err := store.Save(b); err != nil {
				t.Logf("save: %v", err)
				return false
			}
			loaded, err := store.Load(b.Name)
			if err != nil {
				t.Logf("load: %v", err)
				return false
			}
			if diff := cmp.Diff(b, loaded); diff != "" {
				t.Logf("mismatch (-saved +loaded):\n%s", diff)
				return false
			}
			return true
		},
		genBaseline(),
	))

	properties.TestingRun(t)
}

// Feature: topo-baseline, Property 2: Baseline Directory Configuration
// With TOPO_BASELINE_DIR set that directory is used, otherwise the default.
func TestProperty2_ResolveDirRespectsEnvVar(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ResolveDir uses TOPO_BASELINE_DIR when set", prop.ForAll(
		func(customDir string) bool {
			return ResolveDir([]string{"HOME=/root", EnvDir + "=" + customDir}) == customDir
		},
		gen.Identifier().Map(func(s string) string { return "/custom/" + s }),
	))

	properties.Property("ResolveDir uses default when env var not set", prop.ForAll(
		func(otherVar string) bool {
			return ResolveDir([]string{"OTHER_VAR=" + otherVar, EnvDir + "="}) == DefaultDir()
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

func TestStore_NamedBaselinesAreSeparate(t *testing.T) {
	store := NewStore(t.TempDir())
	b1 := Baseline{Name: "primary", Artifact: newArtifact("geo-primary", map[string]string{"external_url": "http://a"})}
	b2 := Baseline{Name: "secondary", Artifact: newArtifact("geo-secondary", map[string]string{"external_url": "http://b"})}
	require.NoError(t, store.Save(b1))
	require.NoError(t, store.Save(b2))

	loaded1, err := store.Load("primary")
	require.NoError(t, err)
	loaded2, err := store.Load("secondary")
	require.NoError(t, err)
	assert.Equal(t, "http://a", loaded1.Artifact.Values["external_url"])
	assert.Equal(t, "geo-secondary", loaded2.Artifact.Role)
}

func TestStore_ListAndDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, name := range []string{"zeta", "alpha", "team/node"} {
		require.NoError(t, store.Save(Baseline{
			Name:      name,
			Node:      "app-1",
			Artifact:  newArtifact("standalone", map[string]string{"name": name}),
			Timestamp: ts,
		}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	summaries, err := store.List()
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, []string{"alpha", "team/node", "zeta"}, []string{summaries[0].Name, summaries[1].Name, summaries[2].Name})
	assert.Equal(t, "standalone", summaries[0].Role)
	assert.Equal(t, "app-1", summaries[0].Node)
	assert.Equal(t, ts, summaries[0].Timestamp)
	assert.FileExists(t, filepath.Join(dir, "team_node.json"))

	require.NoError(t, store.Delete("team/node"))
	assert.False(t, store.Exists("team/node"))
	summaries, err = store.List()
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestStore_ListMissingDir(t *testing.T) {
	summaries, err := NewStore(filepath.Join(t.TempDir(), "none")).List()
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestStore_RejectsInvalidBaselines(t *testing.T) {
	store := NewStore(t.TempDir())

	err := store.Save(Baseline{Artifact: newArtifact("standalone", nil)})
	assert.ErrorContains(t, err, "name must not be empty")

	tampered := newArtifact("standalone", map[string]string{"a.b": "1"})
	tampered.Values["a.b"] = "2"
	err = store.Save(Baseline{Name: "x", Artifact: tampered})
	assert.ErrorIs(t, err, artifact.ErrVersionMismatch)

	// A baseline edited on disk no longer loads.
	require.NoError(t, store.Save(Baseline{Name: "y", Artifact: newArtifact("standalone", map[string]string{"a.b": "1"})}))
	path := filepath.Join(store.Dir, "y.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), `"a.b": "1"`, `"a.b": "2"`, 1)), 0644))
	_, err = store.Load("y")
	assert.ErrorIs(t, err, artifact.ErrVersionMismatch)
}

func TestStore_SecretKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "baselines")
	store := NewStore(dir)

	key, err := store.SecretKey()
	require.NoError(t, err)
	assert.Len(t, key, artifact.KeySize)

	info, err := os.Stat(filepath.Join(dir, "secret.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := store.SecretKey()
	require.NoError(t, err)
	assert.Equal(t, key, again, "the key is created once")

	other, err := NewStore(t.TempDir()).SecretKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	summaries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, summaries, "the key file is not a baseline")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.key"), []byte("not hex\n"), 0o600))
	_, err = store.SecretKey()
	assert.ErrorContains(t, err, "invalid secret key")
}

func TestDefaultDir(t *testing.T) {
	dir := DefaultDir()
	if !filepath.IsAbs(dir) && dir != ".topo/baselines" {
		t.Errorf("DefaultDir returned unexpected path: %s", dir)
	}
}

func TestNotFound(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Load("nonexistent")
	if !errors.Is(err, ErrBaselineNotFound) {
		t.Errorf("expected ErrBaselineNotFound, got %v", err)
	}

	err = store.Delete("nonexistent")
	if !errors.Is(err, ErrBaselineNotFound) {
		t.Errorf("expected ErrBaselineNotFound, got %v", err)
	}
}
