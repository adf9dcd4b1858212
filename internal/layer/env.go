package layer

import (
	"strings"

	"topo/internal/merge"
	"topo/internal/schema"
)

// EnvPrefix marks environment variables that override configuration keys.
const EnvPrefix = "TOPO_SET_"

// EnvVar returns the override variable for a config path. Segments are
// joined with a double underscore so single underscores inside key names
// survive: "gitlab_rails.db_host" -> "TOPO_SET_GITLAB_RAILS__DB_HOST".
func EnvVar(path string) string {
	if path == "" {
		return ""
	}
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(path, ".", "__"))
}

// PathFromEnvVar inverts EnvVar. It reports false for variables without
// the prefix or with an empty segment.
func PathFromEnvVar(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, EnvPrefix)
	if !ok || rest == "" {
		return "", false
	}
	segs := strings.Split(strings.ToLower(rest), "__")
	for _, s := range segs {
		if s == "" {
			return "", false
		}
	}
	return schema.JoinPath(segs...), true
}

// FromEnviron builds a layer from the override variables in environ
// (format "KEY=VALUE"). Values are coerced like file values: "1,2" becomes
// a list for a list-typed key and "15" an integer for an integer key.
func (l *Loader) FromEnviron(environ []string) merge.Layer {
	out := merge.Layer{}
	for name, value := range parseEnviron(environ) {
		path, ok := PathFromEnvVar(name)
		if !ok {
			continue
		}
		out[path] = l.coerce(path, schema.String(value))
	}
	if len(out) > 0 {
		l.logger.Debug("environment overrides", "keys", len(out))
	}
	return out
}

// parseEnviron converts an environ slice (["KEY=VALUE", ...]) into a map.
// Values may be empty or contain "="; entries without "=" are skipped.
func parseEnviron(environ []string) map[string]string {
	result := make(map[string]string)
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		result[key] = value
	}
	return result
}
