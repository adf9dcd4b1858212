package role

import "topo/internal/schema"

func on(path string) KV                  { return KV{path, schema.Bool(true)} }
func off(path string) KV                 { return KV{path, schema.Bool(false)} }
func val(path string, v schema.Value) KV { return KV{path, v} }

// disabled turns off the enable flag of each service.
func disabled(services ...string) []KV {
	kvs := make([]KV, len(services))
	for i, s := range services {
		kvs[i] = off(s + ".enable")
	}
	return kvs
}

var (
	geoRoles = []string{
		"gitlab_rails.geo_primary_role",
		"gitlab_rails.geo_secondary_role",
	}
	signingKeys = []string{
		"gitlab_rails.db_key_base",
		"gitlab_rails.secret_key_base",
		"gitlab_rails.otp_key_base",
	}
	// Services a dedicated backend node never runs.
	appServices = []string{
		"nginx", "puma", "sidekiq", "gitlab_workhorse", "gitlab_exporter",
		"prometheus", "alertmanager", "gitlab_kas", "registry",
		"gitlab_pages", "pages_nginx", "mattermost", "mattermost_nginx",
		"consul", "monitoring_role",
	}
	// Optional features the sample recipes switch off on app nodes.
	optionalServices = []string{
		"letsencrypt", "gitlab_pages", "pages_nginx", "registry", "gitlab_kas",
	}
)

func samePairs(keys ...string) []Pair {
	ps := make([]Pair, len(keys))
	for i, k := range keys {
		ps[i] = Pair{Local: k, Peer: k}
	}
	return ps
}

func concat[T any](parts ...[]T) []T {
	var out []T
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// BuiltinRoles returns the built-in role table.
func BuiltinRoles() []Role {
	return []Role{
		{
			ID:          "standalone",
			Description: "single node running every bundled service",
			Defaults:    concat(disabled(optionalServices...), []KV{off("prometheus_monitoring.enable")}),
			Required:    []string{"external_url"},
			Forbidden:   []string{"gitlab_rails.db_host", "gitlab_rails.geo_*_role"},
		},
		{
			ID:          "external-db",
			Description: "application node using an external PostgreSQL and Redis",
			Defaults: concat(disabled(optionalServices...), []KV{
				val("gitlab_rails.db_adapter", schema.String("postgresql")),
				val("gitlab_rails.db_encoding", schema.String("unicode")),
			}),
			Pinned:    disabled("postgresql", "redis"),
			Required:  []string{"external_url", "gitlab_rails.db_host", "gitlab_rails.redis_host"},
			Forbidden: []string{"gitlab_rails.geo_*_role"},
		},
		{
			ID:          "geo-primary",
			Description: "Geo primary site; owns the writable database",
			Defaults:    disabled(optionalServices...),
			Pinned: []KV{
				on("gitlab_rails.geo_primary_role"),
				on("postgresql.enable"),
				on("geo_postgresql.enable"),
			},
			Required:  concat([]string{"external_url", "gitlab_rails.geo_node_name"}, signingKeys),
			Forbidden: []string{"gitlab_rails.geo_secondary_role", "gitlab_rails.db_host"},
			Pairs:     samePairs(signingKeys...),
			PeerRoles: []string{"geo-secondary"},
		},
		{
			ID:          "geo-secondary",
			Description: "Geo secondary site; reads from the primary's database",
			Defaults: concat(disabled(optionalServices...), disabled(
				"prometheus", "alertmanager", "gitlab_exporter", "grafana", "sentinel",
			)),
			Pinned: []KV{
				on("gitlab_rails.geo_secondary_role"),
				off("postgresql.enable"),
				off("redis.enable"),
				on("geo_postgresql.enable"),
				off("gitlab_rails.auto_migrate"),
			},
			Required: concat(
				[]string{"external_url", "gitlab_rails.geo_node_name"},
				signingKeys,
				[]string{"gitlab_rails.db_host", "gitlab_rails.redis_host"},
			),
			Forbidden: []string{
				"gitlab_rails.geo_primary_role",
				"postgresql.sql_replication_password",
				"postgresql.max_wal_senders",
			},
			Pairs:     samePairs(signingKeys...),
			PeerRoles: []string{"geo-primary"},
		},
		{
			ID:          "gitaly-node",
			Description: "dedicated Gitaly storage node",
			Defaults:    concat(disabled(appServices...), disabled("gitlab_rails")),
			Pinned: concat([]KV{
				val("roles", schema.Strings("gitaly")),
				on("gitaly.enable"),
			}, disabled("postgresql", "redis", "puma")),
			Required:  []string{"gitaly.listen_addr", "gitaly.auth_token", "git_data_dirs"},
			Forbidden: concat(geoRoles, []string{"praefect.enable"}),
			Pairs:     []Pair{{Local: "gitaly.auth_token", Peer: "gitlab_rails.gitaly_token"}},
			PeerRoles: []string{"gitaly-cluster-router"},
		},
		{
			ID:          "gitaly-cluster-router",
			Description: "application node routing repository traffic to Gitaly nodes",
			Defaults:    disabled(optionalServices...),
			Pinned:      []KV{off("gitaly.enable")},
			Required:    []string{"external_url", "git_data_dirs", "gitlab_rails.gitaly_token"},
			Forbidden:   []string{"gitaly.listen_addr", "gitaly.auth_token", "praefect.enable"},
			Pairs:       []Pair{{Local: "gitlab_rails.gitaly_token", Peer: "gitaly.auth_token"}},
			PeerRoles:   []string{"gitaly-node"},
		},
		{
			ID:          "postgres-only",
			Description: "dedicated PostgreSQL node",
			Defaults:    concat(disabled(appServices...), disabled("gitaly")),
			Pinned: concat([]KV{
				val("roles", schema.Strings("postgres")),
				on("postgresql.enable"),
			}, disabled("gitlab_rails", "redis")),
			Required: []string{
				"postgresql.listen_address",
				"postgresql.sql_user_password",
				"postgresql.md5_auth_cidr_addresses",
			},
			Forbidden: concat([]string{"gitlab_rails.db_host"}, geoRoles),
		},
		{
			ID:          "redis-only",
			Description: "dedicated Redis node",
			Defaults:    concat(disabled(appServices...), disabled("gitaly")),
			Pinned: concat([]KV{
				val("roles", schema.Strings("redis")),
				on("redis.enable"),
			}, disabled("postgresql", "gitlab_rails")),
			Required:  []string{"redis.bind", "redis.password"},
			Forbidden: []string{"gitlab_rails.db_host", "gitlab_rails.redis_host"},
		},
		{
			ID:          "ldap-augmented",
			Description: "application node authenticating against LDAP",
			Defaults: concat(disabled(optionalServices...), []KV{
				val("gitlab_rails.ldap_sync_worker_cron", schema.String("0 */1 * * *")),
				val("gitlab_rails.ldap_group_sync_worker_cron", schema.String("0 */1 * * *")),
			}),
			Pinned:    []KV{on("gitlab_rails.ldap_enabled")},
			Required:  []string{"external_url", "gitlab_rails.ldap_servers"},
			Forbidden: []string{"gitlab_rails.prevent_ldap_sign_in"},
		},
		{
			ID:          "ci-optimized",
			Description: "application node tuned for CI workloads",
			Defaults: concat(disabled(optionalServices...), []KV{
				val("sidekiq.concurrency", schema.Int(15)),
				on("gitlab_rails.gitlab_ci_shared_runners_enabled"),
				val("gitlab_rails.ci_pipeline_schedule_worker_cron", schema.String("*/5 * * * *")),
			}),
			Pinned:    []KV{on("gitlab_rails.gitlab_default_projects_features_builds")},
			Required:  []string{"external_url"},
			Forbidden: []string{"gitlab_rails.geo_secondary_role"},
		},
	}
}

// Builtin returns a registry of the built-in roles.
func Builtin() *Registry {
	reg, err := NewRegistry(BuiltinRoles()...)
	if err != nil {
		panic(err)
	}
	return reg
}
