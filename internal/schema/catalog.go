package schema

import "time"

type keyOpt func(*ConfigKey)

func def(v Value) keyOpt         { return func(k *ConfigKey) { k.Default = v } }
func enum(vals ...string) keyOpt { return func(k *ConfigKey) { k.Values = vals } }
func nested() keyOpt             { return func(k *ConfigKey) { k.MergeNested = true } }
func secret() keyOpt             { return func(k *ConfigKey) { k.Secret = true } }
func unit(d time.Duration) keyOpt {
	return func(k *ConfigKey) { k.Unit = d }
}
func since(v string) keyOpt { return func(k *ConfigKey) { k.Since = v } }
func until(v string) keyOpt { return func(k *ConfigKey) { k.Until = v } }
func desc(s string) keyOpt  { return func(k *ConfigKey) { k.Description = s } }

func key(path string, t ValueType, opts ...keyOpt) ConfigKey {
	k := ConfigKey{Path: path, Type: t}
	for _, o := range opts {
		o(&k)
	}
	return k
}

var onOff = []string{"on", "off"}

// serviceFlags lists the enable flag of every bundled service and whether
// it runs by default.
var serviceFlags = []struct {
	name string
	on   bool
	opts []keyOpt
}{
	{"alertmanager", true, nil},
	{"consul", false, nil},
	{"geo_postgresql", false, nil},
	{"gitaly", true, nil},
	{"gitlab_exporter", true, nil},
	{"gitlab_kas", true, nil},
	{"gitlab_pages", false, nil},
	{"gitlab_rails", true, nil},
	{"gitlab_workhorse", true, nil},
	{"grafana", false, []keyOpt{until("16.3.0")}},
	{"letsencrypt", false, nil},
	{"mattermost", false, nil},
	{"mattermost_nginx", false, nil},
	{"monitoring_role", false, nil},
	{"nginx", true, nil},
	{"pages_nginx", false, nil},
	{"postgresql", true, nil},
	{"praefect", false, nil},
	{"prometheus", true, nil},
	{"prometheus_monitoring", true, nil},
	{"puma", true, nil},
	{"redis", true, nil},
	{"registry", false, nil},
	{"sentinel", false, nil},
	{"sidekiq", true, nil},
	{"unicorn", false, []keyOpt{until("14.0.0")}},
}

var builtinKeys = []ConfigKey{
	key("external_url", TypeString, desc("URL users reach the instance at")),
	key("roles", TypeList, nested(), desc("Omnibus roles applied to the node")),
	key("git_data_dirs", TypeMap, nested(), desc("repository storages by name")),

	// gitlab_rails: database
	key("gitlab_rails.db_adapter", TypeString, def(String("postgresql")), enum("postgresql")),
	key("gitlab_rails.db_encoding", TypeString, def(String("unicode"))),
	key("gitlab_rails.db_host", TypeString, desc("external database host")),
	// Companions of db_host and redis_host carry no default: an external
	// service is only complete when they are set.
	key("gitlab_rails.db_port", TypeInt),
	key("gitlab_rails.db_username", TypeString),
	key("gitlab_rails.db_password", TypeString, secret()),
	key("gitlab_rails.db_database", TypeString, def(String("gitlabhq_production"))),
	key("gitlab_rails.db_statement_timeout", TypeDuration, unit(time.Millisecond)),
	key("gitlab_rails.db_idle_timeout", TypeDuration, unit(time.Second)),

	// gitlab_rails: redis
	key("gitlab_rails.redis_host", TypeString, desc("external redis host")),
	key("gitlab_rails.redis_port", TypeInt),
	key("gitlab_rails.redis_password", TypeString, secret()),
	key("gitlab_rails.redis_ssl", TypeBool, def(Bool(false))),
	key("gitlab_rails.redis_cache_instance", TypeString, secret()),
	key("gitlab_rails.redis_queues_instance", TypeString, secret()),
	key("gitlab_rails.redis_shared_state_instance", TypeString, secret()),
	key("gitlab_rails.redis_actioncable_instance", TypeString, secret()),

	// gitlab_rails: geo and signing keys
	key("gitlab_rails.geo_primary_role", TypeBool, def(Bool(false))),
	key("gitlab_rails.geo_secondary_role", TypeBool, def(Bool(false))),
	key("gitlab_rails.geo_node_name", TypeString),
	key("gitlab_rails.geo_postgresql", TypeMap, nested(), desc("tracking database of a secondary")),
	key("gitlab_rails.db_key_base", TypeString, secret()),
	key("gitlab_rails.secret_key_base", TypeString, secret()),
	key("gitlab_rails.otp_key_base", TypeString, secret()),
	key("gitlab_rails.auto_migrate", TypeBool, def(Bool(true))),

	// gitlab_rails: general
	key("gitlab_rails.gitlab_ssh_host", TypeString),
	key("gitlab_rails.gitlab_shell_ssh_port", TypeInt, def(Int(22))),
	key("gitlab_rails.gitlab_email_from", TypeString),
	key("gitlab_rails.gitaly_token", TypeString, secret()),
	key("gitlab_rails.env", TypeMap, nested()),
	key("gitlab_rails.time_zone", TypeString, def(String("UTC"))),

	// gitlab_rails: ldap
	key("gitlab_rails.ldap_enabled", TypeBool, def(Bool(false))),
	key("gitlab_rails.ldap_servers", TypeMap, nested()),
	key("gitlab_rails.ldap_sync_worker_cron", TypeString),
	key("gitlab_rails.ldap_group_sync_worker_cron", TypeString),
	key("gitlab_rails.prevent_ldap_sign_in", TypeBool, def(Bool(false))),

	// gitlab_rails: ci
	key("gitlab_rails.gitlab_default_projects_features_builds", TypeBool, def(Bool(true))),
	key("gitlab_rails.gitlab_ci_default_timeout", TypeDuration, unit(time.Second)),
	key("gitlab_rails.ci_pipeline_schedule_worker_cron", TypeString),
	key("gitlab_rails.gitlab_ci_all_broken_builds_worker_cron", TypeString),
	key("gitlab_rails.gitlab_ci_pipeline_cache_expiry_worker_cron", TypeString),
	key("gitlab_rails.gitlab_ci_shared_runners_enabled", TypeBool),
	key("gitlab_rails.gitlab_ci_shared_runners_text", TypeString),
	key("gitlab_rails.sidekiq_queues", TypeList, nested()),

	key("puma.worker_processes", TypeInt),
	key("puma.port", TypeInt, def(Int(8080))),
	key("sidekiq.concurrency", TypeInt, def(Int(20))),
	key("nginx.listen_port", TypeInt),
	key("nginx.listen_https", TypeBool),

	key("postgresql.listen_address", TypeString),
	key("postgresql.port", TypeInt, def(Int(5432))),
	key("postgresql.shared_buffers", TypeString),
	key("postgresql.work_mem", TypeString),
	key("postgresql.maintenance_work_mem", TypeString),
	key("postgresql.max_connections", TypeInt),
	key("postgresql.max_worker_processes", TypeInt),
	key("postgresql.log_min_duration_statement", TypeDuration, unit(time.Millisecond)),
	key("postgresql.hot_standby", TypeString, enum(onOff...)),
	key("postgresql.random_page_cost", TypeString),
	key("postgresql.log_temp_files", TypeInt),
	key("postgresql.log_checkpoints", TypeString, enum(onOff...)),
	key("postgresql.password", TypeString, secret()),
	key("postgresql.sql_user_password", TypeString, secret()),
	key("postgresql.sql_replication_password", TypeString, secret()),
	key("postgresql.md5_auth_cidr_addresses", TypeList, nested()),
	key("postgresql.trust_auth_cidr_addresses", TypeList, nested()),
	key("postgresql.max_wal_senders", TypeInt),
	key("postgresql.wal_keep_segments", TypeInt, until("16.0.0")),

	key("redis.bind", TypeString, def(String("127.0.0.1"))),
	key("redis.port", TypeInt, def(Int(6379))),
	key("redis.password", TypeString, secret()),
	key("redis.maxmemory", TypeString),
	key("redis.maxmemory_policy", TypeString, enum(
		"noeviction", "allkeys-lru", "volatile-lru", "allkeys-lfu",
		"volatile-lfu", "allkeys-random", "volatile-random", "volatile-ttl")),
	key("redis.tcp_timeout", TypeDuration, unit(time.Second)),
	key("redis.tcp_keepalive", TypeDuration, unit(time.Second)),
	key("redis.databases", TypeInt, def(Int(16))),

	key("gitaly.listen_addr", TypeString),
	key("gitaly.auth_token", TypeString, secret()),
	key("gitaly.ruby_num_workers", TypeInt, until("16.0.0")),
	key("gitaly.concurrency", TypeList, until("16.0.0")),
	key("gitaly.configuration", TypeMap, nested(), since("15.10.0")),
	key("gitaly.logging_level", TypeString, enum("debug", "info", "warn", "error")),
	key("gitaly.logging_format", TypeString, enum("json", "text")),
	key("gitaly.log_directory", TypeString, def(String("/var/log/gitlab/gitaly"))),

	key("logging.logrotate_frequency", TypeString, def(String("daily")), enum("hourly", "daily", "weekly", "monthly")),
	key("logging.logrotate_size", TypeString),
}

var builtinReferences = []Reference{
	{Anchor: "gitlab_rails.db_host", Companions: []string{"gitlab_rails.db_port", "gitlab_rails.db_username", "gitlab_rails.db_password"}},
	{Anchor: "gitlab_rails.redis_host", Companions: []string{"gitlab_rails.redis_port"}},
	{Anchor: "gitlab_rails.ldap_enabled", Companions: []string{"gitlab_rails.ldap_servers"}},
	{Anchor: "gitaly.listen_addr", Companions: []string{"gitaly.auth_token"}},
}

// Builtin returns a fresh copy of the built-in Omnibus key catalog.
func Builtin() *Schema {
	s := &Schema{
		Keys:       make(map[string]ConfigKey, len(builtinKeys)+len(serviceFlags)),
		References: make([]Reference, 0, len(builtinReferences)),
	}
	for _, f := range serviceFlags {
		k := key(f.name+".enable", TypeBool, append([]keyOpt{def(Bool(f.on))}, f.opts...)...)
		s.Keys[k.Path] = k
	}
	for _, k := range builtinKeys {
		s.Keys[k.Path] = k
	}
	for _, r := range builtinReferences {
		s.References = append(s.References, Reference{
			Anchor:     r.Anchor,
			Companions: append([]string(nil), r.Companions...),
		})
	}
	return s
}

// DefaultLayer returns every declared default keyed by path.
func (s *Schema) DefaultLayer() map[string]Value {
	out := make(map[string]Value)
	for p, k := range s.Keys {
		if k.HasDefault() {
			out[p] = k.Default
		}
	}
	return out
}
