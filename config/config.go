package config

// AppConfig is the main application configuration struct that composes
// the per-concern configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See the individual files for the
// available variables:
//   - server.go: TCP listener and framing limits
//   - policy.go: table paths and account policy
//   - audit.go: audit sink selection
//   - database.go: PostgreSQL and Redis connections
//   - observability.go: logging and metrics
type AppConfig struct {
	Server  ServerConfig  `envPrefix:"AUTH_SERVER_"`
	Storage StorageConfig `envPrefix:"AUTH_STORAGE_"`
	Policy  PolicyConfig  `envPrefix:"AUTH_POLICY_"`
	Audit   AuditConfig   `envPrefix:"AUTH_AUDIT_"`

	Postgres DBConfig    `envPrefix:"AUTH_DB_"`
	Redis    RedisConfig `envPrefix:"AUTH_REDIS_"`

	Observability ObservabilityConfig

	// BootstrapAdmin allows registering missing admins from stdin at startup.
	BootstrapAdmin bool `env:"AUTH_BOOTSTRAP_ADMIN" envDefault:"true"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Server.Sanitize()
	c.Storage.Sanitize()
	c.Policy.Sanitize()
	c.Redis.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports configuration that cannot be clamped into something usable.
func (c *AppConfig) Validate() error {
	_, err := c.Audit.EnabledSinks()
	return err
}

// PostgresRequired reports whether any enabled component needs a database connection.
func (c *AppConfig) PostgresRequired() bool {
	sinks, err := c.Audit.EnabledSinks()
	if err != nil {
		return false
	}
	return sinks[AuditSinkPostgres]
}
