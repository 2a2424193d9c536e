package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuditSinks(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[AuditSink]bool
		expectError bool
	}{
		{name: "file only", input: "file", expected: map[AuditSink]bool{AuditSinkFile: true}},
		{name: "postgres only", input: "postgres", expected: map[AuditSink]bool{AuditSinkPostgres: true}},
		{
			name:     "both with spaces",
			input:    " file , postgres ",
			expected: map[AuditSink]bool{AuditSinkFile: true, AuditSinkPostgres: true},
		},
		{name: "duplicates collapse", input: "file,file", expected: map[AuditSink]bool{AuditSinkFile: true}},
		{name: "empty string", input: "", expectError: true},
		{name: "only commas", input: " , ,", expectError: true},
		{name: "unknown sink", input: "file,syslog", expectError: true},
		{name: "case sensitive", input: "FILE", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAuditSinks(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}))
	cfg.Sanitize()

	assert.Equal(t, "localhost:8000", cfg.Server.Addr)
	assert.Equal(t, 256, cfg.Server.MaxConnections)
	assert.Equal(t, 5*time.Minute, cfg.Server.IdleTimeout)
	assert.Equal(t, 1024, cfg.Server.MaxLineBytes)

	assert.Equal(t, "users.tsv", cfg.Storage.UsersPath)
	assert.Equal(t, "sessions.tsv", cfg.Storage.SessionsPath)
	assert.Equal(t, "audit.log", cfg.Storage.AuditLogPath)

	assert.Equal(t, 1, cfg.Policy.MinAdminCount)
	assert.Equal(t, 3, cfg.Policy.MaxLoginFailAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Policy.LockDuration)
	assert.Equal(t, 15*time.Minute, cfg.Policy.SessionLength)
	assert.Equal(t, 8, cfg.Policy.PasswordMinLength)
	assert.Equal(t, 10, cfg.Policy.BcryptCost)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "authsrv:", cfg.Redis.KeyPrefix)
	assert.False(t, cfg.Observability.Metrics.IsEnabled())
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.True(t, cfg.BootstrapAdmin)

	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.PostgresRequired())
}

func TestAppConfig_EnvironmentOverrides(t *testing.T) {
	environ := map[string]string{
		"AUTH_SERVER_ADDR":                   ":9000",
		"AUTH_POLICY_MAX_LOGIN_FAIL_ATTEMPTS": "5",
		"AUTH_POLICY_SESSION_LENGTH":         "1h",
		"AUTH_AUDIT_SINKS":                   "file,postgres",
		"AUTH_DB_HOST":                       "db",
		"AUTH_REDIS_ENABLED":                 "true",
		"LOG_LEVEL":                          "DEBUG",
		"METRICS_ENABLED":                    "true",
		"STATSD_ADDRESS":                     "statsd:8125",
	}

	var cfg AppConfig
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: environ}))
	cfg.Sanitize()

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Policy.MaxLoginFailAttempts)
	assert.Equal(t, time.Hour, cfg.Policy.SessionLength)
	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.Metrics.IsEnabled())
	assert.True(t, cfg.PostgresRequired())
}

func TestAppConfig_ValidateRejectsUnknownSink(t *testing.T) {
	cfg := AppConfig{Audit: AuditConfig{Sinks: "kafka"}}
	require.Error(t, cfg.Validate())
	assert.False(t, cfg.PostgresRequired())
}

func TestServerConfig_Sanitize(t *testing.T) {
	s := ServerConfig{MaxConnections: -1, IdleTimeout: 0, WriteTimeout: -1, MaxLineBytes: 1}
	s.Sanitize()
	assert.Equal(t, 1, s.MaxConnections)
	assert.Equal(t, time.Second, s.IdleTimeout)
	assert.Equal(t, 10*time.Second, s.WriteTimeout)
	assert.Equal(t, 64, s.MaxLineBytes)

	s = ServerConfig{MaxConnections: 10, IdleTimeout: time.Minute, WriteTimeout: time.Second, MaxLineBytes: 10 << 20}
	s.Sanitize()
	assert.Equal(t, 1<<20, s.MaxLineBytes)
	assert.Equal(t, time.Minute, s.IdleTimeout)
}

func TestPolicyConfig_Sanitize(t *testing.T) {
	p := PolicyConfig{MinAdminCount: 0, MaxLoginFailAttempts: -2, BcryptCost: 99}
	p.Sanitize()
	assert.Equal(t, 1, p.MinAdminCount)
	assert.Equal(t, 0, p.MaxLoginFailAttempts)
	assert.Equal(t, 15*time.Minute, p.LockDuration)
	assert.Equal(t, 15*time.Minute, p.SessionLength)
	assert.Equal(t, 1, p.PasswordMinLength)
	assert.Equal(t, 10, p.BcryptCost)
}

func TestStorageConfig_SanitizeRestoresBlankPaths(t *testing.T) {
	s := StorageConfig{UsersPath: "  ", SessionsPath: " /var/lib/sessions.tsv "}
	s.Sanitize()
	assert.Equal(t, "users.tsv", s.UsersPath)
	assert.Equal(t, "/var/lib/sessions.tsv", s.SessionsPath)
	assert.Equal(t, "audit.log", s.AuditLogPath)
}

func TestDBConfig_DSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "u", Password: "secret", Name: "audit", SSLMode: "require"}
	assert.Equal(t, "postgres://u:secret@db:5432/audit?sslmode=require", c.DSN())
}

func TestRedisConfig_SanitizeDisablesWithoutAddress(t *testing.T) {
	r := RedisConfig{Enabled: true, URI: " ", DB: -1}
	r.Sanitize()
	assert.False(t, r.Enabled)
	assert.Equal(t, 0, r.DB)
}

func TestObservabilityConfig_SanitizeUnknownLevel(t *testing.T) {
	c := ObservabilityConfig{LogLevel: "verbose"}
	c.Sanitize()
	assert.Equal(t, "info", c.LogLevel)
}
