package config

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// StorageConfig locates the durable tables and the audit file.
type StorageConfig struct {
	UsersPath    string `env:"USERS_PATH"     envDefault:"users.tsv"`
	SessionsPath string `env:"SESSIONS_PATH"  envDefault:"sessions.tsv"`
	AuditLogPath string `env:"AUDIT_LOG_PATH" envDefault:"audit.log"`
}

// Sanitize trims the paths and restores defaults for blank ones.
func (s *StorageConfig) Sanitize() {
	s.UsersPath = orDefault(s.UsersPath, "users.tsv")
	s.SessionsPath = orDefault(s.SessionsPath, "sessions.tsv")
	s.AuditLogPath = orDefault(s.AuditLogPath, "audit.log")
}

// PolicyConfig holds the account and session rules.
type PolicyConfig struct {
	// MinAdminCount is the admin quorum. Startup bootstraps admins until it
	// holds, and demotions or deletions that would break it are refused.
	MinAdminCount int `env:"MIN_ADMIN_COUNT" envDefault:"1"`

	// MaxLoginFailAttempts is the number of consecutive failures tolerated
	// before lock: the account locks on failure number MaxLoginFailAttempts+1.
	MaxLoginFailAttempts int `env:"MAX_LOGIN_FAIL_ATTEMPTS" envDefault:"3"`

	LockDuration      time.Duration `env:"LOCK_DURATION"       envDefault:"15m"`
	SessionLength     time.Duration `env:"SESSION_LENGTH"      envDefault:"15m"`
	PasswordMinLength int           `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	BcryptCost        int           `env:"BCRYPT_COST"         envDefault:"10"`
}

// Sanitize clamps policy values into usable ranges.
func (p *PolicyConfig) Sanitize() {
	if p.MinAdminCount < 1 {
		p.MinAdminCount = 1
	}
	if p.MaxLoginFailAttempts < 0 {
		p.MaxLoginFailAttempts = 0
	}
	if p.LockDuration <= 0 {
		p.LockDuration = 15 * time.Minute
	}
	if p.SessionLength <= 0 {
		p.SessionLength = 15 * time.Minute
	}
	if p.PasswordMinLength < 1 {
		p.PasswordMinLength = 1
	}
	if p.BcryptCost < bcrypt.MinCost || p.BcryptCost > bcrypt.MaxCost {
		p.BcryptCost = bcrypt.DefaultCost
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
