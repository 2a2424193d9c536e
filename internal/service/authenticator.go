package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/metrics"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/statsd"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
)

// Policy holds the account rules enforced by the Authenticator.
type Policy struct {
	// MinAdminCount is the admin quorum that must hold at all times.
	MinAdminCount int
	// MaxLoginFailAttempts is the number of failures tolerated before a lock.
	// The account locks on the attempt that pushes the counter past this value.
	MaxLoginFailAttempts int
	LockDuration         time.Duration
}

// Validators groups the per-field validators used on registration and updates.
type Validators struct {
	Password ports.Validator
	Email    ports.Validator
}

// AuthenticatorOptions groups dependencies for Authenticator.
type AuthenticatorOptions struct {
	Users      ports.UserStore      // Required
	Sessions   *SessionRegistry     // Required
	Hasher     ports.PasswordHasher // Required
	Validators Validators           // Required
	Policy     Policy
	Now        func() time.Time // Optional: defaults to time.Now
	Logger     *slog.Logger     // Optional
	Metrics    statsd.Sink      // Optional
}

// Authenticator enforces registration, login, lockout and admin quorum rules
// on top of the user store and the session registry.
type Authenticator struct {
	users      ports.UserStore
	sessions   *SessionRegistry
	hasher     ports.PasswordHasher
	validators Validators
	policy     Policy
	now        func() time.Time
	logger     *slog.Logger
	metrics    statsd.Sink
}

// RegisterRequest carries the fields of a new account.
type RegisterRequest struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Email     string
	Authority domainauth.Authority
}

// UserUpdate lists profile changes. Nil fields are left untouched.
type UserUpdate struct {
	NewUsername  *string
	NewFirstName *string
	NewLastName  *string
	NewEmail     *string
}

// UpdateRejectedError reports every reason a profile update was refused.
type UpdateRejectedError struct {
	Issues []string
}

func (e *UpdateRejectedError) Error() string {
	return fmt.Sprintf("update rejected: %v", e.Issues)
}

// Unwrap lets callers match the rejection as a validation failure.
func (e *UpdateRejectedError) Unwrap() error { return domainauth.ErrValidation }

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(opts AuthenticatorOptions) (*Authenticator, error) {
	switch {
	case opts.Users == nil:
		return nil, errors.New("user store is required")
	case opts.Sessions == nil:
		return nil, errors.New("session registry is required")
	case opts.Hasher == nil:
		return nil, errors.New("password hasher is required")
	case opts.Validators.Password == nil || opts.Validators.Email == nil:
		return nil, errors.New("password and email validators are required")
	case opts.Policy.MinAdminCount < 0 || opts.Policy.MaxLoginFailAttempts < 0:
		return nil, errors.New("policy limits must not be negative")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Authenticator{
		users:      opts.Users,
		sessions:   opts.Sessions,
		hasher:     opts.Hasher,
		validators: opts.Validators,
		policy:     opts.Policy,
		now:        opts.Now,
		logger:     opts.Logger.With("component", "authenticator"),
		metrics:    opts.Metrics,
	}, nil
}

// MustNewAuthenticator panics when construction fails.
func MustNewAuthenticator(opts AuthenticatorOptions) *Authenticator {
	a, err := NewAuthenticator(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return a
}

// Policy returns the rules this Authenticator enforces.
func (a *Authenticator) Policy() Policy { return a.policy }

// Register creates an account. The username check runs before any validation,
// so a taken name is reported even when the password is also weak.
func (a *Authenticator) Register(ctx context.Context, req RegisterRequest) error {
	if _, err := a.users.Get(ctx, req.Username); err == nil {
		return domainauth.ErrUserExists
	} else if !errors.Is(err, domainauth.ErrUserNotFound) {
		return err
	}

	if err := validate("password", req.Password, a.validators.Password); err != nil {
		return err
	}
	hash, err := a.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := validate("email", req.Email, a.validators.Email); err != nil {
		return err
	}

	authority := req.Authority
	if authority == "" {
		authority = domainauth.AuthorityUser
	}
	user := domainauth.User{
		Username:   req.Username,
		Credential: domainauth.Credential{Hash: hash},
		Profile: domainauth.Profile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
		},
		Authority: authority,
	}
	if err := a.users.Add(ctx, user); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "user registered", "username", user.Username, "authority", user.Authority)
	return nil
}

// LoginWithPassword verifies credentials and mints a session.
//
// A wrong password bumps the stored failure counter; once it passes
// Policy.MaxLoginFailAttempts the account is locked for Policy.LockDuration
// and the counter starts over. A successful login clears the counter.
func (a *Authenticator) LoginWithPassword(ctx context.Context, username, password string) (domainauth.Session, error) {
	sess, err := a.loginWithPassword(ctx, username, password)
	metrics.EmitLogin(a.metrics, metrics.LoginPassword, loginResult(err))
	return sess, err
}

func (a *Authenticator) loginWithPassword(ctx context.Context, username, password string) (domainauth.Session, error) {
	user, err := a.users.Get(ctx, username)
	if err != nil {
		return domainauth.Session{}, err
	}

	now := a.now()
	if user.IsLocked(now) {
		return domainauth.Session{}, domainauth.ErrLockedUser
	}

	if err := a.hasher.Verify(user.Credential.Hash, password); err != nil {
		if !errors.Is(err, domainauth.ErrWrongCredential) {
			return domainauth.Session{}, fmt.Errorf("verify password: %w", err)
		}
		return domainauth.Session{}, a.recordFailedAttempt(ctx, user, now)
	}

	if user.Credential.FailedAttempts > 0 {
		user.Credential.FailedAttempts = 0
		if err := a.users.Replace(ctx, user.Username, user); err != nil {
			return domainauth.Session{}, err
		}
	}
	return a.sessions.Login(ctx, user.Username)
}

func (a *Authenticator) recordFailedAttempt(ctx context.Context, user domainauth.User, now time.Time) error {
	user.Credential.FailedAttempts++
	locked := user.Credential.FailedAttempts > a.policy.MaxLoginFailAttempts
	if locked {
		user.LockedUntil = now.Add(a.policy.LockDuration)
		user.Credential.FailedAttempts = 0
	}

	if err := a.users.Replace(ctx, user.Username, user); err != nil {
		return err
	}
	if locked {
		a.logger.WarnContext(ctx, "user locked after repeated login failures",
			"username", user.Username, "locked_until", user.LockedUntil)
	}
	return domainauth.ErrWrongCredential
}

// LoginWithSession renews a session. The old id stops resolving as soon as the new one exists.
func (a *Authenticator) LoginWithSession(ctx context.Context, sessionID string) (domainauth.Session, error) {
	sess, err := a.loginWithSession(ctx, sessionID)
	metrics.EmitLogin(a.metrics, metrics.LoginSession, loginResult(err))
	return sess, err
}

func (a *Authenticator) loginWithSession(ctx context.Context, sessionID string) (domainauth.Session, error) {
	user, err := a.GetUserBySession(ctx, sessionID)
	if err != nil {
		return domainauth.Session{}, err
	}
	return a.sessions.Login(ctx, user.Username)
}

// GetUserBySession resolves a session id to its owner. Ids that are not UUIDs
// fail with domainauth.ErrInvalidSessionID.
func (a *Authenticator) GetUserBySession(ctx context.Context, sessionID string) (domainauth.User, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return domainauth.User{}, domainauth.ErrInvalidSessionID
	}
	return a.sessions.GetUserBySession(ctx, sessionID)
}

// GetUser returns the account stored under username.
func (a *Authenticator) GetUser(ctx context.Context, username string) (domainauth.User, error) {
	return a.users.Get(ctx, username)
}

// Logout invalidates the session with the given id.
func (a *Authenticator) Logout(ctx context.Context, sessionID string) error {
	user, err := a.GetUserBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	sess := domainauth.Session{ID: sessionID, Username: user.Username}
	if err := a.sessions.Invalidate(ctx, sess); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "user logged out", "username", user.Username, "session", sess.ShortID())
	return nil
}

// DeleteUser drops the account and its session. Deleting an admin is refused
// when it would break the admin quorum.
func (a *Authenticator) DeleteUser(ctx context.Context, username string) error {
	user, err := a.users.Get(ctx, username)
	if err != nil {
		return err
	}
	if user.IsAdmin() {
		if err := a.checkQuorum(ctx); err != nil {
			return err
		}
	}

	if err := a.sessions.InvalidateUser(ctx, username); err != nil {
		return err
	}
	if err := a.users.Remove(ctx, username); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "user deleted", "username", username)
	return nil
}

// ReplaceUser rewrites the record stored under oldUsername. When the username
// changes, the user's live session follows the rename. The session moves first
// and is moved back if the record cannot be rewritten, so a failure never leaves
// a session owned by a username that does not exist.
func (a *Authenticator) ReplaceUser(ctx context.Context, oldUsername string, user domainauth.User) error {
	if oldUsername == user.Username {
		return a.users.Replace(ctx, oldUsername, user)
	}

	// Moving a session onto a taken username would evict that user's session.
	if _, err := a.users.Get(ctx, user.Username); err == nil {
		return domainauth.ErrUserExists
	} else if !errors.Is(err, domainauth.ErrUserNotFound) {
		return err
	}

	if err := a.sessions.Rename(ctx, oldUsername, user.Username); err != nil {
		return fmt.Errorf("move session to renamed user: %w", err)
	}
	if err := a.users.Replace(ctx, oldUsername, user); err != nil {
		if rbErr := a.sessions.Rename(ctx, user.Username, oldUsername); rbErr != nil {
			a.logger.ErrorContext(ctx, "failed to move session back after rename failure",
				"from", user.Username, "to", oldUsername, "error", rbErr)
			return errors.Join(err, fmt.Errorf("move session back: %w", rbErr))
		}
		return err
	}
	a.logger.InfoContext(ctx, "user renamed", "from", oldUsername, "to", user.Username)
	return nil
}

// AdminCount returns the number of ADMIN accounts.
func (a *Authenticator) AdminCount(ctx context.Context) (int, error) {
	return a.users.AdminCount(ctx)
}

// UpdateUser applies profile changes to user. Every problem is collected into
// one *UpdateRejectedError and nothing is written unless all checks pass.
func (a *Authenticator) UpdateUser(ctx context.Context, user domainauth.User, upd UserUpdate) (domainauth.User, error) {
	var issues []string

	if upd.NewUsername != nil && *upd.NewUsername != user.Username {
		_, err := a.users.Get(ctx, *upd.NewUsername)
		switch {
		case err == nil:
			issues = append(issues, "Username is already taken")
		case !errors.Is(err, domainauth.ErrUserNotFound):
			return domainauth.User{}, err
		}
	}
	if upd.NewEmail != nil {
		issues = append(issues, a.validators.Email.Validate(*upd.NewEmail)...)
	}
	if len(issues) > 0 {
		return domainauth.User{}, &UpdateRejectedError{Issues: issues}
	}

	oldUsername := user.Username
	if upd.NewUsername != nil {
		user.Username = *upd.NewUsername
	}
	if upd.NewFirstName != nil {
		user.Profile.FirstName = *upd.NewFirstName
	}
	if upd.NewLastName != nil {
		user.Profile.LastName = *upd.NewLastName
	}
	if upd.NewEmail != nil {
		user.Profile.Email = *upd.NewEmail
	}

	if err := a.ReplaceUser(ctx, oldUsername, user); err != nil {
		return domainauth.User{}, err
	}
	return user, nil
}

// ResetPassword swaps user's password after checking the old one.
func (a *Authenticator) ResetPassword(ctx context.Context, user domainauth.User, oldPassword, newPassword string) error {
	if err := a.hasher.Verify(user.Credential.Hash, oldPassword); err != nil {
		if errors.Is(err, domainauth.ErrWrongCredential) {
			return err
		}
		return fmt.Errorf("verify password: %w", err)
	}
	if err := validate("password", newPassword, a.validators.Password); err != nil {
		return err
	}
	hash, err := a.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user.Credential = domainauth.Credential{Hash: hash}
	if err := a.users.Replace(ctx, user.Username, user); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "password reset", "username", user.Username)
	return nil
}

// GrantAdmin promotes username to ADMIN. It reports false when the user already was one.
func (a *Authenticator) GrantAdmin(ctx context.Context, username string) (bool, error) {
	user, err := a.users.Get(ctx, username)
	if err != nil {
		return false, err
	}
	if user.IsAdmin() {
		return false, nil
	}
	user.Authority = domainauth.AuthorityAdmin
	if err := a.users.Replace(ctx, username, user); err != nil {
		return false, err
	}
	return true, nil
}

// RevokeAdmin demotes username to USER. It reports false when the user was not
// an admin and fails with domainauth.ErrAdminQuorum when the quorum would break.
func (a *Authenticator) RevokeAdmin(ctx context.Context, username string) (bool, error) {
	user, err := a.users.Get(ctx, username)
	if err != nil {
		return false, err
	}
	if !user.IsAdmin() {
		return false, nil
	}
	if err := a.checkQuorum(ctx); err != nil {
		return false, err
	}
	user.Authority = domainauth.AuthorityUser
	if err := a.users.Replace(ctx, username, user); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Authenticator) checkQuorum(ctx context.Context) error {
	count, err := a.users.AdminCount(ctx)
	if err != nil {
		return err
	}
	if count <= a.policy.MinAdminCount {
		return domainauth.ErrAdminQuorum
	}
	return nil
}

func validate(field, value string, v ports.Validator) error {
	if violations := v.Validate(value); len(violations) > 0 {
		return &domainauth.ValidationError{Field: field, Violations: violations}
	}
	return nil
}

func loginResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case isDenial(err):
		return metrics.ResultDenied
	default:
		return metrics.ResultError
	}
}

// isDenial reports whether err is an expected authentication refusal rather than a fault.
func isDenial(err error) bool {
	return errors.Is(err, domainauth.ErrUserNotFound) ||
		errors.Is(err, domainauth.ErrWrongCredential) ||
		errors.Is(err, domainauth.ErrLockedUser) ||
		errors.Is(err, domainauth.ErrSessionNotFound) ||
		errors.Is(err, domainauth.ErrInvalidSessionID)
}
