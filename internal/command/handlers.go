package command

import (
	"context"
	"errors"
	"strings"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/domain/audit"
	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/metrics"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/service"
)

func handleRegister(ctx context.Context, d *Dispatcher, c call) (Response, error) {
	return register(ctx, d, c, domainauth.AuthorityUser)
}

func register(ctx context.Context, d *Dispatcher, c call, authority domainauth.Authority) (Response, error) {
	err := d.auth.Register(ctx, service.RegisterRequest{
		Username:  c.arg("username"),
		Password:  c.arg("password"),
		FirstName: c.arg("first-name"),
		LastName:  c.arg("last-name"),
		Email:     c.arg("email"),
		Authority: authority,
	})
	if resp, handled := validationResponse(err); handled {
		return resp, nil
	}
	switch {
	case err == nil:
		return ok(msgRegistered), nil
	case errors.Is(err, domainauth.ErrUserExists):
		return denied(msgUsernameTaken), nil
	default:
		return Response{}, err
	}
}

// handleLogin uses password mode when both credentials are given and session
// mode when only a session id is. Any other combination is a usage error.
func handleLogin(ctx context.Context, d *Dispatcher, c call) (Response, error) {
	_, hasUser := c.args["username"]
	_, hasPass := c.args["password"]
	_, hasSession := c.args["session-id"]

	switch {
	case hasUser && hasPass && !hasSession:
		return loginWithPassword(ctx, d, c)
	case hasSession && !hasUser && !hasPass:
		return loginWithSession(ctx, d, c)
	default:
		return denied(msgLoginUsage), nil
	}
}

func loginWithPassword(ctx context.Context, d *Dispatcher, c call) (Response, error) {
	username := c.arg("username")
	sess, err := d.auth.LoginWithPassword(ctx, username, c.arg("password"))

	var text string
	switch {
	case err == nil:
		return ok(msgLoggedIn + sess.ID), nil
	case errors.Is(err, domainauth.ErrLockedUser):
		text = msgLockedUser
	case errors.Is(err, domainauth.ErrUserNotFound), errors.Is(err, domainauth.ErrWrongCredential):
		text = msgFailedLogin
	default:
		return Response{}, err
	}

	d.record(ctx, audit.FailedLogin(d.now(), username, c.remoteAddr))
	return denied(text), nil
}

func loginWithSession(ctx context.Context, d *Dispatcher, c call) (Response, error) {
	sess, err := d.auth.LoginWithSession(ctx, c.arg("session-id"))
	if err == nil {
		return ok(msgLoggedIn + sess.ID), nil
	}
	if errors.Is(err, domainauth.ErrLockedUser) {
		return denied(msgLockedUser), nil
	}
	if resp, handled := sessionFailure(err); handled {
		return resp, nil
	}
	return Response{}, err
}

func handleLogout(ctx context.Context, d *Dispatcher, c call) (Response, error) {
	err := d.auth.Logout(ctx, c.arg("session-id"))
	if err == nil {
		return ok(msgLoggedOut), nil
	}
	if resp, handled := sessionFailure(err); handled {
		return resp, nil
	}
	return Response{}, err
}

func handleUpdateUser(ctx context.Context, d *Dispatcher, c call) (Response, error) {
	user, resp, err := d.caller(ctx, c)
	if user == nil {
		return resp, err
	}

	_, err = d.auth.UpdateUser(ctx, *user, service.UserUpdate{
		NewUsername:  c.optArg("new-username"),
		NewFirstName: c.optArg("new-first-name"),
		NewLastName:  c.optArg("new-last-name"),
		NewEmail:     c.optArg("new-email"),
	})
	var rejected *service.UpdateRejectedError
	switch {
	case err == nil:
		return ok(msgUpdated), nil
	case errors.As(err, &rejected):
		return denied(msgUpdateIssues + strings.Join(rejected.Issues, ", ")), nil
	case errors.Is(err, domainauth.ErrUserExists):
		return denied(msgRenameTaken), nil
	default:
		return Response{}, err
	}
}

func handleResetPassword(ctx context.Context, d *Dispatcher, c call) (Response, error) {
	user, resp, err := d.caller(ctx, c)
	if user == nil {
		return resp, err
	}
	if c.arg("username") != user.Username {
		return denied(msgWrongUsername), nil
	}

	err = d.auth.ResetPassword(ctx, *user, c.arg("old-password"), c.arg("new-password"))
	if resp, handled := validationResponse(err); handled {
		return resp, nil
	}
	switch {
	case err == nil:
		return ok(msgPasswordReset), nil
	case errors.Is(err, domainauth.ErrWrongCredential):
		return denied(msgOldPassword), nil
	default:
		return Response{}, err
	}
}

func handleAddAdmin(ctx context.Context, d *Dispatcher, c call) (Response, error) {
	return d.changeAuthority(ctx, c, audit.ActionAddAdmin, func(target string) (Response, error) {
		changed, err := d.auth.GrantAdmin(ctx, target)
		switch {
		case err != nil:
			return Response{}, err
		case !changed:
			return denied(msgAlreadyAdmin), nil
		default:
			return ok(msgAdminAdded), nil
		}
	})
}

func handleRemoveAdmin(ctx context.Context, d *Dispatcher, c call) (Response, error) {
	return d.changeAuthority(ctx, c, audit.ActionRemoveAdmin, func(target string) (Response, error) {
		changed, err := d.auth.RevokeAdmin(ctx, target)
		switch {
		case errors.Is(err, domainauth.ErrAdminQuorum):
			return deniedf(msgQuorumRevoke, d.auth.Policy().MinAdminCount), nil
		case err != nil:
			return Response{}, err
		case !changed:
			return denied(msgNotAdmin), nil
		default:
			return ok(msgAdminRemoved), nil
		}
	})
}

// changeAuthority wraps an admin grant or revoke in a begin/end pair of audit events.
func (d *Dispatcher) changeAuthority(ctx context.Context, c call, action audit.Action,
	apply func(target string) (Response, error),
) (Response, error) {
	performer, resp, err := d.caller(ctx, c)
	if performer == nil {
		return resp, err
	}

	target := c.arg("username")
	correlationID := d.newID()
	d.record(ctx, audit.BeginChange(d.now(), correlationID, performer.Username, c.remoteAddr, action, target))

	if performer.IsAdmin() {
		resp, err = apply(target)
		if errors.Is(err, domainauth.ErrUserNotFound) {
			resp, err = deniedf(msgTargetNotFound, target), nil
		}
	} else {
		resp = deniedf(msgNotAuthorized, performer.Username)
	}

	outcome := audit.OutcomeFailure
	if err == nil && resp.Result == metrics.ResultSuccess {
		outcome = audit.OutcomeSuccess
	}
	d.record(ctx, audit.EndChange(d.now(), correlationID, performer.Username, c.remoteAddr, outcome))
	return resp, err
}

func handleDeleteUser(ctx context.Context, d *Dispatcher, c call) (Response, error) {
	performer, resp, err := d.caller(ctx, c)
	if performer == nil {
		return resp, err
	}
	if !performer.IsAdmin() {
		return deniedf(msgNotAuthorized, performer.Username), nil
	}

	target := c.arg("username")
	err = d.auth.DeleteUser(ctx, target)
	switch {
	case err == nil:
		return ok(msgUserDeleted), nil
	case errors.Is(err, domainauth.ErrUserNotFound):
		return deniedf(msgTargetNotFound, target), nil
	case errors.Is(err, domainauth.ErrAdminQuorum):
		return deniedf(msgQuorumDelete, d.auth.Policy().MinAdminCount), nil
	default:
		return Response{}, err
	}
}

func handleExit(context.Context, *Dispatcher, call) (Response, error) {
	resp := ok(msgExit)
	resp.Close = true
	return resp, nil
}

// caller resolves the session-id argument. A nil user means resp (or err) is final.
func (d *Dispatcher) caller(ctx context.Context, c call) (*domainauth.User, Response, error) {
	user, err := d.auth.GetUserBySession(ctx, c.arg("session-id"))
	if err == nil {
		return &user, Response{}, nil
	}
	if resp, handled := sessionFailure(err); handled {
		return nil, resp, nil
	}
	return nil, Response{}, err
}

func sessionFailure(err error) (Response, bool) {
	switch {
	case errors.Is(err, domainauth.ErrInvalidSessionID):
		return denied(msgBadSessionID), true
	case errors.Is(err, domainauth.ErrSessionNotFound):
		return denied(msgNoSession), true
	default:
		return Response{}, false
	}
}

func validationResponse(err error) (Response, bool) {
	var verr *domainauth.ValidationError
	if !errors.As(err, &verr) {
		return Response{}, false
	}
	return deniedf(msgInvalidFieldFmt, verr.Field, strings.Join(verr.Violations, ", ")), true
}
