package command

import (
	"fmt"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/metrics"
)

const (
	msgParseError     = "Could not parse command: "
	msgUnknownCommand = "Unknown command"
	msgUnknownParams  = "Could not execute command, unknown parameters: "
	msgMissingParams  = "Could not execute command, the following required arguments were not supplied: "
	msgInternalError  = "Internal server error, please try again later"
	msgExit           = "Have a good day! :)"

	msgRegistered    = "User successfully registered"
	msgUsernameTaken = "Could not register: username is already taken"

	msgLoggedIn     = "Logged in successfully, new session id is: \n"
	msgFailedLogin  = "Failed login: invalid username or password"
	msgLockedUser   = "Failed login: user is locked, try again later"
	msgLoginUsage   = "Invalid usage of command"
	msgBadSessionID = "Session id is not a valid UUID"
	msgNoSession    = "Session id does not correspond to any users"
	msgLoggedOut    = "User logged out successfully"

	msgUpdated       = "User updated successfully"
	msgUpdateIssues  = "Did not update user, issues: "
	msgRenameTaken   = "Username is already taken"
	msgPasswordReset = "Password was reset successfully"
	msgOldPassword   = "Old password does not match the logged-in users"
	msgWrongUsername = "Given username does not match the logged-in user's"

	msgAdminAdded      = "User was set as admin successfully"
	msgAlreadyAdmin    = "User is already admin, nothing has changed"
	msgAdminRemoved    = "User's admin privileges were removed successfully"
	msgNotAdmin        = "User is not admin, nothing has changed"
	msgUserDeleted     = "User deleted successfully"
	msgQuorumRevoke    = "Cannot remove privileges of user, there must be at least %d admins on the platform"
	msgQuorumDelete    = "Cannot delete user, there must be at least %d admins on the platform"
	msgTargetNotFound  = "User %s was not found"
	msgNotAuthorized   = "User %s is not authorized"
	msgInvalidFieldFmt = "Invalid %s: %s"
)

// Response is the outcome of one executed command.
type Response struct {
	Text string
	// Result is the metrics result tag.
	Result string
	// Close asks the transport to hang up after writing Text.
	Close bool
}

func ok(text string) Response { return Response{Text: text, Result: metrics.ResultSuccess} }

func denied(text string) Response { return Response{Text: text, Result: metrics.ResultDenied} }

func deniedf(format string, args ...any) Response { return denied(fmt.Sprintf(format, args...)) }

// ResponseLines reports how many newline-terminated lines a response occupies
// on the wire, given its first line. Only a successful login spans two: the
// announcement and the new session id.
func ResponseLines(first string) int {
	if first+"\n" == msgLoggedIn {
		return 2
	}
	return 1
}
