package command

import (
	"context"
	"strings"
)

// Command names understood by the server.
const (
	NameRegister        = "register"
	NameLogin           = "login"
	NameUpdateUser      = "update-user"
	NameResetPassword   = "reset-password"
	NameLogout          = "logout"
	NameAddAdminUser    = "add-admin-user"
	NameRemoveAdminUser = "remove-admin-user"
	NameDeleteUser      = "delete-user"
	NameExit            = "exit"
)

// Param declares one named argument of a command.
type Param struct {
	Name     string
	Required bool
}

func required(name string) Param { return Param{Name: name, Required: true} }
func optional(name string) Param { return Param{Name: name} }

// call is what a handler sees: validated arguments plus the caller's address.
type call struct {
	args       map[string]string
	remoteAddr string
}

func (c call) arg(name string) string { return c.args[name] }

// optArg returns a pointer to the argument value, or nil when absent.
func (c call) optArg(name string) *string {
	v, ok := c.args[name]
	if !ok {
		return nil
	}
	return &v
}

type handlerFunc func(ctx context.Context, d *Dispatcher, c call) (Response, error)

// variant is one entry of the closed command set.
type variant struct {
	name    string
	params  []Param
	handler handlerFunc
}

// variants is the closed command set keyed by name.
var variants map[string]variant

func init() {
	list := []variant{
		{
			name: NameRegister,
			params: []Param{
				required("username"), required("password"),
				required("first-name"), required("last-name"), required("email"),
			},
			handler: handleRegister,
		},
		{
			name:    NameLogin,
			params:  []Param{optional("username"), optional("password"), optional("session-id")},
			handler: handleLogin,
		},
		{
			name: NameUpdateUser,
			params: []Param{
				required("session-id"),
				optional("new-username"), optional("new-first-name"),
				optional("new-last-name"), optional("new-email"),
			},
			handler: handleUpdateUser,
		},
		{
			name: NameResetPassword,
			params: []Param{
				required("session-id"), required("username"),
				required("old-password"), required("new-password"),
			},
			handler: handleResetPassword,
		},
		{
			name:    NameLogout,
			params:  []Param{required("session-id")},
			handler: handleLogout,
		},
		{
			name:    NameAddAdminUser,
			params:  []Param{required("session-id"), required("username")},
			handler: handleAddAdmin,
		},
		{
			name:    NameRemoveAdminUser,
			params:  []Param{required("session-id"), required("username")},
			handler: handleRemoveAdmin,
		},
		{
			name:    NameDeleteUser,
			params:  []Param{required("session-id"), required("username")},
			handler: handleDeleteUser,
		},
		{
			name:    NameExit,
			handler: handleExit,
		},
	}

	variants = make(map[string]variant, len(list))
	for _, v := range list {
		variants[v.name] = v
	}
}

// Params returns the declared parameters of the named command.
func Params(name string) ([]Param, bool) {
	v, ok := variants[name]
	if !ok {
		return nil, false
	}
	return append([]Param(nil), v.params...), true
}

// checkArgs rejects unknown arguments first, then missing required ones.
// It returns the response text to send, or "" when the request is acceptable.
func checkArgs(params []Param, req Request) string {
	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[p.Name] = true
	}

	var unknown []string
	for _, name := range req.Order {
		if !declared[name] {
			unknown = append(unknown, ArgPrefix+name)
		}
	}
	if len(unknown) > 0 {
		return msgUnknownParams + strings.Join(unknown, ", ")
	}

	var missing []string
	for _, p := range params {
		if p.Required && !req.Has(p.Name) {
			missing = append(missing, ArgPrefix+p.Name)
		}
	}
	if len(missing) > 0 {
		return msgMissingParams + strings.Join(missing, ", ")
	}
	return ""
}
