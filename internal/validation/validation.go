// Package validation holds the password and email rules applied at registration and profile updates.
package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
)

// Violation messages. Clients see them verbatim.
const (
	MsgPasswordTooShort    = "Password is too short, must be at least %d characters long"
	MsgPasswordNoLowercase = "Password must contain a lowercase letter"
	MsgPasswordNoUppercase = "Password must contain an uppercase letter"
	MsgPasswordNoDigit     = "Password must contain a digit"

	MsgEmailNoAt          = "No @ symbol found"
	MsgEmailNoDots        = "No dots found"
	MsgEmailTLDLength     = "Top-level domain is not between 2 and 4 characters long"
	MsgEmailNoSecondLevel = "Second-level domain not found"
	MsgEmailAtAtBeginning = "@ sign can not be in the beginning of the email"
)

const (
	defaultPasswordMinLen = 8
	tldMinLen             = 2
	tldMaxLen             = 4
)

var (
	_ ports.Validator = Password{}
	_ ports.Validator = Email{}
)

// Password requires a minimum length plus at least one lowercase letter,
// one uppercase letter and one digit.
type Password struct {
	MinLength int
}

// NewPassword returns a password validator; a non-positive minLength uses the default of 8.
func NewPassword(minLength int) Password {
	if minLength <= 0 {
		minLength = defaultPasswordMinLen
	}
	return Password{MinLength: minLength}
}

// Validate returns every rule the password breaks.
func (p Password) Validate(value string) []string {
	var violations []string
	if utf8.RuneCountInString(value) < p.MinLength {
		violations = append(violations, fmt.Sprintf(MsgPasswordTooShort, p.MinLength))
	}

	var lower, upper, digit bool
	for _, r := range value {
		lower = lower || unicode.IsLower(r)
		upper = upper || unicode.IsUpper(r)
		digit = digit || unicode.IsDigit(r)
	}
	if !lower {
		violations = append(violations, MsgPasswordNoLowercase)
	}
	if !upper {
		violations = append(violations, MsgPasswordNoUppercase)
	}
	if !digit {
		violations = append(violations, MsgPasswordNoDigit)
	}
	return violations
}

// Email is a loose structural check: an @ that is not the first character, and
// a domain part with a non-empty second-level label and a 2-4 character TLD.
type Email struct{}

// Validate returns every rule the address breaks.
func (Email) Validate(value string) []string {
	var violations []string

	at := strings.LastIndexByte(value, '@')
	dot := strings.LastIndexByte(value, '.')

	if at < 0 {
		violations = append(violations, MsgEmailNoAt)
	}
	if dot < 0 {
		violations = append(violations, MsgEmailNoDots)
	} else if tld := len(value) - dot - 1; tld < tldMinLen || tld > tldMaxLen {
		violations = append(violations, MsgEmailTLDLength)
	}
	if at >= 0 && dot-at < 2 {
		violations = append(violations, MsgEmailNoSecondLevel)
	}
	if at == 0 {
		violations = append(violations, MsgEmailAtAtBeginning)
	}
	return violations
}
