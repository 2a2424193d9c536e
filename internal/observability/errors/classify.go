package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	apperrors "github.com/bilyanhadzhi/auth-server-mjt/internal/errors"
)

// Classify returns a normalized error class suitable for tagging metrics/logs.
// AppErrors report their code and validation failures report "validation";
// anything else is named after the innermost concrete type in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	if goerrors.Is(err, domainauth.ErrValidation) {
		return "validation"
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
