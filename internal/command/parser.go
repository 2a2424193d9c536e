// Package command decodes request lines and executes them against the authenticator.
package command

import (
	"fmt"
	"strings"
)

// ArgPrefix marks an argument name on the wire.
const ArgPrefix = "--"

// ParseError reports a request line that could not be decoded.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "could not parse command: " + e.Reason }

// Text is the client-facing rendering of the error.
func (e *ParseError) Text() string { return msgParseError + e.Reason }

// Request is a decoded request line.
type Request struct {
	Name string
	// Args is keyed by argument name without the prefix.
	Args map[string]string
	// Order lists argument names as they appeared on the line.
	Order []string
}

// Has reports whether the argument was supplied.
func (r Request) Has(name string) bool {
	_, ok := r.Args[name]
	return ok
}

// Parse tokenizes line on whitespace. The first token names the command and the
// rest must be --name value pairs with no repeated names.
func Parse(line string) (Request, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Request{}, &ParseError{Reason: "empty command"}
	}
	if len(tokens)%2 == 0 {
		return Request{}, &ParseError{Reason: "token count is not odd"}
	}

	req := Request{
		Name:  tokens[0],
		Args:  make(map[string]string, len(tokens)/2),
		Order: make([]string, 0, len(tokens)/2),
	}
	for i := 1; i < len(tokens); i += 2 {
		raw, value := tokens[i], tokens[i+1]
		name, ok := strings.CutPrefix(raw, ArgPrefix)
		if !ok || name == "" {
			return Request{}, &ParseError{Reason: fmt.Sprintf("argument with invalid name: [%s]", raw)}
		}
		if req.Has(name) {
			return Request{}, &ParseError{Reason: fmt.Sprintf("multiple occurrences of argument: [%s]", raw)}
		}
		req.Args[name] = value
		req.Order = append(req.Order, name)
	}
	return req, nil
}
