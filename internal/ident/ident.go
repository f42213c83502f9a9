// Package ident validates user-supplied SQL identifiers.
//
// Table and column names arrive from the request path and body and end up
// interpolated into generated SQL, where they cannot be bound as
// parameters. Every such name must pass Validate first; there is no
// allow-list bypass.
package ident

import (
	"fmt"
	"regexp"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier %q", e.Name)
}

// Validate returns the name unchanged if it is a safe SQL identifier.
func Validate(name string) (string, error) {
	if !namePattern.MatchString(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return name, nil
}
