// Package error holds errors shared by the server packages.
package error

import "errors"

var (
	ErrTypeAssertMismatch = errors.New("type assertion mismatch")
	ErrUnauthenticated    = errors.New("no authenticated user on the request")
)
