// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as
// handlers and services to tell "row missing" apart from real database
// failures.
package repository

import "errors"

// ErrNotFound is returned when a lookup by identifier matches no row.
// Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as a payment callback for an attempt that is
// already settled.  Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
