// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates malformed or incomplete input. Nothing is persisted.
var ErrValidation = errors.New("validation failed")

// ErrGuardrail indicates a transition was blocked by a guardrail
// (missing human approval, iteration limit reached). Fails closed.
var ErrGuardrail = errors.New("guardrail not satisfied")
