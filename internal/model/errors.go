// Package model defines the data shared across every pipeline stage: the
// wire-level Reading, the products of consensus, peer/reputation state, and
// the ledger submission lifecycle. Nothing in this package performs I/O.
package model

import (
	"errors"
	"fmt"
)

// Kind tags a domain error so call sites can branch on taxonomy without
// string matching, and so log lines carry a stable field regardless of the
// underlying cause.
type Kind string

const (
	KindConfig                 Kind = "config_error"
	KindTransientAdapter       Kind = "transient_adapter"
	KindInvalidReading         Kind = "invalid_reading"
	KindInsufficientContribs   Kind = "insufficient_contributors"
	KindNoConsensus            Kind = "no_consensus"
	KindTransientLedger        Kind = "transient_ledger"
	KindOverloaded             Kind = "overloaded"
	KindStakeInsufficient      Kind = "stake_insufficient"
	KindFatal                  Kind = "fatal"
)

// Error is the single wrapped-error type used across the node. It carries a
// Kind, a human message, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a *Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a *Error carrying cause as its Unwrap target.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
