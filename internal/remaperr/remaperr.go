// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package remaperr defines the error taxonomy shared by every remap
// component: a Kind identifying the failure class, and constructors that
// wrap a Kind with the diagnostic detail the spec requires (offsets,
// expected/actual names, entry identifiers).
package remaperr

import (
	"errors"
	"fmt"
)

// Kind classifies a remap error so orchestrators can decide whether it is
// fatal-for-one-file or fatal-for-the-process.
type Kind uint8

const (
	// Invariant marks an internal consistency failure: a bug, not bad input.
	Invariant Kind = iota

	// IdentifierMismatch marks source bytes at a recorded span not matching
	// the recorded name.
	IdentifierMismatch

	// OverlappingReferences marks two references in one file overlapping.
	OverlappingReferences

	// UnexpectedEOF marks the input stream ending before a reference's span
	// was fully consumed.
	UnexpectedEOF

	// ConstantPoolDecode marks a malformed class-file constant pool.
	ConstantPoolDecode

	// UnsupportedTag marks an unknown constant-pool tag byte.
	UnsupportedTag

	// InvalidMappings marks a ClassMappings value that violates its own
	// invariants (e.g. an empty remapped name).
	InvalidMappings

	// BinaryMappings marks a malformed binary mapping file: bad header,
	// version, compression code, or truncated payload.
	BinaryMappings

	// IO marks a propagated filesystem/stream error.
	IO

	// Command marks a user-visible CLI misuse.
	Command
)

func (k Kind) String() string {
	switch k {
	case Invariant:
		return "invariant"
	case IdentifierMismatch:
		return "identifier-mismatch"
	case OverlappingReferences:
		return "overlapping-references"
	case UnexpectedEOF:
		return "unexpected-eof"
	case ConstantPoolDecode:
		return "constant-pool-decode"
	case UnsupportedTag:
		return "unsupported-tag"
	case InvalidMappings:
		return "invalid-mappings"
	case BinaryMappings:
		return "binary-mappings"
	case IO:
		return "io"
	case Command:
		return "command"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carrying a Kind plus a message, and an
// optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, remaperr.Sentinel(remaperr.IdentifierMismatch))
// work by comparing Kind against the Kind carried by a Sentinel value.
func (e *Error) Is(target error) bool {
	k, ok := target.(*kindSentinel)
	return ok && e.Kind == k.kind
}

type kindSentinel struct{ kind Kind }

func (k *kindSentinel) Error() string { return k.kind.String() }

// Sentinel returns a comparable value usable with errors.Is to test whether
// an error carries the given Kind, without needing the original message.
func Sentinel(k Kind) error { return &kindSentinel{kind: k} }

// New constructs an *Error of the given kind with a formatted message.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind, wrapping cause.
func Wrap(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// OfKind reports whether err (or anything it wraps) carries the given Kind.
func OfKind(err error, k Kind) bool {
	return errors.Is(err, Sentinel(k))
}
