/*
Copyright © 2025 KLS Core Contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package kerrors classifies the error kinds the core can raise and
// carries the propagation policy: everything at an LSP request boundary
// is caught and converted to a structurally neutral response.
package kerrors

import (
	"errors"
	"fmt"

	"kotlinlsp.dev/core/internal/logging"
)

// Kind identifies one of the error categories the core distinguishes.
type Kind int

const (
	// KindResolverFailure is a recoverable classpath resolution failure.
	// The resolver state moves to FAILED; positional features keep working
	// in degraded mode.
	KindResolverFailure Kind = iota
	// KindCompileError never reaches a caller; it becomes a diagnostic.
	KindCompileError
	// KindParseError yields a best-effort partial tree.
	KindParseError
	// KindIndexUnavailable covers lock timeouts, I/O errors, and
	// serialization anomalies on the symbol index.
	KindIndexUnavailable
	// KindStoreCorruption covers schema mismatches and identity-map
	// desync; recovered by wipe-and-rebuild on next startup.
	KindStoreCorruption
	// KindCancelled is never surfaced to the client.
	KindCancelled
	// KindFatal is reserved for uncaught initialization failures.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindResolverFailure:
		return "resolver_failure"
	case KindCompileError:
		return "compile_error"
	case KindParseError:
		return "parse_error"
	case KindIndexUnavailable:
		return "index_unavailable"
	case KindStoreCorruption:
		return "store_corruption"
	case KindCancelled:
		return "cancelled"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind, so that callers at a
// request boundary can classify it with errors.As without string-matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap produces a *Error of the given kind, matching the teacher's plain
// fmt.Errorf("...: %w", err) chains rather than a custom framework.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}

// Cancelled is the sentinel returned by cooperative-cancellation checks.
var Cancelled = &Error{Kind: KindCancelled, Op: "cancelled"}

// IsCancelled reports whether err represents a cooperative cancellation.
func IsCancelled(err error) bool {
	return Is(err, KindCancelled)
}

// Neutral produces the zero value of T, used as the structural "empty"
// response every LSP request boundary falls back to on error.
func Neutral[T any]() T {
	var zero T
	return zero
}

// LogAndNeutral logs err at the level appropriate to its Kind and returns
// the neutral response for T, implementing the propagation policy from
// spec §7: background tasks and request boundaries catch, log, and
// continue rather than propagate.
func LogAndNeutral[T any](op string, err error) T {
	if err == nil {
		return Neutral[T]()
	}
	var ke *Error
	if errors.As(err, &ke) {
		switch ke.Kind {
		case KindCancelled:
			// never surfaced, never even logged at Info — this is routine.
		case KindIndexUnavailable, KindParseError:
			logging.Info("%s: %v", op, err)
		case KindResolverFailure, KindCompileError:
			logging.Warning("%s: %v", op, err)
		case KindStoreCorruption, KindFatal:
			logging.Error("%s: %v", op, err)
		default:
			logging.Error("%s: %v", op, err)
		}
	} else {
		logging.Error("%s: %v", op, err)
	}
	return Neutral[T]()
}
