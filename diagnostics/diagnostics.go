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

// Package diagnostics implements component I: DiagnosticsManager. A
// pending-uri set behind a lock, debounced via the same
// time.AfterFunc-under-mutex pattern as the teacher's
// InProcessGenerateWatcher, suppressed entirely while the classpath is
// not READY so a half-resolved project never surfaces false errors.
package diagnostics

import (
	"context"

	"kotlinlsp.dev/core/symbol"
)

// Severity mirrors LSP's DiagnosticSeverity, ordered most to least
// severe for config.level filtering.
type Severity string

const (
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
	SeverityHint        Severity = "hint"
)

var severityRank = map[Severity]int{
	SeverityError:       0,
	SeverityWarning:     1,
	SeverityInformation: 2,
	SeverityHint:        3,
}

// MeetsLevel reports whether sev is at least as severe as the
// configured threshold level (lower rank = more severe).
func MeetsLevel(sev, level Severity) bool {
	r, ok := severityRank[sev]
	if !ok {
		r = severityRank[SeverityWarning]
	}
	threshold, ok := severityRank[level]
	if !ok {
		threshold = severityRank[SeverityWarning]
	}
	return r <= threshold
}

// Diagnostic is one reported issue against a file.
type Diagnostic struct {
	Range    symbol.Range
	Severity Severity
	Message  string
	Source   string
}

// CancelCallback reports whether the Manager has since been closed, so
// a long-running LintAction can short-circuit its own work instead of
// only being checked at the publish boundary (spec §4.I).
type CancelCallback func() bool

// LintAction runs lint analysis over the given URIs and returns
// diagnostics grouped by URI. It is invoked by the debouncer when it
// fires (scheduleLint) or immediately (lintImmediately). cancelled
// reports whether a concurrent Close has since fired, letting the
// action poll it between expensive steps and bail out early.
type LintAction func(ctx context.Context, uris []string, cancelled CancelCallback) (map[string][]Diagnostic, error)

// Publisher is the narrow LSP-transport surface DiagnosticsManager
// needs: publishing a file's current diagnostic set.
type Publisher interface {
	PublishDiagnostics(uri string, diagnostics []Diagnostic)
}

// OpenChecker reports whether a URI is currently open in the editor —
// satisfied by sourcefiles.Tracker.IsOpen.
type OpenChecker interface {
	IsOpen(uri string) bool
}
