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

package diagnostics

import (
	"context"
	"sync"
	"time"

	"kotlinlsp.dev/core/internal/logging"
)

// Manager is component I.
type Manager struct {
	mu            sync.Mutex
	pending       map[string]struct{}
	debounceTimer *time.Timer
	debounceTime  time.Duration

	action        LintAction
	publisher     Publisher
	openChecker   OpenChecker
	isClassPathReady func() bool
	level         Severity
	closed        bool
}

// New constructs a Manager. isClassPathReady gates the lint cycle
// (spec §4.I): diagnostics are suppressed entirely while it returns
// false.
func New(debounceTime time.Duration, level Severity, openChecker OpenChecker, isClassPathReady func() bool) *Manager {
	return &Manager{
		pending:          make(map[string]struct{}),
		debounceTime:     debounceTime,
		level:            level,
		openChecker:      openChecker,
		isClassPathReady: isClassPathReady,
	}
}

// Connect wires the publisher diagnostics are sent through.
func (m *Manager) Connect(publisher Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = publisher
}

// SetLintAction wires the analysis callback the debouncer invokes.
func (m *Manager) SetLintAction(action LintAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.action = action
}

// UpdateDebounceTime swaps the debounce duration used by future
// schedules; an in-flight timer keeps its already-scheduled duration.
func (m *Manager) UpdateDebounceTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debounceTime = d
}

// ScheduleLint inserts uri into the pending set and (re)schedules a
// debounced run.
func (m *Manager) ScheduleLint(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.pending[uri] = struct{}{}
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.debounceTimer = time.AfterFunc(m.debounceTime, func() {
		m.runLintCycle()
	})
}

// LintImmediately inserts uri into the pending set and runs the lint
// cycle without waiting for the debounce window, cancelling any
// in-flight timer.
func (m *Manager) LintImmediately(uri string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.pending[uri] = struct{}{}
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
		m.debounceTimer = nil
	}
	m.mu.Unlock()
	m.runLintCycle()
}

// ClearPending atomically drains and returns the pending set without
// running the lint action.
func (m *Manager) ClearPending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drainLocked()
}

func (m *Manager) drainLocked() []string {
	uris := make([]string, 0, len(m.pending))
	for uri := range m.pending {
		uris = append(uris, uri)
	}
	m.pending = make(map[string]struct{})
	return uris
}

// runLintCycle implements the lint-cycle contract of spec §4.I. The
// cancelCallback lets a concurrent Close short-circuit publication of a
// cycle that was already in flight when shutdown began.
func (m *Manager) runLintCycle() {
	if m.isClassPathReady != nil && !m.isClassPathReady() {
		return
	}

	m.mu.Lock()
	uris := m.drainLocked()
	action := m.action
	publisher := m.publisher
	openChecker := m.openChecker
	cancelled := m.closed
	m.mu.Unlock()

	if cancelled || action == nil || len(uris) == 0 {
		return
	}

	grouped, err := action(context.Background(), uris, m.isClosed)
	if err != nil {
		logging.Warning("diagnostics: lint action failed: %v", err)
		return
	}

	m.mu.Lock()
	level := m.level
	cancelled = m.closed
	m.mu.Unlock()
	if cancelled || publisher == nil {
		return
	}

	for _, uri := range uris {
		isOpen := openChecker == nil || openChecker.IsOpen(uri)
		if !isOpen {
			continue // files not currently open: swallow their diagnostics
		}
		diags := filterByLevel(grouped[uri], level)
		publisher.PublishDiagnostics(uri, diags) // always published, even when empty
	}
}

// isClosed is the CancelCallback handed to LintAction: a plain locked
// read of m.closed, safe to poll from inside a long-running action.
func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func filterByLevel(diags []Diagnostic, level Severity) []Diagnostic {
	out := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		if MeetsLevel(d.Severity, level) {
			out = append(out, d)
		}
	}
	return out
}

// Close stops any in-flight debounce timer; pending ticks are lost
// (spec §5 cancellation semantics: "Debouncer: pending ticks lost on
// close").
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
		m.debounceTimer = nil
	}
	m.pending = make(map[string]struct{})
}
