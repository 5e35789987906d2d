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
package diagnostics_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kotlinlsp.dev/core/diagnostics"
)

type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]diagnostics.Diagnostic
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string][]diagnostics.Diagnostic)}
}

func (p *fakePublisher) PublishDiagnostics(uri string, diags []diagnostics.Diagnostic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[uri] = diags
}

func (p *fakePublisher) get(uri string) ([]diagnostics.Diagnostic, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.published[uri]
	return d, ok
}

type fakeOpenChecker struct{ open map[string]bool }

func (c *fakeOpenChecker) IsOpen(uri string) bool { return c.open[uri] }

func alwaysReady() bool { return true }

func TestScheduleLint_FiresAfterDebounce(t *testing.T) {
	publisher := newFakePublisher()
	openChecker := &fakeOpenChecker{open: map[string]bool{"file:///a.kt": true}}
	m := diagnostics.New(20*time.Millisecond, diagnostics.SeverityWarning, openChecker, alwaysReady)
	m.Connect(publisher)

	called := make(chan struct{}, 1)
	m.SetLintAction(func(_ context.Context, uris []string, _ diagnostics.CancelCallback) (map[string][]diagnostics.Diagnostic, error) {
		called <- struct{}{}
		return map[string][]diagnostics.Diagnostic{
			"file:///a.kt": {{Severity: diagnostics.SeverityError, Message: "boom"}},
		}, nil
	})

	m.ScheduleLint("file:///a.kt")

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("lint action never fired")
	}

	diags, ok := publisher.get("file:///a.kt")
	require.True(t, ok)
	require.Len(t, diags, 1)
}

func TestScheduleLint_SuppressedWhenClassPathNotReady(t *testing.T) {
	publisher := newFakePublisher()
	openChecker := &fakeOpenChecker{open: map[string]bool{"file:///a.kt": true}}
	m := diagnostics.New(10*time.Millisecond, diagnostics.SeverityWarning, openChecker, func() bool { return false })
	m.Connect(publisher)
	actionCalled := false
	m.SetLintAction(func(context.Context, []string, diagnostics.CancelCallback) (map[string][]diagnostics.Diagnostic, error) {
		actionCalled = true
		return nil, nil
	})

	m.ScheduleLint("file:///a.kt")
	time.Sleep(50 * time.Millisecond)

	require.False(t, actionCalled, "lint cycle must be suppressed while classpath is not ready")
	_, published := publisher.get("file:///a.kt")
	require.False(t, published)
}

func TestLintCycle_SwallowsDiagnosticsForNonOpenFiles(t *testing.T) {
	publisher := newFakePublisher()
	openChecker := &fakeOpenChecker{open: map[string]bool{}} // nothing open
	m := diagnostics.New(10*time.Millisecond, diagnostics.SeverityWarning, openChecker, alwaysReady)
	m.Connect(publisher)
	m.SetLintAction(func(context.Context, []string, diagnostics.CancelCallback) (map[string][]diagnostics.Diagnostic, error) {
		return map[string][]diagnostics.Diagnostic{
			"file:///a.kt": {{Severity: diagnostics.SeverityError, Message: "boom"}},
		}, nil
	})

	m.LintImmediately("file:///a.kt")

	_, published := publisher.get("file:///a.kt")
	require.False(t, published, "diagnostics for a file not currently open must be swallowed")
}

func TestLintCycle_PublishesEmptyListForOpenFileWithNoDiagnostics(t *testing.T) {
	publisher := newFakePublisher()
	openChecker := &fakeOpenChecker{open: map[string]bool{"file:///a.kt": true}}
	m := diagnostics.New(10*time.Millisecond, diagnostics.SeverityWarning, openChecker, alwaysReady)
	m.Connect(publisher)
	m.SetLintAction(func(context.Context, []string, diagnostics.CancelCallback) (map[string][]diagnostics.Diagnostic, error) {
		return map[string][]diagnostics.Diagnostic{}, nil
	})

	m.LintImmediately("file:///a.kt")

	diags, ok := publisher.get("file:///a.kt")
	require.True(t, ok, "an open file with zero diagnostics must still get an explicit empty publish")
	require.Empty(t, diags)
}

func TestClearPending_DrainsWithoutRunningAction(t *testing.T) {
	m := diagnostics.New(time.Second, diagnostics.SeverityWarning, nil, alwaysReady)
	actionCalled := false
	m.SetLintAction(func(context.Context, []string, diagnostics.CancelCallback) (map[string][]diagnostics.Diagnostic, error) {
		actionCalled = true
		return nil, nil
	})

	m.ScheduleLint("file:///a.kt")
	m.ScheduleLint("file:///b.kt")
	uris := m.ClearPending()

	require.ElementsMatch(t, []string{"file:///a.kt", "file:///b.kt"}, uris)
	require.False(t, actionCalled)
	require.Empty(t, m.ClearPending())
}

func TestClose_StopsDebounceTimerWithoutFiring(t *testing.T) {
	publisher := newFakePublisher()
	m := diagnostics.New(20*time.Millisecond, diagnostics.SeverityWarning, nil, alwaysReady)
	m.Connect(publisher)
	m.SetLintAction(func(context.Context, []string, diagnostics.CancelCallback) (map[string][]diagnostics.Diagnostic, error) {
		return map[string][]diagnostics.Diagnostic{"file:///a.kt": {}}, nil
	})

	m.ScheduleLint("file:///a.kt")
	m.Close()
	time.Sleep(60 * time.Millisecond)

	_, published := publisher.get("file:///a.kt")
	require.False(t, published, "closing must drop the pending debounce tick")
}

func TestLintCycle_CancelCallbackShortCircuitsLongRunningAction(t *testing.T) {
	publisher := newFakePublisher()
	openChecker := &fakeOpenChecker{open: map[string]bool{"file:///a.kt": true}}
	m := diagnostics.New(10*time.Millisecond, diagnostics.SeverityWarning, openChecker, alwaysReady)
	m.Connect(publisher)

	started := make(chan struct{})
	m.SetLintAction(func(_ context.Context, uris []string, cancelled diagnostics.CancelCallback) (map[string][]diagnostics.Diagnostic, error) {
		close(started)
		for i := 0; i < 100; i++ {
			if cancelled() {
				return nil, nil
			}
			time.Sleep(time.Millisecond)
		}
		return map[string][]diagnostics.Diagnostic{
			"file:///a.kt": {{Severity: diagnostics.SeverityError, Message: "too late"}},
		}, nil
	})

	go m.LintImmediately("file:///a.kt")
	<-started
	m.Close()

	time.Sleep(150 * time.Millisecond)
	_, published := publisher.get("file:///a.kt")
	require.False(t, published, "cancelCallback must let a long-running action bail out before publishing")
}

func TestMeetsLevel_FiltersBySeverityThreshold(t *testing.T) {
	require.True(t, diagnostics.MeetsLevel(diagnostics.SeverityError, diagnostics.SeverityWarning))
	require.False(t, diagnostics.MeetsLevel(diagnostics.SeverityHint, diagnostics.SeverityWarning))
}
