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

// Package indexing implements component H: IndexingService, a lazy
// async wrapper over SymbolIndex (component G) driven by SourcePath's
// (component F) before/after declaration closures. When disabled it is
// a true no-op — it never calls the closures it's handed, so a file
// edit with indexing off pays zero declaration-extraction cost (spec
// §4.F "Index-delta contract").
package indexing

import (
	"sync"

	"kotlinlsp.dev/core/internal/logging"
	"kotlinlsp.dev/core/sourcepath"
	"kotlinlsp.dev/core/symbolindex"
)

var _ sourcepath.IndexNotifier = (*Service)(nil)

// Service implements sourcepath.IndexNotifier.
type Service struct {
	mu      sync.RWMutex
	enabled bool
	index   *symbolindex.Index
	wg      sync.WaitGroup
}

// New constructs a Service wrapping index. enabled mirrors
// config.IndexingConfig.Enabled and can be flipped at runtime via
// SetEnabled when configuration changes.
func New(index *symbolindex.Index, enabled bool) *Service {
	return &Service{index: index, enabled: enabled}
}

// SetEnabled toggles indexing at runtime (didChangeConfiguration).
func (s *Service) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *Service) isEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// ApplyCompileDelta satisfies sourcepath.IndexNotifier. It is a no-op,
// never invoking before/after, when indexing is disabled.
func (s *Service) ApplyCompileDelta(moduleID string, before, after sourcepath.DeclsProvider) {
	if !s.isEnabled() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.index.ApplyFileDelta(moduleID, before(), after()); err != nil {
			logging.Warning("indexing: applying compile delta for module %q: %v", moduleID, err)
		}
	}()
}

// ApplyRemoveDelta satisfies sourcepath.IndexNotifier.
func (s *Service) ApplyRemoveDelta(moduleID string, before sourcepath.DeclsProvider) {
	if !s.isEnabled() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.index.ApplyFileDelta(moduleID, before(), nil); err != nil {
			logging.Warning("indexing: applying remove delta for module %q: %v", moduleID, err)
		}
	}()
}

// Wait blocks until every in-flight delta application has completed.
// Tests use this; production code has no need to since deltas are
// fire-and-forget by design.
func (s *Service) Wait() { s.wg.Wait() }
