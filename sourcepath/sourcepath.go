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

// Package sourcepath implements component F: SourcePath, the concurrent
// URI -> SourceFile map plus incremental compile orchestration. A
// reader-writer lock guards the map itself; a finer per-file mutex
// (parseDataWriteLock) guards only the {parsed, compiledTree,
// bindingContext, module} tuple, so a long compilation never blocks a
// reader taking a read-only content snapshot — the same separation the
// teacher's lsp/document/manager.go draws between its map lock and its
// per-URI uriLocks.
package sourcepath

import (
	"context"
	"fmt"
	"sync"

	"kotlinlsp.dev/core/iface"
	"kotlinlsp.dev/core/internal/kerrors"
	"kotlinlsp.dev/core/internal/logging"
	"kotlinlsp.dev/core/moduleregistry"
	"kotlinlsp.dev/core/sourcefile"
	"kotlinlsp.dev/core/symbol"
)

// DeclsProvider is a lazy closure computing a file's top-level
// declarations. It must only be invoked if indexing is enabled, so a
// disabled index incurs zero traversal cost (spec §4.F "Index-delta
// contract").
type DeclsProvider func() []symbol.Symbol

// IndexNotifier is the narrow surface SourcePath needs from
// IndexingService (component H) to publish lazy index deltas after a
// compile or a delete.
type IndexNotifier interface {
	ApplyCompileDelta(moduleID string, before, after DeclsProvider)
	ApplyRemoveDelta(moduleID string, before DeclsProvider)
}

// CompilerProvider is the narrow surface SourcePath needs from
// CompilerClassPath (component D) to get a per-module or shared
// Compiler instance.
type CompilerProvider interface {
	GetCompilerForModule(moduleID string) (iface.Compiler, error)
}

// DeclarationExtractor computes a file's top-level declarations from a
// compile's resulting binding context. The compiler front-end that
// actually performs this walk is an external collaborator (spec §1);
// this is the seam.
type DeclarationExtractor interface {
	Declarations(bc *iface.BindingContext, moduleID string) []symbol.Symbol
}

// noopExtractor is used when no DeclarationExtractor is configured,
// producing an always-empty provider rather than a nil panic.
type noopExtractor struct{}

func (noopExtractor) Declarations(*iface.BindingContext, string) []symbol.Symbol { return nil }

// SourcePath is component F.
type SourcePath struct {
	filesMu sync.RWMutex
	files   map[string]*sourcefile.File

	parseLocksMu sync.Mutex
	parseLocks   map[string]*sync.Mutex

	moduleRegistry  *moduleregistry.Registry
	contentProvider iface.ContentProvider
	codeGenerator   iface.CodeGenerator
	compilers       CompilerProvider
	extractor       DeclarationExtractor
	indexNotifier   IndexNotifier
}

// Option configures optional collaborators on New.
type Option func(*SourcePath)

// WithIndexNotifier wires component H.
func WithIndexNotifier(n IndexNotifier) Option { return func(sp *SourcePath) { sp.indexNotifier = n } }

// WithDeclarationExtractor wires the compiler-specific declaration walk.
func WithDeclarationExtractor(e DeclarationExtractor) Option {
	return func(sp *SourcePath) { sp.extractor = e }
}

// New constructs an empty SourcePath.
func New(registry *moduleregistry.Registry, contentProvider iface.ContentProvider, codeGenerator iface.CodeGenerator, compilers CompilerProvider, opts ...Option) *SourcePath {
	sp := &SourcePath{
		files:           make(map[string]*sourcefile.File),
		parseLocks:      make(map[string]*sync.Mutex),
		moduleRegistry:  registry,
		contentProvider: contentProvider,
		codeGenerator:   codeGenerator,
		compilers:       compilers,
		extractor:       noopExtractor{},
	}
	for _, opt := range opts {
		opt(sp)
	}
	return sp
}

func (sp *SourcePath) parseLockFor(uri string) *sync.Mutex {
	sp.parseLocksMu.Lock()
	defer sp.parseLocksMu.Unlock()
	l, ok := sp.parseLocks[uri]
	if !ok {
		l = &sync.Mutex{}
		sp.parseLocks[uri] = l
	}
	return l
}

func (sp *SourcePath) dropParseLock(uri string) {
	sp.parseLocksMu.Lock()
	defer sp.parseLocksMu.Unlock()
	delete(sp.parseLocks, uri)
}

// Put creates or updates uri's SourceFile. Temporary files are never
// assigned a module; otherwise the module is resolved from the
// registry by the file's on-disk path.
func (sp *SourcePath) Put(uri, content string, language sourcefile.Language, temporary bool) error {
	if err := sourcefile.ValidateContent(content); err != nil {
		return err
	}

	moduleID := ""
	if !temporary {
		if info := sp.moduleRegistry.FindModuleForFile(uri); info != nil {
			moduleID = info.Name
		}
	}

	sp.filesMu.Lock()
	defer sp.filesMu.Unlock()

	f, exists := sp.files[uri]
	if !exists {
		f = sourcefile.New(uri, content, 1, language, temporary)
		f.ModuleID = moduleID
		sp.files[uri] = f
		return nil
	}

	f.Content = content
	f.Version++
	f.Language = language
	f.IsTemporary = temporary
	f.ModuleID = moduleID
	return nil
}

// Delete atomically removes uri, then off-lock applies a remove index
// delta and asks the code generator to remove any generated code
// produced from the file's lastSavedTree (spec §3 lifecycle).
func (sp *SourcePath) Delete(ctx context.Context, uri string) {
	sp.filesMu.Lock()
	f, ok := sp.files[uri]
	if ok {
		delete(sp.files, uri)
	}
	sp.filesMu.Unlock()
	if !ok {
		return
	}
	sp.dropParseLock(uri)

	if sp.indexNotifier != nil {
		moduleID := f.ModuleID
		bc := f.BindingContext
		before := func() []symbol.Symbol {
			if bc == nil {
				return nil
			}
			return sp.extractor.Declarations(bc, moduleID)
		}
		sp.indexNotifier.ApplyRemoveDelta(moduleID, before)
	}

	if f.LastSavedTree != nil && sp.codeGenerator != nil {
		if err := sp.codeGenerator.RemoveGeneratedCode(ctx, uri); err != nil {
			logging.Warning("sourcepath: removing generated code for %s: %v", uri, err)
		}
	}
}

// sourceFileOrTemporary returns the tracked file for uri, or — per spec
// §3's lifecycle — materializes a temporary one from the content
// provider. The files lock is released during the provider's I/O and
// reacquired with a double-check, so a slow provider never blocks
// unrelated readers.
func (sp *SourcePath) sourceFileOrTemporary(ctx context.Context, uri string) (*sourcefile.File, error) {
	sp.filesMu.RLock()
	f, ok := sp.files[uri]
	sp.filesMu.RUnlock()
	if ok {
		return f, nil
	}

	if sp.contentProvider == nil {
		return nil, fmt.Errorf("sourcepath: %s not tracked and no content provider configured", uri)
	}
	content, err := sp.contentProvider.Content(ctx, uri)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindIndexUnavailable, "sourcepath.sourceFileOrTemporary", err)
	}

	sp.filesMu.Lock()
	defer sp.filesMu.Unlock()
	if f, ok := sp.files[uri]; ok {
		// Someone else materialized or opened it while we were fetching.
		return f, nil
	}
	f = sourcefile.New(uri, content, 1, sourcefile.LanguageDefault, true)
	sp.files[uri] = f
	return f, nil
}

// Content returns uri's current editor-view content.
func (sp *SourcePath) Content(ctx context.Context, uri string) (string, error) {
	f, err := sp.sourceFileOrTemporary(ctx, uri)
	if err != nil {
		return "", err
	}
	sp.filesMu.RLock()
	defer sp.filesMu.RUnlock()
	return f.Content, nil
}

// All returns every tracked URI.
func (sp *SourcePath) All() []string {
	sp.filesMu.RLock()
	defer sp.filesMu.RUnlock()
	uris := make([]string, 0, len(sp.files))
	for uri, f := range sp.files {
		if f.IsTemporary {
			continue // invariant (iv): never in whole-project sweeps
		}
		uris = append(uris, uri)
	}
	return uris
}

// AllInModule returns every non-temporary URI assigned to moduleID.
func (sp *SourcePath) AllInModule(moduleID string) []string {
	sp.filesMu.RLock()
	defer sp.filesMu.RUnlock()
	var uris []string
	for uri, f := range sp.files {
		if f.IsTemporary {
			continue
		}
		if f.ModuleID == moduleID {
			uris = append(uris, uri)
		}
	}
	return uris
}

// RefreshModuleAssignments re-resolves every tracked file's module id
// from the registry, used after a classpath READY transition changes
// module boundaries.
func (sp *SourcePath) RefreshModuleAssignments() {
	sp.filesMu.Lock()
	defer sp.filesMu.Unlock()
	for uri, f := range sp.files {
		if f.IsTemporary {
			continue
		}
		if info := sp.moduleRegistry.FindModuleForFile(uri); info != nil {
			f.ModuleID = info.Name
		} else {
			f.ModuleID = ""
		}
	}
}

// Refresh is an alias kept for symmetry with SymbolIndex.refresh /
// CompilerClassPath's refresh — here it simply re-runs module
// assignment, since SourcePath itself holds no resolver state.
func (sp *SourcePath) Refresh() {
	sp.RefreshModuleAssignments()
}

// CleanFiles drops compiled state (parsed/compiledTree/bindingContext)
// for the given URIs without removing them from the map, forcing the
// next read to reparse and recompile.
func (sp *SourcePath) CleanFiles(uris []string) {
	sp.filesMu.RLock()
	targets := make([]*sourcefile.File, 0, len(uris))
	for _, uri := range uris {
		if f, ok := sp.files[uri]; ok {
			targets = append(targets, f)
		}
	}
	sp.filesMu.RUnlock()

	for _, f := range targets {
		lock := sp.parseLockFor(f.URI)
		lock.Lock()
		f.Parsed = nil
		f.CompiledTree = nil
		f.BindingContext = nil
		lock.Unlock()
	}
}

// CleanAllFiles cleans every tracked file.
func (sp *SourcePath) CleanAllFiles() {
	sp.CleanFiles(sp.All())
}
