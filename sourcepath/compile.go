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

package sourcepath

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"kotlinlsp.dev/core/iface"
	"kotlinlsp.dev/core/internal/kerrors"
	"kotlinlsp.dev/core/internal/logging"
	"kotlinlsp.dev/core/sourcefile"
	"kotlinlsp.dev/core/symbol"
)

func (sp *SourcePath) compilerFor(moduleID string) (iface.Compiler, error) {
	if sp.compilers == nil {
		return nil, fmt.Errorf("sourcepath: no compiler provider configured")
	}
	return sp.compilers.GetCompilerForModule(moduleID)
}

// ParsedFile returns uri's up-to-date syntax tree, reparsing under the
// file's parseDataWriteLock if content has moved since the last parse
// (invariant (ii)).
func (sp *SourcePath) ParsedFile(ctx context.Context, uri string) (*iface.ParsedTree, error) {
	f, err := sp.sourceFileOrTemporary(ctx, uri)
	if err != nil {
		return nil, err
	}

	lock := sp.parseLockFor(uri)
	lock.Lock()
	defer lock.Unlock()

	if !f.NeedsReparse() {
		return f.Parsed, nil
	}

	compiler, err := sp.compilerFor(f.ModuleID)
	if err != nil {
		return nil, err
	}
	tree, err := compiler.Parse(ctx, uri, f.Content)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindParseError, "sourcepath.ParsedFile", err)
	}
	f.Parsed = tree
	return tree, nil
}

// LatestCompiledVersion returns the editor version as of the file's
// last successful compile, without triggering a compile — a cheap
// check callers use to decide whether a fresher result is worth
// waiting for.
func (sp *SourcePath) LatestCompiledVersion(uri string) (int, bool) {
	sp.filesMu.RLock()
	f, ok := sp.files[uri]
	sp.filesMu.RUnlock()
	if !ok {
		return 0, false
	}
	return f.CompiledVersion, true
}

// CurrentVersion reparses uri and, if its content has changed since the
// last compile, recompiles it before returning the current editor
// version.
func (sp *SourcePath) CurrentVersion(ctx context.Context, uri string) (int, error) {
	if _, err := sp.ParsedFile(ctx, uri); err != nil {
		return 0, err
	}

	sp.filesMu.RLock()
	f, ok := sp.files[uri]
	sp.filesMu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("sourcepath: %s not tracked", uri)
	}

	if f.CompiledVersion != f.Version {
		if _, err := sp.CompileFiles(ctx, []string{uri}); err != nil {
			return 0, err
		}
	}

	sp.filesMu.RLock()
	defer sp.filesMu.RUnlock()
	return f.Version, nil
}

// BindingContextFor ensures uri is compiled against its current content
// and returns its binding context together with the module it compiled
// against — the accessor GoToDefinition (component L) uses to resolve a
// reference expression or import directive (spec §4.L).
func (sp *SourcePath) BindingContextFor(ctx context.Context, uri string) (*iface.BindingContext, string, error) {
	if _, err := sp.CurrentVersion(ctx, uri); err != nil {
		return nil, "", err
	}

	sp.filesMu.RLock()
	f, ok := sp.files[uri]
	sp.filesMu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("sourcepath: %s not tracked", uri)
	}

	lock := sp.parseLockFor(uri)
	lock.Lock()
	defer lock.Unlock()
	return f.BindingContext, f.ModuleID, nil
}

// compileGroup is one module's (or the shared-compiler's) unit of work.
type compileGroup struct {
	moduleID string
	uris     []string
}

// partitionForCompile splits uris into a build-script group (always
// compiled with the shared compiler against every tracked file, spec
// §4.F edge case) and per-module groups. An empty module registry
// collapses every non-build-script file into a single unit (the other
// named edge case); a temporary file's group is widened to include the
// rest of its module so it compiles with real surrounding context.
func (sp *SourcePath) partitionForCompile(ctx context.Context, uris []string) ([]compileGroup, error) {
	var groups []compileGroup
	moduleSets := make(map[string]map[string]struct{})
	moduleOrder := []string{}
	hasBuildScript := false

	for _, uri := range uris {
		f, err := sp.sourceFileOrTemporary(ctx, uri)
		if err != nil {
			return nil, err
		}
		if f.Language == sourcefile.LanguageBuildScript {
			hasBuildScript = true
			continue
		}

		moduleID := f.ModuleID
		if f.IsTemporary {
			// Temporary files carry no module id; their group is the
			// module whose source dirs contain their path.
			if info := sp.moduleRegistry.FindModuleForFile(uri); info != nil {
				moduleID = info.Name
			}
		}
		if sp.moduleRegistry.IsEmpty() {
			moduleID = ""
		}
		set, ok := moduleSets[moduleID]
		if !ok {
			set = make(map[string]struct{})
			moduleSets[moduleID] = set
			moduleOrder = append(moduleOrder, moduleID)
		}
		set[uri] = struct{}{}

		if f.IsTemporary && moduleID != "" {
			for _, sibling := range sp.AllInModule(moduleID) {
				set[sibling] = struct{}{}
			}
		}
	}

	if hasBuildScript {
		groups = append(groups, compileGroup{moduleID: "", uris: sp.All()})
	}
	for _, moduleID := range moduleOrder {
		set := moduleSets[moduleID]
		group := compileGroup{moduleID: moduleID, uris: make([]string, 0, len(set))}
		for uri := range set {
			group.uris = append(group.uris, uri)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// CompileFiles compiles the given URIs, partitioned per spec §4.F, and
// returns a composite BindingContext spanning every group compiled.
// Each group's before/after declarations are published to the
// IndexNotifier as a lazy delta so a disabled index never pays the
// extraction cost.
func (sp *SourcePath) CompileFiles(ctx context.Context, uris []string) (*iface.BindingContext, error) {
	groups, err := sp.partitionForCompile(ctx, uris)
	if err != nil {
		return nil, err
	}

	results := make([]*iface.BindingContext, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			bc, err := sp.compileGroup(gctx, group)
			if err != nil {
				return err
			}
			results[i] = bc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &iface.BindingContext{Data: results}, nil
}

// compileSnapshot freezes the Version/Parsed identity a file had at the
// moment it entered Compile, so the publish step below can tell a
// concurrent edit from a clean compile (spec.md:99 requires publishing
// only "for each file f where f.parsed == producedTree").
type compileSnapshot struct {
	file    *sourcefile.File
	version int
	parsed  *iface.ParsedTree
	content string
	before  *iface.BindingContext
}

func (sp *SourcePath) compileGroup(ctx context.Context, group compileGroup) (*iface.BindingContext, error) {
	compiler, err := sp.compilerFor(group.moduleID)
	if err != nil {
		return nil, err
	}

	sp.filesMu.RLock()
	snapshots := make(map[string]compileSnapshot, len(group.uris))
	for _, uri := range group.uris {
		if f, ok := sp.files[uri]; ok {
			snapshots[uri] = compileSnapshot{
				file:    f,
				version: f.Version,
				parsed:  f.Parsed,
				content: f.Content,
				before:  f.BindingContext,
			}
		}
	}
	sp.filesMu.RUnlock()

	// compiler.Compile can run for minutes (spec §5); a concurrent Put
	// may bump a file's Version/Parsed while this is in flight, so the
	// snapshots taken above are what the publish step below checks
	// against, never the live file.
	bc, err := compiler.Compile(ctx, group.uris)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindCompileError, "sourcepath.compileGroup", err)
	}

	for uri, snap := range snapshots {
		compiledTree, err := compiler.CreateSyntaxTree(ctx, uri, snap.content)
		if err != nil {
			logging.Warning("sourcepath: creating compiled syntax tree for %s: %v", uri, err)
			compiledTree = nil
		}

		lock := sp.parseLockFor(uri)
		lock.Lock()
		stale := snap.file.Version != snap.version || snap.file.Parsed != snap.parsed
		if !stale {
			snap.file.BindingContext = bc
			snap.file.CompiledTree = compiledTree
			snap.file.CompiledVersion = snap.file.Version
		}
		lock.Unlock()

		if stale {
			logging.Info("sourcepath: %s edited mid-compile, discarding stale compile result", uri)
			continue
		}

		if sp.indexNotifier != nil {
			moduleID := group.moduleID
			before := snap.before
			after := bc
			sp.indexNotifier.ApplyCompileDelta(moduleID, declsProviderFor(sp.extractor, before, moduleID), declsProviderFor(sp.extractor, after, moduleID))
		}
	}
	return bc, nil
}

func declsProviderFor(extractor DeclarationExtractor, bc *iface.BindingContext, moduleID string) DeclsProvider {
	return func() []symbol.Symbol {
		if bc == nil {
			return nil
		}
		return extractor.Declarations(bc, moduleID)
	}
}

// CompileAllFiles best-effort recompiles every non-temporary tracked
// file, module group by module group. A failure in one module's group
// is logged and does not abort the rest of the sweep.
func (sp *SourcePath) CompileAllFiles(ctx context.Context) {
	uris := sp.All()
	groups, err := sp.partitionForCompile(ctx, uris)
	if err != nil {
		logging.Warning("sourcepath: partitioning compileAllFiles: %v", err)
		return
	}
	for _, group := range groups {
		if _, err := sp.compileGroup(ctx, group); err != nil {
			logging.Warning("sourcepath: compileAllFiles group %q: %v", group.moduleID, err)
		}
	}
}

// Save snapshots uri's current parsed tree as its lastSavedTree and
// asks the compiler to regenerate derived code from it. A file that was
// never parsed saves a nil tree and generates no code.
func (sp *SourcePath) Save(ctx context.Context, uri string) error {
	sp.filesMu.RLock()
	f, ok := sp.files[uri]
	sp.filesMu.RUnlock()
	if !ok {
		return fmt.Errorf("sourcepath: %s not tracked", uri)
	}

	lock := sp.parseLockFor(uri)
	lock.Lock()
	tree := f.Parsed
	f.LastSavedTree = tree
	lock.Unlock()

	if tree == nil {
		return nil
	}
	compiler, err := sp.compilerFor(f.ModuleID)
	if err != nil {
		return err
	}
	if err := compiler.GenerateCode(ctx, uri, tree); err != nil {
		return kerrors.Wrap(kerrors.KindCompileError, "sourcepath.Save", err)
	}
	return nil
}

// SaveAllFiles saves every non-temporary tracked file, best-effort.
func (sp *SourcePath) SaveAllFiles(ctx context.Context) {
	for _, uri := range sp.All() {
		if err := sp.Save(ctx, uri); err != nil {
			logging.Warning("sourcepath: saving %s: %v", uri, err)
		}
	}
}
