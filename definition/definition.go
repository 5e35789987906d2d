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

// Package definition implements component L: the GoToDefinition
// orchestrator (spec §4.L), grounded on the teacher's
// lsp/methods/textDocument/definition/definition.go: analyze the
// position, resolve a target, fall back through an ordered chain when
// the first resolution doesn't land inside the workspace.
package definition

import (
	"context"

	"kotlinlsp.dev/core/iface"
	"kotlinlsp.dev/core/internal/logging"
	"kotlinlsp.dev/core/sourcepath"
	"kotlinlsp.dev/core/symbol"
	"kotlinlsp.dev/core/symbolindex"
)

// Orchestrator is component L.
type Orchestrator struct {
	sourcePath     *sourcepath.SourcePath
	index          *symbolindex.Index
	resolver       iface.BindingResolver
	textSearcher   iface.DeclarationTextSearcher
	decompiler     iface.Decompiler
	archive        *ArchiveDetector
	workspaceRoots func() []string
}

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator)

// WithTextSearcher supplies the per-module source-directory text search
// façade used at archive-fallback step (b).
func WithTextSearcher(s iface.DeclarationTextSearcher) Option {
	return func(o *Orchestrator) { o.textSearcher = s }
}

// WithDecompiler supplies the KlsURI decompilation façade used at
// archive-fallback step (c).
func WithDecompiler(d iface.Decompiler) Option {
	return func(o *Orchestrator) { o.decompiler = d }
}

// WithArchiveDetector overrides the default (empty JDK home, no cache
// roots) archive detector.
func WithArchiveDetector(d *ArchiveDetector) Option {
	return func(o *Orchestrator) { o.archive = d }
}

// WithWorkspaceRoots supplies the live set of workspace roots archive
// detection compares declaration locations against.
func WithWorkspaceRoots(roots func() []string) Option {
	return func(o *Orchestrator) { o.workspaceRoots = roots }
}

// New constructs a component-L Orchestrator over F (sourcePath), G
// (index), and the compiler-specific BindingResolver.
func New(sourcePath *sourcepath.SourcePath, index *symbolindex.Index, resolver iface.BindingResolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sourcePath:     sourcePath,
		index:          index,
		resolver:       resolver,
		archive:        NewArchiveDetector(""),
		workspaceRoots: func() []string { return nil },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GoToDefinition resolves the declaration referenced at uri:line:character
// to a location, per spec §4.L's orchestration and archive fallback
// chain. A nil, nil result means "no definition found" — the LSP
// response-boundary neutral result (spec §7).
func (o *Orchestrator) GoToDefinition(ctx context.Context, uri string, line, character int) (*symbol.Location, error) {
	bc, moduleID, err := o.sourcePath.BindingContextFor(ctx, uri)
	if err != nil {
		return nil, err
	}
	if bc == nil {
		return nil, nil
	}

	if fqName, ok := o.resolver.ImportAt(bc, uri, line, character); ok {
		return o.resolveImport(ctx, bc, fqName, moduleID)
	}

	decl, err := o.resolver.ResolveAt(bc, uri, line, character)
	if err != nil {
		return nil, err
	}
	return o.locationForDeclaration(ctx, decl, moduleID)
}

// resolveImport implements spec §4.L step 1: workspace symbol index
// first, then the file's module scope via the binding context.
func (o *Orchestrator) resolveImport(ctx context.Context, bc *iface.BindingContext, fqName, moduleID string) (*symbol.Location, error) {
	if o.index != nil {
		if sym := o.index.LookupFQName(ctx, fqName, &moduleID); sym != nil && sym.Location != nil {
			if !o.isArchiveLocation(toSourceLocation(sym.Location)) {
				return sym.Location, nil
			}
			return o.archiveFallback(ctx, fqName, moduleID, toSourceLocation(sym.Location))
		}
	}

	decl, err := o.resolver.ResolveImport(bc, fqName)
	if err != nil {
		return nil, err
	}
	return o.locationForDeclaration(ctx, decl, moduleID)
}

// locationForDeclaration implements spec §4.L steps 3/4: a concrete
// workspace location is returned directly; an archive (or out-of-
// workspace) location triggers the fallback chain.
func (o *Orchestrator) locationForDeclaration(ctx context.Context, decl *iface.Declaration, moduleID string) (*symbol.Location, error) {
	if decl == nil || decl.Location == nil {
		return nil, nil
	}
	if !o.isArchiveLocation(decl.Location) {
		return locationFromSource(decl.Location), nil
	}
	return o.archiveFallback(ctx, decl.FQName, moduleID, decl.Location)
}

// archiveFallback is spec §4.L step 4(a-c): workspace symbol index,
// then per-module source-directory text search, then KlsURI decompile.
func (o *Orchestrator) archiveFallback(ctx context.Context, fqName, moduleID string, archiveLoc *iface.SourceLocation) (*symbol.Location, error) {
	if o.index != nil {
		if sym := o.index.LookupFQName(ctx, fqName, &moduleID); sym != nil && sym.Location != nil {
			if !o.isArchiveLocation(toSourceLocation(sym.Location)) {
				return sym.Location, nil
			}
		}
	}

	if o.textSearcher != nil {
		loc, err := o.textSearcher.FindInModuleSources(ctx, moduleID, fqName)
		if err != nil {
			logging.Info("definition: module source text search for %s failed: %v", fqName, err)
		} else if loc != nil {
			return locationFromSource(loc), nil
		}
	}

	if o.decompiler != nil && archiveLoc.ArchiveJar != "" {
		klsURI := BuildKlsURI(archiveLoc.ArchiveJar, fqName)
		if _, err := o.decompiler.Decompile(ctx, klsURI); err != nil {
			logging.Info("definition: decompiling %s failed: %v", klsURI, err)
		} else {
			return &symbol.Location{URI: klsURI}, nil
		}
	}

	return nil, nil
}

func (o *Orchestrator) isArchiveLocation(loc *iface.SourceLocation) bool {
	return o.archive.Classify(loc, o.workspaceRoots())
}

func toSourceLocation(loc *symbol.Location) *iface.SourceLocation {
	if loc == nil {
		return nil
	}
	return &iface.SourceLocation{
		URI:       loc.URI,
		Line:      loc.Range.Start.Line,
		Character: loc.Range.Start.Character,
		EndLine:   loc.Range.End.Line,
		EndChar:   loc.Range.End.Character,
	}
}

func locationFromSource(loc *iface.SourceLocation) *symbol.Location {
	return &symbol.Location{
		URI: loc.URI,
		Range: symbol.Range{
			Start: symbol.Position{Line: loc.Line, Character: loc.Character},
			End:   symbol.Position{Line: loc.EndLine, Character: loc.EndChar},
		},
	}
}
