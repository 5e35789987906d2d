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

// Package iface declares the external collaborator interfaces from
// spec §1/§6: the actual compiler front-end, build-tool classpath
// extraction, content/source retrieval, code generation, and JAR
// decompilation are all treated as opaque façades. This module has no
// production implementation of any of them — only the shapes the core
// consumes, and the test doubles each consuming package builds in its
// own _test.go files.
package iface

import (
	"context"

	"kotlinlsp.dev/core/symbol"
)

// ParsedTree is an opaque syntax tree handle; its internals belong to
// the external Compiler façade.
type ParsedTree struct {
	Text string
	Root any
}

// BindingContext is the compiler-produced side table mapping syntax
// nodes to resolved declarations and types (see GLOSSARY).
type BindingContext struct {
	Data any
}

// Declaration is an opaque handle to a resolved symbol the binding
// context can hand back; its fields are compiler-specific.
type Declaration struct {
	FQName   string
	Location *SourceLocation
}

// SourceLocation names a file and a position range within it.
type SourceLocation struct {
	URI        string
	Line       int
	Character  int
	EndLine    int
	EndChar    int
	InArchive  bool
	ArchiveJar string
}

// Compiler is the opaque compiler front-end façade (spec §1): parse,
// compile, generateCode, removeGeneratedCode, createSyntaxTree.
type Compiler interface {
	Parse(ctx context.Context, uri, content string) (*ParsedTree, error)
	Compile(ctx context.Context, uris []string) (*BindingContext, error)
	GenerateCode(ctx context.Context, uri string, tree *ParsedTree) error
	RemoveGeneratedCode(ctx context.Context, uri string) error
	CreateSyntaxTree(ctx context.Context, uri, content string) (*ParsedTree, error)
	// Close releases any resources (process handles, caches) the
	// compiler instance holds. Called on LRU eviction and on shutdown.
	Close() error
}

// ResolvedClassPath is the output of a ClassPathResolver run (spec §1).
type ResolvedClassPath struct {
	CompiledJars     []string
	SourceJars       []string
	ModuleClassPaths map[string][]string
	BuildFileVersion int64
}

// ClassPathResolver is the external build-tool classpath extraction
// façade (spec §1). It is invoked out-of-process and may take seconds;
// callers must run it off the request path.
type ClassPathResolver interface {
	Resolve(ctx context.Context, workspaceRoot string) (*ResolvedClassPath, error)
}

// ContentProvider supplies the content of a URI not already tracked by
// SourcePath, used to materialize a temporary SourceFile (spec §3
// lifecycle: "sourceFile(uri) on an unknown URI creates a temporary
// file from the content-provider").
type ContentProvider interface {
	Content(ctx context.Context, uri string) (string, error)
}

// CodeGenerator is the code-generation façade SourcePath.delete invokes
// to remove generated code produced from a file's lastSavedTree.
type CodeGenerator interface {
	RemoveGeneratedCode(ctx context.Context, uri string) error
}

// Decompiler is the JAR decompilation / source archive lookup façade,
// the final fallback in GoToDefinition's archive chain (spec §4.L).
type Decompiler interface {
	Decompile(ctx context.Context, klsURI string) (text string, err error)
}

// Package is one enumerated package and the declarations found directly
// in it, as produced by PackageEnumerator's module-root walk.
type Package struct {
	Name         string
	Declarations []symbol.Symbol
}

// PackageEnumerator performs the compiler-specific depth-first walk of a
// module's packages (skipping META-INF), feeding SymbolIndex's full
// refresh (spec §4.G step 4).
type PackageEnumerator interface {
	EnumeratePackages(ctx context.Context, moduleRoot string) ([]Package, error)
}

// JarScanner is the classfile-table façade SymbolIndex's incremental
// indexJars uses to attribute a package's declarations to the jar that
// actually defines each one, and to enumerate a jar/package's
// declarations in the first place.
type JarScanner interface {
	ContainsClass(jarPath, fqName string) bool
	PackageDeclarations(ctx context.Context, jarPath, pkg string) ([]symbol.Symbol, error)
}

// BindingResolver extracts declaration handles from a BindingContext —
// compiler-specific knowledge the core never implements itself, used by
// GoToDefinition (spec §4.L) to turn a cursor position into either an
// import fully-qualified name or a resolved Declaration.
type BindingResolver interface {
	// ImportAt reports whether uri:line:character falls inside an import
	// directive, returning the fully-qualified name being imported.
	ImportAt(bc *BindingContext, uri string, line, character int) (fqName string, ok bool)
	// ResolveAt resolves the reference expression at uri:line:character
	// to its declaration. Returns (nil, nil) if nothing resolves there.
	ResolveAt(bc *BindingContext, uri string, line, character int) (*Declaration, error)
	// ResolveImport resolves an imported fully-qualified name to its
	// declaration via the file's module scope, the second leg of spec
	// §4.L step 1 when the workspace symbol index has no row for it.
	ResolveImport(bc *BindingContext, fqName string) (*Declaration, error)
}

// DeclarationTextSearcher performs the per-module source-directory text
// search GoToDefinition's archive fallback chain uses when a declaration
// has no binding-context location inside the workspace (spec §4.L step
// 4b): parse candidate sources with the Compiler façade, descend the
// declaration path, and return the name-identifier range.
type DeclarationTextSearcher interface {
	FindInModuleSources(ctx context.Context, moduleID, fqName string) (*SourceLocation, error)
}

// Notifier is the narrow surface the core needs from an LSP transport:
// publishing a notification by method name. internal/logging does not
// use this interface: it sends LSP-mode log messages through an
// injected *glsp.Context.
type Notifier interface {
	Notify(method string, params any)
}
