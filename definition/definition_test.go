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
package definition_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"kotlinlsp.dev/core/database"
	"kotlinlsp.dev/core/definition"
	"kotlinlsp.dev/core/iface"
	"kotlinlsp.dev/core/moduleregistry"
	"kotlinlsp.dev/core/sourcefile"
	"kotlinlsp.dev/core/sourcepath"
	"kotlinlsp.dev/core/symbol"
	"kotlinlsp.dev/core/symbolindex"
)

type fakeCompiler struct{}

func (fakeCompiler) Parse(_ context.Context, uri, content string) (*iface.ParsedTree, error) {
	return &iface.ParsedTree{Text: content, Root: uri}, nil
}
func (fakeCompiler) Compile(_ context.Context, uris []string) (*iface.BindingContext, error) {
	return &iface.BindingContext{Data: uris}, nil
}
func (fakeCompiler) GenerateCode(context.Context, string, *iface.ParsedTree) error { return nil }
func (fakeCompiler) RemoveGeneratedCode(context.Context, string) error             { return nil }
func (fakeCompiler) CreateSyntaxTree(_ context.Context, uri, content string) (*iface.ParsedTree, error) {
	return &iface.ParsedTree{Text: content, Root: uri}, nil
}
func (fakeCompiler) Close() error { return nil }

type fakeCompilerProvider struct{}

func (fakeCompilerProvider) GetCompilerForModule(string) (iface.Compiler, error) {
	return fakeCompiler{}, nil
}

type fakeContentProvider struct{}

func (fakeContentProvider) Content(context.Context, string) (string, error) { return "", nil }

type fakeCodeGenerator struct{}

func (fakeCodeGenerator) RemoveGeneratedCode(context.Context, string) error { return nil }

func newSourcePath(t *testing.T) *sourcepath.SourcePath {
	t.Helper()
	sp := sourcepath.New(moduleregistry.New(), fakeContentProvider{}, fakeCodeGenerator{}, fakeCompilerProvider{})
	require.NoError(t, sp.Put("file:///ws/A.kt", "class A", sourcefile.LanguageDefault, false))
	return sp
}

func newIndex(t *testing.T) *symbolindex.Index {
	t.Helper()
	db, err := database.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return symbolindex.New(db)
}

type fakeResolver struct {
	importFQName string
	importOK     bool
	decl         *iface.Declaration
	declErr      error
	importDecl   *iface.Declaration
}

func (r *fakeResolver) ImportAt(*iface.BindingContext, string, int, int) (string, bool) {
	return r.importFQName, r.importOK
}
func (r *fakeResolver) ResolveAt(*iface.BindingContext, string, int, int) (*iface.Declaration, error) {
	return r.decl, r.declErr
}
func (r *fakeResolver) ResolveImport(*iface.BindingContext, string) (*iface.Declaration, error) {
	return r.importDecl, nil
}

type fakeTextSearcher struct {
	loc *iface.SourceLocation
	err error
}

func (s *fakeTextSearcher) FindInModuleSources(context.Context, string, string) (*iface.SourceLocation, error) {
	return s.loc, s.err
}

type fakeDecompiler struct {
	err error
}

func (d *fakeDecompiler) Decompile(context.Context, string) (string, error) {
	return "decompiled text", d.err
}

func TestGoToDefinition_ReturnsWorkspaceLocationDirectly(t *testing.T) {
	sp := newSourcePath(t)
	resolver := &fakeResolver{
		decl: &iface.Declaration{
			FQName: "A",
			Location: &iface.SourceLocation{
				URI: "file:///ws/A.kt", Line: 0, Character: 6, EndLine: 0, EndChar: 7,
			},
		},
	}
	o := definition.New(sp, newIndex(t), resolver, definition.WithWorkspaceRoots(func() []string { return []string{"/ws"} }))

	loc, err := o.GoToDefinition(context.Background(), "file:///ws/A.kt", 0, 6)
	require.NoError(t, err)
	require.NotNil(t, loc)
	require.Equal(t, "file:///ws/A.kt", loc.URI)
	require.Equal(t, 6, loc.Range.Start.Character)
}

func TestGoToDefinition_NoDeclarationReturnsNil(t *testing.T) {
	sp := newSourcePath(t)
	resolver := &fakeResolver{}
	o := definition.New(sp, newIndex(t), resolver)

	loc, err := o.GoToDefinition(context.Background(), "file:///ws/A.kt", 0, 0)
	require.NoError(t, err)
	require.Nil(t, loc)
}

func TestGoToDefinition_ArchiveLocationFallsBackToWorkspaceIndex(t *testing.T) {
	sp := newSourcePath(t)
	idx := newIndex(t)
	require.NoError(t, idx.ApplyFileDelta("", nil, []symbol.Symbol{
		{FQName: "java.util.List", ShortName: "List", Kind: symbol.KindClass,
			Location: &symbol.Location{URI: "file:///ws/List.kt", Range: symbol.Range{
				Start: symbol.Position{Line: 1, Character: 1}, End: symbol.Position{Line: 1, Character: 5},
			}}},
	}))

	resolver := &fakeResolver{
		decl: &iface.Declaration{
			FQName: "java.util.List",
			Location: &iface.SourceLocation{
				URI: "file:///jdk/rt.jar!/java/util/List.class", InArchive: true, ArchiveJar: "/jdk/rt.jar",
			},
		},
	}
	o := definition.New(sp, idx, resolver)

	loc, err := o.GoToDefinition(context.Background(), "file:///ws/A.kt", 0, 0)
	require.NoError(t, err)
	require.NotNil(t, loc)
	require.Equal(t, "file:///ws/List.kt", loc.URI)
}

func TestGoToDefinition_ArchiveLocationFallsBackToTextSearch(t *testing.T) {
	sp := newSourcePath(t)
	idx := newIndex(t)
	resolver := &fakeResolver{
		decl: &iface.Declaration{
			FQName: "java.util.List",
			Location: &iface.SourceLocation{
				URI: "file:///jdk/rt.jar!/java/util/List.class", InArchive: true, ArchiveJar: "/jdk/rt.jar",
			},
		},
	}
	searcher := &fakeTextSearcher{loc: &iface.SourceLocation{URI: "file:///ws/stub/List.kt", Line: 3, Character: 4}}
	o := definition.New(sp, idx, resolver, definition.WithTextSearcher(searcher))

	loc, err := o.GoToDefinition(context.Background(), "file:///ws/A.kt", 0, 0)
	require.NoError(t, err)
	require.NotNil(t, loc)
	require.Equal(t, "file:///ws/stub/List.kt", loc.URI)
	require.Equal(t, 3, loc.Range.Start.Line)
}

func TestGoToDefinition_ArchiveLocationFallsBackToDecompile(t *testing.T) {
	sp := newSourcePath(t)
	idx := newIndex(t)
	resolver := &fakeResolver{
		decl: &iface.Declaration{
			FQName: "java.util.List",
			Location: &iface.SourceLocation{
				URI: "file:///jdk/rt.jar!/java/util/List.class", InArchive: true, ArchiveJar: "/jdk/rt.jar",
			},
		},
	}
	o := definition.New(sp, idx, resolver, definition.WithDecompiler(&fakeDecompiler{}))

	loc, err := o.GoToDefinition(context.Background(), "file:///ws/A.kt", 0, 0)
	require.NoError(t, err)
	require.NotNil(t, loc)
	require.Equal(t, definition.BuildKlsURI("/jdk/rt.jar", "java.util.List"), loc.URI)
}

func TestGoToDefinition_ArchiveLocationAllFallbacksExhaustedReturnsNil(t *testing.T) {
	sp := newSourcePath(t)
	idx := newIndex(t)
	resolver := &fakeResolver{
		decl: &iface.Declaration{
			FQName: "java.util.List",
			Location: &iface.SourceLocation{
				URI: "file:///jdk/rt.jar!/java/util/List.class", InArchive: true, ArchiveJar: "/jdk/rt.jar",
			},
		},
	}
	o := definition.New(sp, idx, resolver)

	loc, err := o.GoToDefinition(context.Background(), "file:///ws/A.kt", 0, 0)
	require.NoError(t, err)
	require.Nil(t, loc)
}

func TestGoToDefinition_ImportDirectiveResolvesViaWorkspaceIndexFirst(t *testing.T) {
	sp := newSourcePath(t)
	idx := newIndex(t)
	require.NoError(t, idx.ApplyFileDelta("", nil, []symbol.Symbol{
		{FQName: "com.example.Helper", ShortName: "Helper", Kind: symbol.KindClass,
			Location: &symbol.Location{URI: "file:///ws/Helper.kt"}},
	}))
	resolver := &fakeResolver{importFQName: "com.example.Helper", importOK: true}
	o := definition.New(sp, idx, resolver)

	loc, err := o.GoToDefinition(context.Background(), "file:///ws/A.kt", 0, 0)
	require.NoError(t, err)
	require.NotNil(t, loc)
	require.Equal(t, "file:///ws/Helper.kt", loc.URI)
}

func TestGoToDefinition_ImportDirectiveFallsBackToModuleScope(t *testing.T) {
	sp := newSourcePath(t)
	idx := newIndex(t)
	resolver := &fakeResolver{
		importFQName: "com.example.Helper",
		importOK:     true,
		importDecl: &iface.Declaration{
			FQName:   "com.example.Helper",
			Location: &iface.SourceLocation{URI: "file:///ws/Helper.kt", Line: 2, Character: 0},
		},
	}
	o := definition.New(sp, idx, resolver)

	loc, err := o.GoToDefinition(context.Background(), "file:///ws/A.kt", 0, 0)
	require.NoError(t, err)
	require.NotNil(t, loc)
	require.Equal(t, "file:///ws/Helper.kt", loc.URI)
	require.Equal(t, 2, loc.Range.Start.Line)
}

func TestArchiveDetector_ClassifiesJDKHomeAndCacheRoots(t *testing.T) {
	d := definition.NewArchiveDetector("/opt/jdk", "/home/u/.m2/repository", "/home/u/.gradle/caches")

	require.True(t, d.Classify(&iface.SourceLocation{URI: "file:///opt/jdk/lib/src.zip!/java/util/List.java"}, nil))
	require.True(t, d.Classify(&iface.SourceLocation{URI: "file:///home/u/.m2/repository/foo/Bar.java"}, nil))
	require.False(t, d.Classify(&iface.SourceLocation{URI: "file:///ws/A.kt"}, []string{"/ws"}))
	require.True(t, d.Classify(&iface.SourceLocation{URI: "file:///elsewhere/A.kt"}, []string{"/ws"}))
}

func TestBuildKlsURI_EncodesPackagePathAndJar(t *testing.T) {
	uri := definition.BuildKlsURI("/jdk/rt.jar", "java.util.List")
	require.Equal(t, "kls:///jdk/rt.jar!/java/util/List.class", uri)
}
