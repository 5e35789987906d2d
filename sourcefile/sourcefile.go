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

// Package sourcefile holds the SourceFile entity and its invariants
// (spec §3). SourcePath (component F) owns the concurrent map of these;
// this package is just the data shape plus the invariant checks, kept
// separate so SourceFiles (component E) can depend on it without
// pulling in the whole of SourcePath's compile machinery.
package sourcefile

import (
	"strings"

	"kotlinlsp.dev/core/iface"
)

// Language is an opaque tag distinguishing source kinds the core must
// treat differently for compilation partitioning (spec §4.F): ordinary
// source vs. build script.
type Language string

const (
	LanguageDefault     Language = "DEFAULT"
	LanguageBuildScript Language = "BUILD_SCRIPT"
)

// File is one SourceFile (spec §3). Identity is its URI.
type File struct {
	URI            string
	Content        string
	Version        int
	Path           string // optional FS path; empty for non-file-backed content
	Parsed         *iface.ParsedTree
	CompiledTree   *iface.ParsedTree
	BindingContext *iface.BindingContext
	ModuleID       string // empty means unassigned or a temporary file
	Language       Language
	IsTemporary    bool
	LastSavedTree  *iface.ParsedTree
	CompiledVersion int // Version as of the last successful compile, 0 if never compiled
}

// ValidateContent enforces invariant (i): content is the editor's
// latest view and must never contain '\r' (spec §3).
func ValidateContent(content string) error {
	if strings.ContainsRune(content, '\r') {
		return errCarriageReturn
	}
	return nil
}

var errCarriageReturn = &contentError{"content must not contain '\\r'"}

type contentError struct{ msg string }

func (e *contentError) Error() string { return e.msg }

// NeedsReparse reports invariant (ii): parsed is stale relative to
// content and a reparse must run before any query reads Parsed.
func (f *File) NeedsReparse() bool {
	return f.Parsed == nil || f.Parsed.Text != f.Content
}

// New constructs a File in its initial, unparsed state.
func New(uri, content string, version int, language Language, temporary bool) *File {
	return &File{
		URI:         uri,
		Content:     content,
		Version:     version,
		Language:    language,
		IsTemporary: temporary,
	}
}
