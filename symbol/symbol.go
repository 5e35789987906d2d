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

// Package symbol holds the persisted row types backing the symbol
// index (spec §3, §6): Symbol itself plus the Location/Range/Position
// triple and the singleton/per-jar metadata rows.
package symbol

// Kind enumerates the declaration kinds the index tracks.
type Kind string

const (
	KindClass    Kind = "CLASS"
	KindFunction Kind = "FUNCTION"
	KindVariable Kind = "VARIABLE"
	KindObject   Kind = "OBJECT"
	KindProperty Kind = "PROPERTY"
	KindTypeAlias Kind = "TYPE_ALIAS"
)

// Visibility enumerates the declaration visibilities the index tracks.
type Visibility string

const (
	VisibilityPublic    Visibility = "PUBLIC"
	VisibilityProtected Visibility = "PROTECTED"
	VisibilityInternal  Visibility = "INTERNAL"
	VisibilityPrivate   Visibility = "PRIVATE"
)

// Field length limits enforced before a row is ever written (spec §3).
const (
	MaxFQNameLen   = 255
	MaxShortNameLen = 80
	MaxURILen      = 511
)

// Position is a zero-based line/character pair, matching LSP's own
// Position shape (see github.com/tliron/glsp/protocol_3_16.Position,
// which this mirrors at the storage layer so the two convert trivially).
type Position struct {
	Line      int
	Character int
}

// Range is a half-open [Start, End) span of Positions.
type Range struct {
	Start Position
	End   Position
}

// Location pairs a URI with the Range within it.
type Location struct {
	URI   string
	Range Range
}

// Symbol is one persisted declaration row. A Symbol with ModuleID == ""
// is a dependency symbol, visible to every module; otherwise it is
// visible only within that module plus dependency symbols.
type Symbol struct {
	ID                     int64
	FQName                 string
	ShortName              string
	Kind                   Kind
	Visibility             Visibility
	ExtensionReceiverType  string // empty means none
	Location               *Location
	SourceJar              string // empty means not jar-sourced
	ModuleID               string // empty means dependency symbol
	// Modifiers is a SPEC_FULL.md supplement beyond the distilled entity
	// table: modifier-aware completion filtering needs more than
	// visibility alone (e.g. abstract, open, override, const).
	Modifiers []string
}

// IsDependency reports whether sym is visible from every module.
func (sym Symbol) IsDependency() bool {
	return sym.ModuleID == ""
}

// Validate enforces the length constraints from spec §3. A symbol that
// violates these is rejected at the index-write boundary rather than
// silently truncated.
func (sym Symbol) Validate() error {
	if len(sym.FQName) > MaxFQNameLen {
		return &ValidationError{Field: "fqName", Len: len(sym.FQName), Max: MaxFQNameLen}
	}
	if len(sym.ShortName) > MaxShortNameLen {
		return &ValidationError{Field: "shortName", Len: len(sym.ShortName), Max: MaxShortNameLen}
	}
	if sym.Location != nil && len(sym.Location.URI) > MaxURILen {
		return &ValidationError{Field: "uri", Len: len(sym.Location.URI), Max: MaxURILen}
	}
	return nil
}

// ValidationError reports a field that exceeded its stored-length limit.
type ValidationError struct {
	Field string
	Len   int
	Max   int
}

func (e *ValidationError) Error() string {
	return e.Field + " exceeds max length"
}

// IndexMetadata is the SymbolIndexMetadata singleton row.
type IndexMetadata struct {
	BuildFileVersion int64
	IndexedAt        int64 // epoch-ms
	SymbolCount      int
}

// IsValidFor reports whether the index, as of this metadata snapshot, is
// valid for a probe version v (spec §3): the row must exist (callers
// check that separately), carry a build-file version at least v, and
// have indexed at least one symbol.
func (m IndexMetadata) IsValidFor(v int64) bool {
	return m.BuildFileVersion >= v && m.SymbolCount > 0
}

// IndexedJar is one IndexedJars row.
type IndexedJar struct {
	JarPath     string
	IndexedAt   int64
	SymbolCount int
}

// DatabaseMetadata is the singleton schema-version row.
type DatabaseMetadata struct {
	Version int
}
