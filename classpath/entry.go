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

// Package classpath implements components C and D: ClassPathResolverCache
// and CompilerClassPath — the background classpath resolver's four-state
// lifecycle, cancellation of superseded resolutions, and the per-module
// Compiler LRU.
package classpath

// Entry is one classpath entry (spec §3): a required compiled jar
// paired with a best-effort source jar. Equality is by CompiledJar.
type Entry struct {
	CompiledJar string
	SourceJar   string // empty means none found
}

// Diff is the added/removed entries between two classpath snapshots.
type Diff struct {
	Added   []Entry
	Removed []Entry
}

// HasChanges reports whether the diff is non-empty.
func (d Diff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// DiffEntries computes the Diff between an old and new entry set,
// comparing solely by CompiledJar per spec §3's equality rule.
func DiffEntries(old, new []Entry) Diff {
	oldByJar := make(map[string]Entry, len(old))
	for _, e := range old {
		oldByJar[e.CompiledJar] = e
	}
	newByJar := make(map[string]Entry, len(new))
	for _, e := range new {
		newByJar[e.CompiledJar] = e
	}

	var diff Diff
	for jar, e := range newByJar {
		if _, ok := oldByJar[jar]; !ok {
			diff.Added = append(diff.Added, e)
		}
	}
	for jar, e := range oldByJar {
		if _, ok := newByJar[jar]; !ok {
			diff.Removed = append(diff.Removed, e)
		}
	}
	return diff
}
