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

// Package moduleregistry implements component B: ModuleRegistry, mapping
// file paths to their owning module by normalised-path containment. It
// follows the teacher's sync.RWMutex discipline in lsp/registry.go: many
// concurrent readers (positional queries resolving a module id), rare
// writers (a workspace root or build file add/remove).
package moduleregistry

import (
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Info describes one compilation-isolation unit (spec §3). DependsOn is
// a SPEC_FULL.md supplement letting callers answer "does module A's
// classpath include module B's output" without re-deriving it from
// CompilerClassPath on every query.
type Info struct {
	Name       string
	RootPath   string
	SourceDirs []string
	ClassPath  []string
	DependsOn  []string
}

// normPath returns the cleaned absolute form used for all containment
// checks, per spec §3's "path-containment uses normalised absolute
// paths" rule.
func normPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	return filepath.Clean(abs)
}

// Registry maps normalised file paths to their owning module.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Info // keyed by module name
	// sourceDirIndex maps a normalised source-dir path to the module
	// name that owns it, rebuilt whenever modules change. Lookups scan
	// every entry, so they cost O(total source dirs).
	sourceDirIndex map[string]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		modules:        make(map[string]*Info),
		sourceDirIndex: make(map[string]string),
	}
}

// AddModule registers or replaces a module definition.
func (r *Registry) AddModule(info Info) {
	normalized := Info{
		Name:      info.Name,
		RootPath:  normPath(info.RootPath),
		ClassPath: append([]string(nil), info.ClassPath...),
		DependsOn: append([]string(nil), info.DependsOn...),
	}
	for _, d := range info.SourceDirs {
		normalized.SourceDirs = append(normalized.SourceDirs, normPath(d))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[info.Name] = &normalized
	r.rebuildIndexLocked()
}

// RemoveModule deregisters a module by name.
func (r *Registry) RemoveModule(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, name)
	r.rebuildIndexLocked()
}

// rebuildIndexLocked recomputes sourceDirIndex from scratch, mirroring
// the teacher ephemeral.Registry's rebuildIndex()-under-write-lock
// pattern rather than incrementally patching a derived index.
func (r *Registry) rebuildIndexLocked() {
	idx := make(map[string]string, len(r.sourceDirIndex))
	for name, info := range r.modules {
		for _, dir := range info.SourceDirs {
			idx[dir] = name
		}
	}
	r.sourceDirIndex = idx
}

// FindModuleForFile returns the module owning path, or nil if path is
// not contained in any registered module's source directories.
func (r *Registry) FindModuleForFile(path string) *Info {
	target := normPath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Info
	bestLen := -1
	for dir, name := range r.sourceDirIndex {
		if !isWithin(target, dir) {
			continue
		}
		if len(dir) > bestLen {
			bestLen = len(dir)
			best = r.modules[name]
		}
	}
	if best == nil {
		return nil
	}
	clone := *best
	return &clone
}

// isWithin reports whether target is dir itself or a descendant of it.
func isWithin(target, dir string) bool {
	if target == dir {
		return true
	}
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}

// Module returns the registered module by name, or nil.
func (r *Registry) Module(name string) *Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.modules[name]
	if !ok {
		return nil
	}
	clone := *info
	return &clone
}

// IsEmpty reports whether no modules are registered, the trigger for
// SourcePath's "everything is one compilation unit" fallback (spec §4.F).
func (r *Registry) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules) == 0
}

// Names returns all registered module names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DependsOnModule reports whether module `from`'s classpath transitively
// includes module `to`'s output, per the DependsOn edges recorded in
// Info (SPEC_FULL.md §4 supplement).
func (r *Registry) DependsOnModule(from, to string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dependsOnLocked(from, to, make(map[string]bool))
}

func (r *Registry) dependsOnLocked(from, to string, seen map[string]bool) bool {
	if from == to {
		return true
	}
	if seen[from] {
		return false
	}
	seen[from] = true
	info, ok := r.modules[from]
	if !ok {
		return false
	}
	for _, dep := range info.DependsOn {
		if r.dependsOnLocked(dep, to, seen) {
			return true
		}
	}
	return false
}

// DiscoverSourceDirsFS globs an fs.FS-compatible filesystem (see
// internal/platform.FileSystem, which satisfies fs.FS via Open) for
// paths matching any of patterns, deduplicating and returning sorted
// matches. Matches are not filtered by type, so a pattern that matches
// a file returns that file too. internal/platform.FileSystem implementations satisfy
// fs.FS via their Open method.
func DiscoverSourceDirsFS(fsys fs.FS, patterns []string) ([]string, error) {
	var found []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			found = append(found, m)
		}
	}
	sort.Strings(found)
	return found, nil
}
