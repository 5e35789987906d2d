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

// Package sourcefiles implements component E: SourceFiles, a thin
// tracker of which URIs are currently open in the editor and at what
// version, feeding SourcePath (component F) for the actual content/
// parse/compile state. Kept separate from SourcePath so "is this URI
// open" is a cheap read uncontended by compile traffic.
package sourcefiles

import "sync"

// Tracker records open-in-editor URIs and their editor-reported version.
type Tracker struct {
	mu   sync.RWMutex
	open map[string]int // uri -> version
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{open: make(map[string]int)}
}

// Open records uri as open at version, overwriting any prior entry.
func (t *Tracker) Open(uri string, version int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open[uri] = version
}

// Update records a new version for an already-open uri. It is a no-op
// (but still returns false) if uri was never opened, since a didChange
// for an unknown URI is a client protocol violation this layer merely
// reports rather than panics on.
func (t *Tracker) Update(uri string, version int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.open[uri]; !ok {
		return false
	}
	t.open[uri] = version
	return true
}

// Close removes uri from the open set.
func (t *Tracker) Close(uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.open, uri)
}

// IsOpen reports whether uri is currently tracked as open.
func (t *Tracker) IsOpen(uri string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.open[uri]
	return ok
}

// Version returns the last-known editor version for uri, or (0, false)
// if not open.
func (t *Tracker) Version(uri string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.open[uri]
	return v, ok
}

// OpenURIs returns a snapshot of all currently open URIs.
func (t *Tracker) OpenURIs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	uris := make([]string, 0, len(t.open))
	for uri := range t.open {
		uris = append(uris, uri)
	}
	return uris
}

// Count returns the number of currently open URIs.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.open)
}
