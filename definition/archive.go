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

package definition

import (
	"path/filepath"
	"strings"

	"kotlinlsp.dev/core/iface"
)

// ArchiveDetector normalises a declaration's source location and decides
// whether it lives inside an archive (JAR/zip, the JDK home, or a
// user/system build-tool cache) or simply outside every known workspace
// root — spec §4.L step 4's trigger for the archive fallback chain.
type ArchiveDetector struct {
	jdkHome    string
	cacheRoots []string
}

// NewArchiveDetector builds a detector against jdkHome (may be empty)
// and any number of additional cache roots (typically the user's Gradle
// and Maven cache directories).
func NewArchiveDetector(jdkHome string, cacheRoots ...string) *ArchiveDetector {
	return &ArchiveDetector{
		jdkHome:    normalizePath(jdkHome),
		cacheRoots: normalizeAll(cacheRoots),
	}
}

func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

func normalizeAll(ps []string) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		if n := normalizePath(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func withinRoot(path, root string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Classify reports whether loc should be treated as archive-resident.
func (d *ArchiveDetector) Classify(loc *iface.SourceLocation, workspaceRoots []string) bool {
	if loc == nil {
		return false
	}
	if loc.InArchive {
		return true
	}

	path := strings.TrimPrefix(loc.URI, "file://")
	archivePart := path
	if idx := strings.IndexByte(path, '!'); idx >= 0 {
		archivePart = path[:idx]
	}
	if strings.HasSuffix(archivePart, ".jar") || strings.HasSuffix(archivePart, ".zip") {
		return true
	}

	norm := filepath.Clean(path)
	if withinRoot(norm, d.jdkHome) {
		return true
	}
	for _, root := range d.cacheRoots {
		if withinRoot(norm, root) {
			return true
		}
	}

	if len(workspaceRoots) == 0 {
		return false
	}
	for _, root := range workspaceRoots {
		if withinRoot(norm, filepath.Clean(root)) {
			return false
		}
	}
	return true
}
