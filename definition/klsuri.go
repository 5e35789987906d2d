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

import "strings"

// KlsURIScheme addresses a decompiled entry inside a JAR (see GLOSSARY:
// KlsURI), the last resort of GoToDefinition's archive fallback chain.
const KlsURIScheme = "kls"

// BuildKlsURI constructs the KlsURI naming fqName's class file inside
// jarPath.
func BuildKlsURI(jarPath, fqName string) string {
	entry := strings.ReplaceAll(fqName, ".", "/") + ".class"
	return KlsURIScheme + "://" + jarPath + "!/" + entry
}
