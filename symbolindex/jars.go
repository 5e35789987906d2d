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

package symbolindex

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"kotlinlsp.dev/core/internal/kerrors"
	"kotlinlsp.dev/core/internal/logging"
	"kotlinlsp.dev/core/symbol"
)

// IndexJars incrementally indexes the packages any of jars contributes
// to, attributing each declaration to its true source jar (spec §4.G).
// Jar-sourced declarations are always dependency symbols (ModuleID
// empty) since a classpath jar is visible to every module that
// resolves it.
func (idx *Index) IndexJars(ctx context.Context, jars []string, packageToJarsMap map[string][]string, token *atomic.Bool) error {
	if idx.jarScanner == nil {
		return nil
	}
	jarSet := make(map[string]bool, len(jars))
	for _, j := range jars {
		jarSet[j] = true
	}

	for pkg, candidates := range packageToJarsMap {
		if token != nil && token.Load() {
			return kerrors.Cancelled
		}
		relevant := intersectJars(candidates, jarSet)
		if len(relevant) == 0 {
			continue
		}

		decls, err := idx.jarScanner.PackageDeclarations(ctx, relevant[0], pkg)
		if err != nil {
			logging.Warning("symbolindex: listing declarations for package %q: %v", pkg, err)
			continue
		}

		perJarCount := make(map[string]int, len(relevant))
		if err := idx.insertJarDeclarations(decls, relevant, perJarCount); err != nil {
			logging.Warning("symbolindex: indexing package %q: %v", pkg, err)
			continue
		}
		for jar, count := range perJarCount {
			if err := idx.recordIndexedJar(jar, count); err != nil {
				logging.Warning("symbolindex: recording indexed jar %q: %v", jar, err)
			}
		}
	}
	return nil
}

func intersectJars(candidates []string, jarSet map[string]bool) []string {
	var out []string
	for _, c := range candidates {
		if jarSet[c] {
			out = append(out, c)
		}
	}
	return out
}

// attributeJar picks the jar that actually owns fqName: the unique
// candidate if there is only one, else the first candidate whose
// classfile table contains it, else any candidate.
func (idx *Index) attributeJar(fqName string, candidates []string) string {
	if len(candidates) == 1 {
		return candidates[0]
	}
	for _, c := range candidates {
		if idx.jarScanner.ContainsClass(c, fqName) {
			return c
		}
	}
	return candidates[0]
}

func (idx *Index) insertJarDeclarations(decls []symbol.Symbol, candidates []string, perJarCount map[string]int) error {
	idx.indexLock.Lock()
	defer idx.indexLock.Unlock()

	tx, err := idx.db.DB().Begin()
	if err != nil {
		return kerrors.Wrap(kerrors.KindStoreCorruption, "symbolindex.insertJarDeclarations", err)
	}
	for _, decl := range decls {
		jar := idx.attributeJar(decl.FQName, candidates)
		decl.SourceJar = jar
		decl.ModuleID = ""
		if err := decl.Validate(); err != nil {
			logging.Warning("symbolindex: skipping invalid jar symbol %q: %v", decl.FQName, err)
			continue
		}
		if err := insertSymbolTx(tx, decl); err != nil {
			tx.Rollback()
			return err
		}
		perJarCount[jar]++
	}
	return tx.Commit()
}

func (idx *Index) recordIndexedJar(jarPath string, count int) error {
	idx.indexLock.Lock()
	defer idx.indexLock.Unlock()
	_, err := idx.db.DB().Exec(
		`INSERT INTO indexed_jars (jarpath, indexedat, symbolcount) VALUES (?, ?, ?)
		 ON CONFLICT(jarpath) DO UPDATE SET indexedat = excluded.indexedat, symbolcount = symbolcount + excluded.symbolcount`,
		jarPath, time.Now().UnixMilli(), count)
	return err
}

// RemoveSymbolsFromJars bulk-deletes every symbol sourced from any of
// jars and removes their IndexedJars rows.
func (idx *Index) RemoveSymbolsFromJars(jars []string) error {
	if len(jars) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(jars)), ",")
	args := make([]any, len(jars))
	for i, j := range jars {
		args[i] = j
	}

	idx.indexLock.Lock()
	defer idx.indexLock.Unlock()

	if _, err := idx.db.DB().Exec(`DELETE FROM symbols WHERE sourcejar IN (`+placeholders+`)`, args...); err != nil {
		return kerrors.Wrap(kerrors.KindStoreCorruption, "symbolindex.RemoveSymbolsFromJars", err)
	}
	if _, err := idx.db.DB().Exec(`DELETE FROM indexed_jars WHERE jarpath IN (`+placeholders+`)`, args...); err != nil {
		return kerrors.Wrap(kerrors.KindStoreCorruption, "symbolindex.RemoveSymbolsFromJars", err)
	}
	return nil
}
