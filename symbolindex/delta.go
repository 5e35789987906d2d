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
	"kotlinlsp.dev/core/internal/kerrors"
	"kotlinlsp.dev/core/symbol"
)

// ApplyFileDelta applies a single file's before/after declaration sets
// as a transactional delete-removed/insert-added pair, the fine-grained
// counterpart to the bulk operations Refresh/IndexJars/
// RemoveSymbolsFromJars perform. It is the write path IndexingService
// (component H) drives from SourcePath's lazy DeclsProvider closures.
func (idx *Index) ApplyFileDelta(moduleID string, before, after []symbol.Symbol) error {
	if len(before) == 0 && len(after) == 0 {
		return nil
	}

	idx.indexLock.Lock()
	defer idx.indexLock.Unlock()

	tx, err := idx.db.DB().Begin()
	if err != nil {
		return kerrors.Wrap(kerrors.KindStoreCorruption, "symbolindex.ApplyFileDelta", err)
	}

	for _, sym := range before {
		if _, err := tx.Exec(`DELETE FROM symbols WHERE fqname = ? AND moduleid = ?`, sym.FQName, moduleID); err != nil {
			tx.Rollback()
			return kerrors.Wrap(kerrors.KindStoreCorruption, "symbolindex.ApplyFileDelta.delete", err)
		}
	}
	for _, sym := range after {
		sym.ModuleID = moduleID
		if err := sym.Validate(); err != nil {
			continue
		}
		if err := insertSymbolTx(tx, sym); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return kerrors.Wrap(kerrors.KindStoreCorruption, "symbolindex.ApplyFileDelta", err)
	}
	return nil
}
