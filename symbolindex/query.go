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
	"database/sql"
	"time"

	"kotlinlsp.dev/core/internal/logging"
	"kotlinlsp.dev/core/symbol"
)

// Query performs a bounded-wait short-name prefix/suffix search (spec
// §4.G). A read-lock acquisition that doesn't complete within
// QueryTimeoutMS degrades to an empty result rather than blocking a
// UI-path request — the leaked acquisition goroutine harmlessly
// RUnlocks once it eventually succeeds.
func (idx *Index) Query(ctx context.Context, prefix string, receiverType, moduleID *string, limit int, suffix string) []symbol.Symbol {
	if limit <= 0 {
		limit = 20
	}
	if suffix == "" {
		suffix = "%"
	}

	acquired := make(chan struct{}, 1)
	go func() {
		idx.indexLock.RLock()
		acquired <- struct{}{}
	}()

	select {
	case <-acquired:
		defer idx.indexLock.RUnlock()
	case <-time.After(QueryTimeoutMS * time.Millisecond):
		logging.Warning("symbolindex: query lock wait exceeded %dms, degrading to empty result", QueryTimeoutMS)
		go func() { <-acquired; idx.indexLock.RUnlock() }()
		return nil
	case <-ctx.Done():
		go func() { <-acquired; idx.indexLock.RUnlock() }()
		return nil
	}

	pattern := prefix + "%" + suffix
	query := `SELECT s.fqname, s.shortname, s.kind, s.visibility, s.extensionreceivertype,
	                 l.uri, sp.line, sp.character, ep.line, ep.character,
	                 s.sourcejar, s.moduleid, s.modifiers
	          FROM symbols s
	          LEFT JOIN locations l ON s.location_id = l.id
	          LEFT JOIN ranges r ON l.range_id = r.id
	          LEFT JOIN positions sp ON r.start_id = sp.id
	          LEFT JOIN positions ep ON r.end_id = ep.id
	          WHERE s.shortname LIKE ?
	            AND (? = '' OR s.extensionreceivertype = ?)
	            AND (? = '' OR s.moduleid = ? OR s.moduleid IS NULL)
	          LIMIT ?`

	rt := derefOrEmpty(receiverType)
	mid := derefOrEmpty(moduleID)
	rows, err := idx.db.DB().QueryContext(ctx, query, pattern, rt, rt, mid, mid, limit)
	if err != nil {
		logging.Warning("symbolindex: query failed: %v", err)
		return nil
	}
	defer rows.Close()

	var results []symbol.Symbol
	for rows.Next() {
		var (
			sym                              symbol.Symbol
			kind, visibility, extensionRecv   sql.NullString
			uri, sourceJar, moduleIDCol, mods sql.NullString
			startLine, startChar              sql.NullInt64
			endLine, endChar                  sql.NullInt64
		)
		if err := rows.Scan(&sym.FQName, &sym.ShortName, &kind, &visibility, &extensionRecv,
			&uri, &startLine, &startChar, &endLine, &endChar,
			&sourceJar, &moduleIDCol, &mods); err != nil {
			logging.Warning("symbolindex: scanning row: %v", err)
			continue
		}
		sym.Kind = symbol.Kind(kind.String)
		sym.Visibility = symbol.Visibility(visibility.String)
		sym.ExtensionReceiverType = extensionRecv.String
		sym.SourceJar = sourceJar.String
		sym.ModuleID = moduleIDCol.String
		sym.Modifiers = splitModifiers(mods.String)
		if uri.Valid {
			sym.Location = &symbol.Location{
				URI: uri.String,
				Range: symbol.Range{
					Start: symbol.Position{Line: int(startLine.Int64), Character: int(startChar.Int64)},
					End:   symbol.Position{Line: int(endLine.Int64), Character: int(endChar.Int64)},
				},
			}
		}
		results = append(results, sym)
	}
	return results
}

// LookupFQName resolves an exact fully-qualified name to its indexed
// symbol, used by GoToDefinition's import-directive and archive-fallback
// paths (spec §4.L steps 1 and 4a). Same bounded-wait degradation as
// Query: a lock acquisition stuck past QueryTimeoutMS returns nil rather
// than blocking the request.
func (idx *Index) LookupFQName(ctx context.Context, fqName string, moduleID *string) *symbol.Symbol {
	acquired := make(chan struct{}, 1)
	go func() {
		idx.indexLock.RLock()
		acquired <- struct{}{}
	}()

	select {
	case <-acquired:
		defer idx.indexLock.RUnlock()
	case <-time.After(QueryTimeoutMS * time.Millisecond):
		logging.Warning("symbolindex: lookupFQName lock wait exceeded %dms, degrading to empty result", QueryTimeoutMS)
		go func() { <-acquired; idx.indexLock.RUnlock() }()
		return nil
	case <-ctx.Done():
		go func() { <-acquired; idx.indexLock.RUnlock() }()
		return nil
	}

	mid := derefOrEmpty(moduleID)
	query := `SELECT s.fqname, s.shortname, s.kind, s.visibility, s.extensionreceivertype,
	                 l.uri, sp.line, sp.character, ep.line, ep.character,
	                 s.sourcejar, s.moduleid, s.modifiers
	          FROM symbols s
	          LEFT JOIN locations l ON s.location_id = l.id
	          LEFT JOIN ranges r ON l.range_id = r.id
	          LEFT JOIN positions sp ON r.start_id = sp.id
	          LEFT JOIN positions ep ON r.end_id = ep.id
	          WHERE s.fqname = ?
	            AND (? = '' OR s.moduleid = ? OR s.moduleid IS NULL)
	          LIMIT 1`

	row := idx.db.DB().QueryRowContext(ctx, query, fqName, mid, mid)
	var (
		sym                              symbol.Symbol
		kind, visibility, extensionRecv  sql.NullString
		uri, sourceJar, moduleIDCol, mods sql.NullString
		startLine, startChar             sql.NullInt64
		endLine, endChar                 sql.NullInt64
	)
	if err := row.Scan(&sym.FQName, &sym.ShortName, &kind, &visibility, &extensionRecv,
		&uri, &startLine, &startChar, &endLine, &endChar,
		&sourceJar, &moduleIDCol, &mods); err != nil {
		if err != sql.ErrNoRows {
			logging.Warning("symbolindex: lookupFQName failed: %v", err)
		}
		return nil
	}
	sym.Kind = symbol.Kind(kind.String)
	sym.Visibility = symbol.Visibility(visibility.String)
	sym.ExtensionReceiverType = extensionRecv.String
	sym.SourceJar = sourceJar.String
	sym.ModuleID = moduleIDCol.String
	sym.Modifiers = splitModifiers(mods.String)
	if uri.Valid {
		sym.Location = &symbol.Location{
			URI: uri.String,
			Range: symbol.Range{
				Start: symbol.Position{Line: int(startLine.Int64), Character: int(startChar.Int64)},
				End:   symbol.Position{Line: int(endLine.Int64), Character: int(endChar.Int64)},
			},
		}
	}
	return &sym
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func splitModifiers(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
