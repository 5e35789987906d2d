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
package indexing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kotlinlsp.dev/core/database"
	"kotlinlsp.dev/core/indexing"
	"kotlinlsp.dev/core/sourcepath"
	"kotlinlsp.dev/core/symbol"
	"kotlinlsp.dev/core/symbolindex"
)

func called(t *testing.T) (sourcepath.DeclsProvider, *bool) {
	t.Helper()
	invoked := false
	return func() []symbol.Symbol {
		invoked = true
		return nil
	}, &invoked
}

func TestApplyCompileDelta_NoopWhenDisabledNeverCallsProviders(t *testing.T) {
	db, err := database.Open("")
	require.NoError(t, err)
	defer db.Close()

	svc := indexing.New(symbolindex.New(db), false)
	before, beforeInvoked := called(t)
	after, afterInvoked := called(t)

	svc.ApplyCompileDelta("mod-a", before, after)
	svc.Wait()

	require.False(t, *beforeInvoked, "disabled indexing must never invoke the before provider")
	require.False(t, *afterInvoked, "disabled indexing must never invoke the after provider")
}

func TestApplyCompileDelta_WritesSymbolsWhenEnabled(t *testing.T) {
	db, err := database.Open("")
	require.NoError(t, err)
	defer db.Close()

	svc := indexing.New(symbolindex.New(db), true)
	before := func() []symbol.Symbol { return nil }
	after := func() []symbol.Symbol {
		return []symbol.Symbol{{FQName: "a.Foo", ShortName: "Foo", Kind: symbol.KindClass, Visibility: symbol.VisibilityPublic}}
	}

	svc.ApplyCompileDelta("mod-a", before, after)
	svc.Wait()

	var count int
	require.NoError(t, db.DB().QueryRow(`SELECT COUNT(*) FROM symbols WHERE fqname = 'a.Foo'`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestApplyRemoveDelta_DeletesPreviouslyIndexedSymbols(t *testing.T) {
	db, err := database.Open("")
	require.NoError(t, err)
	defer db.Close()

	svc := indexing.New(symbolindex.New(db), true)
	after := func() []symbol.Symbol {
		return []symbol.Symbol{{FQName: "a.Foo", ShortName: "Foo", Kind: symbol.KindClass}}
	}
	svc.ApplyCompileDelta("mod-a", func() []symbol.Symbol { return nil }, after)
	svc.Wait()

	svc.ApplyRemoveDelta("mod-a", after)
	svc.Wait()

	var count int
	require.NoError(t, db.DB().QueryRow(`SELECT COUNT(*) FROM symbols WHERE fqname = 'a.Foo'`).Scan(&count))
	require.Zero(t, count)
}

func TestSetEnabled_TogglesAtRuntime(t *testing.T) {
	db, err := database.Open("")
	require.NoError(t, err)
	defer db.Close()

	svc := indexing.New(symbolindex.New(db), false)
	svc.SetEnabled(true)

	after := func() []symbol.Symbol {
		return []symbol.Symbol{{FQName: "a.Foo", ShortName: "Foo", Kind: symbol.KindClass}}
	}
	svc.ApplyCompileDelta("mod-a", func() []symbol.Symbol { return nil }, after)
	svc.Wait()

	var count int
	require.NoError(t, db.DB().QueryRow(`SELECT COUNT(*) FROM symbols WHERE fqname = 'a.Foo'`).Scan(&count))
	require.Equal(t, 1, count)
}
