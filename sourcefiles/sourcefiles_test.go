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
package sourcefiles_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"kotlinlsp.dev/core/sourcefiles"
)

func TestOpenUpdateClose(t *testing.T) {
	tr := sourcefiles.New()
	tr.Open("file:///a.kt", 1)
	require.True(t, tr.IsOpen("file:///a.kt"))

	v, ok := tr.Version("file:///a.kt")
	require.True(t, ok)
	require.Equal(t, 1, v)

	require.True(t, tr.Update("file:///a.kt", 2))
	v, _ = tr.Version("file:///a.kt")
	require.Equal(t, 2, v)

	tr.Close("file:///a.kt")
	require.False(t, tr.IsOpen("file:///a.kt"))
}

func TestUpdateUnknownURI(t *testing.T) {
	tr := sourcefiles.New()
	require.False(t, tr.Update("file:///never-opened.kt", 1))
}

func TestConcurrentOpenDistinctURIs(t *testing.T) {
	tr := sourcefiles.New()
	var wg sync.WaitGroup
	n := 100
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Open(fmt.Sprintf("file:///%d.kt", i), 1)
		}(i)
	}
	wg.Wait()

	require.Equal(t, n, tr.Count())
	require.Len(t, tr.OpenURIs(), n)
}
