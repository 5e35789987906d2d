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
package classpath

import (
	"container/list"

	"kotlinlsp.dev/core/iface"
	"kotlinlsp.dev/core/internal/logging"
)

// MaxModuleCompilers bounds the per-module Compiler LRU (spec §4.D).
const MaxModuleCompilers = 5

type compilerLRUEntry struct {
	moduleID string
	compiler iface.Compiler
}

// compilerLRU is a bounded LRU of per-module Compiler instances. It is
// not itself synchronized: callers hold CompilerClassPath.mu for every
// access, matching the single-reader-writer-lock discipline spec §4.D
// requires of the whole component.
type compilerLRU struct {
	capacity int
	ll       *list.List
	index    map[string]*list.Element
}

func newCompilerLRU(capacity int) *compilerLRU {
	return &compilerLRU{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// get returns the compiler for moduleID and marks it most-recently-used,
// or (nil, false) if absent.
func (c *compilerLRU) get(moduleID string) (iface.Compiler, bool) {
	el, ok := c.index[moduleID]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*compilerLRUEntry).compiler, true
}

// put inserts or replaces the compiler for moduleID, marking it
// most-recently-used. If inserting exceeds capacity, the least-recently
// used entry is evicted and its Compiler closed.
func (c *compilerLRU) put(moduleID string, compiler iface.Compiler) {
	if el, ok := c.index[moduleID]; ok {
		el.Value.(*compilerLRUEntry).compiler = compiler
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&compilerLRUEntry{moduleID: moduleID, compiler: compiler})
	c.index[moduleID] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*compilerLRUEntry)
		c.ll.Remove(oldest)
		delete(c.index, entry.moduleID)
		if err := entry.compiler.Close(); err != nil {
			logging.Warning("classpath: closing evicted compiler for module %q: %v", entry.moduleID, err)
		}
	}
}

// evictAll closes and removes every entry, used by the refresh
// algorithm's step 6 ("evict all per-module compilers").
func (c *compilerLRU) evictAll() {
	for el := c.ll.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*compilerLRUEntry)
		if err := entry.compiler.Close(); err != nil {
			logging.Warning("classpath: closing compiler for module %q during evictAll: %v", entry.moduleID, err)
		}
	}
	c.ll.Init()
	c.index = make(map[string]*list.Element)
}

func (c *compilerLRU) len() int { return c.ll.Len() }
