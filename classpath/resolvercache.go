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
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"kotlinlsp.dev/core/iface"
)

// ResolverCache memoizes a ClassPathResolver's output keyed by the
// build-file version (component C). A singleflight.Group collapses
// concurrent resolutions for the same version into a single external
// call, so a burst of didChange events on an unchanged build script
// never fans out into N redundant resolver invocations.
type ResolverCache struct {
	resolver iface.ClassPathResolver

	mu      sync.RWMutex
	version int64
	result  *iface.ResolvedClassPath

	group singleflight.Group
}

// NewResolverCache wraps resolver with version-keyed memoization.
func NewResolverCache(resolver iface.ClassPathResolver) *ResolverCache {
	return &ResolverCache{resolver: resolver}
}

// Resolve returns the cached result for version if present, otherwise
// invokes the resolver (deduplicated across concurrent callers sharing
// the same version via singleflight) and caches the result.
func (c *ResolverCache) Resolve(ctx context.Context, workspaceRoot string, version int64) (*iface.ResolvedClassPath, error) {
	c.mu.RLock()
	if c.result != nil && c.version == version {
		cached := c.result
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	key := fmt.Sprintf("%s@%d", workspaceRoot, version)
	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the singleflight key: another caller may have
		// populated the cache for this exact version while we waited
		// to enter Do.
		c.mu.RLock()
		if c.result != nil && c.version == version {
			cached := c.result
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()

		resolved, err := c.resolver.Resolve(ctx, workspaceRoot)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.version = version
		c.result = resolved
		c.mu.Unlock()
		return resolved, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*iface.ResolvedClassPath), nil
}

// Invalidate drops the cached result, forcing the next Resolve to call
// through to the resolver regardless of version. Step 1 of the
// CompilerClassPath refresh algorithm (spec §4.D).
func (c *ResolverCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = 0
	c.result = nil
}
