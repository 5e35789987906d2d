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
	"path/filepath"
	"time"

	"kotlinlsp.dev/core/internal/logging"
	"kotlinlsp.dev/core/internal/platform"
)

// recognisedBuildFiles lists the build-file names whose change on disk
// bumps the build-file version (see GLOSSARY).
var recognisedBuildFiles = []string{"pom.xml", "build.gradle", "build.gradle.kts"}

// WatchBuildFiles watches workspaceRoot for changes to recognised build
// files using the given platform.FileWatcher, calling ChangedOnDisk with
// a monotonically increasing version on every relevant write. The event
// loop and a second loop draining the watcher's Errors() channel run
// under errgroup supervision (SPEC_FULL.md §3). Watcher errors are
// logged and do not stop watching; both loops end only when ctx is
// cancelled or the watcher closes its channels.
//
// The returned function stops the loops and waits for them to exit;
// callers should invoke it from Close.
func (c *CompilerClassPath) WatchBuildFiles(ctx context.Context, workspaceRoot string, watcher platform.FileWatcher) (stop func(), err error) {
	for _, name := range recognisedBuildFiles {
		path := filepath.Join(workspaceRoot, name)
		if addErr := watcher.Add(path); addErr != nil {
			logging.Debug("classpath: not watching %s: %v", path, addErr)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	version := time.Now().UnixMilli()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runSupervised(watchCtx,
			func(ctx context.Context) error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case ev, ok := <-watcher.Events():
						if !ok {
							return nil
						}
						if ev.Op&(platform.Write|platform.Create) == 0 {
							continue
						}
						version++
						c.ChangedOnDisk(ctx, workspaceRoot, version)
					}
				}
			},
			func(ctx context.Context) error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case werr, ok := <-watcher.Errors():
						if !ok {
							return nil
						}
						logging.Warning("classpath: build file watcher error: %v", werr)
					}
				}
			},
		)
	}()

	stop = func() {
		cancel()
		<-errCh
	}
	return stop, nil
}
