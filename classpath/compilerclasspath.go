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
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kotlinlsp.dev/core/iface"
	"kotlinlsp.dev/core/internal/logging"
	"kotlinlsp.dev/core/moduleregistry"
)

// State is the resolution lifecycle state (spec §4.D): PENDING →
// RESOLVING → READY|FAILED, with any subsequent build-file change
// returning a READY state to RESOLVING.
type State int

const (
	StatePending State = iota
	StateResolving
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateResolving:
		return "RESOLVING"
	case StateReady:
		return "READY"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// CompilerFactory builds a fresh Compiler instance for either the
// shared (moduleID == "") or a per-module classpath snapshot. It is the
// production seam over the opaque Compiler façade from spec §1.
type CompilerFactory interface {
	NewCompiler(moduleID string, snapshot Snapshot) (iface.Compiler, error)
}

// Snapshot is an immutable, caller-owned copy of the classpath state,
// returned by readers per spec §4.D: "readers acquire the read lock and
// return a copy."
type Snapshot struct {
	WorkspaceRoots       []string
	JavaSourcePath       []string
	BuildScriptClassPath []Entry
	ClassPath            []Entry
	OutputDirectory      string
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{OutputDirectory: s.OutputDirectory}
	out.WorkspaceRoots = append(out.WorkspaceRoots, s.WorkspaceRoots...)
	out.JavaSourcePath = append(out.JavaSourcePath, s.JavaSourcePath...)
	out.BuildScriptClassPath = append(out.BuildScriptClassPath, s.BuildScriptClassPath...)
	out.ClassPath = append(out.ClassPath, s.ClassPath...)
	return out
}

// CompilerClassPath implements component D. A single RWMutex guards
// every field; mutators acquire the write lock, readers acquire the
// read lock and return a copy, matching spec §4.D verbatim.
type CompilerClassPath struct {
	mu             sync.RWMutex
	snapshot       Snapshot
	moduleRegistry *moduleregistry.Registry
	state          State

	resolverCache *ResolverCache
	factory       CompilerFactory
	sharedCompiler iface.Compiler
	compilers      *compilerLRU

	buildFileVersion int64
	onReady          func()
	readyFired       bool // tracks "exactly once per RESOLVING->READY transition"

	cancel     context.CancelFunc
	resolution chan struct{} // closed when the in-flight resolution finishes
	closed     bool
}

// New constructs a CompilerClassPath in the initial PENDING state.
func New(resolver iface.ClassPathResolver, factory CompilerFactory, registry *moduleregistry.Registry) *CompilerClassPath {
	return &CompilerClassPath{
		moduleRegistry: registry,
		state:          StatePending,
		resolverCache:  NewResolverCache(resolver),
		factory:        factory,
		compilers:      newCompilerLRU(MaxModuleCompilers),
	}
}

// OnClassPathReady registers the callback invoked exactly once per
// RESOLVING→READY transition.
func (c *CompilerClassPath) OnClassPathReady(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReady = fn
}

// State returns the current resolution state.
func (c *CompilerClassPath) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns a read-locked copy of the current classpath state.
func (c *CompilerClassPath) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.clone()
}

// AddWorkspaceRoot transitions to RESOLVING and schedules background
// resolution, returning immediately (spec §4.D: "<1s budget").
func (c *CompilerClassPath) AddWorkspaceRoot(ctx context.Context, root string) {
	c.mu.Lock()
	c.snapshot.WorkspaceRoots = append(c.snapshot.WorkspaceRoots, root)
	c.mu.Unlock()

	c.startResolving(ctx, root)
}

// ChangedOnDisk is invoked by a build-file watcher when a recognised
// build file's mtime advances; it bumps buildFileVersion and re-enters
// RESOLVING exactly like AddWorkspaceRoot.
func (c *CompilerClassPath) ChangedOnDisk(ctx context.Context, workspaceRoot string, newBuildFileVersion int64) {
	c.mu.Lock()
	c.buildFileVersion = newBuildFileVersion
	c.mu.Unlock()

	c.startResolving(ctx, workspaceRoot)
}

// startResolving cancels any in-flight resolution, transitions to
// RESOLVING, and launches the background refresh algorithm. Cancelling
// cancels the context the superseded resolver call received, so a
// resolver that honours ctx stops early; the superseded run is not left
// to finish in the background.
func (c *CompilerClassPath) startResolving(parent context.Context, workspaceRoot string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.state = StateResolving
	c.readyFired = false
	done := make(chan struct{})
	c.resolution = done
	version := c.buildFileVersion
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.refresh(ctx, workspaceRoot, version)
	}()
}

// refresh runs the 8-step algorithm from spec §4.D.
func (c *CompilerClassPath) refresh(ctx context.Context, workspaceRoot string, version int64) {
	// Step 1: invalidate resolver cache.
	c.resolverCache.Invalidate()

	// Step 2: compute new classpath.
	resolved, err := c.resolverCache.Resolve(ctx, workspaceRoot, version)
	if err != nil {
		if ctx.Err() != nil {
			return // superseded; no FAILED transition for a cancellation
		}
		c.mu.Lock()
		c.state = StateFailed
		c.mu.Unlock()
		logging.Warning("classpath: resolution failed for %s: %v", workspaceRoot, err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	newEntries := make([]Entry, 0, len(resolved.CompiledJars))
	for _, jar := range resolved.CompiledJars {
		newEntries = append(newEntries, Entry{CompiledJar: jar})
	}

	c.mu.Lock()
	// Step 3: diff against current.
	diff := DiffEntries(c.snapshot.ClassPath, newEntries)

	// Step 4: apply diff atomically (we just replace the slice under the lock).
	pathsChanged := diff.HasChanges()
	c.snapshot.ClassPath = newEntries
	c.snapshot.OutputDirectory = defaultOutputDir(c.snapshot.OutputDirectory)

	// Step 5: recompute per-module registry classpaths.
	for _, name := range c.moduleRegistry.Names() {
		if info := c.moduleRegistry.Module(name); info != nil {
			info.ClassPath = jarPaths(newEntries)
			c.moduleRegistry.AddModule(*info)
		}
	}

	// Step 6: evict all per-module compilers.
	c.compilers.evictAll()

	// Step 7: if any path set changed, close and reinstantiate the
	// shared Compiler with fresh snapshots.
	if pathsChanged || c.sharedCompiler == nil {
		if c.sharedCompiler != nil {
			if err := c.sharedCompiler.Close(); err != nil {
				logging.Warning("classpath: closing previous shared compiler: %v", err)
			}
		}
		snap := c.snapshot.clone()
		newShared, err := c.factory.NewCompiler("", snap)
		if err != nil {
			c.state = StateFailed
			c.mu.Unlock()
			logging.Warning("classpath: creating shared compiler failed: %v", err)
			return
		}
		c.sharedCompiler = newShared
	}

	c.state = StateReady
	onReady := c.onReady
	alreadyFired := c.readyFired
	c.readyFired = true
	c.mu.Unlock()

	// Invoke the READY callback exactly once per transition, outside
	// the lock so the callback may itself call back into this component.
	if onReady != nil && !alreadyFired {
		onReady()
	}

	// Step 8: off the critical path, fetch classpath-with-sources and merge.
	go c.mergeSourceJars(resolved)
}

func (c *CompilerClassPath) mergeSourceJars(resolved *iface.ResolvedClassPath) {
	if len(resolved.SourceJars) == 0 {
		return
	}
	bySourceStem := make(map[string]string, len(resolved.SourceJars))
	for _, sj := range resolved.SourceJars {
		bySourceStem[sj] = sj
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.snapshot.ClassPath {
		if match, ok := bySourceStem[e.CompiledJar]; ok {
			c.snapshot.ClassPath[i].SourceJar = match
		}
	}
}

func jarPaths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.CompiledJar
	}
	return out
}

func defaultOutputDir(existing string) string {
	if existing != "" {
		return existing
	}
	dir, err := os.MkdirTemp("", "kls-output-*")
	if err != nil {
		return existing
	}
	return dir
}

// WaitForResolution blocks up to timeout for the in-flight resolution
// (if any) to finish, returning context.DeadlineExceeded on timeout.
func (c *CompilerClassPath) WaitForResolution(timeout time.Duration) error {
	c.mu.RLock()
	done := c.resolution
	c.mu.RUnlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}

// GetCompilerForModule returns the shared Compiler when moduleID is
// empty or unknown; otherwise looks up or lazily creates a per-module
// Compiler, marking it most-recently-used (spec §4.D).
func (c *CompilerClassPath) GetCompilerForModule(moduleID string) (iface.Compiler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if moduleID == "" {
		return c.sharedCompiler, nil
	}
	info := c.moduleRegistry.Module(moduleID)
	if info == nil {
		return c.sharedCompiler, nil
	}

	if existing, ok := c.compilers.get(moduleID); ok {
		return existing, nil
	}

	snap := c.snapshot.clone()
	snap.ClassPath = append(snap.ClassPath, entriesFromPaths(info.ClassPath)...)
	compiler, err := c.factory.NewCompiler(moduleID, snap)
	if err != nil {
		return nil, fmt.Errorf("classpath: creating compiler for module %q: %w", moduleID, err)
	}
	c.compilers.put(moduleID, compiler)
	return compiler, nil
}

func entriesFromPaths(paths []string) []Entry {
	out := make([]Entry, len(paths))
	for i, p := range paths {
		out[i] = Entry{CompiledJar: p}
	}
	return out
}

// Close cancels any in-flight resolution (cancelling the context the
// resolver call received) and waits for it to return, shuts down
// background work, evicts all compilers, closes the shared compiler,
// and deletes the output directory. Mirrors the teacher's
// StopFileWatching pattern of releasing the lock before blocking on
// shutdown, then reacquiring to finish tearing down state.
func (c *CompilerClassPath) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	done := c.resolution
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.compilers.evictAll()

	var errs []error
	if c.sharedCompiler != nil {
		if err := c.sharedCompiler.Close(); err != nil {
			errs = append(errs, err)
		}
		c.sharedCompiler = nil
	}
	if c.snapshot.OutputDirectory != "" {
		if err := os.RemoveAll(c.snapshot.OutputDirectory); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("classpath: close: %v", errs)
	}
	return nil
}

// runSupervised is a small errgroup-backed helper that runs background
// loops together and returns the first error without leaking a
// goroutine. WatchBuildFiles uses it for its event and error loops;
// background resolution itself runs in a plain goroutine.
func runSupervised(ctx context.Context, tasks ...func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error { return t(ctx) })
	}
	return g.Wait()
}
