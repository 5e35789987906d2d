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

// Package symbolindex implements component G: SymbolIndex. Writes run
// inside database transactions under indexLock; reads take the read
// side of indexLock with a bounded wait and degrade to an empty result
// on timeout rather than ever blocking a UI-path query, mirroring the
// teacher's ephemeral.Registry rebuild-under-write-lock discipline
// generalized to a persistent store.
package symbolindex

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kotlinlsp.dev/core/database"
	"kotlinlsp.dev/core/iface"
	"kotlinlsp.dev/core/internal/kerrors"
	"kotlinlsp.dev/core/internal/logging"
	"kotlinlsp.dev/core/symbol"
)

const (
	// DefaultBatchSize is the package-batch size refresh uses absent an
	// explicit override.
	DefaultBatchSize = 50
	// ProgressUpdateIntervalMS is the minimum cadence between progress
	// log lines during a full refresh.
	ProgressUpdateIntervalMS = 100
	// QueryTimeoutMS bounds how long query() will wait for the read
	// lock before degrading to an empty result.
	QueryTimeoutMS = 100
)

// Index is component G.
type Index struct {
	db *database.Service

	indexLock sync.RWMutex

	stateMu        sync.Mutex
	isIndexing     atomic.Bool
	currentToken   *atomic.Bool
	currentCancel  context.CancelFunc
	currentRunWg   sync.WaitGroup

	enumerator iface.PackageEnumerator
	jarScanner iface.JarScanner
}

// Option configures optional collaborators on New.
type Option func(*Index)

func WithPackageEnumerator(e iface.PackageEnumerator) Option {
	return func(idx *Index) { idx.enumerator = e }
}

func WithJarScanner(s iface.JarScanner) Option {
	return func(idx *Index) { idx.jarScanner = s }
}

// New constructs an Index backed by db.
func New(db *database.Service, opts ...Option) *Index {
	idx := &Index{db: db}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IsIndexing reports whether a refresh is currently running.
func (idx *Index) IsIndexing() bool { return idx.isIndexing.Load() }

// Wait blocks until no refresh is in flight. Used by callers (and
// tests) that need refresh's asynchronous completion rather than its
// synchronous kickoff.
func (idx *Index) Wait() { idx.currentRunWg.Wait() }

// CancelCurrentRefresh is idempotent: cancelling with no refresh
// running, or cancelling repeatedly in quick succession, is always
// safe (spec §4.G cancellation invariants).
func (idx *Index) CancelCurrentRefresh() {
	idx.stateMu.Lock()
	defer idx.stateMu.Unlock()
	if idx.currentToken != nil {
		idx.currentToken.Store(true)
	}
	if idx.currentCancel != nil {
		idx.currentCancel()
	}
}

func (idx *Index) metadata() (symbol.IndexMetadata, bool) {
	var m symbol.IndexMetadata
	row := idx.db.DB().QueryRow(`SELECT buildfileversion, indexedat, symbolcount FROM symbol_index_metadata WHERE id = 1`)
	if err := row.Scan(&m.BuildFileVersion, &m.IndexedAt, &m.SymbolCount); err != nil {
		return symbol.IndexMetadata{}, false
	}
	return m, true
}

// IsIndexValid reports whether the stored index metadata satisfies
// probe version v (spec §3).
func (idx *Index) IsIndexValid(v int64) bool {
	m, ok := idx.metadata()
	if !ok {
		return false
	}
	return m.IsValidFor(v)
}

// RefreshRequest parameterizes a full refresh.
type RefreshRequest struct {
	Module           string
	ModuleRoot       string
	Exclusions       map[string]bool
	BuildFileVersion int64
	SkipIfValid      bool
	BatchSize        int
}

// Refresh runs steps 1-3 synchronously (validity short-circuit,
// cancelling any prior run, token/isIndexing bookkeeping) then launches
// steps 4-8 asynchronously, returning immediately — callers that need
// completion call Wait.
func (idx *Index) Refresh(ctx context.Context, req RefreshRequest) {
	if req.SkipIfValid && req.BuildFileVersion > 0 && idx.IsIndexValid(req.BuildFileVersion) {
		return
	}

	idx.CancelCurrentRefresh()
	idx.currentRunWg.Wait() // a prior run's goroutine must fully exit before we reuse state

	runCtx, cancel := context.WithCancel(ctx)
	token := &atomic.Bool{}

	idx.stateMu.Lock()
	idx.currentToken = token
	idx.currentCancel = cancel
	idx.stateMu.Unlock()
	idx.isIndexing.Store(true)

	runID := uuid.NewString()
	idx.currentRunWg.Add(1)
	go func() {
		defer idx.currentRunWg.Done()
		defer cancel()
		defer idx.isIndexing.Store(false)
		idx.runRefresh(runCtx, runID, req, token)
	}()
}

func (idx *Index) runRefresh(ctx context.Context, runID string, req RefreshRequest, token *atomic.Bool) {
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	if idx.enumerator == nil {
		logging.Warning("symbolindex[%s]: no package enumerator configured, nothing to index", runID)
		return
	}

	packages, err := idx.enumerator.EnumeratePackages(ctx, req.ModuleRoot)
	if err != nil {
		logging.Warning("symbolindex[%s]: enumerating packages: %v", runID, err)
		return
	}
	if token.Load() {
		return
	}

	if !idx.clearModuleSourceSymbols(req.Module, token) {
		return // cancelled before the clear committed
	}

	batches := chunkPackages(packages, batchSize)
	lastProgress := time.Now()
	for i, batch := range batches {
		if token.Load() {
			logging.Info("symbolindex[%s]: refresh cancelled after %d/%d batches", runID, i, len(batches))
			return
		}
		if err := idx.insertBatch(req.Module, batch, req.Exclusions); err != nil {
			logging.Warning("symbolindex[%s]: batch %d insert failed: %v", runID, i, err)
			return
		}
		if time.Since(lastProgress) >= ProgressUpdateIntervalMS*time.Millisecond || i == len(batches)-1 {
			logging.Info("symbolindex[%s]: indexed batch %d/%d", runID, i+1, len(batches))
			lastProgress = time.Now()
		}
	}

	if token.Load() {
		return
	}

	count, err := idx.countSymbols()
	if err != nil {
		logging.Warning("symbolindex[%s]: counting symbols: %v", runID, err)
		return
	}
	if err := idx.writeMetadata(req.BuildFileVersion, count); err != nil {
		logging.Warning("symbolindex[%s]: writing metadata: %v", runID, err)
	}
}

// clearModuleSourceSymbols deletes the module's previously indexed
// source-local symbols (sourceJar empty) ahead of a full refresh,
// leaving dependency/jar-sourced rows from indexJars untouched. Returns
// false if cancelled before the delete committed.
func (idx *Index) clearModuleSourceSymbols(module string, token *atomic.Bool) bool {
	if token.Load() {
		return false
	}
	idx.indexLock.Lock()
	defer idx.indexLock.Unlock()
	if token.Load() {
		return false
	}
	_, err := idx.db.DB().Exec(
		`DELETE FROM symbols WHERE moduleid = ? AND (sourcejar IS NULL OR sourcejar = '')`, module)
	if err != nil {
		logging.Warning("symbolindex: clearing module %q symbols: %v", module, err)
		return false
	}
	return true
}

func chunkPackages(packages []iface.Package, size int) [][]iface.Package {
	var batches [][]iface.Package
	for i := 0; i < len(packages); i += size {
		end := i + size
		if end > len(packages) {
			end = len(packages)
		}
		batches = append(batches, packages[i:end])
	}
	return batches
}

func (idx *Index) insertBatch(module string, batch []iface.Package, exclusions map[string]bool) error {
	idx.indexLock.Lock()
	defer idx.indexLock.Unlock()

	tx, err := idx.db.DB().Begin()
	if err != nil {
		return kerrors.Wrap(kerrors.KindStoreCorruption, "symbolindex.insertBatch", err)
	}
	for _, pkg := range batch {
		for _, decl := range pkg.Declarations {
			if exclusions[decl.FQName] {
				continue
			}
			decl.ModuleID = module
			if err := decl.Validate(); err != nil {
				logging.Warning("symbolindex: skipping invalid symbol %q: %v", decl.FQName, err)
				continue
			}
			if err := insertSymbolTx(tx, decl); err != nil {
				tx.Rollback()
				return err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return kerrors.Wrap(kerrors.KindStoreCorruption, "symbolindex.insertBatch", err)
	}
	return nil
}

func (idx *Index) countSymbols() (int, error) {
	idx.indexLock.RLock()
	defer idx.indexLock.RUnlock()
	var count int
	err := idx.db.DB().QueryRow(`SELECT COUNT(*) FROM symbols`).Scan(&count)
	return count, err
}

func (idx *Index) writeMetadata(buildFileVersion int64, symbolCount int) error {
	idx.indexLock.Lock()
	defer idx.indexLock.Unlock()
	_, err := idx.db.DB().Exec(
		`INSERT OR REPLACE INTO symbol_index_metadata (id, buildfileversion, indexedat, symbolcount) VALUES (1, ?, ?, ?)`,
		buildFileVersion, time.Now().UnixMilli(), symbolCount)
	return err
}

// insertSymbolTx writes sym's location graph (position/range/location)
// followed by the symbol row itself, all as direct-row inserts within
// tx — never an ORM identity-map write (spec §9).
func insertSymbolTx(tx *sql.Tx, sym symbol.Symbol) error {
	var locationID sql.NullInt64
	if sym.Location != nil {
		startID, err := insertPositionTx(tx, sym.Location.Range.Start)
		if err != nil {
			return err
		}
		endID, err := insertPositionTx(tx, sym.Location.Range.End)
		if err != nil {
			return err
		}
		res, err := tx.Exec(`INSERT INTO ranges (start_id, end_id) VALUES (?, ?)`, startID, endID)
		if err != nil {
			return kerrors.Wrap(kerrors.KindStoreCorruption, "insertSymbolTx.range", err)
		}
		rangeID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		res, err = tx.Exec(`INSERT INTO locations (uri, range_id) VALUES (?, ?)`, sym.Location.URI, rangeID)
		if err != nil {
			return kerrors.Wrap(kerrors.KindStoreCorruption, "insertSymbolTx.location", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		locationID = sql.NullInt64{Int64: id, Valid: true}
	}

	_, err := tx.Exec(
		`INSERT INTO symbols (fqname, shortname, kind, visibility, extensionreceivertype, location_id, sourcejar, moduleid, modifiers)
		 VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''), NULLIF(?, ''), ?)`,
		sym.FQName, sym.ShortName, string(sym.Kind), string(sym.Visibility), sym.ExtensionReceiverType,
		locationID, sym.SourceJar, sym.ModuleID, joinModifiers(sym.Modifiers))
	if err != nil {
		return kerrors.Wrap(kerrors.KindStoreCorruption, "insertSymbolTx.symbol", err)
	}
	return nil
}

func insertPositionTx(tx *sql.Tx, pos symbol.Position) (int64, error) {
	res, err := tx.Exec(`INSERT INTO positions (line, character) VALUES (?, ?)`, pos.Line, pos.Character)
	if err != nil {
		return 0, kerrors.Wrap(kerrors.KindStoreCorruption, "insertPositionTx", err)
	}
	return res.LastInsertId()
}

func joinModifiers(mods []string) string {
	if len(mods) == 0 {
		return ""
	}
	out := mods[0]
	for _, m := range mods[1:] {
		out += "," + m
	}
	return out
}
