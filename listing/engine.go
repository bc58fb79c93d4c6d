// Package listing keeps a local page window, search filter and row selection
// consistent with the remote paginated catalog.
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-book-catalog/models"
	"github.com/aluiziolira/go-book-catalog/parser"
)

// Catalog is the subset of the remote client the list engine needs.
type Catalog interface {
	ListRecords(ctx context.Context, filter models.Filter, pageIndex, pageSize int) (models.Page, error)
	CreateRecord(ctx context.Context, in models.NewRecord) (models.Record, error)
	DeleteRecord(ctx context.Context, id int64) error
}

// Status is the state of the most recently issued fetch.
type Status int

const (
	StatusIdle Status = iota
	StatusFetching
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a read-only snapshot of the engine for rendering.
type State struct {
	Status    Status
	Err       error
	Filter    models.Filter
	PageIndex int
	PageSize  int
	Page      models.Page
	Selected  []int64
}

// Engine owns the pagination cursor, filter, fetched page and selection set.
// It is safe for concurrent use; the lock is never held across a remote call.
type Engine struct {
	catalog Catalog

	mu         sync.Mutex
	filter     models.Filter
	pageIndex  int
	pageSize   int
	page       models.Page
	knownPages int
	selected   map[int64]struct{}
	status     Status
	err        error
	generation uint64
}

// NewEngine builds an idle engine. Nothing is fetched until the first call.
func NewEngine(catalog Catalog, pageSize int) *Engine {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Engine{
		catalog:  catalog,
		pageSize: pageSize,
		selected: make(map[int64]struct{}),
	}
}

// SetFilter replaces the filter as given, returns to the first page and
// fetches. Matching is left to the remote store.
func (e *Engine) SetFilter(ctx context.Context, filter models.Filter) error {
	return e.fetch(ctx, func() {
		e.filter = filter
		e.pageIndex = 0
	})
}

// SetPage moves to index, clamped into [0, totalPages) of the last fetched page, and fetches.
func (e *Engine) SetPage(ctx context.Context, index int) error {
	return e.fetch(ctx, func() {
		e.pageIndex = clampPage(index, e.knownPages)
	})
}

// SetPageSize changes the page size, returns to the first page and fetches.
func (e *Engine) SetPageSize(ctx context.Context, size int) error {
	if size <= 0 {
		return ErrInvalidPageSize
	}
	return e.fetch(ctx, func() {
		e.pageSize = size
		e.pageIndex = 0
	})
}

// Refresh re-fetches the current filter, page and size.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.fetch(ctx, nil)
}

// ToggleSelect flips the selection of id, which must be on the current page.
func (e *Engine) ToggleSelect(id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.page.Contains(id) {
		return fmt.Errorf("%w: %d", ErrNotOnPage, id)
	}
	if _, ok := e.selected[id]; ok {
		delete(e.selected, id)
	} else {
		e.selected[id] = struct{}{}
	}
	return nil
}

// ToggleSelectAll clears the selection when every id on the current page is
// selected, and otherwise selects them all.
func (e *Engine) ToggleSelectAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := e.page.IDs()
	if len(ids) == 0 {
		return
	}
	if e.allSelectedLocked(ids) {
		for _, id := range ids {
			delete(e.selected, id)
		}
		return
	}
	for _, id := range ids {
		e.selected[id] = struct{}{}
	}
}

// AllSelected reports whether the current page is non-empty and fully selected.
func (e *Engine) AllSelected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.page.IDs()
	return len(ids) > 0 && e.allSelectedLocked(ids)
}

// IsSelected reports whether id is in the selection set.
func (e *Engine) IsSelected(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.selected[id]
	return ok
}

// Selected returns the selected ids in page order.
func (e *Engine) Selected() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedLocked()
}

// DeleteSelected deletes every selected record concurrently, waits for all
// of them, clears the selection and refreshes. Deletions that succeeded stay
// committed; the returned *BulkDeleteError names the ids that failed.
func (e *Engine) DeleteSelected(ctx context.Context) error {
	e.mu.Lock()
	ids := e.selectedLocked()
	e.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	results := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			results[i] = e.catalog.DeleteRecord(ctx, id)
		}(i, id)
	}
	wg.Wait()

	e.mu.Lock()
	e.selected = make(map[int64]struct{})
	e.mu.Unlock()

	failed := make(map[int64]error)
	for i, err := range results {
		if err != nil {
			failed[ids[i]] = err
		}
	}

	var bulkErr error
	if len(failed) > 0 {
		bulkErr = newBulkDeleteError(len(ids), failed)
		slog.Warn("bulk delete partially failed",
			slog.Int("attempted", len(ids)),
			slog.Int("failed", len(failed)),
		)
	} else {
		slog.Debug("bulk delete complete", slog.Int("deleted", len(ids)))
	}

	return errors.Join(bulkErr, e.refreshAfterMutation(ctx))
}

// Create adds a record and refreshes so the view reflects the server.
func (e *Engine) Create(ctx context.Context, title, author string) (models.Record, error) {
	in := parser.NormalizeNewRecord(models.NewRecord{Title: title, Author: author})
	if err := parser.ValidateNewRecord(&in); err != nil {
		return models.Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	rec, err := e.catalog.CreateRecord(ctx, in)
	if err != nil {
		return models.Record{}, fmt.Errorf("create record: %w", err)
	}
	return rec, e.refreshAfterMutation(ctx)
}

// State returns a snapshot safe to read without further locking.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Status:    e.status,
		Err:       e.err,
		Filter:    e.filter,
		PageIndex: e.pageIndex,
		PageSize:  e.pageSize,
		Page:      e.page.Clone(),
		Selected:  e.selectedLocked(),
	}
}

// fetch applies update to the request parameters, issues a list request
// tagged with a new generation and applies the result only if no newer fetch
// was issued meanwhile. update runs under the same lock as the tag.
func (e *Engine) fetch(ctx context.Context, update func()) error {
	e.mu.Lock()
	if update != nil {
		update()
	}
	e.generation++
	gen := e.generation
	filter, index, size := e.filter, e.pageIndex, e.pageSize
	e.status = StatusFetching
	e.mu.Unlock()

	page, err := e.catalog.ListRecords(ctx, filter, index, size)

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		slog.Debug("discarding stale page",
			slog.Uint64("generation", gen),
			slog.Uint64("latest", e.generation),
			slog.Int("page", index),
		)
		return ErrSuperseded
	}

	if err != nil {
		e.status = StatusFailed
		e.err = fmt.Errorf("fetch page %d: %w", index, err)
		e.page = models.Page{Items: []models.Record{}, PageIndex: index, PageSize: size}
		e.selected = make(map[int64]struct{})
		return e.err
	}

	e.page = page
	e.pageIndex = page.PageIndex
	e.knownPages = page.TotalPages
	e.status = StatusReady
	e.err = nil
	for id := range e.selected {
		if !page.Contains(id) {
			delete(e.selected, id)
		}
	}
	return nil
}

// refreshAfterMutation refreshes, treating a superseded refresh as success
// since a newer fetch already reflects the mutation.
func (e *Engine) refreshAfterMutation(ctx context.Context) error {
	if err := e.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		return err
	}
	return nil
}

func (e *Engine) allSelectedLocked(ids []int64) bool {
	for _, id := range ids {
		if _, ok := e.selected[id]; !ok {
			return false
		}
	}
	return true
}

func (e *Engine) selectedLocked() []int64 {
	out := make([]int64, 0, len(e.selected))
	for _, id := range e.page.IDs() {
		if _, ok := e.selected[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func clampPage(index, totalPages int) int {
	if index >= totalPages {
		index = totalPages - 1
	}
	if index < 0 {
		index = 0
	}
	return index
}
