// Package detail edits a single catalog record: load, sales edit, commit and removal.
package detail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-book-catalog/catalog"
	"github.com/aluiziolira/go-book-catalog/models"
)

var (
	// ErrNotLoaded is returned by mutations attempted outside the loaded state.
	ErrNotLoaded = errors.New("detail: no record loaded")
	// ErrSalesEmpty is returned by Commit while the sales input is cleared.
	ErrSalesEmpty = errors.New("detail: sales input is empty")
	// ErrNegativeSales is returned by Commit when sales is below zero.
	ErrNegativeSales = errors.New("detail: sales cannot be negative")
	// ErrSuperseded is returned by a load whose result was discarded because
	// another load or a reset happened while it was in flight.
	ErrSuperseded = errors.New("detail: load superseded")
)

// Catalog is the subset of the remote client the detail engine needs.
type Catalog interface {
	GetRecord(ctx context.Context, id int64) (models.Record, error)
	UpdateRecord(ctx context.Context, id int64, fields models.Record) (models.Record, error)
	DeleteRecord(ctx context.Context, id int64) error
}

// Status is the lifecycle state of the edited record.
type Status int

const (
	StatusEmpty Status = iota
	StatusLoading
	StatusLoaded
	StatusNotFound
	StatusFailed
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusNotFound:
		return "not_found"
	case StatusFailed:
		return "failed"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Draft is the editable copy of a record.
type Draft struct {
	Record models.Record
	Sales  models.SalesInput
}

// Dirty reports whether the sales input differs from the stored value.
func (d Draft) Dirty() bool {
	v, ok := d.Sales.Value()
	return !ok || v != d.Record.Sales
}

// State is a read-only snapshot of the engine.
type State struct {
	Status Status
	ID     int64
	Draft  Draft
	Err    error
}

// CanCommit reports whether Commit would issue a request.
func (s State) CanCommit() bool {
	v, ok := s.Draft.Sales.Value()
	return s.Status == StatusLoaded && ok && v >= 0
}

// Option customises an Engine.
type Option func(*Engine)

// WithOnUpdated registers a callback run after a successful commit.
func WithOnUpdated(fn func(models.Record)) Option {
	return func(e *Engine) {
		e.onUpdated = fn
	}
}

// WithOnRemoved registers a callback run after the record was deleted; the
// presentation layer uses it to navigate away.
func WithOnRemoved(fn func(id int64)) Option {
	return func(e *Engine) {
		e.onRemoved = fn
	}
}

// Engine owns one record's draft. It is safe for concurrent use.
type Engine struct {
	catalog   Catalog
	onUpdated func(models.Record)
	onRemoved func(int64)

	mu         sync.Mutex
	status     Status
	id         int64
	draft      Draft
	err        error
	generation uint64
}

// NewEngine builds an empty engine.
func NewEngine(c Catalog, opts ...Option) *Engine {
	e := &Engine{catalog: c}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load fetches the record and seeds the draft from it.
func (e *Engine) Load(ctx context.Context, id int64) error {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.status = StatusLoading
	e.id = id
	e.draft = Draft{}
	e.err = nil
	e.mu.Unlock()

	rec, err := e.catalog.GetRecord(ctx, id)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return ErrSuperseded
	}
	if err != nil {
		e.err = fmt.Errorf("load record %d: %w", id, err)
		if catalog.IsNotFound(err) {
			e.status = StatusNotFound
		} else {
			e.status = StatusFailed
		}
		return e.err
	}

	e.draft = Draft{Record: rec, Sales: models.Sales(rec.Sales)}
	e.status = StatusLoaded
	return nil
}

// SetSalesField updates the sales input. EmptySales clears it without
// coercing it to zero.
func (e *Engine) SetSalesField(value models.SalesInput) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusLoaded {
		return ErrNotLoaded
	}
	e.draft.Sales = value
	return nil
}

// Commit sends the full record with the drafted sales. Nothing is sent while
// the input is empty or negative. On failure the draft is left as it was.
func (e *Engine) Commit(ctx context.Context) (models.Record, error) {
	e.mu.Lock()
	if e.status != StatusLoaded {
		e.mu.Unlock()
		return models.Record{}, ErrNotLoaded
	}
	sales, ok := e.draft.Sales.Value()
	if !ok {
		e.mu.Unlock()
		return models.Record{}, ErrSalesEmpty
	}
	if sales < 0 {
		e.mu.Unlock()
		return models.Record{}, fmt.Errorf("%w: %d", ErrNegativeSales, sales)
	}
	gen := e.generation
	id := e.id
	fields := e.draft.Record
	fields.Sales = sales
	e.mu.Unlock()

	updated, err := e.catalog.UpdateRecord(ctx, id, fields)

	e.mu.Lock()
	if err != nil {
		err = fmt.Errorf("update record %d: %w", id, err)
		if gen == e.generation {
			e.err = err
		}
		e.mu.Unlock()
		return models.Record{}, err
	}
	if gen == e.generation && e.status == StatusLoaded {
		e.draft = Draft{Record: updated, Sales: models.Sales(updated.Sales)}
		e.err = nil
	}
	onUpdated := e.onUpdated
	e.mu.Unlock()

	slog.Debug("record updated", slog.Int64("id", id), slog.Int("sales", updated.Sales))
	if onUpdated != nil {
		onUpdated(updated)
	}
	return updated, nil
}

// Remove deletes the loaded record. On failure the engine stays loaded with
// the error recorded.
func (e *Engine) Remove(ctx context.Context) error {
	e.mu.Lock()
	if e.status != StatusLoaded {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	gen := e.generation
	id := e.id
	e.mu.Unlock()

	err := e.catalog.DeleteRecord(ctx, id)

	e.mu.Lock()
	if err != nil {
		err = fmt.Errorf("delete record %d: %w", id, err)
		if gen == e.generation {
			e.err = err
		}
		e.mu.Unlock()
		return err
	}
	if gen == e.generation {
		e.status = StatusRemoved
		e.draft = Draft{}
		e.err = nil
	}
	onRemoved := e.onRemoved
	e.mu.Unlock()

	slog.Debug("record removed", slog.Int64("id", id))
	if onRemoved != nil {
		onRemoved(id)
	}
	return nil
}

// Reset discards the draft, e.g. when the view is left. An in-flight load is
// superseded.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.status = StatusEmpty
	e.id = 0
	e.draft = Draft{}
	e.err = nil
}

// State returns a snapshot of the engine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Status: e.status,
		ID:     e.id,
		Draft:  e.draft,
		Err:    e.err,
	}
}
