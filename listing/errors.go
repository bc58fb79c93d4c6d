package listing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSuperseded is returned by a fetch whose result was discarded because
	// a newer fetch was issued while it was in flight.
	ErrSuperseded = errors.New("listing: fetch superseded by a newer request")
	// ErrNotOnPage is returned when selecting an id absent from the current page.
	ErrNotOnPage = errors.New("listing: record is not on the current page")
	// ErrInvalidPageSize is returned for a non-positive page size.
	ErrInvalidPageSize = errors.New("listing: page size must be positive")
	// ErrInvalidRecord is returned when a new record fails local validation.
	ErrInvalidRecord = errors.New("listing: invalid record")
)

// BulkDeleteError reports the ids whose deletion failed during DeleteSelected.
// Deletions of the other ids were committed and are not rolled back.
type BulkDeleteError struct {
	Attempted int
	Failed    []int64
	Errs      map[int64]error
}

func newBulkDeleteError(attempted int, errs map[int64]error) *BulkDeleteError {
	failed := make([]int64, 0, len(errs))
	for id := range errs {
		failed = append(failed, id)
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	return &BulkDeleteError{Attempted: attempted, Failed: failed, Errs: errs}
}

func (e *BulkDeleteError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, id := range e.Failed {
		ids = append(ids, fmt.Sprint(id))
	}
	return fmt.Sprintf("delete selected: %d of %d failed: [%s]", len(e.Failed), e.Attempted, strings.Join(ids, " "))
}

// Unwrap exposes the per-id errors in id order.
func (e *BulkDeleteError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, id := range e.Failed {
		out = append(out, e.Errs[id])
	}
	return out
}
