package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-book-catalog/catalog"
	"github.com/aluiziolira/go-book-catalog/models"
)

type fakeCatalog struct {
	mu         sync.Mutex
	records    []models.Record
	nextID     int64
	listErr    error
	deleteErrs map[int64]error
	deleted    []int64
	listCalls  int
	lastFilter models.Filter
	createCall int

	// gates blocks list calls whose title filter matches a key until the
	// channel is closed; started receives the title once such a call is waiting.
	gates   map[string]chan struct{}
	started chan string

	// deleteBarrier, when positive, makes each delete wait until that many
	// deletes are in flight at once.
	deleteBarrier int
	deleteArrived int
	deleteRelease chan struct{}
}

func newFakeCatalog(n int) *fakeCatalog {
	f := &fakeCatalog{
		deleteErrs: make(map[int64]error),
		gates:      make(map[string]chan struct{}),
		started:    make(chan string, 8),
	}
	for i := 1; i <= n; i++ {
		f.records = append(f.records, models.Record{
			ID:     int64(i),
			Title:  fmt.Sprintf("Book %d", i),
			Author: "Author",
		})
	}
	f.nextID = int64(n + 1)
	return f
}

func (f *fakeCatalog) ListRecords(ctx context.Context, filter models.Filter, pageIndex, pageSize int) (models.Page, error) {
	f.mu.Lock()
	f.listCalls++
	f.lastFilter = filter
	gate := f.gates[filter.Title]
	f.mu.Unlock()

	if gate != nil {
		f.started <- filter.Title
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return models.Page{}, f.listErr
	}

	var matched []models.Record
	for _, r := range f.records {
		if strings.Contains(r.Title, filter.Title) && strings.Contains(r.Author, filter.Author) {
			matched = append(matched, r)
		}
	}
	start := pageIndex * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	items := make([]models.Record, end-start)
	copy(items, matched[start:end])
	return models.Page{
		Items:      items,
		PageIndex:  pageIndex,
		PageSize:   pageSize,
		TotalCount: len(matched),
		TotalPages: models.TotalPagesFor(len(matched), pageSize),
	}, nil
}

func (f *fakeCatalog) CreateRecord(ctx context.Context, in models.NewRecord) (models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCall++
	rec := models.Record{ID: f.nextID, Title: in.Title, Author: in.Author}
	f.nextID++
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeCatalog) DeleteRecord(ctx context.Context, id int64) error {
	f.mu.Lock()
	if f.deleteBarrier > 0 {
		f.deleteArrived++
		if f.deleteArrived == f.deleteBarrier {
			close(f.deleteRelease)
		}
		release := f.deleteRelease
		f.mu.Unlock()
		select {
		case <-release:
		case <-time.After(2 * time.Second):
			return errors.New("deletes were not issued concurrently")
		}
		f.mu.Lock()
	}
	defer f.mu.Unlock()

	if err := f.deleteErrs[id]; err != nil {
		return err
	}
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return catalog.NotFoundError{ID: id, Err: errors.New("http status 404")}
}

func (f *fakeCatalog) gate(title string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[title] = ch
	return ch
}

func (f *fakeCatalog) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func readyEngine(t *testing.T, f *fakeCatalog, pageSize int) *Engine {
	t.Helper()
	e := NewEngine(f, pageSize)
	if err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	if got := e.State().Status; got != StatusReady {
		t.Fatalf("status = %v, want ready", got)
	}
	return e
}

func TestSetPageYieldsRequestedIndex(t *testing.T) {
	f := newFakeCatalog(25)
	e := readyEngine(t, f, 10)

	for _, index := range []int{0, 1, 2} {
		if err := e.SetPage(context.Background(), index); err != nil {
			t.Fatalf("set page %d: %v", index, err)
		}
		st := e.State()
		if st.Page.PageIndex != index || st.PageIndex != index {
			t.Fatalf("page index = %d/%d, want %d", st.Page.PageIndex, st.PageIndex, index)
		}
		if len(st.Page.Items) > st.Page.PageSize {
			t.Fatalf("items %d exceed page size %d", len(st.Page.Items), st.Page.PageSize)
		}
	}
}

func TestSetPageClamps(t *testing.T) {
	f := newFakeCatalog(25)
	e := readyEngine(t, f, 10)

	if got := e.State().Page.TotalPages; got != 3 {
		t.Fatalf("total pages = %d, want 3", got)
	}
	if err := e.SetPage(context.Background(), 5); err != nil {
		t.Fatalf("set page: %v", err)
	}
	if got := e.State().Page.PageIndex; got != 2 {
		t.Fatalf("page index = %d, want clamped 2", got)
	}
	if err := e.SetPage(context.Background(), -4); err != nil {
		t.Fatalf("set page: %v", err)
	}
	if got := e.State().Page.PageIndex; got != 0 {
		t.Fatalf("page index = %d, want clamped 0", got)
	}
}

func TestSetPageClampsAfterShrink(t *testing.T) {
	f := newFakeCatalog(25)
	e := readyEngine(t, f, 10)
	if err := e.SetPage(context.Background(), 2); err != nil {
		t.Fatalf("set page: %v", err)
	}

	f.mu.Lock()
	f.records = f.records[:15]
	f.mu.Unlock()
	if err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := e.State().Page.TotalPages; got != 2 {
		t.Fatalf("total pages = %d, want 2", got)
	}
	if err := e.SetPage(context.Background(), 2); err != nil {
		t.Fatalf("set page: %v", err)
	}
	if got := e.State().Page.PageIndex; got != 1 {
		t.Fatalf("page index = %d, want 1", got)
	}
}

func TestSetFilterResetsPageIndex(t *testing.T) {
	f := newFakeCatalog(25)
	e := readyEngine(t, f, 10)
	if err := e.SetPage(context.Background(), 2); err != nil {
		t.Fatalf("set page: %v", err)
	}

	if err := e.SetFilter(context.Background(), models.Filter{Title: "Book 1"}); err != nil {
		t.Fatalf("set filter: %v", err)
	}
	st := e.State()
	if st.PageIndex != 0 || st.Page.PageIndex != 0 {
		t.Fatalf("page index = %d, want 0", st.PageIndex)
	}
	if st.Filter.Title != "Book 1" {
		t.Fatalf("filter title = %q, want Book 1", st.Filter.Title)
	}
	// Book 1, Book 10..19
	if st.Page.TotalCount != 11 {
		t.Fatalf("total = %d, want 11", st.Page.TotalCount)
	}
}

func TestSetFilterSendsFilterUnchanged(t *testing.T) {
	f := newFakeCatalog(3)
	e := readyEngine(t, f, 10)

	filter := models.Filter{Title: " war", Author: "Tolstoy "}
	if err := e.SetFilter(context.Background(), filter); err != nil {
		t.Fatalf("set filter: %v", err)
	}
	if got := e.State().Filter; got != filter {
		t.Fatalf("stored filter = %+v, want %+v", got, filter)
	}
	f.mu.Lock()
	sent := f.lastFilter
	f.mu.Unlock()
	if sent != filter {
		t.Fatalf("filter sent to catalog = %+v, want %+v", sent, filter)
	}
}

func TestSetPageSize(t *testing.T) {
	f := newFakeCatalog(25)
	e := readyEngine(t, f, 10)
	if err := e.SetPage(context.Background(), 1); err != nil {
		t.Fatalf("set page: %v", err)
	}

	if err := e.SetPageSize(context.Background(), 0); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize, got %v", err)
	}
	if err := e.SetPageSize(context.Background(), 5); err != nil {
		t.Fatalf("set page size: %v", err)
	}
	st := e.State()
	if st.PageIndex != 0 || st.Page.PageSize != 5 || st.Page.TotalPages != 5 {
		t.Fatalf("state = index %d size %d pages %d", st.PageIndex, st.Page.PageSize, st.Page.TotalPages)
	}
}

func TestToggleSelectAllIdempotent(t *testing.T) {
	f := newFakeCatalog(25)
	e := readyEngine(t, f, 10)

	e.ToggleSelectAll()
	selected := e.Selected()
	if len(selected) != 10 {
		t.Fatalf("selected = %v, want 10 ids", selected)
	}
	page := e.State().Page
	for _, id := range selected {
		if !page.Contains(id) {
			t.Fatalf("selected id %d not on current page", id)
		}
	}
	if !e.AllSelected() {
		t.Fatalf("AllSelected should be true")
	}

	e.ToggleSelectAll()
	if got := e.Selected(); len(got) != 0 {
		t.Fatalf("selected after second toggle = %v, want empty", got)
	}
}

func TestToggleSelectAllCompletesPartialSelection(t *testing.T) {
	f := newFakeCatalog(5)
	e := readyEngine(t, f, 10)

	if err := e.ToggleSelect(2); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	e.ToggleSelectAll()
	if got := e.Selected(); len(got) != 5 {
		t.Fatalf("selected = %v, want all 5", got)
	}
}

func TestToggleSelect(t *testing.T) {
	f := newFakeCatalog(25)
	e := readyEngine(t, f, 10)

	if err := e.ToggleSelect(3); err != nil {
		t.Fatalf("toggle 3: %v", err)
	}
	if !e.IsSelected(3) {
		t.Fatalf("3 should be selected")
	}
	if err := e.ToggleSelect(3); err != nil {
		t.Fatalf("toggle 3 again: %v", err)
	}
	if e.IsSelected(3) {
		t.Fatalf("3 should be deselected")
	}
	if err := e.ToggleSelect(15); !errors.Is(err, ErrNotOnPage) {
		t.Fatalf("toggle off-page id: expected ErrNotOnPage, got %v", err)
	}
}

func TestSelectionScopedToFetchedPage(t *testing.T) {
	f := newFakeCatalog(25)
	e := readyEngine(t, f, 10)

	if err := e.ToggleSelect(4); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !e.IsSelected(4) {
		t.Fatalf("selection of an id still on the page should survive a refresh")
	}

	if err := e.SetPage(context.Background(), 1); err != nil {
		t.Fatalf("set page: %v", err)
	}
	if e.IsSelected(4) || len(e.Selected()) != 0 {
		t.Fatalf("stale selection retained after page change: %v", e.Selected())
	}
}

func TestDeleteSelectedPartialFailure(t *testing.T) {
	f := newFakeCatalog(50)
	f.deleteErrs[42] = catalog.NotFoundError{ID: 42, Err: errors.New("http status 404")}
	e := readyEngine(t, f, 10)
	if err := e.SetPage(context.Background(), 4); err != nil {
		t.Fatalf("set page: %v", err)
	}
	for _, id := range []int64{41, 42, 43} {
		if err := e.ToggleSelect(id); err != nil {
			t.Fatalf("toggle %d: %v", id, err)
		}
	}
	callsBefore := f.calls()

	err := e.DeleteSelected(context.Background())

	var bulk *BulkDeleteError
	if !errors.As(err, &bulk) {
		t.Fatalf("expected BulkDeleteError, got %v", err)
	}
	if len(bulk.Failed) != 1 || bulk.Failed[0] != 42 {
		t.Fatalf("failed = %v, want [42]", bulk.Failed)
	}
	if bulk.Attempted != 3 {
		t.Fatalf("attempted = %d, want 3", bulk.Attempted)
	}
	if !catalog.IsNotFound(err) {
		t.Fatalf("bulk error should unwrap to the NotFoundError")
	}
	if got := e.Selected(); len(got) != 0 {
		t.Fatalf("selection = %v, want empty", got)
	}
	f.mu.Lock()
	deleted := append([]int64(nil), f.deleted...)
	f.mu.Unlock()
	if len(deleted) != 2 {
		t.Fatalf("deleted = %v, want 41 and 43", deleted)
	}
	if f.calls() != callsBefore+1 {
		t.Fatalf("expected one refresh after bulk delete")
	}
	if got := e.State().Page.TotalCount; got != 48 {
		t.Fatalf("total after refresh = %d, want 48", got)
	}
}

func TestDeleteSelectedIssuesDeletesConcurrently(t *testing.T) {
	f := newFakeCatalog(10)
	f.deleteBarrier = 4
	f.deleteRelease = make(chan struct{})
	e := readyEngine(t, f, 10)
	for _, id := range []int64{1, 2, 3, 4} {
		if err := e.ToggleSelect(id); err != nil {
			t.Fatalf("toggle %d: %v", id, err)
		}
	}

	if err := e.DeleteSelected(context.Background()); err != nil {
		t.Fatalf("delete selected: %v", err)
	}
	st := e.State()
	if len(st.Selected) != 0 {
		t.Fatalf("selection = %v, want empty", st.Selected)
	}
	if st.Page.TotalCount != 6 {
		t.Fatalf("total = %d, want 6", st.Page.TotalCount)
	}
}

func TestDeleteSelectedEmptyIsNoop(t *testing.T) {
	f := newFakeCatalog(3)
	e := readyEngine(t, f, 10)
	callsBefore := f.calls()

	if err := e.DeleteSelected(context.Background()); err != nil {
		t.Fatalf("delete selected: %v", err)
	}
	if f.calls() != callsBefore {
		t.Fatalf("empty bulk delete should not refresh")
	}
}

func TestLastIssuedFetchWins(t *testing.T) {
	f := newFakeCatalog(0)
	f.records = []models.Record{
		{ID: 1, Title: "alpha one"},
		{ID: 2, Title: "beta two"},
	}
	e := NewEngine(f, 10)
	slow := f.gate("alpha")

	errA := make(chan error, 1)
	go func() {
		errA <- e.SetFilter(context.Background(), models.Filter{Title: "alpha"})
	}()
	if got := <-f.started; got != "alpha" {
		t.Fatalf("started = %q", got)
	}

	if err := e.SetFilter(context.Background(), models.Filter{Title: "beta"}); err != nil {
		t.Fatalf("fetch B: %v", err)
	}
	close(slow)
	if err := <-errA; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("fetch A: expected ErrSuperseded, got %v", err)
	}

	st := e.State()
	if st.Status != StatusReady {
		t.Fatalf("status = %v, want ready", st.Status)
	}
	if len(st.Page.Items) != 1 || st.Page.Items[0].ID != 2 {
		t.Fatalf("items = %+v, want beta only", st.Page.Items)
	}
	if st.Filter.Title != "beta" {
		t.Fatalf("filter = %q, want beta", st.Filter.Title)
	}
}

func TestStaleResponseBeforeNewerResponseIsDiscarded(t *testing.T) {
	f := newFakeCatalog(0)
	f.records = []models.Record{
		{ID: 1, Title: "alpha one"},
		{ID: 2, Title: "beta two"},
	}
	e := NewEngine(f, 10)
	gateA := f.gate("alpha")
	gateB := f.gate("beta")

	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() { errA <- e.SetFilter(context.Background(), models.Filter{Title: "alpha"}) }()
	<-f.started
	go func() { errB <- e.SetFilter(context.Background(), models.Filter{Title: "beta"}) }()
	<-f.started

	close(gateA)
	if err := <-errA; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("fetch A: expected ErrSuperseded, got %v", err)
	}
	if st := e.State(); st.Status != StatusFetching || len(st.Page.Items) != 0 {
		t.Fatalf("stale result applied: status %v items %+v", st.Status, st.Page.Items)
	}

	close(gateB)
	if err := <-errB; err != nil {
		t.Fatalf("fetch B: %v", err)
	}
	st := e.State()
	if len(st.Page.Items) != 1 || st.Page.Items[0].ID != 2 {
		t.Fatalf("items = %+v, want beta only", st.Page.Items)
	}
}

func TestFetchFailureShowsErrorState(t *testing.T) {
	f := newFakeCatalog(25)
	e := readyEngine(t, f, 10)
	if err := e.ToggleSelect(1); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	f.mu.Lock()
	f.listErr = catalog.NetworkError{Op: "list", Err: errors.New("connection reset")}
	f.mu.Unlock()

	err := e.Refresh(context.Background())
	var network catalog.NetworkError
	if !errors.As(err, &network) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	st := e.State()
	if st.Status != StatusFailed || st.Err == nil {
		t.Fatalf("status = %v err = %v, want failed", st.Status, st.Err)
	}
	if len(st.Page.Items) != 0 || len(st.Selected) != 0 {
		t.Fatalf("stale data retained after failure: %+v", st)
	}

	f.mu.Lock()
	f.listErr = nil
	f.mu.Unlock()
	if err := e.SetPage(context.Background(), 2); err != nil {
		t.Fatalf("set page after failure: %v", err)
	}
	if st := e.State(); st.Status != StatusReady || st.Page.PageIndex != 2 || st.Err != nil {
		t.Fatalf("state after recovery = %v index %d err %v", st.Status, st.Page.PageIndex, st.Err)
	}
}

func TestCreate(t *testing.T) {
	f := newFakeCatalog(3)
	e := readyEngine(t, f, 10)

	if _, err := e.Create(context.Background(), "  ", "Someone"); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if _, err := e.Create(context.Background(), "Title", ""); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if f.createCall != 0 {
		t.Fatalf("invalid records must not reach the catalog")
	}

	rec, err := e.Create(context.Background(), " Middlemarch ", "George Eliot")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID != 4 || rec.Title != "Middlemarch" || rec.Sales != 0 {
		t.Fatalf("record = %+v", rec)
	}
	if got := e.State().Page.TotalCount; got != 4 {
		t.Fatalf("total after create = %d, want 4", got)
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		index, total, want int
	}{
		{index: 5, total: 3, want: 2},
		{index: 2, total: 3, want: 2},
		{index: -1, total: 3, want: 0},
		{index: 4, total: 0, want: 0},
	}
	for _, tt := range tests {
		if got := clampPage(tt.index, tt.total); got != tt.want {
			t.Errorf("clampPage(%d, %d) = %d, want %d", tt.index, tt.total, got, tt.want)
		}
	}
}

func TestBulkDeleteErrorMessage(t *testing.T) {
	err := newBulkDeleteError(3, map[int64]error{
		42: errors.New("gone"),
		7:  errors.New("timeout"),
	})
	if err.Failed[0] != 7 || err.Failed[1] != 42 {
		t.Fatalf("failed = %v, want sorted [7 42]", err.Failed)
	}
	if got := err.Error(); !strings.Contains(got, "2 of 3") || !strings.Contains(got, "[7 42]") {
		t.Fatalf("message = %q", got)
	}
}
