// Package models defines the catalog records and the paging types shared by the engines.
package models

// Record is one catalog entry as stored by the remote service.
type Record struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Sales  int    `json:"sales"`
}

// NewRecord carries the fields accepted when creating a record. The server
// assigns the id and starts sales at zero.
type NewRecord struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

// Filter holds the substring search criteria. Empty fields match everything.
type Filter struct {
	Title  string
	Author string
}

// IsZero reports whether the filter matches every record.
func (f Filter) IsZero() bool {
	return f.Title == "" && f.Author == ""
}

// Page is one fetched window of records. PageIndex is zero-based.
type Page struct {
	Items      []Record
	PageIndex  int
	PageSize   int
	TotalCount int
	TotalPages int
}

// TotalPagesFor returns ceil(total/size), or 0 when size is not positive.
func TotalPagesFor(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// IDs returns the record ids in page order.
func (p Page) IDs() []int64 {
	ids := make([]int64, 0, len(p.Items))
	for _, r := range p.Items {
		ids = append(ids, r.ID)
	}
	return ids
}

// Contains reports whether id is one of the page's records.
func (p Page) Contains(id int64) bool {
	for _, r := range p.Items {
		if r.ID == id {
			return true
		}
	}
	return false
}

// FirstRow is the one-based position of the first item within the whole collection.
func (p Page) FirstRow() int {
	if len(p.Items) == 0 {
		return 0
	}
	return p.PageIndex*p.PageSize + 1
}

// LastRow is the one-based position of the last item within the whole collection.
func (p Page) LastRow() int {
	if len(p.Items) == 0 {
		return 0
	}
	last := (p.PageIndex + 1) * p.PageSize
	if last > p.TotalCount {
		last = p.TotalCount
	}
	return last
}

// Clone returns a copy whose Items slice is not shared with p.
func (p Page) Clone() Page {
	out := p
	out.Items = make([]Record, len(p.Items))
	copy(out.Items, p.Items)
	return out
}
