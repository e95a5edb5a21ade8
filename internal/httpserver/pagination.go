package httpserver

import (
	"net/http"
	"strconv"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// Pagination is the offset/limit pair used by /public/discover and
// similar listing endpoints, per spec.md §6 (unlike the teacher's
// cursor-based pagination, this protocol is offset/limit addressed).
type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads "limit" and "offset" query parameters, applying
// sane defaults and bounds so a caller cannot request an unbounded page.
func ParsePagination(r *http.Request) Pagination {
	p := Pagination{Limit: defaultLimit, Offset: 0}

	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Offset = n
		}
	}
	return p
}

// Slice applies the pagination window to a slice of any result type, clamping bounds so out-of-range offsets yield an empty
// page rather than a panic.
func Slice[T any](items []T, p Pagination) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}
