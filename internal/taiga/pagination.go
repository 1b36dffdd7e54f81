// Taiga pagination header parsing.
//
// List endpoints report pagination through response headers rather than an
// envelope in the body. The raw JSON array stays untouched; PageInfo rides
// alongside it in the Result.
package taiga

import (
	"net/http"
	"strconv"
)

// Header names used by the upstream API.
const (
	headerPaginationCount   = "X-Pagination-Count"
	headerPaginationCurrent = "X-Pagination-Current"
	headerPaginationNext    = "X-Pagination-Next"
	headerPaginationPrev    = "X-Pagination-Prev"
	headerDisablePagination = "x-disable-pagination"
	headerThrottleRemaining = "X-Throttle-Remaining"
	headerThrottleReset     = "X-Throttle-Reset"
)

// PageInfo describes the pagination state of a list response.
type PageInfo struct {
	Count   int    `json:"count"`
	Current int    `json:"current"`
	Next    string `json:"next,omitempty"`
	Prev    string `json:"prev,omitempty"`
}

// pageInfoFrom extracts pagination headers, returning nil for unpaginated
// responses.
func pageInfoFrom(h http.Header) *PageInfo {
	count := h.Get(headerPaginationCount)
	if count == "" {
		return nil
	}

	p := &PageInfo{
		Next: h.Get(headerPaginationNext),
		Prev: h.Get(headerPaginationPrev),
	}
	p.Count, _ = strconv.Atoi(count)
	if cur := h.Get(headerPaginationCurrent); cur != "" {
		p.Current, _ = strconv.Atoi(cur)
	}
	return p
}
