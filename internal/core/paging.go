package core

import (
	"cmp"
	"slices"
	"strings"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Page is one window of an in-memory list.
type Page[T any] struct {
	Items      []T
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// Paginate slices items into pages. page is clamped to [1, TotalPages] and
// perPage defaults to DefaultPerPage, capped at MaxPerPage.
func Paginate[T any](items []T, page, perPage int) Page[T] {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	total := len(items)
	pages := (total + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * perPage
	end := min(start+perPage, total)
	return Page[T]{
		Items:      items[start:end],
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: pages,
	}
}

func (p Page[T]) HasPrev() bool { return p.Page > 1 }
func (p Page[T]) HasNext() bool { return p.Page < p.TotalPages }
func (p Page[T]) Prev() int     { return max(p.Page-1, 1) }
func (p Page[T]) Next() int     { return min(p.Page+1, p.TotalPages) }

// From is the 1-based index of the first item on the page, 0 when empty.
func (p Page[T]) From() int {
	if p.Total == 0 {
		return 0
	}
	return (p.Page-1)*p.PerPage + 1
}

// To is the 1-based index of the last item on the page.
func (p Page[T]) To() int {
	return (p.Page-1)*p.PerPage + len(p.Items)
}

// Filter returns the items for which keep is true, preserving order.
func Filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// MatchesQuery reports whether every whitespace-separated term of query occurs,
// case-insensitively, in at least one of fields. An empty query matches everything.
func MatchesQuery(query string, fields ...string) bool {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return true
	}
	lowered := make([]string, len(fields))
	for i, f := range fields {
		lowered[i] = strings.ToLower(f)
	}
	for _, term := range terms {
		found := false
		for _, f := range lowered {
			if strings.Contains(f, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SortBy stable-sorts items by key, descending when desc is set.
func SortBy[T any, K cmp.Ordered](items []T, key func(T) K, desc bool) {
	slices.SortStableFunc(items, func(a, b T) int {
		c := cmp.Compare(key(a), key(b))
		if desc {
			return -c
		}
		return c
	})
}
